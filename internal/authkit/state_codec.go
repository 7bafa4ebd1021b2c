package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionStatePrefix marks a state value that continues an existing session.
// It is the only discriminator between "continue" and "new".
const SessionStatePrefix = "sess_"

const defaultStateTTL = 10 * time.Minute

var errMissingStateSigningKey = errors.New("oauth_state.missing_signing_key")

type stateClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// StateCodec encodes session correlation into the OAuth state parameter.
// Session-carrying states are signed, so a callback only continues session ids
// this service put into a state. With a NonceStore they are also single-use.
type StateCodec struct {
	signingKey []byte
	ttl        time.Duration
	clock      Clock
	nonces     NonceStore
}

// NewStateCodec constructs a codec; ttl <= 0 falls back to ten minutes and a nil nonces disables replay checks.
func NewStateCodec(signingKey []byte, ttl time.Duration, clock Clock, nonces NonceStore) (*StateCodec, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("oauth_state.new: %w", errMissingStateSigningKey)
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &StateCodec{
		signingKey: signingKey,
		ttl:        ttl,
		clock:      clockOrSystem(clock),
		nonces:     nonces,
	}, nil
}

// Encode returns a fresh random state for a blank session id, or the marker
// followed by a signed token carrying the session id.
func (codec *StateCodec) Encode(ctx context.Context, existingSessionID string) (string, error) {
	sessionID := strings.TrimSpace(existingSessionID)
	if sessionID == "" {
		return generateOpaqueToken()
	}
	var nonce string
	if codec.nonces != nil {
		issued, err := codec.nonces.Issue(ctx)
		if err != nil {
			return "", fmt.Errorf("oauth_state.nonce: %w", err)
		}
		nonce = issued
	}
	issuedAt := codec.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, stateClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(codec.ttl)),
		},
	})
	signed, err := token.SignedString(codec.signingKey)
	if err != nil {
		return "", fmt.Errorf("oauth_state.sign: %w", err)
	}
	return SessionStatePrefix + signed, nil
}

// Decode recovers the session id from a state value. A value without the
// marker means "start a new session" and yields an empty id.
func (codec *StateCodec) Decode(ctx context.Context, state string) (string, error) {
	if !strings.HasPrefix(state, SessionStatePrefix) {
		return "", nil
	}
	encoded := strings.TrimPrefix(state, SessionStatePrefix)
	parsed, err := jwt.ParseWithClaims(encoded, &stateClaims{}, func(token *jwt.Token) (interface{}, error) {
		return codec.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(codec.clock.Now))
	if err != nil {
		return "", fmt.Errorf("oauth_state.decode: %w: %v", ErrInvalidState, err)
	}
	claims, ok := parsed.Claims.(*stateClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.SessionID) == "" {
		return "", fmt.Errorf("oauth_state.decode: %w", ErrInvalidState)
	}
	if codec.nonces != nil {
		if consumeErr := codec.nonces.Consume(ctx, claims.ID); consumeErr != nil {
			return "", fmt.Errorf("oauth_state.replay: %w: %v", ErrInvalidState, consumeErr)
		}
	}
	return claims.SessionID, nil
}
