package authkit

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestMintAppJWTRejectsEmptySubject(t *testing.T) {
	t.Parallel()

	_, _, err := MintAppJWT(fixedClock{timestamp: time.Unix(1700000000, 0)}, User{Email: "user@example.com"}, "session-1", "issuer", []byte("signing-key"), time.Minute)
	if err == nil {
		t.Fatalf("expected error when user ID is empty")
	}

	expected := "jwt.mint.failure: subject must be non-empty"
	if err.Error() != expected {
		t.Fatalf("expected error %q, got %q", expected, err.Error())
	}
}

func TestMintAppJWTCarriesClockTimestamps(t *testing.T) {
	t.Parallel()

	reference := time.Now().UTC().Truncate(time.Second)
	user := User{ID: "spotify:user-123", Email: "user@example.com", Name: "User"}
	token, expiresAt, err := MintAppJWT(fixedClock{timestamp: reference}, user, "session-1", "issuer", []byte("signing-key"), 2*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectedExpiry := reference.Add(2 * time.Minute)
	if !expiresAt.Equal(expectedExpiry) {
		t.Fatalf("expected expiry %v, got %v", expectedExpiry, expiresAt)
	}

	claims := &JwtCustomClaims{}
	if _, parseErr := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("signing-key"), nil
	}); parseErr != nil {
		t.Fatalf("parse minted token: %v", parseErr)
	}
	if claims.Subject != user.ID || claims.SessionID != "session-1" || claims.Issuer != "issuer" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}
