package authkit

import (
	"context"
	"time"
)

// SessionTokenStore maps a session id to one token record per linked provider.
type SessionTokenStore interface {
	// CreateOrUpdate attaches the record to the session, minting a new session id when sessionID is blank.
	CreateOrUpdate(ctx context.Context, sessionID string, provider Provider, record TokenRecord) (string, error)
	// Get returns the stored record without checking expiry.
	Get(ctx context.Context, sessionID string, provider Provider) (TokenRecord, bool)
	// Update replaces the record of an existing session and never creates one.
	Update(ctx context.Context, sessionID string, provider Provider, record TokenRecord) bool
	Providers(ctx context.Context, sessionID string) []Provider
	Delete(ctx context.Context, sessionID string) bool
	// BindUser records that userID completed a provider consent within the session.
	BindUser(ctx context.Context, sessionID string, userID string) bool
	// HasUser reports whether userID was bound to the session.
	HasUser(ctx context.Context, sessionID string, userID string) bool
}

// UserProfile is what a provider reports about the account that completed consent.
type UserProfile struct {
	Provider       Provider
	ProviderUserID string
	Email          string
	Name           string
	Picture        string
	GivenName      string
	FamilyName     string
	EmailVerified  bool
}

// User is an application user keyed by provider and provider user id.
type User struct {
	ID             string    `json:"id"`
	Provider       Provider  `json:"provider"`
	ProviderUserID string    `json:"providerUserId"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Picture        string    `json:"picture,omitempty"`
	GivenName      string    `json:"givenName,omitempty"`
	FamilyName     string    `json:"familyName,omitempty"`
	EmailVerified  bool      `json:"emailVerified"`
	CreatedAt      time.Time `json:"createdAt"`
	LastLoginAt    time.Time `json:"lastLoginAt"`
}

// UserIDFor returns the application user id for a provider account.
func UserIDFor(provider Provider, providerUserID string) string {
	return provider.String() + ":" + providerUserID
}

// UserStore persists and retrieves application users.
type UserStore interface {
	CreateOrUpdateUser(ctx context.Context, profile UserProfile) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)
}

// ProfileFetcher loads the account profile for a freshly exchanged token.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, provider Provider, exchange Exchange) (UserProfile, error)
}
