package authkit

import "errors"

var (
	// ErrUnknownProvider indicates a provider outside the supported set.
	ErrUnknownProvider = errors.New("provider.unknown")
	// ErrSessionNotFound indicates no token is stored for the session and provider.
	ErrSessionNotFound = errors.New("session_store.not_found")
	// ErrRefreshUnavailable indicates an expired record without a refresh token.
	ErrRefreshUnavailable = errors.New("token_refresh.unavailable")
	// ErrRefreshFailed indicates the provider refresh grant failed.
	ErrRefreshFailed = errors.New("token_refresh.failed")
	// ErrCodeExchangeFailed indicates the authorization code could not be exchanged.
	ErrCodeExchangeFailed = errors.New("token_exchange.failed")
	// ErrInvalidState indicates a session-carrying state value that failed verification.
	ErrInvalidState = errors.New("oauth_state.invalid")
	// ErrUserNotFound indicates the user store has no profile for the identifier.
	ErrUserNotFound = errors.New("user_store.not_found")
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("user_store.unsupported_dialect")
)
