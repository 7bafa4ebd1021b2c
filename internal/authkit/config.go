package authkit

import (
	"strings"
	"time"
)

// DefaultSessionHeaderName carries the session id on protected API routes.
const DefaultSessionHeaderName = "X-Session-Id"

// ProviderSettings holds one provider's registered client and optional endpoint overrides.
type ProviderSettings struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
}

// ServerConfig configures provider clients, redirect targets, signing keys, and TTLs.
type ServerConfig struct {
	BackendBaseURL    string
	FrontendBaseURL   string
	Providers         map[Provider]ProviderSettings
	StateSigningKey   []byte
	StateTTL          time.Duration
	AppJWTSigningKey  []byte
	AppJWTIssuer      string
	AppSessionTTL     time.Duration
	SessionIdleTTL    time.Duration
	ProviderTimeout   time.Duration
	SessionHeaderName string
	DevEndpoints      bool
}

// CallbackURL returns the registered redirect URI for the provider's callback route.
func (configuration ServerConfig) CallbackURL(provider Provider) string {
	return strings.TrimRight(configuration.BackendBaseURL, "/") + "/auth/" + provider.String() + "/callback"
}

// SessionHeader returns the configured session header or the default.
func (configuration ServerConfig) SessionHeader() string {
	if strings.TrimSpace(configuration.SessionHeaderName) == "" {
		return DefaultSessionHeaderName
	}
	return configuration.SessionHeaderName
}

// Settings returns the provider's settings; absent providers yield empty credentials.
func (configuration ServerConfig) Settings(provider Provider) ProviderSettings {
	if configuration.Providers == nil {
		return ProviderSettings{}
	}
	return configuration.Providers[provider]
}
