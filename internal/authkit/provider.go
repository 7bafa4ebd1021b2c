package authkit

import (
	"fmt"
	"strings"
)

// Provider identifies an OAuth2 identity provider a session can link.
type Provider string

const (
	// ProviderSpotify is the music provider.
	ProviderSpotify Provider = "spotify"
	// ProviderYouTube is the video provider (Google OAuth2 with YouTube read scopes).
	ProviderYouTube Provider = "youtube"
	// ProviderGoogle is the Google account flow with full YouTube scope and account selection.
	ProviderGoogle Provider = "google"
)

var allProviders = []Provider{ProviderSpotify, ProviderYouTube, ProviderGoogle}

// AllProviders returns every supported provider in a stable order.
func AllProviders() []Provider {
	providers := make([]Provider, len(allProviders))
	copy(providers, allProviders)
	return providers
}

// ParseProvider converts a route segment into a Provider.
func ParseProvider(value string) (Provider, error) {
	normalized := Provider(strings.ToLower(strings.TrimSpace(value)))
	for _, candidate := range allProviders {
		if candidate == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("provider.parse.%s: %w", value, ErrUnknownProvider)
}

// String returns the route form of the provider.
func (provider Provider) String() string {
	return string(provider)
}
