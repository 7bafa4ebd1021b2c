package authkit

import (
	"fmt"

	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	googleAuthURL   = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL  = "https://oauth2.googleapis.com/token"
)

type providerDefinition struct {
	authURL     string
	tokenURL    string
	scopes      []string
	authOptions []oauth2.AuthCodeOption
}

var providerDefinitions = map[Provider]providerDefinition{
	ProviderSpotify: {
		authURL:  spotifyAuthURL,
		tokenURL: spotifyTokenURL,
		scopes: []string{
			"user-read-email",
			"user-read-private",
			"playlist-read-private",
			"user-read-playback-state",
			"user-modify-playback-state",
			"user-read-currently-playing",
			"streaming",
		},
	},
	ProviderYouTube: {
		authURL:  googleAuthURL,
		tokenURL: googleTokenURL,
		scopes: []string{
			"https://www.googleapis.com/auth/youtube.readonly",
			"openid",
			"profile",
			"email",
		},
		authOptions: []oauth2.AuthCodeOption{
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("prompt", "consent"),
		},
	},
	ProviderGoogle: {
		authURL:  googleAuthURL,
		tokenURL: googleTokenURL,
		scopes: []string{
			"openid",
			"profile",
			"email",
			"https://www.googleapis.com/auth/youtube",
		},
		authOptions: []oauth2.AuthCodeOption{
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("prompt", "select_account"),
		},
	},
}

// ProviderRegistry holds the oauth2 client configuration of every provider.
type ProviderRegistry struct {
	configs     map[Provider]*oauth2.Config
	authOptions map[Provider][]oauth2.AuthCodeOption
}

// NewProviderRegistry builds oauth2 configs from the server configuration.
// Empty client credentials are kept; the startup check reports them.
func NewProviderRegistry(configuration ServerConfig) *ProviderRegistry {
	registry := &ProviderRegistry{
		configs:     make(map[Provider]*oauth2.Config, len(providerDefinitions)),
		authOptions: make(map[Provider][]oauth2.AuthCodeOption, len(providerDefinitions)),
	}
	for _, provider := range allProviders {
		definition := providerDefinitions[provider]
		settings := configuration.Settings(provider)
		authURL := definition.authURL
		if settings.AuthURL != "" {
			authURL = settings.AuthURL
		}
		tokenURL := definition.tokenURL
		if settings.TokenURL != "" {
			tokenURL = settings.TokenURL
		}
		scopes := make([]string, len(definition.scopes))
		copy(scopes, definition.scopes)
		registry.configs[provider] = &oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			RedirectURL:  configuration.CallbackURL(provider),
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
		registry.authOptions[provider] = definition.authOptions
	}
	return registry
}

// Config returns the oauth2 configuration for the provider.
func (registry *ProviderRegistry) Config(provider Provider) (*oauth2.Config, error) {
	config, ok := registry.configs[provider]
	if !ok {
		return nil, fmt.Errorf("provider_registry.%s: %w", provider, ErrUnknownProvider)
	}
	return config, nil
}

// Scopes returns a copy of the provider's permission scopes.
func (registry *ProviderRegistry) Scopes(provider Provider) []string {
	config, ok := registry.configs[provider]
	if !ok {
		return nil
	}
	scopes := make([]string, len(config.Scopes))
	copy(scopes, config.Scopes)
	return scopes
}

func (registry *ProviderRegistry) authCodeOptions(provider Provider) []oauth2.AuthCodeOption {
	return registry.authOptions[provider]
}
