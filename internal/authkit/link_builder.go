package authkit

import (
	"context"
	"fmt"
)

// LinkBuilder produces provider authorization URLs carrying a correlation state.
type LinkBuilder struct {
	registry *ProviderRegistry
	states   *StateCodec
}

// NewLinkBuilder constructs a LinkBuilder.
func NewLinkBuilder(registry *ProviderRegistry, states *StateCodec) *LinkBuilder {
	return &LinkBuilder{registry: registry, states: states}
}

// BuildAuthorizeURL returns the consent URL for provider. A non-blank
// existingSessionID is carried through state so the callback links the new
// token into that session.
func (builder *LinkBuilder) BuildAuthorizeURL(ctx context.Context, provider Provider, existingSessionID string) (string, error) {
	config, err := builder.registry.Config(provider)
	if err != nil {
		return "", err
	}
	state, err := builder.states.Encode(ctx, existingSessionID)
	if err != nil {
		return "", fmt.Errorf("authorize_url.%s: %w", provider, err)
	}
	return config.AuthCodeURL(state, builder.registry.authCodeOptions(provider)...), nil
}
