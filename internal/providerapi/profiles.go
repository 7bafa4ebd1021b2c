package providerapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tyemirov/tlink/internal/authkit"
	"google.golang.org/api/idtoken"
)

// GoogleUserInfoURL is the OpenID Connect userinfo endpoint.
const GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

var (
	errMissingSubject = errors.New("profile.missing_subject")
	errInvalidIssuer  = errors.New("profile.invalid_issuer")
)

// GoogleTokenValidator verifies Google ID tokens.
type GoogleTokenValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// ProfileFetcher loads the account profile behind a freshly exchanged token.
type ProfileFetcher struct {
	client      *Client
	validator   GoogleTokenValidator
	audiences   map[authkit.Provider]string
	userInfoURL string
}

// NewProfileFetcher constructs a fetcher. audiences maps Google-backed providers
// to their OAuth client id; a nil validator always uses the userinfo endpoint.
func NewProfileFetcher(client *Client, validator GoogleTokenValidator, audiences map[authkit.Provider]string, userInfoURL string) *ProfileFetcher {
	if strings.TrimSpace(userInfoURL) == "" {
		userInfoURL = GoogleUserInfoURL
	}
	return &ProfileFetcher{
		client:      client,
		validator:   validator,
		audiences:   audiences,
		userInfoURL: userInfoURL,
	}
}

// FetchProfile returns the provider's view of the user.
func (fetcher *ProfileFetcher) FetchProfile(ctx context.Context, provider authkit.Provider, exchange authkit.Exchange) (authkit.UserProfile, error) {
	switch provider {
	case authkit.ProviderSpotify:
		return fetcher.spotifyProfile(ctx, exchange.Record.AccessToken)
	case authkit.ProviderYouTube, authkit.ProviderGoogle:
		if exchange.IDToken != "" && fetcher.validator != nil {
			return fetcher.googleIDTokenProfile(ctx, provider, exchange.IDToken)
		}
		return fetcher.googleUserInfoProfile(ctx, provider, exchange.Record.AccessToken)
	default:
		return authkit.UserProfile{}, fmt.Errorf("profile.%s: %w", provider, authkit.ErrUnknownProvider)
	}
}

func (fetcher *ProfileFetcher) spotifyProfile(ctx context.Context, accessToken string) (authkit.UserProfile, error) {
	response, err := fetcher.client.Do(ctx, authkit.ProviderSpotify, accessToken, Request{Path: "/me"})
	if err != nil {
		return authkit.UserProfile{}, fmt.Errorf("profile.spotify: %w", err)
	}
	root, err := validPayload(response.Body)
	if err != nil {
		return authkit.UserProfile{}, err
	}
	profile := authkit.UserProfile{
		Provider:       authkit.ProviderSpotify,
		ProviderUserID: root.Get("id").String(),
		Email:          root.Get("email").String(),
		Name:           root.Get("display_name").String(),
		Picture:        root.Get("images.0.url").String(),
	}
	if profile.ProviderUserID == "" {
		return authkit.UserProfile{}, fmt.Errorf("profile.spotify: %w", errMissingSubject)
	}
	return profile, nil
}

func (fetcher *ProfileFetcher) googleIDTokenProfile(ctx context.Context, provider authkit.Provider, rawIDToken string) (authkit.UserProfile, error) {
	payload, err := fetcher.validator.Validate(ctx, rawIDToken, fetcher.audiences[provider])
	if err != nil {
		return authkit.UserProfile{}, fmt.Errorf("profile.%s.id_token: %w", provider, err)
	}
	issuer, _ := payload.Claims["iss"].(string)
	if issuer != "https://accounts.google.com" && issuer != "accounts.google.com" {
		return authkit.UserProfile{}, fmt.Errorf("profile.%s: %w", provider, errInvalidIssuer)
	}
	claim := func(name string) string {
		value, _ := payload.Claims[name].(string)
		return value
	}
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	subject := payload.Subject
	if subject == "" {
		subject = claim("sub")
	}
	if subject == "" {
		return authkit.UserProfile{}, fmt.Errorf("profile.%s: %w", provider, errMissingSubject)
	}
	return authkit.UserProfile{
		Provider:       provider,
		ProviderUserID: subject,
		Email:          claim("email"),
		Name:           claim("name"),
		Picture:        claim("picture"),
		GivenName:      claim("given_name"),
		FamilyName:     claim("family_name"),
		EmailVerified:  emailVerified,
	}, nil
}

func (fetcher *ProfileFetcher) googleUserInfoProfile(ctx context.Context, provider authkit.Provider, accessToken string) (authkit.UserProfile, error) {
	response, err := fetcher.client.Do(ctx, provider, accessToken, Request{Path: fetcher.userInfoURL})
	if err != nil {
		return authkit.UserProfile{}, fmt.Errorf("profile.%s.userinfo: %w", provider, err)
	}
	root, err := validPayload(response.Body)
	if err != nil {
		return authkit.UserProfile{}, err
	}
	profile := googleProfileFromJSON(provider, root)
	if profile.ProviderUserID == "" {
		return authkit.UserProfile{}, fmt.Errorf("profile.%s: %w", provider, errMissingSubject)
	}
	return profile, nil
}

func googleProfileFromJSON(provider authkit.Provider, root gjson.Result) authkit.UserProfile {
	return authkit.UserProfile{
		Provider:       provider,
		ProviderUserID: root.Get("sub").String(),
		Email:          root.Get("email").String(),
		Name:           root.Get("name").String(),
		Picture:        root.Get("picture").String(),
		GivenName:      root.Get("given_name").String(),
		FamilyName:     root.Get("family_name").String(),
		EmailVerified:  root.Get("email_verified").Bool(),
	}
}
