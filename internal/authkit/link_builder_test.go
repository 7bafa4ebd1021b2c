package authkit

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestBuildAuthorizeURLPerProvider(t *testing.T) {
	t.Parallel()
	configuration := testServerConfig("")
	codec := newTestStateCodec(t, nil, nil)
	builder := NewLinkBuilder(NewProviderRegistry(configuration), codec)

	testCases := []struct {
		provider     Provider
		host         string
		scopeContain string
		accessType   string
		prompt       string
	}{
		{provider: ProviderSpotify, host: "accounts.spotify.com", scopeContain: "playlist-read-private"},
		{provider: ProviderYouTube, host: "accounts.google.com", scopeContain: "youtube.readonly", accessType: "offline", prompt: "consent"},
		{provider: ProviderGoogle, host: "accounts.google.com", scopeContain: "auth/youtube", accessType: "offline", prompt: "select_account"},
	}
	for _, testCase := range testCases {
		rawURL, err := builder.BuildAuthorizeURL(context.Background(), testCase.provider, "")
		if err != nil {
			t.Fatalf("%s: build: %v", testCase.provider, err)
		}
		parsed, err := url.Parse(rawURL)
		if err != nil {
			t.Fatalf("%s: parse: %v", testCase.provider, err)
		}
		query := parsed.Query()
		if parsed.Host != testCase.host {
			t.Fatalf("%s: expected host %s, got %s", testCase.provider, testCase.host, parsed.Host)
		}
		if query.Get("response_type") != "code" {
			t.Fatalf("%s: expected response_type=code", testCase.provider)
		}
		if query.Get("client_id") != testCase.provider.String()+"-client" {
			t.Fatalf("%s: unexpected client id %q", testCase.provider, query.Get("client_id"))
		}
		expectedRedirect := "http://127.0.0.1:8080/auth/" + testCase.provider.String() + "/callback"
		if query.Get("redirect_uri") != expectedRedirect {
			t.Fatalf("%s: expected redirect %s, got %s", testCase.provider, expectedRedirect, query.Get("redirect_uri"))
		}
		if !strings.Contains(query.Get("scope"), testCase.scopeContain) {
			t.Fatalf("%s: scope %q missing %q", testCase.provider, query.Get("scope"), testCase.scopeContain)
		}
		if query.Get("access_type") != testCase.accessType || query.Get("prompt") != testCase.prompt {
			t.Fatalf("%s: unexpected access_type=%q prompt=%q", testCase.provider, query.Get("access_type"), query.Get("prompt"))
		}
		if query.Get("state") == "" || strings.HasPrefix(query.Get("state"), SessionStatePrefix) {
			t.Fatalf("%s: expected fresh state, got %q", testCase.provider, query.Get("state"))
		}
	}
}

func TestBuildAuthorizeURLCarriesExistingSession(t *testing.T) {
	t.Parallel()
	configuration := testServerConfig("")
	codec := newTestStateCodec(t, nil, nil)
	builder := NewLinkBuilder(NewProviderRegistry(configuration), codec)

	rawURL, err := builder.BuildAuthorizeURL(context.Background(), ProviderYouTube, "session-abc")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	parsed, _ := url.Parse(rawURL)
	state := parsed.Query().Get("state")
	sessionID, err := codec.Decode(context.Background(), state)
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if sessionID != "session-abc" {
		t.Fatalf("expected session-abc, got %q", sessionID)
	}
}

func TestBuildAuthorizeURLWithMissingClientID(t *testing.T) {
	t.Parallel()
	configuration := testServerConfig("")
	configuration.Providers = nil
	builder := NewLinkBuilder(NewProviderRegistry(configuration), newTestStateCodec(t, fixedClock{timestamp: time.Now()}, nil))

	rawURL, err := builder.BuildAuthorizeURL(context.Background(), ProviderSpotify, "")
	if err != nil {
		t.Fatalf("expected URL despite missing client id, got %v", err)
	}
	parsed, _ := url.Parse(rawURL)
	if parsed.Query().Get("client_id") != "" {
		t.Fatalf("expected empty client id")
	}
}

func TestBuildAuthorizeURLUnknownProvider(t *testing.T) {
	t.Parallel()
	builder := NewLinkBuilder(NewProviderRegistry(testServerConfig("")), newTestStateCodec(t, nil, nil))
	if _, err := builder.BuildAuthorizeURL(context.Background(), Provider("deezer"), ""); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestParseProvider(t *testing.T) {
	t.Parallel()
	if provider, err := ParseProvider(" Spotify "); err != nil || provider != ProviderSpotify {
		t.Fatalf("expected spotify, got %q, %v", provider, err)
	}
	if _, err := ParseProvider("deezer"); err == nil {
		t.Fatalf("expected error for unsupported provider")
	}
}
