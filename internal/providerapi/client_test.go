package providerapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tyemirov/tlink/internal/authkit"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(ClientConfig{
		Timeout:   timeout,
		RateLimit: 1000,
		BaseURLs: map[authkit.Provider]string{
			authkit.ProviderSpotify: server.URL + "/v1/",
			authkit.ProviderYouTube: server.URL + "/youtube/v3",
			authkit.ProviderGoogle:  server.URL + "/youtube/v3",
		},
	})
	return client, server
}

func TestClientDoSendsBearerRequest(t *testing.T) {
	t.Parallel()
	var captured *http.Request
	var capturedBody string
	client, _ := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		captured = request
		body, _ := io.ReadAll(request.Body)
		capturedBody = string(body)
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"ok":true}`))
	}, time.Second)

	response, err := client.Do(context.Background(), authkit.ProviderSpotify, "access-1", Request{
		Method: http.MethodPut,
		Path:   "/me/player",
		Query:  map[string][]string{"market": {"US"}},
		Body:   map[string]interface{}{"play": true},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, response.Status)
	require.JSONEq(t, `{"ok":true}`, string(response.Body))
	require.Equal(t, http.MethodPut, captured.Method)
	require.Equal(t, "/v1/me/player", captured.URL.Path)
	require.Equal(t, "US", captured.URL.Query().Get("market"))
	require.Equal(t, "Bearer access-1", captured.Header.Get("Authorization"))
	require.Equal(t, "application/json", captured.Header.Get("Content-Type"))
	require.JSONEq(t, `{"play":true}`, capturedBody)
}

func TestClientDoReportsStatusErrors(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusServiceUnavailable)
	}, time.Second)

	response, err := client.Do(context.Background(), authkit.ProviderYouTube, "token", Request{Path: "/playlists"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusServiceUnavailable, statusErr.Status)
	require.Equal(t, http.StatusServiceUnavailable, response.Status)
}

func TestClientDoTimeoutIsUnreachable(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	client, _ := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		select {
		case <-release:
		case <-request.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := client.Do(context.Background(), authkit.ProviderSpotify, "token", Request{Path: "/me"})
	require.ErrorIs(t, err, ErrProviderUnreachable)
}

func TestClientDoUnreachableHost(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()
	client := NewClient(ClientConfig{
		Timeout:  time.Second,
		BaseURLs: map[authkit.Provider]string{authkit.ProviderSpotify: baseURL},
	})

	_, err := client.Do(context.Background(), authkit.ProviderSpotify, "token", Request{Path: "/me"})
	require.ErrorIs(t, err, ErrProviderUnreachable)
}

func TestClientDoAbsoluteURL(t *testing.T) {
	t.Parallel()
	var path string
	client, server := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		path = request.URL.Path
		_, _ = writer.Write([]byte(`{}`))
	}, time.Second)

	_, err := client.Do(context.Background(), authkit.ProviderGoogle, "token", Request{Path: server.URL + "/userinfo"})
	require.NoError(t, err)
	require.Equal(t, "/userinfo", path)
}

type stubResolver struct {
	record authkit.TokenRecord
	err    error
}

func (resolver stubResolver) Resolve(ctx context.Context, sessionID string, provider authkit.Provider) (authkit.TokenRecord, error) {
	if resolver.err != nil {
		return authkit.TokenRecord{}, resolver.err
	}
	return resolver.record, nil
}

func TestServiceCallStopsOnResolveError(t *testing.T) {
	t.Parallel()
	called := false
	client, _ := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		called = true
	}, time.Second)
	service := NewService(stubResolver{err: authkit.ErrRefreshUnavailable}, client)

	_, err := service.Call(context.Background(), "session", authkit.ProviderSpotify, Request{Path: "/me"})
	require.ErrorIs(t, err, authkit.ErrRefreshUnavailable)
	require.False(t, called)
}
