package providerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tyemirov/tlink/internal/authkit"
	"golang.org/x/time/rate"
)

const (
	// SpotifyAPIBaseURL is the Spotify Web API root.
	SpotifyAPIBaseURL = "https://api.spotify.com/v1"
	// YouTubeAPIBaseURL is the YouTube Data API root shared by the youtube and google providers.
	YouTubeAPIBaseURL = "https://www.googleapis.com/youtube/v3"

	defaultRateLimit     = 10
	maxResponseBodyBytes = 4 << 20
)

var (
	// ErrProviderUnreachable indicates a transport failure or timeout talking to a provider.
	ErrProviderUnreachable = errors.New("provider_api.unreachable")
	// ErrParseFailed indicates a provider payload that could not be translated.
	ErrParseFailed = errors.New("provider_api.parse_failed")
)

// StatusError reports a provider response outside the 2xx range.
type StatusError struct {
	Provider authkit.Provider
	Status   int
}

func (statusErr *StatusError) Error() string {
	return fmt.Sprintf("provider_api.%s.status_%d", statusErr.Provider, statusErr.Status)
}

// Request describes one provider API call. Path is relative to the provider
// base URL unless it is an absolute http(s) URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
}

// Response is a raw provider reply.
type Response struct {
	Status int
	Body   []byte
}

// ClientConfig configures outbound provider calls.
type ClientConfig struct {
	Timeout    time.Duration
	RateLimit  float64
	Burst      int
	BaseURLs   map[authkit.Provider]string
	HTTPClient *http.Client
}

// Client performs bearer-authenticated provider API calls.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	baseURLs   map[authkit.Provider]string
	limiters   map[authkit.Provider]*rate.Limiter
}

// NewClient constructs a Client with one token bucket per provider.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = authkit.DefaultProviderTimeout
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := config.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := config.Burst
	if burst <= 0 {
		burst = int(limit)
		if burst < 1 {
			burst = 1
		}
	}
	baseURLs := map[authkit.Provider]string{
		authkit.ProviderSpotify: SpotifyAPIBaseURL,
		authkit.ProviderYouTube: YouTubeAPIBaseURL,
		authkit.ProviderGoogle:  YouTubeAPIBaseURL,
	}
	for provider, baseURL := range config.BaseURLs {
		baseURLs[provider] = strings.TrimRight(baseURL, "/")
	}
	limiters := make(map[authkit.Provider]*rate.Limiter, len(baseURLs))
	for _, provider := range authkit.AllProviders() {
		limiters[provider] = rate.NewLimiter(rate.Limit(limit), burst)
	}
	return &Client{
		httpClient: httpClient,
		timeout:    timeout,
		baseURLs:   baseURLs,
		limiters:   limiters,
	}
}

// Do sends request to provider with the access token as bearer credential.
// Non-2xx replies are returned as *StatusError alongside the response.
func (client *Client) Do(ctx context.Context, provider authkit.Provider, accessToken string, request Request) (Response, error) {
	target, err := client.resolveURL(provider, request)
	if err != nil {
		return Response{}, err
	}
	callCtx, cancel := context.WithTimeout(ctx, client.timeout)
	defer cancel()

	if limiter := client.limiters[provider]; limiter != nil {
		if waitErr := limiter.Wait(callCtx); waitErr != nil {
			return Response{}, fmt.Errorf("provider_api.%s.rate_wait: %w: %v", provider, ErrProviderUnreachable, waitErr)
		}
	}

	var body io.Reader
	if request.Body != nil {
		encoded, encodeErr := json.Marshal(request.Body)
		if encodeErr != nil {
			return Response{}, fmt.Errorf("provider_api.%s.encode: %w", provider, encodeErr)
		}
		body = bytes.NewReader(encoded)
	}
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	httpRequest, err := http.NewRequestWithContext(callCtx, method, target, body)
	if err != nil {
		return Response{}, fmt.Errorf("provider_api.%s.request: %w", provider, err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+accessToken)
	httpRequest.Header.Set("Accept", "application/json")
	if body != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}

	httpResponse, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return Response{}, fmt.Errorf("provider_api.%s.transport: %w: %v", provider, ErrProviderUnreachable, err)
	}
	defer httpResponse.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(httpResponse.Body, maxResponseBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("provider_api.%s.read: %w: %v", provider, ErrProviderUnreachable, err)
	}
	response := Response{Status: httpResponse.StatusCode, Body: payload}
	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		return response, &StatusError{Provider: provider, Status: httpResponse.StatusCode}
	}
	return response, nil
}

func (client *Client) resolveURL(provider authkit.Provider, request Request) (string, error) {
	var raw string
	if strings.HasPrefix(request.Path, "https://") || strings.HasPrefix(request.Path, "http://") {
		raw = request.Path
	} else {
		baseURL, ok := client.baseURLs[provider]
		if !ok {
			return "", fmt.Errorf("provider_api.%s: %w", provider, authkit.ErrUnknownProvider)
		}
		raw = baseURL + "/" + strings.TrimLeft(request.Path, "/")
	}
	if len(request.Query) == 0 {
		return raw, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("provider_api.%s.url: %w", provider, err)
	}
	merged := parsed.Query()
	for key, values := range request.Query {
		merged[key] = values
	}
	parsed.RawQuery = merged.Encode()
	return parsed.String(), nil
}

// TokenResolver returns a valid token record for a session's provider slot.
type TokenResolver interface {
	Resolve(ctx context.Context, sessionID string, provider authkit.Provider) (authkit.TokenRecord, error)
}

// Service runs provider calls on behalf of a session.
type Service struct {
	tokens TokenResolver
	client *Client
}

// NewService constructs a Service.
func NewService(tokens TokenResolver, client *Client) *Service {
	return &Service{tokens: tokens, client: client}
}

// Call makes sure the session holds a valid token for provider, then performs request.
func (service *Service) Call(ctx context.Context, sessionID string, provider authkit.Provider, request Request) (Response, error) {
	record, err := service.tokens.Resolve(ctx, sessionID, provider)
	if err != nil {
		return Response{}, err
	}
	return service.client.Do(ctx, provider, record.AccessToken, request)
}

// AccessToken returns a valid access token for client-side SDKs.
func (service *Service) AccessToken(ctx context.Context, sessionID string, provider authkit.Provider) (authkit.TokenRecord, error) {
	return service.tokens.Resolve(ctx, sessionID, provider)
}
