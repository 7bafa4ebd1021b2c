package authkit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fixedClock struct {
	timestamp time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.timestamp
}

type manualClock struct {
	mutex   sync.Mutex
	current time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{current: start}
}

func (clock *manualClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.current
}

func (clock *manualClock) Advance(duration time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.current = clock.current.Add(duration)
}

// tokenEndpoint is a fake provider token endpoint recording every grant it serves.
type tokenEndpoint struct {
	server   *httptest.Server
	hits     atomic.Int64
	mutex    sync.Mutex
	forms    []map[string]string
	status   int
	response map[string]interface{}
	delay    time.Duration
}

func newTokenEndpoint(t *testing.T, response map[string]interface{}) *tokenEndpoint {
	t.Helper()
	endpoint := &tokenEndpoint{status: http.StatusOK, response: response}
	endpoint.server = httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		endpoint.hits.Add(1)
		if err := request.ParseForm(); err != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		form := make(map[string]string, len(request.PostForm))
		for key := range request.PostForm {
			form[key] = request.PostForm.Get(key)
		}
		endpoint.mutex.Lock()
		endpoint.forms = append(endpoint.forms, form)
		status := endpoint.status
		body := endpoint.response
		delay := endpoint.delay
		endpoint.mutex.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(status)
		_ = json.NewEncoder(writer).Encode(body)
	}))
	t.Cleanup(endpoint.server.Close)
	return endpoint
}

func (endpoint *tokenEndpoint) URL() string {
	return endpoint.server.URL + "/token"
}

func (endpoint *tokenEndpoint) lastForm() map[string]string {
	endpoint.mutex.Lock()
	defer endpoint.mutex.Unlock()
	if len(endpoint.forms) == 0 {
		return nil
	}
	return endpoint.forms[len(endpoint.forms)-1]
}

func (endpoint *tokenEndpoint) setDelay(delay time.Duration) {
	endpoint.mutex.Lock()
	defer endpoint.mutex.Unlock()
	endpoint.delay = delay
}

func (endpoint *tokenEndpoint) respond(status int, body map[string]interface{}) {
	endpoint.mutex.Lock()
	defer endpoint.mutex.Unlock()
	endpoint.status = status
	endpoint.response = body
}

func testServerConfig(tokenURL string) ServerConfig {
	providers := make(map[Provider]ProviderSettings, len(allProviders))
	for _, provider := range allProviders {
		providers[provider] = ProviderSettings{
			ClientID:     provider.String() + "-client",
			ClientSecret: provider.String() + "-secret",
			TokenURL:     tokenURL,
		}
	}
	return ServerConfig{
		BackendBaseURL:   "http://127.0.0.1:8080",
		FrontendBaseURL:  "http://localhost:4200/",
		Providers:        providers,
		StateSigningKey:  []byte("state-signing-key"),
		StateTTL:         10 * time.Minute,
		AppJWTSigningKey: []byte("app-signing-key"),
		AppJWTIssuer:     "tlink",
		AppSessionTTL:    time.Hour,
		ProviderTimeout:  2 * time.Second,
	}
}

type stubProfiles struct {
	profile UserProfile
	err     error
}

func (profiles stubProfiles) FetchProfile(ctx context.Context, provider Provider, exchange Exchange) (UserProfile, error) {
	if profiles.err != nil {
		return UserProfile{}, profiles.err
	}
	return profiles.profile, nil
}

type memoryUsers struct {
	mutex sync.Mutex
	users map[string]User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[string]User)}
}

func (store *memoryUsers) CreateOrUpdateUser(ctx context.Context, profile UserProfile) (User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	user := User{
		ID:             UserIDFor(profile.Provider, profile.ProviderUserID),
		Provider:       profile.Provider,
		ProviderUserID: profile.ProviderUserID,
		Email:          profile.Email,
		Name:           profile.Name,
	}
	store.users[user.ID] = user
	return user, nil
}

func (store *memoryUsers) GetUser(ctx context.Context, userID string) (User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	user, ok := store.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}
