package authkit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemorySessionTokenStoreCreatesSessionForBlankID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemorySessionTokenStore(0, nil)
	record := TokenRecord{AccessToken: "A", RefreshToken: "R", ExpiresAt: time.Now().Add(time.Hour)}

	sessionID, err := store.CreateOrUpdate(ctx, "", ProviderSpotify, record)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, parseErr := uuid.Parse(sessionID); parseErr != nil {
		t.Fatalf("expected uuid session id, got %q", sessionID)
	}
	stored, ok := store.Get(ctx, sessionID, ProviderSpotify)
	if !ok || stored != record {
		t.Fatalf("expected stored record %+v, got %+v (found=%v)", record, stored, ok)
	}

	otherID, err := store.CreateOrUpdate(ctx, "  ", ProviderSpotify, record)
	if err != nil {
		t.Fatalf("create second session: %v", err)
	}
	if otherID == sessionID {
		t.Fatalf("expected distinct session ids")
	}
}

func TestMemorySessionTokenStoreLinksProvidersIntoOneSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemorySessionTokenStore(0, nil)

	sessionID, _ := store.CreateOrUpdate(ctx, "", ProviderSpotify, TokenRecord{AccessToken: "spotify"})
	returnedID, err := store.CreateOrUpdate(ctx, sessionID, ProviderYouTube, TokenRecord{AccessToken: "youtube"})
	if err != nil {
		t.Fatalf("link youtube: %v", err)
	}
	if returnedID != sessionID {
		t.Fatalf("expected session id %q, got %q", sessionID, returnedID)
	}
	spotify, _ := store.Get(ctx, sessionID, ProviderSpotify)
	youtube, _ := store.Get(ctx, sessionID, ProviderYouTube)
	if spotify.AccessToken != "spotify" || youtube.AccessToken != "youtube" {
		t.Fatalf("expected both providers linked, got %q and %q", spotify.AccessToken, youtube.AccessToken)
	}
	providers := store.Providers(ctx, sessionID)
	if len(providers) != 2 || providers[0] != ProviderSpotify || providers[1] != ProviderYouTube {
		t.Fatalf("unexpected providers %v", providers)
	}
}

func TestMemorySessionTokenStoreLastWriteWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemorySessionTokenStore(0, nil)

	sessionID, _ := store.CreateOrUpdate(ctx, "", ProviderGoogle, TokenRecord{AccessToken: "first"})
	if _, err := store.CreateOrUpdate(ctx, sessionID, ProviderGoogle, TokenRecord{AccessToken: "second"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	stored, _ := store.Get(ctx, sessionID, ProviderGoogle)
	if stored.AccessToken != "second" {
		t.Fatalf("expected last write to win, got %q", stored.AccessToken)
	}
}

func TestMemorySessionTokenStoreUpdateNeverCreates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemorySessionTokenStore(0, nil)

	if store.Update(ctx, "unknown", ProviderSpotify, TokenRecord{AccessToken: "A"}) {
		t.Fatalf("expected update of unknown session to report false")
	}
	if _, ok := store.Get(ctx, "unknown", ProviderSpotify); ok {
		t.Fatalf("expected update not to create a session")
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d sessions", store.Len())
	}

	sessionID, _ := store.CreateOrUpdate(ctx, "", ProviderSpotify, TokenRecord{AccessToken: "A"})
	if !store.Update(ctx, sessionID, ProviderSpotify, TokenRecord{AccessToken: "B"}) {
		t.Fatalf("expected update of existing session to succeed")
	}
	stored, _ := store.Get(ctx, sessionID, ProviderSpotify)
	if stored.AccessToken != "B" {
		t.Fatalf("expected updated record, got %q", stored.AccessToken)
	}
}

func TestMemorySessionTokenStoreGetMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemorySessionTokenStore(0, nil)
	sessionID, _ := store.CreateOrUpdate(ctx, "", ProviderSpotify, TokenRecord{AccessToken: "A"})

	if _, ok := store.Get(ctx, sessionID, ProviderYouTube); ok {
		t.Fatalf("expected absent provider slot")
	}
	if _, ok := store.Get(ctx, "missing", ProviderSpotify); ok {
		t.Fatalf("expected absent session")
	}
}

func TestMemorySessionTokenStoreDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemorySessionTokenStore(0, nil)
	sessionID, _ := store.CreateOrUpdate(ctx, "", ProviderSpotify, TokenRecord{AccessToken: "A"})

	if !store.Delete(ctx, sessionID) {
		t.Fatalf("expected delete to report true")
	}
	if store.Delete(ctx, sessionID) {
		t.Fatalf("expected second delete to report false")
	}
	if providers := store.Providers(ctx, sessionID); len(providers) != 0 {
		t.Fatalf("expected no providers after delete, got %v", providers)
	}
}

func TestMemorySessionTokenStoreEvictsIdleSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newManualClock(time.Unix(1700000000, 0))
	store := NewMemorySessionTokenStore(time.Hour, clock)

	idleID, _ := store.CreateOrUpdate(ctx, "", ProviderSpotify, TokenRecord{AccessToken: "idle"})
	activeID, _ := store.CreateOrUpdate(ctx, "", ProviderSpotify, TokenRecord{AccessToken: "active"})

	clock.Advance(40 * time.Minute)
	if _, ok := store.Get(ctx, activeID, ProviderSpotify); !ok {
		t.Fatalf("expected active session to be present")
	}
	clock.Advance(30 * time.Minute)

	if removed := store.Purge(); removed != 1 {
		t.Fatalf("expected one idle session purged, got %d", removed)
	}
	if _, ok := store.Get(ctx, idleID, ProviderSpotify); ok {
		t.Fatalf("expected idle session to be evicted")
	}
	if _, ok := store.Get(ctx, activeID, ProviderSpotify); !ok {
		t.Fatalf("expected recently used session to survive")
	}
	if store.Update(ctx, idleID, ProviderSpotify, TokenRecord{AccessToken: "late"}) {
		t.Fatalf("expected update of evicted session to fail")
	}
}

func TestMemorySessionTokenStoreJanitorStopsWithContext(t *testing.T) {
	t.Parallel()
	store := NewMemorySessionTokenStore(time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("janitor did not stop after cancellation")
	}
}

func TestMemorySessionTokenStoreConcurrentWriters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemorySessionTokenStore(0, nil)
	sessionID, _ := store.CreateOrUpdate(ctx, "", ProviderSpotify, TokenRecord{AccessToken: "seed"})

	var waitGroup sync.WaitGroup
	for index := 0; index < 32; index++ {
		waitGroup.Add(1)
		go func(index int) {
			defer waitGroup.Done()
			provider := allProviders[index%len(allProviders)]
			store.Update(ctx, sessionID, provider, TokenRecord{AccessToken: fmt.Sprintf("token-%d", index)})
			if _, err := store.CreateOrUpdate(ctx, "", provider, TokenRecord{AccessToken: "other"}); err != nil {
				t.Errorf("create: %v", err)
			}
		}(index)
	}
	waitGroup.Wait()
	if store.Len() != 33 {
		t.Fatalf("expected 33 sessions, got %d", store.Len())
	}
}

func TestMemorySessionTokenStoreBindUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemorySessionTokenStore(0, nil)

	if store.BindUser(ctx, "missing", "spotify:u1") {
		t.Fatalf("expected bind on unknown session to fail")
	}
	sessionID, _ := store.CreateOrUpdate(ctx, "", ProviderSpotify, TokenRecord{AccessToken: "A"})
	otherID, _ := store.CreateOrUpdate(ctx, "", ProviderYouTube, TokenRecord{AccessToken: "B"})

	if !store.BindUser(ctx, sessionID, "spotify:u1") {
		t.Fatalf("expected bind to succeed")
	}
	if !store.HasUser(ctx, sessionID, "spotify:u1") {
		t.Fatalf("expected user bound to session")
	}
	if store.HasUser(ctx, otherID, "spotify:u1") {
		t.Fatalf("expected binding to stay within its session")
	}
	if store.BindUser(ctx, sessionID, " ") {
		t.Fatalf("expected blank user id to be rejected")
	}

	store.Delete(ctx, sessionID)
	if store.HasUser(ctx, sessionID, "spotify:u1") {
		t.Fatalf("expected binding removed with the session")
	}
}
