package authkit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type sessionEntry struct {
	tokens   map[Provider]TokenRecord
	users    map[string]struct{}
	lastSeen time.Time
}

// MemorySessionTokenStore keeps session tokens in process memory.
// Sessions idle for longer than idleTTL are purged; idleTTL <= 0 keeps them forever.
type MemorySessionTokenStore struct {
	mutex    sync.Mutex
	sessions map[string]*sessionEntry
	idleTTL  time.Duration
	clock    Clock
}

// NewMemorySessionTokenStore creates an empty in-memory store.
func NewMemorySessionTokenStore(idleTTL time.Duration, clock Clock) *MemorySessionTokenStore {
	return &MemorySessionTokenStore{
		sessions: make(map[string]*sessionEntry),
		idleTTL:  idleTTL,
		clock:    clockOrSystem(clock),
	}
}

// CreateOrUpdate attaches the record under (sessionID, provider), minting a session id when blank.
func (store *MemorySessionTokenStore) CreateOrUpdate(ctx context.Context, sessionID string, provider Provider, record TokenRecord) (string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	now := store.clock.Now()
	store.purgeLocked(now)

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		generated, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("session_store.create: %w", err)
		}
		sessionID = generated.String()
	}
	entry := store.sessions[sessionID]
	if entry == nil {
		entry = &sessionEntry{tokens: make(map[Provider]TokenRecord), users: make(map[string]struct{})}
		store.sessions[sessionID] = entry
	}
	entry.tokens[provider] = record
	entry.lastSeen = now
	return sessionID, nil
}

// Get returns the stored record for the slot.
func (store *MemorySessionTokenStore) Get(ctx context.Context, sessionID string, provider Provider) (TokenRecord, bool) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	now := store.clock.Now()
	entry := store.liveEntryLocked(sessionID, now)
	if entry == nil {
		return TokenRecord{}, false
	}
	record, ok := entry.tokens[provider]
	if ok {
		entry.lastSeen = now
	}
	return record, ok
}

// Update replaces the record of an existing session.
func (store *MemorySessionTokenStore) Update(ctx context.Context, sessionID string, provider Provider, record TokenRecord) bool {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	now := store.clock.Now()
	entry := store.liveEntryLocked(sessionID, now)
	if entry == nil {
		return false
	}
	entry.tokens[provider] = record
	entry.lastSeen = now
	return true
}

// Providers lists the providers linked to the session in sorted order.
func (store *MemorySessionTokenStore) Providers(ctx context.Context, sessionID string) []Provider {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	entry := store.liveEntryLocked(sessionID, store.clock.Now())
	if entry == nil {
		return nil
	}
	providers := make([]Provider, 0, len(entry.tokens))
	for provider := range entry.tokens {
		providers = append(providers, provider)
	}
	sort.Slice(providers, func(left, right int) bool {
		return providers[left] < providers[right]
	})
	return providers
}

// Delete removes the session and every token it holds.
func (store *MemorySessionTokenStore) Delete(ctx context.Context, sessionID string) bool {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, ok := store.sessions[sessionID]; !ok {
		return false
	}
	delete(store.sessions, sessionID)
	return true
}

// BindUser attaches userID to an existing session. It never creates a session.
func (store *MemorySessionTokenStore) BindUser(ctx context.Context, sessionID string, userID string) bool {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	now := store.clock.Now()
	entry := store.liveEntryLocked(sessionID, now)
	if entry == nil || strings.TrimSpace(userID) == "" {
		return false
	}
	entry.users[userID] = struct{}{}
	entry.lastSeen = now
	return true
}

// HasUser reports whether userID was bound to the session.
func (store *MemorySessionTokenStore) HasUser(ctx context.Context, sessionID string, userID string) bool {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	entry := store.liveEntryLocked(sessionID, store.clock.Now())
	if entry == nil {
		return false
	}
	_, ok := entry.users[userID]
	return ok
}

// Len reports the number of sessions currently held.
func (store *MemorySessionTokenStore) Len() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.sessions)
}

// Purge drops idle sessions and returns how many were removed.
func (store *MemorySessionTokenStore) Purge() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.purgeLocked(store.clock.Now())
}

// RunJanitor purges idle sessions every interval until ctx is done.
func (store *MemorySessionTokenStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || store.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Purge()
		}
	}
}

func (store *MemorySessionTokenStore) liveEntryLocked(sessionID string, now time.Time) *sessionEntry {
	entry := store.sessions[sessionID]
	if entry == nil {
		return nil
	}
	if store.isIdle(entry, now) {
		delete(store.sessions, sessionID)
		return nil
	}
	return entry
}

func (store *MemorySessionTokenStore) purgeLocked(now time.Time) int {
	if store.idleTTL <= 0 {
		return 0
	}
	removed := 0
	for sessionID, entry := range store.sessions {
		if store.isIdle(entry, now) {
			delete(store.sessions, sessionID)
			removed++
		}
	}
	return removed
}

func (store *MemorySessionTokenStore) isIdle(entry *sessionEntry, now time.Time) bool {
	return store.idleTTL > 0 && now.Sub(entry.lastSeen) >= store.idleTTL
}
