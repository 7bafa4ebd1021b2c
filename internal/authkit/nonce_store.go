package authkit

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNonceNotFound indicates the nonce was not issued or was already consumed.
	ErrNonceNotFound = errors.New("state_nonce.not_found")
	// ErrNonceExpired indicates the nonce expired before consumption.
	ErrNonceExpired = errors.New("state_nonce.expired")
	// ErrNonceCapacity indicates too many nonces are outstanding.
	ErrNonceCapacity = errors.New("state_nonce.capacity")
)

// DefaultNonceCapacity bounds outstanding nonces in a MemoryNonceStore.
const DefaultNonceCapacity = 10000

// NonceStore issues one-time values that make a session-carrying state single-use.
type NonceStore interface {
	// Issue creates a new nonce valid for the store's TTL.
	Issue(ctx context.Context) (string, error)
	// Consume validates and invalidates an issued nonce.
	Consume(ctx context.Context, nonce string) error
}

// MemoryNonceStore keeps issued nonces in memory until they are consumed or expire.
type MemoryNonceStore struct {
	mutex   sync.Mutex
	entries  map[string]time.Time
	ttl      time.Duration
	capacity int
	clock    Clock
}

// NewMemoryNonceStore constructs an in-memory NonceStore; ttl <= 0 uses the state TTL default.
func NewMemoryNonceStore(ttl time.Duration, clock Clock) *MemoryNonceStore {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &MemoryNonceStore{
		entries:  make(map[string]time.Time),
		ttl:      ttl,
		capacity: DefaultNonceCapacity,
		clock:    clockOrSystem(clock),
	}
}

// SetCapacity changes the outstanding nonce limit; limit <= 0 restores the default.
func (store *MemoryNonceStore) SetCapacity(limit int) {
	if limit <= 0 {
		limit = DefaultNonceCapacity
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.capacity = limit
}

// Issue creates a nonce.
func (store *MemoryNonceStore) Issue(ctx context.Context) (string, error) {
	nonce, err := generateOpaqueToken()
	if err != nil {
		return "", err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	if len(store.entries) >= store.capacity {
		return "", ErrNonceCapacity
	}
	store.entries[nonce] = store.clock.Now().Add(store.ttl)
	return nonce, nil
}

// Consume removes the nonce, failing when it is unknown or expired.
func (store *MemoryNonceStore) Consume(ctx context.Context, nonce string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	defer store.purgeExpiredLocked()

	expiry, ok := store.entries[nonce]
	if !ok {
		return ErrNonceNotFound
	}
	delete(store.entries, nonce)
	if store.clock.Now().After(expiry) {
		return ErrNonceExpired
	}
	return nil
}

// Pending reports how many nonces are outstanding.
func (store *MemoryNonceStore) Pending() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.entries)
}

func (store *MemoryNonceStore) purgeExpiredLocked() {
	if len(store.entries) == 0 {
		return
	}
	now := store.clock.Now()
	for nonce, expiry := range store.entries {
		if now.After(expiry) {
			delete(store.entries, nonce)
		}
	}
}
