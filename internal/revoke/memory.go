package revoke

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is the in-process Store used in development and tests. A
// background sweep drops entries past expiry; reads also check expiry so
// correctness never depends on sweep timing.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryStore returns a MemoryStore sweeping at the given interval.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: map[string]memoryEntry{},
		stopCh:  make(chan struct{}),
	}
	go s.sweepLoop(sweepInterval)
	return s
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for k, e := range s.entries {
				if e.expiresAt.Before(now) {
					delete(s.entries, k)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// Close stops the sweep goroutine.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stopCh) })
	return nil
}

// Revoke records the token until expiresAt.
func (s *MemoryStore) Revoke(_ context.Context, token, userID string, expiresAt time.Time) error {
	if time.Until(expiresAt) <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[revokedKey(token)] = memoryEntry{value: userID, expiresAt: expiresAt}
	return nil
}

// IsRevoked reports whether the token has a live revocation entry.
func (s *MemoryStore) IsRevoked(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[revokedKey(token)]
	if !ok || e.expiresAt.Before(time.Now()) {
		delete(s.entries, revokedKey(token))
		return false, nil
	}
	return true, nil
}

// Remember stores value under key unless a live entry exists.
func (s *MemoryStore) Remember(_ context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.expiresAt.After(now) {
		return e.value, true, nil
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}
	return value, false, nil
}
