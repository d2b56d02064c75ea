package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/layer-3/authgate/core"
	"github.com/layer-3/authgate/ports"
)

type challengeEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryStore is an in-memory implementation of the Store interface
type MemoryStore struct {
	challenges        map[string]challengeEntry
	invalidatedTokens map[string]time.Time
	mu                sync.Mutex
	now               func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() ports.Store {
	return &MemoryStore{
		challenges:        make(map[string]challengeEntry),
		invalidatedTokens: make(map[string]time.Time),
		now:               time.Now,
	}
}

// PutChallenge records the outstanding challenge for address
func (s *MemoryStore) PutChallenge(ctx context.Context, address string, challengeToken string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[challengeKey(address)] = challengeEntry{
		token:     challengeToken,
		expiresAt: s.now().Add(expiry),
	}
	return nil
}

// TakeChallenge returns and forgets the outstanding challenge for address
func (s *MemoryStore) TakeChallenge(ctx context.Context, address string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := challengeKey(address)
	entry, ok := s.challenges[key]
	delete(s.challenges, key)
	if !ok || s.now().After(entry.expiresAt) {
		return "", core.ErrChallengeMissing
	}
	return entry.token, nil
}

// InvalidateToken marks a token as invalidated
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidatedTokens[tokenID] = s.now().Add(expiry)
	s.sweep()
	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiryTime, exists := s.invalidatedTokens[tokenID]
	if !exists {
		return false, nil
	}

	// The revocation outlives the token it revokes, after that it is moot
	if s.now().After(expiryTime) {
		delete(s.invalidatedTokens, tokenID)
		return false, nil
	}

	return true, nil
}

// sweep drops expired entries. Callers hold mu.
func (s *MemoryStore) sweep() {
	now := s.now()
	for id, exp := range s.invalidatedTokens {
		if now.After(exp) {
			delete(s.invalidatedTokens, id)
		}
	}
	for key, entry := range s.challenges {
		if now.After(entry.expiresAt) {
			delete(s.challenges, key)
		}
	}
}

// challengeKey normalizes an address so checksum casing does not matter.
func challengeKey(address string) string {
	return strings.ToLower(address)
}
