package server

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// stateTTL bounds how long an issued OAuth state stays redeemable.
const stateTTL = 300 * time.Second

// stateStore is the in-memory one-time state map used by the token
// exchange. States expire after stateTTL and the map is swept on each
// access, so it never grows past the live window. Not persisted.
type stateStore struct {
	mu     sync.Mutex
	issued map[string]time.Time
}

func newStateStore() *stateStore {
	return &stateStore{issued: map[string]time.Time{}}
}

// Issue creates and remembers a fresh random state.
func (s *stateStore) Issue() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	state := hex.EncodeToString(b[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.issued[state] = time.Now()
	return state, nil
}

// Consume redeems a state exactly once. Unknown and expired states
// both fail.
func (s *stateStore) Consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	if _, ok := s.issued[state]; !ok {
		return false
	}
	delete(s.issued, state)
	return true
}

func (s *stateStore) sweep() {
	cutoff := time.Now().Add(-stateTTL)
	for state, issuedAt := range s.issued {
		if issuedAt.Before(cutoff) {
			delete(s.issued, state)
		}
	}
}
