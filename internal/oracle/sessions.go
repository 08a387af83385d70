package oracle

import (
	"context"
	"sync"
)

type session struct {
	cancel context.CancelFunc
	gen    uint64
}

// Sessions tracks the current oracle query per tenant so a cancel
// request can reach the running loop. Starting a new query for a
// tenant cancels any query still running for it.
type Sessions struct {
	mu     sync.Mutex
	nextID uint64
	active map[string]session
}

// NewSessions builds an empty session registry.
func NewSessions() *Sessions {
	return &Sessions{active: make(map[string]session)}
}

// Begin registers a new session for the tenant and returns a context
// that Cancel can signal. The caller must call the returned release
// func when the query finishes.
func (s *Sessions) Begin(ctx context.Context, tenant string) (context.Context, func()) {
	queryCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if previous, ok := s.active[tenant]; ok {
		previous.cancel()
	}
	s.nextID++
	gen := s.nextID
	s.active[tenant] = session{cancel: cancel, gen: gen}
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		if current, ok := s.active[tenant]; ok && current.gen == gen {
			delete(s.active, tenant)
		}
		s.mu.Unlock()
		cancel()
	}
	return queryCtx, release
}

// Cancel signals the tenant's running query, if any. Reports whether
// a session was found.
func (s *Sessions) Cancel(tenant string) bool {
	s.mu.Lock()
	sess, ok := s.active[tenant]
	if ok {
		delete(s.active, tenant)
	}
	s.mu.Unlock()
	if ok {
		sess.cancel()
	}
	return ok
}
