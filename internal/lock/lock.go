// Package lock provides a per-thread advisory lock and per-user rate
// limiter for the Graph Runtime. Modeled directly on
// internal/tenant/manager.go's limiters map[string]*rate.Limiter pattern,
// applied to mutexes instead of limiters.
package lock

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// ErrRateLimitExceeded is returned by Allow when a user_id exceeds its
// configured request rate.
var ErrRateLimitExceeded = errors.New("lock: rate limit exceeded")

// Manager holds one mutex per thread_id and one rate limiter per user_id.
type Manager struct {
	mu       sync.RWMutex
	threads  map[string]*sync.Mutex
	limiters map[string]*rate.Limiter
	perSec   rate.Limit
	burst    int
}

// NewManager creates a lock manager. requestsPerSecond configures the
// per-user_id rate limiter; 0 disables rate limiting.
func NewManager(requestsPerSecond float64) *Manager {
	return &Manager{
		threads:  make(map[string]*sync.Mutex),
		limiters: make(map[string]*rate.Limiter),
		perSec:   rate.Limit(requestsPerSecond),
		burst:    burstFor(requestsPerSecond),
	}
}

func burstFor(perSecond float64) int {
	if perSecond <= 0 {
		return 0
	}
	b := int(perSecond * 2)
	if b < 1 {
		b = 1
	}
	return b
}

// Acquire blocks until the advisory lock for threadID is held, or ctx is
// done. The returned func releases the lock.
func (m *Manager) Acquire(ctx context.Context, threadID string) (release func(), err error) {
	mu := m.threadMutex(threadID)

	done := make(chan struct{})
	go func() {
		mu.Lock()
		close(done)
	}()

	select {
	case <-done:
		return mu.Unlock, nil
	case <-ctx.Done():
		go func() {
			<-done
			mu.Unlock()
		}()
		return nil, ctx.Err()
	}
}

func (m *Manager) threadMutex(threadID string) *sync.Mutex {
	m.mu.RLock()
	mu, ok := m.threads[threadID]
	m.mu.RUnlock()
	if ok {
		return mu
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if mu, ok := m.threads[threadID]; ok {
		return mu
	}
	mu = &sync.Mutex{}
	m.threads[threadID] = mu
	return mu
}

// Allow checks the per-user_id rate limit. Returns ErrRateLimitExceeded
// when the user has exceeded its configured requests-per-second.
func (m *Manager) Allow(userID string) error {
	if m.perSec <= 0 {
		return nil
	}
	if !m.limiterFor(userID).Allow() {
		return ErrRateLimitExceeded
	}
	return nil
}

func (m *Manager) limiterFor(userID string) *rate.Limiter {
	m.mu.RLock()
	lim, ok := m.limiters[userID]
	m.mu.RUnlock()
	if ok {
		return lim
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[userID]; ok {
		return lim
	}
	lim = rate.NewLimiter(m.perSec, m.burst)
	m.limiters[userID] = lim
	return lim
}
