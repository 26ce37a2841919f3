// Package tenant provides multi-tenant request validation: per-tenant
// rate limiting ahead of the execution graph's own per-thread cost
// ceiling (internal/risk.Config.CostCeilingPerThread).
package tenant

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Tenant holds per-tenant rate limit configuration.
type Tenant struct {
	ID          string
	DisplayName string
	RateLimit   int // requests per second; 0 means no limit
}

// Manager validates incoming requests per tenant: existence and rate limit.
type Manager struct {
	tenants  map[string]*Tenant
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewManager creates a tenant manager with the given tenants.
func NewManager(tenants []Tenant) *Manager {
	m := &Manager{
		tenants:  make(map[string]*Tenant),
		limiters: make(map[string]*rate.Limiter),
	}
	for i := range tenants {
		t := &tenants[i]
		m.tenants[t.ID] = t
		if t.RateLimit > 0 {
			m.limiters[t.ID] = rate.NewLimiter(rate.Limit(t.RateLimit), t.RateLimit*2) // burst = 2s worth
		}
	}
	return m
}

// ValidateRequest checks that the tenant exists and is within rate limit.
// Returns a typed error on failure.
func (m *Manager) ValidateRequest(ctx context.Context, tenantID string) error {
	m.mu.RLock()
	_, ok := m.tenants[tenantID]
	m.mu.RUnlock()
	if !ok {
		return ErrTenantNotFound
	}

	if lim := m.limiter(tenantID); lim != nil {
		if !lim.Allow() {
			return ErrRateLimitExceeded
		}
	}

	return nil
}

func (m *Manager) limiter(tenantID string) *rate.Limiter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limiters[tenantID]
}
