package graph

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState is one of the three states a thread's circuit breaker can
// be in.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// ThreadCircuitBreaker trips per thread_id after repeated Blocked risk
// decisions within a window, short-circuiting the turn to Finalizer with a
// refusal rather than letting an attacker grind the RiskGate. Additive
// safety beyond the per-step max_tries escalation; it never substitutes
// for that retry budget in Supervisor.
type ThreadCircuitBreaker struct {
	mu        sync.Mutex
	threads   map[string]*threadCircuit
	threshold int
	window    time.Duration
}

type threadCircuit struct {
	denials       []time.Time
	state         CircuitState
	openedAt      time.Time
	probeInFlight bool
}

// NewThreadCircuitBreaker creates a breaker with the given threshold and
// sliding window. threshold<=0 defaults to 5; window<=0 defaults to 60s.
func NewThreadCircuitBreaker(threshold int, window time.Duration) *ThreadCircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &ThreadCircuitBreaker{threads: make(map[string]*threadCircuit), threshold: threshold, window: window}
}

// Check returns nil if threadID may proceed to RiskGate, or an error if
// the circuit is open.
func (cb *ThreadCircuitBreaker) Check(threadID string) error {
	if cb == nil {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	tc, ok := cb.threads[threadID]
	if !ok {
		return nil
	}
	switch tc.state {
	case CircuitOpen:
		if time.Since(tc.openedAt) > cb.window {
			tc.state = CircuitHalfOpen
			tc.probeInFlight = true
			return nil
		}
		return fmt.Errorf("circuit_open: thread %s suspended after repeated blocked decisions", threadID)
	case CircuitHalfOpen:
		if tc.probeInFlight {
			return fmt.Errorf("circuit_half_open: probe already in progress for thread %s", threadID)
		}
		tc.probeInFlight = true
		return nil
	}
	return nil
}

// RecordBlocked records a Blocked risk decision, opening the circuit once
// threshold denials land within window.
func (cb *ThreadCircuitBreaker) RecordBlocked(threadID string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	tc, ok := cb.threads[threadID]
	if !ok {
		tc = &threadCircuit{}
		cb.threads[threadID] = tc
	}

	now := time.Now()
	if tc.state == CircuitHalfOpen {
		tc.state = CircuitOpen
		tc.openedAt = now
		tc.probeInFlight = false
		return
	}

	cutoff := now.Add(-cb.window)
	kept := tc.denials[:0]
	for _, t := range tc.denials {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	tc.denials = append(kept, now)

	if len(tc.denials) >= cb.threshold {
		tc.state = CircuitOpen
		tc.openedAt = now
	}
}

// RecordAllowed records a non-Blocked decision, closing a half-open probe.
func (cb *ThreadCircuitBreaker) RecordAllowed(threadID string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	tc, ok := cb.threads[threadID]
	if !ok {
		return
	}
	if tc.state == CircuitHalfOpen {
		tc.state = CircuitClosed
		tc.denials = nil
		tc.probeInFlight = false
	}
}
