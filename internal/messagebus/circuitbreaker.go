package messagebus

import (
	"sync"
	"time"
)

// circuitBreaker is the per-recipient CLOSED/OPEN state machine guarding
// message delivery, grounded on original_source/agents/communication.py's
// inline CircuitBreaker (a simpler cousin of resilience/circuit_breaker.py):
// consecutive failures open the circuit; after resetTimeout elapses, the
// circuit auto half-opens by allowing exactly one more trial failure before
// re-opening, which is the model's half-open equivalent called for in spec
// §4.1.
type circuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	resetTimeout     time.Duration
	failures         map[string]int
	openedAt         map[string]time.Time
}

func newCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		failures:         make(map[string]int),
		openedAt:         make(map[string]time.Time),
	}
}

// IsOpen reports whether delivery to agentID is currently suppressed. A call
// past resetTimeout clears the open marker and sets the failure count to
// threshold-1, allowing exactly one more trial message through before the
// circuit would re-open on a further failure.
func (cb *circuitBreaker) IsOpen(agentID string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	opened, ok := cb.openedAt[agentID]
	if !ok {
		return false
	}
	if time.Since(opened) >= cb.resetTimeout {
		delete(cb.openedAt, agentID)
		cb.failures[agentID] = cb.failureThreshold - 1
		return false
	}
	return true
}

// RecordFailure increments the failure count and opens the circuit once the
// threshold is reached.
func (cb *circuitBreaker) RecordFailure(agentID string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures[agentID]++
	if cb.failures[agentID] >= cb.failureThreshold {
		cb.openedAt[agentID] = time.Now()
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *circuitBreaker) RecordSuccess(agentID string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures[agentID] = 0
	delete(cb.openedAt, agentID)
}
