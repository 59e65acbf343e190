package collaboration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brandista/swarm/internal/blackboard"
	"github.com/brandista/swarm/internal/messagebus"
)

// Manager tracks active and completed collaboration sessions for a run.
type Manager struct {
	bus *messagebus.Bus
	bb  *blackboard.Blackboard

	seq uint64

	mu        sync.Mutex
	active    map[string]*Session
	completed []Result
}

// NewManager constructs a Manager bound to the run's bus and blackboard.
func NewManager(bus *messagebus.Bus, bb *blackboard.Blackboard) *Manager {
	return &Manager{bus: bus, bb: bb, active: make(map[string]*Session)}
}

// CreateSession starts and runs a new session to completion, returning its
// result. facilitator and timeout are optional (zero values pick defaults).
// A zero-agent session still runs (and is recorded) but returns
// ErrNoParticipants alongside its FAILED result.
func (m *Manager) CreateSession(ctx context.Context, problem string, agents []string, facilitator string, timeout time.Duration) (Result, error) {
	id := fmt.Sprintf("collab_%d", atomic.AddUint64(&m.seq, 1))
	session := NewSession(id, problem, agents, facilitator, timeout, m.bus, m.bb)

	m.mu.Lock()
	m.active[id] = session
	m.mu.Unlock()

	result := session.Run(ctx)

	m.mu.Lock()
	delete(m.active, id)
	m.completed = append(m.completed, result)
	m.mu.Unlock()

	if len(agents) == 0 {
		return result, ErrNoParticipants
	}
	return result, nil
}

// GetSession returns the active session with the given id, or nil.
func (m *Manager) GetSession(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[id]
}

// GetActiveSessions returns every session currently in progress.
func (m *Manager) GetActiveSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		out = append(out, s)
	}
	return out
}

// GetCompletedSessions returns up to limit most recent completed results.
func (m *Manager) GetCompletedSessions(limit int) []Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.completed) {
		limit = len(m.completed)
	}
	start := len(m.completed) - limit
	out := make([]Result, limit)
	copy(out, m.completed[start:])
	return out
}
