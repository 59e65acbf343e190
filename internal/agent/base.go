package agent

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/brandista/swarm/internal/blackboard"
	"github.com/brandista/swarm/internal/delegation"
	"github.com/brandista/swarm/internal/messagebus"
	"github.com/brandista/swarm/internal/runcontext"
	"github.com/brandista/swarm/internal/types"
)

// Identity is the immutable profile every agent declares at construction
// time, grounded on original_source/agents/base_agent.py's constructor
// fields.
type Identity struct {
	ID           string
	Name         string
	Role         string
	Avatar       string
	Personality  string
	Dependencies []string
	TaskTypes    []string
	SubscribeTo  []types.MessageType // nil => the bus default subscription set
	MaxConcurrent int                // task-manager load cap; 0 => 3
}

// Base is embedded by every concrete agent type. It owns nothing about the
// agent's domain logic; it only implements the fixed run lifecycle, the bus/
// blackboard/task-manager wiring, and the emission helpers concrete agents
// call from Execute.
type Base struct {
	Identity

	mu               sync.Mutex
	rc               *runcontext.RunContext
	swarmInitialized bool
	initializedRunID string

	status      types.AgentStatus
	progress    int
	currentTask string
	insights    []types.AgentInsight
	stats       types.SwarmStats

	handlers any
	watcher  BlackboardWatcher

	log *log.Logger
}

// NewBase constructs a Base with the given identity, ready for SetRunContext.
func NewBase(id Identity) *Base {
	if id.MaxConcurrent <= 0 {
		id.MaxConcurrent = 3
	}
	return &Base{
		Identity: id,
		status:   types.AgentIdle,
		log:      log.New(os.Stderr, fmt.Sprintf("[Agent:%s] ", id.ID), log.LstdFlags),
	}
}

// SetRunContext binds the agent to a run, wiring it into that run's bus,
// blackboard, and task manager. Calling it again for a *different* run id
// while already initialized is a hard error (ErrAgentReused) — spec §4.7's
// tightening of the original's mere warning log, since sharing an agent
// instance across concurrent runs would leak one run's state into another's
// bus/task-manager registrations. Calling it again for the *same* run id is
// a no-op, matching re-entrant setup during retries.
func (b *Base) SetRunContext(rc *runcontext.RunContext) error {
	if rc == nil {
		return ErrNoRunContext
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.swarmInitialized {
		if b.initializedRunID == rc.RunID {
			return nil
		}
		return fmt.Errorf("%w: agent %s already bound to run %s, got %s", ErrAgentReused, b.ID, b.initializedRunID, rc.RunID)
	}
	b.rc = rc
	b.swarmInitialized = true
	b.initializedRunID = rc.RunID

	rc.Bus.RegisterAgent(b.ID, b.onMessage, b.SubscribeTo)
	rc.TaskManager.RegisterAgent(delegation.AgentCapability{
		AgentID:       b.ID,
		TaskTypes:     b.TaskTypes,
		MaxConcurrent: b.MaxConcurrent,
		SuccessRate:   1.0,
	})
	rc.Blackboard.Subscribe(b.ID, "*.critical", b.onBlackboardUpdate)
	rc.Blackboard.Subscribe(b.ID, "*.alert", b.onBlackboardUpdate)
	return nil
}

// RunContext returns the run this agent is currently bound to, or nil.
func (b *Base) RunContext() *runcontext.RunContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rc
}

func (b *Base) setStatus(s types.AgentStatus) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

// Status returns the agent's current lifecycle status.
func (b *Base) Status() types.AgentStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Run executes the fixed lifecycle against exec's business logic: bind the
// run, broadcast AGENT_STARTED, run the optional pre-hook, call Execute,
// run the optional post-hook, broadcast AGENT_COMPLETE. Panics and returned
// errors from any stage are both converted into an ERROR AgentResult; Run
// itself never panics or returns an error, matching the original's
// guarantee that one misbehaving agent can never take down the swarm.
func (b *Base) Run(rc *runcontext.RunContext, ac *AnalysisContext, exec Executor) (result types.AgentResult) {
	start := time.Now()
	if err := b.SetRunContext(rc); err != nil {
		return b.errorResult(start, err)
	}

	defer func() {
		if r := recover(); r != nil {
			result = b.errorResult(start, fmt.Errorf("panic: %v", r))
		}
	}()

	b.setStatus(types.AgentThinking)
	b.UpdateProgress(5, "starting")
	rc.EmitAgentStart(b.ID, b.Name)
	_ = rc.Bus.Broadcast(rc.Context(), b.ID, types.MessageAgentStarted, "agent started", nil, types.PriorityLow)

	if pre, ok := exec.(PreExecutor); ok {
		if err := pre.PreExecute(ac); err != nil {
			return b.errorResult(start, err)
		}
	}

	b.setStatus(types.AgentRunning)
	b.UpdateProgress(10, "executing")
	data, err := exec.Execute(ac)
	if err != nil {
		return b.errorResult(start, err)
	}

	if post, ok := exec.(PostExecutor); ok {
		if err := post.PostExecute(data); err != nil {
			return b.errorResult(start, err)
		}
	}

	b.UpdateProgress(95, "finalizing")
	b.setStatus(types.AgentComplete)
	b.UpdateProgress(100, "done")

	b.mu.Lock()
	insights := append([]types.AgentInsight(nil), b.insights...)
	stats := b.stats
	b.mu.Unlock()

	result = types.AgentResult{
		AgentID:         b.ID,
		AgentName:       b.Name,
		Status:          types.AgentComplete,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Insights:        insights,
		Data:            data,
		Stats:           stats,
	}
	rc.EmitAgentComplete(b.ID, result)
	_ = rc.Bus.Broadcast(rc.Context(), b.ID, types.MessageAgentComplete, "agent complete", nil, types.PriorityLow)
	return result
}

func (b *Base) errorResult(start time.Time, cause error) types.AgentResult {
	b.setStatus(types.AgentError)
	b.EmitInsight(types.AgentInsight{
		AgentID:  b.ID,
		Message:  cause.Error(),
		Priority: types.PriorityCritical,
		Kind:     types.InsightThreat,
	})
	rc := b.RunContext()
	if rc != nil {
		_ = rc.Bus.Broadcast(rc.Context(), b.ID, types.MessageAgentError, "agent error", map[string]types.JSONValue{"error": cause.Error()}, types.PriorityCritical)
	}
	b.mu.Lock()
	insights := append([]types.AgentInsight(nil), b.insights...)
	stats := b.stats
	b.mu.Unlock()
	result := types.AgentResult{
		AgentID:         b.ID,
		AgentName:       b.Name,
		Status:          types.AgentError,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Insights:        insights,
		Error:           cause.Error(),
		Stats:           stats,
	}
	if rc != nil {
		rc.EmitAgentComplete(b.ID, result)
	}
	return result
}

// UpdateProgress clamps progress to [0,100], records currentTask, and
// forwards it through the bound RunContext.
func (b *Base) UpdateProgress(progress int, currentTask string) {
	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}
	b.mu.Lock()
	b.progress = progress
	b.currentTask = currentTask
	rc := b.rc
	b.mu.Unlock()
	if rc != nil {
		rc.EmitProgress(b.ID, float64(progress), currentTask)
	}
}

// onMessage is the bus delivery callback, dispatching to the optional
// Alert/Request/Help handler interfaces a concrete agent may implement.
// Base itself has none of those, so this is a no-op unless a concrete
// type registers itself via SetHandlers.
func (b *Base) onMessage(msg *messagebus.Message) error {
	b.mu.Lock()
	b.stats.MessagesReceived++
	handlers := b.handlers
	b.mu.Unlock()
	if handlers == nil {
		return nil
	}
	switch msg.Type {
	case types.MessageAlert:
		if h, ok := handlers.(AlertHandler); ok {
			h.HandleAlert(msg.Subject, msg.Payload)
		}
	case types.MessageRequest:
		if h, ok := handlers.(RequestHandler); ok {
			resp := h.HandleRequest(msg.Subject, msg.Payload)
			if msg.RequiresResponse {
				if rc := b.RunContext(); rc != nil {
					reply := msg.CreateResponse(b.ID, resp, types.MessageResponse)
					_, _ = rc.Bus.Send(rc.Context(), reply, false, 0)
				}
			}
		}
	case types.MessageHelp:
		if h, ok := handlers.(HelpHandler); ok {
			h.HandleHelp(msg.Subject, msg.Payload)
		}
	}
	return nil
}

func (b *Base) onBlackboardUpdate(entry *blackboard.Entry) {
	// Default blackboard-critical/alert subscription: concrete agents that
	// care override behavior by implementing BlackboardWatcher (see
	// messaging.go); Base itself just counts the read.
	b.mu.Lock()
	b.stats.BlackboardReads++
	watcher := b.watcher
	b.mu.Unlock()
	if watcher != nil {
		watcher.OnBlackboardUpdate(entry)
	}
}

// BlackboardWatcher is an optional hook for agents that want to react to the
// default *.critical/*.alert blackboard subscriptions.
type BlackboardWatcher interface {
	OnBlackboardUpdate(entry *blackboard.Entry)
}

// SetHandlers wires the optional Alert/Request/Help handler set; pass the
// concrete agent itself if it implements any of those interfaces.
func (b *Base) SetHandlers(h any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = h
	if w, ok := h.(BlackboardWatcher); ok {
		b.watcher = w
	}
}
