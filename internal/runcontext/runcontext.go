package runcontext

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brandista/swarm/internal/blackboard"
	"github.com/brandista/swarm/internal/collaboration"
	"github.com/brandista/swarm/internal/delegation"
	"github.com/brandista/swarm/internal/events"
	"github.com/brandista/swarm/internal/learning"
	"github.com/brandista/swarm/internal/messagebus"
	"github.com/brandista/swarm/internal/natsbridge"
	"github.com/brandista/swarm/internal/notifications"
	"github.com/brandista/swarm/internal/types"
)

// sweepInterval is how often the background sweeper clears expired
// blackboard entries and expired task assignments while a run is active.
const sweepInterval = 1 * time.Second

// ProgressFunc, AgentStartFunc, AgentCompleteFunc, and InsightFunc mirror the
// original's four optional callback slots used to bridge run events out to a
// WebSocket/UI layer.
type (
	ProgressFunc      func(runID, agentID string, progress float64, message string)
	AgentStartFunc    func(runID, agentID, agentName string)
	AgentCompleteFunc func(runID, agentID string, result types.AgentResult)
	InsightFunc       func(runID, agentID string, insight types.AgentInsight)
)

// RunContext is the isolated execution container for a single analysis run:
// every run owns its own bus, blackboard, delegation manager, collaboration
// manager, and learning store so concurrent runs never share mutable state.
type RunContext struct {
	RunID     string
	UserID    string
	Metadata  map[string]types.JSONValue
	CreatedAt time.Time

	Bus            *messagebus.Bus
	Blackboard     *blackboard.Blackboard
	TaskManager    *delegation.Manager
	Collaboration  *collaboration.Manager
	Learning       *learning.Store

	Limits Limits
	Trace  *Trace

	// Notify and NatsBridge are optional: nil unless wired by the caller
	// (e.g. cmd/swarmctl serve), in which case critical insights and run
	// lifecycle transitions are additionally surfaced outside the process.
	Notify      *notifications.Router
	NotifyMgr   *notifications.Manager
	NatsBridge  *natsbridge.Bridge

	mu          sync.Mutex
	status      types.RunStatus
	err         string
	startedAt   *time.Time
	completedAt *time.Time

	cancelFn context.CancelFunc
	ctx      context.Context

	onProgress      ProgressFunc
	onAgentStart    AgentStartFunc
	onAgentComplete AgentCompleteFunc
	onInsight       InsightFunc

	sweepStop chan struct{}
	sweepDone chan struct{}

	log *log.Logger
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]*RunContext)
)

// Create builds a new RunContext, registering it in the process-wide active
// run registry (kept only for debugging/introspection, per the original —
// agents themselves never reach through it).
func Create(userID string, limits *Limits, traceEnabled bool, metadata map[string]types.JSONValue) *RunContext {
	lim := DefaultLimits()
	if limits != nil {
		lim = *limits
	}
	ctx, cancel := context.WithCancel(context.Background())

	rc := &RunContext{
		RunID:         uuid.New().String()[:12],
		UserID:        userID,
		Metadata:      metadata,
		CreatedAt:     time.Now(),
		Bus:           messagebus.NewBus(),
		Blackboard:    blackboard.New(),
		TaskManager:   delegation.New(),
		Collaboration: nil,
		Learning:      learning.New(),
		Limits:        lim,
		Trace:         newTrace(traceEnabled),
		status:        types.RunPending,
		cancelFn:      cancel,
		ctx:           ctx,
		log:           log.New(os.Stderr, "[RunContext] ", log.LstdFlags),
	}
	rc.Collaboration = collaboration.NewManager(rc.Bus, rc.Blackboard)

	registryMu.Lock()
	registry[rc.RunID] = rc
	registryMu.Unlock()

	rc.log.Printf("created run_id=%s", rc.RunID)
	return rc
}

// GetByID looks up a run by id in the process-wide registry.
func GetByID(runID string) *RunContext {
	registryMu.Lock()
	defer registryMu.Unlock()
	return registry[runID]
}

// GetActiveRuns returns every run currently in the registry.
func GetActiveRuns() []*RunContext {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]*RunContext, 0, len(registry))
	for _, rc := range registry {
		out = append(out, rc)
	}
	return out
}

// CleanupOldRuns removes terminal runs older than maxAge from the registry.
func CleanupOldRuns(maxAge time.Duration) int {
	registryMu.Lock()
	defer registryMu.Unlock()
	now := time.Now()
	removed := 0
	for id, rc := range registry {
		rc.mu.Lock()
		terminal := rc.status == types.RunCompleted || rc.status == types.RunFailed || rc.status == types.RunCancelled
		created := rc.CreatedAt
		rc.mu.Unlock()
		if terminal && now.Sub(created) > maxAge {
			delete(registry, id)
			removed++
		}
	}
	return removed
}

// SetNotifications wires an optional external notification path: router
// dispatches events.Event to configured channels (Discord/Slack/email),
// mgr drives desktop toast/terminal/banner notifications.
func (rc *RunContext) SetNotifications(router *notifications.Router, mgr *notifications.Manager) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.Notify = router
	rc.NotifyMgr = mgr
}

// SetNatsBridge wires an optional embedded NATS bridge that mirrors this
// run's swarm events onto subject swarm.<run_id>.<event_type> for external
// subscribers.
func (rc *RunContext) SetNatsBridge(b *natsbridge.Bridge) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.NatsBridge = b
}

// SetCallbacks wires the run's progress/lifecycle callbacks, e.g. for
// bridging to a WebSocket transport.
func (rc *RunContext) SetCallbacks(onProgress ProgressFunc, onAgentStart AgentStartFunc, onAgentComplete AgentCompleteFunc, onInsight InsightFunc) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.onProgress = onProgress
	rc.onAgentStart = onAgentStart
	rc.onAgentComplete = onAgentComplete
	rc.onInsight = onInsight
}

// Context returns the run's cancellation context; agents should select on
// Context().Done() wherever the original checks is_cancelled.
func (rc *RunContext) Context() context.Context {
	return rc.ctx
}

// Start marks the run as running and launches the background sweeper that
// periodically clears expired blackboard entries — spec §9's resolution for
// where TTL sweeping lives, since the original never schedules it anywhere.
func (rc *RunContext) Start() {
	rc.mu.Lock()
	rc.status = types.RunRunning
	now := time.Now()
	rc.startedAt = &now
	rc.mu.Unlock()
	rc.Trace.Log("run_started", "", nil)
	rc.log.Printf("run %s started", rc.RunID)

	rc.sweepStop = make(chan struct{})
	rc.sweepDone = make(chan struct{})
	go rc.sweepLoop()
}

func (rc *RunContext) sweepLoop() {
	defer close(rc.sweepDone)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := rc.Blackboard.CleanupExpired(); n > 0 {
				rc.log.Printf("run %s: swept %d expired blackboard entries", rc.RunID, n)
			}
			if touched := rc.TaskManager.SweepExpired(); len(touched) > 0 {
				rc.log.Printf("run %s: swept %d expired tasks", rc.RunID, len(touched))
			}
		case <-rc.sweepStop:
			return
		}
	}
}

func (rc *RunContext) stopSweeper() {
	if rc.sweepStop == nil {
		return
	}
	select {
	case <-rc.sweepStop:
	default:
		close(rc.sweepStop)
	}
	<-rc.sweepDone
}

// Complete marks the run finished, successfully or not, and stops the
// sweeper.
func (rc *RunContext) Complete(success bool, errMsg string) {
	rc.mu.Lock()
	if success {
		rc.status = types.RunCompleted
	} else {
		rc.status = types.RunFailed
	}
	rc.err = errMsg
	now := time.Now()
	rc.completedAt = &now
	rc.mu.Unlock()

	rc.Trace.Log("run_completed", "", map[string]types.JSONValue{"success": success, "error": errMsg})
	rc.log.Printf("run %s completed in %.2fs (success=%v)", rc.RunID, rc.Duration().Seconds(), success)
	rc.notifyLifecycle("recon", map[string]interface{}{"phase": "completed", "success": success, "error": errMsg})
	rc.stopSweeper()
}

// notifyLifecycle routes a run lifecycle transition to any configured
// external notifier/bridge, and shows a dashboard banner when data does not
// report success (a failed or cancelled run). It sends no toast.
func (rc *RunContext) notifyLifecycle(subject string, data map[string]interface{}) {
	rc.mu.Lock()
	router, mgr, bridge := rc.Notify, rc.NotifyMgr, rc.NatsBridge
	rc.mu.Unlock()

	if bridge != nil {
		bridge.PublishLifecycle(rc.RunID, subject, data)
	}
	if router != nil {
		router.Route(*events.NewEvent(events.EventRecon, rc.RunID, "", events.PriorityNormal, data))
	}
	if mgr != nil {
		if success, _ := data["success"].(bool); subject == "recon" && !success {
			safeCall(rc.log, "banner", func() { _ = mgr.ShowDashboardBanner("run " + rc.RunID + " failed") })
		}
	}
}

// Cancel marks the run cancelled, cancels its context, and stops the
// sweeper.
func (rc *RunContext) Cancel(reason string) {
	rc.mu.Lock()
	rc.status = types.RunCancelled
	rc.err = reason
	now := time.Now()
	rc.completedAt = &now
	rc.mu.Unlock()

	rc.cancelFn()
	rc.Trace.Log("run_cancelled", "", map[string]types.JSONValue{"reason": reason})
	rc.log.Printf("run %s cancelled: %s", rc.RunID, reason)
	rc.notifyLifecycle("recon", map[string]interface{}{"phase": "cancelled", "reason": reason})
	rc.stopSweeper()
}

// IsCancelled reports whether the run's context has been cancelled.
func (rc *RunContext) IsCancelled() bool {
	select {
	case <-rc.ctx.Done():
		return true
	default:
		return false
	}
}

// Duration returns the run's elapsed time: zero before Start, wall time
// since start while running, or the fixed started-to-completed span once
// terminal.
func (rc *RunContext) Duration() time.Duration {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.startedAt == nil {
		return 0
	}
	end := time.Now()
	if rc.completedAt != nil {
		end = *rc.completedAt
	}
	return end.Sub(*rc.startedAt)
}

// WaitForCancel blocks until the run is cancelled or ctx expires, returning
// true only in the cancellation case.
func (rc *RunContext) WaitForCancel(ctx context.Context) bool {
	select {
	case <-rc.ctx.Done():
		return true
	case <-ctx.Done():
		return false
	}
}

// Status returns the run's current lifecycle status.
func (rc *RunContext) Status() types.RunStatus {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.status
}

// EmitProgress logs and forwards a progress update.
func (rc *RunContext) EmitProgress(agentID string, progress float64, message string) {
	rc.Trace.Log("progress", agentID, map[string]types.JSONValue{"progress": progress, "message": message})
	rc.mu.Lock()
	cb := rc.onProgress
	rc.mu.Unlock()
	if cb != nil {
		safeCall(rc.log, "progress", func() { cb(rc.RunID, agentID, progress, message) })
	}
}

// EmitAgentStart logs and forwards an agent-start event.
func (rc *RunContext) EmitAgentStart(agentID, agentName string) {
	rc.Trace.Log("agent_start", agentID, map[string]types.JSONValue{"name": agentName})
	rc.mu.Lock()
	cb := rc.onAgentStart
	rc.mu.Unlock()
	if cb != nil {
		safeCall(rc.log, "agent_start", func() { cb(rc.RunID, agentID, agentName) })
	}
}

// EmitAgentComplete logs and forwards an agent-complete event.
func (rc *RunContext) EmitAgentComplete(agentID string, result types.AgentResult) {
	rc.Trace.Log("agent_complete", agentID, map[string]types.JSONValue{"status": string(result.Status)})
	rc.mu.Lock()
	cb := rc.onAgentComplete
	rc.mu.Unlock()
	if cb != nil {
		safeCall(rc.log, "agent_complete", func() { cb(rc.RunID, agentID, result) })
	}
}

// EmitInsight logs and forwards an insight event, additionally routing
// CRITICAL/HIGH priority insights to any configured external notification
// channels.
func (rc *RunContext) EmitInsight(agentID string, insight types.AgentInsight) {
	rc.Trace.Log("insight", agentID, map[string]types.JSONValue{"type": string(insight.Kind)})
	rc.mu.Lock()
	cb := rc.onInsight
	router := rc.Notify
	mgr := rc.NotifyMgr
	bridge := rc.NatsBridge
	rc.mu.Unlock()
	if cb != nil {
		safeCall(rc.log, "insight", func() { cb(rc.RunID, agentID, insight) })
	}

	if bridge != nil {
		bridge.PublishInsight(rc.RunID, insight)
	}

	if insight.Priority != types.PriorityCritical && insight.Priority != types.PriorityHigh {
		return
	}
	if router != nil {
		router.Route(insightToEvent(agentID, insight))
	}
	if mgr != nil && insight.Priority == types.PriorityCritical {
		safeCall(rc.log, "toast", func() {
			_ = mgr.ShowToast(string(insight.Kind), insight.Message)
		})
	}
}

// insightToEvent adapts an AgentInsight into the events.Event envelope
// internal/notifications routes to external channels.
func insightToEvent(agentID string, insight types.AgentInsight) events.Event {
	priority := events.PriorityNormal
	if insight.Priority == types.PriorityCritical {
		priority = events.PriorityCritical
	} else if insight.Priority == types.PriorityHigh {
		priority = events.PriorityHigh
	}
	payload := make(map[string]interface{}, len(insight.Data)+1)
	for k, v := range insight.Data {
		payload[k] = v
	}
	payload["message"] = insight.Message
	return *events.NewEvent(events.EventAlert, agentID, "", priority, payload)
}

func safeCall(l *log.Logger, label string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.Printf("%s callback panicked: %v", label, r)
		}
	}()
	fn()
}

// State is the debug snapshot returned by GetState.
type State struct {
	RunID            string                     `json:"run_id"`
	UserID           string                     `json:"user_id,omitempty"`
	Status           types.RunStatus            `json:"status"`
	CreatedAt        time.Time                  `json:"created_at"`
	StartedAt        *time.Time                 `json:"started_at,omitempty"`
	CompletedAt      *time.Time                 `json:"completed_at,omitempty"`
	DurationSeconds  float64                    `json:"duration"`
	Error            string                     `json:"error,omitempty"`
	Metadata         map[string]types.JSONValue `json:"metadata,omitempty"`
	MessageBusStats  messagebus.Stats           `json:"message_bus_stats"`
	BlackboardStats  blackboard.Stats           `json:"blackboard_stats"`
	Trace            *Snapshot                  `json:"trace,omitempty"`
}

// GetState returns a full debug snapshot of the run.
func (rc *RunContext) GetState() State {
	rc.mu.Lock()
	status, startedAt, completedAt, errMsg := rc.status, rc.startedAt, rc.completedAt, rc.err
	rc.mu.Unlock()

	var trace *Snapshot
	if rc.Trace.Enabled {
		s := rc.Trace.ToDict()
		trace = &s
	}

	return State{
		RunID: rc.RunID, UserID: rc.UserID, Status: status,
		CreatedAt: rc.CreatedAt, StartedAt: startedAt, CompletedAt: completedAt,
		DurationSeconds: rc.Duration().Seconds(), Error: errMsg, Metadata: rc.Metadata,
		MessageBusStats: rc.Bus.GetStats(), BlackboardStats: rc.Blackboard.GetStats(),
		Trace: trace,
	}
}
