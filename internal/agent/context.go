// Package agent implements the BaseAgent contract every swarm participant
// embeds, grounded on original_source/agents/base_agent.py's BaseAgent: a
// fixed run lifecycle (bind callbacks, wire into the run's bus/blackboard/
// task manager/collaboration manager, broadcast start, call the
// subclass-provided execute, broadcast completion or error) plus a family of
// emission helpers subclasses use to talk to the rest of the swarm.
package agent

import (
	"errors"

	"github.com/brandista/swarm/internal/types"
)

// ErrNoRunContext is returned by SetRunContext when it is given a nil
// RunContext, and by the swarm helpers (SendMessage, Broadcast,
// StartCollaboration, DelegateTask) when the agent is not bound to a run.
// There is no global-singleton fallback.
var ErrNoRunContext = errors.New("agent: no RunContext attached and global singleton fallback is disabled")

// ErrAgentReused is returned when an agent already initialized for one run
// is handed a RunContext for a different run id — a hard error per spec
// §4.7, a deliberate tightening of the original's mere log warning.
var ErrAgentReused = errors.New("agent: instance already initialized for a different run")

// AnalysisContext is the run-scoped payload threaded through every agent's
// Execute call, grounded on original_source/agents/types.py's
// AnalysisContext.
type AnalysisContext struct {
	URL             string
	CompetitorURLs  []string
	Language        string
	IndustryContext string
	UserID          string
	RevenueInput    float64

	AgentResults map[string]types.AgentResult

	HTMLContent     string
	WebsiteData     map[string]types.JSONValue
	CompetitorData  map[string]types.JSONValue
	UnifiedContext  map[string]types.JSONValue
}

// DependencyResults returns the data payloads of every dependency agent
// that has already completed, or a single agent's data if agentID is given.
func (ac *AnalysisContext) DependencyResults(dependencies []string, agentID string) map[string]types.JSONValue {
	if agentID != "" {
		if r, ok := ac.AgentResults[agentID]; ok {
			return r.Data
		}
		return map[string]types.JSONValue{}
	}
	out := make(map[string]types.JSONValue, len(dependencies))
	for _, dep := range dependencies {
		if r, ok := ac.AgentResults[dep]; ok {
			out[dep] = r.Data
		}
	}
	return out
}

// Executor is the business logic every concrete agent supplies. It is
// intentionally the only required method: PreExecute/PostExecute are
// optional and detected via the PreExecutor/PostExecutor interfaces below,
// mirroring the original's override-if-needed hooks without forcing every
// agent to implement no-op versions.
type Executor interface {
	Execute(ac *AnalysisContext) (map[string]types.JSONValue, error)
}

// PreExecutor is an optional hook run after AGENT_STARTED broadcasts but
// before Execute.
type PreExecutor interface {
	PreExecute(ac *AnalysisContext) error
}

// PostExecutor is an optional hook run after Execute succeeds, before
// AGENT_COMPLETE broadcasts.
type PostExecutor interface {
	PostExecute(result map[string]types.JSONValue) error
}

// AlertHandler, RequestHandler, and HelpHandler are optional hooks invoked
// from the bus delivery callback for their respective message types,
// mirroring the original's overridable _handle_alert/_handle_request/
// _handle_help_request.
type (
	AlertHandler   interface{ HandleAlert(subject string, payload map[string]types.JSONValue) }
	RequestHandler interface {
		HandleRequest(subject string, payload map[string]types.JSONValue) map[string]types.JSONValue
	}
	HelpHandler interface{ HandleHelp(subject string, payload map[string]types.JSONValue) }
)
