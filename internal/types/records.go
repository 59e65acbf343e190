package types

import "time"

// JSONValue is an arbitrary JSON-serializable value carried in message
// payloads and blackboard entries. It is an alias rather than a tagged union:
// Go's `any` already round-trips cleanly through encoding/json, which is the
// only serialization boundary these values cross (bus queues and blackboard
// entries stay in-process as Go values; persistence marshals to JSON text the
// same way internal/events.SQLiteStore marshals its Payload).
type JSONValue = any

// AgentInsight is a timestamped finding emitted by an agent to the
// consumer-facing event stream.
type AgentInsight struct {
	AgentID            string              `json:"agent_id"`
	AgentName          string              `json:"agent_name"`
	AgentAvatar        string              `json:"agent_avatar"`
	Message            string              `json:"message"`
	Priority           Priority            `json:"priority"`
	Kind               InsightType         `json:"insight_type"`
	Timestamp          time.Time           `json:"timestamp"`
	Data               map[string]JSONValue `json:"data,omitempty"`
	FromCollaboration  bool                `json:"from_collaboration"`
	ContributingAgents []string            `json:"contributing_agents,omitempty"`
	Confidence         float64             `json:"confidence"`
}

// AgentProgress is a point-in-time progress update for one agent.
type AgentProgress struct {
	AgentID     string      `json:"agent_id"`
	Status      AgentStatus `json:"status"`
	Progress    int         `json:"progress"`
	CurrentTask string      `json:"current_task,omitempty"`
}

// SwarmStats is the per-run communication activity tally carried on
// AgentResult and reported in the orchestration summary.
type SwarmStats struct {
	MessagesSent      int `json:"messages_sent"`
	MessagesReceived  int `json:"messages_received"`
	BlackboardWrites  int `json:"blackboard_writes"`
	BlackboardReads   int `json:"blackboard_reads"`
	Collaborations    int `json:"collaborations"`
	TasksDelegated    int `json:"tasks_delegated"`
}

// AgentResult is one agent's final outcome for a run.
type AgentResult struct {
	AgentID         string                 `json:"agent_id"`
	AgentName       string                 `json:"agent_name"`
	Status          AgentStatus            `json:"status"`
	ExecutionTimeMs int64                  `json:"execution_time_ms"`
	Insights        []AgentInsight         `json:"insights"`
	Data            map[string]JSONValue   `json:"data,omitempty"`
	Error           string                 `json:"error,omitempty"`
	Stats           SwarmStats             `json:"swarm_stats"`
}

// SwarmEvent is an internal telemetry event describing a bus/blackboard/
// collaboration/task/learning occurrence, bridged to the event stream.
type SwarmEvent struct {
	Kind      SwarmEventType         `json:"type"`
	Source    string                 `json:"source"`
	Target    string                 `json:"target,omitempty"`
	Subject   string                 `json:"subject"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]JSONValue   `json:"data,omitempty"`
}

// OrchestrationResult is the top-level report returned from one analysis run.
type OrchestrationResult struct {
	Success          bool                   `json:"success"`
	RunID            string                 `json:"run_id,omitempty"`
	ExecutionTimeMs  int64                  `json:"execution_time_ms"`
	DurationSeconds  float64                `json:"duration_seconds"`
	URL              string                 `json:"url"`
	CompetitorCount  int                    `json:"competitor_count"`
	OverallScore     int                    `json:"overall_score"`
	CompositeScores  map[string]int         `json:"composite_scores,omitempty"`
	AgentResults     map[string]AgentResult `json:"agent_results"`
	CriticalInsights []AgentInsight         `json:"critical_insights"`
	HighInsights     []AgentInsight         `json:"high_insights"`
	ActionPlan       map[string]JSONValue   `json:"action_plan,omitempty"`
	Errors           []string               `json:"errors"`
	SwarmSummary     SwarmSummary           `json:"swarm_summary"`
}

// SwarmSummary is the compact communication digest attached to a result.
type SwarmSummary struct {
	TotalMessages      int    `json:"total_messages"`
	BlackboardEntries  int    `json:"blackboard_entries"`
	RunID              string `json:"run_id,omitempty"`
}
