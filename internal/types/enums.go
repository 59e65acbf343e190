// Package types holds the enumerations and record shapes shared across the
// swarm runtime: message bus, blackboard, task delegation, collaboration,
// learning, and orchestration all key off these.
package types

// AgentStatus is the lifecycle state of an agent during a single run.
type AgentStatus string

const (
	AgentIdle     AgentStatus = "idle"
	AgentThinking AgentStatus = "thinking"
	AgentRunning  AgentStatus = "running"
	AgentComplete AgentStatus = "complete"
	AgentError    AgentStatus = "error"
	AgentWaiting  AgentStatus = "waiting"
)

// Priority orders both AgentInsight severity and MessageBus delivery order.
// Lower numeric value means higher priority.
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityMedium   Priority = 3
	PriorityLow      Priority = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// InsightType classifies an AgentInsight for UI presentation.
type InsightType string

const (
	InsightThreat         InsightType = "threat"
	InsightOpportunity    InsightType = "opportunity"
	InsightFinding        InsightType = "finding"
	InsightRecommendation InsightType = "recommendation"
	InsightAction         InsightType = "action"
	InsightCollaboration  InsightType = "collaboration"
	InsightConsensus      InsightType = "consensus"
)

// MessageType is the closed set of inter-agent message kinds.
type MessageType string

const (
	MessageAlert          MessageType = "alert"
	MessageWarning        MessageType = "warning"
	MessageData           MessageType = "data"
	MessageFinding        MessageType = "finding"
	MessageInsight        MessageType = "insight"
	MessageAnalysisResult MessageType = "analysis_result"
	MessageRequest        MessageType = "request"
	MessageQuery          MessageType = "query"
	MessageHelp           MessageType = "help"
	MessageResponse       MessageType = "response"
	MessageProposal       MessageType = "proposal"
	MessageVote           MessageType = "vote"
	MessageConsensus      MessageType = "consensus"
	MessagePerspective    MessageType = "perspective"
	MessageTaskDelegate   MessageType = "task_delegate"
	MessageTaskComplete   MessageType = "task_complete"
	MessageTaskFailed     MessageType = "task_failed"
	MessagePriorityChange MessageType = "priority_change"
	MessageAgentReady     MessageType = "agent_ready"
	MessageAgentStarted   MessageType = "agent_started"
	MessageAgentComplete  MessageType = "agent_complete"
	MessageAgentError     MessageType = "agent_error"
	MessageStatus         MessageType = "status"
	MessageAcknowledgment MessageType = "acknowledgment"
	MessageHeartbeat      MessageType = "heartbeat"
)

// DeliveryStatus tracks a Message's progress through the bus.
type DeliveryStatus string

const (
	DeliveryPending      DeliveryStatus = "pending"
	DeliveryDelivered    DeliveryStatus = "delivered"
	DeliveryAcknowledged DeliveryStatus = "acknowledged"
	DeliveryFailed       DeliveryStatus = "failed"
	DeliveryExpired      DeliveryStatus = "expired"
)

// DataCategory classifies a BlackboardEntry for indexed lookup.
type DataCategory string

const (
	CategoryCompetitor     DataCategory = "competitor"
	CategoryAnalysis       DataCategory = "analysis"
	CategoryThreat         DataCategory = "threat"
	CategoryOpportunity    DataCategory = "opportunity"
	CategoryScore          DataCategory = "score"
	CategoryInsight        DataCategory = "insight"
	CategoryRecommendation DataCategory = "recommendation"
	CategoryAction         DataCategory = "action"
	CategoryMeta           DataCategory = "meta"
)

// TaskStatus is the lifecycle state of a DynamicTask.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskTimeout    TaskStatus = "timeout"
)

// CollaborationPhase is a CollaborationSession's position in its state machine.
type CollaborationPhase string

const (
	PhaseInitiated     CollaborationPhase = "initiated"
	PhaseGathering     CollaborationPhase = "gathering"
	PhaseBrainstorming CollaborationPhase = "brainstorming"
	PhaseDebating      CollaborationPhase = "debating"
	PhaseVoting        CollaborationPhase = "voting"
	PhaseConsensus     CollaborationPhase = "consensus"
	PhaseComplete      CollaborationPhase = "complete"
	PhaseFailed        CollaborationPhase = "failed"
)

// RunStatus is the lifecycle state of a RunContext.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
	RunTimeout   RunStatus = "timeout"
)

// SwarmEventType is the closed set of internal telemetry event kinds, mirroring
// bus/blackboard/collaboration/task/learning occurrences for the event stream.
type SwarmEventType string

const (
	EventAgentStatus         SwarmEventType = "agent_status"
	EventAgentInsight        SwarmEventType = "agent_insight"
	EventAgentProgress       SwarmEventType = "agent_progress"
	EventAnalysisComplete    SwarmEventType = "analysis_complete"
	EventError               SwarmEventType = "error"
	EventSwarmEvent          SwarmEventType = "swarm_event"
	EventCollaborationUpdate SwarmEventType = "collaboration_update"
	EventAgentMessage        SwarmEventType = "agent_message"
)
