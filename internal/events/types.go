// Package events defines the notification envelope routed by
// internal/notifications to external channels (Discord, Slack, email) and
// desktop/terminal notifiers. It is deliberately decoupled from
// internal/messagebus's AgentMessage: that bus carries in-swarm traffic
// between agents, while an events.Event is the subset worth surfacing to a
// human outside the run (a critical insight, a delegated task, a run
// lifecycle transition).
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

// Event type constants
const (
	EventMessage      EventType = "message"      // general swarm bus traffic worth surfacing
	EventAgentSignal  EventType = "agent_signal"  // agent status/progress transition
	EventAlert        EventType = "alert"         // a CRITICAL or HIGH priority agent insight
	EventTask         EventType = "task"          // a delegated task's lifecycle
	EventRecon        EventType = "recon"         // a run's lifecycle transition (start/complete/cancel)
	EventStopApproval EventType = "stop_approval" // a collaboration session reaching consensus
)

// Priority constants for events
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 4
)

// Event represents a system event that can be published and subscribed to
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Target    string                 `json:"target"`
	Priority  int                    `json:"priority"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType EventType, source, target string, priority int, payload map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Target:    target,
		Priority:  priority,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// AllEventTypes returns all defined event types
func AllEventTypes() []EventType {
	return []EventType{
		EventMessage,
		EventAgentSignal,
		EventAlert,
		EventTask,
		EventRecon,
		EventStopApproval,
	}
}
