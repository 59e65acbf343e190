// Package delegation implements capability-scored task assignment across
// registered agents, grounded on original_source/agents/task_delegation.py's
// TaskDelegationManager: agents advertise a capability profile, tasks are
// scored against every candidate, and the highest scorer wins with a
// deterministic tie-break by agent id (a refinement over the original's
// incidental stable-sort behavior, per spec §4.3).
package delegation

import (
	"time"

	"github.com/brandista/swarm/internal/types"
)

// AgentCapability is one agent's self-declared profile for scoring.
type AgentCapability struct {
	AgentID         string   `json:"agent_id"`
	TaskTypes       []string `json:"task_types"`
	MaxConcurrent   int      `json:"max_concurrent"`
	CurrentLoad     int      `json:"current_load"`
	SuccessRate     float64  `json:"success_rate"`
	TotalCompleted  int      `json:"total_completed"`
	TotalFailed     int      `json:"total_failed"`
	Specializations []string `json:"specializations,omitempty"`
}

// handles reports whether c advertises taskType. An empty TaskTypes set
// means the agent accepts any task type, matching
// original_source/agents/task_delegation.py's can_accept_task ("if
// self.task_types and task_type not in self.task_types: return False").
func (c *AgentCapability) handles(taskType string) bool {
	if len(c.TaskTypes) == 0 {
		return true
	}
	for _, t := range c.TaskTypes {
		if t == taskType {
			return true
		}
	}
	return false
}

// DefaultTaskTimeoutSeconds and DefaultMaxRetries mirror the original's
// DynamicTask field defaults (timeout: float = 30.0, max_retries: int = 2).
const (
	DefaultTaskTimeoutSeconds = 30
	DefaultMaxRetries         = 2
)

// DynamicTask is one unit of delegatable work.
type DynamicTask struct {
	ID             string                     `json:"id"`
	TaskType       string                     `json:"task_type"`
	Description    string                     `json:"description"`
	Priority       types.Priority             `json:"priority"`
	Payload        map[string]types.JSONValue `json:"payload,omitempty"`
	Status         types.TaskStatus           `json:"status"`
	AssignedTo     string                     `json:"assigned_to,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	AssignedAt     *time.Time                 `json:"assigned_at,omitempty"`
	CompletedAt    *time.Time                 `json:"completed_at,omitempty"`
	Deadline       *time.Time                 `json:"deadline,omitempty"`
	Result         map[string]types.JSONValue `json:"result,omitempty"`
	Error          string                     `json:"error,omitempty"`
	TimeoutSeconds int                        `json:"timeout_seconds"`
	Retries        int                        `json:"retries"`
	MaxRetries     int                        `json:"max_retries"`
	Tags           []string                   `json:"tags,omitempty"`

	done chan struct{}
}

// IsExpired reports whether an ASSIGNED or IN_PROGRESS task has run past its
// timeout budget, measured from whichever of AssignedAt/CreatedAt is set,
// grounded on the original's is_expired (status not terminal, now-start >
// timeout).
func (t *DynamicTask) IsExpired() bool {
	if t.Status != types.TaskAssigned && t.Status != types.TaskInProgress {
		return false
	}
	start := t.CreatedAt
	if t.AssignedAt != nil {
		start = *t.AssignedAt
	}
	timeout := t.TimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultTaskTimeoutSeconds
	}
	return time.Since(start) > time.Duration(timeout)*time.Second
}

// CanRetry reports whether the task has retry budget remaining.
func (t *DynamicTask) CanRetry() bool {
	return t.Retries < t.MaxRetries
}

// Stats summarizes delegation activity.
type Stats struct {
	TotalTasks     int `json:"total_tasks"`
	TotalAssigned  int `json:"total_assigned"`
	TotalCompleted int `json:"total_completed"`
	TotalFailed    int `json:"total_failed"`
	TotalUnassignable int `json:"total_unassignable"`
}
