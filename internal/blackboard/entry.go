// Package blackboard implements the shared, versioned key/value store agents
// use to publish findings and subscribe to topics they care about. Grounded
// on original_source/agents/blackboard.py's Blackboard class: glob-style
// subscriptions compiled to anchored regexes once and cached, per-category
// and per-agent secondary indexes, lazy TTL expiry checked on the read path,
// and an append-only history. The history is not capped: it grows with every
// publish and delete until Reset.
package blackboard

import (
	"time"

	"github.com/brandista/swarm/internal/types"
)

// Entry is one versioned value published to the blackboard under a key.
type Entry struct {
	Key        string                 `json:"key"`
	Value      types.JSONValue        `json:"value"`
	Category   types.DataCategory     `json:"category"`
	AgentID    string                 `json:"agent_id"`
	Version    int                    `json:"version"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
	ExpiresAt  *time.Time             `json:"expires_at,omitempty"`
	Tags       []string               `json:"tags,omitempty"`
	Metadata   map[string]types.JSONValue `json:"metadata,omitempty"`
}

func (e *Entry) isExpired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// hasTags reports whether e carries every tag in want (AND match). An empty
// want always matches.
func (e *Entry) hasTags(want []string) bool {
	if len(want) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(e.Tags))
	for _, t := range e.Tags {
		have[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := have[w]; !ok {
			return false
		}
	}
	return true
}

// HistoryRecord is one append-only log line for a publish or delete.
type HistoryRecord struct {
	Key       string          `json:"key"`
	AgentID   string          `json:"agent_id"`
	Action    string          `json:"action"` // "publish" | "delete"
	Version   int             `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Value     types.JSONValue `json:"value,omitempty"`
}

// Stats is a snapshot of blackboard activity counters.
type Stats struct {
	TotalEntries       int                        `json:"total_entries"`
	TotalPublishes     int                        `json:"total_publishes"`
	TotalReads         int                        `json:"total_reads"`
	TotalSubscriptions int                        `json:"total_subscriptions"`
	TotalNotifications int                        `json:"total_notifications"`
	EntriesByCategory  map[types.DataCategory]int `json:"entries_by_category"`
	EntriesByAgent     map[string]int             `json:"entries_by_agent"`
}
