package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/brandista/swarm/internal/blackboard"
	"github.com/brandista/swarm/internal/collaboration"
	"github.com/brandista/swarm/internal/messagebus"
	"github.com/brandista/swarm/internal/types"
)

// insightCategory maps an InsightType to the blackboard category its
// auto-published entry is filed under, grounded on
// original_source/agents/base_agent.py's _emit_insight category table.
var insightCategory = map[types.InsightType]types.DataCategory{
	types.InsightThreat:         types.CategoryThreat,
	types.InsightOpportunity:    types.CategoryOpportunity,
	types.InsightFinding:        types.CategoryInsight,
	types.InsightRecommendation: types.CategoryRecommendation,
	types.InsightAction:         types.CategoryAction,
	types.InsightCollaboration:  types.CategoryMeta,
	types.InsightConsensus:      types.CategoryMeta,
}

// EmitInsight records an insight on the agent's result and, for
// CRITICAL/HIGH priority insights, additionally broadcasts it as an
// INSIGHT bus message and publishes it to the blackboard under
// "critical.<kind>" or "insight.<kind>" with a one-hour TTL so other agents
// and the default *.critical/*.alert subscription can react without polling.
func (b *Base) EmitInsight(insight types.AgentInsight) {
	insight.AgentID = b.ID
	if insight.AgentName == "" {
		insight.AgentName = b.Name
	}
	if insight.AgentAvatar == "" {
		insight.AgentAvatar = b.Avatar
	}
	if insight.Timestamp.IsZero() {
		insight.Timestamp = time.Now()
	}

	b.mu.Lock()
	b.insights = append(b.insights, insight)
	rc := b.rc
	b.mu.Unlock()

	if rc == nil {
		return
	}
	rc.EmitInsight(b.ID, insight)

	if insight.Priority != types.PriorityCritical && insight.Priority != types.PriorityHigh {
		return
	}

	payload := map[string]types.JSONValue{
		"message":    insight.Message,
		"priority":   insight.Priority.String(),
		"confidence": insight.Confidence,
		"data":       insight.Data,
	}
	_ = rc.Bus.Broadcast(rc.Context(), b.ID, types.MessageInsight, string(insight.Kind), payload, insight.Priority)
	b.mu.Lock()
	b.stats.MessagesSent++
	b.mu.Unlock()

	prefix := "insight"
	if insight.Priority == types.PriorityCritical {
		prefix = "critical"
	}
	key := fmt.Sprintf("%s.%s", prefix, insight.Kind)
	category := insightCategory[insight.Kind]
	if category == "" {
		category = types.CategoryInsight
	}
	rc.Blackboard.Publish(b.ID, key, payload, category, time.Hour, nil)
	b.mu.Lock()
	b.stats.BlackboardWrites++
	b.mu.Unlock()
}

// SendMessage sends a directed message to another agent via the bound bus.
func (b *Base) SendMessage(ctx context.Context, to string, msgType types.MessageType, subject string, payload map[string]types.JSONValue, priority types.Priority) error {
	rc := b.RunContext()
	if rc == nil {
		return ErrNoRunContext
	}
	b.mu.Lock()
	b.stats.MessagesSent++
	b.mu.Unlock()
	msg := messagebus.NewMessage(b.ID, to, msgType, priority, subject, payload)
	_, err := rc.Bus.Send(ctx, msg, false, 0)
	return err
}

// Broadcast sends an undirected message to every subscribed agent.
func (b *Base) Broadcast(ctx context.Context, msgType types.MessageType, subject string, payload map[string]types.JSONValue, priority types.Priority) error {
	rc := b.RunContext()
	if rc == nil {
		return ErrNoRunContext
	}
	b.mu.Lock()
	b.stats.MessagesSent++
	b.mu.Unlock()
	return rc.Bus.Broadcast(ctx, b.ID, msgType, subject, payload, priority)
}

// Publish writes a blackboard entry on behalf of this agent, optionally
// tagged for later filtered queries.
func (b *Base) Publish(key string, value types.JSONValue, category types.DataCategory, ttl time.Duration, tags ...string) *blackboard.Entry {
	rc := b.RunContext()
	if rc == nil {
		return nil
	}
	b.mu.Lock()
	b.stats.BlackboardWrites++
	b.mu.Unlock()
	return rc.Blackboard.Publish(b.ID, key, value, category, ttl, nil, tags...)
}

// Query reads blackboard entries matching a glob pattern.
func (b *Base) Query(pattern string) []*blackboard.Entry {
	rc := b.RunContext()
	if rc == nil {
		return nil
	}
	b.mu.Lock()
	b.stats.BlackboardReads++
	b.mu.Unlock()
	return rc.Blackboard.Query(pattern)
}

// QueryFiltered reads blackboard entries matching a glob pattern, narrowed
// to a publishing agent and/or required tags and capped at limit (0 means
// an intentionally empty result, NoLimit/negative means unbounded).
func (b *Base) QueryFiltered(pattern, agentID string, tags []string, limit int) []*blackboard.Entry {
	rc := b.RunContext()
	if rc == nil {
		return nil
	}
	b.mu.Lock()
	b.stats.BlackboardReads++
	b.mu.Unlock()
	return rc.Blackboard.QueryFiltered(pattern, agentID, tags, limit)
}

// StartCollaboration runs a collaboration session with the given
// participants to completion and returns its result, counting it against
// this agent's collaboration stat.
func (b *Base) StartCollaboration(ctx context.Context, problem string, participants []string, timeout time.Duration) (collaboration.Result, error) {
	rc := b.RunContext()
	if rc == nil {
		return collaboration.Result{}, ErrNoRunContext
	}
	b.mu.Lock()
	b.stats.Collaborations++
	b.mu.Unlock()
	return rc.Collaboration.CreateSession(ctx, problem, participants, b.ID, timeout)
}

// DelegateTask creates and assigns a task via the bound task manager,
// counting it against this agent's delegation stat.
func (b *Base) DelegateTask(taskType, description string, priority types.Priority, payload map[string]types.JSONValue) (string, error) {
	rc := b.RunContext()
	if rc == nil {
		return "", ErrNoRunContext
	}
	b.mu.Lock()
	b.stats.TasksDelegated++
	b.mu.Unlock()
	_, agentID, err := rc.TaskManager.AutoAssignTask(taskType, description, priority, payload)
	return agentID, err
}

// LogPrediction records a prediction in the bound learning store for later
// verification and calibration.
func (b *Base) LogPrediction(predictionType string, predictedValue types.JSONValue, confidence float64, predictionContext map[string]types.JSONValue) string {
	rc := b.RunContext()
	if rc == nil {
		return ""
	}
	return rc.Learning.LogPrediction(b.ID, predictionType, predictedValue, confidence, predictionContext)
}

// GetDependencyResults returns the completed results of this agent's
// declared dependencies, or a single one if agentID is non-empty.
func (b *Base) GetDependencyResults(ac *AnalysisContext, agentID string) map[string]types.JSONValue {
	return ac.DependencyResults(b.Dependencies, agentID)
}

// GetSwarmData returns every blackboard entry this agent's dependencies
// have published, keyed by blackboard key.
func (b *Base) GetSwarmData() map[string]types.JSONValue {
	rc := b.RunContext()
	if rc == nil {
		return nil
	}
	out := make(map[string]types.JSONValue)
	for _, dep := range b.Dependencies {
		for _, e := range rc.Blackboard.QueryByAgent(dep) {
			out[e.Key] = e.Value
		}
	}
	return out
}

// InfoDict is the compact identity summary returned by ToInfoDict, mirroring
// the original's to_dict debug helper.
type InfoDict struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Status       string   `json:"status"`
	Progress     int      `json:"progress"`
	CurrentTask  string   `json:"current_task,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// ToInfoDict returns a snapshot suitable for status/debug endpoints.
func (b *Base) ToInfoDict() InfoDict {
	b.mu.Lock()
	defer b.mu.Unlock()
	return InfoDict{
		ID: b.ID, Name: b.Name, Role: b.Role,
		Status: string(b.status), Progress: b.progress, CurrentTask: b.currentTask,
		Dependencies: b.Dependencies,
	}
}
