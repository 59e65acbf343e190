package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/brandista/swarm/internal/agent"
	"github.com/brandista/swarm/internal/types"
)

// scoutAgent is the one built-in agent swarmctl registers: it checks that
// the target URL is reachable and reports latency/status as an insight.
// Anything beyond reachability (content scraping, scoring, competitor
// analysis) is a concrete domain agent's job and out of scope here, same as
// authoritative financial data acquisition is out of scope for the swarm
// core itself.
type scoutAgent struct {
	*agent.Base
	client *http.Client
}

func newScoutAgent() *scoutAgent {
	return &scoutAgent{
		Base: agent.NewBase(agent.Identity{
			ID:        "scout",
			Name:      "Scout",
			Role:      "reachability scout",
			TaskTypes: []string{"recon"},
		}),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *scoutAgent) Execute(ac *agent.AnalysisContext) (map[string]types.JSONValue, error) {
	start := time.Now()
	data := map[string]types.JSONValue{"url": ac.URL}

	resp, err := s.client.Head(ac.URL)
	if err != nil {
		data["reachable"] = false
		data["error"] = err.Error()
		s.EmitInsight(types.AgentInsight{
			AgentID: s.ID, AgentName: s.Name,
			Message:   fmt.Sprintf("%s is unreachable: %v", ac.URL, err),
			Priority:  types.PriorityHigh,
			Kind:      types.InsightThreat,
			Timestamp: time.Now(),
		})
		return data, nil
	}
	defer resp.Body.Close()

	latency := time.Since(start)
	data["reachable"] = true
	data["status_code"] = resp.StatusCode
	data["latency_ms"] = latency.Milliseconds()

	s.EmitInsight(types.AgentInsight{
		AgentID: s.ID, AgentName: s.Name,
		Message:   fmt.Sprintf("%s responded %d in %dms", ac.URL, resp.StatusCode, latency.Milliseconds()),
		Priority:  types.PriorityMedium,
		Kind:      types.InsightFinding,
		Timestamp: time.Now(),
	})
	return data, nil
}
