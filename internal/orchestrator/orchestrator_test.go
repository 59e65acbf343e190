package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brandista/swarm/internal/agent"
	"github.com/brandista/swarm/internal/runcontext"
	"github.com/brandista/swarm/internal/types"
)

type fixedExecutor struct {
	data map[string]types.JSONValue
	err  error
	wait time.Duration
}

func (f fixedExecutor) Execute(ac *agent.AnalysisContext) (map[string]types.JSONValue, error) {
	if f.wait > 0 {
		time.Sleep(f.wait)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func mustRegister(t *testing.T, o *Orchestrator, id string, deps []string, exec agent.Executor) {
	t.Helper()
	base := agent.NewBase(agent.Identity{ID: id, Name: id, Dependencies: deps})
	if err := o.Register(base, exec); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
}

func TestPlanPhasesReproducesFixedExecutionPlan(t *testing.T) {
	o := New()
	mustRegister(t, o, "scout", nil, fixedExecutor{})
	mustRegister(t, o, "analyst", []string{"scout"}, fixedExecutor{})
	mustRegister(t, o, "guardian", []string{"analyst"}, fixedExecutor{})
	mustRegister(t, o, "prospector", []string{"analyst"}, fixedExecutor{})
	mustRegister(t, o, "strategist", []string{"guardian", "prospector"}, fixedExecutor{})
	mustRegister(t, o, "planner", []string{"strategist"}, fixedExecutor{})

	phases, err := o.Build()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"scout"}, {"analyst"}, {"guardian", "prospector"}, {"strategist"}, {"planner"}}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i, p := range want {
		if !equalStrings(phases[i], p) {
			t.Fatalf("phase %d = %v, want %v", i, phases[i], p)
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuildDetectsCycle(t *testing.T) {
	o := New()
	mustRegister(t, o, "a", []string{"b"}, fixedExecutor{})
	mustRegister(t, o, "b", []string{"a"}, fixedExecutor{})

	_, err := o.Build()
	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestRegisterDuplicateIDIsRejected(t *testing.T) {
	o := New()
	mustRegister(t, o, "scout", nil, fixedExecutor{})
	base := agent.NewBase(agent.Identity{ID: "scout"})
	if err := o.Register(base, fixedExecutor{}); !errors.Is(err, ErrAgentReuse) {
		t.Fatalf("expected ErrAgentReuse, got %v", err)
	}
}

func TestRunAnalysisAggregatesInsightsAndScores(t *testing.T) {
	o := New()
	mustRegister(t, o, "scout", nil, fixedExecutor{data: map[string]types.JSONValue{"pages": 5}})
	mustRegister(t, o, "analyst", []string{"scout"}, fixedExecutor{data: map[string]types.JSONValue{"composite_score": 70}})
	mustRegister(t, o, "strategist", []string{"analyst"}, fixedExecutor{data: map[string]types.JSONValue{"overall_score": 82}})
	mustRegister(t, o, "planner", []string{"strategist"}, fixedExecutor{data: map[string]types.JSONValue{"action_plan": map[string]types.JSONValue{"steps": 3}}})

	result, err := o.RunAnalysis(context.Background(), Request{URL: "https://example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got errors: %v", result.Errors)
	}
	if result.OverallScore != 82 {
		t.Fatalf("overall score = %d, want 82", result.OverallScore)
	}
	if result.CompositeScores["analyst"] != 70 {
		t.Fatalf("composite score = %d, want 70", result.CompositeScores["analyst"])
	}
	if result.ActionPlan["steps"] != 3 {
		t.Fatalf("action plan = %+v", result.ActionPlan)
	}
	if len(result.AgentResults) != 4 {
		t.Fatalf("expected 4 agent results, got %d", len(result.AgentResults))
	}
}

func TestRunAnalysisRecordsAgentErrorWithoutAbortingRun(t *testing.T) {
	o := New()
	mustRegister(t, o, "scout", nil, fixedExecutor{err: errors.New("scrape blocked")})
	mustRegister(t, o, "analyst", []string{"scout"}, fixedExecutor{data: map[string]types.JSONValue{"composite_score": 10}})

	result, err := o.RunAnalysis(context.Background(), Request{URL: "https://example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected Success=false because scout errored")
	}
	if result.AgentResults["scout"].Status != types.AgentError {
		t.Fatalf("scout status = %v, want error", result.AgentResults["scout"].Status)
	}
	if result.AgentResults["analyst"].Status != types.AgentComplete {
		t.Fatalf("analyst should still have run despite scout's failure, status = %v", result.AgentResults["analyst"].Status)
	}
}

func TestRunAnalysisTimesOutSlowAgent(t *testing.T) {
	limits := runcontext.DefaultLimits()
	limits.AgentTimeout = 30 * time.Millisecond
	rc := runcontext.Create("", &limits, false, nil)

	o := New()
	mustRegister(t, o, "scout", nil, fixedExecutor{wait: 200 * time.Millisecond, data: map[string]types.JSONValue{}})

	result, err := o.RunAnalysis(context.Background(), Request{URL: "https://example.com", RunContext: rc})
	if err != nil {
		t.Fatal(err)
	}
	if result.AgentResults["scout"].Status != types.AgentError {
		t.Fatalf("expected timeout to produce an error result, got %v", result.AgentResults["scout"].Status)
	}
}
