// Package orchestrator drives a fixed roster of agents through a
// dependency-ordered set of execution phases for one analysis run, grounded
// on original_source/agents/orchestrator.py's SwarmOrchestrator.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/brandista/swarm/internal/agent"
	"github.com/brandista/swarm/internal/runcontext"
	"github.com/brandista/swarm/internal/types"
)

// ErrCyclicDependency is returned by Build (and so by RunAnalysis) when the
// declared agent dependency graph contains a cycle. It wraps a *cyclicDependencyError
// carrying the unresolvable residue for diagnostics.
var ErrCyclicDependency = errors.New("orchestrator: cyclic agent dependency")

// ErrAgentReuse is returned when the same agent id is registered twice.
var ErrAgentReuse = errors.New("orchestrator: agent id already registered")

type cyclicDependencyError struct{ residue []string }

func (e *cyclicDependencyError) Error() string {
	return fmt.Sprintf("%v: agents with unresolvable dependencies: %v", ErrCyclicDependency, e.residue)
}
func (e *cyclicDependencyError) Unwrap() error { return ErrCyclicDependency }

// Registration binds a concrete agent's Base identity to its business logic.
type Registration struct {
	Base *agent.Base
	Exec agent.Executor
}

// Orchestrator holds a fixed agent roster, known at construction, and plans
// their dependency-ordered execution.
type Orchestrator struct {
	log *log.Logger

	mu     sync.Mutex
	regs   map[string]Registration
	phases [][]string
}

// New constructs an empty Orchestrator.
func New() *Orchestrator {
	return &Orchestrator{
		log:  log.New(os.Stderr, "[Orchestrator] ", log.LstdFlags),
		regs: make(map[string]Registration),
	}
}

// Register adds an agent to the roster. Registering the same id twice is an
// error (ErrAgentReuse) since the roster is meant to be fixed at startup,
// not mutated mid-run.
func (o *Orchestrator) Register(base *agent.Base, exec agent.Executor) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.regs[base.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAgentReuse, base.ID)
	}
	o.regs[base.ID] = Registration{Base: base, Exec: exec}
	o.phases = nil
	return nil
}

// Build computes and caches the dependency-ordered execution phases. It is
// called lazily by RunAnalysis but can be called ahead of time to fail fast
// on a cyclic roster before any run starts.
func (o *Orchestrator) Build() ([][]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buildLocked()
}

func (o *Orchestrator) buildLocked() ([][]string, error) {
	if o.phases != nil {
		return o.phases, nil
	}
	deps := make(map[string][]string, len(o.regs))
	for id, r := range o.regs {
		deps[id] = r.Base.Dependencies
	}
	phases, err := planPhases(deps)
	if err != nil {
		return nil, err
	}
	o.phases = phases
	return phases, nil
}

// Request bundles the inputs to one analysis run.
type Request struct {
	URL             string
	CompetitorURLs  []string
	Language        string
	IndustryContext string
	UserID          string
	RevenueInput    float64
	RunContext      *runcontext.RunContext // optional; created if nil
}

// RunAnalysis executes every registered agent through its dependency-ordered
// phases and aggregates the results into an OrchestrationResult. A single
// agent's failure never aborts the run: it is recorded as an ERROR
// AgentResult and downstream agents simply see an empty dependency payload
// for it, mirroring the original's best-effort aggregation.
func (o *Orchestrator) RunAnalysis(ctx context.Context, req Request) (types.OrchestrationResult, error) {
	phases, err := o.Build()
	if err != nil {
		return types.OrchestrationResult{}, err
	}

	rc := req.RunContext
	if rc == nil {
		rc = runcontext.Create(req.UserID, nil, false, nil)
	}
	rc.Start()

	runCtx, cancel := context.WithTimeout(ctx, rc.Limits.TotalTimeout)
	defer cancel()

	ac := &agent.AnalysisContext{
		URL: req.URL, CompetitorURLs: req.CompetitorURLs, Language: req.Language,
		IndustryContext: req.IndustryContext, UserID: req.UserID, RevenueInput: req.RevenueInput,
		AgentResults: make(map[string]types.AgentResult),
	}

	start := time.Now()
	var errs []string

	for _, phase := range phases {
		if runCtx.Err() != nil {
			for _, id := range phase {
				ac.AgentResults[id] = runCancelledResult(id, o.regs[id].Base.Name)
			}
			errs = append(errs, fmt.Sprintf("run cancelled before phase %v started", phase))
			continue
		}
		results := o.runPhase(runCtx, rc, ac, phase)
		for id, r := range results {
			ac.AgentResults[id] = r
			if r.Status == types.AgentError {
				errs = append(errs, fmt.Sprintf("%s: %s", id, r.Error))
			}
		}
	}

	result := o.aggregate(rc, ac, start, errs)
	success := len(errs) == 0
	rc.Complete(success, joinErrors(errs))
	return result, nil
}

func (o *Orchestrator) runPhase(ctx context.Context, rc *runcontext.RunContext, ac *agent.AnalysisContext, phase []string) map[string]types.AgentResult {
	results := make(map[string]types.AgentResult, len(phase))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range phase {
		reg := o.regs[id]
		wg.Add(1)
		go func(id string, reg Registration) {
			defer wg.Done()
			r := o.runOne(ctx, rc, ac, reg)
			mu.Lock()
			results[id] = r
			mu.Unlock()
		}(id, reg)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) runOne(ctx context.Context, rc *runcontext.RunContext, ac *agent.AnalysisContext, reg Registration) types.AgentResult {
	timeout := rc.Limits.AgentTimeoutFor(reg.Base.ID)
	agentCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan types.AgentResult, 1)
	go func() {
		done <- reg.Base.Run(rc, ac, reg.Exec)
	}()

	select {
	case r := <-done:
		return r
	case <-agentCtx.Done():
		o.log.Printf("agent %s timed out after %s", reg.Base.ID, timeout)
		return agentTimeoutResult(reg.Base.ID, reg.Base.Name, timeout)
	}
}

// agentTimeoutResult is produced when a single agent's own timeout budget
// expires, distinct from runCancelledResult's run-level cancellation so
// callers can tell the two failure modes apart by message text alone.
func agentTimeoutResult(id, name string, timeout time.Duration) types.AgentResult {
	return types.AgentResult{
		AgentID: id, AgentName: name, Status: types.AgentError,
		Error: fmt.Sprintf("Agent timeout after %ds", int(timeout.Seconds())),
	}
}

// runCancelledResult is produced for agents in a phase that never starts
// because the run's context was cancelled or its total timeout expired
// before that phase began.
func runCancelledResult(id, name string) types.AgentResult {
	return types.AgentResult{AgentID: id, AgentName: name, Status: types.AgentError, Error: "Run cancelled"}
}

func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}
	return out
}

// aggregate builds the top-level OrchestrationResult: critical/high insight
// split across every agent, a composite score pulled from the strategist's
// data and an action plan from the planner's, and a swarm communication
// summary, mirroring original_source/agents/orchestrator.py's
// _aggregate_results.
func (o *Orchestrator) aggregate(rc *runcontext.RunContext, ac *agent.AnalysisContext, start time.Time, errs []string) types.OrchestrationResult {
	var critical, high []types.AgentInsight
	composite := make(map[string]int)
	var overall int
	var actionPlan map[string]types.JSONValue

	ids := make([]string, 0, len(ac.AgentResults))
	for id := range ac.AgentResults {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		r := ac.AgentResults[id]
		for _, ins := range r.Insights {
			switch ins.Priority {
			case types.PriorityCritical:
				critical = append(critical, ins)
			case types.PriorityHigh:
				high = append(high, ins)
			}
		}
		if score, ok := r.Data["composite_score"].(int); ok {
			composite[id] = score
		} else if score, ok := r.Data["composite_score"].(float64); ok {
			composite[id] = int(score)
		}
		if id == "strategist" {
			if score, ok := r.Data["overall_score"].(int); ok {
				overall = score
			} else if score, ok := r.Data["overall_score"].(float64); ok {
				overall = int(score)
			}
		}
		if id == "planner" {
			if plan, ok := r.Data["action_plan"].(map[string]types.JSONValue); ok {
				actionPlan = plan
			}
		}
	}

	busStats := rc.Bus.GetStats()
	bbStats := rc.Blackboard.GetStats()

	return types.OrchestrationResult{
		Success:          len(errs) == 0,
		RunID:            rc.RunID,
		ExecutionTimeMs:  time.Since(start).Milliseconds(),
		DurationSeconds:  time.Since(start).Seconds(),
		URL:              ac.URL,
		CompetitorCount:  len(ac.CompetitorURLs),
		OverallScore:     overall,
		CompositeScores:  composite,
		AgentResults:     ac.AgentResults,
		CriticalInsights: critical,
		HighInsights:     high,
		ActionPlan:       actionPlan,
		Errors:           errs,
		SwarmSummary: types.SwarmSummary{
			TotalMessages:     busStats.TotalSent,
			BlackboardEntries: bbStats.TotalEntries,
			RunID:             rc.RunID,
		},
	}
}
