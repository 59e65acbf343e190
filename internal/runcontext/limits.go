// Package runcontext implements per-request isolation for one analysis run,
// grounded on original_source/agents/run_context.py's RunContext: every run
// gets its own MessageBus, Blackboard, TaskDelegationManager,
// CollaborationManager, and LearningStore instance so concurrent runs never
// share mutable state. Go's context.Context replaces the original's
// asyncio.Event-based cancellation signal, and a background sweeper
// goroutine (started in Start, stopped in Complete/Cancel) replaces what the
// original leaves as an unscheduled TODO for blackboard TTL cleanup — spec
// §9's resolution of that open question.
package runcontext

import (
	"time"
)

// Limits bounds a run's concurrency and timeouts. The LLM/scrape semaphores
// are realized as buffered channels, created lazily on first use exactly
// like the original's lazy asyncio.Semaphore properties, since most test
// runs and many production runs never touch one or the other.
type Limits struct {
	LLMConcurrency    int
	ScrapeConcurrency int

	TotalTimeout  time.Duration
	AgentTimeout  time.Duration
	LLMTimeout    time.Duration
	ScrapeTimeout time.Duration

	llmSem    chan struct{}
	scrapeSem chan struct{}
}

// DefaultLimits mirrors the original's dataclass defaults.
func DefaultLimits() Limits {
	return Limits{
		LLMConcurrency:    5,
		ScrapeConcurrency: 3,
		TotalTimeout:      180 * time.Second,
		AgentTimeout:      90 * time.Second,
		LLMTimeout:        60 * time.Second,
		ScrapeTimeout:     30 * time.Second,
	}
}

// LLMSemaphore returns the run's LLM concurrency gate, creating it on first
// call.
func (l *Limits) LLMSemaphore() chan struct{} {
	if l.llmSem == nil {
		n := l.LLMConcurrency
		if n <= 0 {
			n = 1
		}
		l.llmSem = make(chan struct{}, n)
	}
	return l.llmSem
}

// ScrapeSemaphore returns the run's scrape concurrency gate, creating it on
// first call.
func (l *Limits) ScrapeSemaphore() chan struct{} {
	if l.scrapeSem == nil {
		n := l.ScrapeConcurrency
		if n <= 0 {
			n = 1
		}
		l.scrapeSem = make(chan struct{}, n)
	}
	return l.scrapeSem
}

// AgentTimeoutFor returns the per-agent timeout. The original allows a
// per-agent override map that none of its shipped agents ever populate; we
// carry the single AgentTimeout field that every caller actually uses.
func (l *Limits) AgentTimeoutFor(agentID string) time.Duration {
	if l.AgentTimeout <= 0 {
		return 90 * time.Second
	}
	return l.AgentTimeout
}
