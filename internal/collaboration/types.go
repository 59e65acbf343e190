// Package collaboration implements the multi-phase consensus protocol
// agents use to jointly decide on an ambiguous question, grounded on
// original_source/agents/collaboration.py's CollaborationSession: GATHERING
// collects initial perspectives, BRAINSTORMING collects proposed solutions,
// an optional DEBATING round runs when more than one solution was proposed,
// VOTING collects weighted votes, and CONSENSUS resolves the winner with a
// fully deterministic tie-break chain (a refinement over the original's
// single-key max(), per spec §4.4).
//
// Where the original blocks each phase behind a fixed asyncio.sleep, this
// implementation waits on blackboard subscriptions keyed to the phase's
// reply pattern, returning as soon as every participant has replied or the
// phase's timeout elapses, whichever comes first.
package collaboration

import (
	"errors"
	"time"

	"github.com/brandista/swarm/internal/types"
)

// ErrNoParticipants is returned (and recorded as the session's terminal
// error) when a session is run with zero participating agents: there is
// no one to gather perspectives, propose, or vote, so the session cannot
// reach consensus and ends FAILED rather than COMPLETE.
var ErrNoParticipants = errors.New("collaboration: session has no participating agents")

// Input is one agent's contribution during a single phase.
type Input struct {
	AgentID    string                 `json:"agent_id"`
	Phase      types.CollaborationPhase `json:"phase"`
	Content    types.JSONValue        `json:"content"`
	Timestamp  time.Time              `json:"timestamp"`
	Confidence float64                `json:"confidence"`
}

// Vote is one agent's weighted preference among the proposed solutions.
type Vote struct {
	Choice     string  `json:"choice"`
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of a completed CollaborationSession.
type Result struct {
	SessionID            string                   `json:"session_id"`
	Problem              string                   `json:"problem"`
	Solution             string                   `json:"solution,omitempty"`
	ConsensusReached     bool                     `json:"consensus_reached"`
	ParticipatingAgents  []string                 `json:"participating_agents"`
	Inputs               []Input                  `json:"inputs"`
	FinalVotes           map[string]Vote          `json:"final_votes"`
	DurationSeconds      float64                  `json:"duration_seconds"`
	Phase                types.CollaborationPhase `json:"phase"`
	Error                string                   `json:"error,omitempty"`
}

// solutionScore is a tally over all votes cast for one proposed solution.
type solutionScore struct {
	choice       string
	count        int
	majorityPct  float64
	weightedScore float64
	agents       []string
}
