package collaboration

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/brandista/swarm/internal/blackboard"
	"github.com/brandista/swarm/internal/messagebus"
	"github.com/brandista/swarm/internal/types"
)

// defaultPhaseTimeout bounds how long a phase waits for replies, counted
// from the start of the phase's wait, mirroring the original's fixed
// asyncio.sleep(2.0)/sleep(1.5) windows but releasing early once every
// participant has answered.
const defaultPhaseTimeout = 2 * time.Second

// Session drives one problem through the GATHERING -> BRAINSTORMING ->
// (DEBATING) -> VOTING -> CONSENSUS protocol.
type Session struct {
	log *log.Logger

	SessionID   string
	Problem     string
	Agents      []string
	Facilitator string
	Timeout     time.Duration

	bus *messagebus.Bus
	bb  *blackboard.Blackboard
	key string

	mu     sync.Mutex
	phase  types.CollaborationPhase
	inputs []Input
}

// NewSession constructs a session. facilitator defaults to the first agent
// if empty, matching the original's behavior.
func NewSession(sessionID, problem string, agents []string, facilitator string, timeout time.Duration, bus *messagebus.Bus, bb *blackboard.Blackboard) *Session {
	if facilitator == "" && len(agents) > 0 {
		facilitator = agents[0]
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Session{
		log:         log.New(os.Stderr, "[Collaboration] ", log.LstdFlags),
		SessionID:   sessionID,
		Problem:     problem,
		Agents:      agents,
		Facilitator: facilitator,
		Timeout:     timeout,
		bus:         bus,
		bb:          bb,
		key:         "collab." + sessionID,
		phase:       types.PhaseInitiated,
	}
}

// Run drives the session through every phase and returns the final result.
func (s *Session) Run(ctx context.Context) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var solution string
	var consensus bool
	var votes map[string]Vote
	failed := false
	errMsg := ""

	if len(s.Agents) == 0 {
		s.setPhase(types.PhaseFailed)
		failed = true
		errMsg = ErrNoParticipants.Error()
		s.log.Printf("session %s: %s", s.SessionID, errMsg)
	} else {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Printf("session %s panicked: %v", s.SessionID, r)
					failed = true
				}
			}()

			s.setPhase(types.PhaseGathering)
			s.gatherPerspectives(ctx)

			s.setPhase(types.PhaseBrainstorming)
			solutions := s.brainstormSolutions(ctx)

			if len(solutions) > 1 {
				s.setPhase(types.PhaseDebating)
				s.debateSolutions(ctx, solutions)
			}

			s.setPhase(types.PhaseVoting)
			votes = s.voteOnSolutions(ctx, solutions)

			s.setPhase(types.PhaseConsensus)
			solution, consensus = checkConsensus(votes)
		}()

		if ctx.Err() != nil {
			s.log.Printf("session %s timed out", s.SessionID)
			failed = true
		}
	}

	if failed {
		s.setPhase(types.PhaseFailed)
		solution, consensus, votes = "", false, map[string]Vote{}
	} else {
		s.setPhase(types.PhaseComplete)
	}

	result := Result{
		SessionID:           s.SessionID,
		Problem:             s.Problem,
		Solution:            solution,
		ConsensusReached:    consensus,
		ParticipatingAgents: append([]string(nil), s.Agents...),
		Inputs:              s.snapshotInputs(),
		FinalVotes:          votes,
		DurationSeconds:     time.Since(start).Seconds(),
		Phase:               s.currentPhase(),
		Error:               errMsg,
	}

	s.bb.Publish(s.Facilitator, s.key+".result", result, types.CategoryMeta, 0, nil)
	s.log.Printf("session %s complete: consensus=%v solution=%q", s.SessionID, consensus, solution)
	return result
}

func (s *Session) setPhase(p types.CollaborationPhase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *Session) currentPhase() types.CollaborationPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) addInput(in Input) {
	s.mu.Lock()
	s.inputs = append(s.inputs, in)
	s.mu.Unlock()
}

func (s *Session) snapshotInputs() []Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Input(nil), s.inputs...)
}

func (s *Session) gatherPerspectives(ctx context.Context) {
	s.bb.Publish(s.Facilitator, s.key+".problem", map[string]types.JSONValue{
		"problem": s.Problem, "agents": s.Agents, "phase": "gathering",
	}, types.CategoryMeta, 0, nil)

	for _, agentID := range s.Agents {
		s.request(ctx, agentID, "provide_perspective", nil)
	}

	entries := s.waitForEntries(ctx, s.key+".perspective.*", len(s.Agents))
	for _, e := range entries {
		s.addInput(Input{AgentID: e.AgentID, Phase: types.PhaseGathering, Content: e.Value, Timestamp: e.UpdatedAt})
	}
	s.log.Printf("session %s: collected %d perspectives", s.SessionID, len(entries))
}

func (s *Session) brainstormSolutions(ctx context.Context) []types.JSONValue {
	perspectives := s.snapshotInputs()
	for _, agentID := range s.Agents {
		s.request(ctx, agentID, "propose_solution", map[string]types.JSONValue{"perspectives": perspectives})
	}

	entries := s.waitForEntries(ctx, s.key+".proposal.*", len(s.Agents))
	var solutions []types.JSONValue
	for _, e := range entries {
		solutions = append(solutions, e.Value)
		s.addInput(Input{AgentID: e.AgentID, Phase: types.PhaseBrainstorming, Content: e.Value, Timestamp: e.UpdatedAt})
	}
	s.log.Printf("session %s: generated %d solution proposals", s.SessionID, len(solutions))
	return solutions
}

func (s *Session) debateSolutions(ctx context.Context, solutions []types.JSONValue) {
	s.bb.Publish(s.Facilitator, s.key+".solutions", solutions, types.CategoryMeta, 0, nil)
	for _, agentID := range s.Agents {
		s.request(ctx, agentID, "evaluate_solutions", map[string]types.JSONValue{"solutions": solutions})
	}

	entries := s.waitForEntries(ctx, s.key+".evaluation.*", len(s.Agents))
	for _, e := range entries {
		s.addInput(Input{AgentID: e.AgentID, Phase: types.PhaseDebating, Content: e.Value, Timestamp: e.UpdatedAt})
	}
	s.log.Printf("session %s: collected %d evaluations", s.SessionID, len(entries))
}

func (s *Session) voteOnSolutions(ctx context.Context, solutions []types.JSONValue) map[string]Vote {
	if len(solutions) == 0 {
		return map[string]Vote{}
	}
	for _, agentID := range s.Agents {
		s.request(ctx, agentID, "vote", map[string]types.JSONValue{"solutions": solutions})
	}

	entries := s.waitForEntries(ctx, s.key+".vote.*", len(s.Agents))
	votes := make(map[string]Vote, len(entries))
	for _, e := range entries {
		v := parseVote(e.Value)
		votes[e.AgentID] = v
		s.addInput(Input{AgentID: e.AgentID, Phase: types.PhaseVoting, Content: e.Value, Timestamp: e.UpdatedAt, Confidence: v.Confidence})
	}
	s.log.Printf("session %s: collected %d votes", s.SessionID, len(votes))
	return votes
}

func parseVote(v types.JSONValue) Vote {
	m, ok := v.(map[string]types.JSONValue)
	if !ok {
		return Vote{Confidence: 1.0}
	}
	choice, _ := m["choice"].(string)
	confidence := 1.0
	if c, ok := m["confidence"].(float64); ok {
		confidence = c
	}
	return Vote{Choice: choice, Confidence: confidence}
}

func (s *Session) request(ctx context.Context, agentID, action string, extra map[string]types.JSONValue) {
	payload := map[string]types.JSONValue{"session_id": s.SessionID, "action": action, "problem": s.Problem}
	for k, v := range extra {
		payload[k] = v
	}
	msg := messagebus.NewMessage(s.Facilitator, agentID, types.MessageRequest, types.PriorityHigh, fmt.Sprintf("collaboration: %s", action), payload)
	msg.ConversationID = s.SessionID
	if _, err := s.bus.Send(ctx, msg, false, 0); err != nil {
		s.log.Printf("session %s: request to %s failed: %v", s.SessionID, agentID, err)
	}
}

// waitForEntries blocks until every agent in s.Agents has published a
// matching entry or the phase's settle window elapses, then returns whatever
// is present on the blackboard at that point. This replaces the original's
// fixed sleep with an early-exit wait while still tolerating stragglers.
func (s *Session) waitForEntries(ctx context.Context, pattern string, want int) []*blackboard.Entry {
	phaseCtx, cancel := context.WithTimeout(ctx, defaultPhaseTimeout)
	defer cancel()

	notify := make(chan struct{}, 1)
	seen := make(map[string]struct{})
	var mu sync.Mutex

	// Subscribe under a session-scoped id rather than the facilitator's: the
	// blackboard never notifies a publisher of its own writes, and the
	// facilitator is usually a participant too.
	subID := s.bb.Subscribe("collab:"+s.SessionID, pattern, func(e *blackboard.Entry) {
		mu.Lock()
		seen[e.AgentID] = struct{}{}
		mu.Unlock()
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer s.bb.Unsubscribe(subID)

	for _, e := range s.bb.Query(pattern) {
		seen[e.AgentID] = struct{}{}
	}

	for {
		mu.Lock()
		count := len(seen)
		mu.Unlock()
		if count >= want {
			break
		}
		select {
		case <-notify:
		case <-phaseCtx.Done():
			goto settled
		}
	}
settled:
	return s.bb.Query(pattern)
}

// checkConsensus scores every distinct vote choice and picks the winner.
// Consensus requires either a strict majority (>50% of voters) or a weighted
// score (confidence-adjusted) above 60%, matching the original. Ties are
// broken deterministically: weighted_score desc, then majority_pct desc,
// then choice key lexicographically ascending — a refinement over the
// original's single-key max(), which relies on Python dict insertion order
// for ties.
func checkConsensus(votes map[string]Vote) (string, bool) {
	if len(votes) == 0 {
		return "", false
	}

	byChoice := make(map[string]*solutionScore)
	for agentID, v := range votes {
		sc, ok := byChoice[v.Choice]
		if !ok {
			sc = &solutionScore{choice: v.Choice}
			byChoice[v.Choice] = sc
		}
		sc.count++
		sc.weightedScore += v.Confidence
		sc.agents = append(sc.agents, agentID)
	}

	total := float64(len(votes))
	var scores []*solutionScore
	for _, sc := range byChoice {
		sc.majorityPct = float64(sc.count) / total
		sc.weightedScore = sc.weightedScore / total
		sort.Strings(sc.agents)
		scores = append(scores, sc)
	}

	sort.Slice(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.weightedScore != b.weightedScore {
			return a.weightedScore > b.weightedScore
		}
		if a.majorityPct != b.majorityPct {
			return a.majorityPct > b.majorityPct
		}
		return a.choice < b.choice
	})

	best := scores[0]
	consensus := best.majorityPct > 0.5 || best.weightedScore > 0.6
	return best.choice, consensus
}
