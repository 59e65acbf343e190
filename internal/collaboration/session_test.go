package collaboration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brandista/swarm/internal/blackboard"
	"github.com/brandista/swarm/internal/messagebus"
	"github.com/brandista/swarm/internal/types"
)

// wireRespondingAgent registers a callback on the bus that answers every
// collaboration request by publishing a canned value to the matching
// blackboard key, simulating a real BaseAgent's collaboration handlers.
func wireRespondingAgent(t *testing.T, bus *messagebus.Bus, bb *blackboard.Blackboard, agentID, choice string, confidence float64) {
	t.Helper()
	bus.RegisterAgent(agentID, func(m *messagebus.Message) error {
		sessionID, _ := m.Payload["session_id"].(string)
		action, _ := m.Payload["action"].(string)
		key := "collab." + sessionID
		switch action {
		case "provide_perspective":
			bb.Publish(agentID, key+".perspective."+agentID, "my take", types.CategoryMeta, 0, nil)
		case "propose_solution":
			bb.Publish(agentID, key+".proposal."+agentID, choice, types.CategoryMeta, 0, nil)
		case "evaluate_solutions":
			bb.Publish(agentID, key+".evaluation."+agentID, "looks good", types.CategoryMeta, 0, nil)
		case "vote":
			bb.Publish(agentID, key+".vote."+agentID, map[string]types.JSONValue{"choice": choice, "confidence": confidence}, types.CategoryMeta, 0, nil)
		}
		return nil
	}, []types.MessageType{types.MessageRequest})
}

func TestSessionReachesConsensusWhenAgentsAgree(t *testing.T) {
	bus := messagebus.NewBus()
	bb := blackboard.New()
	wireRespondingAgent(t, bus, bb, "a", "option-x", 0.9)
	wireRespondingAgent(t, bus, bb, "b", "option-x", 0.8)
	wireRespondingAgent(t, bus, bb, "c", "option-x", 0.85)

	mgr := NewManager(bus, bb)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := mgr.CreateSession(ctx, "which option?", []string{"a", "b", "c"}, "a", 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.ConsensusReached {
		t.Fatalf("expected consensus, got result: %+v", result)
	}
	if result.Solution != "option-x" {
		t.Fatalf("solution = %q, want %q", result.Solution, "option-x")
	}
	if result.Phase != types.PhaseComplete {
		t.Fatalf("phase = %v, want complete", result.Phase)
	}
}

func TestSessionNoConsensusWhenSplit(t *testing.T) {
	bus := messagebus.NewBus()
	bb := blackboard.New()
	wireRespondingAgent(t, bus, bb, "a", "option-x", 0.5)
	wireRespondingAgent(t, bus, bb, "b", "option-y", 0.5)

	mgr := NewManager(bus, bb)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := mgr.CreateSession(ctx, "which option?", []string{"a", "b"}, "a", 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ConsensusReached {
		t.Fatalf("expected no consensus on an even split, got: %+v", result)
	}
}

func TestSessionWithNoParticipantsFailsWithoutConsensus(t *testing.T) {
	bus := messagebus.NewBus()
	bb := blackboard.New()

	mgr := NewManager(bus, bb)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := mgr.CreateSession(ctx, "which option?", nil, "", 5*time.Second)

	if !errors.Is(err, ErrNoParticipants) {
		t.Fatalf("expected ErrNoParticipants, got %v", err)
	}
	if result.Phase != types.PhaseFailed {
		t.Fatalf("phase = %v, want failed", result.Phase)
	}
	if result.ConsensusReached {
		t.Fatal("a zero-participant session must never report consensus")
	}
}

func TestCheckConsensusTieBreaksDeterministically(t *testing.T) {
	votes := map[string]Vote{
		"a": {Choice: "zeta", Confidence: 0.5},
		"b": {Choice: "alpha", Confidence: 0.5},
	}
	choice, _ := checkConsensus(votes)
	if choice != "alpha" {
		t.Fatalf("tie-break should prefer the lexicographically smaller choice key, got %q", choice)
	}
}

func TestCheckConsensusEmptyVotes(t *testing.T) {
	choice, consensus := checkConsensus(map[string]Vote{})
	if choice != "" || consensus {
		t.Fatalf("expected no solution/consensus for empty votes, got %q, %v", choice, consensus)
	}
}

func TestManagerTracksCompletedSessions(t *testing.T) {
	bus := messagebus.NewBus()
	bb := blackboard.New()
	wireRespondingAgent(t, bus, bb, "a", "x", 1.0)

	mgr := NewManager(bus, bb)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := mgr.CreateSession(ctx, "p1", []string{"a"}, "a", 5*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mgr.CreateSession(ctx, "p2", []string{"a"}, "a", 5*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	completed := mgr.GetCompletedSessions(10)
	if len(completed) != 2 {
		t.Fatalf("completed sessions = %d, want 2", len(completed))
	}
	if len(mgr.GetActiveSessions()) != 0 {
		t.Fatal("no sessions should remain active after completion")
	}
}
