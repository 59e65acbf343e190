package messagebus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brandista/swarm/internal/types"
)

func TestBus_PriorityThenFIFO(t *testing.T) {
	b := NewBus()
	received := make(chan *Message, 10)
	b.RegisterAgent("r", func(m *Message) error {
		received <- m
		return nil
	}, []types.MessageType{types.MessageAlert})

	ctx := context.Background()
	prios := []types.Priority{types.PriorityLow, types.PriorityCritical, types.PriorityHigh}
	for _, p := range prios {
		msg := NewMessage("s", "r", types.MessageAlert, p, "x", nil)
		if _, err := b.Send(ctx, msg, false, 0); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	want := []types.Priority{types.PriorityCritical, types.PriorityHigh, types.PriorityLow}
	for i, w := range want {
		select {
		case m := <-received:
			if m.Priority != w {
				t.Fatalf("message %d: got priority %v, want %v", i, m.Priority, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("message %d: timed out waiting for delivery", i)
		}
	}
}

func TestBus_BroadcastExcludesSenderAndRequiresSubscription(t *testing.T) {
	b := NewBus()
	var mu sync.Mutex
	var gotA, gotB bool
	b.RegisterAgent("a", func(m *Message) error { mu.Lock(); gotA = true; mu.Unlock(); return nil }, []types.MessageType{types.MessageFinding})
	b.RegisterAgent("b", func(m *Message) error { mu.Lock(); gotB = true; mu.Unlock(); return nil }, []types.MessageType{types.MessageAlert})
	b.RegisterAgent("sender", func(m *Message) error { return nil }, []types.MessageType{types.MessageFinding})

	if err := b.Broadcast(context.Background(), "sender", types.MessageFinding, "subj", nil, types.PriorityMedium); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if !gotA {
		t.Fatal("subscribed agent a should have received the broadcast")
	}
	if gotB {
		t.Fatal("agent b is not subscribed to FINDING and must not receive it")
	}
}

func TestBus_BroadcastNoSubscribersIsNotAnError(t *testing.T) {
	b := NewBus()
	if err := b.Broadcast(context.Background(), "lonely", types.MessageFinding, "subj", nil, types.PriorityLow); err != nil {
		t.Fatalf("broadcast with no subscribers must not error: %v", err)
	}
	stats := b.GetStats()
	if stats.TotalSent != 1 {
		t.Fatalf("TotalSent = %d, want 1", stats.TotalSent)
	}
	if stats.TotalDelivered != 0 {
		t.Fatalf("TotalDelivered = %d, want 0", stats.TotalDelivered)
	}
}

func TestBus_RequestResponseRoundTrip(t *testing.T) {
	b := NewBus()
	b.RegisterAgent("responder", func(m *Message) error {
		if m.Type == types.MessageRequest {
			resp := m.CreateResponse("responder", map[string]types.JSONValue{"ok": true}, types.MessageResponse)
			_, _ = b.Send(context.Background(), resp, false, 0)
		}
		return nil
	}, []types.MessageType{types.MessageRequest})
	b.RegisterAgent("asker", func(m *Message) error { return nil }, nil)

	resp, err := b.RequestResponse(context.Background(), "asker", "responder", types.MessageRequest, "ping", nil, time.Second)
	if err != nil {
		t.Fatalf("request_response: %v", err)
	}
	if resp == nil {
		t.Fatal("expected a response before timeout")
	}
	if ok, _ := resp.Payload["ok"].(bool); !ok {
		t.Fatalf("unexpected response payload: %+v", resp.Payload)
	}
}

func TestBus_RequestResponseTimesOutWithoutReply(t *testing.T) {
	b := NewBus()
	b.RegisterAgent("silent", func(m *Message) error { return nil }, nil)
	resp, err := b.RequestResponse(context.Background(), "asker", "silent", types.MessageRequest, "ping", nil, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != nil {
		t.Fatal("expected nil response on timeout")
	}
}

func TestBus_CircuitOpensAfterThresholdAndDeadLetters(t *testing.T) {
	b := NewBus()
	b.breaker = newCircuitBreaker(3, time.Hour)
	failing := true
	b.RegisterAgent("flaky", func(m *Message) error {
		if failing {
			return errors.New("boom")
		}
		return nil
	}, nil)

	for i := 0; i < 3; i++ {
		msg := NewMessage("s", "flaky", types.MessageData, types.PriorityMedium, "x", nil)
		if _, err := b.Send(context.Background(), msg, false, 0); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	time.Sleep(50 * time.Millisecond)

	if !b.breaker.IsOpen("flaky") {
		t.Fatal("circuit should be open after 3 consecutive failures")
	}

	msg := NewMessage("s", "flaky", types.MessageData, types.PriorityMedium, "x", nil)
	if _, err := b.Send(context.Background(), msg, false, 0); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	dl := b.GetDeadLetters()
	if len(dl) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dl))
	}
}

func TestBus_BroadcastDeadLettersOpenCircuitRecipientOnly(t *testing.T) {
	b := NewBus()
	b.breaker = newCircuitBreaker(1, time.Hour)
	var mu sync.Mutex
	healthyGot := false
	b.RegisterAgent("unhealthy", func(m *Message) error { return errors.New("down") }, []types.MessageType{types.MessageAlert})
	b.RegisterAgent("healthy", func(m *Message) error { mu.Lock(); healthyGot = true; mu.Unlock(); return nil }, []types.MessageType{types.MessageAlert})

	// Trip the unhealthy circuit first with a directed failure.
	msg := NewMessage("s", "unhealthy", types.MessageAlert, types.PriorityMedium, "x", nil)
	_, _ = b.Send(context.Background(), msg, false, 0)
	time.Sleep(20 * time.Millisecond)
	if !b.breaker.IsOpen("unhealthy") {
		t.Fatal("setup: circuit should be open")
	}

	if err := b.Broadcast(context.Background(), "s", types.MessageAlert, "x", nil, types.PriorityMedium); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if !healthyGot {
		t.Fatal("healthy recipient should still receive the broadcast")
	}
	dl := b.GetDeadLetters()
	if len(dl) != 1 {
		t.Fatalf("expected 1 dead letter (the broadcast skip; a failed callback is not dead-lettered), got %d", len(dl))
	}
}
