package blackboard

import (
	"testing"
	"time"

	"github.com/brandista/swarm/internal/types"
)

func TestPublishAndGet(t *testing.T) {
	b := New()
	e := b.Publish("scout", "competitor.acme.pricing", 42, types.CategoryCompetitor, 0, nil)
	if e.Version != 1 {
		t.Fatalf("version = %d, want 1", e.Version)
	}
	v, ok := b.Get("competitor.acme.pricing")
	if !ok || v != 42 {
		t.Fatalf("Get = %v, %v, want 42, true", v, ok)
	}
}

func TestRepublishSameValueIsNoOp(t *testing.T) {
	b := New()
	b.Publish("scout", "k", map[string]any{"a": 1}, types.CategoryAnalysis, 0, nil)
	before := b.GetEntry("k").Version
	e := b.Publish("scout", "k", map[string]any{"a": 1}, types.CategoryAnalysis, 0, nil)
	if e.Version != before {
		t.Fatalf("republishing an identical value must not bump version: got %d, want %d", e.Version, before)
	}
	if len(b.GetHistory(0)) != 1 {
		t.Fatalf("no-op republish must not append history, got %d records", len(b.GetHistory(0)))
	}
}

func TestPublishBumpsVersionOnChange(t *testing.T) {
	b := New()
	b.Publish("scout", "k", 1, types.CategoryAnalysis, 0, nil)
	e := b.Publish("scout", "k", 2, types.CategoryAnalysis, 0, nil)
	if e.Version != 2 {
		t.Fatalf("version = %d, want 2", e.Version)
	}
}

func TestSubscriptionExcludesPublisherButNotifiesOthers(t *testing.T) {
	b := New()
	selfNotified := false
	otherNotified := false
	b.Subscribe("scout", "threat.*", func(e *Entry) { selfNotified = true })
	b.Subscribe("guardian", "threat.*", func(e *Entry) { otherNotified = true })

	b.Publish("scout", "threat.ddos", "high", types.CategoryThreat, 0, nil)

	if selfNotified {
		t.Fatal("publisher must not be notified of its own publish")
	}
	if !otherNotified {
		t.Fatal("other subscribers matching the glob should be notified")
	}
}

func TestGlobPatternMatchesOneSegment(t *testing.T) {
	b := New()
	hits := 0
	b.Subscribe("watcher", "competitor.*.pricing", func(e *Entry) { hits++ })
	b.Publish("scout", "competitor.acme.pricing", 1, types.CategoryCompetitor, 0, nil)
	b.Publish("scout", "competitor.acme.traffic.monthly", 1, types.CategoryCompetitor, 0, nil)
	if hits != 1 {
		t.Fatalf("hits = %d, want 1 (wildcard must not cross a dot segment)", hits)
	}
}

func TestTTLExpiryIsLazyOnRead(t *testing.T) {
	b := New()
	b.Publish("scout", "k", "v", types.CategoryMeta, time.Millisecond, nil)
	time.Sleep(5 * time.Millisecond)
	if _, ok := b.Get("k"); ok {
		t.Fatal("expired entry must not be returned by Get")
	}
	if len(b.GetAllKeys()) != 0 {
		t.Fatal("expired entry must not appear in GetAllKeys")
	}
}

func TestCleanupExpiredRemovesOnlyExpired(t *testing.T) {
	b := New()
	b.Publish("scout", "short", "v", types.CategoryMeta, time.Millisecond, nil)
	b.Publish("scout", "long", "v", types.CategoryMeta, time.Hour, nil)
	time.Sleep(5 * time.Millisecond)
	removed := b.CleanupExpired()
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := b.Get("long"); !ok {
		t.Fatal("long-lived entry must survive cleanup")
	}
}

func TestQueryByCategoryAndAgent(t *testing.T) {
	b := New()
	b.Publish("scout", "a", 1, types.CategoryThreat, 0, nil)
	b.Publish("guardian", "b", 2, types.CategoryThreat, 0, nil)
	b.Publish("scout", "c", 3, types.CategoryOpportunity, 0, nil)

	byCat := b.QueryByCategory(types.CategoryThreat)
	if len(byCat) != 2 {
		t.Fatalf("QueryByCategory = %d entries, want 2", len(byCat))
	}
	byAgent := b.QueryByAgent("scout")
	if len(byAgent) != 2 {
		t.Fatalf("QueryByAgent = %d entries, want 2", len(byAgent))
	}
}

func TestUnsubscribeAllRemovesOnlyThatAgent(t *testing.T) {
	b := New()
	var aHits, cHits int
	b.Subscribe("a", "k", func(e *Entry) { aHits++ })
	b.Subscribe("c", "k", func(e *Entry) { cHits++ })
	b.UnsubscribeAll("a")
	b.Publish("other", "k", 1, types.CategoryMeta, 0, nil)
	if aHits != 0 {
		t.Fatal("unsubscribed agent must not be notified")
	}
	if cHits != 1 {
		t.Fatal("remaining subscriber must still be notified")
	}
}

func TestPublishWritesTagsAndQueryFilteredReadsThem(t *testing.T) {
	b := New()
	b.Publish("scout", "a", 1, types.CategoryThreat, 0, nil, "urgent", "ddos")
	b.Publish("guardian", "b", 2, types.CategoryThreat, 0, nil, "low-priority")
	b.Publish("scout", "c", 3, types.CategoryThreat, 0, nil)

	e := b.GetEntry("a")
	if len(e.Tags) != 2 || e.Tags[0] != "urgent" {
		t.Fatalf("Tags = %v, want [urgent ddos]", e.Tags)
	}

	urgent := b.QueryFiltered("*", "", []string{"urgent"}, NoLimit)
	if len(urgent) != 1 || urgent[0].Key != "a" {
		t.Fatalf("QueryFiltered by tag = %v, want just [a]", urgent)
	}

	byAgent := b.QueryFiltered("*", "scout", nil, NoLimit)
	if len(byAgent) != 2 {
		t.Fatalf("QueryFiltered by agent_id = %d entries, want 2", len(byAgent))
	}
}

func TestQueryFilteredWithZeroLimitReturnsEmpty(t *testing.T) {
	b := New()
	b.Publish("scout", "a", 1, types.CategoryThreat, 0, nil)
	b.Publish("scout", "b", 2, types.CategoryThreat, 0, nil)

	out := b.QueryFiltered("*", "", nil, 0)
	if len(out) != 0 {
		t.Fatalf("limit=0 must return an empty list, got %d entries", len(out))
	}
}

func TestQueryFilteredCapsAtLimit(t *testing.T) {
	b := New()
	b.Publish("scout", "a", 1, types.CategoryThreat, 0, nil)
	b.Publish("scout", "b", 2, types.CategoryThreat, 0, nil)
	b.Publish("scout", "c", 3, types.CategoryThreat, 0, nil)

	out := b.QueryFiltered("*", "", nil, 2)
	if len(out) != 2 {
		t.Fatalf("limit=2 must cap results, got %d entries", len(out))
	}
}

func TestDeleteAndClear(t *testing.T) {
	b := New()
	b.Publish("scout", "k", 1, types.CategoryMeta, 0, nil)
	if !b.Delete("scout", "k") {
		t.Fatal("Delete should report true for an existing key")
	}
	if b.Delete("scout", "k") {
		t.Fatal("Delete should report false for an already-deleted key")
	}
	b.Publish("scout", "k2", 1, types.CategoryMeta, 0, nil)
	b.Clear()
	if len(b.GetAllKeys()) != 0 {
		t.Fatal("Clear must remove all entries")
	}
}
