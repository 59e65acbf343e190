package blackboard

import (
	"encoding/json"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/brandista/swarm/internal/types"
)

// Subscriber is invoked when a published key matches a subscription pattern.
// Grounded on the original's subscription callback plus spec §4.2's
// self-notification exclusion: a publisher never receives its own update.
type Subscriber func(entry *Entry)

type subscription struct {
	id      int
	agentID string
	pattern string
	fn      Subscriber
}

// Blackboard is the shared, versioned publish/subscribe key/value store for
// one run. All exported methods are safe for concurrent use.
type Blackboard struct {
	log *log.Logger

	mu          sync.RWMutex
	data        map[string]*Entry
	history     []HistoryRecord
	subs        []*subscription
	nextSubID   int
	byCategory  map[types.DataCategory]map[string]struct{}
	byAgent     map[string]map[string]struct{}
	patterns    *patternCache
	stats       Stats
}

// New creates an empty Blackboard.
func New() *Blackboard {
	return &Blackboard{
		log:        log.New(os.Stderr, "[Blackboard] ", log.LstdFlags),
		data:       make(map[string]*Entry),
		byCategory: make(map[types.DataCategory]map[string]struct{}),
		byAgent:    make(map[string]map[string]struct{}),
		patterns:   newPatternCache(),
		stats:      Stats{EntriesByCategory: make(map[types.DataCategory]int), EntriesByAgent: make(map[string]int)},
	}
}

// Publish writes or updates a key. A publish whose new value canonically
// deep-equals the current value is a no-op: no version bump, no history
// record, no notification — matching spec §4.2's idempotence guarantee so
// agents can re-publish defensively without spamming subscribers.
func (b *Blackboard) Publish(agentID, key string, value types.JSONValue, category types.DataCategory, ttl time.Duration, metadata map[string]types.JSONValue, tags ...string) *Entry {
	now := time.Now()

	b.mu.Lock()
	existing, had := b.data[key]
	if had && !existing.isExpired(now) && canonicalEqual(existing.Value, value) {
		b.mu.Unlock()
		return existing
	}

	version := 1
	if had {
		version = existing.Version + 1
	}
	var expiresAt *time.Time
	if ttl > 0 {
		t := now.Add(ttl)
		expiresAt = &t
	}
	var entryTags []string
	if len(tags) > 0 {
		entryTags = append([]string(nil), tags...)
	}
	entry := &Entry{
		Key: key, Value: value, Category: category, AgentID: agentID,
		Version: version, CreatedAt: now, UpdatedAt: now, ExpiresAt: expiresAt,
		Metadata: metadata, Tags: entryTags,
	}
	if had {
		entry.CreatedAt = existing.CreatedAt
		b.removeFromIndexesLocked(existing)
	}
	b.data[key] = entry
	b.addToIndexesLocked(entry)
	b.history = append(b.history, HistoryRecord{Key: key, AgentID: agentID, Action: "publish", Version: version, Timestamp: now, Value: value})
	b.stats.TotalPublishes++
	b.stats.TotalEntries = len(b.data)

	matched := b.matchingSubscribersLocked(key, agentID)
	b.mu.Unlock()

	for _, s := range matched {
		s.fn(entry)
	}
	if len(matched) > 0 {
		b.mu.Lock()
		b.stats.TotalNotifications += len(matched)
		b.mu.Unlock()
	}
	return entry
}

// Get returns the current value for key, or nil if absent or expired.
func (b *Blackboard) Get(key string) (types.JSONValue, bool) {
	e := b.GetEntry(key)
	if e == nil {
		return nil, false
	}
	return e.Value, true
}

// GetEntry returns the full entry for key, applying lazy TTL expiry.
func (b *Blackboard) GetEntry(key string) *Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getEntryLocked(key)
}

func (b *Blackboard) getEntryLocked(key string) *Entry {
	e, ok := b.data[key]
	if !ok {
		return nil
	}
	if e.isExpired(time.Now()) {
		b.removeFromIndexesLocked(e)
		delete(b.data, key)
		return nil
	}
	b.stats.TotalReads++
	return e
}

// GetMany returns entries for every key present (expired keys are skipped).
func (b *Blackboard) GetMany(keys []string) map[string]*Entry {
	out := make(map[string]*Entry, len(keys))
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		if e := b.getEntryLocked(k); e != nil {
			out[k] = e
		}
	}
	return out
}

// Query returns every live entry whose key matches the glob pattern, sorted
// by key for deterministic output.
func (b *Blackboard) Query(pattern string) []*Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	var keys []string
	for k := range b.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []*Entry
	for _, k := range keys {
		e := b.data[k]
		if e.isExpired(now) {
			continue
		}
		if b.patterns.matches(pattern, k) {
			out = append(out, e)
		}
	}
	return out
}

// NoLimit tells QueryFiltered not to cap the number of matches returned.
const NoLimit = -1

// QueryFiltered returns every live entry matching pattern, optionally
// narrowed to a single publishing agent and/or a required tag set, capped
// at limit results. limit == NoLimit (or any negative value) means
// unbounded; limit == 0 deliberately returns an empty list rather than
// "all", matching spec §8's boundary behavior for a zero limit.
func (b *Blackboard) QueryFiltered(pattern, agentID string, tags []string, limit int) []*Entry {
	if limit == 0 {
		return nil
	}
	matches := b.Query(pattern)
	var out []*Entry
	for _, e := range matches {
		if agentID != "" && e.AgentID != agentID {
			continue
		}
		if !e.hasTags(tags) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// QueryByCategory returns every live entry in the given category, sorted by
// key for a stable order.
func (b *Blackboard) QueryByCategory(category types.DataCategory) []*Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	keys := b.byCategory[category]
	var out []*Entry
	for k := range keys {
		if e, ok := b.data[k]; ok && !e.isExpired(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// QueryByAgent returns every live entry published by agentID.
func (b *Blackboard) QueryByAgent(agentID string) []*Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	keys := b.byAgent[agentID]
	var out []*Entry
	for k := range keys {
		if e, ok := b.data[k]; ok && !e.isExpired(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Subscribe registers fn to be called whenever a key matching pattern is
// published by an agent other than agentID. Returns a subscription id usable
// with Unsubscribe.
func (b *Blackboard) Subscribe(agentID, pattern string, fn Subscriber) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	b.subs = append(b.subs, &subscription{id: id, agentID: agentID, pattern: pattern, fn: fn})
	b.stats.TotalSubscriptions++
	return id
}

// Unsubscribe removes a single subscription by id.
func (b *Blackboard) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// UnsubscribeAll removes every subscription owned by agentID.
func (b *Blackboard) UnsubscribeAll(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.subs[:0]
	for _, s := range b.subs {
		if s.agentID != agentID {
			kept = append(kept, s)
		}
	}
	b.subs = kept
}

// matchingSubscribersLocked must be called with b.mu held; it returns (and
// does not invoke) the subscriptions matching key, excluding the publisher
// itself per spec §4.2's self-notification rule.
func (b *Blackboard) matchingSubscribersLocked(key, publisherID string) []*subscription {
	var out []*subscription
	for _, s := range b.subs {
		if s.agentID == publisherID {
			continue
		}
		if b.patterns.matches(s.pattern, key) {
			out = append(out, s)
		}
	}
	return out
}

// Delete removes a key, recording a delete history entry. Returns false if
// the key did not exist.
func (b *Blackboard) Delete(agentID, key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.data[key]
	if !ok {
		return false
	}
	b.removeFromIndexesLocked(e)
	delete(b.data, key)
	b.history = append(b.history, HistoryRecord{Key: key, AgentID: agentID, Action: "delete", Version: e.Version, Timestamp: time.Now()})
	b.stats.TotalEntries = len(b.data)
	return true
}

// Clear removes every entry, keeping history and subscriptions intact.
func (b *Blackboard) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = make(map[string]*Entry)
	b.byCategory = make(map[types.DataCategory]map[string]struct{})
	b.byAgent = make(map[string]map[string]struct{})
	b.stats.TotalEntries = 0
}

// CleanupExpired removes every entry past its TTL and returns how many were
// removed. Called periodically by the run's sweeper goroutine.
func (b *Blackboard) CleanupExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	removed := 0
	for k, e := range b.data {
		if e.isExpired(now) {
			b.removeFromIndexesLocked(e)
			delete(b.data, k)
			removed++
		}
	}
	b.stats.TotalEntries = len(b.data)
	return removed
}

// GetAllKeys returns every live key, sorted.
func (b *Blackboard) GetAllKeys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	var keys []string
	for k, e := range b.data {
		if !e.isExpired(now) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// GetStats returns a deep copy of the activity counters.
func (b *Blackboard) GetStats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := b.stats
	out.EntriesByCategory = make(map[types.DataCategory]int, len(b.stats.EntriesByCategory))
	out.EntriesByAgent = make(map[string]int, len(b.stats.EntriesByAgent))
	for k, v := range b.byCategory {
		out.EntriesByCategory[k] = len(v)
	}
	for k, v := range b.byAgent {
		out.EntriesByAgent[k] = len(v)
	}
	return out
}

// GetHistory returns up to limit most recent history records (0 = all).
func (b *Blackboard) GetHistory(limit int) []HistoryRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if limit <= 0 || limit > len(b.history) {
		limit = len(b.history)
	}
	start := len(b.history) - limit
	out := make([]HistoryRecord, limit)
	copy(out, b.history[start:])
	return out
}

// GetSnapshot returns a point-in-time copy of every live entry, keyed by key.
func (b *Blackboard) GetSnapshot() map[string]*Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	out := make(map[string]*Entry, len(b.data))
	for k, e := range b.data {
		if !e.isExpired(now) {
			cp := *e
			out[k] = &cp
		}
	}
	return out
}

// Reset clears all state, including history, subscriptions, and stats.
func (b *Blackboard) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = make(map[string]*Entry)
	b.byCategory = make(map[types.DataCategory]map[string]struct{})
	b.byAgent = make(map[string]map[string]struct{})
	b.history = nil
	b.subs = nil
	b.nextSubID = 0
	b.stats = Stats{EntriesByCategory: make(map[types.DataCategory]int), EntriesByAgent: make(map[string]int)}
}

func (b *Blackboard) addToIndexesLocked(e *Entry) {
	if b.byCategory[e.Category] == nil {
		b.byCategory[e.Category] = make(map[string]struct{})
	}
	b.byCategory[e.Category][e.Key] = struct{}{}
	if b.byAgent[e.AgentID] == nil {
		b.byAgent[e.AgentID] = make(map[string]struct{})
	}
	b.byAgent[e.AgentID][e.Key] = struct{}{}
}

func (b *Blackboard) removeFromIndexesLocked(e *Entry) {
	if m, ok := b.byCategory[e.Category]; ok {
		delete(m, e.Key)
	}
	if m, ok := b.byAgent[e.AgentID]; ok {
		delete(m, e.Key)
	}
}

// canonicalEqual compares two JSON-able values by their canonical JSON
// encoding, matching the original's deep-equality no-op check without
// requiring both sides to already be comparable Go values (map/slice
// payloads built from decoded JSON compare fine with == in Python but not in
// Go).
func canonicalEqual(a, b types.JSONValue) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}
