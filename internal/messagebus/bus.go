// Package messagebus implements the in-process, single-RunContext inter-agent
// message bus: priority delivery, broadcast, request/response correlation,
// per-recipient circuit breaking, and a dead-letter queue.
//
// Grounded on internal/events/bus.go's subscriber fan-out and backpressure
// idiom, and on original_source/agents/communication.py's MessageBus for the
// delivery/circuit-breaker/response-future semantics this spec requires.
package messagebus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/brandista/swarm/internal/types"
)

// ErrCircuitOpen is returned (and the message dead-lettered) when the target
// agent's circuit breaker is currently open.
var ErrCircuitOpen = errors.New("messagebus: recipient circuit is open")

// ErrUnknownAgent is returned when sending directly to an unregistered agent.
var ErrUnknownAgent = errors.New("messagebus: recipient not registered")

// Callback is invoked once per delivered message. A returned error counts as
// a delivery failure against the recipient's circuit breaker but never
// aborts delivery to other recipients.
type Callback func(*Message) error

// defaultSubscriptions mirrors the original's DEFAULT_SUBSCRIPTIONS: every
// newly registered agent listens for these unless it declares its own set.
var defaultSubscriptions = []types.MessageType{
	types.MessageAlert, types.MessageRequest, types.MessageHelp,
	types.MessageTaskDelegate, types.MessageConsensus,
}

type agentReg struct {
	callback Callback
	types    map[types.MessageType]struct{}
	queue    *recipientQueue
	inbox    chan *Message // pull-side mailbox for receive/receive_all
}

type pendingResponse struct {
	ch      chan *Message
	timeout time.Duration
}

// Stats is the bus-wide delivery tally returned by GetStats.
type Stats struct {
	TotalSent      int
	TotalDelivered int
	TotalFailed    int
	TotalExpired   int
	ByType         map[types.MessageType]int
	ByAgent        map[string]int
}

// Bus is one RunContext's isolated message bus instance. It must not be
// shared across runs.
type Bus struct {
	log *log.Logger

	mu            sync.RWMutex
	agents        map[string]*agentReg
	messages      map[string]*Message
	history       []*Message
	pending       map[string]*pendingResponse
	deadLetters   []*Message
	stats         Stats
	seqCounter    uint64
	onSent        func(*Message)
	onDelivered   func(*Message)

	breaker *circuitBreaker
}

// NewBus constructs an empty bus with the default circuit-breaker thresholds
// (5 consecutive failures, 60s reset), matching the original's defaults.
func NewBus() *Bus {
	return &Bus{
		log:     log.New(os.Stderr, "[MessageBus] ", log.LstdFlags),
		agents:  make(map[string]*agentReg),
		messages: make(map[string]*Message),
		pending: make(map[string]*pendingResponse),
		stats: Stats{
			ByType:  make(map[types.MessageType]int),
			ByAgent: make(map[string]int),
		},
		breaker: newCircuitBreaker(5, 60*time.Second),
	}
}

// SetHooks installs optional observability hooks fired after a message is
// sent/delivered, for bridging onto the event stream.
func (b *Bus) SetHooks(onSent, onDelivered func(*Message)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSent = onSent
	b.onDelivered = onDelivered
}

// RegisterAgent is idempotent: calling it again for the same agent replaces
// the callback and, if subscribeTo is non-nil, the subscription set; an
// agent registered for the first time without an explicit subscription set
// gets defaultSubscriptions.
func (b *Bus) RegisterAgent(agentID string, callback Callback, subscribeTo []types.MessageType) {
	b.mu.Lock()
	reg, exists := b.agents[agentID]
	if !exists {
		reg = &agentReg{queue: newRecipientQueue(), inbox: make(chan *Message, 256)}
		b.agents[agentID] = reg
		go b.deliveryLoop(agentID, reg)
	}
	reg.callback = callback
	if subscribeTo != nil {
		reg.types = toSet(subscribeTo)
	} else if reg.types == nil {
		reg.types = toSet(defaultSubscriptions)
	}
	b.mu.Unlock()
}

func toSet(list []types.MessageType) map[types.MessageType]struct{} {
	m := make(map[types.MessageType]struct{}, len(list))
	for _, t := range list {
		m[t] = struct{}{}
	}
	return m
}

// Subscribe adds message types to an agent's subscription set.
func (b *Bus) Subscribe(agentID string, msgTypes []types.MessageType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	reg, ok := b.agents[agentID]
	if !ok {
		return
	}
	if reg.types == nil {
		reg.types = make(map[types.MessageType]struct{})
	}
	for _, t := range msgTypes {
		reg.types[t] = struct{}{}
	}
}

// Unsubscribe removes message types from an agent's subscription set, or
// clears it entirely when msgTypes is nil.
func (b *Bus) Unsubscribe(agentID string, msgTypes []types.MessageType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	reg, ok := b.agents[agentID]
	if !ok {
		return
	}
	if msgTypes == nil {
		reg.types = make(map[types.MessageType]struct{})
		return
	}
	for _, t := range msgTypes {
		delete(reg.types, t)
	}
}

// Send delivers a message to its recipient(s). For a directed message with
// waitForResponse set, it blocks (bounded by timeout) for a reply whose
// ResponseTo equals the sent message's id, returning that reply or nil on
// timeout. Broadcast sends never wait for a response even if requested.
func (b *Bus) Send(ctx context.Context, msg *Message, waitForResponse bool, timeout time.Duration) (*Message, error) {
	b.mu.Lock()
	b.seqCounter++
	msg.seq = b.seqCounter
	b.messages[msg.ID] = msg
	b.history = append(b.history, msg)
	b.stats.TotalSent++
	b.stats.ByType[msg.Type]++
	b.stats.ByAgent[msg.FromAgent]++

	recipients := b.recipientsLocked(msg)

	var waitCh chan *Message
	if waitForResponse && !msg.IsBroadcast() {
		waitCh = make(chan *Message, 1)
		b.pending[msg.ID] = &pendingResponse{ch: waitCh, timeout: timeout}
	}
	onSent := b.onSent
	b.mu.Unlock()

	if onSent != nil {
		onSent(msg)
	}

	delivered := false
	for _, r := range recipients {
		if b.breaker.IsOpen(r) {
			b.deadLetter(msg)
			continue
		}
		// Push under the bus mutex: deliveryLoop pops under the same lock.
		b.mu.Lock()
		reg := b.agents[r]
		if reg != nil {
			reg.queue.push(msg)
		}
		b.mu.Unlock()
		if reg == nil {
			continue
		}
		delivered = true
	}
	if !delivered && !msg.IsBroadcast() {
		b.mu.Lock()
		delete(b.pending, msg.ID)
		b.mu.Unlock()
		if len(recipients) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, msg.ToAgent)
		}
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, msg.ToAgent)
	}

	if waitCh == nil {
		return nil, nil
	}

	select {
	case resp := <-waitCh:
		return resp, nil
	case <-time.After(timeout):
		b.mu.Lock()
		delete(b.pending, msg.ID)
		b.mu.Unlock()
		return nil, nil
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, msg.ID)
		b.mu.Unlock()
		return nil, ctx.Err()
	}
}

// recipientsLocked must be called with b.mu held. Direct messages resolve to
// the single named recipient if registered; broadcasts resolve to every
// subscribed agent except the sender.
func (b *Bus) recipientsLocked(msg *Message) []string {
	if !msg.IsBroadcast() {
		if _, ok := b.agents[msg.ToAgent]; ok {
			return []string{msg.ToAgent}
		}
		return nil
	}
	var out []string
	for id, reg := range b.agents {
		if id == msg.FromAgent {
			continue
		}
		if _, ok := reg.types[msg.Type]; ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (b *Bus) deadLetter(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg.Status = types.DeliveryFailed
	b.deadLetters = append(b.deadLetters, msg)
}

// deliveryLoop is the single consumer goroutine for one recipient's mailbox,
// the realization of spec §4.1's "priority-then-FIFO delivery order" — the
// loop dequeues and invokes the callback one message at a time so call order
// matches queue order exactly.
func (b *Bus) deliveryLoop(agentID string, reg *agentReg) {
	for range reg.queue.notify {
		for {
			b.mu.Lock()
			msg := reg.queue.pop()
			b.mu.Unlock()
			if msg == nil {
				break
			}
			b.deliverOne(agentID, reg, msg)
		}
	}
}

func (b *Bus) deliverOne(agentID string, reg *agentReg, msg *Message) {
	if msg.IsExpired() {
		b.mu.Lock()
		msg.Status = types.DeliveryExpired
		b.stats.TotalExpired++
		b.mu.Unlock()
		return
	}

	var err error
	if reg.callback != nil {
		err = reg.callback(msg)
	}

	b.mu.Lock()
	now := time.Now()
	if err != nil {
		msg.Status = types.DeliveryFailed
		b.stats.TotalFailed++
	} else {
		msg.Status = types.DeliveryDelivered
		msg.DeliveredAt = &now
		b.stats.TotalDelivered++
	}
	onDelivered := b.onDelivered
	if msg.ResponseTo != "" {
		if pr, ok := b.pending[msg.ResponseTo]; ok {
			select {
			case pr.ch <- msg:
			default:
			}
			delete(b.pending, msg.ResponseTo)
		}
	}
	b.mu.Unlock()

	if err != nil {
		b.breaker.RecordFailure(agentID)
		b.log.Printf("callback error from %s: %v", agentID, err)
	} else {
		b.breaker.RecordSuccess(agentID)
	}
	if onDelivered != nil {
		onDelivered(msg)
	}

	select {
	case reg.inbox <- msg:
	default:
		// inbox full: pull-API consumer isn't keeping up; the push callback
		// already ran, so the message isn't lost, only unavailable to Receive.
	}
}

// Receive pulls the next message for agentID, waiting up to timeout. It
// coexists with the push-style Callback: every delivered message is both
// handed to the callback and placed on this pull-side mailbox, so agents
// that prefer polling (no callback registered) can still consume it.
func (b *Bus) Receive(ctx context.Context, agentID string, timeout time.Duration) *Message {
	b.mu.RLock()
	reg := b.agents[agentID]
	b.mu.RUnlock()
	if reg == nil {
		return nil
	}
	select {
	case m := <-reg.inbox:
		return m
	case <-time.After(timeout):
		return nil
	case <-ctx.Done():
		return nil
	}
}

// ReceiveAll drains every currently buffered message for agentID without
// blocking.
func (b *Bus) ReceiveAll(agentID string) []*Message {
	b.mu.RLock()
	reg := b.agents[agentID]
	b.mu.RUnlock()
	if reg == nil {
		return nil
	}
	var out []*Message
	for {
		select {
		case m := <-reg.inbox:
			out = append(out, m)
		default:
			return out
		}
	}
}

// Broadcast is a convenience wrapper around Send with no recipient.
func (b *Bus) Broadcast(ctx context.Context, from string, msgType types.MessageType, subject string, payload map[string]types.JSONValue, priority types.Priority) error {
	msg := NewMessage(from, "", msgType, priority, subject, payload)
	_, err := b.Send(ctx, msg, false, 0)
	return err
}

// RequestResponse sends a directed message with RequiresResponse set and
// waits for a reply.
func (b *Bus) RequestResponse(ctx context.Context, from, to string, msgType types.MessageType, subject string, payload map[string]types.JSONValue, timeout time.Duration) (*Message, error) {
	msg := NewMessage(from, to, msgType, types.PriorityHigh, subject, payload)
	msg.RequiresResponse = true
	return b.Send(ctx, msg, true, timeout)
}

// Acknowledge flips a message's status to ACKNOWLEDGED.
func (b *Bus) Acknowledge(messageID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.messages[messageID]; ok {
		now := time.Now()
		m.Status = types.DeliveryAcknowledged
		m.DeliveredAt = &now
	}
}

// GetConversation returns every message sharing a conversation id, in send order.
func (b *Bus) GetConversation(conversationID string) []*Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*Message
	for _, m := range b.history {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out
}

// GetMessagesByType returns every message of the given type, in send order.
func (b *Bus) GetMessagesByType(t types.MessageType) []*Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*Message
	for _, m := range b.history {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// GetAgentMessages returns messages sent and/or received by agentID, most
// recent first, capped at limit.
func (b *Bus) GetAgentMessages(agentID string, sent, received bool, limit int) []*Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*Message
	for i := len(b.history) - 1; i >= 0 && len(out) < limit; i-- {
		m := b.history[i]
		if (sent && m.FromAgent == agentID) || (received && m.ToAgent == agentID) {
			out = append(out, m)
		}
	}
	return out
}

// GetStats returns a snapshot of the bus's delivery counters.
func (b *Bus) GetStats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	byType := make(map[types.MessageType]int, len(b.stats.ByType))
	for k, v := range b.stats.ByType {
		byType[k] = v
	}
	byAgent := make(map[string]int, len(b.stats.ByAgent))
	for k, v := range b.stats.ByAgent {
		byAgent[k] = v
	}
	return Stats{
		TotalSent:      b.stats.TotalSent,
		TotalDelivered: b.stats.TotalDelivered,
		TotalFailed:    b.stats.TotalFailed,
		TotalExpired:   b.stats.TotalExpired,
		ByType:         byType,
		ByAgent:        byAgent,
	}
}

// GetDeadLetters returns every message that was dead-lettered.
func (b *Bus) GetDeadLetters() []*Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Message, len(b.deadLetters))
	copy(out, b.deadLetters)
	return out
}

// ClearDeadLetters empties the dead-letter list.
func (b *Bus) ClearDeadLetters() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deadLetters = nil
}

// ClearHistory empties the message history (messages map is retained for
// conversation/ack lookups already in flight).
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}

// Reset clears all bus state back to a fresh instance's shape.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.agents = make(map[string]*agentReg)
	b.messages = make(map[string]*Message)
	b.history = nil
	b.pending = make(map[string]*pendingResponse)
	b.deadLetters = nil
	b.stats = Stats{ByType: make(map[types.MessageType]int), ByAgent: make(map[string]int)}
	b.seqCounter = 0
}
