package messagebus

import (
	"time"

	"github.com/google/uuid"

	"github.com/brandista/swarm/internal/types"
)

// Message is one unit of inter-agent communication.
type Message struct {
	ID              string
	FromAgent       string
	ToAgent         string // empty => broadcast
	Type            types.MessageType
	Priority        types.Priority
	Subject         string
	Payload         map[string]types.JSONValue
	CreatedAt       time.Time
	ExpiresAt       *time.Time
	RequiresResponse bool
	ResponseTo      string
	ConversationID  string
	CorrelationID   string
	Tags            map[string]struct{}
	Status          types.DeliveryStatus
	DeliveredAt     *time.Time
	RetryCount      int

	seq uint64 // assigned by the bus at enqueue time, breaks priority ties
}

// NewMessage builds a Message with a fresh id and PENDING status.
func NewMessage(from, to string, msgType types.MessageType, priority types.Priority, subject string, payload map[string]types.JSONValue) *Message {
	return &Message{
		ID:        uuid.New().String(),
		FromAgent: from,
		ToAgent:   to,
		Type:      msgType,
		Priority:  priority,
		Subject:   subject,
		Payload:   payload,
		CreatedAt: time.Now(),
		Tags:      map[string]struct{}{},
		Status:    types.DeliveryPending,
	}
}

// IsBroadcast reports whether the message has no single recipient.
func (m *Message) IsBroadcast() bool { return m.ToAgent == "" }

// IsExpired reports whether the message has passed its expiry time.
func (m *Message) IsExpired() bool {
	return m.ExpiresAt != nil && time.Now().After(*m.ExpiresAt)
}

// CreateResponse builds a reply message linked back to this one via
// ResponseTo/ConversationID, mirroring the original's create_response helper.
func (m *Message) CreateResponse(from string, payload map[string]types.JSONValue, msgType types.MessageType) *Message {
	if msgType == "" {
		msgType = types.MessageResponse
	}
	conv := m.ConversationID
	if conv == "" {
		conv = m.ID
	}
	resp := NewMessage(from, m.FromAgent, msgType, m.Priority, "re: "+m.Subject, payload)
	resp.ResponseTo = m.ID
	resp.ConversationID = conv
	return resp
}
