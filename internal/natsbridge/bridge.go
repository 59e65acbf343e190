package natsbridge

import (
	"fmt"
	"log"
	"time"

	"github.com/brandista/swarm/internal/types"
)

// Bridge mirrors swarm events onto NATS subjects shaped
// swarm.<run_id>.<event_type>, optionally backed by an embedded server it
// owns.
type Bridge struct {
	embedded *EmbeddedServer
	client   *Client
}

// Connect dials an existing NATS deployment at url.
func Connect(url string) (*Bridge, error) {
	client, err := NewClient(url)
	if err != nil {
		return nil, err
	}
	return &Bridge{client: client}, nil
}

// StartEmbedded starts an in-process NATS server on port (0 for an
// OS-assigned port) and connects to it.
func StartEmbedded(port int) (*Bridge, error) {
	srv, err := NewEmbeddedServer(EmbeddedServerConfig{Port: port})
	if err != nil {
		return nil, err
	}
	if err := srv.Start(); err != nil {
		return nil, err
	}
	client, err := NewClient(srv.URL())
	if err != nil {
		srv.Shutdown()
		return nil, err
	}
	return &Bridge{embedded: srv, client: client}, nil
}

// Close disconnects the client and, if this bridge owns an embedded
// server, shuts it down too.
func (b *Bridge) Close() {
	if b.client != nil {
		b.client.Close()
	}
	if b.embedded != nil {
		b.embedded.Shutdown()
	}
}

// URL returns the embedded server's connection URL, or "" when this
// bridge connected to an externally managed deployment.
func (b *Bridge) URL() string {
	if b.embedded == nil {
		return ""
	}
	return b.embedded.URL()
}

func (b *Bridge) publish(runID, eventType string, payload interface{}) {
	subject := fmt.Sprintf("swarm.%s.%s", runID, eventType)
	if err := b.client.PublishJSON(subject, payload); err != nil {
		log.Printf("[natsbridge] %v", err)
	}
}

// insightEnvelope is the wire shape published for PublishInsight.
type insightEnvelope struct {
	AgentID   string                     `json:"agent_id"`
	Kind      types.InsightType          `json:"kind"`
	Priority  types.Priority             `json:"priority"`
	Message   string                     `json:"message"`
	Data      map[string]types.JSONValue `json:"data,omitempty"`
	Timestamp time.Time                  `json:"timestamp"`
}

// PublishInsight mirrors an agent insight onto
// swarm.<run_id>.insight.<kind>.
func (b *Bridge) PublishInsight(runID string, insight types.AgentInsight) {
	if b == nil || b.client == nil {
		return
	}
	b.publish(runID, "insight."+string(insight.Kind), insightEnvelope{
		AgentID: insight.AgentID, Kind: insight.Kind, Priority: insight.Priority,
		Message: insight.Message, Data: insight.Data, Timestamp: insight.Timestamp,
	})
}

// PublishLifecycle mirrors a run lifecycle transition onto
// swarm.<run_id>.lifecycle.<subject>.
func (b *Bridge) PublishLifecycle(runID, subject string, data map[string]interface{}) {
	if b == nil || b.client == nil {
		return
	}
	b.publish(runID, "lifecycle."+subject, data)
}
