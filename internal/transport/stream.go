package transport

import (
	"encoding/json"
	"sync"
	"time"
)

// FrameType is the event-stream frame kind delivered over a run's WebSocket,
// grounded on the inward API's event stream contract.
type FrameType string

const (
	FrameAgentStatus         FrameType = "AGENT_STATUS"
	FrameAgentInsight        FrameType = "AGENT_INSIGHT"
	FrameAgentProgress       FrameType = "AGENT_PROGRESS"
	FrameAnalysisComplete    FrameType = "ANALYSIS_COMPLETE"
	FrameError               FrameType = "ERROR"
	FrameSwarmEvent          FrameType = "SWARM_EVENT"
	FrameCollaborationUpdate FrameType = "COLLABORATION_UPDATE"
	FrameAgentMessage        FrameType = "AGENT_MESSAGE"
)

// Frame is one event-stream message: a type, a payload, and a UTC
// ISO-8601 timestamp (time.Time's default JSON encoding).
type Frame struct {
	Type      FrameType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// streamHub fans one run's frames out to every WebSocket client currently
// subscribed to it, adapted from the reference's per-process Hub but scoped
// to a single run so each analysis gets its own broadcast channel set.
type streamHub struct {
	mu      sync.RWMutex
	clients map[chan []byte]bool
}

func newStreamHub() *streamHub {
	return &streamHub{clients: make(map[chan []byte]bool)}
}

func (h *streamHub) subscribe() chan []byte {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	h.clients[ch] = true
	h.mu.Unlock()
	return ch
}

func (h *streamHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	if h.clients[ch] {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *streamHub) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default: // slow client: drop rather than block the run.
		}
	}
}

func (h *streamHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		close(ch)
		delete(h.clients, ch)
	}
}
