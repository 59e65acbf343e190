package transport

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/brandista/swarm/internal/orchestrator"
	"github.com/brandista/swarm/internal/runcontext"
	"github.com/brandista/swarm/internal/types"
	"github.com/brandista/swarm/internal/validate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// createRunBody is POST /runs's request body per the validation contract.
type createRunBody struct {
	URL             string   `json:"url"`
	Competitors     []string `json:"competitors,omitempty"`
	Language        string   `json:"language"`
	IndustryContext string   `json:"industry_context,omitempty"`
	UserID          string   `json:"user_id,omitempty"`
	RevenueInput    float64  `json:"revenue_input,omitempty"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var body createRunBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	norm, err := validate.AnalysisRequest(validate.Request{
		URL:             body.URL,
		CompetitorURLs:  body.Competitors,
		Language:        body.Language,
		IndustryContext: body.IndustryContext,
		UserID:          body.UserID,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rc := runcontext.Create(norm.UserID, nil, false, nil)
	if s.notify != nil || s.notifyMgr != nil {
		rc.SetNotifications(s.notify, s.notifyMgr)
	}
	if s.bridge != nil {
		rc.SetNatsBridge(s.bridge)
	}
	hub := newStreamHub()
	s.mu.Lock()
	s.streams[rc.RunID] = hub
	s.mu.Unlock()

	rc.SetCallbacks(
		func(runID, agentID string, progress float64, message string) {
			hub.broadcast(Frame{Type: FrameAgentProgress, Timestamp: time.Now().UTC(),
				Data: map[string]interface{}{"agent_id": agentID, "progress": progress, "message": message}})
		},
		func(runID, agentID, agentName string) {
			hub.broadcast(Frame{Type: FrameAgentStatus, Timestamp: time.Now().UTC(),
				Data: map[string]interface{}{"agent_id": agentID, "agent_name": agentName, "status": "started"}})
		},
		func(runID, agentID string, result types.AgentResult) {
			hub.broadcast(Frame{Type: FrameAgentStatus, Timestamp: time.Now().UTC(), Data: result})
		},
		func(runID, agentID string, insight types.AgentInsight) {
			hub.broadcast(Frame{Type: FrameAgentInsight, Timestamp: time.Now().UTC(), Data: insight})
		},
	)

	req := orchestrator.Request{
		URL: norm.URL, CompetitorURLs: norm.CompetitorURLs, Language: norm.Language,
		IndustryContext: norm.IndustryContext, UserID: norm.UserID, RevenueInput: body.RevenueInput,
		RunContext: rc,
	}
	go s.runAndPersist(req, rc, hub)

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": rc.RunID})
}

func (s *Server) runAndPersist(req orchestrator.Request, rc *runcontext.RunContext, hub *streamHub) {
	defer func() {
		s.mu.Lock()
		delete(s.streams, rc.RunID)
		s.mu.Unlock()
		hub.closeAll()
	}()

	result, err := s.orch.RunAnalysis(context.Background(), req)
	frame := Frame{Timestamp: time.Now().UTC()}
	if err != nil {
		frame.Type = FrameError
		frame.Data = map[string]string{"error": err.Error()}
	} else {
		frame.Type = FrameAnalysisComplete
		frame.Data = result
	}
	hub.broadcast(frame)

	if s.store == nil {
		return
	}
	status := types.RunCompleted
	if err != nil || !result.Success {
		status = types.RunFailed
	}
	completed := time.Now()
	if serr := s.store.SaveRun(rc.RunID, req.UserID, req.URL, status, &result, rc.CreatedAt, &completed); serr != nil {
		log.Printf("[transport] persist run %s: %v", rc.RunID, serr)
	}
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if rc := runcontext.GetByID(id); rc != nil {
		writeJSON(w, http.StatusOK, rc.GetState())
		return
	}
	if s.store != nil {
		if rec, err := s.store.GetRun(id); err == nil && rec != nil {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeError(w, http.StatusNotFound, "run not found")
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rc := runcontext.GetByID(id)
	if rc == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	rc.Cancel("api request")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence not configured")
		return
	}
	since := int64(parseIntQuery(r, "since", 0))
	limit := parseIntQuery(r, "limit", 100)
	events, err := s.store.GetEvents(id, since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"run_id": id, "events": events})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	hub, ok := s.streams[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "run not found or already finished")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[transport] upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch := hub.subscribe()
	defer hub.unsubscribe(ch)

	// Drain and discard client frames; the stream is server-to-client only.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for data := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
