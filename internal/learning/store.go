package learning

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/brandista/swarm/internal/types"
)

// trendWindow is how many of an agent's most recent verified predictions
// feed the trend computation, and minTrendSample is the minimum count
// required before a trend is computed at all, matching the original's
// recent[-20:] / len(recent) >= 10 thresholds.
const (
	trendWindow    = 20
	minTrendSample = 10
	trendSwing     = 0.1
	maxRulesPerAgent = 50
)

// Store tracks and learns from agent predictions for one run.
type Store struct {
	log *log.Logger

	mu         sync.Mutex
	predictions map[string]*Prediction
	verified    []*Prediction
	stats       map[string]*Stats
	rules       map[string][]Rule
	counter     int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		log:         log.New(os.Stderr, "[Learning] ", log.LstdFlags),
		predictions: make(map[string]*Prediction),
		stats:       make(map[string]*Stats),
		rules:       make(map[string][]Rule),
	}
}

// LogPrediction records a prediction for later verification and returns its id.
func (s *Store) LogPrediction(agentID, predictionType string, predictedValue types.JSONValue, confidence float64, context map[string]types.JSONValue) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id := fmt.Sprintf("pred_%s_%d", agentID, s.counter)
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	p := &Prediction{
		ID: id, AgentID: agentID, PredictionType: predictionType,
		PredictedValue: predictedValue, Confidence: confidence,
		Context: context, CreatedAt: time.Now(),
	}
	s.predictions[id] = p

	st, ok := s.stats[agentID]
	if !ok {
		st = &Stats{AgentID: agentID, ByType: make(map[string]*TypeStats), Trend: "stable"}
		s.stats[agentID] = st
	}
	st.TotalPredictions++
	return id
}

// VerifyPrediction checks a logged prediction against the actual outcome,
// updates the agent's stats and learned rules, and returns whether it was
// judged correct. Returns (false, false) if predictionID is unknown.
func (s *Store) VerifyPrediction(predictionID string, actualValue types.JSONValue) (wasCorrect bool, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.predictions[predictionID]
	if !ok {
		return false, false
	}
	now := time.Now()
	p.ActualValue = actualValue
	p.VerifiedAt = &now

	correct, margin := evaluateCorrectness(p.PredictedValue, actualValue)
	p.WasCorrect = &correct
	p.ErrorMargin = margin

	s.verified = append(s.verified, p)
	s.updateStatsLocked(p)
	s.learnFromPredictionLocked(p)

	s.log.Printf("verified %s: correct=%v", predictionID, correct)
	return correct, true
}

func (s *Store) updateStatsLocked(p *Prediction) {
	st, ok := s.stats[p.AgentID]
	if !ok {
		return
	}
	if *p.WasCorrect {
		st.CorrectPredictions++
	}

	var verifiedForAgent []*Prediction
	for _, v := range s.verified {
		if v.AgentID == p.AgentID {
			verifiedForAgent = append(verifiedForAgent, v)
		}
	}
	if len(verifiedForAgent) > 0 {
		st.Accuracy = float64(st.CorrectPredictions) / float64(len(verifiedForAgent))
		var sumConf float64
		for _, v := range verifiedForAgent {
			sumConf += v.Confidence
		}
		st.AvgConfidence = sumConf / float64(len(verifiedForAgent))
	}
	st.CalibrationError = absFloat(st.Accuracy - st.AvgConfidence)

	ts, ok := st.ByType[p.PredictionType]
	if !ok {
		ts = &TypeStats{}
		st.ByType[p.PredictionType] = ts
	}
	ts.Total++
	if *p.WasCorrect {
		ts.Correct++
	}
	ts.Accuracy = float64(ts.Correct) / float64(ts.Total)

	st.Trend = computeTrend(verifiedForAgent)
}

// computeTrend mirrors the original's recent[-20:] halves-comparison: with
// fewer than minTrendSample recent verified predictions the trend holds at
// "stable" rather than reacting to noise.
func computeTrend(verifiedForAgent []*Prediction) string {
	n := len(verifiedForAgent)
	start := 0
	if n > trendWindow {
		start = n - trendWindow
	}
	recent := verifiedForAgent[start:]
	if len(recent) < minTrendSample {
		return "stable"
	}
	mid := len(recent) / 2
	firstAcc := accuracyOf(recent[:mid])
	secondAcc := accuracyOf(recent[mid:])
	switch {
	case secondAcc > firstAcc+trendSwing:
		return "improving"
	case secondAcc < firstAcc-trendSwing:
		return "declining"
	default:
		return "stable"
	}
}

func accuracyOf(preds []*Prediction) float64 {
	if len(preds) == 0 {
		return 0
	}
	correct := 0
	for _, p := range preds {
		if p.WasCorrect != nil && *p.WasCorrect {
			correct++
		}
	}
	return float64(correct) / float64(len(preds))
}

func (s *Store) learnFromPredictionLocked(p *Prediction) {
	if len(p.Context) == 0 || (p.WasCorrect != nil && *p.WasCorrect) {
		return
	}
	rule := Rule{
		Type: "avoid", PredictionType: p.PredictionType, ContextPattern: p.Context,
		Reason:    fmt.Sprintf("predicted %v, actual was %v", p.PredictedValue, p.ActualValue),
		CreatedAt: time.Now(),
	}
	list := append(s.rules[p.AgentID], rule)
	if len(list) > maxRulesPerAgent {
		list = list[len(list)-maxRulesPerAgent:]
	}
	s.rules[p.AgentID] = list
}

// ShouldAdjustConfidence reports whether an agent's confidence for a
// prediction type should be scaled, and by what factor, based on its
// calibration history. Mirrors the original's three-tier check: per-type
// accuracy (>=5 samples) first, then overall calibration error (>=10
// samples) as a fallback.
func (s *Store) ShouldAdjustConfidence(agentID, predictionType string) (adjust bool, factor float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[agentID]
	if !ok {
		return false, 1.0
	}
	if ts, ok := st.ByType[predictionType]; ok && ts.Total >= 5 {
		switch {
		case ts.Accuracy < 0.5:
			return true, 0.7
		case ts.Accuracy > 0.9:
			return true, 1.1
		}
	}
	if st.CalibrationError > 0.2 && st.TotalPredictions >= 10 && st.AvgConfidence > st.Accuracy {
		return true, 0.85
	}
	return false, 1.0
}

// GetAgentStats returns a snapshot of an agent's stats, or nil if unknown.
func (s *Store) GetAgentStats(agentID string) *Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[agentID]
	if !ok {
		return nil
	}
	cp := *st
	cp.ByType = make(map[string]*TypeStats, len(st.ByType))
	for k, v := range st.ByType {
		vv := *v
		cp.ByType[k] = &vv
	}
	return &cp
}

// GetLearnedRules returns the learned "avoid" rules for an agent.
func (s *Store) GetLearnedRules(agentID string) []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Rule(nil), s.rules[agentID]...)
}

// AgentSummary is the compact per-agent view returned by GetAllStats.
type AgentSummary struct {
	Total            int     `json:"total"`
	Correct          int     `json:"correct"`
	Accuracy         float64 `json:"accuracy"`
	CalibrationError float64 `json:"calibration_error"`
	Trend            string  `json:"trend"`
}

// GetAllStats returns the run-wide prediction tally and a per-agent summary.
func (s *Store) GetAllStats() (totalPredictions, totalVerified int, agents map[string]AgentSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agents = make(map[string]AgentSummary, len(s.stats))
	for id, st := range s.stats {
		totalPredictions += st.TotalPredictions
		agents[id] = AgentSummary{
			Total: st.TotalPredictions, Correct: st.CorrectPredictions,
			Accuracy: round3(st.Accuracy), CalibrationError: round3(st.CalibrationError),
			Trend: st.Trend,
		}
	}
	return totalPredictions, len(s.verified), agents
}

// Reset clears all predictions, stats, and learned rules.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions = make(map[string]*Prediction)
	s.verified = nil
	s.stats = make(map[string]*Stats)
	s.rules = make(map[string][]Rule)
	s.counter = 0
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}
