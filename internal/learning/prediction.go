// Package learning implements prediction logging, verification, and
// confidence calibration for agents, grounded on
// original_source/agents/learning.py's LearningSystem: predictions are
// logged with a confidence, later verified against an actual outcome using
// a type-specific correctness rule, and the resulting accuracy/calibration
// history feeds back into a calibration suggestion agents can apply to
// future predictions of the same type.
package learning

import (
	"time"

	"github.com/brandista/swarm/internal/types"
)

// Prediction is one agent's logged guess, later verified against reality.
type Prediction struct {
	ID              string                     `json:"prediction_id"`
	AgentID         string                     `json:"agent_id"`
	PredictionType  string                     `json:"prediction_type"`
	PredictedValue  types.JSONValue            `json:"predicted_value"`
	ActualValue     types.JSONValue            `json:"actual_value,omitempty"`
	Confidence      float64                    `json:"confidence"`
	Context         map[string]types.JSONValue `json:"context,omitempty"`
	CreatedAt       time.Time                  `json:"created_at"`
	VerifiedAt      *time.Time                 `json:"verified_at,omitempty"`
	WasCorrect      *bool                      `json:"was_correct,omitempty"`
	ErrorMargin     *float64                   `json:"error_margin,omitempty"`
}

// TypeStats tallies predictions of one type for one agent.
type TypeStats struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// Stats is the running learning profile for a single agent. Trend is a
// supplement over the original's upstream LearningStats dataclass field —
// present there but computed identically here — summarizing whether the
// agent's most recent predictions are improving, declining, or stable.
type Stats struct {
	AgentID            string                `json:"agent_id"`
	TotalPredictions   int                   `json:"total_predictions"`
	CorrectPredictions int                   `json:"correct_predictions"`
	Accuracy           float64               `json:"accuracy"`
	AvgConfidence      float64               `json:"avg_confidence"`
	CalibrationError   float64               `json:"calibration_error"`
	ByType             map[string]*TypeStats `json:"by_type"`
	Trend              string                `json:"trend"` // improving | declining | stable
}

// Rule is a learned "avoid this context" note derived from an incorrect
// prediction.
type Rule struct {
	Type             string                     `json:"type"`
	PredictionType   string                     `json:"prediction_type"`
	ContextPattern   map[string]types.JSONValue `json:"context_pattern"`
	Reason           string                     `json:"reason"`
	CreatedAt        time.Time                  `json:"created_at"`
}
