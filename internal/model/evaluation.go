package model

import (
	"math"
	"time"
)

const (
	MinScore = 0.0
	MaxScore = 10.0
)

type Evaluation struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id" validate:"required"`
	EvaluatorID string    `json:"evaluator_id" validate:"required"`
	Score       float64   `json:"score"`
	Comment     *string   `json:"comment,omitempty"`
	Date        time.Time `json:"date"`
}

// ValidScore reports whether s lies within [MinScore, MaxScore].
func ValidScore(s float64) bool {
	return !math.IsNaN(s) && s >= MinScore && s <= MaxScore
}

// EvaluationPatch lists the fields an evaluation update may change. Nil fields are
// left as is; an empty Comment clears the stored one.
type EvaluationPatch struct {
	Score   *float64   `json:"score,omitempty"`
	Comment *string    `json:"comment,omitempty"`
	Date    *time.Time `json:"date,omitempty"`
}

func (p *EvaluationPatch) Empty() bool {
	return p.Score == nil && p.Comment == nil && p.Date == nil
}
