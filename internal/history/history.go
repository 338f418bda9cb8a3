// Package history keeps an audit trail of answered questions. Records are
// written after a run finishes and are never fed back into prompts.
package history

import (
	"context"
	"time"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Record struct {
	Seq         int64     `json:"seq,omitempty"`
	RunID       string    `json:"run_id"`
	Question    string    `json:"question"`
	SQL         string    `json:"sql,omitempty"`
	Answer      string    `json:"answer,omitempty"`
	Status      Status    `json:"status"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Degraded    bool      `json:"degraded"`
	SQLModel    string    `json:"sql_model"`
	AnswerModel string    `json:"answer_model"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

type Recorder interface {
	Record(ctx context.Context, record Record) error
}

type Reader interface {
	ListRecent(ctx context.Context, limit int) ([]Record, error)
	ListAfter(ctx context.Context, afterSeq int64, limit int) ([]Record, error)
}

// Noop discards every record.
type Noop struct{}

func (Noop) Record(context.Context, Record) error { return nil }

// ClampLimit bounds list sizes requested by callers.
func ClampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
