// Package postgres stores run history in Postgres.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dbtalk/dbtalk/internal/history"
)

const recordColumns = `run_seq, run_id, question, sql_text, answer, status, failed_stage, degraded, sql_model, answer_model, duration_ms, created_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var (
	_ history.Recorder = (*Repository)(nil)
	_ history.Reader   = (*Repository)(nil)
)

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

func (r *Repository) Record(ctx context.Context, record history.Record) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
INSERT INTO dbtalk_run (run_id, question, sql_text, answer, status, failed_stage, degraded, sql_model, answer_model, duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (run_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query,
		record.RunID,
		record.Question,
		record.SQL,
		record.Answer,
		string(record.Status),
		record.FailedStage,
		record.Degraded,
		record.SQLModel,
		record.AnswerModel,
		record.DurationMs,
		createdAt,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", record.RunID, err)
	}
	return nil
}

// ListRecent returns the newest records first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]history.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM dbtalk_run
ORDER BY run_seq DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	return scanRecords(rows)
}

// ListAfter returns records with a sequence greater than afterSeq, oldest first.
func (r *Repository) ListAfter(ctx context.Context, afterSeq int64, limit int) ([]history.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM dbtalk_run
WHERE run_seq > $1
ORDER BY run_seq ASC
LIMIT $2`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs after %d: %w", afterSeq, err)
	}
	return scanRecords(rows)
}

// Watermark returns the last archived sequence for name, zero when unset.
func (r *Repository) Watermark(ctx context.Context, name string) (int64, error) {
	var lastSeq int64
	err := r.db.QueryRowContext(ctx, `
SELECT last_seq
FROM dbtalk_archive_watermark
WHERE name = $1`, name).Scan(&lastSeq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get archive watermark %q: %w", name, err)
	}
	return lastSeq, nil
}

// SetWatermark only moves the watermark forward.
func (r *Repository) SetWatermark(ctx context.Context, name string, lastSeq int64) error {
	query := `
INSERT INTO dbtalk_archive_watermark (name, last_seq, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (name)
DO UPDATE SET last_seq = GREATEST(dbtalk_archive_watermark.last_seq, EXCLUDED.last_seq), updated_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, name, lastSeq); err != nil {
		return fmt.Errorf("set archive watermark %q: %w", name, err)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]history.Record, error) {
	defer func() { _ = rows.Close() }()

	records := make([]history.Record, 0)
	for rows.Next() {
		var record history.Record
		var status string
		if err := rows.Scan(
			&record.Seq,
			&record.RunID,
			&record.Question,
			&record.SQL,
			&record.Answer,
			&status,
			&record.FailedStage,
			&record.Degraded,
			&record.SQLModel,
			&record.AnswerModel,
			&record.DurationMs,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		record.Status = history.Status(status)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return records, nil
}
