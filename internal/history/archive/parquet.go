package archive

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/dbtalk/dbtalk/internal/history"
)

type EncodeResult struct {
	Data        []byte
	RecordCount int
	FirstSeq    int64
	LastSeq     int64
}

type parquetRun struct {
	Seq             int64  `parquet:"run_seq"`
	RunID           string `parquet:"run_id"`
	Question        string `parquet:"question"`
	SQL             string `parquet:"sql_text"`
	Answer          string `parquet:"answer"`
	Status          string `parquet:"status"`
	FailedStage     string `parquet:"failed_stage"`
	Degraded        bool   `parquet:"degraded"`
	SQLModel        string `parquet:"sql_model"`
	AnswerModel     string `parquet:"answer_model"`
	DurationMs      int64  `parquet:"duration_ms"`
	CreatedAtUnixMs int64  `parquet:"created_at_unix_ms"`
}

// Encode writes records, which must be ordered by sequence, as one Parquet file.
func Encode(records []history.Record) (EncodeResult, error) {
	if len(records) == 0 {
		return EncodeResult{}, fmt.Errorf("records are required")
	}

	rows := make([]parquetRun, 0, len(records))
	for i, record := range records {
		if i > 0 && record.Seq <= records[i-1].Seq {
			return EncodeResult{}, fmt.Errorf("records out of order at seq %d", record.Seq)
		}
		rows = append(rows, parquetRun{
			Seq:             record.Seq,
			RunID:           record.RunID,
			Question:        record.Question,
			SQL:             record.SQL,
			Answer:          record.Answer,
			Status:          string(record.Status),
			FailedStage:     record.FailedStage,
			Degraded:        record.Degraded,
			SQLModel:        record.SQLModel,
			AnswerModel:     record.AnswerModel,
			DurationMs:      record.DurationMs,
			CreatedAtUnixMs: record.CreatedAt.UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetRun](buf)
	if _, err := writer.Write(rows); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return EncodeResult{
		Data:        buf.Bytes(),
		RecordCount: len(rows),
		FirstSeq:    records[0].Seq,
		LastSeq:     records[len(records)-1].Seq,
	}, nil
}

func Decode(data []byte) ([]history.Record, error) {
	rows, err := parquet.Read[parquetRun](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	records := make([]history.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, history.Record{
			Seq:         row.Seq,
			RunID:       row.RunID,
			Question:    row.Question,
			SQL:         row.SQL,
			Answer:      row.Answer,
			Status:      history.Status(row.Status),
			FailedStage: row.FailedStage,
			Degraded:    row.Degraded,
			SQLModel:    row.SQLModel,
			AnswerModel: row.AnswerModel,
			DurationMs:  row.DurationMs,
			CreatedAt:   time.UnixMilli(row.CreatedAtUnixMs).UTC(),
		})
	}
	return records, nil
}
