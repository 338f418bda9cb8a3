// Package archive exports run history to Parquet files in object storage and
// queries them back with DuckDB.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dbtalk/dbtalk/internal/history"
	"github.com/dbtalk/dbtalk/internal/observability"
	"github.com/dbtalk/dbtalk/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

// Source is the run history store the archiver reads from.
type Source interface {
	ListAfter(ctx context.Context, afterSeq int64, limit int) ([]history.Record, error)
	Watermark(ctx context.Context, name string) (int64, error)
	SetWatermark(ctx context.Context, name string, lastSeq int64) error
}

type Config struct {
	Interval      time.Duration
	BatchSize     int
	WatermarkName string
}

type Service struct {
	Source Source
	Store  storage.ObjectStore
	Config Config
	Logger *slog.Logger
	Clock  func() time.Time
}

type Summary struct {
	Records  int    `json:"records"`
	FirstSeq int64  `json:"first_seq,omitempty"`
	LastSeq  int64  `json:"last_seq,omitempty"`
	Key      string `json:"key,omitempty"`
	Bytes    int64  `json:"bytes,omitempty"`
}

// Run archives one batch per tick until ctx is done. A full batch is followed
// immediately by another so a backlog drains without waiting for the ticker.
func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	ticker := time.NewTicker(s.Config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				summary, err := s.RunOnce(ctx)
				if err != nil {
					s.Logger.ErrorContext(ctx, "archive cycle failed", slog.Any("error", err))
					break
				}
				if summary.Records > 0 {
					s.Logger.InfoContext(ctx, "archive cycle completed", slog.Any("summary", summary))
				}
				if summary.Records < s.Config.BatchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// RunOnce exports the next batch of records after the watermark and advances
// it. The watermark only moves after the object has been written; a file left
// by a failed watermark update is reused, not written again.
func (s *Service) RunOnce(ctx context.Context) (Summary, error) {
	s.ensureDefaults()
	if s.Source == nil {
		return Summary{}, fmt.Errorf("history source is required")
	}
	if s.Store == nil {
		return Summary{}, fmt.Errorf("object store is required")
	}
	if err := storage.ValidatePathComponent(s.Config.WatermarkName, "watermark name"); err != nil {
		return Summary{}, err
	}

	lastSeq, err := s.Source.Watermark(ctx, s.Config.WatermarkName)
	if err != nil {
		return Summary{}, err
	}
	records, err := s.Source.ListAfter(ctx, lastSeq, s.Config.BatchSize)
	if err != nil {
		return Summary{}, err
	}
	if len(records) == 0 {
		return Summary{}, nil
	}

	day := records[0].CreatedAt
	if day.IsZero() {
		day = s.Clock()
	}
	existing, found, err := s.findArchived(ctx, day, records[0].Seq)
	if err != nil {
		return Summary{}, err
	}
	if found {
		return s.resume(ctx, existing, records)
	}

	encoded, err := Encode(records)
	if err != nil {
		return Summary{}, err
	}
	key, err := storage.BuildArchivePath(day, encoded.FirstSeq, encoded.LastSeq)
	if err != nil {
		return Summary{}, err
	}
	if _, err := s.Store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: parquetContentType}); err != nil {
		return Summary{}, err
	}
	if err := s.Source.SetWatermark(ctx, s.Config.WatermarkName, encoded.LastSeq); err != nil {
		return Summary{}, fmt.Errorf("advance watermark after writing %s: %w", key, err)
	}
	observability.AddArchivedRecords(encoded.RecordCount)

	return Summary{
		Records:  encoded.RecordCount,
		FirstSeq: encoded.FirstSeq,
		LastSeq:  encoded.LastSeq,
		Key:      key,
		Bytes:    int64(len(encoded.Data)),
	}, nil
}

// findArchived looks for a file in day's partition that starts at firstSeq,
// left behind by a cycle whose watermark update failed.
func (s *Service) findArchived(ctx context.Context, day time.Time, firstSeq int64) (archivedFile, bool, error) {
	objects, err := s.Store.List(ctx, storage.ArchiveDayPrefix(day))
	if err != nil {
		return archivedFile{}, false, err
	}
	for _, object := range objects {
		first, last, err := storage.ParseArchivePath(object.Key)
		if err != nil {
			continue
		}
		if first == firstSeq {
			return archivedFile{ObjectInfo: object, LastSeq: last}, true, nil
		}
	}
	return archivedFile{}, false, nil
}

// resume advances the watermark past an already written file instead of
// writing its runs a second time.
func (s *Service) resume(ctx context.Context, existing archivedFile, records []history.Record) (Summary, error) {
	count := 0
	for _, record := range records {
		if record.Seq <= existing.LastSeq {
			count++
		}
	}
	if err := s.Source.SetWatermark(ctx, s.Config.WatermarkName, existing.LastSeq); err != nil {
		return Summary{}, fmt.Errorf("advance watermark to existing %s: %w", existing.Key, err)
	}
	s.Logger.InfoContext(ctx, "archive file already written, watermark advanced", slog.String("key", existing.Key), slog.Int64("last_seq", existing.LastSeq))
	observability.AddArchivedRecords(count)

	return Summary{
		Records:  count,
		FirstSeq: records[0].Seq,
		LastSeq:  existing.LastSeq,
		Key:      existing.Key,
		Bytes:    existing.Size,
	}, nil
}

type archivedFile struct {
	storage.ObjectInfo
	LastSeq int64
}

// List returns every archive file, oldest partition first.
func (s *Service) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	if s.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	objects, err := s.Store.List(ctx, storage.ArchiveRoot+"/")
	if err != nil {
		return nil, err
	}
	files := make([]storage.ObjectInfo, 0, len(objects))
	for _, object := range objects {
		if strings.HasSuffix(object.Key, ".parquet") {
			files = append(files, object)
		}
	}
	return files, nil
}

// Load reads the records stored in one archive file.
func (s *Service) Load(ctx context.Context, key string) ([]history.Record, error) {
	if s.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	reader, err := s.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read archive %q: %w", key, err)
	}
	return Decode(data)
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = observability.DiscardLogger()
	}
	if s.Config.Interval <= 0 {
		s.Config.Interval = time.Hour
	}
	if s.Config.BatchSize <= 0 {
		s.Config.BatchSize = 5000
	}
	if s.Config.WatermarkName == "" {
		s.Config.WatermarkName = "history"
	}
}
