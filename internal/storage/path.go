package storage

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"time"
)

// ArchiveRoot is the key prefix of every run history archive file.
const ArchiveRoot = "history"

var (
	pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	archiveFilePattern   = regexp.MustCompile(`^runs-([0-9]+)-([0-9]+)\.parquet$`)
)

// BuildArchivePath names the Parquet file holding runs firstSeq..lastSeq,
// partitioned by the UTC day of the first run in the batch.
func BuildArchivePath(day time.Time, firstSeq, lastSeq int64) (string, error) {
	if firstSeq <= 0 {
		return "", fmt.Errorf("first sequence must be > 0")
	}
	if lastSeq < firstSeq {
		return "", fmt.Errorf("last sequence %d is before first sequence %d", lastSeq, firstSeq)
	}
	ts := day.UTC()
	return path.Join(
		ArchiveRoot,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("runs-%d-%d.parquet", firstSeq, lastSeq),
	), nil
}

// ParseArchivePath returns the sequence range encoded in an archive key.
func ParseArchivePath(key string) (firstSeq, lastSeq int64, err error) {
	match := archiveFilePattern.FindStringSubmatch(path.Base(key))
	if match == nil {
		return 0, 0, fmt.Errorf("not an archive file: %q", key)
	}
	if firstSeq, err = strconv.ParseInt(match[1], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("parse first sequence of %q: %w", key, err)
	}
	if lastSeq, err = strconv.ParseInt(match[2], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("parse last sequence of %q: %w", key, err)
	}
	if firstSeq <= 0 || lastSeq < firstSeq {
		return 0, 0, fmt.Errorf("invalid sequence range in %q", key)
	}
	return firstSeq, lastSeq, nil
}

// ArchiveDayPrefix is the listing prefix for one day of archives.
func ArchiveDayPrefix(day time.Time) string {
	ts := day.UTC()
	return path.Join(ArchiveRoot, fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day())) + "/"
}

// ValidatePathComponent rejects empty names and names that could escape a
// key prefix.
func ValidatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
