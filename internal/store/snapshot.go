package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/jobs"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmap/pkg/errors"
)

// Snapshot is a persisted copy of the record collection and the time it
// was written.
type Snapshot struct {
	Records []jobs.JobRecord
	SavedAt time.Time
}

// SnapshotStore persists one Snapshot as two entries, the records and the
// timestamp, which are always read and cleared together. Read returns
// apperrors.ErrSnapshotAbsent when either entry is missing.
type SnapshotStore interface {
	Read(ctx context.Context) (*Snapshot, error)
	Write(ctx context.Context, snap *Snapshot) error
	Clear(ctx context.Context) error
}

func encodeSnapshot(snap *Snapshot) (records []byte, timestamp string, err error) {
	records, err = json.Marshal(snap.Records)
	if err != nil {
		return nil, "", fmt.Errorf("encoding snapshot records: %w", err)
	}
	return records, snap.SavedAt.UTC().Format(time.RFC3339Nano), nil
}

func decodeSnapshot(records []byte, timestamp string) (*Snapshot, error) {
	savedAt, err := parseTimestamp(timestamp)
	if err != nil {
		return nil, err
	}
	var recs []jobs.JobRecord
	if err := json.Unmarshal(records, &recs); err != nil {
		return nil, fmt.Errorf("decoding snapshot records: %w", err)
	}
	return &Snapshot{Records: recs, SavedAt: savedAt}, nil
}

// parseTimestamp accepts RFC 3339 or integer epoch milliseconds.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing snapshot timestamp %q: %w", s, err)
	}
	return t, nil
}

// FileSnapshotStore keeps the two entries as sibling files in Dir.
type FileSnapshotStore struct {
	Dir string
	Key string
}

func NewFileSnapshotStore(dir, key string) *FileSnapshotStore {
	return &FileSnapshotStore{Dir: dir, Key: key}
}

func (f *FileSnapshotStore) base() string {
	name := strings.NewReplacer(":", "_", "/", "_", string(filepath.Separator), "_").Replace(f.Key)
	return filepath.Join(f.Dir, name)
}

func (f *FileSnapshotStore) recordsPath() string   { return f.base() + ".json" }
func (f *FileSnapshotStore) timestampPath() string { return f.base() + ".timestamp" }

func (f *FileSnapshotStore) Read(ctx context.Context) (*Snapshot, error) {
	ts, err := os.ReadFile(f.timestampPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.ErrSnapshotAbsent
		}
		return nil, fmt.Errorf("reading snapshot timestamp: %w", err)
	}
	records, err := os.ReadFile(f.recordsPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.ErrSnapshotAbsent
		}
		return nil, fmt.Errorf("reading snapshot records: %w", err)
	}
	return decodeSnapshot(records, string(ts))
}

// Write replaces the records first and the timestamp last, each through a
// rename, so a crash never leaves a fresh timestamp beside old records.
func (f *FileSnapshotStore) Write(ctx context.Context, snap *Snapshot) error {
	records, ts, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	if err := os.Remove(f.timestampPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing old snapshot timestamp: %w", err)
	}
	if err := writeFileAtomic(f.recordsPath(), records); err != nil {
		return err
	}
	return writeFileAtomic(f.timestampPath(), []byte(ts))
}

func (f *FileSnapshotStore) Clear(ctx context.Context) error {
	var errs []error
	for _, p := range []string{f.timestampPath(), f.recordsPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
