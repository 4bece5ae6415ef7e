package store

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/jobmap/pkg/errors"
)

func TestFileSnapshotStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := NewFileSnapshotStore(t.TempDir(), "jobmap:jobs")

	if _, err := fs.Read(ctx); !errors.Is(err, apperrors.ErrSnapshotAbsent) {
		t.Fatalf("Read on empty dir: err = %v", err)
	}
	want := &Snapshot{Records: records("a", "b"), SavedAt: testNow}
	if err := fs.Write(ctx, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := fs.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.SavedAt.Equal(testNow) || len(got.Records) != 2 || got.Records[1].ID != "b" {
		t.Errorf("round trip = %+v", got)
	}

	if err := fs.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := fs.Read(ctx); !errors.Is(err, apperrors.ErrSnapshotAbsent) {
		t.Errorf("Read after Clear: err = %v", err)
	}
}

func TestFileSnapshotStoreEpochMillis(t *testing.T) {
	ctx := context.Background()
	fs := NewFileSnapshotStore(t.TempDir(), "jobmap:jobs")
	if err := fs.Write(ctx, &Snapshot{Records: records("a"), SavedAt: testNow}); err != nil {
		t.Fatal(err)
	}
	ms := strconv.FormatInt(testNow.Add(-time.Minute).UnixMilli(), 10)
	if err := os.WriteFile(fs.timestampPath(), []byte(ms), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := fs.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.SavedAt.Equal(testNow.Add(-time.Minute)) {
		t.Errorf("SavedAt = %v", got.SavedAt)
	}
}

func TestFileSnapshotStoreMissingHalfIsAbsent(t *testing.T) {
	ctx := context.Background()
	fs := NewFileSnapshotStore(t.TempDir(), "k")
	if err := fs.Write(ctx, &Snapshot{Records: records("a"), SavedAt: testNow}); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(fs.recordsPath()); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Read(ctx); !errors.Is(err, apperrors.ErrSnapshotAbsent) {
		t.Errorf("err = %v, want absent", err)
	}
}

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func (f *fakeKV) GetMany(ctx context.Context, keys ...string) ([]string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(keys))
	for i, k := range keys {
		v, ok := f.data[k]
		if !ok {
			return nil, false, nil
		}
		out[i] = v
	}
	return out, true, nil
}

func (f *fakeKV) SetMany(ctx context.Context, pairs map[string]string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range pairs {
		f.data[k] = v
	}
	return nil
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func TestRedisSnapshotStore(t *testing.T) {
	ctx := context.Background()
	kv := &fakeKV{data: map[string]string{}}
	rs := NewRedisSnapshotStore(kv, "jobmap:jobs")

	if _, err := rs.Read(ctx); !errors.Is(err, apperrors.ErrSnapshotAbsent) {
		t.Fatalf("Read empty: err = %v", err)
	}
	if err := rs.Write(ctx, &Snapshot{Records: records("a"), SavedAt: testNow}); err != nil {
		t.Fatal(err)
	}
	if _, ok := kv.data["jobmap:jobs:timestamp"]; !ok {
		t.Errorf("timestamp key not written: %v", kv.data)
	}
	got, err := rs.Read(ctx)
	if err != nil || got.Records[0].ID != "a" || !got.SavedAt.Equal(testNow) {
		t.Fatalf("Read = %+v, %v", got, err)
	}
	if err := rs.Clear(ctx); err != nil || len(kv.data) != 0 {
		t.Errorf("Clear left %v (err %v)", kv.data, err)
	}
}
