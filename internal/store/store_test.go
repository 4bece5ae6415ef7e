package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/jobs"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmap/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/resilience"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu      sync.Mutex
	records []jobs.JobRecord
	err     error
	delay   time.Duration
	calls   int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context) ([]jobs.JobRecord, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	out := make([]jobs.JobRecord, len(f.records))
	copy(out, f.records)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memSnapshots struct {
	mu       sync.Mutex
	snap     *Snapshot
	failRead error
	failWr   error
	clears   int
	writes   int
}

func (m *memSnapshots) Read(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead != nil {
		return nil, m.failRead
	}
	if m.snap == nil {
		return nil, apperrors.ErrSnapshotAbsent
	}
	return m.snap, nil
}

func (m *memSnapshots) Write(ctx context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWr != nil {
		return m.failWr
	}
	m.writes++
	m.snap = snap
	return nil
}

func (m *memSnapshots) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.snap = nil
	return nil
}

func records(ids ...string) []jobs.JobRecord {
	out := make([]jobs.JobRecord, len(ids))
	for i, id := range ids {
		out[i] = jobs.JobRecord{ID: id, Title: "Job " + id}
	}
	return out
}

func newTestStore(src Source, snaps SnapshotStore) *Store {
	return New(src, Options{
		Snapshots: snaps,
		Retry:     resilience.RetryConfig{MaxAttempts: 1},
		Now:       func() time.Time { return testNow },
	})
}

func TestLoadUsesFreshSnapshot(t *testing.T) {
	src := &fakeSource{records: records("x")}
	snaps := &memSnapshots{snap: &Snapshot{Records: records("a", "b"), SavedAt: testNow.Add(-time.Hour)}}
	s := newTestStore(src, snaps)

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Calls() != 0 {
		t.Errorf("source fetched %d times despite fresh snapshot", src.Calls())
	}
	if s.Count() != 2 || !s.LoadedAt().Equal(testNow.Add(-time.Hour)) {
		t.Errorf("count=%d loadedAt=%v", s.Count(), s.LoadedAt())
	}
}

func TestLoadExpiredSnapshotFetchesAndRewrites(t *testing.T) {
	src := &fakeSource{records: records("fresh")}
	snaps := &memSnapshots{snap: &Snapshot{Records: records("old"), SavedAt: testNow.Add(-25 * time.Hour)}}
	s := newTestStore(src, snaps)

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Calls() != 1 {
		t.Errorf("source calls = %d, want 1", src.Calls())
	}
	if snaps.clears != 1 {
		t.Errorf("expired snapshot cleared %d times, want 1", snaps.clears)
	}
	if snaps.snap == nil || !snaps.snap.SavedAt.Equal(testNow) || snaps.snap.Records[0].ID != "fresh" {
		t.Errorf("snapshot not rewritten: %+v", snaps.snap)
	}
	if got := s.All()[0].ID; got != "fresh" {
		t.Errorf("All()[0].ID = %q, want fresh", got)
	}
}

func TestLoadFailsWithoutSnapshot(t *testing.T) {
	cause := errors.New("network down")
	s := newTestStore(&fakeSource{err: cause}, &memSnapshots{})

	err := s.Load(context.Background())
	if !errors.Is(err, apperrors.ErrLoadFailed) || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want LoadError wrapping cause", err)
	}
	var le *LoadError
	if !errors.As(err, &le) || le.Source != "fake" {
		t.Errorf("err is not a *LoadError from fake: %#v", err)
	}
	if s.Loaded() {
		t.Error("store reports loaded after failure")
	}
}

func TestLoadServesStaleSnapshotWhenFetchFails(t *testing.T) {
	snaps := &memSnapshots{snap: &Snapshot{Records: records("old"), SavedAt: testNow.Add(-48 * time.Hour)}}
	s := newTestStore(&fakeSource{err: errors.New("down")}, snaps)

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Count() != 1 || s.All()[0].ID != "old" {
		t.Errorf("stale snapshot not served: %+v", s.All())
	}
}

func TestUnreadableSnapshotFallsBackToFetch(t *testing.T) {
	src := &fakeSource{records: records("a")}
	snaps := &memSnapshots{failRead: errors.New("corrupt")}
	s := newTestStore(src, snaps)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Calls() != 1 || s.Count() != 1 {
		t.Errorf("calls=%d count=%d", src.Calls(), s.Count())
	}
}

func TestSnapshotWriteFailureIsSwallowed(t *testing.T) {
	src := &fakeSource{records: records("a")}
	s := newTestStore(src, &memSnapshots{failWr: errors.New("disk full")})
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d, want 1", s.Count())
	}
}

func TestConcurrentLoadSharesOneFetch(t *testing.T) {
	src := &fakeSource{records: records("a", "b"), delay: 20 * time.Millisecond}
	s := newTestStore(src, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Load(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
	}
	if src.Calls() != 1 {
		t.Errorf("source calls = %d, want 1", src.Calls())
	}
	if err := s.Load(context.Background()); err != nil || src.Calls() != 1 {
		t.Errorf("Load after success fetched again: err=%v calls=%d", err, src.Calls())
	}
}

func TestLoadAndReloadShareOneFetch(t *testing.T) {
	src := &fakeSource{records: records("a"), delay: 30 * time.Millisecond}
	s := newTestStore(src, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- s.Load(context.Background())
	}()
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		errs <- s.Reload(context.Background())
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if src.Calls() != 1 {
		t.Errorf("source calls = %d, want 1", src.Calls())
	}
}

func TestCancelledWaiterDoesNotFailSharedLoad(t *testing.T) {
	src := &fakeSource{records: records("a"), delay: 40 * time.Millisecond}
	s := newTestStore(src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- s.Load(ctx) }()
	time.Sleep(5 * time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- s.Load(context.Background()) }()
	time.Sleep(5 * time.Millisecond)
	cancel()

	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller err = %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("other caller err = %v", err)
	}
	if !s.Loaded() || src.Calls() != 1 {
		t.Errorf("loaded=%v calls=%d", s.Loaded(), src.Calls())
	}
}

func TestReloadBypassesSnapshot(t *testing.T) {
	src := &fakeSource{records: records("new")}
	snaps := &memSnapshots{snap: &Snapshot{Records: records("cached"), SavedAt: testNow}}
	s := newTestStore(src, snaps)

	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if src.Calls() != 1 || s.All()[0].ID != "new" || s.Version() != 2 {
		t.Errorf("calls=%d first=%q version=%d", src.Calls(), s.All()[0].ID, s.Version())
	}

	src.mu.Lock()
	src.err = errors.New("down")
	src.mu.Unlock()
	if err := s.Reload(context.Background()); !errors.Is(err, apperrors.ErrLoadFailed) {
		t.Errorf("failed reload err = %v", err)
	}
	if s.All()[0].ID != "new" {
		t.Errorf("failed reload replaced the collection")
	}
}

func TestIDsAssignedAndRefsResolve(t *testing.T) {
	src := &fakeSource{records: []jobs.JobRecord{{Title: "no id"}, {ID: " b "}, {ID: "c"}}}
	s := newTestStore(src, nil)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	all := s.All()
	if all[0].ID != "job-0" || all[1].ID != "b" {
		t.Errorf("ids = %q, %q", all[0].ID, all[1].ID)
	}
	for i, rec := range all {
		got, ok := s.Resolve(s.Ref(i))
		if !ok || got.ID != rec.ID {
			t.Errorf("Resolve(Ref(%d)) = %+v, %v", i, got, ok)
		}
	}
	for _, ref := range []string{"", "x:c", "9:c", "2:b", "-1:c"} {
		if _, ok := s.Resolve(ref); ok {
			t.Errorf("Resolve(%q) succeeded", ref)
		}
	}
}
