package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/jobs"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/search/index"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmap/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/resilience"
)

// pager serves n synthetic display jobs, optionally blocking per query.
type pager struct {
	mu    sync.Mutex
	n     int
	gates map[string]chan struct{}
	err   error
	reqs  []engine.Request
}

func (p *pager) Query(ctx context.Context, req engine.Request) (*engine.Result, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	gate := p.gates[req.Query]
	err := p.err
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	all := make([]jobs.DisplayJob, p.n)
	for i := range all {
		all[i] = jobs.DisplayJob{ID: fmt.Sprintf("%s-%d", req.Query, i)}
	}
	end := min(req.Offset+req.Limit, len(all))
	start := min(req.Offset, len(all))
	return &engine.Result{Items: all[start:end], Total: len(all)}, nil
}

func TestInitAndLoadMore(t *testing.T) {
	p := &pager{n: 7}
	s := New(p, 3)
	ctx := context.Background()

	if err := s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	st := s.State()
	if len(st.Items) != 3 || !st.HasMore || st.TotalJobs != 7 || st.Loading {
		t.Fatalf("after Init: %+v", st)
	}
	_ = s.LoadMore(ctx)
	_ = s.LoadMore(ctx)
	st = s.State()
	if len(st.Items) != 7 || st.HasMore {
		t.Errorf("after LoadMore x2: %d items, hasMore=%v", len(st.Items), st.HasMore)
	}
	calls := len(p.reqs)
	_ = s.LoadMore(ctx)
	if len(p.reqs) != calls {
		t.Error("LoadMore queried with no more pages")
	}
	if p.reqs[1].Offset != 3 || p.reqs[2].Offset != 6 {
		t.Errorf("offsets = %d, %d", p.reqs[1].Offset, p.reqs[2].Offset)
	}
}

func TestHasMoreWhenPageExactlyFull(t *testing.T) {
	p := &pager{n: 6}
	s := New(p, 3)
	ctx := context.Background()
	_ = s.Init(ctx)
	_ = s.LoadMore(ctx)
	if !s.State().HasMore {
		t.Fatal("full last page should report HasMore")
	}
	_ = s.LoadMore(ctx)
	st := s.State()
	if st.HasMore || len(st.Items) != 6 {
		t.Errorf("after empty page: %+v", st)
	}
}

func TestSearchAndFilterResetPaging(t *testing.T) {
	p := &pager{n: 10}
	s := New(p, 4)
	ctx := context.Background()
	_ = s.Init(ctx)
	_ = s.LoadMore(ctx)
	if err := s.Search(ctx, "java"); err != nil {
		t.Fatal(err)
	}
	_ = s.FilterByLocation(ctx, "Bern")
	st := s.State()
	if len(st.Items) != 4 || st.Query != "java" || st.Location != "Bern" {
		t.Errorf("state = %+v", st)
	}
	last := p.reqs[len(p.reqs)-1]
	if last.Offset != 0 || last.Query != "java" || last.Location != "Bern" || last.Limit != 4 {
		t.Errorf("last request = %+v", last)
	}
}

func TestSupersededResultIsDiscarded(t *testing.T) {
	slow := make(chan struct{})
	p := &pager{n: 5, gates: map[string]chan struct{}{"slow": slow}}
	s := New(p, 2)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- s.Search(ctx, "slow") }()
	for {
		p.mu.Lock()
		started := len(p.reqs) == 1
		p.mu.Unlock()
		if started {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err := s.Search(ctx, "fast"); err != nil {
		t.Fatal(err)
	}
	close(slow)
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("slow search err = %v, want ErrSuperseded", err)
	}
	st := s.State()
	if st.Query != "fast" || st.Items[0].ID != "fast-0" || st.Loading {
		t.Errorf("state after stale result = %+v", st)
	}
}

func TestErrorSurfacesInState(t *testing.T) {
	boom := errors.New("load failed")
	s := New(&pager{err: boom}, 2)
	if err := s.Init(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	st := s.State()
	if !errors.Is(st.Err, boom) || st.Loading {
		t.Errorf("state = %+v", st)
	}
}

type downSource struct{}

func (downSource) Name() string { return "down" }

func (downSource) Fetch(ctx context.Context) ([]jobs.JobRecord, error) {
	return nil, resilience.Permanent(errors.New("network down"))
}

func TestInitSurfacesLoadError(t *testing.T) {
	st := store.New(downSource{}, store.Options{})
	eng := engine.New(st, index.New(0), cache.New(0, nil), nil)
	s := New(eng, 10)

	err := s.Init(context.Background())
	var le *store.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("Init err = %v, want *store.LoadError", err)
	}
	state := s.State()
	if !errors.Is(state.Err, apperrors.ErrLoadFailed) || state.Loading || len(state.Items) != 0 || state.HasMore {
		t.Errorf("state after failed load = %+v", state)
	}
}
