// Package session holds the state a single client works with: the active
// query and location, the DisplayJobs fetched so far and whether more
// pages exist. Each operation is stamped with a generation and results of
// superseded operations are dropped.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/jobs"
)

const DefaultPageSize = 50

// ErrSuperseded is returned by an operation whose result arrived after a
// newer operation had started. The session state is left untouched.
var ErrSuperseded = errors.New("session: result superseded by a newer request")

// Querier is implemented by *engine.Engine.
type Querier interface {
	Query(ctx context.Context, req engine.Request) (*engine.Result, error)
}

// Initializer is implemented by *engine.Engine. When the Querier also
// implements it, Init runs it before fetching the first page.
type Initializer interface {
	Init(ctx context.Context) error
}

// State is a snapshot of the session.
type State struct {
	Items     []jobs.DisplayJob
	Loading   bool
	Err       error
	HasMore   bool
	TotalJobs int
	Query     string
	Location  string
}

type Session struct {
	querier  Querier
	pageSize int
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	generation uint64
}

func New(q Querier, pageSize int) *Session {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Session{
		querier:  q,
		pageSize: pageSize,
		state:    State{Items: []jobs.DisplayJob{}},
		logger:   slog.Default().With("component", "session"),
	}
}

// Init loads the job records and the first page of all jobs. A load
// failure ends up in State.Err.
func (s *Session) Init(ctx context.Context) error {
	var prepare func(context.Context) error
	if in, ok := s.querier.(Initializer); ok {
		prepare = in.Init
	}
	return s.run(ctx, func(st *State) {
		st.Query = ""
		st.Location = ""
	}, prepare, false)
}

// Search replaces the active query and starts again from the first page.
func (s *Session) Search(ctx context.Context, query string) error {
	return s.run(ctx, func(st *State) {
		st.Query = query
	}, nil, false)
}

// FilterByLocation replaces the active location and starts again from the
// first page. An empty location removes the filter.
func (s *Session) FilterByLocation(ctx context.Context, location string) error {
	return s.run(ctx, func(st *State) {
		st.Location = location
	}, nil, false)
}

// LoadMore appends the next page for the active query and location. It
// does nothing when no more pages exist or a request is in flight.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	idle := !s.state.Loading && s.state.HasMore
	s.mu.Unlock()
	if !idle {
		return nil
	}
	return s.run(ctx, func(*State) {}, nil, true)
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Items = make([]jobs.DisplayJob, len(s.state.Items))
	copy(st.Items, s.state.Items)
	return st
}

func (s *Session) run(ctx context.Context, mutate func(*State), prepare func(context.Context) error, appendPage bool) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	mutate(&s.state)
	offset := 0
	if appendPage {
		offset = len(s.state.Items)
	}
	req := engine.Request{
		Query:    s.state.Query,
		Location: s.state.Location,
		Limit:    s.pageSize,
		Offset:   offset,
	}
	s.state.Loading = true
	s.state.Err = nil
	s.mu.Unlock()

	var (
		res *engine.Result
		err error
	)
	if prepare != nil {
		err = prepare(ctx)
	}
	if err == nil {
		res, err = s.querier.Query(ctx, req)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		s.logger.Debug("discarding superseded result", "generation", gen, "current", s.generation)
		return ErrSuperseded
	}
	s.state.Loading = false
	if err != nil {
		s.state.Err = err
		return err
	}
	if appendPage {
		s.state.Items = append(s.state.Items, res.Items...)
	} else {
		s.state.Items = append(make([]jobs.DisplayJob, 0, len(res.Items)), res.Items...)
	}
	s.state.HasMore = len(res.Items) == s.pageSize
	s.state.TotalJobs = res.Total
	return nil
}
