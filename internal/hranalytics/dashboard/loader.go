package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
)

// Fetcher is the remote data call behind a load.
type Fetcher interface {
	Dashboard(ctx context.Context, filters hranalytics.Filters) (hranalytics.DashboardData, error)
}

// Store serialises access to a State. Every transition goes through Reduce
// and is reported to the observer after the lock is released.
type Store struct {
	mu       sync.Mutex
	state    State
	observer func(State, Effects)
}

// NewStore wraps initial.
func NewStore(initial State) *Store {
	return &Store{state: initial}
}

// Observe registers fn to run after every dispatch.
func (s *Store) Observe(fn func(State, Effects)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch reduces a into the store.
func (s *Store) Dispatch(a Action) (State, Effects) {
	s.mu.Lock()
	next, fx := Reduce(s.state, a)
	s.state = next
	observer := s.observer
	s.mu.Unlock()

	if observer != nil {
		observer(next, fx)
	}
	return next, fx
}

// Metrics receives dashboard counters.
type Metrics interface {
	LoadFinished(outcome string, d time.Duration)
	StaleDiscarded()
	TickDropped()
	ExportFinished(kind, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) LoadFinished(string, time.Duration) {}
func (nopMetrics) StaleDiscarded()                    {}
func (nopMetrics) TickDropped()                       {}
func (nopMetrics) ExportFinished(string, string)      {}

// Load outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeStale   = "stale"
)

// Loader issues fenced fetches for the filters held by a Store.
type Loader struct {
	store   *Store
	fetcher Fetcher
	now     func() time.Time
	logger  *slog.Logger
	metrics Metrics
}

// NewLoader builds a loader over store.
func NewLoader(store *Store, fetcher Fetcher, logger *slog.Logger, metrics Metrics) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Loader{store: store, fetcher: fetcher, now: time.Now, logger: logger, metrics: metrics}
}

// LoadRequest is a tagged fetch issued by Begin.
type LoadRequest struct {
	Seq     uint64
	Filters hranalytics.Filters
}

// Begin tags a new load and marks the store busy.
func (l *Loader) Begin() LoadRequest {
	started, _ := l.store.Dispatch(LoadStarted{})
	return LoadRequest{Seq: started.Seq, Filters: started.Filters}
}

// Load fetches once with the current filters.
func (l *Loader) Load(ctx context.Context) error {
	return l.Fetch(ctx, l.Begin())
}

// Fetch runs req and settles it. A result that is not the latest issued is
// dropped without touching the store.
func (l *Loader) Fetch(ctx context.Context, req LoadRequest) error {
	begin := time.Now()
	data, err := l.fetcher.Dashboard(ctx, req.Filters)
	if err == nil && data.Error {
		err = errors.New(data.Message)
	}
	if err != nil && ctx.Err() != nil {
		// Torn down mid-flight; nobody is left to show the result to.
		return ctx.Err()
	}

	var fx Effects
	if err != nil {
		_, fx = l.store.Dispatch(LoadFailed{Seq: req.Seq, Err: err})
	} else {
		_, fx = l.store.Dispatch(LoadSucceeded{Seq: req.Seq, Data: data, At: l.now()})
	}

	switch {
	case fx.Discarded:
		l.metrics.StaleDiscarded()
		l.metrics.LoadFinished(OutcomeStale, time.Since(begin))
		l.logger.Debug("stale dashboard response discarded", slog.Uint64("seq", req.Seq))
		return nil
	case err != nil:
		l.metrics.LoadFinished(OutcomeError, time.Since(begin))
		l.logger.Error("dashboard load failed", slog.Uint64("seq", req.Seq), slog.Any("error", err))
		return err
	}
	l.metrics.LoadFinished(OutcomeSuccess, time.Since(begin))
	return nil
}
