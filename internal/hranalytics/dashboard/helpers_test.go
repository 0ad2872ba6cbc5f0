package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
	"github.com/odyssey-erp/hr-analytics/internal/notify"
)

// stubFetcher records every fetch. When gate is set each call blocks until
// a value is received from it.
type stubFetcher struct {
	mu      sync.Mutex
	filters []hranalytics.Filters
	calls   chan hranalytics.Filters
	gate    chan struct{}
	err     error
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{calls: make(chan hranalytics.Filters, 32)}
}

func (f *stubFetcher) Dashboard(ctx context.Context, filters hranalytics.Filters) (hranalytics.DashboardData, error) {
	f.mu.Lock()
	f.filters = append(f.filters, filters)
	n := len(f.filters)
	gate, err := f.gate, f.err
	f.mu.Unlock()
	f.calls <- filters

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return hranalytics.DashboardData{}, ctx.Err()
		}
	}
	if err != nil {
		return hranalytics.DashboardData{}, err
	}
	return hranalytics.DashboardData{
		TotalEmployees:   n,
		AttendanceTrends: []hranalytics.AttendancePoint{{Date: "2025-03-03", WorkedHours: 8}},
		KPIDistribution:  []hranalytics.KPIBucket{{ScoreRange: "90-99", Count: n}},
	}, nil
}

func (f *stubFetcher) setGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
}

func (f *stubFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *stubFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.filters)
}

func (f *stubFetcher) last() hranalytics.Filters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters[len(f.filters)-1]
}

func (f *stubFetcher) awaitCall(t *testing.T) hranalytics.Filters {
	t.Helper()
	select {
	case filters := <-f.calls:
		return filters
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fetch")
		return hranalytics.Filters{}
	}
}

func (f *stubFetcher) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case <-f.calls:
		t.Fatal("unexpected fetch")
	case <-time.After(50 * time.Millisecond):
	}
}

// stubDepartments knows every department below 100.
type stubDepartments struct{}

func (stubDepartments) DepartmentExists(_ context.Context, id int64) (bool, error) {
	return id < 100, nil
}

// fakeTicker is driven by tests through tickerFactory.fire.
type fakeTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.c }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

type tickerFactory struct {
	mu       sync.Mutex
	tickers  []*fakeTicker
	interval time.Duration
}

func (f *tickerFactory) New(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time)}
	f.tickers = append(f.tickers, t)
	f.interval = d
	return t
}

func (f *tickerFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

func (f *tickerFactory) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickers {
		if !t.stopped.Load() {
			n++
		}
	}
	return n
}

// fire delivers one tick to the newest ticker and waits until the
// scheduler goroutine has taken it.
func (f *tickerFactory) fire(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	if len(f.tickers) == 0 {
		f.mu.Unlock()
		t.Fatal("no ticker installed")
	}
	tk := f.tickers[len(f.tickers)-1]
	f.mu.Unlock()
	select {
	case tk.c <- fixedNow:
	case <-time.After(2 * time.Second):
		t.Fatal("tick not consumed")
	}
}

// events records published events.
type events struct {
	mu  sync.Mutex
	all []notify.Event
}

func (e *events) publish(ev notify.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, ev)
}

func (e *events) ofType(typ string) []notify.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []notify.Event
	for _, ev := range e.all {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (e *events) toastMessages() []string {
	var out []string
	for _, ev := range e.ofType(notify.EventToast) {
		out = append(out, ev.Payload.(notify.Toast).Message)
	}
	return out
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}
