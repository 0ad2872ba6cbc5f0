package dashboard

import (
	"sync"
	"time"
)

// Ticker is the subset of *time.Ticker the scheduler uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// NewStdTicker wraps time.NewTicker.
func NewStdTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

// Scheduler runs at most one repeating timer. Each tick calls OnTick unless
// Busy reports a load in flight, in which case the tick is dropped.
type Scheduler struct {
	mu        sync.Mutex
	interval  time.Duration
	newTicker TickerFunc
	busy      func() bool
	onTick    func()
	onDrop    func()

	stop chan struct{}
	done chan struct{}
}

// NewScheduler creates a stopped scheduler. onTick must not block.
func NewScheduler(interval time.Duration, newTicker TickerFunc, busy func() bool, onTick func()) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if newTicker == nil {
		newTicker = NewStdTicker
	}
	return &Scheduler{interval: interval, newTicker: newTicker, busy: busy, onTick: onTick}
}

// OnDrop registers a callback for ticks dropped while busy.
func (s *Scheduler) OnDrop(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDrop = fn
}

// Start stops any running timer, then installs a fresh one when enabled.
// Restarting resets the refresh phase.
func (s *Scheduler) Start(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	if !enabled {
		return
	}
	ticker := s.newTicker(s.interval)
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.done = stop, done
	go s.run(ticker, stop, done, s.onDrop)
}

// Stop cancels the timer and waits for its goroutine to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Active reports whether a timer is installed.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

func (s *Scheduler) stopLocked() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
}

func (s *Scheduler) run(ticker Ticker, stop <-chan struct{}, done chan<- struct{}, onDrop func()) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			// A stop racing with a tick wins.
			select {
			case <-stop:
				return
			default:
			}
			if s.busy != nil && s.busy() {
				if onDrop != nil {
					onDrop()
				}
				continue
			}
			s.onTick()
		}
	}
}
