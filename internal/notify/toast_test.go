package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (m *manualTimer) Stop() bool {
	m.stopped = true
	return true
}

type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

func (m *manualClock) Now() time.Time { return m.now }

func (m *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{d: d, f: f}
	m.timers = append(m.timers, t)
	return t
}

func (m *manualClock) fireAll() {
	m.mu.Lock()
	timers := m.timers
	m.timers = nil
	m.mu.Unlock()
	for _, t := range timers {
		if !t.stopped {
			t.f()
		}
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func TestPushSchedulesExpiryAfterFade(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	center := NewCenter(rec.publish, WithClock(clock.Now, clock.AfterFunc))

	toast, err := center.Push(KindSuccess, "PDF exported successfully")
	require.NoError(t, err)
	assert.Equal(t, clock.now.Add(3*time.Second), toast.ExpiresAt)
	require.Len(t, clock.timers, 1)
	assert.Equal(t, 3300*time.Millisecond, clock.timers[0].d)
	assert.Len(t, center.Active(), 1)

	clock.fireAll()
	assert.Empty(t, center.Active())
	assert.Equal(t, []string{EventToast, EventToastRemoved}, rec.types())
}

func TestPushRejectsUnknownKind(t *testing.T) {
	center := NewCenter(nil)
	_, err := center.Push(Kind("warning"), "hello")
	assert.ErrorIs(t, err, ErrInvalidToast)
	_, err = center.Push(KindInfo, "")
	assert.ErrorIs(t, err, ErrInvalidToast)
}

func TestCloseStopsPendingExpiry(t *testing.T) {
	clock := &manualClock{now: time.Now()}
	rec := &recorder{}
	center := NewCenter(rec.publish, WithClock(clock.Now, clock.AfterFunc))
	center.Info("Refreshing data...")
	center.Error("Could not load dashboard data")

	center.Close()
	for _, tm := range clock.timers {
		assert.True(t, tm.stopped)
	}
	assert.Empty(t, center.Active())
	_, err := center.Push(KindInfo, "late")
	assert.Error(t, err)
	assert.Equal(t, []string{EventToast, EventToast}, rec.types())
}

func TestRealTimerRemovesToast(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the toast lifetime")
	}
	rec := &recorder{}
	center := NewCenter(rec.publish)
	center.Info("Auto refresh disabled")
	require.Eventually(t, func() bool { return len(center.Active()) == 0 }, 5*time.Second, 50*time.Millisecond)
}
