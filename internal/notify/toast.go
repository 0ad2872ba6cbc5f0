package notify

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Kind classifies a toast.
type Kind string

// Toast kinds.
const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Display timings of a toast.
const (
	DisplayDuration = 3 * time.Second
	FadeDuration    = 300 * time.Millisecond
)

// Event types published by the toast center.
const (
	EventToast        = "toast"
	EventToastRemoved = "toast_removed"
)

// ErrInvalidToast is returned when a toast fails validation.
var ErrInvalidToast = errors.New("notify: invalid toast")

// Toast is a transient notification shown to one session.
type Toast struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind" validate:"oneof=success error info"`
	Message   string    `json:"message" validate:"required,max=500"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Timer is the subset of *time.Timer the center needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Center holds the live toasts of a session and expires them.
type Center struct {
	mu       sync.Mutex
	toasts   map[uuid.UUID]Toast
	timers   map[uuid.UUID]Timer
	publish  func(Event)
	after    AfterFunc
	now      func() time.Time
	validate *validator.Validate
	closed   bool
}

// CenterOption customises a Center.
type CenterOption func(*Center)

// WithClock injects the clock and timer factory, mainly for tests.
func WithClock(now func() time.Time, after AfterFunc) CenterOption {
	return func(c *Center) {
		if now != nil {
			c.now = now
		}
		if after != nil {
			c.after = after
		}
	}
}

// NewCenter builds a center publishing through publish.
func NewCenter(publish func(Event), opts ...CenterOption) *Center {
	c := &Center{
		toasts:   make(map[uuid.UUID]Toast),
		timers:   make(map[uuid.UUID]Timer),
		publish:  publish,
		after:    stdAfterFunc,
		now:      time.Now,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Push shows a toast. It is removed after DisplayDuration plus FadeDuration.
func (c *Center) Push(kind Kind, message string) (Toast, error) {
	now := c.now()
	toast := Toast{
		ID:        uuid.New(),
		Kind:      kind,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(DisplayDuration),
	}
	if err := c.validate.Struct(toast); err != nil {
		return Toast{}, fmt.Errorf("%w: %v", ErrInvalidToast, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Toast{}, fmt.Errorf("notify: center closed")
	}
	c.toasts[toast.ID] = toast
	c.timers[toast.ID] = c.after(DisplayDuration+FadeDuration, func() { c.expire(toast.ID) })
	c.mu.Unlock()

	c.emit(Event{Type: EventToast, Payload: toast})
	return toast, nil
}

// Success, Error and Info are shorthands for Push.
func (c *Center) Success(message string) { _, _ = c.Push(KindSuccess, message) }

func (c *Center) Error(message string) { _, _ = c.Push(KindError, message) }

func (c *Center) Info(message string) { _, _ = c.Push(KindInfo, message) }

// Active returns the toasts still shown, oldest first.
func (c *Center) Active() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Toast, 0, len(c.toasts))
	for _, t := range c.toasts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Close cancels pending expiries and drops every toast silently.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.toasts = make(map[uuid.UUID]Toast)
}

func (c *Center) expire(id uuid.UUID) {
	c.mu.Lock()
	_, ok := c.toasts[id]
	delete(c.toasts, id)
	delete(c.timers, id)
	c.mu.Unlock()
	if ok {
		c.emit(Event{Type: EventToastRemoved, Payload: map[string]uuid.UUID{"id": id}})
	}
}

func (c *Center) emit(e Event) {
	if c.publish != nil {
		c.publish(e)
	}
}
