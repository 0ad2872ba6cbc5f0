package charts

import (
	"encoding/base64"
	"strings"
	"sync"
)

// Canvas is an in-memory Surface. Live sessions keep one per panel and ship
// its Snapshot to the browser.
type Canvas struct {
	mu          sync.Mutex
	id          string
	available   bool
	hidden      bool
	fragment    *Fragment
	placeholder string
}

// NewCanvas returns an available, visible canvas.
func NewCanvas(id string) *Canvas {
	return &Canvas{id: id, available: true}
}

// MissingCanvas returns a canvas that cannot be drawn on.
func MissingCanvas(id string) *Canvas {
	return &Canvas{id: id}
}

// ID names the panel the canvas belongs to.
func (c *Canvas) ID() string { return c.id }

// Available is false for a canvas created with MissingCanvas.
func (c *Canvas) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

// Draw binds f to the canvas and shows it again.
func (c *Canvas) Draw(f Fragment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fragment = &f
	c.hidden = false
	c.placeholder = ""
}

// Clear drops the drawn fragment.
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fragment = nil
}

// Hide keeps the canvas out of the page until the next Draw.
func (c *Canvas) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hidden = true
}

// Placeholder sets the text shown instead of a chart.
func (c *Canvas) Placeholder(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.placeholder = text
}

// Snapshot is the serialisable state of a canvas.
type Snapshot struct {
	Surface     string `json:"surface"`
	Hidden      bool   `json:"hidden"`
	MIME        string `json:"mime,omitempty"`
	Body        string `json:"body,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

// Snapshot captures the current canvas state. Image bodies are base64 encoded.
func (c *Canvas) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{Surface: c.id, Hidden: c.hidden, Placeholder: c.placeholder}
	if c.fragment != nil {
		s.MIME = c.fragment.MIME
		if strings.HasPrefix(s.MIME, "image/") && s.MIME != MIMESVG {
			s.Body = base64.StdEncoding.EncodeToString(c.fragment.Body)
		} else {
			s.Body = string(c.fragment.Body)
		}
	}
	return s
}

// Fragment returns the drawn fragment, if any.
func (c *Canvas) Fragment() (Fragment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fragment == nil {
		return Fragment{}, false
	}
	return *c.fragment, true
}
