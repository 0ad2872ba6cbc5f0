package charts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// PlaceholderText replaces a surface whose chart cannot be drawn.
const PlaceholderText = "Chart library not available"

// ErrUnavailable reports that a chart could not be drawn. It is local to the
// surface and never fatal for the dashboard.
var ErrUnavailable = errors.New("charts: chart library not available")

// Fragment content types.
const (
	MIMEHTML = "text/html"
	MIMEPNG  = "image/png"
	MIMESVG  = "image/svg+xml"
)

// Fragment is drawn output bound to a surface.
type Fragment struct {
	MIME string
	Body []byte
}

// Surface is a caller owned drawing target.
type Surface interface {
	ID() string
	Available() bool
	Draw(Fragment)
	Clear()
	Hide()
	Placeholder(text string)
}

// Instance is a live chart bound to a surface.
type Instance interface {
	Destroy()
}

// Engine draws specs onto surfaces.
type Engine interface {
	Name() string
	Draw(ctx context.Context, surface Surface, spec Spec) (Instance, error)
}

// Source loads an engine by path.
type Source interface {
	Load(path string) (Engine, error)
}

// Registry is a Source backed by engine constructors.
type Registry map[string]func() (Engine, error)

// Load implements Source.
func (r Registry) Load(path string) (Engine, error) {
	ctor, ok := r[path]
	if !ok || ctor == nil {
		return nil, fmt.Errorf("charts: no engine at %q", path)
	}
	engine, err := ctor()
	if err != nil {
		return nil, fmt.Errorf("charts: load %q: %w", path, err)
	}
	return engine, nil
}

// DefaultRegistry exposes the echarts, chart and svg engines.
func DefaultRegistry() Registry {
	return Registry{
		"echarts": func() (Engine, error) { return NewEChartsEngine(), nil },
		"chart":   func() (Engine, error) { return NewRasterEngine(), nil },
		"svg":     func() (Engine, error) { return NewSVGEngine(), nil },
	}
}

// Unavailable is the engine used when no library could be loaded.
var Unavailable Engine = unavailable{}

type unavailable struct{}

func (unavailable) Name() string { return "unavailable" }

func (unavailable) Draw(context.Context, Surface, Spec) (Instance, error) {
	return nil, ErrUnavailable
}

// Adapter renders specs through the loaded engine and owns the resulting
// instances, one per surface.
type Adapter struct {
	mu        sync.Mutex
	engine    Engine
	instances map[string]Instance
	logger    *slog.Logger
}

// NewAdapter loads primary, then fallback, from src. When both fail the
// adapter uses Unavailable.
func NewAdapter(src Source, primary, fallback string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{engine: Unavailable, instances: make(map[string]Instance), logger: logger}
	if src == nil {
		return a
	}
	for _, path := range []string{primary, fallback} {
		if path == "" {
			continue
		}
		engine, err := src.Load(path)
		if err != nil {
			logger.Warn("chart engine load failed", slog.String("path", path), slog.Any("error", err))
			continue
		}
		a.engine = engine
		break
	}
	return a
}

// Engine returns the engine in use.
func (a *Adapter) Engine() Engine {
	return a.engine
}

// Available reports whether a real engine was loaded.
func (a *Adapter) Available() bool {
	_, missing := a.engine.(unavailable)
	return !missing
}

// Render draws spec on surface, destroying any instance previously bound to
// it. A missing engine or surface degrades to a placeholder and ErrUnavailable.
func (a *Adapter) Render(ctx context.Context, surface Surface, spec Spec) error {
	if surface == nil {
		return ErrUnavailable
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, ok := a.instances[surface.ID()]; ok {
		prev.Destroy()
		delete(a.instances, surface.ID())
	}
	if !a.Available() || !surface.Available() {
		degrade(surface)
		return ErrUnavailable
	}
	inst, err := a.engine.Draw(ctx, surface, spec)
	if err != nil {
		a.logger.Error("chart draw failed",
			slog.String("surface", surface.ID()),
			slog.String("engine", a.engine.Name()),
			slog.Any("error", err))
		degrade(surface)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	a.instances[surface.ID()] = inst
	return nil
}

// Bound lists the surfaces holding a live instance.
func (a *Adapter) Bound() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.instances))
	for id := range a.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DestroyAll releases every instance.
func (a *Adapter) DestroyAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, inst := range a.instances {
		inst.Destroy()
		delete(a.instances, id)
	}
}

func degrade(surface Surface) {
	surface.Hide()
	surface.Placeholder(PlaceholderText)
}

// drawn is the Instance returned by the built-in engines.
type drawn struct {
	once    sync.Once
	surface Surface
}

func newDrawn(surface Surface, fragment Fragment) *drawn {
	surface.Draw(fragment)
	return &drawn{surface: surface}
}

func (d *drawn) Destroy() {
	d.once.Do(d.surface.Clear)
}
