// Package rendertest provides an in-memory rendering engine for tests.
package rendertest

import (
	"sync"

	"github.com/playperu/campustour/internal/render"
	"github.com/playperu/campustour/internal/tour"
)

// Surface size used by every fake view.
const (
	SurfaceWidth  = 1000
	SurfaceHeight = 500
)

// Engine implements render.Viewer. All state is guarded by one mutex so it can
// be driven from test goroutines and loader continuations at once.
type Engine struct {
	mu              sync.Mutex
	disposed        bool
	active          *Scene
	scenes          []*Scene
	controlsEnabled bool
	switches        int
	hotspotErr      error

	// NotReadyFrames is how many View calls fail with ErrNotReady on each
	// scene created after it is set.
	NotReadyFrames int
}

func New() *Engine {
	return &Engine{controlsEnabled: true}
}

func (e *Engine) CreateScene(src render.Source, initial tour.View) (render.Scene, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return nil, render.ErrDisposed
	}
	s := &Scene{
		engine:  e,
		source:  src,
		params:  initial,
		pending: e.NotReadyFrames,
	}
	e.scenes = append(e.scenes, s)
	return s, nil
}

func (e *Engine) Active() (render.Scene, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return nil, render.ErrDisposed
	}
	if e.active == nil {
		return nil, nil
	}
	return e.active, nil
}

func (e *Engine) Controls() render.Controls { return controls{e} }

// Dispose tears the engine down; every later call fails with ErrDisposed.
func (e *Engine) Dispose() {
	e.mu.Lock()
	e.disposed = true
	e.mu.Unlock()
}

// ActiveScene returns the displayed scene without the liveness check.
func (e *Engine) ActiveScene() *Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Scenes returns every scene created so far, in creation order.
func (e *Engine) Scenes() []*Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Scene(nil), e.scenes...)
}

func (e *Engine) ControlsEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controlsEnabled
}

// FailHotspots makes every later CreateHotspot return err. A nil err restores
// normal behavior.
func (e *Engine) FailHotspots(err error) {
	e.mu.Lock()
	e.hotspotErr = err
	e.mu.Unlock()
}

// Switches counts SwitchTo calls.
func (e *Engine) Switches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.switches
}

type controls struct{ e *Engine }

func (c controls) Enable() {
	c.e.mu.Lock()
	c.e.controlsEnabled = true
	c.e.mu.Unlock()
}

func (c controls) Disable() {
	c.e.mu.Lock()
	c.e.controlsEnabled = false
	c.e.mu.Unlock()
}

type Scene struct {
	engine  *Engine
	source  render.Source
	layers  []render.Source
	params  tour.View
	pending int
	markers []*Marker
}

func (s *Scene) SwitchTo() error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	if s.engine.disposed {
		return render.ErrDisposed
	}
	s.engine.active = s
	s.engine.switches++
	return nil
}

func (s *Scene) View() (render.View, error) {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	if s.pending > 0 {
		s.pending--
		return nil, render.ErrNotReady
	}
	return view{s}, nil
}

func (s *Scene) Hotspots() render.HotspotContainer { return container{s} }

func (s *Scene) CreateLayer(src render.Source) error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	if s.engine.disposed {
		return render.ErrDisposed
	}
	s.layers = append(s.layers, src)
	return nil
}

func (s *Scene) Source() render.Source { return s.source }

func (s *Scene) Layers() []render.Source {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return append([]render.Source(nil), s.layers...)
}

func (s *Scene) Markers() []*Marker {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return append([]*Marker(nil), s.markers...)
}

// SetView moves the camera, as a visitor dragging the panorama would.
func (s *Scene) SetView(v tour.View) {
	s.engine.mu.Lock()
	s.params = v
	s.engine.mu.Unlock()
}

type view struct{ s *Scene }

func (v view) Yaw() float64   { return v.get().Yaw }
func (v view) Pitch() float64 { return v.get().Pitch }
func (v view) Fov() float64   { return v.get().Fov }

func (v view) get() tour.View {
	v.s.engine.mu.Lock()
	defer v.s.engine.mu.Unlock()
	return v.s.params
}

func (v view) SetParameters(p tour.View) { v.s.SetView(p) }

// ScreenToCoordinates maps the surface linearly onto the field of view around
// the current look direction.
func (v view) ScreenToCoordinates(p render.Point) (tour.Coords, error) {
	if p.X < 0 || p.Y < 0 || p.X > SurfaceWidth || p.Y > SurfaceHeight {
		return tour.Coords{}, render.ErrOutsideSurface
	}
	params := v.get()
	aspect := float64(SurfaceWidth) / SurfaceHeight
	return tour.Coords{
		Yaw:   params.Yaw + (p.X/SurfaceWidth-0.5)*params.Fov*aspect,
		Pitch: params.Pitch + (p.Y/SurfaceHeight-0.5)*params.Fov,
	}, nil
}

type container struct{ s *Scene }

func (c container) CreateHotspot(el render.Element, at tour.Coords) (render.Marker, error) {
	c.s.engine.mu.Lock()
	defer c.s.engine.mu.Unlock()
	if c.s.engine.disposed {
		return nil, render.ErrDisposed
	}
	if c.s.engine.hotspotErr != nil {
		return nil, c.s.engine.hotspotErr
	}
	m := &Marker{Element: el, engine: c.s.engine, pos: at}
	c.s.markers = append(c.s.markers, m)
	return m, nil
}

type Marker struct {
	Element render.Element
	engine  *Engine
	pos     tour.Coords
}

func (m *Marker) SetPosition(at tour.Coords) {
	m.engine.mu.Lock()
	m.pos = at
	m.engine.mu.Unlock()
}

func (m *Marker) Position() tour.Coords {
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()
	return m.pos
}

var _ render.Viewer = (*Engine)(nil)
