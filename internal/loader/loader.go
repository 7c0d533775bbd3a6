// Package loader presents every tour scene instantly from its low-resolution
// derivative and upgrades it to the full-resolution image in the background
// without changing which scene the visitor is looking at.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/playperu/campustour/internal/render"
	"github.com/playperu/campustour/internal/tour"
)

// ErrNotReady is returned when a new renderable never became queryable
// within the frame budget.
var ErrNotReady = errors.New("renderable not ready within frame budget")

// Mode selects how a full-resolution image is applied.
type Mode int

const (
	// ModeReplace creates a new full-resolution renderable and switches to it
	// when the scene is still active.
	ModeReplace Mode = iota
	// ModeLayer stacks the full-resolution image on the existing renderable,
	// which shows it without a switch.
	ModeLayer
)

// Preloader fetches an image out of band, independent of the renderer.
type Preloader interface {
	Preload(ctx context.Context, url string) error
}

type Options struct {
	Mode          Mode
	InitialDelay  time.Duration
	NavigateDelay time.Duration
	FrameInterval time.Duration
	MaxFrames     int

	// After returns a channel that fires once d has elapsed. Defaults to
	// time.After.
	After func(d time.Duration) <-chan time.Time
	// NextFrame returns a channel that fires at the next display frame.
	// Defaults to waiting FrameInterval.
	NextFrame func() <-chan time.Time
}

func (o *Options) setDefaults() {
	if o.InitialDelay == 0 {
		o.InitialDelay = 1500 * time.Millisecond
	}
	if o.NavigateDelay == 0 {
		o.NavigateDelay = time.Second
	}
	if o.FrameInterval == 0 {
		o.FrameInterval = 16 * time.Millisecond
	}
	if o.MaxFrames == 0 {
		o.MaxFrames = 120
	}
	if o.After == nil {
		o.After = time.After
	}
	if o.NextFrame == nil {
		interval := o.FrameInterval
		o.NextFrame = func() <-chan time.Time { return time.After(interval) }
	}
}

// State is the resolution state of one scene.
type State int

const (
	StateLowRes State = iota
	StateUpgrading
	StateUpgraded
	// StateDegraded means the full-resolution image failed to load; the
	// low-res renderable stays for the rest of the session.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateLowRes:
		return "low-res"
	case StateUpgrading:
		return "upgrading"
	case StateUpgraded:
		return "upgraded"
	case StateDegraded:
		return "degraded"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type entry struct {
	scene      tour.Scene
	renderable render.Scene
	state      State
}

// Loader owns one viewer's scene map. It implements Navigator.
type Loader struct {
	viewer render.Viewer
	pre    Preloader
	logger *slog.Logger
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	flight singleflight.Group

	mu        sync.Mutex
	gen       uint64
	entries   map[string]*entry
	current   string
	listeners []func(sceneID string)
}

func New(viewer render.Viewer, pre Preloader, logger *slog.Logger, opts Options) *Loader {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		viewer:  viewer,
		pre:     pre,
		logger:  logger,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}
}

// Load builds a low-res renderable per scene, shows the first scene and
// schedules its upgrade. Calling Load again discards every renderable and
// pending upgrade from the previous tour.
func (l *Loader) Load(d tour.Data) error {
	l.mu.Lock()
	l.gen++
	l.entries = make(map[string]*entry, len(d.Scenes))
	l.current = ""

	var first string
	for _, s := range d.Scenes {
		if err := tour.ValidateScene(s); err != nil {
			l.logger.Warn("skipping scene", "scene", s.ID, "error", err)
			continue
		}
		src := render.Source{URL: tour.ResolveLowRes(s), Width: s.Geometry.Width}
		r, err := l.viewer.CreateScene(src, s.InitialView())
		if err != nil {
			l.mu.Unlock()
			return fmt.Errorf("creating scene %q: %w", s.ID, err)
		}
		l.attachHotspots(r, s)
		l.entries[s.ID] = &entry{scene: s.Clone(), renderable: r}
		if first == "" {
			first = s.ID
		}
	}
	l.mu.Unlock()

	if first == "" {
		return nil
	}
	return l.activate(first, l.opts.InitialDelay)
}

// Navigate switches the display to sceneID and schedules its upgrade.
func (l *Loader) Navigate(sceneID string) error {
	return l.activate(sceneID, l.opts.NavigateDelay)
}

func (l *Loader) activate(sceneID string, delay time.Duration) error {
	l.mu.Lock()
	e, ok := l.entries[sceneID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("navigate to %q: %w", sceneID, tour.ErrSceneNotFound)
	}
	if err := e.renderable.SwitchTo(); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("switching to %q: %w", sceneID, err)
	}
	l.current = sceneID
	if e.state == StateLowRes {
		l.scheduleUpgrade(l.gen, sceneID, delay)
	}
	listeners := append([]func(string){}, l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(sceneID)
	}
	return nil
}

// Current returns the id of the displayed scene.
func (l *Loader) Current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// OnChange registers fn to run after every scene switch.
func (l *Loader) OnChange(fn func(sceneID string)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// State reports the resolution state of a scene.
func (l *Loader) State(sceneID string) (State, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[sceneID]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// Renderable returns the renderable currently mapped to a scene.
func (l *Loader) Renderable(sceneID string) (render.Scene, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[sceneID]
	if !ok {
		return nil, false
	}
	return e.renderable, true
}

// Wait blocks until every scheduled upgrade has finished or been abandoned.
func (l *Loader) Wait() {
	l.wg.Wait()
}

// Close abandons pending upgrades and waits for in-flight ones to return.
func (l *Loader) Close() {
	l.cancel()
	l.wg.Wait()
}

// scheduleUpgrade must be called with l.mu held.
func (l *Loader) scheduleUpgrade(gen uint64, sceneID string, delay time.Duration) {
	fire := l.opts.After(delay)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		select {
		case <-l.ctx.Done():
			return
		case <-fire:
		}
		l.upgrade(gen, sceneID)
	}()
}

func (l *Loader) upgrade(gen uint64, sceneID string) {
	log := l.logger.With("scene", sceneID)

	l.mu.Lock()
	active, err := l.viewer.Active()
	if err != nil {
		l.mu.Unlock()
		log.Debug("renderer gone before upgrade", "error", err)
		return
	}
	e, ok := l.entries[sceneID]
	if gen != l.gen || !ok || e.state != StateLowRes {
		l.mu.Unlock()
		return
	}
	e.state = StateUpgrading
	scene := e.scene
	startedOn := e.renderable
	wasActive := active == startedOn
	l.mu.Unlock()

	log.Info("loading high-res image", "url", scene.ImageURL)
	_, err, _ = l.flight.Do(scene.ImageURL, func() (any, error) {
		return nil, l.pre.Preload(l.ctx, scene.ImageURL)
	})
	if err != nil {
		log.Warn("high-res preload failed, keeping low-res", "error", err)
		l.setState(gen, e, StateDegraded)
		return
	}

	if !render.Alive(l.viewer) {
		log.Debug("renderer gone after preload")
		return
	}

	src := render.Source{URL: scene.ImageURL, Width: scene.Geometry.Width}

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return
	}
	if l.opts.Mode == ModeLayer {
		err := e.renderable.CreateLayer(src)
		if err != nil {
			e.state = StateDegraded
			l.mu.Unlock()
			log.Warn("creating high-res layer failed", "error", err)
			return
		}
		e.state = StateUpgraded
		l.mu.Unlock()
		log.Info("high-res layer added")
		return
	}

	hi, err := l.viewer.CreateScene(src, scene.InitialView())
	if err != nil {
		e.state = StateDegraded
		l.mu.Unlock()
		log.Warn("creating high-res scene failed", "error", err)
		return
	}
	l.attachHotspots(hi, scene)
	e.renderable = hi
	e.state = StateUpgraded
	l.mu.Unlock()

	if !wasActive {
		return
	}
	if err := l.waitReady(hi); err != nil {
		log.Warn("high-res scene not ready, staying on low-res", "error", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return
	}
	now, err := l.viewer.Active()
	if err != nil || now != startedOn {
		// The visitor moved on; the upgrade stays cached for the next visit.
		return
	}
	if err := hi.SwitchTo(); err != nil {
		log.Warn("switching to high-res failed", "error", err)
		return
	}
	log.Info("switched to high-res")
}

// waitReady polls one frame at a time until r's view can be queried.
func (l *Loader) waitReady(r render.Scene) error {
	for range l.opts.MaxFrames {
		if !render.Alive(l.viewer) {
			return render.ErrDisposed
		}
		if _, err := r.View(); err == nil {
			return nil
		}
		select {
		case <-l.ctx.Done():
			return l.ctx.Err()
		case <-l.opts.NextFrame():
		}
	}
	return ErrNotReady
}

func (l *Loader) setState(gen uint64, e *entry, s State) {
	l.mu.Lock()
	if gen == l.gen {
		e.state = s
	}
	l.mu.Unlock()
}

func (l *Loader) attachHotspots(r render.Scene, s tour.Scene) {
	for _, h := range s.Hotspots {
		if _, err := r.Hotspots().CreateHotspot(l.element(h), h.Coords()); err != nil {
			l.logger.Warn("attaching hotspot", "scene", s.ID, "error", err)
		}
	}
}

func (l *Loader) element(h tour.Hotspot) render.Element {
	el := render.Element{Kind: h.Type, Text: h.Text, Description: h.Description, URL: h.URL}
	if h.Type == tour.HotspotWaypoint && h.Target != "" {
		target := h.Target
		el.OnActivate = func() {
			if err := l.Navigate(target); err != nil {
				l.logger.Warn("waypoint navigation failed", "target", target, "error", err)
			}
		}
	}
	return el
}
