// Package author lets an operator build the tour graph while looking at a live
// panorama: hotspots are created at the view center, dragged on the sphere
// and edited in place without reloading the scene, which would reset the
// camera.
package author

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/campustour/internal/render"
	"github.com/playperu/campustour/internal/tour"
)

var (
	ErrNoScene = errors.New("no scene selected")
	// ErrDragging is returned when a second drag starts before the first
	// ends, or when a change would rebuild or reorder the hotspots being
	// dragged.
	ErrDragging = errors.New("drag already in progress")
)

// Saver persists the whole tour document.
type Saver interface {
	SaveTour(ctx context.Context, d tour.Data) error
}

// State is the authoring state of the selected scene.
type State int

const (
	StateViewing State = iota
	StateSuppressed
	StateReloading
)

func (s State) String() string {
	switch s {
	case StateViewing:
		return "viewing"
	case StateSuppressed:
		return "suppressed"
	case StateReloading:
		return "reloading"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Options struct {
	// SuppressWindow is how long after a live mutation Refresh keeps the
	// scene instead of rebuilding it.
	SuppressWindow time.Duration
	Now            func() time.Time
	NewID          func() string
}

func (o *Options) setDefaults() {
	if o.SuppressWindow == 0 {
		o.SuppressWindow = 100 * time.Millisecond
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
}

// HotspotFields are the operator-editable fields of a hotspot. Type and
// position are changed through Create and drag only.
type HotspotFields struct {
	Text        string
	Description string
	URL         string
	Target      string
}

// Session is one operator's authoring session. It is the single owner of its
// tour document; renderer callbacks reach it only through its methods.
type Session struct {
	viewer render.Viewer
	saver  Saver
	logger *slog.Logger
	opts   Options

	mu            sync.Mutex
	data          tour.Data
	selected      string
	current       render.Scene
	markers       []render.Marker
	suppressUntil time.Time
	dragging      bool
	reloading     bool
	reloads       int
}

func NewSession(viewer render.Viewer, saver Saver, logger *slog.Logger, opts Options) *Session {
	opts.setDefaults()
	return &Session{viewer: viewer, saver: saver, logger: logger, opts: opts}
}

// Load replaces the document and selects its first scene.
func (s *Session) Load(d tour.Data) error {
	d = d.Clone()
	d.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dragging {
		return ErrDragging
	}
	s.data = d
	s.selected = ""
	s.current = nil
	s.markers = nil
	s.suppressUntil = time.Time{}
	if len(d.Scenes) == 0 {
		return nil
	}
	s.selected = d.Scenes[0].ID
	return s.reload()
}

// Data returns a copy of the document.
func (s *Session) Data() tour.Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Current returns the renderable showing the selected scene.
func (s *Session) Current() render.Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state()
}

func (s *Session) state() State {
	switch {
	case s.reloading:
		return StateReloading
	case s.dragging || s.opts.Now().Before(s.suppressUntil):
		return StateSuppressed
	}
	return StateViewing
}

// Reloads counts full scene rebuilds.
func (s *Session) Reloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloads
}

// Refresh rebuilds the selected scene from the document unless a live
// mutation is in progress or just finished. It reports whether it reloaded.
func (s *Session) Refresh() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" || s.state() != StateViewing {
		return false, nil
	}
	return true, s.reload()
}

// SelectScene shows another scene. It clears any pending suppression.
func (s *Session) SelectScene(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dragging {
		return ErrDragging
	}
	if s.data.SceneIndex(id) < 0 {
		return fmt.Errorf("select %q: %w", id, tour.ErrSceneNotFound)
	}
	s.suppressUntil = time.Time{}
	s.selected = id
	return s.reload()
}

// Create inserts a hotspot of type t at the current view center and attaches
// its marker to the live renderable. It returns the new hotspot's index.
func (s *Session) Create(t tour.HotspotType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.selectedIndex()
	if err != nil {
		return 0, err
	}
	view, err := s.current.View()
	if err != nil {
		return 0, fmt.Errorf("reading view: %w", err)
	}
	at := tour.Coords{Yaw: view.Yaw(), Pitch: view.Pitch()}
	h := s.data.NewHotspot(t, s.selected, at)
	if err := tour.ValidateHotspot(h); err != nil {
		return 0, err
	}

	m, err := s.current.Hotspots().CreateHotspot(element(h), at)
	if err != nil {
		return 0, fmt.Errorf("attaching marker: %w", err)
	}

	// Markers and hotspots share indexes; both grow together or not at all.
	s.suppress()
	scene := &s.data.Scenes[i]
	scene.Hotspots = append(scene.Hotspots, h)
	s.markers = append(s.markers, m)
	idx := len(scene.Hotspots) - 1
	s.logger.Debug("hotspot created", "scene", s.selected, "index", idx, "type", t)
	return idx, nil
}

// Delete removes a hotspot and rebuilds the scene, since a marker cannot be
// detached from a live renderable.
func (s *Session) Delete(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dragging {
		return ErrDragging
	}
	i, err := s.selectedIndex()
	if err != nil {
		return err
	}
	scene := &s.data.Scenes[i]
	if index < 0 || index >= len(scene.Hotspots) {
		return fmt.Errorf("delete hotspot %d: %w", index, tour.ErrHotspotNotFound)
	}
	scene.Hotspots = append(scene.Hotspots[:index:index], scene.Hotspots[index+1:]...)
	return s.reload()
}

// Edit changes a hotspot's text fields. A waypoint's text follows its
// target's name. The scene is not reloaded.
func (s *Session) Edit(index int, f HotspotFields) (tour.Hotspot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.selectedIndex()
	if err != nil {
		return tour.Hotspot{}, err
	}
	scene := &s.data.Scenes[i]
	if index < 0 || index >= len(scene.Hotspots) {
		return tour.Hotspot{}, fmt.Errorf("edit hotspot %d: %w", index, tour.ErrHotspotNotFound)
	}
	h := scene.Hotspots[index]
	h.Text = f.Text
	switch h.Type {
	case tour.HotspotInfo:
		h.Description, h.URL = f.Description, f.URL
	case tour.HotspotWaypoint:
		h.Target = f.Target
		h = s.data.SyncWaypointText(h)
	}
	if err := tour.ValidateHotspot(h); err != nil {
		return tour.Hotspot{}, err
	}
	scene.Hotspots[index] = h
	return h, nil
}

// CaptureDefaultView stores the current camera as the scene's default view
// and saves the document straight away.
func (s *Session) CaptureDefaultView(ctx context.Context) (tour.View, error) {
	s.mu.Lock()
	i, err := s.selectedIndex()
	if err != nil {
		s.mu.Unlock()
		return tour.View{}, err
	}
	view, err := s.current.View()
	if err != nil {
		s.mu.Unlock()
		return tour.View{}, fmt.Errorf("reading view: %w", err)
	}
	v := render.Parameters(view)
	s.data.Scenes[i].DefaultView = &v
	snapshot := s.data.Clone()
	s.mu.Unlock()

	if err := s.saver.SaveTour(ctx, snapshot); err != nil {
		return v, fmt.Errorf("saving default view: %w", err)
	}
	return v, nil
}

// SetViewDirection points the camera, in degrees.
func (s *Session) SetViewDirection(yawDeg, pitchDeg, fovDeg float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoScene
	}
	view, err := s.current.View()
	if err != nil {
		return fmt.Errorf("reading view: %w", err)
	}
	view.SetParameters(tour.View{
		Yaw:   yawDeg * math.Pi / 180,
		Pitch: pitchDeg * math.Pi / 180,
		Fov:   fovDeg * math.Pi / 180,
	})
	return nil
}

// AddScene appends a placeholder scene and selects it.
func (s *Session) AddScene() (tour.Scene, error) {
	sc := tour.Scene{
		ID:       s.opts.NewID(),
		Name:     tour.NewSceneName,
		ImageURL: tour.NewSceneImage,
		Geometry: tour.Geometry{Width: tour.NewSceneWidth},
		Hotspots: []tour.Hotspot{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dragging {
		return tour.Scene{}, ErrDragging
	}
	s.data.Scenes = append(s.data.Scenes, sc)
	s.selected = sc.ID
	return sc.Clone(), s.reload()
}

// UpdateScene replaces a scene's metadata and shows it.
func (s *Session) UpdateScene(sc tour.Scene) error {
	if err := tour.ValidateScene(sc); err != nil {
		return err
	}
	sc = sc.Clone()
	if sc.Hotspots == nil {
		sc.Hotspots = []tour.Hotspot{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dragging {
		return ErrDragging
	}
	if err := s.data.ReplaceScene(sc); err != nil {
		return err
	}
	s.selected = sc.ID
	return s.reload()
}

// DeleteScene removes a scene. Waypoints in other scenes that target it are
// kept with their now stale target. Deleting the selected scene selects the
// first remaining one.
func (s *Session) DeleteScene(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dragging {
		return ErrDragging
	}
	if err := s.data.RemoveScene(id); err != nil {
		return err
	}
	if n := len(s.data.DanglingTargets()); n > 0 {
		s.logger.Info("scene deleted with waypoints still pointing at it", "scene", id, "dangling", n)
	}
	if s.selected != id {
		return nil
	}
	if len(s.data.Scenes) == 0 {
		s.selected = ""
		s.current = nil
		s.markers = nil
		return nil
	}
	s.selected = s.data.Scenes[0].ID
	return s.reload()
}

// ApplyUpload points a scene at a freshly transcoded image.
func (s *Session) ApplyUpload(sceneID string, u tour.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dragging {
		return ErrDragging
	}
	i := s.data.SceneIndex(sceneID)
	if i < 0 {
		return fmt.Errorf("apply upload to %q: %w", sceneID, tour.ErrSceneNotFound)
	}
	s.data.Scenes[i] = u.Apply(s.data.Scenes[i])
	if sceneID != s.selected {
		return nil
	}
	return s.reload()
}

// Save persists the whole document.
func (s *Session) Save(ctx context.Context) error {
	snapshot := s.Data()
	if err := s.saver.SaveTour(ctx, snapshot); err != nil {
		return fmt.Errorf("saving tour: %w", err)
	}
	s.logger.Info("tour saved", "scenes", len(snapshot.Scenes))
	return nil
}

// selectedIndex must be called with s.mu held.
func (s *Session) selectedIndex() (int, error) {
	if s.selected == "" || s.current == nil {
		return 0, ErrNoScene
	}
	i := s.data.SceneIndex(s.selected)
	if i < 0 {
		return 0, fmt.Errorf("selected %q: %w", s.selected, tour.ErrSceneNotFound)
	}
	return i, nil
}

func (s *Session) suppress() {
	s.suppressUntil = s.opts.Now().Add(s.opts.SuppressWindow)
}

// reload rebuilds the selected scene at full resolution. Must be called with
// s.mu held.
func (s *Session) reload() error {
	sc, ok := s.data.Scene(s.selected)
	if !ok {
		return fmt.Errorf("reload %q: %w", s.selected, tour.ErrSceneNotFound)
	}
	if !render.Alive(s.viewer) {
		return render.ErrDisposed
	}

	s.reloading = true
	defer func() { s.reloading = false }()

	r, err := s.viewer.CreateScene(render.Source{URL: sc.ImageURL, Width: sc.Geometry.Width}, sc.InitialView())
	if err != nil {
		return fmt.Errorf("creating scene %q: %w", sc.ID, err)
	}
	if err := r.SwitchTo(); err != nil {
		return fmt.Errorf("switching to %q: %w", sc.ID, err)
	}
	markers := make([]render.Marker, 0, len(sc.Hotspots))
	for _, h := range sc.Hotspots {
		m, err := r.Hotspots().CreateHotspot(element(h), h.Coords())
		if err != nil {
			return fmt.Errorf("attaching hotspot: %w", err)
		}
		markers = append(markers, m)
	}
	s.current = r
	s.markers = markers
	s.reloads++
	return nil
}

func element(h tour.Hotspot) render.Element {
	return render.Element{Kind: h.Type, Text: h.Text, Description: h.Description, URL: h.URL}
}
