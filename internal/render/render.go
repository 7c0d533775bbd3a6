// Package render is the capability surface the tour consumes from a panorama
// rendering engine. Projection, geometry and drawing live behind these
// interfaces; the tour only creates scenes, switches between them, reads and
// writes view angles, converts screen points to sphere coordinates and
// anchors hotspot elements.
package render

import (
	"errors"

	"github.com/playperu/campustour/internal/tour"
)

var (
	// ErrDisposed is returned by any call on an engine that has been torn down.
	ErrDisposed = errors.New("renderer disposed")
	// ErrNotReady is returned by Scene.View until the scene can be queried.
	ErrNotReady = errors.New("scene not ready")
	// ErrOutsideSurface is returned when a screen point is not on the
	// rendered surface.
	ErrOutsideSurface = errors.New("point outside render surface")
)

// Source is an equirectangular image and its width in pixels.
type Source struct {
	URL   string
	Width int
}

// Point is a position in pixels relative to the top-left of the render surface.
type Point struct {
	X, Y float64
}

// Element is the UI element anchored at a hotspot position.
type Element struct {
	Kind        tour.HotspotType
	Text        string
	Description string
	URL         string
	// OnActivate runs when the visitor clicks the element. May be nil.
	OnActivate func()
}

// Viewer is one engine instance bound to a display surface.
type Viewer interface {
	CreateScene(src Source, initial tour.View) (Scene, error)
	// Active returns the displayed scene. It doubles as the liveness probe:
	// after teardown it fails with ErrDisposed.
	Active() (Scene, error)
	Controls() Controls
}

// Controls are the engine's own pointer-driven camera controls.
type Controls interface {
	Enable()
	Disable()
}

type Scene interface {
	SwitchTo() error
	View() (View, error)
	Hotspots() HotspotContainer
	// CreateLayer stacks src on top of the scene's existing layers.
	CreateLayer(src Source) error
}

type View interface {
	Yaw() float64
	Pitch() float64
	Fov() float64
	SetParameters(v tour.View)
	// ScreenToCoordinates maps p to sphere coordinates using the view's
	// current parameters.
	ScreenToCoordinates(p Point) (tour.Coords, error)
}

type HotspotContainer interface {
	CreateHotspot(el Element, at tour.Coords) (Marker, error)
}

// Marker is a hotspot element placed in a scene.
type Marker interface {
	SetPosition(at tour.Coords)
	Position() tour.Coords
}

// Parameters reads the view's current yaw, pitch and fov.
func Parameters(v View) tour.View {
	return tour.View{Yaw: v.Yaw(), Pitch: v.Pitch(), Fov: v.Fov()}
}

// Alive reports whether the engine still answers the liveness probe.
func Alive(v Viewer) bool {
	_, err := v.Active()
	return err == nil
}
