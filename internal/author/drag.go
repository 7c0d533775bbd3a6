package author

import (
	"fmt"

	"github.com/playperu/campustour/internal/render"
	"github.com/playperu/campustour/internal/tour"
)

// hotspotMoved is emitted by a drag for every converted pointer position.
// The session is the only place it is applied to the document.
type hotspotMoved struct {
	sceneID string
	index   int
	at      tour.Coords
}

func (s *Session) apply(ev hotspotMoved) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.data.SceneIndex(ev.sceneID)
	if i < 0 || ev.index >= len(s.data.Scenes[i].Hotspots) {
		return
	}
	h := &s.data.Scenes[i].Hotspots[ev.index]
	h.Yaw, h.Pitch = ev.at.Yaw, ev.at.Pitch
}

// Drag is one pointer gesture repositioning a hotspot.
type Drag struct {
	s       *Session
	sceneID string
	index   int
	scene   render.Scene
	marker  render.Marker

	last  tour.Coords
	moved bool
	done  bool
}

// BeginDrag starts moving a hotspot of the selected scene. The engine's own
// camera controls stay disabled until End.
func (s *Session) BeginDrag(index int) (*Drag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.selectedIndex()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(s.data.Scenes[i].Hotspots) || index >= len(s.markers) {
		return nil, fmt.Errorf("drag hotspot %d: %w", index, tour.ErrHotspotNotFound)
	}
	if s.dragging {
		return nil, ErrDragging
	}
	if !render.Alive(s.viewer) {
		return nil, render.ErrDisposed
	}
	s.dragging = true
	s.viewer.Controls().Disable()

	return &Drag{
		s:       s,
		sceneID: s.selected,
		index:   index,
		scene:   s.current,
		marker:  s.markers[index],
		last:    s.data.Scenes[i].Hotspots[index].Coords(),
	}, nil
}

// Move converts p against the current view and moves the marker there. Points
// the view cannot convert, such as ones off the surface, are ignored; the next
// move corrects the position.
func (d *Drag) Move(p render.Point) {
	if d.done || !render.Alive(d.s.viewer) {
		return
	}
	view, err := d.scene.View()
	if err != nil {
		return
	}
	at, err := view.ScreenToCoordinates(p)
	if err != nil {
		return
	}
	d.marker.SetPosition(at)
	d.last, d.moved = at, true
	d.s.apply(hotspotMoved{sceneID: d.sceneID, index: d.index, at: at})
}

// End re-enables camera controls and persists the last converted position
// into the document without reloading the scene. It returns that position.
func (d *Drag) End() tour.Coords {
	if d.done {
		return d.last
	}
	d.done = true

	if render.Alive(d.s.viewer) {
		d.s.viewer.Controls().Enable()
	}
	if d.moved {
		d.s.apply(hotspotMoved{sceneID: d.sceneID, index: d.index, at: d.last})
	}

	d.s.mu.Lock()
	d.s.dragging = false
	d.s.suppress()
	d.s.mu.Unlock()

	d.s.logger.Debug("hotspot moved", "scene", d.sceneID, "index", d.index, "yaw", d.last.Yaw, "pitch", d.last.Pitch)
	return d.last
}
