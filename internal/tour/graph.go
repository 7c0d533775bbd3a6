package tour

import "fmt"

// SceneIndex returns the position of the scene with the given id, or -1.
func (d Data) SceneIndex(id string) int {
	for i, s := range d.Scenes {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Scene returns a copy of the scene with the given id.
func (d Data) Scene(id string) (Scene, bool) {
	i := d.SceneIndex(id)
	if i < 0 {
		return Scene{}, false
	}
	return d.Scenes[i], true
}

// ReplaceScene swaps in s for the scene with the same id.
func (d *Data) ReplaceScene(s Scene) error {
	i := d.SceneIndex(s.ID)
	if i < 0 {
		return fmt.Errorf("replace %q: %w", s.ID, ErrSceneNotFound)
	}
	d.Scenes[i] = s
	return nil
}

// RemoveScene deletes the scene with the given id. Waypoints elsewhere that
// target it are left untouched and become dangling; see PruneDangling.
func (d *Data) RemoveScene(id string) error {
	i := d.SceneIndex(id)
	if i < 0 {
		return fmt.Errorf("remove %q: %w", id, ErrSceneNotFound)
	}
	d.Scenes = append(d.Scenes[:i:i], d.Scenes[i+1:]...)
	return nil
}

// DanglingRef identifies a waypoint whose target no longer exists.
type DanglingRef struct {
	SceneID      string `json:"sceneId"`
	HotspotIndex int    `json:"hotspotIndex"`
	Target       string `json:"target"`
}

// DanglingTargets lists every waypoint whose target is not a scene id.
func (d Data) DanglingTargets() []DanglingRef {
	ids := make(map[string]bool, len(d.Scenes))
	for _, s := range d.Scenes {
		ids[s.ID] = true
	}
	var refs []DanglingRef
	for _, s := range d.Scenes {
		for i, h := range s.Hotspots {
			if h.Type == HotspotWaypoint && !ids[h.Target] {
				refs = append(refs, DanglingRef{SceneID: s.ID, HotspotIndex: i, Target: h.Target})
			}
		}
	}
	return refs
}

// PruneDangling removes waypoints with stale targets and reports how many
// were removed.
func (d *Data) PruneDangling() int {
	ids := make(map[string]bool, len(d.Scenes))
	for _, s := range d.Scenes {
		ids[s.ID] = true
	}
	removed := 0
	for i := range d.Scenes {
		kept := d.Scenes[i].Hotspots[:0:0]
		for _, h := range d.Scenes[i].Hotspots {
			if h.Type == HotspotWaypoint && !ids[h.Target] {
				removed++
				continue
			}
			kept = append(kept, h)
		}
		d.Scenes[i].Hotspots = kept
	}
	return removed
}

// WaypointTarget picks the default target for a new waypoint placed in scene
// from: the first other scene, else the first scene.
func (d Data) WaypointTarget(from string) (Scene, bool) {
	for _, s := range d.Scenes {
		if s.ID != from {
			return s, true
		}
	}
	if len(d.Scenes) > 0 {
		return d.Scenes[0], true
	}
	return Scene{}, false
}

// NewHotspot builds a placeholder hotspot of type t at c. Waypoints point at
// WaypointTarget(from) and carry its name as text.
func (d Data) NewHotspot(t HotspotType, from string, c Coords) Hotspot {
	h := Hotspot{Type: t, Yaw: c.Yaw, Pitch: c.Pitch}
	if t == HotspotInfo {
		h.Text = NewInfoText
		h.Description = NewInfoDescription
		return h
	}
	h.Target = FallbackWaypointID
	h.Text = NewWaypointText
	if target, ok := d.WaypointTarget(from); ok {
		h.Target = target.ID
		h.Text = target.Name
	}
	return h
}

// SyncWaypointText sets a waypoint's text to its target scene's current name.
// Info hotspots and stale targets are returned unchanged.
func (d Data) SyncWaypointText(h Hotspot) Hotspot {
	if h.Type != HotspotWaypoint || h.Target == "" {
		return h
	}
	if target, ok := d.Scene(h.Target); ok {
		h.Text = target.Name
	}
	return h
}
