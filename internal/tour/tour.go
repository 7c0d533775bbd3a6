// Package tour defines the panorama tour graph: scenes, hotspots and default
// views. It has zero external dependencies. Values are safe to share between
// goroutines as long as callers Clone before mutating.
package tour

import "math"

type HotspotType string

const (
	HotspotInfo     HotspotType = "info"
	HotspotWaypoint HotspotType = "waypoint"
)

// Coords is a point on the sphere, in radians.
type Coords struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// View is a camera look direction plus vertical field of view, in radians.
type View struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Fov   float64 `json:"fov"`
}

type Geometry struct {
	Width int `json:"width"`
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Hotspot struct {
	Type        HotspotType `json:"type"`
	Yaw         float64     `json:"yaw"`
	Pitch       float64     `json:"pitch"`
	Text        string      `json:"text"`
	Description string      `json:"description,omitempty"`
	URL         string      `json:"url,omitempty"`
	Target      string      `json:"target,omitempty"`
}

func (h Hotspot) Coords() Coords {
	return Coords{Yaw: h.Yaw, Pitch: h.Pitch}
}

type Scene struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	ImageURL    string      `json:"imageUrl"`
	LowResURL   string      `json:"lowResUrl,omitempty"`
	InView      string      `json:"inView,omitempty"`
	Dimensions  *Dimensions `json:"dimensions,omitempty"`
	Geometry    Geometry    `json:"geometry"`
	DefaultView *View       `json:"defaultView,omitempty"`
	Hotspots    []Hotspot   `json:"hotspots"`
}

// Data is the root aggregate of a tour. Scene order is display order only.
type Data struct {
	Scenes []Scene `json:"scenes"`
}

// Empty returns the document substituted when a tour cannot be loaded.
func Empty() Data {
	return Data{Scenes: []Scene{}}
}

// Placeholder values used when the authoring tool creates new content.
const (
	NewSceneName       = "New Scene"
	NewSceneImage      = "tour_images/pano1.jpg"
	NewSceneWidth      = 4000
	NewInfoText        = "New Info Point"
	NewInfoDescription = "Description here"
	NewWaypointText    = "New Waypoint"
	FallbackWaypointID = "scene1"
	DefaultFov         = 90 * math.Pi / 180
)

// InitialView returns the scene's default view, or a level 90° view.
func (s Scene) InitialView() View {
	if s.DefaultView != nil {
		return *s.DefaultView
	}
	return View{Fov: DefaultFov}
}

// Normalize replaces nil slices so the document encodes "hotspots": [] rather
// than null.
func (d *Data) Normalize() {
	if d.Scenes == nil {
		d.Scenes = []Scene{}
	}
	for i := range d.Scenes {
		if d.Scenes[i].Hotspots == nil {
			d.Scenes[i].Hotspots = []Hotspot{}
		}
	}
}

// Clone returns a deep copy of d.
func (d Data) Clone() Data {
	out := Data{Scenes: make([]Scene, len(d.Scenes))}
	for i, s := range d.Scenes {
		out.Scenes[i] = s.Clone()
	}
	return out
}

// Clone returns a deep copy of s.
func (s Scene) Clone() Scene {
	c := s
	c.Hotspots = append([]Hotspot{}, s.Hotspots...)
	if s.DefaultView != nil {
		v := *s.DefaultView
		c.DefaultView = &v
	}
	if s.Dimensions != nil {
		dim := *s.Dimensions
		c.Dimensions = &dim
	}
	return c
}

// ImagesDir is the public path prefix under which tour images are served.
const ImagesDir = "tour_images/"

// Upload is what the external transcoding pipeline returns for one image.
type Upload struct {
	Filename       string     `json:"filename"`
	LowResFilename string     `json:"lowResFilename"`
	Dimensions     Dimensions `json:"dimensions"`
}

// Apply points s at the uploaded image and its low-res derivative.
func (u Upload) Apply(s Scene) Scene {
	s.ImageURL = ImagesDir + u.Filename
	if u.LowResFilename != "" {
		s.LowResURL = ImagesDir + u.LowResFilename
	}
	dim := u.Dimensions
	s.Dimensions = &dim
	return s
}
