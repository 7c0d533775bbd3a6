package tour

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	ErrInvalidGeometry = errors.New("invalid geometry")
	ErrInvalidHotspot  = errors.New("invalid hotspot")
	ErrDuplicateScene  = errors.New("duplicate scene id")
	ErrSceneNotFound   = errors.New("scene not found")
	ErrHotspotNotFound = errors.New("hotspot not found")
)

// ValidateScene checks the scene's geometry and the field set of every hotspot.
func ValidateScene(s Scene) error {
	if s.Geometry.Width <= 0 {
		return fmt.Errorf("scene %q: width %d: %w", s.ID, s.Geometry.Width, ErrInvalidGeometry)
	}
	for i, h := range s.Hotspots {
		if err := ValidateHotspot(h); err != nil {
			return fmt.Errorf("scene %q hotspot %d: %w", s.ID, i, err)
		}
	}
	return nil
}

// ValidateHotspot reports whether h carries exactly the fields its type allows.
// Waypoint targets are not checked against the graph here; see DanglingTargets.
func ValidateHotspot(h Hotspot) error {
	switch h.Type {
	case HotspotInfo:
		if h.Target != "" {
			return fmt.Errorf("info hotspot has target %q: %w", h.Target, ErrInvalidHotspot)
		}
	case HotspotWaypoint:
		if h.Target == "" {
			return fmt.Errorf("waypoint without target: %w", ErrInvalidHotspot)
		}
		if h.Description != "" || h.URL != "" {
			return fmt.Errorf("waypoint has info fields: %w", ErrInvalidHotspot)
		}
	default:
		return fmt.Errorf("unknown type %q: %w", h.Type, ErrInvalidHotspot)
	}
	return nil
}

// Validate checks every scene and that scene ids are unique. All problems are
// returned joined.
func Validate(d Data) error {
	var errs []error
	seen := make(map[string]bool, len(d.Scenes))
	for _, s := range d.Scenes {
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("scene %q: %w", s.ID, ErrDuplicateScene))
		}
		seen[s.ID] = true
		if err := ValidateScene(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const lowResSuffix = "_lowres"

var imageExts = []string{".jpg", ".jpeg", ".png", ".webp"}

// ResolveLowRes returns the scene's low-resolution URL, deriving it from the
// full-resolution URL when none was recorded.
func ResolveLowRes(s Scene) string {
	if s.LowResURL != "" {
		return s.LowResURL
	}
	return DeriveLowRes(s.ImageURL)
}

// DeriveLowRes maps ".../<name>.<ext>" to ".../<name>_lowres.webp". Only the
// image extensions the transcoder accepts are stripped. A URL that already
// names a low-res derivative is returned unchanged.
func DeriveLowRes(imageURL string) string {
	dir, file := splitLast(imageURL)
	name := file
	ext := strings.ToLower(path.Ext(file))
	for _, e := range imageExts {
		if ext == e {
			name = file[:len(file)-len(ext)]
			break
		}
	}
	if strings.HasSuffix(name, lowResSuffix) && ext == ".webp" {
		return imageURL
	}
	return dir + name + lowResSuffix + ".webp"
}

func splitLast(u string) (dir, file string) {
	i := strings.LastIndex(u, "/")
	if i < 0 {
		return "", u
	}
	return u[:i+1], u[i+1:]
}
