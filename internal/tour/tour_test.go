package tour

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleTour() Data {
	return Data{Scenes: []Scene{
		{
			ID: "library", Name: "Library", ImageURL: "tour_images/library.jpg",
			Geometry: Geometry{Width: 8000},
			Hotspots: []Hotspot{
				{Type: HotspotWaypoint, Yaw: 0.5, Pitch: 0.1, Text: "Atrium", Target: "atrium"},
				{Type: HotspotInfo, Yaw: -1, Pitch: 0, Text: "Desk", Description: "Help desk"},
			},
		},
		{
			ID: "atrium", Name: "Atrium", ImageURL: "tour_images/atrium.webp",
			Geometry: Geometry{Width: 4000},
			Hotspots: []Hotspot{
				{Type: HotspotWaypoint, Yaw: 2, Pitch: 0, Text: "Library", Target: "library"},
			},
		},
	}}
}

func TestValidateScene(t *testing.T) {
	tests := []struct {
		name    string
		scene   Scene
		wantErr error
	}{
		{name: "ok", scene: sampleTour().Scenes[0]},
		{name: "zero width", scene: Scene{ID: "a"}, wantErr: ErrInvalidGeometry},
		{name: "negative width", scene: Scene{ID: "a", Geometry: Geometry{Width: -5}}, wantErr: ErrInvalidGeometry},
		{
			name: "waypoint without target",
			scene: Scene{ID: "a", Geometry: Geometry{Width: 10}, Hotspots: []Hotspot{
				{Type: HotspotWaypoint, Text: "x"},
			}},
			wantErr: ErrInvalidHotspot,
		},
		{
			name: "info with target",
			scene: Scene{ID: "a", Geometry: Geometry{Width: 10}, Hotspots: []Hotspot{
				{Type: HotspotInfo, Text: "x", Target: "b"},
			}},
			wantErr: ErrInvalidHotspot,
		},
		{
			name: "waypoint with url",
			scene: Scene{ID: "a", Geometry: Geometry{Width: 10}, Hotspots: []Hotspot{
				{Type: HotspotWaypoint, Text: "x", Target: "b", URL: "https://example.com"},
			}},
			wantErr: ErrInvalidHotspot,
		},
		{
			name: "unknown type",
			scene: Scene{ID: "a", Geometry: Geometry{Width: 10}, Hotspots: []Hotspot{
				{Type: "door", Text: "x"},
			}},
			wantErr: ErrInvalidHotspot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScene(tt.scene)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDuplicateIDs(t *testing.T) {
	d := sampleTour()
	d.Scenes = append(d.Scenes, d.Scenes[0])
	if err := Validate(d); !errors.Is(err, ErrDuplicateScene) {
		t.Fatalf("err = %v, want ErrDuplicateScene", err)
	}
	if err := Validate(sampleTour()); err != nil {
		t.Fatalf("sample tour should validate: %v", err)
	}
}

func TestResolveLowRes(t *testing.T) {
	tests := []struct {
		name  string
		scene Scene
		want  string
	}{
		{name: "jpg", scene: Scene{ImageURL: "tour_images/library.jpg"}, want: "tour_images/library_lowres.webp"},
		{name: "upper case ext", scene: Scene{ImageURL: "/img/A.JPEG"}, want: "/img/A_lowres.webp"},
		{name: "webp", scene: Scene{ImageURL: "image-1.webp"}, want: "image-1_lowres.webp"},
		{name: "unknown ext kept", scene: Scene{ImageURL: "a/b.gif"}, want: "a/b.gif_lowres.webp"},
		{name: "explicit low res wins", scene: Scene{ImageURL: "a.jpg", LowResURL: "small/a.webp"}, want: "small/a.webp"},
		{name: "already low res", scene: Scene{ImageURL: "x/a_lowres.webp"}, want: "x/a_lowres.webp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveLowRes(tt.scene)
			if got != tt.want {
				t.Fatalf("ResolveLowRes = %q, want %q", got, tt.want)
			}
			if again := ResolveLowRes(tt.scene); again != got {
				t.Fatalf("second call = %q, first %q", again, got)
			}
			if tt.scene.LowResURL == "" {
				if again := DeriveLowRes(got); again != got {
					t.Fatalf("derived URL not stable: %q -> %q", got, again)
				}
			}
		})
	}
}

func TestRemoveSceneLeavesDanglingTarget(t *testing.T) {
	d := sampleTour()
	if err := d.RemoveScene("atrium"); err != nil {
		t.Fatalf("RemoveScene: %v", err)
	}

	lib, ok := d.Scene("library")
	if !ok {
		t.Fatal("library scene missing")
	}
	if lib.Hotspots[0].Target != "atrium" {
		t.Fatalf("waypoint target rewritten to %q", lib.Hotspots[0].Target)
	}

	want := []DanglingRef{{SceneID: "library", HotspotIndex: 0, Target: "atrium"}}
	if diff := cmp.Diff(want, d.DanglingTargets()); diff != "" {
		t.Errorf("DanglingTargets mismatch (-want +got):\n%s", diff)
	}

	if err := d.RemoveScene("atrium"); !errors.Is(err, ErrSceneNotFound) {
		t.Fatalf("second remove err = %v, want ErrSceneNotFound", err)
	}
}

func TestPruneDangling(t *testing.T) {
	d := sampleTour()
	_ = d.RemoveScene("atrium")

	if n := d.PruneDangling(); n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if refs := d.DanglingTargets(); len(refs) != 0 {
		t.Fatalf("dangling after prune: %v", refs)
	}
	lib, _ := d.Scene("library")
	if len(lib.Hotspots) != 1 || lib.Hotspots[0].Type != HotspotInfo {
		t.Fatalf("unexpected hotspots after prune: %+v", lib.Hotspots)
	}
}

func TestNewHotspot(t *testing.T) {
	d := sampleTour()
	c := Coords{Yaw: 1.25, Pitch: -0.3}

	info := d.NewHotspot(HotspotInfo, "library", c)
	if info.Text != NewInfoText || info.Description != NewInfoDescription || info.Coords() != c {
		t.Errorf("info hotspot = %+v", info)
	}

	wp := d.NewHotspot(HotspotWaypoint, "library", c)
	if wp.Target != "atrium" || wp.Text != "Atrium" {
		t.Errorf("waypoint = %+v, want target atrium text Atrium", wp)
	}

	lonely := Data{Scenes: []Scene{{ID: "only", Name: "Only"}}}
	if wp := lonely.NewHotspot(HotspotWaypoint, "only", c); wp.Target != "only" {
		t.Errorf("single-scene waypoint target = %q, want only", wp.Target)
	}

	empty := Empty()
	if wp := empty.NewHotspot(HotspotWaypoint, "", c); wp.Target != FallbackWaypointID || wp.Text != NewWaypointText {
		t.Errorf("empty-tour waypoint = %+v", wp)
	}
}

func TestSyncWaypointText(t *testing.T) {
	d := sampleTour()
	h := Hotspot{Type: HotspotWaypoint, Text: "stale", Target: "atrium"}
	if got := d.SyncWaypointText(h).Text; got != "Atrium" {
		t.Errorf("text = %q, want Atrium", got)
	}
	h.Target = "gone"
	if got := d.SyncWaypointText(h).Text; got != "stale" {
		t.Errorf("stale target text = %q, want unchanged", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	d := sampleTour()
	d.Scenes[0].DefaultView = &View{Yaw: 1}
	c := d.Clone()
	c.Scenes[0].Hotspots[0].Yaw = 99
	c.Scenes[0].DefaultView.Yaw = 99
	if d.Scenes[0].Hotspots[0].Yaw == 99 || d.Scenes[0].DefaultView.Yaw == 99 {
		t.Fatal("clone shares memory with original")
	}
}

func TestNormalizeEncodesEmptyHotspots(t *testing.T) {
	d := Data{Scenes: []Scene{{ID: "a", Geometry: Geometry{Width: 1}}}}
	d.Normalize()
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"scenes":[{"id":"a","name":"","imageUrl":"","geometry":{"width":1},"hotspots":[]}]}`
	if string(b) != want {
		t.Fatalf("json = %s\nwant %s", b, want)
	}
}
