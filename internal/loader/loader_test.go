package loader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/playperu/campustour/internal/render/rendertest"
	"github.com/playperu/campustour/internal/tour"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// manualClock hands out timers that only fire when the test says so.
type manualClock struct {
	mu     sync.Mutex
	timers []chan time.Time
}

func (c *manualClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	c.timers = append(c.timers, ch)
	c.mu.Unlock()
	return ch
}

func (c *manualClock) FireAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.timers {
		ch <- time.Now()
	}
	c.timers = nil
}

// FireNext fires the oldest pending timer.
func (c *manualClock) FireNext(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		t.Fatal("no pending timer")
	}
	c.timers[0] <- time.Now()
	c.timers = c.timers[1:]
}

// frameCounter completes every frame wait at once and counts them.
type frameCounter struct {
	mu sync.Mutex
	n  int
}

func (c *frameCounter) Next() <-chan time.Time {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (c *frameCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type stubPreloader struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	gate    chan struct{}
	started chan string
}

func (p *stubPreloader) Preload(ctx context.Context, url string) error {
	p.mu.Lock()
	p.calls = append(p.calls, url)
	err := p.fail[url]
	gate, started := p.gate, p.started
	p.mu.Unlock()

	if started != nil {
		started <- url
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (p *stubPreloader) Calls(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == url {
			n++
		}
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func campusTour() tour.Data {
	return tour.Data{Scenes: []tour.Scene{
		{
			ID: "library", Name: "Library", ImageURL: "tour_images/library.jpg",
			Geometry: tour.Geometry{Width: 8000},
			Hotspots: []tour.Hotspot{
				{Type: tour.HotspotWaypoint, Yaw: 0.5, Text: "Atrium", Target: "atrium"},
				{Type: tour.HotspotInfo, Yaw: -1, Text: "Desk", Description: "Help desk"},
			},
		},
		{
			ID: "atrium", Name: "Atrium", ImageURL: "tour_images/atrium.webp",
			Geometry: tour.Geometry{Width: 4000},
			Hotspots: []tour.Hotspot{
				{Type: tour.HotspotWaypoint, Yaw: 2, Text: "Library", Target: "library"},
			},
		},
	}}
}

type fixture struct {
	engine *rendertest.Engine
	clock  *manualClock
	frames *frameCounter
	pre    *stubPreloader
	loader *Loader
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		engine: rendertest.New(),
		clock:  &manualClock{},
		frames: &frameCounter{},
		pre:    &stubPreloader{},
	}
	opts.After = f.clock.After
	opts.NextFrame = f.frames.Next
	f.loader = New(f.engine, f.pre, discardLogger(), opts)
	t.Cleanup(f.loader.Close)
	if err := f.loader.Load(campusTour()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return f
}

func (f *fixture) activeURL() string {
	if s := f.engine.ActiveScene(); s != nil {
		return s.Source().URL
	}
	return ""
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLoadShowsFirstSceneAtLowRes(t *testing.T) {
	f := newFixture(t, Options{})

	scenes := f.engine.Scenes()
	if len(scenes) != 2 {
		t.Fatalf("created %d scenes, want 2", len(scenes))
	}
	if got := scenes[0].Source().URL; got != "tour_images/library_lowres.webp" {
		t.Errorf("library source = %q", got)
	}
	if got := scenes[1].Source().URL; got != "tour_images/atrium_lowres.webp" {
		t.Errorf("atrium source = %q", got)
	}
	if got := f.activeURL(); got != "tour_images/library_lowres.webp" {
		t.Errorf("active = %q, want library low-res", got)
	}
	if got := f.loader.Current(); got != "library" {
		t.Errorf("Current = %q, want library", got)
	}
	if n := len(scenes[0].Markers()); n != 2 {
		t.Errorf("library markers = %d, want 2", n)
	}
	if st, _ := f.loader.State("library"); st != StateLowRes {
		t.Errorf("state = %v before timer fires", st)
	}
}

func TestUpgradeSwitchesActiveSceneToHighRes(t *testing.T) {
	f := newFixture(t, Options{})

	f.clock.FireAll()
	f.loader.Wait()

	if st, _ := f.loader.State("library"); st != StateUpgraded {
		t.Fatalf("state = %v, want upgraded", st)
	}
	if got := f.activeURL(); got != "tour_images/library.jpg" {
		t.Fatalf("active = %q, want high-res library", got)
	}
	if got := f.loader.Current(); got != "library" {
		t.Fatalf("upgrade changed current scene to %q", got)
	}
	hi := f.engine.Scenes()[2]
	if n := len(hi.Markers()); n != 2 {
		t.Errorf("high-res scene has %d markers, want 2", n)
	}
}

func TestUpgradeOfInactiveSceneDoesNotSwitch(t *testing.T) {
	f := newFixture(t, Options{})

	if err := f.loader.Navigate("atrium"); err != nil {
		t.Fatal(err)
	}
	if err := f.loader.Navigate("library"); err != nil {
		t.Fatal(err)
	}

	f.clock.FireAll()
	f.loader.Wait()

	if st, _ := f.loader.State("atrium"); st != StateUpgraded {
		t.Fatalf("atrium state = %v, want upgraded", st)
	}
	if got := f.loader.Current(); got != "library" {
		t.Fatalf("Current = %q, want library", got)
	}
	if got := f.activeURL(); got != "tour_images/library.jpg" {
		t.Fatalf("active = %q, want high-res library", got)
	}

	if err := f.loader.Navigate("atrium"); err != nil {
		t.Fatal(err)
	}
	if got := f.activeURL(); got != "tour_images/atrium.webp" {
		t.Fatalf("after navigating, active = %q, want cached high-res atrium", got)
	}
}

func TestUpgradeRaceVisitorNavigatesDuringPreload(t *testing.T) {
	f := newFixture(t, Options{})
	f.pre.gate = make(chan struct{})
	f.pre.started = make(chan string, 4)

	f.clock.FireNext(t)
	if got := <-f.pre.started; got != "tour_images/library.jpg" {
		t.Fatalf("preloading %q", got)
	}

	done := make(chan error, 1)
	go func() { done <- f.loader.Navigate("atrium") }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Navigate blocked on an in-flight upgrade")
	}
	atriumLow, _ := f.loader.Renderable("atrium")

	close(f.pre.gate)
	eventually(t, func() bool {
		st, _ := f.loader.State("library")
		return st == StateUpgraded
	})

	active, _ := f.engine.Active()
	if active != atriumLow {
		t.Fatalf("library upgrade switched away from atrium; active = %q", f.activeURL())
	}

	f.clock.FireAll()
	f.loader.Wait()
	if got := f.activeURL(); got != "tour_images/atrium.webp" {
		t.Fatalf("active = %q, want high-res atrium", got)
	}
}

func TestPreloadFailureKeepsLowResWithoutRetry(t *testing.T) {
	f := newFixture(t, Options{})
	f.pre.fail = map[string]error{"tour_images/library.jpg": errors.New("404")}

	f.clock.FireAll()
	f.loader.Wait()

	if st, _ := f.loader.State("library"); st != StateDegraded {
		t.Fatalf("state = %v, want degraded", st)
	}
	if got := f.activeURL(); got != "tour_images/library_lowres.webp" {
		t.Fatalf("active = %q, want low-res", got)
	}

	_ = f.loader.Navigate("atrium")
	_ = f.loader.Navigate("library")
	f.clock.FireAll()
	f.loader.Wait()

	if n := f.pre.Calls("tour_images/library.jpg"); n != 1 {
		t.Fatalf("library preloaded %d times, want 1", n)
	}
}

func TestNeverUpgradesTwice(t *testing.T) {
	f := newFixture(t, Options{})
	f.clock.FireAll()
	f.loader.Wait()

	for range 3 {
		_ = f.loader.Navigate("atrium")
		_ = f.loader.Navigate("library")
	}
	f.clock.FireAll()
	f.loader.Wait()

	if n := f.pre.Calls("tour_images/library.jpg"); n != 1 {
		t.Fatalf("library preloaded %d times, want 1", n)
	}
	// 2 low-res + one high-res per scene.
	if n := len(f.engine.Scenes()); n != 4 {
		t.Fatalf("engine holds %d scenes, want 4", n)
	}
}

func TestDisposedRendererSkipsUpgrade(t *testing.T) {
	f := newFixture(t, Options{})
	f.engine.Dispose()

	f.clock.FireAll()
	f.loader.Wait()

	if n := f.pre.Calls("tour_images/library.jpg"); n != 0 {
		t.Fatalf("preloaded %d times after dispose", n)
	}
	if st, _ := f.loader.State("library"); st != StateLowRes {
		t.Fatalf("state = %v, want low-res", st)
	}
}

func TestDisposeDuringPreloadLeavesRendererUntouched(t *testing.T) {
	f := newFixture(t, Options{})
	f.pre.gate = make(chan struct{})
	f.pre.started = make(chan string, 1)

	f.clock.FireAll()
	<-f.pre.started
	f.engine.Dispose()
	close(f.pre.gate)
	f.loader.Wait()

	if n := len(f.engine.Scenes()); n != 2 {
		t.Fatalf("engine holds %d scenes, want 2", n)
	}
}

func TestReadinessPollsUntilViewIsQueryable(t *testing.T) {
	f := newFixture(t, Options{})
	f.engine.NotReadyFrames = 3

	f.clock.FireAll()
	f.loader.Wait()

	if got := f.activeURL(); got != "tour_images/library.jpg" {
		t.Fatalf("active = %q, want high-res after readiness", got)
	}
	if n := f.frames.Count(); n != 3 {
		t.Errorf("waited %d frames, want 3", n)
	}
}

func TestReadinessBudgetExhausted(t *testing.T) {
	f := newFixture(t, Options{MaxFrames: 2})
	f.engine.NotReadyFrames = 10

	f.clock.FireAll()
	f.loader.Wait()

	if st, _ := f.loader.State("library"); st != StateUpgraded {
		t.Fatalf("state = %v, want upgraded (cached)", st)
	}
	if got := f.activeURL(); got != "tour_images/library_lowres.webp" {
		t.Fatalf("active = %q, want low-res when never ready", got)
	}
	if n := f.frames.Count(); n != 2 {
		t.Errorf("waited %d frames, want the budget of 2", n)
	}
}

func TestLayerModeAddsLayerWithoutSwitch(t *testing.T) {
	f := newFixture(t, Options{Mode: ModeLayer})
	switches := f.engine.Switches()

	f.clock.FireAll()
	f.loader.Wait()

	active := f.engine.ActiveScene()
	layers := active.Layers()
	if len(layers) != 1 || layers[0].URL != "tour_images/library.jpg" || layers[0].Width != 8000 {
		t.Fatalf("layers = %+v", layers)
	}
	if f.engine.Switches() != switches {
		t.Fatal("layer upgrade switched scenes")
	}
	if n := len(f.engine.Scenes()); n != 2 {
		t.Fatalf("layer mode created %d scenes, want 2", n)
	}
}

func TestReloadDiscardsStaleUpgrade(t *testing.T) {
	f := newFixture(t, Options{})
	f.pre.gate = make(chan struct{})
	f.pre.started = make(chan string, 4)

	f.clock.FireNext(t)
	<-f.pre.started

	next := tour.Data{Scenes: []tour.Scene{
		{ID: "gym", Name: "Gym", ImageURL: "tour_images/gym.png", Geometry: tour.Geometry{Width: 2000}},
	}}
	if err := f.loader.Load(next); err != nil {
		t.Fatal(err)
	}
	close(f.pre.gate)
	f.clock.FireAll()
	f.loader.Wait()

	for _, s := range f.engine.Scenes() {
		if s.Source().URL == "tour_images/library.jpg" {
			t.Fatal("stale upgrade created a renderable after reload")
		}
	}
	if _, ok := f.loader.State("library"); ok {
		t.Fatal("old scene still mapped after reload")
	}
	if got := f.activeURL(); got != "tour_images/gym.png" {
		t.Fatalf("active = %q, want high-res gym", got)
	}
}

func TestLoadSkipsInvalidGeometry(t *testing.T) {
	f := newFixture(t, Options{})
	bad := campusTour()
	bad.Scenes[0].Geometry.Width = 0
	if err := f.loader.Load(bad); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.loader.State("library"); ok {
		t.Fatal("scene with zero width was loaded")
	}
	if got := f.loader.Current(); got != "atrium" {
		t.Fatalf("Current = %q, want atrium", got)
	}
}

func TestWaypointElementNavigates(t *testing.T) {
	f := newFixture(t, Options{})
	var seen []string
	f.loader.OnChange(func(id string) { seen = append(seen, id) })

	marker := f.engine.Scenes()[0].Markers()[0]
	if marker.Element.OnActivate == nil {
		t.Fatal("waypoint element has no activation handler")
	}
	marker.Element.OnActivate()

	if got := f.loader.Current(); got != "atrium" {
		t.Fatalf("Current = %q, want atrium", got)
	}
	if len(seen) != 1 || seen[0] != "atrium" {
		t.Fatalf("OnChange saw %v", seen)
	}
	if info := f.engine.Scenes()[0].Markers()[1]; info.Element.OnActivate != nil {
		t.Fatal("info element should not navigate")
	}
}

func TestNavigateUnknownScene(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.loader.Navigate("nowhere"); !errors.Is(err, tour.ErrSceneNotFound) {
		t.Fatalf("err = %v, want ErrSceneNotFound", err)
	}
}
