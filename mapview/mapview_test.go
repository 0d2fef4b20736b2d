// mapview/mapview_test.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package mapview

import (
	gomath "math"
	"testing"
	"time"

	"github.com/mmp/busview/geo"
	"github.com/mmp/busview/renderer"
)

func testMap() *Map {
	return New(geo.CameraPose{
		Center: geo.Point2LL{-122.4, 37.77},
		Zoom:   15,
	}, [2]float32{1280, 800}, nil)
}

func TestFrameContextCenterInvariant(t *testing.T) {
	// The camera center must project to the window center for any pose.
	for _, pose := range []geo.CameraPose{
		{Center: geo.Point2LL{-122.4, 37.77}, Zoom: 15},
		{Center: geo.Point2LL{-122.4, 37.77}, Zoom: 18, Pitch: 60, Bearing: 135},
		{Center: geo.Point2LL{13.4, 52.52}, Zoom: 3, Bearing: 270},
		{Center: geo.Point2LL{151.2, -33.87}, Zoom: 11, Pitch: 30},
	} {
		m := testMap()
		m.SetPose(pose)
		fc := m.FrameContext(time.Now())

		pw, ok := fc.WindowPoint(pose.Center, 0)
		if !ok {
			t.Errorf("%+v: center behind camera", pose)
			continue
		}
		if gomath.Abs(float64(pw[0]-640)) > 1e-2 || gomath.Abs(float64(pw[1]-400)) > 1e-2 {
			t.Errorf("%+v: center projects to %v, expected (640, 400)", pose, pw)
		}
	}
}

func TestFrameContextOrientation(t *testing.T) {
	m := testMap()
	fc := m.FrameContext(time.Now())
	center := m.Pose().Center

	// bearing 0: north is up-screen (smaller y), east is right (larger x)
	north, ok := fc.WindowPoint(geo.Point2LL{center[0], center[1] + 0.001}, 0)
	if !ok || north[1] >= 400 {
		t.Errorf("north projects to %v; expected above window center", north)
	}
	east, ok := fc.WindowPoint(geo.Point2LL{center[0] + 0.001, center[1]}, 0)
	if !ok || east[0] <= 640 {
		t.Errorf("east projects to %v; expected right of window center", east)
	}

	// bearing 90: east is up-screen
	m.SetPose(geo.CameraPose{Center: center, Zoom: 15, Bearing: 90})
	fc = m.FrameContext(time.Now())
	east, ok = fc.WindowPoint(geo.Point2LL{center[0] + 0.001, center[1]}, 0)
	if !ok || east[1] >= 400 {
		t.Errorf("east projects to %v with bearing 90; expected above window center", east)
	}
}

func TestFrameContextAltitudeUp(t *testing.T) {
	// With pitch, elevated points at the center move up-screen.
	m := testMap()
	m.SetPose(geo.CameraPose{Center: m.Pose().Center, Zoom: 16, Pitch: 55})
	fc := m.FrameContext(time.Now())

	raised, ok := fc.WindowPoint(m.Pose().Center, 100)
	if !ok || raised[1] >= 400 {
		t.Errorf("elevated center projects to %v; expected above window center", raised)
	}
}

func TestFlyToCompletes(t *testing.T) {
	m := testMap()
	from := m.Pose()
	to := geo.CameraPose{Center: geo.Point2LL{-122.3, 37.8}, Zoom: 17, Pitch: 55, Bearing: 90}

	completed := 0
	m.FlyTo(to, 100*time.Millisecond, func() { completed++ })

	// Halfway: strictly between the endpoints.
	m.Update(time.Now().Add(50 * time.Millisecond))
	mid := m.Pose()
	if mid.Zoom <= from.Zoom || mid.Zoom >= to.Zoom {
		t.Errorf("midpoint zoom %v not between %v and %v", mid.Zoom, from.Zoom, to.Zoom)
	}
	if completed != 0 {
		t.Errorf("completion fired early")
	}

	m.Update(time.Now().Add(200 * time.Millisecond))
	if m.Pose() != to {
		t.Errorf("got pose %+v at end of flight, expected %+v", m.Pose(), to)
	}
	if completed != 1 {
		t.Errorf("completion called %d times", completed)
	}
	if m.Flying() {
		t.Errorf("still flying after completion")
	}

	// No further completions on later updates.
	m.Update(time.Now().Add(time.Second))
	if completed != 1 {
		t.Errorf("completion called again after flight ended")
	}
}

func TestFlyToSupersede(t *testing.T) {
	m := testMap()
	a := geo.CameraPose{Center: geo.Point2LL{-122.3, 37.8}, Zoom: 17}
	b := geo.CameraPose{Center: geo.Point2LL{-122.5, 37.7}, Zoom: 12}

	aCompleted, bCompleted := false, false
	m.FlyTo(a, 100*time.Millisecond, func() { aCompleted = true })
	m.Update(time.Now().Add(30 * time.Millisecond))
	m.FlyTo(b, 100*time.Millisecond, func() { bCompleted = true })

	m.Update(time.Now().Add(500 * time.Millisecond))
	if aCompleted {
		t.Errorf("superseded flight's completion callback fired")
	}
	if !bCompleted {
		t.Errorf("second flight's completion callback did not fire")
	}
	if m.Pose() != b {
		t.Errorf("got pose %+v, expected %+v", m.Pose(), b)
	}
}

func TestFlyToZeroDuration(t *testing.T) {
	m := testMap()
	to := geo.CameraPose{Center: geo.Point2LL{-122.3, 37.8}, Zoom: 17}

	completed := false
	m.FlyTo(to, 0, func() { completed = true })
	if !completed || m.Pose() != to || m.Flying() {
		t.Errorf("zero-duration flight should complete synchronously")
	}
}

func TestJumpToDropsFlight(t *testing.T) {
	m := testMap()
	completed := false
	m.FlyTo(geo.CameraPose{Zoom: 10}, time.Hour, func() { completed = true })

	to := geo.CameraPose{Center: geo.Point2LL{-122.3, 37.8}, Zoom: 17}
	m.JumpTo(to)
	m.Update(time.Now().Add(2 * time.Hour))

	if m.Pose() != to {
		t.Errorf("got pose %+v", m.Pose())
	}
	if completed {
		t.Errorf("dropped flight's completion callback fired")
	}
}

type orderLayer struct {
	name  string
	order *[]string
}

func (l *orderLayer) Draw(ctx *FrameContext, cb *renderer.CommandBuffer) {
	*l.order = append(*l.order, l.name)
}

func TestLayerStackOrder(t *testing.T) {
	m := testMap()
	var order []string
	base := &orderLayer{"base", &order}
	vehicles := &orderLayer{"vehicles", &order}
	routes := &orderLayer{"routes", &order}

	m.AddLayer(base)
	m.AddLayer(vehicles)
	m.InsertLayerBefore(routes, vehicles)

	cb := renderer.GetCommandBuffer()
	defer renderer.ReturnCommandBuffer(cb)
	m.Draw(time.Now(), cb)

	want := []string{"base", "routes", "vehicles"}
	if len(order) != len(want) {
		t.Fatalf("drew %d layers, expected %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("draw order %v, expected %v", order, want)
			break
		}
	}

	// Unknown "before" appends on top.
	order = nil
	top := &orderLayer{"top", &order}
	m.InsertLayerBefore(top, &orderLayer{"ghost", &order})
	m.RemoveLayer(routes)
	m.Draw(time.Now(), cb)

	want = []string{"base", "vehicles", "top"}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("draw order %v, expected %v", order, want)
			break
		}
	}
}

func TestInteractionToggles(t *testing.T) {
	m := testMap()
	pose := m.Pose()

	m.SetInteractionEnabled(false)
	m.Pan(50, 50)
	m.ZoomBy(2)
	m.RotateBy(45)
	m.PitchBy(30)
	if m.Pose() != pose {
		t.Errorf("pose changed with interaction disabled: %+v", m.Pose())
	}

	m.SetInteractionEnabled(true)
	m.ZoomBy(2)
	m.RotateBy(45)
	m.PitchBy(30)
	got := m.Pose()
	if got.Zoom != pose.Zoom+2 || got.Bearing != 45 || got.Pitch != 30 {
		t.Errorf("got pose %+v", got)
	}

	// drag down moves the center north, drag right moves it west
	m.SetPose(pose)
	m.Pan(0, 100)
	if m.Pose().Center.Latitude() <= pose.Center.Latitude() {
		t.Errorf("drag down should move center north")
	}
	m.SetPose(pose)
	m.Pan(100, 0)
	if m.Pose().Center.Longitude() >= pose.Center.Longitude() {
		t.Errorf("drag right should move center west")
	}
}

func TestZoomPitchClamps(t *testing.T) {
	m := testMap()
	m.ZoomBy(100)
	if m.Pose().Zoom != maxZoom {
		t.Errorf("zoom %v not clamped to %v", m.Pose().Zoom, maxZoom)
	}
	m.ZoomBy(-100)
	if m.Pose().Zoom != minZoom {
		t.Errorf("zoom %v not clamped to %v", m.Pose().Zoom, minZoom)
	}
	m.PitchBy(100)
	if m.Pose().Pitch != maxPitch {
		t.Errorf("pitch %v not clamped to %v", m.Pose().Pitch, maxPitch)
	}
	m.PitchBy(-100)
	if m.Pose().Pitch != 0 {
		t.Errorf("pitch %v not clamped to 0", m.Pose().Pitch)
	}
}

func TestMarkerPick(t *testing.T) {
	m := testMap()
	center := m.Pose().Center

	selected := ""
	under := m.AddMarker(center, 20, 20, func() { selected = "under" })
	over := m.AddMarker(center, 20, 20, func() { selected = "over" })

	fc := m.FrameContext(time.Now())

	mk := m.Pick(fc, 640, 400)
	if mk == nil {
		t.Fatal("no marker picked at window center")
	}
	mk.OnSelect()
	if selected != "over" {
		t.Errorf("picked %q, expected the topmost marker", selected)
	}

	if m.Pick(fc, 640, 450) != nil {
		t.Errorf("picked a marker outside its hit rectangle")
	}
	// edge of the 20px half-extent still hits
	if m.Pick(fc, 655, 415) == nil {
		t.Errorf("miss inside the hit rectangle")
	}

	over.Remove()
	mk = m.Pick(fc, 640, 400)
	if mk == nil {
		t.Fatal("no marker after removing the top one")
	}
	mk.OnSelect()
	if selected != "under" {
		t.Errorf("picked %q after removal", selected)
	}

	// moving the marker moves its hit rectangle
	under.SetPosition(geo.Point2LL{center[0] + 0.01, center[1]}, 0)
	if m.Pick(fc, 640, 400) != nil {
		t.Errorf("picked a marker that moved away")
	}

	under.Remove()
	under.Remove() // second remove is a no-op
	if m.Pick(fc, 640, 400) != nil {
		t.Errorf("picked a removed marker")
	}
}

// The GL viewport takes framebuffer pixels, which differ from window
// coordinates on high-DPI displays; the camera and picking stay in window
// coordinates.
func TestViewportUsesFramebufferPixels(t *testing.T) {
	m := testMap()
	m.SetDPIScale(2)

	cb := renderer.GetCommandBuffer()
	defer renderer.ReturnCommandBuffer(cb)
	m.Draw(time.Now(), cb)

	if len(cb.Buf) < 5 || cb.Buf[0] != renderer.RendererViewport {
		t.Fatal("frame does not start with a viewport command")
	}
	if w, h := int(cb.Buf[3]), int(cb.Buf[4]); w != 2560 || h != 1600 {
		t.Errorf("viewport %dx%d, expected 2560x1600 framebuffer pixels", w, h)
	}

	fc := m.FrameContext(time.Now())
	pw, ok := fc.WindowPoint(m.Pose().Center, 0)
	if !ok || gomath.Abs(float64(pw[0]-640)) > 1e-2 || gomath.Abs(float64(pw[1]-400)) > 1e-2 {
		t.Errorf("center projects to %v, expected the 1280x800 window center", pw)
	}

	// A zero or negative scale is ignored rather than collapsing the
	// viewport.
	m.SetDPIScale(0)
	cb2 := renderer.GetCommandBuffer()
	defer renderer.ReturnCommandBuffer(cb2)
	m.Draw(time.Now(), cb2)
	if w := int(cb2.Buf[3]); w != 2560 {
		t.Errorf("viewport width %d after zero scale, expected 2560", w)
	}
}
