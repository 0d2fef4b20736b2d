// mapview/mapview.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package mapview implements the map surface the 3D content draws over: a
// camera with fly-to animations, a layer stack drawn in order, and
// screen-anchored markers for hit testing. All methods must be called
// from the render goroutine.
package mapview

import (
	"time"

	"github.com/mmp/busview/geo"
	"github.com/mmp/busview/log"
	"github.com/mmp/busview/math"
	"github.com/mmp/busview/renderer"
)

const (
	// tileSize matches the raster tiles the basemap is drawn from; the
	// world spans tileSize * 2^zoom pixels at integer zoom levels.
	tileSize = 512

	fovY = 45 // degrees

	minZoom, maxZoom = 0.0, 22.0
	maxPitch         = 70.0
)

// Layer is a drawable placed on the map; layers draw in stack order, so
// earlier layers appear beneath later ones.
type Layer interface {
	Draw(ctx *FrameContext, cb *renderer.CommandBuffer)
}

// FrameContext carries everything a layer needs to draw one frame. The
// camera center is subtracted from world positions in float64 before any
// float32 matrix math; at street-level zooms, mercator coordinates have
// too few float32 bits left for sub-meter placement.
type FrameContext struct {
	Now  time.Time
	Pose geo.CameraPose

	// Proj and View are what layers load into the command buffer; ViewProj
	// is their product, for CPU-side projection (markers, picking).
	Proj, View, ViewProj math.Matrix4

	// Center is the projected camera center in normalized mercator;
	// WorldSize is the world's span in pixels at the current zoom.
	Center    [2]float64
	WorldSize float64

	// UnitsPerPixel is normalized mercator units per screen pixel at the
	// camera center.
	UnitsPerPixel float32

	WindowSize [2]float32
}

// CameraSpace converts a normalized mercator position to camera-centered
// pixel coordinates: x east, y north, z up, origin at the camera center.
func (fc *FrameContext) CameraSpace(x, y, z float64) [3]float32 {
	return [3]float32{
		float32((x - fc.Center[0]) * fc.WorldSize),
		float32(-(y - fc.Center[1]) * fc.WorldSize),
		float32(z * fc.WorldSize),
	}
}

// WindowPoint projects a position to window coordinates (origin top left,
// y down, matching mouse coordinates). ok is false for points behind the
// camera.
func (fc *FrameContext) WindowPoint(p geo.Point2LL, altitudeMeters float64) (pw [2]float32, ok bool) {
	x, y, z := geo.Project(float64(p.Longitude()), float64(p.Latitude()), altitudeMeters)
	ndc, w := fc.ViewProj.TransformPoint(fc.CameraSpace(x, y, z))
	if w <= 0 {
		return [2]float32{}, false
	}
	return [2]float32{
		(ndc[0] + 1) * 0.5 * fc.WindowSize[0],
		(1 - ndc[1]) * 0.5 * fc.WindowSize[1],
	}, true
}

type flight struct {
	from, to   geo.CameraPose
	start      time.Time
	duration   time.Duration
	onComplete func()
}

// Map owns the camera pose, the layer stack, and the markers.
type Map struct {
	pose       geo.CameraPose
	windowSize [2]float32
	dpiScale   float32

	layers  []Layer
	markers []*Marker

	flight *flight

	interactionEnabled bool
	navChromeVisible   bool

	lg *log.Logger
}

func New(pose geo.CameraPose, windowSize [2]float32, lg *log.Logger) *Map {
	return &Map{
		pose:               pose,
		windowSize:         windowSize,
		dpiScale:           1,
		interactionEnabled: true,
		navChromeVisible:   true,
		lg:                 lg,
	}
}

func (m *Map) Pose() geo.CameraPose { return m.pose }

func (m *Map) SetPose(p geo.CameraPose) {
	m.flight = nil
	m.pose = p
}

func (m *Map) SetWindowSize(w, h float32) { m.windowSize = [2]float32{w, h} }

// SetDPIScale gives the ratio of framebuffer pixels to window
// coordinates. The camera and picking work in window coordinates
// throughout; only the GL viewport is in framebuffer pixels.
func (m *Map) SetDPIScale(scale float32) {
	if scale > 0 {
		m.dpiScale = scale
	}
}

// FlyTo starts an eased animation from the current pose. Starting a new
// flight supersedes any active one: the old flight stops where it is and
// its completion callback is never invoked.
func (m *Map) FlyTo(to geo.CameraPose, duration time.Duration, onComplete func()) {
	if duration <= 0 {
		m.JumpTo(to)
		if onComplete != nil {
			onComplete()
		}
		return
	}
	m.flight = &flight{
		from:       m.pose,
		to:         to,
		start:      time.Now(),
		duration:   duration,
		onComplete: onComplete,
	}
}

// JumpTo recenters with no animation; an in-progress flight is dropped.
func (m *Map) JumpTo(to geo.CameraPose) {
	m.flight = nil
	m.pose = to
}

// Flying reports whether a fly-to animation is in progress.
func (m *Map) Flying() bool { return m.flight != nil }

// Update advances the active flight, if any. It is called once per frame
// before layers draw, so a completion callback runs on the render
// goroutine in a predictable spot.
func (m *Map) Update(now time.Time) {
	f := m.flight
	if f == nil {
		return
	}

	if elapsed := now.Sub(f.start); elapsed >= f.duration {
		m.pose = f.to
		m.flight = nil
		if f.onComplete != nil {
			f.onComplete()
		}
	} else {
		t := math.Smoothstep(float32(elapsed), 0, float32(f.duration))
		m.pose = f.from.Lerp(t, f.to)
	}
}

///////////////////////////////////////////////////////////////////////////
// Interaction

func (m *Map) SetInteractionEnabled(enabled bool) { m.interactionEnabled = enabled }
func (m *Map) InteractionEnabled() bool           { return m.interactionEnabled }

func (m *Map) SetNavigationChromeVisible(visible bool) { m.navChromeVisible = visible }
func (m *Map) NavigationChromeVisible() bool           { return m.navChromeVisible }

// Pan moves the camera center opposite a pointer drag of (dx, dy) pixels
// (y down), so the map content follows the pointer.
func (m *Map) Pan(dx, dy float32) {
	if !m.interactionEnabled {
		return
	}

	b := math.Radians(m.pose.Bearing)
	// Screen-right and screen-up axes in mercator x/y (y south).
	right := [2]float32{math.Cos(b), math.Sin(b)}
	up := [2]float32{math.Sin(b), -math.Cos(b)}
	shift := math.Add2f(math.Scale2f(right, -dx), math.Scale2f(up, dy))

	worldSize := tileSize * math.Pow(2, m.pose.Zoom)
	cx, cy, _ := geo.Project(float64(m.pose.Center.Longitude()), float64(m.pose.Center.Latitude()), 0)
	lon, lat := geo.Unproject(cx+float64(shift[0]/worldSize), cy+float64(shift[1]/worldSize))
	m.pose.Center = geo.Point2LL{float32(lon), float32(lat)}
}

func (m *Map) ZoomBy(delta float32) {
	if m.interactionEnabled {
		m.pose.Zoom = math.Clamp(m.pose.Zoom+delta, minZoom, maxZoom)
	}
}

func (m *Map) RotateBy(degrees float32) {
	if m.interactionEnabled {
		m.pose.Bearing = math.NormalizeHeading(m.pose.Bearing + degrees)
	}
}

func (m *Map) PitchBy(degrees float32) {
	if m.interactionEnabled {
		m.pose.Pitch = math.Clamp(m.pose.Pitch+degrees, 0, maxPitch)
	}
}

///////////////////////////////////////////////////////////////////////////
// Layer stack

func (m *Map) AddLayer(l Layer) {
	m.layers = append(m.layers, l)
}

// InsertLayerBefore places l beneath before in draw order; if before is
// not in the stack, l is appended on top.
func (m *Map) InsertLayerBefore(l, before Layer) {
	for i, ll := range m.layers {
		if ll == before {
			m.layers = append(m.layers[:i], append([]Layer{l}, m.layers[i:]...)...)
			return
		}
	}
	m.layers = append(m.layers, l)
}

func (m *Map) RemoveLayer(l Layer) {
	for i, ll := range m.layers {
		if ll == l {
			m.layers = append(m.layers[:i], m.layers[i+1:]...)
			return
		}
	}
	m.lg.Errorf("attempted to remove layer not in stack")
}

func (m *Map) Layers() []Layer { return m.layers }

///////////////////////////////////////////////////////////////////////////
// Per-frame drawing

// FrameContext builds the viewing transforms for the current pose.
func (m *Map) FrameContext(now time.Time) *FrameContext {
	pose := m.pose
	cx, cy, _ := geo.Project(float64(pose.Center.Longitude()), float64(pose.Center.Latitude()), 0)
	worldSize := float64(tileSize) * float64(math.Pow(2, pose.Zoom))

	w, h := m.windowSize[0], m.windowSize[1]
	dist := 0.5 * h / math.Tan(math.Radians(fovY)/2)

	view := math.Identity4x4().
		Translate(0, 0, -dist).
		RotateX(-math.Radians(pose.Pitch)).
		RotateZ(math.Radians(pose.Bearing))
	proj := math.Perspective(math.Radians(fovY), w/h, dist/100, dist*100)

	return &FrameContext{
		Now:           now,
		Pose:          pose,
		Proj:          proj,
		View:          view,
		ViewProj:      proj.PostMultiply(view),
		Center:        [2]float64{cx, cy},
		WorldSize:     worldSize,
		UnitsPerPixel: float32(1 / worldSize),
		WindowSize:    m.windowSize,
	}
}

// Draw builds the frame context, advances animations, and draws each
// layer in stack order into cb. The returned context is also what input
// handling uses for picking this frame.
func (m *Map) Draw(now time.Time, cb *renderer.CommandBuffer) *FrameContext {
	m.Update(now)

	fc := m.FrameContext(now)
	cb.Viewport(0, 0, int(m.windowSize[0]*m.dpiScale), int(m.windowSize[1]*m.dpiScale))
	cb.LoadProjectionMatrix(fc.Proj)
	cb.LoadModelViewMatrix(fc.View)

	for _, l := range m.layers {
		l.Draw(fc, cb)
	}
	cb.ResetState()
	return fc
}
