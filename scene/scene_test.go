// scene/scene_test.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package scene

import (
	gomath "math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmp/busview/event"
	"github.com/mmp/busview/feed"
	"github.com/mmp/busview/geo"
	"github.com/mmp/busview/mapview"
	"github.com/mmp/busview/math"
	"github.com/mmp/busview/model"
	"github.com/mmp/busview/renderer"
)

func TestPolicyScale(t *testing.T) {
	p := DefaultPolicy()

	prev := float32(gomath.Inf(1))
	for z := float32(0); z <= 22; z += 0.25 {
		s := p.Scale(z)
		if s < p.MinScale || s > p.MaxScale {
			t.Errorf("Scale(%v) = %v outside [%v, %v]", z, s, p.MinScale, p.MaxScale)
		}
		if s > prev {
			t.Errorf("Scale(%v) = %v > Scale(%v) = %v; not monotonic", z, s, z-0.25, prev)
		}
		prev = s
	}

	// continuous at the clamp boundaries
	for z := float32(0); z <= 22; z += 0.01 {
		if d := gomath.Abs(float64(p.Scale(z) - p.Scale(z+0.01))); d > 0.05 {
			t.Errorf("Scale jumps by %v at zoom %v", d, z)
		}
	}
}

func TestPolicyElevation(t *testing.T) {
	p := DefaultPolicy()

	if e := p.Elevation(14); e != 0 {
		t.Errorf("Elevation at threshold = %v, expected 0", e)
	}
	if e := p.Elevation(18); e != 0 {
		t.Errorf("Elevation(18) = %v, expected 0", e)
	}
	if e := p.Elevation(13); e != 200 {
		t.Errorf("Elevation(13) = %v, expected 200", e)
	}
	if e := p.Elevation(10); e != 800 {
		t.Errorf("Elevation(10) = %v, expected 800", e)
	}
	for z := float32(0); z < 14; z += 0.5 {
		if p.Elevation(z) <= p.Elevation(z+0.5)-1e-3 {
			t.Errorf("Elevation not non-increasing at zoom %v", z)
		}
	}
}

///////////////////////////////////////////////////////////////////////////

// fakeRenderer records buffer lifecycle so tests can assert entities
// never hold stale GPU ids.
type fakeRenderer struct {
	nextID    uint32
	live      map[uint32]bool
	destroyed []uint32
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{live: make(map[uint32]bool)}
}

func (f *fakeRenderer) create() uint32 {
	f.nextID++
	f.live[f.nextID] = true
	return f.nextID
}

func (f *fakeRenderer) CreateVertexBuffer(data []float32) uint32 { return f.create() }
func (f *fakeRenderer) CreateIndexBuffer(data []int32) uint32    { return f.create() }

func (f *fakeRenderer) DestroyBuffer(id uint32) {
	if !f.live[id] {
		panic("destroying unknown or already-destroyed buffer")
	}
	delete(f.live, id)
	f.destroyed = append(f.destroyed, id)
}

func (f *fakeRenderer) RenderCommandBuffer(cb *renderer.CommandBuffer) renderer.RendererStats {
	return renderer.RendererStats{}
}
func (f *fakeRenderer) Dispose() {}

const testOBJ = `v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
v 0 0 1
v 1 0 1
v 1 1 1
v 0 1 1
f 1 2 3 4
f 5 8 7 6
f 1 5 6 2
f 2 6 7 3
f 3 7 8 4
f 4 8 5 1
`

type layerFixture struct {
	layer  *VehicleLayer
	mv     *mapview.Map
	rend   *fakeRenderer
	meshes *model.Cache
	stream *event.Stream
}

func newLayerFixture(t *testing.T) *layerFixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bus.obj")
	if err := os.WriteFile(path, []byte(testOBJ), 0o644); err != nil {
		t.Fatal(err)
	}

	mv := mapview.New(geo.CameraPose{Center: geo.Point2LL{-122.4, 37.77}, Zoom: 15},
		[2]float32{1280, 800}, nil)
	rend := newFakeRenderer()
	meshes := model.NewCache(4, nil)
	stream := event.NewStream(nil)

	config := DefaultVehicleLayerConfig()
	config.ModelPath = path

	layer := NewVehicleLayer(config, DefaultPolicy(), rend, mv, meshes, stream, nil)
	mv.AddLayer(layer)
	return &layerFixture{layer: layer, mv: mv, rend: rend, meshes: meshes, stream: stream}
}

// drawFrame runs one frame, draining mesh loads.
func (fx *layerFixture) drawFrame() {
	cb := renderer.GetCommandBuffer()
	defer renderer.ReturnCommandBuffer(cb)
	fx.mv.Draw(time.Now(), cb)
}

// waitUploaded draws frames until the entity for id has GPU buffers.
func (fx *layerFixture) waitUploaded(t *testing.T, id int) *renderEntity {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		fx.drawFrame()
		if e, ok := fx.layer.entities[id]; ok && e.uploaded {
			return e
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("mesh never uploaded")
	return nil
}

func telemetry(id int, heading float32) feed.VehicleTelemetry {
	return feed.VehicleTelemetry{
		ID:       id,
		Position: geo.Point2LL{-122.4, 37.77},
		Heading:  heading,
	}
}

func TestUpsertCreatesOnce(t *testing.T) {
	fx := newLayerFixture(t)

	fx.layer.Upsert(telemetry(7, 90))
	fx.layer.Upsert(telemetry(7, 180))
	if len(fx.layer.entities) != 1 {
		t.Fatalf("got %d entities", len(fx.layer.entities))
	}

	e := fx.waitUploaded(t, 7)
	if e.telemetry.Heading != 180 {
		t.Errorf("telemetry not updated on second upsert: %+v", e.telemetry)
	}
	if len(fx.rend.live) != 3 {
		t.Errorf("expected 3 live buffers (positions, normals, indices), got %d", len(fx.rend.live))
	}
}

func TestEntityTransformRotation(t *testing.T) {
	fx := newLayerFixture(t)
	fx.layer.Upsert(telemetry(7, 90))
	e := fx.waitUploaded(t, 7)

	fc := fx.mv.FrameContext(time.Now())
	m := fx.layer.entityTransform(fc, e)

	// Heading 90 plus the 25 degree calibration offset rotates the model's
	// +x axis by 2.007 radians about the vertical.
	v := m.TransformVector([3]float32{1, 0, 0})
	angle := gomath.Atan2(float64(v[1]), float64(v[0]))
	if gomath.Abs(angle-2.0071) > 1e-3 {
		t.Errorf("got rotation %v rad, expected 2.007", angle)
	}
	if gomath.Abs(float64(v[2])) > 1e-6 {
		t.Errorf("rotation about vertical should not produce z: %v", v)
	}

	// Uniform scale: transformed basis vectors have equal length.
	vy := m.TransformVector([3]float32{0, 1, 0})
	vz := m.TransformVector([3]float32{0, 0, 1})
	lx, ly, lz := math.Length3f(v), math.Length3f(vy), math.Length3f(vz)
	if gomath.Abs(float64(lx-ly)) > 1e-4 || gomath.Abs(float64(lx-lz)) > 1e-4 {
		t.Errorf("scale not uniform: %v %v %v", lx, ly, lz)
	}
}

func TestEntityTransformElevation(t *testing.T) {
	fx := newLayerFixture(t)
	fx.layer.Upsert(telemetry(7, 0))
	e := fx.waitUploaded(t, 7)

	// Below the elevation threshold, the model floats; at high zoom it
	// sits on the ground.
	fx.mv.SetPose(geo.CameraPose{Center: e.telemetry.Position, Zoom: 10})
	fc := fx.mv.FrameContext(time.Now())
	m := fx.layer.entityTransform(fc, e)
	raised, _ := m.TransformPoint([3]float32{0, 0, 0})
	if raised[2] <= 0 {
		t.Errorf("expected positive elevation at zoom 10, got z %v", raised[2])
	}

	fx.mv.SetPose(geo.CameraPose{Center: e.telemetry.Position, Zoom: 16})
	fc = fx.mv.FrameContext(time.Now())
	m = fx.layer.entityTransform(fc, e)
	grounded, _ := m.TransformPoint([3]float32{0, 0, 0})
	if gomath.Abs(float64(grounded[2])) > 1e-3 {
		t.Errorf("expected zero elevation at zoom 16, got z %v", grounded[2])
	}
}

func TestSetVehiclesReconciles(t *testing.T) {
	fx := newLayerFixture(t)

	fx.layer.SetVehicles([]feed.VehicleTelemetry{telemetry(1, 0), telemetry(2, 0)})
	fx.waitUploaded(t, 1)
	fx.waitUploaded(t, 2)

	sub := fx.stream.Subscribe()

	// 2 drops out of the feed
	fx.layer.SetVehicles([]feed.VehicleTelemetry{telemetry(1, 45)})
	if fx.layer.Has(2) {
		t.Errorf("entity 2 still present after reconcile")
	}
	if len(fx.rend.live) != 3 {
		t.Errorf("expected 3 live buffers after disposing one entity, got %d", len(fx.rend.live))
	}

	found := false
	for _, ev := range sub.Get() {
		if ev.Type == event.VehicleLostEvent && ev.VehicleID == 2 {
			found = true
		}
	}
	if !found {
		t.Errorf("no VehicleLost event for disposed entity")
	}

	// empty snapshot is valid and empties the layer
	fx.layer.SetVehicles(nil)
	if len(fx.layer.entities) != 0 {
		t.Errorf("%d entities after empty snapshot", len(fx.layer.entities))
	}
	if len(fx.rend.live) != 0 {
		t.Errorf("%d live buffers after empty snapshot", len(fx.rend.live))
	}

	// one vehicle recreates exactly one entity with fresh buffers
	fx.layer.SetVehicles([]feed.VehicleTelemetry{telemetry(1, 0)})
	e := fx.waitUploaded(t, 1)
	if len(fx.layer.entities) != 1 || len(fx.rend.live) != 3 {
		t.Errorf("got %d entities, %d buffers", len(fx.layer.entities), len(fx.rend.live))
	}
	for _, id := range fx.rend.destroyed {
		if id == e.posBuf || id == e.normBuf || id == e.indexBuf {
			t.Errorf("recreated entity holds destroyed buffer %d", id)
		}
	}
}

func TestDisposeBeforeLoadCompletes(t *testing.T) {
	fx := newLayerFixture(t)

	// Upsert then immediately dispose, before any frame has drained the
	// mesh load. The late completion must not create GPU buffers.
	fx.layer.Upsert(telemetry(9, 0))
	fx.layer.SetVehicles(nil)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && len(fx.rend.live) == 0 {
		fx.drawFrame()
		time.Sleep(time.Millisecond)
	}
	if len(fx.rend.live) != 0 {
		t.Errorf("%d buffers created for a disposed entity", len(fx.rend.live))
	}
}

func TestMarkerSelection(t *testing.T) {
	fx := newLayerFixture(t)
	sub := fx.stream.Subscribe()

	// Place the vehicle at the camera center so its marker is at the
	// window center.
	fx.layer.Upsert(telemetry(3, 0))
	fx.waitUploaded(t, 3)

	fc := fx.mv.FrameContext(time.Now())
	mk := fx.mv.Pick(fc, 640, 400)
	if mk == nil {
		t.Fatal("no marker over the vehicle")
	}
	mk.OnSelect()

	evs := sub.Get()
	if len(evs) != 1 || evs[0].Type != event.VehicleSelectedEvent || evs[0].VehicleID != 3 {
		t.Errorf("got events %+v", evs)
	}

	// Marker goes away with the entity.
	fx.layer.SetVehicles(nil)
	if fx.mv.Pick(fc, 640, 400) != nil {
		t.Errorf("marker still pickable after dispose")
	}
}

func TestLoadFailureLeavesEntity(t *testing.T) {
	fx := newLayerFixture(t)
	fx.layer.config.ModelPath = filepath.Join(t.TempDir(), "missing.obj")

	fx.layer.Upsert(telemetry(5, 0))
	for i := 0; i < 100; i++ {
		fx.drawFrame()
		time.Sleep(time.Millisecond)
	}

	if !fx.layer.Has(5) {
		t.Errorf("entity removed on load failure")
	}
	if e := fx.layer.entities[5]; e.uploaded || e.mesh != nil {
		t.Errorf("entity has mesh state after failed load")
	}
	if len(fx.rend.live) != 0 {
		t.Errorf("buffers created after failed load")
	}
}

// commandOpcodes decodes the opcode sequence of a command buffer,
// skipping each command's arguments.
func commandOpcodes(t *testing.T, cb *renderer.CommandBuffer) []int {
	t.Helper()
	argWords := map[int]int{
		renderer.RendererLoadProjectionMatrix: 16,
		renderer.RendererLoadModelViewMatrix:  16,
		renderer.RendererClearRGBA:            4,
		renderer.RendererClearDepth:           0,
		renderer.RendererScissor:              4,
		renderer.RendererViewport:             4,
		renderer.RendererBlend:                0,
		renderer.RendererDisableBlend:         0,
		renderer.RendererSetRGBA:              4,
		renderer.RendererEnableDepthTest:      0,
		renderer.RendererDisableDepthTest:     0,
		renderer.RendererEnableLighting:       11,
		renderer.RendererDisableLighting:      0,
		renderer.RendererVertexArray:          3,
		renderer.RendererDisableVertexArray:   0,
		renderer.RendererVertexBuffer:         3,
		renderer.RendererNormalBuffer:         2,
		renderer.RendererDisableNormalArray:   0,
		renderer.RendererLineWidth:            1,
		renderer.RendererDrawLines:            2,
		renderer.RendererDrawTriangles:        2,
		renderer.RendererDrawIndexedTriangles: 2,
		renderer.RendererCallBuffer:           1,
		renderer.RendererResetState:           0,
	}

	var ops []int
	for i := 0; i < len(cb.Buf); {
		op := int(cb.Buf[i])
		ops = append(ops, op)
		i++
		switch op {
		case renderer.RendererFloatBuffer, renderer.RendererIntBuffer:
			i += 1 + int(cb.Buf[i])
		default:
			n, ok := argWords[op]
			if !ok {
				t.Fatalf("unknown command %d at offset %d", op, i-1)
			}
			i += n
		}
	}
	return ops
}

// The depth buffer holds the previous frame's values at the top of each
// frame; the mesh draw must clear it before enabling the depth test or
// stale depth incorrectly occludes current-frame fragments.
func TestDrawClearsDepthBeforeMeshes(t *testing.T) {
	fx := newLayerFixture(t)
	fx.layer.Upsert(telemetry(7, 90))
	fx.waitUploaded(t, 7)

	cb := renderer.GetCommandBuffer()
	defer renderer.ReturnCommandBuffer(cb)
	fx.mv.Draw(time.Now(), cb)

	clear, depthTest, draw := -1, -1, -1
	for i, op := range commandOpcodes(t, cb) {
		switch op {
		case renderer.RendererClearDepth:
			if clear == -1 {
				clear = i
			}
		case renderer.RendererEnableDepthTest:
			if depthTest == -1 {
				depthTest = i
			}
		case renderer.RendererDrawIndexedTriangles:
			if draw == -1 {
				draw = i
			}
		}
	}

	if draw == -1 {
		t.Fatal("no indexed triangle draw in frame")
	}
	if clear == -1 {
		t.Fatal("depth buffer never cleared")
	}
	if depthTest == -1 || clear > depthTest || clear > draw {
		t.Errorf("depth clear at %d must precede depth test at %d and draw at %d",
			clear, depthTest, draw)
	}
}
