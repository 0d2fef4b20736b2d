// scene/vehiclelayer.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package scene

import (
	"github.com/mmp/busview/event"
	"github.com/mmp/busview/feed"
	"github.com/mmp/busview/geo"
	"github.com/mmp/busview/log"
	"github.com/mmp/busview/mapview"
	"github.com/mmp/busview/math"
	"github.com/mmp/busview/model"
	"github.com/mmp/busview/renderer"
)

type VehicleLayerConfig struct {
	// ModelPath is the OBJ model drawn for every vehicle.
	ModelPath string

	// Meshes come from exporters with unknown units, so they are
	// normalized to span this many meters along their longest axis.
	VehicleLengthMeters float32

	// HeadingOffset corrects for the model's authored forward axis not
	// pointing true north; degrees, added to the telemetry heading.
	HeadingOffset float32

	BodyColor renderer.RGB
}

func DefaultVehicleLayerConfig() VehicleLayerConfig {
	return VehicleLayerConfig{
		ModelPath:           "bus.obj",
		VehicleLengthMeters: 12,
		HeadingOffset:       25,
		BodyColor:           renderer.RGB{R: .85, G: .2, B: .15},
	}
}

// renderEntity is the render-side state for one vehicle id: its last
// telemetry, the shared mesh once loaded, this entity's GPU buffers, and
// its click-surface marker.
type renderEntity struct {
	telemetry feed.VehicleTelemetry

	mesh     *model.Mesh
	posBuf   uint32
	normBuf  uint32
	indexBuf uint32
	uploaded bool

	marker *mapview.Marker

	// Set at dispose so an async mesh load completing afterward knows not
	// to touch the scene or create GPU buffers for a dead entity.
	disposed bool
}

// VehicleLayer draws a 3D model per live vehicle. It owns its entities
// exclusively; everything here runs on the render goroutine.
type VehicleLayer struct {
	config   VehicleLayerConfig
	policy   Policy
	rend     renderer.Renderer
	mv       *mapview.Map
	meshes   *model.Cache
	eventsIn event.Poster
	lg       *log.Logger

	entities map[int]*renderEntity

	// key light for the fixed-function rig, normalized at construction
	lightDir [3]float32
}

func NewVehicleLayer(config VehicleLayerConfig, policy Policy, rend renderer.Renderer,
	mv *mapview.Map, meshes *model.Cache, ep event.Poster, lg *log.Logger) *VehicleLayer {
	return &VehicleLayer{
		config:   config,
		policy:   policy,
		rend:     rend,
		mv:       mv,
		meshes:   meshes,
		eventsIn: ep,
		lg:       lg,
		entities: make(map[int]*renderEntity),
		lightDir: math.Normalize3f([3]float32{-.3, -.5, 1}),
	}
}

// Upsert creates the entity for a vehicle id on first sighting and
// updates its telemetry on every call. The mesh load is started exactly
// once per entity; a load failure leaves the entity present but
// invisible, which also means a vehicle keeps its click surface while its
// model is missing.
func (l *VehicleLayer) Upsert(t feed.VehicleTelemetry) {
	e, ok := l.entities[t.ID]
	if !ok {
		e = &renderEntity{}
		id := t.ID
		e.marker = l.mv.AddMarker(t.Position, 12, 12, func() {
			l.eventsIn.Post(event.Event{Type: event.VehicleSelectedEvent, VehicleID: id})
		})
		l.entities[t.ID] = e

		l.meshes.Load(l.config.ModelPath, func(m *model.Mesh, err error) {
			if e.disposed {
				return
			}
			if err != nil {
				// Already logged by the cache; the entity stays, drawing
				// nothing.
				return
			}
			e.mesh = m
			e.posBuf = l.rend.CreateVertexBuffer(m.FlatP())
			e.normBuf = l.rend.CreateVertexBuffer(m.FlatN())
			e.indexBuf = l.rend.CreateIndexBuffer(m.Indices)
			e.uploaded = true
		})
	}

	if t.Heading < 0 || t.Heading >= 360 {
		t.Heading = math.NormalizeHeading(t.Heading)
	}
	e.telemetry = t
	e.marker.SetPosition(t.Position, e.marker.AltitudeMeters)
}

// SetVehicles reconciles the entity set against a full poll snapshot: ids
// absent from the snapshot are disposed. An empty snapshot is valid and
// leaves the layer empty.
func (l *VehicleLayer) SetVehicles(ts []feed.VehicleTelemetry) {
	seen := make(map[int]interface{}, len(ts))
	for _, t := range ts {
		seen[t.ID] = nil
		l.Upsert(t)
	}

	for id, e := range l.entities {
		if _, ok := seen[id]; !ok {
			l.disposeEntity(id, e)
			l.eventsIn.Post(event.Event{Type: event.VehicleLostEvent, VehicleID: id})
		}
	}
}

// Has reports whether a vehicle id currently has an entity.
func (l *VehicleLayer) Has(id int) bool {
	_, ok := l.entities[id]
	return ok
}

// Telemetry returns the last telemetry for a vehicle id.
func (l *VehicleLayer) Telemetry(id int) (feed.VehicleTelemetry, bool) {
	if e, ok := l.entities[id]; ok {
		return e.telemetry, true
	}
	return feed.VehicleTelemetry{}, false
}

func (l *VehicleLayer) disposeEntity(id int, e *renderEntity) {
	e.disposed = true
	if e.uploaded {
		l.rend.DestroyBuffer(e.posBuf)
		l.rend.DestroyBuffer(e.normBuf)
		l.rend.DestroyBuffer(e.indexBuf)
		e.uploaded = false
	}
	e.marker.Remove()
	delete(l.entities, id)
}

// Dispose releases every entity's GPU buffers and markers. The layer can
// keep being used afterward; new upserts recreate entities (and re-use
// the CPU-side mesh cache, but never old GPU handles).
func (l *VehicleLayer) Dispose() {
	for id, e := range l.entities {
		l.disposeEntity(id, e)
	}
}

// entityTransform computes the camera-space transform for one entity:
// translation from projected position plus the zoom-dependent elevation,
// rotation about the vertical from the heading, and a uniform scale
// combining the policy scale, mesh normalization, and the local
// meters-to-pixels factor.
func (l *VehicleLayer) entityTransform(ctx *mapview.FrameContext, e *renderEntity) math.Matrix4 {
	t := e.telemetry
	elevation := l.policy.Elevation(ctx.Pose.Zoom)

	x, y, z := geo.Project(float64(t.Position.Longitude()), float64(t.Position.Latitude()),
		float64(elevation))
	p := ctx.CameraSpace(x, y, z)

	pixelsPerMeter := float32(geo.UnitsPerMeter(float64(t.Position.Latitude())) * ctx.WorldSize)
	scale := l.policy.Scale(ctx.Pose.Zoom) * pixelsPerMeter *
		l.config.VehicleLengthMeters / e.mesh.Extent()

	rot := math.Radians(t.Heading + l.config.HeadingOffset)

	return math.Identity4x4().
		Translate(p[0], p[1], p[2]).
		RotateZ(rot).
		Scale(scale, scale, scale)
}

// Tick recomputes per-entity transforms and click surfaces for the
// current frame. It must run every frame: zoom and camera motion alone
// change every transform even when no telemetry has arrived.
func (l *VehicleLayer) Tick(ctx *mapview.FrameContext) {
	elevation := l.policy.Elevation(ctx.Pose.Zoom)
	for _, e := range l.entities {
		e.marker.AltitudeMeters = elevation
		e.marker.SetPosition(e.telemetry.Position, elevation)

		if e.mesh == nil {
			continue
		}
		// Size the hit rectangle to the model's rough screen footprint.
		pixelsPerMeter := float32(geo.UnitsPerMeter(float64(e.telemetry.Position.Latitude())) * ctx.WorldSize)
		half := l.policy.Scale(ctx.Pose.Zoom) * pixelsPerMeter * l.config.VehicleLengthMeters / 2
		half = math.Clamp(half, 8, 64)
		e.marker.HalfWidth, e.marker.HalfHeight = half, half
	}
}

// Draw implements mapview.Layer. Mesh-load completions are drained here,
// at the top of the frame, so entity state never changes mid-draw.
func (l *VehicleLayer) Draw(ctx *mapview.FrameContext, cb *renderer.CommandBuffer) {
	l.meshes.Drain()
	l.Tick(ctx)

	any := false
	for _, e := range l.entities {
		if e.uploaded {
			any = true
			break
		}
	}
	if !any {
		return
	}

	// Depth values from the previous frame are garbage once the camera or
	// any vehicle has moved; clear before the first 3D draw.
	cb.ClearDepth()
	cb.EnableDepthTest()
	cb.EnableLighting(l.lightDir, renderer.RGB{R: 1, G: 1, B: 1}, renderer.RGB{R: .35, G: .35, B: .35})
	cb.SetRGB(l.config.BodyColor)

	for _, e := range l.entities {
		if !e.uploaded {
			continue
		}
		cb.LoadModelViewMatrix(ctx.View.PostMultiply(l.entityTransform(ctx, e)))
		cb.VertexBuffer(e.posBuf, 3, 0)
		cb.NormalBuffer(e.normBuf, 0)
		cb.DrawIndexedTriangles(e.indexBuf, len(e.mesh.Indices))
	}

	cb.DisableNormalArray()
	cb.DisableVertexArray()
	cb.DisableLighting()
	cb.DisableDepthTest()
	cb.LoadModelViewMatrix(ctx.View)
}
