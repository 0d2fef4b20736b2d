// scene/policy.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package scene renders vehicles as 3D models on the map: a per-zoom
// scale and elevation policy, and the layer that owns the per-vehicle
// render entities.
package scene

import (
	"github.com/mmp/busview/math"
)

// Policy computes the zoom-dependent visual scale and elevation offset
// for vehicle models. The slippy map's world-to-screen ratio doubles with
// each zoom level, so a model drawn at constant world size either
// vanishes when zoomed out or dwarfs the map when zoomed in; the
// exponential compensates the dominant term of that relationship, clamped
// at both ends. The elevation term floats models above the basemap at far
// zooms, where they would otherwise be swallowed by map labels, and
// settles them onto the ground as the camera comes in.
//
// The constants are calibration values, tunable from the config file.
type Policy struct {
	BaseScale float32
	BaseZoom  float32
	ZoomSpeed float32
	MinScale  float32
	MaxScale  float32

	ElevationZoomThreshold float32
	ElevationGain          float32 // meters per zoom level below the threshold
}

func DefaultPolicy() Policy {
	return Policy{
		BaseScale:              10,
		BaseZoom:               12,
		ZoomSpeed:              3,
		MinScale:               0.05,
		MaxScale:               0.35,
		ElevationZoomThreshold: 14,
		ElevationGain:          200,
	}
}

// Scale returns the uniform model scale multiplier at the given zoom.
func (p Policy) Scale(zoom float32) float32 {
	return math.Clamp(p.BaseScale*math.Pow(p.ZoomSpeed, p.BaseZoom-zoom), p.MinScale, p.MaxScale)
}

// Elevation returns the model's elevation offset in meters at the given
// zoom; it is zero at and beyond the threshold.
func (p Policy) Elevation(zoom float32) float32 {
	return max(0, p.ElevationZoomThreshold-zoom) * p.ElevationGain
}
