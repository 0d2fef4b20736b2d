// geo/geo.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package geo

import (
	"fmt"
	gomath "math"
)

///////////////////////////////////////////////////////////////////////////
// Point2LL

// Point2LL represents a 2D point on the Earth in latitude-longitude.
// Important: 0 (x) is longitude, 1 (y) is latitude
type Point2LL [2]float32

func (p Point2LL) Longitude() float32 {
	return p[0]
}

func (p Point2LL) Latitude() float32 {
	return p[1]
}

func (p Point2LL) IsZero() bool {
	return p[0] == 0 && p[1] == 0
}

// DDString returns the position in decimal degrees, e.g.:
// (42.117963, -79.979146)
func (p Point2LL) DDString() string {
	return fmt.Sprintf("(%f, %f)", p[1], p[0]) // latitude, longitude
}

///////////////////////////////////////////////////////////////////////////
// Web Mercator render space

// The 3D layer draws in the same coordinate system the slippy map itself
// uses: Web Mercator normalized so that the entire world spans [0,1] in x
// and y, with x increasing eastward and y increasing southward, and z
// giving altitude in the same units. Matching the host map's own
// projection exactly is what keeps 3D content aligned with 2D map features
// at every zoom level, so the constants below must not be "improved".

const EarthRadiusMeters = 6371008.8

const earthCircumferenceMeters = 2 * gomath.Pi * EarthRadiusMeters

// Project converts a WGS84 position and altitude (meters) into normalized
// mercator render coordinates. It is a pure function; out-of-range
// coordinates produce saturated but well-defined values and callers are
// expected to validate telemetry before use.
func Project(lon, lat, altitudeMeters float64) (x, y, z float64) {
	x = (180 + lon) / 360
	y = (180 - (180/gomath.Pi)*gomath.Log(gomath.Tan(gomath.Pi/4+lat*gomath.Pi/360))) / 360
	z = altitudeMeters * UnitsPerMeter(lat)
	return
}

// Unproject inverts Project's x/y mapping, returning the WGS84 position
// for a point in normalized mercator render coordinates. It is what pan
// gestures use to move the camera center by a screen-space delta.
func Unproject(x, y float64) (lon, lat float64) {
	lon = x*360 - 180
	lat = (gomath.Atan(gomath.Exp(gomath.Pi*(1-2*y))) - gomath.Pi/4) * 360 / gomath.Pi
	return
}

// UnitsPerMeter returns the number of normalized mercator units per meter
// at the given latitude. The mercator projection stretches toward the
// poles, so a meter covers more render units the further the latitude is
// from the equator.
func UnitsPerMeter(lat float64) float64 {
	c := gomath.Cos(lat * gomath.Pi / 180)
	if c == 0 {
		return gomath.Inf(1)
	}
	return 1 / (c * earthCircumferenceMeters)
}

// MetersPerUnit is the inverse local scale factor; it is what model
// transforms use to convert a mesh authored in meters into render units.
func MetersPerUnit(lat float64) float64 {
	return gomath.Cos(lat*gomath.Pi/180) * earthCircumferenceMeters
}

///////////////////////////////////////////////////////////////////////////
// CameraPose

// CameraPose is the full state of the map camera: where it looks, how far
// in it is, and how it is tilted and rotated. It serves both as the live
// camera state and as the snapshot saved when entering follow mode.
type CameraPose struct {
	Center  Point2LL
	Zoom    float32
	Pitch   float32 // degrees from straight down, 0 = overhead
	Bearing float32 // degrees clockwise from north
}

// Lerp interpolates between two poses; bearing takes the short way around.
func (p CameraPose) Lerp(x float32, q CameraPose) CameraPose {
	db := gomath.Mod(float64(q.Bearing-p.Bearing)+540, 360) - 180
	return CameraPose{
		Center: Point2LL{
			(1-x)*p.Center[0] + x*q.Center[0],
			(1-x)*p.Center[1] + x*q.Center[1],
		},
		Zoom:    (1-x)*p.Zoom + x*q.Zoom,
		Pitch:   (1-x)*p.Pitch + x*q.Pitch,
		Bearing: p.Bearing + x*float32(db),
	}
}
