// mapview/marker.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package mapview

import (
	"github.com/mmp/busview/geo"
	"github.com/mmp/busview/math"
)

// Marker is an invisible, screen-sized hit rectangle anchored to a
// geodetic position. Content drawn by custom GL layers is invisible to
// the map's own feature picking, so each pickable entity places one of
// these over itself and keeps it in sync as it moves.
type Marker struct {
	owner *Map // nil once removed

	Position       geo.Point2LL
	AltitudeMeters float32

	// Half-extents of the hit rectangle in screen pixels.
	HalfWidth, HalfHeight float32

	OnSelect func()
}

// AddMarker registers a marker; later-added markers win ties in Pick.
func (m *Map) AddMarker(p geo.Point2LL, halfWidth, halfHeight float32, onSelect func()) *Marker {
	mk := &Marker{
		owner:      m,
		Position:   p,
		HalfWidth:  halfWidth,
		HalfHeight: halfHeight,
		OnSelect:   onSelect,
	}
	m.markers = append(m.markers, mk)
	return mk
}

func (mk *Marker) SetPosition(p geo.Point2LL, altitudeMeters float32) {
	mk.Position = p
	mk.AltitudeMeters = altitudeMeters
}

// Remove unregisters the marker; removing twice is a no-op.
func (mk *Marker) Remove() {
	if mk.owner == nil {
		return
	}
	for i, other := range mk.owner.markers {
		if other == mk {
			mk.owner.markers = append(mk.owner.markers[:i], mk.owner.markers[i+1:]...)
			break
		}
	}
	mk.owner = nil
}

// Pick returns the topmost marker whose hit rectangle contains the window
// position (x, y), or nil.
func (m *Map) Pick(fc *FrameContext, x, y float32) *Marker {
	for i := len(m.markers) - 1; i >= 0; i-- {
		mk := m.markers[i]
		pw, ok := fc.WindowPoint(mk.Position, float64(mk.AltitudeMeters))
		if !ok {
			continue
		}
		ext := math.Extent2D{
			P0: [2]float32{pw[0] - mk.HalfWidth, pw[1] - mk.HalfHeight},
			P1: [2]float32{pw[0] + mk.HalfWidth, pw[1] + mk.HalfHeight},
		}
		if ext.Inside([2]float32{x, y}) {
			return mk
		}
	}
	return nil
}
