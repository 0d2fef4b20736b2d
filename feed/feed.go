// feed/feed.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package feed fetches live vehicle telemetry and route geometry from
// external sources. Everything here runs off the render goroutine;
// results are handed over via channels that the frame loop drains.
package feed

import (
	"log/slog"
	"time"

	"github.com/mmp/busview/geo"
)

// VehicleTelemetry is one vehicle's state as last reported by the feed.
// The ID is stable across polls; everything else may change every report.
// Positions may be zero or otherwise implausible for vehicles that
// haven't reported yet, so consumers must tolerate them.
type VehicleTelemetry struct {
	ID          int
	Position    geo.Point2LL
	Heading     float32 // degrees, clockwise from true north
	Destination string
	Occupancy   int
	Capacity    int
	Timestamp   time.Time
}

func (t VehicleTelemetry) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("id", t.ID),
		slog.String("position", t.Position.DDString()),
		slog.Float64("heading", float64(t.Heading)),
		slog.String("destination", t.Destination),
		slog.Time("timestamp", t.Timestamp))
}

// Waypoint is one vertex of a route polyline.
type Waypoint struct {
	Longitude float32
	Latitude  float32
	Altitude  float32 // meters; usually zero
}

func (w Waypoint) Point2LL() geo.Point2LL {
	return geo.Point2LL{w.Longitude, w.Latitude}
}

// RoutePath is a named polyline describing the path a route follows.
type RoutePath struct {
	Name      string
	Waypoints []Waypoint
}
