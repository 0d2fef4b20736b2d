// mapview/routelayer.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package mapview

import (
	"github.com/mmp/busview/feed"
	"github.com/mmp/busview/geo"
	"github.com/mmp/busview/renderer"
)

// RouteLayer draws route polylines as 2D lines on the map surface. It
// belongs beneath the vehicle layer in the stack so models draw over
// their routes.
type RouteLayer struct {
	routes []feed.RoutePath
	color  renderer.RGB
	width  float32
}

func NewRouteLayer(routes []feed.RoutePath, color renderer.RGB) *RouteLayer {
	return &RouteLayer{routes: routes, color: color, width: 2}
}

func (rl *RouteLayer) SetRoutes(routes []feed.RoutePath) { rl.routes = routes }

func (rl *RouteLayer) Draw(ctx *FrameContext, cb *renderer.CommandBuffer) {
	if len(rl.routes) == 0 {
		return
	}

	ld := renderer.GetLinesDrawBuilder()
	defer renderer.ReturnLinesDrawBuilder(ld)

	for _, route := range rl.routes {
		strip := make([][3]float32, len(route.Waypoints))
		for i, wp := range route.Waypoints {
			x, y, z := geo.Project(float64(wp.Longitude), float64(wp.Latitude), float64(wp.Altitude))
			strip[i] = ctx.CameraSpace(x, y, z)
		}
		ld.AddLineStrip(strip)
	}

	cb.SetRGB(rl.color)
	cb.LineWidth(rl.width, 1)
	ld.GenerateCommands(cb)
}
