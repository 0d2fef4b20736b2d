// cmd/busview/main.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// busview renders live transit vehicle positions as 3D models on a
// tilted, rotatable slippy map, with a camera that can fly to and follow
// an individual vehicle.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/mmp/busview/event"
	"github.com/mmp/busview/feed"
	"github.com/mmp/busview/follow"
	"github.com/mmp/busview/log"
	"github.com/mmp/busview/mapview"
	"github.com/mmp/busview/model"
	"github.com/mmp/busview/platform"
	"github.com/mmp/busview/renderer"
	"github.com/mmp/busview/scene"
)

var (
	logLevel   = flag.String("loglevel", "info", "logging level: debug, info, warn, error")
	logDir     = flag.String("logdir", "", "log file directory")
	vehicleURL = flag.String("vehicles", "", "override the vehicle position feed URL")
	routeURL   = flag.String("routes", "", "override the route shape KML URL")
	modelPath  = flag.String("model", "", "override the vehicle model OBJ file")
)

const (
	// Wheel notches are scaled to zoom levels; drag distances on the
	// secondary button are scaled to degrees of bearing/pitch.
	zoomPerWheelNotch = 0.25
	degreesPerPixel   = 0.25

	routePollInterval = 6 * time.Hour
)

func init() {
	// OpenGL and GLFW require that all calls happen on the same thread.
	runtime.LockOSThread()
}

func main() {
	flag.Parse()

	lg := log.New(*logLevel, *logDir)

	config := LoadOrMakeDefaultConfig(lg)
	if *vehicleURL != "" {
		config.VehicleFeedURL = *vehicleURL
	}
	if *routeURL != "" {
		config.RouteFeedURL = *routeURL
	}
	if *modelPath != "" {
		config.ModelPath = *modelPath
	}

	plat, err := platform.New(&config.Config, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to create application window: %v\n", err)
		os.Exit(1)
	}
	defer plat.Dispose()

	rend, err := renderer.NewOpenGL2Renderer(lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to initialize OpenGL: %v\n", err)
		os.Exit(1)
	}
	defer rend.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventStream := event.NewStream(lg)
	eventsSub := eventStream.Subscribe()
	defer eventsSub.Unsubscribe()

	vehicleClient := feed.NewVehicleClient(config.VehicleFeedURL, lg)
	routeClient := feed.NewRouteClient(config.RouteFeedURL, lg)

	vehicles, routes, err := feed.FetchStartup(ctx, vehicleClient, routeClient, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to fetch vehicle positions from %s: %v\n",
			config.VehicleFeedURL, err)
		os.Exit(1)
	}
	lg.Infof("startup: %d vehicles, %d routes", len(vehicles), len(routes))

	mv := mapview.New(config.InitialPose, plat.DisplaySize(), lg)

	meshes := model.NewCache(16, lg)
	layerConfig := scene.DefaultVehicleLayerConfig()
	layerConfig.ModelPath = config.ModelPath
	vehicleLayer := scene.NewVehicleLayer(layerConfig, config.Scene, rend, mv, meshes,
		eventStream, lg)
	mv.AddLayer(vehicleLayer)
	vehicleLayer.SetVehicles(vehicles)

	// Route lines draw beneath the vehicle models.
	routeLayer := mapview.NewRouteLayer(routes, renderer.RGB{R: .2, G: .45, B: .9})
	mv.InsertLayerBefore(routeLayer, vehicleLayer)

	controller := follow.New(config.Follow, mv, vehicleLayer, eventStream, lg)

	interval := time.Duration(config.PollIntervalSeconds) * time.Second
	vehiclePoller := feed.NewPoller(interval, vehicleClient.Fetch, eventStream, lg)
	go vehiclePoller.Run(ctx)

	var routePoller *feed.Poller[[]feed.RoutePath]
	if config.RouteFeedURL != "" {
		routePoller = feed.NewPoller(routePollInterval, routeClient.Fetch, eventStream, lg)
		go routePoller.Run(ctx)
	}

	///////////////////////////////////////////////////////////////////////
	// Main loop

	for !plat.ShouldStop() {
		plat.ProcessEvents()
		plat.NewFrame()

		select {
		case vs := <-vehiclePoller.Updates():
			vehicleLayer.SetVehicles(vs)
		default:
		}
		if routePoller != nil {
			select {
			case rs := <-routePoller.Updates():
				routeLayer.SetRoutes(rs)
			default:
			}
		}

		controller.ProcessEvents(eventsSub)
		controller.Tick()

		ds := plat.DisplaySize()
		mv.SetWindowSize(ds[0], ds[1])
		mv.SetDPIScale(plat.DPIScale())

		now := time.Now()
		handleInput(plat.GetMouse(), mv, eventStream, now)

		cb := renderer.GetCommandBuffer()
		cb.ClearRGB(renderer.RGB{R: .95, G: .95, B: .93})
		mv.Draw(now, cb)

		stats := rend.RenderCommandBuffer(cb)
		renderer.ReturnCommandBuffer(cb)
		lg.Debug("frame", "stats", stats)

		plat.PostRender()
	}

	cancel()
	vehicleLayer.Dispose()
	config.SaveIfChanged(plat, mv.Pose(), lg)
}

// handleInput translates the frame's mouse state into map navigation and
// vehicle selection. Navigation calls are no-ops while the camera is
// locked onto a followed vehicle; a click anywhere still gets through so
// the user can always select or deselect.
func handleInput(mouse *platform.MouseState, mv *mapview.Map, ep event.Poster, now time.Time) {
	if mouse.Dragging[platform.MouseButtonPrimary] {
		if mouse.Shift || mouse.Ctrl {
			mv.RotateBy(-mouse.DragDelta[0] * degreesPerPixel)
			mv.PitchBy(-mouse.DragDelta[1] * degreesPerPixel)
		} else {
			mv.Pan(mouse.DragDelta[0], mouse.DragDelta[1])
		}
	}
	if mouse.Dragging[platform.MouseButtonSecondary] {
		mv.RotateBy(-mouse.DragDelta[0] * degreesPerPixel)
		mv.PitchBy(-mouse.DragDelta[1] * degreesPerPixel)
	}

	if mouse.Wheel[1] != 0 {
		mv.ZoomBy(mouse.Wheel[1] * zoomPerWheelNotch)
	}

	if mouse.Clicked[platform.MouseButtonPrimary] {
		fc := mv.FrameContext(now)
		if marker := mv.Pick(fc, mouse.Pos[0], mouse.Pos[1]); marker != nil {
			if marker.OnSelect != nil {
				marker.OnSelect()
			}
		} else {
			ep.Post(event.Event{Type: event.VehicleDeselectedEvent})
		}
	}
}
