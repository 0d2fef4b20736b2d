// follow/follow.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package follow implements the camera-follow interaction: selecting a
// vehicle hijacks the camera to chase it, deselecting restores the pose
// the user had before. The controller is a small state machine driven by
// selection events and per-frame ticks, all on the render goroutine.
package follow

import (
	"time"

	"github.com/mmp/busview/event"
	"github.com/mmp/busview/feed"
	"github.com/mmp/busview/geo"
	"github.com/mmp/busview/log"
	"github.com/mmp/busview/mapview"
	"github.com/mmp/busview/math"
)

type State int

const (
	// Idle: no follow interaction; the user owns the camera.
	Idle State = iota
	// Focusing: flying toward the selected vehicle; the user's pose is
	// saved but interaction is still live until arrival.
	Focusing
	// Focused: locked onto the vehicle; interaction disabled, camera
	// jumps with each telemetry update.
	Focused
	// Restoring: flying back to the saved pose.
	Restoring
)

func (s State) String() string {
	return []string{"Idle", "Focusing", "Focused", "Restoring"}[s]
}

// VehicleSource is where the controller looks up the followed vehicle's
// latest telemetry; the scene's vehicle layer implements it.
type VehicleSource interface {
	Telemetry(id int) (feed.VehicleTelemetry, bool)
}

type Config struct {
	Zoom        float32
	Pitch       float32
	FlyDuration time.Duration
}

func DefaultConfig() Config {
	return Config{Zoom: 17.5, Pitch: 55, FlyDuration: 1500 * time.Millisecond}
}

type Controller struct {
	config Config
	mv     *mapview.Map
	source VehicleSource
	ep     event.Poster
	lg     *log.Logger

	state  State
	target int
	// saved is the user's pose from before the follow interaction began;
	// it is only meaningful in Focusing, Focused, and Restoring. A
	// retarget keeps the pose saved at the first selection.
	saved geo.CameraPose

	// generation invalidates completion callbacks from superseded
	// animations: a callback captured under an older generation is
	// ignored even if it fires.
	generation int
}

func New(config Config, mv *mapview.Map, source VehicleSource, ep event.Poster,
	lg *log.Logger) *Controller {
	return &Controller{
		config: config,
		mv:     mv,
		source: source,
		ep:     ep,
		lg:     lg,
	}
}

func (c *Controller) State() State { return c.state }

// Target returns the followed vehicle id; only meaningful when State is
// Focusing or Focused.
func (c *Controller) Target() int { return c.target }

// setState enforces the invariant that map interaction is disabled, and
// navigation chrome hidden, exactly while Focused.
func (c *Controller) setState(s State) {
	c.state = s
	c.mv.SetInteractionEnabled(s != Focused)
	c.mv.SetNavigationChromeVisible(s != Focused)
}

func (c *Controller) targetPose(t feed.VehicleTelemetry) geo.CameraPose {
	return geo.CameraPose{
		Center:  t.Position,
		Zoom:    c.config.Zoom,
		Pitch:   c.config.Pitch,
		Bearing: math.NormalizeHeading(t.Heading),
	}
}

// Select begins following a vehicle. Selecting while already following
// retargets atomically: the pose saved at the first selection is kept, so
// a later deselect returns to where the user actually was.
func (c *Controller) Select(id int) {
	t, ok := c.source.Telemetry(id)
	if !ok {
		c.lg.Warnf("select of unknown vehicle %d", id)
		return
	}
	if (c.state == Focusing || c.state == Focused) && id == c.target {
		return
	}

	if c.state == Idle {
		c.saved = c.mv.Pose()
	}
	// In Focusing/Focused/Restoring the original pose is already saved.

	c.target = id
	c.setState(Focusing)
	c.lg.Infof("following vehicle %d", id)

	c.generation++
	gen := c.generation
	c.mv.FlyTo(c.targetPose(t), c.config.FlyDuration, func() {
		if gen != c.generation || c.state != Focusing {
			return
		}
		c.setState(Focused)
	})
}

// Deselect ends the follow interaction: interaction is re-enabled
// immediately and the camera flies back to the saved pose,
// fire-and-forget.
func (c *Controller) Deselect() {
	if c.state != Focusing && c.state != Focused {
		return
	}

	c.setState(Restoring)
	c.lg.Infof("restoring camera from vehicle %d", c.target)
	c.target = 0

	c.generation++
	gen := c.generation
	c.mv.FlyTo(c.saved, c.config.FlyDuration, func() {
		if gen != c.generation || c.state != Restoring {
			return
		}
		c.setState(Idle)
		if c.ep != nil {
			c.ep.Post(event.Event{Type: event.FollowEndedEvent})
		}
	})
}

// Tick recenters on the followed vehicle's latest telemetry; while
// Focused the camera tracks discretely, with no animation.
func (c *Controller) Tick() {
	if c.state != Focused {
		return
	}
	if t, ok := c.source.Telemetry(c.target); ok {
		c.mv.JumpTo(c.targetPose(t))
	}
}

// ProcessEvents drives the controller from the event stream: selection
// from the hit surface, deselection, and the followed vehicle vanishing
// from the feed, which auto-restores rather than leaving the camera
// locked to a stale position.
func (c *Controller) ProcessEvents(sub *event.Subscription) {
	for _, ev := range sub.Get() {
		switch ev.Type {
		case event.VehicleSelectedEvent:
			c.Select(ev.VehicleID)
		case event.VehicleDeselectedEvent:
			c.Deselect()
		case event.VehicleLostEvent:
			if (c.state == Focusing || c.state == Focused) && ev.VehicleID == c.target {
				c.lg.Infof("followed vehicle %d left the feed", ev.VehicleID)
				c.Deselect()
			}
		}
	}
}
