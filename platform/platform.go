// platform/platform.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package platform

import (
	"github.com/mmp/busview/log"
)

// Platform is the interface between the windowing system and the rest of
// busview; it hides the details of window creation, OpenGL context
// management, and input handling.
type Platform interface {
	// ProcessEvents handles all pending window events; the returned
	// boolean indicates whether any events were received, which callers
	// may use to skip redrawing an unchanged frame.
	ProcessEvents() bool
	// NewFrame marks the start of a new frame and refreshes the mouse
	// state snapshot returned by GetMouse.
	NewFrame()
	// PostRender performs the buffer swap at the end of the frame.
	PostRender()
	// GetMouse returns the mouse state as of the most recent NewFrame
	// call, in window coordinates with the origin at the upper left.
	GetMouse() *MouseState
	// DisplaySize returns the dimension of the display, in windowing
	// system coordinates.
	DisplaySize() [2]float32
	// FramebufferSize returns the dimension of the framebuffer in
	// pixels; this may differ from DisplaySize on high-DPI displays.
	FramebufferSize() [2]float32
	// WindowSize returns the size of the window, in windowing system
	// coordinates.
	WindowSize() [2]int
	// WindowPosition returns the position of the window on the screen.
	WindowPosition() [2]int
	// DPIScale returns the scale factor between window coordinates and
	// framebuffer pixels.
	DPIScale() float32
	// EnableVSync specifies whether presentation should wait for vertical
	// retrace.
	EnableVSync(sync bool)
	// ShouldStop returns true when the user has requested that the window
	// be closed.
	ShouldStop() bool
	// CancelShouldStop cancels a user request to close the window.
	CancelShouldStop()
	// Dispose destroys the window and cleans up windowing system
	// resources.
	Dispose()
}

// Config specifies the initial window geometry and a few rendering
// options; it is filled in from the saved global configuration at startup.
type Config struct {
	InitialWindowSize     [2]int
	InitialWindowPosition [2]int

	EnableMSAA bool
}

// New returns a Platform implemented via GLFW with an associated OpenGL
// context made current on the calling goroutine.
func New(config *Config, lg *log.Logger) (Platform, error) {
	return newGLFW(config, lg)
}
