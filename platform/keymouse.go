// platform/keymouse.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package platform

const (
	MouseButtonPrimary = iota
	MouseButtonSecondary
	MouseButtonTertiary
	MouseButtonCount
)

// Mouse motion must exceed this many window coordinates from the position
// where a button was pressed before it is treated as a drag rather than a
// click.
const dragThreshold = 3

// MouseState captures a per-frame snapshot of the mouse; it is valid for
// the frame on which it was returned by GetMouse.
type MouseState struct {
	Pos      [2]float32
	DeltaPos [2]float32
	Down     [MouseButtonCount]bool
	Clicked  [MouseButtonCount]bool
	Released [MouseButtonCount]bool
	Dragging [MouseButtonCount]bool
	// DragDelta gives the mouse motion since the previous frame while a
	// drag is in progress.
	DragDelta [2]float32
	Wheel     [2]float32

	Shift, Ctrl, Alt bool
}

// mouseButtonState tracks a single button across frames so that clicks
// can be distinguished from drags when the button is released.
type mouseButtonState struct {
	down         bool
	justPressed  bool
	justReleased bool
	pressPos     [2]float32
	dragging     bool
}
