// platform/glfw.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package platform

import (
	"fmt"
	"runtime"

	"github.com/mmp/busview/log"

	"github.com/go-gl/gl/v2.1/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
)

type glfwPlatform struct {
	config *Config
	lg     *log.Logger

	window      *glfw.Window
	multisample bool
	anyEvents   bool

	buttons      [MouseButtonCount]mouseButtonState
	wheelAccum   [2]float32
	lastMousePos [2]float32
	lastMouseX   float64
	lastMouseY   float64

	mouse MouseState
}

var glfwButtonIndexByID = map[glfw.MouseButton]int{
	glfw.MouseButton1: MouseButtonPrimary,
	glfw.MouseButton2: MouseButtonSecondary,
	glfw.MouseButton3: MouseButtonTertiary,
}

func newGLFW(config *Config, lg *log.Logger) (Platform, error) {
	lg.Info("Starting GLFW initialization")
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize glfw: %w", err)
	}
	lg.Infof("GLFW: %s", glfw.GetVersionString())

	glfw.WindowHint(glfw.ContextVersionMajor, 2)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)

	// If window size and position are out of bounds for the current
	// display (e.g., the config was saved on a different machine), fall
	// back to reasonable defaults.
	vm := glfw.GetPrimaryMonitor().GetVideoMode()
	if config.InitialWindowSize[0] <= 0 || config.InitialWindowSize[1] <= 0 ||
		config.InitialWindowSize[0] > vm.Width || config.InitialWindowSize[1] > vm.Height {
		config.InitialWindowSize[0] = vm.Width - 150
		config.InitialWindowSize[1] = vm.Height - 150
	}
	if config.InitialWindowPosition[0] < 0 || config.InitialWindowPosition[1] < 0 ||
		config.InitialWindowPosition[0] > vm.Width || config.InitialWindowPosition[1] > vm.Height {
		config.InitialWindowPosition = [2]int{100, 100}
	}

	// Start the window invisible so that it can be moved into position
	// before it is first shown.
	glfw.WindowHint(glfw.Visible, 0)
	glfw.WindowHint(glfw.AutoIconify, 0)
	if config.EnableMSAA {
		glfw.WindowHint(glfw.Samples, 4)
	}

	window, err := glfw.CreateWindow(config.InitialWindowSize[0], config.InitialWindowSize[1],
		"busview", nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	window.SetPos(config.InitialWindowPosition[0], config.InitialWindowPosition[1])
	window.Show()
	window.MakeContextCurrent()

	p := &glfwPlatform{
		config:      config,
		lg:          lg,
		window:      window,
		multisample: config.EnableMSAA,
	}
	p.installCallbacks()
	p.EnableVSync(true)

	lg.Info("Finished GLFW initialization")

	return p, nil
}

func (g *glfwPlatform) installCallbacks() {
	g.window.SetMouseButtonCallback(g.mouseButtonChange)
	g.window.SetScrollCallback(g.mouseScrollChange)
}

func (g *glfwPlatform) mouseButtonChange(window *glfw.Window, rawButton glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	b, known := glfwButtonIndexByID[rawButton]
	if !known {
		return
	}

	g.anyEvents = true
	switch action {
	case glfw.Press:
		g.buttons[b].justPressed = true
	case glfw.Release:
		g.buttons[b].justReleased = true
	}
}

func (g *glfwPlatform) mouseScrollChange(window *glfw.Window, x, y float64) {
	g.anyEvents = true
	g.wheelAccum[0] += float32(x)
	g.wheelAccum[1] += float32(y)
}

func (g *glfwPlatform) ProcessEvents() bool {
	g.anyEvents = false

	glfw.PollEvents()

	if g.anyEvents {
		return true
	}

	for b := range g.buttons {
		if g.buttons[b].down {
			return true
		}
	}

	x, y := g.window.GetCursorPos()
	if x != g.lastMouseX || y != g.lastMouseY {
		g.lastMouseX, g.lastMouseY = x, y
		return true
	}

	return false
}

func (g *glfwPlatform) NewFrame() {
	if g.multisample {
		gl.Enable(gl.MULTISAMPLE)
	}

	pos := g.getCursorPos()

	m := MouseState{
		Pos:      pos,
		DeltaPos: [2]float32{pos[0] - g.lastMousePos[0], pos[1] - g.lastMousePos[1]},
		Wheel:    g.wheelAccum,
	}
	g.wheelAccum = [2]float32{}
	g.lastMousePos = pos

	for b := range g.buttons {
		bs := &g.buttons[b]

		if bs.justPressed {
			bs.down = true
			bs.dragging = false
			bs.pressPos = pos
		}

		if bs.down && !bs.dragging {
			dx, dy := pos[0]-bs.pressPos[0], pos[1]-bs.pressPos[1]
			if dx*dx+dy*dy > dragThreshold*dragThreshold {
				bs.dragging = true
			}
		}

		m.Down[b] = bs.down || bs.justPressed
		m.Dragging[b] = bs.dragging
		if bs.dragging {
			m.DragDelta = m.DeltaPos
		}
		if bs.justReleased {
			m.Released[b] = true
			// A release without intervening drag motion is a click.
			m.Clicked[b] = !bs.dragging
			bs.down = false
			bs.dragging = false
		}

		bs.justPressed = false
		bs.justReleased = false
	}

	if g.window.GetAttrib(glfw.Focused) != 0 {
		m.Shift = g.window.GetKey(glfw.KeyLeftShift) == glfw.Press || g.window.GetKey(glfw.KeyRightShift) == glfw.Press
		m.Alt = g.window.GetKey(glfw.KeyLeftAlt) == glfw.Press || g.window.GetKey(glfw.KeyRightAlt) == glfw.Press
		if runtime.GOOS == "darwin" {
			// Treat Command as Control on OSX so that keyboard shortcuts
			// match platform conventions.
			m.Ctrl = g.window.GetKey(glfw.KeyLeftSuper) == glfw.Press || g.window.GetKey(glfw.KeyRightSuper) == glfw.Press
		} else {
			m.Ctrl = g.window.GetKey(glfw.KeyLeftControl) == glfw.Press || g.window.GetKey(glfw.KeyRightControl) == glfw.Press
		}
	}

	g.mouse = m
}

func (g *glfwPlatform) GetMouse() *MouseState {
	m := g.mouse
	return &m
}

func (g *glfwPlatform) getCursorPos() [2]float32 {
	x, y := g.window.GetCursorPos()
	return [2]float32{float32(int(x)), float32(int(y))}
}

func (g *glfwPlatform) PostRender() {
	g.window.SwapBuffers()
}

func (g *glfwPlatform) DisplaySize() [2]float32 {
	w, h := g.window.GetSize()
	return [2]float32{float32(w), float32(h)}
}

func (g *glfwPlatform) WindowSize() [2]int {
	w, h := g.window.GetSize()
	return [2]int{w, h}
}

func (g *glfwPlatform) WindowPosition() [2]int {
	x, y := g.window.GetPos()
	return [2]int{x, y}
}

func (g *glfwPlatform) FramebufferSize() [2]float32 {
	w, h := g.window.GetFramebufferSize()
	return [2]float32{float32(w), float32(h)}
}

func (g *glfwPlatform) DPIScale() float32 {
	if runtime.GOOS == "windows" {
		sx, sy := g.window.GetContentScale()
		return float32(int((sx + sy) / 2))
	} else {
		return g.FramebufferSize()[0] / g.DisplaySize()[0]
	}
}

func (g *glfwPlatform) EnableVSync(sync bool) {
	if sync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}
}

func (g *glfwPlatform) ShouldStop() bool {
	return g.window.ShouldClose()
}

func (g *glfwPlatform) CancelShouldStop() {
	g.window.SetShouldClose(false)
}

func (g *glfwPlatform) Dispose() {
	g.window.Destroy()
	glfw.Terminate()
}
