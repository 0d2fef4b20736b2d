// renderer/ogl2.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

import (
	"C"
	"fmt"
	gomath "math"
	"unsafe"

	"github.com/mmp/busview/log"

	"github.com/go-gl/gl/v2.1/gl"
)

// Also available as a global, though only used by CommandBuffer
var lg *log.Logger

type OpenGL2Renderer struct {
	lg             *log.Logger
	createdBuffers map[uint32]int
}

// NewOpenGL2Renderer initializes OpenGL; the context must have been made
// current by the platform layer before this is called.
func NewOpenGL2Renderer(l *log.Logger) (Renderer, error) {
	lg = l

	lg.Info("Starting OpenGL2Renderer initialization")
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	vendor, renderer := gl.GetString(gl.VENDOR), gl.GetString(gl.RENDERER)
	v, r := (*C.char)(unsafe.Pointer(vendor)), (*C.char)(unsafe.Pointer(renderer))
	lg.Infof("OpenGL vendor %s renderer %s", C.GoString(v), C.GoString(r))

	lg.Info("Finished OpenGL2Renderer initialization")
	return &OpenGL2Renderer{
		lg:             lg,
		createdBuffers: make(map[uint32]int),
	}, nil
}

func (ogl2 *OpenGL2Renderer) Dispose() {
	for id := range ogl2.createdBuffers {
		gl.DeleteBuffers(1, &id)
	}
}

func (ogl2 *OpenGL2Renderer) createdBuffer(id uint32, bytes int) {
	ogl2.createdBuffers[id] = bytes

	total := 0
	for _, b := range ogl2.createdBuffers {
		total += b
	}
	ogl2.lg.Debugf("Created buffer id %d: %d bytes -> %.2f MiB of buffers total",
		id, bytes, float32(total)/(1024*1024))
}

func (ogl2 *OpenGL2Renderer) CreateVertexBuffer(data []float32) uint32 {
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(gl.ARRAY_BUFFER, id)
	gl.BufferData(gl.ARRAY_BUFFER, 4*len(data), unsafe.Pointer(&data[0]), gl.STATIC_DRAW)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	ogl2.createdBuffer(id, 4*len(data))
	return id
}

func (ogl2 *OpenGL2Renderer) CreateIndexBuffer(data []int32) uint32 {
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, id)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, 4*len(data), unsafe.Pointer(&data[0]), gl.STATIC_DRAW)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, 0)

	ogl2.createdBuffer(id, 4*len(data))
	return id
}

func (ogl2 *OpenGL2Renderer) DestroyBuffer(id uint32) {
	gl.DeleteBuffers(1, &id)
	delete(ogl2.createdBuffers, id)
}

func (ogl2 *OpenGL2Renderer) RenderCommandBuffer(cb *CommandBuffer) RendererStats {
	var stats RendererStats
	stats.nBuffers++
	stats.bufferBytes += 4 * len(cb.Buf)

	i := 0
	ui32 := func() uint32 {
		v := cb.Buf[i]
		i++
		return v
	}
	i32 := func() int32 {
		return int32(ui32())
	}
	float := func() float32 {
		return gomath.Float32frombits(ui32())
	}

	for i < len(cb.Buf) {
		cmd := cb.Buf[i]
		i++
		switch cmd {
		case RendererLoadProjectionMatrix:
			gl.MatrixMode(gl.PROJECTION)
			ptr := (*float32)(unsafe.Pointer(&cb.Buf[i]))
			gl.LoadMatrixf(ptr)
			i += 16

		case RendererLoadModelViewMatrix:
			gl.MatrixMode(gl.MODELVIEW)
			ptr := (*float32)(unsafe.Pointer(&cb.Buf[i]))
			gl.LoadMatrixf(ptr)
			i += 16

		case RendererClearRGBA:
			r := float()
			g := float()
			b := float()
			a := float()
			gl.ClearColor(r, g, b, a)
			gl.Clear(gl.COLOR_BUFFER_BIT)

		case RendererClearDepth:
			gl.ClearDepth(1)
			gl.Clear(gl.DEPTH_BUFFER_BIT)

		case RendererScissor:
			x := i32()
			y := i32()
			w := i32()
			h := i32()
			gl.Enable(gl.SCISSOR_TEST)
			gl.Scissor(x, y, w, h)

		case RendererViewport:
			x := i32()
			y := i32()
			w := i32()
			h := i32()
			gl.Viewport(x, y, w, h)

		case RendererBlend:
			gl.Enable(gl.BLEND)
			gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)

		case RendererDisableBlend:
			gl.Disable(gl.BLEND)

		case RendererSetRGBA:
			r := float()
			g := float()
			b := float()
			a := float()
			gl.Color4f(r, g, b, a)

		case RendererEnableDepthTest:
			gl.Enable(gl.DEPTH_TEST)
			gl.DepthFunc(gl.LEQUAL)

		case RendererDisableDepthTest:
			gl.Disable(gl.DEPTH_TEST)

		case RendererEnableLighting:
			dir := [4]float32{float(), float(), float(), 0} // w=0: directional
			diffuse := [4]float32{float(), float(), float(), float()}
			ambient := [4]float32{float(), float(), float(), float()}
			gl.Enable(gl.LIGHTING)
			gl.Enable(gl.LIGHT0)
			gl.Enable(gl.COLOR_MATERIAL)
			// Model transforms carry non-uniform scale, so normals must be
			// renormalized after transformation.
			gl.Enable(gl.NORMALIZE)
			gl.ColorMaterial(gl.FRONT_AND_BACK, gl.AMBIENT_AND_DIFFUSE)
			gl.Lightfv(gl.LIGHT0, gl.POSITION, &dir[0])
			gl.Lightfv(gl.LIGHT0, gl.DIFFUSE, &diffuse[0])
			gl.LightModelfv(gl.LIGHT_MODEL_AMBIENT, &ambient[0])

		case RendererDisableLighting:
			gl.Disable(gl.LIGHTING)
			gl.Disable(gl.LIGHT0)
			gl.Disable(gl.COLOR_MATERIAL)
			gl.Disable(gl.NORMALIZE)

		case RendererFloatBuffer, RendererIntBuffer:
			// Nothing to do for the moment but skip ahead
			i += int(ui32())

		case RendererVertexArray:
			gl.BindBuffer(gl.ARRAY_BUFFER, 0)
			gl.EnableClientState(gl.VERTEX_ARRAY)
			offset := ui32()
			ptr := uintptr(unsafe.Pointer(&cb.Buf[0])) + uintptr(offset)
			nc := i32()
			stride := i32()
			gl.VertexPointer(nc, gl.FLOAT, stride, unsafe.Pointer(ptr))

		case RendererDisableVertexArray:
			gl.DisableClientState(gl.VERTEX_ARRAY)
			gl.BindBuffer(gl.ARRAY_BUFFER, 0)

		case RendererVertexBuffer:
			id := ui32()
			nc := i32()
			stride := i32()
			gl.BindBuffer(gl.ARRAY_BUFFER, id)
			gl.EnableClientState(gl.VERTEX_ARRAY)
			gl.VertexPointer(nc, gl.FLOAT, stride, nil)

		case RendererNormalBuffer:
			id := ui32()
			stride := i32()
			gl.BindBuffer(gl.ARRAY_BUFFER, id)
			gl.EnableClientState(gl.NORMAL_ARRAY)
			gl.NormalPointer(gl.FLOAT, stride, nil)

		case RendererDisableNormalArray:
			gl.DisableClientState(gl.NORMAL_ARRAY)

		case RendererLineWidth:
			gl.LineWidth(float())

		case RendererDrawLines:
			offset := ui32()
			ptr := uintptr(unsafe.Pointer(&cb.Buf[0])) + uintptr(offset)
			count := i32()
			gl.DrawElements(gl.LINES, count, gl.UNSIGNED_INT, unsafe.Pointer(ptr))

			stats.nDrawCalls++
			stats.nLines += int(count / 2)

		case RendererDrawTriangles:
			offset := ui32()
			ptr := uintptr(unsafe.Pointer(&cb.Buf[0])) + uintptr(offset)
			count := i32()
			gl.DrawElements(gl.TRIANGLES, count, gl.UNSIGNED_INT, unsafe.Pointer(ptr))

			stats.nDrawCalls++
			stats.nTriangles += int(count / 3)

		case RendererDrawIndexedTriangles:
			id := ui32()
			count := i32()
			gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, id)
			gl.DrawElements(gl.TRIANGLES, count, gl.UNSIGNED_INT, nil)
			gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, 0)

			stats.nDrawCalls++
			stats.nTriangles += int(count / 3)

		case RendererCallBuffer:
			idx := ui32()
			s2 := ogl2.RenderCommandBuffer(&cb.called[idx])
			stats.Merge(s2)

		case RendererResetState:
			gl.Disable(gl.SCISSOR_TEST)
			gl.Disable(gl.BLEND)
			gl.Disable(gl.DEPTH_TEST)
			gl.Disable(gl.LIGHTING)
			gl.Disable(gl.LIGHT0)
			gl.Disable(gl.COLOR_MATERIAL)
			gl.Disable(gl.NORMALIZE)
			gl.DisableClientState(gl.VERTEX_ARRAY)
			gl.DisableClientState(gl.NORMAL_ARRAY)
			gl.BindBuffer(gl.ARRAY_BUFFER, 0)
			gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, 0)

		default:
			ogl2.lg.Error("unhandled command")
		}
	}

	return stats
}
