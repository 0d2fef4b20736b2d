// renderer/commandbuffer.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

import (
	gomath "math"
	"sync"
	"unsafe"

	"github.com/mmp/busview/math"
)

// The command buffer stores a series of rendering commands, represented by
// the following values. Each one is followed in the buffer by a number of
// command arguments, after which the next command follows.  Comments
// after each command briefly describe its arguments.
//
// Vertex and index data can be stored two ways: directly in the
// CommandBuffer following RendererFloatBuffer / RendererIntBuffer commands
// (used for geometry that is rebuilt every frame, like route lines), or in
// GPU buffers created via the Renderer (used for mesh geometry that is
// uploaded once per model and referenced by id each frame). In-buffer
// arrays are referenced by their byte offset from the start of the command
// buffer; GPU buffers by their id.

const (
	RendererLoadProjectionMatrix = iota // 16 float32: matrix
	RendererLoadModelViewMatrix         // 16 float32: matrix
	RendererClearRGBA                   // 4 float32: RGBA
	RendererClearDepth                  // no args
	RendererScissor                     // 4 int32: x, y, width, height
	RendererViewport                    // 4 int32: x, y, width, height
	RendererBlend                       // no args: for now always src alpha, 1-src alpha
	RendererDisableBlend                // no args
	RendererSetRGBA                     // 4 float32: RGBA
	RendererEnableDepthTest             // no args
	RendererDisableDepthTest            // no args
	RendererEnableLighting              // 11 float32: light direction, diffuse RGBA, ambient RGBA
	RendererDisableLighting             // no args
	RendererFloatBuffer                 // int32 size, then size*float32 values
	RendererIntBuffer                   // int32: size, then size*int32 values
	RendererVertexArray                 // byte offset to array values, n components, stride (bytes)
	RendererDisableVertexArray          // no args
	RendererVertexBuffer                // GPU buffer id, n components, stride (bytes)
	RendererNormalBuffer                // GPU buffer id, stride (bytes)
	RendererDisableNormalArray          // no args
	RendererLineWidth                   // float32
	RendererDrawLines                   // 2 int32: offset to the index buffer, count
	RendererDrawTriangles               // 2 int32: offset to the index buffer, count
	RendererDrawIndexedTriangles        // 2 int32: GPU index buffer id, count
	RendererCallBuffer                  // 1 int32: buffer index
	RendererResetState                  // no args
)

// CommandBuffer encodes a sequence of rendering commands in an
// API-agnostic manner. It makes it possible for other parts of busview to
// "pre-bake" rendering work into a form that can be efficiently processed
// by a Renderer and possibly reused over multiple frames.
type CommandBuffer struct {
	Buf    []uint32
	called []CommandBuffer
}

// CommandBuffers are managed using a sync.Pool so that their buf slice
// allocations persist across multiple uses.
var commandBufferPool = sync.Pool{New: func() any { return &CommandBuffer{} }}

func GetCommandBuffer() *CommandBuffer {
	return commandBufferPool.Get().(*CommandBuffer)
}

func ReturnCommandBuffer(cb *CommandBuffer) {
	cb.Reset()
	commandBufferPool.Put(cb)
}

// Reset resets the command buffer's length to zero so that it can be
// reused.
func (cb *CommandBuffer) Reset() {
	cb.Buf = cb.Buf[:0]
	cb.called = cb.called[:0]
}

// growFor ensures that at least n more values can be added to the end of
// the buffer without going past its capacity.
func (cb *CommandBuffer) growFor(n int) {
	if len(cb.Buf)+n > cap(cb.Buf) {
		sz := 2 * cap(cb.Buf)
		if sz < 1024 {
			sz = 1024
		}
		if sz < len(cb.Buf)+n {
			sz = 2 * (len(cb.Buf) + n)
		}
		b := make([]uint32, len(cb.Buf), sz)
		copy(b, cb.Buf)
		cb.Buf = b
	}
}

func (cb *CommandBuffer) appendFloats(floats ...float32) {
	for _, f := range floats {
		// Convert each one to a uint32 since that's the type that is
		// actually stored...
		cb.Buf = append(cb.Buf, gomath.Float32bits(f))
	}
}

func (cb *CommandBuffer) appendInts(ints ...int) {
	for _, i := range ints {
		if i != int(uint32(i)) {
			lg.Errorf("%d: attempting to add non-32-bit value to CommandBuffer", i)
		}
		cb.Buf = append(cb.Buf, uint32(i))
	}
}

func (cb *CommandBuffer) appendMatrix(m math.Matrix4) {
	// Column-major, as the graphics API expects.
	for c := 0; c < 4; c++ {
		cb.appendFloats(m[0][c], m[1][c], m[2][c], m[3][c])
	}
}

func (cb *CommandBuffer) LoadProjectionMatrix(m math.Matrix4) {
	cb.appendInts(RendererLoadProjectionMatrix)
	cb.appendMatrix(m)
}

func (cb *CommandBuffer) LoadModelViewMatrix(m math.Matrix4) {
	cb.appendInts(RendererLoadModelViewMatrix)
	cb.appendMatrix(m)
}

// ClearRGB adds a command to the command buffer to clear the framebuffer
// to the specified RGB color.
func (cb *CommandBuffer) ClearRGB(color RGB) {
	cb.appendInts(RendererClearRGBA)
	cb.appendFloats(color.R, color.G, color.B, 1)
}

// ClearDepth adds a command to clear the depth buffer; it must be issued
// before any 3D content is drawn each frame.
func (cb *CommandBuffer) ClearDepth() {
	cb.appendInts(RendererClearDepth)
}

// Scissor adds a command to the command buffer to set the scissor
// rectangle as specified.
func (cb *CommandBuffer) Scissor(x, y, w, h int) {
	cb.appendInts(RendererScissor, x, y, w, h)
}

// Viewport adds a command to the command buffer to set the viewport to the
// specified rectangle.
func (cb *CommandBuffer) Viewport(x, y, w, h int) {
	cb.appendInts(RendererViewport, x, y, w, h)
}

// SetRGBA adds a command to the command buffer to set the current RGBA
// color. Subsequent draw commands will inherit this color unless they
// specify e.g., per-vertex colors themselves.
func (cb *CommandBuffer) SetRGBA(rgba RGBA) {
	cb.appendInts(RendererSetRGBA)
	cb.appendFloats(rgba.R, rgba.G, rgba.B, rgba.A)
}

// SetRGB adds a command to the command buffer to set the current RGB
// color (alpha is set to 1). Subsequent draw commands will inherit this
// color unless they specify e.g., per-vertex colors themselves.
func (cb *CommandBuffer) SetRGB(rgb RGB) {
	cb.appendInts(RendererSetRGBA)
	cb.appendFloats(rgb.R, rgb.G, rgb.B, 1)
}

// Blend adds a command to the command buffer enable blending.  The blend
// mode cannot be specified currently, since only one mode (alpha over
// blending) is used.
func (cb *CommandBuffer) Blend() {
	cb.appendInts(RendererBlend)
}

// DisableBlend adds a command to the command buffer that disables
// blending.
func (cb *CommandBuffer) DisableBlend() {
	cb.appendInts(RendererDisableBlend)
}

// EnableDepthTest adds a command that enables depth testing; 3D models
// need it so nearer geometry occludes farther geometry, while the 2D map
// layers draw without it in stacking order.
func (cb *CommandBuffer) EnableDepthTest() {
	cb.appendInts(RendererEnableDepthTest)
}

func (cb *CommandBuffer) DisableDepthTest() {
	cb.appendInts(RendererDisableDepthTest)
}

// EnableLighting adds a command that configures the light rig used for 3D
// model shading: a single directional key light plus a constant ambient
// term. The direction is given in eye space.
func (cb *CommandBuffer) EnableLighting(dir [3]float32, diffuse RGB, ambient RGB) {
	cb.appendInts(RendererEnableLighting)
	cb.appendFloats(dir[0], dir[1], dir[2])
	cb.appendFloats(diffuse.R, diffuse.G, diffuse.B, 1)
	cb.appendFloats(ambient.R, ambient.G, ambient.B, 1)
}

func (cb *CommandBuffer) DisableLighting() {
	cb.appendInts(RendererDisableLighting)
}

// Float2Buffer stores the provided slice of [2]float32 values in the
// CommandBuffer and returns the byte offset where the first value of the
// slice is stored; this offset can then be passed to commands like
// VertexArray to specify this array.
func (cb *CommandBuffer) Float2Buffer(buf [][2]float32) int {
	cb.appendInts(RendererFloatBuffer, 2*len(buf))
	offset := 4 * len(cb.Buf)

	n := 2 * len(buf)
	cb.growFor(n)
	start := len(cb.Buf)
	cb.Buf = cb.Buf[:start+n]
	copy(cb.Buf[start:start+n], unsafe.Slice((*uint32)(unsafe.Pointer(&buf[0])), n))

	return offset
}

// Float3Buffer stores the provided slice of [3]float32 values in the
// CommandBuffer and returns the byte offset where the first value of the
// slice is stored.
func (cb *CommandBuffer) Float3Buffer(buf [][3]float32) int {
	cb.appendInts(RendererFloatBuffer, 3*len(buf))
	offset := 4 * len(cb.Buf)

	n := 3 * len(buf)
	cb.growFor(n)
	start := len(cb.Buf)
	cb.Buf = cb.Buf[:start+n]
	copy(cb.Buf[start:start+n], unsafe.Slice((*uint32)(unsafe.Pointer(&buf[0])), n))

	return offset
}

// IntBuffer stores the provided slice of int32 values in the command buffer
// and returns the byte offset where the first value of the slice is stored.
func (cb *CommandBuffer) IntBuffer(buf []int32) int {
	cb.appendInts(RendererIntBuffer, len(buf))
	offset := 4 * len(cb.Buf)

	n := len(buf)
	cb.growFor(n)
	start := len(cb.Buf)
	copy(cb.Buf[start:start+n], unsafe.Slice((*uint32)(unsafe.Pointer(&buf[0])), n))
	cb.Buf = cb.Buf[:start+n]

	return offset
}

// VertexArray adds a command to the command buffer that specifies an array
// of vertex coordinates to use for a subsequent draw command. offset gives
// the offset into the current command buffer where the vertices begin
// (e.g., as returned by Float3Buffer), nComps is the number of components
// per vertex, and stride gives the stride in bytes between vertices.
func (cb *CommandBuffer) VertexArray(offset, nComps, stride int) {
	cb.appendInts(RendererVertexArray, offset, nComps, stride)
}

// DisableVertexArray adds a command to the command buffer to disable the
// current vertex array.
func (cb *CommandBuffer) DisableVertexArray() {
	cb.appendInts(RendererDisableVertexArray)
}

// VertexBuffer adds a command that sources vertex positions from the GPU
// buffer with the given id (as returned by Renderer.CreateVertexBuffer).
func (cb *CommandBuffer) VertexBuffer(id uint32, nComps, stride int) {
	cb.appendInts(RendererVertexBuffer, int(id), nComps, stride)
}

// NormalBuffer adds a command that sources vertex normals from the GPU
// buffer with the given id.
func (cb *CommandBuffer) NormalBuffer(id uint32, stride int) {
	cb.appendInts(RendererNormalBuffer, int(id), stride)
}

func (cb *CommandBuffer) DisableNormalArray() {
	cb.appendInts(RendererDisableNormalArray)
}

// LineWidth adds a command to the command buffer that sets the width in
// pixels of subsequent lines that are drawn.
func (cb *CommandBuffer) LineWidth(w float32, scale float32) {
	cb.appendInts(RendererLineWidth)
	// Scale so that lines are the same width on retina-style displays.
	cb.appendFloats(w * scale)
}

// DrawLines adds a command to the command buffer to draw a number of
// lines; each line is specified by two indices in the index buffer.
// offset gives the offset in the current command buffer where the index
// buffer is (e.g., as returned by IntBuffer), and count gives the total
// number of indices.
func (cb *CommandBuffer) DrawLines(offset, count int) {
	cb.appendInts(RendererDrawLines, offset, count)
}

// DrawTriangles adds a command to the command buffer to draw a number of
// triangles; each is specified by three vertices in the index
// buffer. offset gives the offset to the start of the index buffer in the
// current command buffer and count gives the total number of indices.
func (cb *CommandBuffer) DrawTriangles(offset, count int) {
	cb.appendInts(RendererDrawTriangles, offset, count)
}

// DrawIndexedTriangles adds a command to draw triangles whose indices live
// in the GPU index buffer with the given id; count gives the total number
// of indices.
func (cb *CommandBuffer) DrawIndexedTriangles(id uint32, count int) {
	cb.appendInts(RendererDrawIndexedTriangles, int(id), count)
}

// Call adds a command to the command buffer that causes the commands in
// the provided command buffer to be processed and executed. After the end
// of the command buffer is reached, processing of commands in the current
// command buffer continues.
func (cb *CommandBuffer) Call(sub CommandBuffer) {
	if sub.Buf == nil {
		// make it a no-op
		return
	}

	cb.appendInts(RendererCallBuffer, len(cb.called))
	// Make our own copy of the slice to ensure it isn't garbage collected.
	cb.called = append(cb.called, sub)
}

// ResetState adds a command to the command buffer that resets all of the
// assorted graphics state (scissor rectangle, blending, lighting, depth
// test, vertex arrays, etc.) to default values.
func (cb *CommandBuffer) ResetState() {
	cb.appendInts(RendererResetState)
}
