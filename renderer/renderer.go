// renderer/renderer.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

import (
	"fmt"
	"log/slog"
)

// Renderer defines an interface for all of the drawing that happens in
// busview. There is currently a single implementation of it--
// OpenGL2Renderer--though having these details behind the Renderer
// interface would make it relatively easy to write a Vulkan, Metal, or
// DirectX rendering backend.
type Renderer interface {
	// CreateVertexBuffer uploads the provided data to the GPU and returns
	// an identifier for the corresponding vertex buffer.
	CreateVertexBuffer(data []float32) uint32

	// CreateIndexBuffer uploads the provided indices to the GPU and
	// returns an identifier for the corresponding index buffer.
	CreateIndexBuffer(data []int32) uint32

	// DestroyBuffer frees the GPU resources associated with the given
	// buffer id (vertex or index).
	DestroyBuffer(id uint32)

	// RenderCommandBuffer executes all of the commands encoded in the
	// provided command buffer, returning statistics about what was
	// rendered.
	RenderCommandBuffer(*CommandBuffer) RendererStats

	// Dispose releases resources allocated by the renderer.
	Dispose()
}

// RendererStats encapsulates assorted statistics from rendering.
type RendererStats struct {
	nBuffers, bufferBytes int
	nDrawCalls            int
	nLines, nTriangles    int
}

func (rs *RendererStats) String() string {
	return fmt.Sprintf("%d buffers (%.2f MB), %d draw calls: %d lines, %d tris",
		rs.nBuffers, float32(rs.bufferBytes)/(1024*1024), rs.nDrawCalls, rs.nLines, rs.nTriangles)
}

func (rs *RendererStats) Merge(s RendererStats) {
	rs.nBuffers += s.nBuffers
	rs.bufferBytes += s.bufferBytes
	rs.nDrawCalls += s.nDrawCalls
	rs.nLines += s.nLines
	rs.nTriangles += s.nTriangles
}

func (rs RendererStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("buffers", rs.nBuffers),
		slog.Int("buffer_memory", rs.bufferBytes),
		slog.Int("draw_calls", rs.nDrawCalls),
		slog.Int("lines", rs.nLines),
		slog.Int("tris", rs.nTriangles),
	)
}
