// renderer/builders.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

import (
	"sync"
)

// The DrawBuilders provide an expressive way to specify a number of
// independent things of the same type to draw and then pack them into a
// compact set of commands in a command buffer: callers batch up geometry
// via Add* methods and a single GenerateCommands call emits it all.

///////////////////////////////////////////////////////////////////////////
// LinesDrawBuilder

// LinesDrawBuilder accumulates 3D line segments (the route overlay's
// polylines carry altitude in their vertices, so lines are specified with
// three components even though most of them sit on the ground plane).
type LinesDrawBuilder struct {
	p       [][3]float32
	indices []int32
}

func (l *LinesDrawBuilder) Reset() {
	l.p = l.p[:0]
	l.indices = l.indices[:0]
}

// AddLine adds a lines segment with the specified vertex positions to the
// lines draw builder.
func (l *LinesDrawBuilder) AddLine(p0, p1 [3]float32) {
	idx := int32(len(l.p))
	l.p = append(l.p, p0, p1)
	l.indices = append(l.indices, idx, idx+1)
}

// AddLineStrip adds multiple line segments where each line segment shares
// its starting position with the ending position of the previous line
// segment.
func (l *LinesDrawBuilder) AddLineStrip(p [][3]float32) {
	idx := int32(len(l.p))
	l.p = append(l.p, p...)
	for i := 0; i < len(p)-1; i++ {
		l.indices = append(l.indices, idx+int32(i), idx+int32(i+1))
	}
}

// AddLineLoop adds a sequence of line segments that closes back on its
// first vertex.
func (l *LinesDrawBuilder) AddLineLoop(p [][3]float32) {
	idx := int32(len(l.p))
	l.p = append(l.p, p...)
	for i := range p {
		n := (i + 1) % len(p)
		l.indices = append(l.indices, idx+int32(i), idx+int32(n))
	}
}

// GenerateCommands adds commands to the specified command buffer to draw
// the lines stored in the LinesDrawBuilder.
func (l *LinesDrawBuilder) GenerateCommands(cb *CommandBuffer) {
	if len(l.indices) == 0 {
		return
	}

	p := cb.Float3Buffer(l.p)
	cb.VertexArray(p, 3, 3*4)

	ind := cb.IntBuffer(l.indices)
	cb.DrawLines(ind, len(l.indices))

	cb.DisableVertexArray()
}

// LinesDrawBuilders are managed using a sync.Pool so that their buf slice
// allocations persist across multiple uses.
var linesDrawBuilderPool = sync.Pool{New: func() any { return &LinesDrawBuilder{} }}

func GetLinesDrawBuilder() *LinesDrawBuilder {
	return linesDrawBuilderPool.Get().(*LinesDrawBuilder)
}

func ReturnLinesDrawBuilder(ld *LinesDrawBuilder) {
	ld.Reset()
	linesDrawBuilderPool.Put(ld)
}

