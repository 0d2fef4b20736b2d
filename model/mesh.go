// model/mesh.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package model

import (
	"github.com/mmp/busview/math"
)

// Mesh is triangle geometry in object space, ready for upload to GPU
// buffers. Positions are expressed in meters with z up; the loader
// converts from the y-up convention that model files are authored in.
type Mesh struct {
	P       [][3]float32 // vertex positions
	N       [][3]float32 // per-vertex normals, same length as P
	Indices []int32      // triangle indices, length divisible by 3

	Min, Max [3]float32 // object-space bounds
}

func (m *Mesh) updateBounds() {
	if len(m.P) == 0 {
		m.Min, m.Max = [3]float32{}, [3]float32{}
		return
	}
	m.Min, m.Max = m.P[0], m.P[0]
	for _, p := range m.P[1:] {
		for d := 0; d < 3; d++ {
			m.Min[d] = min(m.Min[d], p[d])
			m.Max[d] = max(m.Max[d], p[d])
		}
	}
}

// Center returns the center of the object-space bounding box.
func (m *Mesh) Center() [3]float32 {
	return math.Scale3f(math.Add3f(m.Min, m.Max), 0.5)
}

// Extent returns the largest dimension of the bounding box; transforms use
// it to normalize models of arbitrary authored size.
func (m *Mesh) Extent() float32 {
	d := math.Sub3f(m.Max, m.Min)
	return max(d[0], d[1], d[2])
}

// Recenter translates the mesh so that its local origin is at the
// geometric center of its bounds, or, if groundContact is true, at the
// center of its footprint with z=0 at the lowest vertex. This must happen
// before the first transform is applied: rotating a model about an
// off-center origin makes it visibly orbit rather than turn in place.
func (m *Mesh) Recenter(groundContact bool) {
	c := m.Center()
	if groundContact {
		c[2] = m.Min[2]
	}
	for i := range m.P {
		m.P[i] = math.Sub3f(m.P[i], c)
	}
	m.updateBounds()
}

// FlatP returns the positions flattened for GPU upload.
func (m *Mesh) FlatP() []float32 {
	out := make([]float32, 0, 3*len(m.P))
	for _, p := range m.P {
		out = append(out, p[0], p[1], p[2])
	}
	return out
}

// FlatN returns the normals flattened for GPU upload.
func (m *Mesh) FlatN() []float32 {
	out := make([]float32, 0, 3*len(m.N))
	for _, n := range m.N {
		out = append(out, n[0], n[1], n[2])
	}
	return out
}

// computeSmoothNormals fills in per-vertex normals by averaging the face
// normals of the triangles that share each vertex; it is used when the
// model file doesn't provide normals itself.
func (m *Mesh) computeSmoothNormals() {
	m.N = make([][3]float32, len(m.P))
	for i := 0; i+2 < len(m.Indices); i += 3 {
		i0, i1, i2 := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		e0 := math.Sub3f(m.P[i1], m.P[i0])
		e1 := math.Sub3f(m.P[i2], m.P[i0])
		fn := math.Cross3f(e0, e1)
		m.N[i0] = math.Add3f(m.N[i0], fn)
		m.N[i1] = math.Add3f(m.N[i1], fn)
		m.N[i2] = math.Add3f(m.N[i2], fn)
	}
	for i := range m.N {
		m.N[i] = math.Normalize3f(m.N[i])
	}
}
