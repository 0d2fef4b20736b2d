// model/obj.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package model

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mmp/busview/math"

	"github.com/mmp/earcut-go"
)

// ParseOBJ reads Wavefront OBJ geometry from r. Vertex positions, normals,
// and faces are consumed; material and texture statements are skipped.
// Faces with more than three vertices are triangulated. The y-up
// convention of the file is converted to the renderer's z-up convention.
func ParseOBJ(r io.Reader) (*Mesh, error) {
	var positions, normals [][3]float32

	// OBJ files may give each face corner a different (position, normal)
	// index pair, while the mesh wants a single index stream; corners is
	// the map from seen pairs to the final vertex index.
	type corner struct{ p, n int }
	corners := make(map[corner]int32)

	m := &Mesh{}
	haveNormals := true

	addCorner := func(c corner) (int32, error) {
		if idx, ok := corners[c]; ok {
			return idx, nil
		}
		if c.p < 0 || c.p >= len(positions) {
			return 0, fmt.Errorf("face references vertex %d of %d", c.p+1, len(positions))
		}
		idx := int32(len(m.P))
		m.P = append(m.P, positions[c.p])
		if c.n >= 0 && c.n < len(normals) {
			m.N = append(m.N, normals[c.n])
		} else {
			haveNormals = false
		}
		corners[c] = idx
		return idx, nil
	}

	scan := bufio.NewScanner(r)
	line := 0
	for scan.Scan() {
		line++
		fields := strings.Fields(strings.TrimSpace(scan.Text()))
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "v", "vn":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: expected 3 values after %q", line, fields[0])
			}
			var v [3]float32
			for i := 0; i < 3; i++ {
				f, err := strconv.ParseFloat(fields[1+i], 32)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				v[i] = float32(f)
			}
			// y-up to z-up
			v = [3]float32{v[0], -v[2], v[1]}
			if fields[0] == "v" {
				positions = append(positions, v)
			} else {
				normals = append(normals, v)
			}

		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face with fewer than 3 vertices", line)
			}
			face := make([]int32, 0, len(fields)-1)
			for _, fs := range fields[1:] {
				c, err := parseFaceCorner(fs, len(positions), len(normals))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				idx, err := addCorner(corner{p: c[0], n: c[1]})
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				face = append(face, idx)
			}

			if len(face) == 3 {
				m.Indices = append(m.Indices, face...)
			} else {
				m.Indices = append(m.Indices, triangulateFace(m.P, face)...)
			}

		default:
			// vt, g, o, s, usemtl, mtllib: not needed
		}
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	if len(m.Indices) == 0 {
		return nil, fmt.Errorf("no faces found in OBJ")
	}

	m.updateBounds()
	if !haveNormals || len(m.N) != len(m.P) {
		m.computeSmoothNormals()
	}
	return m, nil
}

// parseFaceCorner handles the v, v/vt, v//vn, and v/vt/vn face vertex
// formats, returning zero-based position and normal indices (-1 if no
// normal was given). Negative OBJ indices count from the end.
func parseFaceCorner(s string, np, nn int) ([2]int, error) {
	parts := strings.Split(s, "/")
	resolve := func(s string, n int) (int, error) {
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0, err
		}
		if i < 0 {
			return n + i, nil
		}
		return i - 1, nil
	}

	p, err := resolve(parts[0], np)
	if err != nil {
		return [2]int{}, err
	}

	norm := -1
	if len(parts) == 3 && parts[2] != "" {
		if norm, err = resolve(parts[2], nn); err != nil {
			return [2]int{}, err
		}
	}
	return [2]int{p, norm}, nil
}

// triangulateFace converts an n-gon face into triangles. The face is
// projected onto its dominant plane and handed to earcut, which handles
// the non-convex faces that show up in real model files.
func triangulateFace(p [][3]float32, face []int32) []int32 {
	// Newell's method for the face normal, to pick the projection plane.
	var normal [3]float32
	for i := range face {
		v0 := p[face[i]]
		v1 := p[face[(i+1)%len(face)]]
		normal[0] += (v0[1] - v1[1]) * (v0[2] + v1[2])
		normal[1] += (v0[2] - v1[2]) * (v0[0] + v1[0])
		normal[2] += (v0[0] - v1[0]) * (v0[1] + v1[1])
	}
	a0, a1 := 0, 1
	switch {
	case math.Abs(normal[0]) >= math.Abs(normal[1]) && math.Abs(normal[0]) >= math.Abs(normal[2]):
		a0, a1 = 1, 2
	case math.Abs(normal[1]) >= math.Abs(normal[2]):
		a0, a1 = 0, 2
	}

	ring := make([]earcut.Vertex, len(face))
	byPos := make(map[[2]float64]int32, len(face))
	for i, idx := range face {
		pr := [2]float64{float64(p[idx][a0]), float64(p[idx][a1])}
		ring[i] = earcut.Vertex{P: pr}
		byPos[pr] = idx
	}

	var out []int32
	for _, tri := range earcut.Triangulate(earcut.Polygon{Rings: [][]earcut.Vertex{ring}}) {
		for _, v := range tri.Vertices {
			idx, ok := byPos[v.P]
			if !ok {
				// Degenerate face; give up rather than emit garbage.
				return fanTriangulate(face)
			}
			out = append(out, idx)
		}
	}
	if len(out) == 0 {
		return fanTriangulate(face)
	}
	return out
}

// fanTriangulate is the fallback for faces earcut can't handle; correct
// for convex faces, which is nearly all of them.
func fanTriangulate(face []int32) []int32 {
	var out []int32
	for i := 1; i+1 < len(face); i++ {
		out = append(out, face[0], face[i], face[i+1])
	}
	return out
}
