// model/model_test.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package model

import (
	gomath "math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// unit cube, y-up, with explicit normals on two faces and a quad face
// that exercises triangulation.
const cubeOBJ = `# test cube
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
v 0 0 1
v 1 0 1
v 1 1 1
v 0 1 1
f 1 2 3 4
f 5 8 7 6
f 1 5 6 2
f 2 6 7 3
f 3 7 8 4
f 4 8 5 1
`

func TestParseOBJCube(t *testing.T) {
	m, err := ParseOBJ(strings.NewReader(cubeOBJ))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.P) != 8 {
		t.Errorf("got %d vertices, expected 8", len(m.P))
	}
	// 6 quads -> 12 triangles
	if len(m.Indices) != 36 {
		t.Errorf("got %d indices, expected 36", len(m.Indices))
	}
	if len(m.N) != len(m.P) {
		t.Errorf("got %d normals for %d vertices", len(m.N), len(m.P))
	}
	for _, n := range m.N {
		l := gomath.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2]))
		if gomath.Abs(l-1) > 1e-4 {
			t.Errorf("normal %v not unit length", n)
		}
	}
}

func TestParseOBJYUpConversion(t *testing.T) {
	// A vertex at y=2 in the file should land at z=2 in the mesh.
	obj := "v 0 2 0\nv 1 2 0\nv 0 2 1\nf 1 2 3\n"
	m, err := ParseOBJ(strings.NewReader(obj))
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range m.P {
		if p[2] != 2 {
			t.Errorf("vertex %v: expected z=2 after axis conversion", p)
		}
	}
}

func TestParseOBJFaceFormats(t *testing.T) {
	obj := `v 0 0 0
v 1 0 0
v 0 0 -1
vn 0 1 0
f 1//1 2//1 3//1
f -3 -2 -1
`
	m, err := ParseOBJ(strings.NewReader(obj))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Indices) != 6 {
		t.Errorf("got %d indices, expected 6", len(m.Indices))
	}
	// the y-up normal becomes z-up
	if m.N[0] != ([3]float32{0, 0, 1}) {
		t.Errorf("got normal %v, expected {0 0 1}", m.N[0])
	}
}

func TestParseOBJErrors(t *testing.T) {
	for _, obj := range []string{
		"",                     // no geometry
		"v 0 0\nf 1 1 1\n",     // short vertex
		"v 0 0 0\nf 1 2 3\n",   // face index out of range
		"v 0 0 0\nf 1 x 1\n",   // malformed index
		"v a b c\nf 1 1 1\n",   // malformed coordinate
		"v 0 0 0\nf 1 2\nf 1\n", // degenerate face
	} {
		if _, err := ParseOBJ(strings.NewReader(obj)); err == nil {
			t.Errorf("%q: expected error", obj)
		}
	}
}

func TestRecenterGroundContact(t *testing.T) {
	m, err := ParseOBJ(strings.NewReader(cubeOBJ))
	if err != nil {
		t.Fatal(err)
	}
	m.Recenter(true)

	// footprint centered on the origin, wheels on the ground
	if m.Min[2] != 0 {
		t.Errorf("got min z %v, expected 0", m.Min[2])
	}
	if m.Min[0] != -m.Max[0] || m.Min[1] != -m.Max[1] {
		t.Errorf("footprint not centered: min %v max %v", m.Min, m.Max)
	}
}

func TestMeshExtent(t *testing.T) {
	m := &Mesh{P: [][3]float32{{0, 0, 0}, {2, 1, 0.5}}}
	m.updateBounds()
	if e := m.Extent(); e != 2 {
		t.Errorf("got extent %v, expected 2", e)
	}
}

func TestFlatBuffers(t *testing.T) {
	m, err := ParseOBJ(strings.NewReader(cubeOBJ))
	if err != nil {
		t.Fatal(err)
	}
	if fp := m.FlatP(); len(fp) != 3*len(m.P) {
		t.Errorf("got %d flat positions for %d vertices", len(fp), len(m.P))
	}
	if fn := m.FlatN(); len(fn) != 3*len(m.N) {
		t.Errorf("got %d flat normals for %d normals", len(fn), len(m.N))
	}
}

func waitDrain(t *testing.T, c *Cache, done func() bool) {
	t.Helper()
	for start := time.Now(); time.Since(start) < 5*time.Second; {
		c.Drain()
		if done() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for mesh load")
}

func TestCacheLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.obj")
	if err := os.WriteFile(path, []byte(cubeOBJ), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCache(4, nil)

	var got *Mesh
	c.Load(path, func(m *Mesh, err error) {
		if err != nil {
			t.Errorf("load: %v", err)
		}
		got = m
	})
	waitDrain(t, c, func() bool { return got != nil })

	// loadMeshFile recenters with ground contact
	if got.Min[2] != 0 {
		t.Errorf("cached mesh not recentered: min %v", got.Min)
	}

	// second load hits the cache and returns the same mesh
	var again *Mesh
	c.Load(path, func(m *Mesh, err error) { again = m })
	c.Drain()
	if again != got {
		t.Errorf("expected cached mesh to be reused")
	}
}

func TestCacheLoadError(t *testing.T) {
	c := NewCache(4, nil)

	var gotErr error
	delivered := false
	c.Load(filepath.Join(t.TempDir(), "nonexistent.obj"), func(m *Mesh, err error) {
		gotErr, delivered = err, true
	})
	waitDrain(t, c, func() bool { return delivered })
	if gotErr == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestCacheLoadDedup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.obj")
	if err := os.WriteFile(path, []byte(cubeOBJ), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCache(4, nil)
	var meshes []*Mesh
	cb := func(m *Mesh, err error) { meshes = append(meshes, m) }
	c.Load(path, cb)
	c.Load(path, cb)
	waitDrain(t, c, func() bool { return len(meshes) == 2 })

	if meshes[0] != meshes[1] {
		t.Errorf("concurrent loads returned different meshes")
	}
}
