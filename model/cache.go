// model/cache.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package model

import (
	"os"
	"sync"

	"github.com/mmp/busview/log"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache loads meshes from disk asynchronously and keeps recently-used
// ones resident. Load may be called from any goroutine; the parsed mesh
// is only handed to the caller's callback from Drain, which must be
// called from a single goroutine (the render loop, at frame start), so
// callbacks never race with rendering.
type Cache struct {
	meshes *lru.Cache[string, *Mesh]
	lg     *log.Logger

	mu      sync.Mutex
	loading map[string][]func(*Mesh, error)
	done    []completedLoad
}

type completedLoad struct {
	path      string
	mesh      *Mesh
	err       error
	callbacks []func(*Mesh, error)
}

func NewCache(size int, lg *log.Logger) *Cache {
	meshes, err := lru.New[string, *Mesh](size)
	if err != nil {
		// only possible for size <= 0
		lg.Errorf("mesh cache: %v", err)
		meshes, _ = lru.New[string, *Mesh](16)
	}
	return &Cache{
		meshes:  meshes,
		lg:      lg,
		loading: make(map[string][]func(*Mesh, error)),
	}
}

// Load arranges for the mesh at path to be parsed and then delivered to
// callback via a later Drain call. A cached mesh is still delivered
// through Drain rather than synchronously, so callers see one code path.
// Concurrent Loads of the same path share a single parse.
func (c *Cache) Load(path string, callback func(*Mesh, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.meshes.Get(path); ok {
		c.done = append(c.done, completedLoad{path: path, mesh: m,
			callbacks: []func(*Mesh, error){callback}})
		return
	}

	if cbs, ok := c.loading[path]; ok {
		c.loading[path] = append(cbs, callback)
		return
	}
	c.loading[path] = []func(*Mesh, error){callback}

	go func() {
		m, err := loadMeshFile(path)
		c.mu.Lock()
		defer c.mu.Unlock()
		if err == nil {
			c.meshes.Add(path, m)
		}
		c.done = append(c.done, completedLoad{path: path, mesh: m, err: err,
			callbacks: c.loading[path]})
		delete(c.loading, path)
	}()
}

// Drain delivers the results of completed loads. It must be called from
// the same goroutine that consumes the meshes.
func (c *Cache) Drain() {
	c.mu.Lock()
	done := c.done
	c.done = nil
	c.mu.Unlock()

	for _, d := range done {
		if d.err != nil {
			c.lg.Errorf("%s: mesh load failed: %v", d.path, d.err)
		}
		for _, cb := range d.callbacks {
			cb(d.mesh, d.err)
		}
	}
}

func loadMeshFile(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := ParseOBJ(f)
	if err != nil {
		return nil, err
	}
	m.Recenter(true)
	return m, nil
}
