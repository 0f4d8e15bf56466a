// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package identity

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/syncthing/watchit/lib/events"
	"github.com/syncthing/watchit/lib/sync"
)

const DefaultSize = 16384

type root struct {
	mode events.RecursionMode
	id   events.StableID
}

// The Cache remembers the stable identity last seen at each path below the
// watched roots, so that the identity of a removed or renamed-away path is
// still known after the fact. Roots are pinned; everything else is kept in
// a bounded LRU.
type Cache struct {
	prober Prober

	mut        sync.Mutex
	roots      map[string]root
	byID       map[events.StableID]string
	discovered *lru.Cache[string, events.StableID]
}

func New(prober Prober, size int) *Cache {
	if prober == nil {
		prober = NewProber()
	}
	if size <= 0 {
		size = DefaultSize
	}
	c := &Cache{
		prober: prober,
		mut:    sync.NewMutex(),
		roots:  make(map[string]root),
		byID:   make(map[events.StableID]string),
	}
	// The eviction callback runs with c.mut held, as every call into the
	// LRU happens under it.
	c.discovered, _ = lru.NewWithEvict[string, events.StableID](size, func(path string, id events.StableID) {
		if c.byID[id] == path {
			delete(c.byID, id)
		}
	})
	return c
}

// AddRoot starts tracking the given root. Directories are seeded with the
// identities of their entries, recursively when mode says so. Adding a
// root a second time does nothing.
func (c *Cache) AddRoot(path string, mode events.RecursionMode) error {
	c.mut.Lock()
	_, ok := c.roots[path]
	c.mut.Unlock()
	if ok {
		return nil
	}

	id, err := c.prober.StableID(path)
	if err != nil {
		var perr *ProbeError
		if !errors.As(err, &perr) || perr.Kind != Opaque {
			return err
		}
		// No identity available on this platform; keep tracking the
		// root and fall back to heuristics for its contents.
		l.Debugln("No stable identity for root", path, err)
	}

	seeds := c.walk(path, mode)

	c.mut.Lock()
	defer c.mut.Unlock()
	c.roots[path] = root{mode: mode, id: id}
	if !id.IsZero() {
		c.byID[id] = path
	}
	for p, id := range seeds {
		c.recordLocked(p, id)
	}
	l.Debugf("Tracking root %s (%v), seeded %d identities", path, mode, len(seeds))
	return nil
}

// RemoveRoot stops tracking the root and forgets every discovered path no
// longer covered by a remaining root. It reports whether the root was
// tracked.
func (c *Cache) RemoveRoot(path string) bool {
	c.mut.Lock()
	defer c.mut.Unlock()

	r, ok := c.roots[path]
	if !ok {
		return false
	}
	delete(c.roots, path)
	if c.byID[r.id] == path {
		delete(c.byID, r.id)
	}
	for _, p := range c.discovered.Keys() {
		if !c.coversLocked(p) {
			c.discovered.Remove(p)
		}
	}
	return true
}

// Covers reports whether events for path belong to some tracked root.
func (c *Cache) Covers(path string) bool {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.coversLocked(path)
}

func (c *Cache) coversLocked(path string) bool {
	for rp, r := range c.roots {
		if path == rp {
			return true
		}
		if r.mode == events.Recursive {
			if isUnder(path, rp) {
				return true
			}
		} else if filepath.Dir(path) == rp {
			return true
		}
	}
	return false
}

// Roots returns the tracked roots in sorted order.
func (c *Cache) Roots() []string {
	c.mut.Lock()
	defer c.mut.Unlock()
	roots := make([]string, 0, len(c.roots))
	for rp := range c.roots {
		roots = append(roots, rp)
	}
	sort.Strings(roots)
	return roots
}

// Resolve attaches a stable identity to the event where one can be found.
// Removals and rename sources use the remembered identity, as the path no
// longer resolves; everything else is probed and the result remembered.
func (c *Cache) Resolve(ev *events.Raw) {
	switch ev.Op {
	case events.OpRemove, events.OpRenameFrom:
		c.mut.Lock()
		if ev.ID.IsZero() {
			if id, ok := c.lookupLocked(ev.Path); ok {
				ev.ID = id
			}
		}
		if _, ok := c.roots[ev.Path]; !ok {
			c.discovered.Remove(ev.Path)
		}
		c.mut.Unlock()
		return
	}

	if !ev.ID.IsZero() {
		c.record(ev.Path, ev.ID)
		return
	}

	id, err := c.prober.StableID(ev.Path)
	if err != nil {
		l.Debugln("Probe failed:", err)
		if ev.Op == events.OpModify || ev.Op == events.OpOther {
			// A stale identity for a path that was just created could
			// pair it with the wrong rename.
			if id, ok := c.Lookup(ev.Path); ok {
				ev.ID = id
			}
		}
		return
	}
	ev.ID = id
	c.record(ev.Path, id)

	if ev.Op == events.OpCreate || ev.Op == events.OpRenameTo {
		c.seedMovedIn(ev.Path)
	}
}

// A directory that appears below a recursive root may bring a whole
// subtree with it.
func (c *Cache) seedMovedIn(path string) {
	c.mut.Lock()
	recursive := false
	for rp, r := range c.roots {
		if r.mode == events.Recursive && isUnder(path, rp) {
			recursive = true
			break
		}
	}
	c.mut.Unlock()
	if !recursive {
		return
	}
	seeds := c.walk(path, events.Recursive)
	if len(seeds) == 0 {
		return
	}
	c.mut.Lock()
	for p, id := range seeds {
		c.recordLocked(p, id)
	}
	c.mut.Unlock()
}

func (c *Cache) Lookup(path string) (events.StableID, bool) {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.lookupLocked(path)
}

func (c *Cache) lookupLocked(path string) (events.StableID, bool) {
	if r, ok := c.roots[path]; ok && !r.id.IsZero() {
		return r.id, true
	}
	return c.discovered.Peek(path)
}

// PathOf returns the path an identity was last seen at.
func (c *Cache) PathOf(id events.StableID) (string, bool) {
	c.mut.Lock()
	defer c.mut.Unlock()
	p, ok := c.byID[id]
	return p, ok
}

// Forget drops whatever is remembered about path.
func (c *Cache) Forget(path string) {
	c.mut.Lock()
	defer c.mut.Unlock()
	if r, ok := c.roots[path]; ok {
		if c.byID[r.id] == path {
			delete(c.byID, r.id)
		}
		c.roots[path] = root{mode: r.mode}
		return
	}
	c.discovered.Remove(path)
}

// Len returns the number of remembered identities, roots included.
func (c *Cache) Len() int {
	c.mut.Lock()
	defer c.mut.Unlock()
	return len(c.roots) + c.discovered.Len()
}

func (c *Cache) record(path string, id events.StableID) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.recordLocked(path, id)
}

func (c *Cache) recordLocked(path string, id events.StableID) {
	if old, ok := c.lookupLocked(path); ok && old != id && c.byID[old] == path {
		delete(c.byID, old)
	}
	if r, ok := c.roots[path]; ok {
		r.id = id
		c.roots[path] = r
	} else {
		c.discovered.Add(path, id)
	}
	c.byID[id] = path
}

// walk collects identities below a directory: only its entries when
// non-recursive, the whole tree otherwise. Failures are skipped, as the
// tree may change while we look at it.
func (c *Cache) walk(dir string, mode events.RecursionMode) map[string]events.StableID {
	info, err := os.Lstat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}
	seeds := make(map[string]events.StableID)
	probe := func(p string) {
		if id, err := c.prober.StableID(p); err == nil && !id.IsZero() {
			seeds[p] = id
		}
	}

	if mode != events.Recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil
		}
		for _, e := range entries {
			probe(filepath.Join(dir, e.Name()))
		}
		return seeds
	}

	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if p != dir {
			probe(p)
		}
		return nil
	})
	return seeds
}

func isUnder(path, dir string) bool {
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return strings.HasPrefix(path, dir)
}
