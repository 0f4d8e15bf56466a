// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package debounce

import (
	"io/fs"
	"testing"
	"time"

	"github.com/d4l3k/messagediff"

	"github.com/syncthing/watchit/lib/events"
	"github.com/syncthing/watchit/lib/identity"
	"github.com/syncthing/watchit/lib/identity/mocks"
	"github.com/syncthing/watchit/lib/ignore"
)

const (
	testDelay   = time.Second
	testMaxWait = 6 * time.Second
	testRoot    = "/watchit-test"
)

var t0 = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

type testAccumulator struct {
	*accumulator
	t     *testing.T
	ids   map[string]events.StableID
	cache *identity.Cache
}

func newTestAccumulator(t *testing.T, ignores ...string) *testAccumulator {
	t.Helper()
	ids := map[string]events.StableID{testRoot: {Device: 1, Inode: 1}}
	prober := &mocks.Prober{}
	prober.StableIDCalls(func(path string) (events.StableID, error) {
		if id, ok := ids[path]; ok {
			return id, nil
		}
		return events.StableID{}, &identity.ProbeError{Path: path, Kind: identity.Vanished, Err: fs.ErrNotExist}
	})
	cache := identity.New(prober, 0)
	if err := cache.AddRoot(testRoot, events.Recursive); err != nil {
		t.Fatal(err)
	}
	matcher, err := ignore.New(ignores)
	if err != nil {
		t.Fatal(err)
	}
	return &testAccumulator{
		accumulator: newAccumulator(cache, matcher, testDelay, testMaxWait),
		t:           t,
		ids:         ids,
		cache:       cache,
	}
}

func (a *testAccumulator) event(at time.Duration, op events.Op, name string) {
	a.t.Helper()
	a.raw(at, events.Raw{Op: op, Path: p(name)})
}

func (a *testAccumulator) raw(at time.Duration, ev events.Raw) {
	a.t.Helper()
	if !a.add(ev, t0.Add(at)) {
		a.t.Fatalf("event %v was dropped", ev)
	}
}

// inode makes the named file exist with the given identity.
func (a *testAccumulator) inode(name string, ino uint64) events.StableID {
	id := events.StableID{Device: 1, Inode: ino}
	a.ids[p(name)] = id
	return id
}

func (a *testAccumulator) expect(at time.Duration, expected ...events.Event) {
	a.t.Helper()
	batch := a.flush(t0.Add(at))
	for i := range batch {
		batch[i].Time = time.Time{}
	}
	if len(expected) == 0 {
		if len(batch) != 0 {
			a.t.Errorf("at %v: expected no events, got %v", at, batch)
		}
		return
	}
	if diff, equal := messagediff.PrettyDiff(expected, batch); !equal {
		a.t.Errorf("at %v: unexpected batch %v. Diff:\n%s", at, batch, diff)
	}
}

func p(name string) string {
	return testRoot + "/" + name
}

func ev(kind events.Kind, names ...string) events.Event {
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = p(name)
	}
	return events.Event{Kind: kind, Paths: paths}
}

func TestSingleEvent(t *testing.T) {
	a := newTestAccumulator(t)
	a.event(0, events.OpCreate, "a")
	a.expect(testDelay - time.Millisecond)
	a.expect(testDelay, ev(events.Created, "a"))
	a.expect(10 * testDelay)
	if a.pending() != 0 {
		t.Errorf("%d windows left after flush", a.pending())
	}
}

func TestBurstCollapses(t *testing.T) {
	a := newTestAccumulator(t)
	for i := 0; i < 5; i++ {
		a.event(time.Duration(i)*100*time.Millisecond, events.OpModify, "a")
	}
	a.expect(testDelay + 399*time.Millisecond)
	a.expect(testDelay+400*time.Millisecond, ev(events.Modified, "a"))
	a.expect(testMaxWait)
}

func TestCoalescing(t *testing.T) {
	cases := []struct {
		name     string
		ops      []events.Op
		expected events.Kind
	}{
		{"create then modify", []events.Op{events.OpCreate, events.OpModify, events.OpModify}, events.Created},
		{"modify then create", []events.Op{events.OpModify, events.OpCreate}, events.Created},
		{"remove wins", []events.Op{events.OpCreate, events.OpModify, events.OpRemove}, events.Removed},
		{"replaced", []events.Op{events.OpRemove, events.OpCreate}, events.Modified},
		{"replaced and modified", []events.Op{events.OpModify, events.OpRemove, events.OpCreate, events.OpModify}, events.Modified},
		{"other is a modification", []events.Op{events.OpOther}, events.Modified},
		{"unpaired source", []events.Op{events.OpRenameFrom}, events.Removed},
		{"unpaired destination", []events.Op{events.OpRenameTo, events.OpModify}, events.Created},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestAccumulator(t)
			for i, op := range tc.ops {
				a.event(time.Duration(i)*time.Millisecond, op, "a")
			}
			last := time.Duration(len(tc.ops)-1) * time.Millisecond
			a.expect(last + testDelay, ev(tc.expected, "a"))
		})
	}
}

func TestSlidingWindow(t *testing.T) {
	a := newTestAccumulator(t)
	a.event(0, events.OpModify, "a")
	a.event(800*time.Millisecond, events.OpModify, "a")
	a.expect(testDelay)
	a.expect(1800*time.Millisecond, ev(events.Modified, "a"))
}

func TestMaxWait(t *testing.T) {
	a := newTestAccumulator(t)
	step := 500 * time.Millisecond
	for at := time.Duration(0); at < testMaxWait; at += step {
		a.event(at, events.OpModify, "a")
		a.expect(at)
	}
	next, ok := a.nextDeadline()
	if !ok || !next.Equal(t0.Add(testMaxWait)) {
		t.Errorf("next deadline %v, expected the ceiling at %v", next, t0.Add(testMaxWait))
	}
	a.expect(testMaxWait, ev(events.Modified, "a"))

	// Changes after the flush start a fresh window.
	a.event(testMaxWait+step, events.OpModify, "a")
	a.expect(testMaxWait+step+testDelay, ev(events.Modified, "a"))
}

func TestIndependentPaths(t *testing.T) {
	a := newTestAccumulator(t)
	a.event(0, events.OpCreate, "a")
	a.event(900*time.Millisecond, events.OpModify, "b")
	a.expect(testDelay, ev(events.Created, "a"))
	a.expect(1900*time.Millisecond, ev(events.Modified, "b"))
}

func TestBatchOrder(t *testing.T) {
	a := newTestAccumulator(t)
	a.event(0, events.OpModify, "c")
	a.event(0, events.OpModify, "b")
	a.event(-100*time.Millisecond, events.OpModify, "z")
	a.expect(testDelay, ev(events.Modified, "z"), ev(events.Modified, "b"), ev(events.Modified, "c"))
}

func TestRenameByIdentity(t *testing.T) {
	a := newTestAccumulator(t)
	id := a.inode("b", 42)
	a.raw(0, events.Raw{Op: events.OpRenameFrom, Path: p("a"), ID: id})
	a.event(10*time.Millisecond, events.OpRenameTo, "b")
	a.event(20*time.Millisecond, events.OpModify, "b")
	a.event(30*time.Millisecond, events.OpModify, "b")

	// The source closes first and takes the destination with it, even
	// though the destination's window is still open.
	a.expect(testDelay, ev(events.Renamed, "a", "b"))
	a.expect(testMaxWait)
}

func TestRenameRemembersSource(t *testing.T) {
	a := newTestAccumulator(t)
	a.inode("a", 42)
	a.event(0, events.OpCreate, "a")
	a.expect(testDelay, ev(events.Created, "a"))

	// Moved within the tree: the source no longer exists, its identity
	// comes from the cache.
	delete(a.ids, p("a"))
	a.inode("b", 42)
	a.event(2*testDelay, events.OpRenameFrom, "a")
	a.event(2*testDelay, events.OpCreate, "b")
	a.expect(3*testDelay, ev(events.Renamed, "a", "b"))
}

func TestRenameAsCreate(t *testing.T) {
	a := newTestAccumulator(t)
	id := a.inode("b", 7)
	a.raw(0, events.Raw{Op: events.OpRenameFrom, Path: p("a"), ID: id})
	a.event(time.Millisecond, events.OpCreate, "b")
	a.event(2*time.Millisecond, events.OpCreate, "c")
	a.inode("c", 8)
	a.expect(testDelay+2*time.Millisecond, ev(events.Renamed, "a", "b"), ev(events.Created, "c"))
}

func TestRenameHeuristic(t *testing.T) {
	a := newTestAccumulator(t)
	a.event(0, events.OpRenameFrom, "a")
	a.event(5*time.Millisecond, events.OpRenameTo, "b")
	a.event(500*time.Millisecond, events.OpRenameTo, "c")
	a.expect(testDelay, ev(events.Renamed, "a", "b"))
	a.expect(testDelay+500*time.Millisecond, ev(events.Created, "c"))
}

func TestRenameOutsideGrace(t *testing.T) {
	a := newTestAccumulator(t)
	a.event(0, events.OpRenameFrom, "a")
	a.expect(testDelay, ev(events.Removed, "a"))
	a.event(testDelay+500*time.Millisecond, events.OpRenameTo, "b")
	a.expect(2*testDelay+500*time.Millisecond, ev(events.Created, "b"))
}

func TestRenameDestinationRemoved(t *testing.T) {
	a := newTestAccumulator(t)
	a.event(0, events.OpRenameFrom, "a")
	a.event(time.Millisecond, events.OpRenameTo, "b")
	a.event(2*time.Millisecond, events.OpRemove, "b")
	a.expect(testDelay+2*time.Millisecond, ev(events.Removed, "a"), ev(events.Removed, "b"))
}

func TestRenameThenRecreate(t *testing.T) {
	a := newTestAccumulator(t)
	id := a.inode("b", 42)
	a.raw(0, events.Raw{Op: events.OpRenameFrom, Path: p("a"), ID: id})
	a.event(time.Millisecond, events.OpRenameTo, "b")
	a.inode("a", 43)
	a.event(2*time.Millisecond, events.OpCreate, "a")
	a.expect(testDelay+2*time.Millisecond, ev(events.Renamed, "a", "b"), ev(events.Created, "a"))
}

func TestRenameChain(t *testing.T) {
	// a -> b, then c -> a: the path a is both a source and a destination.
	a := newTestAccumulator(t)
	ab := a.inode("b", 1)
	a.raw(0, events.Raw{Op: events.OpRenameFrom, Path: p("a"), ID: ab})
	a.event(time.Millisecond, events.OpRenameTo, "b")
	ca := a.inode("a", 2)
	a.raw(2*time.Millisecond, events.Raw{Op: events.OpRenameFrom, Path: p("c"), ID: ca})
	a.event(3*time.Millisecond, events.OpRenameTo, "a")
	a.expect(testDelay+3*time.Millisecond, ev(events.Renamed, "a", "b"), ev(events.Renamed, "c", "a"))
	if a.pending() != 0 || a.pairs.Len() != 0 {
		t.Errorf("left %d windows and %d halves", a.pending(), a.pairs.Len())
	}
}

func TestOutsideRootsDropped(t *testing.T) {
	a := newTestAccumulator(t)
	if a.add(events.Raw{Op: events.OpCreate, Path: "/elsewhere/a"}, t0) {
		t.Error("event outside the roots was kept")
	}
	if a.pending() != 0 {
		t.Error("window created for an uncovered path")
	}
}

func TestIgnored(t *testing.T) {
	a := newTestAccumulator(t, "*.tmp", ".git")
	for _, name := range []string{"a.tmp", ".git/index", "sub/b.tmp"} {
		if a.add(events.Raw{Op: events.OpCreate, Path: p(name)}, t0) {
			t.Errorf("%s was not ignored", name)
		}
	}
	a.event(0, events.OpCreate, "a.txt")
	a.expect(testDelay, ev(events.Created, "a.txt"))
}

func TestDiscardUnwatched(t *testing.T) {
	a := newTestAccumulator(t)
	other := "/watchit-other"
	a.ids[other] = events.StableID{Device: 1, Inode: 99}
	if err := a.cache.AddRoot(other, events.NonRecursive); err != nil {
		t.Fatal(err)
	}
	a.event(0, events.OpModify, "a")
	a.raw(0, events.Raw{Op: events.OpModify, Path: other + "/x"})

	a.cache.RemoveRoot(other)
	if n := a.discard(); n != 1 {
		t.Errorf("discarded %d windows, expected 1", n)
	}
	a.expect(testDelay, ev(events.Modified, "a"))
}
