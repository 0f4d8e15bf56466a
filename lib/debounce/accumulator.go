// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package debounce

import (
	"sort"
	"time"

	"github.com/syncthing/watchit/lib/events"
	"github.com/syncthing/watchit/lib/identity"
	"github.com/syncthing/watchit/lib/ignore"
)

// window collects the raw events seen for one path since the last flush.
type window struct {
	path  string
	first time.Time
	last  time.Time

	// kind is the fold of every event in the window, rename sources
	// counting as removals and destinations as creations.
	kind events.Kind

	// The latest unpaired rename halves, and the fold of what happened to
	// the path after each of them.
	from, to       *events.Raw
	fromSeq, toSeq uint64
	afterFrom      events.Kind
	afterTo        events.Kind
}

// A later event extends the window, but only up to maxWait after the first.
func (w *window) deadline(delay, maxWait time.Duration) time.Time {
	d := w.last.Add(delay)
	if ceiling := w.first.Add(maxWait); ceiling.Before(d) {
		return ceiling
	}
	return d
}

// fold merges an event into the kind accumulated so far. Removals win over
// everything; a creation after a removal means the file was replaced.
func fold(k events.Kind, op events.Op) events.Kind {
	switch op {
	case events.OpRemove, events.OpRenameFrom:
		return events.Removed
	case events.OpCreate, events.OpRenameTo:
		if k == events.Removed {
			return events.Modified
		}
		return max(k, events.Created)
	default:
		return max(k, events.Modified)
	}
}

// accumulator holds the pending windows. It is driven from a single
// goroutine and is not safe for concurrent use.
type accumulator struct {
	delay   time.Duration
	maxWait time.Duration
	cache   *identity.Cache
	ignores *ignore.Matcher

	windows map[string]*window
	pairs   *identity.Pairs
	seq     uint64
}

func newAccumulator(cache *identity.Cache, ignores *ignore.Matcher, delay, maxWait time.Duration) *accumulator {
	if maxWait < delay {
		maxWait = delay
	}
	return &accumulator{
		delay:   delay,
		maxWait: maxWait,
		cache:   cache,
		ignores: ignores,
		windows: make(map[string]*window),
		pairs:   identity.NewPairs(),
	}
}

// add records the event at the given time. It reports whether the event
// was kept.
func (a *accumulator) add(ev events.Raw, now time.Time) bool {
	if !a.cache.Covers(ev.Path) {
		metricDiscarded.WithLabelValues(reasonUncovered).Inc()
		return false
	}
	if a.ignores.Match(ev.Path) {
		metricDiscarded.WithLabelValues(reasonIgnored).Inc()
		l.Debugln("Ignoring", ev)
		return false
	}

	ev.Time = now
	a.cache.Resolve(&ev)
	a.seq++

	w, ok := a.windows[ev.Path]
	if !ok {
		w = &window{path: ev.Path, first: now}
		a.windows[ev.Path] = w
		metricPending.Inc()
	}
	w.last = now
	w.kind = fold(w.kind, ev.Op)
	if w.from != nil {
		w.afterFrom = fold(w.afterFrom, ev.Op)
	}
	if w.to != nil {
		w.afterTo = fold(w.afterTo, ev.Op)
	}

	switch {
	case ev.Op == events.OpRenameFrom:
		w.from, w.fromSeq, w.afterFrom = &ev, a.seq, 0
	case ev.Op == events.OpRenameTo, ev.Op == events.OpCreate && !ev.ID.IsZero():
		w.to, w.toSeq, w.afterTo = &ev, a.seq, 0
	}
	a.pairs.Add(ev)
	return true
}

func (a *accumulator) pending() int {
	return len(a.windows)
}

// nextDeadline returns when the earliest window closes.
func (a *accumulator) nextDeadline() (time.Time, bool) {
	var next time.Time
	for _, w := range a.windows {
		if d := w.deadline(a.delay, a.maxWait); next.IsZero() || d.Before(next) {
			next = d
		}
	}
	return next, !next.IsZero()
}

// flush finalizes every window that has closed by now, oldest first.
func (a *accumulator) flush(now time.Time) []events.Event {
	var due []*window
	for _, w := range a.windows {
		if !w.deadline(a.delay, a.maxWait).After(now) {
			due = append(due, w)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].first.Equal(due[j].first) {
			return due[i].first.Before(due[j].first)
		}
		return due[i].path < due[j].path
	})

	var batch []events.Event
	for _, w := range due {
		if a.windows[w.path] != w {
			// Folded into a rename that was flushed earlier in this batch.
			continue
		}
		batch = append(batch, a.finalize(w)...)
	}
	return batch
}

func (a *accumulator) finalize(w *window) []events.Event {
	a.drop(w.path)

	var toEv, fromEv *events.Event
	if w.to != nil && w.afterTo != events.Removed {
		if src, ok := a.pairs.MatchTo(*w.to, a.delay, a.isPendingFrom); ok {
			toEv = renamed(src, *w.to)
			a.detachFrom(src.Path)
		}
	}
	if w.from != nil {
		if dst, ok := a.pairs.MatchFrom(*w.from, a.delay, a.isPendingTo); ok {
			fromEv = renamed(*w.from, dst)
			a.detachTo(dst.Path)
		}
	}

	var residual events.Kind
	switch {
	case toEv != nil && (w.from == nil || w.toSeq > w.fromSeq):
		// Whatever happened to the destination is part of the rename.
	case fromEv != nil:
		residual = w.afterFrom
	case toEv != nil:
		residual = w.afterTo
	default:
		residual = w.kind
	}

	var evs []events.Event
	switch {
	case toEv != nil && fromEv != nil && w.fromSeq < w.toSeq:
		evs = append(evs, *fromEv, *toEv)
	default:
		if toEv != nil {
			evs = append(evs, *toEv)
		}
		if fromEv != nil {
			evs = append(evs, *fromEv)
		}
	}
	if residual != 0 {
		evs = append(evs, events.Event{Kind: residual, Paths: []string{w.path}, Time: w.last})
	}
	return evs
}

func renamed(from, to events.Raw) *events.Event {
	t := to.Time
	if from.Time.After(t) {
		t = from.Time
	}
	return &events.Event{Kind: events.Renamed, Paths: []string{from.Path, to.Path}, Time: t}
}

// A rename destination that has since been removed again pairs with
// nothing; both sides are reported on their own.
func (a *accumulator) isPendingTo(ev events.Raw) bool {
	w, ok := a.windows[ev.Path]
	return ok && w.to != nil && w.afterTo != events.Removed
}

func (a *accumulator) isPendingFrom(ev events.Raw) bool {
	w, ok := a.windows[ev.Path]
	return ok && w.from != nil
}

// detachTo removes a rename destination that has been reported as part of
// a rename. Whatever else happened at that path is absorbed by the rename,
// unless the path was renamed away itself.
func (a *accumulator) detachTo(path string) {
	a.pairs.RemoveTo(path)
	w, ok := a.windows[path]
	if !ok {
		return
	}
	w.to, w.afterTo = nil, 0
	if w.from == nil {
		a.drop(path)
	}
}

// detachFrom removes a rename source that has been reported as part of a
// rename. Only what happened at the path afterwards remains.
func (a *accumulator) detachFrom(path string) {
	a.pairs.RemoveFrom(path)
	w, ok := a.windows[path]
	if !ok {
		return
	}
	w.from = nil
	w.kind, w.afterFrom = w.afterFrom, 0
	if w.kind == 0 && w.to == nil {
		a.drop(path)
	}
}

func (a *accumulator) drop(path string) {
	if _, ok := a.windows[path]; ok {
		delete(a.windows, path)
		metricPending.Dec()
	}
	a.pairs.Remove(path)
}

// discard silently drops the windows of every path no longer covered by a
// watched root, and returns how many there were.
func (a *accumulator) discard() int {
	n := 0
	for path := range a.windows {
		if !a.cache.Covers(path) {
			a.drop(path)
			n++
		}
	}
	return n
}

// reset drops everything.
func (a *accumulator) reset() int {
	n := len(a.windows)
	for path := range a.windows {
		a.drop(path)
	}
	return n
}
