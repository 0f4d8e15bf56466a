// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package identity

import (
	"path/filepath"
	"time"

	"github.com/syncthing/watchit/lib/events"
)

// Pairs indexes the rename halves that are still waiting to be flushed, one
// per path and direction, and correlates them. Destinations include
// creations that carry an identity, as some platforms report the new name
// of a rename as a plain creation.
//
// Halves pair up on equal identities first. Without identities, a source
// pairs with a renamed-to destination that arrived within the grace
// period after it, preferring the nearest in time, then one in the same
// directory, then the lexically smallest path.
//
// A Pairs is not safe for concurrent use.
type Pairs struct {
	froms map[string]events.Raw
	tos   map[string]events.Raw
}

func NewPairs() *Pairs {
	return &Pairs{
		froms: make(map[string]events.Raw),
		tos:   make(map[string]events.Raw),
	}
}

// Add records a pending half. Anything other than a rename half or an
// identified creation is ignored.
func (p *Pairs) Add(ev events.Raw) {
	switch {
	case ev.Op == events.OpRenameFrom:
		p.froms[ev.Path] = ev
	case ev.Op == events.OpRenameTo:
		p.tos[ev.Path] = ev
	case ev.Op == events.OpCreate && !ev.ID.IsZero():
		p.tos[ev.Path] = ev
	}
}

func (p *Pairs) RemoveFrom(path string) {
	delete(p.froms, path)
}

func (p *Pairs) RemoveTo(path string) {
	delete(p.tos, path)
}

// Remove drops both halves recorded for path.
func (p *Pairs) Remove(path string) {
	delete(p.froms, path)
	delete(p.tos, path)
}

func (p *Pairs) Len() int {
	return len(p.froms) + len(p.tos)
}

// MatchFrom returns the pending destination that the given source was
// renamed to, if any. accept may veto a candidate.
func (p *Pairs) MatchFrom(from events.Raw, grace time.Duration, accept func(events.Raw) bool) (events.Raw, bool) {
	return match(from, p.tos, grace, accept, func(to events.Raw) (time.Duration, bool) {
		if to.Path == from.Path {
			return 0, false
		}
		gap := to.Time.Sub(from.Time)
		return gap, to.Op == events.OpRenameTo && gap >= 0 && gap <= grace
	})
}

// MatchTo returns the pending source that was renamed to the given
// destination, if any. accept may veto a candidate.
func (p *Pairs) MatchTo(to events.Raw, grace time.Duration, accept func(events.Raw) bool) (events.Raw, bool) {
	return match(to, p.froms, grace, accept, func(from events.Raw) (time.Duration, bool) {
		if from.Path == to.Path {
			return 0, false
		}
		gap := to.Time.Sub(from.Time)
		return gap, to.Op == events.OpRenameTo && gap >= 0 && gap <= grace
	})
}

// match picks the best candidate for ev. Identities decide when both
// sides carry one; heuristics apply only when at least one side doesn't.
func match(ev events.Raw, candidates map[string]events.Raw, grace time.Duration, accept func(events.Raw) bool, heuristic func(events.Raw) (time.Duration, bool)) (events.Raw, bool) {
	var best events.Raw
	var bestGap time.Duration
	found := false

	consider := func(c events.Raw, gap time.Duration) {
		if accept != nil && !accept(c) {
			return
		}
		if !found || better(ev, c, gap, best, bestGap) {
			best, bestGap, found = c, gap, true
		}
	}

	if !ev.ID.IsZero() {
		for _, c := range candidates {
			if c.ID != ev.ID || c.Path == ev.Path {
				continue
			}
			gap := abs(c.Time.Sub(ev.Time))
			if gap <= grace {
				consider(c, gap)
			}
		}
		if found {
			return best, true
		}
	}

	for _, c := range candidates {
		if !ev.ID.IsZero() && !c.ID.IsZero() {
			continue
		}
		if gap, ok := heuristic(c); ok {
			consider(c, gap)
		}
	}
	return best, found
}

func better(ev, c events.Raw, gap time.Duration, best events.Raw, bestGap time.Duration) bool {
	if gap != bestGap {
		return gap < bestGap
	}
	dir := filepath.Dir(ev.Path)
	cSame, bSame := filepath.Dir(c.Path) == dir, filepath.Dir(best.Path) == dir
	if cSame != bSame {
		return cSame
	}
	return c.Path < best.Path
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
