// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package events defines the raw and finalized filesystem change events
// passed between the watch backends, the debouncer and the user handler.
package events

import (
	"fmt"
	"strings"
	"time"
)

// Op is the kind of a raw, backend reported occurrence.
type Op int

const (
	OpCreate Op = iota + 1
	OpModify
	OpRemove
	OpRenameFrom
	OpRenameTo
	OpOther
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "Create"
	case OpModify:
		return "Modify"
	case OpRemove:
		return "Remove"
	case OpRenameFrom:
		return "RenameFrom"
	case OpRenameTo:
		return "RenameTo"
	case OpOther:
		return "Other"
	default:
		return "Unknown"
	}
}

func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Kind is the outcome delivered for a path once its debounce window closes.
// The numeric order of Modified through Removed is the coalescing
// precedence: a higher kind absorbs a lower one.
type Kind int

const (
	Modified Kind = iota + 1
	Created
	Renamed
	Removed
	Errored
)

func (k Kind) String() string {
	switch k {
	case Modified:
		return "Modified"
	case Created:
		return "Created"
	case Renamed:
		return "Renamed"
	case Removed:
		return "Removed"
	case Errored:
		return "Errored"
	default:
		return "Unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// RecursionMode says whether watching a directory covers its descendants.
type RecursionMode int

const (
	NonRecursive RecursionMode = iota // default
	Recursive
)

func (m RecursionMode) String() string {
	switch m {
	case NonRecursive:
		return "nonrecursive"
	case Recursive:
		return "recursive"
	default:
		return "unknown"
	}
}

func (m RecursionMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *RecursionMode) UnmarshalText(bs []byte) error {
	switch strings.ToLower(string(bs)) {
	case "recursive":
		*m = Recursive
	case "nonrecursive", "":
		*m = NonRecursive
	default:
		return fmt.Errorf("unknown recursion mode %q", bs)
	}
	return nil
}

// StableID identifies a file independently of its name, so that it
// survives a rename. The zero value means no identity is known.
type StableID struct {
	Device uint64
	Inode  uint64
}

func (id StableID) IsZero() bool {
	return id == StableID{}
}

func (id StableID) String() string {
	if id.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%x:%x", id.Device, id.Inode)
}

// Raw is a single notification as reported by a backend.
type Raw struct {
	Op   Op
	Path string
	Time time.Time
	ID   StableID
}

func (r Raw) String() string {
	return fmt.Sprintf("%v %s (id %v)", r.Op, r.Path, r.ID)
}

// Event is the unit delivered to the handler. For Renamed events Paths
// holds exactly the source and the destination, in that order; for all
// other kinds it holds the affected path.
type Event struct {
	Kind  Kind      `json:"kind"`
	Paths []string  `json:"paths"`
	Time  time.Time `json:"time"`
}

// From returns the source path of a rename, or the path of any other event.
func (e Event) From() string {
	if len(e.Paths) == 0 {
		return ""
	}
	return e.Paths[0]
}

// To returns the destination path of a rename, or the path of any other
// event.
func (e Event) To() string {
	if len(e.Paths) == 0 {
		return ""
	}
	return e.Paths[len(e.Paths)-1]
}

func (e Event) String() string {
	if e.Kind == Renamed {
		return fmt.Sprintf("%v %s -> %s", e.Kind, e.From(), e.To())
	}
	return fmt.Sprintf("%v %s", e.Kind, strings.Join(e.Paths, ", "))
}

// A Handler receives either a finalized batch or an error, never both.
type Handler interface {
	Handle(batch []Event, err error)
}

// HandlerFunc adapts an ordinary function to a Handler.
type HandlerFunc func(batch []Event, err error)

func (f HandlerFunc) Handle(batch []Event, err error) {
	f(batch, err)
}
