// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:generate -command counterfeiter go run github.com/maxbrunsfeld/counterfeiter/v6
//go:generate counterfeiter -o mocks/prober.go --fake-name Prober . Prober

package identity

import (
	"errors"
	"io/fs"

	"github.com/syncthing/watchit/lib/events"
)

// A Prober looks up the stable identity of whatever currently lives at a
// path.
type Prober interface {
	StableID(path string) (events.StableID, error)
}

type ProbeErrorKind int

const (
	Vanished ProbeErrorKind = iota + 1
	PermissionDenied
	Opaque
)

func (k ProbeErrorKind) String() string {
	switch k {
	case Vanished:
		return "vanished"
	case PermissionDenied:
		return "permission denied"
	default:
		return "opaque"
	}
}

type ProbeError struct {
	Path string
	Kind ProbeErrorKind
	Err  error
}

func (e *ProbeError) Error() string {
	return "probe " + e.Path + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

var errProbeUnsupported = errors.New("stable identities not supported on this platform")

func probeError(path string, err error) *ProbeError {
	kind := Opaque
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = Vanished
	case errors.Is(err, fs.ErrPermission):
		kind = PermissionDenied
	}
	return &ProbeError{Path: path, Kind: kind, Err: err}
}

// NewProber returns the platform identity probe: device and inode numbers
// on Unix, volume serial and file index on Windows.
func NewProber() Prober {
	return statProber{}
}

type statProber struct{}

func (statProber) StableID(path string) (events.StableID, error) {
	id, err := stableID(path)
	if err != nil {
		return events.StableID{}, probeError(path, err)
	}
	return id, nil
}
