// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package events

import (
	"errors"
	"io/fs"
)

type ErrorKind int

const (
	PathNotFound ErrorKind = iota + 1
	PermissionDenied
	ResourceExhausted
	AlreadyWatched
	NotWatched
	OsIntegrationFailure
)

var (
	ErrPathNotFound      = errors.New("path not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrResourceExhausted = errors.New("watch resources exhausted")
	ErrAlreadyWatched    = errors.New("path already watched")
	ErrNotWatched        = errors.New("path not watched")
	ErrOsIntegration     = errors.New("os integration failure")
	errUnknownKind       = errors.New("unknown watch error")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case PathNotFound:
		return ErrPathNotFound
	case PermissionDenied:
		return ErrPermissionDenied
	case ResourceExhausted:
		return ErrResourceExhausted
	case AlreadyWatched:
		return ErrAlreadyWatched
	case NotWatched:
		return ErrNotWatched
	case OsIntegrationFailure:
		return ErrOsIntegration
	default:
		return errUnknownKind
	}
}

func (k ErrorKind) String() string {
	return k.sentinel().Error()
}

// WatchError is returned by registration calls and delivered to the
// handler for failures discovered after registration. errors.Is matches
// it against the Err* sentinel of its kind as well as against the
// wrapped cause.
type WatchError struct {
	Op   string
	Path string
	Kind ErrorKind
	Err  error
}

func NewWatchError(op, path string, kind ErrorKind, err error) *WatchError {
	return &WatchError{Op: op, Path: path, Kind: kind, Err: err}
}

func (e *WatchError) Error() string {
	msg := e.Op + " " + e.Path + ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WatchError) Unwrap() error {
	return e.Err
}

func (e *WatchError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Classify wraps an OS level error into a WatchError of the matching kind.
// An error that already is a WatchError is returned as is.
func Classify(op, path string, err error) *WatchError {
	if err == nil {
		return nil
	}
	var werr *WatchError
	if errors.As(err, &werr) {
		return werr
	}
	kind := OsIntegrationFailure
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = PathNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = PermissionDenied
	case reachedResourceLimit(err):
		kind = ResourceExhausted
	}
	return NewWatchError(op, path, kind, err)
}
