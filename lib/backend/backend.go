// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package backend adapts the platform change notification mechanisms to a
// uniform stream of raw events.
package backend

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/syncthing/watchit/lib/events"
)

const (
	// Notify does not block on sending to channel, so the channel must be
	// buffered. The actual number is magic.
	DefaultBuffer       = 500
	DefaultPollInterval = 500 * time.Millisecond
)

var (
	ErrClosed = errors.New("backend closed")
	// ErrRootRemoved is wrapped in the PathNotFound error reported once a
	// subscribed root is gone. The subscription delivers nothing after it.
	ErrRootRemoved = errors.New("watched path was removed")
)

// A Subscription is the handle for one watched root.
type Subscription struct {
	Path string
	Mode events.RecursionMode
	id   uint64
	dir  bool
}

// A Backend delivers raw events for its subscriptions on the channels
// given at construction. Runtime failures, among them the removal of a
// subscribed root, arrive on the error channel. Subscribe fails
// immediately when the path cannot be watched; nothing is retried.
type Backend interface {
	Subscribe(path string, mode events.RecursionMode) (*Subscription, error)
	Unsubscribe(sub *Subscription) error
	Close() error
	String() string
}

type Options struct {
	// Buffer is the number of raw events held for a slow consumer before
	// events are considered lost.
	Buffer int
	// PollInterval applies to the poll backend only.
	PollInterval time.Duration
	// SkipDir reports whether a directory below a recursive root need not
	// be watched at all.
	SkipDir func(path string) bool
}

func (o *Options) setDefaults() {
	if o.Buffer <= 0 {
		o.Buffer = DefaultBuffer
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.SkipDir == nil {
		o.SkipDir = func(string) bool { return false }
	}
}

// New returns a backend of the given kind. A native backend is not
// available everywhere; the poller is used in its stead.
func New(kind Kind, out chan<- events.Raw, errs chan<- error, opts Options) (Backend, error) {
	opts.setDefaults()
	switch kind {
	case KindNative:
		b, err := newNotifyBackend(out, errs, opts)
		if errors.Is(err, errNotifyUnsupported) {
			l.Infoln("Native notifications unavailable, falling back to polling every", opts.PollInterval)
			return newPollBackend(out, errs, opts)
		}
		return b, err
	case KindFSNotify:
		return newFSNotifyBackend(out, errs, opts)
	case KindPoll:
		return newPollBackend(out, errs, opts)
	default:
		return nil, events.NewWatchError("backend", "", events.OsIntegrationFailure, errors.New("unknown backend "+kind.String()))
	}
}

// sink is the sending side shared by all backends.
type sink struct {
	name string
	out  chan<- events.Raw
	errs chan<- error
}

func (s *sink) emit(ctx context.Context, op events.Op, path string) bool {
	ev := events.Raw{Op: op, Path: path, Time: time.Now()}
	select {
	case s.out <- ev:
		metricRawEvents.WithLabelValues(s.name, op.String()).Inc()
		l.Debugln(s.name, "Sending", ev)
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *sink) fail(ctx context.Context, err error) bool {
	select {
	case s.errs <- err:
		l.Debugln(s.name, "Sending error", err)
		return true
	case <-ctx.Done():
		return false
	}
}

// overflowed reports lost events on the subscription root. Anything below
// it may have changed.
func (s *sink) overflowed(ctx context.Context, root string) bool {
	metricOverflows.WithLabelValues(s.name).Inc()
	l.Debugln(s.name, "Event overflow on", root)
	return s.emit(ctx, events.OpOther, root)
}

func (s *sink) rootRemoved(ctx context.Context, root string) bool {
	return s.fail(ctx, events.NewWatchError("watch", root, events.PathNotFound, ErrRootRemoved))
}

func statRoot(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, events.Classify("subscribe", path, err)
	}
	return info, nil
}

func notSubscribed(sub *Subscription) error {
	path := ""
	if sub != nil {
		path = sub.Path
	}
	return events.NewWatchError("unsubscribe", path, events.NotWatched, nil)
}
