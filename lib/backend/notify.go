// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !(solaris && !cgo) && !(darwin && !cgo) && !(android && amd64)

package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/syncthing/notify"

	"github.com/syncthing/watchit/lib/events"
)

var errNotifyUnsupported = errors.New("native notifications not supported")

type notifyBackend struct {
	sink
	buffer  int
	skipDir func(string) bool
	subs    *xsync.MapOf[uint64, *notifySubscription]
	nextID  atomic.Uint64
	ctx     context.Context
	cancel  context.CancelFunc
}

type notifySubscription struct {
	*Subscription
	c      chan notify.EventInfo
	cancel context.CancelFunc
	done   chan struct{}
}

func newNotifyBackend(out chan<- events.Raw, errs chan<- error, opts Options) (Backend, error) {
	ctx, cancel := context.WithCancel(context.Background())
	return &notifyBackend{
		sink:    sink{name: KindNative.String(), out: out, errs: errs},
		buffer:  opts.Buffer,
		skipDir: opts.SkipDir,
		subs:    xsync.NewMapOf[uint64, *notifySubscription](),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (b *notifyBackend) String() string {
	return b.name
}

func (b *notifyBackend) Subscribe(path string, mode events.RecursionMode) (*Subscription, error) {
	if b.ctx.Err() != nil {
		return nil, events.NewWatchError("subscribe", path, events.OsIntegrationFailure, ErrClosed)
	}
	info, err := statRoot(path)
	if err != nil {
		return nil, err
	}

	watchPath := path
	if mode == events.Recursive && info.IsDir() {
		watchPath = filepath.Join(path, "...")
	}

	c := make(chan notify.EventInfo, b.buffer)
	filter := func(p string) bool {
		return p != path && b.skipDir(p)
	}
	if err := notify.WatchWithFilter(watchPath, c, filter, notify.All); err != nil {
		notify.Stop(c)
		return nil, events.Classify("subscribe", path, err)
	}

	ctx, cancel := context.WithCancel(b.ctx)
	s := &notifySubscription{
		Subscription: &Subscription{Path: path, Mode: mode, id: b.nextID.Add(1), dir: info.IsDir()},
		c:            c,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	b.subs.Store(s.id, s)
	metricSubscriptions.WithLabelValues(b.name).Inc()
	go b.watchLoop(ctx, s)

	l.Debugln(b, "Watching", watchPath)
	return s.Subscription, nil
}

func (b *notifyBackend) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return notSubscribed(sub)
	}
	s, ok := b.subs.LoadAndDelete(sub.id)
	if !ok {
		return notSubscribed(sub)
	}
	b.stop(s)
	return nil
}

func (b *notifyBackend) stop(s *notifySubscription) {
	s.cancel()
	<-s.done
	metricSubscriptions.WithLabelValues(b.name).Dec()
}

func (b *notifyBackend) Close() error {
	b.subs.Range(func(id uint64, s *notifySubscription) bool {
		if _, ok := b.subs.LoadAndDelete(id); ok {
			b.stop(s)
		}
		return true
	})
	b.cancel()
	return nil
}

func (b *notifyBackend) watchLoop(ctx context.Context, s *notifySubscription) {
	defer close(s.done)
	defer notify.Stop(s.c)

	for {
		// Detect channel overflow
		if len(s.c) == b.buffer {
		outer:
			for {
				select {
				case <-s.c:
				default:
					break outer
				}
			}
			if !b.overflowed(ctx, s.Path) {
				return
			}
		}

		select {
		case ev := <-s.c:
			path := ev.Path()
			op := b.op(ev.Event(), path)
			if !b.emit(ctx, op, path) {
				return
			}
			if path == s.Path && (op == events.OpRemove || op == events.OpRenameFrom) {
				b.rootRemoved(ctx, s.Path)
				l.Debugln(b, "Stopped watching removed", s.Path)
				return
			}
		case <-ctx.Done():
			l.Debugln(b, "Stopped watching", s.Path)
			return
		}
	}
}

// op maps notify events onto ours. Renames carry no direction, so whether
// the name still exists tells the source from the destination.
func (*notifyBackend) op(ev notify.Event, path string) events.Op {
	switch {
	case ev&notify.Remove != 0:
		return events.OpRemove
	case ev&notify.Rename != 0:
		if _, err := os.Lstat(path); err == nil {
			return events.OpRenameTo
		}
		return events.OpRenameFrom
	case ev&notify.Create != 0:
		return events.OpCreate
	case ev&notify.Write != 0:
		return events.OpModify
	default:
		return events.OpOther
	}
}
