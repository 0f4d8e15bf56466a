// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package backend

import (
	"context"
	"errors"

	poller "github.com/radovskyb/watcher"
	"golang.org/x/sync/errgroup"

	"github.com/syncthing/watchit/lib/events"
	"github.com/syncthing/watchit/lib/sync"
)

// pollBackend stats the watched trees periodically. It is the slowest
// backend but works everywhere, and it is the only one that reports both
// names of a rename in a single event.
type pollBackend struct {
	sink
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc

	mut      sync.Mutex
	delegate *poller.Watcher
	grp      *errgroup.Group
	paths    map[string]int // reference counts per added path
	subs     map[uint64]*Subscription
	nextID   uint64
	closed   bool
}

func newPollBackend(out chan<- events.Raw, errs chan<- error, opts Options) (Backend, error) {
	ctx, cancel := context.WithCancel(context.Background())
	return &pollBackend{
		sink:   sink{name: KindPoll.String(), out: out, errs: errs},
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		mut:    sync.NewMutex(),
		paths:  make(map[string]int),
		subs:   make(map[uint64]*Subscription),
	}, nil
}

func (b *pollBackend) String() string {
	return b.name
}

func (b *pollBackend) Subscribe(path string, mode events.RecursionMode) (*Subscription, error) {
	info, err := statRoot(path)
	if err != nil {
		return nil, err
	}

	b.mut.Lock()
	defer b.mut.Unlock()

	if b.closed {
		return nil, events.NewWatchError("subscribe", path, events.OsIntegrationFailure, ErrClosed)
	}
	if b.delegate == nil {
		if err := b.startLocked(); err != nil {
			return nil, events.Classify("subscribe", path, err)
		}
	}

	key := pollKey(path, mode)
	if b.paths[key] == 0 {
		if mode == events.Recursive {
			err = b.delegate.AddRecursive(path)
		} else {
			err = b.delegate.Add(path)
		}
		if err != nil {
			return nil, events.Classify("subscribe", path, err)
		}
	}
	b.paths[key]++

	b.nextID++
	sub := &Subscription{Path: path, Mode: mode, id: b.nextID, dir: info.IsDir()}
	b.subs[sub.id] = sub
	metricSubscriptions.WithLabelValues(b.name).Inc()
	l.Debugln(b, "Polling", path, mode, "every", b.opts.PollInterval)
	return sub, nil
}

func (b *pollBackend) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return notSubscribed(sub)
	}
	b.mut.Lock()
	defer b.mut.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return notSubscribed(sub)
	}
	delete(b.subs, sub.id)
	metricSubscriptions.WithLabelValues(b.name).Dec()

	key := pollKey(sub.Path, sub.Mode)
	if b.paths[key] > 1 {
		b.paths[key]--
		return nil
	}
	delete(b.paths, key)
	var err error
	if sub.Mode == events.Recursive {
		err = b.delegate.RemoveRecursive(sub.Path)
	} else {
		err = b.delegate.Remove(sub.Path)
	}
	if err != nil {
		// The poller forgets deleted roots by itself.
		l.Debugln(b, "Removing", sub.Path, err)
	}
	return nil
}

func (b *pollBackend) Close() error {
	b.mut.Lock()
	b.closed = true
	delegate, grp := b.delegate, b.grp
	for id := range b.subs {
		delete(b.subs, id)
		metricSubscriptions.WithLabelValues(b.name).Dec()
	}
	b.mut.Unlock()

	if delegate == nil {
		b.cancel()
		return nil
	}
	// The poller blocks delivering events, so keep draining until it has
	// stopped.
	delegate.Close()
	b.cancel()
	return grp.Wait()
}

// startLocked runs the poller and returns once it is either polling or
// has failed to start. Until it polls, closing it would do nothing.
func (b *pollBackend) startLocked() error {
	delegate := poller.New()
	delegate.FilterOps(poller.Create, poller.Write, poller.Remove, poller.Rename, poller.Move, poller.Chmod)

	grp, ctx := errgroup.WithContext(b.ctx)
	grp.Go(func() error {
		b.loop(ctx, delegate)
		return nil
	})
	grp.Go(func() error {
		return delegate.Start(b.opts.PollInterval)
	})

	started := make(chan struct{})
	go func() {
		delegate.Wait()
		close(started)
	}()
	select {
	case <-started:
	case <-ctx.Done():
		// This returns the error that caused the context to get canceled.
		if err := grp.Wait(); err != nil {
			return err
		}
		return ErrClosed
	}

	b.delegate = delegate
	b.grp = grp
	return nil
}

func (b *pollBackend) loop(ctx context.Context, delegate *poller.Watcher) {
	for {
		select {
		case ev := <-delegate.Event:
			if !b.handle(ctx, ev) {
				return
			}
		case err := <-delegate.Error:
			if errors.Is(err, poller.ErrWatchedFileDeleted) {
				// The poller does not say which one.
				for _, root := range b.vanished() {
					if !b.emit(ctx, events.OpRemove, root) || !b.rootRemoved(ctx, root) {
						return
					}
				}
				continue
			}
			if !b.fail(ctx, events.Classify("watch", "", err)) {
				return
			}
		case <-delegate.Closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *pollBackend) handle(ctx context.Context, ev poller.Event) bool {
	switch ev.Op {
	case poller.Rename, poller.Move:
		return b.emit(ctx, events.OpRenameFrom, ev.OldPath) && b.emit(ctx, events.OpRenameTo, ev.Path)
	case poller.Create:
		return b.emit(ctx, events.OpCreate, ev.Path)
	case poller.Write:
		return b.emit(ctx, events.OpModify, ev.Path)
	case poller.Remove:
		return b.emit(ctx, events.OpRemove, ev.Path)
	default:
		return b.emit(ctx, events.OpOther, ev.Path)
	}
}

// vanished returns the subscribed roots that no longer exist.
func (b *pollBackend) vanished() []string {
	b.mut.Lock()
	defer b.mut.Unlock()
	var gone []string
	for _, sub := range b.subs {
		if _, err := statRoot(sub.Path); err != nil {
			gone = append(gone, sub.Path)
		}
	}
	return gone
}

func pollKey(path string, mode events.RecursionMode) string {
	return mode.String() + ":" + path
}
