// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package watcher implements the watch registry: the entry point that
// subscribes paths with a backend and delivers debounced events for them
// to a single handler.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/thejerf/suture/v4"

	"github.com/syncthing/watchit/lib/backend"
	"github.com/syncthing/watchit/lib/config"
	"github.com/syncthing/watchit/lib/debounce"
	"github.com/syncthing/watchit/lib/events"
	"github.com/syncthing/watchit/lib/identity"
	"github.com/syncthing/watchit/lib/ignore"
	"github.com/syncthing/watchit/lib/svcutil"
	"github.com/syncthing/watchit/lib/sync"
)

var ErrClosed = errors.New("watcher closed")

type watchedPath struct {
	path string // as resolved
	mode events.RecursionMode
	sub  *backend.Subscription
}

// A Watcher delivers debounced change events for the paths it watches.
// Watch and Unwatch may be called from any goroutine; the handler is
// called from a goroutine of the watcher's own, one batch at a time.
type Watcher struct {
	cfg        config.Configuration
	backend    backend.Backend
	cache      *identity.Cache
	debouncer  *debounce.Debouncer
	dispatcher *debounce.Dispatcher
	sup        *suture.Supervisor
	ctx        context.Context
	cancel     context.CancelFunc
	stopped    <-chan error

	mut     sync.RWMutex
	watched map[string]*watchedPath // by resolved path
	aliases map[string]string       // absolute path as given -> resolved path
	closed  bool
}

// New sets up the pipeline and starts it. The handler receives every
// finalized batch, and every runtime failure as a batch-less call.
func New(handler events.Handler, opts ...Option) (*Watcher, error) {
	o := options{cfg: config.New()}
	for _, opt := range opts {
		opt(&o)
	}
	o.cfg.Prepare()

	ignores, err := ignore.New(o.cfg.Ignores)
	if err != nil {
		return nil, err
	}
	if o.cfg.IgnoreFile != "" {
		fromFile, err := ignore.Load(o.cfg.IgnoreFile)
		if err != nil {
			return nil, err
		}
		ignores = ignore.Merge(ignores, fromFile)
	}

	w := &Watcher{
		cfg:     o.cfg,
		mut:     sync.NewRWMutex(),
		watched: make(map[string]*watchedPath),
		aliases: make(map[string]string),
	}

	cache := identity.New(o.prober, o.cfg.IdentityCacheSize)
	dispatcher := debounce.NewDispatcher(events.HandlerFunc(func(batch []events.Event, err error) {
		if err != nil {
			w.dropRemoved(err)
		}
		handler.Handle(batch, err)
	}))
	debouncer := debounce.New(cache, dispatcher, debounce.Options{
		Delay:   o.cfg.Delay(),
		MaxWait: o.cfg.MaxWait(),
		Ignores: ignores,
		Clock:   o.clock,
	})

	newBackend := o.newBackend
	if newBackend == nil {
		newBackend = func(out chan<- events.Raw, errs chan<- error) (backend.Backend, error) {
			return backend.New(o.cfg.Backend, out, errs, backend.Options{
				Buffer:       o.cfg.BackendBuffer,
				PollInterval: o.cfg.PollInterval(),
				SkipDir:      ignores.Match,
			})
		}
	}
	be, err := newBackend(debouncer.Input(), debouncer.Errors())
	if err != nil {
		return nil, err
	}

	w.backend = be
	w.cache = cache
	w.debouncer = debouncer
	w.dispatcher = dispatcher
	w.sup = suture.New(w.String(), svcutil.SpecWithDebugLogger(l))
	w.sup.Add(svcutil.AsService(debouncer.Serve, w.String()))
	w.sup.Add(svcutil.AsService(dispatcher.Serve, w.String()))
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.stopped = w.sup.ServeBackground(w.ctx)

	l.Debugf("Created new file watcher %v (backend %v, delay %v, max wait %v)", w, be, o.cfg.Delay(), o.cfg.MaxWait())
	return w, nil
}

func (w *Watcher) String() string {
	return fmt.Sprintf("watcher@%p", w)
}

// Watch starts watching path, which must exist. Either the path is fully
// watched when Watch returns nil, or nothing about it has changed.
func (w *Watcher) Watch(path string, mode events.RecursionMode) error {
	w.mut.Lock()
	defer w.mut.Unlock()

	if w.closed {
		return events.NewWatchError("watch", path, events.OsIntegrationFailure, ErrClosed)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return events.Classify("watch", path, err)
	}
	if _, ok := w.aliases[abs]; ok {
		return events.NewWatchError("watch", path, events.AlreadyWatched, nil)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return events.Classify("watch", path, err)
	}
	if _, ok := w.watched[resolved]; ok {
		return events.NewWatchError("watch", path, events.AlreadyWatched, nil)
	}

	sub, err := w.backend.Subscribe(resolved, mode)
	if err != nil {
		return events.Classify("watch", path, err)
	}
	if err := w.cache.AddRoot(resolved, mode); err != nil {
		if uerr := w.backend.Unsubscribe(sub); uerr != nil {
			l.Debugln(w, "Rolling back subscription of", resolved, uerr)
		}
		return events.Classify("watch", path, err)
	}

	w.watched[resolved] = &watchedPath{path: resolved, mode: mode, sub: sub}
	w.aliases[abs] = resolved
	l.Debugf("%v Watching file for changes: %s (%v)", w, resolved, mode)
	return nil
}

// Unwatch stops watching a path given to Watch. Events for it that have not
// been delivered yet are dropped.
func (w *Watcher) Unwatch(path string) error {
	w.mut.Lock()
	defer w.mut.Unlock()

	if w.closed {
		return events.NewWatchError("unwatch", path, events.OsIntegrationFailure, ErrClosed)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return events.Classify("unwatch", path, err)
	}
	resolved, ok := w.aliases[abs]
	if !ok {
		return events.NewWatchError("unwatch", path, events.NotWatched, nil)
	}
	wp := w.watched[resolved]
	delete(w.aliases, abs)
	delete(w.watched, resolved)

	w.release(wp)
	if err := w.debouncer.Discard(w.ctx); err != nil {
		return events.Classify("unwatch", path, err)
	}
	l.Debugln(w, "Stopped watching", resolved)
	return nil
}

// release gives up the subscription and root entry of a watched path. A
// subscription the backend already dropped, e.g. because the path was
// removed, is not an error.
func (w *Watcher) release(wp *watchedPath) {
	if err := w.backend.Unsubscribe(wp.sub); err != nil {
		l.Debugln(w, "Unsubscribing", wp.path, err)
	}
	w.cache.RemoveRoot(wp.path)
}

// dropRemoved forgets a watched root the backend reported as removed, so
// that it can be watched again once it reappears. The pending events of the
// root, its removal among them, are still delivered.
func (w *Watcher) dropRemoved(err error) {
	var werr *events.WatchError
	if !errors.Is(err, backend.ErrRootRemoved) || !errors.As(err, &werr) {
		return
	}

	w.mut.Lock()
	defer w.mut.Unlock()
	wp, ok := w.watched[werr.Path]
	if !ok || w.closed {
		return
	}
	delete(w.watched, wp.path)
	for abs, resolved := range w.aliases {
		if resolved == wp.path {
			delete(w.aliases, abs)
		}
	}
	w.release(wp)
	l.Debugln(w, "Watched path was removed:", wp.path)
}

// Watched returns the watched paths, as resolved, in sorted order.
func (w *Watcher) Watched() []string {
	w.mut.RLock()
	defer w.mut.RUnlock()
	paths := make([]string, 0, len(w.watched))
	for p := range w.watched {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Close releases every watched path and stops the pipeline. Pending events
// are dropped and the handler is not called again once Close returns.
func (w *Watcher) Close() error {
	w.mut.Lock()
	if w.closed {
		w.mut.Unlock()
		return nil
	}
	w.closed = true
	for resolved, wp := range w.watched {
		w.release(wp)
		delete(w.watched, resolved)
	}
	w.aliases = make(map[string]string)
	w.mut.Unlock()

	err := w.backend.Close()
	w.cancel()
	if serr := <-w.stopped; serr != nil && !errors.Is(serr, context.Canceled) {
		l.Debugln(w, "Supervisor stopped:", serr)
	}
	l.Debugln(w, "Closed")
	return err
}
