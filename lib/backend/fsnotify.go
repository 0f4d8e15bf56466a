// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package backend

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/syncthing/watchit/lib/events"
	"github.com/syncthing/watchit/lib/sync"
)

// fsnotifyBackend watches single directories only. Recursive roots get a
// watch on every directory below them, and directories that show up later
// are added as they are created.
type fsnotifyBackend struct {
	sink
	skipDir func(string) bool
	w       *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	mut     sync.Mutex
	watches map[string]int // reference counts, as roots may overlap
	subs    map[uint64]*fsnotifySubscription
	nextID  uint64
}

type fsnotifySubscription struct {
	*Subscription
	dirs map[string]struct{}
}

func newFSNotifyBackend(out chan<- events.Raw, errs chan<- error, opts Options) (Backend, error) {
	w, err := fsnotify.NewBufferedWatcher(uint(opts.Buffer))
	if err != nil {
		return nil, events.Classify("backend", "", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &fsnotifyBackend{
		sink:    sink{name: KindFSNotify.String(), out: out, errs: errs},
		skipDir: opts.SkipDir,
		w:       w,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		mut:     sync.NewMutex(),
		watches: make(map[string]int),
		subs:    make(map[uint64]*fsnotifySubscription),
	}
	go b.forward()
	return b, nil
}

func (b *fsnotifyBackend) String() string {
	return b.name
}

func (b *fsnotifyBackend) Subscribe(path string, mode events.RecursionMode) (*Subscription, error) {
	if b.ctx.Err() != nil {
		return nil, events.NewWatchError("subscribe", path, events.OsIntegrationFailure, ErrClosed)
	}
	info, err := statRoot(path)
	if err != nil {
		return nil, err
	}

	dirs := []string{path}
	if mode == events.Recursive && info.IsDir() {
		dirs = append(dirs, b.collectDirs(path)...)
	}

	b.mut.Lock()
	defer b.mut.Unlock()

	b.nextID++
	s := &fsnotifySubscription{
		Subscription: &Subscription{Path: path, Mode: mode, id: b.nextID, dir: info.IsDir()},
		dirs:         make(map[string]struct{}, len(dirs)),
	}
	for _, dir := range dirs {
		if err := b.addWatchLocked(dir); err != nil {
			if dir != path && errors.Is(err, fs.ErrNotExist) {
				// Gone since we walked the tree.
				continue
			}
			for added := range s.dirs {
				b.dropWatchLocked(added)
			}
			return nil, events.Classify("subscribe", path, err)
		}
		s.dirs[dir] = struct{}{}
	}
	b.subs[s.id] = s
	metricSubscriptions.WithLabelValues(b.name).Inc()

	l.Debugf("%v Watching %s (%v, %d watches)", b, path, mode, len(s.dirs))
	return s.Subscription, nil
}

func (b *fsnotifyBackend) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return notSubscribed(sub)
	}
	b.mut.Lock()
	defer b.mut.Unlock()
	s, ok := b.subs[sub.id]
	if !ok {
		return notSubscribed(sub)
	}
	delete(b.subs, sub.id)
	for dir := range s.dirs {
		b.dropWatchLocked(dir)
	}
	metricSubscriptions.WithLabelValues(b.name).Dec()
	return nil
}

func (b *fsnotifyBackend) Close() error {
	b.cancel()
	err := b.w.Close()
	<-b.done

	b.mut.Lock()
	for id := range b.subs {
		delete(b.subs, id)
		metricSubscriptions.WithLabelValues(b.name).Dec()
	}
	b.watches = make(map[string]int)
	b.mut.Unlock()
	return err
}

func (b *fsnotifyBackend) addWatchLocked(path string) error {
	if b.watches[path] > 0 {
		b.watches[path]++
		return nil
	}
	if err := b.w.Add(path); err != nil {
		return err
	}
	b.watches[path] = 1
	return nil
}

func (b *fsnotifyBackend) dropWatchLocked(path string) {
	count := b.watches[path]
	if count > 1 {
		b.watches[path] = count - 1
		return
	}
	delete(b.watches, path)
	if count == 1 {
		if err := b.w.Remove(path); err != nil {
			// The kernel drops watches on removed directories by itself.
			l.Debugln(b, "Removing watch on", path, err)
		}
	}
}

func (b *fsnotifyBackend) forward() {
	defer close(b.done)
	for {
		select {
		case ev, ok := <-b.w.Events:
			if !ok {
				return
			}
			if !b.handle(ev) {
				return
			}
		case err, ok := <-b.w.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				for _, root := range b.roots() {
					if !b.overflowed(b.ctx, root) {
						return
					}
				}
				continue
			}
			if !b.fail(b.ctx, events.Classify("watch", "", err)) {
				return
			}
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *fsnotifyBackend) handle(ev fsnotify.Event) bool {
	op := fsnotifyOp(ev.Op)
	if !b.emit(b.ctx, op, ev.Name) {
		return false
	}

	switch op {
	case events.OpCreate:
		for _, p := range b.adopt(ev.Name) {
			if !b.emit(b.ctx, events.OpCreate, p) {
				return false
			}
		}
	case events.OpRemove, events.OpRenameFrom:
		for _, root := range b.forget(ev.Name) {
			if !b.rootRemoved(b.ctx, root) {
				return false
			}
		}
	}
	return true
}

// adopt starts watching a directory created below a recursive root, and
// returns whatever was created inside it before the watch was in place.
func (b *fsnotifyBackend) adopt(path string) []string {
	info, err := os.Lstat(path)
	if err != nil || !info.IsDir() || b.skipDir(path) {
		return nil
	}

	b.mut.Lock()
	var owners []*fsnotifySubscription
	for _, s := range b.subs {
		if s.Mode == events.Recursive && isBelow(path, s.Path) {
			owners = append(owners, s)
		}
	}
	b.mut.Unlock()
	if len(owners) == 0 {
		return nil
	}

	dirs := append([]string{path}, b.collectDirs(path)...)
	var entries []string
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err == nil && p != path {
			entries = append(entries, p)
		}
		return nil
	})

	b.mut.Lock()
	defer b.mut.Unlock()
	for _, s := range owners {
		if _, ok := b.subs[s.id]; !ok {
			continue
		}
		for _, dir := range dirs {
			if _, ok := s.dirs[dir]; ok {
				continue
			}
			if err := b.addWatchLocked(dir); err != nil {
				l.Debugln(b, "Adding watch on", dir, err)
				continue
			}
			s.dirs[dir] = struct{}{}
		}
	}
	return entries
}

// forget drops watches on a removed directory and everything below it, and
// returns the subscription roots that were removed.
func (b *fsnotifyBackend) forget(path string) []string {
	b.mut.Lock()
	defer b.mut.Unlock()

	var removed []string
	for _, s := range b.subs {
		if s.Path == path {
			removed = append(removed, s.Path)
		}
		for dir := range s.dirs {
			if dir == path || isBelow(dir, path) {
				delete(s.dirs, dir)
				b.dropWatchLocked(dir)
			}
		}
	}
	return removed
}

func (b *fsnotifyBackend) roots() []string {
	b.mut.Lock()
	defer b.mut.Unlock()
	roots := make([]string, 0, len(b.subs))
	for _, s := range b.subs {
		roots = append(roots, s.Path)
	}
	return roots
}

func (b *fsnotifyBackend) collectDirs(root string) []string {
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || !entry.IsDir() || path == root {
			return nil
		}
		if b.skipDir(path) {
			return fs.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs
}

func fsnotifyOp(op fsnotify.Op) events.Op {
	switch {
	case op.Has(fsnotify.Remove):
		return events.OpRemove
	case op.Has(fsnotify.Rename):
		// The new name arrives as a separate Create.
		return events.OpRenameFrom
	case op.Has(fsnotify.Create):
		return events.OpCreate
	case op.Has(fsnotify.Write):
		return events.OpModify
	default:
		return events.OpOther
	}
}

func isBelow(path, dir string) bool {
	sep := string(filepath.Separator)
	if !strings.HasSuffix(dir, sep) {
		dir += sep
	}
	return strings.HasPrefix(path, dir)
}
