// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package backend

import (
	"context"
	"time"

	"github.com/syncthing/watchit/lib/events"
	"github.com/syncthing/watchit/lib/sync"
)

// Fake is a backend that never looks at the filesystem. Events are injected
// by the caller, which makes it suitable for driving the rest of the
// pipeline from tests.
type Fake struct {
	sink
	ctx    context.Context
	cancel context.CancelFunc

	// SubscribeErr, when set, decides the outcome of each subscription.
	SubscribeErr func(path string, mode events.RecursionMode) error

	mut          sync.Mutex
	subs         map[uint64]*Subscription
	nextID       uint64
	unsubscribed []string
}

func NewFake(out chan<- events.Raw, errs chan<- error) *Fake {
	ctx, cancel := context.WithCancel(context.Background())
	return &Fake{
		sink:   sink{name: "fake", out: out, errs: errs},
		ctx:    ctx,
		cancel: cancel,
		mut:    sync.NewMutex(),
		subs:   make(map[uint64]*Subscription),
	}
}

func (f *Fake) String() string {
	return f.name
}

func (f *Fake) Subscribe(path string, mode events.RecursionMode) (*Subscription, error) {
	if f.ctx.Err() != nil {
		return nil, events.NewWatchError("subscribe", path, events.OsIntegrationFailure, ErrClosed)
	}
	if f.SubscribeErr != nil {
		if err := f.SubscribeErr(path, mode); err != nil {
			return nil, events.Classify("subscribe", path, err)
		}
	}
	f.mut.Lock()
	defer f.mut.Unlock()
	f.nextID++
	sub := &Subscription{Path: path, Mode: mode, id: f.nextID}
	f.subs[sub.id] = sub
	return sub, nil
}

func (f *Fake) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return notSubscribed(sub)
	}
	f.mut.Lock()
	defer f.mut.Unlock()
	if _, ok := f.subs[sub.id]; !ok {
		return notSubscribed(sub)
	}
	delete(f.subs, sub.id)
	f.unsubscribed = append(f.unsubscribed, sub.Path)
	return nil
}

func (f *Fake) Close() error {
	f.cancel()
	f.mut.Lock()
	defer f.mut.Unlock()
	for id, sub := range f.subs {
		delete(f.subs, id)
		f.unsubscribed = append(f.unsubscribed, sub.Path)
	}
	return nil
}

// Subscribed returns the paths currently subscribed, in no particular
// order.
func (f *Fake) Subscribed() []string {
	f.mut.Lock()
	defer f.mut.Unlock()
	paths := make([]string, 0, len(f.subs))
	for _, sub := range f.subs {
		paths = append(paths, sub.Path)
	}
	return paths
}

// Unsubscribed returns the paths unsubscribed so far, in order.
func (f *Fake) Unsubscribed() []string {
	f.mut.Lock()
	defer f.mut.Unlock()
	return append([]string(nil), f.unsubscribed...)
}

// Inject delivers a raw event, blocking until it has been consumed or the
// fake is closed.
func (f *Fake) Inject(op events.Op, path string) bool {
	return f.emit(f.ctx, op, path)
}

// InjectRaw delivers the event as given, identity included.
func (f *Fake) InjectRaw(ev events.Raw) bool {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case f.out <- ev:
		return true
	case <-f.ctx.Done():
		return false
	}
}

// InjectError delivers a runtime error.
func (f *Fake) InjectError(err error) bool {
	return f.fail(f.ctx, err)
}
