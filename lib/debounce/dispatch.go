// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package debounce

import (
	"context"
	"fmt"

	"github.com/syncthing/watchit/lib/events"
	"github.com/syncthing/watchit/lib/sync"
)

type delivery struct {
	batch []events.Event
	err   error
}

// The Dispatcher calls the handler once per submitted batch or error, in
// submission order, from its own goroutine. Submitting never blocks, so a
// slow handler does not hold up the debouncer; deliveries queue up instead.
// A panicking handler is not recovered.
type Dispatcher struct {
	handler events.Handler

	mut    sync.Mutex
	queue  []delivery
	notify chan struct{}
}

func NewDispatcher(handler events.Handler) *Dispatcher {
	return &Dispatcher{
		handler: handler,
		mut:     sync.NewMutex(),
		notify:  make(chan struct{}, 1),
	}
}

func (d *Dispatcher) String() string {
	return fmt.Sprintf("dispatcher@%p", d)
}

func (d *Dispatcher) Submit(batch []events.Event, err error) {
	d.mut.Lock()
	d.queue = append(d.queue, delivery{batch: batch, err: err})
	d.mut.Unlock()
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Queued returns the number of deliveries waiting for the handler.
func (d *Dispatcher) Queued() int {
	d.mut.Lock()
	defer d.mut.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) Serve(ctx context.Context) error {
	for {
		select {
		case <-d.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
		for {
			d.mut.Lock()
			if len(d.queue) == 0 {
				d.mut.Unlock()
				break
			}
			next := d.queue[0]
			d.queue[0] = delivery{}
			d.queue = d.queue[1:]
			d.mut.Unlock()

			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.handler.Handle(next.batch, next.err)
		}
	}
}
