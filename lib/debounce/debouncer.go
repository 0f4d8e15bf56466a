// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package debounce collapses bursts of raw filesystem events into
// finalized events, one batch per closed window.
package debounce

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/syncthing/watchit/lib/events"
	"github.com/syncthing/watchit/lib/identity"
	"github.com/syncthing/watchit/lib/ignore"
)

const DefaultDelay = 2 * time.Second

type Options struct {
	// Delay is how long a path must stay quiet before its events are
	// delivered.
	Delay time.Duration
	// MaxWait caps how long a continuously changing path is held back.
	// Zero means six times the delay.
	MaxWait time.Duration
	Ignores *ignore.Matcher
	Clock   clock.Clock
}

// The Debouncer owns the pending windows. Raw events and backend errors
// come in on its channels; closed windows go out to the Dispatcher. All
// state is touched only by the goroutine running Serve.
type Debouncer struct {
	acc   *accumulator
	clock clock.Clock
	out   *Dispatcher

	in   chan events.Raw
	errs chan error
	ctrl chan func(*accumulator)

	timer   *clock.Timer
	armed   bool
	armedAt time.Time
}

func New(cache *identity.Cache, out *Dispatcher, opts Options) *Debouncer {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 6 * opts.Delay
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Debouncer{
		acc:   newAccumulator(cache, opts.Ignores, opts.Delay, opts.MaxWait),
		clock: opts.Clock,
		out:   out,
		in:    make(chan events.Raw),
		errs:  make(chan error),
		ctrl:  make(chan func(*accumulator)),
	}
}

// Input is where backends deliver raw events.
func (d *Debouncer) Input() chan<- events.Raw {
	return d.in
}

// Errors is where backends deliver runtime failures.
func (d *Debouncer) Errors() chan<- error {
	return d.errs
}

func (d *Debouncer) String() string {
	return fmt.Sprintf("debouncer@%p", d)
}

func (d *Debouncer) Serve(ctx context.Context) error {
	l.Debugln(d, "Starting")
	defer func() {
		if d.timer != nil {
			d.timer.Stop()
		}
		d.armed = false
		if n := d.acc.reset(); n > 0 {
			metricDiscarded.WithLabelValues(reasonStopped).Add(float64(n))
			l.Debugln(d, "Stopped, dropped", n, "pending paths")
		}
	}()

	for {
		select {
		case ev := <-d.in:
			d.flushDue()
			if d.acc.add(ev, d.clock.Now()) {
				d.schedule()
			}
		case err := <-d.errs:
			d.flushDue()
			d.out.Submit(nil, err)
		case fn := <-d.ctrl:
			d.flushDue()
			fn(d.acc)
			d.schedule()
		case <-d.timerC():
			if d.armed && d.clock.Now().Before(d.armedAt) {
				// Fired before being re-armed for a later deadline.
				continue
			}
			d.armed = false
			d.flush()
			d.schedule()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Debouncer) timerC() <-chan time.Time {
	if d.timer == nil {
		return nil
	}
	return d.timer.C
}

// schedule arms the timer for the earliest deadline. A timer that fires
// early does no harm, it is simply re-armed.
func (d *Debouncer) schedule() {
	next, ok := d.acc.nextDeadline()
	if !ok {
		return
	}
	if d.armed && !next.Before(d.armedAt) {
		return
	}
	wait := next.Sub(d.clock.Now())
	if wait < 0 {
		wait = 0
	}
	if d.timer == nil {
		d.timer = d.clock.Timer(wait)
	} else {
		d.timer.Stop()
		d.timer.Reset(wait)
	}
	d.armed = true
	d.armedAt = next
}

// flushDue closes the windows whose deadline has passed while the timer
// notification is still pending, so that they are not extended by what
// comes in next.
func (d *Debouncer) flushDue() {
	if d.armed && !d.clock.Now().Before(d.armedAt) {
		d.armed = false
		d.flush()
	}
}

func (d *Debouncer) flush() {
	batch := d.acc.flush(d.clock.Now())
	if len(batch) == 0 {
		l.Debugln(d, "No old fs events")
		return
	}
	l.Debugf("%v Flushing %d events", d, len(batch))
	metricFlushes.Inc()
	for _, ev := range batch {
		metricEvents.WithLabelValues(ev.Kind.String()).Inc()
	}
	d.out.Submit(batch, nil)
}

// Discard drops the pending windows of paths that are no longer watched.
// Batches already handed to the dispatcher are not affected.
func (d *Debouncer) Discard(ctx context.Context) error {
	return d.run(ctx, func(a *accumulator) {
		if n := a.discard(); n > 0 {
			metricDiscarded.WithLabelValues(reasonUnwatched).Add(float64(n))
			l.Debugln(d, "Discarded", n, "pending paths")
		}
	})
}

// Pending returns the number of paths with undelivered events.
func (d *Debouncer) Pending(ctx context.Context) (int, error) {
	var n int
	err := d.run(ctx, func(a *accumulator) {
		n = a.pending()
	})
	return n, err
}

func (d *Debouncer) run(ctx context.Context, fn func(*accumulator)) error {
	done := make(chan struct{})
	select {
	case d.ctrl <- func(a *accumulator) {
		fn(a)
		close(done)
	}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
