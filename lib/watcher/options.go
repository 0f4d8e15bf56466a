// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package watcher

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/syncthing/watchit/lib/backend"
	"github.com/syncthing/watchit/lib/config"
	"github.com/syncthing/watchit/lib/events"
	"github.com/syncthing/watchit/lib/identity"
)

// BackendFactory creates the backend a watcher receives raw events from.
type BackendFactory func(out chan<- events.Raw, errs chan<- error) (backend.Backend, error)

type options struct {
	cfg        config.Configuration
	clock      clock.Clock
	prober     identity.Prober
	newBackend BackendFactory
}

type Option func(*options)

// WithConfiguration replaces every setting at once.
func WithConfiguration(cfg config.Configuration) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

func WithDelay(d time.Duration) Option {
	return func(o *options) {
		o.cfg.DelayS = d.Seconds()
	}
}

func WithMaxWait(d time.Duration) Option {
	return func(o *options) {
		o.cfg.MaxWaitS = d.Seconds()
	}
}

func WithBackend(kind backend.Kind) Option {
	return func(o *options) {
		o.cfg.Backend = kind
	}
}

func WithIgnores(patterns ...string) Option {
	return func(o *options) {
		o.cfg.Ignores = append(o.cfg.Ignores, patterns...)
	}
}

func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func WithProber(p identity.Prober) Option {
	return func(o *options) {
		o.prober = p
	}
}

// WithBackendFactory bypasses the configured backend kind.
func WithBackendFactory(fn BackendFactory) Option {
	return func(o *options) {
		o.newBackend = fn
	}
}

// WithPollInterval sets how often the polling backend stats the watched
// trees.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.cfg.PollIntervalMs = int(d.Milliseconds())
	}
}

// WithIgnoreFile adds the patterns of an ignore file, tried after those
// given by WithIgnores.
func WithIgnoreFile(file string) Option {
	return func(o *options) {
		o.cfg.IgnoreFile = file
	}
}
