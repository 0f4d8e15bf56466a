// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package debounce

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "watchit",
		Subsystem: "debounce",
		Name:      "flushes_total",
		Help:      "Total number of batches delivered",
	})
	metricEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchit",
		Subsystem: "debounce",
		Name:      "events_total",
		Help:      "Total number of finalized events delivered",
	}, []string{"kind"})
	metricDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchit",
		Subsystem: "debounce",
		Name:      "discarded_total",
		Help:      "Total number of raw events or pending windows dropped without delivery",
	}, []string{"reason"})
	metricPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "watchit",
		Subsystem: "debounce",
		Name:      "pending",
		Help:      "Number of paths with events waiting for their window to close",
	})
)

const (
	reasonUncovered = "uncovered"
	reasonIgnored   = "ignored"
	reasonUnwatched = "unwatched"
	reasonStopped   = "stopped"
)
