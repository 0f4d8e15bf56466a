// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package backend

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRawEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchit",
		Subsystem: "backend",
		Name:      "events_total",
		Help:      "Total number of raw filesystem events received",
	}, []string{"backend", "kind"})
	metricOverflows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchit",
		Subsystem: "backend",
		Name:      "overflows_total",
		Help:      "Total number of times raw events were lost",
	}, []string{"backend"})
	metricSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "watchit",
		Subsystem: "backend",
		Name:      "subscriptions",
		Help:      "Number of active subscriptions",
	}, []string{"backend"})
)
