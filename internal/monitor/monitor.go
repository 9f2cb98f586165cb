// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package monitor exposes the running statistics of the event assembler
// as Prometheus metrics.
package monitor // import "github.com/go-lpc/pixie/internal/monitor"

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-lpc/pixie/unpack"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pixie"

// Monitor holds the assembler metrics of a process.
type Monitor struct {
	reg *prometheus.Registry

	mu   sync.Mutex
	last unpack.Stats

	Spills         prometheus.Counter
	Hits           prometheus.Counter
	RawEvents      prometheus.Counter
	BadModules     prometheus.Counter
	MissingBuffers prometheus.Counter
	Truncated      prometheus.Counter
	MaxModule      prometheus.Gauge
	WallClock      prometheus.Gauge
	Channels       *prometheus.CounterVec
	SpillDuration  prometheus.Histogram
}

// New creates a monitor with its own registry.
func New() *Monitor {
	var (
		reg = prometheus.NewRegistry()
		fac = promauto.With(reg)
	)
	return &Monitor{
		reg: reg,
		Spills: fac.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spills_total",
			Help:      "Total number of spills read",
		}),
		Hits: fac.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hits_total",
			Help:      "Total number of decoded hits",
		}),
		RawEvents: fac.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_events_total",
			Help:      "Total number of assembled raw events",
		}),
		BadModules: fac.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bad_modules_total",
			Help:      "Total number of dropped module buffers",
		}),
		MissingBuffers: fac.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_buffers_total",
			Help:      "Total number of gaps in module numbers",
		}),
		Truncated: fac.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "truncated_spills_total",
			Help:      "Total number of spills cut short by a malformed buffer",
		}),
		MaxModule: fac.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_module",
			Help:      "Highest module number seen with hits",
		}),
		WallClock: fac.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wall_clock_seconds",
			Help:      "Last wall-clock time recorded in a spill",
		}),
		Channels: fac.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_hits_total",
			Help:      "Total number of hits per channel identifier",
		}, []string{"id"}),
		SpillDuration: fac.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "spill_duration_seconds",
			Help:      "Duration of the assembly of a spill",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Registry returns the registry holding the metrics.
func (m *Monitor) Registry() *prometheus.Registry { return m.reg }

// Handler serves the metrics over HTTP.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Update adds to the metrics the statistics accumulated since the
// previous update. Statistics must come from the same assembler.
func (m *Monitor) Update(st unpack.Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	add := func(c prometheus.Counter, cur, prev int) {
		if d := cur - prev; d > 0 {
			c.Add(float64(d))
		}
	}
	add(m.Spills, st.Spills, m.last.Spills)
	add(m.Hits, st.Hits, m.last.Hits)
	add(m.RawEvents, st.RawEvents, m.last.RawEvents)
	add(m.BadModules, st.BadModules, m.last.BadModules)
	add(m.MissingBuffers, st.MissingBuffers, m.last.MissingBuffers)
	add(m.Truncated, st.Truncated, m.last.Truncated)
	for id, n := range st.Counts {
		add(m.Channels.WithLabelValues(strconv.Itoa(int(id))), n, m.last.Counts[id])
	}

	m.MaxModule.Set(float64(st.MaxModule))
	if !st.WallClock.IsZero() {
		m.WallClock.Set(float64(st.WallClock.Unix()))
	}
	m.last = st
}

// Observe records the duration of the assembly of a spill.
func (m *Monitor) Observe(d time.Duration) {
	m.SpillDuration.Observe(d.Seconds())
}
