// Package metrics exports FTL activity and device state to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	ftlerrors "github.com/dshills/QuantaFTL/internal/errors"
	"github.com/dshills/QuantaFTL/internal/ftl"
)

const namespace = "ftl"

// Collector records FTL operation outcomes. It implements ftl.Recorder.
type Collector struct {
	Writes         *prometheus.CounterVec
	Reads          *prometheus.CounterVec
	Erases         prometheus.Counter
	Passes         *prometheus.CounterVec
	PagesRelocated prometheus.Counter
	PagesDropped   prometheus.Counter
	LastPassSpread prometheus.Gauge
}

// New creates a collector and registers it with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "writes_total",
				Help:      "Logical page writes by result",
			},
			[]string{"result"},
		),
		Reads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reads_total",
				Help:      "Logical page reads by result",
			},
			[]string{"result"},
		),
		Erases: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "block_erases_total",
				Help:      "Block erases",
			},
		),
		Passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wear_leveling_passes_total",
				Help:      "Wear-leveling passes by outcome",
			},
			[]string{"outcome"},
		),
		PagesRelocated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_relocated_total",
				Help:      "Valid pages moved by wear leveling",
			},
		),
		PagesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_dropped_total",
				Help:      "Valid pages lost because the cold block had no free page",
			},
		),
		LastPassSpread: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_pass_wear_spread",
				Help:      "Max minus min wear seen by the most recent wear-leveling pass",
			},
		),
	}

	reg.MustRegister(c.Writes, c.Reads, c.Erases, c.Passes, c.PagesRelocated, c.PagesDropped, c.LastPassSpread)
	return c
}

// Result maps an operation error to a metric label.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	switch ftlerrors.GetError(err).Code {
	case ftlerrors.InvalidAddress:
		return "invalid_address"
	case ftlerrors.Unmapped:
		return "unmapped"
	case ftlerrors.StalePage:
		return "stale_page"
	case ftlerrors.DeviceFull:
		return "device_full"
	case ftlerrors.BlockFull:
		return "block_full"
	default:
		return "error"
	}
}

// RecordWrite implements ftl.Recorder.
func (c *Collector) RecordWrite(err error) {
	c.Writes.WithLabelValues(Result(err)).Inc()
}

// RecordRead implements ftl.Recorder.
func (c *Collector) RecordRead(err error) {
	c.Reads.WithLabelValues(Result(err)).Inc()
}

// RecordErase implements ftl.Recorder.
func (c *Collector) RecordErase(int) {
	c.Erases.Inc()
}

// RecordPass implements ftl.Recorder.
func (c *Collector) RecordPass(r ftl.PassReport) {
	outcome := "triggered"
	switch r.Reason {
	case ftl.ReasonNoFreeBlock:
		outcome = "no_free_block"
	case ftl.ReasonBelowThreshold:
		outcome = "below_threshold"
	}
	c.Passes.WithLabelValues(outcome).Inc()
	c.PagesRelocated.Add(float64(r.Relocated))
	c.PagesDropped.Add(float64(r.Dropped))
	if r.HotBlock >= 0 && r.ColdBlock >= 0 {
		c.LastPassSpread.Set(float64(r.HotWear - r.ColdWear))
	}
}
