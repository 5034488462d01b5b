package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/QuantaFTL/internal/ftl"
)

// StatsSource is anything that can summarize a device.
type StatsSource interface {
	Stats() ftl.Stats
}

// DeviceCollector exposes device state gauges. Each scrape takes one Stats
// snapshot so all gauges describe the same moment.
type DeviceCollector struct {
	src StatsSource

	freeBlocks  *prometheus.Desc
	wear        *prometheus.Desc
	overMaxWear *prometheus.Desc
	pages       *prometheus.Desc
	mappedPages *prometheus.Desc
}

// NewDeviceCollector creates a collector for src. Register it with a
// prometheus.Registerer.
func NewDeviceCollector(src StatsSource) *DeviceCollector {
	return &DeviceCollector{
		src: src,
		freeBlocks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "free_blocks"),
			"Blocks available for allocation", []string{"device"}, nil),
		wear: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "block_wear"),
			"Lowest and highest block wear counter", []string{"device", "bound"}, nil),
		overMaxWear: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "blocks_over_max_wear"),
			"Blocks past their nominal endurance", []string{"device"}, nil),
		pages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pages"),
			"Physical pages by status", []string{"device", "status"}, nil),
		mappedPages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "mapped_logical_pages"),
			"Logical pages with a mapping", []string{"device"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (d *DeviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- d.freeBlocks
	ch <- d.wear
	ch <- d.overMaxWear
	ch <- d.pages
	ch <- d.mappedPages
}

// Collect implements prometheus.Collector.
func (d *DeviceCollector) Collect(ch chan<- prometheus.Metric) {
	st := d.src.Stats()
	id := st.DeviceID

	ch <- prometheus.MustNewConstMetric(d.freeBlocks, prometheus.GaugeValue, float64(st.FreeBlocks), id)
	ch <- prometheus.MustNewConstMetric(d.wear, prometheus.GaugeValue, float64(st.MinWear), id, "min")
	ch <- prometheus.MustNewConstMetric(d.wear, prometheus.GaugeValue, float64(st.MaxWear), id, "max")
	ch <- prometheus.MustNewConstMetric(d.overMaxWear, prometheus.GaugeValue, float64(st.BlocksOverMaxWear), id)
	ch <- prometheus.MustNewConstMetric(d.pages, prometheus.GaugeValue, float64(st.FreePages), id, "free")
	ch <- prometheus.MustNewConstMetric(d.pages, prometheus.GaugeValue, float64(st.ValidPages), id, "valid")
	ch <- prometheus.MustNewConstMetric(d.pages, prometheus.GaugeValue, float64(st.InvalidPages), id, "invalid")
	ch <- prometheus.MustNewConstMetric(d.mappedPages, prometheus.GaugeValue, float64(st.MappedPages), id)
}
