package utils

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	mu         sync.RWMutex
}

func NewMetricsCollector(enableRuntimeMetrics bool) *MetricsCollector {
	reg := prometheus.NewRegistry()

	if enableRuntimeMetrics {
		_ = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		_ = reg.Register(collectors.NewGoCollector())
	}

	m := &MetricsCollector{
		registry:   reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	m.registerBuiltins()
	return m
}

func (m *MetricsCollector) registerBuiltins() {
	_ = m.RegisterCounter("lumen_fetch_total", "Page fetches by outcome", "outcome")
	_ = m.RegisterCounter("lumen_audit_total", "Audits by terminal status", "status")
	_ = m.RegisterCounter("lumen_cache_total", "Diagnostic cache lookups", "result")
	_ = m.RegisterCounter("lumen_scanner_errors_total", "Scanner executions degraded to failure", "indicator")
	_ = m.RegisterHistogram("lumen_audit_duration_seconds", "End-to-end audit duration",
		[]float64{0.5, 1, 2.5, 5, 10, 30, 60, 120}, "mode")
	_ = m.RegisterHistogram("lumen_fetch_duration_seconds", "Single page fetch duration",
		prometheus.DefBuckets)
	_ = m.RegisterGauge("lumen_audits_in_flight", "Currently running audits")
}

func (m *MetricsCollector) RegisterCounter(name, help string, labelNames ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.counters[name]; ok {
		return nil
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labelNames)
	if err := m.registry.Register(cv); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			m.counters[name] = are.ExistingCollector.(*prometheus.CounterVec)
			return nil
		}
		return err
	}
	m.counters[name] = cv
	return nil
}

func (m *MetricsCollector) RegisterGauge(name, help string, labelNames ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.gauges[name]; ok {
		return nil
	}
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labelNames)
	if err := m.registry.Register(gv); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			m.gauges[name] = are.ExistingCollector.(*prometheus.GaugeVec)
			return nil
		}
		return err
	}
	m.gauges[name] = gv
	return nil
}

func (m *MetricsCollector) RegisterHistogram(name, help string, buckets []float64, labelNames ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.histograms[name]; ok {
		return nil
	}
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labelNames)
	if err := m.registry.Register(hv); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			m.histograms[name] = are.ExistingCollector.(*prometheus.HistogramVec)
			return nil
		}
		return err
	}
	m.histograms[name] = hv
	return nil
}

func (m *MetricsCollector) Inc(name string, labelValues ...string) {
	m.mu.RLock()
	cv, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		cv.WithLabelValues(labelValues...).Inc()
	}
}

func (m *MetricsCollector) SetGauge(name string, value float64, labelValues ...string) {
	m.mu.RLock()
	gv, ok := m.gauges[name]
	m.mu.RUnlock()
	if ok {
		gv.WithLabelValues(labelValues...).Set(value)
	}
}

func (m *MetricsCollector) AddGauge(name string, delta float64, labelValues ...string) {
	m.mu.RLock()
	gv, ok := m.gauges[name]
	m.mu.RUnlock()
	if ok {
		gv.WithLabelValues(labelValues...).Add(delta)
	}
}

func (m *MetricsCollector) Observe(name string, value float64, labelValues ...string) {
	m.mu.RLock()
	hv, ok := m.histograms[name]
	m.mu.RUnlock()
	if ok {
		hv.WithLabelValues(labelValues...).Observe(value)
	}
}

func (m *MetricsCollector) ObserveDuration(name string, d time.Duration, labelValues ...string) {
	m.Observe(name, d.Seconds(), labelValues...)
}

// Handler exposes the collector's registry for scraping.
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
