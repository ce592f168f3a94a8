package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config contains configuration of the telemetry endpoint.
type Config struct {
	Port int `yaml:"port"`
}

// Measurements collects vault measurements for prometheus.
type Measurements struct {
	mux        sync.RWMutex
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Observer
}

// New creates a new Measurements collector.
func New() *Measurements {
	return &Measurements{
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Observer),
	}
}

// CreateUpdateObservableCounter creates or updates an observable counter.
func (m *Measurements) CreateUpdateObservableCounter(name, description string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, ok := m.counters[name]; ok {
		return
	}
	m.counters[name] = promauto.NewCounter(prometheus.CounterOpts{
		Name: name,
		Help: description,
	})
}

// IncrementCounter increments the counter if an entity with the given name exists.
func (m *Measurements) IncrementCounter(name string) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if v, ok := m.counters[name]; ok {
		v.Inc()
		return true
	}
	return false
}

// CreateUpdateObservableGauge creates or updates an observable gauge.
func (m *Measurements) CreateUpdateObservableGauge(name, description string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, ok := m.gauges[name]; ok {
		return
	}
	m.gauges[name] = promauto.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: description,
	})
}

// SetGauge sets the gauge value if an entity with the given name exists.
func (m *Measurements) SetGauge(name string, value float64) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if v, ok := m.gauges[name]; ok {
		v.Set(value)
		return true
	}
	return false
}

// CreateUpdateObservableHistogram creates or updates an observable histogram.
func (m *Measurements) CreateUpdateObservableHistogram(name, description string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, ok := m.histograms[name]; ok {
		return
	}
	m.histograms[name] = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: name,
		Help: description,
	})
}

// RecordHistogramTime records histogram time if an entity with the given name exists.
func (m *Measurements) RecordHistogramTime(name string, t time.Duration) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if v, ok := m.histograms[name]; ok {
		v.Observe(float64(t.Microseconds()))
		return true
	}
	return false
}

// Run starts the server with the prometheus telemetry endpoint.
// This function blocks. To stop it cancel the ctx.
func Run(ctx context.Context, cancel context.CancelFunc, cfg Config) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}

	var err error
	go func() {
		if err = srv.ListenAndServe(); err != nil {
			cancel()
			return
		}
	}()

	<-ctx.Done()

	errx := srv.Shutdown(context.Background())
	if err == nil || err == http.ErrServerClosed {
		return errx
	}
	return err
}
