// Package metrics exposes counters about the lines received from the device.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "serlog"

// Metrics holds the counters updated by the line logger. A nil *Metrics is
// valid and discards all updates.
type Metrics struct {
	registry *prometheus.Registry

	linesRead       prometheus.Counter
	linesSkipped    prometheus.Counter
	recordsWritten  prometheus.Counter
	droppedBytes    prometheus.Counter
	lastRecordStamp prometheus.Gauge
}

// New creates a new set of metrics registered on its own registry, labeled
// with the given serial device.
func New(device string) *Metrics {
	labels := prometheus.Labels{"device": device}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		linesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "lines_read_total",
			Help:        "Number of lines read from the serial device",
			ConstLabels: labels,
		}),
		linesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "lines_skipped_total",
			Help:        "Number of lines discarded because they were empty",
			ConstLabels: labels,
		}),
		recordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "records_written_total",
			Help:        "Number of records appended to the log file",
			ConstLabels: labels,
		}),
		droppedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "decode_dropped_bytes_total",
			Help:        "Number of invalid UTF-8 bytes dropped while decoding lines",
			ConstLabels: labels,
		}),
		lastRecordStamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_record_timestamp_seconds",
			Help:        "Unix time of the last record appended to the log file",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(
		m.linesRead,
		m.linesSkipped,
		m.recordsWritten,
		m.droppedBytes,
		m.lastRecordStamp,
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// LineRead records a line read from the device and the number of bytes
// dropped while decoding it.
func (m *Metrics) LineRead(dropped int) {
	if m == nil {
		return
	}
	m.linesRead.Inc()
	if dropped > 0 {
		m.droppedBytes.Add(float64(dropped))
	}
}

// LineSkipped records an empty line that was discarded.
func (m *Metrics) LineSkipped() {
	if m == nil {
		return
	}
	m.linesSkipped.Inc()
}

// RecordWritten records a record appended at the given time.
func (m *Metrics) RecordWritten(t time.Time) {
	if m == nil {
		return
	}
	m.recordsWritten.Inc()
	m.lastRecordStamp.Set(float64(t.Unix()))
}

// Handler returns the HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return mux
}

// Serve serves the metrics on the given address until the context is
// canceled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "failed to listen for metrics")
	}
	return m.serve(ctx, l)
}

func (m *Metrics) serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "metrics server failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "failed to shut down metrics server")
		}
		return ctx.Err()
	}
}
