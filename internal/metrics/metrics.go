// Package metrics exports channel statistics to Prometheus. The
// channel itself stays metrics-free; the agent observes operation
// outcomes into this mirror.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"dutlink-go/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	PacketsSentTotal     prometheus.Counter
	PacketsReceivedTotal prometheus.Counter
	BytesSentTotal       prometheus.Counter
	BytesReceivedTotal   prometheus.Counter
	ErrorsTotal          prometheus.Counter
	AvgLatencyUS         prometheus.Gauge
	StressThroughputMbps prometheus.Gauge

	sentCount  atomic.Uint64
	recvCount  atomic.Uint64
	sentBytes  atomic.Uint64
	recvBytes  atomic.Uint64
	errorCount atomic.Uint64
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PacketsSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dutlink_packets_sent_total",
			Help: "Total number of frames sent to the DUT",
		}),
		PacketsReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dutlink_packets_received_total",
			Help: "Total number of frames received from the DUT",
		}),
		BytesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dutlink_bytes_sent_total",
			Help: "Total bytes sent to the DUT",
		}),
		BytesReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dutlink_bytes_received_total",
			Help: "Total bytes received from the DUT",
		}),
		ErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dutlink_errors_total",
			Help: "Total hard I/O errors on the link",
		}),
		AvgLatencyUS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dutlink_avg_latency_us",
			Help: "Rolling average send latency in microseconds",
		}),
		StressThroughputMbps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dutlink_stress_throughput_mbps",
			Help: "Throughput achieved by the last stress run",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.PacketsSentTotal,
		m.PacketsReceivedTotal,
		m.BytesSentTotal,
		m.BytesReceivedTotal,
		m.ErrorsTotal,
		m.AvgLatencyUS,
		m.StressThroughputMbps,
	)
	return m
}

func (m *Metrics) ObserveSend(n int) {
	if n < 0 {
		return
	}
	m.sentCount.Add(1)
	m.sentBytes.Add(uint64(n))
	m.PacketsSentTotal.Inc()
	m.BytesSentTotal.Add(float64(n))
}

func (m *Metrics) ObserveReceive(n int) {
	if n < 0 {
		return
	}
	m.recvCount.Add(1)
	m.recvBytes.Add(uint64(n))
	m.PacketsReceivedTotal.Inc()
	m.BytesReceivedTotal.Add(float64(n))
}

func (m *Metrics) IncErrors() {
	m.errorCount.Add(1)
	m.ErrorsTotal.Inc()
}

func (m *Metrics) SetAvgLatencyUS(v float64) {
	m.AvgLatencyUS.Set(v)
}

func (m *Metrics) SetStressThroughput(mbps float64) {
	m.StressThroughputMbps.Set(mbps)
}

type Snapshot struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	Errors          uint64
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		PacketsSent:     m.sentCount.Load(),
		PacketsReceived: m.recvCount.Load(),
		BytesSent:       m.sentBytes.Load(),
		BytesReceived:   m.recvBytes.Load(),
		Errors:          m.errorCount.Load(),
	}
}

// StartServer serves the Prometheus scrape endpoint until ctx ends.
func StartServer(ctx context.Context, cfg config.MetricsConfig) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Address,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
