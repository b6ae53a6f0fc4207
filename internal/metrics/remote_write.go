package metrics

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"dutlink-go/internal/config"

	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
)

// StartRemoteWrite pushes counter snapshots to a Prometheus
// remote-write endpoint on the configured interval until ctx ends.
func StartRemoteWrite(ctx context.Context, cfg config.MetricsExportConfig, m *Metrics) {
	if !cfg.Enabled || cfg.RemoteWriteURL == "" {
		return
	}
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	client := &http.Client{Timeout: 5 * time.Second}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sendSnapshot(ctx, client, cfg.RemoteWriteURL, m.Snapshot())
			}
		}
	}()
}

func sendSnapshot(ctx context.Context, client *http.Client, url string, snap Snapshot) {
	now := time.Now().UnixMilli()
	series := []prompb.TimeSeries{
		newSeries("dutlink_packets_sent_total", snap.PacketsSent, now),
		newSeries("dutlink_packets_received_total", snap.PacketsReceived, now),
		newSeries("dutlink_bytes_sent_total", snap.BytesSent, now),
		newSeries("dutlink_bytes_received_total", snap.BytesReceived, now),
		newSeries("dutlink_errors_total", snap.Errors, now),
	}
	req := &prompb.WriteRequest{Timeseries: series}
	data, err := req.Marshal()
	if err != nil {
		return
	}
	compressed := snappy.Encode(nil, data)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(compressed))
	if err != nil {
		return
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	resp, err := client.Do(httpReq)
	if err != nil {
		return
	}
	// Drain so the connection can be reused across ticks.
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func newSeries(name string, value uint64, ts int64) prompb.TimeSeries {
	return prompb.TimeSeries{
		Labels:  []prompb.Label{{Name: "__name__", Value: name}},
		Samples: []prompb.Sample{{Value: float64(value), Timestamp: ts}},
	}
}
