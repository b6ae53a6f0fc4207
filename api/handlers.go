// Package api exposes the channel's synchronous operation surface over
// HTTP for the test orchestration layer.
package api

import (
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"dutlink-go/internal/config"
	"dutlink-go/internal/logger"
	"dutlink-go/internal/metrics"
	"dutlink-go/pkg/comms"
	"dutlink-go/pkg/dut"
	"dutlink-go/pkg/perf"

	"github.com/gin-gonic/gin"
)

// Handlers serializes all channel and DUT access behind one mutex: both
// are single-owner and gin runs handlers concurrently.
type Handlers struct {
	mu      sync.Mutex
	Channel *comms.Channel
	DUT     *dut.Conn
	Metrics *metrics.Metrics
	Log     *logger.Logger

	// Stress supplies the duration and packet size used when a stress
	// request omits them.
	Stress config.StressConfig
}

// observeFailure mirrors a failed exchange into metrics. A response
// timeout is transient and stays out of the hard error counter.
func (h *Handlers) observeFailure(err error) {
	if errors.Is(err, comms.ErrResponseTimeout) {
		return
	}
	h.Metrics.IncErrors()
}

// RunProbe performs one round trip under the same lock the HTTP
// handlers use, mirroring the outcome into metrics.
func (h *Handlers) RunProbe(frame []byte) comms.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	res := h.Channel.SendAndReceive(frame)
	if res.Success {
		h.Metrics.ObserveSend(len(frame))
		h.Metrics.ObserveReceive(len(res.Data))
		h.Metrics.SetAvgLatencyUS(h.Channel.Statistics().AvgLatencyUS)
	} else {
		h.observeFailure(res.Err)
	}
	return res
}

// SetTimeout applies a new receive timeout to the live channel.
func (h *Handlers) SetTimeout(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Channel.SetTimeout(d)
}

type payloadRequest struct {
	Payload string `json:"payload"` // hex encoded
}

func (h *Handlers) decodePayload(c *gin.Context) ([]byte, bool) {
	var req payloadRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return nil, false
	}
	data, err := hex.DecodeString(req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be hex"})
		return nil, false
	}
	return data, true
}

func (h *Handlers) GetStatus(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"interface": h.Channel.Interface(),
		"ready":     h.Channel.IsReady(),
	})
}

func (h *Handlers) GetStats(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.JSON(http.StatusOK, h.Channel.Statistics())
}

func (h *Handlers) ResetStats(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Channel.ResetStatistics()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (h *Handlers) SendPacket(c *gin.Context) {
	data, ok := h.decodePayload(c)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.Channel.Send(data); err != nil {
		h.Metrics.IncErrors()
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	h.Metrics.ObserveSend(len(data))
	h.Metrics.SetAvgLatencyUS(h.Channel.Statistics().AvgLatencyUS)
	c.JSON(http.StatusOK, gin.H{"sent": len(data)})
}

func (h *Handlers) Exchange(c *gin.Context) {
	data, ok := h.decodePayload(c)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	res := h.Channel.SendAndReceive(data)
	if !res.Success {
		h.observeFailure(res.Err)
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   res.Err.Error(),
		})
		return
	}
	h.Metrics.ObserveSend(len(data))
	h.Metrics.ObserveReceive(len(res.Data))
	h.Metrics.SetAvgLatencyUS(h.Channel.Statistics().AvgLatencyUS)
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       hex.EncodeToString(res.Data),
		"latency_us": res.Latency.Microseconds(),
	})
}

func (h *Handlers) MeasureLatency(c *gin.Context) {
	data, ok := h.decodePayload(c)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	d := h.Channel.MeasureLatency(data)
	if d < 0 {
		c.JSON(http.StatusOK, gin.H{"latency_us": -1})
		return
	}
	c.JSON(http.StatusOK, gin.H{"latency_us": d.Microseconds()})
}

func (h *Handlers) DUTCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command"`
	}
	if err := c.BindJSON(&req); err != nil || req.Command == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.DUT == nil || !h.DUT.Connected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dut control connection not available"})
		return
	}
	out, err := h.DUT.Command(req.Command)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"output": out})
}

func (h *Handlers) StressTest(c *gin.Context) {
	var req struct {
		DurationMS int `json:"duration_ms"`
		PacketSize int `json:"packet_size"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.DurationMS <= 0 {
		req.DurationMS = h.Stress.DurationMS
	}
	if req.PacketSize <= 0 {
		req.PacketSize = h.Stress.PacketSize
	}
	if req.DurationMS <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration_ms must be positive"})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	var mon perf.Monitor
	mon.Start()
	run := h.Channel.StressTest(time.Duration(req.DurationMS)*time.Millisecond, req.PacketSize)
	mon.Stop()

	mbps := mon.ThroughputMbps(int(run.BytesSent))
	h.Metrics.SetStressThroughput(mbps)
	h.Metrics.SetAvgLatencyUS(h.Channel.Statistics().AvgLatencyUS)

	c.JSON(http.StatusOK, gin.H{
		"stats":           run,
		"throughput_mbps": mbps,
		"elapsed_ms":      mon.ElapsedMS(),
	})
}
