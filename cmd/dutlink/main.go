package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"dutlink-go/api"
	"dutlink-go/internal/config"
	"dutlink-go/internal/logger"
	"dutlink-go/internal/metrics"
	"dutlink-go/pkg/comms"
	"dutlink-go/pkg/dut"
	"dutlink-go/pkg/network"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Logging.Level)
	log.Info("config loaded", map[string]any{"path": *configPath})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsSrv := metrics.New()
	go func() {
		if err := metrics.StartServer(ctx, cfg.Metrics); err != nil {
			log.Error("metrics server error", map[string]any{"err": err.Error()})
		}
	}()
	metrics.StartRemoteWrite(ctx, cfg.Metrics.Export, metricsSrv)

	ch := comms.New(cfg.Link.Interface,
		comms.WithTimeout(time.Duration(cfg.Link.TimeoutMS)*time.Millisecond),
		comms.WithReceiveBuffer(cfg.Link.ReceiveBuffer),
		comms.WithLogger(log),
	)
	if err := ch.Initialize(); err != nil {
		// The API still serves status and stats; data operations will
		// report the channel as not ready.
		log.Error("channel unavailable", map[string]any{"err": err.Error()})
	}
	defer ch.Close()

	var dutConn *dut.Conn
	if cfg.DUT.Address != "" {
		dutConn = dut.New(dut.Config{
			Address:  cfg.DUT.Address,
			Protocol: cfg.DUT.Protocol,
			Timeout:  time.Duration(cfg.DUT.TimeoutMS) * time.Millisecond,
			Retries:  cfg.DUT.Retries,
			Prompt:   cfg.DUT.Prompt,
		}, log)
		if err := dutConn.Connect(); err != nil {
			// Command endpoint answers 503 until the device comes up.
			log.Warn("dut control unavailable", map[string]any{"err": err.Error()})
		}
		defer dutConn.Close()
	}

	handlers := &api.Handlers{Channel: ch, DUT: dutConn, Metrics: metricsSrv, Log: log, Stress: cfg.Stress}
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogMiddleware(log))
	api.RegisterRoutes(router, handlers)
	go func() {
		if err := router.Run(cfg.API.Address); err != nil {
			log.Error("api server error", map[string]any{"err": err.Error()})
		}
	}()

	go watchConfig(ctx, *configPath, log, handlers)

	if cfg.Probe.Enabled {
		go runProbeLoop(ctx, cfg.Probe, cfg.Link.Interface, handlers, log)
	}

	<-ctx.Done()
	log.Info("shutdown", nil)
}

func runProbeLoop(ctx context.Context, cfg config.ProbeConfig, ifname string, h *api.Handlers, log *logger.Logger) {
	frame, err := buildProbeFrame(cfg, ifname)
	if err != nil {
		log.Error("invalid probe config", map[string]any{"err": err.Error()})
		return
	}

	ticker := time.NewTicker(time.Duration(cfg.IntervalMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := h.RunProbe(frame)
			if res.Success {
				log.Debug("probe ok", map[string]any{
					"latency_us": res.Latency.Microseconds(),
					"bytes":      len(res.Data),
				})
			} else {
				log.Warn("probe failed", map[string]any{"err": res.Err.Error()})
			}
		}
	}
}

// buildProbeFrame assembles the Ethernet frame the probe loop repeats.
// The payload carries a counting pattern with its CRC-32 in the last
// four bytes so an echoing DUT can be integrity-checked.
func buildProbeFrame(cfg config.ProbeConfig, ifname string) ([]byte, error) {
	dst, err := net.ParseMAC(cfg.DstMAC)
	if err != nil {
		return nil, fmt.Errorf("parse probe dst_mac: %w", err)
	}

	var src net.HardwareAddr
	if cfg.SrcMAC != "" {
		src, err = net.ParseMAC(cfg.SrcMAC)
		if err != nil {
			return nil, fmt.Errorf("parse probe src_mac: %w", err)
		}
	} else if iface, err := net.InterfaceByName(ifname); err == nil {
		src = iface.HardwareAddr
	}
	if len(src) == 0 {
		// Locally administered fallback when the interface has no MAC.
		src = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	}

	size := cfg.Size
	if size < 8 {
		size = 8
	}
	payload := make([]byte, size)
	for i := range payload[:size-4] {
		payload[i] = byte(i)
	}
	crc := network.CRC32(payload[:size-4])
	payload[size-4] = byte(crc >> 24)
	payload[size-3] = byte(crc >> 16)
	payload[size-2] = byte(crc >> 8)
	payload[size-1] = byte(crc)

	return network.BuildFrame(dst, src, network.EtherTypeTest, payload)
}

func watchConfig(ctx context.Context, path string, log *logger.Logger, h *api.Handlers) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("config watch unavailable", map[string]any{"err": err.Error()})
		return
	}
	defer watcher.Close()

	// Watch the directory: editors replace the file on save.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		log.Warn("config watch unavailable", map[string]any{"err": err.Error()})
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-watcher.Events:
			if ev.Name != path || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			cfg, err := config.Load(path)
			if err != nil {
				log.Warn("config reload failed", map[string]any{"err": err.Error()})
				continue
			}
			h.SetTimeout(time.Duration(cfg.Link.TimeoutMS) * time.Millisecond)
			log.SetLevel(cfg.Logging.Level)
			log.Info("config reloaded", map[string]any{
				"timeout_ms": cfg.Link.TimeoutMS,
				"level":      cfg.Logging.Level,
			})
		case err := <-watcher.Errors:
			log.Warn("config watch error", map[string]any{"err": err.Error()})
		}
	}
}
