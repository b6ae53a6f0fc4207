package config

import (
	"bytes"
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Link    LinkConfig    `mapstructure:"link"`
	Probe   ProbeConfig   `mapstructure:"probe"`
	Stress  StressConfig  `mapstructure:"stress"`
	DUT     DUTConfig     `mapstructure:"dut"`
	API     APIConfig     `mapstructure:"api"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// LinkConfig describes the raw link-layer channel. Interface is the
// only required field in the whole file.
type LinkConfig struct {
	Interface     string `mapstructure:"interface"`
	TimeoutMS     int    `mapstructure:"timeout_ms"`
	ReceiveBuffer int    `mapstructure:"receive_buffer"`
}

// ProbeConfig drives the periodic round-trip probe loop.
type ProbeConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	IntervalMS int    `mapstructure:"interval_ms"`
	Size       int    `mapstructure:"size"`
	DstMAC     string `mapstructure:"dst_mac"`
	SrcMAC     string `mapstructure:"src_mac"`
}

type StressConfig struct {
	DurationMS int `mapstructure:"duration_ms"`
	PacketSize int `mapstructure:"packet_size"`
}

// DUTConfig describes the out-of-band control connection. Optional;
// leave address empty when the DUT has no control endpoint.
type DUTConfig struct {
	Address   string `mapstructure:"address"`
	Protocol  string `mapstructure:"protocol"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
	Retries   int    `mapstructure:"retries"`
	Prompt    string `mapstructure:"prompt"`
}

type APIConfig struct {
	Address string `mapstructure:"address"`
}

type MetricsConfig struct {
	Address string              `mapstructure:"address"`
	Path    string              `mapstructure:"path"`
	Export  MetricsExportConfig `mapstructure:"export"`
}

type MetricsExportConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	RemoteWriteURL  string `mapstructure:"remote_write_url"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return finish(v)
}

func LoadFromBytes(data []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Link.TimeoutMS == 0 {
		cfg.Link.TimeoutMS = 1000
	}
	if cfg.Link.ReceiveBuffer == 0 {
		cfg.Link.ReceiveBuffer = 4096
	}
	if cfg.Probe.IntervalMS == 0 {
		cfg.Probe.IntervalMS = 1000
	}
	if cfg.Probe.Size == 0 {
		cfg.Probe.Size = 64
	}
	if cfg.Probe.DstMAC == "" {
		cfg.Probe.DstMAC = "ff:ff:ff:ff:ff:ff"
	}
	if cfg.Stress.DurationMS == 0 {
		cfg.Stress.DurationMS = 1000
	}
	if cfg.Stress.PacketSize == 0 {
		cfg.Stress.PacketSize = 64
	}
	if cfg.DUT.Protocol == "" {
		cfg.DUT.Protocol = "tcp"
	}
	if cfg.DUT.TimeoutMS == 0 {
		cfg.DUT.TimeoutMS = 1000
	}
	if cfg.DUT.Prompt == "" {
		cfg.DUT.Prompt = "DUT>"
	}
	if cfg.API.Address == "" {
		cfg.API.Address = ":8080"
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Export.IntervalSeconds == 0 {
		cfg.Metrics.Export.IntervalSeconds = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func validate(cfg *Config) error {
	if cfg.Link.Interface == "" {
		return fmt.Errorf("link.interface is required")
	}
	if cfg.Link.TimeoutMS < 0 {
		return fmt.Errorf("link.timeout_ms must not be negative")
	}
	if cfg.DUT.Address != "" && cfg.DUT.Protocol != "tcp" && cfg.DUT.Protocol != "udp" {
		return fmt.Errorf("dut.protocol must be tcp or udp, got %q", cfg.DUT.Protocol)
	}
	if cfg.Metrics.Export.Enabled && cfg.Metrics.Export.RemoteWriteURL == "" {
		return fmt.Errorf("metrics.export.remote_write_url is required when export is enabled")
	}
	return nil
}
