// Package dut manages the out-of-band control connection to the
// device under test: a plain TCP or UDP link for data exchange plus
// CLI command execution against the device shell. This sits next to
// the raw link channel, not on top of it.
package dut

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"dutlink-go/internal/logger"
)

const (
	DefaultTimeout = time.Second
	DefaultPrompt  = "DUT>"

	defaultRecvSize = 4096
	retryPause      = 200 * time.Millisecond
)

var ErrNotConnected = errors.New("not connected to DUT")

// Config describes how to reach the DUT control endpoint.
type Config struct {
	Address  string        // host:port
	Protocol string        // "tcp" or "udp", default tcp
	Timeout  time.Duration // per-operation deadline
	Retries  int           // extra connection attempts beyond the first
	Prompt   string        // CLI prompt marking end of command output
}

// Conn is a single-owner control connection. Like the raw channel it
// carries no internal locking; one goroutine owns it.
type Conn struct {
	cfg  Config
	log  *logger.Logger
	conn net.Conn
}

func New(cfg Config, log *logger.Logger) *Conn {
	if cfg.Protocol == "" {
		cfg.Protocol = "tcp"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	return &Conn{cfg: cfg, log: log}
}

// Connect dials the DUT, retrying up to cfg.Retries extra times with a
// short pause between attempts. Idempotent while connected.
func (c *Conn) Connect() error {
	if c.conn != nil {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		conn, err := net.DialTimeout(c.cfg.Protocol, c.cfg.Address, c.cfg.Timeout)
		if err == nil {
			c.conn = conn
			if c.log != nil {
				c.log.Info("dut connected", map[string]any{
					"address":  c.cfg.Address,
					"protocol": c.cfg.Protocol,
					"attempt":  attempt + 1,
				})
			}
			return nil
		}
		lastErr = err
		if attempt < c.cfg.Retries {
			time.Sleep(retryPause)
		}
	}
	return fmt.Errorf("connect to DUT %s: %w", c.cfg.Address, lastErr)
}

// Close drops the connection. Idempotent, never fails.
func (c *Conn) Close() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Connected reports whether a connection is currently held.
func (c *Conn) Connected() bool {
	return c.conn != nil
}

// Send writes data within the configured deadline.
func (c *Conn) Send(data []byte) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return err
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("send to DUT: %w", err)
	}
	return nil
}

// Receive reads one chunk of up to maxSize bytes. A deadline with no
// data is reported as (nil, nil), matching the raw channel's
// timeout-is-not-an-error convention.
func (c *Conn) Receive(maxSize int) ([]byte, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	if maxSize <= 0 {
		maxSize = defaultRecvSize
	}
	buf := make([]byte, maxSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.Timeout))
	n, err := c.conn.Read(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, nil
		}
		return nil, fmt.Errorf("receive from DUT: %w", err)
	}
	return buf[:n], nil
}

// Exchange sends a request and waits for one response chunk, returning
// the response and the round-trip time.
func (c *Conn) Exchange(request []byte) ([]byte, time.Duration, error) {
	start := time.Now()
	if err := c.Send(request); err != nil {
		return nil, 0, err
	}
	response, err := c.Receive(defaultRecvSize)
	if err != nil {
		return nil, 0, err
	}
	return response, time.Since(start), nil
}

// Command executes one CLI command on the DUT shell and returns its
// output with the command echo and trailing prompt stripped. Reading
// stops at the prompt or at the deadline, whichever comes first.
func (c *Conn) Command(cmd string) (string, error) {
	if c.conn == nil {
		return "", ErrNotConnected
	}
	if err := c.Send([]byte(cmd + "\n")); err != nil {
		return "", err
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	var out strings.Builder
	buf := make([]byte, 1024)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if strings.Contains(out.String(), c.cfg.Prompt) {
			break
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				break
			}
			return "", fmt.Errorf("read command output: %w", err)
		}
	}
	return cleanOutput(out.String(), cmd, c.cfg.Prompt), nil
}

// Commands runs a sequence of CLI commands, stopping at the first
// failure.
func (c *Conn) Commands(cmds []string) ([]string, error) {
	outputs := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		out, err := c.Command(cmd)
		if err != nil {
			return outputs, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func cleanOutput(raw, cmd, prompt string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var keep []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == cmd || strings.HasPrefix(trimmed, prompt) {
			continue
		}
		keep = append(keep, trimmed)
	}
	return strings.Join(keep, "\n")
}
