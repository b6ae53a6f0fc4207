// Package comms implements the raw link-layer communication channel
// used to exchange frames with a device under test. A Channel owns one
// AF_PACKET socket bound to one interface and keeps aggregate
// statistics for everything that moves through it.
//
// A Channel is single-owner: all methods must be called from one
// goroutine for the channel's entire lifetime. Neither the socket
// handle nor the statistics record carries internal locking.
//
// Initialize requires root or CAP_NET_RAW; see internal/platform.
package comms

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"dutlink-go/internal/logger"
	"dutlink-go/internal/platform"
)

const (
	// DefaultTimeout bounds every receive unless overridden.
	DefaultTimeout = time.Second

	// DefaultRecvSize is the receive buffer size used when the caller
	// does not pass one.
	DefaultRecvSize = 4096

	// DefaultStressSize is the stress test payload size.
	DefaultStressSize = 64

	stressFill = 0xAA
)

var (
	// ErrNotReady reports a data operation on a channel that is not in
	// the ready state. No OS call was attempted.
	ErrNotReady = errors.New("channel not ready")

	// ErrClosed reports an Initialize on a closed channel. Closed is
	// terminal; build a new channel instead.
	ErrClosed = errors.New("channel closed")

	// ErrShortWrite reports that the OS accepted only part of the
	// payload in one call. The written bytes still count as sent.
	ErrShortWrite = errors.New("short write")

	// Exchange failure classes, distinguishable with errors.Is.
	ErrSendRequest     = errors.New("failed to send request")
	ErrReceiveResponse = errors.New("failed to receive response")
	ErrResponseTimeout = errors.New("response timeout")
)

type state int

const (
	stateUninitialized state = iota
	stateReady
	stateClosed
)

// Channel is the communication engine for one logical DUT link.
type Channel struct {
	ifname   string
	timeout  time.Duration
	recvSize int
	log      *logger.Logger
	open     func(string, time.Duration) (platform.Socket, error)

	sock  platform.Socket
	state state
	stats Stats
}

// New builds an uninitialized channel for the named interface.
func New(ifname string, opts ...Option) *Channel {
	c := &Channel{
		ifname:   ifname,
		timeout:  DefaultTimeout,
		recvSize: DefaultRecvSize,
		open:     platform.Open,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize opens and binds the raw socket. Idempotent while ready;
// fails on a closed channel. On failure the channel stays
// uninitialized and holds no descriptor.
func (c *Channel) Initialize() error {
	switch c.state {
	case stateReady:
		return nil
	case stateClosed:
		return ErrClosed
	}

	sock, err := c.open(c.ifname, c.timeout)
	if err != nil {
		return fmt.Errorf("initialize channel on %q: %w", c.ifname, err)
	}
	c.sock = sock
	c.state = stateReady
	if c.log != nil {
		c.log.Info("channel ready", map[string]any{"interface": c.ifname, "timeout_ms": c.timeout.Milliseconds()})
	}
	return nil
}

// Close releases the socket if held. Idempotent, never fails, and
// leaves the channel permanently closed.
func (c *Channel) Close() error {
	if c.sock != nil {
		_ = c.sock.Close()
		c.sock = nil
	}
	c.state = stateClosed
	return nil
}

// IsReady reports whether data operations are currently allowed.
func (c *Channel) IsReady() bool {
	return c.state == stateReady
}

// Interface returns the interface name the channel was built for.
func (c *Channel) Interface() string {
	return c.ifname
}

// SetTimeout changes the receive timeout, updating the live socket
// option so the next receive already honors it.
func (c *Channel) SetTimeout(d time.Duration) {
	c.timeout = d
	if c.state == stateReady && c.sock != nil {
		_ = c.sock.SetReadTimeout(d)
	}
}

// Send writes one frame in a single blocking call. The measured
// duration is the write attempt only, not network latency; on success
// it is folded into the latency EWMA. A short write counts as sent
// bytes but is reported as a failure.
func (c *Channel) Send(payload []byte) error {
	if c.state != stateReady {
		return ErrNotReady
	}

	start := time.Now()
	n, err := c.sock.Send(payload)
	if err != nil {
		c.stats.Errors++
		return err
	}

	latencyUS := float64(time.Since(start)) / float64(time.Microsecond)
	c.stats.recordSend(n, latencyUS)

	if n != len(payload) {
		return ErrShortWrite
	}
	return nil
}

// Receive blocks until a frame arrives or the configured timeout
// elapses. It classifies exactly three outcomes:
//
//	data:    n > 0, payload trimmed to n, nil error
//	timeout: 0, nil, nil — not an error and not counted as one
//	failure: -1, nil, err — counted in Errors
//
// Treating the timeout outcome as an error is a caller bug.
func (c *Channel) Receive(maxSize int) (int, []byte, error) {
	if c.state != stateReady {
		return -1, nil, ErrNotReady
	}
	if maxSize <= 0 {
		maxSize = c.recvSize
	}

	buf := make([]byte, maxSize)
	n, err := c.sock.Recv(buf)
	if err != nil {
		if errors.Is(err, platform.ErrTimeout) {
			return 0, nil, nil
		}
		c.stats.Errors++
		return -1, nil, err
	}

	c.stats.recordReceive(n)
	return n, buf[:n], nil
}

// SendAndReceive performs one request/response round trip. The
// reported latency spans from just before the send until the response
// arrived, covering both legs. This is the canonical round-trip
// measurement; MeasureLatency and the probe loop build on it.
func (c *Channel) SendAndReceive(request []byte) Result {
	start := time.Now()

	if err := c.Send(request); err != nil {
		return Result{Err: fmt.Errorf("%w: %v", ErrSendRequest, err)}
	}

	n, data, err := c.Receive(c.recvSize)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %v", ErrReceiveResponse, err)}
	}
	if n == 0 {
		return Result{Err: ErrResponseTimeout}
	}

	return Result{
		Success: true,
		Data:    data,
		Latency: time.Since(start),
	}
}

// BurstSend sends the payloads sequentially, back to back. A failing
// payload is skipped, not retried, and does not stop the burst.
// Returns how many payloads the OS accepted in full.
func (c *Channel) BurstSend(payloads [][]byte) int {
	sent := 0
	for _, p := range payloads {
		if err := c.Send(p); err == nil {
			sent++
		}
	}
	return sent
}

// MeasureLatency returns the round-trip latency for one exchange, or
// -1 when the exchange failed for any reason. Callers that need to
// tell a timeout from a send failure should use SendAndReceive.
func (c *Channel) MeasureLatency(payload []byte) time.Duration {
	res := c.SendAndReceive(payload)
	if !res.Success {
		return -1
	}
	return res.Latency
}

// StressTest sends a fixed 0xAA-filled payload in a tight loop until
// the deadline, with no pacing or back-off. It deliberately measures
// the maximum unthrottled send rate and occupies the calling goroutine
// for the whole duration.
//
// The returned Stats are scoped to this run only. The channel's
// persistent statistics still see every individual send.
func (c *Channel) StressTest(duration time.Duration, packetSize int) Stats {
	if packetSize <= 0 {
		packetSize = DefaultStressSize
	}
	payload := bytes.Repeat([]byte{stressFill}, packetSize)

	var run Stats
	start := time.Now()
	deadline := start.Add(duration)

	for time.Now().Before(deadline) {
		if err := c.Send(payload); err != nil {
			run.Errors++
			continue
		}
		run.PacketsSent++
		run.BytesSent += uint64(packetSize)
	}

	elapsed := time.Since(start)
	if elapsed > 0 && c.log != nil {
		mbps := float64(run.BytesSent) * 8 / elapsed.Seconds() / 1e6
		c.log.Info("stress test complete", map[string]any{
			"packets":    run.PacketsSent,
			"errors":     run.Errors,
			"mbps":       mbps,
			"elapsed_ms": elapsed.Milliseconds(),
		})
	}
	return run
}

// Statistics returns a snapshot of the persistent counters by value.
func (c *Channel) Statistics() Stats {
	return c.stats
}

// ResetStatistics zeroes every counter and the latency EWMA.
func (c *Channel) ResetStatistics() {
	c.stats.reset()
}

// WithChannel builds and initializes a channel on ifname, hands it to
// fn, and closes it on every exit path including a panic inside fn.
func WithChannel(ifname string, opts []Option, fn func(*Channel) error) error {
	c := New(ifname, opts...)
	if err := c.Initialize(); err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}
