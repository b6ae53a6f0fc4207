package comms

import (
	"time"

	"dutlink-go/internal/logger"
	"dutlink-go/internal/platform"
)

// Option configures a Channel at construction time.
type Option func(*Channel)

// WithTimeout overrides the default 1s receive timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.timeout = d
	}
}

// WithReceiveBuffer overrides the default 4096-byte receive buffer
// used by Receive when the caller passes no size and by the round-trip
// operations. Non-positive values are ignored.
func WithReceiveBuffer(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.recvSize = n
		}
	}
}

// WithLogger attaches a log sink. The channel works without one; the
// stress test summary is only emitted when a sink is present.
func WithLogger(log *logger.Logger) Option {
	return func(c *Channel) {
		c.log = log
	}
}

// WithOpenFunc replaces the raw socket constructor. Tests use this to
// substitute a fake socket for the AF_PACKET implementation.
func WithOpenFunc(open func(ifname string, timeout time.Duration) (platform.Socket, error)) Option {
	return func(c *Channel) {
		c.open = open
	}
}
