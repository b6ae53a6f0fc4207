// Package platform provides the OS-level raw socket layer the
// communication channel runs on. Only Linux has a real implementation;
// other platforms get a stub that fails at open time.
package platform

import (
	"errors"
	"time"
)

// Socket is a raw link-layer socket bound to one network interface.
// Implementations are not safe for concurrent use; the owning channel
// serializes all access.
type Socket interface {
	Send(b []byte) (int, error)
	Recv(b []byte) (int, error)
	SetReadTimeout(d time.Duration) error
	Close() error
}

var (
	// ErrTimeout reports that a receive hit the configured deadline
	// before any data arrived.
	ErrTimeout = errors.New("receive timed out")

	// ErrUnsupported reports that raw link-layer sockets are not
	// implemented for this platform.
	ErrUnsupported = errors.New("raw sockets not supported on this platform")
)
