//go:build !linux

package platform

import "time"

// Open always fails: AF_PACKET sockets are Linux-only.
func Open(string, time.Duration) (Socket, error) {
	return nil, ErrUnsupported
}
