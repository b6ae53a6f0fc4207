//go:build linux

package platform

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

type rawSocket struct {
	fd int
}

// Open creates an AF_PACKET socket receiving all protocols, binds it to
// the named interface and applies the receive timeout. Creating this
// socket kind requires root or CAP_NET_RAW. On failure no descriptor is
// left behind.
func Open(ifname string, timeout time.Duration) (Socket, error) {
	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		if err == unix.EPERM || err == unix.EACCES {
			return nil, fmt.Errorf("create raw socket: %w (requires root or CAP_NET_RAW)", err)
		}
		return nil, fmt.Errorf("create raw socket: %w", err)
	}

	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("resolve interface %q: %w", ifname, err)
	}

	sll := &unix.SockaddrLinklayer{
		Protocol: proto,
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, sll); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind to interface %q: %w", ifname, err)
	}

	s := &rawSocket{fd: fd}
	if err := s.SetReadTimeout(timeout); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return s, nil
}

func (s *rawSocket) Send(b []byte) (int, error) {
	n, err := unix.Write(s.fd, b)
	if err != nil {
		return 0, fmt.Errorf("send: %w", err)
	}
	return n, nil
}

func (s *rawSocket) Recv(b []byte) (int, error) {
	n, err := unix.Read(s.fd, b)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrTimeout
		}
		return 0, fmt.Errorf("recv: %w", err)
	}
	return n, nil
}

// SetReadTimeout updates SO_RCVTIMEO on the live descriptor, taking
// effect for the next Recv call.
func (s *rawSocket) SetReadTimeout(d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	if err := unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("set receive timeout: %w", err)
	}
	return nil
}

func (s *rawSocket) Close() error {
	return unix.Close(s.fd)
}

// htons converts a short to network byte order for the AF_PACKET
// protocol field.
func htons(v uint16) uint16 {
	return v<<8 | v>>8
}
