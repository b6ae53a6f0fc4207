package network

import (
	"bytes"
	"net"
	"testing"
)

func TestBuildAndParseFrame(t *testing.T) {
	dst, _ := net.ParseMAC("ff:ff:ff:ff:ff:ff")
	src, _ := net.ParseMAC("02:00:00:00:00:01")
	payload := []byte("probe-payload")

	raw, err := BuildFrame(dst, src, EtherTypeTest, payload)
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	if len(raw) != 14+len(payload) {
		t.Fatalf("unexpected frame length: %d", len(raw))
	}

	frame, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("parse frame: %v", err)
	}
	if !bytes.Equal(frame.Dst, dst) || !bytes.Equal(frame.Src, src) {
		t.Fatalf("address mismatch: %s -> %s", frame.Src, frame.Dst)
	}
	if frame.EtherType != EtherTypeTest {
		t.Fatalf("unexpected ethertype: 0x%04X", frame.EtherType)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("payload mismatch: %q", frame.Payload)
	}
}

func TestParseFrameTooShort(t *testing.T) {
	if _, err := ParseFrame([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Fatalf("expected error for truncated frame")
	}
}
