package main

import (
	"testing"

	"dutlink-go/internal/config"
	"dutlink-go/pkg/network"
)

func TestBuildProbeFrame(t *testing.T) {
	cfg := config.ProbeConfig{
		DstMAC: "ff:ff:ff:ff:ff:ff",
		SrcMAC: "02:00:00:00:00:07",
		Size:   64,
	}

	raw, err := buildProbeFrame(cfg, "lo")
	if err != nil {
		t.Fatalf("build probe frame: %v", err)
	}

	frame, err := network.ParseFrame(raw)
	if err != nil {
		t.Fatalf("parse probe frame: %v", err)
	}
	if frame.Dst.String() != "ff:ff:ff:ff:ff:ff" || frame.Src.String() != "02:00:00:00:00:07" {
		t.Fatalf("unexpected addresses: %s -> %s", frame.Src, frame.Dst)
	}
	if frame.EtherType != network.EtherTypeTest {
		t.Fatalf("unexpected ethertype: 0x%04X", frame.EtherType)
	}
	if len(frame.Payload) != 64 {
		t.Fatalf("unexpected payload size: %d", len(frame.Payload))
	}

	// Trailer carries the CRC of the counting pattern.
	body := frame.Payload[:60]
	tail := frame.Payload[60:]
	crc := network.CRC32(body)
	got := uint32(tail[0])<<24 | uint32(tail[1])<<16 | uint32(tail[2])<<8 | uint32(tail[3])
	if got != crc {
		t.Fatalf("payload crc mismatch: got 0x%08X want 0x%08X", got, crc)
	}
}

func TestBuildProbeFrameEnforcesMinimumSize(t *testing.T) {
	cfg := config.ProbeConfig{DstMAC: "ff:ff:ff:ff:ff:ff", SrcMAC: "02:00:00:00:00:01", Size: 1}
	raw, err := buildProbeFrame(cfg, "lo")
	if err != nil {
		t.Fatalf("build probe frame: %v", err)
	}
	frame, err := network.ParseFrame(raw)
	if err != nil {
		t.Fatalf("parse probe frame: %v", err)
	}
	if len(frame.Payload) != 8 {
		t.Fatalf("expected minimum payload of 8, got %d", len(frame.Payload))
	}
}

func TestBuildProbeFrameRejectsBadMAC(t *testing.T) {
	cfg := config.ProbeConfig{DstMAC: "not-a-mac", Size: 64}
	if _, err := buildProbeFrame(cfg, "lo"); err == nil {
		t.Fatalf("expected error for invalid dst mac")
	}
}
