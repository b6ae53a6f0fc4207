package comms

import (
	"math"
	"testing"
)

func TestLatencyEWMAFold(t *testing.T) {
	var s Stats

	s.recordSend(10, 100)
	if math.Abs(s.AvgLatencyUS-10) > 1e-9 {
		t.Fatalf("first fold: got %v, want 10", s.AvgLatencyUS)
	}
	s.recordSend(10, 100)
	if math.Abs(s.AvgLatencyUS-19) > 1e-9 {
		t.Fatalf("second fold: got %v, want 19", s.AvgLatencyUS)
	}

	// A zero sample leaves the average alone.
	s.recordSend(10, 0)
	if math.Abs(s.AvgLatencyUS-19) > 1e-9 {
		t.Fatalf("zero sample moved the average: %v", s.AvgLatencyUS)
	}
	if s.PacketsSent != 3 || s.BytesSent != 30 {
		t.Fatalf("unexpected counters: %+v", s)
	}
}

func TestReceiveNeverTouchesEWMA(t *testing.T) {
	var s Stats
	s.recordReceive(128)
	s.recordReceive(64)
	if s.AvgLatencyUS != 0 {
		t.Fatalf("receive folded the EWMA: %v", s.AvgLatencyUS)
	}
	if s.PacketsReceived != 2 || s.BytesReceived != 192 {
		t.Fatalf("unexpected counters: %+v", s)
	}
}
