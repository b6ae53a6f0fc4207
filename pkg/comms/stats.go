package comms

// Stats is the aggregate counter record for one channel. Counters only
// grow; Reset is the single way back to zero.
//
// AvgLatencyUS is an exponentially weighted moving average (alpha 0.1)
// folded only from successful send attempts. Receive paths never update
// it, so round-trip exchanges report an accurate rolling average while
// raw receives leave it untouched. That asymmetry is intentional and
// callers should not infer receive latency from it.
type Stats struct {
	PacketsSent     uint64  `json:"packets_sent"`
	PacketsReceived uint64  `json:"packets_received"`
	BytesSent       uint64  `json:"bytes_sent"`
	BytesReceived   uint64  `json:"bytes_received"`
	Errors          uint64  `json:"errors"`
	AvgLatencyUS    float64 `json:"avg_latency_us"`
}

const latencyAlpha = 0.1

func (s *Stats) recordSend(n int, latencyUS float64) {
	s.PacketsSent++
	s.BytesSent += uint64(n)
	if latencyUS > 0 {
		s.AvgLatencyUS = s.AvgLatencyUS*(1-latencyAlpha) + latencyUS*latencyAlpha
	}
}

func (s *Stats) recordReceive(n int) {
	s.PacketsReceived++
	s.BytesReceived += uint64(n)
}

func (s *Stats) reset() {
	*s = Stats{}
}
