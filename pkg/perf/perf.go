// Package perf provides a two-timestamp stopwatch for wrapping
// arbitrary operation sequences, independent of any channel.
package perf

import "time"

// Monitor measures one interval between Start and Stop. The caller is
// responsible for calling them in order; ElapsedMS reports zero or a
// negative value otherwise.
type Monitor struct {
	start time.Time
	stop  time.Time
}

// Start records the measurement start timestamp.
func (m *Monitor) Start() {
	m.start = time.Now()
}

// Stop records the measurement end timestamp.
func (m *Monitor) Stop() {
	m.stop = time.Now()
}

// ElapsedMS returns the measured interval in fractional milliseconds.
func (m *Monitor) ElapsedMS() float64 {
	return float64(m.stop.Sub(m.start)) / float64(time.Millisecond)
}

// ThroughputMbps converts bytes moved during the measured interval to
// megabits per second, returning 0 instead of dividing by a
// non-positive elapsed time.
func (m *Monitor) ThroughputMbps(bytes int) float64 {
	sec := m.ElapsedMS() / 1000
	if sec <= 0 {
		return 0
	}
	return float64(bytes) * 8 / (sec * 1e6)
}
