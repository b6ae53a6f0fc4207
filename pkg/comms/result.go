package comms

import "time"

// Result is the outcome of one request/response exchange. A Result is a
// value: once returned it is never mutated by the channel.
//
// Latency covers the full round trip, from just before the request was
// written until the response arrived. It is zero when the exchange did
// not complete.
type Result struct {
	Success bool
	Data    []byte
	Latency time.Duration
	Err     error
}
