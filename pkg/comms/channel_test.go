package comms

import (
	"errors"
	"testing"
	"time"

	"dutlink-go/internal/platform"
)

type recvStep struct {
	data  []byte
	err   error
	delay time.Duration
}

// fakeSocket scripts send/receive outcomes and counts every call so
// tests can prove the channel never touches the OS out of state.
type fakeSocket struct {
	sendCalls    int
	recvCalls    int
	closeCalls   int
	timeoutCalls int
	lastTimeout  time.Duration

	sendScript []error
	shortWrite bool
	recvScript []recvStep
}

func (f *fakeSocket) Send(b []byte) (int, error) {
	f.sendCalls++
	if len(f.sendScript) > 0 {
		err := f.sendScript[0]
		f.sendScript = f.sendScript[1:]
		if err != nil {
			return 0, err
		}
	}
	if f.shortWrite {
		return len(b) / 2, nil
	}
	return len(b), nil
}

func (f *fakeSocket) Recv(b []byte) (int, error) {
	f.recvCalls++
	if len(f.recvScript) == 0 {
		return 0, platform.ErrTimeout
	}
	step := f.recvScript[0]
	f.recvScript = f.recvScript[1:]
	if step.delay > 0 {
		time.Sleep(step.delay)
	}
	if step.err != nil {
		return 0, step.err
	}
	return copy(b, step.data), nil
}

func (f *fakeSocket) SetReadTimeout(d time.Duration) error {
	f.timeoutCalls++
	f.lastTimeout = d
	return nil
}

func (f *fakeSocket) Close() error {
	f.closeCalls++
	return nil
}

type fakeOpener struct {
	sock  *fakeSocket
	err   error
	calls int
}

func (o *fakeOpener) open(ifname string, timeout time.Duration) (platform.Socket, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	o.sock.lastTimeout = timeout
	return o.sock, nil
}

func newTestChannel(t *testing.T, opts ...Option) (*Channel, *fakeSocket) {
	t.Helper()
	sock := &fakeSocket{}
	opener := &fakeOpener{sock: sock}
	opts = append(opts, WithOpenFunc(opener.open))
	ch := New("eth0", opts...)
	if err := ch.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return ch, sock
}

func TestDataOpsRequireReady(t *testing.T) {
	opener := &fakeOpener{sock: &fakeSocket{}}
	ch := New("eth0", WithOpenFunc(opener.open))

	if err := ch.Send([]byte{1, 2}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	n, _, err := ch.Receive(64)
	if n != -1 || !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected (-1, ErrNotReady), got (%d, %v)", n, err)
	}
	if res := ch.SendAndReceive([]byte{1}); res.Success || !errors.Is(res.Err, ErrSendRequest) {
		t.Fatalf("unexpected exchange result: %+v", res)
	}
	if opener.calls != 0 || opener.sock.sendCalls != 0 || opener.sock.recvCalls != 0 {
		t.Fatalf("channel touched the socket layer while not ready")
	}
	if got := ch.Statistics(); got != (Stats{}) {
		t.Fatalf("statistics mutated by rejected operations: %+v", got)
	}
}

func TestInitializeIdempotent(t *testing.T) {
	sock := &fakeSocket{}
	opener := &fakeOpener{sock: sock}
	ch := New("eth0", WithOpenFunc(opener.open))

	if err := ch.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := ch.Initialize(); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if opener.calls != 1 {
		t.Fatalf("expected 1 open, got %d", opener.calls)
	}
	if !ch.IsReady() {
		t.Fatalf("expected channel to be ready")
	}
}

func TestInitializeFailureLeavesUninitialized(t *testing.T) {
	opener := &fakeOpener{sock: &fakeSocket{}, err: errors.New("operation not permitted")}
	ch := New("eth0", WithOpenFunc(opener.open))

	if err := ch.Initialize(); err == nil {
		t.Fatalf("expected initialize to fail")
	}
	if ch.IsReady() {
		t.Fatalf("channel ready after failed initialize")
	}

	// A later attempt must go back to the OS.
	opener.err = nil
	if err := ch.Initialize(); err != nil {
		t.Fatalf("retry initialize: %v", err)
	}
	if opener.calls != 2 {
		t.Fatalf("expected 2 opens, got %d", opener.calls)
	}
}

func TestCloseIsIdempotentAndTerminal(t *testing.T) {
	ch, sock := newTestChannel(t)

	_ = ch.Close()
	_ = ch.Close()
	if sock.closeCalls != 1 {
		t.Fatalf("expected 1 socket close, got %d", sock.closeCalls)
	}
	if ch.IsReady() {
		t.Fatalf("channel ready after close")
	}
	if err := ch.Initialize(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSendUpdatesStats(t *testing.T) {
	ch, _ := newTestChannel(t)

	if err := ch.Send([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := ch.Statistics()
	if got.PacketsSent != 1 || got.BytesSent != 4 {
		t.Fatalf("unexpected counters: %+v", got)
	}
	if got.AvgLatencyUS <= 0 {
		t.Fatalf("expected latency EWMA to be folded, got %v", got.AvgLatencyUS)
	}
	if got.Errors != 0 {
		t.Fatalf("unexpected errors: %d", got.Errors)
	}
}

func TestSendShortWrite(t *testing.T) {
	ch, sock := newTestChannel(t)
	sock.shortWrite = true

	err := ch.Send([]byte{1, 2, 3, 4})
	if !errors.Is(err, ErrShortWrite) {
		t.Fatalf("expected ErrShortWrite, got %v", err)
	}
	got := ch.Statistics()
	if got.PacketsSent != 1 || got.BytesSent != 2 {
		t.Fatalf("short write must still count accepted bytes: %+v", got)
	}
	if got.Errors != 0 {
		t.Fatalf("short write is not an OS error: %+v", got)
	}
}

func TestSendOSError(t *testing.T) {
	ch, sock := newTestChannel(t)
	sock.sendScript = []error{errors.New("no buffer space")}

	if err := ch.Send([]byte{1, 2}); err == nil {
		t.Fatalf("expected send error")
	}
	got := ch.Statistics()
	if got.Errors != 1 || got.PacketsSent != 0 || got.AvgLatencyUS != 0 {
		t.Fatalf("failed send must only count an error: %+v", got)
	}
}

func TestReceiveOutcomesAreDisjoint(t *testing.T) {
	ch, sock := newTestChannel(t)
	sock.recvScript = []recvStep{
		{data: []byte{0xDE, 0xAD, 0xBE}},
		{err: errors.New("device gone")},
	}

	// Outcome 1: data present, buffer trimmed.
	n, data, err := ch.Receive(4096)
	if n != 3 || err != nil || len(data) != 3 || data[0] != 0xDE {
		t.Fatalf("unexpected data outcome: (%d, %v, %v)", n, data, err)
	}

	// Outcome 3: hard error.
	n, data, err = ch.Receive(4096)
	if n != -1 || data != nil || err == nil {
		t.Fatalf("unexpected error outcome: (%d, %v, %v)", n, data, err)
	}

	// Outcome 2: timeout, not an error.
	n, data, err = ch.Receive(4096)
	if n != 0 || data != nil || err != nil {
		t.Fatalf("unexpected timeout outcome: (%d, %v, %v)", n, data, err)
	}

	got := ch.Statistics()
	if got.PacketsReceived != 1 || got.BytesReceived != 3 {
		t.Fatalf("unexpected receive counters: %+v", got)
	}
	if got.Errors != 1 {
		t.Fatalf("only the hard failure should count as an error: %+v", got)
	}
	if got.AvgLatencyUS != 0 {
		t.Fatalf("receive must never fold the latency EWMA: %+v", got)
	}
}

func TestReceiveBufferOption(t *testing.T) {
	ch, sock := newTestChannel(t, WithReceiveBuffer(4))
	frame := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	sock.recvScript = []recvStep{{data: frame}, {data: frame}, {data: frame}}

	// No explicit size: the configured buffer bounds the read.
	n, data, err := ch.Receive(0)
	if err != nil || n != 4 || len(data) != 4 {
		t.Fatalf("expected 4-byte read, got (%d, %d, %v)", n, len(data), err)
	}

	// Round trips use the configured buffer too.
	res := ch.SendAndReceive([]byte{0xAA})
	if !res.Success || len(res.Data) != 4 {
		t.Fatalf("unexpected exchange result: %+v", res)
	}

	// An explicit size still wins over the configured default.
	n, data, err = ch.Receive(8)
	if err != nil || n != 8 || len(data) != 8 {
		t.Fatalf("expected 8-byte read, got (%d, %d, %v)", n, len(data), err)
	}
}

func TestSendAndReceiveLatencyCoversBothLegs(t *testing.T) {
	const wait = 5 * time.Millisecond
	ch, sock := newTestChannel(t)
	sock.recvScript = []recvStep{{data: []byte{0x01, 0x02}, delay: wait}}

	res := ch.SendAndReceive([]byte{0xAA, 0xBB})
	if !res.Success || res.Err != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if string(res.Data) != "\x01\x02" {
		t.Fatalf("unexpected response payload: %v", res.Data)
	}
	if res.Latency < wait {
		t.Fatalf("round trip latency %v shorter than the wait %v", res.Latency, wait)
	}
}

func TestSendAndReceiveFailureClasses(t *testing.T) {
	ch, sock := newTestChannel(t)

	sock.sendScript = []error{errors.New("link down")}
	if res := ch.SendAndReceive([]byte{1}); !errors.Is(res.Err, ErrSendRequest) || res.Latency != 0 {
		t.Fatalf("expected send failure with zero latency, got %+v", res)
	}

	sock.recvScript = []recvStep{{err: errors.New("device gone")}}
	if res := ch.SendAndReceive([]byte{1}); !errors.Is(res.Err, ErrReceiveResponse) {
		t.Fatalf("expected receive failure, got %+v", res)
	}

	// Empty script means every receive times out.
	if res := ch.SendAndReceive([]byte{1}); !errors.Is(res.Err, ErrResponseTimeout) {
		t.Fatalf("expected timeout, got %+v", res)
	}
}

func TestBurstSendCountsOnlyFullWrites(t *testing.T) {
	ch, sock := newTestChannel(t)
	sock.sendScript = []error{nil, errors.New("no buffer space"), nil}

	sent := ch.BurstSend([][]byte{{1, 2}, {3, 4}, {5, 6}})
	if sent != 2 {
		t.Fatalf("expected 2 accepted payloads, got %d", sent)
	}
	if sock.sendCalls != 3 {
		t.Fatalf("burst must not abort early: %d calls", sock.sendCalls)
	}
}

func TestMeasureLatency(t *testing.T) {
	ch, sock := newTestChannel(t)
	sock.recvScript = []recvStep{{data: []byte{0x01}}}

	if d := ch.MeasureLatency([]byte{0xAA}); d < 0 {
		t.Fatalf("expected measured latency, got %v", d)
	}
	// Receive script exhausted: the exchange times out.
	if d := ch.MeasureLatency([]byte{0xAA}); d != -1 {
		t.Fatalf("expected -1 sentinel, got %v", d)
	}
}

func TestStressTestScopedStats(t *testing.T) {
	ch, _ := newTestChannel(t)

	start := time.Now()
	run := ch.StressTest(100*time.Millisecond, 64)
	elapsed := time.Since(start)

	if elapsed < 100*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Fatalf("stress run took %v, expected about 100ms", elapsed)
	}
	if run.PacketsSent == 0 {
		t.Fatalf("expected packets in the stress window")
	}
	if run.Errors != 0 {
		t.Fatalf("unexpected stress errors: %d", run.Errors)
	}
	if run.BytesSent != run.PacketsSent*64 {
		t.Fatalf("inconsistent run counters: %+v", run)
	}
	if run.PacketsReceived != 0 || run.BytesReceived != 0 {
		t.Fatalf("stress run must not track receives: %+v", run)
	}

	// The run snapshot is independent of the persistent record.
	persistent := ch.Statistics()
	if persistent.PacketsSent != run.PacketsSent {
		t.Fatalf("persistent stats should see each send: %d vs %d", persistent.PacketsSent, run.PacketsSent)
	}
	ch.ResetStatistics()
	if run.PacketsSent == 0 {
		t.Fatalf("run snapshot must survive a channel reset")
	}
}

func TestStressTestCountsFailures(t *testing.T) {
	sock := &fakeSocket{}
	opener := &fakeOpener{sock: sock}
	ch := New("eth0", WithOpenFunc(opener.open))

	// Never initialized: every send is rejected before the OS.
	run := ch.StressTest(20*time.Millisecond, 16)
	if run.PacketsSent != 0 || run.Errors == 0 {
		t.Fatalf("expected only failures, got %+v", run)
	}
	if sock.sendCalls != 0 {
		t.Fatalf("stress on an unready channel must not reach the socket")
	}
}

func TestResetStatistics(t *testing.T) {
	ch, sock := newTestChannel(t)
	sock.recvScript = []recvStep{{data: []byte{1, 2, 3}}}

	_ = ch.Send([]byte{1, 2})
	_, _, _ = ch.Receive(64)

	if ch.Statistics() == (Stats{}) {
		t.Fatalf("expected non-zero statistics before reset")
	}
	ch.ResetStatistics()
	if got := ch.Statistics(); got != (Stats{}) {
		t.Fatalf("reset left residue: %+v", got)
	}
}

func TestSetTimeoutUpdatesLiveSocket(t *testing.T) {
	ch, sock := newTestChannel(t)

	ch.SetTimeout(250 * time.Millisecond)
	if sock.timeoutCalls != 1 || sock.lastTimeout != 250*time.Millisecond {
		t.Fatalf("expected live timeout update, got %d calls, last %v", sock.timeoutCalls, sock.lastTimeout)
	}
}

func TestWithChannelClosesOnEveryPath(t *testing.T) {
	sock := &fakeSocket{}
	opener := &fakeOpener{sock: sock}
	opts := []Option{WithOpenFunc(opener.open)}

	wantErr := errors.New("test failed")
	err := WithChannel("eth0", opts, func(c *Channel) error {
		if !c.IsReady() {
			t.Fatalf("channel not ready inside WithChannel")
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if sock.closeCalls != 1 {
		t.Fatalf("expected close after fn error, got %d", sock.closeCalls)
	}

	func() {
		defer func() { _ = recover() }()
		_ = WithChannel("eth0", []Option{WithOpenFunc(opener.open)}, func(c *Channel) error {
			panic("assertion failure")
		})
	}()
	if sock.closeCalls != 2 {
		t.Fatalf("expected close after panic, got %d", sock.closeCalls)
	}
}

func TestWithChannelInitializeFailure(t *testing.T) {
	opener := &fakeOpener{sock: &fakeSocket{}, err: errors.New("operation not permitted")}
	err := WithChannel("eth0", []Option{WithOpenFunc(opener.open)}, func(c *Channel) error {
		t.Fatalf("fn must not run when initialize fails")
		return nil
	})
	if err == nil {
		t.Fatalf("expected initialize error")
	}
}
