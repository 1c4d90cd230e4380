package client

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confetex/tracker/internal/adapter/logger"
	"github.com/confetex/tracker/internal/config"
	"github.com/confetex/tracker/internal/domain"
	"github.com/confetex/tracker/internal/interfaces"
)

var errConnClosed = errors.New("connection closed")

// fakeWS is an in-memory channel endpoint. Frames pushed into in arrive at
// ReadMessage; frames written by the manager accumulate in out.
type fakeWS struct {
	mu        sync.Mutex
	in        chan []byte
	out       [][]byte
	deadlines []time.Time
	closed    bool
}

func newFakeWS() *fakeWS {
	return &fakeWS{in: make(chan []byte, 16)}
}

func (f *fakeWS) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errConnClosed
	}
	f.out = append(f.out, data)
	return nil
}

func (f *fakeWS) SetWriteDeadline(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadlines = append(f.deadlines, t)
	return nil
}

func (f *fakeWS) ReadMessage() (int, []byte, error) {
	b, ok := <-f.in
	if !ok {
		return 0, nil, errConnClosed
	}
	return websocket.TextMessage, b, nil
}

func (f *fakeWS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.in)
	}
	return nil
}

func (f *fakeWS) sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.out))
	copy(out, f.out)
	return out
}

func testRealtimeConfig() config.RealtimeConfig {
	cfg := config.Default().Realtime
	cfg.InitialReconnectMillis = 10
	cfg.MaxReconnectMillis = 200
	cfg.BackoffFactor = 1.4
	cfg.JitterFraction = 0
	cfg.MaxConsecutiveFailures = 4
	return cfg
}

func operator() interfaces.StaticIdentity {
	return interfaces.StaticIdentity{Name: "maria", Department: domain.DeptImpressao}
}

func TestConn_BackoffMonotoneAndCapped(t *testing.T) {
	c := NewConn("ws://x", testRealtimeConfig(), operator(), nil, logger.New("test"))

	prev := time.Duration(0)
	for failures := 1; failures <= 25; failures++ {
		d := c.reconnectDelay(failures)
		assert.GreaterOrEqual(t, d, prev, "delay must be non-decreasing at failure %d", failures)
		assert.LessOrEqual(t, d, c.cfg.MaxReconnectDelay(), "delay must never exceed the cap")
		prev = d
	}
	assert.Equal(t, c.cfg.InitialReconnectDelay(), c.reconnectDelay(1))
	assert.Equal(t, c.cfg.MaxReconnectDelay(), c.reconnectDelay(25))
}

func TestConn_JitterStaysWithinBound(t *testing.T) {
	cfg := testRealtimeConfig()
	cfg.JitterFraction = 0.2
	c := NewConn("ws://x", cfg, operator(), nil, logger.New("test"))

	base := 100 * time.Millisecond
	for i := 0; i < 500; i++ {
		d := c.jitter(base)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestConn_NoIdentityNoDial(t *testing.T) {
	dialed := false
	c := NewConn("ws://x", testRealtimeConfig(), noIdentity{}, nil, logger.New("test"))
	c.dial = func(string, time.Duration) (wsConn, error) {
		dialed = true
		return newFakeWS(), nil
	}

	c.Connect()
	assert.False(t, dialed, "must not dial without an identity")
	assert.Equal(t, StateDisconnected, c.State())
}

type noIdentity struct{}

func (noIdentity) Identity() (interfaces.Identity, bool) { return interfaces.Identity{}, false }

func TestConn_ConnectRegistersDepartment(t *testing.T) {
	ws := newFakeWS()
	c := NewConn("ws://x", testRealtimeConfig(), operator(), nil, logger.New("test"))
	c.dial = func(string, time.Duration) (wsConn, error) { return ws, nil }
	defer c.Close()

	c.Connect()
	require.Equal(t, StateConnected, c.State())
	assert.Equal(t, 0, c.Failures())

	frames := ws.sent()
	require.Len(t, frames, 1)
	ev, err := domain.DecodeEvent(frames[0])
	require.NoError(t, err)
	require.Equal(t, domain.EventRegister, ev.Type)
	assert.Equal(t, domain.DeptImpressao, ev.Payload.(*domain.RegisterPayload).Department)
}

func TestConn_ConnectIsIdempotentWhileOpen(t *testing.T) {
	dials := 0
	c := NewConn("ws://x", testRealtimeConfig(), operator(), nil, logger.New("test"))
	c.dial = func(string, time.Duration) (wsConn, error) {
		dials++
		return newFakeWS(), nil
	}
	defer c.Close()

	c.Connect()
	c.Connect()
	c.Connect()
	assert.Equal(t, 1, dials)
}

func TestConn_DialFailureSchedulesReconnect(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	c := NewConn("ws://x", testRealtimeConfig(), operator(), nil, logger.New("test"))
	c.dial = func(string, time.Duration) (wsConn, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials < 3 {
			return nil, errors.New("connection refused")
		}
		return newFakeWS(), nil
	}
	defer c.Close()

	c.Connect()
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, dials, "backoff timer must drive retries until success")
	assert.Equal(t, 0, c.Failures(), "success resets the failure counter")
}

func TestConn_HeartbeatTimeoutForcesReconnectAtInitialDelay(t *testing.T) {
	ws := newFakeWS()
	c := NewConn("ws://x", testRealtimeConfig(), operator(), nil, logger.New("test"))
	dials := 0
	c.dial = func(string, time.Duration) (wsConn, error) {
		dials++
		if dials == 1 {
			return ws, nil
		}
		return nil, errors.New("server still down")
	}
	defer c.Close()

	c.Connect()
	require.Equal(t, StateConnected, c.State())

	// A ping is outstanding and the next heartbeat fires with no pong in
	// between: the manager must declare the connection dead.
	c.mu.Lock()
	c.pongPending = true
	c.mu.Unlock()
	c.sendHeartbeat()

	require.Eventually(t, func() bool {
		s := c.State()
		return s == StateBackoffWait || s == StateConnecting || s == StateDisconnected
	}, time.Second, time.Millisecond)

	// The first post-disconnect attempt uses the initial backoff delay,
	// not the maximum: the earlier successful connect reset the counter.
	assert.Equal(t, c.cfg.InitialReconnectDelay(), c.reconnectDelay(1))
}

func TestConn_PongClearsPending(t *testing.T) {
	ws := newFakeWS()
	c := NewConn("ws://x", testRealtimeConfig(), operator(), nil, logger.New("test"))
	c.dial = func(string, time.Duration) (wsConn, error) { return ws, nil }
	defer c.Close()

	c.Connect()
	c.mu.Lock()
	c.pongPending = true
	c.mu.Unlock()

	frame, err := domain.NewEvent(&domain.PongPayload{Timestamp: 1, ServerTime: 2}).Encode()
	require.NoError(t, err)
	ws.in <- frame

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return !c.pongPending
	}, time.Second, time.Millisecond)
}

func TestConn_EventsReachConsumer(t *testing.T) {
	ws := newFakeWS()
	events := make(chan domain.Event, 1)
	c := NewConn("ws://x", testRealtimeConfig(), operator(), func(ev domain.Event) { events <- ev }, logger.New("test"))
	c.dial = func(string, time.Duration) (wsConn, error) { return ws, nil }
	defer c.Close()

	c.Connect()

	frame, err := domain.NewEvent(&domain.NewActivityPayload{
		Activity: domain.ActivityInfo{OrderID: 7, Title: "Banner", Department: domain.DeptImpressao},
	}).Encode()
	require.NoError(t, err)
	ws.in <- frame

	select {
	case ev := <-events:
		assert.Equal(t, domain.EventNewActivity, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("event did not reach the consumer")
	}
}

func TestConn_MalformedFrameIsDroppedNotFatal(t *testing.T) {
	ws := newFakeWS()
	events := make(chan domain.Event, 1)
	c := NewConn("ws://x", testRealtimeConfig(), operator(), func(ev domain.Event) { events <- ev }, logger.New("test"))
	c.dial = func(string, time.Duration) (wsConn, error) { return ws, nil }
	defer c.Close()

	c.Connect()
	ws.in <- []byte("{not json")

	good, err := domain.NewEvent(&domain.NewActivityPayload{
		Activity: domain.ActivityInfo{OrderID: 1, Department: domain.DeptCorte},
	}).Encode()
	require.NoError(t, err)
	ws.in <- good

	select {
	case ev := <-events:
		assert.Equal(t, domain.EventNewActivity, ev.Type, "channel must survive a malformed frame")
	case <-time.After(time.Second):
		t.Fatal("channel died on malformed frame")
	}
	assert.Equal(t, StateConnected, c.State())
}

func TestConn_EveryWriteCarriesDeadline(t *testing.T) {
	ws := newFakeWS()
	c := NewConn("ws://x", testRealtimeConfig(), operator(), nil, logger.New("test"))
	c.dial = func(string, time.Duration) (wsConn, error) { return ws, nil }
	defer c.Close()

	before := time.Now()
	c.Connect()
	c.Send(domain.NewEvent(&domain.PingPayload{Timestamp: 1}))

	ws.mu.Lock()
	defer ws.mu.Unlock()
	// Register on connect plus the explicit Send: a deadline per write, so a
	// stalled peer cannot pin the manager's mutex indefinitely.
	require.Len(t, ws.deadlines, len(ws.out))
	require.NotEmpty(t, ws.deadlines)
	for _, d := range ws.deadlines {
		assert.True(t, d.After(before), "deadline must be in the future")
	}
}

func TestConn_SendWhenDisconnected(t *testing.T) {
	c := NewConn("ws://x", testRealtimeConfig(), operator(), nil, logger.New("test"))
	ok := c.Send(domain.NewEvent(&domain.PingPayload{Timestamp: 1}))
	assert.False(t, ok, "send must report failure, not panic or block")
}

func TestConn_CloseIsIdempotentAndFinal(t *testing.T) {
	ws := newFakeWS()
	dials := 0
	c := NewConn("ws://x", testRealtimeConfig(), operator(), nil, logger.New("test"))
	c.dial = func(string, time.Duration) (wsConn, error) {
		dials++
		return ws, nil
	}

	c.Connect()
	c.Close()
	c.Close()
	c.Connect()

	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, dials, "a closed manager must not reconnect")

	// The read loop saw the closed socket; it must not schedule anything.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConn_PauseAfterMaxConsecutiveFailures(t *testing.T) {
	cfg := testRealtimeConfig()
	cfg.MaxConsecutiveFailures = 2
	cfg.FailurePauseSeconds = 3600 // effectively: stop retrying during the test

	var mu sync.Mutex
	dials := 0
	c := NewConn("ws://x", cfg, operator(), nil, logger.New("test"))
	c.dial = func(string, time.Duration) (wsConn, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		return nil, errors.New("connection refused")
	}
	defer c.Close()

	c.Connect()

	// Attempts 1 and 2 use backoff delays; attempt 3 trips the pause.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials == 3
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, dials, "manager must hold during the pause interval")
	assert.Equal(t, 0, c.Failures(), "pause resets the backoff")
}
