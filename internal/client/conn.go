package client

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/confetex/tracker/internal/adapter/logger"
	"github.com/confetex/tracker/internal/config"
	"github.com/confetex/tracker/internal/domain"
	"github.com/confetex/tracker/internal/interfaces"
)

// State is the connection manager's explicit lifecycle state. Exactly one
// timer can be live per state: the heartbeat pair in Connected, the
// reconnect timer in BackoffWait, none otherwise.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoffWait
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoffWait:
		return "backoff_wait"
	}
	return "unknown"
}

// writeWait bounds every socket write so a stalled peer cannot hold the
// manager's mutex until the kernel buffer drains.
const writeWait = 5 * time.Second

// wsConn is the slice of *websocket.Conn the manager needs; tests inject
// fakes through dialFunc.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

type dialFunc func(url string, timeout time.Duration) (wsConn, error)

func gorillaDial(url string, timeout time.Duration) (wsConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Conn maintains one live, registered event channel per session and
// re-establishes it after any failure with capped, jittered backoff.
// Connection failures never surface to the owner: the poll scheduler
// compensates while the channel is down.
type Conn struct {
	url      string
	cfg      config.RealtimeConfig
	identity interfaces.IdentityProvider
	onEvent  func(domain.Event)
	logger   logger.Logger
	dial     dialFunc
	rng      *rand.Rand

	mu             sync.Mutex
	state          State
	ws             wsConn
	alive          bool
	failures       int // consecutive failed attempts since last success
	pongPending    bool
	heartbeatTimer *time.Timer
	pongTimer      *time.Timer
	reconnectTimer *time.Timer
}

// NewConn builds a manager; nothing happens until Connect. onEvent receives
// every decoded non-heartbeat server event (the invalidation bridge).
func NewConn(url string, cfg config.RealtimeConfig, identity interfaces.IdentityProvider, onEvent func(domain.Event), lgr logger.Logger) *Conn {
	return &Conn{
		url:      url,
		cfg:      cfg,
		identity: identity,
		onEvent:  onEvent,
		logger:   lgr,
		dial:     gorillaDial,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		state:    StateDisconnected,
		alive:    true,
	}
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected satisfies the poll scheduler's health probe.
func (c *Conn) Connected() bool {
	return c.State() == StateConnected
}

// Failures reports consecutive connection failures since the last success.
func (c *Conn) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// Connect opens the channel if the identity is present and no channel is
// already open or opening. Safe to call redundantly.
func (c *Conn) Connect() {
	c.mu.Lock()
	if !c.alive || c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}

	id, ok := c.identity.Identity()
	if !ok {
		// No session: stay down, the owner tears us down separately.
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	ws, err := c.dial(c.url, c.cfg.DialTimeout())

	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		if ws != nil {
			ws.Close()
		}
		return
	}
	if err != nil {
		c.logger.Error("channel_dial_failed", "Failed to open channel", "", map[string]interface{}{
			"attempt": c.failures + 1,
		}, err)
		c.failAndScheduleLocked()
		c.mu.Unlock()
		return
	}

	c.ws = ws
	c.state = StateConnected
	c.failures = 0
	c.pongPending = false
	c.armHeartbeatLocked()
	c.mu.Unlock()

	c.logger.Info("channel_connected", "Event channel established", "", map[string]interface{}{
		"department": string(id.Department),
	})

	// Register before anything else so fan-out reaches us immediately.
	c.Send(domain.NewEvent(&domain.RegisterPayload{Department: id.Department}))

	go c.readLoop(ws)
}

// Send delivers one event if the channel is currently open. Best effort by
// contract: a false return is not an error condition.
func (c *Conn) Send(ev domain.Event) bool {
	frame, err := ev.Encode()
	if err != nil {
		c.logger.Error("event_encode_failed", "Failed to encode outbound event", "", map[string]interface{}{
			"type": string(ev.Type),
		}, err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.ws == nil {
		return false
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Error("channel_send_failed", "Failed to send on channel", "", map[string]interface{}{
			"type": string(ev.Type),
		}, err)
		return false
	}
	return true
}

// Close tears the manager down: unconditional, idempotent, cancels every
// timer and discards callbacks that arrive late.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.alive {
		return
	}
	c.alive = false
	c.stopTimersLocked()
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
	c.state = StateDisconnected
}

func (c *Conn) readLoop(ws wsConn) {
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			c.handleDisconnect(ws, err)
			return
		}

		ev, err := domain.DecodeEvent(frame)
		if err != nil {
			c.logger.Error("channel_bad_frame", "Dropping malformed event", "", nil, err)
			continue
		}

		if _, ok := ev.Payload.(*domain.PongPayload); ok {
			c.handlePong()
			continue
		}

		if c.onEvent != nil && c.isAlive() {
			c.onEvent(ev)
		}
	}
}

func (c *Conn) isAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// sendHeartbeat fires on the heartbeat timer. A still-pending pong from the
// previous beat means the connection is dead even though reads have not
// failed yet; force-close and let reconnection take over.
func (c *Conn) sendHeartbeat() {
	c.mu.Lock()
	if !c.alive || c.state != StateConnected {
		c.mu.Unlock()
		return
	}

	if c.pongPending {
		c.mu.Unlock()
		c.logger.Info("heartbeat_missed", "No pong since last ping, closing channel", "", nil)
		c.forceClose()
		return
	}

	c.pongPending = true
	c.pongTimer = time.AfterFunc(c.cfg.HeartbeatTimeout(), c.onPongTimeout)
	c.armHeartbeatLocked()
	ws := c.ws
	c.mu.Unlock()

	frame, err := domain.NewEvent(&domain.PingPayload{Timestamp: time.Now().UnixMilli()}).Encode()
	if err != nil {
		return
	}

	c.mu.Lock()
	if c.state == StateConnected && c.ws == ws && ws != nil {
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.mu.Unlock()
			c.forceClose()
			return
		}
	}
	c.mu.Unlock()
}

func (c *Conn) handlePong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pongPending = false
	if c.pongTimer != nil {
		c.pongTimer.Stop()
		c.pongTimer = nil
	}
}

func (c *Conn) onPongTimeout() {
	c.mu.Lock()
	expired := c.alive && c.state == StateConnected && c.pongPending
	c.mu.Unlock()

	if expired {
		c.logger.Info("heartbeat_timeout", "Pong timeout, closing channel", "", nil)
		c.forceClose()
	}
}

// forceClose kills the socket; the read loop observes the error and runs
// the normal disconnect path.
func (c *Conn) forceClose() {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
}

func (c *Conn) handleDisconnect(ws wsConn, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.alive || c.ws != ws {
		// Teardown already happened, or this is a stale read loop.
		return
	}

	c.logger.Info("channel_disconnected", "Event channel lost", "", map[string]interface{}{
		"cause": cause.Error(),
	})

	c.stopTimersLocked()
	c.ws = nil
	c.state = StateDisconnected
	c.failAndScheduleLocked()
}

// failAndScheduleLocked counts a failure and schedules the next attempt.
// The delay grows multiplicatively up to the cap with jitter; after the
// configured number of consecutive failures the manager instead pauses for
// a longer fixed interval and resets the backoff, so a persistently
// unavailable server is not hammered.
func (c *Conn) failAndScheduleLocked() {
	c.failures++

	var delay time.Duration
	if c.failures > c.cfg.MaxConsecutiveFailures {
		delay = c.cfg.FailurePause()
		c.failures = 0
		c.logger.Info("reconnect_paused", "Too many consecutive failures, pausing", "", map[string]interface{}{
			"pause_seconds": int(delay.Seconds()),
		})
	} else {
		delay = c.jitter(c.reconnectDelay(c.failures))
	}

	c.state = StateBackoffWait
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if !c.alive || c.state != StateBackoffWait {
			c.mu.Unlock()
			return
		}
		c.state = StateDisconnected
		c.mu.Unlock()
		c.Connect()
	})
}

// reconnectDelay computes the undithered backoff delay for the n-th
// consecutive failure (n >= 1): initial * factor^(n-1), capped.
func (c *Conn) reconnectDelay(failures int) time.Duration {
	initial := float64(c.cfg.InitialReconnectDelay())
	max := float64(c.cfg.MaxReconnectDelay())

	d := initial * math.Pow(c.cfg.BackoffFactor, float64(failures-1))
	if d > max {
		d = max
	}
	return time.Duration(d)
}

// jitter spreads the delay by up to JitterFraction either way so
// simultaneous clients do not reconnect in lockstep.
func (c *Conn) jitter(d time.Duration) time.Duration {
	f := c.cfg.JitterFraction
	if f <= 0 {
		return d
	}
	spread := 1 + f*(2*c.rng.Float64()-1)
	return time.Duration(float64(d) * spread)
}

func (c *Conn) stopTimersLocked() {
	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
		c.heartbeatTimer = nil
	}
	if c.pongTimer != nil {
		c.pongTimer.Stop()
		c.pongTimer = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Conn) armHeartbeatLocked() {
	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
	}
	c.heartbeatTimer = time.AfterFunc(c.cfg.HeartbeatInterval(), c.sendHeartbeat)
}
