package client

import (
	"context"
	"sync"
	"time"

	"github.com/confetex/tracker/internal/adapter/logger"
	"github.com/confetex/tracker/internal/config"
)

// Latency thresholds and adjustment factors for the adaptive interval.
// Inside the clamp these only shape how fast the interval drifts, so they
// are compile-time constants rather than config.
const (
	fastLatency = 300 * time.Millisecond
	slowLatency = 2 * time.Second

	relaxFactor    = 1.5  // healthy channel: drift toward the max
	shrinkFactor   = 0.85 // fast responses: polling is cheap, tighten a bit
	slowPenalty    = 1.25 // slow responses: back off
	failurePenalty = 2.0  // failed poll: widen instead of hammering
)

// ChannelHealth is what the scheduler reads from the connection manager.
type ChannelHealth interface {
	Connected() bool
	Failures() int
}

// PollFunc refreshes the dashboard's data; the scheduler measures its
// round trip and reacts to its error.
type PollFunc func(ctx context.Context) error

// Poller is the safety net under the event channel: a self-rescheduling
// refresh loop whose next delay adapts to channel health and observed
// latency, always clamped to the configured bounds. It guarantees bounded
// staleness even if the channel never connects.
type Poller struct {
	cfg    config.RealtimeConfig
	health ChannelHealth
	poll   PollFunc
	logger logger.Logger

	mu          sync.Mutex
	alive       bool
	started     bool
	timer       *time.Timer
	interval    time.Duration
	lastRefresh time.Time
}

func NewPoller(cfg config.RealtimeConfig, health ChannelHealth, poll PollFunc, lgr logger.Logger) *Poller {
	return &Poller{
		cfg:      cfg,
		health:   health,
		poll:     poll,
		logger:   lgr,
		alive:    true,
		interval: cfg.MinPollInterval(),
	}
}

// Start schedules the first cycle. Subsequent cycles reschedule themselves
// until Stop.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.alive || p.started {
		return
	}
	p.started = true
	p.timer = time.AfterFunc(p.interval, func() { p.cycle(ctx) })
}

// Stop halts the loop; the alive flag makes any in-flight cycle drop its
// reschedule instead of racing teardown.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Interval reports the currently scheduled delay.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// MarkRefreshed records an out-of-band refresh (push-triggered), feeding
// the minimum-gap guard so an event refetch and a scheduled poll do not
// fire back to back.
func (p *Poller) MarkRefreshed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastRefresh = time.Now()
}

func (p *Poller) cycle(ctx context.Context) {
	p.mu.Lock()
	if !p.alive || ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	sinceLast := time.Since(p.lastRefresh)
	p.mu.Unlock()

	var latency time.Duration
	var pollErr error

	if sinceLast < p.cfg.MinPollGap() {
		// A refresh just happened (likely push-triggered); skip this poll
		// but keep the loop alive.
		latency = 0
	} else {
		start := time.Now()
		pollErr = p.poll(ctx)
		latency = time.Since(start)

		p.mu.Lock()
		p.lastRefresh = time.Now()
		p.mu.Unlock()

		if pollErr != nil {
			p.logger.Error("poll_failed", "Scheduled refresh failed", "", nil, pollErr)
		}
	}

	next := p.computeInterval(p.health.Connected(), p.health.Failures(), latency, pollErr != nil)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.alive {
		// Torn down while polling; do not reschedule.
		return
	}
	p.interval = next
	p.timer = time.AfterFunc(next, func() { p.cycle(ctx) })
}

// computeInterval derives the next delay from channel connectivity,
// consecutive channel errors, and the last round trip. A dead or erroring
// channel pins polling at the minimum; a healthy channel lets the interval
// relax toward the maximum, modulated by latency. The result is always
// within [min, max].
func (p *Poller) computeInterval(connected bool, channelFailures int, latency time.Duration, pollFailed bool) time.Duration {
	min := p.cfg.MinPollInterval()
	max := p.cfg.MaxPollInterval()

	if !connected || channelFailures > 0 {
		return min
	}

	p.mu.Lock()
	next := float64(p.interval)
	p.mu.Unlock()

	switch {
	case pollFailed:
		next *= failurePenalty
	case latency > slowLatency:
		next *= slowPenalty
	case latency > 0 && latency < fastLatency:
		// Cheap polls: stay a touch more eager, but still drift up from
		// the floor so push delivery carries the load.
		next *= relaxFactor * shrinkFactor
	default:
		next *= relaxFactor
	}

	if next < float64(min) {
		return min
	}
	if next > float64(max) {
		return max
	}
	return time.Duration(next)
}
