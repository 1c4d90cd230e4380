package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confetex/tracker/internal/adapter/logger"
	"github.com/confetex/tracker/internal/config"
)

type fakeHealth struct {
	connected atomic.Bool
	failures  atomic.Int32
}

func (f *fakeHealth) Connected() bool { return f.connected.Load() }
func (f *fakeHealth) Failures() int   { return int(f.failures.Load()) }

func pollerConfig() config.RealtimeConfig {
	cfg := config.Default().Realtime
	cfg.MinPollIntervalSeconds = 5
	cfg.MaxPollIntervalSeconds = 45
	cfg.MinPollGapMillis = 1500
	return cfg
}

func newTestPoller(cfg config.RealtimeConfig, health ChannelHealth) *Poller {
	return NewPoller(cfg, health, func(context.Context) error { return nil }, logger.New("test"))
}

func TestPoller_IntervalAlwaysWithinBounds(t *testing.T) {
	cfg := pollerConfig()
	h := &fakeHealth{}
	p := newTestPoller(cfg, h)

	cases := []struct {
		name      string
		connected bool
		failures  int
		latency   time.Duration
		pollErr   bool
	}{
		{"disconnected", false, 0, 100 * time.Millisecond, false},
		{"channel erroring", true, 3, 100 * time.Millisecond, false},
		{"fast response", true, 0, 50 * time.Millisecond, false},
		{"normal response", true, 0, 800 * time.Millisecond, false},
		{"slow response", true, 0, 5 * time.Second, false},
		{"poll failure", true, 0, 10 * time.Second, true},
		{"zero latency skip", true, 0, 0, false},
	}

	// Drive the interval around and assert the clamp holds everywhere.
	for round := 0; round < 30; round++ {
		for _, tc := range cases {
			got := p.computeInterval(tc.connected, tc.failures, tc.latency, tc.pollErr)
			assert.GreaterOrEqual(t, got, cfg.MinPollInterval(), "%s (round %d)", tc.name, round)
			assert.LessOrEqual(t, got, cfg.MaxPollInterval(), "%s (round %d)", tc.name, round)
			p.mu.Lock()
			p.interval = got
			p.mu.Unlock()
		}
	}
}

func TestPoller_DisconnectedPinsToMinimum(t *testing.T) {
	cfg := pollerConfig()
	p := newTestPoller(cfg, &fakeHealth{})

	// Even from the widest interval, one disconnected cycle drops to min.
	p.mu.Lock()
	p.interval = cfg.MaxPollInterval()
	p.mu.Unlock()

	got := p.computeInterval(false, 0, 200*time.Millisecond, false)
	assert.Equal(t, cfg.MinPollInterval(), got)
}

func TestPoller_ChannelErrorsPinToMinimum(t *testing.T) {
	cfg := pollerConfig()
	p := newTestPoller(cfg, &fakeHealth{})
	got := p.computeInterval(true, 2, 200*time.Millisecond, false)
	assert.Equal(t, cfg.MinPollInterval(), got)
}

func TestPoller_IntervalGrowsBackAfterReconnect(t *testing.T) {
	cfg := pollerConfig()
	p := newTestPoller(cfg, &fakeHealth{})

	// Disconnected: pinned at min.
	interval := p.computeInterval(false, 0, 0, false)
	require.Equal(t, cfg.MinPollInterval(), interval)

	// Reconnected with healthy polls: the interval must climb toward max.
	prev := interval
	grew := false
	for i := 0; i < 20; i++ {
		p.mu.Lock()
		p.interval = prev
		p.mu.Unlock()
		next := p.computeInterval(true, 0, 800*time.Millisecond, false)
		require.GreaterOrEqual(t, next, prev, "healthy cycles must not shrink the interval")
		if next > prev {
			grew = true
		}
		prev = next
	}
	assert.True(t, grew)
	assert.Equal(t, cfg.MaxPollInterval(), prev, "interval must reach the maximum eventually")
}

func TestPoller_SlowResponsesGrowInterval(t *testing.T) {
	p := newTestPoller(pollerConfig(), &fakeHealth{})
	base := p.computeInterval(true, 0, 800*time.Millisecond, false)

	p2 := newTestPoller(pollerConfig(), &fakeHealth{})
	slow := p2.computeInterval(true, 0, 10*time.Second, false)

	// Both start from min, so the slow path can't be smaller.
	assert.GreaterOrEqual(t, slow, p2.cfg.MinPollInterval())
	assert.GreaterOrEqual(t, base, p.cfg.MinPollInterval())
}

func TestPoller_PollFailureWidensMoreThanSuccess(t *testing.T) {
	cfg := pollerConfig()

	start := 10 * time.Second
	ok := newTestPoller(cfg, &fakeHealth{})
	ok.mu.Lock()
	ok.interval = start
	ok.mu.Unlock()

	failed := newTestPoller(cfg, &fakeHealth{})
	failed.mu.Lock()
	failed.interval = start
	failed.mu.Unlock()

	okNext := ok.computeInterval(true, 0, 800*time.Millisecond, false)
	failedNext := failed.computeInterval(true, 0, 800*time.Millisecond, true)
	assert.Greater(t, failedNext, okNext, "a failed poll must widen harder than a successful one")
}

func TestPoller_RunsAndStops(t *testing.T) {
	cfg := pollerConfig()
	cfg.MinPollIntervalSeconds = 1
	cfg.MinPollGapMillis = 0

	var polls atomic.Int32
	h := &fakeHealth{}
	p := NewPoller(cfg, h, func(context.Context) error {
		polls.Add(1)
		return nil
	}, logger.New("test"))

	p.Start(context.Background())
	require.Eventually(t, func() bool { return polls.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)

	p.Stop()
	settled := polls.Load()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, settled, polls.Load(), "a stopped poller must not reschedule")
}

func TestPoller_MinGapSkipsBackToBackRefresh(t *testing.T) {
	cfg := pollerConfig()
	cfg.MinPollIntervalSeconds = 1

	var polls atomic.Int32
	p := NewPoller(cfg, &fakeHealth{}, func(context.Context) error {
		polls.Add(1)
		return nil
	}, logger.New("test"))
	defer p.Stop()

	// A push-triggered refresh just happened; the first scheduled cycle
	// must skip its fetch.
	p.MarkRefreshed()
	p.Start(context.Background())

	time.Sleep(1100 * time.Millisecond)
	assert.Equal(t, int32(0), polls.Load(), "cycle inside the min gap must not poll")
}

func TestPoller_PollErrorDoesNotStopLoop(t *testing.T) {
	cfg := pollerConfig()
	cfg.MinPollIntervalSeconds = 1
	cfg.MinPollGapMillis = 0

	var polls atomic.Int32
	h := &fakeHealth{}
	h.connected.Store(false) // keeps the interval at min so the test stays fast
	p := NewPoller(cfg, h, func(context.Context) error {
		polls.Add(1)
		return errors.New("fetch failed")
	}, logger.New("test"))
	defer p.Stop()

	p.Start(context.Background())
	require.Eventually(t, func() bool { return polls.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)
}
