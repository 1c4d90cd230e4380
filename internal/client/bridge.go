package client

import (
	"github.com/confetex/tracker/internal/adapter/logger"
	"github.com/confetex/tracker/internal/cache"
	"github.com/confetex/tracker/internal/domain"
)

// Bridge translates inbound channel events into the minimal set of query
// invalidations. Events are hints: every handler just marks queries stale
// and lets the cache refetch authoritative state, so replays and races with
// the poll path are harmless.
type Bridge struct {
	queries *QueryCache
	logger  logger.Logger
	// onEvent optionally surfaces the event to the owning view after the
	// invalidations are queued (toasts, badges; rendering is out of scope
	// here).
	onEvent func(domain.Event)
}

func NewBridge(queries *QueryCache, lgr logger.Logger, onEvent func(domain.Event)) *Bridge {
	return &Bridge{queries: queries, logger: lgr, onEvent: onEvent}
}

// HandleEvent is the connection manager's event callback.
func (b *Bridge) HandleEvent(ev domain.Event) {
	if ev.HighPriority {
		// Escape hatch for events whose blast radius is unpredictable.
		b.queries.InvalidateAll()
		b.surface(ev)
		return
	}

	switch p := ev.Payload.(type) {
	case *domain.NewActivityPayload:
		b.invalidate(
			cache.QueueKey(string(p.Activity.Department)),
			cache.QueueKey(string(domain.DeptAdmin)),
			cache.CountsKey(),
		)

	case *domain.ReturnedPayload:
		b.invalidate(
			cache.QueueKey(string(p.From)),
			cache.QueueKey(string(p.Activity.Department)),
			cache.QueueKey(string(domain.DeptAdmin)),
			cache.CountsKey(),
		)

	case *domain.CompletedPayload:
		next := p.Activity.Department
		b.invalidate(
			cache.QueueKey(string(p.Department)),
			cache.QueueKey(string(next)),
			cache.QueueKey(string(domain.DeptAdmin)),
			cache.CountsKey(),
			cache.StatsKey(string(p.Department)),
		)

	case *domain.ProgressPayload:
		b.invalidate(
			cache.QueueKey(string(p.Department)),
			cache.StatsKey(string(p.Department)),
		)

	case *domain.ReprintUpdatePayload:
		b.invalidate(
			cache.ReprintsKey(),
			cache.QueueKey(string(domain.DeptAdmin)),
		)

	case *domain.RegisterConfirmPayload:
		b.logger.Info("channel_registered", "Department registration confirmed", "", map[string]interface{}{
			"department": string(p.Department),
		})

	case *domain.RegisterErrorPayload:
		b.logger.Error("channel_register_rejected", "Department registration rejected", "", map[string]interface{}{
			"department": string(p.Department),
			"reason":     p.Reason,
		}, nil)

	default:
		// Heartbeat traffic never reaches the bridge; anything else is an
		// event kind this build does not know.
		b.logger.Debug("event_ignored", "No invalidation mapping for event", "", map[string]interface{}{
			"type": string(ev.Type),
		})
	}

	b.surface(ev)
}

func (b *Bridge) invalidate(keys ...string) {
	for _, k := range keys {
		b.queries.Invalidate(k)
	}
}

func (b *Bridge) surface(ev domain.Event) {
	if b.onEvent != nil {
		b.onEvent(ev)
	}
}
