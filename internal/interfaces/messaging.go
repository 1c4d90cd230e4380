package interfaces

import (
	"context"

	"github.com/confetex/tracker/internal/domain"
)

// Endpoint is one live channel connection as seen by the dispatcher.
// Implementations must tolerate Send after Close.
type Endpoint interface {
	ID() string
	Send(frame []byte) error
	IsOpen() bool
	Close() error
}

// Notifier is the injected fan-out registry. An endpoint belongs to at most
// one department; Register atomically replaces any prior membership.
// Notify returns the number of successful deliveries, diagnostics only:
// partial delivery is within contract.
type Notifier interface {
	Register(ep Endpoint, dept domain.Department) error
	Unregister(ep Endpoint)
	Notify(dept domain.Department, ev domain.Event) int
	NotifyAll(ev domain.Event) int
	NotifyWithAdmin(dept domain.Department, ev domain.Event) int
}

// EventPublisher mirrors dispatched events to an external broker for
// out-of-process consumers. Best effort: callers log failures and move on.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev domain.Event) error
}
