package realtime

import (
	"fmt"
	"sync"

	"github.com/confetex/tracker/internal/adapter/logger"
	"github.com/confetex/tracker/internal/domain"
	"github.com/confetex/tracker/internal/interfaces"
)

// Dispatcher is the department-to-endpoints fan-out registry. It is an
// injected dependency of the request handlers and the websocket server,
// never a package-level singleton.
//
// Registration keeps one department per endpoint: a register for a new
// department atomically drops the old membership. Fan-out serializes the
// event once and delivers best effort; a failing endpoint is logged and
// skipped, never allowed to abort delivery to the rest.
type Dispatcher struct {
	mu         sync.RWMutex
	byDept     map[domain.Department]map[string]interfaces.Endpoint
	endpointIn map[string]domain.Department
	logger     logger.Logger
}

func NewDispatcher(lgr logger.Logger) *Dispatcher {
	byDept := make(map[domain.Department]map[string]interfaces.Endpoint)
	for _, d := range domain.AllDepartments() {
		byDept[d] = make(map[string]interfaces.Endpoint)
	}
	return &Dispatcher{
		byDept:     byDept,
		endpointIn: make(map[string]domain.Department),
		logger:     lgr,
	}
}

// Register adds the endpoint to dept's subscriber set, removing it from any
// prior set first. Unknown departments are rejected, not ignored.
func (d *Dispatcher) Register(ep interfaces.Endpoint, dept domain.Department) error {
	if !domain.Valid(dept) {
		return fmt.Errorf("%w: %q", domain.ErrUnknownDepartment, dept)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.endpointIn[ep.ID()]; ok {
		delete(d.byDept[prev], ep.ID())
	}
	d.byDept[dept][ep.ID()] = ep
	d.endpointIn[ep.ID()] = dept

	d.logger.Debug("endpoint_registered", "Endpoint registered to department", ep.ID(), map[string]interface{}{
		"department": string(dept),
	})
	return nil
}

// Unregister removes the endpoint from its department set. Idempotent.
func (d *Dispatcher) Unregister(ep interfaces.Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dept, ok := d.endpointIn[ep.ID()]
	if !ok {
		return
	}
	delete(d.byDept[dept], ep.ID())
	delete(d.endpointIn, ep.ID())

	d.logger.Debug("endpoint_unregistered", "Endpoint removed from department", ep.ID(), map[string]interface{}{
		"department": string(dept),
	})
}

// Notify fans the event out to every open endpoint of the department and
// returns the successful-delivery count. Counts are diagnostics: the
// contract tolerates partial delivery, polling compensates.
func (d *Dispatcher) Notify(dept domain.Department, ev domain.Event) int {
	frame, err := ev.Encode()
	if err != nil {
		d.logger.Error("event_encode_failed", "Failed to encode event", "", map[string]interface{}{
			"type": string(ev.Type),
		}, err)
		return 0
	}
	return d.deliver(dept, ev.Type, frame)
}

// NotifyAll fans the event out across every department.
func (d *Dispatcher) NotifyAll(ev domain.Event) int {
	frame, err := ev.Encode()
	if err != nil {
		d.logger.Error("event_encode_failed", "Failed to encode event", "", map[string]interface{}{
			"type": string(ev.Type),
		}, err)
		return 0
	}

	total := 0
	for _, dept := range domain.AllDepartments() {
		total += d.deliver(dept, ev.Type, frame)
	}
	return total
}

// NotifyWithAdmin delivers to the target department and to admin, the usual
// pairing for state changes that need cross-cutting visibility.
func (d *Dispatcher) NotifyWithAdmin(dept domain.Department, ev domain.Event) int {
	frame, err := ev.Encode()
	if err != nil {
		d.logger.Error("event_encode_failed", "Failed to encode event", "", map[string]interface{}{
			"type": string(ev.Type),
		}, err)
		return 0
	}

	total := d.deliver(dept, ev.Type, frame)
	if dept != domain.DeptAdmin {
		total += d.deliver(domain.DeptAdmin, ev.Type, frame)
	}
	return total
}

// SubscriberCount reports how many endpoints a department currently has.
func (d *Dispatcher) SubscriberCount(dept domain.Department) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byDept[dept])
}

func (d *Dispatcher) deliver(dept domain.Department, evType domain.EventType, frame []byte) int {
	// Snapshot under the read lock so a slow endpoint never blocks
	// register/unregister, and iteration never races a mutation.
	d.mu.RLock()
	targets := make([]interfaces.Endpoint, 0, len(d.byDept[dept]))
	for _, ep := range d.byDept[dept] {
		targets = append(targets, ep)
	}
	d.mu.RUnlock()

	delivered := 0
	for _, ep := range targets {
		if !ep.IsOpen() {
			continue
		}
		if err := ep.Send(frame); err != nil {
			d.logger.Error("event_send_failed", "Failed to deliver event to endpoint", ep.ID(), map[string]interface{}{
				"department": string(dept),
				"type":       string(evType),
			}, err)
			continue
		}
		delivered++
	}
	return delivered
}
