package production

import (
	"context"
	"errors"
	"fmt"

	"github.com/confetex/tracker/internal/adapter/logger"
	"github.com/confetex/tracker/internal/cache"
	"github.com/confetex/tracker/internal/domain"
	"github.com/confetex/tracker/internal/interfaces"
)

var (
	ErrNotAuthorized = errors.New("department cannot act on this order")
	ErrNoPendingWork = errors.New("order has no pending work")
)

// Service owns the write side. Every mutation runs the same sequence:
// persist, invalidate the response cache, fan the event out over the
// websocket dispatcher, mirror it to the broker. Fan-out and mirror are best
// effort; the committed row is the truth and polling covers missed events.
type Service struct {
	orders    interfaces.OrderRepository
	progress  interfaces.ProgressRepository
	reprints  interfaces.ReprintRepository
	cache     *cache.Cache
	notifier  interfaces.Notifier
	publisher interfaces.EventPublisher // nil when the broker mirror is disabled
	logger    logger.Logger
}

func NewService(
	orders interfaces.OrderRepository,
	progress interfaces.ProgressRepository,
	reprints interfaces.ReprintRepository,
	responses *cache.Cache,
	notifier interfaces.Notifier,
	publisher interfaces.EventPublisher,
	lgr logger.Logger,
) *Service {
	return &Service{
		orders:    orders,
		progress:  progress,
		reprints:  reprints,
		cache:     responses,
		notifier:  notifier,
		publisher: publisher,
		logger:    lgr,
	}
}

func (s *Service) CreateOrder(ctx context.Context, actor interfaces.Identity, cmd interfaces.CreateOrderCommand) (*domain.Order, error) {
	order, err := domain.NewOrder(cmd.Title, cmd.ClientRef, actor.Name, cmd.Deadline)
	if err != nil {
		s.logger.Error("validation_failed", "Order validation failed", "", nil, err)
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if err := s.orders.Create(ctx, order); err != nil {
		s.logger.Error("db_transaction_failed", "Failed to create order", "", nil, err)
		return nil, err
	}
	s.logger.Debug("order_created", "Order created in DB", "", map[string]interface{}{
		"order_id":   order.ID,
		"department": string(order.CurrentDepartment),
	})

	s.cache.DeleteByPrefix("queue:")
	s.cache.Delete(cache.CountsKey())
	s.cache.Delete(cache.StatsKey(string(order.CurrentDepartment)))

	ev := domain.NewEvent(&domain.NewActivityPayload{Activity: activityInfo(order)})
	s.notifier.NotifyWithAdmin(order.CurrentDepartment, ev)
	s.mirror(ctx, ev)

	return order, nil
}

// CompleteDepartment closes the order's pending pass and advances it to the
// next stage, or completes the order when the current stage is the last one.
func (s *Service) CompleteDepartment(ctx context.Context, actor interfaces.Identity, cmd interfaces.CompleteCommand) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, order.CurrentDepartment); err != nil {
		return nil, err
	}

	pending, err := s.progress.FindPending(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPendingWork, err)
	}
	from := order.CurrentDepartment

	pending.Complete(actor.Name, cmd.Notes)

	landed, err := order.Advance()
	if err != nil {
		return nil, err
	}
	final := order.Status == domain.OrderStatusCompleted

	var next *domain.DepartmentProgress
	if !final {
		next = domain.NewProgress(order.ID, landed)
	}
	if err := s.orders.ApplyTransition(ctx, order, pending, next); err != nil {
		s.logger.Error("db_transaction_failed", "Failed to advance order", "", map[string]interface{}{
			"order_id": order.ID,
		}, err)
		return nil, err
	}

	s.cache.DeleteByPrefix("queue:")
	s.cache.Delete(cache.CountsKey())
	s.cache.Delete(cache.StatsKey(string(from)))
	s.cache.Delete(cache.HistoryKey(order.ID))

	ev := domain.NewEvent(&domain.CompletedPayload{
		Activity:    activityInfo(order),
		Department:  from,
		CompletedBy: actor.Name,
		Final:       final,
	})
	s.notifier.Notify(from, ev)
	if !final {
		s.notifier.NotifyWithAdmin(landed, ev)
	} else {
		s.notifier.Notify(domain.DeptAdmin, ev)
	}
	s.mirror(ctx, ev)

	s.logger.Info("department_completed", "Order moved through department", "", map[string]interface{}{
		"order_id": order.ID,
		"from":     string(from),
		"to":       string(landed),
		"final":    final,
	})
	return order, nil
}

// ReturnToPrevious pushes the order back one stage, closing the current pass
// as returned and opening a fresh pending pass upstream.
func (s *Service) ReturnToPrevious(ctx context.Context, actor interfaces.Identity, cmd interfaces.ReturnCommand) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, order.CurrentDepartment); err != nil {
		return nil, err
	}

	pending, err := s.progress.FindPending(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPendingWork, err)
	}
	from := order.CurrentDepartment

	prev, err := order.Return()
	if err != nil {
		return nil, err
	}

	pending.Complete(actor.Name, cmd.Notes)
	pending.MarkReturned(actor.Name)

	if err := s.orders.ApplyTransition(ctx, order, pending, domain.NewProgress(order.ID, prev)); err != nil {
		s.logger.Error("db_transaction_failed", "Failed to return order", "", map[string]interface{}{
			"order_id": order.ID,
		}, err)
		return nil, err
	}

	s.cache.DeleteByPrefix("queue:")
	s.cache.Delete(cache.CountsKey())
	s.cache.Delete(cache.StatsKey(string(from)))
	s.cache.Delete(cache.HistoryKey(order.ID))

	notes := ""
	if cmd.Notes != nil {
		notes = *cmd.Notes
	}
	ev := domain.NewEvent(&domain.ReturnedPayload{
		Activity:   activityInfo(order),
		From:       from,
		ReturnedBy: actor.Name,
		Notes:      notes,
	})
	s.notifier.Notify(from, ev)
	s.notifier.NotifyWithAdmin(prev, ev)
	s.mirror(ctx, ev)

	s.logger.Info("order_returned", "Order returned to previous department", "", map[string]interface{}{
		"order_id": order.ID,
		"from":     string(from),
		"to":       string(prev),
	})
	return order, nil
}

// RequestReprint raises a redo request against the printing department.
func (s *Service) RequestReprint(ctx context.Context, actor interfaces.Identity, cmd interfaces.ReprintCommand) (*domain.ReprintRequest, error) {
	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	req, err := domain.NewReprintRequest(order.ID, actor.Name, cmd.Reason)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := s.reprints.Create(ctx, req); err != nil {
		return nil, err
	}

	s.cache.Delete(cache.ReprintsKey())

	ev := domain.NewEvent(&domain.ReprintUpdatePayload{
		RequestID:     req.ID,
		OrderID:       order.ID,
		ActivityTitle: order.Title,
		Status:        req.Status,
	})
	s.notifier.NotifyWithAdmin(domain.DeptImpressao, ev)
	s.mirror(ctx, ev)

	return req, nil
}

// ProcessReprint resolves an open request. Only admin and the printing
// department decide reprints.
func (s *Service) ProcessReprint(ctx context.Context, actor interfaces.Identity, cmd interfaces.ProcessReprintCommand) (*domain.ReprintRequest, error) {
	if actor.Department != domain.DeptAdmin && actor.Department != domain.DeptImpressao {
		return nil, ErrNotAuthorized
	}

	req, err := s.reprints.FindByID(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if err := req.Process(actor.Name, cmd.Approve); err != nil {
		return nil, err
	}
	if err := s.reprints.Update(ctx, req); err != nil {
		return nil, err
	}

	s.cache.Delete(cache.ReprintsKey())

	title := ""
	if order, err := s.orders.FindByID(ctx, req.OrderID); err == nil {
		title = order.Title
	}
	ev := domain.NewEvent(&domain.ReprintUpdatePayload{
		RequestID:     req.ID,
		OrderID:       req.OrderID,
		ActivityTitle: title,
		Status:        req.Status,
		ProcessedBy:   actor.Name,
	})
	s.notifier.NotifyWithAdmin(domain.DeptImpressao, ev)
	s.mirror(ctx, ev)

	return req, nil
}

// mirror forwards the event to the broker when the mirror is enabled.
// Failures are logged, never propagated: websocket delivery already happened
// and the write is committed.
func (s *Service) mirror(ctx context.Context, ev domain.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, ev); err != nil {
		s.logger.Error("event_mirror_failed", "Failed to mirror event to broker", "", map[string]interface{}{
			"type": string(ev.Type),
		}, err)
	}
}

func authorize(actor interfaces.Identity, current domain.Department) error {
	if actor.Department == domain.DeptAdmin || actor.Department == current {
		return nil
	}
	return fmt.Errorf("%w: order is in %s, actor is in %s", ErrNotAuthorized, current, actor.Department)
}

func activityInfo(o *domain.Order) domain.ActivityInfo {
	return domain.ActivityInfo{
		OrderID:    o.ID,
		Title:      o.Title,
		ClientRef:  o.ClientRef,
		Department: o.CurrentDepartment,
		Deadline:   o.Deadline,
	}
}
