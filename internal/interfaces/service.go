package interfaces

import (
	"context"
	"time"

	"github.com/confetex/tracker/internal/domain"
)

// Commands carried from the HTTP layer into the services.

type CreateOrderCommand struct {
	Title     string
	ClientRef string
	Deadline  *time.Time
}

type CompleteCommand struct {
	OrderID int
	Notes   *string
}

type ReturnCommand struct {
	OrderID int
	Notes   *string
}

type ReprintCommand struct {
	OrderID int
	Reason  string
}

type ProcessReprintCommand struct {
	RequestID int
	Approve   bool
}

// ProductionService owns every state-changing order operation. Each
// mutation invalidates the response cache and fans out a channel event as
// part of the same request handling.
type ProductionService interface {
	CreateOrder(ctx context.Context, actor Identity, cmd CreateOrderCommand) (*domain.Order, error)
	CompleteDepartment(ctx context.Context, actor Identity, cmd CompleteCommand) (*domain.Order, error)
	ReturnToPrevious(ctx context.Context, actor Identity, cmd ReturnCommand) (*domain.Order, error)
	RequestReprint(ctx context.Context, actor Identity, cmd ReprintCommand) (*domain.ReprintRequest, error)
	ProcessReprint(ctx context.Context, actor Identity, cmd ProcessReprintCommand) (*domain.ReprintRequest, error)
}

// QueueService is the cached read side consumed by dashboards and pollers.
type QueueService interface {
	GetQueue(ctx context.Context, dept domain.Department) ([]QueueItem, error)
	GetCounts(ctx context.Context) (map[domain.Department]int, error)
	GetStats(ctx context.Context, dept domain.Department) (*DepartmentStats, error)
	GetHistory(ctx context.Context, orderID int) ([]*domain.DepartmentProgress, error)
	ListOpenReprints(ctx context.Context) ([]*domain.ReprintRequest, error)
}
