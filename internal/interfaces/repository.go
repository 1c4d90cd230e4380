package interfaces

import (
	"context"
	"time"

	"github.com/confetex/tracker/internal/domain"
)

// QueueItem is one row of a department's work queue.
type QueueItem struct {
	OrderID    int               `json:"order_id"`
	Title      string            `json:"title"`
	ClientRef  string            `json:"client_ref"`
	Deadline   *time.Time        `json:"deadline,omitempty"`
	EnteredAt  time.Time         `json:"entered_at"`
	Department domain.Department `json:"department"`
}

// DepartmentStats aggregates a department's throughput.
type DepartmentStats struct {
	Department     domain.Department `json:"department"`
	Pending        int               `json:"pending"`
	CompletedToday int               `json:"completed_today"`
	ReturnedToday  int               `json:"returned_today"`
}

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id int) (*domain.Order, error)
	Update(ctx context.Context, order *domain.Order) error
	// ApplyTransition persists one pipeline step in a single transaction:
	// the closed pass, the next pending pass (nil when the order completes)
	// and the order row. A partial write would strand the order with its
	// pass closed and no successor, so all three land or none do.
	ApplyTransition(ctx context.Context, order *domain.Order, closed *domain.DepartmentProgress, next *domain.DepartmentProgress) error
	QueueForDepartment(ctx context.Context, dept domain.Department) ([]QueueItem, error)
	CountsByDepartment(ctx context.Context) (map[domain.Department]int, error)
	StatsForDepartment(ctx context.Context, dept domain.Department) (*DepartmentStats, error)
}

type ProgressRepository interface {
	FindPending(ctx context.Context, orderID int) (*domain.DepartmentProgress, error)
	HistoryForOrder(ctx context.Context, orderID int) ([]*domain.DepartmentProgress, error)
}

type ReprintRepository interface {
	Create(ctx context.Context, r *domain.ReprintRequest) error
	FindByID(ctx context.Context, id int) (*domain.ReprintRequest, error)
	Update(ctx context.Context, r *domain.ReprintRequest) error
	ListOpen(ctx context.Context) ([]*domain.ReprintRequest, error)
}
