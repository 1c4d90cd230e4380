package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/confetex/tracker/internal/domain"
	"github.com/confetex/tracker/internal/interfaces"
)

type orderRepository struct {
	db DB
}

func NewOrderRepository(db DB) interfaces.OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO orders (title, client_ref, current_department, status,
		                    deadline, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err = tx.QueryRow(ctx, query,
		order.Title, order.ClientRef, order.CurrentDepartment, order.Status,
		order.Deadline, order.CreatedBy, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	// Open the first pending pass so the order shows up in its queue.
	progressQuery := `
		INSERT INTO department_progress (order_id, department, status, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err = tx.Exec(ctx, progressQuery, order.ID, order.CurrentDepartment, domain.ProgressPending, time.Now())
	if err != nil {
		return fmt.Errorf("failed to open initial progress: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *orderRepository) FindByID(ctx context.Context, id int) (*domain.Order, error) {
	query := `
		SELECT id, title, client_ref, current_department, status,
		       deadline, created_by, created_at, updated_at, completed_at
		FROM orders
		WHERE id = $1
	`

	var order domain.Order
	err := r.db.QueryRow(ctx, query, id).Scan(
		&order.ID, &order.Title, &order.ClientRef, &order.CurrentDepartment, &order.Status,
		&order.Deadline, &order.CreatedBy, &order.CreatedAt, &order.UpdatedAt, &order.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("order not found: %w", err)
	}
	return &order, nil
}

// ApplyTransition moves an order one pipeline step atomically. The pass
// update, the next pending insert and the order update share one
// transaction; the unique partial index on pending passes rejects a
// duplicate successor if two transitions race.
func (r *orderRepository) ApplyTransition(ctx context.Context, order *domain.Order, closed *domain.DepartmentProgress, next *domain.DepartmentProgress) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	closeQuery := `
		UPDATE department_progress
		SET status = $1, completed_by = $2, completed_at = $3,
		    notes = $4, returned_by = $5, returned_at = $6
		WHERE id = $7
	`
	tag, err := tx.Exec(ctx, closeQuery,
		closed.Status, closed.CompletedBy, closed.CompletedAt,
		closed.Notes, closed.ReturnedBy, closed.ReturnedAt, closed.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to close progress pass: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("progress %d not found", closed.ID)
	}

	if next != nil {
		nextQuery := `
			INSERT INTO department_progress (order_id, department, status, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`
		err = tx.QueryRow(ctx, nextQuery, next.OrderID, next.Department, next.Status, next.CreatedAt).Scan(&next.ID)
		if err != nil {
			return fmt.Errorf("failed to open next progress pass: %w", err)
		}
	}

	orderQuery := `
		UPDATE orders
		SET current_department = $1, status = $2, updated_at = $3, completed_at = $4
		WHERE id = $5
	`
	tag, err = tx.Exec(ctx, orderQuery,
		order.CurrentDepartment, order.Status, order.UpdatedAt, order.CompletedAt, order.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d not found", order.ID)
	}

	return tx.Commit(ctx)
}

func (r *orderRepository) Update(ctx context.Context, order *domain.Order) error {
	query := `
		UPDATE orders
		SET current_department = $1, status = $2, updated_at = $3, completed_at = $4
		WHERE id = $5
	`
	tag, err := r.db.Exec(ctx, query,
		order.CurrentDepartment, order.Status, order.UpdatedAt, order.CompletedAt, order.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d not found", order.ID)
	}
	return nil
}

// QueueForDepartment returns active orders currently sitting in dept, oldest
// pending pass first. Admin gets every active order regardless of stage.
func (r *orderRepository) QueueForDepartment(ctx context.Context, dept domain.Department) ([]interfaces.QueueItem, error) {
	query := `
		SELECT o.id, o.title, o.client_ref, o.deadline, p.created_at, o.current_department
		FROM orders o
		JOIN department_progress p ON p.order_id = o.id AND p.status = $1
		WHERE o.status = $2 AND ($3 = 'admin' OR o.current_department = $3)
		ORDER BY p.created_at
	`
	rows, err := r.db.Query(ctx, query, domain.ProgressPending, domain.OrderStatusActive, dept)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	defer rows.Close()

	items := []interfaces.QueueItem{}
	for rows.Next() {
		var item interfaces.QueueItem
		if err := rows.Scan(&item.OrderID, &item.Title, &item.ClientRef,
			&item.Deadline, &item.EnteredAt, &item.Department); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *orderRepository) CountsByDepartment(ctx context.Context) (map[domain.Department]int, error) {
	query := `
		SELECT current_department, COUNT(*)
		FROM orders
		WHERE status = $1
		GROUP BY current_department
	`
	rows, err := r.db.Query(ctx, query, domain.OrderStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	defer rows.Close()

	// Zero-fill so empty departments still appear on the board.
	counts := make(map[domain.Department]int)
	for _, d := range domain.Pipeline() {
		counts[d] = 0
	}
	for rows.Next() {
		var dept domain.Department
		var n int
		if err := rows.Scan(&dept, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[dept] = n
	}
	return counts, nil
}

func (r *orderRepository) StatsForDepartment(ctx context.Context, dept domain.Department) (*interfaces.DepartmentStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE p.status = $1),
			COUNT(*) FILTER (WHERE p.status = $2 AND p.completed_at >= CURRENT_DATE),
			COUNT(*) FILTER (WHERE p.returned_at >= CURRENT_DATE)
		FROM department_progress p
		WHERE p.department = $3
	`

	stats := interfaces.DepartmentStats{Department: dept}
	err := r.db.QueryRow(ctx, query, domain.ProgressPending, domain.ProgressCompleted, dept).Scan(
		&stats.Pending, &stats.CompletedToday, &stats.ReturnedToday,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load department stats: %w", err)
	}
	return &stats, nil
}
