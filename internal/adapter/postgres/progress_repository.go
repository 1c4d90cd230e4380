package postgres

import (
	"context"
	"fmt"

	"github.com/confetex/tracker/internal/domain"
	"github.com/confetex/tracker/internal/interfaces"
)

type progressRepository struct {
	db DB
}

func NewProgressRepository(db DB) interfaces.ProgressRepository {
	return &progressRepository{db: db}
}

// FindPending returns the order's single open pass. The unique partial index
// on (order_id) WHERE status = 'pending' guarantees at most one row.
func (r *progressRepository) FindPending(ctx context.Context, orderID int) (*domain.DepartmentProgress, error) {
	query := `
		SELECT id, order_id, department, status, completed_by, completed_at,
		       notes, returned_by, returned_at, created_at
		FROM department_progress
		WHERE order_id = $1 AND status = $2
	`

	var p domain.DepartmentProgress
	err := r.db.QueryRow(ctx, query, orderID, domain.ProgressPending).Scan(
		&p.ID, &p.OrderID, &p.Department, &p.Status, &p.CompletedBy, &p.CompletedAt,
		&p.Notes, &p.ReturnedBy, &p.ReturnedAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("no pending progress for order %d: %w", orderID, err)
	}
	return &p, nil
}

func (r *progressRepository) HistoryForOrder(ctx context.Context, orderID int) ([]*domain.DepartmentProgress, error) {
	query := `
		SELECT id, order_id, department, status, completed_by, completed_at,
		       notes, returned_by, returned_at, created_at
		FROM department_progress
		WHERE order_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order history: %w", err)
	}
	defer rows.Close()

	var history []*domain.DepartmentProgress
	for rows.Next() {
		var p domain.DepartmentProgress
		if err := rows.Scan(
			&p.ID, &p.OrderID, &p.Department, &p.Status, &p.CompletedBy, &p.CompletedAt,
			&p.Notes, &p.ReturnedBy, &p.ReturnedAt, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		history = append(history, &p)
	}
	return history, nil
}
