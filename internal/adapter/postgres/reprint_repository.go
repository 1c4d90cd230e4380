package postgres

import (
	"context"
	"fmt"

	"github.com/confetex/tracker/internal/domain"
	"github.com/confetex/tracker/internal/interfaces"
)

type reprintRepository struct {
	db DB
}

func NewReprintRepository(db DB) interfaces.ReprintRepository {
	return &reprintRepository{db: db}
}

func (r *reprintRepository) Create(ctx context.Context, req *domain.ReprintRequest) error {
	query := `
		INSERT INTO reprint_requests (order_id, requested_by, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		req.OrderID, req.RequestedBy, req.Reason, req.Status, req.CreatedAt,
	).Scan(&req.ID)
	if err != nil {
		return fmt.Errorf("failed to insert reprint request: %w", err)
	}
	return nil
}

func (r *reprintRepository) FindByID(ctx context.Context, id int) (*domain.ReprintRequest, error) {
	query := `
		SELECT id, order_id, requested_by, reason, status, processed_by, processed_at, created_at
		FROM reprint_requests
		WHERE id = $1
	`

	var req domain.ReprintRequest
	err := r.db.QueryRow(ctx, query, id).Scan(
		&req.ID, &req.OrderID, &req.RequestedBy, &req.Reason, &req.Status,
		&req.ProcessedBy, &req.ProcessedAt, &req.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("reprint request not found: %w", err)
	}
	return &req, nil
}

func (r *reprintRepository) Update(ctx context.Context, req *domain.ReprintRequest) error {
	query := `
		UPDATE reprint_requests
		SET status = $1, processed_by = $2, processed_at = $3
		WHERE id = $4
	`
	tag, err := r.db.Exec(ctx, query, req.Status, req.ProcessedBy, req.ProcessedAt, req.ID)
	if err != nil {
		return fmt.Errorf("failed to update reprint request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reprint request %d not found", req.ID)
	}
	return nil
}

func (r *reprintRepository) ListOpen(ctx context.Context) ([]*domain.ReprintRequest, error) {
	query := `
		SELECT id, order_id, requested_by, reason, status, processed_by, processed_at, created_at
		FROM reprint_requests
		WHERE status = $1
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, domain.ReprintOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to list reprint requests: %w", err)
	}
	defer rows.Close()

	var open []*domain.ReprintRequest
	for rows.Next() {
		var req domain.ReprintRequest
		if err := rows.Scan(
			&req.ID, &req.OrderID, &req.RequestedBy, &req.Reason, &req.Status,
			&req.ProcessedBy, &req.ProcessedAt, &req.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reprint request: %w", err)
		}
		open = append(open, &req)
	}
	return open, nil
}
