package domain

import (
	"errors"
	"time"
)

type ReprintStatus string

const (
	ReprintOpen     ReprintStatus = "open"
	ReprintApproved ReprintStatus = "approved"
	ReprintRejected ReprintStatus = "rejected"
)

// ReprintRequest asks the printing department to redo an order's output,
// typically raised downstream when a defect is found.
type ReprintRequest struct {
	ID          int
	OrderID     int
	RequestedBy string
	Reason      string
	Status      ReprintStatus
	ProcessedBy *string
	ProcessedAt *time.Time
	CreatedAt   time.Time
}

var ErrReprintProcessed = errors.New("reprint request already processed")

func NewReprintRequest(orderID int, requestedBy, reason string) (*ReprintRequest, error) {
	if reason == "" {
		return nil, errors.New("reprint reason is required")
	}
	return &ReprintRequest{
		OrderID:     orderID,
		RequestedBy: requestedBy,
		Reason:      reason,
		Status:      ReprintOpen,
		CreatedAt:   time.Now(),
	}, nil
}

// Process resolves an open request as approved or rejected.
func (r *ReprintRequest) Process(by string, approve bool) error {
	if r.Status != ReprintOpen {
		return ErrReprintProcessed
	}
	now := time.Now()
	if approve {
		r.Status = ReprintApproved
	} else {
		r.Status = ReprintRejected
	}
	r.ProcessedBy = &by
	r.ProcessedAt = &now
	return nil
}
