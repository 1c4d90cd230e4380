package domain

import (
	"errors"
	"time"
)

type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
)

// Order is a unit of work moving through the department pipeline.
type Order struct {
	ID                int
	Title             string
	ClientRef         string
	CurrentDepartment Department
	Status            OrderStatus
	Deadline          *time.Time
	CreatedBy         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

var (
	ErrInvalidTransition = errors.New("invalid department transition")
	ErrOrderCompleted    = errors.New("order is already completed")
	ErrFirstDepartment   = errors.New("order is in the first department, nothing to return to")
)

// NewOrder creates an order placed into the first pipeline stage.
func NewOrder(title, clientRef, createdBy string, deadline *time.Time) (*Order, error) {
	if len(title) < 1 || len(title) > 200 {
		return nil, errors.New("title must be 1-200 characters")
	}
	if len(clientRef) < 1 || len(clientRef) > 100 {
		return nil, errors.New("client reference must be 1-100 characters")
	}
	if deadline != nil && deadline.Before(time.Now()) {
		return nil, errors.New("deadline must be in the future")
	}

	now := time.Now()
	return &Order{
		Title:             title,
		ClientRef:         clientRef,
		CurrentDepartment: FirstDepartment(),
		Status:            OrderStatusActive,
		Deadline:          deadline,
		CreatedBy:         createdBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Advance moves the order to the next stage, or into the completed terminal
// state when the current stage is the last one. Returns the department the
// order landed in; for a completed order that is the stage it finished in.
func (o *Order) Advance() (Department, error) {
	if o.Status == OrderStatusCompleted {
		return "", ErrOrderCompleted
	}

	next, ok := NextDepartment(o.CurrentDepartment)
	o.UpdatedAt = time.Now()
	if !ok {
		now := time.Now()
		o.Status = OrderStatusCompleted
		o.CompletedAt = &now
		return o.CurrentDepartment, nil
	}

	o.CurrentDepartment = next
	return next, nil
}

// Return pushes the order back to the previous stage.
func (o *Order) Return() (Department, error) {
	if o.Status == OrderStatusCompleted {
		return "", ErrOrderCompleted
	}

	prev, ok := PreviousDepartment(o.CurrentDepartment)
	if !ok {
		return "", ErrFirstDepartment
	}

	o.CurrentDepartment = prev
	o.UpdatedAt = time.Now()
	return prev, nil
}
