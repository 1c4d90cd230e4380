package domain

import "time"

type ProgressStatus string

const (
	ProgressPending   ProgressStatus = "pending"
	ProgressCompleted ProgressStatus = "completed"
)

// DepartmentProgress is one record per (order, department) pass. At most one
// row per order is pending at a time; it marks the order's current position.
// A new pass through the same department (after a return) is a new row.
type DepartmentProgress struct {
	ID          int
	OrderID     int
	Department  Department
	Status      ProgressStatus
	CompletedBy *string
	CompletedAt *time.Time
	Notes       *string
	ReturnedBy  *string
	ReturnedAt  *time.Time
	CreatedAt   time.Time
}

// NewProgress opens a pending pass for an order entering a department.
func NewProgress(orderID int, dept Department) *DepartmentProgress {
	return &DepartmentProgress{
		OrderID:    orderID,
		Department: dept,
		Status:     ProgressPending,
		CreatedAt:  time.Now(),
	}
}

// Complete marks the pass done. Notes are optional operator remarks.
func (p *DepartmentProgress) Complete(by string, notes *string) {
	now := time.Now()
	p.Status = ProgressCompleted
	p.CompletedBy = &by
	p.CompletedAt = &now
	p.Notes = notes
}

// MarkReturned records who pushed the order back and when. The pass stays
// completed; the reopened work lives in the new pending row.
func (p *DepartmentProgress) MarkReturned(by string) {
	now := time.Now()
	p.ReturnedBy = &by
	p.ReturnedAt = &now
}
