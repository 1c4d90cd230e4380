package domain

import "errors"

type Department string

const (
	DeptAdmin     Department = "admin"
	DeptModelagem Department = "modelagem"
	DeptImpressao Department = "impressao"
	DeptCorte     Department = "corte"
	DeptCostura   Department = "costura"
	DeptEmbalagem Department = "embalagem"
)

// pipeline is the fixed production order. Admin is not a stage: it is the
// cross-cutting department that sees every order.
var pipeline = []Department{
	DeptModelagem,
	DeptImpressao,
	DeptCorte,
	DeptCostura,
	DeptEmbalagem,
}

var ErrUnknownDepartment = errors.New("unknown department")

// Pipeline returns the ordered workflow stages, excluding admin.
func Pipeline() []Department {
	out := make([]Department, len(pipeline))
	copy(out, pipeline)
	return out
}

// AllDepartments returns every valid registration target, admin included.
func AllDepartments() []Department {
	return append([]Department{DeptAdmin}, Pipeline()...)
}

// Valid reports whether d can be registered to or routed through.
func Valid(d Department) bool {
	if d == DeptAdmin {
		return true
	}
	return Position(d) >= 0
}

// Position returns the zero-based stage index, or -1 for non-stage
// departments (admin included).
func Position(d Department) int {
	for i, p := range pipeline {
		if p == d {
			return i
		}
	}
	return -1
}

// FirstDepartment is where every new order starts.
func FirstDepartment() Department {
	return pipeline[0]
}

// NextDepartment returns the stage after d, or false when d is the last
// stage (the order then completes).
func NextDepartment(d Department) (Department, bool) {
	i := Position(d)
	if i < 0 || i+1 >= len(pipeline) {
		return "", false
	}
	return pipeline[i+1], true
}

// PreviousDepartment returns the stage before d, or false when d is the
// first stage (nothing to return the order to).
func PreviousDepartment(d Department) (Department, bool) {
	i := Position(d)
	if i <= 0 {
		return "", false
	}
	return pipeline[i-1], true
}
