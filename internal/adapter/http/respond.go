package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/confetex/tracker/internal/app/production"
	"github.com/confetex/tracker/internal/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, message string, status int, details []ValidationError) {
	respondJSON(w, status, ErrorResponse{Error: message, Errors: details})
}

// respondServiceError maps service and domain errors onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, production.ErrNotAuthorized):
		respondError(w, err.Error(), http.StatusForbidden, nil)
	case errors.Is(err, domain.ErrUnknownDepartment):
		respondError(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, domain.ErrOrderCompleted),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrFirstDepartment),
		errors.Is(err, domain.ErrReprintProcessed),
		errors.Is(err, production.ErrNoPendingWork):
		respondError(w, err.Error(), http.StatusConflict, nil)
	default:
		respondError(w, err.Error(), http.StatusBadRequest, nil)
	}
}
