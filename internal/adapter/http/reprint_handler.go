package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/confetex/tracker/internal/adapter/logger"
	"github.com/confetex/tracker/internal/interfaces"
)

type ReprintHandler struct {
	production interfaces.ProductionService
	queue      interfaces.QueueService
	logger     logger.Logger
}

func NewReprintHandler(production interfaces.ProductionService, queue interfaces.QueueService, logger logger.Logger) *ReprintHandler {
	return &ReprintHandler{
		production: production,
		queue:      queue,
		logger:     logger,
	}
}

type CreateReprintRequest struct {
	OrderID int    `json:"order_id"`
	Reason  string `json:"reason"`
}

type ProcessReprintRequest struct {
	Approve bool `json:"approve"`
}

// HandleReprints routes /reprints and /reprints/{id}/process.
func (h *ReprintHandler) HandleReprints(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.listOpen(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			respondError(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
		}
		return
	}

	if len(parts) != 3 || parts[2] != "process" {
		respondError(w, "Not found", http.StatusNotFound, nil)
		return
	}
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
		return
	}

	requestID, err := strconv.Atoi(parts[1])
	if err != nil {
		respondError(w, "Invalid reprint id", http.StatusBadRequest, nil)
		return
	}
	h.process(w, r, requestID)
}

func (h *ReprintHandler) listOpen(w http.ResponseWriter, r *http.Request) {
	open, err := h.queue.ListOpenReprints(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, open)
}

func (h *ReprintHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := IdentityFrom(r.Context())
	if !ok {
		respondError(w, "Authentication required", http.StatusUnauthorized, nil)
		return
	}

	var req CreateReprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		respondError(w, "Validation failed", http.StatusBadRequest, []ValidationError{
			{Field: "reason", Message: "reason is required"},
		})
		return
	}

	created, err := h.production.RequestReprint(r.Context(), actor, interfaces.ReprintCommand{
		OrderID: req.OrderID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *ReprintHandler) process(w http.ResponseWriter, r *http.Request, requestID int) {
	actor, ok := IdentityFrom(r.Context())
	if !ok {
		respondError(w, "Authentication required", http.StatusUnauthorized, nil)
		return
	}

	var req ProcessReprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	processed, err := h.production.ProcessReprint(r.Context(), actor, interfaces.ProcessReprintCommand{
		RequestID: requestID,
		Approve:   req.Approve,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, processed)
}
