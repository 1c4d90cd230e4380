package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/confetex/tracker/internal/adapter/logger"
	"github.com/confetex/tracker/internal/domain"
	"github.com/confetex/tracker/internal/interfaces"
)

type OrderHandler struct {
	production interfaces.ProductionService
	queue      interfaces.QueueService
	logger     logger.Logger
}

func NewOrderHandler(production interfaces.ProductionService, queue interfaces.QueueService, logger logger.Logger) *OrderHandler {
	return &OrderHandler{
		production: production,
		queue:      queue,
		logger:     logger,
	}
}

type CreateOrderRequest struct {
	Title     string     `json:"title"`
	ClientRef string     `json:"client_ref"`
	Deadline  *time.Time `json:"deadline,omitempty"`
}

type OrderResponse struct {
	ID                int        `json:"id"`
	Title             string     `json:"title"`
	ClientRef         string     `json:"client_ref"`
	CurrentDepartment string     `json:"current_department"`
	Status            string     `json:"status"`
	Deadline          *time.Time `json:"deadline,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

type actionRequest struct {
	Notes *string `json:"notes,omitempty"`
}

// HandleOrders routes /orders and /orders/{id}/{action}.
func (h *OrderHandler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	if len(parts) == 1 {
		if r.Method != http.MethodPost {
			respondError(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
			return
		}
		h.createOrder(w, r)
		return
	}

	if len(parts) != 3 {
		respondError(w, "Not found", http.StatusNotFound, nil)
		return
	}

	orderID, err := strconv.Atoi(parts[1])
	if err != nil {
		respondError(w, "Invalid order id", http.StatusBadRequest, nil)
		return
	}

	switch parts[2] {
	case "history":
		if r.Method != http.MethodGet {
			respondError(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
			return
		}
		h.getHistory(w, r, orderID)
	case "complete":
		if r.Method != http.MethodPost {
			respondError(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
			return
		}
		h.completeOrder(w, r, orderID)
	case "return":
		if r.Method != http.MethodPost {
			respondError(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
			return
		}
		h.returnOrder(w, r, orderID)
	default:
		respondError(w, "Not found", http.StatusNotFound, nil)
	}
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := IdentityFrom(r.Context())
	if !ok {
		respondError(w, "Authentication required", http.StatusUnauthorized, nil)
		return
	}

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if validationErrors := validateCreateOrderRequest(req); len(validationErrors) > 0 {
		respondError(w, "Validation failed", http.StatusBadRequest, validationErrors)
		return
	}

	cmd := interfaces.CreateOrderCommand{
		Title:     strings.TrimSpace(req.Title),
		ClientRef: strings.TrimSpace(req.ClientRef),
		Deadline:  req.Deadline,
	}

	order, err := h.production.CreateOrder(r.Context(), actor, cmd)
	if err != nil {
		h.logger.Error("order_creation_failed", "Failed to create order", "", nil, err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, orderResponse(order))
}

func (h *OrderHandler) completeOrder(w http.ResponseWriter, r *http.Request, orderID int) {
	actor, ok := IdentityFrom(r.Context())
	if !ok {
		respondError(w, "Authentication required", http.StatusUnauthorized, nil)
		return
	}

	var req actionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, "Invalid request body", http.StatusBadRequest, nil)
			return
		}
	}

	order, err := h.production.CompleteDepartment(r.Context(), actor, interfaces.CompleteCommand{
		OrderID: orderID,
		Notes:   req.Notes,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, orderResponse(order))
}

func (h *OrderHandler) returnOrder(w http.ResponseWriter, r *http.Request, orderID int) {
	actor, ok := IdentityFrom(r.Context())
	if !ok {
		respondError(w, "Authentication required", http.StatusUnauthorized, nil)
		return
	}

	var req actionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, "Invalid request body", http.StatusBadRequest, nil)
			return
		}
	}

	order, err := h.production.ReturnToPrevious(r.Context(), actor, interfaces.ReturnCommand{
		OrderID: orderID,
		Notes:   req.Notes,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, orderResponse(order))
}

func (h *OrderHandler) getHistory(w http.ResponseWriter, r *http.Request, orderID int) {
	history, err := h.queue.GetHistory(r.Context(), orderID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func validateCreateOrderRequest(req CreateOrderRequest) []ValidationError {
	var errors []ValidationError

	title := strings.TrimSpace(req.Title)
	if len(title) < 1 {
		errors = append(errors, ValidationError{
			Field:   "title",
			Message: "title is required",
		})
	} else if len(title) > 200 {
		errors = append(errors, ValidationError{
			Field:   "title",
			Message: "title must not exceed 200 characters",
		})
	}

	clientRef := strings.TrimSpace(req.ClientRef)
	if len(clientRef) < 1 {
		errors = append(errors, ValidationError{
			Field:   "client_ref",
			Message: "client reference is required",
		})
	} else if len(clientRef) > 100 {
		errors = append(errors, ValidationError{
			Field:   "client_ref",
			Message: "client reference must not exceed 100 characters",
		})
	}

	if req.Deadline != nil && req.Deadline.Before(time.Now()) {
		errors = append(errors, ValidationError{
			Field:   "deadline",
			Message: "deadline must be in the future",
		})
	}

	return errors
}

func orderResponse(o *domain.Order) OrderResponse {
	return OrderResponse{
		ID:                o.ID,
		Title:             o.Title,
		ClientRef:         o.ClientRef,
		CurrentDepartment: string(o.CurrentDepartment),
		Status:            string(o.Status),
		Deadline:          o.Deadline,
		CompletedAt:       o.CompletedAt,
	}
}
