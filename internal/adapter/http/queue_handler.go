package http

import (
	"net/http"
	"strings"

	"github.com/confetex/tracker/internal/adapter/logger"
	"github.com/confetex/tracker/internal/domain"
	"github.com/confetex/tracker/internal/interfaces"
)

type QueueHandler struct {
	queue  interfaces.QueueService
	logger logger.Logger
}

func NewQueueHandler(queue interfaces.QueueService, logger logger.Logger) *QueueHandler {
	return &QueueHandler{queue: queue, logger: logger}
}

// HandleDepartments routes /departments/{dept}/queue and
// /departments/{dept}/stats.
func (h *QueueHandler) HandleDepartments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 {
		respondError(w, "Not found", http.StatusNotFound, nil)
		return
	}
	dept := domain.Department(parts[1])

	switch parts[2] {
	case "queue":
		items, err := h.queue.GetQueue(r.Context(), dept)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, items)
	case "stats":
		stats, err := h.queue.GetStats(r.Context(), dept)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, stats)
	default:
		respondError(w, "Not found", http.StatusNotFound, nil)
	}
}

// HandleCounts serves the per-department active-order counts for the board
// header.
func (h *QueueHandler) HandleCounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
		return
	}

	counts, err := h.queue.GetCounts(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}
