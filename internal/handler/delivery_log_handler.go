// internal/handler/delivery_log_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mailroom/mailroom-backend/internal/repository"
)

// DeliveryLogHandler serves the audit-trail read endpoints.
type DeliveryLogHandler struct {
	Log repository.DeliveryLogRepositoryInterface
}

func NewDeliveryLogHandler(log repository.DeliveryLogRepositoryInterface) *DeliveryLogHandler {
	return &DeliveryLogHandler{Log: log}
}

// ListJobAttempts returns a job's send attempts, newest first, optionally
// filtered by outcome.
func (h *DeliveryLogHandler) ListJobAttempts(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	outcome := r.URL.Query().Get("outcome")
	page, pageSize := pageParams(r)

	attempts, total, err := h.Log.ListByJob(jobID, outcome, (page-1)*pageSize, pageSize)
	if err != nil {
		http.Error(w, "failed to fetch attempts: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writePage(w, attempts, page, pageSize, total)
}

// JobStats returns outcome counts for one job.
func (h *DeliveryLogHandler) JobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Log.GetJobStats(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "failed to fetch stats: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// SearchAttempts substring-matches error messages and recipient emails.
func (h *DeliveryLogHandler) SearchAttempts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, "missing query parameter q", http.StatusBadRequest)
		return
	}
	page, pageSize := pageParams(r)

	attempts, total, err := h.Log.Search(q, (page-1)*pageSize, pageSize)
	if err != nil {
		http.Error(w, "search failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writePage(w, attempts, page, pageSize, total)
}

func pageParams(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if ps, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && ps > 0 && ps <= 100 {
		pageSize = ps
	}
	return page, pageSize
}

func writePage(w http.ResponseWriter, data interface{}, page, pageSize, total int) {
	totalPages := (total + pageSize - 1) / pageSize
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": data,
		"pagination": map[string]int{
			"page":        page,
			"page_size":   pageSize,
			"total_count": total,
			"total_pages": totalPages,
		},
	})
}
