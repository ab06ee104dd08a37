// internal/controller/job_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/mailroom/mailroom-backend/internal/errors"
	"github.com/mailroom/mailroom-backend/internal/model"
	"github.com/mailroom/mailroom-backend/internal/queue"
	"github.com/mailroom/mailroom-backend/internal/repository"
	"github.com/mailroom/mailroom-backend/internal/service"
)

type JobController struct {
	JobService *service.JobService
	Jobs       repository.JobRepositoryInterface
	Queue      queue.Queue
}

// DispatchMessage is the payload published for the worker.
type DispatchMessage struct {
	JobID string `json:"job_id"`
}

func (c *JobController) CreateJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name            string `json:"name"`
		TemplateID      int    `json:"template_id"`
		AccountID       int    `json:"account_id"`
		ListID          int    `json:"list_id"`
		Actor           string `json:"actor"`
		Role            string `json:"role"`
		RequestApproval bool   `json:"request_approval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	job, err := c.JobService.CreateJob(service.CreateJobParams{
		Name:            body.Name,
		TemplateID:      body.TemplateID,
		AccountID:       body.AccountID,
		ListID:          body.ListID,
		Actor:           body.Actor,
		Role:            model.Role(body.Role),
		RequestApproval: body.RequestApproval,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(job)
}

func (c *JobController) ListJobs(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	jobs, total, err := c.Jobs.ListJobs(offset, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}

	totalPages := (total + pageSize - 1) / pageSize
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": jobs,
		"pagination": map[string]int{
			"page":        page,
			"page_size":   pageSize,
			"total_count": total,
			"total_pages": totalPages,
		},
	})
}

func (c *JobController) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := c.JobService.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

func (c *JobController) ApproveJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actor string `json:"actor"`
		Role  string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	job, err := c.JobService.Approve(chi.URLParam(r, "id"), body.Actor, model.Role(body.Role))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

func (c *JobController) RejectJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actor  string `json:"actor"`
		Role   string `json:"role"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	job, err := c.JobService.Reject(chi.URLParam(r, "id"), body.Actor, model.Role(body.Role), body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

func (c *JobController) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actor string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	job, err := c.JobService.Submit(chi.URLParam(r, "id"), body.Actor)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

func (c *JobController) CancelJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actor string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	job, err := c.JobService.Cancel(chi.URLParam(r, "id"), body.Actor)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

// DispatchJob hands an approved or queued job to the worker. This is
// the only door into the dispatcher: the worker re-checks state, so a
// stale queue entry for a since-cancelled job is dropped there.
func (c *JobController) DispatchJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actor string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	jobID := chi.URLParam(r, "id")
	job, err := c.JobService.MarkQueued(jobID, body.Actor)
	if err != nil {
		writeError(w, err)
		return
	}

	payload, _ := json.Marshal(DispatchMessage{JobID: jobID})
	if err := c.Queue.Publish(queue.TopicJobDispatch, payload); err != nil {
		log.Println("⚠️ failed to enqueue job", jobID, ":", err)
		http.Error(w, "failed to enqueue job", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// writeError maps the typed domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var (
		notFound     *appErrors.ErrJobNotFound
		unauthorized *appErrors.ErrUnauthorized
		badState     *appErrors.ErrInvalidTransition
	)
	switch {
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &unauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.As(err, &badState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
