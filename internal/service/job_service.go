// internal/service/job_service.go
package service

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/mailroom/mailroom-backend/internal/errors"
	"github.com/mailroom/mailroom-backend/internal/model"
)

// JobStore persists jobs and their audit trail. Create and
// SaveTransition must write the job row and the history row in one
// atomic unit: an acknowledged transition is never lost and never
// appears without its audit record.
type JobStore interface {
	GetByID(id string) (*model.Job, error)
	Create(job *model.Job, change model.StatusChange) error
	SaveTransition(job *model.Job, change model.StatusChange) error
}

// JobService is the only code allowed to change a job's status. Every
// accepted transition appends exactly one history record as a side
// effect of the status change itself; concurrent transitions on one job
// are serialized through a per-job mutex.
type JobService struct {
	Jobs JobStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewJobService(store JobStore) *JobService {
	return &JobService{
		Jobs:  store,
		locks: make(map[string]*sync.Mutex),
	}
}

// legalEdges lists the lifecycle graph, cancellation aside. Terminal
// states have no outgoing edges.
var legalEdges = map[model.JobStatus][]model.JobStatus{
	model.StatusDraft:           {model.StatusPendingApproval, model.StatusQueued},
	model.StatusPendingApproval: {model.StatusApproved, model.StatusDraft},
	model.StatusApproved:        {model.StatusQueued, model.StatusProcessing},
	model.StatusQueued:          {model.StatusProcessing},
	model.StatusProcessing:      {model.StatusCompleted, model.StatusFailed},
}

func legalEdge(from, to model.JobStatus) bool {
	if to == model.StatusCancelled {
		return !from.Terminal()
	}
	for _, next := range legalEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *JobService) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// transition is the single choke point for status changes. It validates
// the edge, appends the history record and persists both together, so no
// code path can move a job without auditing it.
func (s *JobService) transition(job *model.Job, to model.JobStatus, actor string) error {
	from := job.Status
	if !legalEdge(from, to) {
		return appErrors.NewInvalidTransition(job.ID, from, to)
	}
	// A draft that requires approval may not jump straight to queued:
	// its only way forward is pending_approval. This closes the gate for
	// rejected jobs that came back to draft with the flag still set.
	if from == model.StatusDraft && to == model.StatusQueued && job.RequiresApproval {
		return appErrors.NewInvalidTransition(job.ID, from, to)
	}

	change := model.StatusChange{
		JobID: job.ID,
		From:  from,
		To:    to,
		Actor: actor,
		At:    time.Now(),
	}
	job.Status = to
	job.History = append(job.History, change)

	if err := s.Jobs.SaveTransition(job, change); err != nil {
		job.Status = from
		job.History = job.History[:len(job.History)-1]
		return err
	}
	return nil
}

type CreateJobParams struct {
	Name            string
	TemplateID      int
	AccountID       int
	ListID          int
	Actor           string
	Role            model.Role
	RequestApproval bool
}

// CreateJob registers a new job. Member-created jobs are always forced
// through review; higher tiers go straight to queued unless they ask for
// review explicitly.
func (s *JobService) CreateJob(p CreateJobParams) (*model.Job, error) {
	job := &model.Job{
		ID:          uuid.New().String(),
		Name:        p.Name,
		TemplateID:  p.TemplateID,
		AccountID:   p.AccountID,
		ListID:      p.ListID,
		CreatedBy:   p.Actor,
		CreatorRole: p.Role,
		Status:      model.StatusDraft,
		CreatedAt:   time.Now(),
	}

	initial := model.StatusQueued
	if !p.Role.AtLeast(model.RoleManager) || p.RequestApproval {
		job.RequiresApproval = true
		initial = model.StatusPendingApproval
	}

	change := model.StatusChange{
		JobID: job.ID,
		From:  model.StatusDraft,
		To:    initial,
		Actor: p.Actor,
		At:    job.CreatedAt,
	}
	job.Status = initial
	job.History = []model.StatusChange{change}

	if err := s.Jobs.Create(job, change); err != nil {
		return nil, err
	}
	return job, nil
}

// Approve moves a pending job to approved. Requires at least manager
// privilege regardless of the job's state; clears any earlier rejection.
func (s *JobService) Approve(jobID, actor string, role model.Role) (*model.Job, error) {
	if !role.AtLeast(model.RoleManager) {
		return nil, appErrors.NewUnauthorized(role, "approve jobs")
	}

	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.Jobs.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusPendingApproval {
		return nil, appErrors.NewInvalidTransition(jobID, job.Status, model.StatusApproved)
	}

	now := time.Now()
	job.ApprovedBy = actor
	job.ApprovedAt = &now
	job.RejectionReason = ""
	if err := s.transition(job, model.StatusApproved, actor); err != nil {
		return nil, err
	}
	return job, nil
}

// Reject sends a pending job back to draft for editing and
// resubmission. There is no terminal rejected state: the stored reason
// and the history are the only signals the draft came back from review.
func (s *JobService) Reject(jobID, actor string, role model.Role, reason string) (*model.Job, error) {
	if !role.AtLeast(model.RoleManager) {
		return nil, appErrors.NewUnauthorized(role, "reject jobs")
	}

	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.Jobs.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusPendingApproval {
		return nil, appErrors.NewInvalidTransition(jobID, job.Status, model.StatusDraft)
	}

	job.RejectionReason = strings.TrimSpace(reason)
	if err := s.transition(job, model.StatusDraft, actor); err != nil {
		return nil, err
	}
	return job, nil
}

// Submit re-enters a draft into the pipeline: back to review when the
// job requires approval, straight to queued otherwise.
func (s *JobService) Submit(jobID, actor string) (*model.Job, error) {
	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.Jobs.GetByID(jobID)
	if err != nil {
		return nil, err
	}

	next := model.StatusQueued
	if job.RequiresApproval {
		next = model.StatusPendingApproval
	}
	if err := s.transition(job, next, actor); err != nil {
		return nil, err
	}
	return job, nil
}

// MarkQueued hands an approved job to the dispatch queue.
func (s *JobService) MarkQueued(jobID, actor string) (*model.Job, error) {
	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.Jobs.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == model.StatusQueued {
		return job, nil
	}
	if err := s.transition(job, model.StatusQueued, actor); err != nil {
		return nil, err
	}
	return job, nil
}

// StartProcessing marks the moment a worker picks the job up.
func (s *JobService) StartProcessing(jobID, actor string) (*model.Job, error) {
	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.Jobs.GetByID(jobID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	job.StartedAt = &now
	if err := s.transition(job, model.StatusProcessing, actor); err != nil {
		job.StartedAt = nil
		return nil, err
	}
	return job, nil
}

// Complete finishes a processing job.
func (s *JobService) Complete(jobID, actor string, success bool) (*model.Job, error) {
	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.Jobs.GetByID(jobID)
	if err != nil {
		return nil, err
	}

	final := model.StatusCompleted
	if !success {
		final = model.StatusFailed
	}
	now := time.Now()
	job.CompletedAt = &now
	if err := s.transition(job, final, actor); err != nil {
		job.CompletedAt = nil
		return nil, err
	}
	return job, nil
}

// Cancel is legal from any non-terminal state.
func (s *JobService) Cancel(jobID, actor string) (*model.Job, error) {
	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.Jobs.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(job, model.StatusCancelled, actor); err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob fetches a job with its history.
func (s *JobService) GetJob(jobID string) (*model.Job, error) {
	return s.Jobs.GetByID(jobID)
}
