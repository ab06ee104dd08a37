package repository

import (
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	appErrors "github.com/mailroom/mailroom-backend/internal/errors"
	"github.com/mailroom/mailroom-backend/internal/model"
)

func newJobRepo(t *testing.T) (*JobRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return &JobRepository{DB: db}, mock
}

func sampleJob() (*model.Job, model.StatusChange) {
	now := time.Now()
	job := &model.Job{
		ID:          "job-1",
		Name:        "spring promo",
		TemplateID:  1,
		AccountID:   1,
		ListID:      1,
		CreatedBy:   "creator",
		CreatorRole: model.RoleManager,
		Status:      model.StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   &now,
	}
	change := model.StatusChange{
		JobID: job.ID, From: model.StatusDraft, To: model.StatusQueued,
		Actor: "creator", At: now,
	}
	return job, change
}

func TestCreateWritesJobAndHistoryTogether(t *testing.T) {
	repo, mock := newJobRepo(t)
	job, change := sampleJob()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(job.ID, job.Name, job.TemplateID, job.AccountID, job.ListID,
			job.CreatedBy, job.CreatorRole, job.Status, job.RequiresApproval, job.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO job_status_history").
		WithArgs(change.JobID, change.From, change.To, change.Actor, change.At).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.Create(job, change); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateRollsBackWhenHistoryInsertFails(t *testing.T) {
	repo, mock := newJobRepo(t)
	job, change := sampleJob()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO job_status_history").
		WillReturnError(errors.New("history write failed"))
	mock.ExpectRollback()

	if err := repo.Create(job, change); err == nil {
		t.Fatal("expected error when the audit record cannot be written")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSaveTransitionPairsUpdateWithAudit(t *testing.T) {
	repo, mock := newJobRepo(t)
	job, _ := sampleJob()
	now := time.Now()
	job.Status = model.StatusProcessing
	job.StartedAt = &now
	change := model.StatusChange{
		JobID: job.ID, From: model.StatusQueued, To: model.StatusProcessing,
		Actor: "worker", At: now,
	}

	mock.ExpectBegin()
	// Empty approved_by and rejection_reason must land as NULL, not "".
	mock.ExpectExec("UPDATE jobs").
		WithArgs(job.Status, job.RequiresApproval, nil, job.ApprovedAt,
			nil, job.StartedAt, job.CompletedAt, job.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO job_status_history").
		WithArgs(change.JobID, change.From, change.To, change.Actor, change.At).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.SaveTransition(job, change); err != nil {
		t.Fatalf("SaveTransition failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetByIDMissingJob(t *testing.T) {
	repo, mock := newJobRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE id=\\$1").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID("nope")
	var notFound *appErrors.ErrJobNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetByIDLoadsHistoryInOrder(t *testing.T) {
	repo, mock := newJobRepo(t)
	job, _ := sampleJob()

	jobRow := sqlmock.NewRows([]string{
		"id", "name", "template_id", "account_id", "list_id", "created_by", "creator_role",
		"status", "requires_approval", "approved_by", "approved_at", "rejection_reason",
		"started_at", "completed_at", "created_at", "updated_at",
	}).AddRow(job.ID, job.Name, job.TemplateID, job.AccountID, job.ListID,
		job.CreatedBy, string(job.CreatorRole), string(job.Status), job.RequiresApproval,
		nil, nil, nil, nil, nil, job.CreatedAt, job.UpdatedAt)

	now := time.Now()
	historyRows := sqlmock.NewRows([]string{"job_id", "from_status", "to_status", "actor", "changed_at"}).
		AddRow(job.ID, "draft", "queued", "creator", now.Add(-2*time.Minute)).
		AddRow(job.ID, "queued", "processing", "worker", now.Add(-time.Minute))

	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE id=\\$1").
		WithArgs(job.ID).WillReturnRows(jobRow)
	mock.ExpectQuery("FROM job_status_history").
		WithArgs(job.ID).WillReturnRows(historyRows)

	got, err := repo.GetByID(job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.ApprovedBy != "" || got.RejectionReason != "" {
		t.Errorf("NULL columns must scan to empty strings, got %q / %q", got.ApprovedBy, got.RejectionReason)
	}
	if len(got.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(got.History))
	}
	if got.History[0].To != model.StatusQueued || got.History[1].To != model.StatusProcessing {
		t.Errorf("history out of order: %v", got.History)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListJobsWithStatusFilter(t *testing.T) {
	repo, mock := newJobRepo(t)
	job, _ := sampleJob()

	rows := sqlmock.NewRows([]string{
		"id", "name", "template_id", "account_id", "list_id", "created_by", "creator_role",
		"status", "requires_approval", "approved_by", "approved_at", "rejection_reason",
		"started_at", "completed_at", "created_at", "updated_at",
	}).AddRow(job.ID, job.Name, job.TemplateID, job.AccountID, job.ListID,
		job.CreatedBy, string(job.CreatorRole), "queued", false,
		nil, nil, nil, nil, nil, job.CreatedAt, job.UpdatedAt)

	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE 1=1 AND status=\\$1 ORDER BY created_at DESC").
		WithArgs("queued", 20, 0).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM jobs WHERE 1=1 AND status=\\$1").
		WithArgs("queued").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	jobs, total, err := repo.ListJobs(0, 20, "queued")
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 1 || total != 1 {
		t.Errorf("got %d jobs, total %d; want 1", len(jobs), total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
