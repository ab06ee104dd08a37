package repository

import (
	"database/sql"
	"fmt"

	appErrors "github.com/mailroom/mailroom-backend/internal/errors"
	"github.com/mailroom/mailroom-backend/internal/model"
)

type JobRepositoryInterface interface {
	GetByID(id string) (*model.Job, error)
	Create(job *model.Job, change model.StatusChange) error
	SaveTransition(job *model.Job, change model.StatusChange) error
	ListJobs(offset, limit int, status string) ([]*model.Job, int, error)
}

type JobRepository struct {
	DB *sql.DB
}

const jobColumns = `id, name, template_id, account_id, list_id, created_by, creator_role, status,
	requires_approval, approved_by, approved_at, rejection_reason, started_at, completed_at, created_at, updated_at`

// Create inserts the job together with its first history record in one
// transaction. A job row never exists without its creation edge.
func (r *JobRepository) Create(job *model.Job, change model.StatusChange) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
        INSERT INTO jobs (id, name, template_id, account_id, list_id, created_by, creator_role, status, requires_approval, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, job.ID, job.Name, job.TemplateID, job.AccountID, job.ListID, job.CreatedBy, job.CreatorRole, job.Status, job.RequiresApproval, job.CreatedAt)
	if err != nil {
		tx.Rollback()
		return err
	}

	if err := insertHistory(tx, change); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SaveTransition persists a status change and its audit record
// atomically. This is the trigger-style invariant: the two writes share
// a transaction, so there is no way to observe one without the other.
func (r *JobRepository) SaveTransition(job *model.Job, change model.StatusChange) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
        UPDATE jobs
        SET status=$1, requires_approval=$2, approved_by=$3, approved_at=$4,
            rejection_reason=$5, started_at=$6, completed_at=$7, updated_at=NOW()
        WHERE id=$8
    `, job.Status, job.RequiresApproval, nullStr(job.ApprovedBy), job.ApprovedAt,
		nullStr(job.RejectionReason), job.StartedAt, job.CompletedAt, job.ID)
	if err != nil {
		tx.Rollback()
		return err
	}

	if err := insertHistory(tx, change); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertHistory(tx *sql.Tx, change model.StatusChange) error {
	_, err := tx.Exec(`
        INSERT INTO job_status_history (job_id, from_status, to_status, actor, changed_at)
        VALUES ($1, $2, $3, $4, $5)
    `, change.JobID, change.From, change.To, change.Actor, change.At)
	return err
}

func (r *JobRepository) GetByID(id string) (*model.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE id=$1`, jobColumns)

	job, err := scanJob(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewJobNotFound(id)
		}
		return nil, err
	}

	history, err := r.getHistory(id)
	if err != nil {
		return nil, err
	}
	job.History = history
	return job, nil
}

func (r *JobRepository) getHistory(jobID string) ([]model.StatusChange, error) {
	rows, err := r.DB.Query(`
        SELECT job_id, from_status, to_status, actor, changed_at
        FROM job_status_history
        WHERE job_id=$1
        ORDER BY changed_at ASC, id ASC
    `, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []model.StatusChange{}
	for rows.Next() {
		var c model.StatusChange
		if err := rows.Scan(&c.JobID, &c.From, &c.To, &c.Actor, &c.At); err != nil {
			return nil, err
		}
		history = append(history, c)
	}
	return history, rows.Err()
}

func (r *JobRepository) ListJobs(offset, limit int, status string) ([]*model.Job, int, error) {
	jobs := []*model.Job{}
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE 1=1`, jobColumns)
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM jobs WHERE 1=1`
	argsCount := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return jobs, total, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var job model.Job
	var approvedBy, rejectionReason sql.NullString
	err := row.Scan(
		&job.ID, &job.Name, &job.TemplateID, &job.AccountID, &job.ListID,
		&job.CreatedBy, &job.CreatorRole, &job.Status, &job.RequiresApproval,
		&approvedBy, &job.ApprovedAt, &rejectionReason,
		&job.StartedAt, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.ApprovedBy = approvedBy.String
	job.RejectionReason = rejectionReason.String
	return &job, nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

var _ JobRepositoryInterface = (*JobRepository)(nil)
