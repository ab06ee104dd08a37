package repository

import (
	"database/sql"
	"fmt"

	"github.com/mailroom/mailroom-backend/internal/model"
)

// DeliveryLogRepositoryInterface is the append-only audit store for send
// attempts. There is deliberately no update or delete: corrections are
// new records.
type DeliveryLogRepositoryInterface interface {
	InsertAttempts(attempts []model.SendAttempt) error
	ListByJob(jobID string, outcome string, offset, limit int) ([]model.SendAttempt, int, error)
	Search(q string, offset, limit int) ([]model.SendAttempt, int, error)
	GetJobStats(jobID string) (map[string]int, error)
}

type DeliveryLogRepository struct {
	DB *sql.DB
}

const attemptColumns = `id, job_id, recipient_id, email, outcome, error_detail, duration_ms, created_at`

// InsertAttempts appends one batch's results in a single transaction.
func (r *DeliveryLogRepository) InsertAttempts(attempts []model.SendAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
        INSERT INTO send_attempts (id, job_id, recipient_id, email, outcome, error_detail, duration_ms, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, a := range attempts {
		if _, err := stmt.Exec(a.ID, a.JobID, a.RecipientID, a.Email, a.Outcome, a.ErrorDetail, a.DurationMs, a.CreatedAt); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListByJob returns a job's attempts newest-first, optionally filtered
// by outcome, with the total for pagination.
func (r *DeliveryLogRepository) ListByJob(jobID string, outcome string, offset, limit int) ([]model.SendAttempt, int, error) {
	query := fmt.Sprintf(`SELECT %s FROM send_attempts WHERE job_id=$1`, attemptColumns)
	countQuery := `SELECT COUNT(*) FROM send_attempts WHERE job_id=$1`
	args := []interface{}{jobID}
	argPos := 2

	if outcome != "" {
		query += fmt.Sprintf(" AND outcome=$%d", argPos)
		countQuery += fmt.Sprintf(" AND outcome=$%d", argPos)
		args = append(args, outcome)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)

	attempts, err := r.queryAttempts(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return attempts, total, nil
}

// Search does a substring match over error details and recipient
// addresses, newest-first.
func (r *DeliveryLogRepository) Search(q string, offset, limit int) ([]model.SendAttempt, int, error) {
	pattern := "%" + q + "%"
	query := fmt.Sprintf(`
        SELECT %s FROM send_attempts
        WHERE error_detail ILIKE $1 OR email ILIKE $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3
    `, attemptColumns)

	attempts, err := r.queryAttempts(query, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM send_attempts WHERE error_detail ILIKE $1 OR email ILIKE $1`
	if err := r.DB.QueryRow(countQuery, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	return attempts, total, nil
}

func (r *DeliveryLogRepository) GetJobStats(jobID string) (map[string]int, error) {
	query := `SELECT outcome, COUNT(*) FROM send_attempts WHERE job_id=$1 GROUP BY outcome`
	rows, err := r.DB.Query(query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"sent": 0, "failed": 0, "bounced": 0, "total": 0}
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		if _, ok := stats[outcome]; ok {
			stats[outcome] = count
		}
		stats["total"] += count
	}
	return stats, rows.Err()
}

func (r *DeliveryLogRepository) queryAttempts(query string, args ...interface{}) ([]model.SendAttempt, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []model.SendAttempt{}
	for rows.Next() {
		var a model.SendAttempt
		var errDetail sql.NullString
		if err := rows.Scan(&a.ID, &a.JobID, &a.RecipientID, &a.Email, &a.Outcome, &errDetail, &a.DurationMs, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ErrorDetail = errDetail.String
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

var _ DeliveryLogRepositoryInterface = (*DeliveryLogRepository)(nil)
