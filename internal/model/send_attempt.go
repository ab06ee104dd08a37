// internal/model/send_attempt.go
package model

import "time"

type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeBounced Outcome = "bounced"
)

// SendAttempt is the terminal result for one recipient in one job.
// Retries inside a single send are not recorded separately, only the
// final outcome is.
type SendAttempt struct {
	ID          string    `db:"id" json:"id"`
	JobID       string    `db:"job_id" json:"job_id"`
	RecipientID int       `db:"recipient_id" json:"recipient_id"`
	Email       string    `db:"email" json:"email"`
	Outcome     Outcome   `db:"outcome" json:"outcome"`
	ErrorDetail string    `db:"error_detail" json:"error_detail,omitempty"`
	DurationMs  int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
