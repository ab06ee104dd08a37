// internal/errors/errors.go
package appErrors

import (
	"fmt"

	"github.com/mailroom/mailroom-backend/internal/model"
)

// ErrJobNotFound is a sentinel error
type ErrJobNotFound struct {
	JobID string
}

func (e *ErrJobNotFound) Error() string {
	return fmt.Sprintf("job with ID %s not found", e.JobID)
}

// Helper constructor
func NewJobNotFound(id string) error {
	return &ErrJobNotFound{JobID: id}
}

// ErrAccountNotFound means no SMTP account exists under the given ID.
// Deliberately distinct from ErrDecryptionFailed.
type ErrAccountNotFound struct {
	AccountID int
}

func (e *ErrAccountNotFound) Error() string {
	return fmt.Sprintf("smtp account with ID %d not found", e.AccountID)
}

func NewAccountNotFound(id int) error {
	return &ErrAccountNotFound{AccountID: id}
}

// ErrDecryptionFailed covers every way an unlock can fail after the
// account was found: wrong PIN, truncated blob, tampered ciphertext.
// The message never says which part failed.
type ErrDecryptionFailed struct {
	AccountID int
}

func (e *ErrDecryptionFailed) Error() string {
	return fmt.Sprintf("could not unlock smtp account %d: invalid credentials", e.AccountID)
}

func NewDecryptionFailed(id int) error {
	return &ErrDecryptionFailed{AccountID: id}
}

// ErrQuotaExceeded refuses a batch before any send attempt is made.
type ErrQuotaExceeded struct {
	AccountID int
	Remaining int
	Requested int
}

func (e *ErrQuotaExceeded) Error() string {
	return fmt.Sprintf("smtp account %d daily quota exceeded: %d remaining, %d requested", e.AccountID, e.Remaining, e.Requested)
}

func NewQuotaExceeded(id, remaining, requested int) error {
	return &ErrQuotaExceeded{AccountID: id, Remaining: remaining, Requested: requested}
}

// ErrInvalidTransition rejects a lifecycle move that is not defined from
// the job's current status. The job is left untouched.
type ErrInvalidTransition struct {
	JobID string
	From  model.JobStatus
	To    model.JobStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("job %s cannot move from %s to %s", e.JobID, e.From, e.To)
}

func NewInvalidTransition(jobID string, from, to model.JobStatus) error {
	return &ErrInvalidTransition{JobID: jobID, From: from, To: to}
}

// ErrUnauthorized rejects an action the actor's role does not permit.
type ErrUnauthorized struct {
	Role   model.Role
	Action string
}

func (e *ErrUnauthorized) Error() string {
	return fmt.Sprintf("role %s is not allowed to %s", e.Role, e.Action)
}

func NewUnauthorized(role model.Role, action string) error {
	return &ErrUnauthorized{Role: role, Action: action}
}
