// internal/model/job.go
package model

import "time"

type JobStatus string

const (
	StatusDraft           JobStatus = "draft"
	StatusPendingApproval JobStatus = "pending_approval"
	StatusApproved        JobStatus = "approved"
	StatusQueued          JobStatus = "queued"
	StatusProcessing      JobStatus = "processing"
	StatusCompleted       JobStatus = "completed"
	StatusFailed          JobStatus = "failed"
	StatusCancelled       JobStatus = "cancelled"
)

// Terminal reports whether no further transition is defined out of s.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type Role string

const (
	RoleMember  Role = "member"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

var roleRank = map[Role]int{
	RoleMember:  0,
	RoleManager: 1,
	RoleAdmin:   2,
}

// AtLeast reports whether r carries at least the privilege of min.
// Unknown roles rank below member.
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

type Job struct {
	ID               string     `db:"id" json:"id"`
	Name             string     `db:"name" json:"name"`
	TemplateID       int        `db:"template_id" json:"template_id"`
	AccountID        int        `db:"account_id" json:"account_id"`
	ListID           int        `db:"list_id" json:"list_id"`
	CreatedBy        string     `db:"created_by" json:"created_by"`
	CreatorRole      Role       `db:"creator_role" json:"creator_role"`
	Status           JobStatus  `db:"status" json:"status"`
	RequiresApproval bool       `db:"requires_approval" json:"requires_approval"`
	ApprovedBy       string     `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	RejectionReason  string     `db:"rejection_reason" json:"rejection_reason,omitempty"`
	StartedAt        *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        *time.Time `db:"updated_at" json:"updated_at,omitempty"`

	History []StatusChange `db:"-" json:"history,omitempty"`
}

// StatusChange is one edge of the job lifecycle. Records are append-only:
// every accepted transition writes exactly one, and none is ever rewritten.
type StatusChange struct {
	JobID string    `db:"job_id" json:"job_id"`
	From  JobStatus `db:"from_status" json:"from"`
	To    JobStatus `db:"to_status" json:"to"`
	Actor string    `db:"actor" json:"actor"`
	At    time.Time `db:"changed_at" json:"at"`
}
