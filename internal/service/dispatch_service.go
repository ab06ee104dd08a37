// internal/service/dispatch_service.go
package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mailroom/mailroom-backend/internal/mailer"
	"github.com/mailroom/mailroom-backend/internal/model"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 1 * time.Second
	defaultPacing      = 1 * time.Second
)

// Progress is emitted once per recipient, success or not.
type Progress struct {
	SentCount    int    `json:"sent_count"`
	TotalCount   int    `json:"total_count"`
	CurrentEmail string `json:"current_email"`
}

// BatchResult summarizes one dispatch run. The attempt slice is handed
// to the delivery log for persistence; the dispatcher keeps nothing.
type BatchResult struct {
	JobID          string
	TotalAttempted int
	SuccessCount   int
	FailedCount    int
	Attempts       []model.SendAttempt
	Duration       time.Duration
}

// Dispatcher sends one job's recipients over a single SMTP session,
// sequentially and in caller order. Per-recipient failures are isolated;
// a failed connection fails the whole batch up front.
type Dispatcher struct {
	Dialer      mailer.Dialer
	MaxAttempts int
	BackoffBase time.Duration
	// Pacing is the fixed delay after every attempt, success included.
	// Rate-limit policy, not backoff.
	Pacing time.Duration
}

func NewDispatcher(dialer mailer.Dialer) *Dispatcher {
	return &Dispatcher{
		Dialer:      dialer,
		MaxAttempts: defaultMaxAttempts,
		BackoffBase: defaultBackoffBase,
		Pacing:      defaultPacing,
	}
}

func (d *Dispatcher) SendBatch(ctx context.Context, jobID string, cred *model.Credential, recipients []model.Recipient, tmpl *model.Template, progress func(Progress)) *BatchResult {
	start := time.Now()
	result := &BatchResult{JobID: jobID}

	session, err := d.Dialer.Dial(cred)
	if err != nil {
		// Dead connection: no per-recipient retries, no pacing. Every
		// recipient gets a synthetic failure citing the same cause.
		log.Printf("⚠️ job %s: session establishment failed: %v", jobID, err)
		for _, rcpt := range recipients {
			result.Attempts = append(result.Attempts, model.SendAttempt{
				ID:          uuid.New().String(),
				JobID:       jobID,
				RecipientID: rcpt.ID,
				Email:       rcpt.Email,
				Outcome:     model.OutcomeFailed,
				ErrorDetail: err.Error(),
				CreatedAt:   time.Now(),
			})
		}
		result.TotalAttempted = len(recipients)
		result.FailedCount = len(recipients)
		result.Duration = time.Since(start)
		return result
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Printf("⚠️ job %s: failed to close session: %v", jobID, err)
		}
	}()

	backoff := ExponentialBackoff(d.BackoffBase)

	for _, rcpt := range recipients {
		// Cancellation is observed only at recipient boundaries. Records
		// already produced stand; the rest are never attempted.
		if ctx.Err() != nil {
			log.Printf("🛑 job %s: cancelled after %d of %d recipients", jobID, result.TotalAttempted, len(recipients))
			break
		}

		subject, body := RenderMessage(tmpl, &rcpt)

		attemptStart := time.Now()
		sendErr := withRetry(d.MaxAttempts, backoff, func() error {
			msg, err := mailer.BuildMessage("", cred.Email, rcpt.Email, subject, body)
			if err != nil {
				return err
			}
			return session.Send(cred.Email, []string{rcpt.Email}, msg)
		})

		attempt := model.SendAttempt{
			ID:          uuid.New().String(),
			JobID:       jobID,
			RecipientID: rcpt.ID,
			Email:       rcpt.Email,
			DurationMs:  time.Since(attemptStart).Milliseconds(),
			CreatedAt:   time.Now(),
		}
		switch {
		case sendErr == nil:
			attempt.Outcome = model.OutcomeSent
			result.SuccessCount++
		case mailer.IsPermanent(sendErr):
			attempt.Outcome = model.OutcomeBounced
			attempt.ErrorDetail = sendErr.Error()
			result.FailedCount++
		default:
			attempt.Outcome = model.OutcomeFailed
			attempt.ErrorDetail = sendErr.Error()
			result.FailedCount++
		}
		result.Attempts = append(result.Attempts, attempt)
		result.TotalAttempted++

		if progress != nil {
			progress(Progress{
				SentCount:    result.SuccessCount,
				TotalCount:   len(recipients),
				CurrentEmail: rcpt.Email,
			})
		}

		// Provider pacing after every attempt, terminal failure included.
		sleepCtx(ctx, d.Pacing)
	}

	result.Duration = time.Since(start)
	return result
}
