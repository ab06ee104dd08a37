// internal/service/job_processor.go
package service

import (
	"context"
	"errors"
	"log"

	appErrors "github.com/mailroom/mailroom-backend/internal/errors"
	"github.com/mailroom/mailroom-backend/internal/model"
)

// RecipientSource yields the validated recipients of a list. Import and
// format detection happen upstream.
type RecipientSource interface {
	ListByList(listID int) ([]model.Recipient, error)
}

// TemplateSource fetches templates; (nil, nil) when missing.
type TemplateSource interface {
	GetByID(id int) (*model.Template, error)
}

// AttemptSink durably stores a batch's send attempts.
type AttemptSink interface {
	InsertAttempts(attempts []model.SendAttempt) error
}

// CredentialUnlocker is the vault surface the processor needs.
type CredentialUnlocker interface {
	Unlock(id int, pin string) (*model.Credential, error)
	Reserve(id, n int) error
	Release(id, n int) error
}

// JobProcessor turns one queued job ID into a finished batch: state
// check, credential unlock, quota gate, dispatch, delivery log, final
// transition. It runs behind the queue in cmd/worker, or in-process when
// no broker is configured.
type JobProcessor struct {
	JobService *JobService
	Dispatcher *Dispatcher
	Vault      CredentialUnlocker
	VaultPin   string
	Recipients RecipientSource
	Templates  TemplateSource
	Log        AttemptSink

	// Actor recorded on worker-driven transitions.
	Actor string
}

// Process handles one dispatch message. A returned error asks the queue
// to retry; nil acknowledges the message for good.
func (p *JobProcessor) Process(ctx context.Context, jobID string) error {
	job, err := p.JobService.GetJob(jobID)
	if err != nil {
		log.Println("⚠️ failed to load job:", err)
		var notFound *appErrors.ErrJobNotFound
		if errors.As(err, &notFound) {
			return nil // nothing to retry
		}
		return err
	}

	// Only approved or queued jobs may reach the dispatcher. A stale
	// queue entry for a cancelled or finished job is dropped silently.
	if job.Status != model.StatusApproved && job.Status != model.StatusQueued {
		log.Printf("⏭️ job %s skipped in status %s", job.ID, job.Status)
		return nil
	}

	tmpl, err := p.Templates.GetByID(job.TemplateID)
	if err != nil {
		return err
	}
	if tmpl == nil {
		return p.failBeforeDispatch(job.ID, "template not found")
	}

	recipients, err := p.Recipients.ListByList(job.ListID)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return p.failBeforeDispatch(job.ID, "recipient list is empty")
	}

	cred, err := p.Vault.Unlock(job.AccountID, p.VaultPin)
	if err != nil {
		// Wrong PIN or missing account are configuration failures, not
		// transient ones. The job fails; the queue does not retry.
		log.Printf("⚠️ job %s: %v", job.ID, err)
		return p.failBeforeDispatch(job.ID, err.Error())
	}

	// Allowance for the whole batch is claimed atomically before any
	// send attempt, so two batches on one credential cannot both pass
	// the gate and jointly blow the daily limit. A refused batch stays
	// queued and the queue retries it later, when the counter may have
	// reset.
	if err := p.Vault.Reserve(cred.AccountID, len(recipients)); err != nil {
		log.Printf("⚠️ job %s: %v", job.ID, err)
		return err
	}

	if _, err := p.JobService.StartProcessing(job.ID, p.Actor); err != nil {
		if relErr := p.Vault.Release(cred.AccountID, len(recipients)); relErr != nil {
			log.Println("⚠️ failed to release quota reservation:", relErr)
		}
		return err
	}

	result := p.Dispatcher.SendBatch(ctx, job.ID, cred, recipients, tmpl, func(prog Progress) {
		log.Printf("📤 job %s: %d/%d (%s)", job.ID, prog.SentCount, prog.TotalCount, prog.CurrentEmail)
	})

	if err := p.Log.InsertAttempts(result.Attempts); err != nil {
		log.Println("⚠️ failed to persist send attempts:", err)
	}
	// Only delivered messages consume allowance: failed and never-
	// attempted recipients hand theirs back.
	if unsent := len(recipients) - result.SuccessCount; unsent > 0 {
		if err := p.Vault.Release(cred.AccountID, unsent); err != nil {
			log.Println("⚠️ failed to release unused quota:", err)
		}
	}

	if _, err := p.JobService.Complete(job.ID, p.Actor, result.FailedCount == 0); err != nil {
		return err
	}

	log.Printf("✅ job %s done: %d sent, %d failed in %s", job.ID, result.SuccessCount, result.FailedCount, result.Duration)
	return nil
}

// failBeforeDispatch walks a job to failed through processing so the
// audit trail records why the batch never started.
func (p *JobProcessor) failBeforeDispatch(jobID, reason string) error {
	log.Printf("❌ job %s failed before dispatch: %s", jobID, reason)
	if _, err := p.JobService.StartProcessing(jobID, p.Actor); err != nil {
		return err
	}
	if _, err := p.JobService.Complete(jobID, p.Actor, false); err != nil {
		return err
	}
	return nil
}
