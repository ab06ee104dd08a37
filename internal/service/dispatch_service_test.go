package service

import (
	"context"
	"errors"
	"net/textproto"
	"testing"
	"time"

	"github.com/mailroom/mailroom-backend/internal/mailer"
	"github.com/mailroom/mailroom-backend/internal/model"
)

// fakeSession records every Send call and fails the addresses it is
// told to fail.
type fakeSession struct {
	sends    []string
	failWith map[string]error
	onSend   func(email string)
	closed   bool
}

func (s *fakeSession) Send(from string, to []string, msg []byte) error {
	email := to[0]
	s.sends = append(s.sends, email)
	if s.onSend != nil {
		s.onSend(email)
	}
	if err, ok := s.failWith[email]; ok {
		return err
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDialer struct {
	session *fakeSession
	err     error
	dials   int
}

func (d *fakeDialer) Dial(cred *model.Credential) (mailer.Session, error) {
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

func testDispatcher(dialer mailer.Dialer) *Dispatcher {
	d := NewDispatcher(dialer)
	d.BackoffBase = time.Millisecond
	d.Pacing = time.Millisecond
	return d
}

func testCredential() *model.Credential {
	return &model.Credential{
		AccountID: 1,
		Host:      "smtp.example.com",
		Port:      587,
		UseTLS:    true,
		Email:     "campaigns@example.com",
		Password:  "hunter2",
	}
}

func testBatch(n int) []model.Recipient {
	recipients := make([]model.Recipient, n)
	for i := range recipients {
		recipients[i] = model.Recipient{
			ID:       i + 1,
			Email:    string(rune('a'+i)) + "@example.com",
			FullName: "Recipient " + string(rune('A'+i)),
		}
	}
	return recipients
}

func batchTemplate() *model.Template {
	return &model.Template{Subject: "Hi {FirstName}", Body: "<p>Hello {FullName}</p>"}
}

func TestSendBatchIsolatesFailures(t *testing.T) {
	recipients := testBatch(5)
	session := &fakeSession{failWith: map[string]error{
		recipients[2].Email: errors.New("connection reset"),
	}}
	d := testDispatcher(&fakeDialer{session: session})

	result := d.SendBatch(context.Background(), "job-1", testCredential(), recipients, batchTemplate(), nil)

	if result.SuccessCount != 4 || result.FailedCount != 1 {
		t.Fatalf("got %d/%d, want 4 success 1 failed", result.SuccessCount, result.FailedCount)
	}
	if result.TotalAttempted != 5 || len(result.Attempts) != 5 {
		t.Fatalf("expected 5 attempt records, got %d", len(result.Attempts))
	}

	// Exactly one record per recipient, in the supplied order.
	for i, attempt := range result.Attempts {
		if attempt.RecipientID != recipients[i].ID {
			t.Errorf("attempt %d out of order: recipient %d", i, attempt.RecipientID)
		}
	}
	failed := result.Attempts[2]
	if failed.Outcome != model.OutcomeFailed || failed.ErrorDetail == "" {
		t.Errorf("recipient 3 record wrong: %+v", failed)
	}

	// The failing recipient burned all three attempts, the others one.
	perEmail := map[string]int{}
	for _, email := range session.sends {
		perEmail[email]++
	}
	if perEmail[recipients[2].Email] != 3 {
		t.Errorf("failing recipient got %d attempts, want 3", perEmail[recipients[2].Email])
	}
	if perEmail[recipients[0].Email] != 1 {
		t.Errorf("healthy recipient got %d attempts, want 1", perEmail[recipients[0].Email])
	}

	if !session.closed {
		t.Error("session must be closed after the batch")
	}
}

func TestSendBatchConnectionFailureFansOut(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("auth failed: 535 bad credentials")}
	d := testDispatcher(dialer)
	d.Pacing = time.Second // must not be incurred at all

	start := time.Now()
	result := d.SendBatch(context.Background(), "job-1", testCredential(), testBatch(10), batchTemplate(), nil)
	elapsed := time.Since(start)

	if result.SuccessCount != 0 || result.FailedCount != 10 {
		t.Fatalf("got %d/%d, want 0 success 10 failed", result.SuccessCount, result.FailedCount)
	}
	if len(result.Attempts) != 10 {
		t.Fatalf("expected 10 synthetic records, got %d", len(result.Attempts))
	}
	for _, attempt := range result.Attempts {
		if attempt.Outcome != model.OutcomeFailed {
			t.Errorf("outcome = %s", attempt.Outcome)
		}
		if attempt.ErrorDetail != dialer.err.Error() {
			t.Errorf("every record must cite the connection error, got %q", attempt.ErrorDetail)
		}
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("batch must fail fast, took %s", elapsed)
	}
	if dialer.dials != 1 {
		t.Errorf("dialed %d times, want 1 (no connect retries)", dialer.dials)
	}
}

func TestSendBatchClassifiesBounces(t *testing.T) {
	recipients := testBatch(2)
	session := &fakeSession{failWith: map[string]error{
		recipients[1].Email: &textproto.Error{Code: 550, Msg: "no such user"},
	}}
	d := testDispatcher(&fakeDialer{session: session})

	result := d.SendBatch(context.Background(), "job-1", testCredential(), recipients, batchTemplate(), nil)

	if result.Attempts[1].Outcome != model.OutcomeBounced {
		t.Errorf("5xx rejection should record as bounced, got %s", result.Attempts[1].Outcome)
	}
	if result.FailedCount != 1 {
		t.Errorf("bounces count as failures: %d", result.FailedCount)
	}
}

func TestSendBatchReportsProgress(t *testing.T) {
	recipients := testBatch(3)
	session := &fakeSession{failWith: map[string]error{
		recipients[1].Email: errors.New("timeout"),
	}}
	d := testDispatcher(&fakeDialer{session: session})

	var updates []Progress
	d.SendBatch(context.Background(), "job-1", testCredential(), recipients, batchTemplate(), func(p Progress) {
		updates = append(updates, p)
	})

	if len(updates) != 3 {
		t.Fatalf("progress emitted %d times, want once per recipient", len(updates))
	}
	want := []Progress{
		{SentCount: 1, TotalCount: 3, CurrentEmail: recipients[0].Email},
		{SentCount: 1, TotalCount: 3, CurrentEmail: recipients[1].Email},
		{SentCount: 2, TotalCount: 3, CurrentEmail: recipients[2].Email},
	}
	for i := range want {
		if updates[i] != want[i] {
			t.Errorf("progress %d = %+v, want %+v", i, updates[i], want[i])
		}
	}
}

func TestSendBatchCancelDuringRetriesFinishesRecipient(t *testing.T) {
	recipients := testBatch(3)
	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{
		failWith: map[string]error{recipients[1].Email: errors.New("timeout")},
		onSend: func(email string) {
			if email == recipients[1].Email {
				cancel()
			}
		},
	}
	d := testDispatcher(&fakeDialer{session: session})

	result := d.SendBatch(ctx, "job-1", testCredential(), recipients, batchTemplate(), nil)

	// Cancellation arrived mid-recipient: the in-flight recipient still
	// spends the full attempt budget and gets a genuine terminal record;
	// only the next boundary stops the batch.
	perEmail := map[string]int{}
	for _, email := range session.sends {
		perEmail[email]++
	}
	if perEmail[recipients[1].Email] != 3 {
		t.Errorf("in-flight recipient got %d attempts, want 3", perEmail[recipients[1].Email])
	}
	if result.TotalAttempted != 2 || len(result.Attempts) != 2 {
		t.Errorf("attempted %d with %d records, want 2/2", result.TotalAttempted, len(result.Attempts))
	}
	if result.Attempts[1].Outcome != model.OutcomeFailed {
		t.Errorf("outcome = %s, want failed after exhausted retries", result.Attempts[1].Outcome)
	}
	if perEmail[recipients[2].Email] != 0 {
		t.Error("recipient after the boundary must never be attempted")
	}
}

func TestSendBatchCancellationAtRecipientBoundary(t *testing.T) {
	recipients := testBatch(5)
	session := &fakeSession{}
	d := testDispatcher(&fakeDialer{session: session})

	ctx, cancel := context.WithCancel(context.Background())
	result := d.SendBatch(ctx, "job-1", testCredential(), recipients, batchTemplate(), func(p Progress) {
		if p.SentCount == 2 {
			cancel()
		}
	})

	// Two records stand, the remaining three were never attempted and are
	// not recorded as failures.
	if result.TotalAttempted != 2 {
		t.Errorf("attempted %d, want 2", result.TotalAttempted)
	}
	if len(result.Attempts) != 2 {
		t.Errorf("%d records, want 2", len(result.Attempts))
	}
	if result.FailedCount != 0 {
		t.Errorf("cancelled recipients must not count as failed, got %d", result.FailedCount)
	}
	if len(session.sends) != 2 {
		t.Errorf("%d sends hit the wire, want 2", len(session.sends))
	}
}
