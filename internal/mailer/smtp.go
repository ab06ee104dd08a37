// internal/mailer/smtp.go
package mailer

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/mailroom/mailroom-backend/internal/model"
)

// Session is one authenticated SMTP connection. It is owned by exactly
// one batch and never shared: SMTP protocol state is not safe across
// concurrent senders.
type Session interface {
	Send(from string, to []string, msg []byte) error
	Close() error
}

// Dialer opens sessions. The dispatcher takes the interface so tests can
// substitute a fake transport.
type Dialer interface {
	Dial(cred *model.Credential) (Session, error)
}

// SMTPDialer dials a real server: EHLO, STARTTLS when the credential
// asks for it, then PLAIN auth.
type SMTPDialer struct{}

func (d *SMTPDialer) Dial(cred *model.Credential) (Session, error) {
	addr := fmt.Sprintf("%s:%d", cred.Host, cred.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s failed: %w", addr, err)
	}

	domain := DomainOf(cred.Email)
	if err := client.Hello(domain); err != nil {
		client.Close()
		return nil, fmt.Errorf("hello failed: %w", err)
	}

	if cred.UseTLS {
		tlsConfig := &tls.Config{ServerName: cred.Host}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("starttls failed: %w", err)
		}
	}

	auth := smtp.PlainAuth("", cred.Email, cred.Password, cred.Host)
	if err := client.Auth(auth); err != nil {
		client.Close()
		return nil, fmt.Errorf("auth failed: %w", err)
	}

	return &smtpSession{client: client}, nil
}

type smtpSession struct {
	client *smtp.Client
}

// Send runs one MAIL/RCPT/DATA exchange. On a mid-transaction error the
// session is RSET so the next recipient starts clean.
func (s *smtpSession) Send(from string, to []string, msg []byte) error {
	if err := s.client.Mail(from); err != nil {
		s.client.Reset()
		return fmt.Errorf("mail from failed: %w", err)
	}
	for _, rcpt := range to {
		if err := s.client.Rcpt(rcpt); err != nil {
			s.client.Reset()
			return fmt.Errorf("rcpt to failed: %w", err)
		}
	}

	w, err := s.client.Data()
	if err != nil {
		s.client.Reset()
		return fmt.Errorf("data failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		s.client.Reset()
		return err
	}
	if err := w.Close(); err != nil {
		s.client.Reset()
		return err
	}
	return nil
}

func (s *smtpSession) Close() error {
	if err := s.client.Quit(); err != nil {
		return s.client.Close()
	}
	return nil
}

// DomainOf returns the part after the @, or the whole string when there
// is none.
func DomainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return email
}

// IsPermanent reports whether err carries a 5xx SMTP reply, meaning the
// server will never accept this mailbox. Such failures are recorded as
// bounces rather than transient errors.
func IsPermanent(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 500 && tpErr.Code < 600
	}
	return false
}
