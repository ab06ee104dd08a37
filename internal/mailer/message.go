// internal/mailer/message.go
package mailer

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jordan-wright/email"
)

// BuildMessage assembles the raw RFC 2822 bytes for one personalized
// email. The body is sent as HTML, which is what campaign templates are.
func BuildMessage(fromName, fromAddr, to, subject, body string) ([]byte, error) {
	e := email.NewEmail()
	if fromName != "" {
		e.From = fmt.Sprintf("%s <%s>", fromName, fromAddr)
	} else {
		e.From = fromAddr
	}
	e.To = []string{to}
	e.Subject = subject
	e.HTML = []byte(body)
	e.Headers.Set("Message-ID", fmt.Sprintf("<%s@%s>", uuid.New().String(), DomainOf(fromAddr)))

	return e.Bytes()
}
