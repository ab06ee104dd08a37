// internal/service/template_service.go
package service

import (
	"regexp"
	"strings"

	"github.com/mailroom/mailroom-backend/internal/model"
)

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// RenderTemplate substitutes {Placeholder} tokens with per-recipient
// values. Names are matched case-insensitively with internal whitespace
// tolerated, so "{ First Name }" is not valid but "{ FirstName }" equals
// "{FirstName}". Tokens with no matching value stay verbatim: a missing
// merge field must never abort a campaign.
func RenderTemplate(tmpl string, rcpt *model.Recipient) string {
	values := mergeValues(rcpt)
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(tok string) string {
		key := strings.ToLower(strings.TrimSpace(tok[1 : len(tok)-1]))
		if v, ok := values[key]; ok {
			return v
		}
		return tok
	})
}

// RenderMessage renders both parts of a template for one recipient.
func RenderMessage(t *model.Template, rcpt *model.Recipient) (subject, body string) {
	return RenderTemplate(t.Subject, rcpt), RenderTemplate(t.Body, rcpt)
}

// mergeValues builds the lookup map: custom fields first, then the fixed
// built-ins, which win on a name clash.
func mergeValues(rcpt *model.Recipient) map[string]string {
	values := map[string]string{}
	for k, v := range rcpt.CustomValues() {
		values[strings.ToLower(strings.TrimSpace(k))] = v
	}

	values["fullname"] = rcpt.FullName
	values["name"] = rcpt.FullName
	values["email"] = rcpt.Email
	values["company"] = rcpt.Company
	values["firstname"] = firstToken(rcpt.FullName)
	return values
}

func firstToken(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
