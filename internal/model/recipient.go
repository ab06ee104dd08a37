// internal/model/recipient.go
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Recipient struct {
	ID               int    `db:"id" json:"id"`
	ListID           int    `db:"list_id" json:"list_id"`
	Email            string `db:"email" json:"email"`
	FullName         string `db:"full_name" json:"full_name"`
	Company          string `db:"company" json:"company"`
	CustomFieldsJSON string `db:"custom_fields" json:"custom_fields,omitempty"`
}

// NormalizeEmail lowercases and trims an address. Import pipelines are
// expected to have validated rows already; this keeps uniqueness checks
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail checks the minimal local@domain.tld shape: an @ past the
// first character and a dot after the @ that is not the final character.
func ValidEmail(email string) bool {
	at := strings.Index(email, "@")
	if at < 1 {
		return false
	}
	domain := email[at+1:]
	dot := strings.LastIndex(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

// CustomValues decodes the recipient's custom-field blob into merge
// values. String and numeric values are kept, everything else is
// skipped. Malformed JSON yields an empty map rather than an error so a
// bad row cannot abort a campaign.
func (r *Recipient) CustomValues() map[string]string {
	values := map[string]string{}
	if strings.TrimSpace(r.CustomFieldsJSON) == "" {
		return values
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(r.CustomFieldsJSON), &raw); err != nil {
		return values
	}

	for k, v := range raw {
		switch val := v.(type) {
		case string:
			values[k] = val
		case float64:
			if val == float64(int64(val)) {
				values[k] = strconv.FormatInt(int64(val), 10)
			} else {
				values[k] = fmt.Sprintf("%g", val)
			}
		}
	}
	return values
}
