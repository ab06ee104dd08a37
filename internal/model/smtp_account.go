// internal/model/smtp_account.go
package model

import "time"

// SmtpAccount is a sending identity. The password is held only as
// AES-GCM ciphertext with its nonce and KDF salt; plaintext exists in
// memory for the lifetime of a batch and nowhere else.
type SmtpAccount struct {
	ID            int       `db:"id" json:"id"`
	Label         string    `db:"label" json:"label"`
	Host          string    `db:"host" json:"host"`
	Port          int       `db:"port" json:"port"`
	UseTLS        bool      `db:"use_tls" json:"use_tls"`
	Email         string    `db:"email" json:"email"`
	Ciphertext    []byte    `db:"ciphertext" json:"-"`
	Nonce         []byte    `db:"nonce" json:"-"`
	Salt          []byte    `db:"salt" json:"-"`
	DailyLimit    int       `db:"daily_limit" json:"daily_limit"`
	SentToday     int       `db:"sent_today" json:"sent_today"`
	LastResetDate time.Time `db:"last_reset_date" json:"last_reset_date"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Credential is an unlocked account: connection settings plus the
// decrypted password. It is never persisted.
type Credential struct {
	AccountID int
	Host      string
	Port      int
	UseTLS    bool
	Email     string
	Password  string
}
