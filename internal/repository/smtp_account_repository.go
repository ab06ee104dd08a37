package repository

import (
	"database/sql"
	"time"

	"github.com/mailroom/mailroom-backend/internal/model"
)

// SmtpAccountRepositoryInterface is the persistence the vault sits on.
// Only ciphertext, nonce and salt are stored; plaintext passwords never
// reach this layer.
type SmtpAccountRepositoryInterface interface {
	GetByID(id int) (*model.SmtpAccount, error)
	Create(acct *model.SmtpAccount) error
	UpdateQuota(id int, sentToday int, lastReset time.Time) error
}

type SmtpAccountRepository struct {
	DB *sql.DB
}

func (r *SmtpAccountRepository) GetByID(id int) (*model.SmtpAccount, error) {
	query := `
        SELECT id, label, host, port, use_tls, email, ciphertext, nonce, salt,
               daily_limit, sent_today, last_reset_date, created_at
        FROM smtp_accounts
        WHERE id=$1
    `
	var acct model.SmtpAccount
	err := r.DB.QueryRow(query, id).Scan(
		&acct.ID, &acct.Label, &acct.Host, &acct.Port, &acct.UseTLS, &acct.Email,
		&acct.Ciphertext, &acct.Nonce, &acct.Salt,
		&acct.DailyLimit, &acct.SentToday, &acct.LastResetDate, &acct.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return &acct, nil
}

func (r *SmtpAccountRepository) Create(acct *model.SmtpAccount) error {
	acct.CreatedAt = time.Now()
	if acct.LastResetDate.IsZero() {
		acct.LastResetDate = acct.CreatedAt
	}
	query := `
        INSERT INTO smtp_accounts (label, host, port, use_tls, email, ciphertext, nonce, salt, daily_limit, sent_today, last_reset_date, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		acct.Label, acct.Host, acct.Port, acct.UseTLS, acct.Email,
		acct.Ciphertext, acct.Nonce, acct.Salt,
		acct.DailyLimit, acct.SentToday, acct.LastResetDate, acct.CreatedAt,
	).Scan(&acct.ID)
}

// UpdateQuota writes the day counter. Callers serialize through the
// vault's per-account lock, so the plain UPDATE cannot race itself.
func (r *SmtpAccountRepository) UpdateQuota(id int, sentToday int, lastReset time.Time) error {
	query := `UPDATE smtp_accounts SET sent_today=$1, last_reset_date=$2 WHERE id=$3`
	_, err := r.DB.Exec(query, sentToday, lastReset, id)
	return err
}

var _ SmtpAccountRepositoryInterface = (*SmtpAccountRepository)(nil)
