package repository

import (
	"database/sql"
	"log"

	"github.com/mailroom/mailroom-backend/internal/model"
)

// RecipientRepositoryInterface defines methods used by service
type RecipientRepositoryInterface interface {
	GetByID(id int) (*model.Recipient, error)
	ListByList(listID int) ([]model.Recipient, error)
}

// RecipientRepository is the concrete implementation
type RecipientRepository struct {
	DB *sql.DB
}

// GetByID fetches a recipient by ID
func (r *RecipientRepository) GetByID(id int) (*model.Recipient, error) {
	query := `
        SELECT id, list_id, email, full_name, company, COALESCE(custom_fields, '')
        FROM recipients
        WHERE id = $1
    `
	row := r.DB.QueryRow(query, id)

	var rcpt model.Recipient
	if err := row.Scan(&rcpt.ID, &rcpt.ListID, &rcpt.Email, &rcpt.FullName, &rcpt.Company, &rcpt.CustomFieldsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	rcpt.Email = model.NormalizeEmail(rcpt.Email)
	return &rcpt, nil
}

// ListByList fetches a list's recipients in insertion order. That order
// is the order the dispatcher attempts them in. Rows whose address does
// not have the minimal local@domain.tld shape are skipped with a
// warning rather than handed to the dispatcher.
func (r *RecipientRepository) ListByList(listID int) ([]model.Recipient, error) {
	query := `
        SELECT id, list_id, email, full_name, company, COALESCE(custom_fields, '')
        FROM recipients
        WHERE list_id = $1
        ORDER BY id ASC
    `
	rows, err := r.DB.Query(query, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		var rcpt model.Recipient
		if err := rows.Scan(&rcpt.ID, &rcpt.ListID, &rcpt.Email, &rcpt.FullName, &rcpt.Company, &rcpt.CustomFieldsJSON); err != nil {
			return nil, err
		}
		rcpt.Email = model.NormalizeEmail(rcpt.Email)
		if !model.ValidEmail(rcpt.Email) {
			log.Printf("⚠️ recipient %d skipped: invalid email %q", rcpt.ID, rcpt.Email)
			continue
		}
		recipients = append(recipients, rcpt)
	}
	return recipients, rows.Err()
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
