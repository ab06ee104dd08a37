package repository

import (
	"database/sql"
	"time"

	"github.com/mailroom/mailroom-backend/internal/model"
)

type TemplateRepositoryInterface interface {
	GetByID(id int) (*model.Template, error)
	Create(t *model.Template) error
}

type TemplateRepository struct {
	DB *sql.DB
}

func (r *TemplateRepository) GetByID(id int) (*model.Template, error) {
	query := `SELECT id, name, subject, body, created_at, updated_at FROM templates WHERE id=$1`

	var t model.Template
	err := r.DB.QueryRow(query, id).Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepository) Create(t *model.Template) error {
	t.CreatedAt = time.Now()
	query := `
        INSERT INTO templates (name, subject, body, created_at)
        VALUES ($1, $2, $3, $4)
        RETURNING id
    `
	return r.DB.QueryRow(query, t.Name, t.Subject, t.Body, t.CreatedAt).Scan(&t.ID)
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
