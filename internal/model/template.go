// internal/model/template.go
package model

import "time"

type Template struct {
	ID        int        `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Subject   string     `db:"subject" json:"subject"`
	Body      string     `db:"body" json:"body"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
