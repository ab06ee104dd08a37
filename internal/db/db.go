// internal/db/db.go
package db

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

var DB *sql.DB

// DSN builds the postgres connection string from the environment.
// DATABASE_URL wins when set; otherwise the individual DB_* vars are used.
func DSN() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_NAME"),
	)
}

// Open connects and pings. Used by binaries that manage their own handle.
func Open() (*sql.DB, error) {
	conn, err := sql.Open("postgres", DSN())
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		return nil, err
	}
	return conn, nil
}

// Init connects the package-level handle used by the HTTP server.
func Init() {
	var err error
	DB, err = Open()
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to database")
}
