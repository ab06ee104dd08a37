//cmd/seeder/main.go
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/mailroom/mailroom-backend/internal/db"
	"github.com/mailroom/mailroom-backend/internal/model"
	"github.com/mailroom/mailroom-backend/internal/repository"
	"github.com/mailroom/mailroom-backend/internal/vault"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on OS environment variables")
	}

	conn, err := db.Open()
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	seedFiles := []string{
		"seed/schema.sql",
		"seed/recipients.sql",
		"seed/templates.sql",
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("failed to read %s: %v", file, err)
		}

		if _, err := conn.Exec(string(content)); err != nil {
			log.Fatalf("failed to execute %s: %v", file, err)
		}
		fmt.Printf("Seeded: %s\n", file)
	}

	// The demo SMTP account cannot live in a .sql file: its password is
	// sealed under VAULT_PIN at seed time, never stored in the clear.
	pin := os.Getenv("VAULT_PIN")
	password := os.Getenv("SEED_SMTP_PASSWORD")
	if pin == "" || password == "" {
		log.Fatal("VAULT_PIN and SEED_SMTP_PASSWORD must be set to seed the demo account")
	}

	ciphertext, nonce, salt, err := vault.Encrypt(password, pin)
	if err != nil {
		log.Fatalf("failed to encrypt seed password: %v", err)
	}

	accountRepo := &repository.SmtpAccountRepository{DB: conn}
	acct := &model.SmtpAccount{
		Label:      "demo",
		Host:       envOr("SEED_SMTP_HOST", "smtp.example.com"),
		Port:       587,
		UseTLS:     true,
		Email:      envOr("SEED_SMTP_EMAIL", "campaigns@example.com"),
		Ciphertext: ciphertext,
		Nonce:      nonce,
		Salt:       salt,
		DailyLimit: 500,
	}
	if err := accountRepo.Create(acct); err != nil {
		log.Fatalf("failed to create demo smtp account: %v", err)
	}
	fmt.Printf("Seeded: demo smtp account (id %d)\n", acct.ID)

	fmt.Println("Database seeding completed successfully!")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
