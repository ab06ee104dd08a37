package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mailroom/mailroom-backend/internal/controller"
	"github.com/mailroom/mailroom-backend/internal/db"
	"github.com/mailroom/mailroom-backend/internal/mailer"
	"github.com/mailroom/mailroom-backend/internal/queue"
	"github.com/mailroom/mailroom-backend/internal/repository"
	"github.com/mailroom/mailroom-backend/internal/service"
	"github.com/mailroom/mailroom-backend/internal/vault"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	conn, err := db.Open()
	if err != nil {
		log.Fatal("failed to connect to DB:", err)
	}
	defer conn.Close()

	// Repositories
	jobRepo := &repository.JobRepository{DB: conn}
	recipientRepo := &repository.RecipientRepository{DB: conn}
	templateRepo := &repository.TemplateRepository{DB: conn}
	accountRepo := &repository.SmtpAccountRepository{DB: conn}
	logRepo := &repository.DeliveryLogRepository{DB: conn}

	processor := &service.JobProcessor{
		JobService: service.NewJobService(jobRepo),
		Dispatcher: service.NewDispatcher(&mailer.SMTPDialer{}),
		Vault:      vault.New(accountRepo),
		VaultPin:   os.Getenv("VAULT_PIN"),
		Recipients: recipientRepo,
		Templates:  templateRepo,
		Log:        logRepo,
		Actor:      "worker",
	}

	amqpURL := os.Getenv("AMQP_URL")
	if amqpURL == "" {
		log.Fatal("AMQP_URL must be set")
	}
	q, err := queue.NewAMQPQueue(amqpURL)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ:", err)
	}
	defer q.Close()

	// SIGTERM stops in-flight batches at the next recipient boundary.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = q.Subscribe(queue.TopicJobDispatch, func(payload []byte) error {
		var msg controller.DispatchMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Println("⚠️ invalid dispatch payload:", err)
			return nil // no retry for garbage
		}
		return processor.Process(ctx, msg.JobID)
	})
	if err != nil {
		log.Fatal("Failed to subscribe:", err)
	}

	log.Println("Worker running, waiting for messages...")
	<-ctx.Done()
	log.Println("Worker shutting down")
}
