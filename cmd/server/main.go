// cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/mailroom/mailroom-backend/internal/controller"
	"github.com/mailroom/mailroom-backend/internal/db"
	"github.com/mailroom/mailroom-backend/internal/handler"
	"github.com/mailroom/mailroom-backend/internal/mailer"
	"github.com/mailroom/mailroom-backend/internal/queue"
	"github.com/mailroom/mailroom-backend/internal/repository"
	"github.com/mailroom/mailroom-backend/internal/service"
	"github.com/mailroom/mailroom-backend/internal/vault"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	// Init DB
	db.Init()

	jobRepo := &repository.JobRepository{DB: db.DB}
	recipientRepo := &repository.RecipientRepository{DB: db.DB}
	templateRepo := &repository.TemplateRepository{DB: db.DB}
	accountRepo := &repository.SmtpAccountRepository{DB: db.DB}
	logRepo := &repository.DeliveryLogRepository{DB: db.DB}

	jobService := service.NewJobService(jobRepo)
	credVault := vault.New(accountRepo)

	// With a broker configured the worker binary consumes dispatches;
	// without one, an in-process subscriber does the sending.
	var q queue.Queue
	if url := os.Getenv("AMQP_URL"); url != "" {
		amqpQueue, err := queue.NewAMQPQueue(url)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ:", err)
		}
		defer amqpQueue.Close()
		q = amqpQueue
	} else {
		log.Println("⚠️ AMQP_URL not set, dispatching in-process")
		memQueue := queue.NewInMemoryQueue()
		processor := &service.JobProcessor{
			JobService: jobService,
			Dispatcher: service.NewDispatcher(&mailer.SMTPDialer{}),
			Vault:      credVault,
			VaultPin:   os.Getenv("VAULT_PIN"),
			Recipients: recipientRepo,
			Templates:  templateRepo,
			Log:        logRepo,
			Actor:      "server",
		}
		memQueue.Subscribe(queue.TopicJobDispatch, func(payload []byte) error {
			var msg controller.DispatchMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				log.Println("⚠️ invalid dispatch payload:", err)
				return nil
			}
			return processor.Process(context.Background(), msg.JobID)
		})
		q = memQueue
	}

	jobController := &controller.JobController{
		JobService: jobService,
		Jobs:       jobRepo,
		Queue:      q,
	}
	logHandler := handler.NewDeliveryLogHandler(logRepo)
	accountHandler := &handler.AccountHandler{Vault: credVault}

	r := chi.NewRouter()

	// Job lifecycle routes
	r.Post("/jobs", jobController.CreateJob)
	r.Get("/jobs", jobController.ListJobs)
	r.Get("/jobs/{id}", jobController.GetJob)
	r.Post("/jobs/{id}/approve", jobController.ApproveJob)
	r.Post("/jobs/{id}/reject", jobController.RejectJob)
	r.Post("/jobs/{id}/submit", jobController.SubmitJob)
	r.Post("/jobs/{id}/cancel", jobController.CancelJob)
	r.Post("/jobs/{id}/dispatch", jobController.DispatchJob)

	// Audit trail routes
	r.Get("/jobs/{id}/attempts", logHandler.ListJobAttempts)
	r.Get("/jobs/{id}/stats", logHandler.JobStats)
	r.Get("/attempts/search", logHandler.SearchAttempts)
	r.Get("/accounts/{id}/quota", accountHandler.Quota)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	log.Println("🚀 Server running on", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}
