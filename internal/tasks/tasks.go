package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"linaro/webforms/internal/config"
	"linaro/webforms/internal/email"
	"linaro/webforms/internal/services"
)

// Task types handled by the background worker.
const (
	TypeEmailDelivery  = services.TaskTypeEmailDelivery
	TypePendingCleanup = "pending:cleanup"
)

// cleanupInterval is how often the pending-submission sweep reschedules
// itself.
const cleanupInterval = time.Hour

// --- Task client (enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// --- Task server (processing tasks) ---

// TaskProcessor holds the dependencies task handlers need.
type TaskProcessor struct {
	cfg             *config.Config
	emailSender     email.Sender
	templateService services.ITemplateService
	pendingService  services.IPendingService
	taskClient      *asynq.Client
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	templateService services.ITemplateService,
	pendingService services.IPendingService,
	taskClient *asynq.Client,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:             cfg,
		emailSender:     emailSender,
		templateService: templateService,
		pendingService:  pendingService,
		taskClient:      taskClient,
	}
}

// SetupServer configures an Asynq server and its handler mux. The caller
// runs it, usually in a goroutine, and shuts it down on exit.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	mux.HandleFunc(TypePendingCleanup, processor.HandlePendingCleanupTask)
	log.Println("Registered background task handlers.")

	return srv, mux
}

// EnqueueCleanup seeds the first pending-submission sweep. The handler keeps
// the cycle going by re-enqueuing itself.
func EnqueueCleanup(client *asynq.Client) error {
	task := asynq.NewTask(TypePendingCleanup, nil)
	_, err := client.Enqueue(task, asynq.Queue("low"))
	return err
}

// --- Task handlers ---

// HandleEmailDeliveryTask renders a template and delivers the message.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload services.EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}

	locale := payload.Locale
	if locale == "" {
		locale = "en-US"
	}

	tmpl, err := p.templateService.GetTemplate(ctx, payload.TemplateID, locale)
	if err != nil {
		log.Printf("Error getting email template %s/%s: %v", payload.TemplateID, locale, err)
		return fmt.Errorf("email template not found: %w", asynq.SkipRetry)
	}

	fromAddress := p.cfg.SmtpFromAddress
	subject, rawMessage := services.RenderEmail(fromAddress, payload.To, tmpl, payload.Data)

	if err := p.emailSender.Send(ctx, []string{payload.To}, subject, rawMessage); err != nil {
		log.Printf("Email sending failed (will retry): %v", err)
		return err
	}

	log.Printf("Email task processed: To=%s, Template=%s", payload.To, payload.TemplateID)
	return nil
}

// HandlePendingCleanupTask sweeps stale unverified submissions and
// reschedules itself.
func (p *TaskProcessor) HandlePendingCleanupTask(ctx context.Context, t *asynq.Task) error {
	deleted, err := p.pendingService.DeleteStaleUnverified(ctx, p.cfg.PendingTTL)
	if err != nil {
		log.Printf("Pending submission cleanup failed: %v", err)
		return err
	}
	if deleted > 0 {
		log.Printf("Pending submission cleanup removed %d stale records.", deleted)
	}

	if p.taskClient != nil {
		if _, err := p.taskClient.EnqueueContext(ctx, t, asynq.Queue("low"), asynq.ProcessIn(cleanupInterval)); err != nil {
			log.Printf("ERROR failed to re-enqueue pending cleanup task: %v", err)
			return err
		}
	}
	return nil
}
