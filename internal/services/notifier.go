package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"linaro/webforms/internal/config"
	"linaro/webforms/internal/email"
	"linaro/webforms/internal/models"
)

// TaskTypeEmailDelivery is the asynq task type for background email delivery.
// Declared here rather than in the tasks package so the notifier can enqueue
// without importing its own consumer.
const TaskTypeEmailDelivery = "email:deliver"

// EmailTaskPayload is the wire payload of an email:deliver task.
type EmailTaskPayload struct {
	To         string                 `json:"to"`
	TemplateID string                 `json:"template_id"`
	Locale     string                 `json:"locale,omitempty"`
	Data       map[string]interface{} `json:"data"`
}

// INotifier sends submission-related emails: the deferred-flow verification
// request and the post-ticket confirmation.
type INotifier interface {
	SendVerification(ctx context.Context, pending *models.PendingSubmission) error
	EnqueueConfirmation(ctx context.Context, submission models.Submission)
}

// Notifier implements INotifier. Verification emails are sent inline because
// the submission must fail when they cannot be delivered; confirmations are
// best-effort and go through the task queue.
type Notifier struct {
	cfg        *config.Config
	templates  ITemplateService
	sender     email.Sender
	taskClient *asynq.Client
}

// NewNotifier creates a Notifier. taskClient may be nil, in which case
// confirmations are sent inline too (used in tests and single-process mode).
func NewNotifier(cfg *config.Config, templates ITemplateService, sender email.Sender, taskClient *asynq.Client) *Notifier {
	return &Notifier{
		cfg:        cfg,
		templates:  templates,
		sender:     sender,
		taskClient: taskClient,
	}
}

// RenderEmail renders a template with placeholder data and wraps it into a
// complete raw message with headers. Templates use {{.key}} placeholders.
func RenderEmail(fromAddress, to string, tmpl *models.EmailTemplate, data map[string]interface{}) (string, []byte) {
	subjectRendered := tmpl.Subject
	bodyRendered := tmpl.Body
	for key, val := range data {
		placeholder := fmt.Sprintf("{{.%s}}", key)
		valueStr := fmt.Sprintf("%v", val)
		subjectRendered = strings.ReplaceAll(subjectRendered, placeholder, valueStr)
		bodyRendered = strings.ReplaceAll(bodyRendered, placeholder, valueStr)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", to))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", fromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subjectRendered))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(bodyRendered)
	sb.WriteString("\r\n")

	return subjectRendered, []byte(sb.String())
}

// VerifyURL builds the emailed verification link for a token.
func VerifyURL(cfg *config.Config, token string) string {
	return cfg.VerifyBaseURL + "?token=" + url.QueryEscape(token)
}

// SendVerification delivers the verification email for a pending submission.
// Errors propagate: without this email the submission is unreachable and the
// caller must unwind it.
func (n *Notifier) SendVerification(ctx context.Context, pending *models.PendingSubmission) error {
	to := pending.Submission.Email()
	if to == "" {
		return fmt.Errorf("pending submission %s has no email address", pending.Token)
	}

	tmpl, err := n.templates.GetTemplate(ctx, "submission_verify", "en-US")
	if err != nil {
		return fmt.Errorf("failed to load verification template: %w", err)
	}

	subject, rawMessage := RenderEmail(n.cfg.SmtpFromAddress, to, tmpl, map[string]interface{}{
		"verify_url": VerifyURL(n.cfg, pending.Token),
	})

	if err := n.sender.Send(ctx, []string{to}, subject, rawMessage); err != nil {
		return fmt.Errorf("failed to send verification email to %s: %w", to, err)
	}
	return nil
}

// ConfirmationData extracts the template data for a confirmation email: the
// submitter's name field plus the first non-empty description-like field.
func (n *Notifier) ConfirmationData(submission models.Submission) map[string]interface{} {
	name := submission.StringField(n.cfg.NameFieldID)
	if name == "" {
		name = "there"
	}

	description := ""
	for _, fieldID := range n.cfg.DescriptionFieldIDs {
		if v := submission.StringField(fieldID); v != "" {
			description = v
			break
		}
	}

	return map[string]interface{}{
		"name":        name,
		"description": description,
	}
}

// EnqueueConfirmation schedules the confirmation email for a submission whose
// ticket was just raised. Best-effort: failures are logged, never surfaced,
// because the ticket already exists and the submitter already got a 200.
func (n *Notifier) EnqueueConfirmation(ctx context.Context, submission models.Submission) {
	to := submission.Email()
	if to == "" {
		return
	}

	payload := EmailTaskPayload{
		To:         to,
		TemplateID: "submission_confirmation",
		Data:       n.ConfirmationData(submission),
	}

	if n.taskClient == nil {
		n.deliverInline(ctx, payload)
		return
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal confirmation email payload for %s: %v", to, err)
		return
	}
	task := asynq.NewTask(TaskTypeEmailDelivery, jsonPayload)
	if _, err := n.taskClient.EnqueueContext(ctx, task, asynq.Queue("default")); err != nil {
		log.Printf("Failed to enqueue confirmation email for %s: %v", to, err)
	}
}

// deliverInline renders and sends a confirmation without the task queue.
func (n *Notifier) deliverInline(ctx context.Context, payload EmailTaskPayload) {
	tmpl, err := n.templates.GetTemplate(ctx, payload.TemplateID, "en-US")
	if err != nil {
		log.Printf("Failed to load confirmation template: %v", err)
		return
	}
	subject, rawMessage := RenderEmail(n.cfg.SmtpFromAddress, payload.To, tmpl, payload.Data)
	if err := n.sender.Send(ctx, []string{payload.To}, subject, rawMessage); err != nil {
		log.Printf("Failed to send confirmation email to %s: %v", payload.To, err)
	}
}
