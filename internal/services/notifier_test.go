package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linaro/webforms/internal/config"
	"linaro/webforms/internal/models"
)

type staticTemplates struct{}

func (staticTemplates) GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error) {
	tmpl := defaultEmailTemplates[templateID]
	return &tmpl, nil
}

type captureSender struct {
	to      []string
	subject string
	raw     []byte
}

func (s *captureSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	s.to = to
	s.subject = subject
	s.raw = rawMessage
	return nil
}

func TestRenderEmail(t *testing.T) {
	tmpl := &models.EmailTemplate{
		Subject: "Hello {{.name}}",
		Body:    "Your link: {{.verify_url}}",
	}
	subject, raw := RenderEmail("noreply@example.com", "user@example.com", tmpl, map[string]interface{}{
		"name":       "Jane",
		"verify_url": "https://example.com/v1/verify?token=ABC",
	})

	assert.Equal(t, "Hello Jane", subject)
	msg := string(raw)
	assert.Contains(t, msg, "To: user@example.com\r\n")
	assert.Contains(t, msg, "From: noreply@example.com\r\n")
	assert.Contains(t, msg, "Subject: Hello Jane\r\n")
	assert.Contains(t, msg, "Your link: https://example.com/v1/verify?token=ABC")
}

func TestVerifyURL(t *testing.T) {
	cfg := &config.Config{VerifyBaseURL: "https://forms.example.com/v1/verify"}
	assert.Equal(t, "https://forms.example.com/v1/verify?token=ABCDEF", VerifyURL(cfg, "ABCDEF"))
}

func TestNotifier_SendVerification(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(&config.Config{
		SmtpFromAddress: "noreply@example.com",
		VerifyBaseURL:   "https://forms.example.com/v1/verify",
	}, staticTemplates{}, sender, nil)

	pending := &models.PendingSubmission{
		Token:      "TOKEN0000000000000000000000",
		Submission: models.Submission{"email": "user@example.com"},
	}
	require.NoError(t, n.SendVerification(context.Background(), pending))

	assert.Equal(t, []string{"user@example.com"}, sender.to)
	assert.True(t, strings.Contains(string(sender.raw), "https://forms.example.com/v1/verify?token=TOKEN0000000000000000000000"))
}

func TestNotifier_SendVerification_NoEmail(t *testing.T) {
	n := NewNotifier(&config.Config{}, staticTemplates{}, &captureSender{}, nil)
	err := n.SendVerification(context.Background(), &models.PendingSubmission{
		Token:      "T",
		Submission: models.Submission{},
	})
	assert.Error(t, err)
}

func TestNotifier_ConfirmationData(t *testing.T) {
	n := NewNotifier(&config.Config{
		NameFieldID:         "customfield_13155",
		DescriptionFieldIDs: []string{"description", "customfield_13365"},
	}, staticTemplates{}, &captureSender{}, nil)

	data := n.ConfirmationData(models.Submission{
		"customfield_13155": "Jane Doe",
		"customfield_13365": "Fallback description",
	})
	assert.Equal(t, "Jane Doe", data["name"])
	assert.Equal(t, "Fallback description", data["description"])

	data = n.ConfirmationData(models.Submission{
		"description":       "Primary description",
		"customfield_13365": "Fallback description",
	})
	assert.Equal(t, "there", data["name"])
	assert.Equal(t, "Primary description", data["description"])
}

func TestNotifier_InlineConfirmation(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(&config.Config{
		SmtpFromAddress:     "noreply@example.com",
		NameFieldID:         "customfield_13155",
		DescriptionFieldIDs: []string{"description"},
	}, staticTemplates{}, sender, nil)

	n.EnqueueConfirmation(context.Background(), models.Submission{
		"email":             "user@example.com",
		"customfield_13155": "Jane Doe",
		"description":       "Need help",
	})

	assert.Equal(t, []string{"user@example.com"}, sender.to)
	assert.Contains(t, string(sender.raw), "Jane Doe")
	assert.Contains(t, string(sender.raw), "Need help")
}
