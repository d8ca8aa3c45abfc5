package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"linaro/webforms/internal/models"
)

// Default email templates used as fallback when not found in database
var defaultEmailTemplates = map[string]models.EmailTemplate{
	"submission_confirmation": {
		TemplateID: "submission_confirmation",
		Locale:     "en-US",
		Subject:    "We have received your submission",
		Body:       "Hi {{.name}},\n\nThank you for contacting Linaro. Your request has been received:\n\n{{.description}}\n\nOur team will be in touch shortly.",
	},
	"submission_verify": {
		TemplateID: "submission_verify",
		Locale:     "en-US",
		Subject:    "Confirm your form submission",
		Body:       "Hi,\n\nPlease confirm that you submitted this form by clicking the link below:\n\n{{.verify_url}}\n\nIf you did not submit this form, you can safely ignore this email.",
	},
}

// ITemplateService defines the interface for email template operations.
type ITemplateService interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
}

const emailTemplatesCollection = "email_templates"

// TemplateService serves email templates from Mongo with baked-in defaults,
// so deployments can override wording without a release.
type TemplateService struct {
	db *mongo.Database
}

// NewTemplateService creates a new instance of TemplateService
func NewTemplateService(db *mongo.Database) *TemplateService {
	return &TemplateService{
		db: db,
	}
}

// GetTemplate retrieves an email template by ID and locale
func (s *TemplateService) GetTemplate(ctx context.Context, templateID string, locale string) (*models.EmailTemplate, error) {
	collection := s.db.Collection(emailTemplatesCollection)
	filter := bson.M{
		"template_id": templateID,
		"locale":      locale,
	}

	var template models.EmailTemplate
	err := collection.FindOne(ctx, filter).Decode(&template)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			if defaultTemplate, ok := defaultEmailTemplates[templateID]; ok {
				return &defaultTemplate, nil
			}
			return nil, fmt.Errorf("template not found: %s (locale: %s)", templateID, locale)
		}
		return nil, fmt.Errorf("error retrieving template: %w", err)
	}

	return &template, nil
}

// SaveTemplate saves an email template to the database
func (s *TemplateService) SaveTemplate(ctx context.Context, template *models.EmailTemplate) error {
	collection := s.db.Collection(emailTemplatesCollection)
	filter := bson.M{
		"template_id": template.TemplateID,
		"locale":      template.Locale,
	}

	update := bson.M{"$set": template}
	opts := options.Update().SetUpsert(true)

	if _, err := collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("error saving template: %w", err)
	}
	return nil
}
