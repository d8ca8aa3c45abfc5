package models

// EmailTemplate defines the structure for email templates stored in the DB.
type EmailTemplate struct {
	TemplateID string `bson:"template_id" json:"template_id"` // e.g. "submission_confirmation"
	Locale     string `bson:"locale" json:"locale"`           // e.g. "en-US"
	Subject    string `bson:"subject" json:"subject"`         // Subject template
	Body       string `bson:"body" json:"body"`               // Body template (plain text)
}
