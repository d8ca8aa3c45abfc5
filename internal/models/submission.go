package models

import (
	"encoding/json"
	"fmt"
)

// Well-known submission keys that are routing/meta data rather than ticket
// field values. They are stripped before the payload is forwarded upstream.
const (
	SubmissionKeyFormID  = "form_id"
	SubmissionKeyEmail   = "email"
	SubmissionKeyCaptcha = "frc-captcha-solution"
)

// Submission is one incoming form submission: a free-shape field map plus the
// meta keys above. Field values are strings, or string arrays for
// multi-select choice fields.
type Submission map[string]interface{}

// ParseSubmission decodes a raw JSON body into a Submission.
func ParseSubmission(body []byte) (Submission, error) {
	var s Submission
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("failed to parse submission body: %w", err)
	}
	return s, nil
}

// FormID returns the submission's form id normalized to a string; form ids
// arrive as JSON strings or numbers depending on the embedding site.
func (s Submission) FormID() string {
	v, ok := s[SubmissionKeyFormID]
	if !ok {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case float64:
		// JSON numbers decode as float64; form ids are small integers
		return fmt.Sprintf("%.0f", id)
	default:
		return fmt.Sprintf("%v", id)
	}
}

// Email returns the submitter's address, or "" if absent.
func (s Submission) Email() string {
	if v, ok := s[SubmissionKeyEmail].(string); ok {
		return v
	}
	return ""
}

// CaptchaSolution returns the captcha solution field, or "" if absent.
func (s Submission) CaptchaSolution() string {
	if v, ok := s[SubmissionKeyCaptcha].(string); ok {
		return v
	}
	return ""
}

// StringField returns the named field as a string, or "" if absent or not a
// string. Used when building confirmation-email template data.
func (s Submission) StringField(fieldID string) string {
	if v, ok := s[fieldID].(string); ok {
		return v
	}
	return ""
}
