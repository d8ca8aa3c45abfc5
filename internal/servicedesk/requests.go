package servicedesk

import (
	"context"
	"fmt"
	"net/http"

	"linaro/webforms/internal/models"
)

// BuildRequestFieldValues shapes a validated submission into the field map
// the request endpoint accepts. Routing and anti-abuse keys never leave the
// gateway, and every array value is rewritten from option-id strings to the
// {"id": ...} objects the API wants, whether or not the catalog declares the
// field.
func BuildRequestFieldValues(submission models.Submission) map[string]interface{} {
	fieldValues := make(map[string]interface{})
	for key, value := range submission {
		switch key {
		case models.SubmissionKeyFormID, models.SubmissionKeyEmail, models.SubmissionKeyCaptcha:
			continue
		}

		if items, ok := value.([]interface{}); ok {
			fieldValues[key] = toChoiceValues(items)
			continue
		}
		fieldValues[key] = value
	}
	return fieldValues
}

// toChoiceValues converts a multi-select submission value to []ChoiceValue.
// An array with a non-string element passes through untouched so the
// upstream validation error names the real problem.
func toChoiceValues(items []interface{}) interface{} {
	choices := make([]models.ChoiceValue, 0, len(items))
	for _, item := range items {
		id, ok := item.(string)
		if !ok {
			return items
		}
		choices = append(choices, models.ChoiceValue{ID: id})
	}
	return choices
}

// CreateRequest raises a customer request on behalf of the submitter,
// addressed by email. Unlike the user search, a 404 here is a real failure:
// the project or request type in the form catalog no longer exists upstream.
func (c *Client) CreateRequest(ctx context.Context, schema *models.FormSchema, email string, fieldValues map[string]interface{}) (*models.RequestRef, error) {
	payload := models.CustomerRequest{
		ServiceDeskID:      schema.ProjectID,
		RequestTypeID:      schema.RequestTypeID,
		RequestFieldValues: fieldValues,
		RaiseOnBehalfOf:    email,
	}

	var ref models.RequestRef
	if err := c.do(ctx, http.MethodPost, "/rest/servicedeskapi/request", payload, false, &ref); err != nil {
		return nil, fmt.Errorf("request creation failed for form %s: %w", schema.FormID, err)
	}
	return &ref, nil
}
