package forms

import (
	"linaro/webforms/internal/models"
)

// Validate checks a submission against its form schema. Pure function; fails
// closed on a nil schema. Every required field must be present with a
// non-empty value, and the submission must carry an email key regardless of
// what the schema declares. No type or format checking happens here: the
// ticketing system is the source of truth for deeper validation and may
// still reject the request.
func Validate(schema *models.FormSchema, submission models.Submission) bool {
	if schema == nil {
		return false
	}

	for _, field := range schema.RequiredFields() {
		value, ok := submission[field.FieldID]
		if !ok || isEmptyValue(value) {
			return false
		}
	}

	_, hasEmail := submission[models.SubmissionKeyEmail]
	return hasEmail
}

// isEmptyValue reports whether a submitted value counts as missing: nil, the
// empty string, or an empty multi-select array.
func isEmptyValue(v interface{}) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return value == ""
	case []interface{}:
		return len(value) == 0
	default:
		return false
	}
}
