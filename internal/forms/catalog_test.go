package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linaro/webforms/internal/models"
)

const sampleFormData = `[
  {
    "form_id": 1,
    "projectName": "Support",
    "requestTypeName": "General enquiry",
    "projectId": "55",
    "requestTypeId": "123",
    "fields": {
      "requestTypeFields": [
        {"fieldId": "summary", "required": true, "jiraSchema": {"type": "string"}},
        {"fieldId": "customfield_100", "required": false, "jiraSchema": {"type": "array"}}
      ]
    }
  },
  {
    "form_id": "contact-us",
    "projectName": "Marketing",
    "requestTypeName": "Contact",
    "projectId": 7,
    "requestTypeId": 99,
    "fields": {"requestTypeFields": []}
  }
]`

func TestParseCatalog(t *testing.T) {
	catalog, err := ParseCatalog([]byte(sampleFormData))
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	// Numeric form ids are normalized to strings
	schema, ok := catalog.Lookup("1")
	require.True(t, ok)
	assert.Equal(t, "55", schema.ProjectID)
	assert.Equal(t, "123", schema.RequestTypeID)
	require.Len(t, schema.Fields, 2)
	assert.Equal(t, models.FieldKindText, schema.Fields[0].Kind)
	assert.True(t, schema.Fields[0].Required)
	assert.Equal(t, models.FieldKindChoice, schema.Fields[1].Kind)

	// Numeric routing ids are normalized too
	schema, ok = catalog.Lookup("contact-us")
	require.True(t, ok)
	assert.Equal(t, "7", schema.ProjectID)
	assert.Equal(t, "99", schema.RequestTypeID)

	_, ok = catalog.Lookup("nope")
	assert.False(t, ok)
}

func TestParseCatalog_DuplicateFormID(t *testing.T) {
	data := `[
      {"form_id": 1, "projectId": "5", "requestTypeId": "6", "fields": {"requestTypeFields": []}},
      {"form_id": "1", "projectId": "5", "requestTypeId": "6", "fields": {"requestTypeFields": []}}
    ]`
	_, err := ParseCatalog([]byte(data))
	assert.ErrorContains(t, err, "duplicate form_id")
}

func TestParseCatalog_MissingRouting(t *testing.T) {
	data := `[{"form_id": 1, "fields": {"requestTypeFields": []}}]`
	_, err := ParseCatalog([]byte(data))
	assert.ErrorContains(t, err, "routing")
}

func TestParseCatalog_BadJSON(t *testing.T) {
	_, err := ParseCatalog([]byte("{not json"))
	assert.Error(t, err)
}
