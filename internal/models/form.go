package models

// FieldKind classifies a form field for payload shaping purposes.
type FieldKind string

const (
	FieldKindText   FieldKind = "text"
	FieldKindChoice FieldKind = "choice"
)

// FormField is one field of a harvested request-type schema.
type FormField struct {
	FieldID  string    `json:"fieldId"`
	Required bool      `json:"required"`
	Kind     FieldKind `json:"kind,omitempty"`
}

// FormSchema describes one supported web form: which service desk project and
// request type it routes to, and which fields the request type declares.
// Schemas are harvested out-of-band and immutable at request time.
type FormSchema struct {
	FormID        string      `json:"form_id"`
	ProjectName   string      `json:"projectName,omitempty"`
	RequestType   string      `json:"requestTypeName,omitempty"`
	ProjectID     string      `json:"projectId"`
	RequestTypeID string      `json:"requestTypeId"`
	Fields        []FormField `json:"-"`
}

// RequiredFields returns the fields flagged required, in declaration order.
func (s *FormSchema) RequiredFields() []FormField {
	var required []FormField
	for _, f := range s.Fields {
		if f.Required {
			required = append(required, f)
		}
	}
	return required
}
