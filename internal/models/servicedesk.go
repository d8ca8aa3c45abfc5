package models

// ServiceDeskUser is a customer identity in the ticketing system. Transient:
// fetched or created per submission, never persisted locally.
type ServiceDeskUser struct {
	AccountID    string `json:"accountId"`
	EmailAddress string `json:"emailAddress,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
}

// UserSearchResult is the envelope some deployments return from the user
// search endpoint; others return a bare array. The client handles both.
type UserSearchResult struct {
	Values []ServiceDeskUser `json:"values"`
}

// CustomerCreate is the payload for POST /rest/servicedeskapi/customer.
type CustomerCreate struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// ProjectEnrollment is the payload for
// POST /rest/servicedeskapi/servicedesk/{projectId}/customer.
type ProjectEnrollment struct {
	AccountIDs []string `json:"accountIds"`
}

// CustomerRequest is the payload for POST /rest/servicedeskapi/request.
// RequestFieldValues carries the purged submission fields; multi-select
// values are already rewritten to []ChoiceValue by the payload builder.
type CustomerRequest struct {
	ServiceDeskID      string                 `json:"serviceDeskId"`
	RequestTypeID      string                 `json:"requestTypeId"`
	RequestFieldValues map[string]interface{} `json:"requestFieldValues"`
	RaiseOnBehalfOf    string                 `json:"raiseOnBehalfOf"`
}

// ChoiceValue is the wire shape the ticketing system expects for one selected
// option of a multi-select field.
type ChoiceValue struct {
	ID string `json:"id"`
}

// RequestRef identifies a created request.
type RequestRef struct {
	IssueID  string `json:"issueId"`
	IssueKey string `json:"issueKey"`
}
