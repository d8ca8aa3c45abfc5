package servicedesk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"linaro/webforms/internal/models"
)

// SearchUserByEmail looks up existing customers by email address. A 404 from
// the search endpoint means "no such user" on some deployments, so it maps to
// an empty result rather than an error.
func (c *Client) SearchUserByEmail(ctx context.Context, email string) ([]models.ServiceDeskUser, error) {
	endpoint := "/rest/api/3/user/search?query=" + url.QueryEscape(email)

	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, endpoint, nil, false, &raw)
	if err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("user search failed for %s: %w", email, err)
	}

	if len(raw) == 0 {
		return nil, nil
	}

	// Cloud returns a bare array; data center wraps it in a values envelope.
	var users []models.ServiceDeskUser
	if err := json.Unmarshal(raw, &users); err == nil {
		return users, nil
	}
	var envelope models.UserSearchResult
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("unexpected user search response shape: %w", err)
	}
	return envelope.Values, nil
}

// CreateCustomer creates a portal-only customer account. The display name is
// the email address itself, matching what the portal shows for self-signups.
func (c *Client) CreateCustomer(ctx context.Context, email string) (*models.ServiceDeskUser, error) {
	payload := models.CustomerCreate{
		Email:       email,
		DisplayName: email,
	}

	var user models.ServiceDeskUser
	if err := c.do(ctx, http.MethodPost, "/rest/servicedeskapi/customer", payload, true, &user); err != nil {
		return nil, fmt.Errorf("customer creation failed for %s: %w", email, err)
	}
	if user.AccountID == "" {
		return nil, fmt.Errorf("customer creation for %s returned no account id", email)
	}
	return &user, nil
}

// ResolveUser finds the customer account for an email address, creating one
// when no account exists yet. When the search returns several accounts the
// first match wins.
func (c *Client) ResolveUser(ctx context.Context, email string) (*models.ServiceDeskUser, error) {
	users, err := c.SearchUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(users) > 0 {
		return &users[0], nil
	}
	return c.CreateCustomer(ctx, email)
}

// AddCustomerToProject enrolls the account into the service desk project so
// it may raise requests there. Enrolling an already-enrolled customer returns
// 409 upstream; that is treated as success since the desired state holds.
func (c *Client) AddCustomerToProject(ctx context.Context, projectID, accountID string) error {
	endpoint := fmt.Sprintf("/rest/servicedeskapi/servicedesk/%s/customer", projectID)
	payload := models.ProjectEnrollment{AccountIDs: []string{accountID}}

	err := c.do(ctx, http.MethodPost, endpoint, payload, true, nil)
	if err != nil && !IsStatus(err, http.StatusConflict) {
		return fmt.Errorf("project enrollment failed for %s in %s: %w", accountID, projectID, err)
	}
	return nil
}
