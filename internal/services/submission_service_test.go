package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"linaro/webforms/internal/config"
	"linaro/webforms/internal/forms"
	"linaro/webforms/internal/models"
	"linaro/webforms/internal/utils"
)

const testFormData = `[
	{
		"form_id": "42",
		"projectName": "Support",
		"requestTypeName": "General enquiry",
		"projectId": "7",
		"requestTypeId": "103",
		"fields": {
			"requestTypeFields": [
				{"fieldId": "summary", "required": true, "jiraSchema": {"type": "string"}},
				{"fieldId": "customfield_13155", "required": true, "jiraSchema": {"type": "string"}},
				{"fieldId": "customfield_11001", "required": false, "jiraSchema": {"type": "array"}}
			]
		}
	}
]`

func testCatalog(t *testing.T) *forms.Catalog {
	catalog, err := forms.ParseCatalog([]byte(testFormData))
	require.NoError(t, err)
	return catalog
}

func validSubmission() models.Submission {
	return models.Submission{
		"form_id":              "42",
		"email":                "user@example.com",
		"frc-captcha-solution": "solved.abc",
		"summary":              "Need help",
		"customfield_13155":    "Jane Doe",
	}
}

// --- Mocks ---

type mockTicketing struct {
	mock.Mock
}

func (m *mockTicketing) ResolveUser(ctx context.Context, email string) (*models.ServiceDeskUser, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ServiceDeskUser), args.Error(1)
}

func (m *mockTicketing) AddCustomerToProject(ctx context.Context, projectID, accountID string) error {
	args := m.Called(ctx, projectID, accountID)
	return args.Error(0)
}

func (m *mockTicketing) CreateRequest(ctx context.Context, schema *models.FormSchema, email string, fieldValues map[string]interface{}) (*models.RequestRef, error) {
	args := m.Called(ctx, schema, email, fieldValues)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RequestRef), args.Error(1)
}

type stubVerifier struct {
	result bool
	called int
}

func (v *stubVerifier) Verify(ctx context.Context, solution string) bool {
	v.called++
	return v.result
}

// memoryPendingStore implements IPendingService in memory with the same
// one-shot verification semantics the Mongo implementation provides.
type memoryPendingStore struct {
	mu    sync.Mutex
	items map[string]*models.PendingSubmission
}

func newMemoryPendingStore() *memoryPendingStore {
	return &memoryPendingStore{items: map[string]*models.PendingSubmission{}}
}

func (s *memoryPendingStore) Create(ctx context.Context, submission models.Submission, sourceOrigin string) (*models.PendingSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := &models.PendingSubmission{
		Token:        utils.NewToken(),
		Submission:   submission,
		SourceOrigin: sourceOrigin,
		CreatedAt:    time.Now().UTC(),
	}
	s.items[pending.Token] = pending
	return pending, nil
}

func (s *memoryPendingStore) FindByToken(ctx context.Context, token string) (*models.PendingSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, ok := s.items[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return pending, nil
}

func (s *memoryPendingStore) MarkVerified(ctx context.Context, token string) (*models.PendingSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, ok := s.items[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	if pending.Verified != "" {
		return nil, ErrAlreadyVerified
	}
	pending.Verified = models.VerifiedMarker
	return pending, nil
}

func (s *memoryPendingStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, token)
	return nil
}

func (s *memoryPendingStore) DeleteStaleUnverified(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

type recordingNotifier struct {
	verifications []string
	confirmations []string
	sendErr       error
}

func (n *recordingNotifier) SendVerification(ctx context.Context, pending *models.PendingSubmission) error {
	if n.sendErr != nil {
		return n.sendErr
	}
	n.verifications = append(n.verifications, pending.Token)
	return nil
}

func (n *recordingNotifier) EnqueueConfirmation(ctx context.Context, submission models.Submission) {
	n.confirmations = append(n.confirmations, submission.Email())
}

type recordingAlerter struct {
	alerts []string
}

func (a *recordingAlerter) Alert(ctx context.Context, summary string, details map[string]interface{}) {
	a.alerts = append(a.alerts, summary)
}

type fixture struct {
	svc      ISubmissionService
	cfg      *config.Config
	ticket   *mockTicketing
	verifier *stubVerifier
	pending  *memoryPendingStore
	notifier *recordingNotifier
	alerter  *recordingAlerter
}

func newFixture(t *testing.T, mutate func(cfg *config.Config)) *fixture {
	f := &fixture{
		cfg: &config.Config{
			CaptchaEnabled:      true,
			ThankYouURL:         "https://example.org/thank-you",
			NameFieldID:         "customfield_13155",
			DescriptionFieldIDs: []string{"description", "customfield_13365"},
		},
		ticket:   &mockTicketing{},
		verifier: &stubVerifier{result: true},
		pending:  newMemoryPendingStore(),
		notifier: &recordingNotifier{},
		alerter:  &recordingAlerter{},
	}
	if mutate != nil {
		mutate(f.cfg)
	}
	f.svc = NewSubmissionService(f.cfg, testCatalog(t), f.verifier, f.ticket, f.pending, f.notifier, f.alerter)
	return f
}

func (f *fixture) expectTicketCreated() {
	f.ticket.On("ResolveUser", mock.Anything, "user@example.com").
		Return(&models.ServiceDeskUser{AccountID: "acc1"}, nil)
	f.ticket.On("AddCustomerToProject", mock.Anything, "7", "acc1").Return(nil)
	f.ticket.On("CreateRequest", mock.Anything, mock.Anything, "user@example.com", mock.Anything).
		Return(&models.RequestRef{IssueID: "10042", IssueKey: "SUP-42"}, nil)
}

// --- Synchronous flow ---

func TestSubmit_Success(t *testing.T) {
	f := newFixture(t, nil)
	f.expectTicketCreated()

	result, err := f.svc.Submit(context.Background(), validSubmission(), "")
	require.NoError(t, err)
	assert.False(t, result.Deferred)
	assert.Equal(t, "42", result.FormID)
	assert.Equal(t, "user@example.com", result.Email)
	assert.Equal(t, "SUP-42", result.Request.IssueKey)
	assert.Equal(t, []string{"user@example.com"}, f.notifier.confirmations)

	// The upstream payload must not carry routing or anti-abuse keys.
	fieldValues := f.ticket.Calls[len(f.ticket.Calls)-1].Arguments.Get(3).(map[string]interface{})
	assert.NotContains(t, fieldValues, "form_id")
	assert.NotContains(t, fieldValues, "email")
	assert.NotContains(t, fieldValues, "frc-captcha-solution")
	assert.Equal(t, "Need help", fieldValues["summary"])
}

func TestSubmit_UnknownForm(t *testing.T) {
	f := newFixture(t, nil)

	sub := validSubmission()
	sub["form_id"] = "999"
	_, err := f.svc.Submit(context.Background(), sub, "")
	assert.ErrorIs(t, err, ErrUnknownForm)
	f.ticket.AssertNotCalled(t, "ResolveUser", mock.Anything, mock.Anything)
	assert.Equal(t, 1, f.verifier.called)
}

func TestSubmit_CaptchaGateRunsBeforeFormLookup(t *testing.T) {
	f := newFixture(t, nil)

	// A bot probing form ids without a captcha solution learns nothing
	// about the catalog.
	sub := validSubmission()
	sub["form_id"] = "999"
	delete(sub, "frc-captcha-solution")
	_, err := f.svc.Submit(context.Background(), sub, "")
	assert.ErrorIs(t, err, ErrCaptchaMissing)

	f.verifier.result = false
	sub["frc-captcha-solution"] = "bogus"
	_, err = f.svc.Submit(context.Background(), sub, "")
	assert.ErrorIs(t, err, ErrCaptchaFailed)
}

func TestSubmit_NumericFormID(t *testing.T) {
	f := newFixture(t, nil)
	f.expectTicketCreated()

	sub := validSubmission()
	sub["form_id"] = float64(42) // JSON numbers decode as float64
	result, err := f.svc.Submit(context.Background(), sub, "")
	require.NoError(t, err)
	assert.Equal(t, "42", result.FormID)
}

func TestSubmit_CaptchaMissing(t *testing.T) {
	f := newFixture(t, nil)

	sub := validSubmission()
	delete(sub, "frc-captcha-solution")
	_, err := f.svc.Submit(context.Background(), sub, "")
	assert.ErrorIs(t, err, ErrCaptchaMissing)
	assert.Zero(t, f.verifier.called)
	f.ticket.AssertNotCalled(t, "ResolveUser", mock.Anything, mock.Anything)
}

func TestSubmit_CaptchaFailed(t *testing.T) {
	f := newFixture(t, nil)
	f.verifier.result = false

	_, err := f.svc.Submit(context.Background(), validSubmission(), "")
	assert.ErrorIs(t, err, ErrCaptchaFailed)
	f.ticket.AssertNotCalled(t, "ResolveUser", mock.Anything, mock.Anything)
}

func TestSubmit_CaptchaDisabled(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.CaptchaEnabled = false })
	f.expectTicketCreated()

	sub := validSubmission()
	delete(sub, "frc-captcha-solution")
	_, err := f.svc.Submit(context.Background(), sub, "")
	assert.NoError(t, err)
	assert.Zero(t, f.verifier.called)
}

func TestSubmit_MissingRequiredField(t *testing.T) {
	f := newFixture(t, nil)

	sub := validSubmission()
	delete(sub, "summary")
	_, err := f.svc.Submit(context.Background(), sub, "")
	assert.ErrorIs(t, err, ErrInvalidSubmission)
	f.ticket.AssertNotCalled(t, "ResolveUser", mock.Anything, mock.Anything)
}

func TestSubmit_UpstreamFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.ticket.On("ResolveUser", mock.Anything, "user@example.com").
		Return(nil, errors.New("service desk down"))

	_, err := f.svc.Submit(context.Background(), validSubmission(), "")
	assert.ErrorContains(t, err, "service desk down")
	assert.Empty(t, f.notifier.confirmations)
}

// --- Deferred flow ---

func TestSubmit_Deferred(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.DeferredVerification = true })

	result, err := f.svc.Submit(context.Background(), validSubmission(), "https://forms.example.com/contact")
	require.NoError(t, err)
	assert.True(t, result.Deferred)
	assert.Nil(t, result.Request)

	// No ticket until the link is clicked; the verification email went out.
	f.ticket.AssertNotCalled(t, "ResolveUser", mock.Anything, mock.Anything)
	require.Len(t, f.notifier.verifications, 1)

	pending, err := f.pending.FindByToken(context.Background(), f.notifier.verifications[0])
	require.NoError(t, err)
	assert.Equal(t, "https://forms.example.com/contact", pending.SourceOrigin)
	assert.Empty(t, pending.Verified)
}

func TestSubmit_Deferred_EmailFailureUnwinds(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.DeferredVerification = true })
	f.notifier.sendErr = errors.New("smtp refused")

	_, err := f.svc.Submit(context.Background(), validSubmission(), "")
	assert.ErrorContains(t, err, "smtp refused")
	assert.Empty(t, f.pending.items)
}

func TestVerify_RaisesTicketOnce(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.DeferredVerification = true })
	f.expectTicketCreated()

	_, err := f.svc.Submit(context.Background(), validSubmission(), "https://forms.example.com/contact")
	require.NoError(t, err)
	token := f.notifier.verifications[0]

	redirect, err := f.svc.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "https://forms.example.com/contact/thank-you?email=user%40example.com", redirect)
	assert.Equal(t, []string{"user@example.com"}, f.notifier.confirmations)
	f.ticket.AssertNumberOfCalls(t, "CreateRequest", 1)

	// Second click: the record is gone, the ticket is not raised again.
	_, err = f.svc.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	f.ticket.AssertNumberOfCalls(t, "CreateRequest", 1)
}

func TestVerify_UnknownToken(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.DeferredVerification = true })

	_, err := f.svc.Verify(context.Background(), "0123456789ABCDEFGHJKMNPQRS")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = f.svc.Verify(context.Background(), "not a token at all!")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestVerify_FallsBackToThankYouURL(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.DeferredVerification = true })
	f.expectTicketCreated()

	_, err := f.svc.Submit(context.Background(), validSubmission(), "")
	require.NoError(t, err)

	redirect, err := f.svc.Verify(context.Background(), f.notifier.verifications[0])
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/thank-you", redirect)
}

func TestVerify_TicketFailureAfterMarkAlerts(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.DeferredVerification = true })
	f.ticket.On("ResolveUser", mock.Anything, "user@example.com").
		Return(nil, errors.New("service desk down"))

	_, err := f.svc.Submit(context.Background(), validSubmission(), "")
	require.NoError(t, err)
	token := f.notifier.verifications[0]

	_, err = f.svc.Verify(context.Background(), token)
	assert.ErrorContains(t, err, "service desk down")
	assert.Contains(t, f.alerter.alerts, "ticket creation failed after verification")

	// The one-shot mark is consumed: a retry click cannot raise the ticket.
	_, err = f.svc.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}
