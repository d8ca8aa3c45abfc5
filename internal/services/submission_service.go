package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"linaro/webforms/internal/alert"
	"linaro/webforms/internal/captcha"
	"linaro/webforms/internal/config"
	"linaro/webforms/internal/forms"
	"linaro/webforms/internal/models"
	"linaro/webforms/internal/servicedesk"
	"linaro/webforms/internal/utils"
)

var (
	// ErrUnknownForm means the submission's form id is not in the catalog.
	ErrUnknownForm = errors.New("unknown form_id")

	// ErrInvalidSubmission means the submission failed schema validation.
	ErrInvalidSubmission = errors.New("invalid form submission")

	// ErrCaptchaMissing means captcha is enforced and no solution was sent.
	ErrCaptchaMissing = errors.New("captcha solution is missing")

	// ErrCaptchaFailed means the captcha solution did not verify.
	ErrCaptchaFailed = errors.New("captcha verification failed")
)

// ITicketing is the slice of the service desk client the orchestrator uses.
type ITicketing interface {
	ResolveUser(ctx context.Context, email string) (*models.ServiceDeskUser, error)
	AddCustomerToProject(ctx context.Context, projectID, accountID string) error
	CreateRequest(ctx context.Context, schema *models.FormSchema, email string, fieldValues map[string]interface{}) (*models.RequestRef, error)
}

// SubmitResult reports what happened to an accepted submission.
type SubmitResult struct {
	FormID   string
	Email    string
	Deferred bool
	Request  *models.RequestRef
}

// ISubmissionService orchestrates the submission pipeline end to end.
type ISubmissionService interface {
	Submit(ctx context.Context, submission models.Submission, sourceOrigin string) (*SubmitResult, error)
	Verify(ctx context.Context, rawToken string) (string, error)
}

// submissionService implements ISubmissionService. The captcha gate runs
// before anything else, then catalog lookup and schema validation, and only
// then any upstream traffic.
type submissionService struct {
	cfg      *config.Config
	catalog  *forms.Catalog
	verifier captcha.IVerifier
	ticket   ITicketing
	pending  IPendingService
	notifier INotifier
	alerter  alert.Alerter
}

// NewSubmissionService creates the orchestrator.
func NewSubmissionService(
	cfg *config.Config,
	catalog *forms.Catalog,
	verifier captcha.IVerifier,
	ticket ITicketing,
	pending IPendingService,
	notifier INotifier,
	alerter alert.Alerter,
) ISubmissionService {
	return &submissionService{
		cfg:      cfg,
		catalog:  catalog,
		verifier: verifier,
		ticket:   ticket,
		pending:  pending,
		notifier: notifier,
		alerter:  alerter,
	}
}

// Submit validates a submission and either raises the ticket immediately or
// parks the submission behind an emailed verification link, depending on the
// deferred-verification setting.
func (s *submissionService) Submit(ctx context.Context, submission models.Submission, sourceOrigin string) (*SubmitResult, error) {
	if s.cfg.CaptchaEnabled {
		solution := submission.CaptchaSolution()
		if solution == "" {
			return nil, ErrCaptchaMissing
		}
		if !s.verifier.Verify(ctx, solution) {
			return nil, ErrCaptchaFailed
		}
	}

	formID := submission.FormID()
	schema, ok := s.catalog.Lookup(formID)
	if !ok {
		return nil, ErrUnknownForm
	}

	if !forms.Validate(schema, submission) {
		return nil, ErrInvalidSubmission
	}

	result := &SubmitResult{FormID: formID, Email: submission.Email()}

	if s.cfg.DeferredVerification {
		if err := s.parkForVerification(ctx, submission, sourceOrigin); err != nil {
			return nil, err
		}
		result.Deferred = true
		return result, nil
	}

	ref, err := s.raiseTicket(ctx, schema, submission)
	if err != nil {
		return nil, err
	}
	result.Request = ref

	s.notifier.EnqueueConfirmation(ctx, submission)
	return result, nil
}

// parkForVerification parks the submission and emails its verification link. When the
// email cannot be sent the pending record is removed again: a record nobody
// can verify would only linger until cleanup.
func (s *submissionService) parkForVerification(ctx context.Context, submission models.Submission, sourceOrigin string) error {
	if sourceOrigin == "" {
		sourceOrigin = s.cfg.DefaultSourceOrigin
	}

	pending, err := s.pending.Create(ctx, submission, sourceOrigin)
	if err != nil {
		return err
	}

	if err := s.notifier.SendVerification(ctx, pending); err != nil {
		if delErr := s.pending.Delete(ctx, pending.Token); delErr != nil {
			log.Printf("Failed to remove pending submission %s after email failure: %v", pending.Token, delErr)
		}
		return err
	}
	return nil
}

// raiseTicket runs the service desk leg: find-or-create the customer, enroll
// them in the project, create the request.
func (s *submissionService) raiseTicket(ctx context.Context, schema *models.FormSchema, submission models.Submission) (*models.RequestRef, error) {
	email := submission.Email()

	user, err := s.ticket.ResolveUser(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := s.ticket.AddCustomerToProject(ctx, schema.ProjectID, user.AccountID); err != nil {
		return nil, err
	}

	fieldValues := servicedesk.BuildRequestFieldValues(submission)
	ref, err := s.ticket.CreateRequest(ctx, schema, email, fieldValues)
	if err != nil {
		return nil, err
	}

	log.Printf("Created request %s for form %s (submitter: %s)", ref.IssueKey, schema.FormID, email)
	return ref, nil
}

// Verify consumes a verification token and raises the parked ticket. The
// returned string is where to send the visitor's browser. ErrTokenNotFound
// and ErrAlreadyVerified propagate so the handler can choose the generic
// redirect without leaking token validity.
func (s *submissionService) Verify(ctx context.Context, rawToken string) (string, error) {
	token, err := utils.NormalizeToken(rawToken)
	if err != nil {
		return "", ErrTokenNotFound
	}

	pending, err := s.pending.MarkVerified(ctx, token)
	if err != nil {
		return "", err
	}

	schema, ok := s.catalog.Lookup(pending.Submission.FormID())
	if !ok {
		// Form was removed from the catalog between submission and click.
		s.alerter.Alert(ctx, "verified submission references unknown form", map[string]interface{}{
			"token":   token,
			"form_id": pending.Submission.FormID(),
		})
		return "", fmt.Errorf("form %s no longer in catalog", pending.Submission.FormID())
	}

	if _, err := s.raiseTicket(ctx, schema, pending.Submission); err != nil {
		// The one-shot verified mark is already consumed; this needs a human.
		s.alerter.Alert(ctx, "ticket creation failed after verification", map[string]interface{}{
			"token":   token,
			"form_id": schema.FormID,
			"email":   pending.Submission.Email(),
			"error":   err.Error(),
		})
		return "", err
	}

	if err := s.pending.Delete(ctx, token); err != nil {
		log.Printf("Failed to delete pending submission %s after ticket creation: %v", token, err)
	}

	s.notifier.EnqueueConfirmation(ctx, pending.Submission)

	return successRedirectURL(s.cfg, pending), nil
}

// successRedirectURL builds the post-verification destination from the
// submission's originating site and the submitter's email, falling back to
// the generic thank-you page when no origin was recorded.
func successRedirectURL(cfg *config.Config, pending *models.PendingSubmission) string {
	origin := strings.TrimRight(pending.SourceOrigin, "/")
	if origin == "" {
		return cfg.ThankYouURL
	}
	return origin + "/thank-you?email=" + url.QueryEscape(pending.Submission.Email())
}
