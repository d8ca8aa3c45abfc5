package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"linaro/webforms/internal/models"
	"linaro/webforms/internal/services"
)

// SubmitHandler handles POST /v1/submit.
type SubmitHandler struct {
	submissions services.ISubmissionService
}

// NewSubmitHandler creates a new SubmitHandler.
func NewSubmitHandler(submissions services.ISubmissionService) *SubmitHandler {
	return &SubmitHandler{submissions: submissions}
}

// HandleSubmit accepts a form submission. Response messages are stable
// strings the embedding sites' scripts match on.
func (h *SubmitHandler) HandleSubmit(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing request body"})
		return
	}

	submission, err := models.ParseSubmission(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid form submission"})
		return
	}

	sourceOrigin := c.GetHeader("Origin")
	if sourceOrigin == "" {
		sourceOrigin = c.GetHeader("Referer")
	}

	result, err := h.submissions.Submit(c.Request.Context(), submission, sourceOrigin)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownForm):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Unknown form_id"})
		case errors.Is(err, services.ErrInvalidSubmission):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid form submission"})
		case errors.Is(err, services.ErrCaptchaMissing):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Captcha solution is missing"})
		case errors.Is(err, services.ErrCaptchaFailed):
			c.JSON(http.StatusForbidden, gin.H{"message": "Captcha verification failed"})
		default:
			log.Printf("Submission failed for form %s: %v", submission.FormID(), err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Successfully submitted form with email " + result.Email,
		"formId":  result.FormID,
	})
}
