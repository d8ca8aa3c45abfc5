package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"linaro/webforms/internal/config"
	"linaro/webforms/internal/services"
)

// VerifyHandler handles GET /v1/verify.
type VerifyHandler struct {
	cfg         *config.Config
	submissions services.ISubmissionService
}

// NewVerifyHandler creates a new VerifyHandler.
func NewVerifyHandler(cfg *config.Config, submissions services.ISubmissionService) *VerifyHandler {
	return &VerifyHandler{cfg: cfg, submissions: submissions}
}

// HandleVerify consumes an emailed verification link. Invalid and reused
// tokens get the same generic redirect a fresh token would: the response must
// not reveal whether a token was ever valid.
func (h *VerifyHandler) HandleVerify(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing token parameter"})
		return
	}

	redirect, err := h.submissions.Verify(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, services.ErrTokenNotFound) || errors.Is(err, services.ErrAlreadyVerified) {
			c.Redirect(http.StatusMovedPermanently, h.cfg.ThankYouURL)
			return
		}
		log.Printf("Verification failed for token %s: %v", token, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	c.Redirect(http.StatusMovedPermanently, redirect)
}
