package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"linaro/webforms/internal/config"
)

// IVerifier confirms that a human solved a challenge. Verify returns false —
// never an error — on any failure: unset credentials, transport errors, and
// remote rejections all collapse into "reject the submission". Causes are
// logged for operators only.
type IVerifier interface {
	Verify(ctx context.Context, solution string) bool
}

// siteVerifyResponse is the expected structure from the FriendlyCaptcha
// siteverify endpoint.
type siteVerifyResponse struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// friendlyCaptchaVerifier implements IVerifier against the FriendlyCaptcha
// v2 siteverify API.
type friendlyCaptchaVerifier struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewFriendlyCaptchaVerifier creates a new FriendlyCaptcha verifier.
func NewFriendlyCaptchaVerifier(cfg *config.Config) IVerifier {
	return &friendlyCaptchaVerifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Verify makes exactly one round trip to the siteverify endpoint. No retries
// here; transport-level retry policy belongs to the HTTP client, not this
// component.
func (v *friendlyCaptchaVerifier) Verify(ctx context.Context, solution string) bool {
	if v.cfg.CaptchaAPIKey == "" || v.cfg.CaptchaSitekey == "" {
		log.Println("WARN: FriendlyCaptcha credentials not configured. Rejecting submission.")
		return false
	}

	payload := map[string]string{
		"response": solution,
		"sitekey":  v.cfg.CaptchaSitekey,
	}
	jsonData, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, "POST", v.cfg.CaptchaSiteVerifyURL, bytes.NewBuffer(jsonData))
	if err != nil {
		log.Printf("Error creating captcha siteverify request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", v.cfg.CaptchaAPIKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		log.Printf("Error calling captcha siteverify: %v", err)
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("Error reading captcha siteverify response body: %v", err)
		return false
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("Captcha siteverify returned non-OK status: %d - Body: %s", resp.StatusCode, string(body))
		return false
	}

	var verifyResp siteVerifyResponse
	if err := json.Unmarshal(body, &verifyResp); err != nil {
		log.Printf("Error unmarshalling captcha siteverify response: %v - Body: %s", err, string(body))
		return false
	}

	if !verifyResp.Success {
		log.Printf("Captcha verification unsuccessful. Errors: %v", verifyResp.Errors)
	}

	return verifyResp.Success
}
