package captcha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"linaro/webforms/internal/config"
)

func newTestVerifier(siteVerifyURL string) IVerifier {
	return NewFriendlyCaptchaVerifier(&config.Config{
		CaptchaAPIKey:        "test-api-key",
		CaptchaSitekey:       "test-sitekey",
		CaptchaSiteVerifyURL: siteVerifyURL,
	})
}

func TestVerify_Success(t *testing.T) {
	var gotAPIKey string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("X-API-KEY")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))
	defer srv.Close()

	v := newTestVerifier(srv.URL)
	assert.True(t, v.Verify(context.Background(), "solution-abc"))
	assert.Equal(t, "test-api-key", gotAPIKey)
	assert.Equal(t, "solution-abc", gotBody["response"])
	assert.Equal(t, "test-sitekey", gotBody["sitekey"])
}

func TestVerify_RemoteRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "errors": []string{"solution_invalid"}})
	}))
	defer srv.Close()

	v := newTestVerifier(srv.URL)
	assert.False(t, v.Verify(context.Background(), "bad-solution"))
}

func TestVerify_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	v := newTestVerifier(srv.URL)
	assert.False(t, v.Verify(context.Background(), "solution"))
}

func TestVerify_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed server: connection refused

	v := newTestVerifier(srv.URL)
	assert.False(t, v.Verify(context.Background(), "solution"))
}

func TestVerify_MissingCredentials(t *testing.T) {
	v := NewFriendlyCaptchaVerifier(&config.Config{})
	assert.False(t, v.Verify(context.Background(), "solution"))
}
