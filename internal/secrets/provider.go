package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"linaro/webforms/internal/config"
)

// Provider returns the service desk password on demand. The orchestrator
// depends only on this interface, not on any specific credential backend.
type Provider interface {
	Password(ctx context.Context) (string, error)
}

// EnvProvider serves a static secret loaded from the environment at startup.
type EnvProvider struct {
	apiKey string
}

// NewEnvProvider creates an EnvProvider. An empty key is a configuration
// error surfaced on first use, before any upstream call is attempted.
func NewEnvProvider(cfg *config.Config) *EnvProvider {
	return &EnvProvider{apiKey: cfg.ServiceDeskAPIKey}
}

func (p *EnvProvider) Password(ctx context.Context) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("missing SERVICE_DESK_API_KEY")
	}
	return p.apiKey, nil
}

// ExchangeProvider fetches the password from a secrets service. Each call
// mints a short-lived HS256 assertion and presents it; the remote end
// validates the signature and TTL and responds with the current secret.
type ExchangeProvider struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewExchangeProvider creates an ExchangeProvider.
func NewExchangeProvider(cfg *config.Config) *ExchangeProvider {
	return &ExchangeProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type exchangeResponse struct {
	Password string `json:"password"`
}

func (p *ExchangeProvider) Password(ctx context.Context) (string, error) {
	if p.cfg.SecretsExchangeURL == "" || p.cfg.SecretsExchangeKey == "" {
		return "", fmt.Errorf("secrets exchange not configured")
	}

	assertion, err := p.mintAssertion()
	if err != nil {
		return "", err
	}

	payload, _ := json.Marshal(map[string]string{"assertion": assertion})
	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.SecretsExchangeURL, bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create secrets exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to contact secrets exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read secrets exchange response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("secrets exchange returned status %d", resp.StatusCode)
	}

	var exResp exchangeResponse
	if err := json.Unmarshal(body, &exResp); err != nil {
		return "", fmt.Errorf("failed to parse secrets exchange response: %w", err)
	}
	if exResp.Password == "" {
		return "", fmt.Errorf("secrets exchange returned an empty password")
	}
	return exResp.Password, nil
}

// mintAssertion creates the signed, short-lived token presented to the
// exchange endpoint.
func (p *ExchangeProvider) mintAssertion() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "webforms-gateway",
		Subject:   p.cfg.ServiceDeskUsername,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.cfg.SecretsAssertionTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	assertion, err := token.SignedString([]byte(p.cfg.SecretsExchangeKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign exchange assertion: %w", err)
	}
	return assertion, nil
}

// redisSecretKey holds the cached service desk password.
const redisSecretKey = "secrets:servicedesk:password"

// CachedProvider wraps another provider with a Redis TTL cache so that one
// short-lived-credential fetch serves many submissions.
type CachedProvider struct {
	inner  Provider
	client *redis.Client
	ttl    time.Duration
}

// NewCachedProvider creates a CachedProvider.
func NewCachedProvider(inner Provider, client *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{inner: inner, client: client, ttl: ttl}
}

func (p *CachedProvider) Password(ctx context.Context) (string, error) {
	cached, err := p.client.Get(ctx, redisSecretKey).Result()
	if err == nil && cached != "" {
		return cached, nil
	}
	if err != nil && err != redis.Nil {
		// Cache trouble is not fatal; fall through to the inner provider.
		log.Printf("Secret cache read failed, falling through: %v", err)
	}

	password, err := p.inner.Password(ctx)
	if err != nil {
		return "", err
	}

	if setErr := p.client.Set(ctx, redisSecretKey, password, p.ttl).Err(); setErr != nil {
		log.Printf("Secret cache write failed: %v", setErr)
	}
	return password, nil
}

// NewProvider picks the backend from configuration: the exchange when
// configured, otherwise the static environment secret.
func NewProvider(cfg *config.Config, redisClient *redis.Client) Provider {
	var base Provider
	if cfg.SecretsExchangeURL != "" {
		base = NewExchangeProvider(cfg)
	} else {
		base = NewEnvProvider(cfg)
	}
	if redisClient != nil && cfg.SecretsCacheTTL > 0 {
		return NewCachedProvider(base, redisClient, cfg.SecretsCacheTTL)
	}
	return base
}
