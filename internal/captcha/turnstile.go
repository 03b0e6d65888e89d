package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clintrovert/issueproxy/internal/metrics"
)

// Verifier checks CAPTCHA tokens against a siteverify endpoint
type Verifier struct {
	httpClient *http.Client
	endpoint   string
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// NewVerifier creates a verifier posting to endpoint
func NewVerifier(endpoint string, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Verifier {
	return &Verifier{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		metrics:    m,
		logger:     logger,
	}
}

// Verify reports the service's verdict for token. A returned error means the
// service could not be reached or answered with something undecodable; it is
// never used to signal a failed verification.
func (v *Verifier) Verify(ctx context.Context, token, secret string) (bool, error) {
	form := url.Values{}
	form.Set("secret", secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := v.httpClient.Do(req)
	v.metrics.ObserveUpstream("turnstile", start)
	if err != nil {
		return false, fmt.Errorf("failed to call verification service: %w", err)
	}
	defer resp.Body.Close()

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("failed to decode verification response (status %d): %w", resp.StatusCode, err)
	}

	if !out.Success {
		v.logger.Info("captcha rejected", zap.Strings("error_codes", out.ErrorCodes))
	}

	return out.Success, nil
}
