package github

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	// assertionSkew backdates iat to tolerate clock drift with GitHub.
	assertionSkew = 60 * time.Second
	// assertionLifetime is the exp horizon; GitHub caps it at 10 minutes.
	assertionLifetime = 10 * time.Minute
)

// NewAppAssertion signs a short-lived RS256 JWT identifying the GitHub App
func NewAppAssertion(appID, privateKeyPEM string, now time.Time) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}

	claims := jwt.RegisteredClaims{
		Issuer:    appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-assertionSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}
	return signed, nil
}

// IssueToken exchanges a freshly signed App assertion for an installation
// access token. Nothing is cached; every call mints a new assertion and token.
func (c *Client) IssueToken(ctx context.Context, appID string, installationID int64, signingKey string) (string, error) {
	assertion, err := NewAppAssertion(appID, signingKey, c.now())
	if err != nil {
		return "", err
	}

	start := time.Now()
	tok, resp, err := c.apiClient(assertion).Apps.CreateInstallationToken(ctx, installationID, nil)
	c.metrics.ObserveUpstream("github_installation_token", start)
	if err != nil {
		return "", classifyError("github installation token exchange", resp, err)
	}
	if tok.GetToken() == "" {
		return "", fmt.Errorf("installation token response for installation %d carried no token", installationID)
	}

	c.logger.Debug("issued installation token",
		zap.String("app_id", appID),
		zap.Int64("installation_id", installationID),
		zap.Time("expires_at", tok.GetExpiresAt().Time),
	)

	return tok.GetToken(), nil
}
