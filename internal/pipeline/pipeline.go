package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clintrovert/issueproxy/internal/metrics"
	"github.com/clintrovert/issueproxy/internal/secrets"
	"github.com/clintrovert/issueproxy/internal/templates"
	"github.com/clintrovert/issueproxy/pkg/types"
)

const unknownClient = "unknown"

// Terminal outcomes, used as the metrics label and in logs
const (
	OutcomePreflight          = "preflight"
	OutcomeMethodNotAllowed   = "method_not_allowed"
	OutcomeRateLimited        = "rate_limited"
	OutcomeInvalidBody        = "invalid_body"
	OutcomeMissingFields      = "missing_fields"
	OutcomeHoneypot           = "honeypot"
	OutcomeSecretsError       = "secrets_error"
	OutcomeCaptchaFailed      = "captcha_failed"
	OutcomeCaptchaError       = "captcha_error"
	OutcomeModerationRejected = "moderation_rejected"
	OutcomeModerationError    = "moderation_error"
	OutcomeNoCredentials      = "no_credentials"
	OutcomeCredentialError    = "credential_error"
	OutcomeUpstreamFailure    = "upstream_failure"
	OutcomeTransportFailure   = "transport_failure"
	OutcomeCreated            = "created"
)

// Request is the decoded inbound envelope
type Request struct {
	Method string
	Header http.Header
	Body   []byte
}

// Response is the outbound envelope
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Limiter is the abuse guard shared by all requests
type Limiter interface {
	Allow(key string, limit int, window time.Duration) bool
}

// SecretResolver yields the process-wide secrets
type SecretResolver interface {
	Resolve(ctx context.Context) (secrets.Bundle, error)
}

// CaptchaVerifier checks a CAPTCHA token
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, secret string) (bool, error)
}

// ContentScreener flags abusive text
type ContentScreener interface {
	Flagged(ctx context.Context, text string) (bool, error)
}

// TokenIssuer mints a short-lived tracker credential
type TokenIssuer interface {
	IssueToken(ctx context.Context, appID string, installationID int64, signingKey string) (string, error)
}

// IssueTracker performs the final write
type IssueTracker interface {
	CreateIssue(ctx context.Context, token string, issue types.NewIssue) (*types.CreatedIssue, error)
}

// Renderer turns a description into an issue body
type Renderer interface {
	Render(issueType types.IssueType, description string) templates.Rendered
}

// Settings carries the policy and credential configuration
type Settings struct {
	RateLimit  int
	RateWindow time.Duration

	// StaticToken, when set, is used verbatim and the delegated exchange is skipped.
	StaticToken    string
	AppID          string
	InstallationID int64
}

// Dependencies are the collaborators of a Pipeline. Screener and Issuer may
// be nil.
type Dependencies struct {
	Limiter   Limiter
	Secrets   SecretResolver
	Captcha   CaptchaVerifier
	Screener  ContentScreener
	Issuer    TokenIssuer
	Tracker   IssueTracker
	Templates Renderer
}

// Pipeline turns an anonymous submission into one authorized tracker write
type Pipeline struct {
	settings Settings
	deps     Dependencies
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New creates a new pipeline
func New(settings Settings, deps Dependencies, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		settings: settings,
		deps:     deps,
		metrics:  m,
		logger:   logger,
	}
}

// ClientKey returns the first X-Forwarded-For address, or "unknown"
func ClientKey(h http.Header) string {
	first, _, _ := strings.Cut(h.Get("X-Forwarded-For"), ",")
	if key := strings.TrimSpace(first); key != "" {
		return key
	}
	return unknownClient
}

// Handle runs the checks in order and stops at the first one that fails
func (p *Pipeline) Handle(ctx context.Context, req Request) Response {
	switch req.Method {
	case http.MethodOptions:
		p.metrics.RecordOutcome(OutcomePreflight)
		return Response{Status: http.StatusNoContent, Header: http.Header{}}
	case http.MethodPost:
	default:
		return p.fail(OutcomeMethodNotAllowed, MethodNotAllowed, "Method not allowed")
	}

	sourceIP := ClientKey(req.Header)
	logger := p.logger.With(zap.String("source_ip", sourceIP))

	if !p.deps.Limiter.Allow(sourceIP, p.settings.RateLimit, p.settings.RateWindow) {
		logger.Info("rate limit exceeded")
		return p.fail(OutcomeRateLimited, RateLimited, "Rate limit exceeded. Please try again later.")
	}

	var sub types.Submission
	if err := json.Unmarshal(req.Body, &sub); err != nil {
		logger.Debug("invalid request body", zap.Error(err))
		return p.fail(OutcomeInvalidBody, ClientError, "Invalid request body")
	}

	if !sub.Valid() {
		return p.fail(OutcomeMissingFields, ClientError, "Title and description are required")
	}

	// Bots get a success-shaped answer so the trap is not revealed.
	if sub.Website != "" {
		logger.Info("honeypot triggered")
		return p.respond(OutcomeHoneypot, http.StatusOK, types.CreatedIssue{})
	}

	bundle, err := p.deps.Secrets.Resolve(ctx)
	if err != nil {
		logger.Error("failed to load secrets", zap.Error(err))
		return p.fail(OutcomeSecretsError, ConfigurationError, "Server configuration error")
	}

	// An empty secret disables verification.
	if bundle.CaptchaSecret != "" {
		ok, err := p.deps.Captcha.Verify(ctx, sub.TurnstileToken, bundle.CaptchaSecret)
		if err != nil {
			logger.Error("turnstile verification error", zap.Error(err))
			return p.fail(OutcomeCaptchaError, TransportFailure, "Verification service error")
		}
		if !ok {
			return p.fail(OutcomeCaptchaFailed, Forbidden, "Turnstile verification failed")
		}
	}

	if p.deps.Screener != nil {
		flagged, err := p.deps.Screener.Flagged(ctx, sub.Title+"\n\n"+sub.Description)
		if err != nil {
			logger.Error("moderation error", zap.Error(err))
			return p.fail(OutcomeModerationError, TransportFailure, "Moderation service error")
		}
		if flagged {
			return p.fail(OutcomeModerationRejected, Forbidden, "Submission rejected")
		}
	}

	token, outcome, err := p.credential(ctx, bundle)
	if err != nil {
		logger.Error("failed to obtain tracker credential", zap.String("outcome", outcome), zap.Error(err))
		if outcome == OutcomeNoCredentials {
			return p.fail(outcome, ConfigurationError, "Server configuration error")
		}
		return p.fail(outcome, ConfigurationError, "Failed to authenticate with issue tracker")
	}

	issueType := sub.Type()
	rendered := p.deps.Templates.Render(issueType, sub.Description)
	issue := types.NewIssue{
		Title:  rendered.TitlePrefix + strings.TrimSpace(sub.Title),
		Body:   rendered.Body,
		Labels: []string{rendered.Label},
	}

	created, err := p.deps.Tracker.CreateIssue(ctx, token, issue)
	if err != nil {
		var upstream *types.UpstreamError
		if errors.As(err, &upstream) {
			logger.Error("issue tracker rejected write",
				zap.Int("status", upstream.StatusCode),
				zap.String("body", upstream.Body),
			)
			return p.fail(OutcomeUpstreamFailure, UpstreamFailure, "Failed to create issue")
		}
		logger.Error("failed to reach issue tracker", zap.Error(err))
		return p.fail(OutcomeTransportFailure, TransportFailure, "Failed to create issue")
	}

	logger.Info("created issue",
		zap.String("issue_type", string(issueType)),
		zap.Int("issue_number", created.Number),
	)
	return p.respond(OutcomeCreated, http.StatusCreated, created)
}

// credential selects the static override or performs the delegated exchange
func (p *Pipeline) credential(ctx context.Context, bundle secrets.Bundle) (string, string, error) {
	if p.settings.StaticToken != "" {
		return p.settings.StaticToken, "", nil
	}

	if p.deps.Issuer == nil || p.settings.AppID == "" || p.settings.InstallationID == 0 || bundle.SigningKey == "" {
		return "", OutcomeNoCredentials, errors.New("no tracker credentials configured")
	}

	token, err := p.deps.Issuer.IssueToken(ctx, p.settings.AppID, p.settings.InstallationID, bundle.SigningKey)
	if err != nil {
		return "", OutcomeCredentialError, err
	}
	return token, "", nil
}

func (p *Pipeline) fail(outcome string, kind ErrorKind, message string) Response {
	p.logger.Debug("request rejected",
		zap.String("outcome", outcome),
		zap.Stringer("kind", kind),
		zap.Int("status", kind.Status()),
	)
	return p.respond(outcome, kind.Status(), ErrorResponse{Error: message})
}

func (p *Pipeline) respond(outcome string, status int, body interface{}) Response {
	p.metrics.RecordOutcome(outcome)

	data, err := json.Marshal(body)
	if err != nil {
		p.logger.Error("failed to encode response", zap.Error(err))
		status = http.StatusInternalServerError
		data = []byte(`{"error":"Internal server error"}`)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return Response{Status: status, Header: header, Body: data}
}
