package moderation

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/clintrovert/issueproxy/internal/metrics"
)

// Screener flags abusive submission text through the OpenAI moderation API
type Screener struct {
	client  *openai.Client
	model   string
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewScreener creates a new screener. baseURL and model may be empty to use
// the API defaults.
func NewScreener(apiKey, baseURL, model string, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Screener {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Screener{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		metrics: m,
		logger:  logger,
	}
}

// Flagged reports whether the moderation model flagged text
func (s *Screener) Flagged(ctx context.Context, text string) (bool, error) {
	start := time.Now()
	resp, err := s.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: s.model,
	})
	s.metrics.ObserveUpstream("openai_moderation", start)
	if err != nil {
		return false, fmt.Errorf("failed to create moderation: %w", err)
	}

	if len(resp.Results) == 0 {
		return false, fmt.Errorf("no moderation results returned")
	}

	for _, result := range resp.Results {
		if result.Flagged {
			s.logger.Info("submission flagged by moderation", zap.String("model", resp.Model))
			return true, nil
		}
	}
	return false, nil
}
