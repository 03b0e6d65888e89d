package github

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/clintrovert/issueproxy/internal/metrics"
	"github.com/clintrovert/issueproxy/pkg/types"
)

const userAgent = "issue-proxy/0.1"

// Client wraps the GitHub REST API for one target repository
type Client struct {
	baseURL *url.URL
	repo    types.RepositoryInfo
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewClient creates a new GitHub client filing issues in repo
func NewClient(apiURL, repo string, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) (*Client, error) {
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	baseURL, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse api url: %w", err)
	}

	repoInfo, err := types.ParseRepository(repo)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: baseURL,
		repo:    repoInfo,
		timeout: timeout,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// apiClient returns a go-github client sending token as a bearer credential
func (c *Client) apiClient(token string) *github.Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = c.timeout

	gh := github.NewClient(tc)
	gh.BaseURL = c.baseURL
	gh.UserAgent = userAgent
	return gh
}

// CreateIssue files issue in the configured repository using token
func (c *Client) CreateIssue(ctx context.Context, token string, issue types.NewIssue) (*types.CreatedIssue, error) {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		if l != "" {
			labels = append(labels, l)
		}
	}

	req := &github.IssueRequest{
		Title:  github.String(issue.Title),
		Body:   github.String(issue.Body),
		Labels: &labels,
	}

	start := time.Now()
	created, resp, err := c.apiClient(token).Issues.Create(ctx, c.repo.Owner, c.repo.Name, req)
	c.metrics.ObserveUpstream("github_issues", start)
	if err != nil {
		return nil, classifyError("github issues api", resp, err)
	}

	result := &types.CreatedIssue{
		Number: created.GetNumber(),
		URL:    created.GetHTMLURL(),
	}

	c.logger.Info("created issue",
		zap.String("repo", c.repo.String()),
		zap.Int("issue_number", result.Number),
		zap.String("issue_url", result.URL),
	)

	return result, nil
}

// classifyError turns a non-success response into a types.UpstreamError and
// leaves transport or decode failures as plain errors.
func classifyError(service string, resp *github.Response, err error) error {
	if resp != nil && resp.Response != nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		body := err.Error()
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Message != "" {
			body = ghErr.Message
		}
		return &types.UpstreamError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}
	return fmt.Errorf("failed to call %s: %w", service, err)
}
