package jira

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"go.uber.org/zap"

	"github.com/clintrovert/issueproxy/internal/metrics"
	"github.com/clintrovert/issueproxy/pkg/types"
)

// Client files issues in a Jira project
type Client struct {
	baseURL    string
	username   string
	projectKey string
	issueType  string
	timeout    time.Duration
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewClient creates a new Jira client
func NewClient(baseURL, username, projectKey, issueType string, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   username,
		projectKey: projectKey,
		issueType:  issueType,
		timeout:    timeout,
		metrics:    m,
		logger:     logger,
	}
}

// apiClient returns a go-jira client authenticating with token as the API
// token of the configured user
func (c *Client) apiClient(token string) (*jira.Client, error) {
	tp := jira.BasicAuthTransport{
		Username: c.username,
		Password: token,
	}
	httpClient := tp.Client()
	httpClient.Timeout = c.timeout

	client, err := jira.NewClient(httpClient, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}
	return client, nil
}

// CreateIssue files issue in the configured project using token
func (c *Client) CreateIssue(ctx context.Context, token string, issue types.NewIssue) (*types.CreatedIssue, error) {
	client, err := c.apiClient(token)
	if err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		if l != "" {
			// Jira labels cannot contain spaces
			labels = append(labels, strings.ReplaceAll(l, " ", "-"))
		}
	}

	req := &jira.Issue{
		Fields: &jira.IssueFields{
			Project:     jira.Project{Key: c.projectKey},
			Type:        jira.IssueType{Name: c.issueType},
			Summary:     issue.Title,
			Description: issue.Body,
			Labels:      labels,
		},
	}

	start := time.Now()
	created, resp, err := client.Issue.CreateWithContext(ctx, req)
	c.metrics.ObserveUpstream("jira_issues", start)
	if err != nil {
		return nil, classifyError(resp, err)
	}

	result := &types.CreatedIssue{
		Number: issueNumber(created.Key),
		URL:    c.baseURL + "/browse/" + created.Key,
	}

	c.logger.Info("created issue",
		zap.String("project", c.projectKey),
		zap.String("issue_key", created.Key),
		zap.String("issue_url", result.URL),
	)

	return result, nil
}

// issueNumber extracts 123 from a key like "APP-123"; 0 if there is none
func issueNumber(key string) int {
	idx := strings.LastIndex(key, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(key[idx+1:])
	if err != nil {
		return 0
	}
	return n
}

func classifyError(resp *jira.Response, err error) error {
	if resp != nil && resp.Response != nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		body := err.Error()
		if resp.Body != nil {
			defer resp.Body.Close()
			if b, readErr := io.ReadAll(resp.Body); readErr == nil && len(b) > 0 {
				body = string(b)
			}
		}
		return &types.UpstreamError{
			Service:    "jira issues api",
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}
	return fmt.Errorf("failed to call jira issues api: %w", err)
}

