package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	TrackerGitHub = "github"
	TrackerJira   = "jira"
)

// Config holds the process configuration read from the environment
type Config struct {
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	Port            string        `envconfig:"PORT" default:"8080"`
	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"10s"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"65536"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	Tracker         string        `envconfig:"TRACKER" default:"github"`

	// Groups are embedded; their tags carry the full variable names.
	RateLimit
	GitHub
	Turnstile
	Jira
	Moderation
}

// RateLimit bounds submissions per client address
type RateLimit struct {
	Max    int           `envconfig:"RATE_LIMIT_MAX" default:"5"`
	Window time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1h"`
}

// GitHub holds the GitHub App and static token settings
type GitHub struct {
	// Token is a static credential; when set the App exchange is skipped.
	Token          string `envconfig:"GITHUB_TOKEN"`
	AppID          string `envconfig:"GITHUB_APP_ID"`
	InstallationID int64  `envconfig:"GITHUB_INSTALLATION_ID"`
	PrivateKey     string `envconfig:"GITHUB_PRIVATE_KEY"`
	PrivateKeyFile string `envconfig:"GITHUB_PRIVATE_KEY_FILE"`
	// PrivateKeyParam names a parameter store entry holding the PEM key.
	PrivateKeyParam string `envconfig:"GITHUB_PRIVATE_KEY_PARAM"`
	Repo            string `envconfig:"GITHUB_REPO"`
	APIURL          string `envconfig:"GITHUB_API_URL" default:"https://api.github.com/"`
}

// Turnstile holds the CAPTCHA verification settings
type Turnstile struct {
	SecretKey      string `envconfig:"TURNSTILE_SECRET_KEY"`
	SecretKeyFile  string `envconfig:"TURNSTILE_SECRET_KEY_FILE"`
	SecretKeyParam string `envconfig:"TURNSTILE_SECRET_KEY_PARAM"`
	VerifyURL      string `envconfig:"TURNSTILE_VERIFY_URL" default:"https://challenges.cloudflare.com/turnstile/v0/siteverify"`
}

// Jira holds the settings for the Jira tracker backend
type Jira struct {
	BaseURL    string `envconfig:"JIRA_BASE_URL"`
	Username   string `envconfig:"JIRA_USERNAME"`
	Token      string `envconfig:"JIRA_TOKEN"`
	ProjectKey string `envconfig:"JIRA_PROJECT_KEY"`
	IssueType  string `envconfig:"JIRA_ISSUE_TYPE" default:"Task"`
}

// Moderation holds the optional content screening settings. An empty APIKey
// disables screening.
type Moderation struct {
	APIKey  string `envconfig:"OPENAI_API_KEY"`
	BaseURL string `envconfig:"OPENAI_BASE_URL"`
	Model   string `envconfig:"OPENAI_MODERATION_MODEL"`
}

// Load reads the configuration from the environment and validates it
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted
func (c *Config) Validate() error {
	c.Tracker = strings.ToLower(strings.TrimSpace(c.Tracker))

	if c.RateLimit.Max <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", c.RateLimit.Max)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimit.Window)
	}

	switch c.Tracker {
	case TrackerGitHub:
		if c.GitHub.Repo == "" {
			return fmt.Errorf("tracker %s is selected but GITHUB_REPO is not configured", c.Tracker)
		}
	case TrackerJira:
		if c.Jira.BaseURL == "" || c.Jira.ProjectKey == "" {
			return fmt.Errorf("tracker %s is selected but JIRA_BASE_URL or JIRA_PROJECT_KEY is not configured", c.Tracker)
		}
	default:
		return fmt.Errorf("unknown tracker %q, expected %s or %s", c.Tracker, TrackerGitHub, TrackerJira)
	}

	return nil
}

// StaticToken returns the long-lived override credential for the selected
// tracker, or "" when none is configured.
func (c *Config) StaticToken() string {
	if c.Tracker == TrackerJira {
		return c.Jira.Token
	}
	return c.GitHub.Token
}
