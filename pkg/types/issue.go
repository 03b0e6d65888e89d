package types

import (
	"strings"
)

// IssueType classifies a submission and selects its template
type IssueType string

const (
	IssueTypeBug      IssueType = "bug"
	IssueTypeFeature  IssueType = "feature"
	IssueTypeQuestion IssueType = "question"
)

// ParseIssueType maps client input onto a known classification. Anything
// unrecognized folds to IssueTypeQuestion.
func ParseIssueType(s string) IssueType {
	switch IssueType(strings.ToLower(strings.TrimSpace(s))) {
	case IssueTypeBug:
		return IssueTypeBug
	case IssueTypeFeature:
		return IssueTypeFeature
	default:
		return IssueTypeQuestion
	}
}

// Submission is the anonymous request body accepted by the proxy
type Submission struct {
	IssueType      string `json:"issueType"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	TurnstileToken string `json:"turnstileToken"`
	Website        string `json:"website"` // honeypot
}

// Type returns the parsed classification of the submission
func (s *Submission) Type() IssueType {
	return ParseIssueType(s.IssueType)
}

// Valid reports whether title and description are non-blank
func (s *Submission) Valid() bool {
	return strings.TrimSpace(s.Title) != "" && strings.TrimSpace(s.Description) != ""
}

// NewIssue is the write sent to the issue tracker
type NewIssue struct {
	Title  string
	Body   string
	Labels []string
}

// CreatedIssue is the tracker's result, returned to the caller
type CreatedIssue struct {
	Number int    `json:"issueNumber"`
	URL    string `json:"issueUrl"`
}
