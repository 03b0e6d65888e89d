package templates

import (
	"embed"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/clintrovert/issueproxy/pkg/types"
)

// Placeholder is replaced with the submitter's description
const Placeholder = "{description}"

const frontmatterDelimiter = "---"

//go:embed files/*.md
var files embed.FS

var templateFiles = map[types.IssueType]string{
	types.IssueTypeBug:      "files/bug.md",
	types.IssueTypeFeature:  "files/feature.md",
	types.IssueTypeQuestion: "files/question.md",
}

const footerFile = "files/footer.md"

// Template is a parsed issue template
type Template struct {
	TitlePrefix string `yaml:"title_prefix"`
	Label       string `yaml:"label"`
	Body        string `yaml:"-"`
}

// Rendered is a template applied to a description
type Rendered struct {
	TitlePrefix string
	Label       string
	Body        string
}

// Parse splits raw into frontmatter metadata and body. Text without a leading
// frontmatter block is returned whole as the body with empty metadata.
func Parse(raw string) (Template, error) {
	if !strings.HasPrefix(raw, frontmatterDelimiter) {
		return Template{Body: raw}, nil
	}

	rest := raw[len(frontmatterDelimiter):]
	end := strings.Index(rest, frontmatterDelimiter)
	if end < 0 {
		return Template{Body: raw}, nil
	}

	var t Template
	if err := yaml.Unmarshal([]byte(rest[:end]), &t); err != nil {
		return Template{}, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	t.Body = strings.TrimLeftFunc(rest[end+len(frontmatterDelimiter):], unicode.IsSpace)

	return t, nil
}

// Engine renders issue bodies from the compiled-in templates
type Engine struct {
	templates map[types.IssueType]Template
	footer    string
}

// Load parses every compiled-in template
func Load() (*Engine, error) {
	e := &Engine{templates: make(map[types.IssueType]Template, len(templateFiles))}

	for issueType, name := range templateFiles {
		raw, err := files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}
		t, err := Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		if n := strings.Count(t.Body, Placeholder); n != 1 {
			return nil, fmt.Errorf("template %s has %d %s placeholders, expected 1", name, n, Placeholder)
		}
		e.templates[issueType] = t
	}

	footer, err := files.ReadFile(footerFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read footer: %w", err)
	}
	e.footer = string(footer)

	return e, nil
}

// Template returns the template for issueType, falling back to the question
// template for anything unknown.
func (e *Engine) Template(issueType types.IssueType) Template {
	if t, ok := e.templates[issueType]; ok {
		return t
	}
	return e.templates[types.IssueTypeQuestion]
}

// Render fills the template for issueType with description. The description
// is inserted verbatim.
func (e *Engine) Render(issueType types.IssueType, description string) Rendered {
	t := e.Template(issueType)
	body := strings.Replace(t.Body, Placeholder, description, 1)

	return Rendered{
		TitlePrefix: t.TitlePrefix,
		Label:       t.Label,
		Body:        strings.TrimRight(body, " \t\r\n") + e.footer,
	}
}
