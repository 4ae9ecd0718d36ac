// Package templates provides template rendering for workflow prompts.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// TemplateData holds the data for template rendering. Fields irrelevant to
// a given template are left zero.
type TemplateData struct {
	Extra map[string]any `json:"extra,omitempty"`

	Goal        string   `json:"goal"`
	FilePath    string   `json:"file_path,omitempty"`
	FileContent string   `json:"file_content,omitempty"`
	Files       []string `json:"files,omitempty"`
	Plan        string   `json:"plan,omitempty"`

	// Retry context.
	LastAttempt      string `json:"last_attempt,omitempty"`
	ErrorSummary     string `json:"error_summary,omitempty"`
	RootCause        string `json:"root_cause,omitempty"`
	SuggestedFix     string `json:"suggested_fix,omitempty"`
	ErrorDigest      string `json:"error_digest,omitempty"`
	ValidationReport string `json:"validation_report,omitempty"`
	ReviewFeedback   string `json:"review_feedback,omitempty"`

	// Review context.
	Summary string `json:"summary,omitempty"`
	Diff    string `json:"diff,omitempty"`

	Iteration     int `json:"iteration,omitempty"`
	MaxIterations int `json:"max_iterations,omitempty"`
}

// StateTemplate identifies a workflow prompt template.
type StateTemplate string

const (
	// AnalysisTemplate plans the pass over the whole file set.
	AnalysisTemplate StateTemplate = "analysis.tpl.md"
	// GenerationTemplate produces the first candidate for a file.
	GenerationTemplate StateTemplate = "generation.tpl.md"
	// RegenerationTemplate retries a file with reflection context.
	RegenerationTemplate StateTemplate = "regeneration.tpl.md"
	// ReflectionTemplate diagnoses a validation failure.
	ReflectionTemplate StateTemplate = "reflection.tpl.md"
	// ReviewTemplate formats the human review request.
	ReviewTemplate StateTemplate = "review.tpl.md"
)

// Renderer handles template rendering for workflow states.
type Renderer struct {
	templates map[StateTemplate]*template.Template
}

// NewRenderer loads and parses all embedded templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[StateTemplate]*template.Template),
	}

	templateNames := []StateTemplate{
		AnalysisTemplate,
		GenerationTemplate,
		RegenerationTemplate,
		ReflectionTemplate,
		ReviewTemplate,
	}

	for _, name := range templateNames {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(string(name)).Funcs(template.FuncMap{
			"contains": strings.Contains,
		}).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// Render renders the specified template with the given data.
func (r *Renderer) Render(templateName StateTemplate, data *TemplateData) (string, error) {
	tmpl, exists := r.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	return buf.String(), nil
}

// GetAvailableTemplates returns a list of all loaded templates.
func (r *Renderer) GetAvailableTemplates() []StateTemplate {
	templates := make([]StateTemplate, 0, len(r.templates))
	for name := range r.templates {
		templates = append(templates, name)
	}
	return templates
}
