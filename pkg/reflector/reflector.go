// Package reflector distills validation failures into structured guidance
// the next generation attempt can act on.
package reflector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"recast/pkg/llm"
	"recast/pkg/logx"
	"recast/pkg/state"
	"recast/pkg/templates"
)

const (
	// maxDigestFailures bounds how many recent failures feed one prompt.
	maxDigestFailures = 5
	// maxCodeChars bounds the candidate excerpt embedded in the prompt.
	maxCodeChars = 2000
	// maxStderrChars and maxStdoutChars bound tool output per failure.
	maxStderrChars = 500
	maxStdoutChars = 300
	// maxLineChars bounds each raw error line carried on the note.
	maxLineChars = 200
	// fallbackSplit is the offset used to split an unstructured response
	// into summary and fix. Best effort only.
	fallbackSplit = 200
)

// Reflector analyzes failed validation outcomes with the reasoning model.
// It never returns an error: an unusable response degrades to a best-effort
// note. The caller owns the iteration counter.
type Reflector struct {
	client   llm.LLMClient
	renderer *templates.Renderer
	log      *logx.Logger
}

func New(client llm.LLMClient, renderer *templates.Renderer) *Reflector {
	return &Reflector{
		client:   client,
		renderer: renderer,
		log:      logx.NewLogger("reflector"),
	}
}

// Reflect produces a note for the given attempt. Passing outcomes are
// ignored; only the most recent failures are digested.
func (r *Reflector) Reflect(ctx context.Context, goal, filePath, code string, failures []state.ValidationOutcome, iteration int) state.ReflectionNote {
	recent := recentFailures(failures)
	if len(recent) == 0 {
		r.log.Warn("reflect called with no failures for %s", filePath)
		return state.ReflectionNote{
			Iteration:    iteration,
			ErrorSummary: "No validation failures to analyze",
			SuggestedFix: "Run validation before reflecting",
			CreatedAt:    time.Now(),
		}
	}

	digest := buildDigest(recent)
	lines := relevantLines(recent)

	prompt, err := r.renderer.Render(templates.ReflectionTemplate, &templates.TemplateData{
		Goal:        goal,
		FilePath:    filePath,
		LastAttempt: head(code, maxCodeChars),
		ErrorDigest: digest,
		Iteration:   iteration,
	})
	if err != nil {
		r.log.Error("reflection prompt render failed: %v", err)
		return fallbackNote(iteration, fmt.Sprintf("Reflection unavailable: %v", err), lines)
	}

	resp, err := r.client.Complete(ctx, llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewUserMessage(prompt),
	}))
	if err != nil {
		r.log.Error("reflection model call failed: %v", err)
		return fallbackNote(iteration, fmt.Sprintf("Reflection failed: %v", err), lines)
	}

	summary, fix := parseReflection(resp.Content)
	r.log.Info("reflection for %s iteration %d: %d failures digested", filePath, iteration, len(recent))
	return state.ReflectionNote{
		Iteration:          iteration,
		ErrorSummary:       summary,
		SuggestedFix:       fix,
		RelevantErrorLines: lines,
		CreatedAt:          time.Now(),
	}
}

// recentFailures keeps the last maxDigestFailures non-passing outcomes.
func recentFailures(outcomes []state.ValidationOutcome) []state.ValidationOutcome {
	failed := make([]state.ValidationOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Passed {
			failed = append(failed, o)
		}
	}
	if len(failed) > maxDigestFailures {
		failed = failed[len(failed)-maxDigestFailures:]
	}
	return failed
}

// buildDigest formats failures for the prompt: tool name, message, then
// truncated stderr and stdout. Stderr identical to the message is elided.
func buildDigest(failures []state.ValidationOutcome) string {
	parts := make([]string, 0, len(failures))
	for i, f := range failures {
		lines := []string{fmt.Sprintf("Error %d (%s):", i+1, f.ToolName)}
		if f.ErrorMessage != "" {
			lines = append(lines, "  Message: "+f.ErrorMessage)
		}
		if f.Stderr != "" && f.Stderr != f.ErrorMessage {
			lines = append(lines, "  Stderr: "+head(f.Stderr, maxStderrChars))
		}
		if f.Stdout != "" {
			lines = append(lines, "  Stdout: "+head(f.Stdout, maxStdoutChars))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

func relevantLines(failures []state.ValidationOutcome) []string {
	var lines []string
	for _, f := range failures {
		if f.ErrorMessage == "" {
			continue
		}
		lines = append(lines, head(f.ErrorMessage, maxLineChars))
		if len(lines) == state.MaxRelevantErrorLines {
			break
		}
	}
	return lines
}

// parseReflection splits a model response on its heading keywords. Root
// cause lines mark a section boundary but are not carried on the note.
// Without headings the text is split at a fixed offset, best effort.
func parseReflection(text string) (summary, fix string) {
	var summaryParts, fixParts []string
	section := ""
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "error summary") || strings.Contains(lower, "what went wrong"):
			section = "summary"
			if rest := headingRemainder(line); rest != "" {
				summaryParts = append(summaryParts, rest)
			}
			continue
		case strings.Contains(lower, "root cause"):
			section = "cause"
			continue
		case strings.Contains(lower, "suggested fix"):
			section = "fix"
			if rest := headingRemainder(line); rest != "" {
				fixParts = append(fixParts, rest)
			}
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		switch section {
		case "summary":
			summaryParts = append(summaryParts, trimmed)
		case "fix":
			fixParts = append(fixParts, trimmed)
		}
	}

	summary = strings.Join(summaryParts, " ")
	fix = strings.Join(fixParts, " ")
	if summary == "" {
		summary = strings.TrimSpace(head(text, fallbackSplit))
	}
	if fix == "" && len(text) > fallbackSplit {
		end := 2 * fallbackSplit
		if end > len(text) {
			end = len(text)
		}
		fix = strings.TrimSpace(text[fallbackSplit:end])
	}
	return summary, fix
}

func headingRemainder(line string) string {
	if _, after, ok := strings.Cut(line, ":"); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func fallbackNote(iteration int, summary string, lines []string) state.ReflectionNote {
	return state.ReflectionNote{
		Iteration:          iteration,
		ErrorSummary:       summary,
		SuggestedFix:       "Review the validation errors manually",
		RelevantErrorLines: lines,
		CreatedAt:          time.Now(),
	}
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
