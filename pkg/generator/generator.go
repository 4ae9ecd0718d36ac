// Package generator produces candidate rewrites for one file. The first
// attempt tries deterministic transforms; everything else goes through the
// reasoning model, with a minimal safe fallback when the model is
// unreachable. A generation attempt never aborts the workflow.
package generator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"recast/pkg/diff"
	"recast/pkg/llm"
	"recast/pkg/logx"
	"recast/pkg/state"
	"recast/pkg/templates"
	"recast/pkg/transform"
)

// Strategy labels recorded on each generation.
const (
	StrategyTransform = "transform"
	StrategyLLM       = "llm"
	StrategyFallback  = "fallback"
)

// defaultSummary is used when the response carries no summary at all.
const defaultSummary = "Refactoring applied."

// maxCauseChars bounds the failure cause quoted in a fallback summary.
const maxCauseChars = 50

// Generation is one candidate rewrite for one file.
type Generation struct {
	ModifiedContent string
	Diff            string
	Summary         string
	Strategy        string
}

// Request is the read view of workflow state one attempt needs. Reflection
// is nil on the first attempt; ReviewFeedback carries a reviewer's MODIFY
// text when the retry came from the human gate.
type Request struct {
	Item           *state.WorkItem
	Goal           string
	Iteration      int
	MaxIterations  int
	Reflection     *state.ReflectionNote
	ReviewFeedback string
	Plan           string
}

// Generator produces candidates with transforms and the reasoning model.
type Generator struct {
	client   llm.LLMClient
	registry *transform.Registry
	renderer *templates.Renderer
	log      *logx.Logger
}

func New(client llm.LLMClient, registry *transform.Registry, renderer *templates.Renderer) *Generator {
	return &Generator{
		client:   client,
		registry: registry,
		renderer: renderer,
		log:      logx.NewLogger("generator"),
	}
}

// Generate produces a candidate for the request. Transforms are only tried
// on iteration zero; a matching transform that changes the source wins.
// Model failures degrade to the fallback candidate, never an error.
func (g *Generator) Generate(ctx context.Context, req Request) (Generation, error) {
	if req.Item == nil {
		return Generation{}, errors.New("no work item to generate")
	}
	original := req.Item.OriginalContent

	if req.Iteration == 0 {
		res, err := g.registry.ApplyMatching(req.Goal, original)
		if err != nil {
			g.log.Warn("transforms failed for %s, falling through to the model: %v", req.Item.FilePath, err)
		} else if res.HasChanges() {
			g.log.Info("transforms made %d changes to %s", res.ChangeCount, req.Item.FilePath)
			return Generation{
				ModifiedContent: res.Modified,
				Diff:            diff.Unified(req.Item.FilePath, original, res.Modified),
				Summary:         transform.SummarizeChanges(res),
				Strategy:        StrategyTransform,
			}, nil
		}
	}

	prompt, err := g.renderPrompt(req)
	if err != nil {
		g.log.Error("generation prompt render failed for %s: %v", req.Item.FilePath, err)
		return g.fallback(req, err), nil
	}

	resp, err := g.client.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.CompletionMessage{llm.NewUserMessage(prompt)},
		MaxTokens:   llm.DefaultMaxTokens,
		Temperature: llm.TemperatureDeterministic,
	})
	if err != nil {
		g.log.Error("generation model call failed for %s: %v", req.Item.FilePath, err)
		return g.fallback(req, err), nil
	}

	summary, code := parseResponse(resp.Content)
	if code == "" {
		g.log.Warn("model response for %s contained no code", req.Item.FilePath)
		return g.fallback(req, errors.New("response contained no code")), nil
	}
	return Generation{
		ModifiedContent: code,
		Diff:            diff.Unified(req.Item.FilePath, original, code),
		Summary:         summary,
		Strategy:        StrategyLLM,
	}, nil
}

// renderPrompt picks the first-attempt or retry template. Any reflection or
// reviewer feedback means this is a retry.
func (g *Generator) renderPrompt(req Request) (string, error) {
	data := &templates.TemplateData{
		Goal:        req.Goal,
		FilePath:    req.Item.FilePath,
		FileContent: req.Item.OriginalContent,
		Plan:        req.Plan,
	}
	name := templates.GenerationTemplate
	if req.Reflection != nil || req.ReviewFeedback != "" {
		name = templates.RegenerationTemplate
		data.LastAttempt = req.Item.ModifiedContent
		data.Iteration = req.Iteration
		data.MaxIterations = req.MaxIterations
		data.ReviewFeedback = req.ReviewFeedback
		if req.Reflection != nil {
			data.ErrorSummary = req.Reflection.ErrorSummary
			data.SuggestedFix = req.Reflection.SuggestedFix
			data.ValidationReport = strings.Join(req.Reflection.RelevantErrorLines, "\n")
		} else {
			data.ErrorSummary = "A reviewer requested changes to the previous attempt"
		}
	}
	return g.renderer.Render(name, data)
}

// fallback substitutes a minimal safe candidate so the pipeline keeps
// moving: a typing import when functions are present, otherwise the source
// unchanged.
func (g *Generator) fallback(req Request, cause error) Generation {
	original := req.Item.OriginalContent
	code := original
	if strings.Contains(original, "def ") && !strings.Contains(original, "from typing import") {
		code = "from typing import Any, List, Dict, Optional\n\n" + original
	}
	return Generation{
		ModifiedContent: code,
		Diff:            diff.Unified(req.Item.FilePath, original, code),
		Summary:         fmt.Sprintf("Fallback refactoring applied (model unavailable: %s)", head(cause.Error(), maxCauseChars)),
		Strategy:        StrategyFallback,
	}
}

var (
	summaryRe     = regexp.MustCompile(`(?is)\[summary\](.*?)(?:\[code\]|$)`)
	pythonFenceRe = regexp.MustCompile("(?s)```python(.*?)```")
	plainFenceRe  = regexp.MustCompile("(?s)```\n(.*?)```")
	codeTagRe     = regexp.MustCompile(`(?i)\[code\]`)
)

// parseResponse extracts the summary and code blocks, tolerating alternate
// casing, missing fences, and a missing summary section.
func parseResponse(content string) (summary, code string) {
	content = strings.TrimSpace(content)

	summary = defaultSummary
	if m := summaryRe.FindStringSubmatch(content); m != nil {
		if s := strings.TrimSpace(m[1]); s != "" {
			summary = s
		}
	} else {
		first, _, _ := strings.Cut(content, "\n")
		first = strings.TrimSpace(first)
		if first != "" && !strings.HasPrefix(first, "```") && !codeTagRe.MatchString(first) {
			summary = first
		}
	}

	if m := pythonFenceRe.FindStringSubmatch(content); m != nil {
		return summary, strings.TrimSpace(m[1])
	}
	if m := plainFenceRe.FindStringSubmatch(content); m != nil {
		return summary, strings.TrimSpace(m[1])
	}
	if loc := codeTagRe.FindAllStringIndex(content, -1); loc != nil {
		last := loc[len(loc)-1]
		code = content[last[1]:]
	} else {
		code = content
	}
	code = strings.TrimSpace(code)
	code = strings.TrimPrefix(code, "```python")
	code = strings.TrimPrefix(code, "```")
	code = strings.TrimSuffix(code, "```")
	return summary, strings.TrimSpace(code)
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
