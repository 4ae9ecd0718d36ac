// Package analyzer plans a refactoring pass: it orders the input files
// dependencies-first and asks the reasoning model to identify concrete
// targets. The queue never depends on the model; target identification
// degrades to an empty list with a diagnostic note.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"recast/pkg/llm"
	"recast/pkg/logx"
	"recast/pkg/orderer"
	"recast/pkg/state"
	"recast/pkg/templates"
)

// maxNoteChars bounds the response excerpt kept on the analysis note.
const maxNoteChars = 500

// AnalysisResult is the plan for one workflow: the processing queue plus
// whatever targets the model identified.
type AnalysisResult struct {
	Queue         []string
	Targets       []state.RefactoringTarget
	Note          string
	CycleWarnings []string
}

// Analyzer builds processing queues and identifies refactoring targets.
type Analyzer struct {
	client   llm.LLMClient
	renderer *templates.Renderer
	orderer  *orderer.Orderer
	log      *logx.Logger
}

func New(client llm.LLMClient, renderer *templates.Renderer) *Analyzer {
	return &Analyzer{
		client:   client,
		renderer: renderer,
		orderer:  orderer.New(),
		log:      logx.NewLogger("analyzer"),
	}
}

// Analyze orders the inputs and identifies targets for the goal. Empty
// input is the one hard error; everything else degrades.
func (a *Analyzer) Analyze(ctx context.Context, goal string, inputs []state.FileInput) (AnalysisResult, error) {
	if len(inputs) == 0 {
		return AnalysisResult{}, errors.New("no files provided for analysis")
	}

	paths := make([]string, 0, len(inputs))
	files := make(map[string]string, len(inputs))
	for _, in := range inputs {
		paths = append(paths, in.Path)
		if _, ok := files[in.Path]; !ok {
			files[in.Path] = in.Content
		}
	}

	queue, warnings := a.orderer.Order(ctx, paths, files)
	res := AnalysisResult{Queue: queue, CycleWarnings: warnings}

	prompt, err := a.renderer.Render(templates.AnalysisTemplate, &templates.TemplateData{
		Goal:        goal,
		Files:       queue,
		FileContent: combineSources(queue, files),
	})
	if err != nil {
		a.log.Error("analysis prompt render failed: %v", err)
		res.Note = fmt.Sprintf("Analysis fallback (prompt unavailable): processing %d files in dependency order", len(queue))
		return res, nil
	}

	resp, err := a.client.Complete(ctx, llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewUserMessage(prompt),
	}))
	if err != nil {
		a.log.Warn("analysis model call failed, continuing without targets: %v", err)
		res.Note = fmt.Sprintf("Analysis fallback (model unavailable): processing %d files in dependency order", len(queue))
		return res, nil
	}

	targets, perr := parseTargets(resp.Content)
	if perr != nil {
		a.log.Warn("analysis response had no target array: %v", perr)
		res.Note = "Analysis complete (no structured targets): " + head(resp.Content, maxNoteChars)
		return res, nil
	}

	res.Targets = keepNamedTargets(targets)
	res.Note = "Analysis complete: " + head(resp.Content, maxNoteChars)
	a.log.Info("analysis identified %d targets across %d files", len(res.Targets), len(queue))
	return res, nil
}

// combineSources formats file contents for the prompt, queue order.
func combineSources(queue []string, files map[string]string) string {
	var b strings.Builder
	for _, path := range queue {
		fmt.Fprintf(&b, "=== %s ===\n%s\n", path, files[path])
	}
	return b.String()
}

// parseTargets extracts the first decodable JSON array of targets from the
// response, tolerating prose and code fences around it.
func parseTargets(text string) ([]state.RefactoringTarget, error) {
	for start := 0; ; start++ {
		i := strings.Index(text[start:], "[")
		if i < 0 {
			break
		}
		start += i
		var targets []state.RefactoringTarget
		dec := json.NewDecoder(strings.NewReader(text[start:]))
		if err := dec.Decode(&targets); err == nil {
			return targets, nil
		}
	}
	return nil, errors.New("response contains no parseable target array")
}

// keepNamedTargets drops entries the model left without a file or name.
func keepNamedTargets(targets []state.RefactoringTarget) []state.RefactoringTarget {
	kept := targets[:0]
	for _, t := range targets {
		if t.FilePath == "" && t.Name == "" {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
