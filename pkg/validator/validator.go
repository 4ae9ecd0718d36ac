// Package validator runs the staged check pipeline over candidate code:
// in-process syntax parse first, then sandboxed lint, type-check, and test
// stages. Stages record independent outcomes; tool problems are recorded as
// outcomes rather than errors, and only blocking stages can fail an attempt.
package validator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"recast/pkg/config"
	"recast/pkg/exec"
	"recast/pkg/logx"
	"recast/pkg/state"
)

// stageFile is the name the candidate is staged under inside the sandbox.
const stageFile = "code.py"

// Validator runs the check pipeline with a sandboxed executor.
type Validator struct {
	exec exec.Executor
	cfg  config.ValidationConfig
	log  *logx.Logger
}

func New(executor exec.Executor, cfg config.ValidationConfig) *Validator {
	return &Validator{exec: executor, cfg: cfg, log: logx.NewLogger("validator")}
}

// Validate runs every applicable stage in fixed order and returns their
// outcomes. A syntax failure short-circuits: subprocess stages are skipped,
// not fabricated. Validate never returns an error; the outcome list is the
// whole verdict.
func (v *Validator) Validate(ctx context.Context, code string) []state.ValidationOutcome {
	outcomes := []state.ValidationOutcome{checkSyntax(ctx, code)}
	if !outcomes[0].Passed {
		v.log.Warn("syntax check failed: %s", outcomes[0].ErrorMessage)
		return outcomes
	}

	dir, err := os.MkdirTemp("", "recast-validate-*")
	if err != nil {
		return append(outcomes, toolFailure("sandbox", fmt.Sprintf("stage directory: %v", err)))
	}
	defer os.RemoveAll(dir)
	if err := os.WriteFile(filepath.Join(dir, stageFile), []byte(code), 0o600); err != nil {
		return append(outcomes, toolFailure("sandbox", fmt.Sprintf("stage write: %v", err)))
	}

	outcomes = append(outcomes, v.runRuff(ctx, dir))

	if v.cfg.TypeCheck {
		if outcome, ok := v.runPyright(ctx, dir); ok {
			outcomes = append(outcomes, outcome)
		}
	}

	if v.cfg.TestTarget != "" {
		outcomes = append(outcomes, v.runPytest(ctx, dir))
	}
	return outcomes
}

// Overall reports the verdict for one attempt: every recorded outcome must
// pass. Informational stages record Passed=true regardless of findings, so
// only blocking stages can fail the attempt. No outcomes means no verdict.
func Overall(outcomes []state.ValidationOutcome) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, o := range outcomes {
		if !o.Passed {
			return false
		}
	}
	return true
}

// runRuff lints the staged candidate. The stage is informational: findings,
// tool errors, and timeouts are recorded but never fail the attempt unless
// LintBlocking is set. A missing or broken ruff must not stall the loop.
func (v *Validator) runRuff(ctx context.Context, dir string) state.ValidationOutcome {
	blocking := v.cfg.LintBlocking
	res, err := v.exec.Run(ctx, []string{"ruff", "check", stageFile, "--output-format=text"}, v.toolOpts(dir))
	if err != nil {
		v.log.Warn("ruff could not run: %v", err)
		outcome := toolFailure("ruff", fmt.Sprintf("ruff could not run: %v", err))
		outcome.Passed = !blocking
		return outcome
	}
	outcome := outcomeFromResult("ruff", res)
	outcome.Passed = true
	if res.TimedOut {
		outcome.Passed = !blocking
		outcome.ErrorMessage = fmt.Sprintf("ruff timed out after %s", v.cfg.ToolTimeout())
		return outcome
	}
	if res.ExitCode != 0 {
		v.log.Info("ruff findings: %s", head(res.Stdout, 500))
		if blocking {
			outcome.Passed = false
			outcome.ErrorMessage = "lint findings block validation"
		}
	}
	return outcome
}

// runPyright type-checks the staged candidate. A missing tool omits the
// stage entirely; findings, run errors, and timeouts never block.
func (v *Validator) runPyright(ctx context.Context, dir string) (state.ValidationOutcome, bool) {
	res, err := v.exec.Run(ctx, []string{"pyright", stageFile}, v.toolOpts(dir))
	if err != nil {
		if exec.IsToolMissing(err) {
			v.log.Debug("pyright not installed, stage omitted")
			return state.ValidationOutcome{}, false
		}
		v.log.Warn("pyright could not run: %v", err)
		outcome := toolFailure("pyright", fmt.Sprintf("pyright could not run: %v", err))
		outcome.Passed = true
		return outcome, true
	}
	outcome := outcomeFromResult("pyright", res)
	outcome.Passed = true
	if res.TimedOut {
		outcome.ErrorMessage = fmt.Sprintf("pyright timed out after %s", v.cfg.ToolTimeout())
		return outcome, true
	}
	if res.ExitCode != 0 {
		v.log.Info("pyright findings: %s", head(res.Stdout, 500))
	}
	return outcome, true
}

// runPytest runs the configured test target with the sandbox on PYTHONPATH
// so tests import the staged candidate. Always blocking.
func (v *Validator) runPytest(ctx context.Context, dir string) state.ValidationOutcome {
	opts := v.toolOpts("")
	opts.Env = append(opts.Env, "PYTHONPATH="+dir)
	res, err := v.exec.Run(ctx, []string{"pytest", v.cfg.TestTarget, "-v", "--tb=short"}, opts)
	if err != nil {
		return toolFailure("pytest", fmt.Sprintf("pytest could not run: %v", err))
	}
	outcome := outcomeFromResult("pytest", res)
	outcome.FailedTests = extractFailedTests(res.Stdout)
	if res.TimedOut {
		outcome.Passed = false
		outcome.ErrorMessage = fmt.Sprintf("pytest timed out after %s", v.cfg.ToolTimeout())
		return outcome
	}
	outcome.Passed = res.ExitCode == 0
	if !outcome.Passed {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("pytest exited %d with %d failing tests", res.ExitCode, len(outcome.FailedTests))
		}
		outcome.ErrorMessage = head(msg, 500)
	}
	return outcome
}

// extractFailedTests pulls test identifiers from "FAILED path::test" summary
// lines. Progress-format lines without an identifier after FAILED are
// ignored.
func extractFailedTests(stdout string) []string {
	var failed []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(stdout, "\n") {
		idx := strings.Index(line, "FAILED")
		if idx < 0 {
			continue
		}
		rest := strings.TrimSpace(line[idx+len("FAILED"):])
		if rest == "" {
			continue
		}
		id := strings.Fields(rest)[0]
		if !strings.Contains(id, "::") || seen[id] {
			continue
		}
		seen[id] = true
		failed = append(failed, id)
	}
	return failed
}

func (v *Validator) toolOpts(workDir string) exec.Opts {
	opts := exec.DefaultOpts()
	opts.Timeout = v.cfg.ToolTimeout()
	opts.WorkDir = workDir
	return opts
}

func outcomeFromResult(tool string, res exec.Result) state.ValidationOutcome {
	return state.ValidationOutcome{
		ToolName:   tool,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ExitCode:   res.ExitCode,
		DurationMS: res.Duration.Milliseconds(),
		Timestamp:  time.Now(),
	}
}

func toolFailure(tool, msg string) state.ValidationOutcome {
	return state.ValidationOutcome{
		ToolName:     tool,
		Passed:       false,
		ErrorMessage: msg,
		ExitCode:     -1,
		Timestamp:    time.Now(),
	}
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
