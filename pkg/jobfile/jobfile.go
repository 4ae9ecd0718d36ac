// Package jobfile defines the YAML job document consumed by `recast run -f`:
// a goal, the files to refactor (inline or collected from a directory), and
// per-run overrides for the loop's knobs.
package jobfile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"recast/pkg/config"
	"recast/pkg/state"
	"recast/pkg/workspace"
)

// InlineFile is a file embedded directly in the job document.
type InlineFile struct {
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
}

// Job is one refactoring run.
type Job struct {
	// Goal is the natural-language refactoring goal.
	Goal string `yaml:"goal"`
	// Workspace collects .py files from this directory when set.
	Workspace string `yaml:"workspace,omitempty"`
	// Paths lists explicit files to load from disk.
	Paths []string `yaml:"paths,omitempty"`
	// Files are inline sources, useful for reproducible jobs.
	Files []InlineFile `yaml:"files,omitempty"`

	// MaxIterations overrides the configured retry ceiling when positive.
	MaxIterations int `yaml:"max_iterations,omitempty"`
	// GateMode overrides the configured human gate when set.
	GateMode string `yaml:"gate_mode,omitempty"`
	// Validation overrides the validator knobs when present.
	Validation *config.ValidationConfig `yaml:"validation,omitempty"`
}

// Load reads and validates a job document.
func Load(path string) (Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("failed to read job file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a job document.
func Parse(data []byte) (Job, error) {
	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("failed to parse job file: %w", err)
	}
	if err := job.Validate(); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Validate rejects documents the loop cannot run.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.Goal) == "" {
		return fmt.Errorf("job must declare a goal")
	}
	sources := 0
	if j.Workspace != "" {
		sources++
	}
	if len(j.Paths) > 0 {
		sources++
	}
	if len(j.Files) > 0 {
		sources++
	}
	if sources == 0 {
		return fmt.Errorf("job must declare files: workspace, paths, or inline files")
	}
	if sources > 1 {
		return fmt.Errorf("job must declare exactly one file source, got %d", sources)
	}
	for _, f := range j.Files {
		if f.Path == "" {
			return fmt.Errorf("inline file missing a path")
		}
	}
	if j.GateMode != "" {
		switch j.GateMode {
		case config.GateAuto, config.GateConsole, config.GateAPI:
		default:
			return fmt.Errorf("invalid gate_mode %q", j.GateMode)
		}
	}
	return nil
}

// Inputs resolves the job's file source to workflow inputs.
func (j *Job) Inputs() ([]state.FileInput, error) {
	switch {
	case j.Workspace != "":
		return workspace.Collect(j.Workspace)
	case len(j.Paths) > 0:
		return workspace.Read(j.Paths)
	default:
		inputs := make([]state.FileInput, 0, len(j.Files))
		for _, f := range j.Files {
			inputs = append(inputs, state.FileInput{Path: f.Path, Content: f.Content})
		}
		return inputs, nil
	}
}

// Apply layers the job's overrides onto a configuration.
func (j *Job) Apply(cfg config.Config) config.Config {
	if j.MaxIterations > 0 {
		cfg.MaxIterations = j.MaxIterations
	}
	if j.GateMode != "" {
		cfg.GateMode = j.GateMode
	}
	if j.Validation != nil {
		cfg.Validation = *j.Validation
	}
	return cfg
}
