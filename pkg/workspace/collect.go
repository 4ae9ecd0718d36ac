// Package workspace gathers source files from a directory tree for a
// workflow, honoring ignore rules so virtualenvs and build output never get
// queued for refactoring.
package workspace

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"recast/pkg/state"
)

// maxFileBytes skips files too large to refactor in one prompt.
const maxFileBytes = 512 * 1024

// alwaysSkippedDirs are pruned regardless of ignore rules.
var alwaysSkippedDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"node_modules": true,
	".tox":         true,
	".mypy_cache":  true,
	".ruff_cache":  true,
}

// Collect walks root and returns every Python file as a workflow input,
// paths relative to root, sorted for a deterministic insertion order.
func Collect(root string) ([]state.FileInput, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", root)
	}

	rules := ignoreRules(root)

	var inputs []state.FileInput
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return rerr
		}
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if alwaysSkippedDirs[d.Name()] || (rules != nil && rules.MatchesPath(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".py") {
			return nil
		}
		if rules != nil && rules.MatchesPath(rel) {
			return nil
		}
		fi, ferr := d.Info()
		if ferr != nil {
			return ferr
		}
		if fi.Size() > maxFileBytes {
			return nil
		}
		content, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		inputs = append(inputs, state.FileInput{Path: filepath.ToSlash(rel), Content: string(content)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect workspace files: %w", err)
	}

	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Path < inputs[j].Path })
	return inputs, nil
}

// Read loads an explicit list of files, preserving argument order.
func Read(paths []string) ([]state.FileInput, error) {
	inputs := make([]state.FileInput, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		inputs = append(inputs, state.FileInput{Path: filepath.ToSlash(path), Content: string(content)})
	}
	return inputs, nil
}

// ignoreRules compiles the root's .gitignore, if present.
func ignoreRules(root string) *ignore.GitIgnore {
	lines, err := readIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil || len(lines) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(lines...)
}

func readIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
