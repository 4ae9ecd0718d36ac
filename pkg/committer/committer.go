// Package committer writes approved candidate content back to disk. It runs
// only after a file clears validation and the human gate; the original is
// kept as a backup beside the rewritten file.
package committer

import (
	"fmt"
	"os"
	"path/filepath"

	"recast/pkg/logx"
)

// BackupSuffix is appended to the original's path before overwriting.
const BackupSuffix = ".bak"

// Committer writes approved changes under a base directory.
type Committer struct {
	baseDir string
	backup  bool
	log     *logx.Logger
}

// New creates a committer rooted at baseDir. With backup enabled the
// original content is preserved at path + ".bak".
func New(baseDir string, backup bool) *Committer {
	return &Committer{baseDir: baseDir, backup: backup, log: logx.NewLogger("committer")}
}

// Commit writes content to the file's path, backing up the existing file
// first. Paths are confined to the base directory.
func (c *Committer) Commit(path, content string) error {
	target := filepath.Join(c.baseDir, filepath.FromSlash(path))
	if !confined(c.baseDir, target) {
		return fmt.Errorf("refusing to write outside workspace: %s", path)
	}

	if c.backup {
		if original, err := os.ReadFile(target); err == nil {
			if err := os.WriteFile(target+BackupSuffix, original, 0o644); err != nil {
				return fmt.Errorf("failed to write backup for %s: %w", path, err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	c.log.Info("wrote approved change to %s", target)
	return nil
}

// confined reports whether target stays inside base after cleaning.
func confined(base, target string) bool {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return false
	}
	return filepath.IsLocal(rel)
}
