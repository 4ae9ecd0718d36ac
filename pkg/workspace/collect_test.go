package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCollectFindsPythonFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "x = 1\n")
	writeFile(t, root, "pkg/b.py", "y = 2\n")
	writeFile(t, root, "README.md", "docs\n")

	inputs, err := Collect(root)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(inputs) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(inputs))
	}
	// Sorted order is the documented insertion order.
	if inputs[0].Path != "a.py" || inputs[1].Path != "pkg/b.py" {
		t.Errorf("Unexpected order: %s, %s", inputs[0].Path, inputs[1].Path)
	}
	if inputs[0].Content != "x = 1\n" {
		t.Errorf("Unexpected content: %q", inputs[0].Content)
	}
}

func TestCollectSkipsIgnoredAndJunkDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\nsecret.py\n")
	writeFile(t, root, "keep.py", "x = 1\n")
	writeFile(t, root, "secret.py", "token = 'x'\n")
	writeFile(t, root, "generated/gen.py", "auto = True\n")
	writeFile(t, root, "__pycache__/cached.py", "c = 1\n")
	writeFile(t, root, ".venv/lib/site.py", "s = 1\n")

	inputs, err := Collect(root)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(inputs) != 1 {
		t.Fatalf("Expected only keep.py, got %d files", len(inputs))
	}
	if inputs[0].Path != "keep.py" {
		t.Errorf("Expected keep.py, got %s", inputs[0].Path)
	}
}

func TestCollectRejectsMissingRoot(t *testing.T) {
	if _, err := Collect(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected an error for a missing root")
	}
}

func TestReadPreservesArgumentOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.py", "b\n")
	writeFile(t, root, "a.py", "a\n")

	inputs, err := Read([]string{
		filepath.Join(root, "b.py"),
		filepath.Join(root, "a.py"),
	})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(inputs) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(inputs))
	}
	if filepath.Base(inputs[0].Path) != "b.py" {
		t.Errorf("Expected argument order preserved, got %s first", inputs[0].Path)
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := Read([]string{"definitely-missing.py"}); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
