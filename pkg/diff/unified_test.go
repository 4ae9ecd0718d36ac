package diff

import (
	"strings"
	"testing"
)

func TestUnifiedIdenticalContent(t *testing.T) {
	content := "def f(x):\n    return x\n"
	if got := Unified("f.py", content, content); got != "" {
		t.Errorf("Expected empty diff for identical content, got %q", got)
	}
}

func TestUnifiedSingleLineChange(t *testing.T) {
	oldContent := "def f(x):\n    return x\n"
	newContent := "def f(x: int) -> int:\n    return x\n"

	got := Unified("f.py", oldContent, newContent)
	want := "--- a/f.py\n" +
		"+++ b/f.py\n" +
		"@@ -1,2 +1,2 @@\n" +
		"-def f(x):\n" +
		"+def f(x: int) -> int:\n" +
		"     return x\n"
	if got != want {
		t.Errorf("Unexpected diff:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestUnifiedNewFile(t *testing.T) {
	got := Unified("new.py", "", "a = 1\nb = 2\n")
	want := "--- a/new.py\n" +
		"+++ b/new.py\n" +
		"@@ -0,0 +1,2 @@\n" +
		"+a = 1\n" +
		"+b = 2\n"
	if got != want {
		t.Errorf("Unexpected diff:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestUnifiedDistantChangesSplitIntoHunks(t *testing.T) {
	var oldLines, newLines []string
	for i := 1; i <= 20; i++ {
		line := "line"
		oldLines = append(oldLines, line)
		newLines = append(newLines, line)
	}
	// Make every line unique so the differ cannot cross-match them.
	for i := range oldLines {
		oldLines[i] = oldLines[i] + "-" + string(rune('a'+i))
		newLines[i] = oldLines[i]
	}
	oldLines[0] = "first-old"
	newLines[0] = "first-new"
	oldLines[19] = "last-old"
	newLines[19] = "last-new"

	got := Unified("many.py", strings.Join(oldLines, "\n")+"\n", strings.Join(newLines, "\n")+"\n")

	if n := strings.Count(got, "@@ -"); n != 2 {
		t.Fatalf("Expected 2 hunks, got %d:\n%s", n, got)
	}
	if !strings.Contains(got, "-first-old\n") || !strings.Contains(got, "+first-new\n") {
		t.Errorf("First change missing:\n%s", got)
	}
	if !strings.Contains(got, "-last-old\n") || !strings.Contains(got, "+last-new\n") {
		t.Errorf("Last change missing:\n%s", got)
	}
}

func TestUnifiedContextWindow(t *testing.T) {
	var lines []string
	for _, r := range "abcdefghij" {
		lines = append(lines, "row-"+string(r))
	}
	oldContent := strings.Join(lines, "\n") + "\n"
	lines[5] = "row-CHANGED"
	newContent := strings.Join(lines, "\n") + "\n"

	got := Unified("ctx.py", oldContent, newContent)

	// Three lines of context on each side of the single change.
	if !strings.Contains(got, "@@ -3,7 +3,7 @@\n") {
		t.Errorf("Unexpected hunk header:\n%s", got)
	}
	if strings.Contains(got, " row-a\n") || strings.Contains(got, " row-j\n") {
		t.Errorf("Context window too wide:\n%s", got)
	}
}

func TestStats(t *testing.T) {
	oldContent := "a\nb\nc\n"
	newContent := "a\nB\nc\nd\n"

	added, removed := Stats(oldContent, newContent)
	if added != 2 || removed != 1 {
		t.Errorf("Expected +2 -1, got +%d -%d", added, removed)
	}

	added, removed = Stats("same\n", "same\n")
	if added != 0 || removed != 0 {
		t.Errorf("Expected no changes, got +%d -%d", added, removed)
	}
}
