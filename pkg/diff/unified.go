// Package diff renders unified diffs between original and modified file
// content, for review display and checkpoint storage.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// contextLines is the number of unchanged lines shown around each change.
const contextLines = 3

// lineOp is one line of the line-level diff. Deleted lines carry the new-side
// counter as an insertion anchor, and vice versa.
type lineOp struct {
	kind    byte // ' ', '-', '+'
	oldLine int
	newLine int
	text    string
}

// Unified returns a unified diff of the two contents, or "" when they are
// identical. Paths are rendered as a/<path> and b/<path>.
func Unified(path, oldContent, newContent string) string {
	if oldContent == newContent {
		return ""
	}
	hunks := group(lineOps(oldContent, newContent))
	if len(hunks) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n", path)
	fmt.Fprintf(&sb, "+++ b/%s\n", path)
	for _, h := range hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.oldStart, h.oldCount, h.newStart, h.newCount)
		for _, op := range h.ops {
			sb.WriteByte(op.kind)
			sb.WriteString(op.text)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Stats returns the number of added and removed lines between two contents.
func Stats(oldContent, newContent string) (added, removed int) {
	if oldContent == newContent {
		return 0, 0
	}
	for _, op := range lineOps(oldContent, newContent) {
		switch op.kind {
		case '+':
			added++
		case '-':
			removed++
		}
	}
	return added, removed
}

// lineOps computes a line-level diff. Line-mode reduction keeps the diff on
// newline boundaries instead of splitting mid-line.
func lineOps(oldContent, newContent string) []lineOp {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	a, b, lineArray := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var ops []lineOp
	oldLine, newLine := 0, 0
	for _, d := range diffs {
		for _, text := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				oldLine++
				newLine++
				ops = append(ops, lineOp{kind: ' ', oldLine: oldLine, newLine: newLine, text: text})
			case diffmatchpatch.DiffDelete:
				oldLine++
				ops = append(ops, lineOp{kind: '-', oldLine: oldLine, newLine: newLine, text: text})
			case diffmatchpatch.DiffInsert:
				newLine++
				ops = append(ops, lineOp{kind: '+', oldLine: oldLine, newLine: newLine, text: text})
			}
		}
	}
	return ops
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

type hunk struct {
	ops      []lineOp
	oldStart int
	oldCount int
	newStart int
	newCount int
}

// group collects change runs into hunks, merging changes separated by at most
// 2*contextLines unchanged lines.
func group(ops []lineOp) []hunk {
	var hunks []hunk
	n := len(ops)
	for i := 0; i < n; {
		if ops[i].kind == ' ' {
			i++
			continue
		}
		start := i - contextLines
		if start < 0 {
			start = 0
		}
		last := i
		j := i
		for j < n {
			if ops[j].kind != ' ' {
				last = j
			}
			if j-last > 2*contextLines {
				break
			}
			j++
		}
		end := last + contextLines + 1
		if end > n {
			end = n
		}
		hunks = append(hunks, makeHunk(ops[start:end]))
		i = end
	}
	return hunks
}

func makeHunk(ops []lineOp) hunk {
	h := hunk{ops: ops, oldStart: -1, newStart: -1}
	for _, op := range ops {
		if op.kind != '+' {
			h.oldCount++
			if h.oldStart < 0 {
				h.oldStart = op.oldLine
			}
		}
		if op.kind != '-' {
			h.newCount++
			if h.newStart < 0 {
				h.newStart = op.newLine
			}
		}
	}
	// A side with no lines anchors to the position before the hunk, as in
	// "@@ -0,0 +1,2 @@" for a file created from nothing.
	if h.oldStart < 0 {
		h.oldStart = ops[0].oldLine
	}
	if h.newStart < 0 {
		h.newStart = ops[0].newLine
	}
	return h
}
