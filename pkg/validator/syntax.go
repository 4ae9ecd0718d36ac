package validator

import (
	"context"
	"fmt"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"recast/pkg/state"
)

const maxErrorDepth = 512

// checkSyntax parses the candidate in process and reports the first error
// node with its position and offending snippet.
func checkSyntax(ctx context.Context, code string) state.ValidationOutcome {
	start := time.Now()
	outcome := state.ValidationOutcome{ToolName: "syntax", Timestamp: start}
	fail := func(msg string) state.ValidationOutcome {
		outcome.Passed = false
		outcome.ErrorMessage = msg
		outcome.ExitCode = 1
		outcome.DurationMS = time.Since(start).Milliseconds()
		return outcome
	}

	src := []byte(code)
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil || tree == nil {
		return fail(fmt.Sprintf("parse failed: %v", err))
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return fail("parser returned no tree")
	}
	if !root.HasError() {
		outcome.Passed = true
		outcome.DurationMS = time.Since(start).Milliseconds()
		return outcome
	}

	node := firstErrorNode(root, 0)
	if node == nil {
		return fail("source contains syntax errors")
	}
	line := int(node.StartPoint().Row) + 1
	col := int(node.StartPoint().Column)
	if node.IsMissing() {
		return fail(fmt.Sprintf("syntax error at line %d, column %d: missing %s", line, col, node.Type()))
	}
	snippet := head(errorSnippet(node, src), 60)
	return fail(fmt.Sprintf("syntax error at line %d, column %d: unexpected %q", line, col, snippet))
}

func firstErrorNode(node *sitter.Node, depth int) *sitter.Node {
	if depth > maxErrorDepth {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := firstErrorNode(node.Child(i), depth+1); found != nil {
			return found
		}
	}
	return nil
}

func errorSnippet(node *sitter.Node, src []byte) string {
	start, end := node.StartByte(), node.EndByte()
	if int(end) > len(src) {
		end = uint32(len(src))
	}
	if start >= end {
		return node.Type()
	}
	return string(src[start:end])
}
