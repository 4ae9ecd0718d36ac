package transform

import (
	"fmt"
	"regexp"
	"strings"
)

// headerRe matches single-line def and class headers. One-liner bodies
// (def f(): return x) intentionally fail the trailing-colon anchor.
var headerRe = regexp.MustCompile(`^(\s*)(class|(?:async\s+)?def)\s+(\w+).*:\s*(#.*)?$`)

// docstrings inserts a minimal docstring under every def and class that
// lacks one.
type docstrings struct{}

func (d *docstrings) Name() string { return "docstrings" }

func (d *docstrings) Matches(goal string) bool {
	return strings.Contains(strings.ToLower(goal), "docstring")
}

func (d *docstrings) Apply(source string) (Result, error) {
	lines := strings.Split(source, "\n")
	mask := maskTripleQuoted(lines)
	res := Result{}
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		out = append(out, line)
		if mask[i] {
			continue
		}
		m := headerRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		indent, kind, name := m[1], m[2], m[3]

		j := i + 1
		for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
			j++
		}
		if j >= len(lines) {
			continue
		}
		bodyIndent := leadingWhitespace(lines[j])
		if len(bodyIndent) <= len(indent) {
			continue
		}
		body := strings.TrimSpace(lines[j])
		if strings.HasPrefix(body, `"""`) || strings.HasPrefix(body, "'''") {
			continue
		}

		out = append(out, bodyIndent+`"""`+humanizeName(name)+`."""`)
		res.ChangeCount++
		res.Descriptions = append(res.Descriptions,
			fmt.Sprintf("Added docstring to %s '%s'", kindLabel(kind), name))
	}

	res.Modified = strings.Join(out, "\n")
	return res, nil
}

func kindLabel(kind string) string {
	if kind == "class" {
		return "class"
	}
	return "function"
}

// humanizeName turns an identifier into title-cased words: compute_total
// becomes "Compute Total", __init__ becomes "Init".
func humanizeName(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
