package transform

import (
	"fmt"
	"regexp"
	"strings"
)

var identRe = regexp.MustCompile(`^[A-Za-z_]\w*$`)

func countNoun(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// splitTopLevel splits s on commas that sit outside brackets and quotes.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0

	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// topLevelIndex returns the index of the first c outside brackets and
// quotes, or -1.
func topLevelIndex(s string, target byte) int {
	depth := 0
	var quote byte

	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		default:
			if c == target && depth == 0 {
				return i
			}
		}
	}
	return -1
}

// maskTripleQuoted reports, per line, whether the line begins inside a
// triple-quoted string. Lines inside strings must not be rewritten.
func maskTripleQuoted(lines []string) []bool {
	mask := make([]bool, len(lines))
	open := ""

	for i, line := range lines {
		mask[i] = open != ""
		rest := line
		for {
			if open == "" {
				dq := strings.Index(rest, `"""`)
				sq := strings.Index(rest, "'''")
				idx, delim := -1, ""
				if dq >= 0 && (sq < 0 || dq < sq) {
					idx, delim = dq, `"""`
				} else if sq >= 0 {
					idx, delim = sq, "'''"
				}
				if idx < 0 {
					break
				}
				open = delim
				rest = rest[idx+3:]
			} else {
				idx := strings.Index(rest, open)
				if idx < 0 {
					break
				}
				open = ""
				rest = rest[idx+3:]
			}
		}
	}
	return mask
}

// leadingWhitespace returns the indent prefix of a line.
func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// stripComment removes a trailing # comment. Best effort: a # inside a
// string literal on the same line will truncate early, which only weakens
// heuristics, never corrupts output.
func stripComment(line string) string {
	if idx := strings.Index(line, "#"); idx >= 0 {
		return strings.TrimSpace(line[:idx])
	}
	return strings.TrimSpace(line)
}
