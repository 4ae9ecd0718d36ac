package transform

import (
	"fmt"
	"regexp"
	"strings"
)

// defLineRe matches single-line def statements without a return annotation.
// Multi-line signatures and annotated defs are left alone.
var defLineRe = regexp.MustCompile(`^(\s*)((?:async\s+)?def)\s+(\w+)\s*\((.*)\)\s*:\s*(#.*)?$`)

var (
	intLitRe   = regexp.MustCompile(`^-?\d+$`)
	floatLitRe = regexp.MustCompile(`^-?(?:\d+\.\d*|\.\d+)$`)
)

// typeHints annotates parameters whose default value pins an obvious type
// and adds -> None to functions that never return a value.
type typeHints struct{}

func (t *typeHints) Name() string { return "type_hints" }

func (t *typeHints) Matches(goal string) bool {
	lower := strings.ToLower(goal)
	return strings.Contains(lower, "type hint") || strings.Contains(lower, "type annotation")
}

func (t *typeHints) Apply(source string) (Result, error) {
	lines := strings.Split(source, "\n")
	mask := maskTripleQuoted(lines)
	res := Result{Modified: source}

	for i, line := range lines {
		if mask[i] {
			continue
		}
		m := defLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		indent, defKw, name, params, comment := m[1], m[2], m[3], m[4], m[5]

		parts := splitTopLevel(params)
		added := 0
		for pi, part := range parts {
			hinted, ok := annotateParam(part)
			if !ok {
				continue
			}
			parts[pi] = hinted
			added++
		}

		returnNone := shouldAnnotateNone(lines, mask, i, indent)
		if added == 0 && !returnNone {
			continue
		}

		rebuilt := indent + defKw + " " + name + "(" + strings.Join(parts, ",") + ")"
		if returnNone {
			rebuilt += " -> None"
		}
		rebuilt += ":"
		if comment != "" {
			rebuilt += "  " + comment
		}
		lines[i] = rebuilt

		if returnNone {
			added++
		}
		res.ChangeCount += added
		res.Descriptions = append(res.Descriptions, fmt.Sprintf("Added type hints to function '%s'", name))
	}

	res.Modified = strings.Join(lines, "\n")
	return res, nil
}

// annotateParam rewrites "name=default" to "name: type = default" when the
// default is a recognizable literal. Returns ok=false when the parameter is
// already annotated, has no default, or the default type cannot be inferred.
func annotateParam(part string) (string, bool) {
	lead := leadingWhitespace(part)
	trimmed := strings.TrimSpace(part)
	if trimmed == "" || strings.HasPrefix(trimmed, "*") {
		return "", false
	}

	eq := topLevelIndex(trimmed, '=')
	colon := topLevelIndex(trimmed, ':')
	if colon >= 0 {
		return "", false
	}
	if eq < 0 {
		return "", false
	}

	name := strings.TrimSpace(trimmed[:eq])
	if name == "self" || name == "cls" || !identRe.MatchString(name) {
		return "", false
	}
	def := strings.TrimSpace(trimmed[eq+1:])
	typ := inferDefaultType(def)
	if typ == "" {
		return "", false
	}
	return fmt.Sprintf("%s%s: %s = %s", lead, name, typ, def), true
}

// inferDefaultType maps a default-value literal to the annotation it implies.
// None and anything non-literal return "".
func inferDefaultType(def string) string {
	switch {
	case def == "True" || def == "False":
		return "bool"
	case def == "None" || def == "":
		return ""
	case intLitRe.MatchString(def):
		return "int"
	case floatLitRe.MatchString(def):
		return "float"
	case isStringLiteral(def):
		return "str"
	case strings.HasPrefix(def, "["):
		return "list"
	case strings.HasPrefix(def, "("):
		return "tuple"
	case strings.HasPrefix(def, "{"):
		if isDictLiteral(def) {
			return "dict"
		}
		return "set"
	}
	return ""
}

func isStringLiteral(def string) bool {
	for _, p := range []string{`"`, `'`, `f"`, `f'`, `r"`, `r'`, `b"`, `b'`} {
		if strings.HasPrefix(def, p) {
			return true
		}
	}
	return false
}

// isDictLiteral distinguishes {...} dict displays from set displays by the
// presence of a top-level colon. {} is a dict.
func isDictLiteral(def string) bool {
	inner := strings.TrimPrefix(def, "{")
	inner = strings.TrimSuffix(inner, "}")
	if strings.TrimSpace(inner) == "" {
		return true
	}
	return topLevelIndex(inner, ':') >= 0
}

// isKeywordStmt reports whether stmt starts with the keyword itself, not an
// identifier that merely shares its prefix (returned_value, yields).
func isKeywordStmt(stmt, keyword string) bool {
	if !strings.HasPrefix(stmt, keyword) {
		return false
	}
	rest := stmt[len(keyword):]
	return rest == "" || rest[0] == ' ' || rest[0] == '(' || rest[0] == '\t'
}

// shouldAnnotateNone reports whether the function body starting after defIdx
// contains no value return and no yield, so -> None is safe.
func shouldAnnotateNone(lines []string, mask []bool, defIdx int, defIndent string) bool {
	sawBody := false
	for j := defIdx + 1; j < len(lines); j++ {
		if mask[j] {
			continue
		}
		if strings.TrimSpace(lines[j]) == "" {
			continue
		}
		if len(leadingWhitespace(lines[j])) <= len(defIndent) {
			break
		}
		sawBody = true
		stmt := stripComment(lines[j])
		if isKeywordStmt(stmt, "yield") {
			return false
		}
		if isKeywordStmt(stmt, "return") {
			rest := strings.TrimSpace(strings.TrimPrefix(stmt, "return"))
			rest = strings.TrimPrefix(rest, "(")
			if rest != "" && rest != "None" && rest != "None)" {
				return false
			}
		}
	}
	return sawBody
}
