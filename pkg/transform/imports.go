package transform

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	plainImportRe = regexp.MustCompile(`^(\s*)import\s+(.+?)\s*$`)
	fromImportRe  = regexp.MustCompile(`^(\s*)from\s+([\w.]+)\s+import\s+(.+?)\s*$`)
)

// removeUnusedImports drops import bindings never referenced in the rest of
// the file. Multi-line parenthesized import lists and star imports are left
// alone; a name mentioned anywhere outside the import lines counts as used,
// so the transform only errs toward keeping.
type removeUnusedImports struct{}

func (r *removeUnusedImports) Name() string { return "remove_unused_imports" }

func (r *removeUnusedImports) Matches(goal string) bool {
	return strings.Contains(strings.ToLower(goal), "unused import")
}

type importLine struct {
	index    int
	indent   string
	fromMod  string // empty for plain imports
	items    []string
	bindings []string // binding name per item
}

func (r *removeUnusedImports) Apply(source string) (Result, error) {
	lines := strings.Split(source, "\n")
	mask := maskTripleQuoted(lines)
	res := Result{}

	var imports []importLine
	isImport := make([]bool, len(lines))

	for i, line := range lines {
		if mask[i] {
			continue
		}
		il, ok := parseImportLine(i, line)
		if !ok {
			continue
		}
		isImport[i] = true
		if il.fromMod == "__future__" {
			continue
		}
		imports = append(imports, il)
	}
	if len(imports) == 0 {
		res.Modified = source
		return res, nil
	}

	var corpus strings.Builder
	for i, line := range lines {
		if isImport[i] {
			continue
		}
		corpus.WriteString(line)
		corpus.WriteByte('\n')
	}
	rest := corpus.String()

	drop := make(map[int]bool)
	for _, il := range imports {
		var kept []string
		for idx, binding := range il.bindings {
			if binding == "" || isNameUsed(binding, rest) {
				kept = append(kept, il.items[idx])
				continue
			}
			res.ChangeCount++
			res.Descriptions = append(res.Descriptions,
				fmt.Sprintf("Removed unused import '%s'", binding))
		}
		if len(kept) == len(il.items) {
			continue
		}
		if len(kept) == 0 {
			drop[il.index] = true
			continue
		}
		if il.fromMod != "" {
			lines[il.index] = il.indent + "from " + il.fromMod + " import " + strings.Join(kept, ", ")
		} else {
			lines[il.index] = il.indent + "import " + strings.Join(kept, ", ")
		}
	}

	if res.ChangeCount == 0 {
		res.Modified = source
		return res, nil
	}

	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if drop[i] {
			continue
		}
		out = append(out, line)
	}
	res.Modified = strings.Join(out, "\n")
	return res, nil
}

// parseImportLine reads one import statement. Items with unparseable
// shapes get an empty binding, which marks them always-kept.
func parseImportLine(index int, line string) (importLine, bool) {
	if m := fromImportRe.FindStringSubmatch(line); m != nil {
		if strings.ContainsAny(m[3], "(*") {
			return importLine{}, false
		}
		il := importLine{index: index, indent: m[1], fromMod: m[2]}
		for _, item := range strings.Split(dropTrailingComment(m[3]), ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			il.items = append(il.items, item)
			il.bindings = append(il.bindings, bindingName(item, true))
		}
		return il, len(il.items) > 0
	}
	if m := plainImportRe.FindStringSubmatch(line); m != nil {
		il := importLine{index: index, indent: m[1]}
		for _, item := range strings.Split(dropTrailingComment(m[2]), ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			il.items = append(il.items, item)
			il.bindings = append(il.bindings, bindingName(item, false))
		}
		return il, len(il.items) > 0
	}
	return importLine{}, false
}

// bindingName resolves the local name an import item introduces: the alias
// when present, otherwise the imported name (top-level package for dotted
// plain imports).
func bindingName(item string, fromImport bool) string {
	if fields := strings.Fields(item); len(fields) == 3 && fields[1] == "as" {
		if identRe.MatchString(fields[2]) {
			return fields[2]
		}
		return ""
	}
	name := item
	if !fromImport {
		name, _, _ = strings.Cut(item, ".")
	}
	if identRe.MatchString(name) {
		return name
	}
	return ""
}

func isNameUsed(name, corpus string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	return re.MatchString(corpus)
}

// dropTrailingComment cuts an inline # comment off an import item list.
// Rewritten lines lose the comment; untouched lines keep theirs.
func dropTrailingComment(items string) string {
	if i := strings.Index(items, "#"); i >= 0 {
		return items[:i]
	}
	return items
}
