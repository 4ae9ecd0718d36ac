package transform

import (
	"regexp"
	"sort"
	"strings"
)

// collectionsABCs are the abstract base classes that moved from collections
// to collections.abc in Python 3.3 and were removed from the old location
// in 3.10.
var collectionsABCs = []string{
	"AsyncGenerator", "AsyncIterable", "AsyncIterator", "Awaitable",
	"ByteString", "Callable", "Collection", "Container", "Coroutine",
	"Generator", "Hashable", "ItemsView", "Iterable", "Iterator",
	"KeysView", "Mapping", "MappingView", "MutableMapping",
	"MutableSequence", "MutableSet", "Reversible", "Sequence", "Set",
	"Sized", "ValuesView",
}

var (
	abcNameSet      = make(map[string]bool, len(collectionsABCs))
	deprecatedRules []deprecatedRule

	collectionsImportRe = regexp.MustCompile(`^(\s*)from\s+collections\s+import\s+([\w, ]+?)\s*$`)
)

type deprecatedRule struct {
	pattern     *regexp.Regexp
	replacement string
	description string
}

func init() {
	for _, name := range collectionsABCs {
		abcNameSet[name] = true
	}
	names := make([]string, len(collectionsABCs))
	copy(names, collectionsABCs)
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	abcAlt := strings.Join(names, "|")

	deprecatedRules = []deprecatedRule{
		{
			pattern:     regexp.MustCompile(`\bcollections\.(` + abcAlt + `)\b`),
			replacement: "collections.abc.$1",
			description: "Replaced deprecated collections ABC access with collections.abc",
		},
		{
			pattern:     regexp.MustCompile(`\basyncio\.async\(`),
			replacement: "asyncio.ensure_future(",
			description: "Replaced deprecated asyncio.async() with asyncio.ensure_future()",
		},
		{
			pattern:     regexp.MustCompile(`\.assertEquals\(`),
			replacement: ".assertEqual(",
			description: "Replaced deprecated assertEquals() with assertEqual()",
		},
		{
			pattern:     regexp.MustCompile(`\.assertNotEquals\(`),
			replacement: ".assertNotEqual(",
			description: "Replaced deprecated assertNotEquals() with assertNotEqual()",
		},
		{
			pattern:     regexp.MustCompile(`\.assertRegexpMatches\(`),
			replacement: ".assertRegex(",
			description: "Replaced deprecated assertRegexpMatches() with assertRegex()",
		},
		{
			pattern:     regexp.MustCompile(`\btime\.clock\(\)`),
			replacement: "time.perf_counter()",
			description: "Replaced deprecated time.clock() with time.perf_counter()",
		},
		{
			pattern:     regexp.MustCompile(`\b(log|logger|logging)\.warn\(`),
			replacement: "$1.warning(",
			description: "Replaced deprecated logger.warn() with logger.warning()",
		},
	}
}

// modernizeDeprecated rewrites a fixed table of long-deprecated Python APIs
// to their modern equivalents.
type modernizeDeprecated struct{}

func (m *modernizeDeprecated) Name() string { return "modernize_deprecated" }

func (m *modernizeDeprecated) Matches(goal string) bool {
	lower := strings.ToLower(goal)
	return strings.Contains(lower, "deprecat") || strings.Contains(lower, "modernize")
}

func (m *modernizeDeprecated) Apply(source string) (Result, error) {
	lines := strings.Split(source, "\n")
	mask := maskTripleQuoted(lines)
	res := Result{}
	ruleHits := make([]int, len(deprecatedRules))
	importHits := 0

	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if mask[i] {
			out = append(out, line)
			continue
		}
		if rewritten, n, ok := rewriteCollectionsImport(line); ok {
			out = append(out, rewritten...)
			importHits += n
			continue
		}
		newLine := line
		for ri, rule := range deprecatedRules {
			c := len(rule.pattern.FindAllStringIndex(newLine, -1))
			if c == 0 {
				continue
			}
			newLine = rule.pattern.ReplaceAllString(newLine, rule.replacement)
			ruleHits[ri] += c
		}
		out = append(out, newLine)
	}

	if importHits > 0 {
		res.ChangeCount += importHits
		res.Descriptions = append(res.Descriptions,
			"Moved collections ABC imports to collections.abc")
	}
	for ri, c := range ruleHits {
		if c == 0 {
			continue
		}
		res.ChangeCount += c
		res.Descriptions = append(res.Descriptions, deprecatedRules[ri].description)
	}

	res.Modified = strings.Join(out, "\n")
	return res, nil
}

// rewriteCollectionsImport splits "from collections import X" lines so ABC
// names import from collections.abc. Mixed lines keep the non-ABC names on
// the original import.
func rewriteCollectionsImport(line string) ([]string, int, bool) {
	m := collectionsImportRe.FindStringSubmatch(line)
	if m == nil {
		return nil, 0, false
	}
	indent := m[1]
	var abcItems, rest []string
	for _, item := range strings.Split(m[2], ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if abcNameSet[item] {
			abcItems = append(abcItems, item)
		} else {
			rest = append(rest, item)
		}
	}
	if len(abcItems) == 0 {
		return nil, 0, false
	}
	var out []string
	if len(rest) > 0 {
		out = append(out, indent+"from collections import "+strings.Join(rest, ", "))
	}
	out = append(out, indent+"from collections.abc import "+strings.Join(abcItems, ", "))
	return out, len(abcItems), true
}
