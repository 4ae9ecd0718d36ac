package transform

import (
	"fmt"
	"regexp"
)

var renameGoalRe = regexp.MustCompile(`(?i)\brename\s+([A-Za-z_]\w*)\s+to\s+([A-Za-z_]\w*)`)

// renameSymbol replaces every whole-word occurrence of one identifier with
// another. The pair comes from the goal text, parsed during Matches.
type renameSymbol struct {
	oldName string
	newName string
}

func (r *renameSymbol) Name() string { return "rename_symbol" }

func (r *renameSymbol) Matches(goal string) bool {
	m := renameGoalRe.FindStringSubmatch(goal)
	if m == nil {
		return false
	}
	r.oldName, r.newName = m[1], m[2]
	return r.oldName != r.newName
}

func (r *renameSymbol) Apply(source string) (Result, error) {
	if r.oldName == "" || r.newName == "" {
		return Result{}, fmt.Errorf("no rename pair parsed from goal")
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(r.oldName) + `\b`)
	count := len(re.FindAllStringIndex(source, -1))
	if count == 0 {
		return Result{Modified: source}, nil
	}
	return Result{
		Modified:    re.ReplaceAllString(source, r.newName),
		ChangeCount: count,
		Descriptions: []string{
			fmt.Sprintf("Renamed '%s' to '%s' (%s)", r.oldName, r.newName, countNoun(count, "occurrence")),
		},
	}, nil
}
