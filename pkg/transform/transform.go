// Package transform provides deterministic source rewrites that run before
// any model is consulted. Each transform is pure text-to-text and idempotent:
// applying it to its own output yields zero further changes.
package transform

import (
	"fmt"
	"sort"
	"strings"
)

// Transform is one deterministic rewrite. Matches decides from the
// refactoring goal whether this transform applies; goal-parameterized
// transforms (rename) configure themselves during Matches.
type Transform interface {
	Name() string
	Matches(goal string) bool
	Apply(source string) (Result, error)
}

// Result describes the outcome of one or more transform applications.
type Result struct {
	Modified     string
	ChangeCount  int
	Descriptions []string
}

// HasChanges reports whether the transform altered the source.
func (r Result) HasChanges() bool {
	return r.ChangeCount > 0
}

// Registry maps transform names to constructors. Constructors keep
// instances single-use so goal configuration never leaks between workflows.
type Registry struct {
	builders map[string]func() Transform
}

// NewRegistry returns a registry with every built-in transform registered.
func NewRegistry() *Registry {
	r := &Registry{builders: make(map[string]func() Transform)}
	for _, b := range []func() Transform{
		func() Transform { return &typeHints{} },
		func() Transform { return &docstrings{} },
		func() Transform { return &removeUnusedImports{} },
		func() Transform { return &renameSymbol{} },
		func() Transform { return &modernizeDeprecated{} },
	} {
		// Built-in names are unique; Register only fails on duplicates.
		if err := r.Register(b); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a transform constructor under its instance name.
func (r *Registry) Register(builder func() Transform) error {
	name := builder().Name()
	if _, exists := r.builders[name]; exists {
		return fmt.Errorf("transform %q already registered", name)
	}
	r.builders[name] = builder
	return nil
}

// Get returns a fresh instance of the named transform.
func (r *Registry) Get(name string) (Transform, bool) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, false
	}
	return builder(), true
}

// Names returns the registered transform names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MatchGoal returns fresh, configured instances of every transform whose
// Matches accepts the goal, in name order.
func (r *Registry) MatchGoal(goal string) []Transform {
	var matched []Transform
	for _, name := range r.Names() {
		t := r.builders[name]()
		if t.Matches(goal) {
			matched = append(matched, t)
		}
	}
	return matched
}

// ApplyMatching chains every goal-matched transform over the source and
// accumulates their changes. With no matching transform the result is the
// source unchanged.
func (r *Registry) ApplyMatching(goal, source string) (Result, error) {
	current := source
	total := Result{Modified: source}

	for _, t := range r.MatchGoal(goal) {
		res, err := t.Apply(current)
		if err != nil {
			return Result{}, fmt.Errorf("transform %s: %w", t.Name(), err)
		}
		current = res.Modified
		total.ChangeCount += res.ChangeCount
		total.Descriptions = append(total.Descriptions, res.Descriptions...)
	}

	total.Modified = current
	return total, nil
}

// SummarizeChanges renders transform descriptions as a one-line summary for
// workflow records. At most five descriptions are listed.
func SummarizeChanges(result Result) string {
	if !result.HasChanges() {
		return "No deterministic changes applied."
	}
	listed := result.Descriptions
	extra := 0
	if len(listed) > 5 {
		extra = len(listed) - 5
		listed = listed[:5]
	}
	summary := "Applied transforms: " + strings.Join(listed, "; ")
	if extra > 0 {
		summary += fmt.Sprintf(" and %d more changes", extra)
	}
	return summary
}
