// Package orderer computes a dependencies-first processing order for the
// files of a refactoring workflow. Edges come from imports and from calls to
// module-level symbols another file defines; residual cycles degrade to
// insertion order with a warning instead of failing the workflow.
package orderer

import (
	"context"
	"fmt"
	"strings"

	"recast/pkg/logx"
)

// Orderer builds the dependency graph and produces the processing queue.
type Orderer struct {
	log *logx.Logger
}

func New() *Orderer {
	return &Orderer{log: logx.NewLogger("orderer")}
}

// Order returns every path in dependencies-first order. paths fixes the
// insertion order used as the tie-break everywhere; files maps path to
// content. The second return lists cycle warnings; ordering never fails.
func (o *Orderer) Order(ctx context.Context, paths []string, files map[string]string) ([]string, []string) {
	infos := make([]ModuleInfo, 0, len(paths))
	position := make(map[string]int, len(paths))
	for _, p := range paths {
		if _, dup := position[p]; dup {
			continue
		}
		position[p] = len(infos)
		infos = append(infos, Inspect(ctx, p, files[p]))
	}
	if len(infos) == 0 {
		return nil, nil
	}

	// First definition in insertion order wins stem and symbol collisions.
	stemOwner := make(map[string]string, len(infos))
	defOwner := make(map[string]string)
	ownDefs := make([]map[string]bool, len(infos))
	for i, info := range infos {
		if _, ok := stemOwner[info.Module]; !ok {
			stemOwner[info.Module] = info.Path
		}
		ownDefs[i] = make(map[string]bool, len(info.Functions)+len(info.Classes))
		for _, name := range info.Functions {
			ownDefs[i][name] = true
			if _, ok := defOwner[name]; !ok {
				defOwner[name] = info.Path
			}
		}
		for _, name := range info.Classes {
			ownDefs[i][name] = true
			if _, ok := defOwner[name]; !ok {
				defOwner[name] = info.Path
			}
		}
	}

	// dependency -> dependents, discovery order.
	dependents := make([][]int, len(infos))
	indegree := make([]int, len(infos))
	edges := 0
	for i, info := range infos {
		linked := make(map[int]bool)
		addEdge := func(depPath string) {
			if depPath == "" || depPath == info.Path {
				return
			}
			dep, ok := position[depPath]
			if !ok || linked[dep] {
				return
			}
			linked[dep] = true
			dependents[dep] = append(dependents[dep], i)
			indegree[i]++
			edges++
		}
		for _, imp := range info.Imports {
			last := imp
			if idx := strings.LastIndexByte(imp, '.'); idx >= 0 {
				last = imp[idx+1:]
			}
			addEdge(stemOwner[last])
		}
		for _, call := range info.Calls {
			if dot := strings.IndexByte(call, '.'); dot >= 0 {
				addEdge(stemOwner[call[:dot]])
				continue
			}
			if ownDefs[i][call] {
				continue
			}
			addEdge(defOwner[call])
		}
	}

	// Kahn's algorithm, seeded in insertion order.
	queue := make([]int, 0, len(infos))
	for i := range infos {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	ordered := make([]string, 0, len(infos))
	done := make([]bool, len(infos))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		done[node] = true
		ordered = append(ordered, infos[node].Path)
		for _, dep := range dependents[node] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	var warnings []string
	if len(ordered) < len(infos) {
		var leftover []string
		for i := range infos {
			if !done[i] {
				leftover = append(leftover, infos[i].Path)
			}
		}
		ordered = append(ordered, leftover...)
		warning := fmt.Sprintf("circular dependency among %d files, queued in input order: %s",
			len(leftover), strings.Join(leftover, ", "))
		warnings = append(warnings, warning)
		o.log.Warn("%s", warning)
	}

	o.log.Info("ordered %d files, %d dependency edges", len(ordered), edges)
	return ordered, warnings
}

// OrderTargets filters the full ordering to a target subset, then appends
// targets missing from the file set in the order they were given.
func (o *Orderer) OrderTargets(ctx context.Context, paths []string, files map[string]string, targets []string) ([]string, []string) {
	full, warnings := o.Order(ctx, paths, files)
	want := make(map[string]bool, len(targets))
	for _, t := range targets {
		want[t] = true
	}
	ordered := make([]string, 0, len(targets))
	seen := make(map[string]bool, len(targets))
	for _, p := range full {
		if want[p] && !seen[p] {
			ordered = append(ordered, p)
			seen[p] = true
		}
	}
	for _, t := range targets {
		if !seen[t] {
			ordered = append(ordered, t)
			seen[t] = true
		}
	}
	return ordered, warnings
}
