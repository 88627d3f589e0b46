// Package pathcompile derives the linear execution order of a workflow graph.
package pathcompile

import (
	"github.com/flowgate/flowgate/pkg/api"
)

// Compile walks the graph breadth-first from its trigger node and returns the
// ordered sequence of action kinds to execute.
//
// Properties of the output:
//
//   - Every node reachable from the trigger appears exactly once, no matter
//     how many incoming edges converge on it (the visited set dedups fan-in).
//   - Relative order follows BFS layering, i.e. distance from the trigger.
//     Parallel branches interleave by level; this is not a full topological
//     sort of the DAG.
//   - Nodes with no path from the trigger are excluded.
//   - The entry kind itself never appears in the output.
//
// The output carries kinds, not node ids: the coordinator re-resolves
// configuration by kind at run time, so when several nodes share a kind only
// one executes per run. That is a documented limitation of the model, not
// something Compile tries to repair.
//
// A graph without a trigger node compiles to an empty path.
func Compile(g api.Graph) []api.ActionKind {
	trigger, ok := g.TriggerNode()
	if !ok {
		return nil
	}

	nodesByID := make(map[string]api.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodesByID[n.ID] = n
	}
	outgoing := make(map[string][]api.Edge, len(g.Edges))
	for _, e := range g.Edges {
		outgoing[e.Source] = append(outgoing[e.Source], e)
	}

	var path []api.ActionKind
	visited := map[string]bool{trigger.ID: true}
	queue := []string{trigger.ID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, e := range outgoing[current] {
			target, ok := nodesByID[e.Target]
			if !ok || visited[target.ID] {
				continue
			}
			visited[target.ID] = true
			queue = append(queue, target.ID)
			if !target.Kind.IsEntry() {
				path = append(path, target.Kind)
			}
		}
	}

	return path
}
