package validation

import (
	"fmt"
	"sort"

	coregraph "github.com/flowgraph/agentgraph/internal/core/graph"
)

// GraphValidationOptions controls optional validation checks.
type GraphValidationOptions struct {
	// CheckCycles enables detection of directed cycles.
	CheckCycles bool
}

// ValidateCoreGraph performs structural validation on the core graph entity.
// It is run at compile time and on graphs loaded from external sources where
// the AddNode/AddEdge guards may have been bypassed.
//
// Besides field and endpoint checks, every node must be reachable from the
// entry point, must have a way out, and may have at most one unconditional
// successor. Conditional edges from one source are exclusive by outcome, so
// they never fan out.
func ValidateCoreGraph(g *coregraph.Graph, opts ...GraphValidationOptions) error {
	if g == nil {
		return fmt.Errorf("graph is nil")
	}
	if err := g.Validate(); err != nil {
		return err
	}

	for _, id := range sortedNodeIDs(g) {
		n := g.Nodes[id]
		if n == nil {
			return fmt.Errorf("nil node encountered")
		}
		if err := n.Validate(); err != nil {
			return fmt.Errorf("node %s: %w", id, err)
		}
	}

	type edgeKey struct{ s, t, ty, cond string }
	seenEdges := make(map[edgeKey]struct{})
	defaults := make(map[string]int)
	conditionals := make(map[string]int)

	for _, e := range g.Edges {
		if e == nil {
			return fmt.Errorf("nil edge encountered")
		}
		if err := e.Validate(); err != nil {
			return err
		}
		if e.Source != coregraph.Start && !g.HasNode(e.Source) {
			return fmt.Errorf("%w: %s", coregraph.ErrSourceNodeNotFound, e.Source)
		}
		if e.Target != coregraph.End && !g.HasNode(e.Target) {
			return fmt.Errorf("%w: %s", coregraph.ErrTargetNodeNotFound, e.Target)
		}
		k := edgeKey{e.Source, e.Target, string(e.Type), e.Condition}
		if _, dup := seenEdges[k]; dup {
			return coregraph.ErrDuplicateEdge
		}
		seenEdges[k] = struct{}{}

		if e.IsConditional() {
			conditionals[e.Source]++
		} else {
			defaults[e.Source]++
		}
	}

	for source, n := range defaults {
		if n > 1 || (n == 1 && conditionals[source] > 0) {
			return fmt.Errorf("%w: %s", coregraph.ErrFanOutUnsupported, source)
		}
	}

	for _, id := range sortedNodeIDs(g) {
		if defaults[id] == 0 && conditionals[id] == 0 {
			return fmt.Errorf("%w: %s", coregraph.ErrDeadEndNode, id)
		}
	}

	reached := reachable(g, g.EntryPoint)
	for _, id := range sortedNodeIDs(g) {
		if !reached[id] {
			return fmt.Errorf("%w: %s", coregraph.ErrUnreachableNode, id)
		}
	}

	var cfg GraphValidationOptions
	if len(opts) > 0 {
		cfg = opts[0]
	}
	if cfg.CheckCycles && hasCycle(g) {
		return coregraph.ErrCyclicGraph
	}

	return nil
}

func sortedNodeIDs(g *coregraph.Graph) []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// reachable walks every edge kind breadth-first from entry.
func reachable(g *coregraph.Graph, entry string) map[string]bool {
	seen := map[string]bool{entry: true}
	queue := []string{entry}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, e := range g.OutgoingEdges(u) {
			if e.Target == coregraph.End || seen[e.Target] {
				continue
			}
			seen[e.Target] = true
			queue = append(queue, e.Target)
		}
	}
	return seen
}

// hasCycle detects any cycle in a directed graph using DFS with coloring.
// The Start and End sentinels never participate in a cycle.
func hasCycle(g *coregraph.Graph) bool {
	const (
		white = 0 // unvisited
		gray  = 1 // visiting
		black = 2 // visited
	)
	color := make(map[string]int, len(g.Nodes))
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		if e.Source == coregraph.Start || e.Target == coregraph.End {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	var dfs func(string) bool
	dfs = func(u string) bool {
		color[u] = gray
		for _, v := range adj[u] {
			if color[v] == gray {
				return true // back-edge
			}
			if color[v] == white && dfs(v) {
				return true
			}
		}
		color[u] = black
		return false
	}
	for _, id := range sortedNodeIDs(g) {
		if color[id] == white && dfs(id) {
			return true
		}
	}
	return false
}
