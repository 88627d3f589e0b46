package api

import (
	"encoding/json"
	"fmt"
)

// ActionKind identifies what a workflow node does when it executes.
//
// The set of kinds is closed: the dispatch table matches on it exhaustively,
// so adding or removing a kind is a compile-time visible change.
type ActionKind string

const (
	// KindTrigger is the distinguished entry point of a graph. It never
	// appears in a compiled flow path.
	KindTrigger ActionKind = "Trigger"

	// KindMessagingWebhook delivers templated content to a stored webhook URL.
	KindMessagingWebhook ActionKind = "MessagingWebhook"

	// KindTeamChannelPost posts templated content to one or more team
	// channels using a stored access credential.
	KindTeamChannelPost ActionKind = "TeamChannelPost"

	// KindContentStoreWrite creates a record in an external content store
	// (a database/page container) using a stored credential.
	KindContentStoreWrite ActionKind = "ContentStoreWrite"

	// KindWait suspends the remainder of the run behind an external
	// scheduler callback.
	KindWait ActionKind = "Wait"
)

// Valid reports whether k is one of the known kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case KindTrigger, KindMessagingWebhook, KindTeamChannelPost, KindContentStoreWrite, KindWait:
		return true
	}
	return false
}

// IsEntry reports whether k is the graph entry kind.
func (k ActionKind) IsEntry() bool { return k == KindTrigger }

// Position is the editor placement of a node. The engine never interprets it;
// it is carried so a round-trip through save does not lose layout.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is the editor-facing payload of a node.
type NodeData struct {
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Node is a single vertex of a workflow graph.
type Node struct {
	ID       string     `json:"id"`
	Kind     ActionKind `json:"kind"`
	Position Position   `json:"position"`
	Data     NodeData   `json:"data"`
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the stored node/edge representation of a workflow. It is pure
// data; the only behavior it owns is validation.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// ParseGraph decodes a graph from its two serialized halves as produced by
// the editor collaborator.
func ParseGraph(nodesJSON, edgesJSON string) (Graph, error) {
	var g Graph
	if nodesJSON != "" {
		if err := json.Unmarshal([]byte(nodesJSON), &g.Nodes); err != nil {
			return Graph{}, fmt.Errorf("parse nodes: %w", err)
		}
	}
	if edgesJSON != "" {
		if err := json.Unmarshal([]byte(edgesJSON), &g.Edges); err != nil {
			return Graph{}, fmt.Errorf("parse edges: %w", err)
		}
	}
	return g, nil
}

// TriggerNode returns the entry node of the graph, if one exists.
func (g Graph) TriggerNode() (Node, bool) {
	for _, n := range g.Nodes {
		if n.Kind.IsEntry() {
			return n, true
		}
	}
	return Node{}, false
}

// Validate checks the structural invariants of the graph:
//
//   - at most one node has the entry kind
//   - every node kind is known
//   - every edge references existing node ids
//   - no edge is a self-loop
//   - no duplicate (source, target) pair
//
// Violations are collected and returned as a single *GraphInvalidError so the
// editor collaborator can surface all of them at once. A graph that fails
// validation must never be persisted.
func (g Graph) Validate() error {
	var reasons []string

	ids := make(map[string]bool, len(g.Nodes))
	triggers := 0
	for _, n := range g.Nodes {
		if n.ID == "" {
			reasons = append(reasons, "node with empty id")
			continue
		}
		if ids[n.ID] {
			reasons = append(reasons, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		ids[n.ID] = true
		if !n.Kind.Valid() {
			reasons = append(reasons, fmt.Sprintf("node %q has unknown kind %q", n.ID, n.Kind))
		}
		if n.Kind.IsEntry() {
			triggers++
		}
	}
	if triggers > 1 {
		reasons = append(reasons, fmt.Sprintf("graph has %d trigger nodes, at most one allowed", triggers))
	}

	pairs := make(map[[2]string]bool, len(g.Edges))
	for _, e := range g.Edges {
		if !ids[e.Source] {
			reasons = append(reasons, fmt.Sprintf("edge %q references unknown source %q", e.ID, e.Source))
		}
		if !ids[e.Target] {
			reasons = append(reasons, fmt.Sprintf("edge %q references unknown target %q", e.ID, e.Target))
		}
		if e.Source == e.Target {
			reasons = append(reasons, fmt.Sprintf("edge %q is a self-loop on %q", e.ID, e.Source))
		}
		pair := [2]string{e.Source, e.Target}
		if pairs[pair] {
			reasons = append(reasons, fmt.Sprintf("duplicate edge %s -> %s", e.Source, e.Target))
		}
		pairs[pair] = true
	}

	if len(reasons) > 0 {
		return &GraphInvalidError{Reasons: reasons}
	}
	return nil
}
