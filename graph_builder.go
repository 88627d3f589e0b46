package flowgate

import (
	"fmt"

	"github.com/flowgate/flowgate/pkg/api"
)

// GraphBuilder provides a fluent API for assembling workflow graphs in code,
// mainly for tests and seeding:
//
//	graph := flowgate.NewGraph().
//	    Trigger("start").
//	    Action("notify", flowgate.KindMessagingWebhook).
//	    Action("archive", flowgate.KindContentStoreWrite).
//	    Connect("start", "notify").
//	    Connect("notify", "archive").
//	    MustBuild()
//
//	path := flowgate.CompilePath(graph)
type GraphBuilder struct {
	nodes []api.Node
	edges []api.Edge
}

// NewGraph creates an empty graph builder.
func NewGraph() *GraphBuilder {
	return &GraphBuilder{}
}

// Trigger adds the entry node. A graph may have at most one; Build reports
// the violation rather than this method.
func (b *GraphBuilder) Trigger(id string) *GraphBuilder {
	return b.node(id, api.KindTrigger)
}

// Action adds an action node of the given kind.
func (b *GraphBuilder) Action(id string, kind ActionKind) *GraphBuilder {
	return b.node(id, kind)
}

func (b *GraphBuilder) node(id string, kind api.ActionKind) *GraphBuilder {
	if id == "" {
		panic("flowgate: node id must not be empty")
	}
	b.nodes = append(b.nodes, api.Node{
		ID:   id,
		Kind: kind,
		Data: api.NodeData{Title: string(kind)},
	})
	return b
}

// Connect adds a directed edge from source to target.
func (b *GraphBuilder) Connect(source, target string) *GraphBuilder {
	if source == "" || target == "" {
		panic("flowgate: edge endpoints must not be empty")
	}
	b.edges = append(b.edges, api.Edge{
		ID:     fmt.Sprintf("%s-%s", source, target),
		Source: source,
		Target: target,
	})
	return b
}

// Build assembles the graph and validates it.
func (b *GraphBuilder) Build() (Graph, error) {
	g := api.Graph{
		Nodes: append([]api.Node(nil), b.nodes...),
		Edges: append([]api.Edge(nil), b.edges...),
	}
	if err := g.Validate(); err != nil {
		return Graph{}, err
	}
	return g, nil
}

// MustBuild is like Build but panics on a validation error.
// Useful for fixtures and initialization in main().
func (b *GraphBuilder) MustBuild() Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}
