package xref

import (
	"context"
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"

	"github.com/jward/xref/internal/store"
)

// maxCallGraphDepth caps transitive traversals.
const maxCallGraphDepth = 100

// CallGraph is a transitive call graph rooted at a function. Nodes and edges
// are bulk-loaded into an in-memory graph and traversed breadth first, so
// there is no recursive SQL and no per-node query.
type CallGraph struct {
	Root  *Function       `json:"root"`
	Nodes []CallGraphNode `json:"nodes"`
	Edges []CallGraphEdge `json:"edges"`
	Depth int             `json:"depth"` // deepest level reached, at most the requested depth
}

// CallGraphNode is a function in the call graph with its distance from the
// root.
type CallGraphNode struct {
	Function *Function `json:"function"`
	Depth    int       `json:"depth"` // 0 is the root itself
}

// CallGraphEdge is one caller-callee relationship of the call graph.
// Candidate edges come from the candidate list of a virtual or indirect
// call rather than its stored callee.
type CallGraphEdge struct {
	CallerID  int64  `json:"caller_id"`
	CalleeID  int64  `json:"callee_id"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	Candidate bool   `json:"candidate,omitempty"`
}

func functionHash(f *Function) int64 { return f.ID }

// callGraphData holds the loaded graph plus the call sites behind each
// adjacency.
type callGraphData struct {
	g     graph.Graph[int64, *Function]
	sites map[[2]int64][]CallGraphEdge
}

// buildCallGraph loads every function and call edge. With reverse set the
// graph edges point from callee to caller.
func (q *QueryBuilder) buildCallGraph(ctx context.Context, reverse bool) (*callGraphData, error) {
	fns, err := q.store.Functions(ctx, store.FunctionFilter{})
	if err != nil {
		return nil, fmt.Errorf("load functions: %w", err)
	}
	edges, err := q.store.AllCalls(ctx)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}

	data := &callGraphData{
		g:     graph.New(functionHash, graph.Directed()),
		sites: make(map[[2]int64][]CallGraphEdge),
	}
	byName := make(map[string]int64, len(fns))
	for _, f := range fns {
		if err := data.g.AddVertex(f); err != nil {
			return nil, fmt.Errorf("add function %s: %w", f.QualifiedName, err)
		}
		if _, ok := byName[f.QualifiedName]; !ok {
			byName[f.QualifiedName] = f.ID
		}
	}

	link := func(e *CallEdge, callee int64, candidate bool) error {
		from, to := e.CallerID, callee
		if reverse {
			from, to = to, from
		}
		key := [2]int64{from, to}
		data.sites[key] = append(data.sites[key], CallGraphEdge{
			CallerID:  e.CallerID,
			CalleeID:  callee,
			File:      e.FilePath,
			Line:      e.Line,
			Column:    e.Column,
			Candidate: candidate,
		})
		err := data.g.AddEdge(from, to)
		if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
			return fmt.Errorf("add edge %d -> %d: %w", from, to, err)
		}
		return nil
	}
	for _, e := range edges {
		if err := link(e, e.CalleeID, false); err != nil {
			return nil, err
		}
		for _, name := range e.Candidates {
			id, ok := byName[name]
			if !ok || id == e.CalleeID {
				continue
			}
			if err := link(e, id, true); err != nil {
				return nil, err
			}
		}
	}
	return data, nil
}

// TransitiveCallers returns every function that reaches name within
// maxDepth calls. maxDepth of 0 returns only the root. Negative returns an
// error. Capped at 100. Returns nil, nil if no function has that name.
func (q *QueryBuilder) TransitiveCallers(ctx context.Context, name string, maxDepth int) (*CallGraph, error) {
	cg, err := q.transitive(ctx, name, maxDepth, true)
	if err != nil {
		return nil, fmt.Errorf("transitive callers: %w", err)
	}
	return cg, nil
}

// TransitiveCallees returns every function name reaches within maxDepth
// calls. Same depth rules as TransitiveCallers.
func (q *QueryBuilder) TransitiveCallees(ctx context.Context, name string, maxDepth int) (*CallGraph, error) {
	cg, err := q.transitive(ctx, name, maxDepth, false)
	if err != nil {
		return nil, fmt.Errorf("transitive callees: %w", err)
	}
	return cg, nil
}

// CallGraph returns the callees of name when callers is false, otherwise
// its callers, up to maxDepth.
func (q *QueryBuilder) CallGraph(ctx context.Context, name string, maxDepth int, callers bool) (*CallGraph, error) {
	if callers {
		return q.TransitiveCallers(ctx, name, maxDepth)
	}
	return q.TransitiveCallees(ctx, name, maxDepth)
}

func (q *QueryBuilder) transitive(ctx context.Context, name string, maxDepth int, reverse bool) (*CallGraph, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("maxDepth must be non-negative, got %d", maxDepth)
	}
	maxDepth = min(maxDepth, maxCallGraphDepth)

	fns, err := q.store.FunctionsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(fns) == 0 {
		return nil, nil
	}
	root := fns[0]
	result := &CallGraph{
		Root:  root,
		Nodes: []CallGraphNode{{Function: root, Depth: 0}},
		Edges: []CallGraphEdge{},
	}
	if maxDepth == 0 {
		return result, nil
	}

	data, err := q.buildCallGraph(ctx, reverse)
	if err != nil {
		return nil, err
	}

	adjacency, err := data.g.AdjacencyMap()
	if err != nil {
		return nil, err
	}

	// BFS visits in level order, so the first depth assigned to a vertex is
	// its shortest distance from the root.
	visited := map[int64]int{root.ID: 0}
	var order []int64
	err = graph.BFS(data.g, root.ID, func(id int64) bool {
		depth := visited[id]
		if depth > maxDepth {
			return true
		}
		order = append(order, id)
		for next := range adjacency[id] {
			if _, ok := visited[next]; !ok {
				visited[next] = depth + 1
			}
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	for id, depth := range visited {
		if depth > maxDepth {
			delete(visited, id)
		}
	}

	for _, id := range order {
		depth := visited[id]
		if id != root.ID {
			f, err := data.g.Vertex(id)
			if err != nil {
				return nil, fmt.Errorf("vertex %d: %w", id, err)
			}
			result.Nodes = append(result.Nodes, CallGraphNode{Function: f, Depth: depth})
		}
		result.Depth = max(result.Depth, depth)
	}

	for _, from := range order {
		for to := range adjacency[from] {
			if _, ok := visited[to]; !ok {
				continue
			}
			result.Edges = append(result.Edges, data.sites[[2]int64{from, to}]...)
		}
	}
	return result, nil
}
