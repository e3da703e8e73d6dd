package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// ErrDuplicateNode is returned when a plan reuses a task id within one graph.
var ErrDuplicateNode = errors.New("duplicate node")

// ErrUnreachable is returned when a plan's dependencies form a cycle.
var ErrUnreachable = errors.New("some node is not reachable")

// Node is one task in the recursive tree.
type Node struct {
	ID     string
	Hash   string
	Info   TaskInfo
	Type   NodeType
	Status Status
	Layer  int

	Outer   *Node
	Root    *Node
	Parents []*Node
	Inner   *Graph

	RawPlan []PlanItem
	Results map[Action]ActionRecord
}

// NewRoot creates the root node of a task tree. The root has id "" and
// layer 0; the caller moves it to READY before running.
func NewRoot(info TaskInfo) *Node {
	n := &Node{
		ID:      "",
		Hash:    uuid.New().String(),
		Info:    info,
		Type:    PlanNode,
		Status:  StatusNotReady,
		Results: make(map[Action]ActionRecord),
	}
	n.Root = n
	n.Inner = newGraph(n)
	return n
}

func newChild(outer *Node, info TaskInfo, typ NodeType) *Node {
	n := &Node{
		ID:      info.ID,
		Hash:    uuid.New().String(),
		Info:    info,
		Type:    typ,
		Status:  StatusNotReady,
		Layer:   outer.Layer + 1,
		Outer:   outer,
		Root:    outer.Root,
		Results: make(map[Action]ActionRecord),
	}
	n.Inner = newGraph(n)
	return n
}

// Tag is the node's task category.
func (n *Node) Tag() Tag { return TagOf(n.Info.TaskType) }

// Queue returns the inner nodes in topological order.
func (n *Node) Queue() []*Node { return n.Inner.Queue }

// IsAtom reports whether the node is the lone execute node of its outer plan.
func (n *Node) IsAtom() bool {
	return n.Type == ExecuteNode && n.Outer != nil && len(n.Outer.Queue()) == 1
}

// FinalInfo returns the record of the action that produced the node's output,
// or nil until the node finishes.
func (n *Node) FinalInfo() *ActionRecord {
	if n.Status != StatusFinish {
		return nil
	}
	key := ActionFinalAggregate
	if n.Type == ExecuteNode {
		key = ActionExecute
	}
	rec, ok := n.Results[key]
	if !ok {
		return nil
	}
	return &rec
}

// FinalResult returns the outcome that represents the node's output.
func (n *Node) FinalResult() *Outcome {
	rec := n.FinalInfo()
	if rec == nil {
		return nil
	}
	return &rec.Result
}

// String renders the node the way progress logs show it.
func (n *Node) String() string {
	star := ""
	if n.Type == ExecuteNode {
		star = "*"
	}
	var tag string
	switch n.Tag() {
	case TagComposition:
		tag = fmt.Sprintf("【%s.%s】", n.Info.TaskType, n.Info.Length)
	default:
		tag = fmt.Sprintf("【%s】", n.Info.TaskType)
	}
	var deps []string
	for _, p := range n.Parents {
		if p.Tag() != TagComposition {
			deps = append(deps, p.ID)
		}
	}
	return fmt.Sprintf("%s%s%s.(%s).%v: %s", n.ID, star, tag, n.Info.Goal, deps, n.Status)
}

// Walk visits n and every nested node depth first in queue order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Queue() {
		c.Walk(fn)
	}
}

// Graph is a node's inner plan: tasks and dependency edges.
type Graph struct {
	Outer *Node
	Nodes []*Node
	Queue []*Node

	edges map[string][]*Node
}

func newGraph(outer *Node) *Graph {
	return &Graph{Outer: outer, edges: make(map[string][]*Node)}
}

func (g *Graph) clear() {
	g.Nodes = nil
	g.Queue = nil
	g.edges = make(map[string][]*Node)
}

// AddNode inserts a node; ids must be unique within the graph.
func (g *Graph) AddNode(n *Node) error {
	if _, ok := g.edges[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	g.Nodes = append(g.Nodes, n)
	g.edges[n.ID] = nil
	return nil
}

// AddEdge records that child depends on parent.
func (g *Graph) AddEdge(parent, child *Node) error {
	if _, ok := g.edges[parent.ID]; !ok {
		return fmt.Errorf("add edge: unknown parent %q", parent.ID)
	}
	g.edges[parent.ID] = append(g.edges[parent.ID], child)
	return nil
}

// TopologicalSort orders the nodes layer by layer: every pass takes all nodes
// with no pending dependencies, in insertion order.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for _, children := range g.edges {
		for _, c := range children {
			inDegree[c.ID]++
		}
	}

	visited := make(map[string]bool, len(g.Nodes))
	queue := make([]*Node, 0, len(g.Nodes))
	for len(queue) < len(g.Nodes) {
		var batch []*Node
		for _, n := range g.Nodes {
			if inDegree[n.ID] == 0 && !visited[n.ID] {
				visited[n.ID] = true
				batch = append(batch, n)
			}
		}
		if len(batch) == 0 {
			return nil, ErrUnreachable
		}
		queue = append(queue, batch...)
		for _, n := range batch {
			for _, c := range g.edges[n.ID] {
				inDegree[c.ID]--
			}
		}
	}
	g.Queue = queue
	return queue, nil
}

// sortByLastSegment sorts nodes by the numeric tail of their ids, keeping
// insertion order for ties.
func sortByLastSegment(nodes []*Node) []*Node {
	out := append([]*Node(nil), nodes...)
	sort.SliceStable(out, func(i, j int) bool {
		return LastSegment(out[i].ID) < LastSegment(out[j].ID)
	})
	return out
}
