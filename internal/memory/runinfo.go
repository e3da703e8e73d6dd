package memory

import (
	"sort"

	"github.com/josephgoksu/quill/internal/graph"
)

// DefaultMaxDistance bounds dependency walks inside a node's own graph.
const DefaultMaxDistance = 100000

// outerMaxDistance bounds dependency walks in each enclosing graph.
const outerMaxDistance = 3

// Precedent is a finished task whose result feeds another task's prompt.
type Precedent struct {
	ID         string   `json:"id"`
	TaskType   string   `json:"task_type"`
	Goal       string   `json:"goal"`
	Dependency []string `json:"dependency"`
	Result     string   `json:"result"`
}

// RunInfo is the dependency context of a node.
type RunInfo struct {
	// Same lists precedents in the node's own graph, farthest first.
	Same []Precedent
	// Upper lists, per enclosing level from the root down, the precedents of
	// that level's plan node.
	Upper [][]Precedent
}

// CollectNodeRunInfo gathers the results a node depends on. An atom stands in
// for its outer plan node. Writing tasks are left out: their text already
// lives in the article.
func CollectNodeRunInfo(n *graph.Node) RunInfo {
	if n.IsAtom() {
		n = n.Outer
	}

	var info RunInfo
	for _, group := range innerPrecedents(n, DefaultMaxDistance) {
		for _, p := range group {
			if rep, ok := precedentOf(p); ok {
				info.Same = append(info.Same, rep)
			}
		}
	}

	var levels [][]*graph.Node
	for outer := n.Outer; outer != nil; outer = outer.Outer {
		var flat []*graph.Node
		for _, group := range innerPrecedents(outer, outerMaxDistance) {
			flat = append(flat, group...)
		}
		levels = append(levels, flat)
	}
	for i := len(levels) - 1; i >= 0; i-- {
		var reps []Precedent
		for _, p := range levels[i] {
			if rep, ok := precedentOf(p); ok {
				reps = append(reps, rep)
			}
		}
		if len(reps) > 0 {
			info.Upper = append(info.Upper, reps)
		}
	}
	return info
}

// innerPrecedents walks n's dependencies depth first and groups them by the
// distance at which each was first reached, farthest group first.
func innerPrecedents(n *graph.Node, maxDist int) [][]*graph.Node {
	byDist := make(map[int][]*graph.Node)
	seen := make(map[string]bool)

	var visit func(cur *graph.Node, dist int)
	visit = func(cur *graph.Node, dist int) {
		if dist > maxDist || seen[cur.Hash] {
			return
		}
		byDist[dist] = append(byDist[dist], cur)
		seen[cur.Hash] = true
		for _, p := range sortedByLastSegment(cur.Parents) {
			visit(p, dist+1)
		}
	}
	for _, p := range n.Parents {
		visit(p, 1)
	}

	dists := make([]int, 0, len(byDist))
	for d := range byDist {
		dists = append(dists, d)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(dists)))

	groups := make([][]*graph.Node, 0, len(dists))
	for _, d := range dists {
		groups = append(groups, sortedByLastSegment(byDist[d]))
	}
	return groups
}

func sortedByLastSegment(nodes []*graph.Node) []*graph.Node {
	out := append([]*graph.Node(nil), nodes...)
	sort.SliceStable(out, func(i, j int) bool {
		return graph.LastSegment(out[i].ID) < graph.LastSegment(out[j].ID)
	})
	return out
}

func precedentOf(n *graph.Node) (Precedent, bool) {
	if n.Tag() == graph.TagComposition {
		return Precedent{}, false
	}
	deps := []string{}
	for _, p := range n.Parents {
		if p.Tag() != graph.TagComposition {
			deps = append(deps, p.ID)
		}
	}
	rep := Precedent{
		ID:         n.ID,
		TaskType:   n.Info.TaskType,
		Goal:       n.Info.Goal,
		Dependency: deps,
	}
	if res := n.FinalResult(); res != nil {
		rep.Result = res.Result
	}
	return rep, true
}
