package graph

import (
	"fmt"
	"sort"
	"strings"
)

// BuildInnerGraph turns a planner's sub_tasks into the node's inner graph.
// An empty plan makes the node atomic: a single execute node carrying the
// node's own task.
func (n *Node) BuildInnerGraph(plan []PlanItem) error {
	if len(plan) == 0 {
		atom := PlanItem{
			ID:         "0",
			Dependency: []FlexString{},
			Goal:       n.Info.Goal,
			TaskType:   n.Info.TaskType,
			Atom:       true,
		}
		if n.Tag() == TagComposition {
			atom.Length = FlexString(n.Info.Length)
		}
		plan = []PlanItem{atom}
	}

	compositions := 0
	for _, item := range plan {
		if TagOf(normalizeTaskType(item.TaskType)) == TagComposition {
			compositions++
		}
	}

	nodes := make([]*Node, 0, len(plan))
	byID := make(map[string]*Node, len(plan))
	deps := make(map[*Node][]string, len(plan))
	for i := range plan {
		item := &plan[i]
		item.Goal = oneLine(item.Goal)
		item.TaskType = normalizeTaskType(item.TaskType)
		tag := TagOf(item.TaskType)
		if tag == TagComposition && compositions == 1 && item.Length == "" {
			item.Length = FlexString(n.Info.Length)
		}

		info := TaskInfo{
			ID:       item.ID.String(),
			Goal:     item.Goal,
			TaskType: item.TaskType,
		}
		if tag == TagComposition {
			info.Length = item.Length.String()
		}
		if item.hasSubTasks || item.SubTasks != nil {
			info.CandidatePlan = make([]PlanItem, 0, len(item.SubTasks))
			for _, st := range item.SubTasks {
				st.Goal = oneLine(st.Goal)
				info.CandidatePlan = append(info.CandidatePlan, st)
			}
		}

		typ := PlanNode
		if item.Atom {
			typ = ExecuteNode
		}
		node := newChild(n, info, typ)
		ids := make([]string, 0, len(item.Dependency))
		for _, d := range item.Dependency {
			ids = append(ids, d.String())
		}
		deps[node] = ids
		nodes = append(nodes, node)
		byID[node.ID] = node
	}

	// Reasoning tasks depend on every earlier reasoning task, and writing
	// tasks follow every earlier writing task.
	sorted := sortByLastSegment(nodes)
	var prevReasoning, prevComposition []*Node
	for _, node := range sorted {
		switch node.Tag() {
		case TagReasoning:
			for _, prev := range prevReasoning {
				deps[node] = appendMissing(deps[node], prev.ID)
			}
			sort.SliceStable(deps[node], func(i, j int) bool {
				return LastSegment(deps[node][i]) < LastSegment(deps[node][j])
			})
			prevReasoning = append(prevReasoning, node)
		case TagComposition:
			for _, prev := range prevComposition {
				deps[node] = appendMissing(deps[node], prev.ID)
			}
			prevComposition = append(prevComposition, node)
		}
	}

	for _, node := range nodes {
		var parents []*Node
		var valid []string
		for _, id := range deps[node] {
			if p, ok := byID[id]; ok {
				parents = append(parents, p)
				valid = append(valid, id)
			}
		}
		node.Parents = parents
		node.Info.Dependency = valid
		if node.Info.Dependency == nil {
			node.Info.Dependency = []string{}
		}
	}

	n.Inner.clear()
	for _, node := range nodes {
		if err := n.Inner.AddNode(node); err != nil {
			return err
		}
	}
	for _, node := range nodes {
		for _, p := range node.Parents {
			if err := n.Inner.AddEdge(p, node); err != nil {
				return err
			}
		}
	}
	if _, err := n.Inner.TopologicalSort(); err != nil {
		return fmt.Errorf("sort plan: %w", err)
	}
	n.RawPlan = plan
	return nil
}

func normalizeTaskType(t string) string {
	t = strings.TrimSpace(strings.ToLower(t))
	if t == "analyze" || t == "analysis" {
		return TaskThink
	}
	return t
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", ";")
}

func appendMissing(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
