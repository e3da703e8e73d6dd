package graph

import (
	"fmt"
	"strings"
)

// LayerPlan is the plan tree shown to a planner, cut below the layer it plans.
type LayerPlan struct {
	ID                  string      `json:"id"`
	TaskType            string      `json:"task_type"`
	Goal                string      `json:"goal"`
	Dependency          []string    `json:"dependency"`
	Finish              bool        `json:"finish"`
	IsCurrentToPlanTask bool        `json:"is_current_to_plan_task"`
	SubTasks            []LayerPlan `json:"sub_tasks"`
}

// FullLayerPlan renders the whole tree down to one layer below n.
func (n *Node) FullLayerPlan() *LayerPlan {
	target := n.Layer + 1
	var visit func(cur *Node) *LayerPlan
	visit = func(cur *Node) *LayerPlan {
		if cur.IsAtom() || cur.Layer > target {
			return nil
		}
		lp := &LayerPlan{
			ID:                  cur.ID,
			TaskType:            cur.Info.TaskType,
			Goal:                cur.Info.Goal,
			Dependency:          nonCompositionParents(cur),
			Finish:              cur.Status == StatusFinish,
			IsCurrentToPlanTask: cur.Hash == n.Hash,
			SubTasks:            []LayerPlan{},
		}
		if cur.Layer < target {
			for _, c := range cur.Queue() {
				if sub := visit(c); sub != nil {
					lp.SubTasks = append(lp.SubTasks, *sub)
				}
			}
		}
		return lp
	}
	return visit(n.Root)
}

// PreviousWritingPlan renders the writing outline around n: finished parts,
// parts in progress, the part n must write, and, when global is set, parts
// not started yet.
func (n *Node) PreviousWritingPlan(global bool) string {
	var lines []string
	var visit func(cur *Node, indent string, path []int)
	visit = func(cur *Node, indent string, path []int) {
		if cur.IsAtom() || cur.Tag() != TagComposition {
			return
		}
		current := cur.Hash == n.Hash
		if !global && cur.Status != StatusFinish && cur.Status != StatusDoing && !current {
			return
		}

		line := fmt.Sprintf("%s【%s】.%s: %s", indent, joinPath(path), cur.Info.Length, cur.Info.Goal)
		switch {
		case cur.Status == StatusFinish:
			lines = append(lines, line+" :**FINISHED**")
		case cur.Status == StatusDoing:
			lines = append(lines, line+" :**DOING**")
			idx := 1
			for _, c := range cur.Queue() {
				if c.Tag() != TagComposition {
					continue
				}
				visit(c, indent+"\t", append(append([]int(nil), path...), idx))
				idx++
			}
		case current:
			lines = append(lines, line+" :**You Need To Write**")
		default:
			lines = append(lines, line+" :**Not Started Yet, You should avoid content related to this part**")
		}
	}
	visit(n.Root, "", nil)
	if len(lines) > 0 {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

// DirectDependWriteTasks returns the writing tasks in the enclosing plan that
// depend on n (or on n's outer node when n is an execute node).
func (n *Node) DirectDependWriteTasks() []*Node {
	cur := n
	if n.Type == ExecuteNode && n.Outer != nil {
		cur = n.Outer
	}
	if cur.Outer == nil {
		return nil
	}
	var out []*Node
	for _, sibling := range cur.Outer.Queue() {
		if sibling.Tag() != TagComposition {
			continue
		}
		for _, p := range sibling.Parents {
			if p.ID == cur.ID {
				out = append(out, sibling)
			}
		}
	}
	return out
}

// OuterWriteTask returns the plan node that encloses n's task.
func (n *Node) OuterWriteTask() *Node {
	cur := n
	if n.Type == ExecuteNode && n.Outer != nil {
		cur = n.Outer
	}
	return cur.Outer
}

func nonCompositionParents(n *Node) []string {
	deps := []string{}
	for _, p := range n.Parents {
		if p.Tag() != TagComposition {
			deps = append(deps, p.ID)
		}
	}
	return deps
}

func joinPath(path []int) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ".")
}
