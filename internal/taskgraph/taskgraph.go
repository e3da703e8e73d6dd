// Package taskgraph converts stored task trees into the hierarchical form the
// web UI renders, and back from flat lists.
package taskgraph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/josephgoksu/quill/internal/graph"
)

// Node is one task in the UI tree.
type Node struct {
	ID            string   `json:"id"`
	Goal          string   `json:"goal"`
	TaskType      string   `json:"task_type"`
	Status        string   `json:"status"`
	Dependency    []string `json:"dependency"`
	SubTasks      []*Node  `json:"sub_tasks"`
	NodeType      string   `json:"node_type,omitempty"`
	IsExecuteNode bool     `json:"is_execute_node"`

	// Set on finished reasoning tasks.
	Think  string `json:"think,omitempty"`
	Result string `json:"result,omitempty"`
}

// FromRecord converts a stored tree. Sub tasks are sorted by the numeric
// tail of their ids.
func FromRecord(rec *graph.Record) *Node {
	n := &Node{
		ID:            rec.NID,
		Goal:          rec.TaskInfo.Goal,
		TaskType:      rec.TaskInfo.TaskType,
		Status:        string(rec.Status),
		Dependency:    rec.TaskInfo.Dependency,
		SubTasks:      make([]*Node, 0, len(rec.InnerGraph.Queue)),
		NodeType:      string(rec.NodeType),
		IsExecuteNode: rec.NodeType == graph.ExecuteNode,
	}
	if n.Dependency == nil {
		n.Dependency = []string{}
	}
	if rec.Status == graph.StatusFinish && graph.TagOf(rec.TaskInfo.TaskType) == graph.TagReasoning {
		key := graph.ActionFinalAggregate
		if rec.NodeType == graph.ExecuteNode {
			key = graph.ActionExecute
		}
		if res, ok := rec.Result[key]; ok {
			n.Think = res.Result.Field("think")
			n.Result = res.Result.Result
		}
	}
	for i := range rec.InnerGraph.Queue {
		n.SubTasks = append(n.SubTasks, FromRecord(&rec.InnerGraph.Queue[i]))
	}
	SortSubTasks(n)
	return n
}

// Placeholder is the tree shown before a task has written its first record.
func Placeholder(prompt string) *Node {
	if prompt == "" {
		prompt = "Unknown task"
	}
	return &Node{
		ID:         "",
		Goal:       prompt,
		TaskType:   graph.TaskWrite,
		Status:     string(graph.StatusFinish),
		Dependency: []string{},
		SubTasks: []*Node{{
			ID:         "0",
			Goal:       "Task graph data not available",
			TaskType:   graph.TaskThink,
			Status:     string(graph.StatusFinish),
			Dependency: []string{},
			SubTasks:   []*Node{},
		}},
	}
}

// SortSubTasks orders n's children by the numeric tail of their ids. Ties
// keep their order.
func SortSubTasks(n *Node) {
	sort.SliceStable(n.SubTasks, func(i, j int) bool {
		return graph.LastSegment(n.SubTasks[i].ID) < graph.LastSegment(n.SubTasks[j].ID)
	})
}

// Flatten lists the tree depth first, parents before children. Execute
// nodes are left out and the returned nodes carry no sub tasks.
func Flatten(root *Node) []*Node {
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if !n.IsExecuteNode {
			flat := *n
			flat.SubTasks = nil
			out = append(out, &flat)
		}
		for _, c := range n.SubTasks {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

// FromFlat rebuilds the hierarchy of a flat list from dot separated ids: the
// parent of "1.2.3" is "1.2", and of "1" the root "". A missing parent is
// replaced by the nearest existing ancestor. When the list has no root one is
// created. Nil entries are skipped.
func FromFlat(nodes []*Node) *Node {
	byID := make(map[string]*Node, len(nodes))
	order := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		c := *n
		c.SubTasks = []*Node{}
		if c.Dependency == nil {
			c.Dependency = []string{}
		}
		if _, dup := byID[c.ID]; dup {
			continue
		}
		byID[c.ID] = &c
		order = append(order, &c)
	}

	root, ok := byID[""]
	if !ok {
		root = &Node{ID: "", TaskType: graph.TaskWrite, Dependency: []string{}, SubTasks: []*Node{}}
	}
	for _, n := range order {
		if n == root {
			continue
		}
		parent := root
		for id := parentID(n.ID); id != ""; id = parentID(id) {
			if p, ok := byID[id]; ok {
				parent = p
				break
			}
		}
		parent.SubTasks = append(parent.SubTasks, n)
	}
	var sortAll func(n *Node)
	sortAll = func(n *Node) {
		SortSubTasks(n)
		for _, c := range n.SubTasks {
			sortAll(c)
		}
	}
	sortAll(root)
	return root
}

func parentID(id string) string {
	if i := strings.LastIndex(id, "."); i >= 0 {
		return id[:i]
	}
	return ""
}

// Parse decodes either a tree object or a flat array of nodes.
func Parse(data []byte) (*Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty task graph")
	}
	if data[0] == '[' {
		var flat []*Node
		if err := json.Unmarshal(data, &flat); err != nil {
			return nil, fmt.Errorf("decode task list: %w", err)
		}
		return FromFlat(flat), nil
	}
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode task graph: %w", err)
	}
	return &root, nil
}
