// Package graph holds the recursive task tree: nodes, their inner plan graphs,
// and the status machine that drives a node from planning to completion.
package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status is the lifecycle state of a node.
type Status string

const (
	StatusNotReady        Status = "NOT_READY"         // Dependencies still running
	StatusReady           Status = "READY"             // Can plan or execute
	StatusNeedUpdate      Status = "NEED_UPDATE"       // Dependencies finished, goal may need refreshing
	StatusFinalToFinish   Status = "FINAL_TO_FINISH"   // Inner nodes done, results need aggregating
	StatusNeedPostReflect Status = "NEED_POST_REFLECT" // Aggregated, awaiting post reflection
	StatusFinish          Status = "FINISH"
	StatusPlanDone        Status = "PLAN_DONE"
	StatusDoing           Status = "DOING" // Inner nodes are running
	StatusFailed          Status = "FAILED"
)

// IsSilence reports whether the node will never change again.
func (s Status) IsSilence() bool {
	return s == StatusFinish || s == StatusFailed
}

// IsSuspend reports whether the node waits on an exam (outer or inner progress).
func (s Status) IsSuspend() bool {
	return s == StatusNotReady || s == StatusDoing
}

// IsActivate reports whether the node has an action to run.
func (s Status) IsActivate() bool {
	switch s {
	case StatusReady, StatusNeedUpdate, StatusPlanDone, StatusFinalToFinish, StatusNeedPostReflect:
		return true
	}
	return false
}

// NodeType distinguishes nodes that decompose from nodes that produce output.
type NodeType string

const (
	PlanNode    NodeType = "PLAN_NODE"
	ExecuteNode NodeType = "EXECUTE_NODE"
)

// Tag is the category a task_type maps to.
type Tag string

const (
	TagComposition Tag = "COMPOSITION"
	TagRetrieval   Tag = "RETRIEVAL"
	TagReasoning   Tag = "REASONING"
)

// Task types as emitted by planners and consumed by the UI.
const (
	TaskWrite  = "write"
	TaskSearch = "search"
	TaskThink  = "think"
)

// TagOf maps a task_type to its tag. Unknown types are treated as reasoning.
func TagOf(taskType string) Tag {
	switch taskType {
	case TaskWrite:
		return TagComposition
	case TaskSearch:
		return TagRetrieval
	default:
		return TagReasoning
	}
}

// Action is the name of a step a node can take.
type Action string

const (
	ActionPlan                Action = "plan"
	ActionExecute             Action = "execute"
	ActionUpdate              Action = "update"
	ActionPriorReflect        Action = "prior_reflect"
	ActionFinalAggregate      Action = "final_aggregate"
	ActionPlanningPostReflect Action = "planning_post_reflect"
	ActionExecutePostReflect  Action = "execute_post_reflect"
)

// Quiet reports whether the action is bookkeeping only and should not be logged at info.
func (a Action) Quiet() bool {
	switch a {
	case ActionUpdate, ActionPriorReflect, ActionPlanningPostReflect, ActionExecutePostReflect:
		return true
	}
	return false
}

// FlexString decodes a JSON string or number into a string. Planner output
// uses both forms for ids, dependencies and lengths.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// PlanItem is one entry of a planner's sub_tasks list.
type PlanItem struct {
	ID         FlexString   `json:"id"`
	Dependency []FlexString `json:"dependency"`
	Goal       string       `json:"goal"`
	TaskType   string       `json:"task_type"`
	Length     FlexString   `json:"length,omitempty"`
	SubTasks   []PlanItem   `json:"sub_tasks,omitempty"`
	Atom       bool         `json:"atom,omitempty"`

	hasSubTasks bool
}

// UnmarshalJSON records whether sub_tasks was present so an explicit empty
// list can be told apart from a missing one.
func (p *PlanItem) UnmarshalJSON(data []byte) error {
	type plain PlanItem
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = PlanItem(v)
	_, p.hasSubTasks = raw["sub_tasks"]
	return nil
}

// TaskInfo is the task description carried by a node.
type TaskInfo struct {
	ID         string   `json:"id"`
	Dependency []string `json:"dependency"`
	Goal       string   `json:"goal"`
	TaskType   string   `json:"task_type"`
	Length     string   `json:"length,omitempty"`

	// CandidatePlan holds sub_tasks proposed by the outer planner. Nil means
	// none were proposed.
	CandidatePlan []PlanItem `json:"candidate_plan,omitempty"`
}

// Outcome is what an agent returns for an action.
type Outcome struct {
	Original string            `json:"original,omitempty"`
	Result   string            `json:"result"`
	Plan     []PlanItem        `json:"plan,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// Field returns a parsed tag value from the outcome.
func (o Outcome) Field(name string) string {
	if o.Fields == nil {
		return ""
	}
	return o.Fields[name]
}

// ActionRecord is a stored action outcome.
type ActionRecord struct {
	Result Outcome `json:"result"`
	Time   string  `json:"time"`
	Agent  string  `json:"agent"`
}

// LastSegment returns the numeric value of the final dot-separated segment of
// a task id. Non-numeric segments sort first.
func LastSegment(id string) int {
	if i := strings.LastIndex(id, "."); i >= 0 {
		id = id[i+1:]
	}
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return -1
	}
	return n
}
