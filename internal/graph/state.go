package graph

import (
	"context"
	"fmt"
	"time"
)

// TimeLayout is the timestamp format stored with action results.
const TimeLayout = "2006-01-02 15:04:05"

// Performer runs the agent bound to an action.
type Performer interface {
	Perform(ctx context.Context, action Action, n *Node) (Outcome, error)
	// Agent names the agent that serves the action, for the stored record.
	Agent(action Action) string
}

// NextAction returns the action an activate node takes and the status it
// moves to afterwards.
func (n *Node) NextAction() (Action, Status, error) {
	switch n.Status {
	case StatusReady:
		if n.Type == ExecuteNode {
			return ActionExecute, StatusNeedPostReflect, nil
		}
		return ActionPlan, StatusPlanDone, nil
	case StatusNeedUpdate:
		return ActionUpdate, StatusReady, nil
	case StatusPlanDone:
		return ActionPriorReflect, StatusDoing, nil
	case StatusFinalToFinish:
		return ActionFinalAggregate, StatusNeedPostReflect, nil
	case StatusNeedPostReflect:
		if n.Type == ExecuteNode {
			return ActionExecutePostReflect, StatusFinish, nil
		}
		return ActionPlanningPostReflect, StatusFinish, nil
	}
	return "", n.Status, fmt.Errorf("node %q: status %s is not activate", n.ID, n.Status)
}

// Advance runs the node's next action and moves it to the following status.
func (n *Node) Advance(ctx context.Context, p Performer) (Action, error) {
	action, next, err := n.NextAction()
	if err != nil {
		return "", err
	}

	var out Outcome
	switch {
	case action == ActionFinalAggregate && len(n.Queue()) == 1 && n.Queue()[0].Type == ExecuteNode:
		// A single execute child already holds the node's output.
		if res := n.Queue()[0].FinalResult(); res != nil {
			out = *res
		}
	default:
		out, err = p.Perform(ctx, action, n)
		if err != nil {
			return action, fmt.Errorf("%s node %q: %w", action, n.ID, err)
		}
	}

	if action == ActionPlan {
		if err := n.BuildInnerGraph(out.Plan); err != nil {
			return action, fmt.Errorf("build plan for %q: %w", n.ID, err)
		}
	}

	n.Results[action] = ActionRecord{
		Result: out,
		Time:   time.Now().Format(TimeLayout),
		Agent:  p.Agent(action),
	}
	n.Status = next
	return action, nil
}

// Exam re-evaluates a suspend node and reports whether its status changed.
func (n *Node) Exam() bool {
	switch n.Status {
	case StatusNotReady:
		if n.Outer == nil || n.Outer.Status != StatusDoing {
			return false
		}
		if len(n.Parents) == 0 {
			n.Status = StatusReady
			return true
		}
		for _, p := range n.Parents {
			if p.Status != StatusFinish {
				return false
			}
		}
		n.Status = StatusNeedUpdate
		return true
	case StatusDoing:
		for _, c := range n.Queue() {
			if c.Status != StatusFinish {
				return false
			}
		}
		n.Status = StatusFinalToFinish
		return true
	}
	return false
}
