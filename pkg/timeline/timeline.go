// Package timeline derives the display timeline of an approval instance.
//
// The output is recomputed from scratch on every call: one synthetic
// "submitted" node, one node per task in sequence order, and one synthetic
// terminal node once the instance has finished.
package timeline

import (
	"sort"
	"time"

	"bizdesk/pkg/model"
)

const placeholder = "-"

// Node names used for the synthetic entries.
const (
	NameSubmitted  = "Submitted"
	NameApproved   = "Approved"
	NameRejected   = "Rejected"
	NameWithdrawn  = "Withdrawn"
	NameTerminated = "Terminated"
)

// Build returns the ordered timeline for inst. now is used for the waiting
// time of the current task.
func Build(inst model.ApprovalInstance, now time.Time) []model.TimelineNode {
	tasks := append([]model.ApprovalTask(nil), inst.Tasks...)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Seq < tasks[j].Seq })

	nodes := make([]model.TimelineNode, 0, len(tasks)+2)
	nodes = append(nodes, submittedNode(inst))

	lastOperator := ""
	for _, t := range tasks {
		n := taskNode(t, inst.CurrentNodeID, now)
		if t.Status == model.TaskCompleted {
			lastOperator = t.AssigneeName
		}
		nodes = append(nodes, n)
	}

	if term, ok := terminalNode(inst, lastOperator); ok {
		nodes = append(nodes, term)
	}
	return nodes
}

// Classify returns the display status of a single task.
func Classify(t model.ApprovalTask, currentNodeID string) model.NodeStatus {
	switch {
	case t.Status == model.TaskCompleted && t.Action == model.ActionReject:
		return model.NodeRejected
	case t.Status == model.TaskCompleted:
		return model.NodeCompleted
	case t.Status == model.TaskPending && currentNodeID != "" && t.NodeID == currentNodeID:
		return model.NodeCurrent
	default:
		return model.NodePending
	}
}

func submittedNode(inst model.ApprovalInstance) model.TimelineNode {
	n := model.TimelineNode{
		NodeName: NameSubmitted,
		Status:   model.NodeSubmitted,
		Operator: orPlaceholder(inst.InitiatorName),
	}
	if !inst.CreatedAt.IsZero() {
		at := inst.CreatedAt
		n.StartedAt = &at
		n.FinishedAt = &at
	}
	return n
}

func taskNode(t model.ApprovalTask, currentNodeID string, now time.Time) model.TimelineNode {
	n := model.TimelineNode{
		NodeID:      t.NodeID,
		NodeName:    orPlaceholder(t.NodeName),
		Status:      Classify(t, currentNodeID),
		Operator:    orPlaceholder(t.AssigneeName),
		Comment:     t.Comment,
		Attachments: t.Attachments,
	}
	if !t.CreatedAt.IsZero() {
		at := t.CreatedAt
		n.StartedAt = &at
	}
	if t.CompletedAt != nil {
		done := *t.CompletedAt
		n.FinishedAt = &done
		if n.StartedAt != nil && done.After(*n.StartedAt) {
			n.Duration = done.Sub(*n.StartedAt)
		}
	}
	if n.Status == model.NodeCurrent && n.StartedAt != nil && now.After(*n.StartedAt) {
		n.WaitingTime = now.Sub(*n.StartedAt)
	}
	if t.DelegateFromName != "" {
		n.Delegate = &model.Delegate{From: t.DelegateFromName, To: orPlaceholder(t.AssigneeName)}
	}
	return n
}

func terminalNode(inst model.ApprovalInstance, lastOperator string) (model.TimelineNode, bool) {
	var n model.TimelineNode
	switch inst.Status {
	case model.InstanceApproved:
		n = model.TimelineNode{NodeName: NameApproved, Status: model.NodeCompleted, Operator: orPlaceholder(lastOperator)}
	case model.InstanceRejected:
		n = model.TimelineNode{NodeName: NameRejected, Status: model.NodeRejected, Operator: orPlaceholder(lastOperator)}
	case model.InstanceWithdrawn:
		n = model.TimelineNode{NodeName: NameWithdrawn, Status: model.NodeWithdrawn, Operator: orPlaceholder(inst.InitiatorName)}
	case model.InstanceTerminated:
		n = model.TimelineNode{NodeName: NameTerminated, Status: model.NodeRejected, Operator: placeholder}
	default:
		return n, false
	}
	if inst.CompletedAt != nil {
		at := *inst.CompletedAt
		n.StartedAt = &at
		n.FinishedAt = &at
	}
	return n, true
}

func orPlaceholder(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}
