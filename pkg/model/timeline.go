package model

import "time"

// NodeStatus is the display state of a timeline node.
type NodeStatus string

const (
	NodeSubmitted NodeStatus = "submitted"
	NodeCompleted NodeStatus = "completed"
	NodeRejected  NodeStatus = "rejected"
	NodeCurrent   NodeStatus = "current"
	NodePending   NodeStatus = "pending"
	NodeWithdrawn NodeStatus = "withdrawn"
)

// Delegate describes a task handed over from one approver to another.
type Delegate struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TimelineNode is a derived view of one approval step. It is rebuilt on every
// request and never stored.
type TimelineNode struct {
	NodeID      string        `json:"node_id,omitempty"`
	NodeName    string        `json:"node_name"`
	Status      NodeStatus    `json:"status"`
	Operator    string        `json:"operator"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	WaitingTime time.Duration `json:"waiting_time,omitempty"`
	Comment     string        `json:"comment,omitempty"`
	Attachments []string      `json:"attachments,omitempty"`
	Delegate    *Delegate     `json:"delegate,omitempty"`
}
