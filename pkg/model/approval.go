package model

import "time"

// InstanceStatus is the lifecycle state of an approval instance.
type InstanceStatus string

const (
	InstanceDraft      InstanceStatus = "DRAFT"
	InstancePending    InstanceStatus = "PENDING"
	InstanceApproved   InstanceStatus = "APPROVED"
	InstanceRejected   InstanceStatus = "REJECTED"
	InstanceWithdrawn  InstanceStatus = "WITHDRAWN"
	InstanceTerminated InstanceStatus = "TERMINATED"
)

// Valid reports whether s is a known instance status.
func (s InstanceStatus) Valid() bool {
	switch s {
	case InstanceDraft, InstancePending, InstanceApproved, InstanceRejected, InstanceWithdrawn, InstanceTerminated:
		return true
	}
	return false
}

// Terminal reports whether no further task can act on the instance.
func (s InstanceStatus) Terminal() bool {
	switch s {
	case InstanceApproved, InstanceRejected, InstanceWithdrawn, InstanceTerminated:
		return true
	}
	return false
}

// TaskStatus is the state of a single approval task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskCompleted TaskStatus = "COMPLETED"
)

// TaskAction is the decision recorded on a completed task.
type TaskAction string

const (
	ActionApprove TaskAction = "APPROVE"
	ActionReject  TaskAction = "REJECT"
)

// ApprovalInstance is one submitted approval request and its tasks.
type ApprovalInstance struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	Title         string         `gorm:"size:200" json:"title"`
	BusinessType  string         `gorm:"size:64;index" json:"business_type,omitempty"`
	BusinessID    string         `gorm:"size:64" json:"business_id,omitempty"`
	Status        InstanceStatus `gorm:"size:16;index" json:"status"`
	Initiator     string         `gorm:"size:36;index" json:"initiator"`
	InitiatorName string         `gorm:"size:64" json:"initiator_name"`
	CurrentNodeID string         `gorm:"size:64" json:"current_node_id,omitempty"`
	Version       int            `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Tasks         []ApprovalTask `gorm:"foreignKey:InstanceID" json:"tasks"`
}

// ApprovalTask is one approver's step on an instance.
type ApprovalTask struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	InstanceID       string     `gorm:"size:36;index" json:"instance_id"`
	Seq              int        `json:"seq"`
	NodeID           string     `gorm:"size:64" json:"node_id"`
	NodeName         string     `gorm:"size:100" json:"node_name"`
	Status           TaskStatus `gorm:"size:16;index" json:"status"`
	Action           TaskAction `gorm:"size:16" json:"action,omitempty"`
	Assignee         string     `gorm:"size:36;index" json:"assignee"`
	AssigneeName     string     `gorm:"size:64" json:"assignee_name"`
	DelegateFrom     string     `gorm:"size:36" json:"delegate_from,omitempty"`
	DelegateFromName string     `gorm:"size:64" json:"delegate_from_name,omitempty"`
	Comment          string     `gorm:"type:text" json:"comment,omitempty"`
	Attachments      []string   `gorm:"serializer:json" json:"attachments,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime:false" json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// CurrentTask returns the pending task sitting on CurrentNodeID, if any.
func (in *ApprovalInstance) CurrentTask() (*ApprovalTask, bool) {
	for i := range in.Tasks {
		t := &in.Tasks[i]
		if t.Status == TaskPending && t.NodeID == in.CurrentNodeID {
			return t, true
		}
	}
	return nil, false
}

// Clone returns a copy whose task slice does not alias the receiver's.
func (in ApprovalInstance) Clone() ApprovalInstance {
	out := in
	out.Tasks = make([]ApprovalTask, len(in.Tasks))
	for i, t := range in.Tasks {
		t.Attachments = append([]string(nil), t.Attachments...)
		out.Tasks[i] = t
	}
	return out
}

// PendingTask is a task awaiting its assignee, with enough of the instance
// header to render an inbox row.
type PendingTask struct {
	ApprovalTask
	InstanceTitle string `json:"instance_title"`
	InitiatorName string `json:"initiator_name"`
	BusinessType  string `json:"business_type,omitempty"`
}
