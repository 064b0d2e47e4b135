package model

import "time"

// AuditEntry captures a mutation performed through the API.
type AuditEntry struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Actor     string    `gorm:"size:64" json:"actor"`
	Action    string    `gorm:"size:32;index" json:"action"`
	Target    string    `gorm:"size:64;index" json:"target"`
	Detail    string    `gorm:"type:text" json:"detail,omitempty"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
}

// Event is pushed to connected users over the websocket hub.
type Event struct {
	Type       string    `json:"type"` // task_assigned / urge / instance_approved / ...
	InstanceID string    `json:"instance_id,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	Title      string    `json:"title,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}
