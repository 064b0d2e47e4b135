package model

import "time"

type Stage string

const (
	StageDiscovery   Stage = "DISCOVERY"
	StageQualified   Stage = "QUALIFIED"
	StageProposal    Stage = "PROPOSAL"
	StageNegotiation Stage = "NEGOTIATION"
	StageWon         Stage = "WON"
	StageLost        Stage = "LOST"
)

// Closed reports whether the opportunity left the pipeline.
func (s Stage) Closed() bool {
	return s == StageWon || s == StageLost
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Opportunity is a sales deal tracked through the pipeline.
type Opportunity struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	Name              string     `gorm:"size:100" json:"name"`
	Customer          string     `gorm:"size:100;index" json:"customer"`
	Owner             string     `gorm:"size:64;index" json:"owner,omitempty"`
	Stage             Stage      `gorm:"size:16;index" json:"stage"`
	Priority          Priority   `gorm:"size:16" json:"priority,omitempty"`
	ExpectedAmount    float64    `json:"expected_amount"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`
	Source            string     `gorm:"size:32" json:"source,omitempty"`
	Type              string     `gorm:"size:32" json:"type,omitempty"`
	Description       string     `gorm:"type:text" json:"description,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
