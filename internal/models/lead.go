package models

import (
	"time"

	"roofcrm/internal/workflow"
)

// Leads is a roofing lead. Status and SubStatus are written only by the status
// transition service; generic updates ignore them.
type Leads struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Address     string             `json:"address"`
	OwnerID     int                `json:"owner_id"`
	Status      workflow.Status    `json:"status"`
	SubStatus   workflow.SubStatus `json:"sub_status"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Stage returns the lead's (status, sub-status) pair.
func (l *Leads) Stage() workflow.Stage {
	return workflow.Stage{Status: l.Status, SubStatus: l.SubStatus}
}

// LeadFilter narrows lead listings for reports.
type LeadFilter struct {
	Status    workflow.Status
	SubStatus workflow.SubStatus
	OwnerID   int
	SortBy    string
	Order     string
	Limit     int
	Offset    int
}
