package models

import "time"

// StatusLog is one immutable ledger entry recording a workflow transition.
// Rows are append-only; nothing updates or deletes them.
type StatusLog struct {
	ID             string           `db:"id" json:"id"`
	SubmissionID   string           `db:"submission_id" json:"submission_id"`
	ActorID        string           `db:"actor_id" json:"actor_id"`
	ActorName      string           `db:"actor_name" json:"actor_name,omitempty"`
	PreviousStatus SubmissionStatus `db:"previous_status" json:"previous_status"`
	NewStatus      SubmissionStatus `db:"new_status" json:"new_status"`
	Notes          string           `db:"notes" json:"notes"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// LedgerFilter constrains ledger reads for reporting.
type LedgerFilter struct {
	SubmissionID string
	ActorID      string
	NewStatuses  []SubmissionStatus
	Since        time.Time
	Limit        int
}
