package models

import "time"

// SubmissionStatus captures the workflow states of a marriage submission.
type SubmissionStatus string

const (
	StatusDraft               SubmissionStatus = "DRAFT"
	StatusSubmitted           SubmissionStatus = "SUBMITTED"
	StatusProcessing          SubmissionStatus = "PROCESSING"
	StatusNeedsRevision       SubmissionStatus = "NEEDS_REVISION"
	StatusPendingVerification SubmissionStatus = "PENDING_VERIFICATION"
	StatusApproved            SubmissionStatus = "APPROVED"
	StatusRejected            SubmissionStatus = "REJECTED"
)

// Terminal reports whether no further transition may leave the status.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Submission is one marriage-registration case moving through the pipeline.
// Status and CurrentAssigneeID are mutated only via the workflow service;
// CurrentAssigneeID doubles as the exclusive-claim lock discriminator.
type Submission struct {
	ID                string           `db:"id" json:"id"`
	TicketNumber      int64            `db:"ticket_number" json:"ticket_number"`
	Status            SubmissionStatus `db:"status" json:"status"`
	CurrentAssigneeID *string          `db:"current_assignee_id" json:"current_assignee_id,omitempty"`
	AssigneeName      *string          `db:"assignee_name" json:"assignee_name,omitempty"`
	CreatedBy         string           `db:"created_by" json:"created_by"`
	CreatorName       string           `db:"creator_name" json:"creator_name"`
	Kecamatan         *string          `db:"kecamatan" json:"kecamatan,omitempty"`
	GroomName         string           `db:"groom_name" json:"groom_name"`
	BrideName         string           `db:"bride_name" json:"bride_name"`
	MarriageDate      time.Time        `db:"marriage_date" json:"marriage_date"`
	MarriageLocation  string           `db:"marriage_location" json:"marriage_location"`
	ContactPhone      *string          `db:"contact_phone" json:"contact_phone,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// SubmissionFilter constrains queue and history listings.
type SubmissionFilter struct {
	Statuses    []SubmissionStatus
	Unassigned  bool
	AssigneeID  string
	CreatedBy   string
	NonTerminal bool
	Page        int
	PageSize    int
}
