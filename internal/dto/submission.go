package dto

import (
	"time"

	"github.com/kua-dukcapil/workflow-api/internal/models"
)

// CreateSubmissionRequest is the KUA origination payload.
type CreateSubmissionRequest struct {
	GroomName        string  `json:"groom_name" binding:"required"`
	BrideName        string  `json:"bride_name" binding:"required"`
	MarriageDate     string  `json:"marriage_date" binding:"required"` // YYYY-MM-DD
	MarriageLocation string  `json:"marriage_location" binding:"required"`
	ContactPhone     *string `json:"contact_phone"`
}

// SubmitRequest optionally overrides the event date at submission time.
type SubmitRequest struct {
	MarriageDate string `json:"marriage_date"` // YYYY-MM-DD, optional
}

// ReturnRequest carries the mandatory revision reason.
type ReturnRequest struct {
	Reason string `json:"reason"`
}

// SendVerificationRequest carries optional hand-off notes.
type SendVerificationRequest struct {
	Notes string `json:"notes"`
}

// DecisionRequest carries verifier decision notes.
type DecisionRequest struct {
	Notes string `json:"notes"`
}

// SubmissionDetail combines a submission with its recent ledger trail.
type SubmissionDetail struct {
	Submission *models.Submission `json:"submission"`
	Logs       []models.StatusLog `json:"logs"`
}

// ParseDate parses the YYYY-MM-DD wire format used by the frontend.
func ParseDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", raw)
}
