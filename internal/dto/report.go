package dto

import "time"

// PerformanceReport aggregates an actor's throughput. All numbers are
// derived from submissions and the status ledger; nothing is stored.
type PerformanceReport struct {
	ActorID string `json:"actor_id"`
	Period  string `json:"period"`

	// Period totals from the ledger.
	TotalProcessed     int `json:"total_processed"`
	SentToVerification int `json:"sent_to_verification,omitempty"`
	ReturnedToKUA      int `json:"returned_to_kua,omitempty"`
	Approved           int `json:"approved,omitempty"`
	Rejected           int `json:"rejected,omitempty"`

	// Realtime dashboard cards.
	Queue          int `json:"queue"`
	Processing     int `json:"processing"`
	CompletedToday int `json:"completed_today"`

	GeneratedAt time.Time `json:"generated_at"`
}
