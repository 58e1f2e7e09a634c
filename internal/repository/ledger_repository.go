package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/kua-dukcapil/workflow-api/internal/models"
)

// LedgerRepository reads the append-only status_logs ledger. Writes happen
// exclusively inside SubmissionRepository.ApplyTransition so that a
// transition and its audit entry commit together.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const ledgerColumns = `l.id, l.submission_id, l.actor_id, u.full_name AS actor_name,
       l.previous_status, l.new_status, l.notes, l.created_at`

// ListBySubmission returns the most recent entries for a submission,
// newest first.
func (r *LedgerRepository) ListBySubmission(ctx context.Context, submissionID string, limit int) ([]models.StatusLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	query := `SELECT ` + ledgerColumns + `
		FROM status_logs l
		JOIN users u ON u.id = l.actor_id
		WHERE l.submission_id = $1
		ORDER BY l.created_at DESC
		LIMIT ` + fmt.Sprintf("%d", limit)

	var logs []models.StatusLog
	if err := r.db.SelectContext(ctx, &logs, query, submissionID); err != nil {
		return nil, fmt.Errorf("list status logs: %w", err)
	}
	return logs, nil
}

// ListByActor returns ledger entries written by an actor, newest first,
// optionally restricted to target statuses and a time window.
func (r *LedgerRepository) ListByActor(ctx context.Context, filter models.LedgerFilter) ([]models.StatusLog, error) {
	query, args := r.buildActorQuery(`SELECT `+ledgerColumns, filter)

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY l.created_at DESC LIMIT %d", limit)

	var logs []models.StatusLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("list actor logs: %w", err)
	}
	return logs, nil
}

// CountByActor counts matching ledger entries for performance reporting.
func (r *LedgerRepository) CountByActor(ctx context.Context, filter models.LedgerFilter) (int, error) {
	query, args := r.buildActorQuery(`SELECT COUNT(*)`, filter)

	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count actor logs: %w", err)
	}
	return total, nil
}

func (r *LedgerRepository) buildActorQuery(head string, filter models.LedgerFilter) (string, []interface{}) {
	builder := strings.Builder{}
	builder.WriteString(head)
	builder.WriteString(` FROM status_logs l JOIN users u ON u.id = l.actor_id`)

	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)

	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		conditions = append(conditions, fmt.Sprintf("l.actor_id = $%d", len(args)))
	}
	if filter.SubmissionID != "" {
		args = append(args, filter.SubmissionID)
		conditions = append(conditions, fmt.Sprintf("l.submission_id = $%d", len(args)))
	}
	if len(filter.NewStatuses) > 0 {
		placeholders := make([]string, len(filter.NewStatuses))
		for i, status := range filter.NewStatuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("l.new_status IN (%s)", strings.Join(placeholders, ",")))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conditions = append(conditions, fmt.Sprintf("l.created_at >= $%d", len(args)))
	}

	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	return builder.String(), args
}
