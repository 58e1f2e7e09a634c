package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kua-dukcapil/workflow-api/internal/models"
)

const submissionColumns = `s.id, s.ticket_number, s.status, s.current_assignee_id,
       a.full_name AS assignee_name,
       s.created_by, c.full_name AS creator_name, c.kecamatan,
       s.groom_name, s.bride_name, s.marriage_date, s.marriage_location, s.contact_phone,
       s.created_at, s.updated_at`

const submissionJoins = ` FROM submissions s
       JOIN users c ON c.id = s.created_by
       LEFT JOIN users a ON a.id = s.current_assignee_id`

// SubmissionRepository persists marriage submissions and applies workflow
// transitions atomically together with their ledger entries.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a new draft submission. The ticket number is assigned by
// the database sequence.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.Status == "" {
		submission.Status = models.StatusDraft
	}
	now := time.Now().UTC()
	submission.CreatedAt = now
	submission.UpdatedAt = now

	const query = `INSERT INTO submissions
		(id, status, created_by, groom_name, bride_name, marriage_date, marriage_location, contact_phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ticket_number`
	if err := r.db.QueryRowxContext(ctx, query,
		submission.ID, submission.Status, submission.CreatedBy,
		submission.GroomName, submission.BrideName,
		submission.MarriageDate, submission.MarriageLocation, submission.ContactPhone,
		submission.CreatedAt, submission.UpdatedAt,
	).Scan(&submission.TicketNumber); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// GetByID fetches a submission including creator and assignee names.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + submissionJoins + ` WHERE s.id = $1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// List returns submissions matching the filter in strict FIFO order
// (created_at ascending, ties broken by id) with a total count.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("s.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Unassigned {
		conditions = append(conditions, "s.current_assignee_id IS NULL")
	}
	if filter.AssigneeID != "" {
		args = append(args, filter.AssigneeID)
		conditions = append(conditions, fmt.Sprintf("s.current_assignee_id = $%d", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("s.created_by = $%d", len(args)))
	}
	if filter.NonTerminal {
		conditions = append(conditions, fmt.Sprintf("s.status NOT IN ('%s', '%s')",
			models.StatusApproved, models.StatusRejected))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*)` + submissionJoins + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	query := `SELECT ` + submissionColumns + submissionJoins + where +
		fmt.Sprintf(" ORDER BY s.created_at ASC, s.id ASC LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)

	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, total, nil
}

// Count returns the number of submissions matching the filter.
func (r *SubmissionRepository) Count(ctx context.Context, filter models.SubmissionFilter) (int, error) {
	filter.Page = 0
	filter.PageSize = 0
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Unassigned {
		conditions = append(conditions, "current_assignee_id IS NULL")
	}
	if filter.AssigneeID != "" {
		args = append(args, filter.AssigneeID)
		conditions = append(conditions, fmt.Sprintf("current_assignee_id = $%d", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}

	query := `SELECT COUNT(*) FROM submissions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return total, nil
}

// TransitionParams groups the guarded status/claim update for one workflow
// operation. The update and its ledger entry commit together or not at all.
type TransitionParams struct {
	SubmissionID   string
	ExpectedStatus models.SubmissionStatus
	NewStatus      models.SubmissionStatus
	ActorID        string
	Notes          string

	// SetAssignee writes the assignee column: AssigneeID nil clears the
	// claim, non-nil sets it. When false the column is left untouched.
	SetAssignee bool
	AssigneeID  *string

	// SetMarriageDate writes a corrected wedding date in the same
	// transaction as the status change (resubmission after revision).
	SetMarriageDate bool
	MarriageDate    time.Time

	// GuardUnclaimedOrOwn admits the update only while the row is
	// unclaimed or already held by the actor (claim acquisition).
	GuardUnclaimedOrOwn bool
	// GuardHeldByActor admits the update only while the actor holds the
	// claim (release and terminal decisions).
	GuardHeldByActor bool
}

// ApplyTransition performs the read-modify-write for one transition: a
// status/assignee UPDATE guarded by the expected status and claim
// predicate, plus exactly one status_logs INSERT, in a single
// transaction. Zero rows affected means another actor won the race or the
// row moved on; the caller reloads the row to classify the conflict.
// Returns sql.ErrNoRows in that case.
func (r *SubmissionRepository) ApplyTransition(ctx context.Context, params TransitionParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()

	setParts := []string{"status = $1", "updated_at = $2"}
	args := []interface{}{params.NewStatus, now}
	if params.SetAssignee {
		args = append(args, params.AssigneeID)
		setParts = append(setParts, fmt.Sprintf("current_assignee_id = $%d", len(args)))
	}
	if params.SetMarriageDate {
		args = append(args, params.MarriageDate)
		setParts = append(setParts, fmt.Sprintf("marriage_date = $%d", len(args)))
	}

	args = append(args, params.SubmissionID)
	idPos := len(args)
	args = append(args, params.ExpectedStatus)
	statusPos := len(args)

	conditions := []string{
		fmt.Sprintf("id = $%d", idPos),
		fmt.Sprintf("status = $%d", statusPos),
	}
	if params.GuardUnclaimedOrOwn {
		args = append(args, params.ActorID)
		conditions = append(conditions, fmt.Sprintf("(current_assignee_id IS NULL OR current_assignee_id = $%d)", len(args)))
	}
	if params.GuardHeldByActor {
		args = append(args, params.ActorID)
		conditions = append(conditions, fmt.Sprintf("current_assignee_id = $%d", len(args)))
	}

	query := fmt.Sprintf("UPDATE submissions SET %s WHERE %s",
		strings.Join(setParts, ", "), strings.Join(conditions, " AND "))

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	const logQuery = `INSERT INTO status_logs
		(id, submission_id, actor_id, previous_status, new_status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, logQuery,
		uuid.NewString(), params.SubmissionID, params.ActorID,
		params.ExpectedStatus, params.NewStatus, params.Notes, now,
	); err != nil {
		return fmt.Errorf("append status log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}
