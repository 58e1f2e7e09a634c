package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/kua-dukcapil/workflow-api/internal/models"
)

func newSubmissionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func submissionRows(id string, status models.SubmissionStatus, assignee *string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "ticket_number", "status", "current_assignee_id", "assignee_name",
		"created_by", "creator_name", "kecamatan",
		"groom_name", "bride_name", "marriage_date", "marriage_location", "contact_phone",
		"created_at", "updated_at",
	})
	var assigneeName *string
	if assignee != nil {
		name := "Petugas " + *assignee
		assigneeName = &name
	}
	rows.AddRow(id, int64(42), status, assignee, assigneeName,
		"kua-1", "KUA Gambir", "Gambir",
		"Ahmad", "Siti", time.Now().AddDate(0, 0, 7), "Masjid Raya", nil,
		time.Now(), time.Now())
	return rows
}

func TestSubmissionRepositoryCreateAssignsTicket(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO submissions")).
		WillReturnRows(sqlmock.NewRows([]string{"ticket_number"}).AddRow(int64(42)))

	submission := &models.Submission{
		CreatedBy:        "kua-1",
		GroomName:        "Ahmad",
		BrideName:        "Siti",
		MarriageDate:     time.Now().AddDate(0, 0, 7),
		MarriageLocation: "Masjid Raya",
	}
	require.NoError(t, repo.Create(context.Background(), submission))
	require.NotEmpty(t, submission.ID)
	require.Equal(t, models.StatusDraft, submission.Status)
	require.Equal(t, int64(42), submission.TicketNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT s.id, s.ticket_number")).
		WithArgs("sub-1").
		WillReturnRows(submissionRows("sub-1", models.StatusSubmitted, nil))

	found, err := repo.GetByID(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Equal(t, "sub-1", found.ID)
	require.Equal(t, models.StatusSubmitted, found.Status)
	require.Nil(t, found.CurrentAssigneeID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListOrdersFIFO(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("SUBMITTED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY s.created_at ASC, s.id ASC")).
		WithArgs("SUBMITTED").
		WillReturnRows(submissionRows("sub-1", models.StatusSubmitted, nil))

	list, total, err := repo.List(context.Background(), models.SubmissionFilter{
		Statuses:   []models.SubmissionStatus{models.StatusSubmitted},
		Unassigned: true,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, list, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryApplyTransitionCommitsAtomically(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	actor := "op-1"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO status_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.ApplyTransition(context.Background(), TransitionParams{
		SubmissionID:        "sub-1",
		ExpectedStatus:      models.StatusSubmitted,
		NewStatus:           models.StatusProcessing,
		ActorID:             actor,
		Notes:               "Pengajuan diklaim oleh operator",
		SetAssignee:         true,
		AssigneeID:          &actor,
		GuardUnclaimedOrOwn: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryApplyTransitionWritesCorrectedDate(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	corrected := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("marriage_date = $3")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO status_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.ApplyTransition(context.Background(), TransitionParams{
		SubmissionID:    "sub-1",
		ExpectedStatus:  models.StatusNeedsRevision,
		NewStatus:       models.StatusSubmitted,
		ActorID:         "kua-1",
		Notes:           "Pengajuan dikirim ulang setelah perbaikan",
		SetMarriageDate: true,
		MarriageDate:    corrected,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryApplyTransitionRaceLoserRollsBack(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	actor := "op-2"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ApplyTransition(context.Background(), TransitionParams{
		SubmissionID:        "sub-1",
		ExpectedStatus:      models.StatusSubmitted,
		NewStatus:           models.StatusProcessing,
		ActorID:             actor,
		SetAssignee:         true,
		AssigneeID:          &actor,
		GuardUnclaimedOrOwn: true,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryApplyTransitionLogFailureAborts(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	actor := "ver-1"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO status_logs")).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.ApplyTransition(context.Background(), TransitionParams{
		SubmissionID:     "sub-1",
		ExpectedStatus:   models.StatusPendingVerification,
		NewStatus:        models.StatusApproved,
		ActorID:          actor,
		GuardHeldByActor: true,
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
