package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kua-dukcapil/workflow-api/internal/dto"
	"github.com/kua-dukcapil/workflow-api/internal/models"
	"github.com/kua-dukcapil/workflow-api/internal/repository"
	"github.com/kua-dukcapil/workflow-api/internal/workflow"
	appErrors "github.com/kua-dukcapil/workflow-api/pkg/errors"
)

// submissionStoreStub mimics the guarded-update semantics of the real
// repository: a transition lands only when the expected status and the
// claim predicate still hold.
type submissionStoreStub struct {
	submissions map[string]*models.Submission
	logs        []repository.TransitionParams
}

func newSubmissionStoreStub() *submissionStoreStub {
	return &submissionStoreStub{submissions: make(map[string]*models.Submission)}
}

func (s *submissionStoreStub) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = "sub-new"
	}
	submission.TicketNumber = int64(len(s.submissions) + 1)
	now := time.Now().UTC()
	submission.CreatedAt = now
	submission.UpdatedAt = now
	s.submissions[submission.ID] = submission
	return nil
}

func (s *submissionStoreStub) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	if submission, ok := s.submissions[id]; ok {
		copy := *submission
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *submissionStoreStub) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	return nil, 0, nil
}

func (s *submissionStoreStub) Count(ctx context.Context, filter models.SubmissionFilter) (int, error) {
	return 0, nil
}

func (s *submissionStoreStub) ApplyTransition(ctx context.Context, params repository.TransitionParams) error {
	submission, ok := s.submissions[params.SubmissionID]
	if !ok || submission.Status != params.ExpectedStatus {
		return sql.ErrNoRows
	}
	if params.GuardUnclaimedOrOwn &&
		submission.CurrentAssigneeID != nil && *submission.CurrentAssigneeID != params.ActorID {
		return sql.ErrNoRows
	}
	if params.GuardHeldByActor &&
		(submission.CurrentAssigneeID == nil || *submission.CurrentAssigneeID != params.ActorID) {
		return sql.ErrNoRows
	}
	submission.Status = params.NewStatus
	if params.SetMarriageDate {
		submission.MarriageDate = params.MarriageDate
	}
	if params.SetAssignee {
		submission.CurrentAssigneeID = params.AssigneeID
		submission.AssigneeName = nil
		if params.AssigneeID != nil {
			name := "Petugas " + *params.AssigneeID
			submission.AssigneeName = &name
		}
	}
	submission.UpdatedAt = time.Now().UTC()
	s.logs = append(s.logs, params)
	return nil
}

type cacheStub struct {
	patterns []string
}

func (c *cacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	c.patterns = append(c.patterns, pattern)
	return nil
}

type metricsStub struct {
	transitions int
	conflicts   int
}

func (m *metricsStub) ObserveTransition(from, to models.SubmissionStatus) { m.transitions++ }
func (m *metricsStub) ObserveClaimConflict()                              { m.conflicts++ }

func seedSubmission(store *submissionStoreStub, status models.SubmissionStatus, assignee *string) *models.Submission {
	submission := &models.Submission{
		ID:                "sub-1",
		TicketNumber:      1,
		Status:            status,
		CurrentAssigneeID: assignee,
		CreatedBy:         "kua-1",
		GroomName:         "Ahmad",
		BrideName:         "Siti",
		MarriageDate:      time.Now().UTC().AddDate(0, 0, 7),
		MarriageLocation:  "Masjid Raya",
		CreatedAt:         time.Now().UTC().Add(-time.Hour),
		UpdatedAt:         time.Now().UTC().Add(-time.Hour),
	}
	if assignee != nil {
		name := "Petugas " + *assignee
		submission.AssigneeName = &name
	}
	store.submissions[submission.ID] = submission
	return submission
}

func newWorkflowService(store *submissionStoreStub) (*WorkflowService, *cacheStub, *metricsStub) {
	cache := &cacheStub{}
	metrics := &metricsStub{}
	claims := NewClaimManager(store, cache, metrics, nil)
	return NewWorkflowService(store, claims, cache, metrics, nil, 0), cache, metrics
}

func TestClaimMovesSubmittedIntoProcessing(t *testing.T) {
	store := newSubmissionStoreStub()
	seedSubmission(store, models.StatusSubmitted, nil)
	svc, cache, metrics := newWorkflowService(store)

	actor := workflow.Actor{ID: "op-1", Role: models.RoleOperator}
	result, err := svc.ClaimForProcessing(context.Background(), "sub-1", actor)
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, result.Status)
	require.NotNil(t, result.CurrentAssigneeID)
	require.Equal(t, "op-1", *result.CurrentAssigneeID)

	require.Len(t, store.logs, 1)
	require.Equal(t, models.StatusSubmitted, store.logs[0].ExpectedStatus)
	require.Equal(t, models.StatusProcessing, store.logs[0].NewStatus)
	require.Equal(t, 1, metrics.transitions)
	require.NotEmpty(t, cache.patterns)
}

func TestClaimLostRaceReportsHolder(t *testing.T) {
	store := newSubmissionStoreStub()
	holder := "op-1"
	seedSubmission(store, models.StatusProcessing, &holder)
	svc, _, metrics := newWorkflowService(store)

	actor := workflow.Actor{ID: "op-2", Role: models.RoleOperator}
	_, err := svc.ClaimForProcessing(context.Background(), "sub-1", actor)
	require.True(t, appErrors.Is(err, appErrors.ErrAlreadyClaimed))
	require.Contains(t, err.Error(), "Petugas op-1")
	require.Equal(t, 1, metrics.conflicts)
	require.Empty(t, store.logs)
}

// staleReadStore serves one stale snapshot before delegating, recreating
// the window between the pre-flight read and the guarded update.
type staleReadStore struct {
	*submissionStoreStub
	stale *models.Submission
	used  bool
}

func (s *staleReadStore) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	if !s.used {
		s.used = true
		copy := *s.stale
		return &copy, nil
	}
	return s.submissionStoreStub.GetByID(ctx, id)
}

func TestClaimRaceLoserClassifiedAfterGuardedUpdate(t *testing.T) {
	store := newSubmissionStoreStub()
	holder := "op-1"
	seedSubmission(store, models.StatusProcessing, &holder)
	stale := &models.Submission{ID: "sub-1", Status: models.StatusSubmitted, CreatedBy: "kua-1"}
	racy := &staleReadStore{submissionStoreStub: store, stale: stale}

	cache := &cacheStub{}
	metrics := &metricsStub{}
	claims := NewClaimManager(racy, cache, metrics, nil)
	svc := NewWorkflowService(racy, claims, cache, metrics, nil, 0)

	actor := workflow.Actor{ID: "op-2", Role: models.RoleOperator}
	_, err := svc.ClaimForProcessing(context.Background(), "sub-1", actor)
	require.True(t, appErrors.Is(err, appErrors.ErrAlreadyClaimed))
	require.Equal(t, 1, metrics.conflicts)
	require.Equal(t, "op-1", *store.submissions["sub-1"].CurrentAssigneeID)
	require.Empty(t, store.logs)
}

func TestClaimOnDecidedSubmissionIsIllegal(t *testing.T) {
	store := newSubmissionStoreStub()
	holder := "ver-1"
	seedSubmission(store, models.StatusRejected, &holder)
	svc, _, metrics := newWorkflowService(store)

	actor := workflow.Actor{ID: "op-9", Role: models.RoleOperator}
	_, err := svc.ClaimForProcessing(context.Background(), "sub-1", actor)
	require.True(t, appErrors.Is(err, appErrors.ErrIllegalTransition))
	require.False(t, appErrors.Is(err, appErrors.ErrAlreadyClaimed))
	require.Equal(t, 0, metrics.conflicts)
	require.Empty(t, store.logs)
	require.Equal(t, models.StatusRejected, store.submissions["sub-1"].Status)
}

func TestClaimRaceLostToDecisionIsIllegal(t *testing.T) {
	store := newSubmissionStoreStub()
	holder := "ver-1"
	seedSubmission(store, models.StatusRejected, &holder)
	stale := &models.Submission{ID: "sub-1", Status: models.StatusPendingVerification, CreatedBy: "kua-1"}
	racy := &staleReadStore{submissionStoreStub: store, stale: stale}

	cache := &cacheStub{}
	metrics := &metricsStub{}
	claims := NewClaimManager(racy, cache, metrics, nil)
	svc := NewWorkflowService(racy, claims, cache, metrics, nil, 0)

	actor := workflow.Actor{ID: "ver-2", Role: models.RoleVerifier}
	_, err := svc.ClaimForProcessing(context.Background(), "sub-1", actor)
	require.True(t, appErrors.Is(err, appErrors.ErrIllegalTransition))
	require.Equal(t, 0, metrics.conflicts)
	require.Empty(t, store.logs)
}

func TestReentrantClaimKeepsStateAndAppendsLedger(t *testing.T) {
	store := newSubmissionStoreStub()
	holder := "ver-1"
	seedSubmission(store, models.StatusPendingVerification, &holder)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "ver-1", Role: models.RoleVerifier}
	result, err := svc.ClaimForProcessing(context.Background(), "sub-1", actor)
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingVerification, result.Status)
	require.Equal(t, "ver-1", *result.CurrentAssigneeID)
	require.Len(t, store.logs, 1)
	require.Contains(t, store.logs[0].Notes, "Klaim ulang")
}

func TestVerifierClaimsPendingVerification(t *testing.T) {
	store := newSubmissionStoreStub()
	seedSubmission(store, models.StatusPendingVerification, nil)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "ver-1", Role: models.RoleVerifier}
	result, err := svc.ClaimForProcessing(context.Background(), "sub-1", actor)
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingVerification, result.Status)
	require.Equal(t, "ver-1", *result.CurrentAssigneeID)
}

func TestOperatorCannotClaimPendingVerification(t *testing.T) {
	store := newSubmissionStoreStub()
	seedSubmission(store, models.StatusPendingVerification, nil)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "op-1", Role: models.RoleOperator}
	_, err := svc.ClaimForProcessing(context.Background(), "sub-1", actor)
	require.True(t, appErrors.Is(err, appErrors.ErrIllegalTransition))
	require.Empty(t, store.logs)
}

func TestSubmitRunsAdmissionAndFailsClosed(t *testing.T) {
	store := newSubmissionStoreStub()
	submission := seedSubmission(store, models.StatusDraft, nil)
	submission.MarriageDate = submission.CreatedAt
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "kua-1", Role: models.RoleKUA}
	_, err := svc.Submit(context.Background(), "sub-1", actor, dto.SubmitRequest{})
	require.True(t, appErrors.Is(err, appErrors.ErrAdmissionViolation))

	stored, getErr := store.GetByID(context.Background(), "sub-1")
	require.NoError(t, getErr)
	require.Equal(t, models.StatusDraft, stored.Status)
	require.Empty(t, store.logs)
}

func TestSubmitAcceptsOneDayLead(t *testing.T) {
	store := newSubmissionStoreStub()
	submission := seedSubmission(store, models.StatusDraft, nil)
	submission.MarriageDate = submission.CreatedAt.AddDate(0, 0, 1)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "kua-1", Role: models.RoleKUA}
	result, err := svc.Submit(context.Background(), "sub-1", actor, dto.SubmitRequest{})
	require.NoError(t, err)
	require.Equal(t, models.StatusSubmitted, result.Status)
	require.Len(t, store.logs, 1)
}

func TestResubmitAfterRevisionRevalidatesAdmission(t *testing.T) {
	store := newSubmissionStoreStub()
	submission := seedSubmission(store, models.StatusNeedsRevision, nil)
	submission.MarriageDate = submission.CreatedAt.AddDate(0, 0, -1)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "kua-1", Role: models.RoleKUA}
	_, err := svc.Submit(context.Background(), "sub-1", actor, dto.SubmitRequest{})
	require.True(t, appErrors.Is(err, appErrors.ErrAdmissionViolation))
	require.Equal(t, models.StatusNeedsRevision, store.submissions["sub-1"].Status)
}

func TestResubmitPersistsCorrectedDate(t *testing.T) {
	store := newSubmissionStoreStub()
	submission := seedSubmission(store, models.StatusNeedsRevision, nil)
	submission.MarriageDate = submission.CreatedAt
	corrected := submission.CreatedAt.AddDate(0, 0, 5)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "kua-1", Role: models.RoleKUA}
	result, err := svc.Submit(context.Background(), "sub-1", actor, dto.SubmitRequest{
		MarriageDate: corrected.Format("2006-01-02"),
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusSubmitted, result.Status)

	require.Len(t, store.logs, 1)
	require.True(t, store.logs[0].SetMarriageDate)
	require.Equal(t, corrected.Format("2006-01-02"), result.MarriageDate.Format("2006-01-02"))
	require.Equal(t, corrected.Format("2006-01-02"),
		store.submissions["sub-1"].MarriageDate.Format("2006-01-02"))
}

func TestSubmitWithoutOverrideLeavesStoredDate(t *testing.T) {
	store := newSubmissionStoreStub()
	submission := seedSubmission(store, models.StatusDraft, nil)
	submission.MarriageDate = submission.CreatedAt.AddDate(0, 0, 7)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "kua-1", Role: models.RoleKUA}
	_, err := svc.Submit(context.Background(), "sub-1", actor, dto.SubmitRequest{})
	require.NoError(t, err)
	require.Len(t, store.logs, 1)
	require.False(t, store.logs[0].SetMarriageDate)
}

func TestSubmitRejectsForeignCreator(t *testing.T) {
	store := newSubmissionStoreStub()
	seedSubmission(store, models.StatusDraft, nil)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "kua-2", Role: models.RoleKUA}
	_, err := svc.Submit(context.Background(), "sub-1", actor, dto.SubmitRequest{})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestReturnRequiresNonEmptyReason(t *testing.T) {
	store := newSubmissionStoreStub()
	holder := "op-1"
	seedSubmission(store, models.StatusProcessing, &holder)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "op-1", Role: models.RoleOperator}
	_, err := svc.ReturnToOrigin(context.Background(), "sub-1", actor, "   ")
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.Equal(t, models.StatusProcessing, store.submissions["sub-1"].Status)
	require.Empty(t, store.logs)
}

func TestReturnReleasesClaimAndRecordsReason(t *testing.T) {
	store := newSubmissionStoreStub()
	holder := "op-1"
	seedSubmission(store, models.StatusProcessing, &holder)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "op-1", Role: models.RoleOperator}
	result, err := svc.ReturnToOrigin(context.Background(), "sub-1", actor, "dokumen KTP buram")
	require.NoError(t, err)
	require.Equal(t, models.StatusNeedsRevision, result.Status)
	require.Nil(t, result.CurrentAssigneeID)
	require.Len(t, store.logs, 1)
	require.Contains(t, store.logs[0].Notes, "dokumen KTP buram")
}

func TestSendToVerificationUsesDefaultNotes(t *testing.T) {
	store := newSubmissionStoreStub()
	holder := "op-1"
	seedSubmission(store, models.StatusProcessing, &holder)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "op-1", Role: models.RoleOperator}
	result, err := svc.SendToVerification(context.Background(), "sub-1", actor, "")
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingVerification, result.Status)
	require.Nil(t, result.CurrentAssigneeID)
	require.Len(t, store.logs, 1)
	require.Equal(t, "Dikirim ke verifikator untuk approval", store.logs[0].Notes)
}

func TestSendToVerificationRejectsNonHolder(t *testing.T) {
	store := newSubmissionStoreStub()
	holder := "op-1"
	seedSubmission(store, models.StatusProcessing, &holder)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "op-2", Role: models.RoleOperator}
	_, err := svc.SendToVerification(context.Background(), "sub-1", actor, "")
	require.True(t, appErrors.Is(err, appErrors.ErrNotAssignee))
	require.Empty(t, store.logs)
}

func TestDecideApproveRetainsAssignee(t *testing.T) {
	store := newSubmissionStoreStub()
	holder := "ver-1"
	seedSubmission(store, models.StatusPendingVerification, &holder)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "ver-1", Role: models.RoleVerifier}
	result, err := svc.Decide(context.Background(), "sub-1", actor, models.StatusApproved, "")
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, result.Status)
	require.NotNil(t, result.CurrentAssigneeID)
	require.Equal(t, "ver-1", *result.CurrentAssigneeID)
	require.Equal(t, "Pengajuan disetujui", store.logs[0].Notes)
}

func TestDecideRejectRequiresNotes(t *testing.T) {
	store := newSubmissionStoreStub()
	holder := "ver-1"
	seedSubmission(store, models.StatusPendingVerification, &holder)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "ver-1", Role: models.RoleVerifier}
	_, err := svc.Decide(context.Background(), "sub-1", actor, models.StatusRejected, " ")
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.Empty(t, store.logs)
}

func TestDecideWithoutClaimRejected(t *testing.T) {
	store := newSubmissionStoreStub()
	seedSubmission(store, models.StatusPendingVerification, nil)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "ver-1", Role: models.RoleVerifier}
	_, err := svc.Decide(context.Background(), "sub-1", actor, models.StatusApproved, "")
	require.True(t, appErrors.Is(err, appErrors.ErrNotAssignee))
	require.Empty(t, store.logs)
}

func TestFormerHolderCannotDecideAfterHandOff(t *testing.T) {
	store := newSubmissionStoreStub()
	holder := "ver-1"
	seedSubmission(store, models.StatusPendingVerification, &holder)
	svc, _, _ := newWorkflowService(store)

	former := workflow.Actor{ID: "op-1", Role: models.RoleOperator}
	_, err := svc.Decide(context.Background(), "sub-1", former, models.StatusApproved, "")
	require.True(t, appErrors.Is(err, appErrors.ErrNotAssignee))
	require.Empty(t, store.logs)
}

func TestOperatorCannotDecide(t *testing.T) {
	store := newSubmissionStoreStub()
	holder := "op-1"
	seedSubmission(store, models.StatusProcessing, &holder)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "op-1", Role: models.RoleOperator}
	_, err := svc.Decide(context.Background(), "sub-1", actor, models.StatusApproved, "")
	require.True(t, appErrors.Is(err, appErrors.ErrIllegalTransition))
}

func TestVerifierDecidesDirectlyFromProcessing(t *testing.T) {
	store := newSubmissionStoreStub()
	holder := "ver-1"
	seedSubmission(store, models.StatusProcessing, &holder)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "ver-1", Role: models.RoleVerifier}
	result, err := svc.Decide(context.Background(), "sub-1", actor, models.StatusRejected, "data ganda")
	require.NoError(t, err)
	require.Equal(t, models.StatusRejected, result.Status)
}

func TestTerminalStatusAcceptsNoTransition(t *testing.T) {
	store := newSubmissionStoreStub()
	holder := "ver-1"
	seedSubmission(store, models.StatusApproved, &holder)
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "ver-1", Role: models.RoleVerifier}
	_, err := svc.Decide(context.Background(), "sub-1", actor, models.StatusRejected, "salah klik")
	require.True(t, appErrors.Is(err, appErrors.ErrIllegalTransition))
	require.Equal(t, models.StatusApproved, store.submissions["sub-1"].Status)
}

func TestCreateDraftAssignsTicketNumber(t *testing.T) {
	store := newSubmissionStoreStub()
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "kua-1", Role: models.RoleKUA}
	result, err := svc.CreateDraft(context.Background(), actor, dto.CreateSubmissionRequest{
		GroomName:        "Ahmad",
		BrideName:        "Siti",
		MarriageDate:     time.Now().AddDate(0, 0, 7).Format("2006-01-02"),
		MarriageLocation: "Masjid Raya",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusDraft, result.Status)
	require.Equal(t, int64(1), result.TicketNumber)
	require.Equal(t, "kua-1", result.CreatedBy)
}

func TestCreateDraftRejectsNonKUA(t *testing.T) {
	store := newSubmissionStoreStub()
	svc, _, _ := newWorkflowService(store)

	actor := workflow.Actor{ID: "op-1", Role: models.RoleOperator}
	_, err := svc.CreateDraft(context.Background(), actor, dto.CreateSubmissionRequest{})
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
