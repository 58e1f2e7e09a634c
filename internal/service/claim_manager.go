package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kua-dukcapil/workflow-api/internal/models"
	"github.com/kua-dukcapil/workflow-api/internal/repository"
	"github.com/kua-dukcapil/workflow-api/internal/workflow"
	appErrors "github.com/kua-dukcapil/workflow-api/pkg/errors"
)

type submissionStore interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error)
	Count(ctx context.Context, filter models.SubmissionFilter) (int, error)
	ApplyTransition(ctx context.Context, params repository.TransitionParams) error
}

type reportInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

type transitionObserver interface {
	ObserveTransition(from, to models.SubmissionStatus)
	ObserveClaimConflict()
}

// ClaimManager owns the exclusive-claim relation. A claim moves a
// SUBMITTED item into PROCESSING or serializes access to a
// PENDING_VERIFICATION item without advancing it; either way the
// assignee column and the guarded update in the repository make sure at
// most one actor wins a concurrent claim.
type ClaimManager struct {
	repo    submissionStore
	cache   reportInvalidator
	metrics transitionObserver
	logger  *zap.Logger
}

// NewClaimManager constructs the manager.
func NewClaimManager(repo submissionStore, cache reportInvalidator, metrics transitionObserver, logger *zap.Logger) *ClaimManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimManager{repo: repo, cache: cache, metrics: metrics, logger: logger}
}

// Claim acquires the exclusive claim for the actor. Claiming a
// submission the actor already holds is idempotent on state but still
// appends a ledger entry marking the re-entrant claim.
func (m *ClaimManager) Claim(ctx context.Context, submissionID string, actor workflow.Actor) (*models.Submission, error) {
	submission, err := loadSubmission(ctx, m.repo, submissionID)
	if err != nil {
		return nil, err
	}

	// Terminal rows keep their assignee for the audit trail; a claim
	// attempt there is a status error, not a claim conflict.
	if submission.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("pengajuan dengan status %s tidak dapat diklaim", submission.Status))
	}

	if held := submission.CurrentAssigneeID; held != nil && *held != actor.ID {
		if m.metrics != nil {
			m.metrics.ObserveClaimConflict()
		}
		return nil, alreadyClaimedError(submission)
	}

	target, err := workflow.ClaimTarget(submission.Status, actor.Role)
	if err != nil {
		return nil, err
	}

	reentrant := submission.CurrentAssigneeID != nil && *submission.CurrentAssigneeID == actor.ID
	notes := "Pengajuan diklaim untuk diproses"
	if submission.Status == models.StatusPendingVerification {
		notes = "Pengajuan diklaim oleh verifikator"
	}
	if reentrant {
		notes = "Klaim ulang oleh pemegang klaim"
	}

	assignee := actor.ID
	err = m.repo.ApplyTransition(ctx, repository.TransitionParams{
		SubmissionID:        submission.ID,
		ExpectedStatus:      submission.Status,
		NewStatus:           target,
		ActorID:             actor.ID,
		Notes:               notes,
		SetAssignee:         true,
		AssigneeID:          &assignee,
		GuardUnclaimedOrOwn: true,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, m.classifyLostRace(ctx, submissionID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}

	if m.cache != nil {
		if err := m.cache.DeleteByPattern(ctx, reportCachePattern); err != nil {
			m.logger.Warn("failed to invalidate report cache", zap.Error(err))
		}
	}
	if m.metrics != nil {
		m.metrics.ObserveTransition(submission.Status, target)
	}
	m.logger.Info("submission claimed",
		zap.String("submission_id", submission.ID),
		zap.String("actor_id", actor.ID),
		zap.String("status", string(target)),
		zap.Bool("reentrant", reentrant))

	return loadSubmission(ctx, m.repo, submissionID)
}

// classifyLostRace reloads the row after a zero-row guarded update to
// tell a lost claim race apart from a status change. A retained assignee
// on a row that moved to a terminal status is not a live claim.
func (m *ClaimManager) classifyLostRace(ctx context.Context, submissionID string) error {
	submission, err := loadSubmission(ctx, m.repo, submissionID)
	if err != nil {
		return err
	}
	if submission.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("status pengajuan telah berubah menjadi %s", submission.Status))
	}
	if submission.CurrentAssigneeID != nil && workflow.Lockable(submission.Status) {
		if m.metrics != nil {
			m.metrics.ObserveClaimConflict()
		}
		return alreadyClaimedError(submission)
	}
	return appErrors.Clone(appErrors.ErrIllegalTransition,
		fmt.Sprintf("status pengajuan telah berubah menjadi %s", submission.Status))
}

func alreadyClaimedError(submission *models.Submission) error {
	message := "Pengajuan sudah diklaim oleh petugas lain"
	if submission.AssigneeName != nil && *submission.AssigneeName != "" {
		message = fmt.Sprintf("Pengajuan sudah diklaim oleh %s", *submission.AssigneeName)
	}
	return appErrors.Clone(appErrors.ErrAlreadyClaimed, message)
}

func loadSubmission(ctx context.Context, repo submissionStore, id string) (*models.Submission, error) {
	submission, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pengajuan tidak ditemukan")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}
	return submission, nil
}
