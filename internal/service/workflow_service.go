package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kua-dukcapil/workflow-api/internal/dto"
	"github.com/kua-dukcapil/workflow-api/internal/models"
	"github.com/kua-dukcapil/workflow-api/internal/repository"
	"github.com/kua-dukcapil/workflow-api/internal/workflow"
	appErrors "github.com/kua-dukcapil/workflow-api/pkg/errors"
)

// reportCachePattern matches every cached report payload; any committed
// transition changes queue depths, so the whole namespace is dropped.
const reportCachePattern = "reports:*"

// WorkflowService exposes one operation per business action. Each
// operation is a single atomic unit: load, validate the transition,
// persist the guarded update together with its ledger entry, then
// return the refreshed submission.
type WorkflowService struct {
	repo        submissionStore
	claims      *ClaimManager
	cache       reportInvalidator
	metrics     transitionObserver
	logger      *zap.Logger
	minLeadDays int
}

// NewWorkflowService constructs the service.
func NewWorkflowService(repo submissionStore, claims *ClaimManager, cache reportInvalidator, metrics transitionObserver, logger *zap.Logger, minLeadDays int) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if minLeadDays <= 0 {
		minLeadDays = workflow.DefaultMinLeadDays
	}
	return &WorkflowService{
		repo:        repo,
		claims:      claims,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		minLeadDays: minLeadDays,
	}
}

// CreateDraft originates a new submission in DRAFT for the calling KUA.
func (s *WorkflowService) CreateDraft(ctx context.Context, actor workflow.Actor, req dto.CreateSubmissionRequest) (*models.Submission, error) {
	if actor.Role != models.RoleKUA {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "hanya petugas KUA yang dapat membuat pengajuan")
	}
	marriageDate, err := dto.ParseDate(req.MarriageDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format tanggal tidak valid, gunakan YYYY-MM-DD")
	}

	submission := &models.Submission{
		Status:           models.StatusDraft,
		CreatedBy:        actor.ID,
		GroomName:        strings.TrimSpace(req.GroomName),
		BrideName:        strings.TrimSpace(req.BrideName),
		MarriageDate:     marriageDate,
		MarriageLocation: strings.TrimSpace(req.MarriageLocation),
		ContactPhone:     req.ContactPhone,
	}
	if submission.GroomName == "" || submission.BrideName == "" || submission.MarriageLocation == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nama calon pengantin dan lokasi akad wajib diisi")
	}

	if err := s.repo.Create(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}
	s.logger.Info("submission created",
		zap.String("submission_id", submission.ID),
		zap.Int64("ticket_number", submission.TicketNumber),
		zap.String("created_by", actor.ID))
	return submission, nil
}

// Submit moves a DRAFT or NEEDS_REVISION submission into the pipeline.
// The H-1 admission rule runs here and only here; on violation the
// submission stays unsubmitted.
func (s *WorkflowService) Submit(ctx context.Context, submissionID string, actor workflow.Actor, req dto.SubmitRequest) (*models.Submission, error) {
	submission, err := loadSubmission(ctx, s.repo, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.CreatedBy != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "pengajuan hanya dapat dikirim oleh pembuatnya")
	}

	rule, err := workflow.Validate(submission.Status, models.StatusSubmitted, actor.Role)
	if err != nil {
		return nil, err
	}

	// A corrected wedding date travels with the resubmission and is
	// persisted in the same transaction as the status change.
	eventDate := submission.MarriageDate
	var dateOverride *time.Time
	if req.MarriageDate != "" {
		parsed, perr := dto.ParseDate(req.MarriageDate)
		if perr != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "format tanggal tidak valid, gunakan YYYY-MM-DD")
		}
		eventDate = parsed
		if !parsed.Equal(submission.MarriageDate) {
			dateOverride = &parsed
		}
	}
	if rule.Admission {
		if err := workflow.ValidateAdmission(submission.CreatedAt, eventDate, s.minLeadDays); err != nil {
			return nil, err
		}
	}

	notes := "Pengajuan dikirim ke Dukcapil"
	if submission.Status == models.StatusNeedsRevision {
		notes = "Pengajuan dikirim ulang setelah perbaikan"
	}
	return s.transition(ctx, submission, actor, models.StatusSubmitted, rule, notes, dateOverride)
}

// ClaimForProcessing delegates to the claim manager.
func (s *WorkflowService) ClaimForProcessing(ctx context.Context, submissionID string, actor workflow.Actor) (*models.Submission, error) {
	return s.claims.Claim(ctx, submissionID, actor)
}

// ReturnToOrigin hands a claimed submission back to the KUA with a
// mandatory revision reason. The claim is released.
func (s *WorkflowService) ReturnToOrigin(ctx context.Context, submissionID string, actor workflow.Actor, reason string) (*models.Submission, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Alasan pengembalian wajib diisi")
	}

	submission, err := loadSubmission(ctx, s.repo, submissionID)
	if err != nil {
		return nil, err
	}
	rule, err := validateFor(submission, actor, models.StatusNeedsRevision)
	if err != nil {
		return nil, err
	}

	notes := "Dikembalikan ke KUA untuk perbaikan. Alasan: " + reason
	return s.transition(ctx, submission, actor, models.StatusNeedsRevision, rule, notes, nil)
}

// SendToVerification releases the data-entry claim and queues the
// submission for a verifier.
func (s *WorkflowService) SendToVerification(ctx context.Context, submissionID string, actor workflow.Actor, notes string) (*models.Submission, error) {
	submission, err := loadSubmission(ctx, s.repo, submissionID)
	if err != nil {
		return nil, err
	}
	rule, err := validateFor(submission, actor, models.StatusPendingVerification)
	if err != nil {
		return nil, err
	}

	notes = strings.TrimSpace(notes)
	if notes == "" {
		notes = "Dikirim ke verifikator untuk approval"
	}
	return s.transition(ctx, submission, actor, models.StatusPendingVerification, rule, notes, nil)
}

// Decide records the verifier's terminal decision. Rejections carry a
// mandatory reason; the claim is retained for the audit trail.
func (s *WorkflowService) Decide(ctx context.Context, submissionID string, actor workflow.Actor, decision models.SubmissionStatus, notes string) (*models.Submission, error) {
	if decision != models.StatusApproved && decision != models.StatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "keputusan harus APPROVED atau REJECTED")
	}
	notes = strings.TrimSpace(notes)
	if decision == models.StatusRejected && notes == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Alasan penolakan wajib diisi")
	}

	submission, err := loadSubmission(ctx, s.repo, submissionID)
	if err != nil {
		return nil, err
	}
	rule, err := validateFor(submission, actor, decision)
	if err != nil {
		return nil, err
	}

	if notes == "" {
		notes = "Pengajuan disetujui"
	}
	return s.transition(ctx, submission, actor, decision, rule, notes, nil)
}

// transition persists the guarded update plus its ledger entry and
// refreshes the submission. A zero-row update is reloaded and
// classified into the conflict taxonomy.
func (s *WorkflowService) transition(ctx context.Context, submission *models.Submission, actor workflow.Actor, to models.SubmissionStatus, rule workflow.Rule, notes string, eventDate *time.Time) (*models.Submission, error) {
	params := repository.TransitionParams{
		SubmissionID:   submission.ID,
		ExpectedStatus: submission.Status,
		NewStatus:      to,
		ActorID:        actor.ID,
		Notes:          notes,
	}
	if eventDate != nil {
		params.SetMarriageDate = true
		params.MarriageDate = *eventDate
	}
	switch rule.Effect {
	case workflow.ClaimAcquire:
		assignee := actor.ID
		params.SetAssignee = true
		params.AssigneeID = &assignee
		params.GuardUnclaimedOrOwn = true
	case workflow.ClaimRelease:
		params.SetAssignee = true
		params.GuardHeldByActor = true
	case workflow.ClaimRetain:
		params.GuardHeldByActor = true
	}

	if err := s.repo.ApplyTransition(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyConflict(ctx, submission.ID, actor, rule)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, reportCachePattern); err != nil {
			s.logger.Warn("failed to invalidate report cache", zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveTransition(submission.Status, to)
	}
	s.logger.Info("submission transitioned",
		zap.String("submission_id", submission.ID),
		zap.String("actor_id", actor.ID),
		zap.String("from", string(submission.Status)),
		zap.String("to", string(to)))

	return loadSubmission(ctx, s.repo, submission.ID)
}

// classifyConflict reloads the row after a lost guarded update and maps
// the observed state onto NOT_ASSIGNEE, ALREADY_CLAIMED or
// ILLEGAL_TRANSITION.
func (s *WorkflowService) classifyConflict(ctx context.Context, submissionID string, actor workflow.Actor, rule workflow.Rule) error {
	submission, err := loadSubmission(ctx, s.repo, submissionID)
	if err != nil {
		return err
	}
	if rule.RequiresClaim {
		if err := requireClaimHolder(submission, actor, rule); err != nil {
			return err
		}
	}
	if workflow.Lockable(submission.Status) &&
		submission.CurrentAssigneeID != nil && *submission.CurrentAssigneeID != actor.ID {
		if s.metrics != nil {
			s.metrics.ObserveClaimConflict()
		}
		return alreadyClaimedError(submission)
	}
	return appErrors.Clone(appErrors.ErrIllegalTransition,
		fmt.Sprintf("status pengajuan telah berubah menjadi %s", submission.Status))
}

// validateFor resolves the rule for a requested transition. Claim
// possession is checked before role capability so that a non-holder
// acting on a claimed submission hears NOT_ASSIGNEE, not a role error.
func validateFor(submission *models.Submission, actor workflow.Actor, to models.SubmissionStatus) (workflow.Rule, error) {
	rule, ok := workflow.Lookup(submission.Status, to)
	if !ok {
		return workflow.Rule{}, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("transisi %s → %s tidak diizinkan", submission.Status, to))
	}
	if err := requireClaimHolder(submission, actor, rule); err != nil {
		return workflow.Rule{}, err
	}
	if _, err := workflow.Validate(submission.Status, to, actor.Role); err != nil {
		return workflow.Rule{}, err
	}
	return rule, nil
}

// requireClaimHolder rejects release and decision calls from anyone but
// the current claim holder.
func requireClaimHolder(submission *models.Submission, actor workflow.Actor, rule workflow.Rule) error {
	if !rule.RequiresClaim {
		return nil
	}
	if submission.CurrentAssigneeID == nil || *submission.CurrentAssigneeID != actor.ID {
		return appErrors.ErrNotAssignee
	}
	return nil
}
