package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kua-dukcapil/workflow-api/internal/dto"
	"github.com/kua-dukcapil/workflow-api/internal/models"
	"github.com/kua-dukcapil/workflow-api/internal/workflow"
	appErrors "github.com/kua-dukcapil/workflow-api/pkg/errors"
	"github.com/kua-dukcapil/workflow-api/pkg/export"
)

type ledgerReader interface {
	ListBySubmission(ctx context.Context, submissionID string, limit int) ([]models.StatusLog, error)
	ListByActor(ctx context.Context, filter models.LedgerFilter) ([]models.StatusLog, error)
	CountByActor(ctx context.Context, filter models.LedgerFilter) (int, error)
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// QueueServiceConfig carries the tunables of the read side.
type QueueServiceConfig struct {
	PageSize      int
	CacheTTL      time.Duration
	ExportRowsMax int
}

// QueueService is the read side of the workflow: role-scoped FIFO
// queues, personal worklists, performance reports and history exports.
// Everything here is derived from submissions plus the ledger; nothing
// is stored.
type QueueService struct {
	repo   submissionStore
	ledger ledgerReader
	cache  reportCache
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
	cfg    QueueServiceConfig
	now    func() time.Time
}

// NewQueueService constructs the service.
func NewQueueService(repo submissionStore, ledger ledgerReader, cache reportCache, logger *zap.Logger, cfg QueueServiceConfig) *QueueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 2 * time.Minute
	}
	if cfg.ExportRowsMax <= 0 {
		cfg.ExportRowsMax = 1000
	}
	return &QueueService{
		repo:   repo,
		ledger: ledger,
		cache:  cache,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// queueStatuses maps an actor class onto the statuses its incoming
// queue draws from. Verifiers see the data-entry queue too.
func queueStatuses(role models.UserRole) []models.SubmissionStatus {
	if role.VerifierClass() {
		return []models.SubmissionStatus{models.StatusSubmitted, models.StatusPendingVerification}
	}
	return []models.SubmissionStatus{models.StatusSubmitted}
}

// IncomingQueue lists unassigned submissions the caller may claim,
// oldest first.
func (s *QueueService) IncomingQueue(ctx context.Context, actor workflow.Actor, page int) ([]models.Submission, *models.Pagination, error) {
	if !actor.Role.OperatorClass() {
		return nil, nil, appErrors.ErrForbidden
	}
	return s.list(ctx, models.SubmissionFilter{
		Statuses:   queueStatuses(actor.Role),
		Unassigned: true,
		Page:       page,
	})
}

// MyWork lists the non-terminal submissions the caller currently holds.
func (s *QueueService) MyWork(ctx context.Context, actor workflow.Actor, page int) ([]models.Submission, *models.Pagination, error) {
	if !actor.Role.OperatorClass() {
		return nil, nil, appErrors.ErrForbidden
	}
	return s.list(ctx, models.SubmissionFilter{
		AssigneeID:  actor.ID,
		NonTerminal: true,
		Page:        page,
	})
}

// MySubmissions lists everything the calling KUA originated, any status.
func (s *QueueService) MySubmissions(ctx context.Context, actor workflow.Actor, page int) ([]models.Submission, *models.Pagination, error) {
	return s.list(ctx, models.SubmissionFilter{
		CreatedBy: actor.ID,
		Page:      page,
	})
}

func (s *QueueService) list(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	filter.PageSize = s.cfg.PageSize

	submissions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}
	pagination := &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	}
	return submissions, pagination, nil
}

// Detail returns a submission with its recent ledger trail. KUA callers
// only see their own submissions.
func (s *QueueService) Detail(ctx context.Context, submissionID string, actor workflow.Actor) (*dto.SubmissionDetail, error) {
	submission, err := loadSubmission(ctx, s.repo, submissionID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleKUA && submission.CreatedBy != actor.ID {
		return nil, appErrors.ErrForbidden
	}

	logs, err := s.ledger.ListBySubmission(ctx, submissionID, 10)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}
	return &dto.SubmissionDetail{Submission: submission, Logs: logs}, nil
}

// PerformanceReport aggregates an actor's throughput for the requested
// period (week, month, year, all) plus realtime dashboard cards. The
// payload is cached briefly; any committed transition drops the cache.
func (s *QueueService) PerformanceReport(ctx context.Context, actor workflow.Actor, period string) (*dto.PerformanceReport, error) {
	if !actor.Role.OperatorClass() {
		return nil, appErrors.ErrForbidden
	}
	since, err := s.periodStart(period)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("reports:%s:%s", actor.ID, period)
	if s.cache != nil {
		var cached dto.PerformanceReport
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	report := &dto.PerformanceReport{
		ActorID:     actor.ID,
		Period:      period,
		GeneratedAt: s.now().UTC(),
	}

	counters := []struct {
		status models.SubmissionStatus
		dest   *int
	}{
		{models.StatusPendingVerification, &report.SentToVerification},
		{models.StatusNeedsRevision, &report.ReturnedToKUA},
		{models.StatusApproved, &report.Approved},
		{models.StatusRejected, &report.Rejected},
	}
	for _, counter := range counters {
		total, err := s.ledger.CountByActor(ctx, models.LedgerFilter{
			ActorID:     actor.ID,
			NewStatuses: []models.SubmissionStatus{counter.status},
			Since:       since,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
		}
		*counter.dest = total
	}
	report.TotalProcessed = report.SentToVerification + report.ReturnedToKUA + report.Approved + report.Rejected

	if err := s.fillCards(ctx, actor, report); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, report, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache performance report", zap.Error(err))
		}
	}
	return report, nil
}

// fillCards computes the realtime dashboard numbers: claimable queue
// depth, items the actor holds, and hand-offs completed today.
func (s *QueueService) fillCards(ctx context.Context, actor workflow.Actor, report *dto.PerformanceReport) error {
	queueDepth, err := s.repo.Count(ctx, models.SubmissionFilter{
		Statuses:   queueStatuses(actor.Role),
		Unassigned: true,
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}
	report.Queue = queueDepth

	held, err := s.repo.Count(ctx, models.SubmissionFilter{
		Statuses:   []models.SubmissionStatus{models.StatusProcessing, models.StatusPendingVerification},
		AssigneeID: actor.ID,
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}
	report.Processing = held

	completedStatuses := []models.SubmissionStatus{models.StatusApproved, models.StatusRejected}
	if !actor.Role.VerifierClass() {
		completedStatuses = []models.SubmissionStatus{models.StatusPendingVerification, models.StatusNeedsRevision}
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	completed, err := s.ledger.CountByActor(ctx, models.LedgerFilter{
		ActorID:     actor.ID,
		NewStatuses: completedStatuses,
		Since:       today,
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}
	report.CompletedToday = completed
	return nil
}

func (s *QueueService) periodStart(period string) (time.Time, error) {
	now := s.now().UTC()
	switch period {
	case "week":
		return now.AddDate(0, 0, -7), nil
	case "month":
		return now.AddDate(0, -1, 0), nil
	case "year":
		return now.AddDate(-1, 0, 0), nil
	case "all", "":
		return time.Time{}, nil
	default:
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "periode harus week, month, year, atau all")
	}
}

// HistoryExport renders the actor's ledger trail as CSV or PDF.
func (s *QueueService) HistoryExport(ctx context.Context, actor workflow.Actor, format string) (string, string, []byte, error) {
	if !actor.Role.OperatorClass() {
		return "", "", nil, appErrors.ErrForbidden
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "csv" && format != "pdf" {
		return "", "", nil, appErrors.Clone(appErrors.ErrValidation, "format harus csv atau pdf")
	}

	logs, err := s.ledger.ListByActor(ctx, models.LedgerFilter{
		ActorID: actor.ID,
		Limit:   s.cfg.ExportRowsMax,
	})
	if err != nil {
		return "", "", nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}

	dataset := export.Dataset{
		Headers: []string{"Waktu", "ID Pengajuan", "Status Awal", "Status Baru", "Catatan"},
	}
	for _, log := range logs {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Waktu":        log.CreatedAt.Format("2006-01-02 15:04"),
			"ID Pengajuan": log.SubmissionID,
			"Status Awal":  string(log.PreviousStatus),
			"Status Baru":  string(log.NewStatus),
			"Catatan":      log.Notes,
		})
	}

	stamp := s.now().Format("20060102")
	if format == "csv" {
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return "", "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "gagal membuat berkas CSV")
		}
		return fmt.Sprintf("riwayat-aktivitas-%s.csv", stamp), "text/csv", payload, nil
	}

	payload, err := s.pdf.Render(dataset, "Riwayat Aktivitas Petugas")
	if err != nil {
		return "", "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "gagal membuat berkas PDF")
	}
	return fmt.Sprintf("riwayat-aktivitas-%s.pdf", stamp), "application/pdf", payload, nil
}
