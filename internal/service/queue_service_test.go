package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kua-dukcapil/workflow-api/internal/models"
	"github.com/kua-dukcapil/workflow-api/internal/repository"
	"github.com/kua-dukcapil/workflow-api/internal/workflow"
	appErrors "github.com/kua-dukcapil/workflow-api/pkg/errors"
)

type queueRepoStub struct {
	submissions  []models.Submission
	listFilters  []models.SubmissionFilter
	countFilters []models.SubmissionFilter
	counts       map[string]int
}

func newQueueRepoStub() *queueRepoStub {
	return &queueRepoStub{counts: make(map[string]int)}
}

func (q *queueRepoStub) Create(ctx context.Context, submission *models.Submission) error { return nil }

func (q *queueRepoStub) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	for i := range q.submissions {
		if q.submissions[i].ID == id {
			copy := q.submissions[i]
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (q *queueRepoStub) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	q.listFilters = append(q.listFilters, filter)
	return q.submissions, len(q.submissions), nil
}

func (q *queueRepoStub) Count(ctx context.Context, filter models.SubmissionFilter) (int, error) {
	q.countFilters = append(q.countFilters, filter)
	if filter.Unassigned {
		return q.counts["queue"], nil
	}
	return q.counts["held"], nil
}

func (q *queueRepoStub) ApplyTransition(ctx context.Context, params repository.TransitionParams) error {
	return nil
}

type ledgerStub struct {
	logs       []models.StatusLog
	countCalls []models.LedgerFilter
	counts     map[models.SubmissionStatus]int
}

func newLedgerStub() *ledgerStub {
	return &ledgerStub{counts: make(map[models.SubmissionStatus]int)}
}

func (l *ledgerStub) ListBySubmission(ctx context.Context, submissionID string, limit int) ([]models.StatusLog, error) {
	return l.logs, nil
}

func (l *ledgerStub) ListByActor(ctx context.Context, filter models.LedgerFilter) ([]models.StatusLog, error) {
	return l.logs, nil
}

func (l *ledgerStub) CountByActor(ctx context.Context, filter models.LedgerFilter) (int, error) {
	l.countCalls = append(l.countCalls, filter)
	total := 0
	for _, status := range filter.NewStatuses {
		total += l.counts[status]
	}
	return total, nil
}

type reportCacheStub struct {
	values map[string][]byte
	sets   int
	hits   int
}

func newReportCacheStub() *reportCacheStub {
	return &reportCacheStub{values: make(map[string][]byte)}
}

func (c *reportCacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	c.hits++
	return json.Unmarshal(raw, dest)
}

func (c *reportCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	c.sets++
	return nil
}

func newQueueService(repo *queueRepoStub, ledger *ledgerStub, cache reportCache) *QueueService {
	return NewQueueService(repo, ledger, cache, nil, QueueServiceConfig{
		PageSize:      10,
		CacheTTL:      time.Minute,
		ExportRowsMax: 100,
	})
}

func TestIncomingQueueOperatorSeesSubmittedOnly(t *testing.T) {
	repo := newQueueRepoStub()
	svc := newQueueService(repo, newLedgerStub(), nil)

	actor := workflow.Actor{ID: "op-1", Role: models.RoleOperator}
	_, pagination, err := svc.IncomingQueue(context.Background(), actor, 1)
	require.NoError(t, err)
	require.Equal(t, 10, pagination.PageSize)

	require.Len(t, repo.listFilters, 1)
	filter := repo.listFilters[0]
	require.Equal(t, []models.SubmissionStatus{models.StatusSubmitted}, filter.Statuses)
	require.True(t, filter.Unassigned)
}

func TestIncomingQueueVerifierIncludesPendingVerification(t *testing.T) {
	repo := newQueueRepoStub()
	svc := newQueueService(repo, newLedgerStub(), nil)

	actor := workflow.Actor{ID: "ver-1", Role: models.RoleVerifier}
	_, _, err := svc.IncomingQueue(context.Background(), actor, 1)
	require.NoError(t, err)

	filter := repo.listFilters[0]
	require.Equal(t, []models.SubmissionStatus{
		models.StatusSubmitted, models.StatusPendingVerification,
	}, filter.Statuses)
	require.True(t, filter.Unassigned)
}

func TestIncomingQueueForbiddenForKUA(t *testing.T) {
	svc := newQueueService(newQueueRepoStub(), newLedgerStub(), nil)

	actor := workflow.Actor{ID: "kua-1", Role: models.RoleKUA}
	_, _, err := svc.IncomingQueue(context.Background(), actor, 1)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestMyWorkFiltersByAssigneeAndNonTerminal(t *testing.T) {
	repo := newQueueRepoStub()
	svc := newQueueService(repo, newLedgerStub(), nil)

	actor := workflow.Actor{ID: "op-1", Role: models.RoleOperator}
	_, _, err := svc.MyWork(context.Background(), actor, 2)
	require.NoError(t, err)

	filter := repo.listFilters[0]
	require.Equal(t, "op-1", filter.AssigneeID)
	require.True(t, filter.NonTerminal)
	require.Equal(t, 2, filter.Page)
}

func TestDetailRestrictsKUAToOwnSubmissions(t *testing.T) {
	repo := newQueueRepoStub()
	repo.submissions = []models.Submission{{ID: "sub-1", CreatedBy: "kua-1", Status: models.StatusSubmitted}}
	svc := newQueueService(repo, newLedgerStub(), nil)

	owner := workflow.Actor{ID: "kua-1", Role: models.RoleKUA}
	detail, err := svc.Detail(context.Background(), "sub-1", owner)
	require.NoError(t, err)
	require.Equal(t, "sub-1", detail.Submission.ID)

	stranger := workflow.Actor{ID: "kua-2", Role: models.RoleKUA}
	_, err = svc.Detail(context.Background(), "sub-1", stranger)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestPerformanceReportComputesTotalsAndCaches(t *testing.T) {
	repo := newQueueRepoStub()
	repo.counts["queue"] = 4
	repo.counts["held"] = 2
	ledger := newLedgerStub()
	ledger.counts[models.StatusPendingVerification] = 5
	ledger.counts[models.StatusNeedsRevision] = 2
	ledger.counts[models.StatusApproved] = 3
	ledger.counts[models.StatusRejected] = 1
	cache := newReportCacheStub()
	svc := newQueueService(repo, ledger, cache)

	actor := workflow.Actor{ID: "ver-1", Role: models.RoleVerifier}
	report, err := svc.PerformanceReport(context.Background(), actor, "week")
	require.NoError(t, err)
	require.Equal(t, 5, report.SentToVerification)
	require.Equal(t, 2, report.ReturnedToKUA)
	require.Equal(t, 3, report.Approved)
	require.Equal(t, 1, report.Rejected)
	require.Equal(t, 11, report.TotalProcessed)
	require.Equal(t, 4, report.Queue)
	require.Equal(t, 2, report.Processing)
	require.Equal(t, 1, cache.sets)

	countCalls := len(ledger.countCalls)
	cached, err := svc.PerformanceReport(context.Background(), actor, "week")
	require.NoError(t, err)
	require.Equal(t, report.TotalProcessed, cached.TotalProcessed)
	require.Len(t, ledger.countCalls, countCalls)
	require.Equal(t, 1, cache.hits)
}

func TestPerformanceReportRejectsUnknownPeriod(t *testing.T) {
	svc := newQueueService(newQueueRepoStub(), newLedgerStub(), nil)

	actor := workflow.Actor{ID: "op-1", Role: models.RoleOperator}
	_, err := svc.PerformanceReport(context.Background(), actor, "decade")
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestHistoryExportCSV(t *testing.T) {
	ledger := newLedgerStub()
	ledger.logs = []models.StatusLog{{
		SubmissionID:   "sub-1",
		PreviousStatus: models.StatusSubmitted,
		NewStatus:      models.StatusProcessing,
		Notes:          "Pengajuan diklaim untuk diproses",
		CreatedAt:      time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}}
	svc := newQueueService(newQueueRepoStub(), ledger, nil)

	actor := workflow.Actor{ID: "op-1", Role: models.RoleOperator}
	filename, contentType, payload, err := svc.HistoryExport(context.Background(), actor, "csv")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(filename, ".csv"))
	require.Equal(t, "text/csv", contentType)

	body := string(payload)
	require.Contains(t, body, "Waktu,ID Pengajuan,Status Awal,Status Baru,Catatan")
	require.Contains(t, body, "sub-1")
	require.Contains(t, body, "PROCESSING")
}

func TestHistoryExportRejectsUnknownFormat(t *testing.T) {
	svc := newQueueService(newQueueRepoStub(), newLedgerStub(), nil)

	actor := workflow.Actor{ID: "op-1", Role: models.RoleOperator}
	_, _, _, err := svc.HistoryExport(context.Background(), actor, "xlsx")
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
