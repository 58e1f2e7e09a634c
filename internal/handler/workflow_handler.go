package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kua-dukcapil/workflow-api/internal/dto"
	"github.com/kua-dukcapil/workflow-api/internal/models"
	"github.com/kua-dukcapil/workflow-api/internal/workflow"
	appErrors "github.com/kua-dukcapil/workflow-api/pkg/errors"
	"github.com/kua-dukcapil/workflow-api/pkg/response"
)

type workflowService interface {
	ClaimForProcessing(ctx context.Context, submissionID string, actor workflow.Actor) (*models.Submission, error)
	ReturnToOrigin(ctx context.Context, submissionID string, actor workflow.Actor, reason string) (*models.Submission, error)
	SendToVerification(ctx context.Context, submissionID string, actor workflow.Actor, notes string) (*models.Submission, error)
	Decide(ctx context.Context, submissionID string, actor workflow.Actor, decision models.SubmissionStatus, notes string) (*models.Submission, error)
}

type queueService interface {
	IncomingQueue(ctx context.Context, actor workflow.Actor, page int) ([]models.Submission, *models.Pagination, error)
	MyWork(ctx context.Context, actor workflow.Actor, page int) ([]models.Submission, *models.Pagination, error)
	Detail(ctx context.Context, submissionID string, actor workflow.Actor) (*dto.SubmissionDetail, error)
	PerformanceReport(ctx context.Context, actor workflow.Actor, period string) (*dto.PerformanceReport, error)
	HistoryExport(ctx context.Context, actor workflow.Actor, format string) (string, string, []byte, error)
}

// WorkflowHandler exposes the Dukcapil side: claiming from the queue,
// processing, hand-offs and the verifier's final decision. The route
// groups decide which methods each role reaches.
type WorkflowHandler struct {
	workflow workflowService
	queue    queueService
}

// NewWorkflowHandler constructs the handler.
func NewWorkflowHandler(workflowSvc workflowService, queueSvc queueService) *WorkflowHandler {
	return &WorkflowHandler{workflow: workflowSvc, queue: queueSvc}
}

// Queue lists claimable submissions for the caller's role, oldest first.
func (h *WorkflowHandler) Queue(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	submissions, pagination, err := h.queue.IncomingQueue(c.Request.Context(), actor, pageFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, pagination)
}

// MyWork lists the submissions the caller currently holds.
func (h *WorkflowHandler) MyWork(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	submissions, pagination, err := h.queue.MyWork(c.Request.Context(), actor, pageFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, pagination)
}

// Detail returns one submission with its recent status trail.
func (h *WorkflowHandler) Detail(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	detail, err := h.queue.Detail(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Claim acquires the exclusive claim on a submission.
func (h *WorkflowHandler) Claim(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	submission, err := h.workflow.ClaimForProcessing(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Return hands a claimed submission back to the KUA with a reason.
func (h *WorkflowHandler) Return(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "Alasan pengembalian wajib diisi"))
		return
	}

	submission, err := h.workflow.ReturnToOrigin(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// SendVerification releases the claim and queues the submission for a
// verifier.
func (h *WorkflowHandler) SendVerification(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SendVerificationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "payload tidak valid"))
			return
		}
	}

	submission, err := h.workflow.SendToVerification(c.Request.Context(), c.Param("id"), actor, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Approve records the verifier's approval.
func (h *WorkflowHandler) Approve(c *gin.Context) {
	h.decide(c, models.StatusApproved)
}

// Reject records the verifier's rejection with its mandatory reason.
func (h *WorkflowHandler) Reject(c *gin.Context) {
	h.decide(c, models.StatusRejected)
}

func (h *WorkflowHandler) decide(c *gin.Context, decision models.SubmissionStatus) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DecisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "payload tidak valid"))
			return
		}
	}

	submission, err := h.workflow.Decide(c.Request.Context(), c.Param("id"), actor, decision, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Report returns the caller's performance report for a period.
func (h *WorkflowHandler) Report(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	report, err := h.queue.PerformanceReport(c.Request.Context(), actor, c.DefaultQuery("period", "week"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ExportHistory streams the caller's activity trail as CSV or PDF.
func (h *WorkflowHandler) ExportHistory(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filename, contentType, payload, err := h.queue.HistoryExport(c.Request.Context(), actor, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, contentType, payload)
}
