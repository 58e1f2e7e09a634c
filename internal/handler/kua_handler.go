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

type kuaWorkflowService interface {
	CreateDraft(ctx context.Context, actor workflow.Actor, req dto.CreateSubmissionRequest) (*models.Submission, error)
	Submit(ctx context.Context, submissionID string, actor workflow.Actor, req dto.SubmitRequest) (*models.Submission, error)
}

type kuaQueueService interface {
	MySubmissions(ctx context.Context, actor workflow.Actor, page int) ([]models.Submission, *models.Pagination, error)
	Detail(ctx context.Context, submissionID string, actor workflow.Actor) (*dto.SubmissionDetail, error)
}

// KUAHandler exposes the origination side: KUA staff create drafts,
// send them into the pipeline and follow their progress.
type KUAHandler struct {
	workflow kuaWorkflowService
	queue    kuaQueueService
}

// NewKUAHandler constructs the handler.
func NewKUAHandler(workflowSvc kuaWorkflowService, queueSvc kuaQueueService) *KUAHandler {
	return &KUAHandler{workflow: workflowSvc, queue: queueSvc}
}

// Create registers a new draft submission.
func (h *KUAHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "data pengajuan tidak lengkap"))
		return
	}

	submission, err := h.workflow.CreateDraft(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, submission, nil)
}

// Submit sends a draft or revised submission to Dukcapil.
func (h *KUAHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "payload tidak valid"))
			return
		}
	}

	submission, err := h.workflow.Submit(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// List returns the caller's submissions, oldest first.
func (h *KUAHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	submissions, pagination, err := h.queue.MySubmissions(c.Request.Context(), actor, pageFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, pagination)
}

// Detail returns one submission with its recent status trail.
func (h *KUAHandler) Detail(c *gin.Context) {
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
