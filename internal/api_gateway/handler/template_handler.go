package handler

import (
	"errors"
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/household-ledger/internal/api_gateway/middleware"
	"github.com/household-ledger/internal/api_gateway/service"
	"github.com/household-ledger/internal/domain/recurring"
	"github.com/household-ledger/internal/domain/shared"
)

// TemplateHandler handles recurring templates and fire requests
type TemplateHandler struct {
	templateService service.TemplateService
	logger          *slog.Logger
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(logger *slog.Logger, templateService service.TemplateService) *TemplateHandler {
	return &TemplateHandler{
		templateService: templateService,
		logger:          logger,
	}
}

// Create stores a new recurring template
func (h *TemplateHandler) Create(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	txType, err := shared.ParseTransactionType(req.Type)
	if err != nil {
		RespondBadRequest(c, "Invalid transaction type")
		return
	}

	tpl, err := h.templateService.CreateTemplate(c.Request.Context(), actor, c.Param("ledgerId"), recurring.Spec{
		Title:          req.Title,
		Amount:         req.Amount,
		Type:           txType,
		Category:       req.Category,
		Note:           req.Note,
		IntervalMonths: req.IntervalMonths,
		ExecuteDay:     req.ExecuteDay,
		StartDate:      req.StartDate,
		TotalRuns:      req.TotalRuns,
	})
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondCreated(c, mapTemplateToResponse(tpl))
}

// List returns the ledger's templates
func (h *TemplateHandler) List(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	tpls, err := h.templateService.ListTemplates(c.Request.Context(), actor, c.Param("ledgerId"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	templates := make([]TemplateResponse, 0, len(tpls))
	for _, t := range tpls {
		templates = append(templates, mapTemplateToResponse(t))
	}
	RespondOK(c, templates)
}

// Delete removes a template; transactions it produced stay
func (h *TemplateHandler) Delete(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	if err := h.templateService.DeleteTemplate(c.Request.Context(), actor, c.Param("ledgerId"), c.Param("templateId")); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondNoContent(c)
}

// Fire queues one template run for the worker. The body is optional.
func (h *TemplateHandler) Fire(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req FireTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	queued, err := h.templateService.RequestFire(c.Request.Context(), actor, c.Param("ledgerId"), c.Param("templateId"), req.ExpectedRun, middleware.GetCorrelationID(c))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondAccepted(c, mapFireRequestToResponse(queued))
}

// DueCheck queues a due check of every template in the ledger
func (h *TemplateHandler) DueCheck(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	queued, err := h.templateService.RequestDueCheck(c.Request.Context(), actor, c.Param("ledgerId"), middleware.GetCorrelationID(c))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondAccepted(c, mapFireRequestToResponse(queued))
}
