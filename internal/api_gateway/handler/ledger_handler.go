package handler

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/household-ledger/internal/api_gateway/service"
)

// LedgerHandler handles ledger creation, membership and categories
type LedgerHandler struct {
	membership service.MembershipService
	logger     *slog.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(logger *slog.Logger, membership service.MembershipService) *LedgerHandler {
	return &LedgerHandler{
		membership: membership,
		logger:     logger,
	}
}

// Create makes a new ledger owned by the caller and activates it.
func (h *LedgerHandler) Create(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req CreateLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	l, err := h.membership.CreateLedger(c.Request.Context(), actor, req.Name)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondCreated(c, mapLedgerToResponse(l))
}

// Get returns a ledger the caller belongs to.
func (h *LedgerHandler) Get(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	l, err := h.membership.GetLedger(c.Request.Context(), actor, c.Param("ledgerId"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondOK(c, mapLedgerToResponse(l))
}

// Join adds the caller to a ledger shared with them by id.
func (h *LedgerHandler) Join(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	ledgerID := strings.TrimSpace(c.Param("ledgerId"))

	joined, err := h.membership.JoinLedger(c.Request.Context(), actor, ledgerID)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	if !joined {
		RespondNotFound(c, "Ledger not found")
		return
	}
	RespondOK(c, gin.H{"ledger_id": ledgerID, "joined": true})
}

// Leave removes the caller from a ledger and reports the new active ledger.
func (h *LedgerHandler) Leave(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	activeID, err := h.membership.LeaveLedger(c.Request.Context(), actor, c.Param("ledgerId"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondOK(c, LeaveResponse{ActiveLedgerID: activeID})
}

// UpdateAlias renames the caller's private entry for a ledger.
func (h *LedgerHandler) UpdateAlias(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req AliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.membership.UpdateLedgerAlias(c.Request.Context(), actor, c.Param("ledgerId"), req.Alias); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondNoContent(c)
}

// AddCategory appends a category to the ledger's shared list.
func (h *LedgerHandler) AddCategory(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	l, err := h.membership.AddCategory(c.Request.Context(), actor, c.Param("ledgerId"), req.Name)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondOK(c, mapLedgerToResponse(l))
}

// RemoveCategory drops the category named by the "name" query parameter.
// Existing transactions keep their category.
func (h *LedgerHandler) RemoveCategory(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		RespondBadRequest(c, "Query parameter 'name' is required")
		return
	}

	l, err := h.membership.RemoveCategory(c.Request.Context(), actor, c.Param("ledgerId"), name)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondOK(c, mapLedgerToResponse(l))
}
