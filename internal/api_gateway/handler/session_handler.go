package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/household-ledger/internal/api_gateway/service"
)

// SessionHandler resolves which ledger a signed-in user should see
type SessionHandler struct {
	membership service.MembershipService
	logger     *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(logger *slog.Logger, membership service.MembershipService) *SessionHandler {
	return &SessionHandler{
		membership: membership,
		logger:     logger,
	}
}

// Resolve refreshes the caller's profile and returns the active ledger, creating
// a personal ledger when none of the saved ones is usable.
func (h *SessionHandler) Resolve(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.membership.EnsureProfile(ctx, actor); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	activeID, err := h.membership.ResolveActiveLedger(ctx, actor)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	saved, err := h.membership.ListSavedLedgers(ctx, actor.UID)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	RespondOK(c, SessionResponse{
		UID:            actor.UID,
		ActiveLedgerID: activeID,
		SavedLedgers:   mapSavedLedgers(saved),
	})
}

// SetActiveLedger switches the caller to a ledger they belong to.
func (h *SessionHandler) SetActiveLedger(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req SwitchLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	if _, err := h.membership.GetLedger(ctx, actor, req.LedgerID); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	if err := h.membership.SwitchLedger(ctx, actor, req.LedgerID); err != nil {
		RespondError(c, h.logger, err)
		return
	}

	RespondOK(c, gin.H{"active_ledger_id": req.LedgerID})
}
