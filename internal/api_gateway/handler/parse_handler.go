package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/household-ledger/internal/api_gateway/service"
)

// ParseHandler exposes the AI text parser
type ParseHandler struct {
	parseService service.ParseService
	logger       *slog.Logger
}

// NewParseHandler creates a new parse handler
func NewParseHandler(logger *slog.Logger, parseService service.ParseService) *ParseHandler {
	return &ParseHandler{
		parseService: parseService,
		logger:       logger,
	}
}

// Parse answers 200 with a draft, or with null data when the text could not
// be parsed.
func (h *ParseHandler) Parse(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	draft, err := h.parseService.ParseText(c.Request.Context(), actor, c.Param("ledgerId"), req.Text)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	if draft == nil {
		RespondOK(c, nil)
		return
	}
	RespondOK(c, draft)
}
