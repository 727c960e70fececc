package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/household-ledger/internal/api_gateway/service"
	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/shared"
)

// TransactionHandler handles HTTP requests for transaction operations
type TransactionHandler struct {
	transactionService service.TransactionService
	logger             *slog.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(logger *slog.Logger, transactionService service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		logger:             logger,
	}
}

// Create records a transaction, optionally starting a recurring template from it
func (h *TransactionHandler) Create(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	txType, err := shared.ParseTransactionType(req.Type)
	if err != nil {
		RespondBadRequest(c, "Invalid transaction type")
		return
	}

	var recurrence *service.RecurrenceInput
	if req.Recurrence != nil {
		recurrence = &service.RecurrenceInput{
			IntervalMonths: req.Recurrence.IntervalMonths,
			ExecuteDay:     req.Recurrence.ExecuteDay,
			TotalRuns:      req.Recurrence.TotalRuns,
		}
	}

	tx, tpl, err := h.transactionService.CreateTransaction(c.Request.Context(), actor, c.Param("ledgerId"), ledger.TransactionInput{
		Amount:      req.Amount,
		Type:        txType,
		Category:    req.Category,
		Description: req.Description,
		Rewards:     req.Rewards,
		Date:        req.Date,
	}, recurrence)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	resp := CreateTransactionResponse{Transaction: mapTransactionToResponse(tx)}
	if tpl != nil {
		t := mapTemplateToResponse(tpl)
		resp.Template = &t
	}
	RespondCreated(c, resp)
}

// List returns the ledger's transactions, optionally with soft-deleted ones
func (h *TransactionHandler) List(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var params TransactionListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid query parameters")
		return
	}

	txs, err := h.transactionService.ListTransactions(c.Request.Context(), actor, c.Param("ledgerId"), params.IncludeDeleted)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	transactions := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		transactions = append(transactions, mapTransactionToResponse(tx))
	}
	RespondOK(c, transactions)
}

// Delete soft-deletes a transaction
func (h *TransactionHandler) Delete(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	if err := h.transactionService.DeleteTransaction(c.Request.Context(), actor, c.Param("ledgerId"), c.Param("txId")); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	RespondNoContent(c)
}
