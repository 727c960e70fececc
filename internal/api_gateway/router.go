package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/household-ledger/internal/api_gateway/handler"
	"github.com/household-ledger/internal/api_gateway/middleware"
	"github.com/household-ledger/internal/config"
)

// handlers groups every HTTP handler the router mounts
type handlers struct {
	session     *handler.SessionHandler
	ledger      *handler.LedgerHandler
	transaction *handler.TransactionHandler
	template    *handler.TemplateHandler
	parse       *handler.ParseHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, auth config.AuthConfig, h handlers) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(logger, auth))
	{
		session := v1.Group("/session")
		{
			session.POST("/resolve", h.session.Resolve)
			session.PUT("/active-ledger", h.session.SetActiveLedger)
		}

		v1.POST("/ledgers", h.ledger.Create)

		ledgers := v1.Group("/ledgers/:ledgerId")
		{
			ledgers.GET("", h.ledger.Get)
			ledgers.POST("/join", h.ledger.Join)
			ledgers.POST("/leave", h.ledger.Leave)
			ledgers.PUT("/alias", h.ledger.UpdateAlias)
			ledgers.POST("/categories", h.ledger.AddCategory)
			ledgers.DELETE("/categories", h.ledger.RemoveCategory)

			ledgers.POST("/transactions", h.transaction.Create)
			ledgers.GET("/transactions", h.transaction.List)
			ledgers.DELETE("/transactions/:txId", h.transaction.Delete)

			ledgers.POST("/templates", h.template.Create)
			ledgers.GET("/templates", h.template.List)
			ledgers.POST("/templates/due-check", h.template.DueCheck)
			ledgers.DELETE("/templates/:templateId", h.template.Delete)
			ledgers.POST("/templates/:templateId/fire", h.template.Fire)

			ledgers.POST("/parse", h.parse.Parse)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
