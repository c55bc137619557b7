package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roofcrm/internal/authz"
	"roofcrm/internal/handlers"
	"roofcrm/internal/middleware"
)

type Options struct {
	JWTSecret     []byte
	WebhookSecret string
}

func SetupRoutes(
	r *gin.Engine,
	opts Options,
	leadHandler *handlers.LeadHandler,
	historyHandler *handlers.HistoryHandler,
	reportHandler *handlers.ReportHandler,
	integrationsHandler *handlers.IntegrationsHandler,
) *gin.Engine {

	// ---- public
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// domain events from the quote/signature/invoice/payment subsystems
	integr := r.Group("/integrations", middleware.WebhookSecret(opts.WebhookSecret))
	{
		integr.POST("/events", integrationsHandler.LeadEvent)
	}

	// ---- protected
	r.Use(middleware.AuthMiddleware(opts.JWTSecret))
	r.Use(middleware.ReadOnlyGuard())

	// LEADS
	leads := r.Group("/leads")
	{
		leads.POST("/", leadHandler.Create)
		leads.GET("/", leadHandler.List)
		leads.GET("/:id", leadHandler.GetByID)
		leads.PUT("/:id", leadHandler.Update)
		leads.DELETE("/:id", leadHandler.Delete)
		leads.POST("/:id/assign", leadHandler.Assign)
		leads.POST("/:id/status", leadHandler.UpdateStatus)
		leads.GET("/:id/transitions/allowed", leadHandler.AllowedTransitions)
		leads.GET("/:id/history", historyHandler.List)
		leads.GET("/:id/history/verify", historyHandler.Verify)
	}

	// REPORTS (audit/ops/mgmt/admin)
	reports := r.Group("/reports",
		middleware.RequireRoles(authz.RoleAudit, authz.RoleOperations, authz.RoleManagement, authz.RoleAdmin),
	)
	{
		reports.GET("/transitions", reportHandler.Transitions)
		reports.GET("/leads/filter", reportHandler.FilterLeads)
	}

	return r
}
