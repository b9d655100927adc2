package routes

import (
	"net/http"
	"time"

	"washflow/handlers"
	"washflow/middleware"
	"washflow/models"
	"washflow/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "washflow", "dependencies": utils.GetHealthStatus()})
	})
}

// RegisterLaneRoutes registers lane registration, availability and blocking.
func RegisterLaneRoutes(api *gin.RouterGroup, hb *handlers.HandlerBundle) {
	provider := middleware.RequireRole(models.RoleProvider, models.RoleOperator)

	api.POST("/lanes", provider, hb.Lanes.RegisterLane)
	api.POST("/lanes/:id/blocks", provider, hb.Lanes.BlockWindow)
	api.DELETE("/lanes/:id/blocks", provider, hb.Lanes.UnblockWindow)
	api.GET("/slots/available", hb.Lanes.ListAvailableSlots)
	api.GET("/providers/:id/occupancy", hb.Lanes.Occupancy)
}

// RegisterOrderRoutes sets up the order lifecycle endpoints.
func RegisterOrderRoutes(api *gin.RouterGroup, hb *handlers.HandlerBundle) {
	driver := middleware.RequireRole(models.RoleDriver)
	provider := middleware.RequireRole(models.RoleProvider)
	operator := middleware.RequireRole(models.RoleOperator)

	orders := api.Group("/orders")
	{
		orders.POST("", driver, hb.Orders.CreateOrder)
		orders.GET("", hb.Orders.ListOrders)
		orders.GET("/:id", hb.Orders.GetOrder)

		orders.POST("/:id/accept", provider, hb.Orders.AcceptOrder())
		orders.POST("/:id/en-route", provider, hb.Orders.MarkEnRoute())
		orders.POST("/:id/check-in", provider, hb.Orders.CheckIn())
		orders.POST("/:id/start", provider, hb.Orders.StartWork())
		orders.POST("/:id/steps/:index", provider, hb.Orders.UpdateWorkStep)
		orders.POST("/:id/qa", provider, hb.Orders.SubmitQA)

		orders.POST("/:id/qa/approve", driver, hb.Orders.ApproveQA())
		orders.POST("/:id/qa/reject", driver, hb.Orders.RejectQA)
		orders.POST("/:id/capture", middleware.RequireRole(models.RoleDriver, models.RoleOperator), hb.Orders.CapturePayment())
		orders.POST("/:id/cancel", middleware.RequireRole(models.RoleDriver, models.RoleProvider), hb.Orders.CancelOrder)
		orders.POST("/:id/review", driver, hb.Orders.SubmitReview)
		orders.GET("/:id/verify", operator, hb.Orders.VerifyConsistency)

		orders.POST("/:id/disputes", driver, hb.Disputes.OpenDispute)
	}
}

// RegisterDisputeRoutes sets up dispute handling for parties and operators.
func RegisterDisputeRoutes(api *gin.RouterGroup, hb *handlers.HandlerBundle) {
	disputes := api.Group("/disputes")
	{
		disputes.GET("/:id", hb.Disputes.GetDispute)
		disputes.POST("/:id/respond", middleware.RequireRole(models.RoleProvider), hb.Disputes.RespondToDispute)
		disputes.POST("/:id/resolve", middleware.RequireRole(models.RoleOperator), hb.Disputes.ResolveDispute)
	}
}

// RegisterEscrowRoutes exposes ledger reads to operators.
func RegisterEscrowRoutes(api *gin.RouterGroup, hb *handlers.HandlerBundle) {
	api.GET("/escrow/:id", middleware.RequireRole(models.RoleOperator), hb.Escrow.GetTransaction)
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	RegisterHealthRoute(r)

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware())
	RegisterLaneRoutes(api, hb)
	RegisterOrderRoutes(api, hb)
	RegisterDisputeRoutes(api, hb)
	RegisterEscrowRoutes(api, hb)
}
