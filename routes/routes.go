package routes

import (
	"context"
	"net/http"
	"time"

	"Gin_postgres_redis_lending_engine/app"
	"Gin_postgres_redis_lending_engine/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	// controllers and their dependencies
	s := controllers.GetSrv(a)
	lendingCtl := controllers.NewLendingController(s)
	approvalCtl := controllers.NewApprovalController(s)
	blacklistCtl := controllers.NewBlacklistController(s)
	sessionCtl := controllers.NewSessionController(a.AppSessions(), a.Config.Session.CookieName, a.Config.Server.SecureCookies(), a.Log)

	// shared middleware
	authMW := app.AuthRequired(a.AppSessions(), a.Config.Session.CookieName, a.Log)
	staffMW := app.StaffOnly()

	r.GET("/healthz", func(c *app.Ctx) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		checks := app.H{"postgres": "ok", "redis": "ok"}
		status := http.StatusOK
		if err := a.Repo.Ping(ctx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := a.RDB.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, app.H{"ok": status == http.StatusOK, "checks": checks})
	})

	api := r.Group("/api", authMW)

	api.POST("/session/logout", sessionCtl.Logout)

	// checkout goes through the approval gate for borrowers
	api.POST("/items/:id/checkout", lendingCtl.Checkout)

	lendings := api.Group("/lendings")
	{
		lendings.GET("", lendingCtl.ListLendings)
		lendings.GET("/:id", lendingCtl.GetLending)
		lendings.POST("/:id/return", lendingCtl.Return)
		lendings.GET("/:id/penalty", lendingCtl.PreviewPenalty)
		lendings.PUT("/:id/penalty", staffMW, lendingCtl.OverridePenalty)
		lendings.POST("/:id/renew", lendingCtl.Renew)
	}

	approvals := api.Group("/approvals")
	{
		approvals.GET("", approvalCtl.List)
		approvals.POST("", approvalCtl.Submit)
		approvals.POST("/:id/decision", staffMW, approvalCtl.Decide)
		approvals.POST("/:id/cancel", approvalCtl.Cancel)
	}

	blacklist := api.Group("/blacklist", staffMW)
	{
		blacklist.POST("", blacklistCtl.Add)
		blacklist.DELETE("/:id", blacklistCtl.Remove)
	}
}
