// Package api - Router setup
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aethra/makazi/internal/auth"
	"github.com/aethra/makazi/internal/config"
	"github.com/aethra/makazi/internal/models"
)

// SetupRouter creates and configures the Gin router. A nil gatherer leaves
// /metrics unmounted.
func SetupRouter(h *Handler, corsCfg config.CORSConfig, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(h.RequestIDMiddleware())
	r.Use(h.LoggingMiddleware())

	// When credentials are used, specific origins must be provided (not *)
	r.Use(cors.New(cors.Config{
		AllowOrigins:     corsCfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: corsCfg.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", h.Health)
	r.GET("/unauthorized", h.Unauthorized)
	r.GET("/static/validation.js", h.ValidationScript)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// ==========================================================================
	// AUTH
	// ==========================================================================
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/login", h.Login)
		authRoutes.POST("/refresh", h.RefreshToken)
	}

	authProtected := r.Group("/auth")
	authProtected.Use(h.UserMiddleware(), h.RequireAuthMiddleware())
	{
		authProtected.GET("/me", h.GetMe)
		authProtected.POST("/change-password", h.ChangePassword)
		authProtected.POST("/logout", h.Logout)
	}

	api := r.Group("/api")
	api.Use(h.UserMiddleware(), h.RequireAuthMiddleware())

	perm := h.PermissionMiddleware

	// ==========================================================================
	// LOCATIONS
	// ==========================================================================
	api.POST("/validate", h.ValidateFields)
	api.GET("/locations/wards", h.AccessibleWards)
	api.GET("/locations/villages", h.AccessibleVillages)
	api.GET("/locations/wards/:id/villages", h.VillagesByWard)

	// ==========================================================================
	// REGISTRY
	// ==========================================================================
	res := api.Group("/residences")
	{
		res.GET("", perm(auth.PageResidences, auth.ActionView), h.ListResidences)
		res.POST("", perm(auth.PageResidences, auth.ActionCreate), h.CreateResidence)
		res.GET("/:id", perm(auth.PageResidences, auth.ActionView), h.GetResidence)
		res.PUT("/:id", perm(auth.PageResidences, auth.ActionEdit), h.UpdateResidence)
		res.DELETE("/:id", perm(auth.PageResidences, auth.ActionDelete), h.DeleteResidence)

		res.GET("/:id/members", perm(auth.PageFamilyMembers, auth.ActionView), h.ListMembers)
		res.POST("/:id/members", perm(auth.PageFamilyMembers, auth.ActionCreate), h.AddMember)
		res.DELETE("/:id/members/:memberId", perm(auth.PageFamilyMembers, auth.ActionDelete), h.DeleteMember)
	}

	api.GET("/bin", perm(auth.PageBin, auth.ActionView), h.ListBin)
	api.POST("/bin/:id/restore", perm(auth.PageBin, auth.ActionEdit), h.RestoreResidence)

	// ==========================================================================
	// TRANSFERS
	// ==========================================================================
	tr := api.Group("/transfers")
	{
		tr.GET("", perm(auth.PageTransfers, auth.ActionView), h.ListTransfers)
		tr.POST("", perm(auth.PageTransfers, auth.ActionCreate), h.RequestTransfer)
		tr.GET("/pending/weo", perm(auth.PageTransfers, auth.ActionApprove), h.PendingForWEO)
		tr.GET("/pending/ward", perm(auth.PageTransfers, auth.ActionApprove), h.PendingForWardAdmin)
		tr.GET("/pending/veo", perm(auth.PageTransfers, auth.ActionApprove), h.PendingForVEO)
		tr.GET("/:id", perm(auth.PageTransfers, auth.ActionView), h.GetTransfer)
		tr.POST("/:id/weo-approve", perm(auth.PageTransfers, auth.ActionApprove), h.ApproveByWEO)
		tr.POST("/:id/ward-approve", perm(auth.PageTransfers, auth.ActionApprove), h.ApproveByWard)
		tr.POST("/:id/accept", perm(auth.PageTransfers, auth.ActionApprove), h.AcceptTransfer)
		tr.POST("/:id/reject", perm(auth.PageTransfers, auth.ActionApprove), h.RejectTransfer)
		tr.POST("/:id/cancel", perm(auth.PageTransfers, auth.ActionCreate), h.CancelTransfer)
	}

	// ==========================================================================
	// REPORTS
	// ==========================================================================
	rep := api.Group("/reports")
	{
		rep.GET("/summary", perm(auth.PageReports, auth.ActionView), h.ReportSummary)
		rep.GET("/residences.csv", perm(auth.PageReports, auth.ActionExport), h.ExportCSV)
		rep.GET("/residences.xlsx", perm(auth.PageReports, auth.ActionExport), h.ExportXLSX)
	}
	api.GET("/audit", perm(auth.PageAudit, auth.ActionView), h.ListAudit)

	// ==========================================================================
	// ADMINISTRATION
	// ==========================================================================
	admin := api.Group("/admin")
	admin.Use(h.RoleMiddleware(string(models.RoleAdmin)))
	{
		admin.GET("/wards", perm(auth.PageWards, auth.ActionView), h.ListWards)
		admin.POST("/wards", perm(auth.PageWards, auth.ActionCreate), h.CreateWard)
		admin.GET("/wards/:id", perm(auth.PageWards, auth.ActionView), h.GetWard)
		admin.PUT("/wards/:id", perm(auth.PageWards, auth.ActionEdit), h.UpdateWard)
		admin.PUT("/wards/:id/active", perm(auth.PageWards, auth.ActionEdit), h.SetWardActive)

		admin.GET("/villages", perm(auth.PageVillages, auth.ActionView), h.ListVillages)
		admin.POST("/villages", perm(auth.PageVillages, auth.ActionCreate), h.CreateVillage)
		admin.PUT("/villages/:id", perm(auth.PageVillages, auth.ActionEdit), h.UpdateVillage)
		admin.PUT("/villages/:id/active", perm(auth.PageVillages, auth.ActionEdit), h.SetVillageActive)

		admin.GET("/users", perm(auth.PageUsers, auth.ActionView), h.ListUsers)
		admin.POST("/users", perm(auth.PageUsers, auth.ActionCreate), h.CreateUser)
		admin.GET("/users/:id", perm(auth.PageUsers, auth.ActionView), h.GetUser)
		admin.PUT("/users/:id", perm(auth.PageUsers, auth.ActionEdit), h.UpdateUser)
		admin.PUT("/users/:id/active", perm(auth.PageUsers, auth.ActionEdit), h.SetUserActive)
		admin.PUT("/users/:id/password", perm(auth.PageUsers, auth.ActionEdit), h.ResetUserPassword)

		admin.GET("/permissions/catalog", perm(auth.PagePermissions, auth.ActionView), h.PermissionCatalog)
		admin.PUT("/permissions/roles/:role", perm(auth.PagePermissions, auth.ActionEdit), h.SetRoleGrant)
		admin.GET("/permissions/users/:id", perm(auth.PagePermissions, auth.ActionView), h.UserPermissions)
		admin.PUT("/permissions/users/:id", perm(auth.PagePermissions, auth.ActionEdit), h.SetUserOverride)
		admin.DELETE("/permissions/users/:id", perm(auth.PagePermissions, auth.ActionEdit), h.DeleteUserOverride)
	}

	return r
}
