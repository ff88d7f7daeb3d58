// Package api - Administration handlers
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aethra/makazi/internal/audit"
	"github.com/aethra/makazi/internal/auth"
	"github.com/aethra/makazi/internal/directory"
	"github.com/aethra/makazi/internal/models"
	"github.com/aethra/makazi/internal/users"
)

// ActiveRequest toggles is_active
type ActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *Handler) bindActive(c *gin.Context) (uint, bool, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return 0, false, false
	}
	var req ActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, bindError(err))
		return 0, false, false
	}
	return id, *req.Active, true
}

// =============================================================================
// WARDS
// =============================================================================

// ListWards returns every ward
// GET /api/admin/wards?active=true
func (h *Handler) ListWards(c *gin.Context) {
	wards, err := h.locations.ListWards(reqCtx(c), c.Query("active") == "true")
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wards)
}

// GetWard GET /api/admin/wards/:id
func (h *Handler) GetWard(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	w, err := h.locations.GetWard(reqCtx(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// CreateWard POST /api/admin/wards
func (h *Handler) CreateWard(c *gin.Context) {
	var in directory.WardInput
	if err := c.ShouldBind(&in); err != nil {
		h.respondErrorWithInput(c, bindError(err), in)
		return
	}
	w, err := h.locations.CreateWard(reqCtx(c), actorOf(c), in)
	if err != nil {
		h.respondErrorWithInput(c, err, in)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// UpdateWard PUT /api/admin/wards/:id
func (h *Handler) UpdateWard(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	var in directory.WardInput
	if err := c.ShouldBind(&in); err != nil {
		h.respondErrorWithInput(c, bindError(err), in)
		return
	}
	w, err := h.locations.UpdateWard(reqCtx(c), id, in)
	if err != nil {
		h.respondErrorWithInput(c, err, in)
		return
	}
	c.JSON(http.StatusOK, w)
}

// SetWardActive PUT /api/admin/wards/:id/active
func (h *Handler) SetWardActive(c *gin.Context) {
	id, active, ok := h.bindActive(c)
	if !ok {
		return
	}
	if err := h.locations.SetWardActive(reqCtx(c), id, active); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_active": active})
}

// =============================================================================
// VILLAGES
// =============================================================================

// ListVillages returns villages, optionally of one ward
// GET /api/admin/villages?ward_id=&active=true
func (h *Handler) ListVillages(c *gin.Context) {
	wardID := uint(parseIntParam(c.Query("ward_id"), 0))
	villages, err := h.locations.ListVillages(reqCtx(c), wardID, c.Query("active") == "true")
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, villages)
}

// CreateVillage POST /api/admin/villages
func (h *Handler) CreateVillage(c *gin.Context) {
	var in directory.VillageInput
	if err := c.ShouldBind(&in); err != nil {
		h.respondErrorWithInput(c, bindError(err), in)
		return
	}
	v, err := h.locations.CreateVillage(reqCtx(c), actorOf(c), in)
	if err != nil {
		h.respondErrorWithInput(c, err, in)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// UpdateVillage PUT /api/admin/villages/:id
func (h *Handler) UpdateVillage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	var in directory.VillageInput
	if err := c.ShouldBind(&in); err != nil {
		h.respondErrorWithInput(c, bindError(err), in)
		return
	}
	v, err := h.locations.UpdateVillage(reqCtx(c), id, in)
	if err != nil {
		h.respondErrorWithInput(c, err, in)
		return
	}
	c.JSON(http.StatusOK, v)
}

// SetVillageActive PUT /api/admin/villages/:id/active
func (h *Handler) SetVillageActive(c *gin.Context) {
	id, active, ok := h.bindActive(c)
	if !ok {
		return
	}
	if err := h.locations.SetVillageActive(reqCtx(c), id, active); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_active": active})
}

// =============================================================================
// USERS
// =============================================================================

// ListUsers GET /api/admin/users?role=
func (h *Handler) ListUsers(c *gin.Context) {
	list, err := h.users.List(reqCtx(c), c.Query("role"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetUser GET /api/admin/users/:id
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	u, err := h.users.Get(reqCtx(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// CreateUser POST /api/admin/users
func (h *Handler) CreateUser(c *gin.Context) {
	var in users.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		in.Password = ""
		h.respondErrorWithInput(c, bindError(err), in)
		return
	}
	u, err := h.users.Create(reqCtx(c), actorOf(c), in)
	if err != nil {
		in.Password = ""
		h.respondErrorWithInput(c, err, in)
		return
	}
	c.JSON(http.StatusCreated, u)
}

// UpdateUser PUT /api/admin/users/:id
func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	var in users.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondErrorWithInput(c, bindError(err), in)
		return
	}
	u, err := h.users.Update(reqCtx(c), actorOf(c), id, in)
	if err != nil {
		h.respondErrorWithInput(c, err, in)
		return
	}
	c.JSON(http.StatusOK, u)
}

// SetUserActive enables or disables an account
// PUT /api/admin/users/:id/active
func (h *Handler) SetUserActive(c *gin.Context) {
	id, active, ok := h.bindActive(c)
	if !ok {
		return
	}
	if err := h.users.SetActive(reqCtx(c), actorOf(c), id, active); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_active": active})
}

// ResetUserPassword sets a new password for an account
// PUT /api/admin/users/:id/password
func (h *Handler) ResetUserPassword(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	var req struct {
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, bindError(err))
		return
	}
	if err := h.users.SetPassword(reqCtx(c), actorOf(c), id, req.Password); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

// =============================================================================
// PERMISSIONS
// =============================================================================

// GrantRequest sets one (page, action) grant. An empty action addresses the
// page-level row.
type GrantRequest struct {
	Page    string `json:"page" binding:"required"`
	Action  string `json:"action"`
	Granted bool   `json:"granted"`
}

func (h *Handler) bindGrant(c *gin.Context) (GrantRequest, auth.Action, bool) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, bindError(err))
		return req, "", false
	}
	if req.Action == "" {
		return req, auth.PageLevel, true
	}
	action, err := auth.ParseAction(req.Action)
	if err != nil {
		h.badRequest(c, err.Error())
		return req, "", false
	}
	return req, action, true
}

// auditGrant records a permission change. userID is 0 for role defaults.
func (h *Handler) auditGrant(c *gin.Context, action string, userID uint, details gin.H) {
	err := audit.Record(reqCtx(c), h.db, audit.Entry{
		ActorID:    actorOf(c).UserID,
		Action:     action,
		EntityType: audit.EntityPermission,
		EntityID:   userID,
		Details:    details,
	})
	if err != nil {
		h.logger.Warn("failed to audit permission change", zap.Error(err))
	}
}

// PermissionCatalog returns modules, pages and actions
// GET /api/admin/permissions/catalog
func (h *Handler) PermissionCatalog(c *gin.Context) {
	modules, err := h.resolver.Catalog(reqCtx(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, modules)
}

// SetRoleGrant changes the default grant of a role
// PUT /api/admin/permissions/roles/:role
func (h *Handler) SetRoleGrant(c *gin.Context) {
	role, err := models.ParseRole(c.Param("role"))
	if err != nil {
		h.badRequest(c, "unknown role")
		return
	}
	req, action, ok := h.bindGrant(c)
	if !ok {
		return
	}
	if err := h.resolver.SetRoleGrant(reqCtx(c), role, req.Page, action, req.Granted); err != nil {
		h.respondError(c, err)
		return
	}
	h.auditGrant(c, audit.ActionGrant, 0, gin.H{"role": role, "page": req.Page, "action": action, "granted": req.Granted})
	c.JSON(http.StatusOK, gin.H{"role": role, "page": req.Page, "action": action, "granted": req.Granted})
}

// SetUserOverride grants or denies one capability to one user
// PUT /api/admin/permissions/users/:id
func (h *Handler) SetUserOverride(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	req, action, ok := h.bindGrant(c)
	if !ok {
		return
	}
	if err := h.resolver.SetUserOverride(reqCtx(c), id, req.Page, action, req.Granted, actorOf(c).UserID); err != nil {
		h.respondError(c, err)
		return
	}
	h.auditGrant(c, audit.ActionOverride, id, gin.H{"page": req.Page, "action": action, "granted": req.Granted})
	c.JSON(http.StatusOK, gin.H{"user_id": id, "page": req.Page, "action": action, "granted": req.Granted})
}

// DeleteUserOverride drops an override so the role default applies
// DELETE /api/admin/permissions/users/:id?page=&action=
func (h *Handler) DeleteUserOverride(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	page := c.Query("page")
	if page == "" {
		h.badRequest(c, "page is required")
		return
	}
	action := auth.PageLevel
	if raw := c.Query("action"); raw != "" {
		a, err := auth.ParseAction(raw)
		if err != nil {
			h.badRequest(c, err.Error())
			return
		}
		action = a
	}
	if err := h.resolver.DeleteUserOverride(reqCtx(c), id, page, action); err != nil {
		h.respondError(c, err)
		return
	}
	h.auditGrant(c, audit.ActionOverride, id, gin.H{"page": page, "action": action, "removed": true})
	c.Status(http.StatusNoContent)
}

// UserPermissions resolves every capability of one user
// GET /api/admin/permissions/users/:id
func (h *Handler) UserPermissions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	u, err := h.users.Get(reqCtx(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	grants, err := h.resolver.EffectivePermissions(reqCtx(c), auth.ActorFromUser(u))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "permissions": grants})
}
