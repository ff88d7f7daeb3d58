package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aethra/makazi/internal/registry"
)

// =============================================================================
// RESIDENCES
// =============================================================================

// ListResidences returns one page of residences in the caller's reach
// GET /api/residences
func (h *Handler) ListResidences(c *gin.Context) {
	var p registry.ListParams
	if err := c.ShouldBindQuery(&p); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}
	result, err := h.registry.List(reqCtx(c), actorOf(c), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetResidence returns one residence
// GET /api/residences/:id
func (h *Handler) GetResidence(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	r, err := h.registry.Get(reqCtx(c), actorOf(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// CreateResidence registers a residence and points at the member form
// POST /api/residences
func (h *Handler) CreateResidence(c *gin.Context) {
	var in registry.ResidenceInput
	if err := c.ShouldBind(&in); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	r, err := h.registry.Create(reqCtx(c), actorOf(c), in)
	if err != nil {
		h.respondErrorWithInput(c, err, in)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"residence": r,
		"next":      fmt.Sprintf("/api/residences/%d/members", r.ID),
	})
}

// UpdateResidence replaces the editable fields of a residence
// PUT /api/residences/:id
func (h *Handler) UpdateResidence(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	var in registry.ResidenceInput
	if err := c.ShouldBind(&in); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	r, err := h.registry.Update(reqCtx(c), actorOf(c), id, in)
	if err != nil {
		h.respondErrorWithInput(c, err, in)
		return
	}
	c.JSON(http.StatusOK, r)
}

// DeleteResidence moves a residence to the bin
// DELETE /api/residences/:id
func (h *Handler) DeleteResidence(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	if err := h.registry.Delete(reqCtx(c), actorOf(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "moved to bin"})
}

// ListBin returns deleted residences
// GET /api/bin
func (h *Handler) ListBin(c *gin.Context) {
	var p registry.ListParams
	if err := c.ShouldBindQuery(&p); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}
	result, err := h.registry.ListBin(reqCtx(c), actorOf(c), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RestoreResidence brings a residence back from the bin
// POST /api/bin/:id/restore
func (h *Handler) RestoreResidence(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	r, err := h.registry.Restore(reqCtx(c), actorOf(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// =============================================================================
// FAMILY MEMBERS
// =============================================================================

// ListMembers returns the family of a residence
// GET /api/residences/:id/members
func (h *Handler) ListMembers(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	members, err := h.registry.ListMembers(reqCtx(c), actorOf(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

// AddMember records a family member
// POST /api/residences/:id/members
func (h *Handler) AddMember(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	var in registry.MemberInput
	if err := c.ShouldBind(&in); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	m, err := h.registry.AddMember(reqCtx(c), actorOf(c), id, in)
	if err != nil {
		h.respondErrorWithInput(c, err, in)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// DeleteMember removes a family member of a residence the caller registered
// DELETE /api/residences/:id/members/:memberId
func (h *Handler) DeleteMember(c *gin.Context) {
	id, ok := parseID(c, "id")
	memberID, mok := parseID(c, "memberId")
	if !ok || !mok {
		h.badRequest(c, "invalid id")
		return
	}
	if err := h.registry.DeleteMember(reqCtx(c), actorOf(c), id, memberID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted successfully"})
}
