package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aethra/makazi/internal/directory"
	"github.com/aethra/makazi/internal/validation"
)

// VillagesByWard lists the active villages of a ward as [{id, village_name}].
// It always answers with an array; a bad id or a failed read yields [].
// GET /api/locations/wards/:id/villages
func (h *Handler) VillagesByWard(c *gin.Context) {
	wardID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || wardID == 0 {
		c.JSON(http.StatusOK, []directory.VillageOption{})
		return
	}
	opts, err := h.locations.VillageOptions(reqCtx(c), uint(wardID))
	if err != nil {
		h.logger.Error("village lookup failed", zap.Uint64("ward_id", wardID), zap.Error(err))
		opts = []directory.VillageOption{}
	}
	c.JSON(http.StatusOK, opts)
}

// AccessibleWards lists the active wards in the caller's reach
// GET /api/locations/wards
func (h *Handler) AccessibleWards(c *gin.Context) {
	wards, err := h.locations.AccessibleWards(reqCtx(c), actorOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wards)
}

// AccessibleVillages lists the active villages in the caller's reach
// GET /api/locations/villages
func (h *Handler) AccessibleVillages(c *gin.Context) {
	villages, err := h.locations.AccessibleVillages(reqCtx(c), actorOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, villages)
}

// ValidationScript serves the browser copy of the field validators
// GET /static/validation.js
func (h *Handler) ValidationScript(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", validation.ClientScript())
}

// ValidateFields runs the server validators on a form without saving it
// POST /api/validate
func (h *Handler) ValidateFields(c *gin.Context) {
	var req struct {
		Fields   map[string]string `json:"fields"`
		Required []string          `json:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	c.JSON(http.StatusOK, validation.ValidateFormData(req.Fields, req.Required))
}
