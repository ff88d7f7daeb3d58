package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aethra/makazi/internal/auth"
	"github.com/aethra/makazi/internal/models"
)

// TransferRequest opens a transfer
type TransferRequest struct {
	ResidenceID uint   `json:"residence_id" binding:"required"`
	ToVillageID uint   `json:"to_village_id" binding:"required"`
	Reason      string `json:"reason"`
}

// RequestTransfer opens a transfer of a residence to another village
// POST /api/transfers
func (h *Handler) RequestTransfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErrorWithInput(c, bindError(err), req)
		return
	}

	t, err := h.transfers.Request(reqCtx(c), actorOf(c), req.ResidenceID, req.ToVillageID, req.Reason)
	if err != nil {
		h.respondErrorWithInput(c, err, req)
		return
	}
	c.JSON(http.StatusCreated, t)
}

type queueFunc func(ctx context.Context, actor *auth.Actor) ([]models.ResidenceTransfer, error)

// queue renders a review queue; an empty queue is []
func (h *Handler) queue(fn queueFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := fn(reqCtx(c), actorOf(c))
		if err != nil {
			h.respondError(c, err)
			return
		}
		if list == nil {
			list = []models.ResidenceTransfer{}
		}
		c.JSON(http.StatusOK, list)
	}
}

// PendingForWEO lists transfers waiting on the ward officer
// GET /api/transfers/pending/weo
func (h *Handler) PendingForWEO(c *gin.Context) { h.queue(h.transfers.PendingForWEO)(c) }

// PendingForWardAdmin GET /api/transfers/pending/ward
func (h *Handler) PendingForWardAdmin(c *gin.Context) { h.queue(h.transfers.PendingForWardAdmin)(c) }

// PendingForVEO GET /api/transfers/pending/veo
func (h *Handler) PendingForVEO(c *gin.Context) { h.queue(h.transfers.PendingForVEO)(c) }

type transitionFunc func(ctx context.Context, actor *auth.Actor, id uint) (*models.ResidenceTransfer, error)

func (h *Handler) transition(fn transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			h.badRequest(c, "invalid id")
			return
		}
		t, err := fn(reqCtx(c), actorOf(c), id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// ApproveByWEO POST /api/transfers/:id/weo-approve
func (h *Handler) ApproveByWEO(c *gin.Context) { h.transition(h.transfers.ApproveByWEO)(c) }

// ApproveByWard POST /api/transfers/:id/ward-approve
func (h *Handler) ApproveByWard(c *gin.Context) { h.transition(h.transfers.ApproveByWard)(c) }

// AcceptTransfer POST /api/transfers/:id/accept
func (h *Handler) AcceptTransfer(c *gin.Context) { h.transition(h.transfers.Accept)(c) }

// CancelTransfer POST /api/transfers/:id/cancel
func (h *Handler) CancelTransfer(c *gin.Context) { h.transition(h.transfers.Cancel)(c) }

// RejectTransfer ends a transfer at its current stage
// POST /api/transfers/:id/reject
func (h *Handler) RejectTransfer(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.badRequest(c, "invalid id")
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"notblank"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErrorWithInput(c, bindError(err), req)
		return
	}
	t, err := h.transfers.Reject(reqCtx(c), actorOf(c), id, req.Reason)
	if err != nil {
		h.respondErrorWithInput(c, err, req)
		return
	}
	c.JSON(http.StatusOK, t)
}

// GetTransfer GET /api/transfers/:id
func (h *Handler) GetTransfer(c *gin.Context) { h.transition(h.transfers.Get)(c) }

// ListTransfers returns transfers touching the caller's reach
// GET /api/transfers?status=
func (h *Handler) ListTransfers(c *gin.Context) {
	var status models.TransferStatus
	if raw := c.Query("status"); raw != "" {
		st, err := models.ParseTransferStatus(raw)
		if err != nil {
			h.badRequest(c, "unknown status")
			return
		}
		status = st
	}
	list, err := h.transfers.List(reqCtx(c), actorOf(c), status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
