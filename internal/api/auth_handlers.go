// Package api - Authentication handlers
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aethra/makazi/internal/audit"
	"github.com/aethra/makazi/internal/auth"
	apperrors "github.com/aethra/makazi/internal/errors"
	"github.com/aethra/makazi/internal/models"
)

// LoginRequest represents login credentials
type LoginRequest struct {
	Username string `json:"username" form:"username" binding:"notblank"`
	Password string `json:"password" form:"password" binding:"required"`
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// UserResponse is a user without secrets
type UserResponse struct {
	ID          uint        `json:"id"`
	FullName    string      `json:"full_name"`
	Username    string      `json:"username"`
	Role        models.Role `json:"role"`
	IsActive    bool        `json:"is_active"`
	WardID      *uint       `json:"ward_id"`
	VillageID   *uint       `json:"village_id"`
	LastLoginAt *time.Time  `json:"last_login_at"`
}

func userResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		FullName:    u.FullName,
		Username:    u.Username,
		Role:        u.Role,
		IsActive:    u.IsActive,
		WardID:      u.WardID,
		VillageID:   u.VillageID,
		LastLoginAt: u.LastLoginAt,
	}
}

// Login authenticates a user, opens a browser session and returns tokens
// POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.respondErrorWithInput(c, bindError(err), gin.H{"username": req.Username})
		return
	}

	ctx := reqCtx(c)
	key := c.ClientIP() + "|" + strings.ToLower(strings.TrimSpace(req.Username))
	allowed, err := h.limiter.Allow(ctx, key)
	if err != nil {
		h.logger.Warn("login limiter unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		c.Header("Retry-After", "900")
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":   "TOO_MANY_ATTEMPTS",
			"message": "Too many login attempts. Please wait before trying again.",
		})
		return
	}

	user, err := h.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.limiter.Reset(ctx, key); err != nil {
		h.logger.Warn("failed to reset login limiter", zap.Error(err))
	}

	tokens, err := h.jwt.GenerateTokenPair(user)
	if err != nil {
		h.respondError(c, apperrors.NewInternalError(err))
		return
	}
	if h.sessions != nil {
		if err := h.sessions.Save(c.Writer, c.Request, auth.ActorFromUser(user)); err != nil {
			h.respondError(c, apperrors.NewInternalError(err))
			return
		}
	}

	if err := audit.Record(ctx, h.db, audit.Entry{
		ActorID:    user.ID,
		Action:     audit.ActionLogin,
		EntityType: audit.EntityUser,
		EntityID:   user.ID,
	}); err != nil {
		h.logger.Warn("failed to audit sign-in", zap.Error(err))
	}
	h.logger.Info("user signed in", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	c.JSON(http.StatusOK, gin.H{
		"user":   userResponse(user),
		"tokens": tokens,
	})
}

// RefreshToken generates new tokens using a refresh token
// POST /auth/refresh
func (h *Handler) RefreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, bindError(err))
		return
	}

	claims, err := h.jwt.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		h.respondError(c, apperrors.NewUnauthorizedError("invalid refresh token"))
		return
	}
	ctx := reqCtx(c)
	if revoked, err := h.trl.IsRevoked(ctx, claims.ID); err != nil {
		h.respondError(c, err)
		return
	} else if revoked {
		h.respondError(c, apperrors.NewUnauthorizedError("refresh token has been revoked"))
		return
	}

	user, err := h.users.ActiveUser(ctx, claims.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// Rotate: the presented refresh token cannot be used again
	if claims.ExpiresAt != nil {
		if err := h.trl.RevokeToken(ctx, claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
			h.respondError(c, err)
			return
		}
	}

	tokens, err := h.jwt.GenerateTokenPair(user)
	if err != nil {
		h.respondError(c, apperrors.NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// GetMe returns the current user and the capabilities the UI should offer
// GET /auth/me
func (h *Handler) GetMe(c *gin.Context) {
	a := actorOf(c)
	user, err := h.users.Get(reqCtx(c), a.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	grants, err := h.resolver.EffectivePermissions(reqCtx(c), a)
	if err != nil {
		h.respondError(c, err)
		return
	}

	allowed := map[string][]auth.Action{}
	for _, g := range grants {
		if g.Allowed {
			allowed[g.Page] = append(allowed[g.Page], g.Action)
		}
	}
	scope := h.locations.Scope(reqCtx(c), a)
	c.JSON(http.StatusOK, gin.H{
		"user":        userResponse(user),
		"permissions": allowed,
		"scope":       scope.Kind.String(),
	})
}

// ChangePassword changes the caller's password
// POST /auth/change-password
func (h *Handler) ChangePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, bindError(err))
		return
	}
	if err := h.users.ChangePassword(reqCtx(c), actorOf(c).UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed successfully"})
}

// Logout clears the session and revokes the presented access token
// POST /auth/logout
func (h *Handler) Logout(c *gin.Context) {
	if v, ok := c.Get(ctxClaims); ok {
		if claims, ok := v.(*auth.Claims); ok && claims.ExpiresAt != nil {
			if err := h.trl.RevokeToken(reqCtx(c), claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
				h.respondError(c, err)
				return
			}
		}
	}
	if h.sessions != nil {
		if err := h.sessions.Clear(c.Writer, c.Request); err != nil {
			h.logger.Warn("failed to clear session", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}
