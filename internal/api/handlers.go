// Package api contains the HTTP API handlers for Makazi
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aethra/makazi/internal/audit"
	"github.com/aethra/makazi/internal/auth"
	"github.com/aethra/makazi/internal/directory"
	apperrors "github.com/aethra/makazi/internal/errors"
	"github.com/aethra/makazi/internal/platform/metrics"
	"github.com/aethra/makazi/internal/registry"
	"github.com/aethra/makazi/internal/reports"
	"github.com/aethra/makazi/internal/transfer"
	"github.com/aethra/makazi/internal/users"
)

const (
	ctxActor     = "actor"
	ctxRequestID = "request_id"
	ctxClaims    = "claims"
)

// Handler contains the shared dependencies of every API handler
type Handler struct {
	db        *gorm.DB
	logger    *zap.Logger
	metrics   *metrics.Metrics
	resolver  *auth.Resolver
	jwt       *auth.JWTService
	sessions  *auth.SessionManager
	trl       auth.TokenRevocationList
	limiter   auth.LoginLimiter
	users     *users.Service
	locations *directory.Service
	registry  *registry.Service
	transfers *transfer.Service
	reports   *reports.Service
	audit     *audit.Service
}

// Deps wires a Handler
type Deps struct {
	DB       *gorm.DB
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	JWT      *auth.JWTService
	Sessions *auth.SessionManager
	TRL      auth.TokenRevocationList
	Limiter  auth.LoginLimiter
}

// NewHandler builds the services over deps.DB and returns the handler
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	trl := d.TRL
	if trl == nil {
		trl = auth.NewMemoryTRL()
	}
	limiter := d.Limiter
	if limiter == nil {
		limiter = auth.NewMemoryLoginLimiter(5, 15*time.Minute)
	}

	configureBinding()
	resolver := auth.NewResolver(d.DB, logger.Named("permissions"), d.Metrics)
	return &Handler{
		db:        d.DB,
		logger:    logger,
		metrics:   d.Metrics,
		resolver:  resolver,
		jwt:       d.JWT,
		sessions:  d.Sessions,
		trl:       trl,
		limiter:   limiter,
		users:     users.NewService(d.DB, logger.Named("users")),
		locations: directory.NewService(d.DB, resolver, logger.Named("locations")),
		registry:  registry.NewService(d.DB, resolver, logger.Named("registry")),
		transfers: transfer.NewService(d.DB, resolver, logger.Named("transfers"), d.Metrics),
		reports:   reports.NewService(d.DB, resolver, logger.Named("reports")),
		audit:     audit.NewService(d.DB),
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// RequestIDMiddleware tags each request with an id, reusing X-Request-ID
func (h *Handler) RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set(ctxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// LoggingMiddleware writes one log line and one metric sample per request
func (h *Handler) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		h.metrics.ObserveRequest(c.Request.Method, route, strconv.Itoa(status), latency)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.String("client_ip", c.ClientIP()),
		}
		if a := actorOf(c); a != nil {
			fields = append(fields, zap.Uint("user_id", a.UserID))
		}
		switch {
		case status >= http.StatusInternalServerError:
			h.logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			h.logger.Warn("request", fields...)
		default:
			h.logger.Info("request", fields...)
		}
	}
}

// UserMiddleware resolves the caller from a bearer token or the session
// cookie. The account is re-read on every request so a disabled user or a
// changed assignment takes effect at once.
func (h *Handler) UserMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithClientIP(c.Request.Context(), c.ClientIP())
		c.Request = c.Request.WithContext(ctx)

		var userID uint
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			claims, err := h.jwt.ValidateAccessToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				h.abortUnauthorized(c, "invalid or expired token")
				return
			}
			revoked, err := h.trl.IsRevoked(ctx, claims.ID)
			if err != nil {
				h.respondError(c, err)
				c.Abort()
				return
			}
			if revoked {
				h.abortUnauthorized(c, "token has been revoked")
				return
			}
			c.Set(ctxClaims, claims)
			userID = claims.UserID
		} else if h.sessions != nil {
			if a, ok := h.sessions.Load(c.Request); ok {
				userID = a.UserID
			}
		}

		if userID != 0 {
			u, err := h.users.ActiveUser(ctx, userID)
			if err != nil {
				if apperrors.IsInternal(err) {
					h.respondError(c, err)
					c.Abort()
					return
				}
				if h.sessions != nil {
					_ = h.sessions.Clear(c.Writer, c.Request)
				}
				h.abortUnauthorized(c, err.Error())
				return
			}
			actor := auth.ActorFromUser(u)
			c.Set(ctxActor, actor)
			c.Request = c.Request.WithContext(auth.WithActor(ctx, actor))
		}
		c.Next()
	}
}

// RequireAuthMiddleware rejects anonymous callers
func (h *Handler) RequireAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorOf(c) == nil {
			h.abortUnauthorized(c, "")
			return
		}
		c.Next()
	}
}

// PermissionMiddleware requires the (page, action) capability
func (h *Handler) PermissionMiddleware(page string, action auth.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		a := actorOf(c)
		if a == nil {
			h.abortUnauthorized(c, "")
			return
		}
		if !h.resolver.IsAllowed(c.Request.Context(), a, page, action) {
			h.abortForbidden(c, string(action), page)
			return
		}
		c.Next()
	}
}

// RoleMiddleware requires one of roles. Super admins always pass.
func (h *Handler) RoleMiddleware(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		a := actorOf(c)
		if a == nil {
			h.abortUnauthorized(c, "")
			return
		}
		if a.IsSuperAdmin() {
			c.Next()
			return
		}
		for _, r := range roles {
			if string(a.Role) == r {
				c.Next()
				return
			}
		}
		h.abortForbidden(c, "access", "role")
	}
}

// =============================================================================
// RESPONSES
// =============================================================================

// wantsHTML reports whether the caller is a browser navigating to a page
func wantsHTML(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	return c.Request.Method == http.MethodGet &&
		strings.Contains(accept, "text/html") &&
		!strings.Contains(accept, "application/json")
}

func (h *Handler) abortUnauthorized(c *gin.Context, message string) {
	if wantsHTML(c) {
		c.Redirect(http.StatusFound, "/unauthorized")
		c.Abort()
		return
	}
	status, body := apperrors.ToHTTPError(apperrors.NewUnauthorizedError(message))
	c.AbortWithStatusJSON(status, body)
}

func (h *Handler) abortForbidden(c *gin.Context, action, resource string) {
	if wantsHTML(c) {
		c.Redirect(http.StatusFound, "/unauthorized")
		c.Abort()
		return
	}
	status, body := apperrors.ToHTTPError(apperrors.NewPermissionDeniedError(action, resource))
	c.AbortWithStatusJSON(status, body)
}

// respondError renders err. Storage failures are logged with their cause and
// shown to the client as an opaque 500.
func (h *Handler) respondError(c *gin.Context, err error) {
	h.respondErrorWithInput(c, err, nil)
}

// respondErrorWithInput is respondError that echoes the submitted form back
// on validation errors so the client can redisplay it
func (h *Handler) respondErrorWithInput(c *gin.Context, err error, input interface{}) {
	status, body := apperrors.ToHTTPError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	if status == http.StatusUnprocessableEntity && input != nil {
		body["input"] = input
	}
	c.JSON(status, body)
}

func (h *Handler) badRequest(c *gin.Context, message string) {
	h.respondError(c, apperrors.NewBadRequestError(message))
}

// =============================================================================
// HELPERS
// =============================================================================

func actorOf(c *gin.Context) *auth.Actor {
	v, ok := c.Get(ctxActor)
	if !ok {
		return nil
	}
	a, _ := v.(*auth.Actor)
	return a
}

func reqCtx(c *gin.Context) context.Context {
	return c.Request.Context()
}

// parseID reads a positive numeric path parameter
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func parseIntParam(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

// Health returns the health status
// GET /health
func (h *Handler) Health(c *gin.Context) {
	status := "ok"
	code := http.StatusOK
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(reqCtx(c)) != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"service": "makazi",
	})
}

// Unauthorized is the landing page for browsers that hit a guarded route
// GET /unauthorized
func (h *Handler) Unauthorized(c *gin.Context) {
	c.String(http.StatusUnauthorized, "You are not signed in or not allowed to open this page.")
}
