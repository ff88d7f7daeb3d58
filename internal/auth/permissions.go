// Package auth - Permission resolution
package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aethra/makazi/internal/platform/metrics"
)

// Action represents a permission action
type Action string

const (
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionExport  Action = "export"
	ActionApprove Action = "approve"
)

// Actions lists every action in catalog order
var Actions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport, ActionApprove}

// ParseAction converts a raw string into an Action
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// Valid reports whether a is a known action
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport, ActionApprove:
		return true
	}
	return false
}

// Page names of the permission catalog
const (
	PageResidences    = "residences"
	PageFamilyMembers = "family_members"
	PageBin           = "bin"
	PageTransfers     = "transfers"
	PageWards         = "wards"
	PageVillages      = "villages"
	PageReports       = "reports"
	PageUsers         = "users"
	PagePermissions   = "permissions"
	PageAudit         = "audit"

	// PageAllData with ActionView lifts ward and village scoping
	PageAllData = "all_data"
)

// Source names what decided a permission check
type Source string

const (
	SourceSuperAdmin   Source = "super_admin"
	SourceUserOverride Source = "user_override"
	SourceRoleDefault  Source = "role_default"
	SourceNone         Source = "none"
)

// Decision is the outcome of a permission check
type Decision struct {
	Allowed bool   `json:"allowed"`
	Source  Source `json:"source"`
}

// Resolver decides (actor, page, action) permission checks. User overrides
// are consulted before role defaults; no matching row means denied.
type Resolver struct {
	db      *gorm.DB
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewResolver creates a new permission resolver
func NewResolver(db *gorm.DB, logger *zap.Logger, m *metrics.Metrics) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{db: db, logger: logger, metrics: m}
}

// grantRow is one candidate row of either grant table
type grantRow struct {
	IsGranted bool
	ActionID  *uint
}

// Decide resolves a permission check and reports which source decided it.
// Storage errors are returned to the caller.
func (r *Resolver) Decide(ctx context.Context, actor *Actor, page string, action Action) (Decision, error) {
	if actor == nil {
		return Decision{Source: SourceNone}, nil
	}
	if actor.IsSuperAdmin() {
		return Decision{Allowed: true, Source: SourceSuperAdmin}, nil
	}
	if !action.Valid() {
		return Decision{Source: SourceNone}, nil
	}

	granted, found, err := r.lookup(ctx, "user_permissions", "user_id", actor.UserID, page, action)
	if err != nil {
		return Decision{Source: SourceNone}, fmt.Errorf("user override lookup: %w", err)
	}
	if found {
		return Decision{Allowed: granted, Source: SourceUserOverride}, nil
	}

	granted, found, err = r.lookup(ctx, "role_permissions", "role", actor.Role, page, action)
	if err != nil {
		return Decision{Source: SourceNone}, fmt.Errorf("role default lookup: %w", err)
	}
	if found {
		return Decision{Allowed: granted, Source: SourceRoleDefault}, nil
	}

	return Decision{Source: SourceNone}, nil
}

// IsAllowed is Decide with storage errors logged and treated as denied
func (r *Resolver) IsAllowed(ctx context.Context, actor *Actor, page string, action Action) bool {
	d, err := r.Decide(ctx, actor, page, action)
	if err != nil {
		r.logger.Error("permission check failed",
			zap.Uint("user_id", actorID(actor)),
			zap.String("page", page),
			zap.String("action", string(action)),
			zap.Error(err))
		r.metrics.IncDenial(page, string(action))
		return false
	}
	if !d.Allowed {
		r.metrics.IncDenial(page, string(action))
	}
	return d.Allowed
}

// CanViewAllData reports whether actor is exempt from location scoping
func (r *Resolver) CanViewAllData(ctx context.Context, actor *Actor) bool {
	if actor.IsSuperAdmin() {
		return true
	}
	d, err := r.Decide(ctx, actor, PageAllData, ActionView)
	if err != nil {
		r.logger.Error("all-data check failed", zap.Uint("user_id", actorID(actor)), zap.Error(err))
		return false
	}
	return d.Allowed
}

// lookup finds the grant row for (key, page, action) in table. A view check
// also matches a page-level row (NULL action); an action-specific row wins
// over the page-level one. Inactive pages and actions never match.
func (r *Resolver) lookup(ctx context.Context, table, keyColumn string, key interface{}, page string, action Action) (bool, bool, error) {
	q := r.db.WithContext(ctx).
		Table(table+" AS g").
		Select("g.is_granted, g.action_id").
		Joins("JOIN permission_pages pp ON pp.id = g.page_id").
		Joins("LEFT JOIN permission_actions pa ON pa.id = g.action_id").
		Where("g."+keyColumn+" = ?", key).
		Where("pp.name = ? AND pp.is_active = ?", page, true)

	if action == ActionView {
		q = q.Where("(g.action_id IS NULL OR (pa.name = ? AND pa.is_active = ?))", string(action), true)
	} else {
		q = q.Where("pa.name = ? AND pa.is_active = ?", string(action), true)
	}

	var rows []grantRow
	if err := q.Order("g.action_id IS NULL").Limit(1).Scan(&rows).Error; err != nil {
		return false, false, err
	}
	if len(rows) == 0 {
		return false, false, nil
	}
	return rows[0].IsGranted, true, nil
}

func actorID(a *Actor) uint {
	if a == nil {
		return 0
	}
	return a.UserID
}
