// Package directory resolves an actor's administrative reach and serves the
// ward and village hierarchy.
package directory

import (
	"context"

	"gorm.io/gorm"

	"github.com/aethra/makazi/internal/auth"
	"github.com/aethra/makazi/internal/models"
)

// ScopeKind is the breadth of an actor's reach
type ScopeKind int

const (
	// ScopeNone sees nothing: a field role without an assignment
	ScopeNone ScopeKind = iota
	ScopeVillage
	ScopeWard
	ScopeGlobal
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeVillage:
		return "village"
	case ScopeWard:
		return "ward"
	case ScopeGlobal:
		return "global"
	}
	return "none"
}

// Scope is the set of locations an actor may see
type Scope struct {
	Kind      ScopeKind
	WardID    uint
	VillageID uint
}

// AllDataChecker reports the all-data capability. *auth.Resolver implements it.
type AllDataChecker interface {
	CanViewAllData(ctx context.Context, actor *auth.Actor) bool
}

// ResolveScope applies the scoping rule: the all-data capability is global,
// then an assigned village beats an assigned ward. Admins without an
// assignment are global; other roles without one see nothing.
func ResolveScope(ctx context.Context, actor *auth.Actor, checker AllDataChecker) Scope {
	if actor == nil {
		return Scope{Kind: ScopeNone}
	}
	if actor.IsSuperAdmin() || (checker != nil && checker.CanViewAllData(ctx, actor)) {
		return Scope{Kind: ScopeGlobal}
	}
	if actor.VillageID != nil {
		s := Scope{Kind: ScopeVillage, VillageID: *actor.VillageID}
		if actor.WardID != nil {
			s.WardID = *actor.WardID
		}
		return s
	}
	if actor.WardID != nil {
		return Scope{Kind: ScopeWard, WardID: *actor.WardID}
	}
	if actor.Role == models.RoleAdmin {
		return Scope{Kind: ScopeGlobal}
	}
	return Scope{Kind: ScopeNone}
}

// Condition renders s as a SQL condition over the given location columns
func (s Scope) Condition(wardColumn, villageColumn string) (string, []interface{}) {
	switch s.Kind {
	case ScopeGlobal:
		return "1 = 1", nil
	case ScopeVillage:
		return villageColumn + " = ?", []interface{}{s.VillageID}
	case ScopeWard:
		return wardColumn + " = ?", []interface{}{s.WardID}
	default:
		return "1 = 0", nil
	}
}

// Apply restricts q to rows whose location columns fall inside s
func (s Scope) Apply(q *gorm.DB, wardColumn, villageColumn string) *gorm.DB {
	if s.Kind == ScopeGlobal {
		return q
	}
	cond, args := s.Condition(wardColumn, villageColumn)
	return q.Where(cond, args...)
}

// ApplyResidences restricts q to the residences actor may read: those inside
// s, and for data collectors also every residence they registered
func (s Scope) ApplyResidences(q *gorm.DB, actor *auth.Actor, wardColumn, villageColumn, registeredByColumn string) *gorm.DB {
	if s.Kind == ScopeGlobal {
		return q
	}
	cond, args := s.Condition(wardColumn, villageColumn)
	if actor != nil && actor.Role == models.RoleDataCollector {
		return q.Where("("+cond+" OR "+registeredByColumn+" = ?)", append(args, actor.UserID)...)
	}
	return q.Where(cond, args...)
}

// Contains reports whether a (ward, village) location is inside s
func (s Scope) Contains(wardID, villageID uint) bool {
	switch s.Kind {
	case ScopeGlobal:
		return true
	case ScopeVillage:
		return villageID == s.VillageID
	case ScopeWard:
		return wardID == s.WardID
	}
	return false
}
