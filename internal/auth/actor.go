package auth

import (
	"context"

	"github.com/aethra/makazi/internal/models"
)

// Actor is the authenticated caller of one request. It is built by the HTTP
// layer and passed explicitly into every service call.
type Actor struct {
	UserID    uint
	FullName  string
	Username  string
	Role      models.Role
	WardID    *uint
	VillageID *uint
}

// ActorFromUser builds an Actor from a stored user
func ActorFromUser(u *models.User) *Actor {
	return &Actor{
		UserID:    u.ID,
		FullName:  u.FullName,
		Username:  u.Username,
		Role:      u.Role,
		WardID:    u.WardID,
		VillageID: u.VillageID,
	}
}

// IsSuperAdmin reports whether a is a super admin
func (a *Actor) IsSuperAdmin() bool {
	return a != nil && a.Role == models.RoleSuperAdmin
}

// HasRole reports whether a holds one of roles
func (a *Actor) HasRole(roles ...models.Role) bool {
	if a == nil {
		return false
	}
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

type actorKey struct{}

// WithActor stores a in ctx
func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor stored in ctx, if any
func ActorFromContext(ctx context.Context) (*Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(*Actor)
	return a, ok && a != nil
}
