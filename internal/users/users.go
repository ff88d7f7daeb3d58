// Package users manages system accounts and their administrative assignment
package users

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aethra/makazi/internal/audit"
	"github.com/aethra/makazi/internal/auth"
	"github.com/aethra/makazi/internal/database"
	apperrors "github.com/aethra/makazi/internal/errors"
	"github.com/aethra/makazi/internal/models"
	"github.com/aethra/makazi/internal/security"
	"github.com/aethra/makazi/internal/validation"
)

// ErrInvalidCredentials is returned by Authenticate for an unknown user, a
// wrong password or a disabled account alike
var ErrInvalidCredentials = apperrors.NewUnauthorizedError("invalid credentials")

// Service manages users
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService creates a new user service
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger}
}

// CreateInput is a new account
type CreateInput struct {
	FullName  string `json:"full_name" binding:"notblank"`
	Username  string `json:"username" binding:"notblank"`
	Password  string `json:"password" binding:"required,min=8"`
	Role      string `json:"role" binding:"required"`
	WardID    *uint  `json:"ward_id"`
	VillageID *uint  `json:"village_id"`
}

// UpdateInput replaces the profile and assignment of an account
type UpdateInput struct {
	FullName  string `json:"full_name" binding:"notblank"`
	Role      string `json:"role" binding:"required"`
	WardID    *uint  `json:"ward_id"`
	VillageID *uint  `json:"village_id"`
}

// assignment is a role with its checked location
type assignment struct {
	role      models.Role
	wardID    *uint
	villageID *uint
}

// resolveAssignment enforces the role rules: a WEO needs a ward, a VEO needs
// a village, a village must sit in the given ward, and super admins carry no
// assignment. A village alone implies its ward.
func (s *Service) resolveAssignment(ctx context.Context, rawRole string, wardID, villageID *uint) (*assignment, map[string]string, error) {
	fields := map[string]string{}
	role, err := models.ParseRole(strings.TrimSpace(rawRole))
	if err != nil {
		fields["role"] = "Role must be one of super_admin, admin, weo, veo, data_collector"
		return nil, fields, nil
	}
	if role == models.RoleSuperAdmin {
		return &assignment{role: role}, fields, nil
	}

	a := &assignment{role: role, wardID: nonZero(wardID), villageID: nonZero(villageID)}

	if a.villageID != nil {
		var v models.Village
		if err := s.db.WithContext(ctx).First(&v, *a.villageID).Error; err != nil {
			if database.IsNotFound(err) {
				fields["village_id"] = "Village does not exist"
				return nil, fields, nil
			}
			return nil, nil, err
		}
		if a.wardID != nil && *a.wardID != v.WardID {
			fields["village_id"] = "Village does not belong to the selected ward"
			return nil, fields, nil
		}
		a.wardID = &v.WardID
	} else if a.wardID != nil {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Ward{}).Where("id = ?", *a.wardID).Count(&count).Error; err != nil {
			return nil, nil, err
		}
		if count == 0 {
			fields["ward_id"] = "Ward does not exist"
			return nil, fields, nil
		}
	}

	switch role {
	case models.RoleWEO:
		if a.wardID == nil {
			fields["ward_id"] = "A WEO must be assigned to a ward"
		}
		a.villageID = nil
	case models.RoleVEO:
		if a.villageID == nil {
			fields["village_id"] = "A VEO must be assigned to a village"
		}
	}
	return a, fields, nil
}

// mergeFields adds the tag failures that no earlier check reported
func mergeFields(fields, tagged map[string]string) {
	for k, msg := range tagged {
		if _, set := fields[k]; !set {
			fields[k] = msg
		}
	}
}

func nonZero(p *uint) *uint {
	if p == nil || *p == 0 {
		return nil
	}
	v := *p
	return &v
}

// List returns users ordered by name. An empty role lists every role.
func (s *Service) List(ctx context.Context, role string) ([]models.User, error) {
	q := s.db.WithContext(ctx).Preload("Ward").Preload("Village")
	if role != "" {
		r, err := models.ParseRole(role)
		if err != nil {
			return nil, apperrors.NewFieldError("role", "Unknown role")
		}
		q = q.Where("role = ?", r)
	}
	users := []models.User{}
	err := q.Order("full_name, id").Find(&users).Error
	return users, err
}

// Get returns one user
func (s *Service) Get(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Preload("Ward").Preload("Village").First(&u, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError("user")
		}
		return nil, err
	}
	return &u, nil
}

// Create adds an active account
func (s *Service) Create(ctx context.Context, actor *auth.Actor, in CreateInput) (*models.User, error) {
	in.FullName = security.SanitizeText(in.FullName)
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))

	a, fields, err := s.resolveAssignment(ctx, in.Role, in.WardID, in.VillageID)
	if err != nil {
		return nil, err
	}
	mergeFields(fields, validation.Struct(in))
	if len(fields) > 0 {
		return nil, apperrors.NewValidationError(fields)
	}
	if actor != nil && a.role == models.RoleSuperAdmin && !actor.IsSuperAdmin() {
		return nil, apperrors.NewPermissionDeniedError("create", "super_admin")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := models.User{
		FullName:     in.FullName,
		Username:     in.Username,
		PasswordHash: hash,
		Role:         a.role,
		IsActive:     true,
		WardID:       a.wardID,
		VillageID:    a.villageID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.User{}).Where("username = ?", u.Username).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return apperrors.NewFieldError("username", "Username is already taken")
		}
		if err := tx.Create(&u).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.NewFieldError("username", "Username is already taken")
			}
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actorID(actor),
			Action:     audit.ActionCreate,
			EntityType: audit.EntityUser,
			EntityID:   u.ID,
			Details:    map[string]interface{}{"role": string(u.Role), "username": u.Username},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.Uint("user_id", u.ID), zap.String("role", string(u.Role)))
	return &u, nil
}

// Update replaces the profile and assignment of a user
func (s *Service) Update(ctx context.Context, actor *auth.Actor, id uint, in UpdateInput) (*models.User, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a, fields, err := s.resolveAssignment(ctx, in.Role, in.WardID, in.VillageID)
	if err != nil {
		return nil, err
	}
	in.FullName = security.SanitizeText(in.FullName)
	mergeFields(fields, validation.Struct(in))
	if len(fields) > 0 {
		return nil, apperrors.NewValidationError(fields)
	}
	if actor != nil && !actor.IsSuperAdmin() &&
		(a.role == models.RoleSuperAdmin || current.Role == models.RoleSuperAdmin) {
		return nil, apperrors.NewPermissionDeniedError("edit", "super_admin")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", id).Updates(map[string]interface{}{
			"full_name":  in.FullName,
			"role":       a.role,
			"ward_id":    a.wardID,
			"village_id": a.villageID,
		}).Error; err != nil {
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actorID(actor),
			Action:     audit.ActionUpdate,
			EntityType: audit.EntityUser,
			EntityID:   id,
			Details:    map[string]interface{}{"from_role": string(current.Role), "role": string(a.role)},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// SetActive enables or disables an account. Nobody disables themselves.
func (s *Service) SetActive(ctx context.Context, actor *auth.Actor, id uint, active bool) error {
	if actor != nil && actor.UserID == id && !active {
		return apperrors.NewBadRequestError("you cannot deactivate your own account")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := guardTarget(tx, actor, id, "edit"); err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", id).Update("is_active", active).Error; err != nil {
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actorID(actor),
			Action:     audit.ActionUpdate,
			EntityType: audit.EntityUser,
			EntityID:   id,
			Details:    map[string]interface{}{"is_active": active},
		})
	})
}

// guardTarget loads the target account and refuses to let anyone but a
// super admin act on a super admin. A nil actor is the CLI.
func guardTarget(tx *gorm.DB, actor *auth.Actor, id uint, action string) error {
	var target models.User
	if err := tx.Select("id", "role").First(&target, id).Error; err != nil {
		if database.IsNotFound(err) {
			return apperrors.NewNotFoundError("user")
		}
		return err
	}
	if actor != nil && !actor.IsSuperAdmin() && target.Role == models.RoleSuperAdmin {
		return apperrors.NewPermissionDeniedError(action, "super_admin")
	}
	return nil
}

// Authenticate checks a username and password and stamps the login time
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).
		Where("username = ?", strings.ToLower(strings.TrimSpace(username))).
		First(&u).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.IsActive || u.PasswordHash == "" || !auth.CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&u).Update("last_login_at", now).Error; err != nil {
		s.logger.Warn("failed to stamp login time", zap.Uint("user_id", u.ID), zap.Error(err))
	}
	u.LastLoginAt = &now
	return &u, nil
}

// ActiveUser loads a user for a request and fails when it is gone or disabled
func (s *Service) ActiveUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.NewUnauthorizedError("account no longer exists")
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, apperrors.NewUnauthorizedError("account is disabled")
	}
	return &u, nil
}

// ChangePassword replaces the password after checking the current one
func (s *Service) ChangePassword(ctx context.Context, id uint, current, next string) error {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if database.IsNotFound(err) {
			return apperrors.NewNotFoundError("user")
		}
		return err
	}
	if !auth.CheckPassword(current, u.PasswordHash) {
		return apperrors.NewFieldError("current_password", "Current password is incorrect")
	}
	if msg := validation.Var("new_password", next, auth.PasswordRule); msg != "" {
		return apperrors.NewFieldError("new_password", msg)
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&u).Update("password_hash", hash).Error
}

// SetPassword replaces a password without the current one (CLI and admins)
func (s *Service) SetPassword(ctx context.Context, actor *auth.Actor, id uint, password string) error {
	if msg := validation.Var("password", password, auth.PasswordRule); msg != "" {
		return apperrors.NewFieldError("password", msg)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := guardTarget(tx, actor, id, "edit"); err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", id).Update("password_hash", hash).Error; err != nil {
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actorID(actor),
			Action:     audit.ActionPassword,
			EntityType: audit.EntityUser,
			EntityID:   id,
		})
	})
}

func actorID(a *auth.Actor) uint {
	if a == nil {
		return 0
	}
	return a.UserID
}
