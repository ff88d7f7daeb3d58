package directory

import (
	"context"
	"errors"
	"strings"

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

// Service manages wards and villages
type Service struct {
	db       *gorm.DB
	resolver AllDataChecker
	logger   *zap.Logger
}

// NewService creates a new location directory
func NewService(db *gorm.DB, resolver AllDataChecker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, resolver: resolver, logger: logger}
}

// Scope resolves the reach of actor
func (s *Service) Scope(ctx context.Context, actor *auth.Actor) Scope {
	return ResolveScope(ctx, actor, s.resolver)
}

// WardInput is the editable part of a ward
type WardInput struct {
	Name        string `json:"name" binding:"notblank"`
	Code        string `json:"code" binding:"notblank"`
	Description string `json:"description"`
}

func (in *WardInput) normalize() error {
	in.Name = security.SanitizeText(in.Name)
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Description = security.SanitizeText(in.Description)
	if fields := validation.Struct(in); len(fields) > 0 {
		return apperrors.NewValidationError(fields)
	}
	return nil
}

// VillageInput is the editable part of a village
type VillageInput struct {
	WardID      uint   `json:"ward_id" binding:"required"`
	Name        string `json:"name" binding:"notblank"`
	Code        string `json:"code" binding:"notblank"`
	Description string `json:"description"`
}

func (in *VillageInput) normalize() error {
	in.Name = security.SanitizeText(in.Name)
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Description = security.SanitizeText(in.Description)
	if fields := validation.Struct(in); len(fields) > 0 {
		return apperrors.NewValidationError(fields)
	}
	return nil
}

// =============================================================================
// WARDS
// =============================================================================

// ListWards returns wards ordered by name
func (s *Service) ListWards(ctx context.Context, activeOnly bool) ([]models.Ward, error) {
	q := s.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var wards []models.Ward
	err := q.Order("name").Find(&wards).Error
	return wards, err
}

// GetWard returns one ward
func (s *Service) GetWard(ctx context.Context, id uint) (*models.Ward, error) {
	var w models.Ward
	if err := s.db.WithContext(ctx).First(&w, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError("ward")
		}
		return nil, err
	}
	return &w, nil
}

// CreateWard adds an active ward
func (s *Service) CreateWard(ctx context.Context, actor *auth.Actor, in WardInput) (*models.Ward, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	w := models.Ward{Name: in.Name, Code: in.Code, Description: in.Description, IsActive: true}
	if actor != nil {
		w.CreatedBy = &actor.UserID
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&w).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.NewFieldError("code", "A ward with this code already exists")
			}
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actorID(actor),
			Action:     audit.ActionCreate,
			EntityType: audit.EntityWard,
			EntityID:   w.ID,
			Details:    map[string]interface{}{"code": w.Code},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("ward created", zap.Uint("ward_id", w.ID), zap.String("code", w.Code))
	return &w, nil
}

// UpdateWard replaces the editable fields of a ward
func (s *Service) UpdateWard(ctx context.Context, id uint, in WardInput) (*models.Ward, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	w, err := s.GetWard(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Model(w).Updates(map[string]interface{}{
		"name":        in.Name,
		"code":        in.Code,
		"description": in.Description,
	}).Error
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperrors.NewFieldError("code", "A ward with this code already exists")
		}
		return nil, err
	}
	return s.GetWard(ctx, id)
}

// SetWardActive activates or deactivates a ward
func (s *Service) SetWardActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.Ward{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError("ward")
	}
	return nil
}

// =============================================================================
// VILLAGES
// =============================================================================

// ListVillages returns villages ordered by name. wardID 0 lists all wards.
func (s *Service) ListVillages(ctx context.Context, wardID uint, activeOnly bool) ([]models.Village, error) {
	q := s.db.WithContext(ctx)
	if wardID != 0 {
		q = q.Where("ward_id = ?", wardID)
	}
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var villages []models.Village
	err := q.Order("name").Find(&villages).Error
	return villages, err
}

// VillageOption is the shape of the villages-by-ward lookup
type VillageOption struct {
	ID          uint   `json:"id"`
	VillageName string `json:"village_name"`
}

// VillageOptions lists the active villages of a ward for selection lists
func (s *Service) VillageOptions(ctx context.Context, wardID uint) ([]VillageOption, error) {
	villages, err := s.ListVillages(ctx, wardID, true)
	if err != nil {
		return nil, err
	}
	out := make([]VillageOption, 0, len(villages))
	for _, v := range villages {
		out = append(out, VillageOption{ID: v.ID, VillageName: v.Name})
	}
	return out, nil
}

// GetVillage returns one village
func (s *Service) GetVillage(ctx context.Context, id uint) (*models.Village, error) {
	var v models.Village
	if err := s.db.WithContext(ctx).First(&v, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError("village")
		}
		return nil, err
	}
	return &v, nil
}

// CreateVillage adds an active village to an existing active ward
func (s *Service) CreateVillage(ctx context.Context, actor *auth.Actor, in VillageInput) (*models.Village, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := s.requireActiveWard(ctx, in.WardID); err != nil {
		return nil, err
	}

	v := models.Village{WardID: in.WardID, Name: in.Name, Code: in.Code, Description: in.Description, IsActive: true}
	if actor != nil {
		v.CreatedBy = &actor.UserID
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&v).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.NewFieldError("code", "A village with this code already exists")
			}
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actorID(actor),
			Action:     audit.ActionCreate,
			EntityType: audit.EntityVillage,
			EntityID:   v.ID,
			Details:    map[string]interface{}{"code": v.Code, "ward_id": v.WardID},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("village created", zap.Uint("village_id", v.ID), zap.Uint("ward_id", v.WardID))
	return &v, nil
}

// UpdateVillage replaces the editable fields of a village. Moving a village
// to another ward is allowed; registered residences keep their ward until
// transferred.
func (s *Service) UpdateVillage(ctx context.Context, id uint, in VillageInput) (*models.Village, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if _, err := s.GetVillage(ctx, id); err != nil {
		return nil, err
	}
	if err := s.requireActiveWard(ctx, in.WardID); err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).Model(&models.Village{}).Where("id = ?", id).Updates(map[string]interface{}{
		"ward_id":     in.WardID,
		"name":        in.Name,
		"code":        in.Code,
		"description": in.Description,
	}).Error
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperrors.NewFieldError("code", "A village with this code already exists")
		}
		return nil, err
	}
	return s.GetVillage(ctx, id)
}

// SetVillageActive activates or deactivates a village
func (s *Service) SetVillageActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.Village{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError("village")
	}
	return nil
}

func (s *Service) requireActiveWard(ctx context.Context, wardID uint) error {
	w, err := s.GetWard(ctx, wardID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NewFieldError("ward_id", "Ward does not exist")
		}
		return err
	}
	if !w.IsActive {
		return apperrors.NewFieldError("ward_id", "Ward is not active")
	}
	return nil
}

// =============================================================================
// ACCESSIBLE SUBSETS
// =============================================================================

// AccessibleWards returns the active wards inside actor's reach
func (s *Service) AccessibleWards(ctx context.Context, actor *auth.Actor) ([]models.Ward, error) {
	scope := s.Scope(ctx, actor)
	q := s.db.WithContext(ctx).Where("is_active = ?", true)

	switch scope.Kind {
	case ScopeGlobal:
	case ScopeWard:
		q = q.Where("id = ?", scope.WardID)
	case ScopeVillage:
		q = q.Where("id IN (?)", s.db.Model(&models.Village{}).Select("ward_id").Where("id = ?", scope.VillageID))
	default:
		return []models.Ward{}, nil
	}

	var wards []models.Ward
	err := q.Order("name").Find(&wards).Error
	return wards, err
}

// AccessibleVillages returns the active villages inside actor's reach
func (s *Service) AccessibleVillages(ctx context.Context, actor *auth.Actor) ([]models.Village, error) {
	scope := s.Scope(ctx, actor)
	if scope.Kind == ScopeNone {
		return []models.Village{}, nil
	}
	q := scope.Apply(s.db.WithContext(ctx).Where("is_active = ?", true), "ward_id", "id")

	var villages []models.Village
	err := q.Order("name").Find(&villages).Error
	return villages, err
}

func actorID(a *auth.Actor) uint {
	if a == nil {
		return 0
	}
	return a.UserID
}
