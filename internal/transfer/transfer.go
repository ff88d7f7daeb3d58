// Package transfer moves residences between villages through the approval
// chain pending_approval -> weo_approved -> ward_approved -> accepted.
package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aethra/makazi/internal/audit"
	"github.com/aethra/makazi/internal/auth"
	"github.com/aethra/makazi/internal/database"
	"github.com/aethra/makazi/internal/directory"
	apperrors "github.com/aethra/makazi/internal/errors"
	"github.com/aethra/makazi/internal/models"
	"github.com/aethra/makazi/internal/platform/metrics"
	"github.com/aethra/makazi/internal/security"
)

// Stage is one review step of the chain
type Stage int

const (
	StageWEO Stage = iota
	StageWard
	StageVEO
)

// stageRule binds a stage to the status it reviews and who may review it
type stageRule struct {
	from     models.TransferStatus
	reviewer models.Role
	audit    string
}

var stages = map[Stage]stageRule{
	StageWEO:  {from: models.TransferPendingApproval, reviewer: models.RoleWEO, audit: audit.ActionApprove},
	StageWard: {from: models.TransferWEOApproved, reviewer: models.RoleAdmin, audit: audit.ActionApprove},
	StageVEO:  {from: models.TransferWardApproved, reviewer: models.RoleVEO, audit: audit.ActionAccept},
}

// StageFor returns the stage that reviews transfers in status st
func StageFor(st models.TransferStatus) (Stage, bool) {
	for s, rule := range stages {
		if rule.from == st {
			return s, true
		}
	}
	return 0, false
}

// Service runs the transfer workflow
type Service struct {
	db       *gorm.DB
	resolver directory.AllDataChecker
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService creates a new transfer workflow
func NewService(db *gorm.DB, resolver directory.AllDataChecker, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, resolver: resolver, logger: logger, metrics: m, now: time.Now}
}

// =============================================================================
// REQUEST
// =============================================================================

// Request opens a transfer of a residence to another village
func (s *Service) Request(ctx context.Context, actor *auth.Actor, residenceID, toVillageID uint, reason string) (*models.ResidenceTransfer, error) {
	var t models.ResidenceTransfer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r models.Residence
		q := tx.Model(&models.Residence{})
		if actor.Role == models.RoleDataCollector {
			q = q.Where("residences.registered_by = ?", actor.UserID)
		} else {
			q = directory.ResolveScope(ctx, actor, s.resolver).Apply(q, "residences.ward_id", "residences.village_id")
		}
		if err := q.Where("residences.id = ?", residenceID).First(&r).Error; err != nil {
			if database.IsNotFound(err) {
				return apperrors.NewNotFoundError("residence")
			}
			return err
		}

		var dest models.Village
		if err := tx.First(&dest, toVillageID).Error; err != nil {
			if database.IsNotFound(err) {
				return apperrors.NewFieldError("to_village_id", "Destination village does not exist")
			}
			return err
		}
		if !dest.IsActive {
			return apperrors.NewFieldError("to_village_id", "Destination village is not active")
		}
		if dest.ID == r.VillageID {
			return apperrors.NewFieldError("to_village_id", "Destination is the current village")
		}

		var open int64
		if err := tx.Model(&models.ResidenceTransfer{}).
			Where("residence_id = ? AND status IN ?", r.ID, models.OpenTransferStatuses).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return apperrors.NewConflictError("transfer", "Residence already has an open transfer")
		}

		t = models.ResidenceTransfer{
			Reference:     uuid.New().String(),
			ResidenceID:   r.ID,
			RequestedBy:   actor.UserID,
			FromWardID:    r.WardID,
			FromVillageID: r.VillageID,
			ToWardID:      dest.WardID,
			ToVillageID:   dest.ID,
			Reason:        security.SanitizeText(reason),
			Status:        models.TransferPendingApproval,
		}
		if err := tx.Create(&t).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.NewConflictError("transfer", "Residence already has an open transfer")
			}
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actor.UserID,
			Action:     audit.ActionRequest,
			EntityType: audit.EntityTransfer,
			EntityID:   t.ID,
			Details: map[string]interface{}{
				"residence_id":  r.ID,
				"to_village_id": dest.ID,
				"reference":     t.Reference,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(string(t.Status))
	s.logger.Info("transfer requested",
		zap.String("reference", t.Reference),
		zap.Uint("residence_id", t.ResidenceID),
		zap.Uint("to_village_id", t.ToVillageID))
	return &t, nil
}

// =============================================================================
// REVIEW QUEUES
// =============================================================================

// reviewScope restricts q to the transfers a reviewer of stage may see.
// Super admins see every transfer of the stage.
func reviewScope(q *gorm.DB, actor *auth.Actor, stage Stage) (*gorm.DB, error) {
	rule := stages[stage]
	q = q.Where("residence_transfers.status = ?", rule.from)
	if actor.IsSuperAdmin() {
		return q, nil
	}
	if actor.Role != rule.reviewer {
		return nil, apperrors.NewPermissionDeniedError("approve", "transfer")
	}

	switch stage {
	case StageWEO:
		if actor.WardID == nil {
			return q.Where("1 = 0"), nil
		}
		return q.Where("(residence_transfers.from_ward_id = ? OR residence_transfers.to_ward_id = ?)", *actor.WardID, *actor.WardID), nil
	case StageWard:
		if actor.WardID == nil {
			return q, nil
		}
		return q.Where("residence_transfers.to_ward_id = ?", *actor.WardID), nil
	default:
		if actor.VillageID == nil {
			return q.Where("1 = 0"), nil
		}
		return q.Where("residence_transfers.to_village_id = ?", *actor.VillageID), nil
	}
}

func (s *Service) pending(ctx context.Context, actor *auth.Actor, stage Stage) ([]models.ResidenceTransfer, error) {
	q, err := reviewScope(s.db.WithContext(ctx).Model(&models.ResidenceTransfer{}), actor, stage)
	if err != nil {
		return nil, err
	}
	out := []models.ResidenceTransfer{}
	err = q.Preload("Residence").Order("residence_transfers.created_at, residence_transfers.id").Find(&out).Error
	return out, err
}

// PendingForWEO lists pending_approval transfers leaving or entering the
// WEO's ward
func (s *Service) PendingForWEO(ctx context.Context, actor *auth.Actor) ([]models.ResidenceTransfer, error) {
	return s.pending(ctx, actor, StageWEO)
}

// PendingForWardAdmin lists weo_approved transfers entering the admin's
// ward; an admin without a ward sees all of them
func (s *Service) PendingForWardAdmin(ctx context.Context, actor *auth.Actor) ([]models.ResidenceTransfer, error) {
	return s.pending(ctx, actor, StageWard)
}

// PendingForVEO lists ward_approved transfers entering the VEO's village
func (s *Service) PendingForVEO(ctx context.Context, actor *auth.Actor) ([]models.ResidenceTransfer, error) {
	return s.pending(ctx, actor, StageVEO)
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// ApproveByWEO moves a transfer to weo_approved
func (s *Service) ApproveByWEO(ctx context.Context, actor *auth.Actor, id uint) (*models.ResidenceTransfer, error) {
	return s.advance(ctx, actor, id, StageWEO)
}

// ApproveByWard moves a transfer to ward_approved
func (s *Service) ApproveByWard(ctx context.Context, actor *auth.Actor, id uint) (*models.ResidenceTransfer, error) {
	return s.advance(ctx, actor, id, StageWard)
}

// Accept moves a transfer to accepted and relocates the residence in the
// same transaction
func (s *Service) Accept(ctx context.Context, actor *auth.Actor, id uint) (*models.ResidenceTransfer, error) {
	return s.advance(ctx, actor, id, StageVEO)
}

// loadForReview finds a transfer the actor reviews at stage. A transfer
// outside the reviewer's reach is not found; one already moved on is a
// conflict.
func (s *Service) loadForReview(ctx context.Context, tx *gorm.DB, actor *auth.Actor, id uint, stage Stage) (*models.ResidenceTransfer, error) {
	var t models.ResidenceTransfer
	if err := tx.First(&t, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError("transfer")
		}
		return nil, err
	}
	if t.Status != stages[stage].from {
		if !s.canSee(ctx, actor, &t) {
			return nil, apperrors.NewNotFoundError("transfer")
		}
		return nil, apperrors.NewInvalidStateError("transfer", "Transfer is no longer awaiting this review")
	}

	q, err := reviewScope(tx.Model(&models.ResidenceTransfer{}), actor, stage)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := q.Where("residence_transfers.id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, apperrors.NewNotFoundError("transfer")
	}
	return &t, nil
}

func (s *Service) advance(ctx context.Context, actor *auth.Actor, id uint, stage Stage) (*models.ResidenceTransfer, error) {
	rule := stages[stage]
	next, _ := rule.from.Next()
	now := s.now().UTC()

	var t *models.ResidenceTransfer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if t, err = s.loadForReview(ctx, tx, actor, id, stage); err != nil {
			return err
		}

		changes := map[string]interface{}{"status": next}
		switch stage {
		case StageWEO:
			changes["weo_reviewed_by"] = actor.UserID
			changes["weo_reviewed_at"] = now
		case StageWard:
			changes["ward_reviewed_by"] = actor.UserID
			changes["ward_reviewed_at"] = now
		case StageVEO:
			changes["veo_reviewed_by"] = actor.UserID
			changes["veo_reviewed_at"] = now
		}
		if err := s.transition(tx, id, rule.from, changes); err != nil {
			return err
		}

		if stage == StageVEO {
			res := tx.Model(&models.Residence{}).
				Where("id = ?", t.ResidenceID).
				Updates(map[string]interface{}{"ward_id": t.ToWardID, "village_id": t.ToVillageID})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return apperrors.NewConflictError("transfer", "Residence no longer exists")
			}
		}

		if err := tx.First(t, id).Error; err != nil {
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actor.UserID,
			Action:     rule.audit,
			EntityType: audit.EntityTransfer,
			EntityID:   id,
			Details:    map[string]interface{}{"from": string(rule.from), "to": string(next)},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(string(next))
	s.logger.Info("transfer advanced",
		zap.Uint("transfer_id", id),
		zap.String("status", string(next)),
		zap.Uint("reviewer_id", actor.UserID))
	return t, nil
}

// transition is the conditional update guarding every state change. Zero
// rows affected means another reviewer moved the transfer first.
func (s *Service) transition(tx *gorm.DB, id uint, expected models.TransferStatus, changes map[string]interface{}) error {
	res := tx.Model(&models.ResidenceTransfer{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NewConflictError("transfer", "Transfer was changed by someone else")
	}
	return nil
}

// Reject ends an open transfer at the current stage. Only the reviewer of
// that stage may reject it.
func (s *Service) Reject(ctx context.Context, actor *auth.Actor, id uint, reason string) (*models.ResidenceTransfer, error) {
	reason = security.SanitizeText(reason)
	if reason == "" {
		return nil, apperrors.NewFieldError("reason", "Reason is required")
	}

	var t *models.ResidenceTransfer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.ResidenceTransfer
		if err := tx.First(&current, id).Error; err != nil {
			if database.IsNotFound(err) {
				return apperrors.NewNotFoundError("transfer")
			}
			return err
		}
		stage, open := StageFor(current.Status)
		if !open {
			if !s.canSee(ctx, actor, &current) {
				return apperrors.NewNotFoundError("transfer")
			}
			return apperrors.NewInvalidStateError("transfer", "Transfer is already closed")
		}

		var err error
		if t, err = s.loadForReview(ctx, tx, actor, id, stage); err != nil {
			return err
		}
		if err := s.transition(tx, id, current.Status, map[string]interface{}{
			"status":           models.TransferRejected,
			"rejection_reason": reason,
		}); err != nil {
			return err
		}
		if err := tx.First(t, id).Error; err != nil {
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actor.UserID,
			Action:     audit.ActionReject,
			EntityType: audit.EntityTransfer,
			EntityID:   id,
			Details:    map[string]interface{}{"from": string(current.Status), "reason": reason},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(models.TransferRejected))
	return t, nil
}

// Cancel withdraws an open transfer. The requester, admins and super
// admins may cancel.
func (s *Service) Cancel(ctx context.Context, actor *auth.Actor, id uint) (*models.ResidenceTransfer, error) {
	var t models.ResidenceTransfer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&t, id).Error; err != nil {
			if database.IsNotFound(err) {
				return apperrors.NewNotFoundError("transfer")
			}
			return err
		}
		mayCancel := t.RequestedBy == actor.UserID ||
			(actor.HasRole(models.RoleAdmin, models.RoleSuperAdmin) && s.canSee(ctx, actor, &t))
		if !mayCancel {
			return apperrors.NewNotFoundError("transfer")
		}
		if t.Status.Terminal() {
			return apperrors.NewInvalidStateError("transfer", "Transfer is already closed")
		}

		from := t.Status
		if err := s.transition(tx, id, from, map[string]interface{}{"status": models.TransferCancelled}); err != nil {
			return err
		}
		if err := tx.First(&t, id).Error; err != nil {
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actor.UserID,
			Action:     audit.ActionCancel,
			EntityType: audit.EntityTransfer,
			EntityID:   id,
			Details:    map[string]interface{}{"from": string(from)},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(models.TransferCancelled))
	return &t, nil
}

// =============================================================================
// READS
// =============================================================================

// canSee reports whether a transfer touches the actor's reach
func (s *Service) canSee(ctx context.Context, actor *auth.Actor, t *models.ResidenceTransfer) bool {
	if t.RequestedBy == actor.UserID {
		return true
	}
	scope := directory.ResolveScope(ctx, actor, s.resolver)
	return scope.Contains(t.FromWardID, t.FromVillageID) || scope.Contains(t.ToWardID, t.ToVillageID)
}

// Get returns a transfer touching the actor's reach
func (s *Service) Get(ctx context.Context, actor *auth.Actor, id uint) (*models.ResidenceTransfer, error) {
	var t models.ResidenceTransfer
	if err := s.db.WithContext(ctx).Preload("Residence").First(&t, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError("transfer")
		}
		return nil, err
	}
	if !s.canSee(ctx, actor, &t) {
		return nil, apperrors.NewNotFoundError("transfer")
	}
	return &t, nil
}

// List returns transfers touching the actor's reach, newest first. An
// empty status lists every status.
func (s *Service) List(ctx context.Context, actor *auth.Actor, status models.TransferStatus) ([]models.ResidenceTransfer, error) {
	scope := directory.ResolveScope(ctx, actor, s.resolver)
	q := s.db.WithContext(ctx).Model(&models.ResidenceTransfer{})
	if scope.Kind != directory.ScopeGlobal {
		fromCond, fromArgs := scope.Condition("from_ward_id", "from_village_id")
		toCond, toArgs := scope.Condition("to_ward_id", "to_village_id")
		args := append(append(fromArgs, toArgs...), actor.UserID)
		q = q.Where("("+fromCond+" OR "+toCond+" OR requested_by = ?)", args...)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	out := []models.ResidenceTransfer{}
	err := q.Order("created_at DESC, id DESC").Limit(500).Find(&out).Error
	return out, err
}
