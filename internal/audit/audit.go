// Package audit records who changed what
package audit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aethra/makazi/internal/models"
)

// Actions written to the log
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionRestore  = "restore"
	ActionRequest  = "transfer_request"
	ActionApprove  = "transfer_approve"
	ActionAccept   = "transfer_accept"
	ActionReject   = "transfer_reject"
	ActionCancel   = "transfer_cancel"
	ActionLogin    = "login"
	ActionPassword = "password_reset"
	ActionGrant    = "permission_grant"
	ActionOverride = "permission_override"
)

// Entity types written to the log
const (
	EntityResidence    = "residence"
	EntityFamilyMember = "family_member"
	EntityTransfer     = "residence_transfer"
	EntityUser         = "user"
	EntityWard         = "ward"
	EntityVillage      = "village"
	EntityPermission   = "permission"
)

// Entry is one audit record
type Entry struct {
	ActorID    uint
	Action     string
	EntityType string
	EntityID   uint
	Details    map[string]interface{}
}

type ipKey struct{}

// WithClientIP stores the caller address for entries written under ctx
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

func clientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ipKey{}).(string)
	return ip
}

// Record writes e through db, which is normally the caller's transaction so
// the entry commits or rolls back with the change it describes.
func Record(ctx context.Context, db *gorm.DB, e Entry) error {
	row := models.AuditLog{
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Details:    models.JSONMap(e.Details),
		IPAddress:  clientIP(ctx),
		CreatedAt:  time.Now().UTC(),
	}
	if e.ActorID != 0 {
		id := e.ActorID
		row.UserID = &id
	}
	if err := db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// ChangedFields lists the keys whose values differ between old and new
func ChangedFields(old, new map[string]interface{}) []string {
	var changed []string
	for key, newVal := range new {
		if oldVal, exists := old[key]; exists {
			if fmt.Sprintf("%v", oldVal) != fmt.Sprintf("%v", newVal) {
				changed = append(changed, key)
			}
		}
	}
	return changed
}

// Filter narrows List
type Filter struct {
	EntityType string
	EntityID   uint
	UserID     uint
	Limit      int
	Offset     int
}

// Service reads the audit log
type Service struct {
	db *gorm.DB
}

// NewService creates a new audit log reader
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// List returns matching entries newest first and the total match count
func (s *Service) List(ctx context.Context, f Filter) ([]models.AuditLog, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []models.AuditLog
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(f.Offset).Find(&rows).Error
	return rows, total, err
}
