// Package registry keeps residences and their family members, scoped by the
// caller's administrative reach
package registry

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aethra/makazi/internal/auth"
	"github.com/aethra/makazi/internal/database"
	"github.com/aethra/makazi/internal/directory"
	apperrors "github.com/aethra/makazi/internal/errors"
	"github.com/aethra/makazi/internal/models"
)

// Service handles residence and family member records
type Service struct {
	db       *gorm.DB
	resolver directory.AllDataChecker
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new registry service
func NewService(db *gorm.DB, resolver directory.AllDataChecker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, resolver: resolver, logger: logger, now: time.Now}
}

// WithClock replaces the clock used for age calculations
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// =============================================================================
// QUERY TYPES
// =============================================================================

// ListParams filters and pages a residence listing
type ListParams struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	Search    string `form:"search"`
	WardID    uint   `form:"ward_id"`
	VillageID uint   `form:"village_id"`
}

func (p *ListParams) normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 25
	}
	if p.PageSize > 200 {
		p.PageSize = 200
	}
}

// QueryResult is one page of a listing
type QueryResult[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func newResult[T any](data []T, total int64, p ListParams) *QueryResult[T] {
	if data == nil {
		data = []T{}
	}
	pages := int((total + int64(p.PageSize) - 1) / int64(p.PageSize))
	return &QueryResult[T]{Data: data, Total: total, Page: p.Page, PageSize: p.PageSize, TotalPages: pages}
}

// =============================================================================
// VISIBILITY
// =============================================================================

// visible restricts q to residences actor may read. Data collectors also
// see every residence they registered themselves.
func (s *Service) visible(ctx context.Context, q *gorm.DB, actor *auth.Actor) *gorm.DB {
	return directory.ResolveScope(ctx, actor, s.resolver).
		ApplyResidences(q, actor, "residences.ward_id", "residences.village_id", "residences.registered_by")
}

// load returns a live residence visible to actor. With mutate set, data
// collectors are further limited to their own registrations.
func (s *Service) load(ctx context.Context, db *gorm.DB, actor *auth.Actor, id uint, mutate bool) (*models.Residence, error) {
	var r models.Residence
	err := s.visible(ctx, db.WithContext(ctx).Model(&models.Residence{}), actor).
		Where("residences.id = ?", id).
		First(&r).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError("residence")
		}
		return nil, err
	}
	if mutate && actor.Role == models.RoleDataCollector && r.RegisteredBy != actor.UserID {
		return nil, apperrors.NewNotFoundError("residence")
	}
	return &r, nil
}

// canRegisterAt reports whether actor may place a residence in the location
func (s *Service) canRegisterAt(ctx context.Context, actor *auth.Actor, wardID, villageID uint) bool {
	scope := directory.ResolveScope(ctx, actor, s.resolver)
	if scope.Kind == directory.ScopeNone && actor.Role == models.RoleDataCollector {
		return true
	}
	return scope.Contains(wardID, villageID)
}

// AgeOn returns the completed years between dob and on
func AgeOn(dob, on time.Time) int {
	years := on.Year() - dob.Year()
	if on.Month() < dob.Month() || (on.Month() == dob.Month() && on.Day() < dob.Day()) {
		years--
	}
	return years
}

const dateLayout = "2006-01-02"

// parseDate validates a YYYY-MM-DD date that is not in the future
func parseDate(raw string, now time.Time) (time.Time, string) {
	d, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, "Date Of Birth must be a date in the form YYYY-MM-DD"
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if d.After(today) {
		return time.Time{}, "Date Of Birth cannot be in the future"
	}
	return d, ""
}

const genderRule = "oneof=male female"
