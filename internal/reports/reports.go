// Package reports aggregates and exports registry data within the caller's
// reach
package reports

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aethra/makazi/internal/auth"
	"github.com/aethra/makazi/internal/directory"
)

// Service builds reports
type Service struct {
	db       *gorm.DB
	resolver directory.AllDataChecker
	logger   *zap.Logger
}

// NewService creates a new report service
func NewService(db *gorm.DB, resolver directory.AllDataChecker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, resolver: resolver, logger: logger}
}

// SummaryRow counts one village
type SummaryRow struct {
	WardID      uint   `json:"ward_id"`
	WardName    string `json:"ward_name"`
	VillageID   uint   `json:"village_id"`
	VillageName string `json:"village_name"`
	Residences  int64  `json:"residences"`
	Members     int64  `json:"members"`
	Adults      int64  `json:"adults"`
}

// Summary is the registry overview
type Summary struct {
	Scope           string       `json:"scope"`
	Rows            []SummaryRow `json:"rows"`
	TotalResidences int64        `json:"total_residences"`
	TotalMembers    int64        `json:"total_members"`
	OpenTransfers   int64        `json:"open_transfers"`
	GeneratedAt     time.Time    `json:"generated_at"`
}

// Summary counts live residences and their members per village
func (s *Service) Summary(ctx context.Context, actor *auth.Actor) (*Summary, error) {
	scope := directory.ResolveScope(ctx, actor, s.resolver)

	rows := []SummaryRow{}
	q := s.db.WithContext(ctx).
		Table("residences AS r").
		Select(`w.id AS ward_id, w.name AS ward_name, v.id AS village_id, v.name AS village_name,
			COUNT(DISTINCT r.id) AS residences,
			COUNT(m.id) AS members,
			COALESCE(SUM(CASE WHEN m.is_adult THEN 1 ELSE 0 END), 0) AS adults`).
		Joins("JOIN villages v ON v.id = r.village_id").
		Joins("JOIN wards w ON w.id = r.ward_id").
		Joins("LEFT JOIN family_members m ON m.residence_id = r.id").
		Where("r.deleted_at IS NULL")
	q = scope.ApplyResidences(q, actor, "r.ward_id", "r.village_id", "r.registered_by")
	if err := q.Group("w.id, w.name, v.id, v.name").Order("w.name, v.name").Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := &Summary{Scope: scope.Kind.String(), Rows: rows, GeneratedAt: time.Now().UTC()}
	for _, r := range rows {
		out.TotalResidences += r.Residences
		out.TotalMembers += r.Members
	}

	tq := s.db.WithContext(ctx).Table("residence_transfers AS t").
		Where("t.status IN ?", []string{"pending_approval", "weo_approved", "ward_approved"})
	if scope.Kind != directory.ScopeGlobal {
		fromCond, fromArgs := scope.Condition("t.from_ward_id", "t.from_village_id")
		toCond, toArgs := scope.Condition("t.to_ward_id", "t.to_village_id")
		args := append(append(fromArgs, toArgs...), actor.UserID)
		tq = tq.Where("("+fromCond+" OR "+toCond+" OR t.requested_by = ?)", args...)
	}
	if err := tq.Count(&out.OpenTransfers).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ExportRow is one residence line of an export
type ExportRow struct {
	ID               uint      `json:"id"`
	HouseNo          string    `json:"house_no"`
	ResidentName     string    `json:"resident_name"`
	Gender           string    `json:"gender"`
	DateOfBirth      time.Time `json:"date_of_birth"`
	NIDANumber       string    `json:"nida_number" gorm:"column:nida_number"`
	Phone            string    `json:"phone"`
	Occupation       string    `json:"occupation"`
	EducationLevel   string    `json:"education_level"`
	EmploymentStatus string    `json:"employment_status"`
	Ownership        string    `json:"ownership"`
	FamilySize       int       `json:"family_size"`
	WardName         string    `json:"ward_name"`
	VillageName      string    `json:"village_name"`
	CreatedAt        time.Time `json:"created_at"`
}

// ExportRows returns every live residence in the actor's reach
func (s *Service) ExportRows(ctx context.Context, actor *auth.Actor) ([]ExportRow, error) {
	scope := directory.ResolveScope(ctx, actor, s.resolver)
	rows := []ExportRow{}
	q := s.db.WithContext(ctx).
		Table("residences AS r").
		Select(`r.id, r.house_no, r.resident_name, r.gender, r.date_of_birth, r.nida_number, r.phone,
			r.occupation, r.education_level, r.employment_status, r.ownership, r.family_size,
			w.name AS ward_name, v.name AS village_name, r.created_at`).
		Joins("JOIN villages v ON v.id = r.village_id").
		Joins("JOIN wards w ON w.id = r.ward_id").
		Where("r.deleted_at IS NULL")
	q = scope.ApplyResidences(q, actor, "r.ward_id", "r.village_id", "r.registered_by")
	err := q.Order("w.name, v.name, r.house_no").Scan(&rows).Error
	return rows, err
}
