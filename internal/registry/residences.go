package registry

import (
	"context"
	"strconv"
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

// DuplicateResidenceNIDA is shown when an approved residence already holds
// the submitted national id
const DuplicateResidenceNIDA = "A residence with this NIDA number is already registered"

// ResidenceInput is a submitted residence form
type ResidenceInput struct {
	HouseNo          string `json:"house_no" form:"house_no"`
	ResidentName     string `json:"resident_name" form:"resident_name"`
	Gender           string `json:"gender" form:"gender"`
	DateOfBirth      string `json:"date_of_birth" form:"date_of_birth"`
	NIDANumber       string `json:"nida_number" form:"nida_number"`
	Phone            string `json:"phone" form:"phone"`
	Occupation       string `json:"occupation" form:"occupation"`
	EducationLevel   string `json:"education_level" form:"education_level"`
	EmploymentStatus string `json:"employment_status" form:"employment_status"`
	Ownership        string `json:"ownership" form:"ownership"`
	Notes            string `json:"notes" form:"notes"`
	WardID           uint   `json:"ward_id" form:"ward_id"`
	VillageID        uint   `json:"village_id" form:"village_id"`
}

var residenceRequired = []string{
	"house_no", "resident_name", "gender", "date_of_birth", validation.FieldNationalID,
	validation.FieldPhone, "occupation", "education_level", "employment_status", "ownership",
}

// Fields flattens the input for ValidateFormData
func (in ResidenceInput) Fields() map[string]string {
	f := map[string]string{
		"house_no":                 in.HouseNo,
		"resident_name":            in.ResidentName,
		"gender":                   in.Gender,
		"date_of_birth":            in.DateOfBirth,
		validation.FieldNationalID: in.NIDANumber,
		validation.FieldPhone:      in.Phone,
		"occupation":               in.Occupation,
		"education_level":          in.EducationLevel,
		"employment_status":        in.EmploymentStatus,
		"ownership":                in.Ownership,
		"notes":                    in.Notes,
	}
	if in.WardID != 0 {
		f["ward_id"] = strconv.FormatUint(uint64(in.WardID), 10)
	}
	if in.VillageID != 0 {
		f["village_id"] = strconv.FormatUint(uint64(in.VillageID), 10)
	}
	return f
}

// validated is a residence form that passed every field check
type validated struct {
	ResidenceInput
	dob time.Time
}

func (s *Service) validateResidence(in ResidenceInput, required []string) (*validated, error) {
	res := validation.ValidateFormData(in.Fields(), required)
	errs := res.Errors

	var dob time.Time
	if _, bad := errs["date_of_birth"]; !bad {
		var msg string
		if dob, msg = parseDate(in.DateOfBirth, s.now().UTC()); msg != "" {
			errs["date_of_birth"] = msg
		}
	}

	in.Gender = strings.ToLower(strings.TrimSpace(in.Gender))
	if _, bad := errs["gender"]; !bad {
		if msg := validation.Var("gender", in.Gender, genderRule); msg != "" {
			errs["gender"] = msg
		}
	}
	in.Ownership = strings.ToLower(strings.TrimSpace(in.Ownership))
	if _, bad := errs["ownership"]; !bad {
		if msg := validation.Var("ownership", in.Ownership, "oneof=owner tenant"); msg != "" {
			errs["ownership"] = msg
		}
	}

	if len(errs) > 0 {
		return nil, apperrors.NewValidationError(errs)
	}

	in.NIDANumber = res.Data[validation.FieldNationalID]
	in.Phone = res.Data[validation.FieldPhone]
	in.HouseNo = security.SanitizeText(in.HouseNo)
	in.ResidentName = security.SanitizeText(in.ResidentName)
	in.Occupation = security.SanitizeText(in.Occupation)
	in.EducationLevel = security.SanitizeText(in.EducationLevel)
	in.EmploymentStatus = security.SanitizeText(in.EmploymentStatus)
	in.Notes = security.SanitizeText(in.Notes)
	return &validated{ResidenceInput: in, dob: dob}, nil
}

// nidaTaken reports whether another live approved residence holds nida
func nidaTaken(tx *gorm.DB, nida string, exceptID uint) (bool, error) {
	q := tx.Model(&models.Residence{}).Where("nida_number = ? AND status = ?", nida, models.ResidenceApproved)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create registers a residence with status approved
func (s *Service) Create(ctx context.Context, actor *auth.Actor, in ResidenceInput) (*models.Residence, error) {
	v, err := s.validateResidence(in, append(append([]string{}, residenceRequired...), "ward_id", "village_id"))
	if err != nil {
		return nil, err
	}

	var village models.Village
	if err := s.db.WithContext(ctx).First(&village, v.VillageID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.NewFieldError("village_id", "Village does not exist")
		}
		return nil, err
	}
	if village.WardID != v.WardID {
		return nil, apperrors.NewFieldError("village_id", "Village does not belong to the selected ward")
	}
	if !village.IsActive {
		return nil, apperrors.NewFieldError("village_id", "Village is not active")
	}
	if !s.canRegisterAt(ctx, actor, v.WardID, v.VillageID) {
		return nil, apperrors.NewPermissionDeniedError("create", "residence")
	}

	r := models.Residence{
		HouseNo:          v.HouseNo,
		ResidentName:     v.ResidentName,
		Gender:           v.Gender,
		DateOfBirth:      v.dob,
		NIDANumber:       v.NIDANumber,
		Phone:            v.Phone,
		Occupation:       v.Occupation,
		EducationLevel:   v.EducationLevel,
		EmploymentStatus: v.EmploymentStatus,
		Ownership:        v.Ownership,
		Notes:            v.Notes,
		WardID:           v.WardID,
		VillageID:        v.VillageID,
		RegisteredBy:     actor.UserID,
		Status:           models.ResidenceApproved,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := nidaTaken(tx, r.NIDANumber, 0)
		if err != nil {
			return err
		}
		if taken {
			return apperrors.NewFieldError(validation.FieldNationalID, DuplicateResidenceNIDA)
		}
		if err := tx.Create(&r).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.NewFieldError(validation.FieldNationalID, DuplicateResidenceNIDA)
			}
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actor.UserID,
			Action:     audit.ActionCreate,
			EntityType: audit.EntityResidence,
			EntityID:   r.ID,
			Details:    map[string]interface{}{"village_id": r.VillageID, "house_no": r.HouseNo},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("residence registered",
		zap.Uint("residence_id", r.ID),
		zap.Uint("village_id", r.VillageID),
		zap.Uint("registered_by", actor.UserID))
	return &r, nil
}

// Get returns one residence visible to actor
func (s *Service) Get(ctx context.Context, actor *auth.Actor, id uint) (*models.Residence, error) {
	return s.load(ctx, s.db, actor, id, false)
}

// List returns one page of the residences visible to actor, newest first
func (s *Service) List(ctx context.Context, actor *auth.Actor, p ListParams) (*QueryResult[models.Residence], error) {
	p.normalize()
	q := s.visible(ctx, s.db.WithContext(ctx).Model(&models.Residence{}), actor)
	if p.WardID != 0 {
		q = q.Where("residences.ward_id = ?", p.WardID)
	}
	if p.VillageID != 0 {
		q = q.Where("residences.village_id = ?", p.VillageID)
	}
	if cond, args := security.SearchCondition(
		[]string{"residences.resident_name", "residences.house_no", "residences.nida_number", "residences.phone"},
		p.Search,
	); cond != "" {
		q = q.Where(cond, args...)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []models.Residence
	err := q.Order("residences.created_at DESC, residences.id DESC").
		Limit(p.PageSize).
		Offset((p.Page - 1) * p.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return newResult(rows, total, p), nil
}

// Update replaces the editable fields of a residence. Location changes go
// through a transfer.
func (s *Service) Update(ctx context.Context, actor *auth.Actor, id uint, in ResidenceInput) (*models.Residence, error) {
	v, err := s.validateResidence(in, residenceRequired)
	if err != nil {
		return nil, err
	}

	var updated *models.Residence
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.load(ctx, tx, actor, id, true)
		if err != nil {
			return err
		}

		taken, err := nidaTaken(tx, v.NIDANumber, id)
		if err != nil {
			return err
		}
		if taken {
			return apperrors.NewFieldError(validation.FieldNationalID, DuplicateResidenceNIDA)
		}

		old := residenceValues(current)
		changes := map[string]interface{}{
			"house_no":          v.HouseNo,
			"resident_name":     v.ResidentName,
			"gender":            v.Gender,
			"date_of_birth":     v.dob,
			"nida_number":       v.NIDANumber,
			"phone":             v.Phone,
			"occupation":        v.Occupation,
			"education_level":   v.EducationLevel,
			"employment_status": v.EmploymentStatus,
			"ownership":         v.Ownership,
			"notes":             v.Notes,
		}
		if err := tx.Model(current).Updates(changes).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.NewFieldError(validation.FieldNationalID, DuplicateResidenceNIDA)
			}
			return err
		}

		updated, err = s.load(ctx, tx, actor, id, false)
		if err != nil {
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actor.UserID,
			Action:     audit.ActionUpdate,
			EntityType: audit.EntityResidence,
			EntityID:   id,
			Details:    map[string]interface{}{"changed": audit.ChangedFields(old, residenceValues(updated))},
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete moves a residence to the bin. A residence with an open transfer
// cannot be deleted.
func (s *Service) Delete(ctx context.Context, actor *auth.Actor, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.load(ctx, tx, actor, id, true)
		if err != nil {
			return err
		}

		var open int64
		if err := tx.Model(&models.ResidenceTransfer{}).
			Where("residence_id = ? AND status IN ?", id, models.OpenTransferStatuses).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return apperrors.NewInvalidStateError("residence", "Residence has an open transfer")
		}

		if err := tx.Delete(r).Error; err != nil {
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actor.UserID,
			Action:     audit.ActionDelete,
			EntityType: audit.EntityResidence,
			EntityID:   id,
		})
	})
}

// ListBin returns deleted residences visible to actor, most recently
// deleted first
func (s *Service) ListBin(ctx context.Context, actor *auth.Actor, p ListParams) (*QueryResult[models.Residence], error) {
	p.normalize()
	q := s.visible(ctx, s.db.WithContext(ctx).Unscoped().Model(&models.Residence{}), actor).
		Where("residences.deleted_at IS NOT NULL")
	if actor.Role == models.RoleDataCollector {
		q = q.Where("residences.registered_by = ?", actor.UserID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	var rows []models.Residence
	err := q.Order("residences.deleted_at DESC").
		Limit(p.PageSize).
		Offset((p.Page - 1) * p.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return newResult(rows, total, p), nil
}

// Restore brings a residence back from the bin. It fails when another
// approved residence has taken its NIDA number in the meantime.
func (s *Service) Restore(ctx context.Context, actor *auth.Actor, id uint) (*models.Residence, error) {
	var restored *models.Residence
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r models.Residence
		q := s.visible(ctx, tx.Unscoped().Model(&models.Residence{}), actor).
			Where("residences.id = ? AND residences.deleted_at IS NOT NULL", id)
		if actor.Role == models.RoleDataCollector {
			q = q.Where("residences.registered_by = ?", actor.UserID)
		}
		if err := q.First(&r).Error; err != nil {
			if database.IsNotFound(err) {
				return apperrors.NewNotFoundError("residence")
			}
			return err
		}

		if r.Status == models.ResidenceApproved {
			taken, err := nidaTaken(tx, r.NIDANumber, r.ID)
			if err != nil {
				return err
			}
			if taken {
				return apperrors.NewConflictError("residence", DuplicateResidenceNIDA)
			}
		}

		if err := tx.Unscoped().Model(&r).Update("deleted_at", nil).Error; err != nil {
			return err
		}
		r.DeletedAt = gorm.DeletedAt{}
		restored = &r
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actor.UserID,
			Action:     audit.ActionRestore,
			EntityType: audit.EntityResidence,
			EntityID:   id,
		})
	})
	if err != nil {
		return nil, err
	}
	return restored, nil
}

func residenceValues(r *models.Residence) map[string]interface{} {
	return map[string]interface{}{
		"house_no":          r.HouseNo,
		"resident_name":     r.ResidentName,
		"gender":            r.Gender,
		"date_of_birth":     r.DateOfBirth.Format(dateLayout),
		"nida_number":       r.NIDANumber,
		"phone":             r.Phone,
		"occupation":        r.Occupation,
		"education_level":   r.EducationLevel,
		"employment_status": r.EmploymentStatus,
		"ownership":         r.Ownership,
		"notes":             r.Notes,
	}
}
