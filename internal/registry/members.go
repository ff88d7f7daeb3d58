package registry

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aethra/makazi/internal/audit"
	"github.com/aethra/makazi/internal/auth"
	apperrors "github.com/aethra/makazi/internal/errors"
	"github.com/aethra/makazi/internal/models"
	"github.com/aethra/makazi/internal/security"
	"github.com/aethra/makazi/internal/validation"
)

// AdultAge is the age from which the identity and work fields are required
const AdultAge = 18

// DuplicateMemberNIDA is shown when a member of an approved residence
// already holds the submitted national id
const DuplicateMemberNIDA = "A family member with this NIDA number is already registered"

// MemberInput is a submitted family member form
type MemberInput struct {
	FullName         string `json:"full_name" form:"full_name"`
	Gender           string `json:"gender" form:"gender"`
	DateOfBirth      string `json:"date_of_birth" form:"date_of_birth"`
	Relationship     string `json:"relationship" form:"relationship"`
	NIDANumber       string `json:"nida_number" form:"nida_number"`
	Phone            string `json:"phone" form:"phone"`
	Occupation       string `json:"occupation" form:"occupation"`
	EducationLevel   string `json:"education_level" form:"education_level"`
	EmploymentStatus string `json:"employment_status" form:"employment_status"`
}

var memberRequired = []string{"full_name", "gender", "date_of_birth", "relationship"}

var adultRequired = []string{
	validation.FieldNationalID, validation.FieldPhone, "occupation", "education_level", "employment_status",
}

// adultMessages name the missing adult-only field
var adultMessages = map[string]string{
	validation.FieldNationalID: "NIDA number is required for members aged 18 or older",
	validation.FieldPhone:      "Phone number is required for members aged 18 or older",
	"occupation":               "Occupation is required for members aged 18 or older",
	"education_level":          "Education level is required for members aged 18 or older",
	"employment_status":        "Employment status is required for members aged 18 or older",
}

func (in MemberInput) baseFields() map[string]string {
	return map[string]string{
		"full_name":     in.FullName,
		"gender":        in.Gender,
		"date_of_birth": in.DateOfBirth,
		"relationship":  in.Relationship,
	}
}

func (in MemberInput) adultFields() map[string]string {
	f := in.baseFields()
	f[validation.FieldNationalID] = in.NIDANumber
	f[validation.FieldPhone] = in.Phone
	f["occupation"] = in.Occupation
	f["education_level"] = in.EducationLevel
	f["employment_status"] = in.EmploymentStatus
	return f
}

// buildMember validates in and returns the row to insert. The adult-only
// fields are dropped for minors.
func (s *Service) buildMember(in MemberInput) (*models.FamilyMember, error) {
	base := validation.ValidateFormData(in.baseFields(), memberRequired)
	errs := base.Errors

	gender := strings.ToLower(strings.TrimSpace(in.Gender))
	if _, bad := errs["gender"]; !bad {
		if msg := validation.Var("gender", gender, genderRule); msg != "" {
			errs["gender"] = msg
		}
	}
	if _, bad := errs["date_of_birth"]; bad {
		return nil, apperrors.NewValidationError(errs)
	}
	dob, msg := parseDate(in.DateOfBirth, s.now().UTC())
	if msg != "" {
		errs["date_of_birth"] = msg
		return nil, apperrors.NewValidationError(errs)
	}

	m := &models.FamilyMember{
		FullName:     security.SanitizeText(in.FullName),
		Gender:       gender,
		DateOfBirth:  dob,
		Relationship: security.SanitizeText(in.Relationship),
		IsAdult:      AgeOn(dob, s.now().UTC()) >= AdultAge,
	}

	if m.IsAdult {
		adult := validation.ValidateFormData(in.adultFields(), adultRequired)
		for k, v := range adult.Errors {
			if v == validation.RequiredMessage(k) {
				v = adultMessages[k]
			}
			errs[k] = v
		}
		if len(errs) == 0 {
			m.NIDANumber = strPtr(adult.Data[validation.FieldNationalID])
			m.Phone = strPtr(adult.Data[validation.FieldPhone])
			m.Occupation = strPtr(security.SanitizeText(in.Occupation))
			m.EducationLevel = strPtr(security.SanitizeText(in.EducationLevel))
			m.EmploymentStatus = strPtr(security.SanitizeText(in.EmploymentStatus))
		}
	}

	if len(errs) > 0 {
		return nil, apperrors.NewValidationError(errs)
	}
	return m, nil
}

// AddMember records a family member of a residence
func (s *Service) AddMember(ctx context.Context, actor *auth.Actor, residenceID uint, in MemberInput) (*models.FamilyMember, error) {
	m, err := s.buildMember(in)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.load(ctx, tx, actor, residenceID, true)
		if err != nil {
			return err
		}

		if m.NIDANumber != nil {
			var count int64
			if err := tx.Model(&models.FamilyMember{}).
				Joins("JOIN residences r ON r.id = family_members.residence_id").
				Where("family_members.nida_number = ? AND r.status = ? AND r.deleted_at IS NULL",
					*m.NIDANumber, models.ResidenceApproved).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return apperrors.NewFieldError(validation.FieldNationalID, DuplicateMemberNIDA)
			}
		}

		m.ResidenceID = r.ID
		m.CreatedBy = actor.UserID
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		if err := refreshFamilySize(tx, r.ID); err != nil {
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actor.UserID,
			Action:     audit.ActionCreate,
			EntityType: audit.EntityFamilyMember,
			EntityID:   m.ID,
			Details:    map[string]interface{}{"residence_id": r.ID, "is_adult": m.IsAdult},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("family member added", zap.Uint("residence_id", residenceID), zap.Uint("member_id", m.ID))
	return m, nil
}

// ListMembers returns the members of a residence visible to actor
func (s *Service) ListMembers(ctx context.Context, actor *auth.Actor, residenceID uint) ([]models.FamilyMember, error) {
	if _, err := s.load(ctx, s.db, actor, residenceID, false); err != nil {
		return nil, err
	}
	members := []models.FamilyMember{}
	err := s.db.WithContext(ctx).Where("residence_id = ?", residenceID).Order("id").Find(&members).Error
	return members, err
}

// DeleteMember removes a member. The member must belong to residenceID and
// the residence must be one the actor may change; otherwise it is not found.
func (s *Service) DeleteMember(ctx context.Context, actor *auth.Actor, residenceID, memberID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.load(ctx, tx, actor, residenceID, true); err != nil {
			return err
		}

		res := tx.Where("id = ? AND residence_id = ?", memberID, residenceID).Delete(&models.FamilyMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.NewNotFoundError("family member")
		}
		if err := refreshFamilySize(tx, residenceID); err != nil {
			return err
		}
		return audit.Record(ctx, tx, audit.Entry{
			ActorID:    actor.UserID,
			Action:     audit.ActionDelete,
			EntityType: audit.EntityFamilyMember,
			EntityID:   memberID,
			Details:    map[string]interface{}{"residence_id": residenceID},
		})
	})
}

func refreshFamilySize(tx *gorm.DB, residenceID uint) error {
	var count int64
	if err := tx.Model(&models.FamilyMember{}).Where("residence_id = ?", residenceID).Count(&count).Error; err != nil {
		return err
	}
	return tx.Model(&models.Residence{}).Where("id = ?", residenceID).Update("family_size", count).Error
}

func strPtr(s string) *string { return &s }
