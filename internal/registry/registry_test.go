package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/aethra/makazi/internal/auth"
	apperrors "github.com/aethra/makazi/internal/errors"
	"github.com/aethra/makazi/internal/models"
	"github.com/aethra/makazi/internal/testutil"
	"github.com/aethra/makazi/internal/validation"
)

var today = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

type RegistrySuite struct {
	suite.Suite
	db        *gorm.DB
	svc       *Service
	ctx       context.Context
	ward      *models.Ward
	village   *models.Village
	collector *models.User
	actor     *auth.Actor
}

func (s *RegistrySuite) SetupTest() {
	s.db = testutil.NewSeededDB(s.T())
	s.svc = NewService(s.db, auth.NewResolver(s.db, nil, nil), nil).WithClock(func() time.Time { return today })
	s.ctx = context.Background()
	s.ward = testutil.Ward(s.T(), s.db, "North")
	s.village = testutil.Village(s.T(), s.db, s.ward, "Amani")
	s.collector = testutil.User(s.T(), s.db, models.RoleDataCollector, nil, s.village)
	s.actor = testutil.Actor(s.collector)
}

func (s *RegistrySuite) input() ResidenceInput {
	return ResidenceInput{
		HouseNo:          "H-12",
		ResidentName:     "Asha Juma",
		Gender:           "Female",
		DateOfBirth:      "1988-02-01",
		NIDANumber:       "1988-0201-1234-5000-0001",
		Phone:            "071 234 5678",
		Occupation:       "Teacher",
		EducationLevel:   "degree",
		EmploymentStatus: "employed",
		Ownership:        "owner",
		WardID:           s.ward.ID,
		VillageID:        s.village.ID,
	}
}

func (s *RegistrySuite) fieldErrors(err error) map[string]string {
	var ve *apperrors.ValidationError
	s.Require().ErrorAs(err, &ve)
	return ve.Fields
}

func (s *RegistrySuite) TestCreateCleansAndApproves() {
	r, err := s.svc.Create(s.ctx, s.actor, s.input())
	s.Require().NoError(err)
	s.Equal(models.ResidenceApproved, r.Status)
	s.Equal("19880201123450000001", r.NIDANumber)
	s.Equal("0712345678", r.Phone)
	s.Equal("female", r.Gender)
	s.Equal(s.collector.ID, r.RegisteredBy)

	var logs int64
	s.Require().NoError(s.db.Model(&models.AuditLog{}).
		Where("entity_type = ? AND entity_id = ?", "residence", r.ID).Count(&logs).Error)
	s.EqualValues(1, logs)
}

func (s *RegistrySuite) TestCreateRequiredFields() {
	err := func() error {
		_, err := s.svc.Create(s.ctx, s.actor, ResidenceInput{})
		return err
	}()
	fields := s.fieldErrors(err)
	s.Equal("House No is required", fields["house_no"])
	s.Equal("Nida Number is required", fields["nida_number"])
	s.Contains(fields, "village_id")
}

func (s *RegistrySuite) TestCreateFormatErrors() {
	in := s.input()
	in.NIDANumber = "12345"
	in.Phone = "+255712345678"
	_, err := s.svc.Create(s.ctx, s.actor, in)
	fields := s.fieldErrors(err)
	s.Equal(validation.NationalIDError, fields["nida_number"])
	s.Equal(validation.PhoneError, fields["phone"])
}

func (s *RegistrySuite) TestCreateChoiceFields() {
	in := s.input()
	in.Gender = "Other"
	in.Ownership = "squatter"
	_, err := s.svc.Create(s.ctx, s.actor, in)
	fields := s.fieldErrors(err)
	s.Equal("Gender must be male or female", fields["gender"])
	s.Equal("Ownership must be owner or tenant", fields["ownership"])

	in = s.input()
	in.Gender, in.Ownership = " MALE ", "Tenant"
	r, err := s.svc.Create(s.ctx, s.actor, in)
	s.Require().NoError(err)
	s.Equal("male", r.Gender)
	s.Equal("tenant", r.Ownership)
}

func (s *RegistrySuite) TestDuplicateNIDA() {
	_, err := s.svc.Create(s.ctx, s.actor, s.input())
	s.Require().NoError(err)

	in := s.input()
	in.HouseNo = "H-13"
	_, err = s.svc.Create(s.ctx, s.actor, in)
	s.Equal(DuplicateResidenceNIDA, s.fieldErrors(err)["nida_number"])
}

func (s *RegistrySuite) TestVillageMustBelongToWard() {
	other := testutil.Ward(s.T(), s.db, "South")
	in := s.input()
	in.WardID = other.ID
	_, err := s.svc.Create(s.ctx, s.actor, in)
	s.Contains(s.fieldErrors(err), "village_id")
}

func (s *RegistrySuite) TestCollectorCannotRegisterOutsideAssignment() {
	south := testutil.Ward(s.T(), s.db, "South")
	far := testutil.Village(s.T(), s.db, south, "Chini")
	in := s.input()
	in.WardID, in.VillageID = south.ID, far.ID

	_, err := s.svc.Create(s.ctx, s.actor, in)
	var pd *apperrors.PermissionDeniedError
	s.ErrorAs(err, &pd)
}

func (s *RegistrySuite) TestListScoping() {
	south := testutil.Ward(s.T(), s.db, "South")
	chini := testutil.Village(s.T(), s.db, south, "Chini")
	other := testutil.User(s.T(), s.db, models.RoleDataCollector, nil, chini)
	testutil.Residence(s.T(), s.db, s.collector, s.village)
	testutil.Residence(s.T(), s.db, other, chini)

	page, err := s.svc.List(s.ctx, s.actor, ListParams{})
	s.Require().NoError(err)
	s.EqualValues(1, page.Total)

	weo := testutil.Actor(testutil.User(s.T(), s.db, models.RoleWEO, south, nil))
	page, err = s.svc.List(s.ctx, weo, ListParams{})
	s.Require().NoError(err)
	s.Require().Len(page.Data, 1)
	s.Equal(chini.ID, page.Data[0].VillageID)

	admin := testutil.Actor(testutil.User(s.T(), s.db, models.RoleAdmin, nil, nil))
	page, err = s.svc.List(s.ctx, admin, ListParams{PageSize: 1})
	s.Require().NoError(err)
	s.EqualValues(2, page.Total)
	s.Equal(2, page.TotalPages)
	s.Len(page.Data, 1)

	lost := testutil.Actor(testutil.User(s.T(), s.db, models.RoleVEO, nil, nil))
	page, err = s.svc.List(s.ctx, lost, ListParams{})
	s.Require().NoError(err)
	s.NotNil(page.Data)
	s.Empty(page.Data)
}

func (s *RegistrySuite) TestUnassignedCollectorSeesOwnRegistrations() {
	free := testutil.User(s.T(), s.db, models.RoleDataCollector, nil, nil)
	actor := testutil.Actor(free)
	r, err := s.svc.Create(s.ctx, actor, s.input())
	s.Require().NoError(err)

	got, err := s.svc.Get(s.ctx, actor, r.ID)
	s.Require().NoError(err)
	s.Equal(r.ID, got.ID)
}

func (s *RegistrySuite) TestSearch() {
	r := testutil.Residence(s.T(), s.db, s.collector, s.village)
	testutil.Residence(s.T(), s.db, s.collector, s.village)

	page, err := s.svc.List(s.ctx, s.actor, ListParams{Search: r.ResidentName})
	s.Require().NoError(err)
	s.Require().Len(page.Data, 1)
	s.Equal(r.ID, page.Data[0].ID)

	page, err = s.svc.List(s.ctx, s.actor, ListParams{Search: "100%_"})
	s.Require().NoError(err)
	s.Empty(page.Data)
}

func (s *RegistrySuite) TestUpdateOnlyOwnRegistration() {
	mine := testutil.Residence(s.T(), s.db, s.collector, s.village)
	colleague := testutil.User(s.T(), s.db, models.RoleDataCollector, nil, s.village)
	theirs := testutil.Residence(s.T(), s.db, colleague, s.village)

	in := s.input()
	in.ResidentName = "Asha J. Mussa"
	updated, err := s.svc.Update(s.ctx, s.actor, mine.ID, in)
	s.Require().NoError(err)
	s.Equal("Asha J. Mussa", updated.ResidentName)
	s.Equal(s.village.ID, updated.VillageID)

	in.NIDANumber = testutil.NIDA()
	_, err = s.svc.Update(s.ctx, s.actor, theirs.ID, in)
	s.True(errors.Is(err, apperrors.ErrNotFound))
}

func (s *RegistrySuite) TestBinLifecycle() {
	r := testutil.Residence(s.T(), s.db, s.collector, s.village)
	s.Require().NoError(s.svc.Delete(s.ctx, s.actor, r.ID))

	_, err := s.svc.Get(s.ctx, s.actor, r.ID)
	s.True(errors.Is(err, apperrors.ErrNotFound))

	bin, err := s.svc.ListBin(s.ctx, s.actor, ListParams{})
	s.Require().NoError(err)
	s.Require().Len(bin.Data, 1)

	restored, err := s.svc.Restore(s.ctx, s.actor, r.ID)
	s.Require().NoError(err)
	s.Equal(r.ID, restored.ID)

	_, err = s.svc.Get(s.ctx, s.actor, r.ID)
	s.NoError(err)
}

func (s *RegistrySuite) TestRestoreBlockedByNIDAReuse() {
	r := testutil.Residence(s.T(), s.db, s.collector, s.village)
	s.Require().NoError(s.svc.Delete(s.ctx, s.actor, r.ID))

	in := s.input()
	in.NIDANumber = r.NIDANumber
	_, err := s.svc.Create(s.ctx, s.actor, in)
	s.Require().NoError(err)

	_, err = s.svc.Restore(s.ctx, s.actor, r.ID)
	s.True(errors.Is(err, apperrors.ErrConflict))
}

func (s *RegistrySuite) TestDeleteBlockedByOpenTransfer() {
	r := testutil.Residence(s.T(), s.db, s.collector, s.village)
	dest := testutil.Village(s.T(), s.db, s.ward, "Bahari")
	s.Require().NoError(s.db.Create(&models.ResidenceTransfer{
		Reference: "ref-1", ResidenceID: r.ID, RequestedBy: s.collector.ID,
		FromWardID: s.ward.ID, FromVillageID: s.village.ID, ToWardID: s.ward.ID, ToVillageID: dest.ID,
		Status: models.TransferPendingApproval,
	}).Error)

	err := s.svc.Delete(s.ctx, s.actor, r.ID)
	s.True(errors.Is(err, apperrors.ErrConflict))
}

// =============================================================================
// MEMBERS
// =============================================================================

func (s *RegistrySuite) TestMinorDropsAdultFields() {
	r := testutil.Residence(s.T(), s.db, s.collector, s.village)
	m, err := s.svc.AddMember(s.ctx, s.actor, r.ID, MemberInput{
		FullName:     "Neema",
		Gender:       "female",
		DateOfBirth:  "2008-06-16",
		Relationship: "daughter",
		NIDANumber:   testutil.NIDA(),
		Occupation:   "student",
	})
	s.Require().NoError(err)
	s.False(m.IsAdult)
	s.Nil(m.NIDANumber)
	s.Nil(m.Occupation)

	var fresh models.Residence
	s.Require().NoError(s.db.First(&fresh, r.ID).Error)
	s.Equal(1, fresh.FamilySize)
}

func (s *RegistrySuite) TestAdultOnEighteenthBirthday() {
	r := testutil.Residence(s.T(), s.db, s.collector, s.village)
	_, err := s.svc.AddMember(s.ctx, s.actor, r.ID, MemberInput{
		FullName:     "Baraka",
		Gender:       "male",
		DateOfBirth:  "2008-06-15",
		Relationship: "son",
	})
	fields := s.fieldErrors(err)
	s.Equal("NIDA number is required for members aged 18 or older", fields["nida_number"])
	s.Equal("Employment status is required for members aged 18 or older", fields["employment_status"])
	s.Len(fields, 5)

	m, err := s.svc.AddMember(s.ctx, s.actor, r.ID, MemberInput{
		FullName:         "Baraka",
		Gender:           "male",
		DateOfBirth:      "2008-06-15",
		Relationship:     "son",
		NIDANumber:       testutil.NIDA(),
		Phone:            "0755123456",
		Occupation:       "mechanic",
		EducationLevel:   "secondary",
		EmploymentStatus: "employed",
	})
	s.Require().NoError(err)
	s.True(m.IsAdult)
	s.Require().NotNil(m.Phone)
	s.Equal("0755123456", *m.Phone)
}

func (s *RegistrySuite) TestMemberDuplicateNIDA() {
	r := testutil.Residence(s.T(), s.db, s.collector, s.village)
	nida := testutil.NIDA()
	in := MemberInput{
		FullName: "Juma", Gender: "male", DateOfBirth: "1970-01-01", Relationship: "father",
		NIDANumber: nida, Phone: "0755123456", Occupation: "farmer", EducationLevel: "primary", EmploymentStatus: "self",
	}
	_, err := s.svc.AddMember(s.ctx, s.actor, r.ID, in)
	s.Require().NoError(err)

	_, err = s.svc.AddMember(s.ctx, s.actor, r.ID, in)
	s.Equal(DuplicateMemberNIDA, s.fieldErrors(err)["nida_number"])
}

func (s *RegistrySuite) TestDeleteMemberScopedToResidence() {
	r := testutil.Residence(s.T(), s.db, s.collector, s.village)
	other := testutil.Residence(s.T(), s.db, s.collector, s.village)
	m, err := s.svc.AddMember(s.ctx, s.actor, r.ID, MemberInput{
		FullName: "Neema", Gender: "female", DateOfBirth: "2015-01-01", Relationship: "daughter",
	})
	s.Require().NoError(err)

	err = s.svc.DeleteMember(s.ctx, s.actor, other.ID, m.ID)
	s.True(errors.Is(err, apperrors.ErrNotFound))

	colleague := testutil.Actor(testutil.User(s.T(), s.db, models.RoleDataCollector, nil, s.village))
	err = s.svc.DeleteMember(s.ctx, colleague, r.ID, m.ID)
	s.True(errors.Is(err, apperrors.ErrNotFound))

	s.Require().NoError(s.svc.DeleteMember(s.ctx, s.actor, r.ID, m.ID))
	members, err := s.svc.ListMembers(s.ctx, s.actor, r.ID)
	s.Require().NoError(err)
	s.Empty(members)
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func TestAgeOn(t *testing.T) {
	dob := time.Date(2008, 6, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 17, AgeOn(dob, time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 18, AgeOn(dob, time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 18, AgeOn(dob, time.Date(2027, 6, 14, 0, 0, 0, 0, time.UTC)))
}

func TestParseDate(t *testing.T) {
	_, msg := parseDate("2030-01-01", today)
	assert.NotEmpty(t, msg)
	_, msg = parseDate("15/06/2000", today)
	assert.NotEmpty(t, msg)
	d, msg := parseDate("2000-06-15", today)
	require.Empty(t, msg)
	assert.Equal(t, 2000, d.Year())
}
