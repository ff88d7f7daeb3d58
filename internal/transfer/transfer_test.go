package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/aethra/makazi/internal/auth"
	apperrors "github.com/aethra/makazi/internal/errors"
	"github.com/aethra/makazi/internal/models"
	"github.com/aethra/makazi/internal/platform/metrics"
	"github.com/aethra/makazi/internal/testutil"
)

type TransferSuite struct {
	suite.Suite
	db  *gorm.DB
	svc *Service
	ctx context.Context

	north, south   *models.Ward
	amani, bahari  *models.Village
	chini          *models.Village
	collector      *auth.Actor
	weoNorth       *auth.Actor
	weoSouth       *auth.Actor
	adminSouth     *auth.Actor
	adminNorth     *auth.Actor
	veoChini       *auth.Actor
	veoBahari      *auth.Actor
	residence      *models.Residence
	collectorModel *models.User
}

func (s *TransferSuite) SetupTest() {
	t := s.T()
	s.db = testutil.NewSeededDB(t)
	s.ctx = context.Background()
	s.svc = NewService(s.db, auth.NewResolver(s.db, nil, nil), nil, metrics.New(prometheus.NewRegistry()))

	s.north = testutil.Ward(t, s.db, "North")
	s.south = testutil.Ward(t, s.db, "South")
	s.amani = testutil.Village(t, s.db, s.north, "Amani")
	s.bahari = testutil.Village(t, s.db, s.north, "Bahari")
	s.chini = testutil.Village(t, s.db, s.south, "Chini")

	s.collectorModel = testutil.User(t, s.db, models.RoleDataCollector, nil, s.amani)
	s.collector = testutil.Actor(s.collectorModel)
	s.weoNorth = testutil.Actor(testutil.User(t, s.db, models.RoleWEO, s.north, nil))
	s.weoSouth = testutil.Actor(testutil.User(t, s.db, models.RoleWEO, s.south, nil))
	s.adminSouth = testutil.Actor(testutil.User(t, s.db, models.RoleAdmin, s.south, nil))
	s.adminNorth = testutil.Actor(testutil.User(t, s.db, models.RoleAdmin, s.north, nil))
	s.veoChini = testutil.Actor(testutil.User(t, s.db, models.RoleVEO, nil, s.chini))
	s.veoBahari = testutil.Actor(testutil.User(t, s.db, models.RoleVEO, nil, s.bahari))

	s.residence = testutil.Residence(t, s.db, s.collectorModel, s.amani)
}

func (s *TransferSuite) request() *models.ResidenceTransfer {
	tr, err := s.svc.Request(s.ctx, s.collector, s.residence.ID, s.chini.ID, "moving for work")
	s.Require().NoError(err)
	return tr
}

func ids(ts []models.ResidenceTransfer) []uint {
	out := make([]uint, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

func (s *TransferSuite) TestRequestCopiesLocations() {
	tr := s.request()
	s.Equal(models.TransferPendingApproval, tr.Status)
	s.Equal(s.north.ID, tr.FromWardID)
	s.Equal(s.amani.ID, tr.FromVillageID)
	s.Equal(s.south.ID, tr.ToWardID)
	s.Equal(s.chini.ID, tr.ToVillageID)
	s.Len(tr.Reference, 36)
}

func (s *TransferSuite) TestRequestRejections() {
	var ve *apperrors.ValidationError

	_, err := s.svc.Request(s.ctx, s.collector, s.residence.ID, s.amani.ID, "")
	s.Require().ErrorAs(err, &ve)
	s.Contains(ve.Fields, "to_village_id")

	s.Require().NoError(s.db.Model(&models.Village{}).Where("id = ?", s.bahari.ID).Update("is_active", false).Error)
	_, err = s.svc.Request(s.ctx, s.collector, s.residence.ID, s.bahari.ID, "")
	s.Require().ErrorAs(err, &ve)
	s.Equal("Destination village is not active", ve.Fields["to_village_id"])

	s.request()
	_, err = s.svc.Request(s.ctx, s.collector, s.residence.ID, s.chini.ID, "again")
	s.True(errors.Is(err, apperrors.ErrConflict))

	stranger := testutil.Actor(testutil.User(s.T(), s.db, models.RoleDataCollector, nil, s.chini))
	_, err = s.svc.Request(s.ctx, stranger, s.residence.ID, s.bahari.ID, "")
	s.True(errors.Is(err, apperrors.ErrNotFound))
}

func (s *TransferSuite) TestFullChainRelocatesResidence() {
	tr := s.request()

	queue, err := s.svc.PendingForWEO(s.ctx, s.weoNorth)
	s.Require().NoError(err)
	s.Contains(ids(queue), tr.ID)
	queue, err = s.svc.PendingForWEO(s.ctx, s.weoSouth)
	s.Require().NoError(err)
	s.Contains(ids(queue), tr.ID, "destination ward WEO sees it too")

	tr, err = s.svc.ApproveByWEO(s.ctx, s.weoNorth, tr.ID)
	s.Require().NoError(err)
	s.Equal(models.TransferWEOApproved, tr.Status)
	s.Require().NotNil(tr.WEOReviewedBy)

	queue, err = s.svc.PendingForWardAdmin(s.ctx, s.adminNorth)
	s.Require().NoError(err)
	s.Empty(queue, "only the destination ward admin reviews")
	queue, err = s.svc.PendingForWardAdmin(s.ctx, s.adminSouth)
	s.Require().NoError(err)
	s.Equal([]uint{tr.ID}, ids(queue))

	tr, err = s.svc.ApproveByWard(s.ctx, s.adminSouth, tr.ID)
	s.Require().NoError(err)
	s.Equal(models.TransferWardApproved, tr.Status)

	queue, err = s.svc.PendingForVEO(s.ctx, s.veoBahari)
	s.Require().NoError(err)
	s.Empty(queue)
	_, err = s.svc.Accept(s.ctx, s.veoBahari, tr.ID)
	s.True(errors.Is(err, apperrors.ErrNotFound))

	tr, err = s.svc.Accept(s.ctx, s.veoChini, tr.ID)
	s.Require().NoError(err)
	s.Equal(models.TransferAccepted, tr.Status)

	var moved models.Residence
	s.Require().NoError(s.db.First(&moved, s.residence.ID).Error)
	s.Equal(s.south.ID, moved.WardID)
	s.Equal(s.chini.ID, moved.VillageID)

	var logs int64
	s.Require().NoError(s.db.Model(&models.AuditLog{}).
		Where("entity_type = ? AND entity_id = ?", "residence_transfer", tr.ID).Count(&logs).Error)
	s.EqualValues(4, logs)
}

func (s *TransferSuite) TestQueuesOnlyShowOwnStage() {
	tr := s.request()

	queue, err := s.svc.PendingForVEO(s.ctx, s.veoChini)
	s.Require().NoError(err)
	s.Empty(queue)

	_, err = s.svc.ApproveByWard(s.ctx, s.adminSouth, tr.ID)
	s.True(errors.Is(err, apperrors.ErrConflict))

	_, err = s.svc.PendingForWEO(s.ctx, s.veoChini)
	var pd *apperrors.PermissionDeniedError
	s.ErrorAs(err, &pd)
}

func (s *TransferSuite) TestWEOOutsideWardGetsNotFound() {
	east := testutil.Ward(s.T(), s.db, "East")
	weoEast := testutil.Actor(testutil.User(s.T(), s.db, models.RoleWEO, east, nil))
	tr := s.request()

	queue, err := s.svc.PendingForWEO(s.ctx, weoEast)
	s.Require().NoError(err)
	s.Empty(queue)

	_, err = s.svc.ApproveByWEO(s.ctx, weoEast, tr.ID)
	s.True(errors.Is(err, apperrors.ErrNotFound))
}

func (s *TransferSuite) TestGlobalAdminAndSuperAdminQueues() {
	tr := s.request()
	_, err := s.svc.ApproveByWEO(s.ctx, s.weoNorth, tr.ID)
	s.Require().NoError(err)

	global := testutil.Actor(testutil.User(s.T(), s.db, models.RoleAdmin, nil, nil))
	queue, err := s.svc.PendingForWardAdmin(s.ctx, global)
	s.Require().NoError(err)
	s.Equal([]uint{tr.ID}, ids(queue))

	super := testutil.Actor(testutil.User(s.T(), s.db, models.RoleSuperAdmin, nil, nil))
	queue, err = s.svc.PendingForWardAdmin(s.ctx, super)
	s.Require().NoError(err)
	s.Equal([]uint{tr.ID}, ids(queue))
}

func (s *TransferSuite) TestSecondApprovalConflicts() {
	tr := s.request()
	weo2 := testutil.Actor(testutil.User(s.T(), s.db, models.RoleWEO, s.north, nil))

	_, err := s.svc.ApproveByWEO(s.ctx, s.weoNorth, tr.ID)
	s.Require().NoError(err)
	_, err = s.svc.ApproveByWEO(s.ctx, weo2, tr.ID)
	s.True(errors.Is(err, apperrors.ErrConflict))
}

func (s *TransferSuite) TestTransitionIsConditional() {
	tr := s.request()
	s.Require().NoError(s.db.Model(&models.ResidenceTransfer{}).
		Where("id = ?", tr.ID).Update("status", models.TransferCancelled).Error)

	err := s.svc.transition(s.db, tr.ID, models.TransferPendingApproval,
		map[string]interface{}{"status": models.TransferWEOApproved})
	s.True(errors.Is(err, apperrors.ErrConflict))
	s.False(errors.Is(err, apperrors.ErrInvalidState), "a lost race is not a state error")

	var got models.ResidenceTransfer
	s.Require().NoError(s.db.First(&got, tr.ID).Error)
	s.Equal(models.TransferCancelled, got.Status)
}

func (s *TransferSuite) TestRejectIsTerminal() {
	tr := s.request()

	_, err := s.svc.Reject(s.ctx, s.weoNorth, tr.ID, "  ")
	var ve *apperrors.ValidationError
	s.ErrorAs(err, &ve)

	tr, err = s.svc.Reject(s.ctx, s.weoNorth, tr.ID, "incomplete papers")
	s.Require().NoError(err)
	s.Equal(models.TransferRejected, tr.Status)
	s.Equal("incomplete papers", tr.RejectionReason)

	_, err = s.svc.ApproveByWEO(s.ctx, s.weoNorth, tr.ID)
	s.True(errors.Is(err, apperrors.ErrConflict))
	s.True(errors.Is(err, apperrors.ErrInvalidState))
	_, err = s.svc.Cancel(s.ctx, s.collector, tr.ID)
	s.True(errors.Is(err, apperrors.ErrInvalidState))
	_, err = s.svc.Reject(s.ctx, s.weoNorth, tr.ID, "twice")
	s.True(errors.Is(err, apperrors.ErrInvalidState))

	again, err := s.svc.Request(s.ctx, s.collector, s.residence.ID, s.chini.ID, "second try")
	s.Require().NoError(err)
	s.NotEqual(tr.ID, again.ID)
}

func (s *TransferSuite) TestCancel() {
	tr := s.request()

	_, err := s.svc.Cancel(s.ctx, s.veoChini, tr.ID)
	s.True(errors.Is(err, apperrors.ErrNotFound))

	tr, err = s.svc.Cancel(s.ctx, s.collector, tr.ID)
	s.Require().NoError(err)
	s.Equal(models.TransferCancelled, tr.Status)

	tr2 := s.request()
	tr2, err = s.svc.Cancel(s.ctx, s.adminNorth, tr2.ID)
	s.Require().NoError(err)
	s.Equal(models.TransferCancelled, tr2.Status)
}

func (s *TransferSuite) TestGetAndList() {
	tr := s.request()

	got, err := s.svc.Get(s.ctx, s.veoChini, tr.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.Residence)
	s.Equal(s.residence.ID, got.Residence.ID)

	east := testutil.Ward(s.T(), s.db, "East")
	outsider := testutil.Actor(testutil.User(s.T(), s.db, models.RoleWEO, east, nil))
	_, err = s.svc.Get(s.ctx, outsider, tr.ID)
	s.True(errors.Is(err, apperrors.ErrNotFound))

	list, err := s.svc.List(s.ctx, s.weoSouth, models.TransferPendingApproval)
	s.Require().NoError(err)
	s.Equal([]uint{tr.ID}, ids(list))

	list, err = s.svc.List(s.ctx, outsider, "")
	s.Require().NoError(err)
	s.NotNil(list)
	s.Empty(list)
}

func TestTransferSuite(t *testing.T) {
	suite.Run(t, new(TransferSuite))
}

func TestStageFor(t *testing.T) {
	st, ok := StageFor(models.TransferWEOApproved)
	require.True(t, ok)
	assert.Equal(t, StageWard, st)

	_, ok = StageFor(models.TransferAccepted)
	assert.False(t, ok)
}

type countingChecker struct {
	inner *auth.Resolver
	calls int
}

func (c *countingChecker) CanViewAllData(ctx context.Context, actor *auth.Actor) bool {
	c.calls++
	return c.inner.CanViewAllData(ctx, actor)
}

func TestCollectorRequestSkipsScopeLookup(t *testing.T) {
	db := testutil.NewSeededDB(t)
	checker := &countingChecker{inner: auth.NewResolver(db, nil, nil)}
	svc := NewService(db, checker, nil, metrics.New(prometheus.NewRegistry()))
	ctx := context.Background()

	north := testutil.Ward(t, db, "North")
	amani := testutil.Village(t, db, north, "Amani")
	bahari := testutil.Village(t, db, north, "Bahari")
	collector := testutil.User(t, db, models.RoleDataCollector, nil, nil)
	r := testutil.Residence(t, db, collector, amani)
	other := testutil.Residence(t, db, testutil.User(t, db, models.RoleDataCollector, nil, amani), amani)

	tr, err := svc.Request(ctx, testutil.Actor(collector), r.ID, bahari.ID, "")
	require.NoError(t, err, "an unassigned collector may move their own registration")
	assert.Equal(t, r.ID, tr.ResidenceID)

	_, err = svc.Request(ctx, testutil.Actor(collector), other.ID, bahari.ID, "")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Zero(t, checker.calls)

	veo := testutil.User(t, db, models.RoleVEO, nil, amani)
	_, err = svc.Request(ctx, testutil.Actor(veo), other.ID, bahari.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, checker.calls)
}
