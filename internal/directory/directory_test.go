package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethra/makazi/internal/auth"
	apperrors "github.com/aethra/makazi/internal/errors"
	"github.com/aethra/makazi/internal/models"
	"github.com/aethra/makazi/internal/testutil"
)

type fixedChecker bool

func (f fixedChecker) CanViewAllData(context.Context, *auth.Actor) bool { return bool(f) }

func uintPtr(v uint) *uint { return &v }

func TestResolveScope(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name    string
		actor   *auth.Actor
		allData bool
		want    Scope
	}{
		{"nil actor", nil, false, Scope{Kind: ScopeNone}},
		{"super admin", &auth.Actor{Role: models.RoleSuperAdmin}, false, Scope{Kind: ScopeGlobal}},
		{"all data grant", &auth.Actor{Role: models.RoleVEO, VillageID: uintPtr(3)}, true, Scope{Kind: ScopeGlobal}},
		{"village beats ward", &auth.Actor{Role: models.RoleVEO, WardID: uintPtr(1), VillageID: uintPtr(3)}, false,
			Scope{Kind: ScopeVillage, WardID: 1, VillageID: 3}},
		{"ward", &auth.Actor{Role: models.RoleWEO, WardID: uintPtr(1)}, false, Scope{Kind: ScopeWard, WardID: 1}},
		{"unassigned admin", &auth.Actor{Role: models.RoleAdmin}, false, Scope{Kind: ScopeGlobal}},
		{"unassigned weo", &auth.Actor{Role: models.RoleWEO}, false, Scope{Kind: ScopeNone}},
		{"unassigned collector", &auth.Actor{Role: models.RoleDataCollector}, false, Scope{Kind: ScopeNone}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveScope(ctx, tc.actor, fixedChecker(tc.allData)))
		})
	}
}

func TestScopeContains(t *testing.T) {
	assert.True(t, Scope{Kind: ScopeGlobal}.Contains(9, 9))
	assert.True(t, Scope{Kind: ScopeWard, WardID: 1}.Contains(1, 42))
	assert.False(t, Scope{Kind: ScopeWard, WardID: 1}.Contains(2, 42))
	assert.True(t, Scope{Kind: ScopeVillage, VillageID: 3}.Contains(1, 3))
	assert.False(t, Scope{Kind: ScopeVillage, VillageID: 3}.Contains(1, 4))
	assert.False(t, Scope{Kind: ScopeNone}.Contains(1, 3))
}

func TestScopeCondition(t *testing.T) {
	cond, args := Scope{Kind: ScopeWard, WardID: 4}.Condition("r.ward_id", "r.village_id")
	assert.Equal(t, "r.ward_id = ?", cond)
	assert.Equal(t, []interface{}{uint(4)}, args)

	cond, args = Scope{Kind: ScopeNone}.Condition("r.ward_id", "r.village_id")
	assert.Equal(t, "1 = 0", cond)
	assert.Nil(t, args)
}

func TestVillagesOrderedByName(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, fixedChecker(false), nil)
	ctx := context.Background()

	w := testutil.Ward(t, db, "North")
	other := testutil.Ward(t, db, "South")
	testutil.Village(t, db, w, "Zanaki")
	testutil.Village(t, db, w, "Amani")
	closed := testutil.Village(t, db, w, "Mbuyuni")
	testutil.Village(t, db, other, "Bahari")
	require.NoError(t, svc.SetVillageActive(ctx, closed.ID, false))

	all, err := svc.ListVillages(ctx, w.ID, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Amani", all[0].Name)
	assert.Equal(t, "Mbuyuni", all[1].Name)

	opts, err := svc.VillageOptions(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, opts, 2)
	assert.Equal(t, "Amani", opts[0].VillageName)
	assert.Equal(t, "Zanaki", opts[1].VillageName)

	opts, err = svc.VillageOptions(ctx, 9999)
	require.NoError(t, err)
	assert.NotNil(t, opts)
	assert.Empty(t, opts)
}

func TestCreateWardAndVillage(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, fixedChecker(false), nil)
	ctx := context.Background()
	admin := &auth.Actor{UserID: 1, Role: models.RoleAdmin}

	w, err := svc.CreateWard(ctx, admin, WardInput{Name: " Kati ", Code: "kt01"})
	require.NoError(t, err)
	assert.Equal(t, "Kati", w.Name)
	assert.Equal(t, "KT01", w.Code)
	assert.True(t, w.IsActive)

	_, err = svc.CreateWard(ctx, admin, WardInput{Name: "Kati 2", Code: "KT01"})
	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "code")

	_, err = svc.CreateWard(ctx, admin, WardInput{})
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 2)

	v, err := svc.CreateVillage(ctx, admin, VillageInput{WardID: w.ID, Name: "Amani", Code: "am01"})
	require.NoError(t, err)
	assert.Equal(t, w.ID, v.WardID)

	require.NoError(t, svc.SetWardActive(ctx, w.ID, false))
	_, err = svc.CreateVillage(ctx, admin, VillageInput{WardID: w.ID, Name: "Bahari", Code: "BH01"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Ward is not active", ve.Fields["ward_id"])

	_, err = svc.CreateVillage(ctx, admin, VillageInput{WardID: 9999, Name: "Bahari", Code: "BH01"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Ward does not exist", ve.Fields["ward_id"])
}

func TestGetMissing(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, fixedChecker(false), nil)

	_, err := svc.GetWard(context.Background(), 404)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = svc.GetVillage(context.Background(), 404)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.True(t, errors.Is(svc.SetWardActive(context.Background(), 404, true), apperrors.ErrNotFound))
}

func TestAccessibleSubsets(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, fixedChecker(false), nil)
	ctx := context.Background()

	north := testutil.Ward(t, db, "North")
	south := testutil.Ward(t, db, "South")
	amani := testutil.Village(t, db, north, "Amani")
	testutil.Village(t, db, north, "Bahari")
	testutil.Village(t, db, south, "Chini")

	weo := &auth.Actor{Role: models.RoleWEO, WardID: &north.ID}
	wards, err := svc.AccessibleWards(ctx, weo)
	require.NoError(t, err)
	require.Len(t, wards, 1)
	assert.Equal(t, north.ID, wards[0].ID)

	villages, err := svc.AccessibleVillages(ctx, weo)
	require.NoError(t, err)
	assert.Len(t, villages, 2)

	veo := &auth.Actor{Role: models.RoleVEO, VillageID: &amani.ID}
	wards, err = svc.AccessibleWards(ctx, veo)
	require.NoError(t, err)
	require.Len(t, wards, 1)
	assert.Equal(t, north.ID, wards[0].ID)
	villages, err = svc.AccessibleVillages(ctx, veo)
	require.NoError(t, err)
	require.Len(t, villages, 1)
	assert.Equal(t, amani.ID, villages[0].ID)

	admin := &auth.Actor{Role: models.RoleAdmin}
	wards, err = svc.AccessibleWards(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, wards, 2)

	lost := &auth.Actor{Role: models.RoleWEO}
	villages, err = svc.AccessibleVillages(ctx, lost)
	require.NoError(t, err)
	assert.Empty(t, villages)
}
