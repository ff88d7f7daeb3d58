package users

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethra/makazi/internal/audit"
	"github.com/aethra/makazi/internal/auth"
	apperrors "github.com/aethra/makazi/internal/errors"
	"github.com/aethra/makazi/internal/models"
	"github.com/aethra/makazi/internal/testutil"
)

func uptr(v uint) *uint { return &v }

func fields(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)
	return ve.Fields
}

func TestCreate_RoleAssignmentRules(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	admin := testutil.Actor(testutil.User(t, db, models.RoleAdmin, nil, nil))

	north := testutil.Ward(t, db, "North")
	south := testutil.Ward(t, db, "South")
	amani := testutil.Village(t, db, north, "Amani")

	base := CreateInput{FullName: "Asha Juma", Password: "s3cret-pass"}

	in := base
	in.Username, in.Role = "weo1", "weo"
	assert.Equal(t, "A WEO must be assigned to a ward", fields(t, func() error { _, err := svc.Create(ctx, admin, in); return err }())["ward_id"])

	in = base
	in.Username, in.Role = "veo1", "veo"
	in.WardID = &north.ID
	assert.Contains(t, fields(t, func() error { _, err := svc.Create(ctx, admin, in); return err }()), "village_id")

	in = base
	in.Username, in.Role = "veo1", "veo"
	in.WardID, in.VillageID = &south.ID, &amani.ID
	assert.Equal(t, "Village does not belong to the selected ward",
		fields(t, func() error { _, err := svc.Create(ctx, admin, in); return err }())["village_id"])

	in = base
	in.Username, in.Role = "veo1", "veo"
	in.VillageID = &amani.ID
	u, err := svc.Create(ctx, admin, in)
	require.NoError(t, err)
	require.NotNil(t, u.WardID)
	assert.Equal(t, north.ID, *u.WardID, "village implies its ward")

	in = base
	in.Username, in.Role = "VEO1", "data_collector"
	assert.Equal(t, "Username is already taken",
		fields(t, func() error { _, err := svc.Create(ctx, admin, in); return err }())["username"])

	in = base
	in.Username, in.Role = "boss", "emperor"
	assert.Contains(t, fields(t, func() error { _, err := svc.Create(ctx, admin, in); return err }()), "role")

	in = base
	in.Username, in.Role, in.Password = "short", "admin", "123"
	assert.Contains(t, fields(t, func() error { _, err := svc.Create(ctx, admin, in); return err }()), "password")
}

func TestCreate_OnlySuperAdminCreatesSuperAdmin(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, nil)
	ctx := context.Background()

	admin := testutil.Actor(testutil.User(t, db, models.RoleAdmin, nil, nil))
	super := testutil.Actor(testutil.User(t, db, models.RoleSuperAdmin, nil, nil))
	in := CreateInput{FullName: "Root", Username: "root", Password: "s3cret-pass", Role: "super_admin", WardID: uptr(1)}

	_, err := svc.Create(ctx, admin, in)
	var pd *apperrors.PermissionDeniedError
	require.ErrorAs(t, err, &pd)

	u, err := svc.Create(ctx, super, in)
	require.NoError(t, err)
	assert.Nil(t, u.WardID)
}

func TestAuthenticate(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	u := testutil.UserWithPassword(t, db, models.RoleVEO, "correct horse")

	got, err := svc.Authenticate(ctx, u.Username, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.NotNil(t, got.LastLoginAt)

	_, err = svc.Authenticate(ctx, u.Username, "wrong")
	assert.Equal(t, ErrInvalidCredentials, err)
	_, err = svc.Authenticate(ctx, "nobody", "correct horse")
	assert.Equal(t, ErrInvalidCredentials, err)

	require.NoError(t, svc.SetActive(ctx, nil, u.ID, false))
	_, err = svc.Authenticate(ctx, u.Username, "correct horse")
	assert.Equal(t, ErrInvalidCredentials, err)

	_, err = svc.ActiveUser(ctx, u.ID)
	var ue *apperrors.UnauthorizedError
	assert.ErrorAs(t, err, &ue)
}

func TestChangePassword(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	u := testutil.UserWithPassword(t, db, models.RoleAdmin, "old-password")

	err := svc.ChangePassword(ctx, u.ID, "nope", "new-password")
	assert.Contains(t, fields(t, err), "current_password")

	require.NoError(t, svc.ChangePassword(ctx, u.ID, "old-password", "new-password"))
	_, err = svc.Authenticate(ctx, u.Username, "new-password")
	assert.NoError(t, err)
}

func TestSetActive(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	admin := testutil.User(t, db, models.RoleAdmin, nil, nil)

	err := svc.SetActive(ctx, auth.ActorFromUser(admin), admin.ID, false)
	var br *apperrors.BadRequestError
	assert.ErrorAs(t, err, &br)

	err = svc.SetActive(ctx, auth.ActorFromUser(admin), 9999, false)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSuperAdminAccountsAreOffLimitsToAdmins(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	admin := testutil.Actor(testutil.User(t, db, models.RoleAdmin, nil, nil))
	super := testutil.Actor(testutil.User(t, db, models.RoleSuperAdmin, nil, nil))
	root := testutil.UserWithPassword(t, db, models.RoleSuperAdmin, "root-password")

	var pd *apperrors.PermissionDeniedError
	require.ErrorAs(t, svc.SetPassword(ctx, admin, root.ID, "hijacked-pass"), &pd)
	require.ErrorAs(t, svc.SetActive(ctx, admin, root.ID, false), &pd)

	_, err := svc.Authenticate(ctx, root.Username, "root-password")
	require.NoError(t, err, "password and active flag are untouched")

	require.NoError(t, svc.SetPassword(ctx, super, root.ID, "rotated-pass"))
	_, err = svc.Authenticate(ctx, root.Username, "rotated-pass")
	require.NoError(t, err)
	require.NoError(t, svc.SetActive(ctx, super, root.ID, false))

	assert.True(t, errors.Is(svc.SetPassword(ctx, super, 9999, "whatever-pass"), apperrors.ErrNotFound))
}

func TestSetPasswordIsAudited(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	admin := testutil.Actor(testutil.User(t, db, models.RoleAdmin, nil, nil))
	veo := testutil.User(t, db, models.RoleVEO, nil, nil)

	assert.Contains(t, fields(t, svc.SetPassword(ctx, admin, veo.ID, "short")), "password")
	require.NoError(t, svc.SetPassword(ctx, admin, veo.ID, "fresh-password"))
	require.NoError(t, svc.SetPassword(ctx, nil, veo.ID, "cli-password"))

	var rows []models.AuditLog
	require.NoError(t, db.Where("action = ? AND entity_type = ? AND entity_id = ?",
		audit.ActionPassword, audit.EntityUser, veo.ID).Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].UserID)
	assert.Equal(t, admin.UserID, *rows[0].UserID)
	assert.Nil(t, rows[1].UserID)
}

func TestUpdateMovesAssignment(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	admin := testutil.Actor(testutil.User(t, db, models.RoleAdmin, nil, nil))

	north := testutil.Ward(t, db, "North")
	south := testutil.Ward(t, db, "South")
	weo := testutil.User(t, db, models.RoleWEO, north, nil)

	u, err := svc.Update(ctx, admin, weo.ID, UpdateInput{FullName: "Moved", Role: "weo", WardID: &south.ID})
	require.NoError(t, err)
	require.NotNil(t, u.WardID)
	assert.Equal(t, south.ID, *u.WardID)
	assert.Equal(t, "Moved", u.FullName)

	list, err := svc.List(ctx, "weo")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, weo.ID, list[0].ID)
}
