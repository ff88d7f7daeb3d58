// Package testutil opens migrated sqlite databases and builds fixtures for
// store-backed tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aethra/makazi/internal/auth"
	"github.com/aethra/makazi/internal/database"
	"github.com/aethra/makazi/internal/models"
)

// NewDB opens a fresh sqlite file under t.TempDir and applies every migration
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "makazi.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	require.NoError(t, database.RunMigrations(context.Background(), db, database.DriverSQLite, nil))
	return db
}

// NewSeededDB is NewDB plus the default permission catalog and role grants
func NewSeededDB(t testing.TB) *gorm.DB {
	t.Helper()
	db := NewDB(t)
	require.NoError(t, auth.SeedCatalog(context.Background(), db))
	return db
}

var seq atomic.Int64

func next() int64 { return seq.Add(1) }

// Ward inserts an active ward
func Ward(t testing.TB, db *gorm.DB, name string) *models.Ward {
	t.Helper()
	w := &models.Ward{Name: name, Code: fmt.Sprintf("W%04d", next()), IsActive: true}
	require.NoError(t, db.Create(w).Error)
	return w
}

// Village inserts an active village in ward
func Village(t testing.TB, db *gorm.DB, ward *models.Ward, name string) *models.Village {
	t.Helper()
	v := &models.Village{WardID: ward.ID, Name: name, Code: fmt.Sprintf("V%04d", next()), IsActive: true}
	require.NoError(t, db.Create(v).Error)
	return v
}

// User inserts an active user with the given role and optional assignment
func User(t testing.TB, db *gorm.DB, role models.Role, ward *models.Ward, village *models.Village) *models.User {
	t.Helper()
	n := next()
	u := &models.User{
		FullName: fmt.Sprintf("%s user %d", role, n),
		Username: fmt.Sprintf("%s%d", role, n),
		Role:     role,
		IsActive: true,
	}
	if ward != nil {
		u.WardID = &ward.ID
	}
	if village != nil {
		u.VillageID = &village.ID
		if ward == nil {
			u.WardID = &village.WardID
		}
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// UserWithPassword is User with a bcrypt hash of password
func UserWithPassword(t testing.TB, db *gorm.DB, role models.Role, password string) *models.User {
	t.Helper()
	u := User(t, db, role, nil, nil)
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, db.Model(u).Update("password_hash", hash).Error)
	u.PasswordHash = hash
	return u
}

// Actor builds the request actor of u
func Actor(u *models.User) *auth.Actor {
	return auth.ActorFromUser(u)
}

// NIDA returns a unique, valid 20 digit national id
func NIDA() string {
	return fmt.Sprintf("1990%016d", next())
}

// Residence inserts an approved residence registered by u in village
func Residence(t testing.TB, db *gorm.DB, by *models.User, village *models.Village) *models.Residence {
	t.Helper()
	n := next()
	r := &models.Residence{
		HouseNo:          fmt.Sprintf("H-%d", n),
		ResidentName:     fmt.Sprintf("Resident %d", n),
		Gender:           "female",
		DateOfBirth:      time.Date(1985, 3, 14, 0, 0, 0, 0, time.UTC),
		NIDANumber:       NIDA(),
		Phone:            "0712345678",
		Occupation:       "farmer",
		EducationLevel:   "secondary",
		EmploymentStatus: "self_employed",
		Ownership:        "owner",
		WardID:           village.WardID,
		VillageID:        village.ID,
		RegisteredBy:     by.ID,
		Status:           models.ResidenceApproved,
	}
	require.NoError(t, db.Create(r).Error)
	return r
}

// Grant inserts a role default row. action "" makes a page-level row.
func Grant(t testing.TB, db *gorm.DB, role models.Role, page string, action auth.Action, granted bool) {
	t.Helper()
	pageID, actionID := catalogIDs(t, db, page, action)
	require.NoError(t, db.Create(&models.RolePermission{
		Role: role, PageID: pageID, ActionID: actionID, IsGranted: granted,
	}).Error)
}

// Override inserts a user override row. action "" makes a page-level row.
func Override(t testing.TB, db *gorm.DB, user *models.User, page string, action auth.Action, granted bool) {
	t.Helper()
	pageID, actionID := catalogIDs(t, db, page, action)
	require.NoError(t, db.Create(&models.UserPermission{
		UserID: user.ID, PageID: pageID, ActionID: actionID, IsGranted: granted,
	}).Error)
}

// catalogIDs finds or creates the page and action rows
func catalogIDs(t testing.TB, db *gorm.DB, page string, action auth.Action) (uint, *uint) {
	t.Helper()
	var module models.PermissionModule
	require.NoError(t, db.Where(models.PermissionModule{Name: "test"}).
		Attrs(models.PermissionModule{IsActive: true}).FirstOrCreate(&module).Error)

	var p models.PermissionPage
	require.NoError(t, db.Where(models.PermissionPage{Name: page}).
		Attrs(models.PermissionPage{ModuleID: module.ID, IsActive: true}).FirstOrCreate(&p).Error)
	if action == auth.PageLevel {
		return p.ID, nil
	}

	var a models.PermissionAction
	require.NoError(t, db.Where(models.PermissionAction{PageID: p.ID, Name: string(action)}).
		Attrs(models.PermissionAction{IsActive: true}).FirstOrCreate(&a).Error)
	return p.ID, &a.ID
}
