package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	apperrors "github.com/aethra/makazi/internal/errors"
	"github.com/aethra/makazi/internal/models"
)

// PageLevel addresses a grant row with no action. It satisfies view checks.
const PageLevel Action = ""

// CatalogPage describes one page and its actions
type CatalogPage struct {
	Name        string
	DisplayName string
	Actions     []Action
}

// CatalogModule describes one module of the permission catalog
type CatalogModule struct {
	Name        string
	DisplayName string
	Pages       []CatalogPage
}

// DefaultCatalog is the capability catalog created by SeedCatalog
var DefaultCatalog = []CatalogModule{
	{Name: "registry", DisplayName: "Registry", Pages: []CatalogPage{
		{Name: PageResidences, DisplayName: "Residences", Actions: []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport}},
		{Name: PageFamilyMembers, DisplayName: "Family Members", Actions: []Action{ActionView, ActionCreate, ActionDelete}},
		{Name: PageBin, DisplayName: "Bin", Actions: []Action{ActionView, ActionEdit}},
	}},
	{Name: "transfers", DisplayName: "Transfers", Pages: []CatalogPage{
		{Name: PageTransfers, DisplayName: "Residence Transfers", Actions: []Action{ActionView, ActionCreate, ActionApprove}},
	}},
	{Name: "locations", DisplayName: "Locations", Pages: []CatalogPage{
		{Name: PageWards, DisplayName: "Wards", Actions: []Action{ActionView, ActionCreate, ActionEdit}},
		{Name: PageVillages, DisplayName: "Villages", Actions: []Action{ActionView, ActionCreate, ActionEdit}},
	}},
	{Name: "reports", DisplayName: "Reports", Pages: []CatalogPage{
		{Name: PageReports, DisplayName: "Reports", Actions: []Action{ActionView, ActionExport}},
		{Name: PageAllData, DisplayName: "All Locations", Actions: []Action{ActionView}},
	}},
	{Name: "administration", DisplayName: "Administration", Pages: []CatalogPage{
		{Name: PageUsers, DisplayName: "Users", Actions: []Action{ActionView, ActionCreate, ActionEdit}},
		{Name: PagePermissions, DisplayName: "Permissions", Actions: []Action{ActionView, ActionEdit}},
		{Name: PageAudit, DisplayName: "Audit Log", Actions: []Action{ActionView}},
	}},
}

// Grant is one default role grant
type Grant struct {
	Role   models.Role
	Page   string
	Action Action
}

// DefaultRoleGrants are the role defaults created by SeedCatalog. Super
// admins never need rows.
var DefaultRoleGrants = buildDefaultGrants()

func buildDefaultGrants() []Grant {
	var grants []Grant
	add := func(role models.Role, page string, actions ...Action) {
		for _, a := range actions {
			grants = append(grants, Grant{Role: role, Page: page, Action: a})
		}
	}

	for _, m := range DefaultCatalog {
		for _, p := range m.Pages {
			if p.Name == PageAllData {
				continue
			}
			add(models.RoleAdmin, p.Name, p.Actions...)
		}
	}

	add(models.RoleWEO, PageResidences, PageLevel, ActionExport)
	add(models.RoleWEO, PageFamilyMembers, PageLevel)
	add(models.RoleWEO, PageTransfers, PageLevel, ActionApprove)
	add(models.RoleWEO, PageWards, PageLevel)
	add(models.RoleWEO, PageVillages, PageLevel)
	add(models.RoleWEO, PageReports, PageLevel, ActionExport)

	add(models.RoleVEO, PageResidences, PageLevel, ActionCreate, ActionEdit)
	add(models.RoleVEO, PageFamilyMembers, PageLevel, ActionCreate)
	add(models.RoleVEO, PageTransfers, PageLevel, ActionCreate, ActionApprove)
	add(models.RoleVEO, PageVillages, PageLevel)
	add(models.RoleVEO, PageReports, PageLevel)

	add(models.RoleDataCollector, PageResidences, PageLevel, ActionCreate, ActionEdit, ActionDelete)
	add(models.RoleDataCollector, PageFamilyMembers, PageLevel, ActionCreate, ActionDelete)
	add(models.RoleDataCollector, PageBin, PageLevel, ActionEdit)
	add(models.RoleDataCollector, PageTransfers, PageLevel, ActionCreate)
	add(models.RoleDataCollector, PageWards, PageLevel)
	add(models.RoleDataCollector, PageVillages, PageLevel)

	return grants
}

// SeedCatalog creates the default catalog and role grants. Existing rows
// are left untouched so administrator edits survive a re-seed.
func SeedCatalog(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, m := range DefaultCatalog {
			module := models.PermissionModule{Name: m.Name}
			if err := tx.Where(models.PermissionModule{Name: m.Name}).
				Attrs(models.PermissionModule{DisplayName: m.DisplayName, SortOrder: i, IsActive: true}).
				FirstOrCreate(&module).Error; err != nil {
				return fmt.Errorf("seed module %s: %w", m.Name, err)
			}

			for _, p := range m.Pages {
				page := models.PermissionPage{}
				if err := tx.Where(models.PermissionPage{Name: p.Name}).
					Attrs(models.PermissionPage{ModuleID: module.ID, DisplayName: p.DisplayName, IsActive: true}).
					FirstOrCreate(&page).Error; err != nil {
					return fmt.Errorf("seed page %s: %w", p.Name, err)
				}

				for _, a := range p.Actions {
					action := models.PermissionAction{}
					if err := tx.Where(models.PermissionAction{PageID: page.ID, Name: string(a)}).
						Attrs(models.PermissionAction{DisplayName: titleAction(a), IsActive: true}).
						FirstOrCreate(&action).Error; err != nil {
						return fmt.Errorf("seed action %s.%s: %w", p.Name, a, err)
					}
				}
			}
		}

		for _, g := range DefaultRoleGrants {
			pageID, actionID, err := resolveCatalog(tx, g.Page, g.Action)
			if err != nil {
				return err
			}
			var count int64
			if err := grantScope(tx.Model(&models.RolePermission{}), pageID, actionID).
				Where("role = ?", g.Role).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			row := models.RolePermission{Role: g.Role, PageID: pageID, ActionID: actionID, IsGranted: true}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("seed grant %s %s.%s: %w", g.Role, g.Page, g.Action, err)
			}
		}
		return nil
	})
}

func titleAction(a Action) string {
	if a == "" {
		return ""
	}
	return strings.ToUpper(string(a[:1])) + string(a[1:])
}

// =============================================================================
// ADMINISTRATION
// =============================================================================

// Catalog returns the full catalog, modules ordered by sort order
func (r *Resolver) Catalog(ctx context.Context) ([]models.PermissionModule, error) {
	var modules []models.PermissionModule
	err := r.db.WithContext(ctx).
		Preload("Pages", func(db *gorm.DB) *gorm.DB { return db.Order("name") }).
		Preload("Pages.Actions", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("sort_order, name").
		Find(&modules).Error
	return modules, err
}

// SetRoleGrant creates or updates the default grant of role on (page, action)
func (r *Resolver) SetRoleGrant(ctx context.Context, role models.Role, page string, action Action, granted bool) error {
	if !role.Valid() {
		return apperrors.NewFieldError("role", "Unknown role")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pageID, actionID, err := resolveCatalog(tx, page, action)
		if err != nil {
			return err
		}

		var existing models.RolePermission
		err = grantScope(tx, pageID, actionID).Where("role = ?", role).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.RolePermission{Role: role, PageID: pageID, ActionID: actionID, IsGranted: granted}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&existing).Update("is_granted", granted).Error
	})
}

// SetUserOverride creates or updates the override of userID on (page, action)
func (r *Resolver) SetUserOverride(ctx context.Context, userID uint, page string, action Action, granted bool, grantedBy uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return apperrors.NewNotFoundError("user")
		}

		pageID, actionID, err := resolveCatalog(tx, page, action)
		if err != nil {
			return err
		}

		var existing models.UserPermission
		err = grantScope(tx, pageID, actionID).Where("user_id = ?", userID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.UserPermission{
				UserID: userID, PageID: pageID, ActionID: actionID,
				IsGranted: granted, GrantedBy: &grantedBy,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&existing).Updates(map[string]interface{}{
			"is_granted": granted,
			"granted_by": grantedBy,
		}).Error
	})
}

// DeleteUserOverride removes an override so the role default applies again
func (r *Resolver) DeleteUserOverride(ctx context.Context, userID uint, page string, action Action) error {
	db := r.db.WithContext(ctx)
	pageID, actionID, err := resolveCatalog(db, page, action)
	if err != nil {
		return err
	}
	res := grantScope(db, pageID, actionID).Where("user_id = ?", userID).Delete(&models.UserPermission{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError("permission override")
	}
	return nil
}

// EffectiveGrant is one resolved (page, action) pair for a user
type EffectiveGrant struct {
	Page    string `json:"page"`
	Action  Action `json:"action"`
	Allowed bool   `json:"allowed"`
	Source  Source `json:"source"`
}

// EffectivePermissions resolves every active catalog entry for actor
func (r *Resolver) EffectivePermissions(ctx context.Context, actor *Actor) ([]EffectiveGrant, error) {
	modules, err := r.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	var out []EffectiveGrant
	for _, m := range modules {
		if !m.IsActive {
			continue
		}
		for _, p := range m.Pages {
			if !p.IsActive {
				continue
			}
			for _, a := range p.Actions {
				if !a.IsActive {
					continue
				}
				action, err := ParseAction(a.Name)
				if err != nil {
					continue
				}
				d, err := r.Decide(ctx, actor, p.Name, action)
				if err != nil {
					return nil, err
				}
				out = append(out, EffectiveGrant{Page: p.Name, Action: action, Allowed: d.Allowed, Source: d.Source})
			}
		}
	}
	return out, nil
}

// resolveCatalog maps names to catalog ids. PageLevel yields a nil action id.
func resolveCatalog(db *gorm.DB, page string, action Action) (uint, *uint, error) {
	var p models.PermissionPage
	if err := db.Where("name = ?", page).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil, apperrors.NewFieldError("page", "Unknown page")
		}
		return 0, nil, err
	}
	if action == PageLevel {
		return p.ID, nil, nil
	}
	if !action.Valid() {
		return 0, nil, apperrors.NewFieldError("action", "Unknown action")
	}

	var a models.PermissionAction
	if err := db.Where("page_id = ? AND name = ?", p.ID, string(action)).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil, apperrors.NewFieldError("action", "Action is not defined for this page")
		}
		return 0, nil, err
	}
	return p.ID, &a.ID, nil
}

func grantScope(db *gorm.DB, pageID uint, actionID *uint) *gorm.DB {
	db = db.Where("page_id = ?", pageID)
	if actionID == nil {
		return db.Where("action_id IS NULL")
	}
	return db.Where("action_id = ?", *actionID)
}
