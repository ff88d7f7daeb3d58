// Package models contains the core Makazi data structures
package models

import (
	"time"

	"gorm.io/gorm"
)

// =============================================================================
// LOCATION MODELS
// =============================================================================

// Ward is the top level of the administrative hierarchy
type Ward struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"not null;size:100"`
	Code        string    `json:"code" gorm:"uniqueIndex;not null;size:20"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedBy   *uint     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relations
	Villages []Village `json:"villages,omitempty" gorm:"foreignKey:WardID"`
}

// Village belongs to exactly one ward
type Village struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	WardID      uint      `json:"ward_id" gorm:"not null;index"`
	Name        string    `json:"name" gorm:"not null;size:100"`
	Code        string    `json:"code" gorm:"uniqueIndex;not null;size:20"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedBy   *uint     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relations
	Ward *Ward `json:"ward,omitempty" gorm:"foreignKey:WardID"`
}

// =============================================================================
// USER MODELS
// =============================================================================

// User is a system account. WardID scopes a WEO (or a ward admin), VillageID
// scopes a VEO; data collectors may carry either.
type User struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	FullName     string     `json:"full_name" gorm:"not null;size:150"`
	Username     string     `json:"username" gorm:"uniqueIndex;not null;size:100"`
	PasswordHash string     `json:"-" gorm:"size:255"`
	Role         Role       `json:"role" gorm:"not null;size:30"`
	IsActive     bool       `json:"is_active" gorm:"default:true"`
	WardID       *uint      `json:"ward_id"`
	VillageID    *uint      `json:"village_id"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Relations
	Ward    *Ward    `json:"ward,omitempty" gorm:"foreignKey:WardID"`
	Village *Village `json:"village,omitempty" gorm:"foreignKey:VillageID"`
}

// =============================================================================
// REGISTRY MODELS
// =============================================================================

// Residence is a registered household, the root entity of data collection
type Residence struct {
	ID               uint            `json:"id" gorm:"primaryKey"`
	HouseNo          string          `json:"house_no" gorm:"not null;size:50"`
	ResidentName     string          `json:"resident_name" gorm:"not null;size:150"`
	Gender           string          `json:"gender" gorm:"size:10"`
	DateOfBirth      time.Time       `json:"date_of_birth" gorm:"type:date"`
	NIDANumber       string          `json:"nida_number" gorm:"column:nida_number;size:20;not null"`
	Phone            string          `json:"phone" gorm:"size:10"`
	Occupation       string          `json:"occupation" gorm:"size:100"`
	EducationLevel   string          `json:"education_level" gorm:"size:50"`
	EmploymentStatus string          `json:"employment_status" gorm:"size:50"`
	Ownership        string          `json:"ownership" gorm:"size:20"`
	FamilySize       int             `json:"family_size" gorm:"default:0"`
	Notes            string          `json:"notes"`
	WardID           uint            `json:"ward_id" gorm:"not null;index"`
	VillageID        uint            `json:"village_id" gorm:"not null;index"`
	RegisteredBy     uint            `json:"registered_by" gorm:"not null;index"`
	Status           ResidenceStatus `json:"status" gorm:"not null;size:20"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `json:"deleted_at,omitempty" gorm:"index"`

	// Relations
	Ward    *Ward          `json:"ward,omitempty" gorm:"foreignKey:WardID"`
	Village *Village       `json:"village,omitempty" gorm:"foreignKey:VillageID"`
	Members []FamilyMember `json:"members,omitempty" gorm:"foreignKey:ResidenceID;constraint:OnDelete:CASCADE"`
}

// FamilyMember belongs to exactly one residence. The adult-only fields are nil
// for minors.
type FamilyMember struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	ResidenceID      uint      `json:"residence_id" gorm:"not null;index"`
	FullName         string    `json:"full_name" gorm:"not null;size:150"`
	Gender           string    `json:"gender" gorm:"size:10"`
	DateOfBirth      time.Time `json:"date_of_birth" gorm:"type:date"`
	Relationship     string    `json:"relationship" gorm:"size:50"`
	IsAdult          bool      `json:"is_adult"`
	NIDANumber       *string   `json:"nida_number" gorm:"column:nida_number;size:20"`
	Phone            *string   `json:"phone" gorm:"size:10"`
	Occupation       *string   `json:"occupation" gorm:"size:100"`
	EducationLevel   *string   `json:"education_level" gorm:"size:50"`
	EmploymentStatus *string   `json:"employment_status" gorm:"size:50"`
	CreatedBy        uint      `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// =============================================================================
// TRANSFER MODELS
// =============================================================================

// ResidenceTransfer is a request to relocate a residence. Status is the state
// variable of the approval chain.
type ResidenceTransfer struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	Reference       string         `json:"reference" gorm:"uniqueIndex;not null;size:36"`
	ResidenceID     uint           `json:"residence_id" gorm:"not null;index"`
	RequestedBy     uint           `json:"requested_by" gorm:"not null"`
	FromWardID      uint           `json:"from_ward_id" gorm:"not null;index"`
	FromVillageID   uint           `json:"from_village_id" gorm:"not null"`
	ToWardID        uint           `json:"to_ward_id" gorm:"not null;index"`
	ToVillageID     uint           `json:"to_village_id" gorm:"not null;index"`
	Reason          string         `json:"reason"`
	Status          TransferStatus `json:"status" gorm:"not null;size:30;index"`
	WEOReviewedBy   *uint          `json:"weo_reviewed_by" gorm:"column:weo_reviewed_by"`
	WEOReviewedAt   *time.Time     `json:"weo_reviewed_at" gorm:"column:weo_reviewed_at"`
	WardReviewedBy  *uint          `json:"ward_reviewed_by"`
	WardReviewedAt  *time.Time     `json:"ward_reviewed_at"`
	VEOReviewedBy   *uint          `json:"veo_reviewed_by" gorm:"column:veo_reviewed_by"`
	VEOReviewedAt   *time.Time     `json:"veo_reviewed_at" gorm:"column:veo_reviewed_at"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`

	// Relations
	Residence *Residence `json:"residence,omitempty" gorm:"foreignKey:ResidenceID"`
}

// =============================================================================
// PERMISSION MODELS
// =============================================================================

// PermissionModule groups pages in the capability catalog
type PermissionModule struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"uniqueIndex;not null;size:50"`
	DisplayName string    `json:"display_name" gorm:"size:100"`
	Description string    `json:"description"`
	SortOrder   int       `json:"sort_order" gorm:"default:0"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relations
	Pages []PermissionPage `json:"pages,omitempty" gorm:"foreignKey:ModuleID"`
}

// PermissionPage is a grantable page, addressed by Name (e.g. "residences")
type PermissionPage struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	ModuleID    uint      `json:"module_id" gorm:"not null;index"`
	Name        string    `json:"name" gorm:"uniqueIndex;not null;size:50"`
	DisplayName string    `json:"display_name" gorm:"size:100"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relations
	Actions []PermissionAction `json:"actions,omitempty" gorm:"foreignKey:PageID"`
}

// PermissionAction is an action on a page (e.g. "export" on "reports")
type PermissionAction struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	PageID      uint      `json:"page_id" gorm:"not null;index"`
	Name        string    `json:"name" gorm:"not null;size:30"`
	DisplayName string    `json:"display_name" gorm:"size:100"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RolePermission is the default grant of a role on a page (and optional action)
type RolePermission struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Role      Role      `json:"role" gorm:"not null;size:30;index"`
	PageID    uint      `json:"page_id" gorm:"not null"`
	ActionID  *uint     `json:"action_id"`
	IsGranted bool      `json:"is_granted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Page   *PermissionPage   `json:"page,omitempty" gorm:"foreignKey:PageID"`
	Action *PermissionAction `json:"action,omitempty" gorm:"foreignKey:ActionID"`
}

// UserPermission overrides the role default for one user
type UserPermission struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"not null;index"`
	PageID    uint      `json:"page_id" gorm:"not null"`
	ActionID  *uint     `json:"action_id"`
	IsGranted bool      `json:"is_granted"`
	GrantedBy *uint     `json:"granted_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Page   *PermissionPage   `json:"page,omitempty" gorm:"foreignKey:PageID"`
	Action *PermissionAction `json:"action,omitempty" gorm:"foreignKey:ActionID"`
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditLog records who changed what
type AuditLog struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     *uint     `json:"user_id" gorm:"index"`
	Action     string    `json:"action" gorm:"not null;size:50"`
	EntityType string    `json:"entity_type" gorm:"not null;size:50;index:idx_audit_entity"`
	EntityID   uint      `json:"entity_id" gorm:"index:idx_audit_entity"`
	Details    JSONMap   `json:"details" gorm:"type:text"`
	IPAddress  string    `json:"ip_address" gorm:"size:45"`
	CreatedAt  time.Time `json:"created_at"`
}
