package models

import (
	"database/sql/driver"
	"fmt"
)

// Role is the closed set of account roles
type Role string

const (
	RoleSuperAdmin    Role = "super_admin"
	RoleAdmin         Role = "admin"
	RoleWEO           Role = "weo"
	RoleVEO           Role = "veo"
	RoleDataCollector Role = "data_collector"
)

// Roles lists every valid role in privilege order
var Roles = []Role{RoleSuperAdmin, RoleAdmin, RoleWEO, RoleVEO, RoleDataCollector}

// ParseRole converts a raw string into a Role
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleWEO, RoleVEO, RoleDataCollector:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Value implements the driver.Valuer interface
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("unknown role %q", string(r))
	}
	return string(r), nil
}

// Scan implements the sql.Scanner interface
func (r *Role) Scan(value interface{}) error {
	s, err := scanString(value)
	if err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ResidenceStatus is the lifecycle status of a residence
type ResidenceStatus string

const (
	// ResidenceApproved is the only status produced by the collector flow
	ResidenceApproved ResidenceStatus = "approved"
	// ResidenceTransferred marks imported records that left the registry.
	// Transfers in flight keep their state on the transfer row instead.
	ResidenceTransferred ResidenceStatus = "transferred"
)

// Valid reports whether s is a known residence status
func (s ResidenceStatus) Valid() bool {
	return s == ResidenceApproved || s == ResidenceTransferred
}

// Value implements the driver.Valuer interface
func (s ResidenceStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown residence status %q", string(s))
	}
	return string(s), nil
}

// Scan implements the sql.Scanner interface
func (s *ResidenceStatus) Scan(value interface{}) error {
	raw, err := scanString(value)
	if err != nil {
		return err
	}
	st := ResidenceStatus(raw)
	if !st.Valid() {
		return fmt.Errorf("unknown residence status %q", raw)
	}
	*s = st
	return nil
}

// TransferStatus is the state of a residence transfer.
//
//	pending_approval -> weo_approved -> ward_approved -> accepted
//
// rejected and cancelled are terminal exits from any open state.
type TransferStatus string

const (
	TransferPendingApproval TransferStatus = "pending_approval"
	TransferWEOApproved     TransferStatus = "weo_approved"
	TransferWardApproved    TransferStatus = "ward_approved"
	TransferAccepted        TransferStatus = "accepted"
	TransferRejected        TransferStatus = "rejected"
	TransferCancelled       TransferStatus = "cancelled"
)

// OpenTransferStatuses are the non-terminal states
var OpenTransferStatuses = []TransferStatus{TransferPendingApproval, TransferWEOApproved, TransferWardApproved}

// ParseTransferStatus converts a raw string into a TransferStatus
func ParseTransferStatus(s string) (TransferStatus, error) {
	st := TransferStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown transfer status %q", s)
	}
	return st, nil
}

// Valid reports whether s is a known transfer status
func (s TransferStatus) Valid() bool {
	switch s {
	case TransferPendingApproval, TransferWEOApproved, TransferWardApproved,
		TransferAccepted, TransferRejected, TransferCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible
func (s TransferStatus) Terminal() bool {
	return s == TransferAccepted || s == TransferRejected || s == TransferCancelled
}

// Next returns the state an approval moves s into
func (s TransferStatus) Next() (TransferStatus, bool) {
	switch s {
	case TransferPendingApproval:
		return TransferWEOApproved, true
	case TransferWEOApproved:
		return TransferWardApproved, true
	case TransferWardApproved:
		return TransferAccepted, true
	}
	return "", false
}

func (s TransferStatus) String() string { return string(s) }

// Value implements the driver.Valuer interface
func (s TransferStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown transfer status %q", string(s))
	}
	return string(s), nil
}

// Scan implements the sql.Scanner interface
func (s *TransferStatus) Scan(value interface{}) error {
	raw, err := scanString(value)
	if err != nil {
		return err
	}
	parsed, err := ParseTransferStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func scanString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("unexpected NULL")
	default:
		return "", fmt.Errorf("unsupported type %T", value)
	}
}
