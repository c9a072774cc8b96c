// Package access defines the actor roles that the ledger core reasons
// about and the capabilities each role carries.
//
// Authentication and user management live outside Daybook; callers hand
// the core an already authenticated Actor.
package access

import (
	"fmt"
	"time"
)

// Role is a closed set of actor roles.
type Role string

const (
	RoleOutletStaff   Role = "outlet_staff"
	RoleOutletManager Role = "outlet_manager"
	RoleHOAccountant  Role = "ho_accountant"
	RoleMasterAdmin   Role = "master_admin"
	RoleSuperAdmin    Role = "superadmin"
	RoleAuditor       Role = "auditor"
)

// Roles lists every known role.
var Roles = []Role{
	RoleOutletStaff,
	RoleOutletManager,
	RoleHOAccountant,
	RoleMasterAdmin,
	RoleSuperAdmin,
	RoleAuditor,
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ReadOnly reports whether the role may never write ledger data.
func (r Role) ReadOnly() bool { return r == RoleAuditor }

// CanSubmit reports whether the role may declare a day complete.
func (r Role) CanSubmit() bool { return r.IsValid() && !r.ReadOnly() }

// CanLock reports whether the role may lock a day.
func (r Role) CanLock() bool {
	switch r {
	case RoleOutletManager, RoleHOAccountant, RoleMasterAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// HeadOffice reports whether the role belongs to head office. Only head
// office may unlock a day or close an accounting period.
func (r Role) HeadOffice() bool {
	switch r {
	case RoleHOAccountant, RoleMasterAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// CanUnlock reports whether the role may reopen a locked day.
func (r Role) CanUnlock() bool { return r.HeadOffice() }

// CanClosePeriod reports whether the role may close an accounting period.
func (r Role) CanClosePeriod() bool { return r.HeadOffice() }

// Actor is the authenticated principal behind an operation.
type Actor struct {
	ID   string `json:"id"   validate:"required"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role" validate:"required,role"`
}

// String renders the actor as "id (role)" for audit and log output.
func (a Actor) String() string {
	return fmt.Sprintf("%s (%s)", a.ID, a.Role)
}

// BackdateWindows bounds how far in the past each role may post.
// A missing role means no backdating at all beyond the current
// business date.
type BackdateWindows map[Role]time.Duration

// DefaultBackdateWindows returns the stock posting windows.
func DefaultBackdateWindows() BackdateWindows {
	return BackdateWindows{
		RoleOutletStaff:   24 * time.Hour,
		RoleOutletManager: 7 * 24 * time.Hour,
		RoleHOAccountant:  30 * 24 * time.Hour,
		RoleMasterAdmin:   365 * 24 * time.Hour,
		RoleSuperAdmin:    365 * 24 * time.Hour,
	}
}

// Window returns the role's backdate window.
func (w BackdateWindows) Window(r Role) time.Duration {
	return w[r]
}
