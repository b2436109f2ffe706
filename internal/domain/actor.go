package domain

import "github.com/google/uuid"

// Role is the coarse permission level of an authenticated caller.
type Role string

const (
	RoleCompanyAdmin Role = "COMPANY_ADMIN"
	RoleStaff        Role = "STAFF"
)

// Actor identifies who is calling into the engine. It is passed explicitly to
// every service call; nothing in the engine reads an ambient session.
//
// StaffRole is set when the caller also works as staff (a driver with admin
// rights, for example). An admin with a staff sub-role does not get the
// admin-only privileges such as departing any trip.
type Actor struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	Role      Role      `json:"role"`
	StaffRole StaffRole `json:"staff_role,omitempty"`
}

// IsCompanyAdmin reports whether the actor is a plain company administrator.
func (a Actor) IsCompanyAdmin() bool {
	return a.Role == RoleCompanyAdmin && a.StaffRole == ""
}

// CanDepart reports whether the actor may move trip into DEPARTED: the
// company's own administrator or the driver assigned to that trip.
func (a Actor) CanDepart(trip Trip) bool {
	if a.CompanyID != trip.CompanyID {
		return false
	}
	if a.IsCompanyAdmin() {
		return true
	}
	return trip.DriverID != nil && *trip.DriverID == a.ID
}
