package domain

import (
	"time"

	"github.com/google/uuid"
)

// VehicleStatus is the availability of a vehicle for assignment.
type VehicleStatus string

const (
	VehicleActive      VehicleStatus = "ACTIVE"
	VehicleMaintenance VehicleStatus = "MAINTENANCE"
	VehicleInactive    VehicleStatus = "INACTIVE"
	// VehicleReserved is set by fleet operations while a vehicle is held for
	// a trip. It is the only status released back to ACTIVE when a trip ends.
	VehicleReserved VehicleStatus = "RESERVED"
)

// HighRiskScore is the maintenance risk score at or above which a vehicle
// needs a recent passing pre-trip inspection before it may depart.
const HighRiskScore = 85

// Vehicle is a bus that trips may be assigned to.
// MaintenanceRiskScore is nil when the vehicle has never been scored.
type Vehicle struct {
	ID                   uuid.UUID     `json:"id"`
	CompanyID            uuid.UUID     `json:"company_id"`
	PlateNumber          string        `json:"plate_number"`
	Status               VehicleStatus `json:"status"`
	MaintenanceRiskScore *int          `json:"maintenance_risk_score,omitempty"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// HighRisk reports whether the vehicle falls under the pre-trip safety gate.
func (v Vehicle) HighRisk() bool {
	return v.MaintenanceRiskScore != nil && *v.MaintenanceRiskScore >= HighRiskScore
}

// StaffRole is the job a staff member performs on a trip.
type StaffRole string

const (
	StaffDriver    StaffRole = "DRIVER"
	StaffConductor StaffRole = "CONDUCTOR"
	StaffTicketer  StaffRole = "TICKETER"
	StaffAdmin     StaffRole = "ADMIN"
)

// StaffStatus is derived availability, kept in sync by the dispatcher.
type StaffStatus string

const (
	StaffAvailable StaffStatus = "AVAILABLE"
	StaffOnTrip    StaffStatus = "ON_TRIP"
	StaffOnLeave   StaffStatus = "ON_LEAVE"
)

// Staff is a company employee that can be referenced by trips.
type Staff struct {
	ID        uuid.UUID   `json:"id"`
	CompanyID uuid.UUID   `json:"company_id"`
	Name      string      `json:"name"`
	Role      StaffRole   `json:"role"`
	Status    StaffStatus `json:"status"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// InspectionType distinguishes the checks recorded against a vehicle.
type InspectionType string

const (
	InspectionPreTrip  InspectionType = "PRE_TRIP"
	InspectionPeriodic InspectionType = "PERIODIC"
	InspectionPostTrip InspectionType = "POST_TRIP"
)

// InspectionResult is the outcome of an inspection.
type InspectionResult string

const (
	InspectionPass            InspectionResult = "PASS"
	InspectionPassWithDefects InspectionResult = "PASS_WITH_DEFECTS"
	InspectionFail            InspectionResult = "FAIL"
)

// Passing reports whether the result clears the safety gate.
func (r InspectionResult) Passing() bool {
	return r == InspectionPass || r == InspectionPassWithDefects
}

// Inspection is timestamped evidence about a vehicle's condition.
// The trip engine reads inspections but never writes them.
type Inspection struct {
	ID        uuid.UUID        `json:"id"`
	VehicleID uuid.UUID        `json:"vehicle_id"`
	Type      InspectionType   `json:"type"`
	Result    InspectionResult `json:"result"`
	CreatedAt time.Time        `json:"created_at"`
}
