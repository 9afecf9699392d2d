package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DepartmentName identifies the role a department plays in the plant
type DepartmentName string

const (
	DepartmentMaintenanceSupervisor DepartmentName = "maintenance supervisor"
	DepartmentMaintenanceTechnician DepartmentName = "maintenance technical"
	DepartmentProductionSupervisor  DepartmentName = "production line supervisor"
)

// Permissions checked by the API middleware
const (
	PermCreateRequest = "create_request"
	PermViewRequests  = "view_requests"
	PermAssignRequest = "assign_request"
	PermUpdateStatus  = "update_request_status"
	PermCloseRequest  = "close_request"
	PermDeleteRequest = "delete_request"
	PermViewSummary   = "view_summary"
	PermManagePlant   = "manage_plant"
)

// Department groups employees
type Department struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name      DepartmentName       `bson:"name" json:"name"`
	Employees []primitive.ObjectID `bson:"employees" json:"employees"`
	CreatedAt time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time            `bson:"updated_at" json:"updated_at"`
}

// Employee represents a plant employee
type Employee struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name               string             `bson:"name" json:"name"`
	Email              string             `bson:"email" json:"email"`
	PasswordHash       string             `bson:"password_hash" json:"-"`
	DepartmentID       primitive.ObjectID `bson:"department_id" json:"department_id"`
	OvertimeHoursPrice float64            `bson:"overtime_hours_price,omitempty" json:"overtime_hours_price,omitempty"`
	Photo              string             `bson:"photo,omitempty" json:"photo,omitempty"`
	IsAdmin            bool               `bson:"is_admin" json:"is_admin"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updated_at"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token    string   `json:"token"`
	Employee Employee `json:"employee"`
}

// Principal is the authenticated caller resolved from a token
type Principal struct {
	EmployeeID string         `json:"employee_id"`
	Name       string         `json:"name"`
	Email      string         `json:"email"`
	Department DepartmentName `json:"department"`
	IsAdmin    bool           `json:"is_admin"`
	Exp        int64          `json:"exp"`
}

// IsTechnician reports whether the caller belongs to the technician department
func (p *Principal) IsTechnician() bool {
	return p.Department == DepartmentMaintenanceTechnician
}

// IsValidDepartment checks if a department name is valid
func IsValidDepartment(name DepartmentName) bool {
	switch name {
	case DepartmentMaintenanceSupervisor, DepartmentMaintenanceTechnician, DepartmentProductionSupervisor:
		return true
	default:
		return false
	}
}

// HasPermission checks if the principal may perform an action
func (p *Principal) HasPermission(action string) bool {
	if p.IsAdmin {
		return true
	}
	switch p.Department {
	case DepartmentMaintenanceSupervisor:
		return true
	case DepartmentMaintenanceTechnician:
		return action == PermViewRequests || action == PermUpdateStatus ||
			action == PermCloseRequest || action == PermCreateRequest
	case DepartmentProductionSupervisor:
		return action == PermCreateRequest || action == PermViewRequests ||
			action == PermViewSummary
	default:
		return false
	}
}
