package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LifecycleStatus is the workflow state of a maintenance request.
type LifecycleStatus string

const (
	StatusPending    LifecycleStatus = "Pending"
	StatusAssigned   LifecycleStatus = "Assigned"
	StatusInProgress LifecycleStatus = "In Progress"
	StatusScheduled  LifecycleStatus = "Scheduled"
	StatusClosed     LifecycleStatus = "Closed"
)

// IsValidLifecycleStatus checks if a lifecycle status is known
func IsValidLifecycleStatus(s LifecycleStatus) bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusScheduled, StatusClosed:
		return true
	default:
		return false
	}
}

// Priority of a maintenance request, set at assignment.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// LineState is the production line condition reported on a request.
type LineState string

const (
	LineDown    LineState = "down"
	LineRunning LineState = "running"
)

// MachineState is the machine condition reported on a request.
type MachineState string

const (
	MachineDown     MachineState = "down"
	MachineUpNormal MachineState = "upNormal"
	MachineNormal   MachineState = "normal"
)

// SparePart is a part consumed while closing a request.
type SparePart struct {
	Category  string  `json:"category" bson:"category" validate:"required"`
	PartName  string  `json:"part_name" bson:"part_name" validate:"required"`
	Quantity  float64 `json:"quantity" bson:"quantity" validate:"gte=0"`
	UnitPrice float64 `json:"unit_price" bson:"unit_price" validate:"gte=0"`
}

// Cost returns unit price times quantity.
func (p SparePart) Cost() float64 {
	return p.UnitPrice * p.Quantity
}

// TotalCost sums the cost of every part.
func TotalCost(parts []SparePart) float64 {
	var total float64
	for _, p := range parts {
		total += p.Cost()
	}
	return total
}

// MaintenanceRequest represents a breakdown ticket raised against a machine.
type MaintenanceRequest struct {
	ID                  primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TicketCode          string             `json:"ticket_code" bson:"ticket_code"`
	ProductionLineID    primitive.ObjectID `json:"production_line_id" bson:"production_line_id"`
	MachineID           primitive.ObjectID `json:"machine_id" bson:"machine_id"`
	ProductionLineState LineState          `json:"production_line_state" bson:"production_line_state"`
	MachineState        MachineState       `json:"machine_state" bson:"machine_state"`
	Symptoms            string             `json:"symptoms" bson:"symptoms"`
	RootCause           string             `json:"root_cause" bson:"root_cause"`
	Attachments         []string           `json:"attachments" bson:"attachments"`

	CreatedBy  primitive.ObjectID  `json:"created_by" bson:"created_by"`
	AssignedTo *primitive.ObjectID `json:"assigned_to,omitempty" bson:"assigned_to,omitempty"`
	AssignedBy *primitive.ObjectID `json:"assigned_by,omitempty" bson:"assigned_by,omitempty"`
	Priority   Priority            `json:"priority" bson:"priority"`
	Status     LifecycleStatus     `json:"lifecycle_status" bson:"lifecycle_status"`

	SparePartsUsed  []SparePart `json:"spare_parts_used" bson:"spare_parts_used"`
	Solution        string      `json:"solution,omitempty" bson:"solution,omitempty"`
	Recommendations string      `json:"recommendations,omitempty" bson:"recommendations,omitempty"`

	ProductionLineDownStart *time.Time `json:"production_line_down_start,omitempty" bson:"production_line_down_start,omitempty"`
	ProductionLineDownEnd   *time.Time `json:"production_line_down_end,omitempty" bson:"production_line_down_end,omitempty"`
	MachineDownStart        *time.Time `json:"machine_down_start,omitempty" bson:"machine_down_start,omitempty"`
	MachineDownEnd          *time.Time `json:"machine_down_end,omitempty" bson:"machine_down_end,omitempty"`

	// Minutes from earlier down intervals that were closed and then re-opened.
	ProductionLineCarriedMinutes int64 `json:"-" bson:"production_line_downtime_carried_minutes"`
	MachineCarriedMinutes        int64 `json:"-" bson:"machine_downtime_carried_minutes"`

	ProductionLineDowntimeMinutes int64 `json:"production_line_downtime_minutes" bson:"production_line_downtime_minutes"`
	MachineDowntimeMinutes        int64 `json:"machine_downtime_minutes" bson:"machine_downtime_minutes"`

	ClosedAt  *time.Time `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
}

// IsOpen reports whether the request still counts toward derived status.
func (r *MaintenanceRequest) IsOpen() bool {
	return r.Status != StatusClosed
}

// RequestFilter narrows ListRequests.
type RequestFilter struct {
	Status     LifecycleStatus
	AssignedTo *primitive.ObjectID
	Page       int
	Limit      int
}

// Pagination is the page metadata returned with list results.
type Pagination struct {
	TotalItems   int64 `json:"totalItems"`
	TotalPages   int64 `json:"totalPages"`
	CurrentPage  int   `json:"currentPage"`
	ItemsPerPage int   `json:"itemsPerPage"`
}

// RequestPage is one page of maintenance requests.
type RequestPage struct {
	Items []MaintenanceRequest `json:"items"`
	Pagination
}

// MachineSummary aggregates maintenance figures for one machine.
type MachineSummary struct {
	MachineID            primitive.ObjectID `json:"machine_id" bson:"_id"`
	MachineName          string             `json:"machine_name" bson:"machine_name"`
	TotalDowntimeMinutes int64              `json:"total_downtime_minutes" bson:"total_downtime_minutes"`
	OpenRequests         int64              `json:"open_requests" bson:"open_requests"`
	TotalCost            float64            `json:"total_cost" bson:"total_cost"`
	AvgResolutionHours   *float64           `json:"avg_resolution_hours" bson:"avg_resolution_hours"`
}
