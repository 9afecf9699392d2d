package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MachineStatus is the derived operational state of a machine.
type MachineStatus string

const (
	MachineStatusDown     MachineStatus = "down"
	MachineStatusUpNormal MachineStatus = "upNormal"
	MachineStatusNormal   MachineStatus = "normal"
)

// Machine represents a machine installed on a production line.
type Machine struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	MachineCode      string             `json:"machine_code" bson:"machine_code"`
	Name             string             `json:"name" bson:"name"`
	Description      string             `json:"description,omitempty" bson:"description,omitempty"`
	ProductionLineID primitive.ObjectID `json:"production_line_id" bson:"production_line_id"`
	Status           MachineStatus      `json:"status" bson:"status"`
	MaintenanceCost  float64            `json:"maintenance_cost" bson:"maintenance_cost"` // accrued, only ever incremented
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" bson:"updated_at"`
}

// LineStatus is the derived operational state of a production line.
type LineStatus string

const (
	LineStatusDown    LineStatus = "down"
	LineStatusRunning LineStatus = "running"
)

// ProductionLine represents a production line grouping machines.
type ProductionLine struct {
	ID          primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	LineCode    string               `json:"line_code" bson:"line_code"`
	Name        string               `json:"name" bson:"name"`
	Description string               `json:"description,omitempty" bson:"description,omitempty"`
	Status      LineStatus           `json:"status" bson:"status"`
	Machines    []primitive.ObjectID `json:"machines" bson:"machines"`
	CreatedAt   time.Time            `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at" bson:"updated_at"`
}
