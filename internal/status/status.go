// Package status derives machine and production line status from their open
// maintenance requests.
package status

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/plant-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LineStatus is down when any open request reports the line down.
func LineStatus(open []models.MaintenanceRequest) models.LineStatus {
	for _, r := range open {
		if r.IsOpen() && r.ProductionLineState == models.LineDown {
			return models.LineStatusDown
		}
	}
	return models.LineStatusRunning
}

// MachineStatus is down if any open request reports the machine down,
// otherwise upNormal if any reports upNormal, otherwise normal.
func MachineStatus(open []models.MaintenanceRequest) models.MachineStatus {
	result := models.MachineStatusNormal
	for _, r := range open {
		if !r.IsOpen() {
			continue
		}
		switch r.MachineState {
		case models.MachineDown:
			return models.MachineStatusDown
		case models.MachineUpNormal:
			result = models.MachineStatusUpNormal
		}
	}
	return result
}

// OpenRequestFinder lists the open requests referencing a line or machine.
type OpenRequestFinder interface {
	FindOpenByLine(ctx context.Context, lineID primitive.ObjectID) ([]models.MaintenanceRequest, error)
	FindOpenByMachine(ctx context.Context, machineID primitive.ObjectID) ([]models.MaintenanceRequest, error)
}

// LineStatusWriter persists a derived line status.
type LineStatusWriter interface {
	SetStatus(ctx context.Context, id primitive.ObjectID, status models.LineStatus) error
}

// MachineStatusWriter persists a derived machine status.
type MachineStatusWriter interface {
	SetStatus(ctx context.Context, id primitive.ObjectID, status models.MachineStatus) error
}

// Projector recomputes derived status with a full rescan every time.
type Projector struct {
	requests OpenRequestFinder
	lines    LineStatusWriter
	machines MachineStatusWriter
	log      logrus.FieldLogger
}

// NewProjector creates a projector.
func NewProjector(requests OpenRequestFinder, lines LineStatusWriter, machines MachineStatusWriter, log logrus.FieldLogger) *Projector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Projector{requests: requests, lines: lines, machines: machines, log: log}
}

// Result holds the statuses written by Refresh.
type Result struct {
	Line    models.LineStatus
	Machine models.MachineStatus
}

// Refresh recomputes and stores the status of the given line and machine.
// Pass ctx from an open transaction to keep the writes atomic with the caller.
func (p *Projector) Refresh(ctx context.Context, lineID, machineID primitive.ObjectID) (Result, error) {
	var res Result

	lineOpen, err := p.requests.FindOpenByLine(ctx, lineID)
	if err != nil {
		return res, fmt.Errorf("scan open requests for line %s: %w", lineID.Hex(), err)
	}
	res.Line = LineStatus(lineOpen)
	if err := p.lines.SetStatus(ctx, lineID, res.Line); err != nil {
		return res, fmt.Errorf("set line %s status: %w", lineID.Hex(), err)
	}

	machineOpen, err := p.requests.FindOpenByMachine(ctx, machineID)
	if err != nil {
		return res, fmt.Errorf("scan open requests for machine %s: %w", machineID.Hex(), err)
	}
	res.Machine = MachineStatus(machineOpen)
	if err := p.machines.SetStatus(ctx, machineID, res.Machine); err != nil {
		return res, fmt.Errorf("set machine %s status: %w", machineID.Hex(), err)
	}

	p.log.WithFields(logrus.Fields{
		"line_id":        lineID.Hex(),
		"line_status":    res.Line,
		"machine_id":     machineID.Hex(),
		"machine_status": res.Machine,
	}).Debug("derived status refreshed")
	return res, nil
}
