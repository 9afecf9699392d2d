package main

import (
	"context"
	"math"
	"math/rand"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/plant-maintenance/internal/maintenance"
	"github.com/ukydev/plant-maintenance/internal/models"
)

type phase int

const (
	phaseRunning phase = iota
	phaseReported
	phaseAssigned
	phaseRepairing
)

func (p phase) String() string {
	switch p {
	case phaseReported:
		return "reported"
	case phaseAssigned:
		return "assigned"
	case phaseRepairing:
		return "repairing"
	default:
		return "running"
	}
}

// simMachine tracks one machine through breakdown and repair.
type simMachine struct {
	machine   models.Machine
	phase     phase
	requestID string
	repairFor int
}

// operator is the subset of session calls the floor makes.
type operator interface {
	createRequest(ctx context.Context, in maintenance.CreateInput) (*models.MaintenanceRequest, error)
	assign(ctx context.Context, id string, in maintenance.AssignInput) (*models.MaintenanceRequest, error)
	updateStatus(ctx context.Context, id string, in maintenance.StatusInput) (*models.MaintenanceRequest, error)
	close(ctx context.Context, id string, in maintenance.CloseInput) (*models.MaintenanceRequest, error)
}

// shopFloor raises breakdowns and walks each one through the lifecycle:
// production reports it, the supervisor assigns it and the technician
// repairs and closes it.
type shopFloor struct {
	machines      []*simMachine
	production    operator
	supervisor    operator
	technician    operator
	technicianID  string
	breakdownRate float64
	rnd           *rand.Rand
}

func newShopFloor(machines []models.Machine, production, supervisor, technician operator, technicianID string, breakdownRate float64, rnd *rand.Rand) *shopFloor {
	f := &shopFloor{
		production:    production,
		supervisor:    supervisor,
		technician:    technician,
		technicianID:  technicianID,
		breakdownRate: breakdownRate,
		rnd:           rnd,
	}
	for _, m := range machines {
		f.machines = append(f.machines, &simMachine{machine: m})
	}
	return f
}

// tick advances every machine by one step. Failed calls leave the machine
// in its phase so the step is retried next tick.
func (f *shopFloor) tick(ctx context.Context) {
	for _, m := range f.machines {
		if err := f.step(ctx, m); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"machine": m.machine.MachineCode,
				"phase":   m.phase.String(),
			}).Warn("Simulation step failed")
		}
	}
}

func (f *shopFloor) step(ctx context.Context, m *simMachine) error {
	switch m.phase {
	case phaseRunning:
		if f.rnd.Float64() >= f.breakdownRate {
			return nil
		}
		lineState := models.LineRunning
		if f.rnd.Float64() < 0.3 {
			lineState = models.LineDown
		}
		req, err := f.production.createRequest(ctx, maintenance.CreateInput{
			ProductionLineID:    m.machine.ProductionLineID.Hex(),
			MachineID:           m.machine.ID.Hex(),
			ProductionLineState: lineState,
			MachineState:        models.MachineDown,
			Symptoms:            symptoms[f.rnd.Intn(len(symptoms))],
		})
		if err != nil {
			return err
		}
		m.requestID = req.ID.Hex()
		m.phase = phaseReported
		log.WithFields(log.Fields{
			"machine":     m.machine.MachineCode,
			"ticket_code": req.TicketCode,
			"line_state":  lineState,
		}).Info("Breakdown reported")

	case phaseReported:
		priorities := []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh}
		if _, err := f.supervisor.assign(ctx, m.requestID, maintenance.AssignInput{
			AssignedTo: f.technicianID,
			Priority:   priorities[f.rnd.Intn(len(priorities))],
		}); err != nil {
			return err
		}
		m.phase = phaseAssigned

	case phaseAssigned:
		running := models.LineRunning
		if _, err := f.technician.updateStatus(ctx, m.requestID, maintenance.StatusInput{
			Status:              models.StatusInProgress,
			ProductionLineState: &running,
		}); err != nil {
			return err
		}
		m.repairFor = 1 + f.rnd.Intn(3)
		m.phase = phaseRepairing

	case phaseRepairing:
		if m.repairFor > 0 {
			m.repairFor--
			return nil
		}
		closed, err := f.technician.close(ctx, m.requestID, maintenance.CloseInput{
			SpareParts: randomSpareParts(f.rnd),
			Solution:   "Replaced worn components and ran a test cycle",
		})
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"machine":          m.machine.MachineCode,
			"ticket_code":      closed.TicketCode,
			"machine_downtime": closed.MachineDowntimeMinutes,
			"parts_cost":       models.TotalCost(closed.SparePartsUsed),
		}).Info("Breakdown closed")
		m.requestID = ""
		m.phase = phaseRunning
	}
	return nil
}

var symptoms = []string{
	"Motor overheating and tripping the breaker",
	"Conveyor belt slipping under load",
	"Unusual vibration from the main spindle",
	"Pneumatic cylinder not retracting",
	"Sensor fault stops the line at the infeed",
}

type partSpec struct {
	category string
	name     string
	price    float64
}

var partCatalog = []partSpec{
	{"bearing", "6204-2RS", 12.5},
	{"belt", "V-belt A42", 18},
	{"seal", "Shaft seal 35x52x7", 6.4},
	{"sensor", "Inductive proximity M12", 42},
	{"electrical", "Fuse 10A", 1.2},
}

// randomSpareParts picks zero to three distinct catalog parts.
func randomSpareParts(rnd *rand.Rand) []models.SparePart {
	n := rnd.Intn(4)
	parts := make([]models.SparePart, 0, n)
	for _, i := range rnd.Perm(len(partCatalog))[:n] {
		p := partCatalog[i]
		parts = append(parts, models.SparePart{
			Category:  p.category,
			PartName:  p.name,
			Quantity:  float64(1 + rnd.Intn(3)),
			UnitPrice: math.Round(p.price*100) / 100,
		})
	}
	return parts
}
