package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/plant-maintenance/internal/apperr"
	"github.com/ukydev/plant-maintenance/internal/downtime"
	"github.com/ukydev/plant-maintenance/internal/models"
	"github.com/ukydev/plant-maintenance/internal/notify"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CreateInput raises a breakdown against a machine.
type CreateInput struct {
	ProductionLineID    string              `json:"production_line_id" validate:"required,objectid"`
	MachineID           string              `json:"machine_id" validate:"required,objectid"`
	ProductionLineState models.LineState    `json:"production_line_state" validate:"required,oneof=down running"`
	MachineState        models.MachineState `json:"machine_state" validate:"required,oneof=down upNormal normal"`
	Symptoms            string              `json:"symptoms" validate:"required,max=4000"`
	RootCause           string              `json:"root_cause" validate:"max=4000"`
	Attachments         []string            `json:"attachments"`
	CreatedBy           string              `json:"-" validate:"required,objectid"`
}

// AssignInput hands a request to a technician.
type AssignInput struct {
	AssignedTo string          `json:"assigned_to" validate:"required,objectid"`
	AssignedBy string          `json:"-" validate:"required,objectid"`
	Priority   models.Priority `json:"priority" validate:"omitempty,oneof=Low Medium High"`
}

// StatusInput moves a request along its workflow and reports new line or
// machine conditions. Empty fields are left unchanged.
type StatusInput struct {
	Status              models.LifecycleStatus `json:"lifecycle_status"`
	ProductionLineState *models.LineState      `json:"production_line_state" validate:"omitempty,oneof=down running"`
	MachineState        *models.MachineState   `json:"machine_state" validate:"omitempty,oneof=down upNormal normal"`
}

// CloseInput settles a request.
type CloseInput struct {
	SpareParts      []models.SparePart `json:"spare_parts" validate:"dive"`
	Solution        string             `json:"solution" validate:"max=4000"`
	Recommendations string             `json:"recommendations" validate:"max=4000"`
	Attachments     []string           `json:"attachments"`
}

func (s *Service) validate(in interface{}) error {
	if err := s.validator.Struct(in); err != nil {
		return apperr.Validation("invalid payload: "+err.Error(), err)
	}
	return nil
}

// Create validates both references, stamps down intervals for any entity
// reported down and stores the request as Pending.
func (s *Service) Create(ctx context.Context, in CreateInput) (_ *models.MaintenanceRequest, err error) {
	defer s.observe("create", s.clock.Now(), &err)

	if err := s.validate(in); err != nil {
		return nil, err
	}
	lineID, _ := primitive.ObjectIDFromHex(in.ProductionLineID)
	machineID, _ := primitive.ObjectIDFromHex(in.MachineID)
	createdBy, _ := primitive.ObjectIDFromHex(in.CreatedBy)

	line, err := s.lines.FindByID(ctx, lineID)
	if err != nil {
		return nil, lookupError(err, "production line")
	}
	machine, err := s.machines.FindByID(ctx, machineID)
	if err != nil {
		return nil, lookupError(err, "machine")
	}
	if !machine.ProductionLineID.IsZero() && machine.ProductionLineID != line.ID {
		return nil, apperr.Validation(fmt.Sprintf("machine %s does not belong to production line %s", machine.Name, line.Name), nil)
	}

	code, err := s.tickets.Generate(ctx)
	if err != nil {
		return nil, apperr.FromError(err)
	}

	now := s.clock.Now()
	r := &models.MaintenanceRequest{
		ID:                  primitive.NewObjectID(),
		TicketCode:          code,
		ProductionLineID:    lineID,
		MachineID:           machineID,
		ProductionLineState: in.ProductionLineState,
		MachineState:        in.MachineState,
		Symptoms:            in.Symptoms,
		RootCause:           in.RootCause,
		Attachments:         append([]string{}, in.Attachments...),
		CreatedBy:           createdBy,
		Priority:            models.PriorityLow,
		Status:              models.StatusPending,
		SparePartsUsed:      []models.SparePart{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if in.ProductionLineState == models.LineDown {
		r.ProductionLineDownStart = &now
	}
	if in.MachineState == models.MachineDown {
		r.MachineDownStart = &now
	}
	s.fillDowntime(r)

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.requests.Insert(ctx, r); err != nil {
			return apperr.Internal("failed to save maintenance request", err)
		}
		return s.refresh(ctx, r)
	})
	if err != nil {
		return nil, persistError(err, "create maintenance request")
	}

	s.log.WithFields(logrus.Fields{
		"request_id":    r.ID.Hex(),
		"ticket_code":   r.TicketCode,
		"machine_id":    machineID.Hex(),
		"machine_state": r.MachineState,
		"line_state":    r.ProductionLineState,
	}).Info("maintenance request created")

	s.dispatch(notify.EventCreated, s.supervisor, r, machine.Name)
	return r, nil
}

// Assign records the assignee and priority and moves the request to Assigned.
func (s *Service) Assign(ctx context.Context, id string, in AssignInput) (_ *models.MaintenanceRequest, err error) {
	defer s.observe("assign", s.clock.Now(), &err)

	if err := s.validate(in); err != nil {
		return nil, err
	}
	r, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsOpen() {
		return nil, apperr.Conflict("maintenance request is closed")
	}

	assigneeID, _ := primitive.ObjectIDFromHex(in.AssignedTo)
	assignerID, _ := primitive.ObjectIDFromHex(in.AssignedBy)
	assignee, err := s.employees.FindByID(ctx, assigneeID)
	if err != nil {
		return nil, lookupError(err, "assignee")
	}

	priority := in.Priority
	if priority == "" {
		priority = models.PriorityLow
	}
	r.AssignedTo = &assigneeID
	r.AssignedBy = &assignerID
	r.Priority = priority
	r.Status = models.StatusAssigned
	r.UpdatedAt = s.clock.Now()
	s.fillDowntime(r)

	if err := s.requests.Replace(ctx, r); err != nil {
		return nil, persistError(err, "assign maintenance request")
	}

	s.log.WithFields(logrus.Fields{
		"request_id":  r.ID.Hex(),
		"assigned_to": assigneeID.Hex(),
		"priority":    priority,
	}).Info("maintenance request assigned")

	s.dispatch(notify.EventAssigned, assignee.Email, r, s.machineName(ctx, r.MachineID))
	return r, nil
}

// progressStatuses are the targets UpdateStatus accepts; closing goes through Close.
var progressStatuses = map[models.LifecycleStatus]bool{
	models.StatusAssigned:   true,
	models.StatusInProgress: true,
	models.StatusScheduled:  true,
}

// transition moves one down interval when the reported state crosses the
// down boundary. Re-opening folds the finished interval into carried so the
// total never shrinks.
func transition(wasDown, isDown bool, start, end **time.Time, carried *int64, now time.Time) {
	switch {
	case wasDown && !isDown:
		if *start != nil && *end == nil {
			t := now
			*end = &t
		}
	case !wasDown && isDown:
		if *start != nil {
			*carried += downtime.Minutes(*start, *end, now)
		}
		t := now
		*start = &t
		*end = nil
	}
}

// UpdateStatus applies a workflow step and any line or machine condition change.
func (s *Service) UpdateStatus(ctx context.Context, id string, in StatusInput) (_ *models.MaintenanceRequest, err error) {
	defer s.observe("update_status", s.clock.Now(), &err)

	if err := s.validate(in); err != nil {
		return nil, err
	}
	if in.Status != "" && !progressStatuses[in.Status] {
		return nil, apperr.Validation(fmt.Sprintf("status %q cannot be set here", in.Status), nil)
	}
	r, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsOpen() {
		return nil, apperr.Conflict("maintenance request is closed")
	}

	now := s.clock.Now()
	previous := r.Status
	if in.ProductionLineState != nil {
		transition(r.ProductionLineState == models.LineDown, *in.ProductionLineState == models.LineDown,
			&r.ProductionLineDownStart, &r.ProductionLineDownEnd, &r.ProductionLineCarriedMinutes, now)
		r.ProductionLineState = *in.ProductionLineState
	}
	if in.MachineState != nil {
		transition(r.MachineState == models.MachineDown, *in.MachineState == models.MachineDown,
			&r.MachineDownStart, &r.MachineDownEnd, &r.MachineCarriedMinutes, now)
		r.MachineState = *in.MachineState
	}
	if in.Status != "" {
		r.Status = in.Status
	}
	r.UpdatedAt = now
	s.fillDowntime(r)

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.requests.Replace(ctx, r); err != nil {
			return apperr.Internal("failed to save maintenance request", err)
		}
		return s.refresh(ctx, r)
	})
	if err != nil {
		return nil, persistError(err, "update maintenance request")
	}

	s.log.WithFields(logrus.Fields{
		"request_id":    r.ID.Hex(),
		"from":          previous,
		"to":            r.Status,
		"machine_state": r.MachineState,
		"line_state":    r.ProductionLineState,
	}).Info("maintenance request status updated")

	s.dispatch(notify.EventStatusChanged, s.supervisor, r, s.machineName(ctx, r.MachineID))
	return r, nil
}

// Close settles downtime and spare part cost and marks the request Closed.
// The request write, machine cost increment and status refresh commit together.
func (s *Service) Close(ctx context.Context, id string, in CloseInput) (_ *models.MaintenanceRequest, err error) {
	defer s.observe("close", s.clock.Now(), &err)

	if err := s.validate(in); err != nil {
		return nil, err
	}
	r, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsOpen() {
		return nil, apperr.Conflict("maintenance request is already closed")
	}

	now := s.clock.Now()
	if r.ProductionLineDownEnd == nil {
		r.ProductionLineDownEnd = &now
	}
	if r.MachineDownEnd == nil {
		r.MachineDownEnd = &now
	}
	s.fillDowntime(r)

	parts := in.SpareParts
	if parts == nil {
		parts = []models.SparePart{}
	}
	r.SparePartsUsed = parts
	r.Solution = in.Solution
	r.Recommendations = in.Recommendations
	r.Attachments = append(r.Attachments, in.Attachments...)
	r.Status = models.StatusClosed
	r.ClosedAt = &now
	r.UpdatedAt = now
	cost := models.TotalCost(parts)

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.requests.Replace(ctx, r); err != nil {
			return apperr.Internal("failed to save maintenance request", err)
		}
		if cost != 0 {
			if err := s.machines.IncrementMaintenanceCost(ctx, r.MachineID, cost); err != nil {
				return apperr.Internal("failed to accrue maintenance cost", err)
			}
		}
		return s.refresh(ctx, r)
	})
	if err != nil {
		return nil, persistError(err, "close maintenance request")
	}
	s.metrics.AddCost(cost)

	s.log.WithFields(logrus.Fields{
		"request_id":       r.ID.Hex(),
		"machine_id":       r.MachineID.Hex(),
		"total_cost":       cost,
		"machine_downtime": r.MachineDowntimeMinutes,
		"line_downtime":    r.ProductionLineDowntimeMinutes,
	}).Info("maintenance request closed")

	s.dispatch(notify.EventClosed, s.supervisor, r, s.machineName(ctx, r.MachineID))
	return r, nil
}

// Delete removes a request in any state and re-derives the status of the
// entities it referenced.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	defer s.observe("delete", s.clock.Now(), &err)

	r, err := s.loadRequest(ctx, id)
	if err != nil {
		return err
	}
	name := s.machineName(ctx, r.MachineID)

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.requests.Delete(ctx, r.ID); err != nil {
			return lookupError(err, "maintenance request")
		}
		return s.refresh(ctx, r)
	})
	if err != nil {
		return persistError(err, "delete maintenance request")
	}

	s.log.WithFields(logrus.Fields{
		"request_id":  r.ID.Hex(),
		"ticket_code": r.TicketCode,
	}).Info("maintenance request deleted")

	s.dispatch(notify.EventDeleted, s.supervisor, r, name)
	return nil
}
