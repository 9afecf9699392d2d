// Package plant manages production lines and the machines installed on them.
// A machine always sits on at most one line and the line keeps the matching
// entry in its machines list; both sides change in one transaction. Status
// fields are derived from maintenance requests and are never written here.
package plant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/plant-maintenance/internal/apperr"
	"github.com/ukydev/plant-maintenance/internal/clock"
	"github.com/ukydev/plant-maintenance/internal/db"
	"github.com/ukydev/plant-maintenance/internal/models"
	"github.com/ukydev/plant-maintenance/internal/status"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MachineStore persists machines.
type MachineStore interface {
	Insert(ctx context.Context, m *models.Machine) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Machine, error)
	Replace(ctx context.Context, m *models.Machine) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	ClearLine(ctx context.Context, lineID primitive.ObjectID) error
}

// LineStore persists production lines and their machines list.
type LineStore interface {
	Insert(ctx context.Context, l *models.ProductionLine) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.ProductionLine, error)
	Replace(ctx context.Context, l *models.ProductionLine) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	AddMachine(ctx context.Context, lineID, machineID primitive.ObjectID) error
	RemoveMachine(ctx context.Context, lineID, machineID primitive.ObjectID) error
}

// Transactor runs fn atomically.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Recorder receives operation metrics.
type Recorder interface {
	ObserveOperation(operation string, err error, duration time.Duration)
}

// Deps wires a Service.
type Deps struct {
	Machines  MachineStore
	Lines     LineStore
	Requests  status.OpenRequestFinder
	Tx        Transactor
	Clock     clock.Clock
	Metrics   Recorder
	Validator *validator.Validate
	Logger    logrus.FieldLogger
}

// Service implements line and machine management.
type Service struct {
	machines  MachineStore
	lines     LineStore
	requests  status.OpenRequestFinder
	tx        Transactor
	clock     clock.Clock
	metrics   Recorder
	validator *validator.Validate
	log       logrus.FieldLogger
}

type noTx struct{}

func (noTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type noMetrics struct{}

func (noMetrics) ObserveOperation(string, error, time.Duration) {}

// NewService constructs the service.
func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Tx == nil {
		d.Tx = noTx{}
	}
	if d.Metrics == nil {
		d.Metrics = noMetrics{}
	}
	if d.Validator == nil {
		d.Validator = validator.New()
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	return &Service{
		machines:  d.Machines,
		lines:     d.Lines,
		requests:  d.Requests,
		tx:        d.Tx,
		clock:     d.Clock,
		metrics:   d.Metrics,
		validator: d.Validator,
		log:       d.Logger.WithField("component", "plant"),
	}
}

// LineInput creates a production line.
type LineInput struct {
	LineCode    string `json:"line_code" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// LineUpdate changes the fields that are set.
type LineUpdate struct {
	LineCode    *string `json:"line_code" validate:"omitempty,min=1"`
	Name        *string `json:"name" validate:"omitempty,min=1"`
	Description *string `json:"description"`
}

// MachineInput creates a machine on an existing line.
type MachineInput struct {
	MachineCode      string `json:"machine_code" validate:"required"`
	Name             string `json:"name" validate:"required"`
	Description      string `json:"description"`
	ProductionLineID string `json:"production_line_id" validate:"required"`
}

// MachineUpdate changes the fields that are set. Setting ProductionLineID
// moves the machine to another line.
type MachineUpdate struct {
	MachineCode      *string `json:"machine_code" validate:"omitempty,min=1"`
	Name             *string `json:"name" validate:"omitempty,min=1"`
	Description      *string `json:"description"`
	ProductionLineID *string `json:"production_line_id" validate:"omitempty,min=1"`
}

func (s *Service) observe(operation string, start time.Time, err *error) {
	s.metrics.ObserveOperation(operation, *err, s.clock.Now().Sub(start))
}

func (s *Service) validate(in interface{}) error {
	if err := s.validator.Struct(in); err != nil {
		return apperr.Validation("invalid payload: "+err.Error(), err)
	}
	return nil
}

func parseID(id, what string) (primitive.ObjectID, error) {
	oid, err := db.ParseID(id)
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("invalid "+what+" id", err)
	}
	return oid, nil
}

func lookupError(err error, what string) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound(what + " not found")
	}
	return apperr.Internal("failed to load "+what, err)
}

func writeError(err error, what, code string) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, db.ErrDuplicate):
		return apperr.Conflict(what + " code " + code + " already exists")
	case errors.Is(err, db.ErrNotFound):
		return apperr.NotFound(what + " not found")
	default:
		return apperr.Internal("failed to save "+what, err)
	}
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

func (s *Service) loadLine(ctx context.Context, id string) (*models.ProductionLine, error) {
	oid, err := parseID(id, "production line")
	if err != nil {
		return nil, err
	}
	l, err := s.lines.FindByID(ctx, oid)
	if err != nil {
		return nil, lookupError(err, "production line")
	}
	return l, nil
}

func (s *Service) loadMachine(ctx context.Context, id string) (*models.Machine, error) {
	oid, err := parseID(id, "machine")
	if err != nil {
		return nil, err
	}
	m, err := s.machines.FindByID(ctx, oid)
	if err != nil {
		return nil, lookupError(err, "machine")
	}
	return m, nil
}

// CreateLine stores a new running line with no machines.
func (s *Service) CreateLine(ctx context.Context, in LineInput) (_ *models.ProductionLine, err error) {
	defer s.observe("create_line", s.clock.Now(), &err)

	in.LineCode = strings.TrimSpace(in.LineCode)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate(in); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	l := &models.ProductionLine{
		LineCode:    in.LineCode,
		Name:        in.Name,
		Description: in.Description,
		Status:      models.LineStatusRunning,
		Machines:    []primitive.ObjectID{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.lines.Insert(ctx, l); err != nil {
		return nil, writeError(err, "production line", l.LineCode)
	}
	s.log.WithFields(logrus.Fields{"line_id": l.ID.Hex(), "line_code": l.LineCode}).Info("production line created")
	return l, nil
}

// GetLine returns a production line.
func (s *Service) GetLine(ctx context.Context, id string) (_ *models.ProductionLine, err error) {
	defer s.observe("get_line", s.clock.Now(), &err)
	return s.loadLine(ctx, id)
}

// UpdateLine changes code, name or description.
func (s *Service) UpdateLine(ctx context.Context, id string, in LineUpdate) (_ *models.ProductionLine, err error) {
	defer s.observe("update_line", s.clock.Now(), &err)

	in.LineCode, in.Name = trimmed(in.LineCode), trimmed(in.Name)
	if err := s.validate(in); err != nil {
		return nil, err
	}
	l, err := s.loadLine(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.LineCode != nil {
		l.LineCode = *in.LineCode
	}
	if in.Name != nil {
		l.Name = *in.Name
	}
	if in.Description != nil {
		l.Description = *in.Description
	}
	l.UpdatedAt = s.clock.Now()
	if err := s.lines.Replace(ctx, l); err != nil {
		return nil, writeError(err, "production line", l.LineCode)
	}
	s.log.WithField("line_id", l.ID.Hex()).Info("production line updated")
	return l, nil
}

// DeleteLine removes a line that no open request references and detaches
// its machines.
func (s *Service) DeleteLine(ctx context.Context, id string) (err error) {
	defer s.observe("delete_line", s.clock.Now(), &err)

	l, err := s.loadLine(ctx, id)
	if err != nil {
		return err
	}
	open, err := s.requests.FindOpenByLine(ctx, l.ID)
	if err != nil {
		return apperr.Internal("failed to check open requests", err)
	}
	if len(open) > 0 {
		return apperr.Conflict("production line has open maintenance requests")
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.machines.ClearLine(ctx, l.ID); err != nil {
			return apperr.Internal("failed to detach machines", err)
		}
		if err := s.lines.Delete(ctx, l.ID); err != nil {
			return lookupError(err, "production line")
		}
		return nil
	})
	if err != nil {
		return writeError(err, "production line", l.LineCode)
	}
	s.log.WithFields(logrus.Fields{
		"line_id":  l.ID.Hex(),
		"machines": len(l.Machines),
	}).Info("production line deleted")
	return nil
}

// CreateMachine stores a normal machine with no accrued cost and adds it to
// its line's machines list.
func (s *Service) CreateMachine(ctx context.Context, in MachineInput) (_ *models.Machine, err error) {
	defer s.observe("create_machine", s.clock.Now(), &err)

	in.MachineCode = strings.TrimSpace(in.MachineCode)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate(in); err != nil {
		return nil, err
	}
	line, err := s.loadLine(ctx, in.ProductionLineID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	m := &models.Machine{
		ID:               primitive.NewObjectID(),
		MachineCode:      in.MachineCode,
		Name:             in.Name,
		Description:      in.Description,
		ProductionLineID: line.ID,
		Status:           models.MachineStatusNormal,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.machines.Insert(ctx, m); err != nil {
			return writeError(err, "machine", m.MachineCode)
		}
		if err := s.lines.AddMachine(ctx, line.ID, m.ID); err != nil {
			return lookupError(err, "production line")
		}
		return nil
	})
	if err != nil {
		return nil, writeError(err, "machine", m.MachineCode)
	}

	s.log.WithFields(logrus.Fields{
		"machine_id":   m.ID.Hex(),
		"machine_code": m.MachineCode,
		"line_id":      line.ID.Hex(),
	}).Info("machine created")
	return m, nil
}

// GetMachine returns a machine.
func (s *Service) GetMachine(ctx context.Context, id string) (_ *models.Machine, err error) {
	defer s.observe("get_machine", s.clock.Now(), &err)
	return s.loadMachine(ctx, id)
}

func (s *Service) ensureIdle(ctx context.Context, m *models.Machine) error {
	open, err := s.requests.FindOpenByMachine(ctx, m.ID)
	if err != nil {
		return apperr.Internal("failed to check open requests", err)
	}
	if len(open) > 0 {
		return apperr.Conflict("machine has open maintenance requests")
	}
	return nil
}

// detach pulls a machine from a line's machines list. A line that is already
// gone is not an error.
func (s *Service) detach(ctx context.Context, lineID, machineID primitive.ObjectID) error {
	if lineID.IsZero() {
		return nil
	}
	err := s.lines.RemoveMachine(ctx, lineID, machineID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return apperr.Internal("failed to detach machine from production line", err)
	}
	return nil
}

// UpdateMachine changes code, name or description and optionally moves the
// machine to another line. Moving a machine with open requests is refused.
func (s *Service) UpdateMachine(ctx context.Context, id string, in MachineUpdate) (_ *models.Machine, err error) {
	defer s.observe("update_machine", s.clock.Now(), &err)

	in.MachineCode, in.Name = trimmed(in.MachineCode), trimmed(in.Name)
	if err := s.validate(in); err != nil {
		return nil, err
	}
	m, err := s.loadMachine(ctx, id)
	if err != nil {
		return nil, err
	}

	var target *models.ProductionLine
	if in.ProductionLineID != nil {
		target, err = s.loadLine(ctx, *in.ProductionLineID)
		if err != nil {
			return nil, err
		}
		if target.ID == m.ProductionLineID {
			target = nil
		} else if err := s.ensureIdle(ctx, m); err != nil {
			return nil, err
		}
	}

	if in.MachineCode != nil {
		m.MachineCode = *in.MachineCode
	}
	if in.Name != nil {
		m.Name = *in.Name
	}
	if in.Description != nil {
		m.Description = *in.Description
	}
	m.UpdatedAt = s.clock.Now()
	from := m.ProductionLineID
	if target != nil {
		m.ProductionLineID = target.ID
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if target != nil {
			if err := s.detach(ctx, from, m.ID); err != nil {
				return err
			}
			if err := s.lines.AddMachine(ctx, target.ID, m.ID); err != nil {
				return lookupError(err, "production line")
			}
		}
		if err := s.machines.Replace(ctx, m); err != nil {
			return writeError(err, "machine", m.MachineCode)
		}
		return nil
	})
	if err != nil {
		return nil, writeError(err, "machine", m.MachineCode)
	}

	entry := s.log.WithField("machine_id", m.ID.Hex())
	if target != nil {
		entry = entry.WithField("line_id", target.ID.Hex())
	}
	entry.Info("machine updated")
	return m, nil
}

// DeleteMachine removes a machine that no open request references and pulls
// it from its line.
func (s *Service) DeleteMachine(ctx context.Context, id string) (err error) {
	defer s.observe("delete_machine", s.clock.Now(), &err)

	m, err := s.loadMachine(ctx, id)
	if err != nil {
		return err
	}
	if err := s.ensureIdle(ctx, m); err != nil {
		return err
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.detach(ctx, m.ProductionLineID, m.ID); err != nil {
			return err
		}
		if err := s.machines.Delete(ctx, m.ID); err != nil {
			return lookupError(err, "machine")
		}
		return nil
	})
	if err != nil {
		return writeError(err, "machine", m.MachineCode)
	}
	s.log.WithFields(logrus.Fields{
		"machine_id":   m.ID.Hex(),
		"machine_code": m.MachineCode,
	}).Info("machine deleted")
	return nil
}
