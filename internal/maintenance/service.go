// Package maintenance owns the maintenance request lifecycle: creation,
// assignment, progress updates, closure with cost and downtime settlement,
// and deletion. Every mutation touching more than one entity runs inside a
// single transaction together with the derived status refresh.
package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/plant-maintenance/internal/apperr"
	"github.com/ukydev/plant-maintenance/internal/clock"
	"github.com/ukydev/plant-maintenance/internal/db"
	"github.com/ukydev/plant-maintenance/internal/downtime"
	"github.com/ukydev/plant-maintenance/internal/models"
	"github.com/ukydev/plant-maintenance/internal/notify"
	"github.com/ukydev/plant-maintenance/internal/status"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RequestStore persists maintenance requests.
type RequestStore interface {
	status.OpenRequestFinder
	Insert(ctx context.Context, r *models.MaintenanceRequest) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.MaintenanceRequest, error)
	Replace(ctx context.Context, r *models.MaintenanceRequest) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, f models.RequestFilter) ([]models.MaintenanceRequest, int64, error)
	Summary(ctx context.Context, now time.Time) ([]models.MachineSummary, error)
}

// MachineStore reads machines and writes their derived fields.
type MachineStore interface {
	status.MachineStatusWriter
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Machine, error)
	IncrementMaintenanceCost(ctx context.Context, id primitive.ObjectID, amount float64) error
}

// LineStore reads production lines and writes their derived status.
type LineStore interface {
	status.LineStatusWriter
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.ProductionLine, error)
}

// EmployeeFinder resolves assignees.
type EmployeeFinder interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Employee, error)
}

// Transactor runs fn atomically.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// TicketGenerator issues ticket codes.
type TicketGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// Recorder receives operation metrics.
type Recorder interface {
	ObserveOperation(operation string, err error, duration time.Duration)
	AddCost(amount float64)
}

// Deps wires a Service.
type Deps struct {
	Requests  RequestStore
	Machines  MachineStore
	Lines     LineStore
	Employees EmployeeFinder
	Tx        Transactor
	Tickets   TicketGenerator
	Notifier  notify.Notifier
	Composer  *notify.Composer
	Clock     clock.Clock
	Metrics   Recorder
	Validator *validator.Validate
	Logger    logrus.FieldLogger
	// SupervisorEmail receives created, status, closed and deleted notifications.
	SupervisorEmail string
}

// Service implements the lifecycle operations.
type Service struct {
	requests   RequestStore
	machines   MachineStore
	lines      LineStore
	employees  EmployeeFinder
	tx         Transactor
	tickets    TicketGenerator
	projector  *status.Projector
	notifier   notify.Notifier
	composer   *notify.Composer
	clock      clock.Clock
	downtime   downtime.Calculator
	metrics    Recorder
	validator  *validator.Validate
	log        logrus.FieldLogger
	supervisor string
}

type noTx struct{}

func (noTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type noMetrics struct{}

func (noMetrics) ObserveOperation(string, error, time.Duration) {}
func (noMetrics) AddCost(float64)                               {}

// NewService constructs the service.
func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Tx == nil {
		d.Tx = noTx{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Metrics == nil {
		d.Metrics = noMetrics{}
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Validator == nil {
		d.Validator = validator.New()
	}
	registerValidations(d.Validator)
	log := d.Logger.WithField("component", "maintenance")

	return &Service{
		requests:   d.Requests,
		machines:   d.Machines,
		lines:      d.Lines,
		employees:  d.Employees,
		tx:         d.Tx,
		tickets:    d.Tickets,
		projector:  status.NewProjector(d.Requests, d.Lines, d.Machines, log),
		notifier:   d.Notifier,
		composer:   d.Composer,
		clock:      d.Clock,
		downtime:   downtime.NewCalculator(d.Clock),
		metrics:    d.Metrics,
		validator:  d.Validator,
		log:        log,
		supervisor: d.SupervisorEmail,
	}
}

func registerValidations(v *validator.Validate) {
	_ = v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return primitive.IsValidObjectID(fl.Field().String())
	})
}

// observe records the outcome of an operation; call it deferred with a
// pointer to the named error result.
func (s *Service) observe(operation string, start time.Time, err *error) {
	s.metrics.ObserveOperation(operation, *err, s.clock.Now().Sub(start))
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

func persistError(err error, action string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.Internal("failed to "+action, err)
}

func (s *Service) loadRequest(ctx context.Context, id string) (*models.MaintenanceRequest, error) {
	oid, err := parseID(id, "request")
	if err != nil {
		return nil, err
	}
	r, err := s.requests.FindByID(ctx, oid)
	if err != nil {
		return nil, lookupError(err, "maintenance request")
	}
	return r, nil
}

// refresh re-derives line and machine status from within a transaction.
func (s *Service) refresh(ctx context.Context, r *models.MaintenanceRequest) error {
	if _, err := s.projector.Refresh(ctx, r.ProductionLineID, r.MachineID); err != nil {
		return apperr.Internal("failed to refresh derived status", err)
	}
	return nil
}

// fillDowntime sets both downtime figures from the interval fields.
func (s *Service) fillDowntime(r *models.MaintenanceRequest) {
	r.ProductionLineDowntimeMinutes = r.ProductionLineCarriedMinutes +
		s.downtime.Minutes(r.ProductionLineDownStart, r.ProductionLineDownEnd)
	r.MachineDowntimeMinutes = r.MachineCarriedMinutes +
		s.downtime.Minutes(r.MachineDownStart, r.MachineDownEnd)
}

func (s *Service) machineName(ctx context.Context, id primitive.ObjectID) string {
	m, err := s.machines.FindByID(ctx, id)
	if err != nil {
		return ""
	}
	return m.Name
}

// dispatch composes and queues a notification. Failures are logged only.
func (s *Service) dispatch(event notify.Event, to string, r *models.MaintenanceRequest, machineName string) {
	if s.composer == nil {
		return
	}
	n, err := s.composer.Compose(event, to, r, machineName, s.clock.Now())
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"event":      event,
			"request_id": r.ID.Hex(),
		}).Error("failed to compose notification")
		return
	}
	s.notifier.Dispatch(n)
}
