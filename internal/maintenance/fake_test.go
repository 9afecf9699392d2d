package maintenance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ukydev/plant-maintenance/internal/db"
	"github.com/ukydev/plant-maintenance/internal/downtime"
	"github.com/ukydev/plant-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memStore is an in-memory stand-in for the Mongo collections. Its
// WithTransaction snapshots every map and restores it when fn fails.
type memStore struct {
	mu        sync.Mutex
	txMu      sync.Mutex
	requests  map[primitive.ObjectID]models.MaintenanceRequest
	machines  map[primitive.ObjectID]models.Machine
	lines     map[primitive.ObjectID]models.ProductionLine
	employees map[primitive.ObjectID]models.Employee

	failIncrement error
	failReplace   error
	writes        int
}

func newMemStore() *memStore {
	return &memStore{
		requests:  map[primitive.ObjectID]models.MaintenanceRequest{},
		machines:  map[primitive.ObjectID]models.Machine{},
		lines:     map[primitive.ObjectID]models.ProductionLine{},
		employees: map[primitive.ObjectID]models.Employee{},
	}
}

func (s *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	reqs := make(map[primitive.ObjectID]models.MaintenanceRequest, len(s.requests))
	for k, v := range s.requests {
		reqs[k] = v
	}
	machines := make(map[primitive.ObjectID]models.Machine, len(s.machines))
	for k, v := range s.machines {
		machines[k] = v
	}
	lines := make(map[primitive.ObjectID]models.ProductionLine, len(s.lines))
	for k, v := range s.lines {
		lines[k] = v
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.requests, s.machines, s.lines = reqs, machines, lines
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) addLine(name string) models.ProductionLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := models.ProductionLine{ID: primitive.NewObjectID(), Name: name, Status: models.LineStatusRunning}
	s.lines[l.ID] = l
	return l
}

func (s *memStore) addMachine(name string, lineID primitive.ObjectID) models.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := models.Machine{ID: primitive.NewObjectID(), Name: name, ProductionLineID: lineID, Status: models.MachineStatusNormal}
	s.machines[m.ID] = m
	return m
}

func (s *memStore) addEmployee(name, email string) models.Employee {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := models.Employee{ID: primitive.NewObjectID(), Name: name, Email: email}
	s.employees[e.ID] = e
	return e
}

func (s *memStore) machine(id primitive.ObjectID) models.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machines[id]
}

func (s *memStore) line(id primitive.ObjectID) models.ProductionLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines[id]
}

func (s *memStore) request(id primitive.ObjectID) (models.MaintenanceRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	return r, ok
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// requests

type memRequests struct{ *memStore }

func (s memRequests) Insert(_ context.Context, r *models.MaintenanceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.requests[r.ID] = *r
	return nil
}

func (s memRequests) FindByID(_ context.Context, id primitive.ObjectID) (*models.MaintenanceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	r.Attachments = append([]string(nil), r.Attachments...)
	return &r, nil
}

func (s memRequests) Replace(_ context.Context, r *models.MaintenanceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReplace != nil {
		return s.failReplace
	}
	if _, ok := s.requests[r.ID]; !ok {
		return db.ErrNotFound
	}
	s.writes++
	s.requests[r.ID] = *r
	return nil
}

func (s memRequests) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[id]; !ok {
		return db.ErrNotFound
	}
	s.writes++
	delete(s.requests, id)
	return nil
}

func (s memRequests) List(_ context.Context, f models.RequestFilter) ([]models.MaintenanceRequest, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.MaintenanceRequest
	for _, r := range s.requests {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.AssignedTo != nil && (r.AssignedTo == nil || *r.AssignedTo != *f.AssignedTo) {
			continue
		}
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	start := (f.Page - 1) * f.Limit
	if start > len(all) {
		start = len(all)
	}
	end := start + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (s memRequests) open(match func(models.MaintenanceRequest) bool) []models.MaintenanceRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MaintenanceRequest
	for _, r := range s.requests {
		if r.IsOpen() && match(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s memRequests) FindOpenByLine(_ context.Context, lineID primitive.ObjectID) ([]models.MaintenanceRequest, error) {
	return s.open(func(r models.MaintenanceRequest) bool { return r.ProductionLineID == lineID }), nil
}

func (s memRequests) FindOpenByMachine(_ context.Context, machineID primitive.ObjectID) ([]models.MaintenanceRequest, error) {
	return s.open(func(r models.MaintenanceRequest) bool { return r.MachineID == machineID }), nil
}

func (s memRequests) Summary(_ context.Context, now time.Time) ([]models.MachineSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byMachine := map[primitive.ObjectID]*models.MachineSummary{}
	for _, r := range s.requests {
		sum, ok := byMachine[r.MachineID]
		if !ok {
			sum = &models.MachineSummary{MachineID: r.MachineID, MachineName: s.machines[r.MachineID].Name}
			byMachine[r.MachineID] = sum
		}
		if r.IsOpen() {
			sum.TotalDowntimeMinutes += r.MachineCarriedMinutes + downtime.Minutes(r.MachineDownStart, r.MachineDownEnd, now)
		} else {
			sum.TotalDowntimeMinutes += r.MachineDowntimeMinutes
		}
		sum.TotalCost += models.TotalCost(r.SparePartsUsed)
		if r.IsOpen() {
			sum.OpenRequests++
		}
	}
	out := make([]models.MachineSummary, 0, len(byMachine))
	for _, v := range byMachine {
		out = append(out, *v)
	}
	return out, nil
}

// machines

type memMachines struct{ *memStore }

func (s memMachines) FindByID(_ context.Context, id primitive.ObjectID) (*models.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &m, nil
}

func (s memMachines) SetStatus(_ context.Context, id primitive.ObjectID, status models.MachineStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[id]
	if !ok {
		return db.ErrNotFound
	}
	m.Status = status
	s.machines[id] = m
	s.writes++
	return nil
}

func (s memMachines) IncrementMaintenanceCost(_ context.Context, id primitive.ObjectID, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIncrement != nil {
		return s.failIncrement
	}
	m, ok := s.machines[id]
	if !ok {
		return db.ErrNotFound
	}
	m.MaintenanceCost += amount
	s.machines[id] = m
	s.writes++
	return nil
}

// lines

type memLines struct{ *memStore }

func (s memLines) FindByID(_ context.Context, id primitive.ObjectID) (*models.ProductionLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lines[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &l, nil
}

func (s memLines) SetStatus(_ context.Context, id primitive.ObjectID, status models.LineStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lines[id]
	if !ok {
		return db.ErrNotFound
	}
	l.Status = status
	s.lines[id] = l
	s.writes++
	return nil
}

// employees

type memEmployees struct{ *memStore }

func (s memEmployees) FindByID(_ context.Context, id primitive.ObjectID) (*models.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employees[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &e, nil
}

// fixedTickets hands out codes from a list, or fails with err.
type fixedTickets struct {
	mu    sync.Mutex
	codes []string
	err   error
}

func (f *fixedTickets) Generate(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if len(f.codes) == 0 {
		return "A100", nil
	}
	c := f.codes[0]
	f.codes = f.codes[1:]
	return c, nil
}

var errStoreDown = errors.New("store unavailable")
