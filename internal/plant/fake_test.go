package plant

import (
	"context"
	"errors"
	"sync"

	"github.com/ukydev/plant-maintenance/internal/db"
	"github.com/ukydev/plant-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memStore keeps machines and lines in maps and enforces the same unique
// codes as the Mongo indexes. WithTransaction restores both maps when fn
// fails.
type memStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	machines map[primitive.ObjectID]models.Machine
	lines    map[primitive.ObjectID]models.ProductionLine
	open     map[primitive.ObjectID][]models.MaintenanceRequest

	failAddMachine error
}

func newMemStore() *memStore {
	return &memStore{
		machines: map[primitive.ObjectID]models.Machine{},
		lines:    map[primitive.ObjectID]models.ProductionLine{},
		open:     map[primitive.ObjectID][]models.MaintenanceRequest{},
	}
}

func (s *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	machines := make(map[primitive.ObjectID]models.Machine, len(s.machines))
	for k, v := range s.machines {
		machines[k] = v
	}
	lines := make(map[primitive.ObjectID]models.ProductionLine, len(s.lines))
	for k, v := range s.lines {
		v.Machines = append([]primitive.ObjectID{}, v.Machines...)
		lines[k] = v
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.machines, s.lines = machines, lines
		s.mu.Unlock()
		return err
	}
	return nil
}

// openRequest registers an open request against a line and a machine.
func (s *memStore) openRequest(lineID, machineID primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := models.MaintenanceRequest{
		ID:               primitive.NewObjectID(),
		ProductionLineID: lineID,
		MachineID:        machineID,
		Status:           models.StatusPending,
	}
	s.open[lineID] = append(s.open[lineID], r)
	s.open[machineID] = append(s.open[machineID], r)
}

func (s *memStore) line(id primitive.ObjectID) (models.ProductionLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lines[id]
	return l, ok
}

func (s *memStore) machine(id primitive.ObjectID) (models.Machine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[id]
	return m, ok
}

func (s *memStore) FindOpenByLine(_ context.Context, lineID primitive.ObjectID) ([]models.MaintenanceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[lineID], nil
}

func (s *memStore) FindOpenByMachine(_ context.Context, machineID primitive.ObjectID) ([]models.MaintenanceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[machineID], nil
}

// machines

type memMachines struct{ *memStore }

func (s memMachines) codeTaken(code string, except primitive.ObjectID) bool {
	for id, m := range s.machines {
		if id != except && m.MachineCode == code {
			return true
		}
	}
	return false
}

func (s memMachines) Insert(_ context.Context, m *models.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codeTaken(m.MachineCode, primitive.NilObjectID) {
		return db.ErrDuplicate
	}
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	s.machines[m.ID] = *m
	return nil
}

func (s memMachines) FindByID(_ context.Context, id primitive.ObjectID) (*models.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &m, nil
}

func (s memMachines) Replace(_ context.Context, m *models.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.machines[m.ID]; !ok {
		return db.ErrNotFound
	}
	if s.codeTaken(m.MachineCode, m.ID) {
		return db.ErrDuplicate
	}
	s.machines[m.ID] = *m
	return nil
}

func (s memMachines) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.machines[id]; !ok {
		return db.ErrNotFound
	}
	delete(s.machines, id)
	return nil
}

func (s memMachines) ClearLine(_ context.Context, lineID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.machines {
		if m.ProductionLineID == lineID {
			m.ProductionLineID = primitive.NilObjectID
			s.machines[id] = m
		}
	}
	return nil
}

// lines

type memLines struct{ *memStore }

func (s memLines) Insert(_ context.Context, l *models.ProductionLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.lines {
		if other.LineCode == l.LineCode {
			return db.ErrDuplicate
		}
	}
	if l.ID.IsZero() {
		l.ID = primitive.NewObjectID()
	}
	s.lines[l.ID] = *l
	return nil
}

func (s memLines) FindByID(_ context.Context, id primitive.ObjectID) (*models.ProductionLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lines[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	l.Machines = append([]primitive.ObjectID{}, l.Machines...)
	return &l, nil
}

func (s memLines) Replace(_ context.Context, l *models.ProductionLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.lines[l.ID]
	if !ok {
		return db.ErrNotFound
	}
	for id, other := range s.lines {
		if id != l.ID && other.LineCode == l.LineCode {
			return db.ErrDuplicate
		}
	}
	stored.LineCode, stored.Name, stored.Description, stored.UpdatedAt = l.LineCode, l.Name, l.Description, l.UpdatedAt
	s.lines[l.ID] = stored
	return nil
}

func (s memLines) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lines[id]; !ok {
		return db.ErrNotFound
	}
	delete(s.lines, id)
	return nil
}

func (s memLines) AddMachine(_ context.Context, lineID, machineID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAddMachine != nil {
		return s.failAddMachine
	}
	l, ok := s.lines[lineID]
	if !ok {
		return db.ErrNotFound
	}
	for _, id := range l.Machines {
		if id == machineID {
			return nil
		}
	}
	l.Machines = append(l.Machines, machineID)
	s.lines[lineID] = l
	return nil
}

func (s memLines) RemoveMachine(_ context.Context, lineID, machineID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lines[lineID]
	if !ok {
		return db.ErrNotFound
	}
	kept := l.Machines[:0:0]
	for _, id := range l.Machines {
		if id != machineID {
			kept = append(kept, id)
		}
	}
	l.Machines = kept
	s.lines[lineID] = l
	return nil
}

var errStoreDown = errors.New("store unavailable")
