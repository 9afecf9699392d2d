package main

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/plant-maintenance/internal/db"
	"github.com/ukydev/plant-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type departmentRepo interface {
	Insert(ctx context.Context, d *models.Department) error
	FindByName(ctx context.Context, name models.DepartmentName) (*models.Department, error)
	AddEmployee(ctx context.Context, departmentID, employeeID primitive.ObjectID) error
}

type employeeRepo interface {
	Insert(ctx context.Context, e *models.Employee) error
	FindByEmail(ctx context.Context, email string) (*models.Employee, error)
}

type lineRepo interface {
	Insert(ctx context.Context, l *models.ProductionLine) error
}

type machineRepo interface {
	Insert(ctx context.Context, m *models.Machine) error
}

type transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// account is a login the simulator acts as.
type account struct {
	Name       string
	Email      string
	Password   string
	Department models.DepartmentName
}

type seeder struct {
	departments departmentRepo
	employees   employeeRepo
	lines       lineRepo
	machines    machineRepo
	tx          transactor
	hash        func(string) (string, error)
}

func newSeeder(store *db.Store, hash func(string) (string, error)) *seeder {
	return &seeder{
		departments: store.Departments,
		employees:   store.Employees,
		lines:       store.Lines,
		machines:    store.Machines,
		tx:          store,
		hash:        hash,
	}
}

// ensureAccount creates the employee and its department membership unless
// the email is already registered.
func (s *seeder) ensureAccount(ctx context.Context, a account) (*models.Employee, error) {
	existing, err := s.employees.FindByEmail(ctx, a.Email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("lookup %s: %w", a.Email, err)
	}

	hash, err := s.hash(a.Password)
	if err != nil {
		return nil, err
	}

	var created *models.Employee
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		dept, err := s.department(ctx, a.Department)
		if err != nil {
			return err
		}
		e := &models.Employee{
			Name:         a.Name,
			Email:        a.Email,
			PasswordHash: hash,
			DepartmentID: dept.ID,
		}
		if err := s.employees.Insert(ctx, e); err != nil {
			return fmt.Errorf("insert employee: %w", err)
		}
		if err := s.departments.AddEmployee(ctx, dept.ID, e.ID); err != nil {
			return fmt.Errorf("add to department: %w", err)
		}
		created = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"email": a.Email, "department": a.Department}).Info("Seeded employee")
	return created, nil
}

func (s *seeder) department(ctx context.Context, name models.DepartmentName) (*models.Department, error) {
	d, err := s.departments.FindByName(ctx, name)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("lookup department: %w", err)
	}
	d = &models.Department{Name: name, Employees: []primitive.ObjectID{}}
	if err := s.departments.Insert(ctx, d); err != nil {
		return nil, fmt.Errorf("insert department: %w", err)
	}
	return d, nil
}

var stationNames = []string{"Filler", "Capper", "Labeler", "Case Packer", "Palletizer", "Shrink Wrapper"}

// seedPlant inserts lineCount lines of perLine machines each. runTag keeps
// codes distinct between runs.
func (s *seeder) seedPlant(ctx context.Context, runTag string, lineCount, perLine int) ([]models.Machine, error) {
	var machines []models.Machine
	for l := 1; l <= lineCount; l++ {
		line := models.ProductionLine{
			ID:       primitive.NewObjectID(),
			LineCode: fmt.Sprintf("%s-L%02d", runTag, l),
			Name:     fmt.Sprintf("Line %d", l),
			Status:   models.LineStatusRunning,
		}
		batch := make([]models.Machine, 0, perLine)
		for m := 1; m <= perLine; m++ {
			mc := models.Machine{
				ID:               primitive.NewObjectID(),
				MachineCode:      fmt.Sprintf("%s-M%02d", line.LineCode, m),
				Name:             fmt.Sprintf("%s %d.%d", stationNames[(m-1)%len(stationNames)], l, m),
				ProductionLineID: line.ID,
				Status:           models.MachineStatusNormal,
			}
			line.Machines = append(line.Machines, mc.ID)
			batch = append(batch, mc)
		}

		if err := s.lines.Insert(ctx, &line); err != nil {
			return nil, fmt.Errorf("insert line %s: %w", line.LineCode, err)
		}
		for i := range batch {
			if err := s.machines.Insert(ctx, &batch[i]); err != nil {
				return nil, fmt.Errorf("insert machine %s: %w", batch[i].MachineCode, err)
			}
		}
		machines = append(machines, batch...)
	}
	log.WithFields(log.Fields{"lines": lineCount, "machines": len(machines)}).Info("Seeded plant")
	return machines, nil
}
