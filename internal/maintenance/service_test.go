package maintenance

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/plant-maintenance/internal/apperr"
	"github.com/ukydev/plant-maintenance/internal/clock"
	"github.com/ukydev/plant-maintenance/internal/models"
	"github.com/ukydev/plant-maintenance/internal/notify"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (c *captureNotifier) Dispatch(n notify.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

func (c *captureNotifier) events() []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notify.Event, 0, len(c.sent))
	for _, n := range c.sent {
		out = append(out, n.Event)
	}
	return out
}

type captureMetrics struct {
	mu   sync.Mutex
	ops  map[string]int
	errs map[string]int
	cost float64
}

func (c *captureMetrics) ObserveOperation(op string, err error, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops[op]++
	if err != nil {
		c.errs[op]++
	}
}

func (c *captureMetrics) AddCost(amount float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cost += amount
}

var t0 = time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	store    *memStore
	clock    *clock.Manual
	notifier *captureNotifier
	metrics  *captureMetrics
	line     models.ProductionLine
	machine  models.Machine
	tech     models.Employee
	author   models.Employee
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	c := clock.NewManual(t0)
	composer, err := notify.NewComposer("http://plant.local")
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	f := &fixture{
		store:    store,
		clock:    c,
		notifier: &captureNotifier{},
		metrics:  &captureMetrics{ops: map[string]int{}, errs: map[string]int{}},
	}
	f.line = store.addLine("Line 1")
	f.machine = store.addMachine("Press 7", f.line.ID)
	f.tech = store.addEmployee("Tech", "tech@plant.local")
	f.author = store.addEmployee("Prod", "prod@plant.local")

	f.svc = NewService(Deps{
		Requests:        memRequests{store},
		Machines:        memMachines{store},
		Lines:           memLines{store},
		Employees:       memEmployees{store},
		Tx:              store,
		Tickets:         &fixedTickets{},
		Notifier:        f.notifier,
		Composer:        composer,
		Clock:           c,
		Metrics:         f.metrics,
		Logger:          logger,
		SupervisorEmail: "supervisor@plant.local",
	})
	return f
}

func (f *fixture) create(t *testing.T, line models.LineState, machine models.MachineState) *models.MaintenanceRequest {
	t.Helper()
	r, err := f.svc.Create(context.Background(), CreateInput{
		ProductionLineID:    f.line.ID.Hex(),
		MachineID:           f.machine.ID.Hex(),
		ProductionLineState: line,
		MachineState:        machine,
		Symptoms:            "hydraulic leak",
		CreatedBy:           f.author.ID.Hex(),
	})
	require.NoError(t, err)
	return r
}

func lineState(s models.LineState) *models.LineState          { return &s }
func machineState(s models.MachineState) *models.MachineState { return &s }

func TestCreate(t *testing.T) {
	f := newFixture(t)

	r := f.create(t, models.LineRunning, models.MachineDown)

	assert.Equal(t, models.StatusPending, r.Status)
	assert.Equal(t, models.PriorityLow, r.Priority)
	assert.Equal(t, "A100", r.TicketCode)
	require.NotNil(t, r.MachineDownStart)
	assert.Equal(t, t0, *r.MachineDownStart)
	assert.Nil(t, r.MachineDownEnd)
	assert.Nil(t, r.ProductionLineDownStart)

	stored, ok := f.store.request(r.ID)
	require.True(t, ok)
	assert.Equal(t, r.TicketCode, stored.TicketCode)

	assert.Equal(t, models.MachineStatusDown, f.store.machine(f.machine.ID).Status)
	assert.Equal(t, models.LineStatusRunning, f.store.line(f.line.ID).Status)
	assert.Equal(t, []notify.Event{notify.EventCreated}, f.notifier.events())
	assert.Equal(t, "supervisor@plant.local", f.notifier.sent[0].To)
}

func TestCreate_LineDownStampsLineStart(t *testing.T) {
	f := newFixture(t)

	r := f.create(t, models.LineDown, models.MachineUpNormal)

	require.NotNil(t, r.ProductionLineDownStart)
	assert.Nil(t, r.MachineDownStart)
	assert.Equal(t, models.LineStatusDown, f.store.line(f.line.ID).Status)
	assert.Equal(t, models.MachineStatusUpNormal, f.store.machine(f.machine.ID).Status)
}

func TestCreate_Errors(t *testing.T) {
	f := newFixture(t)
	otherLine := f.store.addLine("Line 2")
	ctx := context.Background()

	valid := func() CreateInput {
		return CreateInput{
			ProductionLineID:    f.line.ID.Hex(),
			MachineID:           f.machine.ID.Hex(),
			ProductionLineState: models.LineRunning,
			MachineState:        models.MachineDown,
			Symptoms:            "noise",
			CreatedBy:           f.author.ID.Hex(),
		}
	}

	tests := []struct {
		name   string
		mutate func(*CreateInput)
		kind   *apperr.Error
	}{
		{"malformed machine id", func(in *CreateInput) { in.MachineID = "nope" }, apperr.ErrValidation},
		{"missing symptoms", func(in *CreateInput) { in.Symptoms = "" }, apperr.ErrValidation},
		{"unknown machine state", func(in *CreateInput) { in.MachineState = "Down" }, apperr.ErrValidation},
		{"unknown line", func(in *CreateInput) { in.ProductionLineID = primitive.NewObjectID().Hex() }, apperr.ErrNotFound},
		{"unknown machine", func(in *CreateInput) { in.MachineID = primitive.NewObjectID().Hex() }, apperr.ErrNotFound},
		{"machine on another line", func(in *CreateInput) { in.ProductionLineID = otherLine.ID.Hex() }, apperr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.store.writeCount()
			in := valid()
			tt.mutate(&in)

			_, err := f.svc.Create(ctx, in)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
			assert.Equal(t, before, f.store.writeCount())
		})
	}
	assert.Empty(t, f.notifier.events())
}

func TestCreate_TicketExhausted(t *testing.T) {
	f := newFixture(t)
	f.svc.tickets = &fixedTickets{err: apperr.Conflict("could not reserve a unique ticket code")}

	_, err := f.svc.Create(context.Background(), CreateInput{
		ProductionLineID:    f.line.ID.Hex(),
		MachineID:           f.machine.ID.Hex(),
		ProductionLineState: models.LineRunning,
		MachineState:        models.MachineNormal,
		Symptoms:            "noise",
		CreatedBy:           f.author.ID.Hex(),
	})

	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, 1, f.metrics.errs["create"])
}

func TestGetByID_DowntimeNonDecreasing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, models.LineDown, models.MachineDown)

	var last int64
	for _, step := range []time.Duration{0, 30 * time.Second, 90 * time.Second, 45 * time.Minute} {
		f.clock.Advance(step)
		got, err := f.svc.GetByID(ctx, r.ID.Hex())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.MachineDowntimeMinutes, last)
		last = got.MachineDowntimeMinutes
	}
	assert.Equal(t, int64(47), last)
}

func TestGetByID_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetByID(context.Background(), "zzz")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.svc.GetByID(context.Background(), primitive.NewObjectID().Hex())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestAssign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, models.LineRunning, models.MachineDown)

	got, err := f.svc.Assign(ctx, r.ID.Hex(), AssignInput{
		AssignedTo: f.tech.ID.Hex(),
		AssignedBy: f.author.ID.Hex(),
		Priority:   models.PriorityHigh,
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, got.Status)
	assert.Equal(t, models.PriorityHigh, got.Priority)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, f.tech.ID, *got.AssignedTo)

	events := f.notifier.events()
	assert.Equal(t, notify.EventAssigned, events[len(events)-1])
	assert.Equal(t, "tech@plant.local", f.notifier.sent[len(events)-1].To)
}

func TestAssign_DefaultsPriority(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, models.LineRunning, models.MachineNormal)

	got, err := f.svc.Assign(context.Background(), r.ID.Hex(), AssignInput{
		AssignedTo: f.tech.ID.Hex(),
		AssignedBy: f.author.ID.Hex(),
	})

	require.NoError(t, err)
	assert.Equal(t, models.PriorityLow, got.Priority)
}

func TestAssign_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, models.LineRunning, models.MachineNormal)

	_, err := f.svc.Assign(ctx, primitive.NewObjectID().Hex(), AssignInput{AssignedTo: f.tech.ID.Hex(), AssignedBy: f.author.ID.Hex()})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.svc.Assign(ctx, r.ID.Hex(), AssignInput{AssignedTo: primitive.NewObjectID().Hex(), AssignedBy: f.author.ID.Hex()})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.svc.Assign(ctx, r.ID.Hex(), AssignInput{AssignedTo: f.tech.ID.Hex(), AssignedBy: f.author.ID.Hex(), Priority: "Urgent"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.svc.Close(ctx, r.ID.Hex(), CloseInput{})
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, r.ID.Hex(), AssignInput{AssignedTo: f.tech.ID.Hex(), AssignedBy: f.author.ID.Hex()})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestUpdateStatus_DownIntervals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, models.LineRunning, models.MachineDown)

	f.clock.Advance(10 * time.Minute)
	got, err := f.svc.UpdateStatus(ctx, r.ID.Hex(), StatusInput{
		Status:       models.StatusInProgress,
		MachineState: machineState(models.MachineNormal),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	require.NotNil(t, got.MachineDownEnd)
	assert.Equal(t, t0.Add(10*time.Minute), *got.MachineDownEnd)
	assert.Equal(t, int64(10), got.MachineDowntimeMinutes)
	assert.Equal(t, models.MachineStatusNormal, f.store.machine(f.machine.ID).Status)

	// going down again opens a new interval and keeps the earlier minutes
	f.clock.Advance(5 * time.Minute)
	got, err = f.svc.UpdateStatus(ctx, r.ID.Hex(), StatusInput{MachineState: machineState(models.MachineDown)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	require.NotNil(t, got.MachineDownStart)
	assert.Equal(t, t0.Add(15*time.Minute), *got.MachineDownStart)
	assert.Nil(t, got.MachineDownEnd)
	assert.Equal(t, int64(10), got.MachineDowntimeMinutes)
	assert.Equal(t, models.MachineStatusDown, f.store.machine(f.machine.ID).Status)

	f.clock.Advance(7 * time.Minute)
	got, err = f.svc.GetByID(ctx, r.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(17), got.MachineDowntimeMinutes)
}

func TestUpdateStatus_LineGoesDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, models.LineRunning, models.MachineNormal)

	f.clock.Advance(time.Minute)
	got, err := f.svc.UpdateStatus(ctx, r.ID.Hex(), StatusInput{
		Status:              models.StatusScheduled,
		ProductionLineState: lineState(models.LineDown),
	})

	require.NoError(t, err)
	require.NotNil(t, got.ProductionLineDownStart)
	assert.Equal(t, t0.Add(time.Minute), *got.ProductionLineDownStart)
	assert.Equal(t, models.LineStatusDown, f.store.line(f.line.ID).Status)
	assert.Contains(t, f.notifier.events(), notify.EventStatusChanged)
}

func TestUpdateStatus_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, models.LineRunning, models.MachineNormal)

	_, err := f.svc.UpdateStatus(ctx, r.ID.Hex(), StatusInput{Status: models.StatusClosed})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.svc.UpdateStatus(ctx, r.ID.Hex(), StatusInput{MachineState: machineState("broken")})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.svc.UpdateStatus(ctx, primitive.NewObjectID().Hex(), StatusInput{Status: models.StatusInProgress})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.svc.Close(ctx, r.ID.Hex(), CloseInput{})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, r.ID.Hex(), StatusInput{Status: models.StatusInProgress})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.create(t, models.LineRunning, models.MachineDown)
	assert.Equal(t, models.MachineStatusDown, f.store.machine(f.machine.ID).Status)

	assigned, err := f.svc.Assign(ctx, r.ID.Hex(), AssignInput{
		AssignedTo: f.tech.ID.Hex(),
		AssignedBy: f.author.ID.Hex(),
		Priority:   models.PriorityMedium,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, assigned.Status)
	assert.Equal(t, models.PriorityMedium, assigned.Priority)

	f.clock.Advance(95 * time.Minute)
	closed, err := f.svc.Close(ctx, r.ID.Hex(), CloseInput{
		SpareParts: []models.SparePart{{Category: "seal", PartName: "O-ring 40mm", Quantity: 2, UnitPrice: 10}},
		Solution:   "replaced seal",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusClosed, closed.Status)
	assert.Equal(t, int64(95), closed.MachineDowntimeMinutes)
	assert.Equal(t, 20.0, f.store.machine(f.machine.ID).MaintenanceCost)
	assert.Equal(t, models.MachineStatusNormal, f.store.machine(f.machine.ID).Status)
	assert.Equal(t, 20.0, f.metrics.cost)

	stored, _ := f.store.request(r.ID)
	assert.Equal(t, models.StatusClosed, stored.Status)
	require.NotNil(t, stored.ClosedAt)

	assert.Equal(t, []notify.Event{
		notify.EventCreated, notify.EventAssigned, notify.EventClosed,
	}, f.notifier.events())
	assert.Contains(t, f.notifier.sent[2].Body, "O-ring 40mm")
}

func TestClose_SetsEveryDownEnd(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, models.LineRunning, models.MachineNormal)

	got, err := f.svc.Close(context.Background(), r.ID.Hex(), CloseInput{})

	require.NoError(t, err)
	require.NotNil(t, got.ProductionLineDownEnd)
	require.NotNil(t, got.MachineDownEnd)
	assert.Zero(t, got.ProductionLineDowntimeMinutes)
	assert.Zero(t, got.MachineDowntimeMinutes)
	assert.NotNil(t, got.SparePartsUsed)
	assert.Zero(t, f.store.machine(f.machine.ID).MaintenanceCost)
}

func TestClose_KeepsOtherDownRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, models.LineDown, models.MachineDown)
	f.create(t, models.LineDown, models.MachineDown)

	_, err := f.svc.Close(ctx, first.ID.Hex(), CloseInput{})
	require.NoError(t, err)

	assert.Equal(t, models.MachineStatusDown, f.store.machine(f.machine.ID).Status)
	assert.Equal(t, models.LineStatusDown, f.store.line(f.line.ID).Status)
}

func TestClose_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, models.LineRunning, models.MachineDown)
	f.store.failIncrement = errStoreDown
	before := len(f.notifier.events())

	_, err := f.svc.Close(ctx, r.ID.Hex(), CloseInput{
		SpareParts: []models.SparePart{{Category: "belt", PartName: "V-belt", Quantity: 1, UnitPrice: 15}},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInternal))
	assert.ErrorIs(t, err, errStoreDown)

	stored, _ := f.store.request(r.ID)
	assert.True(t, stored.IsOpen())
	assert.Nil(t, stored.MachineDownEnd)
	assert.Equal(t, models.MachineStatusDown, f.store.machine(f.machine.ID).Status)
	assert.Zero(t, f.store.machine(f.machine.ID).MaintenanceCost)
	assert.Zero(t, f.metrics.cost)
	assert.Len(t, f.notifier.events(), before)
}

func TestClose_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, models.LineRunning, models.MachineNormal)

	_, err := f.svc.Close(ctx, r.ID.Hex(), CloseInput{
		SpareParts: []models.SparePart{{Category: "", PartName: "x", Quantity: 1, UnitPrice: 1}},
	})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.svc.Close(ctx, r.ID.Hex(), CloseInput{
		SpareParts: []models.SparePart{{Category: "c", PartName: "x", Quantity: -1, UnitPrice: 1}},
	})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.svc.Close(ctx, primitive.NewObjectID().Hex(), CloseInput{})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.svc.Close(ctx, r.ID.Hex(), CloseInput{})
	require.NoError(t, err)
	_, err = f.svc.Close(ctx, r.ID.Hex(), CloseInput{})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestClose_ConcurrentCostAccrual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prices := []float64{1.25, 2.5, 7.75, 10, 0.5, 3.25, 12, 4.5}
	var ids []string
	var want float64
	for _, p := range prices {
		ids = append(ids, f.create(t, models.LineRunning, models.MachineDown).ID.Hex())
		want += p * 2
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(id string, price float64) {
			defer wg.Done()
			_, err := f.svc.Close(ctx, id, CloseInput{
				SpareParts: []models.SparePart{{Category: "c", PartName: "p", Quantity: 2, UnitPrice: price}},
			})
			assert.NoError(t, err)
		}(id, prices[i])
	}
	wg.Wait()

	assert.InDelta(t, want, f.store.machine(f.machine.ID).MaintenanceCost, 1e-9)
	assert.Equal(t, models.MachineStatusNormal, f.store.machine(f.machine.ID).Status)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, models.LineDown, models.MachineDown)
	assert.Equal(t, models.MachineStatusDown, f.store.machine(f.machine.ID).Status)

	require.NoError(t, f.svc.Delete(ctx, r.ID.Hex()))

	_, ok := f.store.request(r.ID)
	assert.False(t, ok)
	assert.Equal(t, models.MachineStatusNormal, f.store.machine(f.machine.ID).Status)
	assert.Equal(t, models.LineStatusRunning, f.store.line(f.line.ID).Status)

	events := f.notifier.events()
	assert.Equal(t, notify.EventDeleted, events[len(events)-1])
}

func TestDelete_NotFoundLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t)
	f.create(t, models.LineRunning, models.MachineDown)
	before := f.store.writeCount()
	events := len(f.notifier.events())

	err := f.svc.Delete(context.Background(), primitive.NewObjectID().Hex())

	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, before, f.store.writeCount())
	assert.Len(t, f.notifier.events(), events)
	assert.Equal(t, 1, f.metrics.errs["delete"])
}

func TestListForSupervisor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.store.addEmployee("Other", "other@plant.local")

	var mine []string
	for i := 0; i < 3; i++ {
		f.clock.Advance(time.Minute)
		r := f.create(t, models.LineRunning, models.MachineDown)
		_, err := f.svc.Assign(ctx, r.ID.Hex(), AssignInput{AssignedTo: f.tech.ID.Hex(), AssignedBy: f.author.ID.Hex()})
		require.NoError(t, err)
		mine = append(mine, r.ID.Hex())
	}
	for i := 0; i < 2; i++ {
		f.clock.Advance(time.Minute)
		r := f.create(t, models.LineRunning, models.MachineNormal)
		_, err := f.svc.Assign(ctx, r.ID.Hex(), AssignInput{AssignedTo: other.ID.Hex(), AssignedBy: f.author.ID.Hex()})
		require.NoError(t, err)
	}
	f.clock.Advance(time.Minute)
	f.create(t, models.LineRunning, models.MachineNormal)

	supervisor := &models.Principal{EmployeeID: f.author.ID.Hex(), Department: models.DepartmentMaintenanceSupervisor}
	technician := &models.Principal{EmployeeID: f.tech.ID.Hex(), Department: models.DepartmentMaintenanceTechnician}

	t.Run("defaults and newest first", func(t *testing.T) {
		page, err := f.svc.ListForSupervisor(ctx, supervisor, ListInput{})
		require.NoError(t, err)
		assert.Equal(t, int64(6), page.TotalItems)
		assert.Equal(t, int64(1), page.TotalPages)
		assert.Equal(t, 1, page.CurrentPage)
		assert.Equal(t, 10, page.ItemsPerPage)
		require.Len(t, page.Items, 6)
		for i := 1; i < len(page.Items); i++ {
			assert.False(t, page.Items[i].CreatedAt.After(page.Items[i-1].CreatedAt))
		}
	})

	t.Run("paging", func(t *testing.T) {
		page, err := f.svc.ListForSupervisor(ctx, supervisor, ListInput{Page: 2, Limit: 4})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.TotalPages)
		assert.Len(t, page.Items, 2)
	})

	t.Run("limit is capped", func(t *testing.T) {
		page, err := f.svc.ListForSupervisor(ctx, supervisor, ListInput{Limit: 5000})
		require.NoError(t, err)
		assert.Equal(t, 100, page.ItemsPerPage)
	})

	t.Run("status filter", func(t *testing.T) {
		page, err := f.svc.ListForSupervisor(ctx, supervisor, ListInput{Status: string(models.StatusPending)})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.TotalItems)
	})

	t.Run("technician sees only own work", func(t *testing.T) {
		page, err := f.svc.ListForSupervisor(ctx, technician, ListInput{AssignedTo: other.ID.Hex()})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.TotalItems)
		var got []string
		for _, r := range page.Items {
			got = append(got, r.ID.Hex())
			assert.Equal(t, f.tech.ID, *r.AssignedTo)
		}
		assert.ElementsMatch(t, mine, got)
	})

	t.Run("downtime is filled", func(t *testing.T) {
		page, err := f.svc.ListForSupervisor(ctx, technician, ListInput{})
		require.NoError(t, err)
		for _, r := range page.Items {
			assert.Greater(t, r.MachineDowntimeMinutes, int64(0))
		}
	})

	t.Run("errors", func(t *testing.T) {
		_, err := f.svc.ListForSupervisor(ctx, nil, ListInput{})
		assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

		_, err = f.svc.ListForSupervisor(ctx, supervisor, ListInput{Status: "Done"})
		assert.True(t, errors.Is(err, apperr.ErrValidation))

		_, err = f.svc.ListForSupervisor(ctx, supervisor, ListInput{AssignedTo: "bad"})
		assert.True(t, errors.Is(err, apperr.ErrValidation))
	})

	t.Run("page out of range", func(t *testing.T) {
		_, err := f.svc.ListForSupervisor(ctx, supervisor, ListInput{Page: math.MaxInt, Limit: maxLimit})
		assert.True(t, errors.Is(err, apperr.ErrValidation))

		page, err := f.svc.ListForSupervisor(ctx, supervisor, ListInput{Page: maxPage})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
	})
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, models.LineRunning, models.MachineDown)
	f.create(t, models.LineRunning, models.MachineNormal)
	f.clock.Advance(30 * time.Minute)
	_, err := f.svc.Close(ctx, r.ID.Hex(), CloseInput{
		SpareParts: []models.SparePart{{Category: "c", PartName: "p", Quantity: 3, UnitPrice: 4}},
	})
	require.NoError(t, err)

	summary, err := f.svc.Summary(ctx)

	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, "Press 7", summary[0].MachineName)
	assert.Equal(t, int64(1), summary[0].OpenRequests)
	assert.Equal(t, int64(30), summary[0].TotalDowntimeMinutes)
	assert.Equal(t, 12.0, summary[0].TotalCost)
	assert.Equal(t, 1, f.metrics.ops["summary"])
}

func TestSummary_OpenDownRequestCountsElapsedDowntime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, models.LineRunning, models.MachineDown)
	f.clock.Advance(30 * time.Minute)

	summary, err := f.svc.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, int64(1), summary[0].OpenRequests)
	assert.Equal(t, int64(30), summary[0].TotalDowntimeMinutes)

	_, err = f.svc.UpdateStatus(ctx, r.ID.Hex(), StatusInput{MachineState: machineState(models.MachineUpNormal)})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	summary, err = f.svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(30), summary[0].TotalDowntimeMinutes)

	stored := f.store.requests[r.ID]
	assert.Equal(t, int64(30), stored.MachineDowntimeMinutes)
}

func TestCreate_WithoutComposer(t *testing.T) {
	f := newFixture(t)
	f.svc.composer = nil

	r := f.create(t, models.LineRunning, models.MachineDown)

	assert.NotNil(t, r)
	assert.Empty(t, f.notifier.events())
}
