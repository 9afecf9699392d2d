package maintenance

import (
	"context"

	"github.com/ukydev/plant-maintenance/internal/apperr"
	"github.com/ukydev/plant-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100

	// keeps (page-1)*limit far from overflowing the skip offset
	maxPage = 1_000_000
)

// ListInput filters ListForSupervisor.
type ListInput struct {
	Status     string
	AssignedTo string
	Page       int
	Limit      int
}

// GetByID returns a request with both downtime figures computed now.
func (s *Service) GetByID(ctx context.Context, id string) (_ *models.MaintenanceRequest, err error) {
	defer s.observe("get", s.clock.Now(), &err)

	r, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	s.fillDowntime(r)
	return r, nil
}

// ListForSupervisor pages through requests newest first. Technicians only
// ever see requests assigned to themselves.
func (s *Service) ListForSupervisor(ctx context.Context, p *models.Principal, in ListInput) (_ *models.RequestPage, err error) {
	defer s.observe("list", s.clock.Now(), &err)

	if p == nil {
		return nil, apperr.Unauthorized("authentication required")
	}

	f := models.RequestFilter{Page: in.Page, Limit: in.Limit}
	if f.Page < 1 {
		f.Page = defaultPage
	}
	if f.Page > maxPage {
		return nil, apperr.Validation("page out of range", nil)
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if in.Status != "" {
		f.Status = models.LifecycleStatus(in.Status)
		if !models.IsValidLifecycleStatus(f.Status) {
			return nil, apperr.Validation("unknown lifecycle status "+in.Status, nil)
		}
	}

	assignedTo := in.AssignedTo
	if p.IsTechnician() {
		assignedTo = p.EmployeeID
	}
	if assignedTo != "" {
		oid, err := primitive.ObjectIDFromHex(assignedTo)
		if err != nil {
			return nil, apperr.Validation("invalid assignee id", err)
		}
		f.AssignedTo = &oid
	}

	items, total, err := s.requests.List(ctx, f)
	if err != nil {
		return nil, apperr.Internal("failed to list maintenance requests", err)
	}
	if items == nil {
		items = []models.MaintenanceRequest{}
	}
	for i := range items {
		s.fillDowntime(&items[i])
	}

	pages := total / int64(f.Limit)
	if total%int64(f.Limit) != 0 {
		pages++
	}
	return &models.RequestPage{
		Items: items,
		Pagination: models.Pagination{
			TotalItems:   total,
			TotalPages:   pages,
			CurrentPage:  f.Page,
			ItemsPerPage: f.Limit,
		},
	}, nil
}

// Summary aggregates downtime, open requests and cost per machine.
func (s *Service) Summary(ctx context.Context) (_ []models.MachineSummary, err error) {
	defer s.observe("summary", s.clock.Now(), &err)

	summary, err := s.requests.Summary(ctx, s.clock.Now())
	if err != nil {
		return nil, apperr.Internal("failed to build maintenance summary", err)
	}
	return summary, nil
}
