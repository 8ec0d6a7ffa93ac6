package services

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/cacheengine"
	"github.com/aerosuite/platform/internal/domain/inspection"
	"github.com/aerosuite/platform/internal/eventbus"
	"github.com/aerosuite/platform/internal/repository"
)

// ExistenceChecker is the minimal cross-reference contract InspectionService
// needs from CustomerService (and, if modeled, a SupplierService) to
// enforce the rule that the supplier/customer must exist on inspection
// create".
type ExistenceChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// InspectionCreateInput is the validated shape of a create-inspection
// request.
type InspectionCreateInput struct {
	Title         string `validate:"required"`
	Description   string
	CustomerID    string
	SupplierID    string
	ComponentID   string
	ScheduledDate time.Time `validate:"required"`
	Location      string
	InspectorID   string
	InspectionType string
}

// InspectionService is the DomainService for the Inspection aggregate.
type InspectionService struct {
	repo       *repository.Repository[*inspection.Inspection]
	bus        *eventbus.Bus
	customers  ExistenceChecker
	suppliers  ExistenceChecker // nil-safe: no Supplier aggregate is modeled to check against
	validate   *validator.Validate
}

// NewInspectionService constructs an InspectionService. suppliers may be
// nil; its existence check is then skipped.
func NewInspectionService(repo *repository.Repository[*inspection.Inspection], bus *eventbus.Bus, customers, suppliers ExistenceChecker) *InspectionService {
	return &InspectionService{repo: repo, bus: bus, customers: customers, suppliers: suppliers, validate: validator.New()}
}

// Create validates input, checks the customer/supplier cross-references,
// persists, and publishes InspectionCreated.
func (s *InspectionService) Create(ctx context.Context, input InspectionCreateInput) (*inspection.Inspection, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	if input.CustomerID != "" && s.customers != nil {
		ok, err := s.customers.Exists(ctx, input.CustomerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.Validation("customerId does not reference an existing customer")
		}
	}
	if input.SupplierID != "" && s.suppliers != nil {
		ok, err := s.suppliers.Exists(ctx, input.SupplierID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.Validation("supplierId does not reference an existing supplier")
		}
	}

	insp, err := inspection.New(input.Title, input.ScheduledDate, input.CustomerID, input.SupplierID)
	if err != nil {
		return nil, err
	}
	insp.Description = input.Description
	insp.ComponentID = input.ComponentID
	insp.Location = input.Location
	insp.InspectorID = input.InspectorID
	insp.InspectionType = input.InspectionType

	saved, err := s.repo.Save(ctx, insp)
	if err != nil {
		return nil, err
	}
	s.bus.PublishAll(ctx, "inspection-service", saved.PendingEvents())
	return saved, nil
}

// Get loads an Inspection by id.
func (s *InspectionService) Get(ctx context.Context, id string) (*inspection.Inspection, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns inspections, optionally filtered by status.
func (s *InspectionService) List(ctx context.Context, status string, opts repository.ListOptions) ([]*inspection.Inspection, []map[string]any, error) {
	filter := repository.NoFilter()
	if status != "" {
		filter = repository.FieldEquals("status", status)
	}
	return s.repo.FindAll(ctx, filter, opts)
}

// ChangeStatus validates and applies a status transition, persisting only
// on success so a rejected transition leaves the aggregate unchanged.
func (s *InspectionService) ChangeStatus(ctx context.Context, id string, target inspection.Status) (*inspection.Inspection, error) {
	insp, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := insp.TransitionTo(target); err != nil {
		return nil, err
	}

	saved, err := s.repo.Save(ctx, insp, cacheengine.StatusTag("inspections", string(target)))
	if err != nil {
		return nil, err
	}
	s.bus.PublishAll(ctx, "inspection-service", saved.PendingEvents())
	return saved, nil
}

// RecordDefect appends a defect finding to an Inspection and persists it.
func (s *InspectionService) RecordDefect(ctx context.Context, id string, defect inspection.Defect) (*inspection.Inspection, error) {
	insp, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	insp.AddDefect(defect)

	saved, err := s.repo.Save(ctx, insp)
	if err != nil {
		return nil, err
	}
	s.bus.PublishAll(ctx, "inspection-service", saved.PendingEvents())
	return saved, nil
}

// Count reports how many inspections match the optional status filter,
// driving list pagination totals.
func (s *InspectionService) Count(ctx context.Context, status string) (int, error) {
	filter := repository.NoFilter()
	if status != "" {
		filter = repository.FieldEquals("status", status)
	}
	return s.repo.Count(ctx, filter)
}
