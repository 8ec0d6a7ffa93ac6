// Package services implements the domain service layer:
// per-aggregate services that validate input, load/construct the
// aggregate, invoke its invariant-enforcing operations, persist through the
// Repository, and publish the resulting events to the EventBus.
package services

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/cacheengine"
	"github.com/aerosuite/platform/internal/domain/customer"
	"github.com/aerosuite/platform/internal/eventbus"
	"github.com/aerosuite/platform/internal/repository"
)

// CustomerCreateInput is the validated shape of a create-customer request.
type CustomerCreateInput struct {
	Name     string `validate:"required"`
	Email    string `validate:"required,email"`
	Contacts []customer.Contact
	Address  string
}

// CustomerService enforces cross-aggregate Customer invariants, for
// example: unique email on create/update.
type CustomerService struct {
	repo     *repository.Repository[*customer.Customer]
	bus      *eventbus.Bus
	validate *validator.Validate
}

// NewCustomerService constructs a CustomerService.
func NewCustomerService(repo *repository.Repository[*customer.Customer], bus *eventbus.Bus) *CustomerService {
	return &CustomerService{repo: repo, bus: bus, validate: validator.New()}
}

// Create validates input, enforces email uniqueness, persists, and
// publishes CustomerCreated.
func (s *CustomerService) Create(ctx context.Context, input CustomerCreateInput) (*customer.Customer, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	taken, err := s.repo.Exists(ctx, repository.FieldEquals("email", input.Email))
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.Conflict("a customer with this email already exists")
	}

	cust, err := customer.New(input.Name, input.Email)
	if err != nil {
		return nil, err
	}
	cust.Address = input.Address
	for _, contact := range input.Contacts {
		if err := cust.AddContact(contact); err != nil {
			return nil, err
		}
	}

	saved, err := s.repo.Save(ctx, cust)
	if err != nil {
		return nil, err
	}
	s.bus.PublishAll(ctx, "customer-service", saved.PendingEvents())
	return saved, nil
}

// Get loads a Customer by id, raising notFound under the
// standardized policy.
func (s *CustomerService) Get(ctx context.Context, id string) (*customer.Customer, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns customers matching an optional status filter.
func (s *CustomerService) List(ctx context.Context, status string, opts repository.ListOptions) ([]*customer.Customer, []map[string]any, error) {
	filter := repository.NoFilter()
	if status != "" {
		filter = repository.FieldEquals("status", status)
	}
	return s.repo.FindAll(ctx, filter, opts)
}

// ChangeEmail validates uniqueness of the new email, applies the change,
// and persists.
func (s *CustomerService) ChangeEmail(ctx context.Context, id, newEmail string) (*customer.Customer, error) {
	cust, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cust.Email == newEmail {
		return cust, nil
	}

	taken, err := s.repo.Exists(ctx, repository.FieldEquals("email", newEmail))
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.Conflict("a customer with this email already exists")
	}

	if err := cust.ChangeEmail(newEmail); err != nil {
		return nil, err
	}

	saved, err := s.repo.Save(ctx, cust)
	if err != nil {
		return nil, err
	}
	s.bus.PublishAll(ctx, "customer-service", saved.PendingEvents())
	return saved, nil
}

// SetStatus activates or deactivates a customer and invalidates the
// status-faceted list cache.
func (s *CustomerService) SetStatus(ctx context.Context, id string, status customer.Status) (*customer.Customer, error) {
	cust, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch status {
	case customer.StatusActive:
		cust.Activate()
	case customer.StatusInactive:
		cust.Deactivate()
	default:
		return nil, apperrors.Validation("unknown customer status")
	}

	saved, err := s.repo.Save(ctx, cust, cacheengine.StatusTag("customers", string(status)))
	if err != nil {
		return nil, err
	}
	s.bus.PublishAll(ctx, "customer-service", saved.PendingEvents())
	return saved, nil
}

// Exists is used by other services (e.g. InspectionService) for the
// cross-reference existence check performed on inspection create.
func (s *CustomerService) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if e, ok := apperrors.As(err); ok && e.Kind == apperrors.KindNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Count reports how many customers match the optional status filter.
func (s *CustomerService) Count(ctx context.Context, status string) (int, error) {
	filter := repository.NoFilter()
	if status != "" {
		filter = repository.FieldEquals("status", status)
	}
	return s.repo.Count(ctx, filter)
}
