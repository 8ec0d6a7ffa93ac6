package services

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/cacheengine"
	"github.com/aerosuite/platform/internal/domain/component"
	"github.com/aerosuite/platform/internal/eventbus"
	"github.com/aerosuite/platform/internal/repository"
)

// ComponentCreateInput is the validated shape of a create-component
// request.
type ComponentCreateInput struct {
	Code string `validate:"required"`
	Name string `validate:"required"`
}

// ComponentService is the DomainService for the Component aggregate.
type ComponentService struct {
	repo     *repository.Repository[*component.Component]
	bus      *eventbus.Bus
	validate *validator.Validate
}

// NewComponentService constructs a ComponentService.
func NewComponentService(repo *repository.Repository[*component.Component], bus *eventbus.Bus) *ComponentService {
	return &ComponentService{repo: repo, bus: bus, validate: validator.New()}
}

// Create validates input and persists a new Component with its initial
// draft revision.
func (s *ComponentService) Create(ctx context.Context, input ComponentCreateInput) (*component.Component, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	taken, err := s.repo.Exists(ctx, repository.FieldEquals("code", input.Code))
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.Conflict("a component with this code already exists")
	}

	comp, err := component.New(input.Code, input.Name)
	if err != nil {
		return nil, err
	}
	saved, err := s.repo.Save(ctx, comp)
	if err != nil {
		return nil, err
	}
	s.bus.PublishAll(ctx, "component-service", saved.PendingEvents())
	return saved, nil
}

// Get loads a Component by id.
func (s *ComponentService) Get(ctx context.Context, id string) (*component.Component, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns components, optionally filtered by status.
func (s *ComponentService) List(ctx context.Context, status string, opts repository.ListOptions) ([]*component.Component, []map[string]any, error) {
	filter := repository.NoFilter()
	if status != "" {
		filter = repository.FieldEquals("status", status)
	}
	return s.repo.FindAll(ctx, filter, opts)
}

// AddRevision appends a new auto-incremented revision.
func (s *ComponentService) AddRevision(ctx context.Context, id, notes string) (*component.Component, error) {
	comp, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	comp.AddRevision(notes)

	saved, err := s.repo.Save(ctx, comp)
	if err != nil {
		return nil, err
	}
	s.bus.PublishAll(ctx, "component-service", saved.PendingEvents())
	return saved, nil
}

// ApproveRevision approves the identified revision, rejecting the call if
// the revision cannot legally transition to approved.
func (s *ComponentService) ApproveRevision(ctx context.Context, componentID, revisionID, approverID string) (*component.Component, error) {
	comp, err := s.repo.FindByID(ctx, componentID)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range comp.Revisions {
		if comp.Revisions[i].ID == revisionID {
			if err := comp.Revisions[i].Approve(approverID); err != nil {
				return nil, err
			}
			found = true
			break
		}
	}
	if !found {
		return nil, apperrors.NotFound("revision", revisionID)
	}
	comp.Touch()

	saved, err := s.repo.Save(ctx, comp)
	if err != nil {
		return nil, err
	}
	s.bus.PublishAll(ctx, "component-service", saved.PendingEvents())
	return saved, nil
}

// TransitionRevision moves a revision to a new non-approved status (draft,
// review, or obsolete); use ApproveRevision to reach approved, since that
// transition additionally requires an approver id.
func (s *ComponentService) TransitionRevision(ctx context.Context, componentID, revisionID string, target component.RevisionStatus) (*component.Component, error) {
	comp, err := s.repo.FindByID(ctx, componentID)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range comp.Revisions {
		if comp.Revisions[i].ID == revisionID {
			rev := &comp.Revisions[i]
			if !rev.CanTransitionTo(target) {
				return nil, apperrors.Validation("invalid revision transition")
			}
			if target == component.RevisionObsolete {
				rev.Obsolete()
			} else {
				rev.Status = target
			}
			found = true
			break
		}
	}
	if !found {
		return nil, apperrors.NotFound("revision", revisionID)
	}
	comp.Touch()

	saved, err := s.repo.Save(ctx, comp)
	if err != nil {
		return nil, err
	}
	s.bus.PublishAll(ctx, "component-service", saved.PendingEvents())
	return saved, nil
}

// SetStatus transitions the component's overall status.
func (s *ComponentService) SetStatus(ctx context.Context, id string, status component.Status) (*component.Component, error) {
	comp, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	comp.SetStatus(status)

	saved, err := s.repo.Save(ctx, comp, cacheengine.StatusTag("components", string(status)))
	if err != nil {
		return nil, err
	}
	s.bus.PublishAll(ctx, "component-service", saved.PendingEvents())
	return saved, nil
}

// Exists supports cross-reference checks (e.g. Inspection.componentId).
func (s *ComponentService) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if e, ok := apperrors.As(err); ok && e.Kind == apperrors.KindNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Count reports how many components match the optional status filter.
func (s *ComponentService) Count(ctx context.Context, status string) (int, error) {
	filter := repository.NoFilter()
	if status != "" {
		filter = repository.FieldEquals("status", status)
	}
	return s.repo.Count(ctx, filter)
}
