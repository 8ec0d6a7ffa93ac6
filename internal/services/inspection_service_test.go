package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/cacheengine"
	"github.com/aerosuite/platform/internal/domain/inspection"
	"github.com/aerosuite/platform/internal/eventbus"
	"github.com/aerosuite/platform/internal/repository"
	"github.com/aerosuite/platform/internal/services"
)

type fakeChecker struct{ ids map[string]bool }

func (f fakeChecker) Exists(ctx context.Context, id string) (bool, error) { return f.ids[id], nil }

func newInspectionService(customers services.ExistenceChecker) *services.InspectionService {
	repo := repository.New[*inspection.Inspection](
		"inspections",
		repository.NewMemoryStore(),
		cacheengine.New(),
		repository.JSONCodec[*inspection.Inspection](func() *inspection.Inspection { return &inspection.Inspection{} }),
		nil,
	)
	return services.NewInspectionService(repo, eventbus.New(), customers, nil)
}

func TestInspectionService_CreateSucceedsWhenCustomerExists(t *testing.T) {
	svc := newInspectionService(fakeChecker{ids: map[string]bool{"C1": true}})
	insp, err := svc.Create(context.Background(), services.InspectionCreateInput{
		Title:         "T1",
		ScheduledDate: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		CustomerID:    "C1",
	})
	require.NoError(t, err)
	assert.Equal(t, inspection.StatusScheduled, insp.Status)
	assert.Equal(t, float64(0), insp.CompletionPercentage())
}

func TestInspectionService_CreateRejectsUnknownCustomer(t *testing.T) {
	svc := newInspectionService(fakeChecker{ids: map[string]bool{}})
	_, err := svc.Create(context.Background(), services.InspectionCreateInput{
		Title:         "T1",
		ScheduledDate: time.Now(),
		CustomerID:    "C404",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestInspectionService_ChangeStatusRejectsInvalidTransition(t *testing.T) {
	svc := newInspectionService(fakeChecker{ids: map[string]bool{"C1": true}})
	ctx := context.Background()

	insp, err := svc.Create(ctx, services.InspectionCreateInput{
		Title: "T1", ScheduledDate: time.Now(), CustomerID: "C1",
	})
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, insp.ID, inspection.StatusCancelled)
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, insp.ID, inspection.StatusCompleted)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	reloaded, err := svc.Get(ctx, insp.ID)
	require.NoError(t, err)
	assert.Equal(t, inspection.StatusCancelled, reloaded.Status)
}

func TestInspectionService_RecordDefectPersists(t *testing.T) {
	svc := newInspectionService(fakeChecker{ids: map[string]bool{"C1": true}})
	ctx := context.Background()

	insp, err := svc.Create(ctx, services.InspectionCreateInput{
		Title: "T1", ScheduledDate: time.Now(), CustomerID: "C1",
	})
	require.NoError(t, err)

	_, err = svc.RecordDefect(ctx, insp.ID, inspection.Defect{Description: "crack", Severity: inspection.SeverityMajor})
	require.NoError(t, err)

	reloaded, err := svc.Get(ctx, insp.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Defects, 1)
	assert.Equal(t, inspection.SeverityMajor, reloaded.Defects[0].Severity)
}
