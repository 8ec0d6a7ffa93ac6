package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/cacheengine"
	"github.com/aerosuite/platform/internal/domain/customer"
	"github.com/aerosuite/platform/internal/eventbus"
	"github.com/aerosuite/platform/internal/repository"
	"github.com/aerosuite/platform/internal/services"
)

func newCustomerService() *services.CustomerService {
	repo := repository.New[*customer.Customer](
		"customers",
		repository.NewMemoryStore(),
		cacheengine.New(),
		repository.JSONCodec[*customer.Customer](func() *customer.Customer { return &customer.Customer{} }),
		nil,
	)
	return services.NewCustomerService(repo, eventbus.New())
}

func TestCustomerService_CreateSucceeds(t *testing.T) {
	svc := newCustomerService()
	cust, err := svc.Create(context.Background(), services.CustomerCreateInput{Name: "Acme", Email: "a@x.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, cust.ID)
	assert.Equal(t, customer.StatusActive, cust.Status)
}

func TestCustomerService_DuplicateEmailConflicts(t *testing.T) {
	svc := newCustomerService()
	ctx := context.Background()

	_, err := svc.Create(ctx, services.CustomerCreateInput{Name: "Acme", Email: "a@x.com"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, services.CustomerCreateInput{Name: "Acme Two", Email: "a@x.com"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestCustomerService_ChangeEmailRejectsDuplicate(t *testing.T) {
	svc := newCustomerService()
	ctx := context.Background()

	_, err := svc.Create(ctx, services.CustomerCreateInput{Name: "Acme", Email: "a@x.com"})
	require.NoError(t, err)
	second, err := svc.Create(ctx, services.CustomerCreateInput{Name: "Beta", Email: "b@x.com"})
	require.NoError(t, err)

	_, err = svc.ChangeEmail(ctx, second.ID, "a@x.com")
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestCustomerService_ExistsReflectsCreation(t *testing.T) {
	svc := newCustomerService()
	ctx := context.Background()

	ok, err := svc.Exists(ctx, "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)

	cust, err := svc.Create(ctx, services.CustomerCreateInput{Name: "Acme", Email: "a@x.com"})
	require.NoError(t, err)

	ok, err = svc.Exists(ctx, cust.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
