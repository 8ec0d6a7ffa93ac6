package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/repository"
)

func newTestRegistry() *Registry {
	return New(repository.NewMemoryStore(), nil)
}

func TestRegister_IdempotentOnName(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	first, err := r.Register(ctx, "fraud", map[string]any{"team": "risk"})
	require.NoError(t, err)

	second, err := r.Register(ctx, "fraud", map[string]any{"team": "ignored"})
	require.NoError(t, err)

	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, "risk", second.Metadata["team"])
}

func TestRegister_RequiresName(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Register(context.Background(), "", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestAddVersion_MonotonicNumbers(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	_, err := r.Register(ctx, "fraud", nil)
	require.NoError(t, err)

	v1, err := r.AddVersion(ctx, "fraud", "artifact-1", nil)
	require.NoError(t, err)
	v2, err := r.AddVersion(ctx, "fraud", "artifact-2", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, v1.Number)
	assert.Equal(t, 2, v2.Number)
	assert.Equal(t, StageDraft, v1.Stage)
	assert.Equal(t, StageDraft, v2.Stage)
}

func TestAddVersion_UnknownModel(t *testing.T) {
	r := newTestRegistry()
	_, err := r.AddVersion(context.Background(), "missing", "a", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestTransition_ProductionSingleton(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	_, err := r.Register(ctx, "fraud", nil)
	require.NoError(t, err)
	_, err = r.AddVersion(ctx, "fraud", "a1", nil)
	require.NoError(t, err)
	_, err = r.AddVersion(ctx, "fraud", "a2", nil)
	require.NoError(t, err)

	_, err = r.Transition(ctx, "fraud", 1, StageProduction)
	require.NoError(t, err)
	m, err := r.Transition(ctx, "fraud", 2, StageProduction)
	require.NoError(t, err)

	production := 0
	for _, v := range m.Versions {
		if v.Stage == StageProduction {
			production++
		}
	}
	assert.Equal(t, 1, production, "exactly one production version")

	v1 := m.Versions[0]
	assert.Equal(t, StageArchived, v1.Stage, "previous occupant archived")

	cur, err := r.GetProduction(ctx, "fraud")
	require.NoError(t, err)
	assert.Equal(t, 2, cur.Number)
}

func TestTransition_StagingSingleton(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	_, err := r.Register(ctx, "churn", nil)
	require.NoError(t, err)
	for _, id := range []string{"a1", "a2", "a3"} {
		_, err = r.AddVersion(ctx, "churn", id, nil)
		require.NoError(t, err)
	}

	_, err = r.Transition(ctx, "churn", 1, StageStaging)
	require.NoError(t, err)
	_, err = r.Transition(ctx, "churn", 2, StageStaging)
	require.NoError(t, err)
	m, err := r.Transition(ctx, "churn", 3, StageStaging)
	require.NoError(t, err)

	staging := 0
	for _, v := range m.Versions {
		if v.Stage == StageStaging {
			staging++
		}
	}
	assert.Equal(t, 1, staging)
}

func TestTransition_UnknownStage(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	_, err := r.Register(ctx, "fraud", nil)
	require.NoError(t, err)
	_, err = r.AddVersion(ctx, "fraud", "a1", nil)
	require.NoError(t, err)

	_, err = r.Transition(ctx, "fraud", 1, Stage("shipped"))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestGetStage_NotFoundWhenEmpty(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	_, err := r.Register(ctx, "fraud", nil)
	require.NoError(t, err)

	_, err = r.GetProduction(ctx, "fraud")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestVersionsWhere_MatchesMetadata(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	_, err := r.Register(ctx, "fraud", nil)
	require.NoError(t, err)
	_, err = r.AddVersion(ctx, "fraud", "a1", map[string]any{"framework": "onnx"})
	require.NoError(t, err)
	_, err = r.AddVersion(ctx, "fraud", "a2", map[string]any{"framework": "script"})
	require.NoError(t, err)

	got, err := r.VersionsWhere(ctx, "fraud", "framework", "script")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Number)
}

func TestListNamesAndVersions(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	_, err := r.Register(ctx, "fraud", nil)
	require.NoError(t, err)
	_, err = r.Register(ctx, "churn", nil)
	require.NoError(t, err)
	_, err = r.AddVersion(ctx, "fraud", "a1", nil)
	require.NoError(t, err)

	names, err := r.ListNames(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 2)

	versions, err := r.ListVersions(ctx, "fraud")
	require.NoError(t, err)
	require.Len(t, versions, 1)

	// Mutating the returned slice must not leak into registry state.
	versions[0].Stage = StageProduction
	cur, err := r.ListVersions(ctx, "fraud")
	require.NoError(t, err)
	assert.Equal(t, StageDraft, cur[0].Stage)
}
