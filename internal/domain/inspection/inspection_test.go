package inspection_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/domain/inspection"
)

func TestNew_RequiresTitleScheduledDateAndParty(t *testing.T) {
	_, err := inspection.New("", time.Now(), "C1", "")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = inspection.New("T1", time.Time{}, "C1", "")
	require.Error(t, err)

	_, err = inspection.New("T1", time.Now(), "", "")
	require.Error(t, err)
}

func TestNew_CreatesScheduledInspectionWithEvent(t *testing.T) {
	insp, err := inspection.New("T1", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), "C1", "")
	require.NoError(t, err)
	assert.Equal(t, inspection.StatusScheduled, insp.Status)
	assert.Equal(t, float64(0), insp.CompletionPercentage())

	evts := insp.PendingEvents()
	require.Len(t, evts, 1)
	assert.Equal(t, "InspectionCreated", evts[0].Type)
}

func TestTransitionTo_RejectsCompletedFromCancelled(t *testing.T) {
	insp, err := inspection.New("T1", time.Now(), "C1", "")
	require.NoError(t, err)
	require.NoError(t, insp.TransitionTo(inspection.StatusCancelled))
	insp.PendingEvents()

	err = insp.TransitionTo(inspection.StatusCompleted)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Equal(t, inspection.StatusCancelled, insp.Status)
}

func TestTransitionTo_CancelledCanReturnToScheduled(t *testing.T) {
	insp, err := inspection.New("T1", time.Now(), "C1", "")
	require.NoError(t, err)
	require.NoError(t, insp.TransitionTo(inspection.StatusCancelled))
	require.NoError(t, insp.TransitionTo(inspection.StatusScheduled))
	assert.Equal(t, inspection.StatusScheduled, insp.Status)
}

func TestTransitionTo_CompletedIsTerminal(t *testing.T) {
	insp, err := inspection.New("T1", time.Now(), "C1", "")
	require.NoError(t, err)
	require.NoError(t, insp.TransitionTo(inspection.StatusInProgress))
	require.NoError(t, insp.TransitionTo(inspection.StatusCompleted))
	require.NotNil(t, insp.CompletedDate)

	assert.False(t, insp.CanTransitionTo(inspection.StatusInProgress))
	assert.False(t, insp.CanTransitionTo(inspection.StatusScheduled))
}

func TestCompletionPercentage_CountsNonPendingItems(t *testing.T) {
	insp, err := inspection.New("T1", time.Now(), "C1", "")
	require.NoError(t, err)
	insp.AddItem(inspection.Item{Name: "i1", Status: inspection.ItemPassed})
	insp.AddItem(inspection.Item{Name: "i2", Status: inspection.ItemPending})

	assert.Equal(t, float64(50), insp.CompletionPercentage())
}

func TestItem_IsWithinTolerance(t *testing.T) {
	expected, tol := 10.0, 0.5
	item := inspection.Item{Value: 10.4, Expected: &expected, Tolerance: &tol}
	assert.True(t, item.IsWithinTolerance())

	item.Value = 11.0
	assert.False(t, item.IsWithinTolerance())
}

func TestDefect_CloseRequiresResolved(t *testing.T) {
	d := inspection.Defect{Status: inspection.DefectOpen}
	err := d.Close()
	require.Error(t, err)

	d.Status = inspection.DefectResolved
	require.NoError(t, d.Close())
	assert.Equal(t, inspection.DefectClosed, d.Status)
}

func TestDefect_ReopenFromTerminalStates(t *testing.T) {
	for _, start := range []inspection.DefectStatus{inspection.DefectResolved, inspection.DefectClosed, inspection.DefectRejected} {
		d := inspection.Defect{Status: start}
		require.NoError(t, d.Reopen())
		assert.Equal(t, inspection.DefectOpen, d.Status)
	}

	d := inspection.Defect{Status: inspection.DefectOpen}
	assert.Error(t, d.Reopen())
}
