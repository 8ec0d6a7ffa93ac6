package component_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosuite/platform/internal/domain/component"
)

func TestNew_RequiresCodeAndName(t *testing.T) {
	_, err := component.New("", "name")
	require.Error(t, err)
	_, err = component.New("code", "")
	require.Error(t, err)
}

func TestNew_StartsWithDraftRevision(t *testing.T) {
	c, err := component.New("C-1", "Widget")
	require.NoError(t, err)
	require.Len(t, c.Revisions, 1)
	assert.Equal(t, "1.0.0", c.Revisions[0].Version.String())
	assert.Equal(t, component.RevisionDraft, c.Revisions[0].Status)
}

func TestSemVer_NextPatchRollsOverAtTen(t *testing.T) {
	v := component.SemVer{Major: 1, Minor: 0, Patch: 9}
	next := v.NextPatch()
	assert.Equal(t, "1.1.0", next.String())
}

func TestAddRevision_AutoIncrementsFromLatest(t *testing.T) {
	c, err := component.New("C-1", "Widget")
	require.NoError(t, err)
	rev := c.AddRevision("second pass")
	assert.Equal(t, "1.0.1", rev.Version.String())
}

func TestRevision_ApproveRequiresApproverAndFreezesEdits(t *testing.T) {
	rev := component.Revision{Status: component.RevisionReview}
	err := rev.Approve("")
	require.Error(t, err)

	require.NoError(t, rev.Approve("approver-1"))
	assert.Equal(t, component.RevisionApproved, rev.Status)
	assert.NotNil(t, rev.ApprovedDate)
	assert.False(t, rev.Editable())
}

func TestSpecification_ValidateRange(t *testing.T) {
	min, max, tol, val := 0.0, 10.0, 1.0, 5.0
	spec := component.Specification{Name: "torque", MinValue: &min, MaxValue: &max, Tolerance: &tol, Value: &val}
	assert.NoError(t, spec.Validate())

	bad := 20.0
	spec.Value = &bad
	assert.Error(t, spec.Validate())

	negTol := -1.0
	spec.Value = &val
	spec.Tolerance = &negTol
	assert.Error(t, spec.Validate())
}

func TestAddRelation_RejectsDuplicates(t *testing.T) {
	c, err := component.New("C-1", "Widget")
	require.NoError(t, err)

	require.NoError(t, c.AddRelation(component.Relation{ComponentID: "C-2", Type: component.RelationChild}))
	err = c.AddRelation(component.Relation{ComponentID: "C-2", Type: component.RelationChild})
	assert.Error(t, err)
}
