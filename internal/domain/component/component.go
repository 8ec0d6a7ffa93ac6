// Package component implements the Component aggregate:
// revisions with semantic versioning and approval workflow, specifications
// with numeric tolerance checks, and typed relationships to other
// components.
package component

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/domain/aggregate"
)

// Status is the Component lifecycle state.
type Status string

const (
	StatusActive       Status = "active"
	StatusObsolete     Status = "obsolete"
	StatusDevelopment  Status = "development"
	StatusDiscontinued Status = "discontinued"
)

// RevisionStatus is the lifecycle state of a Revision.
type RevisionStatus string

const (
	RevisionDraft    RevisionStatus = "draft"
	RevisionReview   RevisionStatus = "review"
	RevisionApproved RevisionStatus = "approved"
	RevisionObsolete RevisionStatus = "obsolete"
)

var revisionTransitions = map[RevisionStatus][]RevisionStatus{
	RevisionDraft:    {RevisionReview, RevisionObsolete},
	RevisionReview:   {RevisionDraft, RevisionApproved, RevisionObsolete},
	RevisionApproved: {RevisionObsolete},
	RevisionObsolete: {},
}

// SemVer is a X.Y.Z semantic version with the patch field rolling over at
// 10 on revision auto-increment.
type SemVer struct {
	Major, Minor, Patch int
}

func (v SemVer) String() string { return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch) }

// NextPatch increments the patch component, rolling into Minor at 10.
func (v SemVer) NextPatch() SemVer {
	v.Patch++
	if v.Patch >= 10 {
		v.Patch = 0
		v.Minor++
	}
	return v
}

// Revision is a versioned document/state snapshot of a Component.
type Revision struct {
	ID           string
	Version      SemVer
	Status       RevisionStatus
	Notes        string
	ApproverID   string
	ApprovedDate *time.Time
}

// CanTransitionTo reports whether the revision status transition is legal.
func (r *Revision) CanTransitionTo(target RevisionStatus) bool {
	for _, s := range revisionTransitions[r.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// Approve transitions a Revision to approved, recording the approver and
// freezing further edits.
func (r *Revision) Approve(approverID string) error {
	if !r.CanTransitionTo(RevisionApproved) {
		return apperrors.Validation(fmt.Sprintf("revision cannot be approved from status %q", r.Status))
	}
	if approverID == "" {
		return apperrors.Validation("approverId is required to approve a revision")
	}
	now := time.Now()
	r.Status = RevisionApproved
	r.ApproverID = approverID
	r.ApprovedDate = &now
	return nil
}

// Obsolete marks a revision obsolete from any non-terminal status.
func (r *Revision) Obsolete() {
	r.Status = RevisionObsolete
}

// Editable reports whether the revision still accepts edits (not yet
// approved).
func (r *Revision) Editable() bool { return r.Status != RevisionApproved && r.Status != RevisionObsolete }

// Specification is a named characteristic, optionally numeric with an
// expected value/tolerance/range.
type Specification struct {
	Name         string
	Unit         string
	ExpectedValue *float64
	Tolerance    *float64
	MinValue     *float64
	MaxValue     *float64
	Value        *float64
}

// Validate enforces the numeric invariants: min <= max, tolerance
// >= 0, and value within [min,max] when every numeric field is present.
func (s Specification) Validate() error {
	if s.Name == "" {
		return apperrors.Validation("specification name is required")
	}
	if s.MinValue != nil && s.MaxValue != nil && *s.MinValue > *s.MaxValue {
		return apperrors.Validation("specification minValue must be <= maxValue")
	}
	if s.Tolerance != nil && *s.Tolerance < 0 {
		return apperrors.Validation("specification tolerance must be >= 0")
	}
	if s.MinValue != nil && s.MaxValue != nil && s.Value != nil {
		if *s.Value < *s.MinValue || *s.Value > *s.MaxValue {
			return apperrors.Validation("specification value out of [minValue,maxValue] range")
		}
	}
	return nil
}

// RelationType classifies a relationship between two components.
type RelationType string

const (
	RelationParent   RelationType = "parent"
	RelationChild    RelationType = "child"
	RelationSibling  RelationType = "sibling"
	RelationAssembly RelationType = "assembly"
	RelationPart     RelationType = "part"
)

// Relation is a typed, directed link to another Component.
type Relation struct {
	ComponentID string
	Type        RelationType
}

// Component is the aggregate root.
type Component struct {
	aggregate.Root

	Code               string
	Name               string
	Status             Status
	Specifications     []Specification
	Revisions          []Revision
	Documents          []string
	RelatedComponents  []Relation
}

// New validates required fields and constructs a Component in development
// status with an initial 1.0.0 draft revision.
func New(code, name string) (*Component, error) {
	if code == "" || name == "" {
		return nil, apperrors.Validation("code and name are required")
	}
	now := time.Now()
	c := &Component{
		Root: aggregate.Root{
			ID:        uuid.NewString(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Code:   code,
		Name:   name,
		Status: StatusDevelopment,
	}
	c.Revisions = append(c.Revisions, Revision{
		ID:      uuid.NewString(),
		Version: SemVer{Major: 1, Minor: 0, Patch: 0},
		Status:  RevisionDraft,
	})
	c.Record("ComponentCreated", map[string]any{"id": c.ID, "code": code, "name": name})
	return c, nil
}

// LatestRevision returns the most recently added revision.
func (c *Component) LatestRevision() *Revision {
	if len(c.Revisions) == 0 {
		return nil
	}
	return &c.Revisions[len(c.Revisions)-1]
}

// AddRevision appends a new draft revision, auto-incrementing the patch
// component of the latest revision's version (rolling into minor at 10).
func (c *Component) AddRevision(notes string) Revision {
	next := SemVer{Major: 1, Minor: 0, Patch: 0}
	if latest := c.LatestRevision(); latest != nil {
		next = latest.Version.NextPatch()
	}
	rev := Revision{
		ID:      uuid.NewString(),
		Version: next,
		Status:  RevisionDraft,
		Notes:   notes,
	}
	c.Revisions = append(c.Revisions, rev)
	c.Touch()
	c.Record("ComponentRevisionAdded", map[string]any{"id": c.ID, "version": next.String()})
	return rev
}

// AddSpecification validates and appends a Specification.
func (c *Component) AddSpecification(spec Specification) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	c.Specifications = append(c.Specifications, spec)
	c.Touch()
	return nil
}

// AddRelation appends a typed relationship, rejecting duplicates per
// duplicates rejected.
func (c *Component) AddRelation(rel Relation) error {
	for _, existing := range c.RelatedComponents {
		if existing.ComponentID == rel.ComponentID && existing.Type == rel.Type {
			return apperrors.Conflict("relation already exists")
		}
	}
	c.RelatedComponents = append(c.RelatedComponents, rel)
	c.Touch()
	return nil
}

// SetStatus transitions the component's own status (not a Revision's).
func (c *Component) SetStatus(status Status) {
	c.Status = status
	c.Touch()
	c.Record("ComponentStatusChanged", map[string]any{"id": c.ID, "status": string(status)})
}
