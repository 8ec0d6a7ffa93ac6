// Package inspection implements the Inspection aggregate: an
// aggregate root with items, defects, and a status lifecycle enforced by
// explicit transition methods rather than the source system's mutable
// markModified flag (see internal/domain/aggregate).
package inspection

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/domain/aggregate"
)

// Status is the Inspection lifecycle state.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var validTransitions = map[Status][]Status{
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusScheduled, StatusCompleted, StatusCancelled},
	StatusCancelled:  {StatusScheduled},
	StatusCompleted:  {}, // terminal
}

// ItemStatus is the status of one InspectionItem.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemPassed  ItemStatus = "passed"
	ItemFailed  ItemStatus = "failed"
	ItemNA      ItemStatus = "na"
)

// Item is a single checklist measurement within an Inspection.
type Item struct {
	ID         string
	Name       string
	Status     ItemStatus
	Value      float64
	Expected   *float64
	Tolerance  *float64
	Unit       string
}

// IsWithinTolerance reports whether Value is within Tolerance of Expected.
// It is vacuously true when either bound is unset.
func (i Item) IsWithinTolerance() bool {
	if i.Expected == nil || i.Tolerance == nil {
		return true
	}
	return math.Abs(*i.Expected-i.Value) <= *i.Tolerance
}

// DefectSeverity classifies a Defect's impact.
type DefectSeverity string

const (
	SeverityCritical DefectSeverity = "critical"
	SeverityMajor    DefectSeverity = "major"
	SeverityMinor    DefectSeverity = "minor"
	SeverityCosmetic DefectSeverity = "cosmetic"
)

// DefectStatus is the lifecycle state of a Defect.
type DefectStatus string

const (
	DefectOpen       DefectStatus = "open"
	DefectInProgress DefectStatus = "in-progress"
	DefectResolved   DefectStatus = "resolved"
	DefectClosed     DefectStatus = "closed"
	DefectRejected   DefectStatus = "rejected"
)

// Defect is a flaw recorded against an Inspection.
type Defect struct {
	ID          string
	Description string
	Severity    DefectSeverity
	Status      DefectStatus
}

// Close transitions a Defect to closed, which requires a prior
// resolved state.
func (d *Defect) Close() error {
	if d.Status != DefectResolved {
		return apperrors.Validation("defect must be resolved before it can be closed")
	}
	d.Status = DefectClosed
	return nil
}

// Reopen transitions a Defect back to open from resolved, closed, or
// rejected.
func (d *Defect) Reopen() error {
	switch d.Status {
	case DefectResolved, DefectClosed, DefectRejected:
		d.Status = DefectOpen
		return nil
	default:
		return apperrors.Validation(fmt.Sprintf("defect cannot be reopened from status %q", d.Status))
	}
}

// Inspection is the aggregate root.
type Inspection struct {
	aggregate.Root

	Title           string
	Description     string
	CustomerID      string
	SupplierID      string
	ComponentID     string
	Status          Status
	ScheduledDate   time.Time
	CompletedDate   *time.Time
	InspectorID     string
	Location        string
	InspectionType  string
	Items           []Item
	Defects         []Defect
	Attachments     []string
}

// New validates required fields and constructs a scheduled Inspection.
func New(title string, scheduledDate time.Time, customerID, supplierID string) (*Inspection, error) {
	if title == "" {
		return nil, apperrors.Validation("title is required")
	}
	if scheduledDate.IsZero() {
		return nil, apperrors.Validation("scheduledDate is required")
	}
	if customerID == "" && supplierID == "" {
		return nil, apperrors.Validation("at least one of customerId or supplierId is required")
	}

	now := time.Now()
	insp := &Inspection{
		Root: aggregate.Root{
			ID:        uuid.NewString(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Title:         title,
		CustomerID:    customerID,
		SupplierID:    supplierID,
		ScheduledDate: scheduledDate,
		Status:        StatusScheduled,
	}
	insp.Record("InspectionCreated", map[string]any{
		"id":         insp.ID,
		"title":      title,
		"customerId": customerID,
		"supplierId": supplierID,
	})
	return insp, nil
}

// CanTransitionTo reports whether the status transition is legal.
func (i *Inspection) CanTransitionTo(target Status) bool {
	for _, s := range validTransitions[i.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// TransitionTo validates and applies a status change, appending the
// appropriate domain event.
func (i *Inspection) TransitionTo(target Status) error {
	if i.Status == target {
		return nil
	}
	if !i.CanTransitionTo(target) {
		return apperrors.Validation(fmt.Sprintf("invalid transition from %q to %q", i.Status, target))
	}
	if target == StatusCompleted {
		now := time.Now()
		i.CompletedDate = &now
	}
	i.Status = target
	i.Touch()
	i.Record("InspectionStatusChanged", map[string]any{"id": i.ID, "status": string(target)})
	return nil
}

// AddItem appends a checklist item.
func (i *Inspection) AddItem(item Item) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	i.Items = append(i.Items, item)
	i.Touch()
}

// AddDefect appends a defect finding.
func (i *Inspection) AddDefect(d Defect) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DefectOpen
	}
	i.Defects = append(i.Defects, d)
	i.Touch()
	i.Record("DefectRecorded", map[string]any{"inspectionId": i.ID, "defectId": d.ID, "severity": string(d.Severity)})
}

// CompletionPercentage is the fraction of items not pending, as a 0-100
// value.
func (i *Inspection) CompletionPercentage() float64 {
	if len(i.Items) == 0 {
		return 0
	}
	completed := 0
	for _, item := range i.Items {
		if item.Status != ItemPending {
			completed++
		}
	}
	return math.Round(float64(completed) / float64(len(i.Items)) * 10000) / 100
}
