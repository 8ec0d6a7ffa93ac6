// Package customer implements the Customer aggregate: a
// unique-email root with contacts that each require an email or phone.
package customer

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/domain/aggregate"
)

// Status is the Customer lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Contact is a point of contact at the customer; at least one of Email or
// Phone is required.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Validate requires a contact to carry an email or a phone number.
func (c Contact) Validate() error {
	if c.Email == "" && c.Phone == "" {
		return apperrors.Validation("contact must have an email or phone")
	}
	return nil
}

// Customer is the aggregate root.
type Customer struct {
	aggregate.Root

	Name     string
	Email    string
	Status   Status
	Contacts []Contact
	Address  string
}

// New validates required fields and constructs an active Customer. Email
// uniqueness is a cross-aggregate invariant the DomainService enforces via
// the Repository, not here.
func New(name, email string) (*Customer, error) {
	if name == "" {
		return nil, apperrors.Validation("name is required")
	}
	if !looksLikeEmail(email) {
		return nil, apperrors.Validation("a valid email is required")
	}
	now := time.Now()
	cust := &Customer{
		Root: aggregate.Root{
			ID:        uuid.NewString(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Name:   name,
		Email:  strings.ToLower(email),
		Status: StatusActive,
	}
	cust.Record("CustomerCreated", map[string]any{"id": cust.ID, "email": cust.Email})
	return cust, nil
}

func looksLikeEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	return at > 0 && at < len(s)-1
}

// ChangeEmail updates the email address; uniqueness is enforced by the
// caller via the Repository before this is invoked.
func (c *Customer) ChangeEmail(email string) error {
	if !looksLikeEmail(email) {
		return apperrors.Validation("a valid email is required")
	}
	c.Email = strings.ToLower(email)
	c.Touch()
	c.Record("CustomerEmailChanged", map[string]any{"id": c.ID, "email": c.Email})
	return nil
}

// AddContact validates and appends a Contact.
func (c *Customer) AddContact(contact Contact) error {
	if err := contact.Validate(); err != nil {
		return err
	}
	c.Contacts = append(c.Contacts, contact)
	c.Touch()
	return nil
}

// Deactivate transitions the customer to inactive.
func (c *Customer) Deactivate() {
	c.Status = StatusInactive
	c.Touch()
	c.Record("CustomerDeactivated", map[string]any{"id": c.ID})
}

// Activate transitions the customer to active.
func (c *Customer) Activate() {
	c.Status = StatusActive
	c.Touch()
	c.Record("CustomerActivated", map[string]any{"id": c.ID})
}
