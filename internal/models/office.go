package models

import "fmt"

// OfficeType describes how an office is booked.
type OfficeType string

const (
	OfficeTypeSimple    OfficeType = "simple"
	OfficeTypeNamed     OfficeType = "named" // reservations target a named workspace
	OfficeTypeBlueprint OfficeType = "blueprint"
)

// Office is a bookable space belonging to exactly one Organization.
// Occupied is maintained by the transactional store and never exceeds Capacity.
type Office struct {
	ID             string     `json:"id" dynamodbav:"id"`
	OrganizationID string     `json:"organizationId" dynamodbav:"organizationId"`
	Type           OfficeType `json:"type" dynamodbav:"type"`
	Name           string     `json:"name" dynamodbav:"name"`
	Address        string     `json:"address" dynamodbav:"address"`
	Contact        []string   `json:"contact" dynamodbav:"contact"`
	Description    string     `json:"description" dynamodbav:"description"`
	Capacity       int        `json:"capacity" dynamodbav:"capacity"`
	Occupied       int        `json:"occupied" dynamodbav:"occupied"`
	Image          string     `json:"image,omitempty" dynamodbav:"image,omitempty"`
}

func (o *Office) DocumentID() string    { return o.ID }
func (o *Office) ResourceKind() string  { return "office" }
func (o *Office) ContactList() []string { return o.Contact }

// Available reports the number of free places according to this snapshot.
func (o *Office) Available() int {
	return max(o.Capacity-o.Occupied, 0)
}

// PrepareCreate normalises a new office before it is stored.
func (o *Office) PrepareCreate() error {
	if o.ID == "" {
		o.ID = NewID()
	}
	o.Occupied = 0
	if o.Contact == nil {
		o.Contact = []string{}
	}

	var errs []string
	if o.OrganizationID == "" {
		errs = append(errs, "organizationId is required")
	}
	if o.Name == "" {
		errs = append(errs, "name is required")
	}
	switch o.Type {
	case OfficeTypeSimple, OfficeTypeNamed, OfficeTypeBlueprint:
	default:
		errs = append(errs, fmt.Sprintf("type must be one of %q, %q, %q", OfficeTypeSimple, OfficeTypeNamed, OfficeTypeBlueprint))
	}
	if o.Capacity < 0 {
		errs = append(errs, "capacity must not be negative")
	}
	return validationError(errs)
}
