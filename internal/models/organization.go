package models

import (
	"fmt"
	"slices"
)

// OrgType distinguishes coworking spaces from companies.
type OrgType string

const (
	OrgTypeOpen   OrgType = "open"   // coworking space
	OrgTypeClosed OrgType = "closed" // company
)

// Organization is a tenant owning a set of offices.
// Every id in Offices references an Office whose OrganizationID is this ID.
type Organization struct {
	ID           string   `json:"id" dynamodbav:"id"`
	Name         string   `json:"name" dynamodbav:"name"`
	Type         OrgType  `json:"type" dynamodbav:"type"`
	Description  string   `json:"description" dynamodbav:"description"`
	Contact      []string `json:"contact" dynamodbav:"contact"`
	Participants []string `json:"participants" dynamodbav:"participants"`
	Offices      []string `json:"offices" dynamodbav:"offices"`
	Image        string   `json:"image,omitempty" dynamodbav:"image,omitempty"`
}

func (o *Organization) DocumentID() string    { return o.ID }
func (o *Organization) ResourceKind() string  { return "organization" }
func (o *Organization) ContactList() []string { return o.Contact }

// OfficeIndex returns the position of officeID in the offices list, or -1.
func (o *Organization) OfficeIndex(officeID string) int {
	return slices.Index(o.Offices, officeID)
}

// PrepareCreate normalises a new organization before it is stored.
func (o *Organization) PrepareCreate() error {
	if o.ID == "" {
		o.ID = NewID()
	}
	// offices is owned by office creation/deletion, never by the client
	o.Offices = []string{}
	if o.Contact == nil {
		o.Contact = []string{}
	}
	if o.Participants == nil {
		o.Participants = []string{}
	}
	return o.validate()
}

func (o *Organization) validate() error {
	var errs []string
	if o.Name == "" {
		errs = append(errs, "name is required")
	}
	switch o.Type {
	case OrgTypeOpen, OrgTypeClosed:
	default:
		errs = append(errs, fmt.Sprintf("type must be one of %q, %q", OrgTypeOpen, OrgTypeClosed))
	}
	return validationError(errs)
}
