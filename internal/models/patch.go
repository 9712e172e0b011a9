package models

import (
	"fmt"
	"time"
)

// FieldValue assigns a new value to one declared attribute.
type FieldValue struct {
	Field Field
	Value any
}

// OrganizationPatch lists the organization attributes a client may change.
// The offices list is owned by office creation and deletion.
type OrganizationPatch struct {
	Name         *string   `json:"name,omitempty"`
	Type         *OrgType  `json:"type,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Contact      *[]string `json:"contact,omitempty"`
	Participants *[]string `json:"participants,omitempty"`
	Image        *string   `json:"image,omitempty"`
}

// Fields returns the assignments for every attribute present in the patch.
func (p *OrganizationPatch) Fields() ([]FieldValue, error) {
	var fv []FieldValue
	if p.Name != nil {
		if *p.Name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
		fv = append(fv, FieldValue{FieldName, *p.Name})
	}
	if p.Type != nil {
		if *p.Type != OrgTypeOpen && *p.Type != OrgTypeClosed {
			return nil, fmt.Errorf("%w: unknown organization type %q", ErrValidation, *p.Type)
		}
		fv = append(fv, FieldValue{FieldType, *p.Type})
	}
	if p.Description != nil {
		fv = append(fv, FieldValue{FieldDescription, *p.Description})
	}
	if p.Contact != nil {
		fv = append(fv, FieldValue{FieldContact, nonNil(*p.Contact)})
	}
	if p.Participants != nil {
		fv = append(fv, FieldValue{FieldParticipants, nonNil(*p.Participants)})
	}
	if p.Image != nil {
		fv = append(fv, FieldValue{FieldImage, *p.Image})
	}
	return fv, nil
}

// OfficePatch lists the office attributes a client may change. Capacity and
// occupancy are only moved by reservation transactions.
type OfficePatch struct {
	Type        *OfficeType `json:"type,omitempty"`
	Name        *string     `json:"name,omitempty"`
	Address     *string     `json:"address,omitempty"`
	Contact     *[]string   `json:"contact,omitempty"`
	Description *string     `json:"description,omitempty"`
	Image       *string     `json:"image,omitempty"`
}

// Fields returns the assignments for every attribute present in the patch.
func (p *OfficePatch) Fields() ([]FieldValue, error) {
	var fv []FieldValue
	if p.Type != nil {
		switch *p.Type {
		case OfficeTypeSimple, OfficeTypeNamed, OfficeTypeBlueprint:
		default:
			return nil, fmt.Errorf("%w: unknown office type %q", ErrValidation, *p.Type)
		}
		fv = append(fv, FieldValue{FieldType, *p.Type})
	}
	if p.Name != nil {
		if *p.Name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
		fv = append(fv, FieldValue{FieldName, *p.Name})
	}
	if p.Address != nil {
		fv = append(fv, FieldValue{FieldAddress, *p.Address})
	}
	if p.Contact != nil {
		fv = append(fv, FieldValue{FieldContact, nonNil(*p.Contact)})
	}
	if p.Description != nil {
		fv = append(fv, FieldValue{FieldDescription, *p.Description})
	}
	if p.Image != nil {
		fv = append(fv, FieldValue{FieldImage, *p.Image})
	}
	return fv, nil
}

// ReservationPatch lists the reservation attributes a client may change.
type ReservationPatch struct {
	FromTime    *time.Time `json:"fromTime,omitempty"`
	ToTime      *time.Time `json:"toTime,omitempty"`
	WorkspaceID *string    `json:"workspaceId,omitempty"`
}

// Fields returns the assignments for every attribute present in the patch.
// A window given in full must be ordered; use CheckWindow to validate a
// partial window against the stored reservation.
func (p *ReservationPatch) Fields() ([]FieldValue, error) {
	if p.FromTime != nil && p.ToTime != nil && !p.FromTime.Before(*p.ToTime) {
		return nil, fmt.Errorf("%w: fromTime must be before toTime", ErrValidation)
	}

	var fv []FieldValue
	if p.FromTime != nil {
		fv = append(fv, FieldValue{FieldFromTime, *p.FromTime})
	}
	if p.ToTime != nil {
		fv = append(fv, FieldValue{FieldToTime, *p.ToTime})
	}
	if p.WorkspaceID != nil {
		fv = append(fv, FieldValue{FieldWorkspaceID, *p.WorkspaceID})
	}
	return fv, nil
}

// CheckWindow reports whether applying the patch to r keeps fromTime before toTime.
func (p *ReservationPatch) CheckWindow(r *Reservation) error {
	from, to := r.FromTime, r.ToTime
	if p.FromTime != nil {
		from = *p.FromTime
	}
	if p.ToTime != nil {
		to = *p.ToTime
	}
	if !from.Before(to) {
		return fmt.Errorf("%w: fromTime must be before toTime", ErrValidation)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
