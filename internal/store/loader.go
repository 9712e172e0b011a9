package store

import (
	"context"
	"fmt"

	"github.com/wolfeidau/deskbook/internal/models"
)

// GetAll reads every document of a collection.
func GetAll[T any](ctx context.Context, docs DocumentStore, coll models.Collection) ([]*T, error) {
	items := []*T{}
	if err := docs.Scan(ctx, coll, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetByID reads one document, returning ErrNotFound if it is missing.
func GetByID[T any](ctx context.Context, docs DocumentStore, coll models.Collection, id string) (*T, error) {
	var item T
	if err := docs.Get(ctx, coll, id, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetByAttribute reads the documents whose indexed attribute equals value.
func GetByAttribute[T any](ctx context.Context, docs DocumentStore, coll models.Collection, field models.Field, value string) ([]*T, error) {
	if !models.HasIndex(coll, field) {
		return nil, fmt.Errorf("%w: %s.%s", ErrInvalidIndex, coll, field)
	}
	items := []*T{}
	if err := docs.QueryByIndex(ctx, coll, field, value, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Loader is the read path. It serves read requests and hydrates the target
// resource ahead of authorization and transactional writes. It enforces no
// invariants.
type Loader struct {
	docs DocumentStore
}

// NewLoader creates a loader reading from docs.
func NewLoader(docs DocumentStore) *Loader {
	return &Loader{docs: docs}
}

// Organizations returns every organization.
func (l *Loader) Organizations(ctx context.Context) ([]*models.Organization, error) {
	return GetAll[models.Organization](ctx, l.docs, models.CollectionOrganizations)
}

// Organization returns one organization, or ErrNotFound.
func (l *Loader) Organization(ctx context.Context, id string) (*models.Organization, error) {
	org, err := GetByID[models.Organization](ctx, l.docs, models.CollectionOrganizations, id)
	if err != nil {
		return nil, fmt.Errorf("organization %s: %w", id, err)
	}
	return org, nil
}

// Offices returns every office.
func (l *Loader) Offices(ctx context.Context) ([]*models.Office, error) {
	return GetAll[models.Office](ctx, l.docs, models.CollectionOffices)
}

// Office returns one office, or ErrNotFound.
func (l *Loader) Office(ctx context.Context, id string) (*models.Office, error) {
	office, err := GetByID[models.Office](ctx, l.docs, models.CollectionOffices, id)
	if err != nil {
		return nil, fmt.Errorf("office %s: %w", id, err)
	}
	return office, nil
}

// OfficesByOrganization queries offices through the organizationId index.
func (l *Loader) OfficesByOrganization(ctx context.Context, orgID string) ([]*models.Office, error) {
	return GetByAttribute[models.Office](ctx, l.docs, models.CollectionOffices, models.FieldOrganizationID, orgID)
}

// Reservations returns every reservation.
func (l *Loader) Reservations(ctx context.Context) ([]*models.Reservation, error) {
	return GetAll[models.Reservation](ctx, l.docs, models.CollectionReservations)
}

// Reservation returns one reservation, or ErrNotFound.
func (l *Loader) Reservation(ctx context.Context, id string) (*models.Reservation, error) {
	res, err := GetByID[models.Reservation](ctx, l.docs, models.CollectionReservations, id)
	if err != nil {
		return nil, fmt.Errorf("reservation %s: %w", id, err)
	}
	return res, nil
}

// ReservationsByOffice queries reservations through the officeId index.
func (l *Loader) ReservationsByOffice(ctx context.Context, officeID string) ([]*models.Reservation, error) {
	return GetByAttribute[models.Reservation](ctx, l.docs, models.CollectionReservations, models.FieldOfficeID, officeID)
}

// ReservationsByUser queries reservations through the user index.
func (l *Loader) ReservationsByUser(ctx context.Context, user string) ([]*models.Reservation, error) {
	return GetByAttribute[models.Reservation](ctx, l.docs, models.CollectionReservations, models.FieldUser, user)
}
