package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/deskbook/internal/models"
	"github.com/wolfeidau/deskbook/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// TransactionalStore performs the compound cross-collection mutations.
//
// Every operation is split in two phases: a read phase that loads whatever
// is needed and produces a plan (the full list of conditional writes), and a
// commit phase that submits that plan as one atomic batch. Nothing read in
// the first phase is trusted at commit; every invariant is re-checked by a
// precondition evaluated by the store. Conflicts are returned to the caller
// without retrying.
type TransactionalStore struct {
	docs    DocumentStore
	loader  *Loader
	metrics *telemetry.Metrics
}

// NewTransactionalStore creates a transactional store on top of docs.
func NewTransactionalStore(docs DocumentStore) *TransactionalStore {
	return &TransactionalStore{
		docs:    docs,
		loader:  NewLoader(docs),
		metrics: telemetry.GetMetrics(),
	}
}

// plan is the output of a read phase.
type plan struct {
	op     string
	writes []Write
}

// commit is the only place a plan reaches the store.
func (s *TransactionalStore) commit(ctx context.Context, p plan) error {
	if err := ValidateBatch(p.writes); err != nil {
		return fmt.Errorf("%s: %w", p.op, err)
	}

	if err := s.docs.AtomicBatch(ctx, p.writes); err != nil {
		return fmt.Errorf("%s: %w", p.op, err)
	}

	log.Debug().Str("op", p.op).Int("writes", len(p.writes)).Msg("transaction committed")
	return nil
}

// CreateOrganization stores a new organization. The id must be unused.
func (s *TransactionalStore) CreateOrganization(ctx context.Context, org *models.Organization) (err error) {
	defer s.observe(ctx, "create_organization", time.Now(), &err)

	if err := s.docs.Put(ctx, models.CollectionOrganizations, org, ItemAbsent{}); err != nil {
		return fmt.Errorf("create organization %s: %w", org.ID, err)
	}
	return nil
}

// CreateOffice inserts the office and appends its id to the owning
// organization's offices list in one batch. A duplicate id is a conflict.
func (s *TransactionalStore) CreateOffice(ctx context.Context, office *models.Office) (err error) {
	defer s.observe(ctx, "create_office", time.Now(), &err)

	// read phase
	org, err := s.loader.Organization(ctx, office.OrganizationID)
	if err != nil {
		return err
	}
	if org.OfficeIndex(office.ID) >= 0 {
		return fmt.Errorf("office %s already listed in organization %s: %w", office.ID, org.ID, ErrConflict)
	}

	// write phase
	return s.commit(ctx, planCreateOffice(office))
}

func planCreateOffice(office *models.Office) plan {
	return plan{
		op: "create office",
		writes: []Write{
			UpdateItem(models.CollectionOrganizations, office.OrganizationID,
				[]Assignment{AppendToList{Field: models.FieldOffices, Value: office.ID}},
				ItemExists{},
				ListExcludes{Field: models.FieldOffices, Value: office.ID},
			),
			PutItem(models.CollectionOffices, office, ItemAbsent{}),
		},
	}
}

// CreateReservation inserts the reservation and increments the office's
// occupancy in one batch. The capacity check that matters is the commit-time
// precondition; the occupancy read here only fails fast on a full office.
func (s *TransactionalStore) CreateReservation(ctx context.Context, res *models.Reservation) (err error) {
	defer s.observe(ctx, "create_reservation", time.Now(), &err)

	// read phase
	office, err := s.loader.Office(ctx, res.OfficeID)
	if err != nil {
		return err
	}
	if office.Available() == 0 {
		return fmt.Errorf("office %s is fully booked (%d/%d): %w", office.ID, office.Occupied, office.Capacity, ErrConflict)
	}

	// write phase
	return s.commit(ctx, planCreateReservation(res))
}

func planCreateReservation(res *models.Reservation) plan {
	return plan{
		op: "create reservation",
		writes: []Write{
			UpdateItem(models.CollectionOffices, res.OfficeID,
				[]Assignment{IncrementField{Field: models.FieldOccupied, Delta: 1}},
				ItemExists{},
				FieldGreaterThanField{Field: models.FieldCapacity, Other: models.FieldOccupied},
			),
			PutItem(models.CollectionReservations, res, ItemAbsent{}),
		},
	}
}

// DeleteReservation removes the reservation and decrements the office's
// occupancy in one batch.
func (s *TransactionalStore) DeleteReservation(ctx context.Context, officeID, reservationID string) (err error) {
	defer s.observe(ctx, "delete_reservation", time.Now(), &err)

	// read phase
	if _, err := s.loader.Office(ctx, officeID); err != nil {
		return err
	}
	res, err := s.loader.Reservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if res.OfficeID != officeID {
		return fmt.Errorf("reservation %s does not belong to office %s: %w", reservationID, officeID, ErrNotFound)
	}

	// write phase
	return s.commit(ctx, planDeleteReservation(officeID, reservationID))
}

func planDeleteReservation(officeID, reservationID string) plan {
	return plan{
		op: "delete reservation",
		writes: []Write{
			UpdateItem(models.CollectionOffices, officeID,
				[]Assignment{IncrementField{Field: models.FieldOccupied, Delta: -1}},
				FieldGreaterThan{Field: models.FieldOccupied, Value: 0},
			),
			DeleteItem(models.CollectionReservations, reservationID,
				ItemExists{},
				FieldEquals{Field: models.FieldOfficeID, Value: officeID},
			),
		},
	}
}

// DeleteOffice removes the office, its slot in the organization's offices
// list and every reservation of the office in one batch.
func (s *TransactionalStore) DeleteOffice(ctx context.Context, orgID, officeID string) (err error) {
	defer s.observe(ctx, "delete_office", time.Now(), &err)

	// read phase
	org, err := s.loader.Organization(ctx, orgID)
	if err != nil {
		return err
	}
	index := org.OfficeIndex(officeID)
	if index < 0 {
		return fmt.Errorf("office %s not listed in organization %s: %w", officeID, orgID, ErrNotFound)
	}
	if _, err := s.loader.Office(ctx, officeID); err != nil {
		return err
	}
	reservations, err := s.loader.ReservationsByOffice(ctx, officeID)
	if err != nil {
		return err
	}

	// write phase
	return s.commit(ctx, planDeleteOffice(orgID, officeID, index, reservations))
}

func planDeleteOffice(orgID, officeID string, index int, reservations []*models.Reservation) plan {
	writes := make([]Write, 0, len(reservations)+2)
	writes = append(writes,
		UpdateItem(models.CollectionOrganizations, orgID,
			[]Assignment{RemoveListIndex{Field: models.FieldOffices, Index: index}},
			ListIndexEquals{Field: models.FieldOffices, Index: index, Value: officeID},
		),
		// occupied counts live reservations, so this fails if one was added
		// after the reservations were enumerated
		DeleteItem(models.CollectionOffices, officeID,
			ItemExists{},
			FieldEquals{Field: models.FieldOccupied, Value: len(reservations)},
		),
	)
	for _, res := range reservations {
		writes = append(writes, DeleteItem(models.CollectionReservations, res.ID, ItemExists{}))
	}
	return plan{op: "delete office", writes: writes}
}

// officeCascade is what the organization read phase gathers for one office.
type officeCascade struct {
	officeID     string
	office       *models.Office // nil if the listed office is already gone
	reservations []*models.Reservation
}

// DeleteOrganization removes the organization, every office it lists and
// every reservation of those offices in one batch.
func (s *TransactionalStore) DeleteOrganization(ctx context.Context, orgID string) (err error) {
	defer s.observe(ctx, "delete_organization", time.Now(), &err)

	// read phase
	org, err := s.loader.Organization(ctx, orgID)
	if err != nil {
		return err
	}

	cascades := make([]officeCascade, len(org.Offices))
	g, gctx := errgroup.WithContext(ctx)
	for i, officeID := range org.Offices {
		g.Go(func() error {
			office, err := s.loader.Office(gctx, officeID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			reservations, err := s.loader.ReservationsByOffice(gctx, officeID)
			if err != nil {
				return err
			}
			cascades[i] = officeCascade{officeID: officeID, office: office, reservations: reservations}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("delete organization %s: %w", orgID, err)
	}

	// write phase
	return s.commit(ctx, planDeleteOrganization(orgID, cascades))
}

func planDeleteOrganization(orgID string, cascades []officeCascade) plan {
	var writes []Write
	for _, c := range cascades {
		for _, res := range c.reservations {
			writes = append(writes, DeleteItem(models.CollectionReservations, res.ID, ItemExists{}))
		}
	}
	for _, c := range cascades {
		if c.office == nil {
			writes = append(writes, DeleteItem(models.CollectionOffices, c.officeID))
			continue
		}
		writes = append(writes, DeleteItem(models.CollectionOffices, c.officeID,
			ItemExists{},
			FieldEquals{Field: models.FieldOccupied, Value: len(c.reservations)},
		))
	}
	writes = append(writes, DeleteItem(models.CollectionOrganizations, orgID,
		ItemExists{},
		ListSizeEquals{Field: models.FieldOffices, Size: len(cascades)},
	))
	return plan{op: "delete organization", writes: writes}
}

// UpdateOrganization applies a typed patch; last writer wins per attribute.
func (s *TransactionalStore) UpdateOrganization(ctx context.Context, id string, patch *models.OrganizationPatch) (*models.Organization, error) {
	var out models.Organization
	if err := s.updateDocument(ctx, models.CollectionOrganizations, id, patch.Fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOffice applies a typed patch; capacity and occupancy are not patchable.
func (s *TransactionalStore) UpdateOffice(ctx context.Context, id string, patch *models.OfficePatch) (*models.Office, error) {
	var out models.Office
	if err := s.updateDocument(ctx, models.CollectionOffices, id, patch.Fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateReservation applies a typed patch to a reservation.
func (s *TransactionalStore) UpdateReservation(ctx context.Context, id string, patch *models.ReservationPatch) (*models.Reservation, error) {
	var out models.Reservation
	if err := s.updateDocument(ctx, models.CollectionReservations, id, patch.Fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *TransactionalStore) updateDocument(
	ctx context.Context,
	coll models.Collection,
	id string,
	fields func() ([]models.FieldValue, error),
	out any,
) (err error) {
	defer s.observe(ctx, "update_"+string(coll), time.Now(), &err)

	values, err := fields()
	if err != nil {
		return err
	}
	assignments, err := SetFields(values)
	if err != nil {
		return err
	}

	if err := s.docs.Update(ctx, coll, id, assignments, out); err != nil {
		return fmt.Errorf("update %s %s: %w", coll, id, err)
	}
	return nil
}

func (s *TransactionalStore) observe(ctx context.Context, op string, started time.Time, errp *error) {
	outcome := Outcome(*errp)
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	s.metrics.TransactionsTotal.Add(ctx, 1, attrs)
	s.metrics.TransactionDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

	if outcome == "error" {
		log.Error().Err(*errp).Str("op", op).Msg("transaction failed")
	}
}

// Outcome classifies a store error into a short label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, ErrInvalidPatch),
		errors.Is(err, ErrBatchTooLarge):
		return "rejected"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
