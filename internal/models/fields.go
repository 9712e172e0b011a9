package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// ErrValidation is returned when a request body fails validation.
var ErrValidation = errors.New("validation failed")

// Document is an item stored in a collection, keyed by id.
type Document interface {
	DocumentID() string
}

// Collection names a set of documents of one kind.
type Collection string

const (
	CollectionOrganizations Collection = "organizations"
	CollectionOffices       Collection = "offices"
	CollectionReservations  Collection = "reservations"
)

// Collections lists every collection in dependency order, parents first.
var Collections = []Collection{
	CollectionOrganizations,
	CollectionOffices,
	CollectionReservations,
}

// Field is a declared attribute name of a stored document.
type Field string

const (
	FieldID             Field = "id"
	FieldName           Field = "name"
	FieldType           Field = "type"
	FieldDescription    Field = "description"
	FieldContact        Field = "contact"
	FieldParticipants   Field = "participants"
	FieldOffices        Field = "offices"
	FieldImage          Field = "image"
	FieldOrganizationID Field = "organizationId"
	FieldAddress        Field = "address"
	FieldCapacity       Field = "capacity"
	FieldOccupied       Field = "occupied"
	FieldOfficeID       Field = "officeId"
	FieldFromTime       Field = "fromTime"
	FieldToTime         Field = "toTime"
	FieldUser           Field = "user"
	FieldWorkspaceID    Field = "workspaceId"
)

// indexes declares the secondary indexes available per collection. The index
// name equals the indexed attribute.
var indexes = map[Collection][]Field{
	CollectionOffices:      {FieldOrganizationID},
	CollectionReservations: {FieldOfficeID, FieldUser},
}

// Indexes returns the indexed attributes of a collection.
func Indexes(c Collection) []Field {
	return indexes[c]
}

// HasIndex reports whether field is a declared secondary index of c.
func HasIndex(c Collection, field Field) bool {
	return slices.Contains(indexes[c], field)
}

// NewID returns a new time-ordered identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func validationError(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(errs, "; "))
}
