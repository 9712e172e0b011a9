package store

import (
	"fmt"

	"github.com/wolfeidau/deskbook/internal/models"
)

// WriteKind selects what a batched write does to its item.
type WriteKind int

const (
	WritePut WriteKind = iota + 1
	WriteUpdate
	WriteDelete
)

func (k WriteKind) String() string {
	switch k {
	case WritePut:
		return "put"
	case WriteUpdate:
		return "update"
	case WriteDelete:
		return "delete"
	default:
		return fmt.Sprintf("WriteKind(%d)", int(k))
	}
}

// Write is one item write inside an atomic batch. All Conditions must hold
// against the item's stored state at commit for the batch to apply.
type Write struct {
	Kind        WriteKind
	Collection  models.Collection
	Key         string
	Item        models.Document // WritePut only
	Assignments []Assignment    // WriteUpdate only
	Conditions  []Condition
}

// PutItem inserts or replaces item.
func PutItem(coll models.Collection, item models.Document, conds ...Condition) Write {
	return Write{Kind: WritePut, Collection: coll, Key: item.DocumentID(), Item: item, Conditions: conds}
}

// UpdateItem applies assignments to the item stored under key.
func UpdateItem(coll models.Collection, key string, assignments []Assignment, conds ...Condition) Write {
	return Write{Kind: WriteUpdate, Collection: coll, Key: key, Assignments: assignments, Conditions: conds}
}

// DeleteItem removes the item stored under key.
func DeleteItem(coll models.Collection, key string, conds ...Condition) Write {
	return Write{Kind: WriteDelete, Collection: coll, Key: key, Conditions: conds}
}

// ValidateBatch checks the shape of a batch before any backend sees it: it
// must be non-empty, within MaxBatchItems and touch each item at most once.
func ValidateBatch(writes []Write) error {
	if len(writes) == 0 {
		return fmt.Errorf("%w: no writes", ErrInvalidBatch)
	}
	if len(writes) > MaxBatchItems {
		return fmt.Errorf("%w: %d writes, limit %d", ErrBatchTooLarge, len(writes), MaxBatchItems)
	}

	seen := make(map[string]struct{}, len(writes))
	for _, w := range writes {
		if w.Key == "" {
			return fmt.Errorf("%w: %s on %s without key", ErrInvalidBatch, w.Kind, w.Collection)
		}
		switch w.Kind {
		case WritePut:
			if w.Item == nil {
				return fmt.Errorf("%w: put %s/%s without item", ErrInvalidBatch, w.Collection, w.Key)
			}
		case WriteUpdate:
			if len(w.Assignments) == 0 {
				return fmt.Errorf("%w: update %s/%s without assignments", ErrInvalidBatch, w.Collection, w.Key)
			}
		case WriteDelete:
		default:
			return fmt.Errorf("%w: unknown write kind %s", ErrInvalidBatch, w.Kind)
		}

		id := string(w.Collection) + "/" + w.Key
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s written twice", ErrInvalidBatch, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Condition is a precondition evaluated against an item's stored state at
// commit time. The set of conditions is closed; backends translate each kind.
type Condition interface {
	condition()
}

// ItemExists requires the item to be stored.
type ItemExists struct{}

// ItemAbsent requires that no item is stored under the key.
type ItemAbsent struct{}

// ListExcludes requires the list attribute not to contain Value. A missing
// attribute counts as an empty list.
type ListExcludes struct {
	Field models.Field
	Value string
}

// ListIndexEquals requires the list attribute to hold Value at Index.
type ListIndexEquals struct {
	Field models.Field
	Index int
	Value string
}

// ListSizeEquals requires the list attribute to have exactly Size elements.
type ListSizeEquals struct {
	Field models.Field
	Size  int
}

// FieldEquals requires the attribute to equal Value (string or integer).
type FieldEquals struct {
	Field models.Field
	Value any
}

// FieldGreaterThan requires the numeric attribute to be greater than Value.
type FieldGreaterThan struct {
	Field models.Field
	Value int
}

// FieldGreaterThanField requires attribute Field to be greater than attribute Other.
type FieldGreaterThanField struct {
	Field models.Field
	Other models.Field
}

func (ItemExists) condition()            {}
func (ItemAbsent) condition()            {}
func (ListExcludes) condition()          {}
func (ListIndexEquals) condition()       {}
func (ListSizeEquals) condition()        {}
func (FieldEquals) condition()           {}
func (FieldGreaterThan) condition()      {}
func (FieldGreaterThanField) condition() {}

// Assignment changes one attribute of an item as part of an update.
type Assignment interface {
	assignment()
}

// SetField replaces the attribute value.
type SetField struct {
	Field models.Field
	Value any
}

// IncrementField adds Delta (which may be negative) to a numeric attribute
// using the value stored at commit time.
type IncrementField struct {
	Field models.Field
	Delta int
}

// AppendToList appends Value to a list attribute, creating the list if missing.
type AppendToList struct {
	Field models.Field
	Value string
}

// RemoveListIndex removes the element at Index from a list attribute.
type RemoveListIndex struct {
	Field models.Field
	Index int
}

func (SetField) assignment()        {}
func (IncrementField) assignment()  {}
func (AppendToList) assignment()    {}
func (RemoveListIndex) assignment() {}

// SetFields converts declared field values into assignments. The identity key
// is never assignable.
func SetFields(values []models.FieldValue) ([]Assignment, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no attributes to update", ErrInvalidPatch)
	}
	assignments := make([]Assignment, 0, len(values))
	for _, fv := range values {
		if fv.Field == models.FieldID {
			return nil, fmt.Errorf("%w: %s cannot be updated", ErrInvalidPatch, fv.Field)
		}
		assignments = append(assignments, SetField(fv))
	}
	return assignments, nil
}
