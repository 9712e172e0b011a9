package document

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/deskbook/internal/models"
	"github.com/wolfeidau/deskbook/internal/store"
)

func officeDoc(t *testing.T, capacity, occupied int) Doc {
	t.Helper()
	doc, err := Encode(&models.Office{
		ID:             "office-1",
		OrganizationID: "org-1",
		Type:           models.OfficeTypeSimple,
		Name:           "HQ",
		Capacity:       capacity,
		Occupied:       occupied,
		Contact:        []string{"alice"},
	})
	require.NoError(t, err)
	return doc
}

func TestCheck(t *testing.T) {
	org := Doc{"id": "org-1", "offices": []any{"a", "b"}}

	tests := []struct {
		name   string
		doc    Doc
		exists bool
		cond   store.Condition
		want   bool
	}{
		{"exists on stored item", org, true, store.ItemExists{}, true},
		{"exists on missing item", nil, false, store.ItemExists{}, false},
		{"absent on missing item", nil, false, store.ItemAbsent{}, true},
		{"absent on stored item", org, true, store.ItemAbsent{}, false},
		{"list excludes new value", org, true, store.ListExcludes{Field: models.FieldOffices, Value: "c"}, true},
		{"list excludes present value", org, true, store.ListExcludes{Field: models.FieldOffices, Value: "a"}, false},
		{"list excludes on missing list", Doc{"id": "org-1"}, true, store.ListExcludes{Field: models.FieldOffices, Value: "a"}, true},
		{"list index matches", org, true, store.ListIndexEquals{Field: models.FieldOffices, Index: 1, Value: "b"}, true},
		{"list index moved", org, true, store.ListIndexEquals{Field: models.FieldOffices, Index: 0, Value: "b"}, false},
		{"list index out of range", org, true, store.ListIndexEquals{Field: models.FieldOffices, Index: 5, Value: "b"}, false},
		{"list size matches", org, true, store.ListSizeEquals{Field: models.FieldOffices, Size: 2}, true},
		{"list size differs", org, true, store.ListSizeEquals{Field: models.FieldOffices, Size: 3}, false},
		{"missing list has size zero", Doc{"id": "org-1"}, true, store.ListSizeEquals{Field: models.FieldOffices, Size: 0}, true},
		{"field equals int", officeDoc(t, 3, 2), true, store.FieldEquals{Field: models.FieldOccupied, Value: 2}, true},
		{"field equals int differs", officeDoc(t, 3, 2), true, store.FieldEquals{Field: models.FieldOccupied, Value: 1}, false},
		{"field equals string", officeDoc(t, 3, 2), true, store.FieldEquals{Field: models.FieldOrganizationID, Value: "org-1"}, true},
		{"field equals missing attribute", Doc{"id": "x"}, true, store.FieldEquals{Field: models.FieldOfficeID, Value: "o"}, false},
		{"greater than", officeDoc(t, 3, 1), true, store.FieldGreaterThan{Field: models.FieldOccupied, Value: 0}, true},
		{"not greater than", officeDoc(t, 3, 0), true, store.FieldGreaterThan{Field: models.FieldOccupied, Value: 0}, false},
		{"greater than missing number", Doc{"id": "x"}, true, store.FieldGreaterThan{Field: models.FieldOccupied, Value: -1}, false},
		{"capacity above occupancy", officeDoc(t, 3, 2), true, store.FieldGreaterThanField{Field: models.FieldCapacity, Other: models.FieldOccupied}, true},
		{"capacity reached", officeDoc(t, 3, 3), true, store.FieldGreaterThanField{Field: models.FieldCapacity, Other: models.FieldOccupied}, false},
		{"field comparison on missing item", nil, false, store.FieldGreaterThanField{Field: models.FieldCapacity, Other: models.FieldOccupied}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.doc, tt.exists, []store.Condition{tt.cond})
			if tt.want {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, store.ErrConflict)
			}
		})
	}
}

func TestCheckStopsAtFirstFailure(t *testing.T) {
	err := Check(nil, false, []store.Condition{store.ItemAbsent{}, store.ItemExists{}})
	require.ErrorIs(t, err, store.ErrConflict)
	require.Contains(t, err.Error(), "ItemExists")
}

func TestApply(t *testing.T) {
	t.Run("increment uses stored value", func(t *testing.T) {
		doc := officeDoc(t, 3, 1)
		out, err := Apply(doc, []store.Assignment{store.IncrementField{Field: models.FieldOccupied, Delta: 1}})
		require.NoError(t, err)
		require.InDelta(t, 2, out["occupied"], 0)
		require.InDelta(t, 1, doc["occupied"], 0, "input must not be modified")
	})

	t.Run("increment missing attribute starts at zero", func(t *testing.T) {
		out, err := Apply(Doc{"id": "x"}, []store.Assignment{store.IncrementField{Field: models.FieldOccupied, Delta: -1}})
		require.NoError(t, err)
		require.InDelta(t, -1, out["occupied"], 0)
	})

	t.Run("increment non-number fails", func(t *testing.T) {
		_, err := Apply(Doc{"id": "x", "occupied": "two"}, []store.Assignment{store.IncrementField{Field: models.FieldOccupied, Delta: 1}})
		require.ErrorIs(t, err, store.ErrInvalidBatch)
	})

	t.Run("append creates list", func(t *testing.T) {
		out, err := Apply(Doc{"id": "org-1"}, []store.Assignment{store.AppendToList{Field: models.FieldOffices, Value: "a"}})
		require.NoError(t, err)
		require.Equal(t, []any{"a"}, out["offices"])
	})

	t.Run("remove index keeps order", func(t *testing.T) {
		doc := Doc{"id": "org-1", "offices": []any{"a", "b", "c"}}
		out, err := Apply(doc, []store.Assignment{store.RemoveListIndex{Field: models.FieldOffices, Index: 1}})
		require.NoError(t, err)
		require.Equal(t, []any{"a", "c"}, out["offices"])
		require.Equal(t, []any{"a", "b", "c"}, doc["offices"])
	})

	t.Run("remove index out of range is a no-op", func(t *testing.T) {
		doc := Doc{"id": "org-1", "offices": []any{"a"}}
		out, err := Apply(doc, []store.Assignment{store.RemoveListIndex{Field: models.FieldOffices, Index: 4}})
		require.NoError(t, err)
		require.Equal(t, []any{"a"}, out["offices"])
	})

	t.Run("set normalises values", func(t *testing.T) {
		out, err := Apply(Doc{"id": "org-1"}, []store.Assignment{
			store.SetField{Field: models.FieldContact, Value: []string{"bob"}},
			store.SetField{Field: models.FieldType, Value: models.OrgTypeClosed},
		})
		require.NoError(t, err)
		require.Equal(t, []any{"bob"}, out["contact"])
		require.Equal(t, "closed", out["type"])
	})
}

func TestEncodeDecode(t *testing.T) {
	doc := officeDoc(t, 4, 2)
	require.Equal(t, "office-1", doc.ID())
	require.Equal(t, "org-1", doc.String(models.FieldOrganizationID))

	var office models.Office
	require.NoError(t, Decode(doc, &office))
	require.Equal(t, 4, office.Capacity)
	require.Equal(t, 2, office.Occupied)
	require.Equal(t, []string{"alice"}, office.Contact)

	var offices []*models.Office
	require.NoError(t, Decode([]Doc{doc, doc}, &offices))
	require.Len(t, offices, 2)
}
