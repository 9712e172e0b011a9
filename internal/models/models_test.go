package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestOrganizationPrepareCreate(t *testing.T) {
	org := &Organization{Name: "Acme", Type: OrgTypeClosed, Offices: []string{"o1"}}
	require.NoError(t, org.PrepareCreate())

	id, err := uuid.Parse(org.ID)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), id.Version())
	require.Equal(t, []string{}, org.Offices)
	require.Equal(t, []string{}, org.Contact)
	require.Equal(t, []string{}, org.Participants)

	kept := &Organization{ID: "org1", Name: "Acme", Type: OrgTypeOpen}
	require.NoError(t, kept.PrepareCreate())
	require.Equal(t, "org1", kept.ID)

	err = (&Organization{Type: "guild"}).PrepareCreate()
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorContains(t, err, "name is required")
	require.ErrorContains(t, err, "type must be one of")
}

func TestOfficePrepareCreate(t *testing.T) {
	office := &Office{OrganizationID: "org1", Name: "HQ", Type: OfficeTypeNamed, Capacity: 4, Occupied: 3}
	require.NoError(t, office.PrepareCreate())
	require.NotEmpty(t, office.ID)
	require.Zero(t, office.Occupied)
	require.Equal(t, 4, office.Available())

	err := (&Office{Name: "HQ", Type: OfficeTypeSimple, Capacity: -1}).PrepareCreate()
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorContains(t, err, "organizationId is required")
	require.ErrorContains(t, err, "capacity must not be negative")
}

func TestReservationPrepareCreate(t *testing.T) {
	from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	res := &Reservation{OfficeID: "o1", FromTime: from, ToTime: from.Add(time.Hour)}
	require.NoError(t, res.PrepareCreate("alice"))
	require.Equal(t, "alice", res.User)

	named := &Reservation{OfficeID: "o1", FromTime: from, ToTime: from.Add(time.Hour), User: "bob"}
	require.NoError(t, named.PrepareCreate("alice"))
	require.Equal(t, "bob", named.User)

	err := (&Reservation{OfficeID: "o1", FromTime: from, ToTime: from}).PrepareCreate("alice")
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorContains(t, err, "fromTime must be before toTime")

	err = (&Reservation{}).PrepareCreate("")
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorContains(t, err, "user is required")
}

func TestPatchFields(t *testing.T) {
	t.Run("organization", func(t *testing.T) {
		var patch OrganizationPatch
		require.NoError(t, json.Unmarshal([]byte(`{"name":"Acme","contact":null,"participants":[]}`), &patch))

		fields, err := patch.Fields()
		require.NoError(t, err)
		require.Equal(t, []FieldValue{
			{FieldName, "Acme"},
			{FieldParticipants, []string{}},
		}, fields)
	})

	t.Run("empty organization name", func(t *testing.T) {
		empty := ""
		_, err := (&OrganizationPatch{Name: &empty}).Fields()
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("office type", func(t *testing.T) {
		kind := OfficeType("castle")
		_, err := (&OfficePatch{Type: &kind}).Fields()
		require.ErrorIs(t, err, ErrValidation)

		kind = OfficeTypeBlueprint
		fields, err := (&OfficePatch{Type: &kind}).Fields()
		require.NoError(t, err)
		require.Equal(t, []FieldValue{{FieldType, OfficeTypeBlueprint}}, fields)
	})

	t.Run("reservation window", func(t *testing.T) {
		from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		to := from.Add(-time.Hour)
		_, err := (&ReservationPatch{FromTime: &from, ToTime: &to}).Fields()
		require.ErrorIs(t, err, ErrValidation)

		fields, err := (&ReservationPatch{ToTime: &to}).Fields()
		require.NoError(t, err)
		require.Equal(t, []FieldValue{{FieldToTime, to}}, fields)
	})

	t.Run("empty patch", func(t *testing.T) {
		fields, err := (&ReservationPatch{}).Fields()
		require.NoError(t, err)
		require.Empty(t, fields)
	})
}

func TestReservationPatchCheckWindow(t *testing.T) {
	from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	stored := &Reservation{ID: "r1", OfficeID: "o1", FromTime: from, ToTime: from.Add(time.Hour)}

	before := from.Add(-time.Hour)
	later := from.Add(3 * time.Hour)
	laterEnd := later.Add(time.Hour)

	tests := []struct {
		name  string
		patch ReservationPatch
		valid bool
	}{
		{name: "no window change", valid: true},
		{name: "extend end", patch: ReservationPatch{ToTime: &later}, valid: true},
		{name: "end before stored start", patch: ReservationPatch{ToTime: &before}},
		{name: "start after stored end", patch: ReservationPatch{FromTime: &later}},
		{name: "end equals stored start", patch: ReservationPatch{ToTime: &from}},
		{name: "move both", patch: ReservationPatch{FromTime: &later, ToTime: &laterEnd}, valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.CheckWindow(stored)
			if tt.valid {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestIndexes(t *testing.T) {
	require.True(t, HasIndex(CollectionOffices, FieldOrganizationID))
	require.True(t, HasIndex(CollectionReservations, FieldUser))
	require.False(t, HasIndex(CollectionReservations, FieldFromTime))
	require.False(t, HasIndex(CollectionOrganizations, FieldID))
	require.Empty(t, Indexes(CollectionOrganizations))
}
