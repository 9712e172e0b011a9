package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type testResource struct {
	id      string
	contact []string
}

func (r testResource) DocumentID() string    { return r.id }
func (r testResource) ResourceKind() string  { return "office" }
func (r testResource) ContactList() []string { return r.contact }

func TestAuthorize(t *testing.T) {
	office := testResource{id: "o1", contact: []string{"alice", "bob"}}

	tests := []struct {
		name     string
		identity *Identity
		resource Resource
		allowed  bool
	}{
		{
			name:     "contact may mutate",
			identity: &Identity{Username: "alice"},
			resource: office,
			allowed:  true,
		},
		{
			name:     "non contact is denied",
			identity: &Identity{Username: "mallory"},
			resource: office,
		},
		{
			name:     "membership is exact",
			identity: &Identity{Username: "ali"},
			resource: office,
		},
		{
			name:     "empty contact list",
			identity: &Identity{Username: "alice"},
			resource: testResource{id: "o2"},
		},
		{
			name:     "no username",
			identity: &Identity{Subject: "b1f4"},
			resource: office,
		},
		{
			name:     "no identity",
			resource: office,
		},
		{
			name:     "no resource",
			identity: &Identity{Username: "alice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, action := range []Action{ActionCreate, ActionUpdate, ActionDelete} {
				decision := Authorize(tt.identity, tt.resource, action)
				require.Equal(t, tt.allowed, decision.Allowed)
				if tt.allowed {
					require.NoError(t, decision.Err())
					require.Empty(t, decision.Reason)
				} else {
					require.ErrorIs(t, decision.Err(), ErrForbidden)
					require.NotEmpty(t, decision.Reason)
				}
			}
		})
	}
}

func TestRequireContact(t *testing.T) {
	office := testResource{id: "o1", contact: []string{"alice"}}

	t.Run("unauthenticated", func(t *testing.T) {
		err := RequireContact(context.Background(), office, ActionUpdate)
		require.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("forbidden", func(t *testing.T) {
		ctx := WithIdentity(context.Background(), &Identity{Username: "bob"})
		err := RequireContact(ctx, office, ActionDelete)
		require.ErrorIs(t, err, ErrForbidden)
		require.Contains(t, err.Error(), "bob is not a contact of office o1")
	})

	t.Run("allowed", func(t *testing.T) {
		ctx := WithIdentity(context.Background(), &Identity{Username: "alice"})
		require.NoError(t, RequireContact(ctx, office, ActionDelete))
	})
}
