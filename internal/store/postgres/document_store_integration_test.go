//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/deskbook/internal/models"
	"github.com/wolfeidau/deskbook/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*DocumentStore, func()) {
	// Start postgres container
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &StoreConfig{
		Pool: PoolConfig{
			ConnString: fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		},
		AutoMigrate: true, // Enable migrations for tests
	}

	docs, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, docs.Start())

	cleanup := func() {
		_ = docs.Stop()
		_ = container.Terminate(ctx)
	}

	return docs, cleanup
}

func TestIntegration_Migrations(t *testing.T) {
	ctx := context.Background()
	docs, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	// replicas starting together apply each migration once
	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = Migrate(ctx, docs.pool)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	var count int
	require.NoError(t, docs.pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	require.Equal(t, 1, count)

	require.NoError(t, CheckSchema(ctx, docs.pool))

	var appName string
	require.NoError(t, docs.pool.QueryRow(ctx, `SELECT current_setting('application_name')`).Scan(&appName))
	require.Equal(t, "deskbook-documents", appName)
}

func TestIntegration_CheckSchema(t *testing.T) {
	ctx := context.Background()
	docs, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	t.Run("missing migration record", func(t *testing.T) {
		_, err := docs.pool.Exec(ctx, `DELETE FROM schema_migrations`)
		require.NoError(t, err)
		require.ErrorIs(t, CheckSchema(ctx, docs.pool), ErrSchemaNotReady)
	})

	t.Run("missing documents table", func(t *testing.T) {
		_, err := docs.pool.Exec(ctx, `DROP TABLE documents`)
		require.NoError(t, err)
		require.ErrorIs(t, CheckSchema(ctx, docs.pool), ErrSchemaNotReady)
	})

	t.Run("migrate restores it", func(t *testing.T) {
		require.NoError(t, Migrate(ctx, docs.pool))
		require.NoError(t, CheckSchema(ctx, docs.pool))
	})
}

func TestIntegration_OfficeLifecycle(t *testing.T) {
	ctx := context.Background()
	docs, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	tx := store.NewTransactionalStore(docs)
	loader := store.NewLoader(docs)

	org := &models.Organization{ID: "org1", Name: "Org", Type: models.OrgTypeClosed, Contact: []string{"alice"}}
	require.NoError(t, org.PrepareCreate())
	require.NoError(t, tx.CreateOrganization(ctx, org))
	require.ErrorIs(t, tx.CreateOrganization(ctx, org), store.ErrConflict)

	office := &models.Office{ID: "o1", OrganizationID: "org1", Name: "HQ", Type: models.OfficeTypeSimple, Capacity: 2, Contact: []string{"alice"}}
	require.NoError(t, tx.CreateOffice(ctx, office))
	require.ErrorIs(t, tx.CreateOffice(ctx, office), store.ErrConflict)

	from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{"r1", "r2"} {
		res := &models.Reservation{ID: id, OfficeID: "o1", FromTime: from, ToTime: from.Add(time.Hour), User: "bob"}
		require.NoError(t, tx.CreateReservation(ctx, res))
	}
	full := &models.Reservation{ID: "r3", OfficeID: "o1", FromTime: from, ToTime: from.Add(time.Hour), User: "bob"}
	require.ErrorIs(t, tx.CreateReservation(ctx, full), store.ErrConflict)

	got, err := loader.Office(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, 2, got.Occupied)

	byOrg, err := loader.OfficesByOrganization(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, byOrg, 1)

	require.NoError(t, tx.DeleteOffice(ctx, "org1", "o1"))

	gotOrg, err := loader.Organization(ctx, "org1")
	require.NoError(t, err)
	require.Empty(t, gotOrg.Offices)

	reservations, err := loader.Reservations(ctx)
	require.NoError(t, err)
	require.Empty(t, reservations)
}

func TestIntegration_ConcurrentReservations(t *testing.T) {
	ctx := context.Background()
	docs, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	tx := store.NewTransactionalStore(docs)

	org := &models.Organization{ID: "org1", Name: "Org", Type: models.OrgTypeOpen}
	require.NoError(t, org.PrepareCreate())
	require.NoError(t, tx.CreateOrganization(ctx, org))
	require.NoError(t, tx.CreateOffice(ctx, &models.Office{ID: "o1", OrganizationID: "org1", Name: "HQ", Type: models.OfficeTypeSimple, Capacity: 3}))

	const attempts = 15
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for range attempts {
		wg.Go(func() {
			res := &models.Reservation{ID: models.NewID(), OfficeID: "o1", FromTime: from, ToTime: from.Add(time.Hour), User: "bob"}
			results <- tx.CreateReservation(ctx, res)
		})
	}
	wg.Wait()
	close(results)

	// row locks serialise the batches, so exactly the capacity succeeds
	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, store.ErrConflict)
	}
	require.Equal(t, 3, succeeded)

	office, err := store.NewLoader(docs).Office(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, 3, office.Occupied)
}
