package postgres

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/deskbook/internal/models"
	"github.com/wolfeidau/deskbook/internal/store"
	"github.com/wolfeidau/deskbook/internal/store/document"
)

// DocumentStore implements store.DocumentStore on a single PostgreSQL table
// of JSONB documents. An atomic batch is one transaction: the rows it
// touches are locked in key order, every condition is checked, then all
// writes are sent together.
type DocumentStore struct {
	pool *pgxpool.Pool
	cfg  *StoreConfig

	// Lifecycle
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Open connects to PostgreSQL, then either runs migrations or, with
// auto-migrate off, checks the schema is current before returning the store.
func Open(ctx context.Context, cfg *StoreConfig) (*DocumentStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pool, err := NewPool(ctx, &cfg.Pool)
	if err != nil {
		return nil, err
	}

	// Run migrations only if explicitly enabled
	if cfg.AutoMigrate {
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info().Msg("Database migrations completed")
	} else if err := CheckSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return NewDocumentStore(pool, cfg), nil
}

// NewDocumentStore creates a PostgreSQL-backed document store on an existing pool.
func NewDocumentStore(pool *pgxpool.Pool, cfg *StoreConfig) *DocumentStore {
	return &DocumentStore{
		pool:   pool,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Start starts background tasks.
func (s *DocumentStore) Start() error {
	log.Info().Msg("Starting PostgreSQL document store")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.monitorConnectionPool()
	}()

	return nil
}

// Stop waits for background tasks and closes the pool.
func (s *DocumentStore) Stop() error {
	log.Info().Msg("Stopping PostgreSQL document store")

	close(s.stopCh)
	s.wg.Wait()
	s.pool.Close()

	log.Info().Msg("PostgreSQL document store stopped")
	return nil
}

// monitorConnectionPool logs connection pool statistics periodically.
func (s *DocumentStore) monitorConnectionPool() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := s.pool.Stat()
			log.Debug().
				Int32("total_conns", stats.TotalConns()).
				Int32("idle_conns", stats.IdleConns()).
				Int32("acquired_conns", stats.AcquiredConns()).
				Int64("acquire_count", stats.AcquireCount()).
				Int64("acquire_duration_ns", stats.AcquireDuration().Nanoseconds()).
				Msg("Connection pool stats")
		case <-s.stopCh:
			return
		}
	}
}

func (s *DocumentStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg == nil || s.cfg.QueryTimeoutSeconds <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(s.cfg.QueryTimeoutSeconds)*time.Second)
}

// Scan reads every document of the collection, ordered by id.
func (s *DocumentStore) Scan(ctx context.Context, coll models.Collection, out any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT body FROM documents WHERE collection = $1 ORDER BY id`, string(coll))
	if err != nil {
		return mapPostgresError(err)
	}
	return decodeRows(rows, out)
}

// Get reads one document.
func (s *DocumentStore) Get(ctx context.Context, coll models.Collection, id string, out any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM documents WHERE collection = $1 AND id = $2`, string(coll), id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return mapPostgresError(err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", coll, err)
	}
	return nil
}

// QueryByIndex filters on an indexed attribute using its expression index.
func (s *DocumentStore) QueryByIndex(ctx context.Context, coll models.Collection, field models.Field, value string, out any) error {
	if !models.HasIndex(coll, field) {
		return fmt.Errorf("%w: %s.%s", store.ErrInvalidIndex, coll, field)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// field is one of the declared index attributes, never client input
	query := fmt.Sprintf(`SELECT body FROM documents WHERE collection = $1 AND body->>'%s' = $2 ORDER BY id`, field)
	rows, err := s.pool.Query(ctx, query, string(coll), value)
	if err != nil {
		return mapPostgresError(err)
	}
	return decodeRows(rows, out)
}

func decodeRows(rows pgx.Rows, out any) error {
	bodies, err := pgx.CollectRows(rows, pgx.RowTo[json.RawMessage])
	if err != nil {
		return mapPostgresError(err)
	}
	if bodies == nil {
		bodies = []json.RawMessage{}
	}
	return document.Decode(bodies, out)
}

// Put writes a whole document if its conditions hold.
func (s *DocumentStore) Put(ctx context.Context, coll models.Collection, item models.Document, conds ...store.Condition) error {
	return s.AtomicBatch(ctx, []store.Write{store.PutItem(coll, item, conds...)})
}

// Update applies assignments to an existing document under a row lock.
func (s *DocumentStore) Update(ctx context.Context, coll models.Collection, id string, assignments []store.Assignment, out any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var updated document.Doc
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		current, exists, err := lockDocument(ctx, tx, coll, id)
		if err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		updated, err = document.Apply(current, assignments)
		if err != nil {
			return err
		}
		body, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", coll, err)
		}
		_, err = tx.Exec(ctx, `UPDATE documents SET body = $3::jsonb, updated_at = NOW() WHERE collection = $1 AND id = $2`, string(coll), id, string(body))
		return err
	})
	if err != nil {
		return mapPostgresError(err)
	}

	if out == nil {
		return nil
	}
	return document.Decode(updated, out)
}

// Delete removes a document; missing documents are ignored.
func (s *DocumentStore) Delete(ctx context.Context, coll models.Collection, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, deleteDocument, string(coll), id)
	return mapPostgresError(err)
}

// AtomicBatch applies every write in one transaction or none of them.
func (s *DocumentStore) AtomicBatch(ctx context.Context, writes []store.Write) error {
	if err := store.ValidateBatch(writes); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// lock in a stable order so overlapping batches cannot deadlock
		order := make([]int, len(writes))
		for i := range order {
			order[i] = i
		}
		slices.SortFunc(order, func(a, b int) int {
			return cmp.Or(
				cmp.Compare(writes[a].Collection, writes[b].Collection),
				cmp.Compare(writes[a].Key, writes[b].Key),
			)
		})

		batch := &pgx.Batch{}
		for _, i := range order {
			w := writes[i]
			current, exists, err := lockDocument(ctx, tx, w.Collection, w.Key)
			if err != nil {
				return err
			}
			if err := document.Check(current, exists, w.Conditions); err != nil {
				return fmt.Errorf("write %d (%s %s/%s): %w", i, w.Kind, w.Collection, w.Key, err)
			}
			if err := queueWrite(batch, w, current, exists); err != nil {
				return fmt.Errorf("write %d (%s %s/%s): %w", i, w.Kind, w.Collection, w.Key, err)
			}
		}

		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().Int("writes", len(writes)).Msg("batch committed")
	return nil
}

func lockDocument(ctx context.Context, tx pgx.Tx, coll models.Collection, id string) (document.Doc, bool, error) {
	var body []byte
	err := tx.QueryRow(ctx, `SELECT body FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`, string(coll), id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var doc document.Doc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal %s/%s: %w", coll, id, err)
	}
	return doc, true, nil
}

const (
	insertDocument = `INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3::jsonb)`
	upsertDocument = `INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`
	deleteDocument = `DELETE FROM documents WHERE collection = $1 AND id = $2`
)

func queueWrite(batch *pgx.Batch, w store.Write, current document.Doc, exists bool) error {
	switch w.Kind {
	case store.WritePut:
		body, err := json.Marshal(w.Item)
		if err != nil {
			return err
		}
		// a plain insert lets the primary key reject a row created
		// concurrently after the lock found nothing to lock
		query := upsertDocument
		if requiresAbsent(w.Conditions) {
			query = insertDocument
		}
		batch.Queue(query, string(w.Collection), w.Key, string(body))
	case store.WriteUpdate:
		if !exists {
			current = document.Doc{string(models.FieldID): w.Key}
		}
		updated, err := document.Apply(current, w.Assignments)
		if err != nil {
			return err
		}
		body, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		batch.Queue(upsertDocument, string(w.Collection), w.Key, string(body))
	case store.WriteDelete:
		batch.Queue(deleteDocument, string(w.Collection), w.Key)
	default:
		return fmt.Errorf("%w: unknown write kind %s", store.ErrInvalidBatch, w.Kind)
	}
	return nil
}

func requiresAbsent(conds []store.Condition) bool {
	for _, c := range conds {
		if _, ok := c.(store.ItemAbsent); ok {
			return true
		}
	}
	return false
}
