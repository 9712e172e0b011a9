package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/wolfeidau/deskbook/internal/models"
	"github.com/wolfeidau/deskbook/internal/store"
	"github.com/wolfeidau/deskbook/internal/store/document"
)

// DocumentStore implements store.DocumentStore using in-memory storage.
// A single lock serialises batches, so each batch is checked and applied
// as one step. Data is lost on restart.
type DocumentStore struct {
	mu sync.RWMutex

	items map[models.Collection]map[string]document.Doc // collection -> id -> doc
}

// NewDocumentStore creates an empty in-memory document store.
func NewDocumentStore() *DocumentStore {
	items := make(map[models.Collection]map[string]document.Doc, len(models.Collections))
	for _, c := range models.Collections {
		items[c] = make(map[string]document.Doc)
	}
	return &DocumentStore{items: items}
}

func (s *DocumentStore) collection(coll models.Collection) (map[string]document.Doc, error) {
	docs, ok := s.items[coll]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", coll)
	}
	return docs, nil
}

// Scan reads every document of the collection, ordered by id.
func (s *DocumentStore) Scan(ctx context.Context, coll models.Collection, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, err := s.collection(coll)
	if err != nil {
		return err
	}
	result := make([]document.Doc, 0, len(docs))
	for _, id := range slices.Sorted(maps.Keys(docs)) {
		result = append(result, docs[id])
	}
	return document.Decode(result, out)
}

// Get reads one document by id.
func (s *DocumentStore) Get(ctx context.Context, coll models.Collection, id string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, err := s.collection(coll)
	if err != nil {
		return err
	}
	doc, exists := docs[id]
	if !exists {
		return store.ErrNotFound
	}
	return document.Decode(doc, out)
}

// QueryByIndex filters the collection on an indexed attribute.
func (s *DocumentStore) QueryByIndex(ctx context.Context, coll models.Collection, field models.Field, value string, out any) error {
	if !models.HasIndex(coll, field) {
		return fmt.Errorf("%w: %s.%s", store.ErrInvalidIndex, coll, field)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, err := s.collection(coll)
	if err != nil {
		return err
	}
	result := []document.Doc{}
	for _, id := range slices.Sorted(maps.Keys(docs)) {
		if docs[id].String(field) == value {
			result = append(result, docs[id])
		}
	}
	return document.Decode(result, out)
}

// Put writes a whole document if its conditions hold.
func (s *DocumentStore) Put(ctx context.Context, coll models.Collection, item models.Document, conds ...store.Condition) error {
	return s.AtomicBatch(ctx, []store.Write{store.PutItem(coll, item, conds...)})
}

// Update applies assignments to an existing document.
func (s *DocumentStore) Update(ctx context.Context, coll models.Collection, id string, assignments []store.Assignment, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.collection(coll)
	if err != nil {
		return err
	}
	current, exists := docs[id]
	if !exists {
		return store.ErrNotFound
	}
	updated, err := document.Apply(current, assignments)
	if err != nil {
		return err
	}
	docs[id] = updated

	if out == nil {
		return nil
	}
	return document.Decode(updated, out)
}

// Delete removes a document; missing documents are ignored.
func (s *DocumentStore) Delete(ctx context.Context, coll models.Collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.collection(coll)
	if err != nil {
		return err
	}
	delete(docs, id)
	return nil
}

// staged is the new state of one item; a nil doc means delete.
type staged struct {
	docs map[string]document.Doc
	key  string
	doc  document.Doc
}

// AtomicBatch checks every write's conditions against the current state and
// only then applies all of them.
func (s *DocumentStore) AtomicBatch(ctx context.Context, writes []store.Write) error {
	if err := store.ValidateBatch(writes); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changes := make([]staged, 0, len(writes))
	for i, w := range writes {
		docs, err := s.collection(w.Collection)
		if err != nil {
			return err
		}
		current, exists := docs[w.Key]
		if err := document.Check(current, exists, w.Conditions); err != nil {
			return fmt.Errorf("write %d (%s %s/%s): %w", i, w.Kind, w.Collection, w.Key, err)
		}

		var next document.Doc
		switch w.Kind {
		case store.WritePut:
			next, err = document.Encode(w.Item)
		case store.WriteUpdate:
			if !exists {
				// updates upsert like DynamoDB; start from the key alone
				current = document.Doc{string(models.FieldID): w.Key}
			}
			next, err = document.Apply(current, w.Assignments)
		case store.WriteDelete:
		}
		if err != nil {
			return fmt.Errorf("write %d (%s %s/%s): %w", i, w.Kind, w.Collection, w.Key, err)
		}
		changes = append(changes, staged{docs: docs, key: w.Key, doc: next})
	}

	for _, c := range changes {
		if c.doc == nil {
			delete(c.docs, c.key)
			continue
		}
		c.docs[c.key] = c.doc
	}
	return nil
}
