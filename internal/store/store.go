package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/deskbook/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrUnavailable   = errors.New("store unavailable")
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
	ErrInvalidBatch  = errors.New("invalid batch")
	ErrInvalidPatch  = errors.New("invalid patch")
	ErrInvalidIndex  = errors.New("attribute is not indexed")
)

// MaxBatchItems bounds the number of writes in one atomic batch.
const MaxBatchItems = 100

// DocumentStore is the document-oriented key-value contract every backend
// implements. Reads decode into out, which must be a pointer to a model
// (Get, Update) or to a slice of model pointers (Scan, QueryByIndex).
type DocumentStore interface {
	// Scan reads every document of the collection.
	Scan(ctx context.Context, coll models.Collection, out any) error

	// Get reads one document, returning ErrNotFound if it does not exist.
	// Reads are strongly consistent so authorization sees the stored state.
	Get(ctx context.Context, coll models.Collection, id string, out any) error

	// QueryByIndex returns documents whose indexed attribute equals value.
	// Returns ErrInvalidIndex for attributes without a declared index.
	QueryByIndex(ctx context.Context, coll models.Collection, field models.Field, value string, out any) error

	// Put writes a whole document, replacing any existing one unless a
	// condition says otherwise. A failed condition returns ErrConflict.
	Put(ctx context.Context, coll models.Collection, item models.Document, conds ...Condition) error

	// Update applies assignments to an existing document and decodes the
	// resulting document into out. Returns ErrNotFound if the document is missing.
	Update(ctx context.Context, coll models.Collection, id string, assignments []Assignment, out any) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, coll models.Collection, id string) error

	// AtomicBatch applies every write or none. Each write's conditions are
	// evaluated against the stored state at commit; if any fails the whole
	// batch is rejected with ErrConflict.
	AtomicBatch(ctx context.Context, writes []Write) error
}
