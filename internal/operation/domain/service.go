package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Create stores ops as a new immutable record.
	Create(ctx context.Context, ops []UpdateOperation) (*Record, error)
	Get(ctx context.Context, id snowflake.ID) (*Record, error)
	// Replay applies the operations of a record in order inside one
	// transaction.
	Replay(ctx context.Context, id snowflake.ID) error
	// Check reports whether ops would replay cleanly, leaving no changes.
	Check(ctx context.Context, ops []UpdateOperation) error
}

var (
	ErrRecordNotFound  = errors.New("operations record not found")
	ErrEmptyOperations = errors.New("no operations to store")
	ErrVersionConflict = errors.New("allocation changed since the operation was derived")
	ErrOverAllocated   = errors.New("suballocations exceed allocation quantity")
	ErrUnknownOp       = errors.New("unknown operation")
	ErrUnknownMarker   = errors.New("unknown marker kind")
	ErrMarkerKind      = errors.New("unexpected marker kind")
	ErrMissingField    = errors.New("missing operation field")
)
