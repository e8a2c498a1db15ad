package inquiry

import "context"

// Store persists inquiries. Every write is conditional on the version the
// caller read; a stale version yields ErrVersionConflict and a missing row
// yields ErrNotFound.
type Store interface {
	Get(ctx context.Context, id int64) (Inquiry, error)
	ListByStatus(ctx context.Context, label Label) ([]Inquiry, error)
	Create(ctx context.Context, details Details, status Status) (Inquiry, error)
	CompareAndSwap(ctx context.Context, id, expectedVersion int64, next Status) (int64, error)
	Delete(ctx context.Context, id, expectedVersion int64) error
}

// VersionConflict wraps ErrVersionConflict with the ids involved.
func VersionConflict(id, expected int64) error {
	return errorf(ErrVersionConflict, "inquiry %d no longer at version %d", id, expected)
}

// NotFound wraps ErrNotFound with the missing id.
func NotFound(id int64) error {
	return errorf(ErrNotFound, "inquiry %d", id)
}
