package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a record with the same key already exists.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConstraintViolation is returned when a row fails a CHECK or NOT NULL constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a row references a missing parent.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrOverlap is returned when an insert would overlap an active reservation of the same room.
	ErrOverlap = errors.New("persistence: overlapping reservation")
	// ErrVersionConflict is returned when a compare-and-swap update finds a newer version.
	ErrVersionConflict = errors.New("persistence: version conflict")
)
