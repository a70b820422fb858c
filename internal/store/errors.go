package store

import "github.com/kalinbas/chain-assassin/internal/gerrors"

// NotFound returns a gerrors.CodeNotFound failure for op.
func NotFound(op string) error {
	return gerrors.New(op, gerrors.CodeNotFound)
}

// ConstraintViolation wraps a uniqueness/foreign-key failure.
func ConstraintViolation(op string, err error) error {
	return gerrors.Wrap(op, gerrors.CodeConstraintViolation, err)
}

// Corrupted wraps an error the store cannot recover from.
func Corrupted(op string, err error) error {
	return gerrors.Wrap(op, gerrors.CodeStoreCorrupted, err)
}
