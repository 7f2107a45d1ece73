package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("batch session not found")
	ErrGroupNotFound   = errors.New("group not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrStageConflict   = errors.New("stage conflict")
	ErrStalled         = errors.New("transfer stalled")
	ErrTemporary       = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
