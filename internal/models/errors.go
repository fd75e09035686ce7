package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound means a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateAction means a uniqueness rule rejected the action, e.g. a second like.
	ErrDuplicateAction = errors.New("duplicate action")
	// ErrInconsistentState means a counter would have gone negative.
	ErrInconsistentState = errors.New("inconsistent state")
	// ErrForbidden means the actor may not perform the action on the entity.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalid means the request failed validation before touching the store.
	ErrInvalid = errors.New("invalid request")
	// ErrRateLimited means the actor exceeded the allowed rate for the action.
	ErrRateLimited = errors.New("rate limited")
)

func NotFound(entity string, id uuid.UUID) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

// PartialFailure reports that an engagement record was written or removed but
// the matching counter adjustment failed. The post needs reconciliation.
type PartialFailure struct {
	PostID uuid.UUID
	Step   string
	Err    error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("partial failure on post %s during %s: %v", e.PostID, e.Step, e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }
