package domain

import (
	"errors"
	"fmt"
)

// UnauthorizedError reports a caller lacking the role required for an
// operation, or an inactive registration.
type UnauthorizedError struct {
	Identity string
	Required Role
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("caller %q is not an active %s", e.Identity, e.Required)
}

// NotFoundError reports a lookup that requires existence failing.
type NotFoundError struct {
	Entity EntityType
	Key    string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// DuplicateBatchError reports a batch code collision on create.
type DuplicateBatchError struct {
	BatchID string
}

func (e DuplicateBatchError) Error() string {
	return fmt.Sprintf("batch %q already exists", e.BatchID)
}

// InvalidTransitionError reports a stage move that is not exactly one step
// forward, including any move out of the terminal stage.
type InvalidTransitionError struct {
	From Stage
	To   Stage
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// InvalidQuantityError reports a non-positive quantity on create.
type InvalidQuantityError struct {
	Quantity int64
}

func (e InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be positive, got %d", e.Quantity)
}

// ValidationError reports a malformed argument (empty identity, empty batch
// code, unknown role value).
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsUnauthorized reports whether err is an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var target UnauthorizedError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// IsDuplicateBatch reports whether err is a DuplicateBatchError.
func IsDuplicateBatch(err error) bool {
	var target DuplicateBatchError
	return errors.As(err, &target)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target InvalidTransitionError
	return errors.As(err, &target)
}

// IsInvalidQuantity reports whether err is an InvalidQuantityError.
func IsInvalidQuantity(err error) bool {
	var target InvalidQuantityError
	return errors.As(err, &target)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}
