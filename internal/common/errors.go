package common

import (
	"errors"
	"fmt"
)

// Business-rule violations. Handlers turn these into {success:false} results.
var (
	ErrAlreadyPendingRemoval       = errors.New("user is already pending removal")
	ErrInvalidStateForReactivation = errors.New("invalid membership state for reactivation")
	ErrAdminRequired               = errors.New("only organization admins can perform this action")
	ErrSelfRemovalForbidden        = errors.New("you cannot remove yourself from the organization")
	ErrMembershipNotFound          = errors.New("membership not found")
	ErrSubscriptionNotFound        = errors.New("subscription not found")
	ErrOrganizationNotFound        = errors.New("organization not found")
	ErrMissingSubscriptionItem     = errors.New("subscription has no LemonSqueezy subscription item id")
)

// MembershipStateError reports a lifecycle transition attempted from the
// wrong state. It unwraps to the matching sentinel.
type MembershipStateError struct {
	Action string
	Status string
	Kind   error
}

func (e *MembershipStateError) Error() string {
	return fmt.Sprintf("Cannot %s user with status: %s", e.Action, e.Status)
}

func (e *MembershipStateError) Unwrap() error {
	return e.Kind
}

// ConfigurationError is returned when a component is built without the
// credentials it needs.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// ProviderAPIError is a non-2xx answer from the billing provider. It is never retried.
type ProviderAPIError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *ProviderAPIError) Error() string {
	return fmt.Sprintf("LemonSqueezy API error (%d): %s", e.StatusCode, e.Detail)
}

// MaxRetriesExceededError is returned once transport failures exhaust the retry budget.
type MaxRetriesExceededError struct {
	Method   string
	Path     string
	Attempts int
	Err      error
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("LemonSqueezy request %s %s failed after %d attempts: %v", e.Method, e.Path, e.Attempts, e.Err)
}

func (e *MaxRetriesExceededError) Unwrap() error {
	return e.Err
}

// DatabaseError wraps a failed store operation.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("Database error: failed to %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError wraps err unless it is nil or already a DatabaseError.
func NewDatabaseError(op string, err error) error {
	if err == nil {
		return nil
	}
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return err
	}
	return &DatabaseError{Op: op, Err: err}
}
