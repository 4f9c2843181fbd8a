// Package errs holds the domain error taxonomy shared by the store, the
// lifecycle service and the chat/HTTP surfaces.
package errs

import "errors"

// Validation errors: reported to the initiator, nothing mutated.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrDepartmentNotFound = errors.New("department not found")
)

// Authorization errors.
var (
	ErrForbidden      = errors.New("operation requires staff privileges")
	ErrNotDialogOwner = errors.New("dialog belongs to another operator")
)

// Lifecycle conflicts: reported as a no-op.
var (
	ErrTerminalState     = errors.New("ticket is closed")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrDialogBusy        = errors.New("dialog already active")
	ErrNoDialog          = errors.New("no active dialog")
)

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrDepartmentNotFound)
}

// IsAuthorization reports whether err is an authorization failure.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotDialogOwner)
}

// IsConflict reports whether err is a lifecycle conflict that left state unchanged.
func IsConflict(err error) bool {
	return errors.Is(err, ErrTerminalState) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDialogBusy) ||
		errors.Is(err, ErrNoDialog)
}
