package models

import "errors"

var (
	// ErrNotFound indicates the target bill, job or food does not exist (anymore).
	ErrNotFound = errors.New("not found")

	// ErrWriteFailed indicates the document store rejected a write.
	ErrWriteFailed = errors.New("write failed")

	// ErrInvalidBill indicates the submitted bill fields break a validation rule.
	ErrInvalidBill = errors.New("invalid bill")

	// ErrInvalidFood indicates the submitted food breaks a validation rule.
	ErrInvalidFood = errors.New("invalid food")

	// ErrUnknownChannel indicates a print channel name that is neither client nor kitchen.
	ErrUnknownChannel = errors.New("unknown print channel")

	// ErrMutationLocked indicates a print job is still in flight on one of the channels.
	ErrMutationLocked = errors.New("bill is locked while a print job is in flight")

	// ErrConfirmationRequired indicates a print was requested without explicit confirmation.
	ErrConfirmationRequired = errors.New("print requires confirmation")

	// ErrRevisionConflict indicates the bill changed between read and write (strict revisions only).
	ErrRevisionConflict = errors.New("bill was modified concurrently")

	// ErrNotEditing indicates an edit was submitted without opening the edit form first.
	ErrNotEditing = errors.New("bill is not in edit mode")
)
