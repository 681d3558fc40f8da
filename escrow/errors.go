package escrow

import "errors"

// Every rejection is a distinct, recoverable condition the gateway renders as
// a user-facing message. None of these terminate anything.
var (
	// ErrNotFound means the referenced escrow id does not exist (or was
	// cancelled, which removes the record).
	ErrNotFound = errors.New("escrow not found")

	// ErrWrongRole means the actor is not the party the action requires.
	ErrWrongRole = errors.New("actor is not the required party")

	// ErrInvalidState means the action does not apply to the current status.
	ErrInvalidState = errors.New("action not valid for current status")

	// ErrAlreadyTerminal means the escrow is completed (or cancelled) and
	// accepts no further transitions.
	ErrAlreadyTerminal = errors.New("escrow already terminal")

	// ErrConflict means a concurrent transition raced and won; the stored
	// status no longer matches the expected one. Safe to retry the whole
	// command.
	ErrConflict = errors.New("concurrent transition conflict")
)
