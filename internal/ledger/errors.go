package ledger

import "errors"

// Ledger errors. Every mutating operation either fully commits or fails with
// one of these; callers match with errors.Is.
var (
	// Input validation.
	ErrEmptyURI          = errors.New("descriptor URI is empty")
	ErrRatingOutOfBounds = errors.New("rating outside [1,100]")
	ErrIndexOutOfBounds  = errors.New("index out of bounds")

	// Authorization.
	ErrNotOwner       = errors.New("caller is not the agent owner")
	ErrSelfRating     = errors.New("reviewer owns the rated agent")
	ErrSelfValidation = errors.New("validator requested this validation")

	// State conflict.
	ErrAlreadyRegistered = errors.New("owner already has a registered agent")
	ErrAlreadyValidated  = errors.New("validation already has a response")
	ErrRateLimited       = errors.New("reviewer rated this agent within the window")
	ErrInsufficientBond  = errors.New("bond below required amount")
	ErrSystemPaused      = errors.New("registry is paused")

	// Not found.
	ErrAgentNotFound      = errors.New("agent not found")
	ErrValidationNotFound = errors.New("validation not found")
)
