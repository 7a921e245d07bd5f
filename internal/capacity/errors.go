package capacity

import "errors"

// Validation errors
var (
	// ErrNegativeUsage indicates a usage value below zero
	ErrNegativeUsage = errors.New("units used must not be negative")

	// ErrInvalidJob indicates a job with a negative quantity or non-positive dimensions
	ErrInvalidJob = errors.New("job quantity must be >= 0 and dimensions must be > 0")

	// ErrInvalidMachine indicates a machine without a name
	ErrInvalidMachine = errors.New("machine name is required")

	// ErrDerivedUsage indicates a manual edit of a usage derived from jobs
	ErrDerivedUsage = errors.New("usage is derived from jobs and cannot be edited manually")
)

// Lookup errors
var (
	// ErrUnknownMachine indicates the machine is not on the current board
	ErrUnknownMachine = errors.New("unknown machine")

	// ErrUnknownJob indicates the job is not on the current board
	ErrUnknownJob = errors.New("unknown job")

	// ErrNotFound indicates the backend has no such row
	ErrNotFound = errors.New("not found")
)

// Access errors
var (
	// ErrForbidden indicates the caller's permission level lacks the capability
	ErrForbidden = errors.New("permission denied")
)

// View errors
var (
	// ErrStaleView indicates a response arrived after the selected day or
	// report changed and was discarded
	ErrStaleView = errors.New("view changed before the response arrived")

	// ErrNotLoaded indicates an operation on a board that has no day loaded
	ErrNotLoaded = errors.New("no day loaded")
)
