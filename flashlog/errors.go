package flashlog

import "github.com/pkg/errors"

// Error kinds callers branch on with errors.Is. The set mirrors the
// firmware status codes one for one; wrapped errors keep the kind as
// their cause.
var (
	// ErrParam marks a nil or out-of-range argument.
	ErrParam = errors.New("flashlog: invalid argument")
	// ErrInit marks an operation on a log that is not open.
	ErrInit = errors.New("flashlog: log not initialized")
	// ErrFlash marks a failed block-device operation.
	ErrFlash = errors.New("flashlog: flash i/o failed")
	// ErrFull marks a write into a full log when wraparound is disabled.
	ErrFull = errors.New("flashlog: log full")
	// ErrEmpty marks a read beyond the available records.
	ErrEmpty = errors.New("flashlog: record offset out of range")
	// ErrCRC marks a stored record that failed its integrity check,
	// either genuine corruption or never-written flash read as a record.
	ErrCRC = errors.New("flashlog: record failed integrity check")
)
