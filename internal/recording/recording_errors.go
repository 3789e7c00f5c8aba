package recording

import "errors"

var (
	ErrValidation        = errors.New("validation error")
	ErrUnknownSession    = errors.New("unknown session")
	ErrInvalidState      = errors.New("invalid session state")
	ErrNoData            = errors.New("no recording data")
	ErrChunkTooLarge     = errors.New("chunk too large")
	ErrIDExhausted       = errors.New("could not allocate session id")
	ErrRecordingNotFound = errors.New("recording not found")
)
