package text

import "errors"

var ErrInvalidPolicy = errors.New("invalid chunk policy")

// ChunkingError marks a document that cannot be split into work units.
// A job that hits it never starts.
type ChunkingError struct {
	Reason string
	Err    error
}

func (e *ChunkingError) Error() string {
	if e.Err != nil {
		return "chunking failed: " + e.Reason + ": " + e.Err.Error()
	}
	return "chunking failed: " + e.Reason
}

func (e *ChunkingError) Unwrap() error {
	return e.Err
}

// IsChunkingError reports whether err carries a ChunkingError.
func IsChunkingError(err error) bool {
	var ce *ChunkingError
	return errors.As(err, &ce)
}
