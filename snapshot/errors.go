package snapshot

import (
	"errors"
	"fmt"

	"github.com/chazu/mksnapshot/compress"
)

// IOError reports a failed operation on one of the artifact files.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// CompressionError reports a failed Compress call. Code is the
// strategy's algorithm-specific failure code when it exposes one.
type CompressionError struct {
	Stream    string
	Algorithm compress.Algorithm
	Code      int
	Err       error
}

func (e *CompressionError) Error() string {
	msg := fmt.Sprintf("compression of %s stream failed (%v error code: %d)", e.Stream, e.Algorithm, e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CompressionError) Unwrap() error { return e.Err }

// ErrShortWrite is wrapped by the IOError returned when a raw side file
// accepted fewer bytes than its stream holds.
var ErrShortWrite = errors.New("short write")

// ErrOmitted is returned when a consumer tries to load an artifact that
// was generated with its contents omitted.
var ErrOmitted = errors.New("snapshot: artifact was generated without contents")
