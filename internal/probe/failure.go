package probe

import (
	"context"
	"errors"
	"net"

	domprobe "github.com/kailas-cloud/cvgen/internal/domain/probe"
)

// Failure is a probe failure with a stable error code.
type Failure struct {
	Code string
	Err  error
}

func (f *Failure) Error() string { return f.Code + ": " + f.Err.Error() }

func (f *Failure) Unwrap() error { return f.Err }

// Fail wraps err with a code.
func Fail(code string, err error) error {
	return &Failure{Code: code, Err: err}
}

// CodeOf maps an error returned by a probe to the code recorded on its result.
// Uncoded errors are classified as timeout, unreachable or unknown_error.
func CodeOf(err error) string {
	var f *Failure
	if errors.As(err, &f) && f.Code != "" {
		return f.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domprobe.CodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domprobe.CodeTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domprobe.CodeUnreachable
	}
	return domprobe.CodeUnknown
}
