package transport

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var ErrEmptyAddress = errors.New("empty node address")

// CallError is a failed remote call: the spoke was unreachable, timed out or
// the retry budget was exhausted.
type CallError struct {
	Method  Method
	Address string
	Err     error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s call to %s failed: %s", e.Method, e.Address, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func (e *CallError) Code() codes.Code {
	return status.Code(e.Err)
}

// IsCallError reports whether err originated in the transport layer.
func IsCallError(err error) bool {
	var ce *CallError

	return errors.As(err, &ce)
}
