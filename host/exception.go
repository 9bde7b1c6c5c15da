package host

import "errors"

// Exception is the host-observable form of every recoverable failure. Its
// message is the failure's display text, unchanged.
type Exception struct {
	Message string
	cause   error
}

// Project converts err into an Exception. It returns nil for a nil error and
// err itself when it already is an Exception.
func Project(err error) *Exception {
	if err == nil {
		return nil
	}
	var exc *Exception
	if errors.As(err, &exc) {
		return exc
	}
	return &Exception{Message: err.Error(), cause: err}
}

func (*Exception) Type() string { return "Exception" }

func (e *Exception) Error() string { return e.Message }

// Unwrap returns the failure the exception was projected from.
func (e *Exception) Unwrap() error { return e.cause }
