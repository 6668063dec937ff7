package hub

import (
	"errors"
	"fmt"
)

// ErrNotConnected matches every NotConnectedError via errors.Is.
var ErrNotConnected = errors.New("hub connection not established")

// NotConnectedError is returned when a command is attempted while the
// connection is not in the Connected state. Nothing is sent.
type NotConnectedError struct {
	Target string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("cannot invoke %s: %v", e.Target, ErrNotConnected)
}

func (e *NotConnectedError) Is(target error) bool { return target == ErrNotConnected }

// InvocationError is a hub RPC that was sent but failed, either in the
// transport or on the hub side.
type InvocationError struct {
	Target string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke %s: %v", e.Target, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
