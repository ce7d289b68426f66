package voc

import (
	"errors"
	"fmt"
)

var (
	// ErrVehicleNotFound indicates no vehicle matched the requested
	// identifier, or the account has no vehicles at all.
	ErrVehicleNotFound = errors.New("vehicle not found")
	// ErrUnknownAttribute indicates a requested attribute is not present in
	// the vehicle's state.
	ErrUnknownAttribute = errors.New("unknown attribute")
	// ErrNotSupported indicates the vehicle does not support the requested
	// remote command.
	ErrNotSupported = errors.New("not supported by this vehicle")
)

// RemoteCommandError reports that the service rejected a remote method call
// or never confirmed delivery to the vehicle.
type RemoteCommandError struct {
	Method string
	Status string
}

func (e *RemoteCommandError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("remote call %q failed", e.Method)
	}
	return fmt.Sprintf("remote call %q failed with status %q", e.Method, e.Status)
}
