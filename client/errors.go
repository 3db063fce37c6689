package client

import (
	"errors"
	"fmt"

	"github.com/tomyedwab/sqlbridge/bridge/types"
)

var (
	// ErrClosed is returned by calls made after Shutdown.
	ErrClosed = errors.New("client is closed")
	// ErrExited is returned when the bridge process is no longer running.
	ErrExited = errors.New("bridge process exited")
)

// BridgeError is an error response returned by the bridge.
type BridgeError struct {
	Kind    types.ErrorKind
	Details string
}

// Error implements the error interface
func (e *BridgeError) Error() string {
	if e.Details == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Details)
}

// IsKind checks if the error is of a specific kind
func (e *BridgeError) IsKind(kind types.ErrorKind) bool {
	return e.Kind == kind
}

// IsKind reports whether err is a BridgeError of the given kind.
func IsKind(err error, kind types.ErrorKind) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.IsKind(kind)
}
