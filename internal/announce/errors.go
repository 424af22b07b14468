package announce

import (
	"fmt"
	"github.com/pkg/errors"
)

// TransportError means the tracker could not be reached or did not answer in time.
type TransportError struct {
	Tracker string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to reach tracker '%s': %v", e.Tracker, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError means the tracker answered something we can not make use of.
type ProtocolError struct {
	Tracker string
	Reason  string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unexpected response from tracker '%s': %s: %v", e.Tracker, e.Reason, e.Err)
	}
	return fmt.Sprintf("unexpected response from tracker '%s': %s", e.Tracker, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func IsTransportError(err error) bool {
	var transportError *TransportError
	return errors.As(err, &transportError)
}

func IsProtocolError(err error) bool {
	var protocolError *ProtocolError
	return errors.As(err, &protocolError)
}
