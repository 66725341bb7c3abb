package scsi

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedTransport is returned when no usable transport exists for
	// an address, or the transport rejects the device (old sg driver, library
	// not built in).
	ErrUnsupportedTransport = errors.New("unsupported transport")

	// ErrClosed is returned when using a handle after Close.
	ErrClosed = errors.New("device is closed")

	// ErrNotOpen is returned when using a handle that Open never returned.
	ErrNotOpen = errors.New("device was never opened")

	// ErrAmbiguousDirection is returned when a command carries both a
	// data-out and a data-in buffer.
	ErrAmbiguousDirection = errors.New("both data-out and data-in buffers supplied")

	// ErrInvalidCDB is returned for an empty CDB or one longer than the
	// transport allows.
	ErrInvalidCDB = errors.New("invalid CDB")
)

// OpenError reports a failure to open a device. No transport resources are
// held once it is returned.
type OpenError struct {
	Kind    Kind
	Address string
	Err     error
}

func (e *OpenError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("open %s: %v", e.Address, e.Err)
	}
	return fmt.Sprintf("open %s %s: %v", e.Kind, e.Address, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// TransportError reports that the transport call itself failed during
// Execute. The handle should be closed and reopened to get back to a known
// state.
type TransportError struct {
	Kind    Kind
	Address string
	Opcode  byte
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: opcode %#02x: %v", e.Kind, e.Address, e.Opcode, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CloseError reports a failure while tearing down the transport. The handle
// is closed regardless.
type CloseError struct {
	Kind    Kind
	Address string
	Err     error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("close %s %s: %v", e.Kind, e.Address, e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }

// UsageError reports a programming error: a bad handle state or malformed
// arguments. It is never worth retrying.
type UsageError struct {
	Op  string
	Err error
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UsageError) Unwrap() error { return e.Err }

// CheckConditionError is returned by the convenience commands when the
// target answers CHECK CONDITION. Execute itself never returns it.
type CheckConditionError struct {
	Opcode byte
	Sense  Sense
	Raw    []byte
}

func (e *CheckConditionError) Error() string {
	return fmt.Sprintf("opcode %#02x: check condition: %s", e.Opcode, e.Sense)
}

// StatusError is reported by transports, wrapped in a TransportError, when
// a target answers with a status other than GOOD or CHECK CONDITION.
type StatusError struct {
	TargetStatus byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected SCSI status %#02x", e.TargetStatus)
}
