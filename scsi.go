// Package scsi executes raw SCSI command descriptor blocks against devices
// reachable over pluggable transports (Linux sg, libiscsi).
//
// Transports register themselves when imported:
//
//	import (
//		scsi "github.com/willgorman/goscsi"
//		_ "github.com/willgorman/goscsi/iscsi"
//		_ "github.com/willgorman/goscsi/sgio"
//	)
package scsi

import (
	"fmt"
	"time"
)

// Status is the normalized outcome of Execute. The values mirror the SCSI
// status byte, plus a catch-all for failures below the SCSI layer.
type Status byte

const (
	StatusGood           Status = 0x00
	StatusCheckCondition Status = 0x02
	StatusTransportError Status = 0xff
)

func (s Status) String() string {
	switch s {
	case StatusGood:
		return "GOOD"
	case StatusCheckCondition:
		return "CHECK CONDITION"
	case StatusTransportError:
		return "TRANSPORT ERROR"
	}
	return fmt.Sprintf("Status(%#02x)", byte(s))
}

// Raw SCSI status bytes a target can report (SAM-5 5.3).
const (
	TargetStatusGood                byte = 0x00
	TargetStatusCheckCondition      byte = 0x02
	TargetStatusConditionMet        byte = 0x04
	TargetStatusBusy                byte = 0x08
	TargetStatusReservationConflict byte = 0x18
	TargetStatusTaskSetFull         byte = 0x28
	TargetStatusACAActive           byte = 0x30
	TargetStatusTaskAborted         byte = 0x40
)

// Direction of the data phase of a command.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionToDevice
	DirectionFromDevice
)

func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "none"
	case DirectionToDevice:
		return "to-device"
	case DirectionFromDevice:
		return "from-device"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// Command is a single CDB plus the caller's buffers. The buffers are only
// borrowed for the duration of Execute.
type Command struct {
	CDB     []byte
	DataOut []byte
	DataIn  []byte
	Sense   []byte

	// Timeout overrides the handle's default when non-zero.
	Timeout time.Duration
}

// Direction derives the transfer direction from the buffer lengths.
func (c *Command) Direction() (Direction, error) {
	switch {
	case len(c.DataOut) > 0 && len(c.DataIn) > 0:
		return DirectionNone, ErrAmbiguousDirection
	case len(c.DataOut) > 0:
		return DirectionToDevice, nil
	case len(c.DataIn) > 0:
		return DirectionFromDevice, nil
	}
	return DirectionNone, nil
}

// Result of one Execute call.
type Result struct {
	Status Status
	// DataLen is the number of bytes written into Command.DataIn.
	DataLen int
	// SenseLen is the number of bytes written into Command.Sense.
	SenseLen int
	// TargetStatus is the raw status byte reported by the target, when the
	// transport got that far.
	TargetStatus byte
	Duration     time.Duration
}

// Request is what a Transport is asked to run. Data is the transfer buffer
// for the direction in Direction, nil when Direction is DirectionNone.
type Request struct {
	CDB       []byte
	Direction Direction
	Data      []byte
	Sense     []byte
	Timeout   time.Duration
}

// Transport is implemented by each backing transport. Implementations are
// not required to be safe for concurrent use; Device serializes access.
type Transport interface {
	// Execute submits the request and blocks until it completes. A non-nil
	// error means the transport itself failed.
	Execute(req *Request) (Result, error)
	// MaxCDBLength is the longest CDB the transport accepts.
	MaxCDBLength() int
	Close() error
}

func clamp(n, capacity int) int {
	if n < 0 {
		return 0
	}
	if n > capacity {
		return capacity
	}
	return n
}
