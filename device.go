package scsi

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Device is a handle bound to one transport and one target. Use Open to get
// one; the zero value is a never-opened handle.
type Device struct {
	mu        sync.Mutex
	kind      Kind
	address   string
	transport Transport
	timeout   time.Duration
	closed    bool
}

// Open binds a handle to the device or target at address.
func Open(address string, opts Options) (*Device, error) {
	opts = opts.withDefaults()
	kind := opts.Transport
	if kind == "" {
		kind = DetectKind(address)
	}
	if address == "" {
		return nil, &OpenError{Kind: kind, Address: address, Err: fmt.Errorf("empty address")}
	}

	open, ok := lookupTransport(kind)
	if !ok {
		return nil, &OpenError{
			Kind:    kind,
			Address: address,
			Err:     fmt.Errorf("%w: %q is not registered (registered: %v)", ErrUnsupportedTransport, kind, Transports()),
		}
	}

	log := logger.WithFields(logrus.Fields{"transport": kind, "address": address})
	start := time.Now()
	t, err := open(address, opts)
	if err != nil {
		log.WithError(err).Debug("open failed")
		return nil, &OpenError{Kind: kind, Address: address, Err: err}
	}
	log.WithField("took", time.Since(start)).Debug("opened device")

	return &Device{
		kind:      kind,
		address:   address,
		transport: t,
		timeout:   opts.Timeout,
	}, nil
}

// Kind reports the transport the handle is bound to.
func (d *Device) Kind() Kind { return d.kind }

// Address reports the address the handle was opened with.
func (d *Device) Address() string { return d.address }

// Execute runs one command and blocks until the transport returns.
//
// A CHECK CONDITION is a successful return: the error is nil and
// Result.Status is StatusCheckCondition. A non-nil error is either a
// *UsageError (nothing was sent) or a *TransportError, in which case
// Result.Status is StatusTransportError.
func (d *Device) Execute(cmd *Command) (Result, error) {
	if d == nil {
		return Result{Status: StatusTransportError}, &UsageError{Op: "execute", Err: ErrNotOpen}
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usable("execute"); err != nil {
		return Result{Status: StatusTransportError}, err
	}
	if cmd == nil {
		return Result{Status: StatusTransportError}, &UsageError{Op: "execute", Err: fmt.Errorf("nil command")}
	}
	if len(cmd.CDB) == 0 {
		return Result{Status: StatusTransportError}, &UsageError{Op: "execute", Err: fmt.Errorf("%w: empty", ErrInvalidCDB)}
	}
	if limit := d.transport.MaxCDBLength(); len(cmd.CDB) > limit {
		return Result{Status: StatusTransportError}, &UsageError{
			Op:  "execute",
			Err: fmt.Errorf("%w: %d bytes, %s allows %d", ErrInvalidCDB, len(cmd.CDB), d.kind, limit),
		}
	}
	dir, err := cmd.Direction()
	if err != nil {
		return Result{Status: StatusTransportError}, &UsageError{Op: "execute", Err: err}
	}

	req := &Request{
		CDB:       cmd.CDB,
		Direction: dir,
		Sense:     cmd.Sense,
		Timeout:   d.timeout,
	}
	if cmd.Timeout > 0 {
		req.Timeout = cmd.Timeout
	}
	switch dir {
	case DirectionToDevice:
		req.Data = cmd.DataOut
	case DirectionFromDevice:
		req.Data = cmd.DataIn
	}

	start := time.Now()
	res, err := d.transport.Execute(req)
	res.Duration = time.Since(start)

	log := logger.WithFields(logrus.Fields{
		"transport": d.kind,
		"address":   d.address,
		"opcode":    fmt.Sprintf("%#02x", cmd.CDB[0]),
	})
	if err != nil {
		log.WithError(err).Debug("transport error")
		return Result{Status: StatusTransportError, TargetStatus: res.TargetStatus, Duration: res.Duration},
			&TransportError{Kind: d.kind, Address: d.address, Opcode: cmd.CDB[0], Err: err}
	}

	switch res.Status {
	case StatusGood:
		res.SenseLen = 0
		if dir == DirectionFromDevice {
			res.DataLen = clamp(res.DataLen, len(cmd.DataIn))
		} else {
			res.DataLen = 0
		}
	case StatusCheckCondition:
		res.DataLen = 0
		res.SenseLen = clamp(res.SenseLen, len(cmd.Sense))
	default:
		log.WithField("status", res.Status).Debug("transport returned unknown status")
		return Result{Status: StatusTransportError, TargetStatus: res.TargetStatus, Duration: res.Duration},
			&TransportError{
				Kind:    d.kind,
				Address: d.address,
				Opcode:  cmd.CDB[0],
				Err:     fmt.Errorf("transport returned status %v", res.Status),
			}
	}

	log.WithFields(logrus.Fields{
		"status":   res.Status,
		"datalen":  res.DataLen,
		"senselen": res.SenseLen,
		"took":     res.Duration,
	}).Debug("executed command")
	return res, nil
}

// Close releases the transport. Closing twice, or closing a handle that was
// never opened, is a *UsageError.
func (d *Device) Close() error {
	if d == nil {
		return &UsageError{Op: "close", Err: ErrNotOpen}
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usable("close"); err != nil {
		return err
	}
	d.closed = true
	t := d.transport
	d.transport = nil

	log := logger.WithFields(logrus.Fields{"transport": d.kind, "address": d.address})
	if err := t.Close(); err != nil {
		log.WithError(err).Debug("close failed")
		return &CloseError{Kind: d.kind, Address: d.address, Err: err}
	}
	log.Debug("closed device")
	return nil
}

func (d *Device) usable(op string) error {
	if d.closed {
		return &UsageError{Op: op, Err: ErrClosed}
	}
	if d.transport == nil {
		return &UsageError{Op: op, Err: ErrNotOpen}
	}
	return nil
}
