package scsi

import (
	"errors"
	"sync"
	"testing"
	"time"

	"gotest.tools/assert"
)

func TestOpenUnregisteredKind(t *testing.T) {
	_, err := Open("/dev/sg0", Options{Transport: "carrier-pigeon"})
	var openErr *OpenError
	assert.Assert(t, errors.As(err, &openErr))
	assert.Equal(t, openErr.Kind, Kind("carrier-pigeon"))
	assert.Assert(t, errors.Is(err, ErrUnsupportedTransport))
}

func TestOpenEmptyAddress(t *testing.T) {
	_, err := Open("", Options{Transport: kindFake})
	var openErr *OpenError
	assert.Assert(t, errors.As(err, &openErr))
}

func TestOpenTransportFailure(t *testing.T) {
	_, err := Open("missing", Options{Transport: kindFake})
	var openErr *OpenError
	assert.Assert(t, errors.As(err, &openErr))
	assert.ErrorContains(t, err, "no such fake device")
	assert.Equal(t, openErr.Address, "missing")
}

func TestDetectKind(t *testing.T) {
	assert.Equal(t, DetectKind("iscsi://10.0.0.1/iqn.x/0"), KindISCSI)
	assert.Equal(t, DetectKind("ISCSI://10.0.0.1/iqn.x/0"), KindISCSI)
	assert.Equal(t, DetectKind("/dev/sg1"), KindSG)
	assert.Equal(t, DetectKind("sg1"), KindSG)
}

func TestRegisterTransportDuplicate(t *testing.T) {
	defer func() {
		assert.Assert(t, recover() != nil)
	}()
	RegisterTransport(kindFake, func(string, Options) (Transport, error) { return nil, nil })
}

func TestTransportsListsFake(t *testing.T) {
	found := false
	for _, k := range Transports() {
		if k == kindFake {
			found = true
		}
	}
	assert.Assert(t, found)
}

func TestLifecycle(t *testing.T) {
	f := &fakeTransport{}
	d, err := newFake("lifecycle", f)
	assert.NilError(t, err)
	assert.Equal(t, d.Kind(), kindFake)
	assert.Equal(t, d.Address(), "lifecycle")

	res, err := d.Execute(&Command{CDB: make([]byte, 6)})
	assert.NilError(t, err)
	assert.Equal(t, res.Status, StatusGood)
	assert.Equal(t, res.DataLen, 0)
	assert.Equal(t, res.SenseLen, 0)

	assert.NilError(t, d.Close())
	assert.Equal(t, f.closes, 1)

	err = d.Close()
	var usage *UsageError
	assert.Assert(t, errors.As(err, &usage))
	assert.Assert(t, errors.Is(err, ErrClosed))
	assert.Equal(t, f.closes, 1)

	res, err = d.Execute(&Command{CDB: make([]byte, 6)})
	assert.Assert(t, errors.Is(err, ErrClosed))
	assert.Equal(t, res.Status, StatusTransportError)
	assert.Equal(t, len(f.requests), 1)
}

func TestZeroValueDevice(t *testing.T) {
	var d Device
	err := d.Close()
	var usage *UsageError
	assert.Assert(t, errors.As(err, &usage))
	assert.Assert(t, errors.Is(err, ErrNotOpen))

	_, err = d.Execute(&Command{CDB: make([]byte, 6)})
	assert.Assert(t, errors.Is(err, ErrNotOpen))

	var nilDevice *Device
	assert.Assert(t, errors.Is(nilDevice.Close(), ErrNotOpen))
	_, err = nilDevice.Execute(&Command{CDB: make([]byte, 6)})
	assert.Assert(t, errors.Is(err, ErrNotOpen))
}

func TestCloseFailureStillCloses(t *testing.T) {
	f := &fakeTransport{closeErr: errors.New("logout failed")}
	d, err := newFake("close-failure", f)
	assert.NilError(t, err)

	err = d.Close()
	var closeErr *CloseError
	assert.Assert(t, errors.As(err, &closeErr))
	assert.ErrorContains(t, err, "logout failed")

	assert.Assert(t, errors.Is(d.Close(), ErrClosed))
	_, err = d.Execute(&Command{CDB: make([]byte, 6)})
	assert.Assert(t, errors.Is(err, ErrClosed))
}

func TestExecuteValidation(t *testing.T) {
	f := &fakeTransport{maxCDB: 16}
	d, err := newFake("validation", f)
	assert.NilError(t, err)
	defer d.Close()

	for name, cmd := range map[string]*Command{
		"nil":       nil,
		"empty cdb": {},
		"long cdb":  {CDB: make([]byte, 17)},
		"both":      {CDB: make([]byte, 6), DataOut: make([]byte, 1), DataIn: make([]byte, 1)},
	} {
		res, err := d.Execute(cmd)
		var usage *UsageError
		assert.Assert(t, errors.As(err, &usage), name)
		assert.Equal(t, res.Status, StatusTransportError, name)
	}
	assert.Equal(t, len(f.requests), 0)

	_, err = d.Execute(&Command{CDB: make([]byte, 16)})
	assert.NilError(t, err)

	_, err = d.Execute(&Command{CDB: make([]byte, 6), DataOut: make([]byte, 1), DataIn: make([]byte, 1)})
	assert.Assert(t, errors.Is(err, ErrAmbiguousDirection))
}

func TestExecuteRequest(t *testing.T) {
	f := &fakeTransport{}
	d, err := newFake("request", f)
	assert.NilError(t, err)
	defer d.Close()

	out := []byte{1, 2, 3}
	_, err = d.Execute(&Command{CDB: []byte{OpWrite16}, DataOut: out})
	assert.NilError(t, err)
	req := f.last()
	assert.Equal(t, req.Direction, DirectionToDevice)
	assert.DeepEqual(t, req.Data, out)
	assert.Equal(t, req.Timeout, DefaultTimeout)

	in := make([]byte, 4)
	_, err = d.Execute(&Command{CDB: []byte{OpRead16}, DataIn: in, Timeout: time.Second})
	assert.NilError(t, err)
	req = f.last()
	assert.Equal(t, req.Direction, DirectionFromDevice)
	assert.Equal(t, len(req.Data), 4)
	assert.Equal(t, req.Timeout, time.Second)

	_, err = d.Execute(&Command{CDB: []byte{OpTestUnitReady}})
	assert.NilError(t, err)
	req = f.last()
	assert.Equal(t, req.Direction, DirectionNone)
	assert.Assert(t, req.Data == nil)
}

func TestExecuteClampsResult(t *testing.T) {
	f := &fakeTransport{reply: func(req *Request) (Result, error) {
		if req.CDB[0] == 0x01 {
			return Result{Status: StatusCheckCondition, SenseLen: 255, DataLen: 7}, nil
		}
		return Result{Status: StatusGood, DataLen: 4096, SenseLen: 12}, nil
	}}
	d, err := newFake("clamp", f)
	assert.NilError(t, err)
	defer d.Close()

	res, err := d.Execute(&Command{CDB: []byte{0x12}, DataIn: make([]byte, 36), Sense: make([]byte, 32)})
	assert.NilError(t, err)
	assert.Equal(t, res.DataLen, 36)
	assert.Equal(t, res.SenseLen, 0)

	// no data-in buffer, nothing can have been written to it
	res, err = d.Execute(&Command{CDB: []byte{0x00}, DataOut: make([]byte, 512)})
	assert.NilError(t, err)
	assert.Equal(t, res.DataLen, 0)

	res, err = d.Execute(&Command{CDB: []byte{0x01}, DataIn: make([]byte, 36), Sense: make([]byte, 18)})
	assert.NilError(t, err)
	assert.Equal(t, res.Status, StatusCheckCondition)
	assert.Equal(t, res.SenseLen, 18)
	assert.Equal(t, res.DataLen, 0)

	res, err = d.Execute(&Command{CDB: []byte{0x01}})
	assert.NilError(t, err)
	assert.Equal(t, res.SenseLen, 0)
}

func TestExecuteTransportError(t *testing.T) {
	f := &fakeTransport{reply: func(req *Request) (Result, error) {
		return Result{Status: StatusTransportError, TargetStatus: TargetStatusBusy},
			&StatusError{TargetStatus: TargetStatusBusy}
	}}
	d, err := newFake("transport-error", f)
	assert.NilError(t, err)
	defer d.Close()

	res, err := d.Execute(&Command{CDB: []byte{0x28, 0, 0, 0, 0, 0, 0, 0, 1, 0}, DataIn: make([]byte, 512)})
	assert.Equal(t, res.Status, StatusTransportError)
	assert.Equal(t, res.DataLen, 0)
	assert.Equal(t, res.TargetStatus, TargetStatusBusy)

	var terr *TransportError
	assert.Assert(t, errors.As(err, &terr))
	assert.Equal(t, terr.Opcode, byte(0x28))
	assert.Equal(t, terr.Kind, kindFake)
	var serr *StatusError
	assert.Assert(t, errors.As(err, &serr))
	assert.ErrorContains(t, err, "unexpected SCSI status 0x8")

	// the handle stays usable
	f.reply = nil
	_, err = d.Execute(&Command{CDB: make([]byte, 6)})
	assert.NilError(t, err)
}

func TestExecuteUnknownStatus(t *testing.T) {
	f := &fakeTransport{reply: func(req *Request) (Result, error) {
		return Result{Status: Status(0x08)}, nil
	}}
	d, err := newFake("unknown-status", f)
	assert.NilError(t, err)
	defer d.Close()

	res, err := d.Execute(&Command{CDB: make([]byte, 6)})
	assert.Equal(t, res.Status, StatusTransportError)
	var terr *TransportError
	assert.Assert(t, errors.As(err, &terr))
}

func TestExecuteSerialized(t *testing.T) {
	f := &fakeTransport{reply: func(req *Request) (Result, error) {
		time.Sleep(time.Millisecond)
		return Result{Status: StatusGood}, nil
	}}
	d, err := newFake("serialized", f)
	assert.NilError(t, err)
	defer d.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = d.Execute(&Command{CDB: make([]byte, 6)})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, len(f.requests), 80)
	assert.Assert(t, !f.overlap)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, StatusGood.String(), "GOOD")
	assert.Equal(t, StatusCheckCondition.String(), "CHECK CONDITION")
	assert.Equal(t, StatusTransportError.String(), "TRANSPORT ERROR")
	assert.Equal(t, Status(0x08).String(), "Status(0x8)")
	assert.Equal(t, DirectionFromDevice.String(), "from-device")
}
