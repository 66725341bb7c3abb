package scsi

import (
	"encoding/binary"
	"errors"
	"sync"
)

const kindFake Kind = "fake"

// fakeTransport answers every request with a canned reply. Each address
// passed to Open gets its own instance, looked up in fakes.
type fakeTransport struct {
	maxCDB   int
	reply    func(req *Request) (Result, error)
	closeErr error

	mu       sync.Mutex
	requests []Request
	closes   int
	inFlight int
	overlap  bool
}

var (
	fakesMu sync.Mutex
	fakes   = map[string]*fakeTransport{}
)

func init() {
	RegisterTransport(kindFake, func(address string, opts Options) (Transport, error) {
		fakesMu.Lock()
		defer fakesMu.Unlock()
		f, ok := fakes[address]
		if !ok {
			return nil, errors.New("no such fake device")
		}
		return f, nil
	})
}

// newFake registers a fake under address and opens a handle to it.
func newFake(address string, f *fakeTransport) (*Device, error) {
	if f.maxCDB == 0 {
		f.maxCDB = 16
	}
	fakesMu.Lock()
	fakes[address] = f
	fakesMu.Unlock()
	return Open(address, Options{Transport: kindFake})
}

func (f *fakeTransport) Execute(req *Request) (Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, *req)
	f.inFlight++
	if f.inFlight > 1 {
		f.overlap = true
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	if f.reply == nil {
		return Result{Status: StatusGood}, nil
	}
	return f.reply(req)
}

func (f *fakeTransport) MaxCDBLength() int { return f.maxCDB }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.closeErr
}

func (f *fakeTransport) last() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// fakeDisk is a tiny block device behind the fake transport, enough for the
// convenience commands and the reader and writer.
type fakeDisk struct {
	blockSize int
	data      []byte
}

func (d *fakeDisk) reply(req *Request) (Result, error) {
	check := func(key SenseKey, asc, ascq byte) (Result, error) {
		sense := make([]byte, 18)
		sense[0] = SenseFormatCurrentFixed
		sense[2] = byte(key)
		sense[7] = 10
		sense[12] = asc
		sense[13] = ascq
		return Result{Status: StatusCheckCondition, SenseLen: copy(req.Sense, sense), TargetStatus: TargetStatusCheckCondition}, nil
	}
	blocks := uint64(len(d.data) / d.blockSize)
	cdb := req.CDB
	switch cdb[0] {
	case OpTestUnitReady:
		return Result{Status: StatusGood}, nil
	case OpInquiry:
		page := make([]byte, InquiryLength)
		page[0] = 0x00
		page[2] = 0x06
		copy(page[8:], "GOSCSI  ")
		copy(page[16:], "FAKE DISK       ")
		copy(page[32:], "0001")
		return Result{Status: StatusGood, DataLen: copy(req.Data, page)}, nil
	case OpReadCapacity10:
		buf := make([]byte, 8)
		lba := blocks - 1
		if lba > 0xffffffff {
			lba = 0xffffffff
		}
		binary.BigEndian.PutUint32(buf[0:4], uint32(lba))
		binary.BigEndian.PutUint32(buf[4:8], uint32(d.blockSize))
		return Result{Status: StatusGood, DataLen: copy(req.Data, buf)}, nil
	case OpServiceAction16:
		buf := make([]byte, 32)
		binary.BigEndian.PutUint64(buf[0:8], blocks-1)
		binary.BigEndian.PutUint32(buf[8:12], uint32(d.blockSize))
		return Result{Status: StatusGood, DataLen: copy(req.Data, buf)}, nil
	case OpRead16, OpWrite16:
		lba := binary.BigEndian.Uint64(cdb[2:10])
		n := uint64(binary.BigEndian.Uint32(cdb[10:14]))
		if lba+n > blocks {
			return check(SenseIllegalRequest, 0x21, 0x00)
		}
		chunk := d.data[lba*uint64(d.blockSize) : (lba+n)*uint64(d.blockSize)]
		if cdb[0] == OpWrite16 {
			copy(chunk, req.Data)
			return Result{Status: StatusGood}, nil
		}
		return Result{Status: StatusGood, DataLen: copy(req.Data, chunk)}, nil
	}
	return check(SenseIllegalRequest, 0x20, 0x00)
}
