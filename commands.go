package scsi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Operation codes used by the convenience commands.
const (
	OpTestUnitReady   = 0x00
	OpInquiry         = 0x12
	OpReadCapacity10  = 0x25
	OpRead16          = 0x88
	OpWrite16         = 0x8a
	OpServiceAction16 = 0x9e

	serviceActionReadCapacity16 = 0x10

	// InquiryLength is the length of the standard INQUIRY page requested.
	InquiryLength = 36

	// SenseLength is the sense buffer size used by the convenience commands.
	SenseLength = 96
)

// Capacity as reported by READ CAPACITY. LBA is the last addressable block.
type Capacity struct {
	LBA       uint64
	BlockSize int
}

// Blocks is the number of addressable blocks.
func (c Capacity) Blocks() uint64 { return c.LBA + 1 }

// Size is the capacity in bytes.
func (c Capacity) Size() int64 { return int64(c.Blocks()) * int64(c.BlockSize) }

// InquiryData is the standard INQUIRY page.
type InquiryData struct {
	PeripheralQualifier byte
	DeviceType          byte
	Removable           bool
	Version             byte
	Vendor              string
	Product             string
	Revision            string
}

type Read16 struct {
	LBA       uint64
	Blocks    int
	BlockSize int
}

type Write16 struct {
	LBA       uint64
	Data      []byte
	BlockSize int
}

// run executes cdb and turns a CHECK CONDITION into a *CheckConditionError.
func (d *Device) run(cdb, out, in []byte) (int, error) {
	sense := make([]byte, SenseLength)
	res, err := d.Execute(&Command{CDB: cdb, DataOut: out, DataIn: in, Sense: sense})
	if err != nil {
		return 0, err
	}
	if res.Status == StatusCheckCondition {
		raw := sense[:res.SenseLen]
		s, perr := ParseSense(raw)
		if perr != nil {
			logger.WithError(perr).Debug("could not decode sense data")
		}
		return 0, &CheckConditionError{Opcode: cdb[0], Sense: s, Raw: raw}
	}
	return res.DataLen, nil
}

// TestUnitReady reports whether the logical unit is ready.
func (d *Device) TestUnitReady() error {
	_, err := d.run(make([]byte, 6), nil, nil)
	return err
}

// Inquiry fetches the standard INQUIRY page.
func (d *Device) Inquiry() (InquiryData, error) {
	var inq InquiryData
	cdb := []byte{OpInquiry, 0, 0, 0, InquiryLength, 0}
	buf := make([]byte, InquiryLength)
	n, err := d.run(cdb, nil, buf)
	if err != nil {
		return inq, err
	}
	return ParseInquiry(buf[:n])
}

// ParseInquiry decodes a standard INQUIRY response.
func ParseInquiry(b []byte) (InquiryData, error) {
	var inq InquiryData
	if len(b) < 8 {
		return inq, fmt.Errorf("inquiry response too short: %d bytes", len(b))
	}
	inq.PeripheralQualifier = b[0] >> 5
	inq.DeviceType = b[0] & 0x1f
	inq.Removable = b[1]&0x80 != 0
	inq.Version = b[2]
	field := func(from, to int) string {
		if len(b) < to {
			if len(b) <= from {
				return ""
			}
			to = len(b)
		}
		return strings.TrimSpace(string(b[from:to]))
	}
	inq.Vendor = field(8, 16)
	inq.Product = field(16, 32)
	inq.Revision = field(32, 36)
	return inq, nil
}

func (d *Device) ReadCapacity10() (Capacity, error) {
	var c Capacity
	buf := make([]byte, 8)
	n, err := d.run([]byte{OpReadCapacity10, 0, 0, 0, 0, 0, 0, 0, 0, 0}, nil, buf)
	if err != nil {
		return c, err
	}
	if n != 8 {
		return c, errors.New("unexpected size")
	}
	c.LBA = uint64(binary.BigEndian.Uint32(buf[:4]))
	c.BlockSize = int(binary.BigEndian.Uint32(buf[4:]))
	return c, nil
}

// ReadCapacity16 is needed for devices with more than 2^32 blocks, where
// READ CAPACITY(10) reports 0xffffffff.
func (d *Device) ReadCapacity16() (Capacity, error) {
	var c Capacity
	buf := make([]byte, 32)
	cdb := make([]byte, 16)
	cdb[0] = OpServiceAction16
	cdb[1] = serviceActionReadCapacity16
	binary.BigEndian.PutUint32(cdb[10:14], uint32(len(buf)))
	n, err := d.run(cdb, nil, buf)
	if err != nil {
		return c, err
	}
	if n < 12 {
		return c, fmt.Errorf("unexpected size %d", n)
	}
	c.LBA = binary.BigEndian.Uint64(buf[:8])
	c.BlockSize = int(binary.BigEndian.Uint32(buf[8:12]))
	return c, nil
}

// Capacity tries READ CAPACITY(10) first and falls back to (16) for large
// devices.
func (d *Device) Capacity() (Capacity, error) {
	c, err := d.ReadCapacity10()
	if err != nil {
		return c, err
	}
	if c.LBA == 0xffffffff {
		return d.ReadCapacity16()
	}
	return c, nil
}

func (d *Device) Read16(data Read16) ([]byte, error) {
	if data.Blocks <= 0 || data.BlockSize <= 0 {
		return nil, &UsageError{Op: "read16", Err: fmt.Errorf("invalid block count %d or size %d", data.Blocks, data.BlockSize)}
	}
	buf := make([]byte, data.Blocks*data.BlockSize)
	n, err := d.run(rw16(OpRead16, data.LBA, data.Blocks), nil, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (d *Device) Write16(data Write16) error {
	if data.BlockSize <= 0 || len(data.Data) == 0 || len(data.Data)%data.BlockSize != 0 {
		return &UsageError{Op: "write16", Err: fmt.Errorf("data length %d is not a multiple of block size %d", len(data.Data), data.BlockSize)}
	}
	_, err := d.run(rw16(OpWrite16, data.LBA, len(data.Data)/data.BlockSize), data.Data, nil)
	return err
}

func rw16(op byte, lba uint64, blocks int) []byte {
	cdb := make([]byte, 16)
	cdb[0] = op
	binary.BigEndian.PutUint64(cdb[2:10], lba)
	binary.BigEndian.PutUint32(cdb[10:14], uint32(blocks))
	return cdb
}
