// Package sgio is the Linux SCSI generic (sg) transport. Importing it
// registers the "sg" transport with the scsi package.
//
// See http://sg.danny.cz/sg/ for the driver interface.
package sgio

import (
	"fmt"
	"math"
	"time"

	scsi "github.com/willgorman/goscsi"
)

const (
	SG_DXFER_NONE     = -1
	SG_DXFER_TO_DEV   = -2
	SG_DXFER_FROM_DEV = -3

	SG_INFO_OK_MASK = 0x1
	SG_INFO_OK      = 0x0

	SG_GET_VERSION_NUM = 0x2282
	SG_IO              = 0x2285

	// MinVersion is the oldest sg driver with the sg_io_hdr interface.
	MinVersion = 30000

	// MaxCDBLength is SG_MAX_CDB_SIZE from <scsi/sg.h>.
	MaxCDBLength = 252
)

// SCSI generic ioctl header, defined as sg_io_hdr_t in <scsi/sg.h>
type sgIoHdr struct {
	interface_id    int32   // 'S' for SCSI generic (required)
	dxfer_direction int32   // data transfer direction
	cmd_len         uint8   // SCSI command length
	mx_sb_len       uint8   // max length to write to sbp
	iovec_count     uint16  // 0 implies no scatter gather
	dxfer_len       uint32  // byte count of data transfer
	dxferp          uintptr // points to data transfer memory or scatter gather list
	cmdp            uintptr // points to command to perform
	sbp             uintptr // points to sense_buffer memory
	timeout         uint32  // MAX_UINT -> no timeout (unit: millisec)
	flags           uint32  // 0 -> default, see SG_FLAG...
	pack_id         int32   // unused internally (normally)
	usr_ptr         uintptr // unused internally
	status          uint8   // SCSI status
	masked_status   uint8   // shifted, masked scsi status
	msg_status      uint8   // messaging level data (optional)
	sb_len_wr       uint8   // byte count actually written to sbp
	host_status     uint16  // errors from host adapter
	driver_status   uint16  // errors from software driver
	resid           int32   // dxfer_len - actual_transferred
	duration        uint32  // time taken by cmd (unit: millisec)
	info            uint32  // auxiliary information
}

// SgioError is a failure reported by the sg driver or host adapter with no
// sense data to explain it.
type SgioError struct {
	ScsiStatus   uint8
	HostStatus   uint16
	DriverStatus uint16
}

func (e SgioError) Error() string {
	return fmt.Sprintf("SCSI status: %#02x, host status: %#02x, driver status: %#02x",
		e.ScsiStatus, e.HostStatus, e.DriverStatus)
}

func direction(d scsi.Direction) int32 {
	switch d {
	case scsi.DirectionToDevice:
		return SG_DXFER_TO_DEV
	case scsi.DirectionFromDevice:
		return SG_DXFER_FROM_DEV
	}
	return SG_DXFER_NONE
}

// classify turns a completed header into a result. It only looks at the
// header, so it can be exercised without a device.
func classify(hdr *sgIoHdr, req *scsi.Request) (scsi.Result, error) {
	res := scsi.Result{TargetStatus: hdr.status}

	// See http://www.t10.org/lists/2status.htm for SCSI status codes
	if hdr.info&SG_INFO_OK_MASK != SG_INFO_OK {
		if hdr.sb_len_wr > 0 {
			res.Status = scsi.StatusCheckCondition
			res.SenseLen = min(int(hdr.sb_len_wr), len(req.Sense))
			return res, nil
		}
		return res, SgioError{
			ScsiStatus:   hdr.status,
			HostStatus:   hdr.host_status,
			DriverStatus: hdr.driver_status,
		}
	}

	res.Status = scsi.StatusGood
	if req.Direction == scsi.DirectionFromDevice {
		moved := int(hdr.dxfer_len) - int(hdr.resid)
		res.DataLen = max(0, min(moved, len(req.Data)))
	}
	return res, nil
}

// checkLimits rejects transfers and timeouts that do not fit the 32 bit
// dxfer_len and timeout fields of sg_io_hdr.
func checkLimits(dataLen int, timeout time.Duration) error {
	if uint64(dataLen) > math.MaxUint32 {
		return fmt.Errorf("data buffer of %d bytes exceeds the sg limit of %d", dataLen, uint64(math.MaxUint32))
	}
	if ms := timeout.Milliseconds(); ms < 0 || uint64(ms) > math.MaxUint32 {
		return fmt.Errorf("timeout %v exceeds the sg limit of %dms", timeout, uint64(math.MaxUint32))
	}
	return nil
}
