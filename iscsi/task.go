package iscsi

import (
	"encoding/binary"

	scsi "github.com/willgorman/goscsi"
)

// MaxCDBLength is SCSI_CDB_MAX_SIZE in libiscsi.
const MaxCDBLength = 16

// classify maps a completed task onto a result. datain is the task's data-in
// segment; on CHECK CONDITION it holds the sense data behind a two byte
// SenseLength prefix.
func classify(status byte, datain []byte, req *scsi.Request) (scsi.Result, error) {
	res := scsi.Result{TargetStatus: status}
	switch status {
	case scsi.TargetStatusGood:
		res.Status = scsi.StatusGood
		if req.Direction == scsi.DirectionFromDevice {
			res.DataLen = copy(req.Data, datain)
		}
		return res, nil
	case scsi.TargetStatusCheckCondition:
		res.Status = scsi.StatusCheckCondition
		res.SenseLen = copy(req.Sense, senseData(datain))
		return res, nil
	}
	res.Status = scsi.StatusTransportError
	return res, &scsi.StatusError{TargetStatus: status}
}

// senseData strips the SenseLength prefix, trusting the prefix only as far
// as the segment actually goes.
func senseData(seg []byte) []byte {
	if len(seg) < 2 {
		return nil
	}
	n := int(binary.BigEndian.Uint16(seg[:2]))
	seg = seg[2:]
	if n < len(seg) {
		seg = seg[:n]
	}
	return seg
}
