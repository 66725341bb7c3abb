package scsi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Sense data response codes (SPC-4 4.5.1).
const (
	SenseFormatCurrentFixed       = 0x70
	SenseFormatDeferredFixed      = 0x71
	SenseFormatCurrentDescriptor  = 0x72
	SenseFormatDeferredDescriptor = 0x73
)

// SenseKey is the 4 bit sense key.
type SenseKey byte

const (
	SenseNoSense        SenseKey = 0x00
	SenseRecoveredError SenseKey = 0x01
	SenseNotReady       SenseKey = 0x02
	SenseMediumError    SenseKey = 0x03
	SenseHardwareError  SenseKey = 0x04
	SenseIllegalRequest SenseKey = 0x05
	SenseUnitAttention  SenseKey = 0x06
	SenseDataProtect    SenseKey = 0x07
	SenseBlankCheck     SenseKey = 0x08
	SenseVendorSpecific SenseKey = 0x09
	SenseCopyAborted    SenseKey = 0x0a
	SenseAbortedCommand SenseKey = 0x0b
	SenseVolumeOverflow SenseKey = 0x0d
	SenseMiscompare     SenseKey = 0x0e
	SenseCompleted      SenseKey = 0x0f
)

var senseKeyNames = map[SenseKey]string{
	SenseNoSense:        "NO SENSE",
	SenseRecoveredError: "RECOVERED ERROR",
	SenseNotReady:       "NOT READY",
	SenseMediumError:    "MEDIUM ERROR",
	SenseHardwareError:  "HARDWARE ERROR",
	SenseIllegalRequest: "ILLEGAL REQUEST",
	SenseUnitAttention:  "UNIT ATTENTION",
	SenseDataProtect:    "DATA PROTECT",
	SenseBlankCheck:     "BLANK CHECK",
	SenseVendorSpecific: "VENDOR SPECIFIC",
	SenseCopyAborted:    "COPY ABORTED",
	SenseAbortedCommand: "ABORTED COMMAND",
	SenseVolumeOverflow: "VOLUME OVERFLOW",
	SenseMiscompare:     "MISCOMPARE",
	SenseCompleted:      "COMPLETED",
}

func (k SenseKey) String() string {
	if s, ok := senseKeyNames[k]; ok {
		return s
	}
	return fmt.Sprintf("SenseKey(%#02x)", byte(k))
}

// ASC/ASCQ pairs, additional sense code in the high byte.
var ascqDescriptions = map[uint16]string{
	0x0000: "NO ADDITIONAL SENSE INFORMATION",
	0x0001: "FILEMARK DETECTED",
	0x0002: "END-OF-PARTITION/MEDIUM DETECTED",
	0x0004: "BEGINNING-OF-PARTITION/MEDIUM DETECTED",
	0x0005: "END-OF-DATA DETECTED",
	0x0400: "LOGICAL UNIT NOT READY, CAUSE NOT REPORTABLE",
	0x0401: "LOGICAL UNIT IS IN PROCESS OF BECOMING READY",
	0x0402: "LOGICAL UNIT NOT READY, INITIALIZING COMMAND REQUIRED",
	0x0403: "LOGICAL UNIT NOT READY, MANUAL INTERVENTION REQUIRED",
	0x0404: "LOGICAL UNIT NOT READY, FORMAT IN PROGRESS",
	0x0800: "LOGICAL UNIT COMMUNICATION FAILURE",
	0x0801: "LOGICAL UNIT COMMUNICATION TIME-OUT",
	0x0c00: "WRITE ERROR",
	0x1100: "UNRECOVERED READ ERROR",
	0x1401: "RECORD NOT FOUND",
	0x1a00: "PARAMETER LIST LENGTH ERROR",
	0x1d00: "MISCOMPARE DURING VERIFY OPERATION",
	0x2000: "INVALID COMMAND OPERATION CODE",
	0x2100: "LOGICAL BLOCK ADDRESS OUT OF RANGE",
	0x2400: "INVALID FIELD IN CDB",
	0x2401: "CDB DECRYPTION ERROR",
	0x2404: "SECURITY AUDIT VALUE FROZEN",
	0x2405: "SECURITY WORKING KEY FROZEN",
	0x2406: "NONCE NOT UNIQUE",
	0x2407: "NONCE TIMESTAMP OUT OF RANGE",
	0x2408: "INVALID XCDB",
	0x2500: "LOGICAL UNIT NOT SUPPORTED",
	0x2600: "INVALID FIELD IN PARAMETER LIST",
	0x2700: "WRITE PROTECTED",
	0x2800: "NOT READY TO READY CHANGE, MEDIUM MAY HAVE CHANGED",
	0x2900: "POWER ON, RESET, OR BUS DEVICE RESET OCCURRED",
	0x2907: "I_T NEXUS LOSS OCCURRED",
	0x2a01: "MODE PARAMETERS CHANGED",
	0x2a03: "RESERVATIONS PREEMPTED",
	0x2c00: "COMMAND SEQUENCE ERROR",
	0x2f00: "COMMANDS CLEARED BY ANOTHER INITIATOR",
	0x3000: "INCOMPATIBLE MEDIUM INSTALLED",
	0x3100: "MEDIUM FORMAT CORRUPTED",
	0x3a00: "MEDIUM NOT PRESENT",
	0x3f01: "MICROCODE HAS BEEN CHANGED",
	0x3f03: "INQUIRY DATA HAS CHANGED",
	0x3f0e: "REPORTED LUNS DATA HAS CHANGED",
	0x4400: "INTERNAL TARGET FAILURE",
	0x5302: "MEDIUM REMOVAL PREVENTED",
	0x5d00: "FAILURE PREDICTION THRESHOLD EXCEEDED",
}

// Sense is decoded sense data. Only the fields common to both formats plus
// the fixed-format information field are decoded.
type Sense struct {
	ResponseCode byte
	Deferred     bool
	Descriptor   bool
	Key          SenseKey
	ASC          byte
	ASCQ         byte

	// Fixed format only.
	Valid       bool
	Filemark    bool
	EOM         bool
	ILI         bool
	Information uint32
}

// ErrShortSense is returned when sense data is too short for its format.
var ErrShortSense = errors.New("sense data too short")

// ParseSense decodes fixed or descriptor format sense data.
func ParseSense(b []byte) (Sense, error) {
	var s Sense
	if len(b) < 1 {
		return s, ErrShortSense
	}
	s.ResponseCode = b[0] & 0x7f
	switch s.ResponseCode {
	case SenseFormatCurrentFixed, SenseFormatDeferredFixed:
		if len(b) < 3 {
			return s, fmt.Errorf("%w: fixed format needs at least 3 bytes, got %d", ErrShortSense, len(b))
		}
		s.Deferred = s.ResponseCode == SenseFormatDeferredFixed
		s.Valid = b[0]&0x80 != 0
		s.Filemark = b[2]&0x80 != 0
		s.EOM = b[2]&0x40 != 0
		s.ILI = b[2]&0x20 != 0
		s.Key = SenseKey(b[2] & 0x0f)
		if len(b) >= 7 {
			s.Information = binary.BigEndian.Uint32(b[3:7])
		}
		// the additional sense length can be shorter than what was
		// transferred, only trust bytes inside both
		end := len(b)
		if len(b) >= 8 {
			if n := 8 + int(b[7]); n < end {
				end = n
			}
		}
		if end > 12 {
			s.ASC = b[12]
		}
		if end > 13 {
			s.ASCQ = b[13]
		}
	case SenseFormatCurrentDescriptor, SenseFormatDeferredDescriptor:
		if len(b) < 4 {
			return s, fmt.Errorf("%w: descriptor format needs at least 4 bytes, got %d", ErrShortSense, len(b))
		}
		s.Descriptor = true
		s.Deferred = s.ResponseCode == SenseFormatDeferredDescriptor
		s.Key = SenseKey(b[1] & 0x0f)
		s.ASC = b[2]
		s.ASCQ = b[3]
	default:
		return s, fmt.Errorf("unknown sense response code %#02x", s.ResponseCode)
	}
	return s, nil
}

// ASCQCode returns ASC and ASCQ as a single value, ASC in the high byte.
func (s Sense) ASCQCode() uint16 {
	return uint16(s.ASC)<<8 | uint16(s.ASCQ)
}

// Description names the ASC/ASCQ pair, or is empty when unknown.
func (s Sense) Description() string {
	return ascqDescriptions[s.ASCQCode()]
}

func (s Sense) String() string {
	desc := s.Description()
	if desc == "" {
		desc = "UNKNOWN"
	}
	return fmt.Sprintf("%s(%#02x) ASC+Q:%s(%#04x)", s.Key, byte(s.Key), desc, s.ASCQCode())
}
