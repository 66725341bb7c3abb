//go:build !linux

package sgio

import (
	"fmt"
	"runtime"

	scsi "github.com/willgorman/goscsi"
)

func init() {
	scsi.RegisterTransport(scsi.KindSG, Open)
}

// Open always fails: the sg driver only exists on Linux.
func Open(path string, opts scsi.Options) (scsi.Transport, error) {
	return nil, fmt.Errorf("%w: SCSI generic devices are not available on %s", scsi.ErrUnsupportedTransport, runtime.GOOS)
}
