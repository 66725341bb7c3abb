//go:build !cgo

package iscsi

import (
	"fmt"

	scsi "github.com/willgorman/goscsi"
)

func init() {
	scsi.RegisterTransport(scsi.KindISCSI, Open)
}

// Open always fails: the transport needs libiscsi through cgo.
func Open(address string, opts scsi.Options) (scsi.Transport, error) {
	return nil, fmt.Errorf("%w: built without cgo, libiscsi is unavailable", scsi.ErrUnsupportedTransport)
}
