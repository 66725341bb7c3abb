// scsictl sends SCSI commands to Linux sg devices and iSCSI targets.
package main

import (
	"errors"
	"os"

	scsi "github.com/willgorman/goscsi"
	_ "github.com/willgorman/goscsi/iscsi"
	_ "github.com/willgorman/goscsi/sgio"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 when the target answered CHECK CONDITION and 1 for
// everything else.
func exitCode(err error) int {
	var cc *scsi.CheckConditionError
	if errors.As(err, &cc) {
		return 2
	}
	return 1
}
