package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	scsi "github.com/willgorman/goscsi"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func newVersionCommand(c *cli) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of scsictl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.print(&messageOutput{
				Message: fmt.Sprintf("scsictl %s (%s %s/%s), transports: %v",
					version, runtime.Version(), runtime.GOOS, runtime.GOARCH, scsi.Transports()),
			})
		},
	}
	return cmd
}
