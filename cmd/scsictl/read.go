package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cheggaaa/pb"
	"github.com/spf13/cobra"

	scsi "github.com/willgorman/goscsi"
)

func newReadCommand(c *cli) *cobra.Command {
	var start, blocks uint64
	var cmd = &cobra.Command{
		Use:   "read ADDRESS FILE",
		Short: "Copy blocks from a device into a file",
		Long:  `Copy a range of blocks, or the whole device, into FILE. Use - for stdout.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := c.open(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()

			var r *scsi.Reader
			if start == 0 && blocks == 0 {
				r, err = scsi.NewReader(dev)
			} else {
				if blocks == 0 {
					cap, err := dev.Capacity()
					if err != nil {
						return err
					}
					if start >= cap.Blocks() {
						return fmt.Errorf("start %d is past the last LBA %d", start, cap.LBA)
					}
					blocks = cap.Blocks() - start
				}
				r, err = scsi.NewRangeReader(dev, start, start+blocks)
			}
			if err != nil {
				return err
			}

			var w io.Writer = os.Stdout
			if args[1] != "-" {
				f, err := os.Create(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			bar := pb.New64(r.Size()).SetUnits(pb.U_BYTES)
			bar.Output = os.Stderr
			bar.Start()
			n, err := copyBlocks(w, bar.NewProxyReader(r), scsi.MaxTransferBlocks*r.BlockSize())
			bar.Finish()
			if err != nil {
				return fmt.Errorf("copied %d bytes: %w", n, err)
			}
			c.log.WithField("bytes", n).Info("read complete")
			return nil
		},
	}
	flags := cmd.Flags()
	flags.Uint64Var(&start, "start", 0, "first LBA to read")
	flags.Uint64Var(&blocks, "blocks", 0, "number of blocks to read, 0 reads to the end")
	return cmd
}

// copyBlocks copies in reads of size bytes. io.Copy would let an *os.File
// destination pick its own, much smaller, buffer.
func copyBlocks(w io.Writer, r io.Reader, size int) (int64, error) {
	buf := make([]byte, size)
	var n int64
	for {
		m, err := r.Read(buf)
		if m > 0 {
			if _, werr := w.Write(buf[:m]); werr != nil {
				return n, werr
			}
			n += int64(m)
		}
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}
}
