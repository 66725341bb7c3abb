package main

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/cheggaaa/pb"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	scsi "github.com/willgorman/goscsi"
)

type fillPlan struct {
	blockSize int
	chunk     int // blocks per WRITE(16)
	sections  []section
}

type section struct {
	start, blocks uint64
}

// planFill splits the first percent of a device into one contiguous
// section per worker.
func planFill(cap scsi.Capacity, percent, workers, chunk int) (fillPlan, error) {
	if percent < 1 || percent > 100 {
		return fillPlan{}, fmt.Errorf("percentage must be between 1 and 100")
	}
	if workers < 1 {
		return fillPlan{}, fmt.Errorf("need at least one worker")
	}
	if chunk < 1 || chunk > scsi.MaxTransferBlocks {
		return fillPlan{}, fmt.Errorf("chunk must be between 1 and %d blocks", scsi.MaxTransferBlocks)
	}
	total := cap.Blocks() * uint64(percent) / 100
	plan := fillPlan{blockSize: cap.BlockSize, chunk: chunk}
	per := total / uint64(workers)
	var start uint64
	for i := 0; i < workers; i++ {
		n := per
		if i == workers-1 {
			n = total - start
		}
		if n > 0 {
			plan.sections = append(plan.sections, section{start: start, blocks: n})
		}
		start += n
	}
	return plan, nil
}

func newFillCommand(c *cli) *cobra.Command {
	var percent, workers, chunk int
	var zero bool
	var cmd = &cobra.Command{
		Use:   "fill ADDRESS",
		Short: "Overwrite the start of a device with random data",
		Long: `Overwrite the first --percent of a device, split across --workers
independent handles. Destroys the data on the device; sg devices need --rw.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := c.open(args[0])
			if err != nil {
				return err
			}
			cap, err := dev.Capacity()
			_ = dev.Close()
			if err != nil {
				return err
			}
			plan, err := planFill(cap, percent, workers, chunk)
			if err != nil {
				return err
			}

			var total uint64
			for _, s := range plan.sections {
				total += s.blocks
			}
			c.log.WithFields(logrus.Fields{
				"blocks":    total,
				"blocksize": plan.blockSize,
				"workers":   len(plan.sections),
			}).Info("filling device")

			bar := pb.New64(int64(total))
			bar.Output = os.Stderr
			bar.Start()
			defer bar.Finish()

			var eg errgroup.Group
			for _, s := range plan.sections {
				s := s
				eg.Go(func() error {
					return c.fillSection(args[0], plan, s, zero, bar)
				})
			}
			return eg.Wait()
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&percent, "percent", 100, "percentage of the device to fill")
	flags.IntVar(&workers, "workers", 1, "number of parallel handles")
	flags.IntVar(&chunk, "chunk", 1024, "blocks per write")
	flags.BoolVar(&zero, "zero", false, "write zeros instead of random data")
	return cmd
}

func (c *cli) fillSection(address string, plan fillPlan, s section, zero bool, bar *pb.ProgressBar) error {
	dev, err := c.open(address)
	if err != nil {
		return err
	}
	defer dev.Close()

	log := c.log.WithField("start", s.start)
	log.Debug("worker connected")
	data := make([]byte, plan.chunk*plan.blockSize)
	for lba, end := s.start, s.start+s.blocks; lba < end; {
		n := uint64(plan.chunk)
		if end-lba < n {
			n = end - lba
		}
		buf := data[:n*uint64(plan.blockSize)]
		if !zero {
			if _, err := rand.Read(buf); err != nil {
				return err
			}
		}
		if err := dev.Write16(scsi.Write16{LBA: lba, Data: buf, BlockSize: plan.blockSize}); err != nil {
			return fmt.Errorf("write at lba %d: %w", lba, err)
		}
		bar.Add64(int64(n))
		lba += n
	}
	log.Debug("worker done")
	return nil
}
