// rbd-copy copies a SCSI device into a Ceph RBD image, or with --verify
// compares the two, over one or more independent sessions.
package main

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/ceph/go-ceph/rados"
	"github.com/ceph/go-ceph/rbd"
	"github.com/cheggaaa/pb"
	_ "github.com/ianlancetaylor/cgosymbolizer"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	scsi "github.com/willgorman/goscsi"
	_ "github.com/willgorman/goscsi/iscsi"
	_ "github.com/willgorman/goscsi/sgio"
)

type options struct {
	initiator    string
	transport    string
	timeout      time.Duration
	sessions     int
	chunkBlocks  int
	readAttempts uint
	verify       bool
	writeZeros   bool
	resize       bool
	logLevel     string

	cephUser    string
	monitors    string
	key         string
	cephConf    string
	keyringPath string
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var o options
	var cmd = &cobra.Command{
		Use:   "rbd-copy SOURCE POOL IMAGE",
		Short: "Copy a SCSI device into a Ceph RBD image",
		Long: `Copy SOURCE, an sg device or iscsi:// URL, into POOL/IMAGE. The device is
split into --sessions ranges, each read over its own handle.`,
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(o.logLevel)
			if err != nil {
				return err
			}
			log := logrus.New()
			log.SetLevel(level)
			scsi.SetLogger(log)
			return run(log, o, args[0], args[1], args[2])
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&o.initiator, "initiator", "", "iSCSI initiator IQN prefix, a unique one is generated per session when empty")
	flags.StringVar(&o.transport, "transport", "", "transport (sg, iscsi), detected from SOURCE when empty")
	flags.DurationVar(&o.timeout, "timeout", scsi.DefaultTimeout, "per command timeout")
	flags.IntVar(&o.sessions, "sessions", 1, "number of parallel handles")
	flags.IntVar(&o.chunkBlocks, "chunk", scsi.MaxTransferBlocks, "blocks per read")
	flags.UintVar(&o.readAttempts, "read-attempts", 10, "attempts per read on transport errors")
	flags.BoolVar(&o.verify, "verify", false, "compare the device with the image instead of copying")
	flags.BoolVar(&o.writeZeros, "write-zeros", false, "write all zero chunks instead of leaving them sparse")
	flags.BoolVar(&o.resize, "resize", false, "resize the image to the device size when they differ")
	flags.StringVar(&o.logLevel, "log-level", "info", "log level")
	flags.StringVar(&o.cephUser, "ceph-user", "admin", "ceph user")
	flags.StringVar(&o.monitors, "mon-host", "", "ceph monitor addresses")
	flags.StringVar(&o.key, "key", "", "ceph key for --ceph-user")
	flags.StringVar(&o.cephConf, "ceph-conf", "", "ceph.conf to read instead of --mon-host and --key")
	flags.StringVar(&o.keyringPath, "keyring", "", "keyring to use with --ceph-conf")
	return cmd
}

func (o options) scsiOptions(session int) scsi.Options {
	iqn := o.initiator
	if iqn == "" {
		iqn = "iqn.2024-10.com.github.willgorman.goscsi:" + uuid.NewV4().String()
	} else if session > 0 {
		iqn = fmt.Sprintf("%s:%d", iqn, session)
	}
	return scsi.Options{
		Transport:    scsi.Kind(o.transport),
		Timeout:      o.timeout,
		InitiatorIQN: iqn,
	}
}

func (o options) connect() (*rados.Conn, error) {
	if o.cephConf != "" {
		return cephConnFromConfig(o.cephUser, o.cephConf, o.keyringPath)
	}
	if o.monitors == "" || o.key == "" {
		return nil, fmt.Errorf("either --ceph-conf or both --mon-host and --key are required")
	}
	return cephConnFromOptions(o.cephUser, o.monitors, o.key)
}

func run(log logrus.FieldLogger, o options, source, pool, imageName string) error {
	if o.chunkBlocks < 1 || o.chunkBlocks > scsi.MaxTransferBlocks {
		return fmt.Errorf("--chunk must be between 1 and %d", scsi.MaxTransferBlocks)
	}
	dev, err := scsi.Open(source, o.scsiOptions(0))
	if err != nil {
		return err
	}
	defer dev.Close()
	cap, err := dev.Capacity()
	if err != nil {
		return err
	}

	conn, err := o.connect()
	if err != nil {
		return err
	}
	defer conn.Shutdown()

	ioctx, err := conn.OpenIOContext(pool)
	if err != nil {
		return fmt.Errorf("error opening pool %s: %w", pool, err)
	}
	defer ioctx.Destroy()

	img, err := rbd.OpenImage(ioctx, imageName, rbd.NoSnapshot)
	if err != nil {
		return fmt.Errorf("error opening image %s: %w", imageName, err)
	}
	defer img.Close()

	imgSize, err := img.GetSize()
	if err != nil {
		return err
	}
	devSize := uint64(cap.Size())
	if imgSize != devSize {
		if !o.resize || o.verify {
			return fmt.Errorf("image is %d bytes but the device is %d bytes", imgSize, devSize)
		}
		log.WithFields(logrus.Fields{"from": imgSize, "to": devSize}).Info("resizing image")
		if err := img.Resize(devSize); err != nil {
			return fmt.Errorf("error resizing image: %w", err)
		}
	}

	spans := splitBlocks(cap.Blocks(), o.sessions)
	log.WithFields(logrus.Fields{
		"blocks":    cap.Blocks(),
		"blocksize": cap.BlockSize,
		"sessions":  len(spans),
		"verify":    o.verify,
	}).Info("starting")

	bar := pb.New64(cap.Size()).SetUnits(pb.U_BYTES)
	bar.Output = os.Stderr
	bar.Start()

	start := time.Now()
	var copied, skipped int64
	var eg errgroup.Group
	for i, sp := range spans {
		i, sp := i, sp
		eg.Go(func() error {
			d := dev
			if i > 0 {
				// every other range gets its own session
				sd, err := scsi.Open(source, o.scsiOptions(i))
				if err != nil {
					return err
				}
				defer sd.Close()
				d = sd
			}
			rdr, err := scsi.NewRangeReader(d, sp.start, sp.end)
			if err != nil {
				return err
			}
			c := &copier{
				dst:          img,
				chunk:        int64(o.chunkBlocks * cap.BlockSize),
				verify:       o.verify,
				writeZeros:   o.writeZeros,
				readAttempts: o.readAttempts,
				bar:          bar,
				log:          log.WithField("session", i),
			}
			stats, err := c.copyRange(rdr, int64(sp.start)*int64(cap.BlockSize), rdr.Size())
			atomic.AddInt64(&copied, stats.copied)
			atomic.AddInt64(&skipped, stats.skipped)
			return err
		})
	}
	err = eg.Wait()
	bar.Finish()
	if err != nil {
		return err
	}
	if !o.verify {
		if err := img.Flush(); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
	}
	log.WithFields(logrus.Fields{
		"took":    time.Since(start),
		"bytes":   copied,
		"skipped": skipped,
	}).Info("done")
	return nil
}
