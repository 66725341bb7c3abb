package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/avast/retry-go/v4"
	"github.com/sirupsen/logrus"

	scsi "github.com/willgorman/goscsi"
)

// image is the part of *rbd.Image the copier needs.
type image interface {
	io.ReaderAt
	io.WriterAt
}

// progress is satisfied by *pb.ProgressBar.
type progress interface {
	Add64(int64) int64
}

type copier struct {
	dst          image
	chunk        int64 // bytes per read
	verify       bool
	writeZeros   bool
	readAttempts uint
	bar          progress
	log          logrus.FieldLogger
}

type copyStats struct {
	copied  int64
	skipped int64 // all zero chunks left unwritten
}

// copyRange moves src, a reader over blocks starting at byte offset base of
// the device, into the same offsets of the image. With verify set it only
// compares the two.
func (c *copier) copyRange(src io.ReaderAt, base, size int64) (copyStats, error) {
	var stats copyStats
	buf := make([]byte, c.chunk)
	var other []byte
	if c.verify {
		other = make([]byte, c.chunk)
	}
	for off := int64(0); off < size; off += c.chunk {
		p := buf
		if size-off < c.chunk {
			p = buf[:size-off]
		}
		if err := c.read(src, p, off); err != nil {
			return stats, fmt.Errorf("scsi read at offset %d: %w", base+off, err)
		}

		switch {
		case c.verify:
			q := other[:len(p)]
			if _, err := c.dst.ReadAt(q, base+off); err != nil && !errors.Is(err, io.EOF) {
				return stats, fmt.Errorf("rbd read at offset %d: %w", base+off, err)
			}
			if !bytes.Equal(p, q) {
				return stats, fmt.Errorf("mismatched data in chunk at offset %d", base+off)
			}
			stats.copied += int64(len(p))
		case !c.writeZeros && allZero(p):
			// leave the image sparse
			stats.skipped += int64(len(p))
		default:
			if _, err := c.dst.WriteAt(p, base+off); err != nil {
				return stats, fmt.Errorf("rbd write at offset %d: %w", base+off, err)
			}
			stats.copied += int64(len(p))
		}
		if c.bar != nil {
			c.bar.Add64(int64(len(p)))
		}
	}
	return stats, nil
}

// read fills p, retrying transport errors such as iSCSI poll failures.
func (c *copier) read(src io.ReaderAt, p []byte, off int64) error {
	return retry.Do(func() error {
		n, err := src.ReadAt(p, off)
		if err == io.EOF && n == len(p) {
			return nil
		}
		return err
	},
		retry.Attempts(c.readAttempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var terr *scsi.TransportError
			return errors.As(err, &terr)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.log.WithError(err).WithField("offset", off).Warn("retrying read")
		}),
	)
}

func allZero(p []byte) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}

type span struct {
	start, end uint64 // [start, end) in blocks
}

// splitBlocks divides blocks into n contiguous spans. The last span takes
// the remainder.
func splitBlocks(blocks uint64, n int) []span {
	if blocks == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if uint64(n) > blocks {
		n = int(blocks)
	}
	per := blocks / uint64(n)
	spans := make([]span, 0, n)
	var start uint64
	for i := 0; i < n; i++ {
		end := start + per
		if i == n-1 {
			end = blocks
		}
		spans = append(spans, span{start: start, end: end})
		start = end
	}
	return spans
}
