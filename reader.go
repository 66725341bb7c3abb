package scsi

import (
	"errors"
	"fmt"
	"io"
)

// MaxTransferBlocks caps the blocks read by a single READ(16) issued by
// Reader.
const MaxTransferBlocks = 2048

// blockCapacity reads the capacity of dev. A zero block length, as reported
// by removable devices without a medium, is an error.
func blockCapacity(dev *Device) (Capacity, error) {
	c, err := dev.Capacity()
	if err != nil {
		return c, fmt.Errorf("failed to get capacity of device: %w", err)
	}
	if c.BlockSize <= 0 {
		return c, fmt.Errorf("device reports invalid block length %d, no medium?", c.BlockSize)
	}
	return c, nil
}

// Reader reads a device, or a range of its blocks, as a byte stream.
// Reads need not be block aligned.
type Reader struct {
	dev       *Device
	start     uint64 // first LBA of the range
	blocks    uint64 // blocks in the range
	blocksize int64
	offset    int64
}

var (
	_ io.ReadSeeker = (*Reader)(nil)
	_ io.ReaderAt   = (*Reader)(nil)
)

// NewReader reads the whole device.
func NewReader(dev *Device) (*Reader, error) {
	c, err := blockCapacity(dev)
	if err != nil {
		return nil, err
	}
	return &Reader{
		dev:       dev,
		blocks:    c.Blocks(),
		blocksize: int64(c.BlockSize),
	}, nil
}

// NewRangeReader reads blocks [startLBA, endLBA).
func NewRangeReader(dev *Device, startLBA, endLBA uint64) (*Reader, error) {
	r, err := NewReader(dev)
	if err != nil {
		return nil, err
	}
	if endLBA > r.blocks || startLBA >= endLBA {
		return nil, fmt.Errorf("invalid range [%d, %d) for device with %d blocks", startLBA, endLBA, r.blocks)
	}
	r.start = startLBA
	r.blocks = endLBA - startLBA
	return r, nil
}

// Size of the range in bytes.
func (r *Reader) Size() int64 { return int64(r.blocks) * r.blocksize }

func (r *Reader) BlockSize() int { return int(r.blocksize) }

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.ReadAt(p, r.offset)
	r.offset += int64(n)
	return n, err
}

func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	size := r.Size()
	if off >= size {
		return 0, io.EOF
	}
	want := p
	if int64(len(want)) > size-off {
		want = want[:size-off]
	}

	var n int
	for n < len(want) {
		pos := off + int64(n)
		block := pos / r.blocksize
		skip := pos % r.blocksize

		blocks := (skip + int64(len(want)-n) + r.blocksize - 1) / r.blocksize
		if blocks > MaxTransferBlocks {
			blocks = MaxTransferBlocks
		}
		data, err := r.dev.Read16(Read16{
			LBA:       r.start + uint64(block),
			Blocks:    int(blocks),
			BlockSize: int(r.blocksize),
		})
		if err != nil {
			return n, fmt.Errorf("device read error at lba %d: %w", r.start+uint64(block), err)
		}
		if int64(len(data)) <= skip {
			return n, io.ErrUnexpectedEOF
		}
		n += copy(want[n:], data[skip:])
	}
	if len(want) < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.offset + offset
	case io.SeekEnd:
		abs = r.Size() + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	r.offset = abs
	return abs, nil
}

// Writer writes whole blocks at block aligned offsets.
type Writer struct {
	dev       *Device
	blocks    uint64
	blocksize int64
}

var _ io.WriterAt = (*Writer)(nil)

func NewWriter(dev *Device) (*Writer, error) {
	c, err := blockCapacity(dev)
	if err != nil {
		return nil, err
	}
	return &Writer{dev: dev, blocks: c.Blocks(), blocksize: int64(c.BlockSize)}, nil
}

func (w *Writer) Size() int64 { return int64(w.blocks) * w.blocksize }

func (w *Writer) BlockSize() int { return int(w.blocksize) }

func (w *Writer) WriteAt(p []byte, off int64) (int, error) {
	if off%w.blocksize != 0 || int64(len(p))%w.blocksize != 0 {
		return 0, fmt.Errorf("write of %d bytes at %d is not aligned to %d byte blocks", len(p), off, w.blocksize)
	}
	if off < 0 || off+int64(len(p)) > w.Size() {
		return 0, errors.New("out of bounds")
	}
	var n int
	chunk := int(MaxTransferBlocks * w.blocksize)
	for n < len(p) {
		end := n + chunk
		if end > len(p) {
			end = len(p)
		}
		lba := uint64((off + int64(n)) / w.blocksize)
		if err := w.dev.Write16(Write16{LBA: lba, Data: p[n:end], BlockSize: int(w.blocksize)}); err != nil {
			return n, fmt.Errorf("device write error at lba %d: %w", lba, err)
		}
		n = end
	}
	return n, nil
}
