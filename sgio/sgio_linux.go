package sgio

import (
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	scsi "github.com/willgorman/goscsi"
)

func init() {
	scsi.RegisterTransport(scsi.KindSG, Open)
}

type device struct {
	fd      int
	path    string
	version uint32
}

// Open opens an sg device node and checks the driver version. It is
// registered with the scsi package; most callers go through scsi.Open.
func Open(path string, opts scsi.Options) (scsi.Transport, error) {
	flags := unix.O_RDONLY
	if opts.ReadWrite {
		flags = unix.O_RDWR
	}
	fd, err := unix.Open(path, flags|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", &os.PathError{Op: "open", Path: path, Err: err})
	}

	version, err := unix.IoctlGetUint32(fd, SG_GET_VERSION_NUM)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: %s is not an sg device: %v", scsi.ErrUnsupportedTransport, path, err)
	}
	if version < MinVersion {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: %s: sg driver version %d is older than %d", scsi.ErrUnsupportedTransport, path, version, MinVersion)
	}

	scsi.Logger().WithField("address", path).WithField("version", version).Debug("sg driver ready")
	return &device{fd: fd, path: path, version: version}, nil
}

func (d *device) MaxCDBLength() int { return MaxCDBLength }

func (d *device) Execute(req *scsi.Request) (scsi.Result, error) {
	if err := checkLimits(len(req.Data), req.Timeout); err != nil {
		return scsi.Result{Status: scsi.StatusTransportError}, err
	}
	hdr := sgIoHdr{
		interface_id:    'S',
		dxfer_direction: direction(req.Direction),
		cmd_len:         uint8(len(req.CDB)),
		mx_sb_len:       uint8(min(len(req.Sense), 0xff)),
		dxfer_len:       uint32(len(req.Data)),
		cmdp:            uintptr(unsafe.Pointer(&req.CDB[0])),
		timeout:         uint32(req.Timeout.Milliseconds()),
	}
	if len(req.Data) > 0 {
		hdr.dxferp = uintptr(unsafe.Pointer(&req.Data[0]))
	}
	if len(req.Sense) > 0 {
		hdr.sbp = uintptr(unsafe.Pointer(&req.Sense[0]))
	}

	err := ioctl(uintptr(d.fd), SG_IO, uintptr(unsafe.Pointer(&hdr)))
	runtime.KeepAlive(req)
	if err != nil {
		return scsi.Result{Status: scsi.StatusTransportError}, fmt.Errorf("SG_IO ioctl error: %w", err)
	}
	return classify(&hdr, req)
}

func (d *device) Close() error {
	if err := unix.Close(d.fd); err != nil {
		return fmt.Errorf("error on close: %w", err)
	}
	return nil
}

// ioctl executes an ioctl command on the specified file descriptor
func ioctl(fd, cmd, ptr uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, cmd, ptr)
	if errno != 0 {
		return errno
	}
	return nil
}
