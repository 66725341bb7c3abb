//go:build cgo

// Package iscsi is the libiscsi transport. Importing it registers the
// "iscsi" transport with the scsi package. Addresses are libiscsi URLs:
//
//	iscsi://[user[%password]@]host[:port]/target-iqn/lun
package iscsi

/*
#cgo CFLAGS: -g -Wall
#cgo pkg-config: libiscsi
#include <stdlib.h>
#include "iscsi/iscsi.h"
#include "iscsi/scsi-lowlevel.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/avast/retry-go/v4"
	"github.com/sirupsen/logrus"

	scsi "github.com/willgorman/goscsi"
)

func init() {
	scsi.RegisterTransport(scsi.KindISCSI, Open)
}

type (
	iscsiContext *C.struct_iscsi_context
	iscsiURL     *C.struct_iscsi_url
)

type session struct {
	ctx          iscsiContext
	url          iscsiURL
	targetName   string
	targetPortal string
	targetLun    int
	timeout      time.Duration // currently applied to ctx
}

// Open creates a context, parses the URL and logs in to the target. Every
// failure releases what was created so far.
func Open(address string, opts scsi.Options) (scsi.Transport, error) {
	initiator := C.CString(opts.InitiatorIQN)
	defer C.free(unsafe.Pointer(initiator))
	ctx := C.iscsi_create_context(initiator)
	if ctx == nil {
		return nil, errors.New("iscsi_create_context failed")
	}

	target := C.CString(address)
	defer C.free(unsafe.Pointer(target))
	url := C.iscsi_parse_full_url(ctx, target)
	if url == nil {
		err := fmt.Errorf("iscsi_parse_full_url: %s", lastError(ctx))
		_ = C.iscsi_destroy_context(ctx)
		return nil, err
	}

	s := &session{
		ctx:          ctx,
		url:          url,
		targetName:   C.GoString(&url.target[0]),
		targetPortal: C.GoString(&url.portal[0]),
		targetLun:    int(url.lun),
	}
	if err := s.connect(opts); err != nil {
		s.destroy()
		return nil, err
	}

	scsi.Logger().WithFields(logrus.Fields{
		"portal": s.targetPortal,
		"target": s.targetName,
		"lun":    s.targetLun,
	}).Debug("iscsi session logged in")
	return s, nil
}

func (s *session) connect(opts scsi.Options) error {
	if C.iscsi_set_targetname(s.ctx, &s.url.target[0]) != 0 {
		return fmt.Errorf("iscsi_set_targetname: %s", lastError(s.ctx))
	}
	_ = C.iscsi_set_session_type(s.ctx, C.ISCSI_SESSION_NORMAL)
	_ = C.iscsi_set_header_digest(s.ctx, C.ISCSI_HEADER_DIGEST_NONE_CRC32C)
	s.setTimeout(opts.Timeout)

	return retry.Do(func() error {
		if retval := C.iscsi_full_connect_sync(s.ctx, &s.url.portal[0], s.url.lun); retval != 0 {
			errstr := lastError(s.ctx)
			// a connection can partially succeed so that the next attempt
			// fails with "already logged in"; log out before retrying
			_ = C.iscsi_logout_sync(s.ctx)
			return fmt.Errorf("iscsi_full_connect_sync: (%d) %s", retval, errstr)
		}
		return nil
	},
		retry.Attempts(opts.ConnectAttempts),
		retry.MaxDelay(opts.ConnectMaxDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			scsi.Logger().WithError(err).WithField("attempt", n+1).Debug("retrying iscsi login")
		}),
	)
}

// setTimeout applies d to the context, rounded up to whole seconds.
func (s *session) setTimeout(d time.Duration) {
	if d == s.timeout {
		return
	}
	secs := int((d + time.Second - 1) / time.Second)
	_ = C.iscsi_set_timeout(s.ctx, C.int(secs))
	s.timeout = d
}

func (s *session) MaxCDBLength() int { return MaxCDBLength }

func (s *session) Execute(req *scsi.Request) (scsi.Result, error) {
	s.setTimeout(req.Timeout)

	dir := C.SCSI_XFER_NONE
	switch req.Direction {
	case scsi.DirectionToDevice:
		dir = C.SCSI_XFER_WRITE
	case scsi.DirectionFromDevice:
		dir = C.SCSI_XFER_READ
	}

	task := C.scsi_create_task(C.int(len(req.CDB)), (*C.uchar)(unsafe.Pointer(&req.CDB[0])),
		C.int(dir), C.int(len(req.Data)))
	if task == nil {
		return scsi.Result{Status: scsi.StatusTransportError}, errors.New("scsi_create_task: out of memory")
	}
	defer C.scsi_free_scsi_task(task)

	// outbound data must live in C memory for the whole call
	var out *C.struct_iscsi_data
	if req.Direction == scsi.DirectionToDevice {
		buf := C.CBytes(req.Data)
		defer C.free(buf)
		out = &C.struct_iscsi_data{size: C.size_t(len(req.Data)), data: (*C.uchar)(buf)}
	}

	if C.iscsi_scsi_command_sync(s.ctx, C.int(s.targetLun), task, out) == nil {
		return scsi.Result{Status: scsi.StatusTransportError},
			fmt.Errorf("iscsi_scsi_command_sync: %s", lastError(s.ctx))
	}

	var datain []byte
	if task.datain.data != nil && task.datain.size > 0 {
		datain = unsafe.Slice((*byte)(unsafe.Pointer(task.datain.data)), int(task.datain.size))
	}

	status := int(task.status)
	if status < 0 || status > 0xff {
		// SCSI_STATUS_ERROR, CANCELLED and TIMEOUT live above the status byte
		return scsi.Result{Status: scsi.StatusTransportError},
			fmt.Errorf("task failed with status %#x: %s", status, lastError(s.ctx))
	}
	return classify(byte(status), datain, req)
}

// Close logs out and frees the url and context. The context is destroyed
// even when logout fails.
func (s *session) Close() error {
	var err error
	if retval := C.iscsi_logout_sync(s.ctx); retval != 0 {
		err = fmt.Errorf("iscsi_logout_sync: (%d) %s", retval, lastError(s.ctx))
	}
	s.destroy()
	return err
}

func (s *session) destroy() {
	if s.url != nil {
		C.iscsi_destroy_url(s.url)
		s.url = nil
	}
	if s.ctx != nil {
		_ = C.iscsi_destroy_context(s.ctx)
		s.ctx = nil
	}
}

func lastError(ctx iscsiContext) string {
	return C.GoString(C.iscsi_get_error(ctx))
}
