//go:build cgo

package iscsi_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/consul/sdk/freeport"
	"gotest.tools/assert"

	scsi "github.com/willgorman/goscsi"
	_ "github.com/willgorman/goscsi/iscsi"
)

func openTarget(t *testing.T, size int64) *scsi.Device {
	url := runTestTarget(t, createTargetTempfile(t, size))
	device, err := scsi.Open(url, scsi.Options{InitiatorIQN: testInitiator})
	if err != nil {
		t.Fatal(err)
	}
	return device
}

func TestWithGoTGT(t *testing.T) {
	device := openTarget(t, 10*MiB)
	defer func() {
		assert.NilError(t, device.Close())
	}()
	assert.Equal(t, device.Kind(), scsi.KindISCSI)

	sense := make([]byte, scsi.SenseLength)
	res, err := device.Execute(&scsi.Command{CDB: make([]byte, 6), Sense: sense})
	assert.NilError(t, err)
	assert.Equal(t, res.Status, scsi.StatusGood)
	assert.Equal(t, res.DataLen, 0)

	inq, err := device.Inquiry()
	assert.NilError(t, err)
	assert.Equal(t, inq.DeviceType, byte(0))
	t.Logf("%+v", inq)

	capacity, err := device.Capacity()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, capacity.Size(), int64(10*MiB))

	write := make([]byte, capacity.BlockSize)
	copy(write, []byte("hello!"))

	err = device.Write16(scsi.Write16{LBA: 0, Data: write, BlockSize: capacity.BlockSize})
	if err != nil {
		t.Fatal(err)
	}

	data, err := device.Read16(scsi.Read16{LBA: 0, Blocks: 1, BlockSize: capacity.BlockSize})
	if err != nil {
		t.Fatal(err)
	}
	assert.Assert(t, bytes.Equal(write, data))
}

func TestDataInClampedToBuffer(t *testing.T) {
	device := openTarget(t, 1*MiB)
	defer device.Close()

	// ask for the whole page but supply a smaller buffer
	in := make([]byte, 8)
	res, err := device.Execute(&scsi.Command{
		CDB:    []byte{scsi.OpInquiry, 0, 0, 0, scsi.InquiryLength, 0},
		DataIn: in,
		Sense:  make([]byte, scsi.SenseLength),
	})
	assert.NilError(t, err)
	assert.Equal(t, res.Status, scsi.StatusGood)
	assert.Assert(t, res.DataLen <= len(in))
}

func TestReadBeyondCapacity(t *testing.T) {
	device := openTarget(t, 1*MiB)
	defer device.Close()

	capacity, err := device.Capacity()
	assert.NilError(t, err)

	cdb := make([]byte, 16)
	cdb[0] = scsi.OpRead16
	lba := capacity.LBA + 10
	for i := 0; i < 8; i++ {
		cdb[9-i] = byte(lba >> (8 * i))
	}
	cdb[13] = 1

	sense := make([]byte, 32)
	res, err := device.Execute(&scsi.Command{CDB: cdb, DataIn: make([]byte, capacity.BlockSize), Sense: sense})
	assert.NilError(t, err)
	assert.Equal(t, res.Status, scsi.StatusCheckCondition)
	assert.Assert(t, res.SenseLen > 0)
	assert.Assert(t, res.SenseLen <= len(sense))
	assert.Equal(t, res.DataLen, 0)

	s, err := scsi.ParseSense(sense[:res.SenseLen])
	assert.NilError(t, err)
	assert.Equal(t, s.Key, scsi.SenseIllegalRequest)

	// the convenience wrapper reports the same thing as an error
	_, err = device.Read16(scsi.Read16{LBA: lba, Blocks: 1, BlockSize: capacity.BlockSize})
	var cc *scsi.CheckConditionError
	assert.Assert(t, errors.As(err, &cc))
	assert.Equal(t, cc.Sense.Key, scsi.SenseIllegalRequest)
}

func TestCDBTooLong(t *testing.T) {
	device := openTarget(t, 1*MiB)
	defer device.Close()

	_, err := device.Execute(&scsi.Command{CDB: make([]byte, 32)})
	var usage *scsi.UsageError
	assert.Assert(t, errors.As(err, &usage))
	assert.Assert(t, errors.Is(err, scsi.ErrInvalidCDB))
}

func TestCloseTwice(t *testing.T) {
	device := openTarget(t, 1*MiB)
	assert.NilError(t, device.Close())

	err := device.Close()
	var usage *scsi.UsageError
	assert.Assert(t, errors.As(err, &usage))
	assert.Assert(t, errors.Is(err, scsi.ErrClosed))

	_, err = device.Execute(&scsi.Command{CDB: make([]byte, 6)})
	assert.Assert(t, errors.Is(err, scsi.ErrClosed))
}

func TestOpenMalformedURL(t *testing.T) {
	for _, url := range []string{
		"iscsi://",
		"iscsi://127.0.0.1/no-lun",
		"iscsi://127.0.0.1:3260/iqn.2024-10.com.example:0:0/notanumber",
	} {
		_, err := scsi.Open(url, scsi.Options{ConnectAttempts: 1})
		var openErr *scsi.OpenError
		assert.Assert(t, errors.As(err, &openErr), url)
		assert.Equal(t, openErr.Kind, scsi.KindISCSI)
		assert.Equal(t, openErr.Address, url)
	}
}

func TestOpenUnreachable(t *testing.T) {
	// reserved by freeport, nobody listens on it
	url := fmt.Sprintf("iscsi://127.0.0.1:%d/iqn.2024-10.com.example:0:0/0", freeport.GetOne(t))
	start := time.Now()
	_, err := scsi.Open(url, scsi.Options{
		InitiatorIQN:    testInitiator,
		Timeout:         2 * time.Second,
		ConnectAttempts: 2,
		ConnectMaxDelay: 10 * time.Millisecond,
	})
	var openErr *scsi.OpenError
	assert.Assert(t, errors.As(err, &openErr))
	assert.ErrorContains(t, err, "iscsi_full_connect_sync")
	t.Log(err, time.Since(start))
}

func TestWrongTargetName(t *testing.T) {
	url := runTestTarget(t, createTargetTempfile(t, 1*MiB))
	wrong := url[:len(url)-len("0:0/0")] + "9:9/0"
	_, err := scsi.Open(wrong, scsi.Options{InitiatorIQN: testInitiator, ConnectAttempts: 1})
	var openErr *scsi.OpenError
	assert.Assert(t, errors.As(err, &openErr))
}
