//go:build cgo

package iscsi_test

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"testing"

	"github.com/gostor/gotgt/pkg/config"
	_ "github.com/gostor/gotgt/pkg/port/iscsit"
	tgtscsi "github.com/gostor/gotgt/pkg/scsi"
	_ "github.com/gostor/gotgt/pkg/scsi/backingstore"
	"github.com/hashicorp/consul/sdk/freeport"
)

const (
	_ = 1 << (10 * iota)
	KiB
	MiB
	GiB
	TiB
)

const testInitiator = "iqn.2024-10.goscsi:test"

func createTargetTempfile(t *testing.T, size int64) string {
	file, err := os.CreateTemp("", "goscsi")
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	t.Cleanup(func() { _ = os.Remove(file.Name()) })
	err = file.Truncate(size)
	if err != nil {
		t.Fatal(err)
	}
	return file.Name()
}

// writeTargetTempfile fills a backing file of the given size with random
// bytes from rnd.
func writeTargetTempfile(t *testing.T, rnd *rand.Rand, size int64) string {
	name := createTargetTempfile(t, 0)
	file, err := os.OpenFile(name, os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	if _, err := io.CopyN(file, rnd, size); err != nil {
		t.Fatal(err)
	}
	return name
}

// runTestTarget serves imgFile as LUN 0 of an iSCSI target on a random
// ephemeral port and returns a URL for scsi.Open.
func runTestTarget(t *testing.T, imgFile string) (url string) {
	port := freeport.GetOne(t)
	targetIQN := "iqn.2024-10.com.example:0:0"
	c := &config.Config{
		Storages: []config.BackendStorage{
			{
				DeviceID:         1000,
				Path:             fmt.Sprintf("file:%s", imgFile),
				Online:           true,
				ThinProvisioning: true,
			},
		},
		ISCSIPortals: []config.ISCSIPortalInfo{
			{ID: 0, Portal: fmt.Sprintf("127.0.0.1:%d", port)},
		},
		ISCSITargets: map[string]config.ISCSITarget{
			targetIQN: {
				TPGTs: map[string][]uint64{
					"1": {0},
				},
				LUNs: map[string]uint64{
					"0": 1000,
				},
			},
		},
	}
	err := tgtscsi.InitSCSILUMap(c)
	if err != nil {
		t.Fatal(err)
	}
	tgtsvc := tgtscsi.NewSCSITargetService()
	targetDriver, err := tgtscsi.NewTargetDriver("iscsi", tgtsvc)
	if err != nil {
		t.Fatal(err)
	}
	for tgtname := range c.ISCSITargets {
		err = targetDriver.NewTarget(tgtname, c)
		if err != nil {
			t.Fatal(err)
		}
	}
	go targetDriver.Run(port)
	t.Cleanup(func() { _ = targetDriver.Close() })
	return fmt.Sprintf("iscsi://127.0.0.1:%d/%s/0", port, targetIQN)
}
