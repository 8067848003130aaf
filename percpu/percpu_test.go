// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package percpu_test

import (
	"path/filepath"
	"testing"

	"code.hybscloud.com/eal/percpu"
	"code.hybscloud.com/eal/sharedmem"
	"code.hybscloud.com/eal/topology"
)

func TestRegisterAndSelf(t *testing.T) {
	tbl, err := topology.Probe(topology.Options{})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		if err := percpu.Register(0, map[int]bool{0: true}, tbl); err != nil {
			done <- err
			return
		}
		s, ok := percpu.Self()
		if !ok {
			done <- errNotRegistered{}
			return
		}
		if s.LCoreID != 0 {
			done <- errMismatch{s.LCoreID}
			return
		}
		done <- nil
	}()
	if err := <-done; err != nil {
		t.Fatalf("registered goroutine: %v", err)
	}
}

func TestMasterDefaultsToFirstEnabled(t *testing.T) {
	tbl, err := topology.Probe(topology.Options{})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	id, ok := percpu.DefaultMaster(tbl)
	if !ok {
		t.Fatalf("DefaultMaster: got ok=false, want true")
	}
	enabled := tbl.Enabled()
	if len(enabled) == 0 || id != enabled[0].ID {
		t.Fatalf("DefaultMaster: got %d, want %d", id, enabled[0].ID)
	}
}

func TestSetAffinityMirrorsIntoRegion(t *testing.T) {
	tbl, err := topology.Probe(topology.Options{})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	path := filepath.Join(t.TempDir(), "test_config")
	region, err := sharedmem.Create(path, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer region.Close()

	done := make(chan error, 1)
	go func() {
		if err := percpu.Register(0, map[int]bool{0: true}, tbl); err != nil {
			done <- err
			return
		}
		done <- percpu.SetAffinity(map[int]bool{0: true}, tbl, percpu.RegionMirror(region, tbl))
	}()
	if err := <-done; err != nil {
		t.Fatalf("SetAffinity: %v", err)
	}

	lcoreID, _, mask, err := region.ReadLCoreEntry(0)
	if err != nil {
		t.Fatalf("ReadLCoreEntry: %v", err)
	}
	if lcoreID != 0 {
		t.Fatalf("ReadLCoreEntry lcoreID: got %d, want 0", lcoreID)
	}
	if mask&1 == 0 {
		t.Fatalf("ReadLCoreEntry mask: got %#x, want bit 0 set", mask)
	}
}

func TestPublishLCoreTableWritesEnabledLCores(t *testing.T) {
	tbl, err := topology.Probe(topology.Options{})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	path := filepath.Join(t.TempDir(), "test_config")
	region, err := sharedmem.Create(path, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer region.Close()

	if err := percpu.PublishLCoreTable(region, tbl); err != nil {
		t.Fatalf("PublishLCoreTable: %v", err)
	}
	enabled := tbl.Enabled()
	if int(region.LCoreCount()) != len(enabled) {
		t.Fatalf("LCoreCount: got %d, want %d", region.LCoreCount(), len(enabled))
	}
}

type errNotRegistered struct{}

func (errNotRegistered) Error() string { return "thread not registered after Register" }

type errMismatch struct{ got int }

func (e errMismatch) Error() string { return "lcore id mismatch" }
