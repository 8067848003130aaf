// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eal_test

import (
	"testing"

	"code.hybscloud.com/eal"
	"code.hybscloud.com/eal/percpu"
	"code.hybscloud.com/eal/sharedmem"
)

func TestInitBecomesPrimary(t *testing.T) {
	dir := t.TempDir()
	inst, err := eal.Init([]string{
		"--proc-type=primary",
		"--no-huge",
		"--huge-dir=" + dir,
		"--file-prefix=initprim",
		"-m", "4",
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer eal.Cleanup(inst)

	if inst.Role() != sharedmem.RolePrimary {
		t.Fatalf("Role: got %v, want PRIMARY", inst.Role())
	}
	if inst.Segments == nil || inst.Zones == nil {
		t.Fatalf("Segments/Zones: got nil, want populated for a primary instance")
	}
	if len(inst.Segments.Segments()) == 0 {
		t.Fatalf("Segments: got none, want at least one from -m 4")
	}

	zone, err := inst.Zones.Reserve("test_zone", 1024, 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("Zones.Reserve: %v", err)
	}
	if zone.Length < 1024 {
		t.Fatalf("zone length: got %d, want >= 1024", zone.Length)
	}

	if int(inst.Region.LCoreCount()) != len(inst.Topology.Enabled()) {
		t.Fatalf("Region.LCoreCount(): got %d, want %d (one per enabled lcore, published at Init)",
			inst.Region.LCoreCount(), len(inst.Topology.Enabled()))
	}

	done := make(chan error, 1)
	go func() {
		if err := percpu.Register(0, map[int]bool{0: true}, inst.Topology); err != nil {
			done <- err
			return
		}
		done <- inst.SetAffinity(map[int]bool{0: true})
	}()
	if err := <-done; err != nil {
		t.Fatalf("SetAffinity: %v", err)
	}
	if _, _, mask, err := inst.Region.ReadLCoreEntry(0); err != nil || mask&1 == 0 {
		t.Fatalf("ReadLCoreEntry(0) after SetAffinity: mask=%#x err=%v, want bit 0 set", mask, err)
	}
}

func TestAttachWithoutPrimaryFails(t *testing.T) {
	dir := t.TempDir()
	_, err := eal.Attach([]string{
		"--huge-dir=" + dir,
		"--file-prefix=noprimary",
	})
	if err == nil {
		t.Fatalf("Attach: got nil error, want failure (no primary ever published magic)")
	}
}

func TestInitRejectsConflictingOptions(t *testing.T) {
	dir := t.TempDir()
	_, err := eal.Init([]string{
		"--huge-dir=" + dir,
		"-m", "4",
		"--socket-mem=1,2",
	})
	if err == nil {
		t.Fatalf("Init: got nil error, want -m/--socket-mem mutual exclusion failure")
	}
}
