// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memseg_test

import (
	"path/filepath"
	"testing"

	"code.hybscloud.com/eal/memseg"
	"code.hybscloud.com/eal/sharedmem"
)

func TestReserveAppendsInOrder(t *testing.T) {
	backend := &memseg.AnonBackend{Sizes: []memseg.PageSize{memseg.Page4K}}
	tbl := memseg.New(backend)

	seg1, err := memseg.Reserve(tbl, 0, 4096, memseg.Page4K, memseg.NoHuge)
	if err != nil {
		t.Fatalf("Reserve #1: %v", err)
	}
	seg2, err := memseg.Reserve(tbl, 0, 8192, memseg.Page4K, memseg.NoHuge)
	if err != nil {
		t.Fatalf("Reserve #2: %v", err)
	}

	segs := tbl.Segments()
	if len(segs) != 2 {
		t.Fatalf("Segments(): got %d, want 2", len(segs))
	}
	if segs[0].VirtualBase != seg1.VirtualBase || segs[1].VirtualBase != seg2.VirtualBase {
		t.Fatalf("Segments() order mismatch")
	}
	if segs[1].Length < 8192 {
		t.Fatalf("seg2 length: got %d, want >= 8192", segs[1].Length)
	}
}

func TestReserveUnavailableSizeFailsWithoutHint(t *testing.T) {
	backend := &memseg.AnonBackend{Sizes: []memseg.PageSize{memseg.Page4K}}
	tbl := memseg.New(backend)

	if _, err := memseg.Reserve(tbl, 0, 1<<21, memseg.Page2M, 0); err == nil {
		t.Fatalf("Reserve 2M without hint on 4K-only backend: got nil error, want failure")
	}
}

func TestReserveUnavailableSizeFallsBackWithHint(t *testing.T) {
	backend := &memseg.AnonBackend{Sizes: []memseg.PageSize{memseg.Page4K}}
	tbl := memseg.New(backend)

	seg, err := memseg.Reserve(tbl, 0, 1<<21, memseg.Page2M, memseg.SizeHintOnly)
	if err != nil {
		t.Fatalf("Reserve 2M with SizeHintOnly: %v", err)
	}
	if seg.PageSize != memseg.Page4K {
		t.Fatalf("fallback page size: got %s, want 4K", seg.PageSize)
	}
}

func TestPublishWritesSegmentCount(t *testing.T) {
	backend := &memseg.AnonBackend{Sizes: []memseg.PageSize{memseg.Page4K}}
	tbl := memseg.New(backend)
	for i := 0; i < 3; i++ {
		if _, err := memseg.Reserve(tbl, 0, 4096, memseg.Page4K, memseg.NoHuge); err != nil {
			t.Fatalf("Reserve #%d: %v", i, err)
		}
	}

	path := filepath.Join(t.TempDir(), "test_config")
	region, err := sharedmem.Create(path, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer region.Close()

	if err := tbl.Publish(region); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if region.SegmentCount() != 3 {
		t.Fatalf("SegmentCount: got %d, want 3", region.SegmentCount())
	}
}
