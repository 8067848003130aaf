// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memzone_test

import (
	"testing"

	"code.hybscloud.com/eal/memseg"
	"code.hybscloud.com/eal/memzone"
)

func newDirectory(t *testing.T, length uint64) (*memzone.Directory, *memseg.Table) {
	t.Helper()
	backend := &memseg.AnonBackend{Sizes: []memseg.PageSize{memseg.Page4K}}
	tbl := memseg.New(backend)
	if _, err := memseg.Reserve(tbl, 0, length, memseg.Page4K, memseg.NoHuge); err != nil {
		t.Fatalf("Reserve segment: %v", err)
	}
	return memzone.New(tbl, 0), tbl
}

func TestReserveLookupFree(t *testing.T) {
	dir, _ := newDirectory(t, 1<<20)

	z, err := dir.Reserve("z1", 4096, memzone.AnySocket, 0, 0, 0)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if z.Length != 4096 {
		t.Fatalf("Length: got %d, want 4096", z.Length)
	}
	if z.VirtualBase%64 != 0 {
		t.Fatalf("VirtualBase %#x not cache-line aligned", z.VirtualBase)
	}

	got, ok := dir.Lookup("z1")
	if !ok || got != z {
		t.Fatalf("Lookup(%q): got (%v,%v), want (%v,true)", "z1", got, ok, z)
	}

	if err := dir.Free("z1"); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if _, ok := dir.Lookup("z1"); ok {
		t.Fatalf("Lookup after Free: got ok=true, want false")
	}
}

func TestReserveDuplicateNameFails(t *testing.T) {
	dir, _ := newDirectory(t, 1<<20)
	if _, err := dir.Reserve("dup", 4096, memzone.AnySocket, 0, 0, 0); err != nil {
		t.Fatalf("Reserve #1: %v", err)
	}
	if _, err := dir.Reserve("dup", 4096, memzone.AnySocket, 0, 0, 0); err == nil {
		t.Fatalf("Reserve #2 with duplicate name: got nil error, want failure")
	}
}

func TestReserveZeroLengthTakesLargestSpan(t *testing.T) {
	dir, _ := newDirectory(t, 1<<20)
	z, err := dir.Reserve("big", 0, memzone.AnySocket, 0, 0, 0)
	if err != nil {
		t.Fatalf("Reserve len=0: %v", err)
	}
	if z.Length == 0 {
		t.Fatalf("Length: got 0, want the full free span")
	}
}

func TestReserveExhaustsSegment(t *testing.T) {
	dir, _ := newDirectory(t, 8192)
	if _, err := dir.Reserve("a", 8192, memzone.AnySocket, 0, 0, 0); err != nil {
		t.Fatalf("Reserve a: %v", err)
	}
	if _, err := dir.Reserve("b", 1, memzone.AnySocket, 0, 0, 0); err == nil {
		t.Fatalf("Reserve b after segment exhausted: got nil error, want ENOMEM-style failure")
	}
}

func TestFreeCoalescesNeighbors(t *testing.T) {
	dir, _ := newDirectory(t, 3*4096)
	if _, err := dir.Reserve("a", 4096, memzone.AnySocket, 0, 0, 0); err != nil {
		t.Fatalf("Reserve a: %v", err)
	}
	b, err := dir.Reserve("b", 4096, memzone.AnySocket, 0, 0, 0)
	if err != nil {
		t.Fatalf("Reserve b: %v", err)
	}
	if err := dir.Free("b"); err != nil {
		t.Fatalf("Free b: %v", err)
	}

	// After freeing b, the remaining free span must be large enough to
	// satisfy a request spanning b's old slot plus the untouched tail,
	// proving neighbor coalescing occurred rather than leaving two
	// disjoint small spans.
	c, err := dir.Reserve("c", 2*4096, memzone.AnySocket, 0, 0, 0)
	if err != nil {
		t.Fatalf("Reserve c after coalesce: %v", err)
	}
	if c.VirtualBase != b.VirtualBase {
		t.Fatalf("c should reuse b's freed span: got base %#x, want %#x", c.VirtualBase, b.VirtualBase)
	}
}

func TestReserveInvalidAlignmentRejected(t *testing.T) {
	dir, _ := newDirectory(t, 1<<20)
	if _, err := dir.Reserve("bad", 4096, memzone.AnySocket, 3, 0, 0); err == nil {
		t.Fatalf("Reserve with non-power-of-two alignment: got nil error, want failure")
	}
}

func TestFreeUnknownNameFails(t *testing.T) {
	dir, _ := newDirectory(t, 1<<20)
	if err := dir.Free("nope"); err == nil {
		t.Fatalf("Free unknown name: got nil error, want failure")
	}
}
