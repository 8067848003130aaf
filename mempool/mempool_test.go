// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mempool_test

import (
	"testing"
	"unsafe"

	"code.hybscloud.com/eal/memseg"
	"code.hybscloud.com/eal/memzone"
	"code.hybscloud.com/eal/mempool"
)

func newDirectory(t *testing.T) *memzone.Directory {
	t.Helper()
	backend := &memseg.AnonBackend{Sizes: []memseg.PageSize{memseg.Page4K}}
	tbl := memseg.New(backend)
	if _, err := memseg.Reserve(tbl, 0, 16<<20, memseg.Page4K, memseg.NoHuge); err != nil {
		t.Fatalf("Reserve segment: %v", err)
	}
	return memzone.New(tbl, 0)
}

func TestCreatePopulatesAllObjects(t *testing.T) {
	dir := newDirectory(t)
	pool, err := mempool.Create(dir, "p1", 16, 64, 0, 0, memzone.AnySocket, 0, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if pool.AvailCount() != 16 {
		t.Fatalf("AvailCount: got %d, want 16", pool.AvailCount())
	}
	if !pool.Full() {
		t.Fatalf("Full: got false, want true")
	}
}

func TestGetPutRoundTripNoCache(t *testing.T) {
	dir := newDirectory(t)
	pool, err := mempool.Create(dir, "p2", 8, 32, 0, 0, memzone.AnySocket, 0, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	obj, err := pool.GetOne(nil)
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if obj == nil {
		t.Fatalf("GetOne returned nil object")
	}
	if pool.InUseCount() != 1 {
		t.Fatalf("InUseCount: got %d, want 1", pool.InUseCount())
	}

	if err := pool.PutOne(obj, nil); err != nil {
		t.Fatalf("PutOne: %v", err)
	}
	if pool.InUseCount() != 0 {
		t.Fatalf("InUseCount after Put: got %d, want 0", pool.InUseCount())
	}
}

func TestExhaustedPoolGetFails(t *testing.T) {
	dir := newDirectory(t)
	pool, err := mempool.Create(dir, "p3", 2, 16, 0, 0, memzone.AnySocket, 0, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := pool.GetOne(nil); err != nil {
			t.Fatalf("GetOne #%d: %v", i, err)
		}
	}
	if _, err := pool.GetOne(nil); err == nil {
		t.Fatalf("GetOne on exhausted pool: got nil error, want failure")
	}
}

func TestConstructorRunsOncePerObject(t *testing.T) {
	dir := newDirectory(t)
	var initialized int
	ctor := func(obj unsafe.Pointer, arg any, idx int) {
		initialized++
	}
	if _, err := mempool.Create(dir, "p4", 10, 8, 0, 0, memzone.AnySocket, 0, ctor, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if initialized != 10 {
		t.Fatalf("constructor calls: got %d, want 10", initialized)
	}
}

func TestCreateDuplicateNameFails(t *testing.T) {
	dir := newDirectory(t)
	if _, err := mempool.Create(dir, "dup", 4, 16, 0, 0, memzone.AnySocket, 0, nil, nil); err != nil {
		t.Fatalf("Create #1: %v", err)
	}
	if _, err := mempool.Create(dir, "dup", 4, 16, 0, 0, memzone.AnySocket, 0, nil, nil); err == nil {
		t.Fatalf("Create #2 with duplicate name: got nil error, want failure")
	}
}

func TestCacheLIFOOrdering(t *testing.T) {
	dir := newDirectory(t)
	pool, err := mempool.Create(dir, "p5", 8, 16, 4, 1, memzone.AnySocket, 0, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	cache := pool.CacheFor(0)
	if cache == nil {
		t.Fatalf("CacheFor(0): got nil, want a cache")
	}

	a, err := pool.GetOne(cache)
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if err := pool.PutOne(a, cache); err != nil {
		t.Fatalf("PutOne: %v", err)
	}

	// The object just put back is on top of the LIFO cache, so the next
	// Get must return the same pointer (spec §4.F "Cache ordering note").
	b, err := pool.GetOne(cache)
	if err != nil {
		t.Fatalf("GetOne #2: %v", err)
	}
	if b != a {
		t.Fatalf("LIFO cache: got different object back, want the same pointer just put")
	}
}

func TestWithPrivateDataAndObjectInit(t *testing.T) {
	dir := newDirectory(t)
	var seenLen int
	initCtor := func(p *mempool.Pool, privateData []byte) {
		seenLen = len(privateData)
		privateData[0] = 0x42
	}
	pool, err := mempool.Create(dir, "p7", 4, 8, 0, 0, memzone.AnySocket, 0, nil, nil,
		mempool.WithPrivateData(16), mempool.WithObjectInit(initCtor))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if seenLen != 16 {
		t.Fatalf("WithObjectInit saw private data len %d, want 16", seenLen)
	}
	if got := pool.PrivateData(); len(got) != 16 || got[0] != 0x42 {
		t.Fatalf("PrivateData(): got %v, want 16 bytes with [0]=0x42", got)
	}
}

func TestWithoutPrivateDataIsNil(t *testing.T) {
	dir := newDirectory(t)
	pool, err := mempool.Create(dir, "p8", 4, 8, 0, 0, memzone.AnySocket, 0, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if pool.PrivateData() != nil {
		t.Fatalf("PrivateData(): got %v, want nil (no WithPrivateData option)", pool.PrivateData())
	}
}

func TestLookupAndWalk(t *testing.T) {
	dir := newDirectory(t)
	if _, err := mempool.Create(dir, "p6", 4, 8, 0, 0, memzone.AnySocket, 0, nil, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := mempool.Lookup("p6"); !ok {
		t.Fatalf("Lookup(p6): got ok=false, want true")
	}
	found := false
	mempool.Walk(func(p *mempool.Pool) {
		if p.Name == "p6" {
			found = true
		}
	})
	if !found {
		t.Fatalf("Walk did not visit p6")
	}
}
