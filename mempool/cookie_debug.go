// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build debug

package mempool

import "unsafe"

// Header cookies toggle between two states on every transfer, mirroring
// rte_mempool.h's RTE_MEMPOOL_HEADER_COOKIE1/COOKIE2: cookieFree marks an
// object sitting in the pool (not yet handed to a caller), cookieAllocated
// marks one currently held by a caller. A static single-state cookie can
// only catch gross corruption; toggling on every Get/Put additionally
// catches a double-free (Put on an object already cookieFree) and a
// foreign-pool object (header never transitioned through this pool's
// writeCookie at all, so it matches neither state).
const (
	cookieFree      = 0xf2eef2eedadd2e55
	cookieAllocated = 0xbadbadbadadd2e55
	trailerCookie   = 0xadd2e55badbadbad
)

// writeCookie marks objBytes as freshly populated: in the free state
// (ready to be Get from the pool) with an intact trailer (spec §4.F
// "Integrity").
func writeCookie(p *Pool, objBytes []byte) {
	putUint64(objBytes[0:8], cookieFree)
	putUint64(objBytes[len(objBytes)-8:], trailerCookie)
}

// checkCookies validates every object's header/trailer cookies and
// advances the header's state. alloc is true for a Get (free -> allocated)
// and false for a Put (allocated -> free); a header already in the target
// state signals a double-free (Put) or a double-Get race, and a header in
// neither cookie state signals a foreign-pool or corrupted object (spec
// §4.F "Integrity").
func checkCookies(p *Pool, objs []unsafe.Pointer, alloc bool) {
	for _, ptr := range objs {
		if ptr == nil {
			continue
		}
		header := unsafe.Add(ptr, -int(p.HeaderSize))
		objBytes := unsafe.Slice((*byte)(header), p.TotalSize)
		if getUint64(objBytes[len(objBytes)-8:]) != trailerCookie {
			panic("mempool: trailer cookie corruption detected (buffer overrun)")
		}
		h := getUint64(objBytes[0:8])
		if alloc {
			if h != cookieFree {
				panic("mempool: header cookie corruption detected at Get (object not free: already allocated, or foreign-pool object)")
			}
			putUint64(objBytes[0:8], cookieAllocated)
		} else {
			if h == cookieFree {
				panic("mempool: double-free detected (object already free)")
			}
			if h != cookieAllocated {
				panic("mempool: header cookie corruption detected at Put (foreign-pool object)")
			}
			putUint64(objBytes[0:8], cookieFree)
		}
	}
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
