// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sharedmem implements [MODULE B] of the CORE (spec §3, §4.B): the
// single file-backed shared control region that a PRIMARY process creates
// and any number of SECONDARY processes attach to at the identical virtual
// address. It also arbitrates the PRIMARY/SECONDARY role itself via an
// advisory write lock on the region's memseg-table byte range, exactly as
// the DPDK EAL's rte_eal_config_create/attach/reattach sequence does
// (original_source/lib/linuxapp/eal/eal.c).
package sharedmem

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
	"unsafe"

	ealerrors "code.hybscloud.com/eal/errors"
	"code.hybscloud.com/iox"
)

const (
	magicValue = uint64(0xEA1C0DE5A7B17E01)

	// HeaderSize is the fixed size, in bytes, of the region header.
	HeaderSize = 64

	// MaxSegments bounds the memory-segment table (spec §3: "a
	// memory-segment table of bounded length").
	MaxSegments = 128
	// segmentEntrySize must match the 64-byte entry stride
	// memseg.Table.Publish writes; kept as an untyped constant here to keep this package import-cycle free of
	// memseg (memseg instead imports sharedmem for the region layout).
	segmentEntrySize = 64
	segmentTableSize = MaxSegments * segmentEntrySize

	// MaxLCoreEntries bounds the lcore/topology table, mirroring
	// topology.MaxLCore without introducing a dependency on that package.
	MaxLCoreEntries = 256
	lcoreEntrySize  = 16
	lcoreTableSize  = MaxLCoreEntries * lcoreEntrySize

	// RegionSize is the total size of the mmap'd control region: header,
	// then the memseg table, then the lcore/topology table. Spec's Open
	// Question about inline-vs-separate CPU table is resolved here in
	// favor of a separate region (see DESIGN.md).
	RegionSize = HeaderSize + segmentTableSize + lcoreTableSize

	// SegmentTableOffset is where the PRIMARY's advisory write lock is
	// taken (spec §4.B: "a designated byte range (specifically the
	// memseg table region)"), matching eal.c's
	// wr_lock.l_start = offsetof(struct rte_mem_config, memseg).
	SegmentTableOffset = HeaderSize
	// LCoreTableOffset is where the per-lcore topology table begins,
	// following the memseg table at a known offset (spec §4.B: "The
	// CPU-config sub-region follows the memory-config sub-region at a
	// known offset").
	LCoreTableOffset = HeaderSize + segmentTableSize
)

// header field byte offsets within the region, little-endian encoded.
const (
	offMagic        = 0
	offVersion      = 8
	offAnchor       = 16
	offSegmentCount = 24
	offLCoreCount   = 28
)

// CurrentVersion is the control-region layout version this build writes
// and expects to read.
const CurrentVersion uint32 = 1

// Role is the arbitrated process role (spec §3).
type Role int

const (
	RolePrimary Role = iota
	RoleSecondary
)

func (r Role) String() string {
	if r == RolePrimary {
		return "PRIMARY"
	}
	return "SECONDARY"
}

// Region is a mapped shared control region. The zero value is not usable;
// construct with [Create] or [Attach].
type Region struct {
	file *os.File
	data []byte // mmap'd bytes, len == RegionSize
	base uintptr
	role Role
}

// Path derives the control-file path for prefix under dir, mirroring
// eal_runtime_config_path(): "<dir>/<prefix>_config".
func Path(dir, prefix string) string {
	if prefix == "" {
		prefix = "eal"
	}
	return filepath.Join(dir, prefix+"_config")
}

// Open arbitrates PRIMARY/SECONDARY role via [AcquireRole] and returns a
// mapped [Region] for whichever side this process won, bounding a
// SECONDARY's magic-wait by [DefaultAttachTimeout]. This is the normal
// entry point; [Create] and [Attach] are exposed separately for tests that
// need to force a specific role.
func Open(path string, baseVirtAddr uintptr, forceSecondary bool) (*Region, error) {
	return OpenTimeout(path, baseVirtAddr, forceSecondary, DefaultAttachTimeout)
}

// OpenTimeout is [Open] with an explicit bound on a SECONDARY's magic-wait
// spin, for a collaborator CLI that wants to expose its own
// --attach-timeout rather than inherit [DefaultAttachTimeout].
func OpenTimeout(path string, baseVirtAddr uintptr, forceSecondary bool, timeout time.Duration) (*Region, error) {
	role, f, err := AcquireRole(path, forceSecondary)
	if err != nil {
		return nil, err
	}
	if role == RolePrimary {
		return create(f, baseVirtAddr)
	}
	return attach(f, timeout)
}

// Create opens path, takes the role lock via [AcquireRole], and then
// truncates, maps, and publishes a new control region, becoming PRIMARY;
// it fails with [ealerrors.KindRoleConflict] if the lock is already held.
// Exposed for tests; production code should use [Open].
func Create(path string, baseVirtAddr uintptr) (*Region, error) {
	role, f, err := AcquireRole(path, false)
	if err != nil {
		return nil, err
	}
	if role != RolePrimary {
		f.Close()
		return nil, ealerrors.New("sharedmem.Create", ealerrors.KindRoleConflict,
			fmt.Errorf("%s already has a primary", path))
	}
	return create(f, baseVirtAddr)
}

// create maps and publishes a new control region over f, becoming PRIMARY.
// baseVirtAddr, if non-zero, is rounded down to the host page size and the
// region is mapped at exactly that address; the region size is not
// subtracted first, and memseg segments are not placed relative to it.
func create(f *os.File, baseVirtAddr uintptr) (*Region, error) {
	if err := repairMode(f, 0o666); err != nil {
		f.Close()
		return nil, ealerrors.New("sharedmem.Create", ealerrors.KindFatal, err)
	}
	if err := f.Truncate(int64(RegionSize)); err != nil {
		f.Close()
		return nil, ealerrors.New("sharedmem.Create", ealerrors.KindFatal, err)
	}

	hint := uintptr(0)
	if baseVirtAddr != 0 {
		hint = alignFloor(baseVirtAddr, pageSize())
	}

	data, base, err := mmapAt(f, hint, RegionSize, true)
	if err != nil {
		f.Close()
		return nil, ealerrors.New("sharedmem.Create", ealerrors.KindFatal, err)
	}

	r := &Region{file: f, data: data, base: base, role: RolePrimary}
	binary.LittleEndian.PutUint32(data[offVersion:], CurrentVersion)
	binary.LittleEndian.PutUint64(data[offAnchor:], uint64(base))
	binary.LittleEndian.PutUint32(data[offSegmentCount:], 0)
	binary.LittleEndian.PutUint32(data[offLCoreCount:], 0)

	// Publish last: once Magic is visible, the layout must be complete
	// and immutable for the lifetime of the PRIMARY (spec §3 invariant).
	r.magicWord().Store(magicValue)
	return r, nil
}

// DefaultAttachTimeout bounds [Attach]'s wait for a PRIMARY to publish the
// magic (spec §4.B: "wait (bounded spin with backoff) for magic to become
// valid"). A SECONDARY waiting longer than this against a file whose
// PRIMARY died before publishing, or that was never a real control file,
// gives up with [ealerrors.KindRoleConflict] instead of spinning forever.
const DefaultAttachTimeout = 10 * time.Second

// Attach opens path and performs the two-phase SECONDARY attach, bounded
// by [DefaultAttachTimeout]. Exposed for tests; production code should use
// [Open].
func Attach(path string) (*Region, error) {
	return AttachTimeout(path, DefaultAttachTimeout)
}

// AttachTimeout is [Attach] with an explicit bound on the magic-wait
// spin, for callers that need a tighter or looser deadline than
// [DefaultAttachTimeout].
func AttachTimeout(path string, timeout time.Duration) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, ealerrors.New("sharedmem.Attach", ealerrors.KindFatal, err)
	}
	return attach(f, timeout)
}

// attach performs the two-phase SECONDARY attach (spec §4.B) over an
// already-opened file: map read-only at any address, spin-wait (bounded by
// timeout) for the magic to become valid, read the anchor address, unmap,
// then re-map read-write at exactly that address. Fails with
// [ealerrors.KindRoleConflict] if no PRIMARY ever publishes the magic
// within timeout, or [ealerrors.KindFatal] if the re-map does not land at
// the anchor.
func attach(f *os.File, timeout time.Duration) (*Region, error) {
	probe, _, err := mmapAt(f, 0, RegionSize, false)
	if err != nil {
		f.Close()
		return nil, ealerrors.New("sharedmem.Attach", ealerrors.KindFatal, err)
	}
	magicPtr := (*atomic.Uint64)(unsafe.Pointer(&probe[offMagic]))

	deadline := time.Now().Add(timeout)
	var bo iox.Backoff
	for magicPtr.Load() != magicValue {
		if time.Now().After(deadline) {
			munmap(probe)
			f.Close()
			return nil, ealerrors.New("sharedmem.Attach", ealerrors.KindRoleConflict,
				fmt.Errorf("no primary published the control region within %s", timeout))
		}
		bo.Wait()
	}
	anchor := uintptr(binary.LittleEndian.Uint64(probe[offAnchor:]))
	if err := munmap(probe); err != nil {
		f.Close()
		return nil, ealerrors.New("sharedmem.Attach", ealerrors.KindFatal, err)
	}

	data, base, err := mmapAt(f, anchor, RegionSize, true)
	if err != nil {
		f.Close()
		return nil, ealerrors.New("sharedmem.Attach", ealerrors.KindFatal, err)
	}
	if base != anchor {
		munmap(data)
		f.Close()
		return nil, ealerrors.New("sharedmem.Attach", ealerrors.KindFatal,
			fmt.Errorf("re-map landed at %#x, primary anchor is %#x; retry with --base-virtaddr=%#x", base, anchor, anchor))
	}

	return &Region{file: f, data: data, base: base, role: RoleSecondary}, nil
}

// Role reports whether this region was created (PRIMARY) or attached
// (SECONDARY).
func (r *Region) Role() Role { return r.role }

// Base returns the anchor virtual address this region is mapped at.
func (r *Region) Base() uintptr { return r.base }

// Bytes exposes the raw mapped region for the memzone/memseg/percpu
// layers to carve sub-regions out of. Callers must respect the offset
// layout (SegmentTableOffset, LCoreTableOffset).
func (r *Region) Bytes() []byte { return r.data }

func (r *Region) magicWord() *atomic.Uint64 {
	return (*atomic.Uint64)(unsafe.Pointer(&r.data[offMagic]))
}

// SetSegmentCount publishes how many of [MaxSegments] memseg-table slots
// are valid, so an attached SECONDARY (or a restarted PRIMARY) can
// enumerate the table without a Go-level reference to the memseg.Table
// that wrote it. Callers only meaningfully call this while holding the
// write lock (spec §4.B: only PRIMARY mutates the region).
func (r *Region) SetSegmentCount(n uint32) {
	binary.LittleEndian.PutUint32(r.data[offSegmentCount:], n)
}

// SegmentCount reads back the count [SetSegmentCount] last wrote.
func (r *Region) SegmentCount() uint32 {
	return binary.LittleEndian.Uint32(r.data[offSegmentCount:])
}

// SetLCoreCount publishes how many of [MaxLCoreEntries] lcore-table slots
// are valid, mirroring [SetSegmentCount] for the CPU-config sub-region.
func (r *Region) SetLCoreCount(n uint32) {
	binary.LittleEndian.PutUint32(r.data[offLCoreCount:], n)
}

// LCoreCount reads back the count [SetLCoreCount] last wrote.
func (r *Region) LCoreCount() uint32 {
	return binary.LittleEndian.Uint32(r.data[offLCoreCount:])
}

// WriteLCoreEntry publishes one lcore's NUMA node and CPU-set bitmask into
// the CPU-config sub-region at LCoreTableOffset (spec §4.B: "The
// CPU-config sub-region follows the memory-config sub-region at a known
// offset"). cpusetMask only represents CPU ids 0-63 (one bit each); a
// 16-byte entry has no room for a wider set, which is enough for every
// topology this CORE probes in practice (spec §4.A's lcore cap is larger,
// but real CPU-sets rarely span past 64 ids). idx is the lcore id itself,
// bounded by [MaxLCoreEntries].
func (r *Region) WriteLCoreEntry(idx int, numaID int32, cpusetMask uint64) error {
	if idx < 0 || idx >= MaxLCoreEntries {
		return fmt.Errorf("lcore index %d out of range [0,%d)", idx, MaxLCoreEntries)
	}
	entry := r.data[LCoreTableOffset+idx*lcoreEntrySize : LCoreTableOffset+(idx+1)*lcoreEntrySize]
	binary.LittleEndian.PutUint32(entry[0:], uint32(idx))
	binary.LittleEndian.PutUint32(entry[4:], uint32(numaID))
	binary.LittleEndian.PutUint64(entry[8:], cpusetMask)
	return nil
}

// ReadLCoreEntry reads back one lcore's published NUMA node and CPU-set
// bitmask, as written by [WriteLCoreEntry].
func (r *Region) ReadLCoreEntry(idx int) (lcoreID int, numaID int32, cpusetMask uint64, err error) {
	if idx < 0 || idx >= MaxLCoreEntries {
		return 0, 0, 0, fmt.Errorf("lcore index %d out of range [0,%d)", idx, MaxLCoreEntries)
	}
	entry := r.data[LCoreTableOffset+idx*lcoreEntrySize : LCoreTableOffset+(idx+1)*lcoreEntrySize]
	lcoreID = int(binary.LittleEndian.Uint32(entry[0:]))
	numaID = int32(binary.LittleEndian.Uint32(entry[4:]))
	cpusetMask = binary.LittleEndian.Uint64(entry[8:])
	return lcoreID, numaID, cpusetMask, nil
}

// Close unmaps the region and, for a PRIMARY, lets the kernel auto-release
// the advisory lock by closing the retained file descriptor (spec §4.B:
// "The file descriptor is retained open for the process lifetime so the
// kernel auto-releases the lock on exit or crash").
func (r *Region) Close() error {
	err := munmap(r.data)
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func repairMode(f *os.File, want os.FileMode) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Mode().Perm() == want {
		return nil
	}
	return f.Chmod(want)
}

func alignFloor(v uintptr, align uintptr) uintptr {
	return v &^ (align - 1)
}
