// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package memzone implements [MODULE D] of the CORE (spec §4.D): a
// name→region directory carved out of [memseg] segments under alignment
// and boundary constraints, held in a single RWMutex-guarded directory
// (spec §3 "Memzone"). The directory lives in the memory of the process
// that created it; it is not placed in the shared control region, and
// other processes of the instance cannot look zones up in it.
package memzone

import (
	"fmt"
	"sync"

	ealerrors "code.hybscloud.com/eal/errors"
	"code.hybscloud.com/eal/memseg"
)

// NameSize is the maximum memzone name length, including the terminator,
// mirroring RTE_MEMZONE_NAMESIZE.
const NameSize = 32

// AnySocket selects "no NUMA preference" for [Reserve].
const AnySocket = -1

// Flags request page-size behavior, forwarded to the underlying segment
// when a reservation needs to grow a segment; see [memseg.Flags].
type Flags = memseg.Flags

const (
	SizeHintOnly = memseg.SizeHintOnly
	NoHuge       = memseg.NoHuge
)

// Zone is the immutable descriptor returned by [Reserve] and [Lookup]
// (spec §3: "Invariants: immutable after creation").
type Zone struct {
	Name        string
	VirtualBase uintptr
	Length      uint64
	PageSize    memseg.PageSize
	SocketID    int
	Flags       Flags
}

// span is a free region inside one segment's free-list.
type span struct {
	base uintptr
	len  uint64
}

type segmentFreeList struct {
	segment memseg.Segment
	free    []span
}

// Directory is the shared name→zone registry plus the per-segment
// free-lists Reserve/Free consult. One Directory exists per CORE instance.
type Directory struct {
	mu       sync.RWMutex
	byName   map[string]*Zone
	order    []*Zone
	segments []segmentFreeList
	maxZones int
}

// DefaultMaxZones is the compile-time directory ceiling when New is called
// with maxZones <= 0 (spec §4.D: "directory count is bounded by a
// compile-time ceiling").
const DefaultMaxZones = 2560

// New creates an empty directory bound to the current contents of tbl.
// AddSegment must be called again after memseg.Reserve adds further segments.
func New(tbl *memseg.Table, maxZones int) *Directory {
	if maxZones <= 0 {
		maxZones = DefaultMaxZones
	}
	d := &Directory{
		byName:   make(map[string]*Zone),
		maxZones: maxZones,
	}
	for _, seg := range tbl.Segments() {
		d.AddSegment(seg)
	}
	return d
}

// AddSegment registers a freshly reserved segment's full span as free
// space available to future Reserve calls.
func (d *Directory) AddSegment(seg memseg.Segment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.segments = append(d.segments, segmentFreeList{
		segment: seg,
		free:    []span{{base: seg.VirtualBase, len: seg.Length}},
	})
}

// Reserve carves length bytes out of a segment matching socket (or
// [AnySocket]), honoring alignment (power of two; 0 or anything below the
// cache line is raised to the cache line) and an optional boundary (power of two; the reserved span
// must not cross a boundary-aligned address). length == 0 means "largest
// free span on a matching socket after accounting for alignment" (spec
// §4.D).
func (d *Directory) Reserve(name string, length uint64, socket int, alignment, boundary uint64, flags Flags) (*Zone, error) {
	if name == "" || len(name) >= NameSize {
		return nil, ealerrors.New("memzone.Reserve", ealerrors.KindInvalidArgument,
			fmt.Errorf("name length must be in [1,%d)", NameSize))
	}
	if alignment == 0 {
		alignment = defaultAlignment
	}
	if !isPowerOfTwo(alignment) {
		return nil, ealerrors.New("memzone.Reserve", ealerrors.KindInvalidArgument,
			fmt.Errorf("alignment %d is not a power of two", alignment))
	}
	if alignment < defaultAlignment {
		alignment = defaultAlignment
	}
	if boundary != 0 && (!isPowerOfTwo(boundary) || boundary < length) {
		return nil, ealerrors.New("memzone.Reserve", ealerrors.KindInvalidArgument,
			fmt.Errorf("boundary %d invalid for length %d", boundary, length))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byName[name]; exists {
		return nil, ealerrors.New("memzone.Reserve", ealerrors.KindAlreadyExists,
			fmt.Errorf("memzone %q already reserved", name))
	}
	if len(d.order) >= d.maxZones {
		return nil, ealerrors.New("memzone.Reserve", ealerrors.KindNoMemory,
			fmt.Errorf("directory full (%d entries)", d.maxZones))
	}

	if length == 0 {
		segIdx, base, avail, ok := d.largestFit(socket, alignment)
		if !ok {
			return nil, ealerrors.New("memzone.Reserve", ealerrors.KindNoMemory,
				fmt.Errorf("no free span on socket %d", socket))
		}
		length = avail
		return d.commit(name, segIdx, base, length, flags)
	}

	segIdx, base, ok := d.firstFit(socket, length, alignment, boundary)
	if !ok {
		return nil, ealerrors.New("memzone.Reserve", ealerrors.KindNoMemory,
			fmt.Errorf("no free span of length %d on socket %d", length, socket))
	}
	return d.commit(name, segIdx, base, length, flags)
}

const defaultAlignment = 64 // cache line; see internal/cacheline.Size on amd64

// firstFit scans segments in insertion order for the first aligned
// candidate offset whose [start, start+length) both fits inside a free
// span and, if boundary != 0, lies within one boundary-aligned window
// (spec §4.D "Allocation policy").
func (d *Directory) firstFit(socket int, length, alignment, boundary uint64) (int, uintptr, bool) {
	for segIdx := range d.segments {
		sf := &d.segments[segIdx]
		if socket != AnySocket && sf.segment.NUMANode != socket {
			continue
		}
		for _, sp := range sf.free {
			spanEnd := sp.base + uintptr(sp.len)
			for base := alignUp(sp.base, alignment); base+uintptr(length) <= spanEnd; base = alignUp(base+1, alignment) {
				if boundary != 0 && !withinBoundary(base, length, boundary) {
					continue
				}
				return segIdx, base, true
			}
		}
	}
	return 0, 0, false
}

// largestFit returns the largest free span (after alignment padding) on a
// matching socket, used for length == 0 reservations.
func (d *Directory) largestFit(socket int, alignment uint64) (int, uintptr, uint64, bool) {
	bestSeg := -1
	var bestBase uintptr
	var bestLen uint64
	for segIdx := range d.segments {
		sf := &d.segments[segIdx]
		if socket != AnySocket && sf.segment.NUMANode != socket {
			continue
		}
		for _, sp := range sf.free {
			base := alignUp(sp.base, alignment)
			if base < sp.base {
				continue
			}
			pad := uint64(base - sp.base)
			if pad >= sp.len {
				continue
			}
			avail := sp.len - pad
			if avail > bestLen {
				bestSeg, bestBase, bestLen = segIdx, base, avail
			}
		}
	}
	if bestSeg < 0 {
		return 0, 0, 0, false
	}
	return bestSeg, bestBase, bestLen, true
}

func (d *Directory) commit(name string, segIdx int, base uintptr, length uint64, flags Flags) (*Zone, error) {
	sf := &d.segments[segIdx]
	if err := consume(sf, base, length); err != nil {
		return nil, ealerrors.New("memzone.Reserve", ealerrors.KindNoMemory, err)
	}

	z := &Zone{
		Name:        name,
		VirtualBase: base,
		Length:      length,
		PageSize:    sf.segment.PageSize,
		SocketID:    sf.segment.NUMANode,
		Flags:       flags,
	}
	d.byName[name] = z
	d.order = append(d.order, z)
	return z, nil
}

// consume removes [base, base+length) from sf's free-list, splitting the
// containing span as needed.
func consume(sf *segmentFreeList, base uintptr, length uint64) error {
	for i, sp := range sf.free {
		if base < sp.base || uint64(base-sp.base)+length > sp.len {
			continue
		}
		leftLen := uint64(base - sp.base)
		rightStart := base + uintptr(length)
		rightLen := sp.len - leftLen - length

		replacement := make([]span, 0, 2)
		if leftLen > 0 {
			replacement = append(replacement, span{base: sp.base, len: leftLen})
		}
		if rightLen > 0 {
			replacement = append(replacement, span{base: rightStart, len: rightLen})
		}
		sf.free = append(sf.free[:i], append(replacement, sf.free[i+1:]...)...)
		return nil
	}
	return fmt.Errorf("span [%#x,+%d) not free", base, length)
}

// Lookup returns the zone registered under name, if any.
func (d *Directory) Lookup(name string) (*Zone, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	z, ok := d.byName[name]
	return z, ok
}

// Free removes name's directory entry and returns its span to the owning
// segment's free-list, coalescing with adjacent free spans (spec §4.D).
func (d *Directory) Free(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	z, ok := d.byName[name]
	if !ok {
		return ealerrors.New("memzone.Free", ealerrors.KindInvalidArgument,
			fmt.Errorf("memzone %q not reserved", name))
	}
	delete(d.byName, name)
	for i, zz := range d.order {
		if zz == z {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}

	for segIdx := range d.segments {
		sf := &d.segments[segIdx]
		if sf.segment.NUMANode != z.SocketID {
			continue
		}
		if z.VirtualBase < sf.segment.VirtualBase || uint64(z.VirtualBase-sf.segment.VirtualBase)+z.Length > sf.segment.Length {
			continue
		}
		release(sf, z.VirtualBase, z.Length)
		return nil
	}
	return ealerrors.New("memzone.Free", ealerrors.KindInvalidArgument,
		fmt.Errorf("no owning segment found for %q", name))
}

// release inserts [base, base+length) back into sf's free-list in
// sorted-by-base order and coalesces with neighbors.
func release(sf *segmentFreeList, base uintptr, length uint64) {
	sf.free = append(sf.free, span{base: base, len: length})
	sortSpans(sf.free)

	merged := sf.free[:0]
	for _, sp := range sf.free {
		if n := len(merged); n > 0 && merged[n-1].base+uintptr(merged[n-1].len) == sp.base {
			merged[n-1].len += sp.len
			continue
		}
		merged = append(merged, sp)
	}
	sf.free = merged
}

func sortSpans(s []span) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1].base > s[j].base; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func alignUp(v uintptr, align uint64) uintptr {
	a := uintptr(align)
	return (v + a - 1) &^ (a - 1)
}

func withinBoundary(base uintptr, length, boundary uint64) bool {
	b := uintptr(boundary)
	windowStart := base &^ (b - 1)
	return uint64(base-windowStart)+length <= boundary
}

func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}
