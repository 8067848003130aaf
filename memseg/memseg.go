// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package memseg implements [MODULE C] of the CORE (spec §4.C): reservation
// of huge-page-backed (or, with --no-huge, anonymous) memory segments and
// the ordered segment table published inside the shared control region.
package memseg

import (
	"fmt"
	"sync"
	"unsafe"

	ealerrors "code.hybscloud.com/eal/errors"
	"code.hybscloud.com/eal/sharedmem"
)

// PageSize enumerates the huge-page sizes the CORE recognizes (spec §4.C).
type PageSize uint64

const (
	Page4K  PageSize = 4 << 10
	Page2M  PageSize = 2 << 20
	Page1G  PageSize = 1 << 30
	Page16M PageSize = 16 << 20
	Page16G PageSize = 16 << 30
)

func (p PageSize) String() string {
	switch p {
	case Page4K:
		return "4K"
	case Page2M:
		return "2M"
	case Page1G:
		return "1G"
	case Page16M:
		return "16M"
	case Page16G:
		return "16G"
	default:
		return fmt.Sprintf("%dB", uint64(p))
	}
}

// Flags modify a [Reserve] request.
type Flags uint32

const (
	// SizeHintOnly turns the requested page size into a preference: if
	// unavailable, Reserve falls back to any page size offered by
	// Backend.Available instead of failing (spec §4.C).
	SizeHintOnly Flags = 1 << iota
	// NoHuge requests anonymous (non-huge-page) memory instead, per
	// --no-huge.
	NoHuge
)

// Segment describes one reserved span (spec §3 "Memory segment").
type Segment struct {
	VirtualBase uintptr
	Length      uint64
	PageSize    PageSize
	NUMANode    int
	data        []byte // backing mapping, for NoHuge/test backends
}

// Backend supplies the actual page-backed mappings memseg reserves from.
// The CORE never probes mount points or hugetlbfs itself (spec §1
// Non-goals: "huge-page filesystem probing and mount discovery ... the
// CORE receives a resolved list of page sizes and directories"); a
// collaborator constructs a Backend from that resolved list.
type Backend interface {
	// Available reports the page sizes this backend can satisfy on node.
	Available(node int) []PageSize
	// Map reserves length bytes of the given page size on node and
	// returns the mapping. length is already rounded up to a multiple of
	// size by the caller.
	Map(node int, size PageSize, length uint64) ([]byte, error)
}

// Table is the ordered segment table (spec §3, §4.C). Its entries live in
// this process; [Table.Publish] mirrors them into the shared control
// region's memseg sub-region so other processes can read them.
type Table struct {
	mu       sync.Mutex
	backend  Backend
	segments []Segment
}

// New constructs an empty table over backend. Segment metadata is
// mirrored into region.Bytes()[sharedmem.SegmentTableOffset:] only when
// [Table.Publish] is called; the authoritative segment data lives in the
// Go-side slice, and only the PRIMARY calls Reserve, so there is no
// cross-process mutation race.
func New(backend Backend) *Table {
	return &Table{backend: backend}
}

// Reserve allocates a new segment of the requested size on node, applying
// [SizeHintOnly] fallback semantics, and appends it to the table in
// insertion order (spec §4.C, §2 data-flow "A → C").
func Reserve(t *Table, node int, length uint64, size PageSize, flags Flags) (*Segment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if flags&NoHuge != 0 {
		size = Page4K
	}

	avail := t.backend.Available(node)
	if !containsSize(avail, size) {
		if flags&SizeHintOnly == 0 {
			return nil, ealerrors.New("memseg.Reserve", ealerrors.KindUnsupported,
				fmt.Errorf("page size %s unavailable on node %d", size, node))
		}
		fallback, ok := pickFallback(avail)
		if !ok {
			return nil, ealerrors.New("memseg.Reserve", ealerrors.KindUnsupported,
				fmt.Errorf("no page size available on node %d", node))
		}
		size = fallback
	}

	rounded := roundUp(length, uint64(size))
	data, err := t.backend.Map(node, size, rounded)
	if err != nil {
		return nil, ealerrors.New("memseg.Reserve", ealerrors.KindNoMemory, err)
	}

	seg := Segment{
		VirtualBase: sliceAddr(data),
		Length:      rounded,
		PageSize:    size,
		NUMANode:    node,
		data:        data,
	}
	t.segments = append(t.segments, seg)
	return &t.segments[len(t.segments)-1], nil
}

// Segments returns the table contents in insertion order.
func (t *Table) Segments() []Segment {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Segment, len(t.segments))
	copy(out, t.segments)
	return out
}

// Publish serializes the table's headline fields (count, and per-entry
// base/length/page-size/node) into the shared region's memseg sub-region
// so attached SECONDARIES can enumerate segments without a Go-level
// reference to this *Table (spec §3: "a memory-segment table of bounded
// length" inside the shared control region).
func (t *Table) Publish(r *sharedmem.Region) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.segments) > sharedmem.MaxSegments {
		return ealerrors.New("memseg.Publish", ealerrors.KindNoMemory,
			fmt.Errorf("%d segments exceeds table capacity %d", len(t.segments), sharedmem.MaxSegments))
	}
	buf := r.Bytes()[sharedmem.SegmentTableOffset:]
	for i, seg := range t.segments {
		entry := buf[i*64 : (i+1)*64]
		putUint64(entry[0:], uint64(seg.VirtualBase))
		putUint64(entry[8:], seg.Length)
		putUint64(entry[16:], uint64(seg.PageSize))
		putUint64(entry[24:], uint64(seg.NUMANode))
	}
	r.SetSegmentCount(uint32(len(t.segments)))
	return nil
}

func containsSize(avail []PageSize, size PageSize) bool {
	for _, s := range avail {
		if s == size {
			return true
		}
	}
	return false
}

func pickFallback(avail []PageSize) (PageSize, bool) {
	if len(avail) == 0 {
		return 0, false
	}
	best := avail[0]
	for _, s := range avail[1:] {
		if s > best {
			best = s
		}
	}
	return best, true
}

func roundUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// sliceAddr returns the virtual address of a mapping's first byte. Used
// only to record VirtualBase for the segment table; callers must keep the
// slice alive (the mapping is fixed in the process's address space for its
// lifetime, since it is backed by mmap rather than the Go heap).
func sliceAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
