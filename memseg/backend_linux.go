// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package memseg

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// AnonBackend maps anonymous memory via mmap(MAP_ANONYMOUS), optionally
// requesting MAP_HUGETLB with the page-size-specific flag bits Linux
// defines (MAP_HUGE_2MB etc). It is the --no-huge fallback and also serves
// as the default when no collaborator-supplied hugetlbfs backend is wired
// (spec §1 Non-goals: mount discovery is out of scope for the CORE, but a
// minimal usable backend keeps the package self-contained for tests and
// for --no-huge).
type AnonBackend struct {
	// Sizes restricts Available to this set; nil means "4K only",
	// matching --no-huge semantics.
	Sizes []PageSize
}

func (a *AnonBackend) Available(node int) []PageSize {
	if len(a.Sizes) == 0 {
		return []PageSize{Page4K}
	}
	return a.Sizes
}

func (a *AnonBackend) Map(node int, size PageSize, length uint64) ([]byte, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if size != Page4K {
		hugeFlag, ok := hugeSizeFlag(size)
		if !ok {
			return nil, fmt.Errorf("memseg: unsupported huge page size %s", size)
		}
		flags |= unix.MAP_HUGETLB | hugeFlag
	}
	data, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// hugeSizeFlag returns the MAP_HUGE_* shift-encoded flag Linux expects
// alongside MAP_HUGETLB to pin the request to a specific huge page size.
func hugeSizeFlag(size PageSize) (int, bool) {
	const mapHugeShift = 26 // MAP_HUGE_SHIFT
	switch size {
	case Page2M:
		return 21 << mapHugeShift, true
	case Page1G:
		return 30 << mapHugeShift, true
	case Page16M:
		return 24 << mapHugeShift, true
	case Page16G:
		return 34 << mapHugeShift, true
	default:
		return 0, false
	}
}
