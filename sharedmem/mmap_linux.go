// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package sharedmem

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapAt maps length bytes of f at hint (0 meaning "anywhere"). When hint
// is non-zero the mapping is MAP_FIXED: the kernel is forced to place it at
// exactly that address, overwriting anything already mapped there. This is
// required for the SECONDARY process's anchor re-map (spec §4.B) and is not
// reachable through the high-level [unix.Mmap] wrapper, which always maps
// at an OS-chosen address. Returns the mapped bytes and the address they
// landed at.
func mmapAt(f *os.File, hint uintptr, length int, writable bool) ([]byte, uintptr, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	flags := unix.MAP_SHARED
	if hint != 0 {
		flags |= unix.MAP_FIXED
	}

	addr, _, errno := unix.Syscall6(unix.SYS_MMAP, hint, uintptr(length), uintptr(prot), uintptr(flags), f.Fd(), 0)
	if errno != 0 {
		return nil, 0, errno
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
	return data, addr, nil
}

func munmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munmap(b)
}

// pageSize returns the host's base page size, used to align base-virtaddr
// hints (spec §4.B / §4.C, RTE_ALIGN_FLOOR in the original EAL).
func pageSize() uintptr {
	return uintptr(os.Getpagesize())
}
