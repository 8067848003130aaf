// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !linux

package sharedmem

import (
	"fmt"
	"os"
)

// mmapAt is unsupported outside Linux: fixed-address shared mapping relies
// on MAP_FIXED semantics this package only implements via the raw Linux
// mmap(2) syscall. Callers on other platforms get a clear error instead of
// a silent best-effort mapping at the wrong address.
func mmapAt(f *os.File, hint uintptr, length int, writable bool) ([]byte, uintptr, error) {
	return nil, 0, fmt.Errorf("sharedmem: fixed-address shared mapping is not implemented on this platform")
}

func munmap(b []byte) error {
	return fmt.Errorf("sharedmem: munmap is not implemented on this platform")
}

func pageSize() uintptr {
	return uintptr(os.Getpagesize())
}
