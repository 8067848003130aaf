// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cacheline provides the per-architecture cache line size and
// false-sharing padding types shared by the ring, mempool, and memzone
// layers.
package cacheline

import "unsafe"

// Pad is a full cache line of filler, placed between hot fields that are
// written by different cores to prevent false sharing.
type Pad [Size]byte

// PadAfter returns the number of filler bytes needed to round sz up to a
// full cache line. Used when a struct field's size isn't a compile-time
// constant multiple of the cache line (e.g. a pointer on 32-bit builds).
func PadAfter(sz uintptr) uintptr {
	if sz >= Size {
		return 0
	}
	return uintptr(Size) - sz
}

// PointerSize is the size of a pointer-sized slot on the current platform.
const PointerSize = int(unsafe.Sizeof(uintptr(0)))
