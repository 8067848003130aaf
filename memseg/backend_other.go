// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !linux

package memseg

// AnonBackend maps ordinary heap memory on platforms without hugetlbfs.
// Huge page sizes are never reported available, so Reserve without
// [SizeHintOnly] fails for any non-4K request, matching the original
// EAL's behavior on unsupported platforms.
type AnonBackend struct {
	Sizes []PageSize
}

func (a *AnonBackend) Available(node int) []PageSize {
	return []PageSize{Page4K}
}

func (a *AnonBackend) Map(node int, size PageSize, length uint64) ([]byte, error) {
	return make([]byte, length), nil
}
