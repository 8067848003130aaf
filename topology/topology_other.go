// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !linux

package topology

// hostInventory falls back to runtime.NumCPU on platforms with no sysfs
// topology source. Every logical CPU reports as present, core id equal to
// its index, and NUMA node 0.
func hostInventory() ([]hostLCoreInfo, error) {
	return fallbackInventory()
}

// affinityOfCallingThread reports "no restriction" on platforms without a
// CPU-affinity syscall.
func affinityOfCallingThread() (*[MaxLCore]bool, error) {
	return nil, nil
}
