// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package percpu

import (
	"code.hybscloud.com/eal/sharedmem"
	"code.hybscloud.com/eal/topology"
)

// RegionMirror builds a [SetAffinity] mirror callback that writes each
// updated lcore's NUMA node and CPU-set into region's CPU-config
// sub-region, keeping SECONDARIES' view of affinity current (spec §4.G:
// "mirrors the set into the shared lcore config for that lcore id").
func RegionMirror(region *sharedmem.Region, tbl *topology.Table) func(lcoreID int, cpuset map[int]bool) {
	return func(lcoreID int, cpuset map[int]bool) {
		numa := numaOfSet(cpuset, tbl)
		if err := region.WriteLCoreEntry(lcoreID, int32(numa), cpusetMask(cpuset)); err != nil {
			return
		}
		if uint32(lcoreID)+1 > region.LCoreCount() {
			region.SetLCoreCount(uint32(lcoreID) + 1)
		}
	}
}

// PublishLCoreTable writes one initial entry per enabled lcore in tbl into
// region's CPU-config sub-region (spec §2 data-flow "A → C → B"), so a
// SECONDARY can enumerate the CPU layout the PRIMARY probed without
// re-probing itself. Called once at PRIMARY bootstrap; later affinity
// changes flow through [RegionMirror] instead.
func PublishLCoreTable(region *sharedmem.Region, tbl *topology.Table) error {
	enabled := tbl.Enabled()
	for _, lc := range enabled {
		if err := region.WriteLCoreEntry(lc.ID, int32(lc.NUMANode), cpusetMask(map[int]bool{lc.ID: true})); err != nil {
			return err
		}
	}
	region.SetLCoreCount(uint32(len(enabled)))
	return nil
}

// cpusetMask packs cpuset's enabled ids 0-63 into a bitmask (see
// [sharedmem.Region.WriteLCoreEntry]'s width note).
func cpusetMask(cpuset map[int]bool) uint64 {
	var mask uint64
	for id, on := range cpuset {
		if on && id >= 0 && id < 64 {
			mask |= uint64(1) << uint(id)
		}
	}
	return mask
}
