// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package topology

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	cpuSysfsDir  = "/sys/devices/system/cpu"
	nodeSysfsDir = "/sys/devices/system/node"
)

// hostInventory reads /sys/devices/system/cpu/cpuN for presence and core
// id, and /sys/devices/system/node/nodeN/cpulist to assign NUMA nodes.
// Mirrors the sysfs walk style of pkg/system/proc in the consumption
// collector (bufio scanning of single-integer sysfs files).
func hostInventory() ([]hostLCoreInfo, error) {
	entries, err := os.ReadDir(cpuSysfsDir)
	if err != nil {
		return fallbackInventory()
	}

	maxID := -1
	present := map[int]bool{}
	for _, e := range entries {
		id, ok := parseCPUDirName(e.Name())
		if !ok {
			continue
		}
		present[id] = true
		if id > maxID {
			maxID = id
		}
	}
	if maxID < 0 {
		return fallbackInventory()
	}

	out := make([]hostLCoreInfo, maxID+1)
	for i := range out {
		out[i] = hostLCoreInfo{NUMANode: -1}
	}
	for id := range present {
		out[id].Present = true
		out[id].CoreID = readSysfsInt(filepath.Join(cpuSysfsDir, cpuDirName(id), "topology", "core_id"), id)
	}

	assignNUMANodes(out)
	for i := range out {
		if out[i].NUMANode < 0 {
			out[i].NUMANode = 0
		}
	}
	return out, nil
}

func cpuDirName(id int) string { return "cpu" + strconv.Itoa(id) }

func parseCPUDirName(name string) (int, bool) {
	if !strings.HasPrefix(name, "cpu") {
		return 0, false
	}
	rest := name[3:]
	if rest == "" {
		return 0, false
	}
	for _, c := range rest {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return id, true
}

func assignNUMANodes(out []hostLCoreInfo) {
	entries, err := os.ReadDir(nodeSysfsDir)
	if err != nil {
		return
	}
	var nodeIDs []int
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "node") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "node"))
		if err != nil {
			continue
		}
		nodeIDs = append(nodeIDs, id)
	}
	sort.Ints(nodeIDs)

	for _, node := range nodeIDs {
		cpus := readCPUList(filepath.Join(nodeSysfsDir, "node"+strconv.Itoa(node), "cpulist"))
		for _, id := range cpus {
			if id >= 0 && id < len(out) {
				out[id].NUMANode = node
			}
		}
	}
}

// readCPUList parses a Linux cpulist range string ("0-3,8,10-11").
func readCPUList(path string) []int {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var ids []int
	for _, field := range strings.Split(strings.TrimSpace(string(data)), ",") {
		if field == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(field, "-"); ok {
			a, err1 := strconv.Atoi(lo)
			b, err2 := strconv.Atoi(hi)
			if err1 != nil || err2 != nil {
				continue
			}
			for i := a; i <= b; i++ {
				ids = append(ids, i)
			}
			continue
		}
		v, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		ids = append(ids, v)
	}
	return ids
}

// readSysfsInt reads a file containing one integer, returning def on any
// error. Mirrors eal_parse_sysfs_value's one-value-per-file contract.
func readSysfsInt(path string, def int) int {
	f, err := os.Open(path)
	if err != nil {
		return def
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil {
		return def
	}
	return v
}

// affinityOfCallingThread returns the set of logical CPUs the calling OS
// thread may currently run on, or nil if the platform/environment doesn't
// support querying it.
func affinityOfCallingThread() (*[MaxLCore]bool, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, err
	}
	var out [MaxLCore]bool
	for i := 0; i < MaxLCore; i++ {
		out[i] = set.IsSet(i)
	}
	return &out, nil
}
