// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package percpu implements [MODULE G] of the CORE (spec §4.G): per-thread
// logical-CPU id, NUMA id, and CPU-set, plus master-lcore bootstrap. Go has
// no native thread-local storage, so each registered thread first calls
// [runtime.LockOSThread] and this package keys its state off the OS
// thread id (gettid on Linux), the same approach the numa-manager
// reference code in the example pack uses to pin a goroutine to one OS
// thread before touching per-thread kernel state.
package percpu

import (
	"fmt"
	"runtime"
	"sync"

	ealerrors "code.hybscloud.com/eal/errors"
	"code.hybscloud.com/eal/topology"
)

// AnySocket means "the CPU-set spans more than one NUMA node, or is
// empty" (spec §4.G).
const AnySocket = -1

// State is one thread's registered per-CPU identity.
type State struct {
	LCoreID int
	NUMAID  int
	CPUSet  map[int]bool
}

var (
	mu       sync.RWMutex
	byThread = map[int]*State{}
	master   = -1
)

// Register pins the calling goroutine to its current OS thread via
// [runtime.LockOSThread] and records it as lcoreID with the given CPU
// set. Call once per EAL-registered thread, on the goroutine that will
// run as that lcore for the rest of its life.
func Register(lcoreID int, cpuset map[int]bool, tbl *topology.Table) error {
	runtime.LockOSThread()
	tid, err := threadID()
	if err != nil {
		return ealerrors.New("percpu.Register", ealerrors.KindUnsupported, err)
	}

	numa := numaOfSet(cpuset, tbl)

	mu.Lock()
	defer mu.Unlock()
	byThread[tid] = &State{LCoreID: lcoreID, NUMAID: numa, CPUSet: cloneSet(cpuset)}
	return nil
}

// Self returns the calling thread's registered state, or (nil, false) if
// it was never registered via [Register].
func Self() (*State, bool) {
	tid, err := threadID()
	if err != nil {
		return nil, false
	}
	mu.RLock()
	defer mu.RUnlock()
	s, ok := byThread[tid]
	return s, ok
}

// SetAffinity updates the calling (registered) thread's CPU-set, NUMA id,
// and mirrors the set into the shared lcore config for its lcore id (spec
// §4.G: "Setting affinity updates all three and mirrors the set into the
// shared lcore config for that lcore id"). mirror is invoked with the
// lcore id and new set so callers can write it into their shared-region
// view (e.g. via [topology.Table] or a percpu sub-region inside
// sharedmem.Region) without this package depending on those layouts.
func SetAffinity(cpuset map[int]bool, tbl *topology.Table, mirror func(lcoreID int, cpuset map[int]bool)) error {
	tid, err := threadID()
	if err != nil {
		return ealerrors.New("percpu.SetAffinity", ealerrors.KindUnsupported, err)
	}

	mu.Lock()
	s, ok := byThread[tid]
	if !ok {
		mu.Unlock()
		return ealerrors.New("percpu.SetAffinity", ealerrors.KindInvalidArgument,
			fmt.Errorf("calling thread is not EAL-registered"))
	}
	s.CPUSet = cloneSet(cpuset)
	s.NUMAID = numaOfSet(cpuset, tbl)
	lcoreID := s.LCoreID
	mu.Unlock()

	if mirror != nil {
		mirror(lcoreID, cloneSet(cpuset))
	}
	return nil
}

// numaOfSet returns the common NUMA node of every member of cpuset, or
// [AnySocket] if the set is empty or spans more than one node (spec §4.G).
func numaOfSet(cpuset map[int]bool, tbl *topology.Table) int {
	node := -2 // sentinel: "not yet observed"
	for id, on := range cpuset {
		if !on {
			continue
		}
		lc, ok := tbl.ByID(id)
		if !ok {
			continue
		}
		if node == -2 {
			node = lc.NUMANode
			continue
		}
		if node != lc.NUMANode {
			return AnySocket
		}
	}
	if node == -2 {
		return AnySocket
	}
	return node
}

func cloneSet(s map[int]bool) map[int]bool {
	out := make(map[int]bool, len(s))
	for k, v := range s {
		if v {
			out[k] = true
		}
	}
	return out
}

// SetMaster records lcoreID as the master lcore (spec §4.G: "The master
// lcore (selected by config or defaulting to the first enabled one) is
// initialized on the main thread").
func SetMaster(lcoreID int) { mu.Lock(); master = lcoreID; mu.Unlock() }

// Master returns the master lcore id, or -1 if [SetMaster] was never
// called.
func Master() int { mu.RLock(); defer mu.RUnlock(); return master }

// DefaultMaster picks the first enabled lcore in tbl, for callers that
// have no explicit --master-lcore override (spec §4.G).
func DefaultMaster(tbl *topology.Table) (int, bool) {
	for _, lc := range tbl.Enabled() {
		return lc.ID, true
	}
	return 0, false
}
