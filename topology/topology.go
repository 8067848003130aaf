// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package topology probes the host's logical CPU inventory: which logical
// processors exist, which NUMA node and hardware core each belongs to, and
// which of them the calling thread is allowed to run on. This is [MODULE A]
// of the CORE (spec §4.A) — everything downstream (shared config, memzones,
// per-CPU caches) keys off the lcore table this package produces.
package topology

import (
	"fmt"
	"runtime"

	ealerrors "code.hybscloud.com/eal/errors"
)

// MaxLCore is the compile-time ceiling on logical CPU slots, mirroring
// RTE_MAX_LCORE in the original EAL. Kept modest since Go processes rarely
// approach it and a large backing array would waste memory for nothing.
const MaxLCore = 256

// Role is the scheduling role assigned to an lcore.
type Role int

const (
	// RoleOff means the lcore was not detected, or was detected but
	// excluded from the runtime's default enabled set.
	RoleOff Role = iota
	// RoleRuntime is a data-plane lcore driven by the application.
	RoleRuntime
	// RoleService is reserved for background/service work.
	RoleService
)

func (r Role) String() string {
	switch r {
	case RoleRuntime:
		return "RUNTIME"
	case RoleService:
		return "SERVICE"
	default:
		return "OFF"
	}
}

// LCore describes one logical CPU slot.
type LCore struct {
	ID       int  // logical id, 0..MaxLCore-1
	Detected bool // whether the host reported this slot as present
	Role     Role
	NUMANode int // -1 if unknown
	CoreID   int // hardware core id within its package
	RelIndex int // dense index among detected+enabled lcores, -1 if excluded
}

// Table is the result of a topology probe: one slot per logical CPU up to
// the host's reported count, plus the dense relative index of each enabled
// lcore and the set the calling thread may run on.
type Table struct {
	LCores       [MaxLCore]LCore
	Count        int // number of slots host reported (detected or not)
	EnabledCount int // number of lcores with RelIndex >= 0
	MaxNUMANode  int // highest NUMA node id observed
}

// Options configures a probe.
type Options struct {
	// RelaxNUMALimit forces an out-of-range NUMA node id to 0 instead of
	// failing the probe. Mirrors spec §4.A: "A NUMA id exceeding the
	// configured maximum fails the probe unless a relaxation flag forces
	// it to 0."
	RelaxNUMALimit bool
	// MaxNUMANodes bounds the accepted NUMA node ids (exclusive upper
	// bound). Zero selects a sane default.
	MaxNUMANodes int
}

const defaultMaxNUMANodes = 8

// Probe enumerates the host's logical CPUs and returns the populated
// topology table. It intersects detected lcores with the calling OS
// thread's affinity mask (via [affinityOfCallingThread]) to decide the
// default enabled set: an lcore with Role != RoleOff in the returned table
// is both present on the host and runnable by this process right now.
func Probe(opts Options) (*Table, error) {
	if opts.MaxNUMANodes <= 0 {
		opts.MaxNUMANodes = defaultMaxNUMANodes
	}

	raw, err := hostInventory()
	if err != nil {
		return nil, ealerrors.New("topology.Probe", ealerrors.KindUnsupported, err)
	}
	if len(raw) > MaxLCore {
		raw = raw[:MaxLCore]
	}

	affinity, err := affinityOfCallingThread()
	if err != nil {
		// Non-fatal: treat as "no restriction" so probing still works in
		// environments (containers without CAP_SYS_NICE, non-Linux hosts)
		// where the affinity syscall isn't available.
		affinity = nil
	}

	t := &Table{}
	for i := range t.LCores {
		t.LCores[i] = LCore{ID: i, NUMANode: -1, RelIndex: -1}
	}

	t.Count = len(raw)
	rel := 0
	for i, info := range raw {
		lc := &t.LCores[i]
		lc.Detected = info.Present
		lc.CoreID = info.CoreID
		lc.NUMANode = info.NUMANode

		if lc.NUMANode >= opts.MaxNUMANodes {
			if !opts.RelaxNUMALimit {
				return nil, ealerrors.New("topology.Probe", ealerrors.KindInvalidArgument,
					fmt.Errorf("lcore %d: numa node %d exceeds max %d", i, lc.NUMANode, opts.MaxNUMANodes))
			}
			lc.NUMANode = 0
		}
		if lc.NUMANode > t.MaxNUMANode {
			t.MaxNUMANode = lc.NUMANode
		}

		if !lc.Detected {
			continue
		}
		if affinity != nil && !affinity[i] {
			continue
		}
		lc.Role = RoleRuntime
		lc.RelIndex = rel
		rel++
	}
	t.EnabledCount = rel
	return t, nil
}

// Enabled returns the lcores with Role != RoleOff, in ascending id order.
func (t *Table) Enabled() []LCore {
	out := make([]LCore, 0, t.EnabledCount)
	for _, lc := range t.LCores {
		if lc.Role != RoleOff {
			out = append(out, lc)
		}
	}
	return out
}

// ByID returns the lcore at the given logical id.
func (t *Table) ByID(id int) (LCore, bool) {
	if id < 0 || id >= MaxLCore {
		return LCore{}, false
	}
	return t.LCores[id], true
}

// hostLCoreInfo is the raw, platform-reported data for one logical CPU
// before role/affinity are applied.
type hostLCoreInfo struct {
	Present  bool
	CoreID   int
	NUMANode int
}

// fallbackInventory builds a single-NUMA-node inventory from
// runtime.NumCPU, used on platforms without a /sys-style topology source.
func fallbackInventory() ([]hostLCoreInfo, error) {
	n := runtime.NumCPU()
	out := make([]hostLCoreInfo, n)
	for i := range out {
		out[i] = hostLCoreInfo{Present: true, CoreID: i, NUMANode: 0}
	}
	return out, nil
}
