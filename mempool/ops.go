// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"sync"
	"unsafe"

	ealerrors "code.hybscloud.com/eal/errors"
	"code.hybscloud.com/eal/ring"
)

// MaxOps bounds the process-local ops table, mirroring
// RTE_MEMPOOL_MAX_OPS_IDX (original_source/lib/librte_mempool/rte_mempool.h):
// an append-only array of named backend implementations, fixed capacity,
// duplicate names rejected.
const MaxOps = 16

// Ops is a pluggable mempool backend: the object queue a [Pool] enqueues
// freed objects to and dequeues allocated objects from. The built-in
// "ring_mp_mc" and "ring_sp_sc" implementations wrap a [ring.Ring]; a
// collaborator may register an alternative (e.g. a NUMA-aware stack) under
// its own name.
type Ops interface {
	Name() string
	Enqueue(objs []unsafe.Pointer) (int, error)
	Dequeue(objs []unsafe.Pointer) (int, error)
	Count() int
}

// OpsFactory builds an [Ops] instance sized for capacity objects.
type OpsFactory func(poolName string, capacity uint32, flags Flags) (Ops, error)

var (
	opsMu    sync.Mutex
	opsNames []string
	opsTable = map[string]OpsFactory{}
)

func init() {
	RegisterOps("ring_mp_mc", func(poolName string, capacity uint32, _ Flags) (Ops, error) {
		return newRingOps(poolName, capacity, ring.MultiProducer|ring.MultiConsumer)
	})
	RegisterOps("ring_sp_sc", func(poolName string, capacity uint32, _ Flags) (Ops, error) {
		return newRingOps(poolName, capacity, 0)
	})
}

// RegisterOps adds name to the process-local ops table (spec §4.F "Ops
// registration"). Returns [ealerrors.KindAlreadyExists] for a duplicate
// name and [ealerrors.KindNoMemory] once the table reaches [MaxOps],
// exactly as rte_mempool_ops.c's fixed-size registration array does.
func RegisterOps(name string, factory OpsFactory) error {
	opsMu.Lock()
	defer opsMu.Unlock()
	if _, exists := opsTable[name]; exists {
		return ealerrors.New("mempool.RegisterOps", ealerrors.KindAlreadyExists,
			fmt.Errorf("ops %q already registered", name))
	}
	if len(opsNames) >= MaxOps {
		return ealerrors.New("mempool.RegisterOps", ealerrors.KindNoMemory,
			fmt.Errorf("ops table full at %d entries", MaxOps))
	}
	opsTable[name] = factory
	opsNames = append(opsNames, name)
	return nil
}

// LookupOps resolves a registered ops factory by name.
func LookupOps(name string) (OpsFactory, bool) {
	opsMu.Lock()
	defer opsMu.Unlock()
	f, ok := opsTable[name]
	return f, ok
}

// defaultOpsName picks "ring_sp_sc" or "ring_mp_mc" from the pool's
// producer/consumer flags (spec §4.F: "defaults to a ring-backed
// implementation selected by the SP/SC flags").
func defaultOpsName(flags Flags) string {
	if flags&SingleProducer != 0 && flags&SingleConsumer != 0 {
		return "ring_sp_sc"
	}
	return "ring_mp_mc"
}

// ringOps adapts a [ring.Ring] to [Ops].
type ringOps struct {
	name string
	r    *ring.Ring
}

func newRingOps(poolName string, capacity uint32, flags ring.Flags) (*ringOps, error) {
	slots := make([]unsafe.Pointer, ring.SlotsLen(capacity, flags|ring.ExactSize))
	r, err := ring.New(poolName, capacity, flags|ring.ExactSize, slots)
	if err != nil {
		return nil, err
	}
	return &ringOps{name: poolName, r: r}, nil
}

func (o *ringOps) Name() string                              { return o.name }
func (o *ringOps) Enqueue(objs []unsafe.Pointer) (int, error) { return o.r.EnqueueBulk(objs) }
func (o *ringOps) Dequeue(objs []unsafe.Pointer) (int, error) { return o.r.DequeueBulk(objs) }
func (o *ringOps) Count() int                                 { return o.r.Count() }
