// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ring implements [MODULE E] of the CORE (spec §4.E): a bounded
// lock-free FIFO of pointer-sized slots with orthogonal single-/multi-
// producer and single-/multi-consumer flags, plus bulk and burst
// enqueue/dequeue and an exact-size construction mode.
//
// Unlike a family of per-combination generic queue types, a Ring is one
// struct whose behavior is selected at construction time by [Flags] — this
// mirrors the classic rte_ring design (four monotonic counters forming two
// producer/consumer half-pairs) rather than the per-type-combination FAA
// queues this package's concurrency primitives were first grounded on.
package ring

import (
	"fmt"
	"unsafe"

	ealerrors "code.hybscloud.com/eal/errors"
	"code.hybscloud.com/eal/internal/cacheline"
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Flags select producer/consumer arity and sizing mode at construction
// (spec §4.E "Construction modes").
type Flags uint32

const (
	// MultiProducer allows concurrent Enqueue callers to race via CAS.
	// Absent, the caller must guarantee single-producer access and the
	// faster non-CAS path is used.
	MultiProducer Flags = 1 << iota
	// MultiConsumer is the consumer-side analogue of MultiProducer.
	MultiConsumer
	// ExactSize rounds size up to the next power of two internally but
	// honors the caller's requested capacity exactly instead of size-1
	// (spec §4.E "Exact-size").
	ExactSize
)

// NameSize mirrors memzone.NameSize; rings are typically backed by a
// memzone of the same name.
const NameSize = 32

// halfPair groups one producer or consumer's head/tail counters on their
// own cache lines to avoid false sharing between the two roles (grounded
// on the teacher's pad-literal style in spsc.go/mpmc.go).
type halfPair struct {
	_    cacheline.Pad
	head atomix.Uint32
	_    cacheline.Pad
	tail atomix.Uint32
}

// Ring is a bounded FIFO of pointer-sized slots (spec §3 "Ring").
type Ring struct {
	_        cacheline.Pad
	prod     halfPair
	cons     halfPair
	_        cacheline.Pad
	mask     uint32
	capacity uint32
	flags    Flags
	name     string
	slots    []unsafe.Pointer
}

// New constructs a ring over caller-provided backing storage (typically
// the body of a memzone reservation sized via [SlotsLen]). size must be a
// power of two unless [ExactSize] is set, in which case size is rounded up
// internally and capacity is set to the caller's original request (spec
// §4.E).
func New(name string, size uint32, flags Flags, slots []unsafe.Pointer) (*Ring, error) {
	if name == "" || len(name) >= NameSize {
		return nil, ealerrors.New("ring.New", ealerrors.KindInvalidArgument,
			fmt.Errorf("name length must be in [1,%d)", NameSize))
	}
	if size < 2 {
		return nil, ealerrors.New("ring.New", ealerrors.KindInvalidArgument,
			fmt.Errorf("size must be >= 2"))
	}

	capacity := size
	physical := size
	if flags&ExactSize != 0 {
		physical = roundUpPow2(size)
	} else if !isPow2(size) {
		return nil, ealerrors.New("ring.New", ealerrors.KindInvalidArgument,
			fmt.Errorf("size %d is not a power of two", size))
	} else {
		capacity = size - 1
	}

	if uint32(len(slots)) < physical {
		return nil, ealerrors.New("ring.New", ealerrors.KindInvalidArgument,
			fmt.Errorf("slots backing storage has %d entries, need %d", len(slots), physical))
	}

	return &Ring{
		mask:     physical - 1,
		capacity: capacity,
		flags:    flags,
		name:     name,
		slots:    slots[:physical],
	}, nil
}

// SlotsLen returns the number of pointer-sized slots a ring constructed
// with size and flags will require from its backing storage.
func SlotsLen(size uint32, flags Flags) uint32 {
	if flags&ExactSize != 0 {
		return roundUpPow2(size)
	}
	return size
}

// Name returns the ring's name.
func (r *Ring) Name() string { return r.name }

// Cap returns the usable capacity (spec §4.E: size-1, or the caller's
// exact-size request).
func (r *Ring) Cap() int { return int(r.capacity) }

// Count returns the number of currently enqueued elements. Racy under
// concurrent access, useful for diagnostics only.
func (r *Ring) Count() int {
	return int(r.prod.tail.LoadAcquire() - r.cons.head.LoadAcquire())
}

// Free returns the number of slots currently available to producers.
func (r *Ring) Free() int { return r.Cap() - r.Count() }

// Full reports whether the ring has no free slots.
func (r *Ring) Full() bool { return r.Free() <= 0 }

// Empty reports whether the ring has no enqueued elements.
func (r *Ring) Empty() bool { return r.Count() <= 0 }

// Enqueue adds a single element. Returns [ealerrors.ErrWouldBlock] if the
// ring is full.
func (r *Ring) Enqueue(v unsafe.Pointer) error {
	n, err := r.EnqueueBurst([]unsafe.Pointer{v}, true)
	if err != nil {
		return err
	}
	if n == 0 {
		return ealerrors.ErrWouldBlock
	}
	return nil
}

// Dequeue removes and returns a single element. Returns
// [ealerrors.ErrWouldBlock] if the ring is empty.
func (r *Ring) Dequeue() (unsafe.Pointer, error) {
	out := make([]unsafe.Pointer, 1)
	n, err := r.DequeueBurst(out, true)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ealerrors.ErrWouldBlock
	}
	return out[0], nil
}

// EnqueueBulk enqueues exactly len(vals) elements, or none at all (spec
// §4.E "bulk ... variants").
func (r *Ring) EnqueueBulk(vals []unsafe.Pointer) (int, error) {
	return r.EnqueueBurst(vals, false)
}

// EnqueueBurst enqueues as many of vals as currently fit. If partial is
// false, it enqueues either all of vals or none (bulk semantics).
func (r *Ring) EnqueueBurst(vals []unsafe.Pointer, partial bool) (int, error) {
	n := uint32(len(vals))
	if n == 0 {
		return 0, nil
	}

	var prodHead, avail uint32
	if r.flags&MultiProducer != 0 {
		var sw spin.Wait
		for {
			prodHead = r.prod.head.LoadAcquire()
			consTail := r.cons.tail.LoadAcquire()
			free := r.capacity - (prodHead - consTail)
			avail = n
			if avail > free {
				if !partial {
					return 0, nil
				}
				avail = free
			}
			if avail == 0 {
				return 0, nil
			}
			if r.prod.head.CompareAndSwapAcqRel(prodHead, prodHead+avail) {
				break
			}
			sw.Once()
		}
	} else {
		prodHead = r.prod.head.LoadRelaxed()
		consTail := r.cons.tail.LoadAcquire()
		free := r.capacity - (prodHead - consTail)
		avail = n
		if avail > free {
			if !partial {
				return 0, nil
			}
			avail = free
		}
		if avail == 0 {
			return 0, nil
		}
		r.prod.head.StoreRelaxed(prodHead + avail)
	}

	for i := uint32(0); i < avail; i++ {
		r.slots[(prodHead+i)&r.mask] = vals[i]
	}

	// Multi-producer commits must wait their turn so the tail only ever
	// advances past contiguous, fully-written regions (spec §4.E
	// invariant: "enqueued value is visible to consumer only after
	// producer.tail advances past its index").
	if r.flags&MultiProducer != 0 {
		var sw spin.Wait
		for r.prod.tail.LoadAcquire() != prodHead {
			sw.Once()
		}
	}
	r.prod.tail.StoreRelease(prodHead + avail)
	return int(avail), nil
}

// DequeueBulk dequeues exactly len(out) elements, or none at all.
func (r *Ring) DequeueBulk(out []unsafe.Pointer) (int, error) {
	return r.DequeueBurst(out, false)
}

// DequeueBurst dequeues as many elements as are available, up to
// len(out). If partial is false, it dequeues either len(out) elements or
// none.
func (r *Ring) DequeueBurst(out []unsafe.Pointer, partial bool) (int, error) {
	n := uint32(len(out))
	if n == 0 {
		return 0, nil
	}

	var consHead, avail uint32
	if r.flags&MultiConsumer != 0 {
		var sw spin.Wait
		for {
			consHead = r.cons.head.LoadAcquire()
			prodTail := r.prod.tail.LoadAcquire()
			have := prodTail - consHead
			avail = n
			if avail > have {
				if !partial {
					return 0, nil
				}
				avail = have
			}
			if avail == 0 {
				return 0, nil
			}
			if r.cons.head.CompareAndSwapAcqRel(consHead, consHead+avail) {
				break
			}
			sw.Once()
		}
	} else {
		consHead = r.cons.head.LoadRelaxed()
		prodTail := r.prod.tail.LoadAcquire()
		have := prodTail - consHead
		avail = n
		if avail > have {
			if !partial {
				return 0, nil
			}
			avail = have
		}
		if avail == 0 {
			return 0, nil
		}
		r.cons.head.StoreRelaxed(consHead + avail)
	}

	for i := uint32(0); i < avail; i++ {
		out[i] = r.slots[(consHead+i)&r.mask]
	}

	if r.flags&MultiConsumer != 0 {
		var sw spin.Wait
		for r.cons.tail.LoadAcquire() != consHead {
			sw.Once()
		}
	}
	r.cons.tail.StoreRelease(consHead + avail)
	return int(avail), nil
}

func isPow2(v uint32) bool { return v != 0 && v&(v-1) == 0 }

func roundUpPow2(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v + 1
}
