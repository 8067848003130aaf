// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mempool implements [MODULE F] of the CORE (spec §4.F): a
// fixed-size object allocator backed by a pluggable [Ops] queue (ring-backed
// by default), with an optional per-CPU LIFO cache, a process-local ops
// registration table, and debug-build object header/trailer integrity
// cookies.
package mempool

import (
	"fmt"
	"sync"
	"unsafe"

	ealerrors "code.hybscloud.com/eal/errors"
	"code.hybscloud.com/eal/memzone"
)

// NameSize mirrors memzone.NameSize.
const NameSize = 32

// Flags modify [Create] (spec §4.F "Creation").
type Flags uint32

const (
	NoSpread Flags = 1 << iota
	NoCacheAlign
	SingleProducer
	SingleConsumer
)

// MaxCacheSlots bounds a per-CPU cache's steady-state size (spec §3 "Per-
// CPU cache"); the inline slot array is sized for 3x this to absorb the
// flush-threshold overflow window.
const MaxCacheSlots = 512

// Cache is a per-logical-CPU LIFO buffer sitting in front of the backend
// ring (spec §3 "Per-CPU cache").
type Cache struct {
	size           uint32
	flushThreshold uint32
	len            uint32
	slots          [3 * MaxCacheSlots]unsafe.Pointer
}

// ObjectConstructor initializes a freshly populated object.
type ObjectConstructor func(obj unsafe.Pointer, arg any, idx int)

// PoolConstructor initializes a pool's private data once, at [Create] time
// (spec §4.F: `rte_mempool.h`'s opaque `private_data` blob and its
// `mempool_ctor_t` pool-level constructor, as distinct from the
// per-object [ObjectConstructor]).
type PoolConstructor func(p *Pool, privateData []byte)

// Option configures [Create] beyond its required positional arguments.
type Option func(*poolConfig)

type poolConfig struct {
	privateDataSize uint32
	poolCtor        PoolConstructor
}

// WithPrivateData reserves a size-byte private-data blob on the pool,
// opaque to mempool itself, mirroring `rte_mempool.h`'s `private_data`
// (spec §4.F inputs). Retrieve it with [Pool.PrivateData].
func WithPrivateData(size uint32) Option {
	return func(c *poolConfig) { c.privateDataSize = size }
}

// WithObjectInit runs ctor once against the pool's private-data blob at
// [Create] time, before any per-object [ObjectConstructor] calls,
// mirroring `rte_mempool.h`'s pool-level `mempool_ctor_t` (spec §4.F
// inputs).
func WithObjectInit(ctor PoolConstructor) Option {
	return func(c *poolConfig) { c.poolCtor = ctor }
}

// Pool is a fixed-size object allocator (spec §3 "Mempool").
type Pool struct {
	mu sync.Mutex

	Name       string
	EltSize    uint32
	HeaderSize uint32
	TrailerSize uint32
	TotalSize  uint32
	SocketID   int
	Flags      Flags

	opsName string
	backend Ops
	caches  []*Cache // indexed by lcore id, nil entries mean "no cache"

	privateData []byte
	populated   int
	capacity    int

	memzones []*memzone.Zone
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Pool{}
	order      []*Pool
)

// Create reserves backing memzones for n objects of eltSize bytes,
// constructs the default ring backend, writes object headers, optionally
// runs ctor on each, and enqueues every object (spec §4.F "Creation").
// cacheSize == 0 disables the per-CPU cache. numLCores sizes the Pool's
// per-lcore cache slice (typically topology.MaxLCore).
func Create(dir *memzone.Directory, name string, n int, eltSize uint32, cacheSize uint32, numLCores int, socket int, flags Flags, ctor ObjectConstructor, ctorArg any, opts ...Option) (*Pool, error) {
	var cfg poolConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if name == "" || len(name) >= NameSize {
		return nil, ealerrors.New("mempool.Create", ealerrors.KindInvalidArgument,
			fmt.Errorf("name length must be in [1,%d)", NameSize))
	}
	if n <= 0 {
		return nil, ealerrors.New("mempool.Create", ealerrors.KindInvalidArgument, fmt.Errorf("n must be > 0"))
	}
	if cacheSize > MaxCacheSlots || uint64(cacheSize) > uint64(n)*2/3 {
		return nil, ealerrors.New("mempool.Create", ealerrors.KindInvalidArgument,
			fmt.Errorf("cache size %d exceeds cap %d or n/1.5", cacheSize, MaxCacheSlots))
	}

	registryMu.Lock()
	if _, exists := registry[name]; exists {
		registryMu.Unlock()
		return nil, ealerrors.New("mempool.Create", ealerrors.KindAlreadyExists,
			fmt.Errorf("mempool %q already exists", name))
	}
	registryMu.Unlock()

	headerSize, trailerSize, totalSize := objectLayout(eltSize, flags)

	opsName := defaultOpsName(flags)
	opsFactory, ok := LookupOps(opsName)
	if !ok {
		return nil, ealerrors.New("mempool.Create", ealerrors.KindNotFound,
			fmt.Errorf("ops %q not registered", opsName))
	}

	bodyLen := uint64(n)*uint64(totalSize) + uint64(n)*uint64(unsafe.Sizeof(unsafe.Pointer(nil)))
	zone, err := dir.Reserve(name+"_body", bodyLen, socket, 0, 0, 0)
	if err != nil {
		return nil, ealerrors.New("mempool.Create", ealerrors.KindNoMemory, err)
	}

	backing := make([]byte, n*int(totalSize))
	backend, err := opsFactory(name, uint32(n), flags)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		Name:        name,
		EltSize:     eltSize,
		HeaderSize:  headerSize,
		TrailerSize: trailerSize,
		TotalSize:   totalSize,
		SocketID:    socket,
		Flags:       flags,
		opsName:     opsName,
		backend:     backend,
		capacity:    n,
		memzones:    []*memzone.Zone{zone},
	}
	if numLCores > 0 {
		p.caches = make([]*Cache, numLCores)
	}
	if cacheSize > 0 {
		for i := range p.caches {
			p.caches[i] = &Cache{size: cacheSize, flushThreshold: cacheSize * 3 / 2}
		}
	}

	if cfg.privateDataSize > 0 {
		p.privateData = make([]byte, cfg.privateDataSize)
	}
	if cfg.poolCtor != nil {
		cfg.poolCtor(p, p.privateData)
	}

	if err := p.populateDefault(backing, n, ctor, ctorArg); err != nil {
		return nil, err
	}

	registryMu.Lock()
	registry[name] = p
	order = append(order, p)
	registryMu.Unlock()
	return p, nil
}

// objectLayout computes per-object header/elt/trailer sizes, rounding the
// total up to a 64-byte multiple unless NoCacheAlign is set (spec §4.F).
// NoSpread has no effect: no spreading across memory channels or ranks is
// done.
func objectLayout(eltSize uint32, flags Flags) (header, trailer, total uint32) {
	const cookieSize = 8
	header = cookieSize
	trailer = cookieSize
	total = header + eltSize + trailer
	if flags&NoCacheAlign == 0 {
		total = alignUp32(total, 64)
	}
	return header, trailer, total
}

func alignUp32(v, align uint32) uint32 { return (v + align - 1) &^ (align - 1) }

// populateDefault installs object headers into backing, runs ctor if
// supplied, and enqueues every object into the backend ring (spec §4.F
// "Alternative split path" populate_default).
func (p *Pool) populateDefault(backing []byte, n int, ctor ObjectConstructor, ctorArg any) error {
	for i := 0; i < n; i++ {
		objBytes := backing[i*int(p.TotalSize) : (i+1)*int(p.TotalSize)]
		eltBytes := objBytes[p.HeaderSize : p.HeaderSize+p.EltSize]
		ptr := unsafe.Pointer(&eltBytes[0])
		writeCookie(p, objBytes)
		if ctor != nil {
			ctor(ptr, ctorArg, i)
		}
		if _, err := p.backend.Enqueue([]unsafe.Pointer{ptr}); err != nil {
			return ealerrors.New("mempool.populateDefault", ealerrors.KindNoMemory, err)
		}
	}
	p.populated = n
	return nil
}

// Get retrieves n objects (spec §4.F generic_get). cache, when non-nil,
// is consulted first; the convenience [Pool.GetOne] passes n=1.
func (p *Pool) Get(objs []unsafe.Pointer, cache *Cache) error {
	n := uint32(len(objs))
	if n == 0 {
		return nil
	}
	if cache != nil && n < cache.size {
		if cache.len >= n {
			popFromTop(cache, objs)
			checkCookies(p, objs, true)
			return nil
		}
		need := n + (cache.size - cache.len)
		refill := make([]unsafe.Pointer, need)
		got, err := p.backend.Dequeue(refill)
		if err == nil && uint32(got) == need {
			for i := uint32(0); i < need; i++ {
				cache.slots[cache.len+i] = refill[i]
			}
			cache.len += need
			popFromTop(cache, objs)
			checkCookies(p, objs, true)
			return nil
		}
		// Refill failed: fall through to a direct backend dequeue.
	}

	got, err := p.backend.Dequeue(objs)
	if err != nil || uint32(got) != n {
		return ealerrors.New("mempool.Get", ealerrors.KindNotFound, ealerrors.ErrWouldBlock)
	}
	checkCookies(p, objs, true)
	return nil
}

// popFromTop removes the top (most recently pushed) len(out) entries from
// cache, LIFO (spec §4.F "Cache ordering note").
func popFromTop(cache *Cache, out []unsafe.Pointer) {
	n := uint32(len(out))
	for i := uint32(0); i < n; i++ {
		cache.len--
		out[i] = cache.slots[cache.len]
	}
}

// GetOne is the single-element convenience wrapper over [Pool.Get].
func (p *Pool) GetOne(cache *Cache) (unsafe.Pointer, error) {
	out := make([]unsafe.Pointer, 1)
	if err := p.Get(out, cache); err != nil {
		return nil, err
	}
	return out[0], nil
}

// Put returns n objects (spec §4.F generic_put).
func (p *Pool) Put(objs []unsafe.Pointer, cache *Cache) error {
	checkCookies(p, objs, false)
	n := uint32(len(objs))
	if n == 0 {
		return nil
	}
	if cache != nil && n <= MaxCacheSlots {
		for i := uint32(0); i < n; i++ {
			cache.slots[cache.len+i] = objs[i]
		}
		cache.len += n
		if cache.len >= cache.flushThreshold {
			excess := cache.len - cache.size
			drain := make([]unsafe.Pointer, excess)
			copy(drain, cache.slots[cache.len-excess:cache.len])
			if _, err := p.backend.Enqueue(drain); err != nil {
				return ealerrors.New("mempool.Put", ealerrors.KindNoMemory, err)
			}
			cache.len -= excess
		}
		return nil
	}

	if _, err := p.backend.Enqueue(objs); err != nil {
		return ealerrors.New("mempool.Put", ealerrors.KindNoMemory, err)
	}
	return nil
}

// PutOne is the single-element convenience wrapper over [Pool.Put].
func (p *Pool) PutOne(obj unsafe.Pointer, cache *Cache) error {
	return p.Put([]unsafe.Pointer{obj}, cache)
}

// PrivateData returns the pool's private-data blob, or nil if [Create] was
// not given [WithPrivateData].
func (p *Pool) PrivateData() []byte { return p.privateData }

// CacheFor returns the per-lcore cache for lcoreID, or nil if the pool has
// no cache array or lcoreID is out of range (spec §4.F "Default cache").
func (p *Pool) CacheFor(lcoreID int) *Cache {
	if lcoreID < 0 || lcoreID >= len(p.caches) {
		return nil
	}
	return p.caches[lcoreID]
}

// AvailCount returns backend availability plus the sum of all per-CPU
// cache lengths. Not data-path safe (spec §4.F).
func (p *Pool) AvailCount() int {
	n := p.backend.Count()
	for _, c := range p.caches {
		if c != nil {
			n += int(c.len)
		}
	}
	return n
}

// InUseCount returns size - AvailCount.
func (p *Pool) InUseCount() int { return p.capacity - p.AvailCount() }

// Full reports whether avail_count == size.
func (p *Pool) Full() bool { return p.AvailCount() == p.capacity }

// Empty reports whether avail_count == 0.
func (p *Pool) Empty() bool { return p.AvailCount() == 0 }

// Lookup returns the registered mempool by name, or not-found.
func Lookup(name string) (*Pool, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	p, ok := registry[name]
	return p, ok
}

// Walk enumerates all mempools in the instance in creation order.
func Walk(cb func(*Pool)) {
	registryMu.Lock()
	pools := append([]*Pool(nil), order...)
	registryMu.Unlock()
	for _, p := range pools {
		cb(p)
	}
}
