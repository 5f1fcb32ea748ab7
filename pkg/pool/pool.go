// Package pool provides typed object pooling used on the record hot path.
// Normalized records are short-lived maps that are produced once per input
// item and discarded as soon as they have been folded into a schema or
// encoded into a batch, so reusing the backing maps avoids most of the
// per-record allocation cost.
package pool

import "sync"

// Pool is a type-safe object pool built on sync.Pool.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
}

// New creates a new typed pool with custom allocation and reset functions.
// The reset function, if non-nil, is called before an object is returned to
// the pool.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool, allocating one if the pool is empty.
func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns an object to the pool after resetting it.
func (p *Pool[T]) Put(v T) {
	if p.reset != nil {
		p.reset(v)
	}
	p.pool.Put(v)
}

// MapPool is the global pool for generic string-keyed maps.
var MapPool = New(
	func() map[string]interface{} {
		return make(map[string]interface{}, 16)
	},
	func(m map[string]interface{}) {
		for k := range m {
			delete(m, k)
		}
	},
)

// GetMap retrieves a cleared map from the global pool.
func GetMap() map[string]interface{} {
	return MapPool.Get()
}

// PutMap returns a map to the global pool for reuse.
// The map is cleared before being pooled. Safe to call with nil.
func PutMap(m map[string]interface{}) {
	if m != nil {
		MapPool.Put(m)
	}
}
