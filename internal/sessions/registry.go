package sessions

import (
	"hash/fnv"
	"sync"

	"github.com/princekumarofficial/statements-service/internal/services"
)

const shardCount = 32

// Registry is an id-keyed map with per-entry locking. Callers never hold a
// reference to a stored value; mutation goes through Update or Compute,
// which work on a copy and commit it only when the callback succeeds.
type Registry[T any] struct {
	shards [shardCount]shard[T]
	clone  func(T) T
	save   func(T)
	remove func(string)
}

type shard[T any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[T]
}

type entry[T any] struct {
	mu      sync.Mutex
	value   T
	removed bool
}

// NewRegistry builds a registry. clone must deep-copy a value; save and
// remove are optional write-through hooks run under the entry lock.
func NewRegistry[T any](clone func(T) T, save func(T), remove func(string)) *Registry[T] {
	r := &Registry[T]{clone: clone, save: save, remove: remove}
	for i := range r.shards {
		r.shards[i].entries = make(map[string]*entry[T])
	}
	return r
}

func (r *Registry[T]) shardFor(id string) *shard[T] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &r.shards[h.Sum32()%shardCount]
}

func (r *Registry[T]) lookup(id string) *entry[T] {
	s := r.shardFor(id)
	s.mu.RLock()
	e := s.entries[id]
	s.mu.RUnlock()
	return e
}

// Get returns a snapshot of the value stored under id.
func (r *Registry[T]) Get(id string) (T, bool) {
	var zero T
	e := r.lookup(id)
	if e == nil {
		return zero, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return zero, false
	}
	return r.clone(e.value), true
}

// Update applies fn to a copy of the value under id and stores the copy if
// fn returns nil. Returns services.ErrSessionNotFound when id is absent.
func (r *Registry[T]) Update(id string, fn func(*T) error) (T, error) {
	var zero T
	e := r.lookup(id)
	if e == nil {
		return zero, services.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return zero, services.ErrSessionNotFound
	}
	next := r.clone(e.value)
	if err := fn(&next); err != nil {
		return r.clone(e.value), err
	}
	e.value = next
	if r.save != nil {
		r.save(r.clone(next))
	}
	return r.clone(next), nil
}

// Compute is Update that may also create the entry. fn receives the zero
// value and exists=false when id is absent; returning nil inserts it.
func (r *Registry[T]) Compute(id string, fn func(cur *T, exists bool) error) (T, error) {
	for {
		if e := r.lookup(id); e != nil {
			e.mu.Lock()
			if e.removed {
				e.mu.Unlock()
				continue
			}
			next := r.clone(e.value)
			if err := fn(&next, true); err != nil {
				out := r.clone(e.value)
				e.mu.Unlock()
				return out, err
			}
			e.value = next
			if r.save != nil {
				r.save(r.clone(next))
			}
			out := r.clone(next)
			e.mu.Unlock()
			return out, nil
		}

		s := r.shardFor(id)
		s.mu.Lock()
		if _, raced := s.entries[id]; raced {
			s.mu.Unlock()
			continue
		}
		var value T
		if err := fn(&value, false); err != nil {
			s.mu.Unlock()
			var zero T
			return zero, err
		}
		e := &entry[T]{value: value}
		e.mu.Lock()
		s.entries[id] = e
		s.mu.Unlock()

		if r.save != nil {
			r.save(r.clone(value))
		}
		out := r.clone(value)
		e.mu.Unlock()
		return out, nil
	}
}

// Delete removes id and returns its last value.
func (r *Registry[T]) Delete(id string) (T, bool) {
	var zero T
	s := r.shardFor(id)
	s.mu.Lock()
	e := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if e == nil {
		return zero, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return zero, false
	}
	e.removed = true
	if r.remove != nil {
		r.remove(id)
	}
	return r.clone(e.value), true
}

// Values snapshots every entry accepted by keep (all when keep is nil).
func (r *Registry[T]) Values(keep func(T) bool) []T {
	var out []T
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		entries := make([]*entry[T], 0, len(s.entries))
		for _, e := range s.entries {
			entries = append(entries, e)
		}
		s.mu.RUnlock()

		for _, e := range entries {
			e.mu.Lock()
			if !e.removed && (keep == nil || keep(e.value)) {
				out = append(out, r.clone(e.value))
			}
			e.mu.Unlock()
		}
	}
	return out
}

func (r *Registry[T]) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// load inserts without running the write-through hooks.
func (r *Registry[T]) load(id string, value T) {
	s := r.shardFor(id)
	s.mu.Lock()
	s.entries[id] = &entry[T]{value: value}
	s.mu.Unlock()
}
