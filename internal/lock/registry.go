// README: Process-wide registry of in-flight keys used to reject duplicate work.
package lock

import "sync"

// Registry is a non-blocking keyed lock. A key is either held or free;
// callers that find it held are expected to give up, not wait.
type Registry struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{held: make(map[string]struct{})}
}

// TryAcquire claims key. The returned release func is idempotent.
func (r *Registry) TryAcquire(key string) (release func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.held[key]; busy {
		return func() {}, false
	}
	r.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.held, key)
			r.mu.Unlock()
		})
	}, true
}

func (r *Registry) Held(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.held[key]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held)
}
