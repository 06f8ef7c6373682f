// Package media keeps rendered backend images addressable by a short-lived handle.
package media

import (
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// HandlePrefix marks strings issued by a Registry.
const HandlePrefix = "blob:"

// DefaultCapacity covers a full result cache plus the images in flight.
const DefaultCapacity = 256

// Blob is a registered image body.
type Blob struct {
	Data        []byte
	ContentType string
}

// Registry maps handles to image bytes. It keeps at most capacity
// bodies and forgets the oldest first, so a handle stored elsewhere (e.g.
// in the result cache) may stop resolving, as it does after a restart.
type Registry struct {
	mu       sync.RWMutex
	blobs    map[string]Blob
	order    []string // registration order, oldest first
	capacity int
}

// Option configures a Registry.
type Option func(*Registry)

// WithCapacity overrides DefaultCapacity. Non-positive values are ignored.
func WithCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		blobs:    make(map[string]Blob),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores data and returns its handle, dropping the oldest
// bodies beyond capacity.
func (r *Registry) Register(data []byte, contentType string) string {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	handle := HandlePrefix + uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs[handle] = Blob{Data: data, ContentType: contentType}
	r.order = append(r.order, handle)
	for len(r.order) > r.capacity {
		delete(r.blobs, r.order[0])
		r.order = slices.Delete(r.order, 0, 1)
	}
	return handle
}

// Open returns the blob for handle.
func (r *Registry) Open(handle string) (Blob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[handle]
	return b, ok
}

// Revoke forgets handle.
func (r *Registry) Revoke(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blobs[handle]; !ok {
		return
	}
	delete(r.blobs, handle)
	if i := slices.Index(r.order, handle); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// IsHandle reports whether s looks like a registry handle.
func IsHandle(s string) bool {
	return strings.HasPrefix(s, HandlePrefix)
}
