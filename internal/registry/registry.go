// Package registry holds the shared todo/done resource sets that the worker
// pool drains, together with the captcha stop signal.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// ErrNotInFlight is returned when completing a resource that was never popped
// or was already completed.
var ErrNotInFlight = errors.New("resource not in flight")

// Registry owns every resource of a run. A resource is always in exactly one
// of todo, in-flight or done.
type Registry struct {
	mu       sync.Mutex
	todo     []warmer.Resource
	inFlight map[int]struct{}
	done     []warmer.Resource
	total    int

	captcha atomic.Bool
}

// New seeds a registry with one unclassified resource per URI.
func New(uris []string) *Registry {
	todo := make([]warmer.Resource, 0, len(uris))
	for i, uri := range uris {
		todo = append(todo, warmer.NewResource(i, uri))
	}
	return &Registry{
		todo:     todo,
		inFlight: make(map[int]struct{}),
		done:     make([]warmer.Resource, 0, len(uris)),
		total:    len(todo),
	}
}

// Pop removes one pending resource. Retrieval order is unspecified.
func (r *Registry) Pop() (warmer.Resource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.todo)
	if n == 0 {
		return warmer.Resource{}, false
	}
	res := r.todo[n-1]
	r.todo[n-1] = warmer.Resource{}
	r.todo = r.todo[:n-1]
	r.inFlight[res.ID] = struct{}{}
	return res, true
}

// Complete appends a classified resource to done. A resource carrying a
// captcha match raises the stop signal.
func (r *Registry) Complete(res warmer.Resource) error {
	r.mu.Lock()
	if _, ok := r.inFlight[res.ID]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("complete %q (id %d): %w", res.URI, res.ID, ErrNotInFlight)
	}
	delete(r.inFlight, res.ID)
	r.done = append(r.done, res)
	r.mu.Unlock()

	if res.CaptchaFound {
		r.SignalCaptcha()
	}
	return nil
}

// SignalCaptcha raises the stop signal. It reports whether this call was the
// one that raised it.
func (r *Registry) SignalCaptcha() bool {
	return r.captcha.CompareAndSwap(false, true)
}

// CaptchaDetected reports whether any worker has seen the captcha marker.
func (r *Registry) CaptchaDetected() bool {
	return r.captcha.Load()
}

// TodoCount is a point-in-time snapshot for progress reporting only.
func (r *Registry) TodoCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.todo)
}

// InFlightCount is a point-in-time snapshot for progress reporting only.
func (r *Registry) InFlightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inFlight)
}

// DoneCount is a point-in-time snapshot for progress reporting only.
func (r *Registry) DoneCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.done)
}

// Total is the size of the seeded resource set.
func (r *Registry) Total() int {
	return r.total
}

// Done returns a copy of the finished resources in completion order.
func (r *Registry) Done() []warmer.Resource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]warmer.Resource(nil), r.done...)
}
