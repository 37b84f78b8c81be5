package warmer

import (
	"net/http"
	"time"
)

// CacheStatus is the cache layer's verdict for a single resource.
type CacheStatus string

// Cache status values. Error is never produced by header classification; the
// worker assigns it when the request failed at the transport level.
const (
	CacheStatusUnset  CacheStatus = "UNSET"
	CacheStatusHit    CacheStatus = "HIT"
	CacheStatusMiss   CacheStatus = "MISS"
	CacheStatusBypass CacheStatus = "BYPASS"
	CacheStatusError  CacheStatus = "ERROR"
)

// CacheStatuses lists every status in report order.
func CacheStatuses() []CacheStatus {
	return []CacheStatus{
		CacheStatusHit,
		CacheStatusMiss,
		CacheStatusBypass,
		CacheStatusUnset,
		CacheStatusError,
	}
}

// HTTPStatusUnset marks a resource that has not received a response.
const HTTPStatusUnset = 0

// Resource is one URI under test. It is created once when the registry is
// seeded and filled in by the single worker that processes it.
type Resource struct {
	// ID is the seeding index; it stays unique even when a URI repeats.
	ID           int           `json:"id"`
	URI          string        `json:"uri"`
	CacheStatus  CacheStatus   `json:"cache_status"`
	HTTPStatus   int           `json:"http_status"`
	CaptchaFound bool          `json:"captcha_found"`
	Bytes        int64         `json:"bytes"`
	Duration     time.Duration `json:"duration"`
	Err          string        `json:"error,omitempty"`
}

// NewResource returns a resource in its initial, unclassified state.
func NewResource(id int, uri string) Resource {
	return Resource{
		ID:          id,
		URI:         uri,
		CacheStatus: CacheStatusUnset,
		HTTPStatus:  HTTPStatusUnset,
	}
}

// Classification is the outcome of inspecting a response.
type Classification struct {
	CacheStatus  CacheStatus
	HTTPStatus   int
	CaptchaFound bool
}

// Apply copies the classification onto the resource.
func (r *Resource) Apply(c Classification) {
	r.CacheStatus = c.CacheStatus
	r.HTTPStatus = c.HTTPStatus
	r.CaptchaFound = c.CaptchaFound
}

// Fail records a transport failure on the resource.
func (r *Resource) Fail(err error) {
	r.CacheStatus = CacheStatusError
	r.HTTPStatus = HTTPStatusUnset
	r.CaptchaFound = false
	if err != nil {
		r.Err = err.Error()
	}
}

// FetchRequest identifies the resource to fetch. Request headers are owned by
// the Fetcher since they are identical for every request of a run.
type FetchRequest struct {
	URI string
}

// FetchResponse is the fully read response returned by a Fetcher.
type FetchResponse struct {
	URI        string
	StatusCode int
	Headers    http.Header
	// Body is the decoded (decompressed) payload.
	Body     []byte
	Duration time.Duration
}
