package report

import (
	"slices"
	"time"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// CacheStatusCount is one row of the cache outcome histogram.
type CacheStatusCount struct {
	Status warmer.CacheStatus `json:"status"`
	Count  int                `json:"count"`
}

// HTTPStatusCount is one row of the HTTP status histogram.
type HTTPStatusCount struct {
	Code  int `json:"code"`
	Count int `json:"count"`
}

// Summary aggregates the resources that reached done.
type Summary struct {
	RunID          string             `json:"run_id"`
	Total          int                `json:"total"`
	Seeded         int                `json:"seeded"`
	CacheStatuses  []CacheStatusCount `json:"cache_statuses"`
	HTTPStatuses   []HTTPStatusCount  `json:"http_statuses"`
	Errors         int                `json:"errors"`
	ElapsedSeconds float64            `json:"elapsed_seconds"`
	CaptchaURI     string             `json:"captcha_uri,omitempty"`
}

// Build computes the histograms over done. Every cache status appears in a
// fixed order even with a zero count; HTTP statuses are sorted ascending and
// resources that never produced a response are left out of them.
func Build(runID string, seeded int, done []warmer.Resource, elapsed time.Duration) Summary {
	byCache := make(map[warmer.CacheStatus]int, len(warmer.CacheStatuses()))
	byHTTP := make(map[int]int)
	summary := Summary{
		RunID:          runID,
		Total:          len(done),
		Seeded:         seeded,
		ElapsedSeconds: elapsed.Seconds(),
	}

	for _, res := range done {
		byCache[res.CacheStatus]++
		if res.CacheStatus == warmer.CacheStatusError {
			summary.Errors++
		}
		if res.HTTPStatus != warmer.HTTPStatusUnset {
			byHTTP[res.HTTPStatus]++
		}
		if res.CaptchaFound && summary.CaptchaURI == "" {
			summary.CaptchaURI = res.URI
		}
	}

	for _, status := range warmer.CacheStatuses() {
		summary.CacheStatuses = append(summary.CacheStatuses, CacheStatusCount{Status: status, Count: byCache[status]})
	}

	codes := make([]int, 0, len(byHTTP))
	for code := range byHTTP {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	summary.HTTPStatuses = make([]HTTPStatusCount, 0, len(codes))
	for _, code := range codes {
		summary.HTTPStatuses = append(summary.HTTPStatuses, HTTPStatusCount{Code: code, Count: byHTTP[code]})
	}
	return summary
}

// CacheCount returns the count recorded for status.
func (s Summary) CacheCount(status warmer.CacheStatus) int {
	for _, c := range s.CacheStatuses {
		if c.Status == status {
			return c.Count
		}
	}
	return 0
}
