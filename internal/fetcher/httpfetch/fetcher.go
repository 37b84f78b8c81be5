// Package httpfetch implements warmer.Fetcher on net/http with explicit
// control over the headers a cache layer keys on.
package httpfetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// AcceptEncoding is the negotiation header sent when compression is enabled,
// in preference order.
const AcceptEncoding = "br, gzip, deflate"

// Cookie is a single name/value pair sent with every request.
type Cookie struct {
	Name  string
	Value string
}

// Config controls the shared client.
type Config struct {
	UserAgent   string
	Cookies     []Cookie
	KeepAlive   bool
	Compression bool
	// Timeout bounds a whole request; zero leaves it to the transport.
	Timeout time.Duration
	// Logger receives warnings about bodies that do not match their
	// Content-Encoding.
	Logger *zap.Logger
}

// Fetcher is shared by every worker of a run and is safe for concurrent use.
type Fetcher struct {
	client  *http.Client
	headers http.Header
	logger  *zap.Logger
}

// New builds a Fetcher and its pooled transport.
func New(cfg Config) *Fetcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		logger: logger,
		client: &http.Client{
			Transport: newHTTPTransport(cfg.KeepAlive),
			Timeout:   cfg.Timeout,
			// The cache status of the requested URI is what matters, so
			// redirects are recorded rather than followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		headers: BuildHeaders(cfg),
	}
}

// BuildHeaders returns the request headers shared by every request.
func BuildHeaders(cfg Config) http.Header {
	h := http.Header{}
	if cfg.UserAgent != "" {
		h.Set("User-Agent", cfg.UserAgent)
	}
	if cookie := CookieHeader(cfg.Cookies); cookie != "" {
		h.Set("Cookie", cookie)
	}
	if cfg.Compression {
		h.Set("Accept-Encoding", AcceptEncoding)
	}
	return h
}

// CookieHeader joins the pairs into a single Cookie header value.
func CookieHeader(cookies []Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// Fetch issues a GET and reads the whole body so the connection can be
// reused. Every failure wraps warmer.ErrTransport. Once a response has
// arrived only reading the payload can fail; a payload that does not decode
// is returned as received, with its status and headers.
func (f *Fetcher) Fetch(ctx context.Context, request warmer.FetchRequest) (warmer.FetchResponse, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, request.URI, nil)
	if err != nil {
		return warmer.FetchResponse{}, fmt.Errorf("%w: build request: %w", warmer.ErrTransport, err)
	}
	req.Header = f.headers.Clone()

	resp, err := f.client.Do(req)
	if err != nil {
		return warmer.FetchResponse{}, fmt.Errorf("%w: %w", warmer.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := f.readBody(request.URI, resp)
	if err != nil {
		return warmer.FetchResponse{}, fmt.Errorf("%w: read body: %w", warmer.ErrTransport, err)
	}

	return warmer.FetchResponse{
		URI:        request.URI,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

// newHTTPTransport keeps the default transport's dial, TLS and idle
// timeouts and only changes connection reuse and compression handling.
func newHTTPTransport(keepAlive bool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	// Every worker usually targets the same host.
	t.MaxIdleConnsPerHost = t.MaxIdleConns
	t.DisableKeepAlives = !keepAlive
	// Accept-Encoding is negotiated explicitly; never let the transport
	// add or strip it.
	t.DisableCompression = true
	return t
}
