// Package classify maps a fetched response to its cache status, HTTP status
// and captcha flag.
package classify

import (
	"net/http"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// CacheStatusHeader is the response header the cache layer reports through.
const CacheStatusHeader = "X-Cache-Status"

// Classifier is safe for concurrent use; it holds only the captcha marker.
type Classifier struct {
	marker string
}

// New returns a Classifier. An empty marker disables captcha detection.
func New(captchaMarker string) *Classifier {
	return &Classifier{marker: captchaMarker}
}

// Classify inspects a response whose body has already been decoded to text.
func (c *Classifier) Classify(headers http.Header, statusCode int, body string) warmer.Classification {
	return warmer.Classification{
		CacheStatus:  CacheStatus(headers),
		HTTPStatus:   statusCode,
		CaptchaFound: ContainsMarker(body, c.marker),
	}
}

// ClassifyResponse decodes the raw body and classifies the response.
func (c *Classifier) ClassifyResponse(resp warmer.FetchResponse) warmer.Classification {
	return c.Classify(resp.Headers, resp.StatusCode, DecodeBody(resp.Body))
}

// CacheStatus reads X-Cache-Status. The value comparison is case-sensitive;
// a missing header or any unknown value yields Unset.
func CacheStatus(headers http.Header) warmer.CacheStatus {
	switch headers.Get(CacheStatusHeader) {
	case "HIT":
		return warmer.CacheStatusHit
	case "MISS":
		return warmer.CacheStatusMiss
	case "BYPASS":
		return warmer.CacheStatusBypass
	default:
		return warmer.CacheStatusUnset
	}
}

// ContainsMarker reports a literal, case-sensitive match. The empty marker
// never matches.
func ContainsMarker(body, marker string) bool {
	return marker != "" && strings.Contains(body, marker)
}

// DecodeBody converts the payload to UTF-8 text, replacing invalid sequences
// with U+FFFD. It never fails.
func DecodeBody(body []byte) string {
	decoded, err := unicode.UTF8.NewDecoder().Bytes(body)
	if err != nil {
		return strings.ToValidUTF8(string(body), "\uFFFD")
	}
	return string(decoded)
}
