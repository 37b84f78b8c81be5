package httpfetch

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"go.uber.org/zap"
)

// readBody reads the raw payload, which is the only step that can fail.
// A payload that does not decode under its Content-Encoding is logged and
// kept as received so it can still be classified.
func (f *Fetcher) readBody(uri string, resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	encoding := resp.Header.Get("Content-Encoding")
	body, err := decode(encoding, raw)
	if err != nil {
		f.logger.Warn("body does not match content encoding, keeping raw bytes",
			zap.String("uri", uri), zap.String("encoding", encoding), zap.Error(err))
		return raw, nil
	}
	return body, nil
}

func decode(encoding string, raw []byte) ([]byte, error) {
	reader, closeFn, err := decompress(encoding, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer closeFn()
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", encoding, err)
	}
	return body, nil
}

// decompress wraps body according to Content-Encoding. Unknown encodings are
// passed through untouched.
func decompress(encoding string, body io.Reader) (io.Reader, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "br":
		return brotli.NewReader(body), noop, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, noop, fmt.Errorf("gzip: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case "deflate":
		return inflate(body)
	default:
		return body, noop, nil
	}
}

// inflate accepts both zlib-wrapped and raw deflate streams; servers send
// either under "deflate".
func inflate(body io.Reader) (io.Reader, func(), error) {
	buffered := bufio.NewReader(body)
	header, err := buffered.Peek(2)
	if err == nil && isZlibHeader(header) {
		zr, err := zlib.NewReader(buffered)
		if err != nil {
			return nil, func() {}, fmt.Errorf("zlib: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	}
	fr := flate.NewReader(buffered)
	return fr, func() { _ = fr.Close() }, nil
}

func isZlibHeader(h []byte) bool {
	cmf, flg := h[0], h[1]
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
