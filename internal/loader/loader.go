// Package loader reads the URI list file and resolves each line against the
// configured base URI.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

var (
	// ErrOpenFile is returned when the URI list cannot be opened or read.
	ErrOpenFile = errors.New("uri file unreadable")
	// ErrInvalidURI marks a line that does not resolve to an absolute URI.
	ErrInvalidURI = errors.New("invalid uri")
)

// Load returns the absolute URIs built from path, in file order. Blank lines
// are ignored; lines that do not parse are logged and skipped.
func Load(path, baseURI string, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenFile, err)
	}
	defer f.Close()

	var (
		uris    []string
		lineNum int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		uri, err := Resolve(baseURI, line)
		if err != nil {
			logger.Warn("skipping line", zap.String("file", path), zap.Int("line", lineNum), zap.Error(err))
			continue
		}
		uris = append(uris, uri)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFile, path, err)
	}
	return uris, nil
}

// Resolve concatenates baseURI and line and checks the result is an
// absolute URI with a scheme and host. Whitespace is rejected rather than
// percent-encoded so the URI requested is exactly the one listed.
func Resolve(baseURI, line string) (string, error) {
	raw := baseURI + line
	if strings.ContainsFunc(raw, unicode.IsSpace) {
		return "", fmt.Errorf("%w: %q contains whitespace", ErrInvalidURI, raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidURI, raw)
	}
	return u.String(), nil
}
