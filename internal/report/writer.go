package report

import (
	"fmt"
	"io"
)

// Writer renders a Summary.
type Writer interface {
	Write(summary Summary) error
}

// NewWriter picks the renderer for format ("text", "json" or "markdown").
func NewWriter(format string, out io.Writer) (Writer, error) {
	switch format {
	case "", "text":
		return NewTextWriter(out), nil
	case "json":
		return NewJSONWriter(out), nil
	case "markdown":
		return NewMarkdownWriter(out), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}
