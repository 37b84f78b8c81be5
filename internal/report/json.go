package report

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONWriter emits the summary as one indented JSON document.
type JSONWriter struct {
	out io.Writer
}

// NewJSONWriter creates a JSONWriter.
func NewJSONWriter(out io.Writer) *JSONWriter {
	return &JSONWriter{out: out}
}

// Write renders the summary.
func (w *JSONWriter) Write(s Summary) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("write json report: %w", err)
	}
	return nil
}
