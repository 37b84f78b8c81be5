package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// TextWriter prints the human-readable report shown at the end of a run.
type TextWriter struct {
	out     io.Writer
	heading lipgloss.Style
	warning lipgloss.Style
}

// NewTextWriter creates a TextWriter.
func NewTextWriter(out io.Writer) *TextWriter {
	return &TextWriter{
		out:     out,
		heading: lipgloss.NewStyle().Bold(true),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

// Write renders the summary.
func (w *TextWriter) Write(s Summary) error {
	cacheRows := make([][]string, 0, len(s.CacheStatuses))
	for _, c := range s.CacheStatuses {
		cacheRows = append(cacheRows, []string{string(c.Status), strconv.Itoa(c.Count)})
	}
	httpRows := make([][]string, 0, len(s.HTTPStatuses))
	for _, c := range s.HTTPStatuses {
		httpRows = append(httpRows, []string{strconv.Itoa(c.Code), strconv.Itoa(c.Count)})
	}

	_, err := fmt.Fprintf(w.out, "%s\n%s\n\n%s\n%s\n\n%s\n%s\n",
		w.heading.Render(fmt.Sprintf("Warmed %d of %d URIs in %.2fs", s.Total, s.Seeded, s.ElapsedSeconds)),
		"run "+s.RunID,
		w.heading.Render("Cache status"),
		countTable("status", cacheRows),
		w.heading.Render("HTTP status"),
		countTable("code", httpRows),
	)
	if err != nil {
		return fmt.Errorf("write text report: %w", err)
	}
	if s.CaptchaURI != "" {
		if _, err := fmt.Fprintf(w.out, "\n%s\n", w.warning.Render("Captcha found at "+s.CaptchaURI)); err != nil {
			return fmt.Errorf("write text report: %w", err)
		}
	}
	return nil
}

func countTable(key string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(key, "count").
		Rows(rows...).
		String()
}
