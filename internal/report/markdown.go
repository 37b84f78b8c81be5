package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
)

// MarkdownWriter renders the summary for pasting into tickets or docs.
type MarkdownWriter struct {
	out io.Writer
}

// NewMarkdownWriter creates a MarkdownWriter.
func NewMarkdownWriter(out io.Writer) *MarkdownWriter {
	return &MarkdownWriter{out: out}
}

// Write renders the summary.
func (w *MarkdownWriter) Write(s Summary) error {
	md := markdown.NewMarkdown(w.out)
	md.H1("Cache Warmer Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", s.RunID},
			{"Processed", strconv.Itoa(s.Total)},
			{"Seeded", strconv.Itoa(s.Seeded)},
			{"Errors", strconv.Itoa(s.Errors)},
			{"Elapsed", fmt.Sprintf("%.2fs", s.ElapsedSeconds)},
		},
	})
	md.PlainText("")

	if s.CaptchaURI != "" {
		md.Warningf("Captcha marker found at %s. Workers stopped early.", s.CaptchaURI)
		md.PlainText("")
	}

	md.H2("Cache Status")
	md.PlainText("")
	cacheRows := make([][]string, 0, len(s.CacheStatuses))
	for _, c := range s.CacheStatuses {
		cacheRows = append(cacheRows, []string{string(c.Status), strconv.Itoa(c.Count)})
	}
	md.Table(markdown.TableSet{Header: []string{"Status", "Count"}, Rows: cacheRows})
	md.PlainText("")

	md.H2("HTTP Status")
	md.PlainText("")
	if len(s.HTTPStatuses) == 0 {
		md.PlainText("No responses received.")
	} else {
		httpRows := make([][]string, 0, len(s.HTTPStatuses))
		for _, c := range s.HTTPStatuses {
			httpRows = append(httpRows, []string{strconv.Itoa(c.Code), strconv.Itoa(c.Count)})
		}
		md.Table(markdown.TableSet{Header: []string{"Code", "Count"}, Rows: httpRows})
	}

	if err := md.Build(); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}
	return nil
}
