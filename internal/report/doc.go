// Package report summarizes a finished warm run and renders it as text,
// JSON or Markdown.
package report
