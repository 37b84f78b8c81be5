// Package progress reports a warm run while it happens. Workers emit one
// Event per finished resource into a non-blocking Hub that batches them on a
// background goroutine and fans them out to pluggable sinks (structured logs,
// Prometheus). The Monitor renders a terminal progress bar from registry
// snapshots.
package progress
