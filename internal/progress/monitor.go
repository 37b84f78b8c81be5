package progress

import (
	"context"
	"fmt"
	"io"
	"time"

	bar "github.com/charmbracelet/bubbles/progress"
)

// Source is the read-only view of the registry the Monitor samples.
type Source interface {
	DoneCount() int
	CaptchaDetected() bool
}

// MonitorConfig controls the terminal progress bar.
type MonitorConfig struct {
	Total    int
	Interval time.Duration
	Width    int
	Out      io.Writer
}

// Monitor redraws a progress bar from periodic registry snapshots. It never
// mutates the registry.
type Monitor struct {
	src Source
	cfg MonitorConfig
	bar bar.Model
}

// NewMonitor builds a Monitor; Interval defaults to one second.
func NewMonitor(src Source, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Width <= 0 {
		cfg.Width = 40
	}
	return &Monitor{
		src: src,
		cfg: cfg,
		bar: bar.New(bar.WithDefaultGradient(), bar.WithWidth(cfg.Width)),
	}
}

// Run blocks until every resource is done, the captcha signal is raised or
// ctx ends, then draws the final state.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.draw(m.src.DoneCount())
	for {
		select {
		case <-ctx.Done():
			m.finish()
			return
		case <-ticker.C:
			done := m.src.DoneCount()
			m.draw(done)
			if done >= m.cfg.Total || m.src.CaptchaDetected() {
				m.finish()
				return
			}
		}
	}
}

// Render returns the bar line for done resources out of the total.
func (m *Monitor) Render(done int) string {
	pct := 1.0
	if m.cfg.Total > 0 {
		pct = float64(done) / float64(m.cfg.Total)
	}
	if pct > 1 {
		pct = 1
	}
	return fmt.Sprintf("%s %d/%d", m.bar.ViewAs(pct), done, m.cfg.Total)
}

func (m *Monitor) draw(done int) {
	fmt.Fprintf(m.cfg.Out, "\r%s", m.Render(done))
}

func (m *Monitor) finish() {
	m.draw(m.src.DoneCount())
	fmt.Fprintln(m.cfg.Out)
}
