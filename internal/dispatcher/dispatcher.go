// Package dispatcher runs a fixed pool of workers to completion.
package dispatcher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Runner is a single pool member. Run returns when the member has no more
// work or has been told to stop.
type Runner interface {
	Run(ctx context.Context)
}

// Dispatcher fans a shared registry out to a pool of workers.
type Dispatcher struct {
	workers []Runner
}

// New creates a Dispatcher.
func New(workers ...Runner) *Dispatcher {
	return &Dispatcher{workers: workers}
}

// Size returns the number of pool members.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Run starts every worker and blocks until all of them have returned.
// A panicking worker is reported as an error once the others finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	var g errgroup.Group
	for i, w := range d.workers {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker %d panicked: %v", i, r)
				}
			}()
			w.Run(ctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}
	return nil
}
