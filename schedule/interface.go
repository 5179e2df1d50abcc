/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package schedule coalesces the harness's periodic per-pool work (health
// checks, pings, cleanup sweeps, metrics snapshots) onto a single ticker,
// grouped and run in ascending priority order.
package schedule

import (
	"context"
	"time"
)

// TaskFunc is the unit of periodic work. A non-nil error is forwarded to the
// task's OnError handler, if any, then swallowed.
type TaskFunc func(ctx context.Context) error

// Task describes one registered unit of periodic work.
type Task struct {
	// Name uniquely identifies the task within the registry.
	Name string

	// Priority groups tasks; lower values run first. Tasks sharing a
	// priority run concurrently within their group.
	Priority int

	// Interval is the minimum time between two executions of this task.
	Interval time.Duration

	// Enabled gates selection; disabled tasks are skipped without
	// updating their last run time (Stats.LastRunAt).
	Enabled bool

	// Run is the task body.
	Run TaskFunc

	// OnError, if set, is invoked with a failing run's error. Panics or
	// errors from OnError itself are logged and swallowed.
	OnError func(err error)
}

// Stats is the exponential-moving-average execution statistics kept per
// task.
type Stats struct {
	Runs       uint64
	Failures   uint64
	LastRunAt  time.Time
	LastDur    time.Duration
	AvgDur     time.Duration
}

// Scheduler is the unified ticker-driven task registry.
type Scheduler interface {
	// Register adds or replaces a task by name. Safe to call at any time;
	// applied at the next idle point between ticks.
	Register(t Task)

	// Unregister removes a task by name.
	Unregister(name string)

	// Enable / Disable toggle a task's Enabled flag by name, a no-op if
	// the name is unknown.
	Enable(name string)
	Disable(name string)

	// Stats returns a snapshot of a task's execution statistics.
	Stats(name string) (Stats, bool)

	// Destroy stops the ticker and clears the registry. Idempotent.
	Destroy()
}

// New returns a Scheduler ticking every interval (5s if interval <= 0).
func New(ctx context.Context, interval time.Duration) Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	s := &scheduler{
		tasks:  make(map[string]*entry),
		period: interval,
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.ticker = time.NewTicker(interval)

	go s.loop()

	return s
}
