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

package terminus

import (
	"context"
	"os"
	"time"
)

// Stoppable is the subset of a server's lifecycle terminus needs: a
// context-bound graceful stop, matching libsrv.Runner's Stop(ctx) error
// shape used throughout the server package.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// BeforeExitFunc is a user-registered listener drained sequentially on
// signal, before the bound server is stopped. Identified by its integer
// key for Remove.
type BeforeExitFunc func(ctx context.Context)

// Terminus binds the process's termination signal set to a server's
// graceful shutdown and enforces a forced-exit timer.
type Terminus interface {
	// Register binds srv to the signal set. Returns ErrorAlreadyRegistered
	// if this Terminus instance already has a server bound.
	Register(srv Stoppable) error

	// AddBeforeExit appends a listener drained, in registration order,
	// before the bound server is stopped.
	AddBeforeExit(fn BeforeExitFunc)

	// RemoveBeforeExit removes a previously added listener by key. Keys
	// are assigned 1, 2, 3, ... in the order of AddBeforeExit calls on
	// this Terminus; AddBeforeExit does not return the key.
	RemoveBeforeExit(key int)

	// Wait blocks until a termination signal arrives or ctx is canceled.
	// On ctx cancellation it returns without any shutdown step; on a
	// signal it runs the shutdown sequence. In dev mode (Production=false) the
	// process exits immediately after draining beforeExit listeners,
	// without waiting on the server's Stop.
	Wait(ctx context.Context)
}

// Config controls Terminus behavior.
type Config struct {
	// Signals is the termination signal set; defaults to {INT, TERM, QUIT}.
	Signals []os.Signal

	// Production, when false, causes Wait to exit immediately on signal
	// rather than draining the bound server gracefully.
	Production bool

	// ForcedExitTimeout bounds how long Wait waits for the bound server's
	// Stop before forcing process exit 1. Default 60s.
	ForcedExitTimeout time.Duration

	// Exit is called to terminate the process; defaults to os.Exit. Tests
	// substitute a non-terminating stand-in.
	Exit func(code int)
}

// New returns a Terminus configured per cfg, applying defaults for zero
// fields.
func New(cfg Config) Terminus {
	if len(cfg.Signals) == 0 {
		cfg.Signals = defaultSignals()
	}
	if cfg.ForcedExitTimeout <= 0 {
		cfg.ForcedExitTimeout = 60 * time.Second
	}
	if cfg.Exit == nil {
		cfg.Exit = os.Exit
	}

	return &term{cfg: cfg}
}
