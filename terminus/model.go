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
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

func defaultSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}
}

type term struct {
	mu  sync.Mutex
	cfg Config
	srv Stoppable

	lm   sync.Mutex
	next int
	subs map[int]BeforeExitFunc
}

func (t *term) Register(srv Stoppable) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.srv != nil {
		return ErrorAlreadyRegistered.Error(nil)
	}

	t.srv = srv
	return nil
}

func (t *term) AddBeforeExit(fn BeforeExitFunc) {
	t.lm.Lock()
	defer t.lm.Unlock()

	if t.subs == nil {
		t.subs = make(map[int]BeforeExitFunc)
	}

	t.next++
	t.subs[t.next] = fn
}

func (t *term) RemoveBeforeExit(key int) {
	t.lm.Lock()
	defer t.lm.Unlock()

	delete(t.subs, key)
}

func (t *term) drainBeforeExit(ctx context.Context) {
	t.lm.Lock()
	keys := make([]int, 0, len(t.subs))
	for k := range t.subs {
		keys = append(keys, k)
	}
	fns := t.subs
	t.lm.Unlock()

	sort.Ints(keys)

	for _, k := range keys {
		if fn, ok := fns[k]; ok {
			fn(ctx)
		}
	}
}

func (t *term) Wait(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, t.cfg.Signals...)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case <-ctx.Done():
		return
	}

	t.drainBeforeExit(ctx)

	if !t.cfg.Production {
		t.cfg.Exit(0)
		return
	}

	t.mu.Lock()
	srv := t.srv
	t.mu.Unlock()

	if srv == nil {
		t.cfg.Exit(0)
		return
	}

	forced := time.AfterFunc(t.cfg.ForcedExitTimeout, func() {
		t.cfg.Exit(1)
	})

	err := srv.Stop(ctx)
	forced.Stop()

	if err != nil {
		t.cfg.Exit(1)
		return
	}

	t.cfg.Exit(0)
}
