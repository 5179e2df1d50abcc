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

package supervisor

import (
	"context"
	"sync"

	"github.com/nabbar/polyserve/server"
)

type supervisor struct {
	mu      sync.RWMutex
	entries []Entry
}

func (s *supervisor) Start(ctx context.Context) []error {
	s.mu.RLock()
	entries := append([]Entry(nil), s.entries...)
	s.mu.RUnlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	wg.Add(len(entries))
	for _, e := range entries {
		go func(e Entry) {
			defer wg.Done()
			if err := e.Server.Start(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(e)
	}
	wg.Wait()

	return errs
}

func (s *supervisor) Stop(ctx context.Context, cb func()) []error {
	s.mu.RLock()
	entries := append([]Entry(nil), s.entries...)
	s.mu.RUnlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	wg.Add(len(entries))
	for _, e := range entries {
		go func(e Entry) {
			defer wg.Done()
			if err := e.Server.Stop(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(e)
	}
	wg.Wait()

	if cb != nil {
		cb()
	}

	return errs
}

func (s *supervisor) GetServer(protocol server.Protocol, port int) server.Server {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.Port == port && e.Server.Protocol() == protocol {
			return e.Server
		}
	}

	return nil
}

func (s *supervisor) Servers() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}
