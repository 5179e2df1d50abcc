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

// Package grpcpool is the connpool strategy for gRPC calls: entries are
// logical calls keyed by peer (service+method+peer), not transport
// sockets. Since gRPC exposes no clean stop-accepting hook, admission is
// gated by an internal flag new calls observe and reject; existing calls
// are left to drain on their own.
package grpcpool

import (
	"sync"
	"sync/atomic"

	"github.com/nabbar/polyserve/connpool"
)

// Meta is the grpcpool connpool.Metadata for one logical call.
type Meta struct {
	Peer    string
	Service string
	Method  string
}

func (m *Meta) Kind() string { return "grpc" }

// Call is the subset of call state the strategy inspects: whether it has
// already completed.
type Call interface {
	Done() bool
}

type Strategy struct {
	draining int32

	mu    sync.Mutex
	force func()
}

// New returns a connpool.Strategy for gRPC calls.
func New() *Strategy {
	return &Strategy{}
}

// SetForceShutdown registers the native server's forced-shutdown hook,
// invoked by ForceShutdown.
func (s *Strategy) SetForceShutdown(fn func()) {
	s.mu.Lock()
	s.force = fn
	s.mu.Unlock()
}

// Drain flips the internal flag new calls observe and reject. Existing
// calls are left to complete on their own.
func (s *Strategy) Drain() {
	atomic.StoreInt32(&s.draining, 1)
}

func (s *Strategy) IsDraining() bool {
	return atomic.LoadInt32(&s.draining) == 1
}

// ForceShutdown calls the registered native forced-shutdown hook, if any.
func (s *Strategy) ForceShutdown() {
	s.mu.Lock()
	fn := s.force
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (s *Strategy) Validate(conn interface{}, _ connpool.Metadata) bool {
	if s.IsDraining() {
		return false
	}
	_, ok := conn.(Call)
	return ok
}

func (s *Strategy) Cleanup(conn interface{}, _ connpool.Metadata) {
	// calls have no transport-level teardown of their own; the RPC
	// handler's own completion path is the source of truth.
}

func (s *Strategy) IsHealthy(conn interface{}, _ connpool.Metadata) bool {
	c, ok := conn.(Call)
	if !ok {
		return false
	}
	return !c.Done()
}
