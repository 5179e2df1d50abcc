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

// Package h2pool is the connpool strategy for HTTP/2 sessions: entries are
// sessions, not sockets. A background ping task tracks liveness; GOAWAY
// marks a session draining rather than removing it outright.
package h2pool

import (
	"context"
	"sync"
	"time"

	"github.com/nabbar/polyserve/connpool"
	"github.com/nabbar/polyserve/schedule"
)

// Meta is the h2pool connpool.Metadata for one HTTP/2 session.
type Meta struct {
	mu            sync.Mutex
	ActiveStreams int
	Draining      bool
	LastPingTime  time.Time
	LastPongTime  time.Time
	closed        bool
	destroyed     bool
}

func (m *Meta) Kind() string { return "http2" }

func (m *Meta) MarkPing() {
	m.mu.Lock()
	m.LastPingTime = time.Now()
	m.mu.Unlock()
}

func (m *Meta) MarkPong() {
	m.mu.Lock()
	m.LastPongTime = time.Now()
	m.mu.Unlock()
}

// MarkGoAway flips the session into draining: new streams are refused but
// existing streams may complete.
func (m *Meta) MarkGoAway() {
	m.mu.Lock()
	m.Draining = true
	m.mu.Unlock()
}

func (m *Meta) IsDraining() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Draining
}

// Session is the subset of an HTTP/2 session state the strategy inspects.
// Local window accounting and closed/destroyed flags are left to the
// adapter embedding this metadata.
type Session interface {
	Closed() bool
	Destroyed() bool
	LocalWindowSize() int32
	Ping() error
	Close() error
}

type Strategy struct {
	keepAlive   time.Duration
	pongTimeout time.Duration
}

// New returns a connpool.Strategy for HTTP/2 sessions. keepAlive defaults
// to 30s; pongTimeout defaults to keepAlive.
func New(keepAlive, pongTimeout time.Duration) *Strategy {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	if pongTimeout <= 0 {
		pongTimeout = keepAlive
	}
	return &Strategy{keepAlive: keepAlive, pongTimeout: pongTimeout}
}

func (s *Strategy) Validate(conn interface{}, _ connpool.Metadata) bool {
	sess, ok := conn.(Session)
	if !ok {
		return false
	}
	return !sess.Closed() && !sess.Destroyed() && sess.LocalWindowSize() > 0
}

func (s *Strategy) Cleanup(conn interface{}, _ connpool.Metadata) {
	if sess, ok := conn.(Session); ok {
		_ = sess.Close()
	}
}

func (s *Strategy) IsHealthy(conn interface{}, meta connpool.Metadata) bool {
	sess, ok := conn.(Session)
	if !ok {
		return false
	}
	if sess.Closed() || sess.Destroyed() {
		return false
	}

	m, ok := meta.(*Meta)
	if !ok {
		return true
	}

	m.mu.Lock()
	lastPing := m.LastPingTime
	lastPong := m.LastPongTime
	m.mu.Unlock()

	if lastPing.IsZero() {
		return true
	}

	return !lastPong.Before(lastPing) || time.Since(lastPing) < s.pongTimeout
}

// KeepAlive returns a schedule.TaskFunc pinging every live, non-draining
// session every keepAlive interval.
func (s *Strategy) KeepAlive(pool connpool.Pool) schedule.TaskFunc {
	return func(ctx context.Context) error {
		pool.Walk(func(conn interface{}, meta connpool.Metadata) bool {
			m, ok := meta.(*Meta)
			if !ok || m.IsDraining() {
				return true
			}

			sess, ok := conn.(Session)
			if !ok {
				return true
			}

			if err := sess.Ping(); err == nil {
				m.MarkPing()
			}

			return true
		})

		return nil
	}
}
