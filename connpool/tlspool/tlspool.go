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

// Package tlspool is the connpool strategy for plain TLS socket
// connections: admission requires a completed handshake, and a background
// heartbeat task evicts connections idle past the configured
// ConnectionTimeout.
package tlspool

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/nabbar/polyserve/connpool"
	"github.com/nabbar/polyserve/schedule"
)

// Meta is the tlspool connpool.Metadata: TLS version, negotiated cipher,
// peer SNI and authorization state captured at admission time.
type Meta struct {
	Version      uint16
	CipherSuite  uint16
	ServerName   string
	Authorized   bool
	AuthErr      error
	LastActivity time.Time
}

func (m *Meta) Kind() string { return "tls" }

// Conn is the subset of *tls.Conn state the strategy inspects.
type Conn interface {
	ConnectionState() tls.ConnectionState
	Close() error
}

type Strategy struct {
	mu      sync.Mutex
	timeout time.Duration
	last    map[interface{}]time.Time
}

// New returns a connpool.Strategy for TLS sockets. Register the returned
// value's Heartbeat task with a schedule.Scheduler to enforce
// connectionTimeout eviction.
func New(connectionTimeout time.Duration) *Strategy {
	if connectionTimeout <= 0 {
		connectionTimeout = 30 * time.Second
	}
	return &Strategy{timeout: connectionTimeout, last: make(map[interface{}]time.Time)}
}

func (s *Strategy) Validate(conn interface{}, meta connpool.Metadata) bool {
	c, ok := conn.(Conn)
	if !ok {
		return false
	}

	cs := c.ConnectionState()
	if !cs.HandshakeComplete {
		return false
	}

	if m, ok := meta.(*Meta); ok {
		m.Version = cs.Version
		m.CipherSuite = cs.CipherSuite
		m.ServerName = cs.ServerName
		m.Authorized = cs.HandshakeComplete
		m.LastActivity = time.Now()
	}

	s.touch(conn)
	return true
}

func (s *Strategy) Cleanup(conn interface{}, _ connpool.Metadata) {
	s.mu.Lock()
	delete(s.last, conn)
	s.mu.Unlock()

	if c, ok := conn.(Conn); ok {
		_ = c.Close()
	}
}

func (s *Strategy) IsHealthy(conn interface{}, meta connpool.Metadata) bool {
	m, ok := meta.(*Meta)
	if !ok {
		return false
	}

	s.mu.Lock()
	last, seen := s.last[conn]
	s.mu.Unlock()
	if !seen {
		last = m.LastActivity
	}

	if time.Since(last) > s.timeout {
		return false
	}

	return m.AuthErr == nil
}

func (s *Strategy) touch(conn interface{}) {
	s.mu.Lock()
	s.last[conn] = time.Now()
	s.mu.Unlock()
}

// Heartbeat returns a schedule.TaskFunc that sweeps pool for entries idle
// past the configured ConnectionTimeout, removing each with reason
// "connection_timeout".
func (s *Strategy) Heartbeat(pool connpool.Pool) schedule.TaskFunc {
	return func(ctx context.Context) error {
		var expired []interface{}

		pool.Walk(func(conn interface{}, meta connpool.Metadata) bool {
			if !s.IsHealthy(conn, meta) {
				expired = append(expired, conn)
			}
			return true
		})

		for _, conn := range expired {
			pool.RemoveConnection(conn, "connection_timeout")
		}

		return nil
	}
}
