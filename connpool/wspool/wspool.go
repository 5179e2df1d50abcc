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

// Package wspool is the connpool strategy for accepted WebSocket upgrades.
// The server never originates connections here, only registers them; a
// ping task marks entries not-alive and a heartbeat task sweeps entries
// that never answered.
package wspool

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nabbar/polyserve/connpool"
	"github.com/nabbar/polyserve/schedule"
)

// Close codes used for orderly/overload/failure closure, per RFC 6455.
const (
	CloseNormal       = websocket.CloseNormalClosure    // 1000
	CloseTryAgainLater = websocket.CloseTryAgainLater   // 1013
	CloseInternalError = websocket.CloseInternalServerErr // 1011
)

// Meta is the wspool connpool.Metadata for one accepted upgrade.
type Meta struct {
	mu           sync.Mutex
	IsAlive      bool
	LastPongTime time.Time
}

func (m *Meta) Kind() string { return "websocket" }

func (m *Meta) MarkPing() {
	m.mu.Lock()
	m.IsAlive = false
	m.mu.Unlock()
}

func (m *Meta) MarkPong() {
	m.mu.Lock()
	m.IsAlive = true
	m.mu.Unlock()
}

func (m *Meta) alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.IsAlive
}

// Conn is the subset of *websocket.Conn the strategy uses.
type Conn interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type Strategy struct {
	pingInterval      time.Duration
	heartbeatInterval time.Duration
}

// New returns a connpool.Strategy for WebSocket connections. pingInterval
// and heartbeatInterval default to 30s and 60s respectively.
func New(pingInterval, heartbeatInterval time.Duration) *Strategy {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = 60 * time.Second
	}
	return &Strategy{pingInterval: pingInterval, heartbeatInterval: heartbeatInterval}
}

// Validate always admits an already-accepted upgrade; overload rejection
// is handled by the pool's own admission check before Validate is called.
func (s *Strategy) Validate(conn interface{}, meta connpool.Metadata) bool {
	if _, ok := conn.(Conn); !ok {
		return false
	}
	if m, ok := meta.(*Meta); ok {
		m.mu.Lock()
		m.IsAlive = true
		m.mu.Unlock()
	}
	return true
}

func (s *Strategy) Cleanup(conn interface{}, _ connpool.Metadata) {
	if c, ok := conn.(Conn); ok {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseNormal, "Connection pool cleanup"),
			time.Now().Add(time.Second))
		_ = c.Close()
	}
}

func (s *Strategy) IsHealthy(_ interface{}, meta connpool.Metadata) bool {
	m, ok := meta.(*Meta)
	if !ok {
		return false
	}
	return m.alive()
}

// Ping returns a schedule.TaskFunc sending a WS ping to every entry and
// clearing its isAlive flag; the matching pong handler on the connection's
// own read loop must call meta.MarkPong.
func (s *Strategy) Ping(pool connpool.Pool) schedule.TaskFunc {
	return func(ctx context.Context) error {
		pool.Walk(func(conn interface{}, meta connpool.Metadata) bool {
			c, ok := conn.(Conn)
			if !ok {
				return true
			}
			m, ok := meta.(*Meta)
			if !ok {
				return true
			}

			m.MarkPing()
			_ = c.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))

			return true
		})
		return nil
	}
}

// Heartbeat returns a schedule.TaskFunc removing entries still not-alive
// since the last ping, with reason "dead_connection".
func (s *Strategy) Heartbeat(pool connpool.Pool) schedule.TaskFunc {
	return func(ctx context.Context) error {
		var dead []interface{}

		pool.Walk(func(conn interface{}, meta connpool.Metadata) bool {
			if !s.IsHealthy(conn, meta) {
				dead = append(dead, conn)
			}
			return true
		})

		for _, conn := range dead {
			pool.RemoveConnection(conn, "dead_connection")
		}

		return nil
	}
}
