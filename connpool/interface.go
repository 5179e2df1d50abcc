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

// Package connpool is the protocol-agnostic connection pool base that the
// tlspool, h2pool, wspool and grpcpool strategies build on. It owns
// admission, the event bus, health rollup and metrics; strategies own only
// validate/cleanup/health-check semantics for their own connection shape.
package connpool

import (
	"context"
	"time"
)

// Metadata is the typed tagged-union carried alongside a registered
// connection. Each strategy package defines its own concrete type
// satisfying this interface.
type Metadata interface {
	// Kind names the owning protocol strategy, e.g. "tls", "http2",
	// "websocket", "grpc".
	Kind() string
}

// Strategy supplies the protocol-specific behavior the abstract base
// delegates to: whether a connection is admissible, how to tear one down,
// and whether one is currently healthy.
type Strategy interface {
	Validate(conn interface{}, meta Metadata) bool
	Cleanup(conn interface{}, meta Metadata)
	IsHealthy(conn interface{}, meta Metadata) bool
}

// Event identifies a pool lifecycle occurrence dispatched to listeners.
type Event string

const (
	EventConnectionAdded     Event = "CONNECTION_ADDED"
	EventConnectionRemoved   Event = "CONNECTION_REMOVED"
	EventConnectionTimeout   Event = "CONNECTION_TIMEOUT"
	EventConnectionError     Event = "CONNECTION_ERROR"
	EventPoolLimitReached    Event = "POOL_LIMIT_REACHED"
	EventHealthStatusChanged Event = "HEALTH_STATUS_CHANGED"
)

// Listener receives a pool Event along with the connection handle involved,
// if any. Panics and errors are caught by the pool and logged, never
// propagated to other listeners.
type Listener func(event Event, conn interface{}, meta Metadata)

// Status is the derived health classification of the pool as a whole.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusOverloaded Status = "overloaded"
	StatusUnhealthy Status = "unhealthy"
)

// Health is a point-in-time snapshot of pool health.
type Health struct {
	Status           Status
	ActiveCount      int
	MaxConnections   int
	UtilizationRatio float64
}

// Metrics is the composite metrics surface of a pool.
type Metrics struct {
	Config    Config
	Health    Health
	Uptime    time.Duration
	Admitted  uint64
	Rejected  uint64
	Removed   uint64
}

// Config is the mutable pool configuration. MaxConnections <= 0 means
// unlimited.
type Config struct {
	MaxConnections    int
	ConnectionTimeout time.Duration
	PingInterval      time.Duration
	HeartbeatInterval time.Duration
}

// Pool is the protocol-agnostic connection pool contract shared by every
// strategy.
type Pool interface {
	CanAcceptConnection() bool

	// RegisterConnection admits conn iff admission is open and the
	// strategy validates it. Returns false on limit or validation
	// failure; never panics.
	RegisterConnection(conn interface{}, meta Metadata) bool

	// RemoveConnection is an atomic, idempotent single-shot removal. A
	// no-op if conn is not currently registered.
	RemoveConnection(conn interface{}, reason string)

	GetActiveConnectionCount() int

	IsConnectionHealthy(conn interface{}) bool

	// Walk calls fn for every currently registered entry, in no
	// particular order, stopping early if fn returns false. Used by
	// strategy background tasks to sweep for timeouts.
	Walk(fn func(conn interface{}, meta Metadata) bool)

	// CloseAllConnections races a graceful close of every entry against
	// timeout, then force-cleans any stragglers.
	CloseAllConnections(ctx context.Context, timeout time.Duration)

	GetHealth() Health
	GetMetrics() Metrics

	// UpdateConfig rejects partial when any of its fields is negative and,
	// otherwise, replaces the live snapshot with partial as a whole. Fields
	// are not merged with the current configuration: a zero field in
	// partial replaces the current value. Returns false, keeping the
	// current snapshot, when validation fails.
	UpdateConfig(partial Config) bool

	On(event Event, l Listener) int
	Off(event Event, key int)

	// Destroy calls CloseAllConnections with a 5s timeout and clears all
	// listeners. Idempotent.
	Destroy(ctx context.Context)
}

// New returns a Pool delegating protocol-specific decisions to strategy.
func New(strategy Strategy, cfg Config) Pool {
	return newPool(strategy, cfg)
}
