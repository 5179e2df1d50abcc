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

// Package httpd is the plain HTTP/1.1 protocol adapter: no SSL, and a
// connection state hook that drops malformed requests by letting net/http
// close the socket rather than rendering its own error page.
package httpd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nabbar/polyserve/connpool"
	"github.com/nabbar/polyserve/schedule"
	"github.com/nabbar/polyserve/server"
)

// meta is the plain-HTTP connpool.Metadata: just activity tracking, since
// there is no TLS state to capture.
type meta struct {
	mu           sync.Mutex
	lastActivity time.Time
}

func (m *meta) Kind() string { return "http" }

func (m *meta) touch() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

func (m *meta) idleFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastActivity)
}

type plainStrategy struct {
	timeout time.Duration
}

func (s *plainStrategy) Validate(conn interface{}, md connpool.Metadata) bool {
	if _, ok := conn.(net.Conn); !ok {
		return false
	}
	if m, ok := md.(*meta); ok {
		m.touch()
	}
	return true
}

func (s *plainStrategy) Cleanup(conn interface{}, _ connpool.Metadata) {
	if c, ok := conn.(net.Conn); ok {
		_ = c.Close()
	}
}

func (s *plainStrategy) IsHealthy(_ interface{}, md connpool.Metadata) bool {
	m, ok := md.(*meta)
	if !ok {
		return false
	}
	return s.timeout <= 0 || m.idleFor() <= s.timeout
}

type Adapter struct {
	handler http.Handler
	pool    connpool.Pool
	strat   *plainStrategy

	metaMu sync.Mutex
	byConn map[net.Conn]*meta

	native *http.Server
	ln     net.Listener
}

// New returns an httpd Adapter serving handler.
func New(handler http.Handler, poolCfg connpool.Config) *Adapter {
	strat := &plainStrategy{timeout: poolCfg.ConnectionTimeout}
	return &Adapter{
		handler: handler,
		strat:   strat,
		pool:    connpool.New(strat, poolCfg),
		byConn:  make(map[net.Conn]*meta),
	}
}

func (a *Adapter) Protocol() server.Protocol { return server.ProtocolHTTP }

func (a *Adapter) CreateProtocolServer(cfg server.Config) error {
	a.native = &http.Server{
		Handler:      a.handler,
		ReadTimeout:  cfg.Pool.ConnectionTimeout,
		WriteTimeout: cfg.Pool.ConnectionTimeout,
	}
	return nil
}

func (a *Adapter) ConfigureServerOptions(cfg server.Config) error {
	if cfg.Pool.ConnectionTimeout > 0 {
		a.native.ReadTimeout = cfg.Pool.ConnectionTimeout
		a.native.WriteTimeout = cfg.Pool.ConnectionTimeout
	}
	a.native.ConnState = a.onConnState
	return nil
}

func (a *Adapter) PerformProtocolSpecificInitialization() error { return nil }

func (a *Adapter) Bind(hostname string, port int) (net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", hostname, port))
	if err != nil {
		return nil, err
	}
	a.ln = ln
	return ln, nil
}

func (a *Adapter) Serve(ln net.Listener) error {
	err := a.native.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (a *Adapter) onConnState(conn net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		m := &meta{lastActivity: time.Now()}

		a.metaMu.Lock()
		a.byConn[conn] = m
		a.metaMu.Unlock()

		a.pool.RegisterConnection(conn, m)
	case http.StateActive:
		a.metaMu.Lock()
		m := a.byConn[conn]
		a.metaMu.Unlock()
		if m != nil {
			m.touch()
		}
	case http.StateClosed, http.StateHijacked:
		a.metaMu.Lock()
		delete(a.byConn, conn)
		a.metaMu.Unlock()
		a.pool.RemoveConnection(conn, "closed")
	}
}

func (a *Adapter) StopAccepting() error {
	if a.ln != nil {
		return a.ln.Close()
	}
	return nil
}

func (a *Adapter) ForceClose() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.native.Shutdown(ctx)
}

func (a *Adapter) Pool() connpool.Pool { return a.pool }

func (a *Adapter) HealthChecks() []server.HealthCheck { return nil }

func (a *Adapter) heartbeat(ctx context.Context) error {
	var stale []interface{}

	a.pool.Walk(func(conn interface{}, md connpool.Metadata) bool {
		if !a.strat.IsHealthy(conn, md) {
			stale = append(stale, conn)
		}
		return true
	})

	for _, conn := range stale {
		a.pool.RemoveConnection(conn, "connection_timeout")
	}

	return nil
}

func (a *Adapter) RegisterTasks(sched schedule.Scheduler, serverID string) {
	sched.Register(schedule.Task{
		Name:     "httpd:" + serverID + ":heartbeat",
		Priority: 50,
		Interval: 30 * time.Second,
		Enabled:  true,
		Run:      a.heartbeat,
	})
}

func (a *Adapter) UnregisterTasks(sched schedule.Scheduler, serverID string) {
	sched.Unregister("httpd:" + serverID + ":heartbeat")
}
