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

// Package httpsd is the HTTPS protocol adapter: TLS-terminated HTTP/1.1,
// admitting each accepted socket to the tlspool once its handshake
// completes.
package httpsd

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nabbar/polyserve/connpool"
	"github.com/nabbar/polyserve/connpool/tlspool"
	"github.com/nabbar/polyserve/schedule"
	"github.com/nabbar/polyserve/server"
)

type Adapter struct {
	handler   http.Handler
	pool      connpool.Pool
	strat     *tlspool.Strategy
	tlsConfig *tls.Config

	seenMu sync.Mutex
	seen   map[*tls.Conn]bool

	native *http.Server
	ln     net.Listener
}

// New returns an httpsd Adapter serving handler behind tlsConfig.
func New(handler http.Handler, tlsConfig *tls.Config, poolCfg connpool.Config) *Adapter {
	strat := tlspool.New(poolCfg.ConnectionTimeout)
	return &Adapter{
		handler:   handler,
		tlsConfig: tlsConfig,
		strat:     strat,
		pool:      connpool.New(strat, poolCfg),
		seen:      make(map[*tls.Conn]bool),
	}
}

func (a *Adapter) Protocol() server.Protocol { return server.ProtocolHTTPS }

func (a *Adapter) CreateProtocolServer(cfg server.Config) error {
	a.native = &http.Server{
		Handler:      a.handler,
		TLSConfig:    a.tlsConfig,
		ReadTimeout:  cfg.Pool.ConnectionTimeout,
		WriteTimeout: cfg.Pool.ConnectionTimeout,
		ErrorLog:     nil,
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
	a.ln = tls.NewListener(ln, a.tlsConfig)
	return a.ln, nil
}

func (a *Adapter) Serve(ln net.Listener) error {
	err := a.native.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (a *Adapter) onConnState(conn net.Conn, state http.ConnState) {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return
	}

	switch state {
	case http.StateActive:
		a.seenMu.Lock()
		already := a.seen[tlsConn]
		if !already {
			a.seen[tlsConn] = true
		}
		a.seenMu.Unlock()

		if !already {
			a.pool.RegisterConnection(tlsConn, &tlspool.Meta{})
		}
	case http.StateClosed, http.StateHijacked:
		a.seenMu.Lock()
		delete(a.seen, tlsConn)
		a.seenMu.Unlock()

		a.pool.RemoveConnection(tlsConn, "closed")
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

func (a *Adapter) RegisterTasks(sched schedule.Scheduler, serverID string) {
	sched.Register(schedule.Task{
		Name:     "httpsd:" + serverID + ":heartbeat",
		Priority: 50,
		Interval: 30 * time.Second,
		Enabled:  true,
		Run:      a.strat.Heartbeat(a.pool),
	})
}

func (a *Adapter) UnregisterTasks(sched schedule.Scheduler, serverID string) {
	sched.Unregister("httpsd:" + serverID + ":heartbeat")
}
