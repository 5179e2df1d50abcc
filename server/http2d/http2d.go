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

// Package http2d is the HTTP/2 protocol adapter: HTTPS plus an
// http2.Server configured on the native *http.Server, with allowHTTP1
// defaulting to true as the teacher's httpserver does for its h2 mode.
package http2d

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/nabbar/polyserve/connpool"
	"github.com/nabbar/polyserve/connpool/h2pool"
	"github.com/nabbar/polyserve/schedule"
	"github.com/nabbar/polyserve/server"
)

type Adapter struct {
	handler    http.Handler
	pool       connpool.Pool
	strat      *h2pool.Strategy
	tlsConfig  *tls.Config
	allowHTTP1 bool

	native *http.Server
	h2     *http2.Server
	ln     net.Listener
}

// New returns an http2d Adapter serving handler behind tlsConfig.
func New(handler http.Handler, tlsConfig *tls.Config, allowHTTP1 bool, poolCfg connpool.Config) *Adapter {
	strat := h2pool.New(poolCfg.PingInterval, poolCfg.ConnectionTimeout)
	return &Adapter{
		handler:    handler,
		tlsConfig:  tlsConfig,
		allowHTTP1: allowHTTP1,
		strat:      strat,
		pool:       connpool.New(strat, poolCfg),
	}
}

func (a *Adapter) Protocol() server.Protocol { return server.ProtocolHTTP2 }

func (a *Adapter) CreateProtocolServer(cfg server.Config) error {
	a.native = &http.Server{
		Handler:      a.handler,
		TLSConfig:    a.tlsConfig,
		ReadTimeout:  cfg.Pool.ConnectionTimeout,
		WriteTimeout: cfg.Pool.ConnectionTimeout,
	}

	a.h2 = &http2.Server{
		MaxConcurrentStreams: cfg.HTTP2.MaxConcurrentStreams,
		MaxReadFrameSize:     cfg.HTTP2.MaxFrameSize,
	}

	return http2.ConfigureServer(a.native, a.h2)
}

func (a *Adapter) ConfigureServerOptions(cfg server.Config) error {
	if !a.allowHTTP1 && a.tlsConfig != nil {
		a.tlsConfig.NextProtos = []string{"h2"}
	}
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
		Name:     "http2d:" + serverID + ":keepalive",
		Priority: 50,
		Interval: 30 * time.Second,
		Enabled:  true,
		Run:      a.strat.KeepAlive(a.pool),
	})
}

func (a *Adapter) UnregisterTasks(sched schedule.Scheduler, serverID string) {
	sched.Unregister("http2d:" + serverID + ":keepalive")
}
