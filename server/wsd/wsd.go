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

// Package wsd is the WebSocket protocol adapter. It composes an HTTP(S)
// listener in no-server mode: the only route is the upgrade endpoint, which
// performs the handshake and forwards the accepted connection to the pool.
package wsd

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nabbar/polyserve/connpool"
	"github.com/nabbar/polyserve/connpool/wspool"
	"github.com/nabbar/polyserve/schedule"
	"github.com/nabbar/polyserve/server"
)

type Adapter struct {
	path      string
	tlsConfig *tls.Config
	pool      connpool.Pool
	strat     *wspool.Strategy
	upgrader  websocket.Upgrader
	onMessage func(conn *websocket.Conn, messageType int, data []byte)

	native *http.Server
	mux    *http.ServeMux
	ln     net.Listener
}

// New returns a wsd Adapter accepting upgrades at path. tlsConfig may be
// nil for plain ws://.
func New(path string, tlsConfig *tls.Config, poolCfg connpool.Config, onMessage func(conn *websocket.Conn, messageType int, data []byte)) *Adapter {
	strat := wspool.New(poolCfg.PingInterval, poolCfg.HeartbeatInterval)
	return &Adapter{
		path:      path,
		tlsConfig: tlsConfig,
		strat:     strat,
		pool:      connpool.New(strat, poolCfg),
		onMessage: onMessage,
		upgrader:  websocket.Upgrader{},
	}
}

func (a *Adapter) Protocol() server.Protocol { return server.ProtocolWebSocket }

func (a *Adapter) CreateProtocolServer(cfg server.Config) error {
	a.mux = http.NewServeMux()
	a.mux.HandleFunc(a.path, a.handleUpgrade)

	a.native = &http.Server{
		Handler:   a.mux,
		TLSConfig: a.tlsConfig,
	}
	return nil
}

func (a *Adapter) ConfigureServerOptions(cfg server.Config) error { return nil }

func (a *Adapter) PerformProtocolSpecificInitialization() error { return nil }

func (a *Adapter) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !a.pool.CanAcceptConnection() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m := &wspool.Meta{}
	conn.SetPongHandler(func(string) error {
		m.MarkPong()
		return nil
	})

	if !a.pool.RegisterConnection(conn, m) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(wspool.CloseTryAgainLater, "pool overloaded"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	go a.readLoop(conn)
}

func (a *Adapter) readLoop(conn *websocket.Conn) {
	defer a.pool.RemoveConnection(conn, "read_loop_exit")

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if a.onMessage != nil {
			a.onMessage(conn, mt, data)
		}
	}
}

func (a *Adapter) Bind(hostname string, port int) (net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", hostname, port))
	if err != nil {
		return nil, err
	}
	if a.tlsConfig != nil {
		ln = tls.NewListener(ln, a.tlsConfig)
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
		Name:     "wsd:" + serverID + ":ping",
		Priority: 40,
		Interval: 30 * time.Second,
		Enabled:  true,
		Run:      a.strat.Ping(a.pool),
	})
	sched.Register(schedule.Task{
		Name:     "wsd:" + serverID + ":heartbeat",
		Priority: 50,
		Interval: 60 * time.Second,
		Enabled:  true,
		Run:      a.strat.Heartbeat(a.pool),
	})
}

func (a *Adapter) UnregisterTasks(sched schedule.Scheduler, serverID string) {
	sched.Unregister("wsd:" + serverID + ":ping")
	sched.Unregister("wsd:" + serverID + ":heartbeat")
}
