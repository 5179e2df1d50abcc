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

// Package grpcd is the gRPC protocol adapter. Channel options (keepalive,
// message sizes, connection age) are derived from pool config; each
// registered service method is wrapped to generate a call-id, admit to the
// pool, forward the call, and release exactly once.
package grpcd

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"

	"github.com/nabbar/polyserve/connpool"
	"github.com/nabbar/polyserve/connpool/grpcpool"
	"github.com/nabbar/polyserve/coreutil"
	"github.com/nabbar/polyserve/schedule"
	"github.com/nabbar/polyserve/server"
)

// call is the grpcpool.Call satisfied by one in-flight logical call.
type call struct {
	done bool
}

func (c *call) Done() bool { return c.done }

type Adapter struct {
	tlsConfig *tls.Config
	register  func(*grpc.Server)

	pool  connpool.Pool
	strat *grpcpool.Strategy

	native *grpc.Server
	ln     net.Listener
}

// New returns a grpcd Adapter. register is called once the native
// *grpc.Server exists, to register the application's service
// implementations via the interceptor chain this adapter installs.
func New(tlsConfig *tls.Config, register func(*grpc.Server), poolCfg connpool.Config) *Adapter {
	strat := grpcpool.New()
	return &Adapter{
		tlsConfig: tlsConfig,
		register:  register,
		strat:     strat,
		pool:      connpool.New(strat, poolCfg),
	}
}

func (a *Adapter) Protocol() server.Protocol { return server.ProtocolGRPC }

func (a *Adapter) CreateProtocolServer(cfg server.Config) error {
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:                  cfg.GRPC.KeepAliveTime,
			Timeout:               cfg.GRPC.KeepAliveTimeout,
			MaxConnectionIdle:     300 * time.Second,
			MaxConnectionAge:      3600 * time.Second,
			MaxConnectionAgeGrace: 30 * time.Second,
		}),
		grpc.UnaryInterceptor(a.unaryInterceptor),
		grpc.StreamInterceptor(a.streamInterceptor),
	}

	if cfg.GRPC.MaxRecvMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(cfg.GRPC.MaxRecvMsgSize))
	}
	if cfg.GRPC.MaxSendMsgSize > 0 {
		opts = append(opts, grpc.MaxSendMsgSize(cfg.GRPC.MaxSendMsgSize))
	}
	if a.tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(a.tlsConfig)))
	}

	a.native = grpc.NewServer(opts...)
	a.strat.SetForceShutdown(a.native.Stop)

	return nil
}

func (a *Adapter) ConfigureServerOptions(cfg server.Config) error { return nil }

func (a *Adapter) PerformProtocolSpecificInitialization() error {
	if a.register != nil {
		a.register(a.native)
	}
	return nil
}

// unaryInterceptor generates a call-id, admits the call to the pool,
// forwards to handler, and releases on completion exactly once.
func (a *Adapter) unaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	callID := coreutil.GenerateServerID("grpc-call")
	c := &call{}

	if !a.pool.RegisterConnection(callID, &grpcpool.Meta{Method: info.FullMethod}) {
		return nil, fmt.Errorf("call rejected: pool overloaded or draining")
	}
	defer func() {
		c.done = true
		a.pool.RemoveConnection(callID, "completed")
	}()

	return handler(ctx, req)
}

func (a *Adapter) streamInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	callID := coreutil.GenerateServerID("grpc-stream")
	c := &call{}

	if !a.pool.RegisterConnection(callID, &grpcpool.Meta{Method: info.FullMethod}) {
		return fmt.Errorf("call rejected: pool overloaded or draining")
	}
	defer func() {
		c.done = true
		a.pool.RemoveConnection(callID, "completed")
	}()

	return handler(srv, ss)
}

func (a *Adapter) Bind(hostname string, port int) (net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", hostname, port))
	if err != nil {
		return nil, err
	}
	a.ln = ln
	return ln, nil
}

func (a *Adapter) Serve(ln net.Listener) error {
	return a.native.Serve(ln)
}

// StopAccepting flips the strategy's draining flag; gRPC exposes no clean
// stop-accepting hook short of GracefulStop, which this adapter reserves
// for ForceClose's fallback path.
func (a *Adapter) StopAccepting() error {
	a.strat.Drain()
	return nil
}

func (a *Adapter) ForceClose() error {
	a.strat.ForceShutdown()
	return nil
}

func (a *Adapter) Pool() connpool.Pool { return a.pool }

func (a *Adapter) HealthChecks() []server.HealthCheck { return nil }

func (a *Adapter) RegisterTasks(sched schedule.Scheduler, serverID string) {}

func (a *Adapter) UnregisterTasks(sched schedule.Scheduler, serverID string) {}
