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

// Package server is the protocol-agnostic server template: bind/listen,
// lifecycle, config hot-reload classification, health and metrics. The
// httpd/httpsd/http2d/wsd/grpcd adapters supply only the three hooks this
// template leaves open.
package server

import (
	"context"
	"net"
	"time"

	"github.com/nabbar/polyserve/connpool"
	"github.com/nabbar/polyserve/harnesslog"
	"github.com/nabbar/polyserve/schedule"
)

// Protocol names one of the harness's supported wire protocols.
type Protocol string

const (
	ProtocolHTTP      Protocol = "http"
	ProtocolHTTPS     Protocol = "https"
	ProtocolHTTP2     Protocol = "http2"
	ProtocolWebSocket Protocol = "websocket"
	ProtocolGRPC      Protocol = "grpc"
)

// SSLConfig carries certificate material, either as filesystem paths or as
// literal PEM strings (the server package's prefix-detection helper
// distinguishes the two, see sslmaterial.go).
type SSLConfig struct {
	Key              string
	Cert             string
	CA               string
	Mode             string
	Ciphers          []string
	SecureProtocol   string
	AllowHTTP1       bool
	MutualTLS        bool
	ClientAuthPolicy string
}

// HTTP2Settings is the HTTP/2-specific restart-classified subset of config.
type HTTP2Settings struct {
	MaxConcurrentStreams uint32
	InitialWindowSize    int32
	MaxFrameSize         uint32
}

// GRPCChannelOptions is the gRPC-specific restart-classified subset of
// config.
type GRPCChannelOptions struct {
	KeepAliveTime    time.Duration
	KeepAliveTimeout time.Duration
	MaxRecvMsgSize   int
	MaxSendMsgSize   int
}

// ExtConfig toggles the runtime-apply-classified ancillary checks.
type ExtConfig struct {
	HealthCheckEnabled  bool
	HealthCheckInterval time.Duration
	MetricsEnabled      bool
	MetricsInterval     time.Duration
}

// Config is the full server configuration snapshot.
type Config struct {
	Hostname string
	Port     int
	Protocol Protocol

	SSL   SSLConfig
	HTTP2 HTTP2Settings
	GRPC  GRPCChannelOptions
	Ext   ExtConfig
	Pool  connpool.Config

	DrainDelay        time.Duration
	ShutdownTimeout   time.Duration
	MetricsRingSize   int
	MetricsPeriod     time.Duration
}

// ChangeClass classifies the result of analyzing a proposed config update.
type ChangeClass string

const (
	ChangeNone                ChangeClass = "none"
	ChangeRuntimeApply        ChangeClass = "runtime_apply"
	ChangeCriticalNetwork     ChangeClass = "critical_network"
	ChangeSSLChanged          ChangeClass = "ssl_changed"
	ChangeH2SettingsChanged   ChangeClass = "h2_settings_changed"
	ChangeChannelOptsChanged  ChangeClass = "channel_opts_changed"
)

// RequiresRestart reports whether c mandates a graceful restart rather
// than a live attribute mutation.
func (c ChangeClass) RequiresRestart() bool {
	switch c {
	case ChangeCriticalNetwork, ChangeSSLChanged, ChangeH2SettingsChanged, ChangeChannelOptsChanged:
		return true
	}
	return false
}

// HealthCheck is one named constituent of a composite Health snapshot.
type HealthCheck struct {
	Name   string
	Status connpool.Status
	Detail string
}

// Health is the server's composed health snapshot: the fixed set plus any
// adapter-supplied protocol-specific checks, reduced to a single overall
// status by the worst-of ordering unhealthy > overloaded > degraded >
// healthy.
type Health struct {
	Status Status
	Checks []HealthCheck
}

// Status mirrors connpool.Status at the server level, plus "listening"
// framing is folded into HealthCheck entries rather than its own type.
type Status = connpool.Status

// MetricsSample is one point-in-time entry in the server's metrics ring
// buffer.
type MetricsSample struct {
	Taken       time.Time
	ActiveConns int
	Uptime      time.Duration
	Status      Status
}

// Metrics is the composite metrics snapshot keyed by server id.
type Metrics struct {
	ServerID string
	Protocol Protocol
	Pool     connpool.Metrics
	History  []MetricsSample
}

// Adapter supplies the three protocol-specific hooks the template
// delegates to, plus lifecycle primitives a concrete net listener can't
// express generically.
type Adapter interface {
	Protocol() Protocol

	// CreateProtocolServer builds the native server instance (e.g.
	// *http.Server, *grpc.Server) from cfg, applying SSL if configured.
	CreateProtocolServer(cfg Config) error

	// ConfigureServerOptions applies protocol options (timeouts, HTTP/2
	// settings, gRPC channel options) onto the already-created native
	// server.
	ConfigureServerOptions(cfg Config) error

	// PerformProtocolSpecificInitialization runs any remaining adapter
	// setup (e.g. binding the WS upgrade handler, registering gRPC
	// services) after the native server exists but before Bind.
	PerformProtocolSpecificInitialization() error

	// Bind starts accepting connections on (hostname, port). Returns the
	// listener so the template can track and later close it.
	Bind(hostname string, port int) (net.Listener, error)

	// Serve blocks, running the native server's accept loop over ln,
	// until the server is asked to stop. Implementations return nil on
	// a clean stop.
	Serve(ln net.Listener) error

	// StopAccepting closes the listening socket (or, for gRPC/WS, flips
	// the adapter's own not-accepting flag) without waiting for
	// in-flight work to finish.
	StopAccepting() error

	// ForceClose force-terminates anything StopAccepting could not drain
	// in time (native forceShutdown for gRPC, brutal listener close
	// otherwise).
	ForceClose() error

	// Pool returns the adapter's connection pool.
	Pool() connpool.Pool

	// HealthChecks returns adapter-specific health constituents beyond
	// the template's fixed set.
	HealthChecks() []HealthCheck

	// RegisterTasks registers the adapter's periodic background work
	// (pings, heartbeats) with the unified scheduler.
	RegisterTasks(sched schedule.Scheduler, serverID string)

	// UnregisterTasks removes this adapter's periodic work from sched.
	UnregisterTasks(sched schedule.Scheduler, serverID string)
}

// Server is the lifecycle contract exposed by the template, matching the
// Stoppable shape terminus and the supervisor depend on.
type Server interface {
	ID() string
	Protocol() Protocol

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error

	IsRunning() bool
	Uptime() time.Duration

	GetHealth() Health
	GetMetrics() Metrics

	// UpdateConfig analyzes partial, applies it at runtime or triggers a
	// restart per the classification, and returns the classification
	// observed.
	UpdateConfig(ctx context.Context, partial Config) (ChangeClass, error)
}

// ListenCallback is invoked once, after a successful bind, with the
// server's assigned id.
type ListenCallback func(serverID string)

// New returns a Server wrapping adapter, logging through log and
// registering periodic work with sched.
func New(adapter Adapter, cfg Config, sched schedule.Scheduler, log harnesslog.Logger, cb ListenCallback) Server {
	return newServer(adapter, cfg, sched, log, cb)
}
