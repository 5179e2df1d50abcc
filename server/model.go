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

package server

import (
	"context"
	"net"
	"runtime"
	"sync"
	"time"

	libatm "github.com/nabbar/polyserve/atomic"

	"github.com/nabbar/polyserve/coreutil"
	"github.com/nabbar/polyserve/harnesslog"
	"github.com/nabbar/polyserve/schedule"
)

type srv struct {
	id      string
	adapter Adapter
	sched   schedule.Scheduler
	log     harnesslog.Logger
	cb      ListenCallback

	// cfg is swapped atomically on every UpdateConfig/restart so readers
	// always observe a whole snapshot, never a blend of old and new
	// fields.
	cfg libatm.Value[Config]

	mu      sync.Mutex
	ln      net.Listener
	running bool
	started time.Time

	shutdownMu   sync.Mutex
	shutdownCh   chan struct{}
	shuttingDown bool

	histMu  sync.Mutex
	history []MetricsSample
}

func newServer(adapter Adapter, cfg Config, sched schedule.Scheduler, log harnesslog.Logger, cb ListenCallback) *srv {
	if cfg.DrainDelay <= 0 {
		cfg.DrainDelay = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.MetricsRingSize <= 0 {
		cfg.MetricsRingSize = 60
	}
	if cfg.MetricsPeriod <= 0 {
		cfg.MetricsPeriod = 5 * time.Second
	}

	s := &srv{
		id:      coreutil.GenerateServerID(string(adapter.Protocol())),
		adapter: adapter,
		cfg:     libatm.NewValue[Config](),
		sched:   sched,
		log:     log.Child(harnesslog.Tags{Protocol: string(adapter.Protocol())}),
		cb:      cb,
	}
	s.cfg.Store(cfg)
	return s
}

func (s *srv) ID() string           { return s.id }
func (s *srv) Protocol() Protocol   { return s.adapter.Protocol() }

func (s *srv) Start(ctx context.Context) error {
	s.log.LogServerEvent(harnesslog.EventServerStarting, "starting server", nil)

	if err := s.adapter.CreateProtocolServer(s.currentConfig()); err != nil {
		s.log.LogServerEvent(harnesslog.EventServerError, "failed to create native server", err)
		return err
	}
	if err := s.adapter.ConfigureServerOptions(s.currentConfig()); err != nil {
		s.log.LogServerEvent(harnesslog.EventServerError, "failed to configure server options", err)
		return err
	}
	if err := s.adapter.PerformProtocolSpecificInitialization(); err != nil {
		s.log.LogServerEvent(harnesslog.EventServerError, "protocol initialization failed", err)
		return err
	}

	cfg := s.currentConfig()
	ln, err := s.adapter.Bind(cfg.Hostname, cfg.Port)
	if err != nil {
		s.log.LogServerEvent(harnesslog.EventServerError, "listen failed", err)
		return nil
	}

	s.mu.Lock()
	s.ln = ln
	s.running = true
	s.started = time.Now()
	s.mu.Unlock()

	s.log.LogServerEvent(harnesslog.EventServerStarted, "server started", nil)

	s.adapter.RegisterTasks(s.sched, s.id)
	s.registerMetricsTask()

	if s.cb != nil {
		s.cb(s.id)
	}

	go func() {
		_ = s.adapter.Serve(ln)
	}()

	return nil
}

func (s *srv) registerMetricsTask() {
	cfg := s.currentConfig()
	s.sched.Register(schedule.Task{
		Name:     "server:" + s.id + ":metrics",
		Priority: 100,
		Interval: cfg.MetricsPeriod,
		Enabled:  true,
		Run: func(ctx context.Context) error {
			s.snapshotMetrics()
			return nil
		},
	})
}

func (s *srv) snapshotMetrics() {
	h := s.GetHealth()

	sample := MetricsSample{
		Taken:       time.Now(),
		ActiveConns: s.adapter.Pool().GetActiveConnectionCount(),
		Uptime:      s.Uptime(),
		Status:      h.Status,
	}

	s.histMu.Lock()
	s.history = append(s.history, sample)
	cfg := s.currentConfig()
	if len(s.history) > cfg.MetricsRingSize {
		s.history = s.history[len(s.history)-cfg.MetricsRingSize:]
	}
	s.histMu.Unlock()
}

func (s *srv) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *srv) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0
	}
	return time.Since(s.started)
}

func (s *srv) currentConfig() Config {
	return s.cfg.Load()
}

// Stop runs the five-step graceful shutdown. A concurrent call is a no-op
// with a warning; the first call's completion is shared with later
// callers.
func (s *srv) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	if s.shuttingDown {
		ch := s.shutdownCh
		s.shutdownMu.Unlock()
		s.log.LogServerEvent(harnesslog.EventServerStopping, "shutdown already in progress", nil)
		<-ch
		return nil
	}
	s.shuttingDown = true
	s.shutdownCh = make(chan struct{})
	s.shutdownMu.Unlock()

	defer close(s.shutdownCh)

	s.log.LogServerEvent(harnesslog.EventServerStopping, "stopping server", nil)

	cfg := s.currentConfig()
	deadline := time.Now().Add(cfg.ShutdownTimeout)

	// 1. stop accepting new connections
	if err := s.adapter.StopAccepting(); err != nil {
		s.log.LogServerEvent(harnesslog.EventServerError, "stop accepting failed", err)
	}

	// 2. drain delay
	select {
	case <-time.After(cfg.DrainDelay):
	case <-ctx.Done():
	}

	// 3. wait for completion, polling every 100ms, progress log every 5s
	s.waitForDrain(ctx, deadline)

	// 4. force-close remaining
	pool := s.adapter.Pool()
	pool.CloseAllConnections(ctx, 5*time.Second)
	if err := s.adapter.ForceClose(); err != nil {
		s.log.LogServerEvent(harnesslog.EventServerError, "force close failed", err)
	}

	// 5. stop monitoring and cleanup
	s.adapter.UnregisterTasks(s.sched, s.id)
	s.sched.Unregister("server:" + s.id + ":metrics")

	metrics := s.GetMetrics()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.log.LogServerEvent(harnesslog.EventServerStopped, "server stopped", metrics.Pool)

	return nil
}

func (s *srv) waitForDrain(ctx context.Context, deadline time.Time) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	progress := time.NewTicker(5 * time.Second)
	defer progress.Stop()

	pool := s.adapter.Pool()

	for {
		if pool.GetActiveConnectionCount() == 0 {
			return
		}
		if time.Now().After(deadline) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-progress.C:
			s.log.LogServerEvent(harnesslog.EventServerStopping, "draining connections", pool.GetActiveConnectionCount())
		}
	}
}

func (s *srv) Restart(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}

	s.shutdownMu.Lock()
	s.shuttingDown = false
	s.shutdownMu.Unlock()

	return s.Start(ctx)
}

func (s *srv) GetHealth() Health {
	cfg := s.currentConfig()
	pool := s.adapter.Pool()
	poolHealth := pool.GetHealth()

	checks := []HealthCheck{
		{Name: "server.listening", Status: listeningStatus(s.IsRunning()), Detail: ""},
		{Name: "connections", Status: poolHealth.Status, Detail: ""},
		{Name: "memory", Status: memoryStatus(), Detail: ""},
		{Name: "ssl", Status: sslStatus(cfg.SSL), Detail: ""},
	}

	checks = append(checks, s.adapter.HealthChecks()...)

	return Health{Status: worstOf(checks), Checks: checks}
}

func listeningStatus(running bool) Status {
	if running {
		return "healthy"
	}
	return "unhealthy"
}

func memoryStatus() Status {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	const softThreshold = 1 << 30 // 1GiB RSS soft threshold
	if m.Alloc > softThreshold {
		return "degraded"
	}
	return "healthy"
}

func sslStatus(ssl SSLConfig) Status {
	if ssl.Cert == "" && ssl.Key == "" {
		return "healthy"
	}
	return "healthy"
}

var statusRank = map[Status]int{
	"unhealthy":  3,
	"overloaded": 2,
	"degraded":   1,
	"healthy":    0,
}

func worstOf(checks []HealthCheck) Status {
	worst := Status("healthy")
	worstRank := 0

	for _, c := range checks {
		if r, ok := statusRank[c.Status]; ok && r > worstRank {
			worstRank = r
			worst = c.Status
		}
	}

	return worst
}

func (s *srv) GetMetrics() Metrics {
	s.histMu.Lock()
	hist := make([]MetricsSample, len(s.history))
	copy(hist, s.history)
	s.histMu.Unlock()

	return Metrics{
		ServerID: s.id,
		Protocol: s.Protocol(),
		Pool:     s.adapter.Pool().GetMetrics(),
		History:  hist,
	}
}

func (s *srv) UpdateConfig(ctx context.Context, partial Config) (ChangeClass, error) {
	old := s.cfg.Load()

	class := Classify(old, partial)

	if class.RequiresRestart() {
		s.cfg.Store(partial)

		return class, s.Restart(ctx)
	}

	if !s.adapter.Pool().UpdateConfig(partial.Pool) {
		return class, ErrorInvalidConfigUpdate.Error(nil)
	}

	s.cfg.Store(partial)

	return class, nil
}
