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

package supervisor

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nabbar/polyserve/server"
)

func noCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
}

func (s *supervisor) findByID(id string) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.entries {
		if s.entries[i].Server.ID() == id {
			return &s.entries[i]
		}
	}
	return nil
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Servers   map[string]interface{} `json:"servers"`
}

func (s *supervisor) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		noCache(w)

		id := r.URL.Query().Get("server")
		detailed := r.URL.Query().Get("detailed") == "true"

		if id != "" {
			e := s.findByID(id)
			if e == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			h := e.Server.GetHealth()
			resp := healthResponse{
				Status:    string(h.Status),
				Timestamp: time.Now(),
				Servers:   map[string]interface{}{id: healthEntryValue(h, detailed)},
			}
			writeJSONWithStatus(w, resp, statusCode(h.Status))
			return
		}

		entries := s.Servers()
		servers := make(map[string]interface{}, len(entries))
		worst := server.Status("healthy")

		for _, e := range entries {
			h := e.Server.GetHealth()
			servers[e.Server.ID()] = healthEntryValue(h, detailed)
			if rank(h.Status) > rank(worst) {
				worst = h.Status
			}
		}

		resp := healthResponse{
			Status:    string(worst),
			Timestamp: time.Now(),
			Servers:   servers,
		}
		writeJSONWithStatus(w, resp, statusCode(worst))
	}
}

func healthEntryValue(h server.Health, detailed bool) interface{} {
	if !detailed {
		return string(h.Status)
	}
	return h
}

var statusOrder = map[server.Status]int{
	"unhealthy":  3,
	"overloaded": 2,
	"degraded":   1,
	"healthy":    0,
}

func rank(s server.Status) int {
	return statusOrder[s]
}

func statusCode(s server.Status) int {
	if s == "unhealthy" {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeJSONWithStatus(w http.ResponseWriter, v interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type serversResponse struct {
	Count   int              `json:"count"`
	Servers []serversSummary `json:"servers"`
}

type serversSummary struct {
	ID               string  `json:"id"`
	Protocol         string  `json:"protocol"`
	Status           string  `json:"status"`
	HealthStatus     string  `json:"healthStatus"`
	ActiveConnections int    `json:"activeConnections"`
	Uptime           float64 `json:"uptime"`
}

func (s *supervisor) ServersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		noCache(w)

		entries := s.Servers()
		out := make([]serversSummary, 0, len(entries))

		for _, e := range entries {
			h := e.Server.GetHealth()
			m := e.Server.GetMetrics()

			running := "stopped"
			if e.Server.IsRunning() {
				running = "running"
			}

			out = append(out, serversSummary{
				ID:                e.Server.ID(),
				Protocol:          string(e.Server.Protocol()),
				Status:            running,
				HealthStatus:      string(h.Status),
				ActiveConnections: m.Pool.Health.ActiveCount,
				Uptime:            e.Server.Uptime().Seconds(),
			})
		}

		writeJSONWithStatus(w, serversResponse{Count: len(out), Servers: out}, http.StatusOK)
	}
}

func (s *supervisor) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		noCache(w)

		var entries []Entry
		if id := r.URL.Query().Get("server"); id != "" {
			e := s.findByID(id)
			if e == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			entries = []Entry{*e}
		} else {
			entries = s.Servers()
		}

		if r.URL.Query().Get("format") == "prometheus" {
			s.writePrometheus(w, r, entries)
			return
		}

		s.writeJSONMetrics(w, entries, r.URL.Query().Get("history") == "true")
	}
}

type metricsResponse struct {
	Servers []interface{} `json:"servers"`
}

func (s *supervisor) writeJSONMetrics(w http.ResponseWriter, entries []Entry, history bool) {
	out := make([]interface{}, 0, len(entries))

	for _, e := range entries {
		m := e.Server.GetMetrics()
		if !history {
			m.History = nil
		}
		out = append(out, m)
	}

	writeJSONWithStatus(w, metricsResponse{Servers: out}, http.StatusOK)
}

func (s *supervisor) writePrometheus(w http.ResponseWriter, r *http.Request, entries []Entry) {
	reg := prometheus.NewRegistry()

	uptime := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "koatty_uptime_seconds",
		Help: "Server uptime in seconds.",
	}, []string{"server", "protocol"})

	conns := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "koatty_connections_active",
		Help: "Active connection count.",
	}, []string{"server", "protocol"})

	memory := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "koatty_memory_usage_bytes",
		Help: "Go heap bytes allocated (runtime.MemStats.Alloc).",
	}, []string{"server", "protocol"})

	requests := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "koatty_requests_total",
		Help: "Total admitted connections/calls.",
	}, []string{"server", "protocol"})

	reg.MustRegister(uptime, conns, memory, requests)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	for _, e := range entries {
		m := e.Server.GetMetrics()
		labels := prometheus.Labels{"server": e.Server.ID(), "protocol": string(e.Server.Protocol())}

		uptime.With(labels).Set(e.Server.Uptime().Seconds())
		conns.With(labels).Set(float64(m.Pool.Health.ActiveCount))
		memory.With(labels).Set(float64(mem.Alloc))
		requests.With(labels).Set(float64(m.Pool.Admitted))
	}

	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
