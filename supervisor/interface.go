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

// Package supervisor fans a protocol set out across sequential ports
// (base+i) and exposes the harness's /health, /metrics and /servers
// endpoints over a sidecar HTTP port.
package supervisor

import (
	"context"
	"net/http"

	"github.com/nabbar/polyserve/server"
)

// Entry binds one protocol to its adapter-constructed server and assigned
// port.
type Entry struct {
	Server server.Server
	Port   int
}

// Supervisor fans Start/Stop out across every registered server.
type Supervisor interface {
	// Start starts every registered server concurrently. Errors from any
	// child are collected and reported; they do not prevent other
	// children from starting.
	Start(ctx context.Context) []error

	// Stop stops every registered server concurrently, invokes cb once
	// after all children have stopped, and returns the collected errors.
	Stop(ctx context.Context, cb func()) []error

	// GetServer returns the server bound to protocol at port, or nil.
	GetServer(protocol server.Protocol, port int) server.Server

	// Servers returns every registered entry.
	Servers() []Entry

	// HealthHandler is the /health route handler.
	HealthHandler() http.HandlerFunc

	// MetricsHandler is the /metrics route handler.
	MetricsHandler() http.HandlerFunc

	// ServersHandler is the /servers route handler.
	ServersHandler() http.HandlerFunc
}

// New returns a Supervisor owning entries, whose ports were already
// assigned by the caller via NewEntries.
func New(entries []Entry) Supervisor {
	return &supervisor{entries: entries}
}

// NewEntries builds one Entry per (protocol, adapter) pair, assigning
// sequential ports starting at basePort.
func NewEntries(basePort int, build func(protocol server.Protocol, port int) server.Server, protocols []server.Protocol) []Entry {
	entries := make([]Entry, 0, len(protocols))

	for i, p := range protocols {
		port := basePort + i
		entries = append(entries, Entry{
			Server: build(p, port),
			Port:   port,
		})
	}

	return entries
}
