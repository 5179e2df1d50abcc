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

package connpool

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

type connEntry struct {
	conn interface{}
	meta Metadata
}

type pool struct {
	m sync.RWMutex

	strategy Strategy
	cfg      Config
	started  time.Time

	entries map[interface{}]*connEntry

	lm        sync.Mutex
	listeners map[Event]map[int]Listener
	nextKey   int

	admitted uint64
	rejected uint64
	removed  uint64

	lastStatus Status

	destroyed bool
}

func newPool(strategy Strategy, cfg Config) *pool {
	return &pool{
		strategy:  strategy,
		cfg:       cfg,
		started:   time.Now(),
		entries:   make(map[interface{}]*connEntry),
		listeners: make(map[Event]map[int]Listener),
	}
}

func (p *pool) CanAcceptConnection() bool {
	p.m.RLock()
	defer p.m.RUnlock()
	return p.canAcceptLocked()
}

func (p *pool) canAcceptLocked() bool {
	if p.cfg.MaxConnections <= 0 {
		return true
	}
	return len(p.entries) < p.cfg.MaxConnections
}

func (p *pool) RegisterConnection(conn interface{}, meta Metadata) bool {
	p.m.Lock()
	limit := !p.canAcceptLocked()
	admit := !limit && p.strategy != nil && p.strategy.Validate(conn, meta)
	if !admit {
		p.m.Unlock()
		p.rejectedIncr()
		if limit {
			p.dispatch(EventPoolLimitReached, conn, meta)
		}
		return false
	}

	p.entries[conn] = &connEntry{conn: conn, meta: meta}
	p.admitted++
	p.m.Unlock()

	p.dispatch(EventConnectionAdded, conn, meta)
	p.refreshHealth()
	return true
}

func (p *pool) rejectedIncr() {
	p.m.Lock()
	p.rejected++
	p.m.Unlock()
}

func (p *pool) admittedIncr() {
	p.m.Lock()
	p.admitted++
	p.m.Unlock()
}

func (p *pool) RemoveConnection(conn interface{}, reason string) {
	p.m.Lock()
	e, ok := p.entries[conn]
	if !ok {
		p.m.Unlock()
		return
	}
	delete(p.entries, conn)
	p.removed++
	p.m.Unlock()

	if p.strategy != nil {
		p.strategy.Cleanup(conn, e.meta)
	}

	p.dispatch(EventConnectionRemoved, conn, e.meta)
	p.refreshHealth()
}

func (p *pool) GetActiveConnectionCount() int {
	p.m.RLock()
	defer p.m.RUnlock()
	return len(p.entries)
}

func (p *pool) IsConnectionHealthy(conn interface{}) bool {
	p.m.RLock()
	e, ok := p.entries[conn]
	strategy := p.strategy
	p.m.RUnlock()

	if !ok || strategy == nil {
		return false
	}

	return strategy.IsHealthy(conn, e.meta)
}

func (p *pool) Walk(fn func(conn interface{}, meta Metadata) bool) {
	p.m.RLock()
	entries := make([]*connEntry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.m.RUnlock()

	for _, e := range entries {
		if !fn(e.conn, e.meta) {
			return
		}
	}
}

func (p *pool) CloseAllConnections(ctx context.Context, timeout time.Duration) {
	p.m.RLock()
	entries := make([]*connEntry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.m.RUnlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, e := range entries {
			p.RemoveConnection(e.conn, "pool_closing")
		}
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-done:
	case <-t.C:
	case <-ctx.Done():
	}

	// force-cleanup stragglers
	p.m.Lock()
	remaining := make([]*connEntry, 0, len(p.entries))
	for _, e := range p.entries {
		remaining = append(remaining, e)
	}
	p.entries = make(map[interface{}]*connEntry)
	p.removed += uint64(len(remaining))
	p.m.Unlock()

	for _, e := range remaining {
		if p.strategy != nil {
			p.strategy.Cleanup(e.conn, e.meta)
		}
		p.dispatch(EventConnectionRemoved, e.conn, e.meta)
	}

	p.refreshHealth()
}

func (p *pool) computeHealth() Health {
	p.m.RLock()
	active := len(p.entries)
	max := p.cfg.MaxConnections
	p.m.RUnlock()

	var ratio float64
	if max > 0 {
		ratio = float64(active) / float64(max)
	}

	status := StatusHealthy
	switch {
	case max > 0 && active >= max:
		status = StatusUnhealthy
	case ratio >= 0.9:
		status = StatusOverloaded
	case ratio >= 0.75:
		status = StatusDegraded
	}

	return Health{
		Status:           status,
		ActiveCount:      active,
		MaxConnections:   max,
		UtilizationRatio: ratio,
	}
}

func (p *pool) refreshHealth() {
	h := p.computeHealth()

	p.m.Lock()
	changed := p.lastStatus != h.Status
	p.lastStatus = h.Status
	p.m.Unlock()

	if changed {
		p.dispatch(EventHealthStatusChanged, nil, nil)
	}
}

func (p *pool) GetHealth() Health {
	return p.computeHealth()
}

func (p *pool) GetMetrics() Metrics {
	p.m.RLock()
	cfg := p.cfg
	started := p.started
	admitted := p.admitted
	rejected := p.rejected
	removed := p.removed
	p.m.RUnlock()

	return Metrics{
		Config:   cfg,
		Health:   p.computeHealth(),
		Uptime:   time.Since(started),
		Admitted: admitted,
		Rejected: rejected,
		Removed:  removed,
	}
}

func (p *pool) UpdateConfig(partial Config) bool {
	if partial.MaxConnections < 0 {
		return false
	}
	if partial.ConnectionTimeout < 0 || partial.PingInterval < 0 || partial.HeartbeatInterval < 0 {
		return false
	}

	p.m.Lock()
	p.cfg = partial
	p.m.Unlock()

	p.refreshHealth()
	return true
}

func (p *pool) On(event Event, l Listener) int {
	p.lm.Lock()
	defer p.lm.Unlock()

	if p.listeners[event] == nil {
		p.listeners[event] = make(map[int]Listener)
	}

	p.nextKey++
	p.listeners[event][p.nextKey] = l
	return p.nextKey
}

func (p *pool) Off(event Event, key int) {
	p.lm.Lock()
	defer p.lm.Unlock()
	delete(p.listeners[event], key)
}

func (p *pool) dispatch(event Event, conn interface{}, meta Metadata) {
	p.lm.Lock()
	ls := p.listeners[event]
	ordered := make([]Listener, 0, len(ls))
	keys := make([]int, 0, len(ls))
	for k := range ls {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		ordered = append(ordered, ls[k])
	}
	p.lm.Unlock()

	for _, l := range ordered {
		safeDispatch(l, event, conn, meta)
	}
}

func safeDispatch(l Listener, event Event, conn interface{}, meta Metadata) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("connpool: listener for %s panicked: %v", event, r)
		}
	}()
	l(event, conn, meta)
}

func (p *pool) Destroy(ctx context.Context) {
	p.m.Lock()
	if p.destroyed {
		p.m.Unlock()
		return
	}
	p.destroyed = true
	p.m.Unlock()

	p.CloseAllConnections(ctx, 5*time.Second)

	p.lm.Lock()
	p.listeners = make(map[Event]map[int]Listener)
	p.lm.Unlock()
}
