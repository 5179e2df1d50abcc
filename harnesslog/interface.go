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

package harnesslog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	liblog "github.com/nabbar/polyserve/logger"
)

// Tags identify the scope a log line was emitted from. Zero-value fields are
// omitted from the composed message.
type Tags struct {
	Module   string
	Protocol string
	ServerID string
	ConnID   string
	Action   string
	TraceID  string
}

// Logger composes the harness's bracketed-tag message format over a
// liblog.Logger and offers copy-on-write child scoping.
type Logger interface {
	// Child returns a new Logger whose tags overlay t on top of the
	// parent's own tags (child fields win on conflict). The parent is
	// unmodified.
	Child(t Tags) Logger

	// With returns a child Logger carrying one structured data field more
	// than the receiver.
	With(key string, val interface{}) Logger

	LogServerEvent(event Event, message string, data interface{})
	LogConnectionEvent(event Event, message string, data interface{})
	LogSecurityEvent(event Event, message string, data interface{})

	// StartPerformanceTracking begins timing id. Pair with
	// EndPerformanceTracking.
	StartPerformanceTracking(id string)

	// EndPerformanceTracking returns the elapsed time since the matching
	// StartPerformanceTracking(id). If id was never started, it logs a
	// warning and returns 0, false.
	EndPerformanceTracking(id string) (time.Duration, bool)
}

// New returns a root Logger backed by fn. fn is called lazily on each log
// line, matching liblog.FuncLog's dependency-injection convention.
func New(fn liblog.FuncLog) Logger {
	return &facade{
		fn:     fn,
		tracks: make(map[string]time.Time),
	}
}

type facade struct {
	fn   liblog.FuncLog
	tags Tags

	fields sync.Map // key -> value; Child copies it into each child, and With stores into that fresh copy

	mu     sync.Mutex
	tracks map[string]time.Time
}

func (f *facade) Child(t Tags) Logger {
	merged := f.tags
	if t.Module != "" {
		merged.Module = t.Module
	}
	if t.Protocol != "" {
		merged.Protocol = t.Protocol
	}
	if t.ServerID != "" {
		merged.ServerID = t.ServerID
	}
	if t.ConnID != "" {
		merged.ConnID = t.ConnID
	}
	if t.Action != "" {
		merged.Action = t.Action
	}
	if t.TraceID != "" {
		merged.TraceID = t.TraceID
	}

	c := &facade{
		fn:     f.fn,
		tags:   merged,
		tracks: make(map[string]time.Time),
	}

	f.fields.Range(func(k, v interface{}) bool {
		c.fields.Store(k, v)
		return true
	})

	return c
}

func (f *facade) With(key string, val interface{}) Logger {
	c := f.Child(f.tags)
	c.(*facade).fields.Store(key, val)
	return c
}

func (f *facade) compose(message string, data interface{}) string {
	var b strings.Builder

	for _, tag := range []string{
		bracket("", f.tags.Module),
		bracket("", f.tags.Protocol),
		bracket("Server:", f.tags.ServerID),
		bracket("Conn:", f.tags.ConnID),
		bracket("", f.tags.Action),
	} {
		if tag != "" {
			b.WriteString(tag)
		}
	}

	if b.Len() > 0 {
		b.WriteString(" ")
	}
	b.WriteString(message)

	if data != nil {
		b.WriteString(fmt.Sprintf(" | Data: %v", data))
	}

	if f.tags.TraceID != "" {
		b.WriteString(fmt.Sprintf(" | TraceId: %s", f.tags.TraceID))
	}

	return b.String()
}

func bracket(prefix, val string) string {
	if val == "" {
		return ""
	}
	return "[" + prefix + val + "] "
}

func (f *facade) emit(event Event, message string, data interface{}) {
	lvl := severity(event)
	msg := f.compose(message, data)

	if f.fn == nil {
		return
	}

	l := f.fn()
	if l == nil {
		return
	}

	switch lvl {
	case severity(EventServerError):
		l.Error(msg, nil)
	case severity(EventConnectionTimeout):
		l.Warning(msg, nil)
	default:
		l.Info(msg, nil)
	}
}

func (f *facade) LogServerEvent(event Event, message string, data interface{}) {
	f.emit(event, message, data)
}

func (f *facade) LogConnectionEvent(event Event, message string, data interface{}) {
	f.emit(event, message, data)
}

func (f *facade) LogSecurityEvent(event Event, message string, data interface{}) {
	f.emit(event, message, data)
}

func (f *facade) StartPerformanceTracking(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[id] = time.Now()
}

func (f *facade) EndPerformanceTracking(id string) (time.Duration, bool) {
	f.mu.Lock()
	start, ok := f.tracks[id]
	if ok {
		delete(f.tracks, id)
	}
	f.mu.Unlock()

	if !ok {
		f.emit(EventConnectionTimeout, "performance tracking id not found: "+id, nil)
		return 0, false
	}

	return time.Since(start), true
}
