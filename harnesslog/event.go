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
	loglvl "github.com/nabbar/polyserve/logger/level"
)

// Event identifies the kind of occurrence being logged through
// LogServerEvent / LogConnectionEvent / LogSecurityEvent. Severity is
// derived from the event kind, never passed explicitly by the caller.
type Event string

const (
	EventServerStarting Event = "server_starting"
	EventServerStarted   Event = "server_started"
	EventServerStopping  Event = "server_stopping"
	EventServerStopped   Event = "server_stopped"
	EventServerError     Event = "server_error"

	EventConnectionConnected    Event = "connection_connected"
	EventConnectionDisconnected Event = "connection_disconnected"
	EventConnectionTimeout      Event = "connection_timeout"
	EventConnectionError        Event = "connection_error"

	EventSecurityAuthSuccess Event = "security_auth_success"
	EventSecurityAuthFailure Event = "security_auth_failure"
	EventSecurityRateLimit   Event = "security_rate_limit"
	EventSecurityBlocked     Event = "security_blocked"
)

// severity implements the event-severity table: server_* lifecycle events
// are info, server_error is error; connection connect/disconnect are info,
// timeout is warn, error is error; security auth_success is info, all other
// security_* events are warn.
func severity(e Event) loglvl.Level {
	switch e {
	case EventServerStarting, EventServerStarted, EventServerStopping, EventServerStopped:
		return loglvl.InfoLevel
	case EventServerError:
		return loglvl.ErrorLevel
	case EventConnectionConnected, EventConnectionDisconnected:
		return loglvl.InfoLevel
	case EventConnectionTimeout:
		return loglvl.WarnLevel
	case EventConnectionError:
		return loglvl.ErrorLevel
	case EventSecurityAuthSuccess:
		return loglvl.InfoLevel
	case EventSecurityAuthFailure, EventSecurityRateLimit, EventSecurityBlocked:
		return loglvl.WarnLevel
	default:
		return loglvl.InfoLevel
	}
}
