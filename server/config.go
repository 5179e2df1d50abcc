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

// Classify analyzes a proposed config update against the live snapshot and
// returns the most severe classification triggered. Network identity and
// SSL fields take precedence over HTTP/2 and gRPC option changes, which in
// turn take precedence over pool/ext runtime-apply fields.
func Classify(old, next Config) ChangeClass {
	if old.Hostname != next.Hostname || old.Port != next.Port || old.Protocol != next.Protocol {
		return ChangeCriticalNetwork
	}

	if sslChanged(old.SSL, next.SSL) {
		return ChangeSSLChanged
	}

	if old.HTTP2 != next.HTTP2 {
		return ChangeH2SettingsChanged
	}

	if old.GRPC != next.GRPC {
		return ChangeChannelOptsChanged
	}

	if old.Pool != next.Pool || old.Ext != next.Ext {
		return ChangeRuntimeApply
	}

	return ChangeNone
}

func sslChanged(a, b SSLConfig) bool {
	if a.Key != b.Key || a.Cert != b.Cert || a.CA != b.CA {
		return true
	}
	if a.Mode != b.Mode || a.SecureProtocol != b.SecureProtocol {
		return true
	}
	if a.AllowHTTP1 != b.AllowHTTP1 || a.MutualTLS != b.MutualTLS || a.ClientAuthPolicy != b.ClientAuthPolicy {
		return true
	}
	if len(a.Ciphers) != len(b.Ciphers) {
		return true
	}
	for i := range a.Ciphers {
		if a.Ciphers[i] != b.Ciphers[i] {
			return true
		}
	}
	return false
}
