/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package engine

import "errors"

// Distinct error kinds, per spec.md §7. Each is a sentinel so callers
// can errors.Is() against it after wrapping.
var (
	// ErrConfigInvalid: empty address, conflicting modes, malformed
	// stream entry. Surfaced before a connection is ever attempted.
	ErrConfigInvalid = errors.New("slink: invalid configuration")
	// ErrResolveFailed: DNS lookup of the server address failed.
	ErrResolveFailed = errors.New("slink: address resolution failed")
	// ErrConnectFailed: TCP dial failed.
	ErrConnectFailed = errors.New("slink: connect failed")
	// ErrNegotiationFailed: server replied ERROR, or HELLO's response
	// could not be parsed.
	ErrNegotiationFailed = errors.New("slink: negotiation failed")
	// ErrNetworkTimeout: no bytes and no keepalive ack within netto.
	ErrNetworkTimeout = errors.New("slink: network timeout")
	// ErrDecodeFatal: the record detector found unrecoverable garbage
	// mid-stream. Non-recoverable: the engine terminates.
	ErrDecodeFatal = errors.New("slink: fatal decode error")
	// ErrServerEnd: the dial-up "END" sentinel was seen. Clean exit.
	ErrServerEnd = errors.New("slink: server signalled end of data")
	// ErrServerError: the post-negotiation "ERROR\r\n" sentinel was
	// seen. Exit non-zero.
	ErrServerError = errors.New("slink: server signalled an error")
	// ErrArchiveIO: an archive file open/write failed. archive.Router
	// does not wrap its errors with it and does not disable a key after
	// a failure: every failed Append returns its own error, and the CLI
	// logs each one.
	ErrArchiveIO = errors.New("slink: archive I/O error")
)

// Recoverable reports whether err represents a condition that the
// engine will retry on its own (disconnect + reconnect-delay) rather
// than terminate for.
func Recoverable(err error) bool {
	switch {
	case errors.Is(err, ErrResolveFailed),
		errors.Is(err, ErrConnectFailed),
		errors.Is(err, ErrNegotiationFailed),
		errors.Is(err, ErrNetworkTimeout):
		return true
	default:
		return false
	}
}
