// Copyright 2021 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tcpip

// Error represents an error in the tcpip error space. Using a special type
// for these two error kinds keeps them easy to tell apart from the
// malformed-wire-input case, which is never surfaced as an error: it is
// logged and the offending frame is dropped (see pkg/tcpip's callers).
type Error struct {
	msg string
}

// NewError returns a new Error with the given message. It exists so that
// each call site can define its own sentinel without exporting a
// constructor per error, mirroring the teacher's SyserrXxx variables.
func NewError(msg string) *Error {
	return &Error{msg: msg}
}

// Error implements error.
func (e *Error) Error() string {
	return e.msg
}

// Programmer-misuse errors (spec.md §7): returned to a caller that is
// misusing the API, never logged and swallowed.
var (
	ErrDestroyed            = NewError("tcpip: adapter or socket has been destroyed")
	ErrDuplicateListener    = NewError("tcpip: a listener is already registered for this address and port")
	ErrDuplicateConnection  = NewError("tcpip: a socket is already registered for this connection key")
	ErrNotConnected         = NewError("tcpip: socket was never connected")
	ErrInvalidEndpointState = NewError("tcpip: operation is not valid in the socket's current state")
	ErrBadHostAddress       = NewError("tcpip: host name does not resolve to a usable IP address")
)

// Assertion-class errors (spec.md §7): indicate a bug in the stack itself
// — an invariant our own code is supposed to maintain was violated.
var (
	ErrAddressUnresolvable = NewError("tcpip: no route to resolve destination MAC address")
	ErrChecksumInvariant   = NewError("tcpip: emitted packet fails its own checksum invariant")
	ErrWriteQueueInvariant = NewError("tcpip: pre-established write queue reached while already established")
)
