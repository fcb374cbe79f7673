/*
   Copyright (c) 2020, btnmasher
   All rights reserved.

   Redistribution and use in source and binary forms, with or without modification, are permitted provided that
   the following conditions are met:

   1. Redistributions of source code must retain the above copyright notice, this list of conditions and the
      following disclaimer.

   2. Redistributions in binary form must reproduce the above copyright notice, this list of conditions and
      the following disclaimer in the documentation and/or other materials provided with the distribution.

   3. Neither the name of the copyright holder nor the names of its contributors may be used to endorse or
      promote products derived from this software without specific prior written permission.

   THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED
   WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A
   PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE FOR
   ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED
   TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
   HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
   NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
   POSSIBILITY OF SUCH DAMAGE.
*/

package iris

import "fmt"

// Kind enumerates the categorized protocol error conditions the
// dispatcher can raise on behalf of a client's message. Each carries the
// numeric the client sees on the wire in an Error reply.
type Kind uint16

const (
	KindNone Kind = 0

	KindNickCollision      Kind = 436
	KindInvalidNick        Kind = 432
	KindNoSuchNick         Kind = 401
	KindNoSuchChannel      Kind = 403
	KindNeedMoreParams     Kind = 461
	KindUnknownCommand     Kind = 421
	KindPluginCommandError Kind = 900
)

// Error is a categorized protocol error: a wire numeric paired with a
// human-readable message. Replaces the teacher's bare immutable
// Error-string constants (errors.go) with a (Kind, message) pair so the
// dispatcher can render "<code> :<message>" without a side lookup table.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Kind, e.Message)
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func errNickCollision() *Error {
	return newError(KindNickCollision, "Nickname collision")
}

func errInvalidNick() *Error {
	return newError(KindInvalidNick, "Erroneous nickname")
}

func errNoSuchNick(nick string) *Error {
	return newError(KindNoSuchNick, fmt.Sprintf("%s: No such nick", nick))
}

func errNoSuchChannel(channel string) *Error {
	return newError(KindNoSuchChannel, fmt.Sprintf("%s: No such channel", channel))
}

func errNeedMoreParams(command string) *Error {
	return newError(KindNeedMoreParams, fmt.Sprintf("%s: Not enough parameters", command))
}

func errUnknownCommand(command string) *Error {
	return newError(KindUnknownCommand, fmt.Sprintf("%s: Unknown command", command))
}

func errPluginCommand(message string) *Error {
	return newError(KindPluginCommandError, message)
}

// Plain parse failures. These carry no wire numeric of their own;
// runReader (reader.go) wraps them via asProtocolError as
// KindUnknownCommand before they reach the wire as an Error reply.
var (
	errMessageTooShort = fmt.Errorf("message too short")
	errMessageTooLong  = fmt.Errorf("message too long")
	errWhitespace      = fmt.Errorf("message is all whitespace")
	errPrefixed        = fmt.Errorf("client sent a prefixed message")
	errTooManyParams   = fmt.Errorf("too many parameters")
)
