/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package iris

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/btnmasher/iris/internal/transport"
)

// runReader is the per-connection goroutine that blocks on reads and
// feeds the dispatcher's queue, per SPEC_FULL.md §4.5. Generalizes the
// teacher's Conn.readLoop (connection.go): the blocking Scan/Parse/route
// loop is unchanged in shape, but each step now produces a dispatcher
// Item instead of calling RouteCommand inline, since the dispatcher (not
// the reader) is the one goroutine allowed to mutate shared state.
func runReader(id string, read transport.ConnectionRead, write transport.ConnectionWrite, users *UserRegistry, queue chan<- Item, logger *logrus.Entry) {
	logger = logger.WithField("conn", id)
	logger.Debug("reader starting")

	u := newUser(id, write)
	users.add(u)

	quitSent := false
	defer func() {
		// If the connection ended without an explicit QUIT (socket closed,
		// read timed out, peer reset), synthesize an empty-reason QUIT so
		// the dispatcher still runs channel fan-out and registry cleanup
		// for this user, preserving the registry invariants SPEC_FULL.md
		// §9 requires even on an ungraceful disconnect.
		if !quitSent {
			pm := messagePool.New()
			pm.SenderNick = users.snapshotNickOf(id)
			pm.Message = Message{Tag: MsgQuit}
			queue <- Item{Parsed: pm}
		}

		if closer, ok := read.(interface{ Close() }); ok {
			closer.Close()
		}
		logger.Debug("reader stopped")
	}()

	for {
		line, err := read.ReadMessage()
		if err != nil {
			if !errors.Is(err, transport.ErrConnectionClosed) {
				logger.Debugf("read error: %v", err)
			}
			return
		}

		senderNick := users.snapshotNickOf(id)

		pm, perr := Parse(senderNick, line)
		if perr != nil {
			queue <- Item{Err: &parseFailure{senderNick: senderNick, err: asProtocolError(perr)}}
			continue
		}

		// Read the tag before handing pm off: the dispatcher recycles pm
		// once its handler returns.
		isQuit := pm.Message.Tag == MsgQuit
		queue <- Item{Parsed: pm}

		if isQuit {
			quitSent = true
			return
		}
	}
}

// asProtocolError adapts a plain parse failure (errMessageTooShort and
// friends, which carry no wire numeric) into the Error shape
// handleParseFailure expects to render. Grammar violations that do carry
// a Kind (e.g. errNeedMoreParams from inside buildMessage) pass through
// unchanged.
func asProtocolError(err error) *Error {
	var protoErr *Error
	if errors.As(err, &protoErr) {
		return protoErr
	}
	return newError(KindUnknownCommand, err.Error())
}
