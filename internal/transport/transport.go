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

// Package transport is the out-of-scope collaborator SPEC_FULL.md §6
// names only by interface: the TCP listener and line-framing layer. It
// is adapted from the teacher's server.go (tcpKeepAliveListener, the
// Accept backoff loop) and connection.go (bufio.Scanner read loop,
// buffered write-queue channel serializing writers against one socket).
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/btnmasher/random"
	"github.com/sirupsen/logrus"
)

// KeepAliveTimeout bounds how long a connection may sit idle before a
// read is abandoned, mirroring the teacher's server.go constant of the
// same name.
const KeepAliveTimeout = 2 * time.Minute

// WriteTimeout bounds how long a single write may block.
const WriteTimeout = 5 * time.Second

// WriteQueueLength sets the buffer depth of each connection's write
// queue channel, mirroring the teacher's server.go constant.
const WriteQueueLength = 10

// Sentinel connection errors, per SPEC_FULL.md §6.
var (
	ErrConnectionLost   = errors.New("transport: connection lost")
	ErrConnectionClosed = errors.New("transport: connection closed")
)

// ConnectionRead is the read half of an accepted connection.
type ConnectionRead interface {
	ID() string
	ReadMessage() (string, error)
}

// ConnectionWrite is the write half of an accepted connection. Writes
// must be internally serialized against concurrent callers of the same
// write half (SPEC_FULL.md §6); conn satisfies this with a buffered
// channel drained by one writer goroutine per connection.
type ConnectionWrite interface {
	WriteMessage(string) error
}

// ConnectionManager accepts TCP connections and hands out (read, write)
// halves. Adapted from the teacher's Server.Serve/ListenAndServe.
type ConnectionManager struct {
	logger   *logrus.Entry
	listener net.Listener
	wg       sync.WaitGroup
}

// Launch binds a TCP listener at ip:port and returns a ConnectionManager
// ready to accept. Blocking per SPEC_FULL.md §6.
func Launch(ip string, port int, logger *logrus.Entry) (*ConnectionManager, error) {
	addr := fmt.Sprintf("%s:%d", ip, port)
	listen, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen on %s: %w", addr, err)
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &ConnectionManager{
		logger:   logger.WithField("component", "transport"),
		listener: tcpKeepAliveListener{listen.(*net.TCPListener)},
	}, nil
}

// AcceptNewConnection blocks until a client connects, then returns its
// read and write halves, per SPEC_FULL.md §6.
func (m *ConnectionManager) AcceptNewConnection() (ConnectionRead, ConnectionWrite, error) {
	var tempDelay time.Duration

	for {
		sock, err := m.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := time.Second; tempDelay > max {
					tempDelay = max
				}
				m.logger.Warnf("accept error: %v; retrying in %v", err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return nil, nil, err
		}

		id := random.String(12)
		c := newConn(id, sock, m.logger.WithField("conn", id))
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			c.writeLoop()
		}()
		return c, c, nil
	}
}

// Close stops accepting new connections and waits for active write
// loops to drain.
func (m *ConnectionManager) Close() error {
	err := m.listener.Close()
	m.wg.Wait()
	return err
}

// tcpKeepAliveListener enables TCP keep-alives on accepted sockets so
// dead connections eventually surface as read errors instead of hanging
// forever. Verbatim in spirit from the teacher's server.go.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (l tcpKeepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.AcceptTCP()
	if err != nil {
		return nil, err
	}
	conn.SetKeepAlive(true)
	conn.SetKeepAlivePeriod(KeepAliveTimeout)
	return conn, nil
}

// conn implements both ConnectionRead and ConnectionWrite over one
// net.Conn, framing lines with bufio and serializing writers through a
// buffered channel drained by writeLoop. Adapted from the teacher's
// Conn in connection.go, stripped of IRC-specific fields (heartbeat,
// capability negotiation) that belong to the core, not the transport.
type conn struct {
	id     string
	logger *logrus.Entry

	sock net.Conn
	in   *bufio.Scanner
	out  *bufio.Writer

	writeQueue chan string
	closeOnce  sync.Once
	closed     chan struct{}
}

func newConn(id string, sock net.Conn, logger *logrus.Entry) *conn {
	return &conn{
		id:         id,
		logger:     logger,
		sock:       sock,
		in:         bufio.NewScanner(sock),
		out:        bufio.NewWriter(sock),
		writeQueue: make(chan string, WriteQueueLength),
		closed:     make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

// ReadMessage blocks for one line, per SPEC_FULL.md §6. Scanner strips
// the trailing newline; a lone '\r' is trimmed here so callers see the
// line with CRLF already stripped either way.
func (c *conn) ReadMessage() (string, error) {
	c.sock.SetReadDeadline(time.Now().Add(KeepAliveTimeout))

	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConnectionLost, err)
		}
		return "", ErrConnectionClosed
	}

	return strings.TrimSuffix(c.in.Text(), "\r"), nil
}

// WriteMessage enqueues a fully rendered reply for the write loop.
// Enqueue never blocks the dispatcher indefinitely: a full queue means a
// slow/dead peer, and is dropped rather than stalling fan-out to other
// recipients.
func (c *conn) WriteMessage(s string) error {
	select {
	case c.writeQueue <- s:
		return nil
	case <-c.closed:
		return ErrConnectionClosed
	default:
		c.logger.Warn("write queue full, dropping message")
		return fmt.Errorf("transport: write queue full for %s", c.id)
	}
}

func (c *conn) writeLoop() {
	defer c.sock.Close()

	for {
		select {
		case msg := <-c.writeQueue:
			c.sock.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if _, err := c.out.WriteString(msg); err != nil {
				c.logger.Warnf("write error: %v", err)
				return
			}
			if err := c.out.Flush(); err != nil {
				c.logger.Warnf("flush error: %v", err)
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Close signals the write loop to exit and closes the socket.
func (c *conn) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}
