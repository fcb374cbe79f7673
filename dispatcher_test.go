/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package iris

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sourcegraph/conc"

	"github.com/sirupsen/logrus"
)

// fakeConn is an in-memory transport.ConnectionWrite double that records
// every rendered reply, used to assert on dispatcher output without a
// real socket. Grounded on the teacher's ginkgo/gomega messagepool_test.go
// style of exercising a component's observable behavior directly.
type fakeConn struct {
	mu   sync.Mutex
	sent []string
}

func (c *fakeConn) WriteMessage(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, s)
	return nil
}

func (c *fakeConn) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// testClient bundles one connected-but-not-yet-registered user with its
// fake socket, for scenario tests to drive through NICK/USER/etc.
type testClient struct {
	id   string
	conn *fakeConn
}

func newTestClient(d *Dispatcher, id string) *testClient {
	c := &fakeConn{}
	d.users.add(newUser(id, c))
	return &testClient{id: id, conn: c}
}

func (tc *testClient) send(d *Dispatcher, senderNick, line string) {
	pm, err := Parse(senderNick, line)
	if err != nil {
		d.dispatch(Item{Err: &parseFailure{senderNick: senderNick, err: asProtocolError(err)}})
		return
	}
	d.dispatch(Item{Parsed: pm})
}

func newTestDispatcher() *Dispatcher {
	logger := logrus.NewEntry(logrus.New())
	return NewDispatcher("iris.example", NewUserRegistry(), NewChannelRegistry(), NewPluginRegistry(conc.NewWaitGroup(), logger), logger)
}

func registerClient(d *Dispatcher, id, nick, realName string) *testClient {
	tc := newTestClient(d, id)
	tc.send(d, id, "NICK "+nick)
	tc.send(d, nick, "USER "+nick+" 0 * :"+realName)
	return tc
}

var _ = Describe("Dispatcher", func() {
	var d *Dispatcher

	BeforeEach(func() {
		d = newTestDispatcher()
	})

	Describe("registration", func() {
		It("welcomes a client after NICK then USER", func() {
			alice := registerClient(d, "conn1", "alice", "Alice Adams")
			Expect(alice.conn.last()).To(Equal(":iris.example 001 alice :Welcome to the server, Alice Adams!\r\n"))
		})
	})

	Describe("nick collision", func() {
		It("rejects the second client claiming an in-use nick", func() {
			a := newTestClient(d, "connA")
			a.send(d, "connA", "NICK bob")

			b := newTestClient(d, "connB")
			b.send(d, "connB", "NICK bob")

			Expect(b.conn.last()).To(Equal("436 :Nickname collision\r\n"))
		})
	})

	Describe("channel broadcast", func() {
		It("delivers PRIVMSG to other members but not the sender", func() {
			alice := registerClient(d, "connA", "alice", "Alice Adams")
			bob := registerClient(d, "connB", "bob", "Bob Brown")

			alice.send(d, "alice", "JOIN #room")
			bob.send(d, "bob", "JOIN #room")

			aliceCountBefore := alice.conn.count()
			alice.send(d, "alice", "PRIVMSG #room :hello")

			Expect(bob.conn.last()).To(Equal(":alice PRIVMSG #room :hello\r\n"))
			Expect(alice.conn.count()).To(Equal(aliceCountBefore), "sender must not receive its own channel broadcast")
		})
	})

	Describe("part", func() {
		It("fans out PART to all members and silences further channel traffic from a non-member", func() {
			alice := registerClient(d, "connA", "alice", "Alice Adams")
			bob := registerClient(d, "connB", "bob", "Bob Brown")
			alice.send(d, "alice", "JOIN #room")
			bob.send(d, "bob", "JOIN #room")

			alice.send(d, "alice", "PART #room")
			Expect(alice.conn.last()).To(Equal(":alice PART #room\r\n"))
			Expect(bob.conn.last()).To(Equal(":alice PART #room\r\n"))

			bobCountBefore := bob.conn.count()
			alice.send(d, "alice", "PRIVMSG #room :still there?")
			Expect(bob.conn.count()).To(Equal(bobCountBefore), "a parted sender's channel message must produce no reply")
		})
	})

	Describe("plugin reminder", func() {
		It("delivers the reminder from plugin_reminder after the requested delay", func() {
			carol := registerClient(d, "connC", "carol", "Carol Clark")

			carol.send(d, "carol", "PRIVMSG use_plugin_reminder :0 wake up")

			Eventually(func() string {
				return carol.conn.last()
			}, time.Second, 10*time.Millisecond).Should(Equal(":plugin_reminder PRIVMSG carol :wake up\r\n"))
		})

		It("rejects a malformed invocation synchronously", func() {
			carol := registerClient(d, "connC", "carol", "Carol Clark")
			carol.send(d, "carol", "PRIVMSG use_plugin_reminder :notanumber hi")
			Expect(carol.conn.last()).To(ContainSubstring("900"))
		})
	})

	Describe("quit fan-out", func() {
		It("notifies channel members and frees the nick for reuse", func() {
			dave := registerClient(d, "connD", "dave", "Dave Davidson")
			eve := registerClient(d, "connE", "eve", "Eve Evanson")
			dave.send(d, "dave", "JOIN #x")
			eve.send(d, "eve", "JOIN #x")

			dave.send(d, "dave", "QUIT :bye")
			Expect(eve.conn.last()).To(Equal(":dave QUIT :bye\r\n"))

			newDave := registerClient(d, "connD2", "dave", "New Dave")
			Expect(newDave.conn.last()).To(Equal(":iris.example 001 dave :Welcome to the server, New Dave!\r\n"))
		})
	})
})
