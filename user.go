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

import (
	"sync"

	"github.com/btnmasher/iris/internal/transport"
)

// User holds the state the dispatcher tracks for one connected client.
// Modeled on the teacher's per-entity locking style in user.go, but
// scoped to exactly the fields SPEC_FULL.md §3 requires instead of the
// teacher's full hostmask/permission/usermode surface.
type User struct {
	mu sync.RWMutex

	id       string
	nick     string
	realName string
	joined   []string // ordered, unique channel names

	write transport.ConnectionWrite
}

// newUser constructs a User for a freshly accepted connection. A user
// has no nick or real name until NICK/USER are processed; until then
// its current nick is its connection id (SPEC_FULL.md §3).
func newUser(id string, write transport.ConnectionWrite) *User {
	return &User{id: id, write: write}
}

func (u *User) ID() string {
	return u.id
}

// Nick returns the user's current nick, or its connection id if no NICK
// has been set yet.
func (u *User) Nick() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.nick == "" {
		return u.id
	}
	return u.nick
}

func (u *User) setNick(nick string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.nick = nick
}

func (u *User) RealName() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.realName
}

func (u *User) setRealName(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.realName = name
}

// Registered reports whether both nick and real name have been set, per
// the invariant in SPEC_FULL.md §3.
func (u *User) Registered() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.nick != "" && u.realName != ""
}

// JoinedChannels returns a snapshot of the channels this user currently
// belongs to.
func (u *User) JoinedChannels() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]string, len(u.joined))
	copy(out, u.joined)
	return out
}

func (u *User) hasJoined(channel string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	for _, c := range u.joined {
		if c == channel {
			return true
		}
	}
	return false
}

func (u *User) addJoined(channel string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, c := range u.joined {
		if c == channel {
			return
		}
	}
	u.joined = append(u.joined, channel)
}

func (u *User) removeJoined(channel string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, c := range u.joined {
		if c == channel {
			u.joined = append(u.joined[:i], u.joined[i+1:]...)
			return
		}
	}
}

// send renders and writes one reply to this user's connection. Write
// errors are not fatal to the caller (fan-out continues to the next
// recipient, SPEC_FULL.md §7); the caller is expected to log them.
func (u *User) send(r *Reply) error {
	return u.write.WriteMessage(r.Render())
}
