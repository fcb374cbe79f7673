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

// Channel is a named multicast group. It stores member nicks rather
// than back-pointers to Users, to avoid cyclic references between the
// user and channel registries (SPEC_FULL.md §9). Exclusively owned and
// mutated by the dispatcher goroutine; unlike User/UserRegistry it
// carries no lock of its own (SPEC_FULL.md §4.3/§5).
//
// Adapted from the teacher's channel.go Channel type, stripped of the
// owner/ops/voice/ban lists that RFC channel modes require but this
// protocol subset does not model.
type Channel struct {
	name    string
	members []string // ordered, unique nicks
}

func newChannel(name string) *Channel {
	return &Channel{name: name}
}

func (c *Channel) hasMember(nick string) bool {
	for _, n := range c.members {
		if n == nick {
			return true
		}
	}
	return false
}

// addMember appends nick if not already present. A repeat JOIN from a
// current member is a no-op (SPEC_FULL.md §9 dedup decision), returning
// false so the caller knows not to fan out a Join reply.
func (c *Channel) addMember(nick string) (added bool) {
	if c.hasMember(nick) {
		return false
	}
	c.members = append(c.members, nick)
	return true
}

// removeMember removes all occurrences of nick (defensive against the
// dedup invariant ever being violated upstream).
func (c *Channel) removeMember(nick string) {
	out := c.members[:0]
	for _, n := range c.members {
		if n != nick {
			out = append(out, n)
		}
	}
	c.members = out
}

// Members returns a snapshot of the channel's current member nicks.
func (c *Channel) Members() []string {
	out := make([]string, len(c.members))
	copy(out, c.members)
	return out
}
