/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package iris

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserRegistry_setNickThenChangeNick(t *testing.T) {
	reg := NewUserRegistry()
	u := newUser("conn1", nil)
	reg.add(u)

	reg.setNick("conn1", "alice")
	assert.Equal(t, "alice", u.Nick())
	assert.True(t, reg.nickInUse("alice"))

	reg.setNick("alice", "alicia")
	assert.Equal(t, "alicia", u.Nick())
	assert.False(t, reg.nickInUse("alice"))
	assert.True(t, reg.nickInUse("alicia"))
}

func TestUserRegistry_withSenderResolvesIDBeforeNickSet(t *testing.T) {
	reg := NewUserRegistry()
	u := newUser("conn1", nil)
	reg.add(u)

	found := false
	reg.withSender("conn1", func(got *User) {
		found = got == u
	})
	assert.True(t, found)
}

func TestUserRegistry_removeSenderCleansBothIndices(t *testing.T) {
	reg := NewUserRegistry()
	u := newUser("conn1", nil)
	reg.add(u)
	reg.setNick("conn1", "alice")

	reg.removeSender("alice")

	assert.False(t, reg.userExists("conn1"))
	assert.False(t, reg.nickInUse("alice"))
}

func TestUserRegistry_removeSenderBeforeNickSet(t *testing.T) {
	reg := NewUserRegistry()
	u := newUser("conn1", nil)
	reg.add(u)

	reg.removeSender("conn1")

	assert.False(t, reg.userExists("conn1"))
}

func TestUserRegistry_removeSenderIdempotent(t *testing.T) {
	reg := NewUserRegistry()
	u := newUser("conn1", nil)
	reg.add(u)
	reg.setNick("conn1", "alice")

	reg.removeSender("alice")
	assert.NotPanics(t, func() { reg.removeSender("alice") })
}

func TestChannelRegistry_joinDedup(t *testing.T) {
	r := NewChannelRegistry()

	added := r.join("#general", "alice")
	assert.True(t, added)

	added = r.join("#general", "alice")
	assert.False(t, added, "repeat JOIN from a current member must be a no-op")

	ch, ok := r.get("#general")
	assert.True(t, ok)
	assert.Equal(t, []string{"alice"}, ch.Members())
}

func TestChannelRegistry_partSilentDrop(t *testing.T) {
	r := NewChannelRegistry()

	assert.NotPanics(t, func() { r.part("#nonexistent", "alice") })

	r.join("#general", "alice")
	assert.NotPanics(t, func() { r.part("#general", "bob") })

	ch, _ := r.get("#general")
	assert.Equal(t, []string{"alice"}, ch.Members())
}

func TestChannelRegistry_removeUser(t *testing.T) {
	r := NewChannelRegistry()
	r.join("#general", "alice")
	r.join("#random", "alice")
	r.join("#general", "bob")

	r.removeUser("alice")

	general, _ := r.get("#general")
	random, _ := r.get("#random")
	assert.Equal(t, []string{"bob"}, general.Members())
	assert.Equal(t, []string{}, random.Members())
}
