/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package iris

// ChannelRegistry maps channel name to *Channel. Not internally
// synchronized: exclusively owned by the dispatcher goroutine
// (SPEC_FULL.md §4.3/§5), unlike UserRegistry which many goroutines
// touch. Adapted from the teacher's chan_map.go ChanMap, with its
// RWMutex dropped since the dispatcher is the map's only caller.
type ChannelRegistry struct {
	channels map[string]*Channel
}

// NewChannelRegistry returns an empty ChannelRegistry.
func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{channels: make(map[string]*Channel)}
}

func (r *ChannelRegistry) hasChannel(name string) bool {
	_, ok := r.channels[name]
	return ok
}

func (r *ChannelRegistry) hasUser(name, nick string) bool {
	ch, ok := r.channels[name]
	if !ok {
		return false
	}
	return ch.hasMember(nick)
}

// addChannel creates the channel if absent; idempotent.
func (r *ChannelRegistry) addChannel(name string) *Channel {
	ch, ok := r.channels[name]
	if !ok {
		ch = newChannel(name)
		r.channels[name] = ch
	}
	return ch
}

func (r *ChannelRegistry) get(name string) (*Channel, bool) {
	ch, ok := r.channels[name]
	return ch, ok
}

// join auto-creates the channel and appends nick to its members,
// deduplicating a repeat JOIN from a current member (SPEC_FULL.md §9).
// Returns whether the nick was newly added.
func (r *ChannelRegistry) join(name, nick string) bool {
	ch := r.addChannel(name)
	return ch.addMember(nick)
}

// part removes nick from the channel's members. A no-op (no error) if
// the channel doesn't exist or the nick isn't a member — the silent
// drop decided in SPEC_FULL.md §9.
func (r *ChannelRegistry) part(name, nick string) {
	ch, ok := r.channels[name]
	if !ok {
		return
	}
	ch.removeMember(nick)
}

// removeUser removes nick from every channel's member list, used when a
// user quits or disconnects.
func (r *ChannelRegistry) removeUser(nick string) {
	for _, ch := range r.channels {
		ch.removeMember(nick)
	}
}
