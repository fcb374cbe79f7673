/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package iris

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Item is one entry on the dispatch queue: either a successfully parsed
// message, or an error carrier produced by a reader that failed to
// parse a line, tagged with the sender's nick snapshot at read time
// (SPEC_FULL.md §4.4/§4.5).
type Item struct {
	Parsed *ParsedMessage
	Err    *parseFailure
}

type parseFailure struct {
	senderNick string
	err        *Error
}

// Dispatcher is the single consumer goroutine that serializes all state
// mutation: it drains Queue in arrival order and routes each Item to its
// handler, mutating the user/channel registries and fanning out
// replies. Generalizes the teacher's router.go command-table dispatch
// (RouteCommand, HandlerMap[string]HandlersChain) from a per-connection
// inline call into a single-goroutine, channel-driven consumer, per
// SPEC_FULL.md §4.4/§5.
type Dispatcher struct {
	Queue chan Item

	users    *UserRegistry
	channels *ChannelRegistry
	plugins  *PluginRegistry

	serverName string
	logger     *logrus.Entry
}

// NewDispatcher constructs a Dispatcher over the given registries. The
// queue depth is intentionally generous (SPEC_FULL.md's total-FIFO-order
// guarantee depends on readers never blocking indefinitely on a full
// queue under normal load).
func NewDispatcher(serverName string, users *UserRegistry, channels *ChannelRegistry, plugins *PluginRegistry, logger *logrus.Entry) *Dispatcher {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{
		Queue:      make(chan Item, 256),
		users:      users,
		channels:   channels,
		plugins:    plugins,
		serverName: serverName,
		logger:     logger.WithField("component", "dispatcher"),
	}
}

// Run is the dispatcher's main loop: the single goroutine that owns the
// channel registry and serializes every mutation of the user registry.
// It returns when ctx is canceled and the queue has been drained of
// anything already enqueued, or when Queue is closed.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher starting")
	defer d.logger.Info("dispatcher stopped")

	for {
		select {
		case item, ok := <-d.Queue:
			if !ok {
				return
			}
			d.dispatch(item)
		case <-ctx.Done():
			// Drain whatever is already queued before exiting, so replies
			// already in flight for a message are not silently dropped.
			for {
				select {
				case item := <-d.Queue:
					d.dispatch(item)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) dispatch(item Item) {
	if item.Err != nil {
		d.handleParseFailure(item.Err)
		return
	}
	if item.Parsed != nil {
		d.handleMessage(item.Parsed)
		messagePool.Recycle(item.Parsed)
	}
}

// handleParseFailure delivers an Error reply to the sender identified by
// the reader's nick snapshot, per SPEC_FULL.md §4.4 step 1. Dropped
// silently if the sender is no longer in the registry.
func (d *Dispatcher) handleParseFailure(f *parseFailure) {
	d.users.withSender(f.senderNick, func(u *User) {
		if err := u.send(errorReply(f.err)); err != nil {
			d.logger.Warnf("error delivering parse-failure reply to %s: %v", f.senderNick, err)
		}
	})
}

func (d *Dispatcher) handleMessage(pm *ParsedMessage) {
	switch pm.Message.Tag {
	case MsgNick:
		d.handleNick(pm)
	case MsgUser:
		d.handleUser(pm)
	case MsgPing:
		d.handlePing(pm)
	case MsgJoin:
		d.handleJoin(pm)
	case MsgPart:
		d.handlePart(pm)
	case MsgPrivMsg:
		d.handlePrivMsg(pm)
	case MsgQuit:
		d.handleQuit(pm)
	}
}

// handleNick implements SPEC_FULL.md §4.4's NICK row. NICK is accepted
// before registration (the registration gate exempts NICK and USER).
func (d *Dispatcher) handleNick(pm *ParsedMessage) {
	nick := pm.Message.Nick

	if !validNick(nick) {
		d.replyError(pm.SenderNick, errInvalidNick())
		return
	}

	if d.users.nickInUse(nick) {
		d.replyError(pm.SenderNick, errNickCollision())
		return
	}

	d.users.setNick(pm.SenderNick, nick)
}

// handleUser implements SPEC_FULL.md §4.4's USER row: requires a nick
// already set, not yet registered; on success marks the user registered
// and replies Welcome.
func (d *Dispatcher) handleUser(pm *ParsedMessage) {
	d.users.withSender(pm.SenderNick, func(u *User) {
		if u.Nick() == "" || u.RealName() != "" {
			return
		}
		u.setRealName(pm.Message.RealName)

		reply := &Reply{
			Tag:      ReplyWelcome,
			Server:   d.serverName,
			Nick:     u.Nick(),
			RealName: u.RealName(),
		}
		if err := u.send(reply); err != nil {
			d.logger.Warnf("error delivering welcome to %s: %v", u.Nick(), err)
		}
	})
}

// handlePing implements SPEC_FULL.md §4.4's PING row: registered senders
// only, gated by the registration check below.
func (d *Dispatcher) handlePing(pm *ParsedMessage) {
	d.withRegisteredSender(pm.SenderNick, func(u *User) {
		if err := u.send(&Reply{Tag: ReplyPong, Token: pm.Message.Token}); err != nil {
			d.logger.Warnf("error delivering pong to %s: %v", u.Nick(), err)
		}
	})
}

// handleJoin implements SPEC_FULL.md §4.4's JOIN row, including the
// dedup decision from §9: a repeat JOIN from a current member is a
// no-op with no reply.
func (d *Dispatcher) handleJoin(pm *ParsedMessage) {
	d.withRegisteredSender(pm.SenderNick, func(u *User) {
		channel := pm.Message.Channel
		nick := u.Nick()

		added := d.channels.join(channel, nick)
		if !added {
			return
		}
		u.addJoined(channel)

		d.fanOutChannel(channel, &Reply{Tag: ReplyJoin, Sender: nick, Channel: channel}, "")
	})
}

// handlePart implements SPEC_FULL.md §4.4's PART row, including the
// silent-drop decision from §9 for a non-member parting an existing
// channel (or a nonexistent channel).
func (d *Dispatcher) handlePart(pm *ParsedMessage) {
	d.withRegisteredSender(pm.SenderNick, func(u *User) {
		channel := pm.Message.Channel
		nick := u.Nick()

		if !d.channels.hasUser(channel, nick) {
			return
		}

		d.fanOutChannel(channel, &Reply{Tag: ReplyPart, Sender: nick, Channel: channel}, "")

		d.channels.part(channel, nick)
		u.removeJoined(channel)
	})
}

// handlePrivMsg implements SPEC_FULL.md §4.4's PRIVMSG rows: channel
// fan-out excluding the sender, plugin delegation for
// "use_plugin_"-prefixed targets, and direct-user delivery erroring
// NoSuchNick on an unknown target (§9 decision).
func (d *Dispatcher) handlePrivMsg(pm *ParsedMessage) {
	d.withRegisteredSender(pm.SenderNick, func(u *User) {
		nick := u.Nick()
		target := pm.Message.Target

		if target.Kind == TargetChannel {
			channel := target.Name

			if !d.channels.hasChannel(channel) {
				d.replyErrorTo(u, errNoSuchChannel(channel))
				return
			}
			if !d.channels.hasUser(channel, nick) {
				// Silent drop: a non-member of an existing channel gets no
				// reply, so it cannot learn who is in it (SPEC_FULL.md §4.4).
				return
			}

			d.fanOutChannel(channel, &Reply{
				Tag:    ReplyPrivMsg,
				Sender: nick,
				Target: channel,
				Text:   pm.Message.Text,
			}, nick)
			return
		}

		// Target is a nick.
		if isPluginNick(target.Name) {
			d.plugins.dispatch(d, target.Name, nick, pm.Message.Text)
			return
		}

		if !d.users.nickInUse(target.Name) && target.Name != nick {
			d.replyErrorTo(u, errNoSuchNick(target.Name))
			return
		}

		reply := &Reply{
			Tag:    ReplyPrivMsg,
			Sender: nick,
			Target: target.Name,
			Text:   pm.Message.Text,
		}

		if target.Name == nick {
			if err := u.send(reply); err != nil {
				d.logger.Warnf("error delivering self-privmsg to %s: %v", nick, err)
			}
			return
		}

		d.users.withUserByNick(target.Name, func(recipient *User) {
			if err := recipient.send(reply); err != nil {
				d.logger.Warnf("error delivering privmsg to %s: %v", target.Name, err)
			}
		})
	})
}

// handleQuit implements SPEC_FULL.md §4.4's QUIT row: fans out Quit to
// the other members of every channel the user is in, removes the user
// from each channel, then removes the user from the registry.
func (d *Dispatcher) handleQuit(pm *ParsedMessage) {
	d.users.withSender(pm.SenderNick, func(u *User) {
		if !u.Registered() {
			d.users.removeSender(pm.SenderNick)
			return
		}

		nick := u.Nick()
		reply := &Reply{Tag: ReplyQuit, Sender: nick, Message: pm.Message.Reason}

		for _, channel := range u.JoinedChannels() {
			d.fanOutChannel(channel, reply, nick)
			d.channels.part(channel, nick)
		}

		d.users.removeByNick(nick)
	})
}

// withRegisteredSender looks up the sender by nick and invokes fn only
// if registered, implementing the registration gate from SPEC_FULL.md
// §4.4: every handler but NICK/USER is silently dropped pre-registration.
func (d *Dispatcher) withRegisteredSender(senderNick string, fn func(*User)) {
	d.users.withSender(senderNick, func(u *User) {
		if !u.Registered() {
			return
		}
		fn(u)
	})
}

// fanOutChannel sends reply to every current member of channel except
// the nick named in exclude (pass "" to include everyone). A write
// failure to one recipient is logged and does not abort the fan-out to
// the rest (SPEC_FULL.md §7: partial fan-out is acceptable).
func (d *Dispatcher) fanOutChannel(channel string, reply *Reply, exclude string) {
	ch, ok := d.channels.get(channel)
	if !ok {
		return
	}

	for _, nick := range ch.Members() {
		if nick == exclude {
			continue
		}
		d.users.withUserByNick(nick, func(u *User) {
			if err := u.send(reply); err != nil {
				d.logger.Warnf("error fanning out to %s: %v", nick, err)
			}
		})
	}
}

func (d *Dispatcher) replyError(senderNick string, err *Error) {
	d.users.withSender(senderNick, func(u *User) {
		d.replyErrorTo(u, err)
	})
}

func (d *Dispatcher) replyErrorTo(u *User, err *Error) {
	if sendErr := u.send(errorReply(err)); sendErr != nil {
		d.logger.Warnf("error delivering error reply to %s: %v", u.Nick(), sendErr)
	}
}

const pluginPrefix = "use_plugin_"

func isPluginNick(nick string) bool {
	return len(nick) > len(pluginPrefix) && nick[:len(pluginPrefix)] == pluginPrefix
}
