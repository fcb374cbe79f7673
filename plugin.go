/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

// Package iris implements the message dispatch core of a small IRC-like
// chat server. Beyond NICK/USER/PING/JOIN/PART/PRIVMSG/QUIT, PRIVMSG
// accepts server-side plugin targets, e.g. "PRIVMSG use_plugin_reminder
// :300 stand up and stretch" schedules a reply from "plugin_reminder"
// five minutes later.
package iris

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sirupsen/logrus"
)

// Plugin is a server-side virtual recipient addressed by a
// "use_plugin_"-prefixed nick, per SPEC_FULL.md §4.6. Generalizes the
// teacher's Handlers map[string]MessageHandler (handlers.go/router.go)
// from a per-command table into a per-target-nick table, since plugins
// are dispatched by PRIVMSG target rather than by command name.
type Plugin interface {
	// Name is the plugin's target nick, including the "use_plugin_" prefix.
	Name() string
	// Invoke runs the plugin for one PRIVMSG body sent by receiverNick.
	// Replies are delivered asynchronously through reg; a synchronous
	// error return becomes a PluginCommandError reply to the sender.
	Invoke(reg *UserRegistry, receiverNick, body string) error
}

// PluginRegistry holds the server's installed plugins, keyed by nick.
type PluginRegistry struct {
	plugins map[string]Plugin
	wg      *conc.WaitGroup
	logger  *logrus.Entry
}

// NewPluginRegistry returns a registry with the built-in sample and
// reminder plugins installed, per SPEC_FULL.md §4.6. wg tracks detached
// plugin goroutines so the server can wait for them on shutdown, mirroring
// the teacher's cmd/dircd/main.go use of conc.WaitGroup for the listener
// goroutine.
func NewPluginRegistry(wg *conc.WaitGroup, logger *logrus.Entry) *PluginRegistry {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	reg := &PluginRegistry{
		plugins: make(map[string]Plugin),
		wg:      wg,
		logger:  logger.WithField("component", "plugin"),
	}
	reg.register(&samplePlugin{wg: wg})
	reg.register(&reminderPlugin{wg: wg, logger: reg.logger})
	return reg
}

func (reg *PluginRegistry) register(p Plugin) {
	reg.plugins[p.Name()] = p
}

// dispatch runs the plugin named by targetNick against body, replying to
// receiverNick with a PluginCommandError if the nick is unknown or the
// plugin rejects the body synchronously. Called from
// Dispatcher.handlePrivMsg, which has already confirmed the sender is
// registered.
func (reg *PluginRegistry) dispatch(d *Dispatcher, targetNick, receiverNick, body string) {
	p, ok := reg.plugins[targetNick]
	if !ok {
		d.withRegisteredSender(receiverNick, func(u *User) {
			d.replyErrorTo(u, errPluginCommand(fmt.Sprintf("no such plugin: %s", targetNick)))
		})
		return
	}

	if err := p.Invoke(d.users, receiverNick, body); err != nil {
		d.withRegisteredSender(receiverNick, func(u *User) {
			d.replyErrorTo(u, errPluginCommand(err.Error()))
		})
	}
}

// samplePlugin echoes one PrivMsg body back to the caller, sent from the
// synthetic "plugin_sample" sender nick (distinct from its lookup name
// "use_plugin_sample"). Spawns a detached task the same way reminderPlugin
// does, per spec.md §4.6: "the task acquires the registry lock, finds the
// receiver, and writes one PrivMsg reply."
type samplePlugin struct {
	wg *conc.WaitGroup
}

func (p *samplePlugin) Name() string { return "use_plugin_sample" }

func (p *samplePlugin) Invoke(reg *UserRegistry, receiverNick, body string) error {
	reply := &Reply{
		Tag:    ReplyPrivMsg,
		Sender: "plugin_sample",
		Target: receiverNick,
		Text:   body,
	}

	p.wg.Go(func() {
		reg.withSender(receiverNick, func(u *User) {
			u.send(reply)
		})
	})

	return nil
}

// reminderPlugin parses "<seconds> <text>" and delivers <text> back to
// the caller, from the synthetic "plugin_reminder" sender nick (distinct
// from its lookup name "use_plugin_reminder"), after the given delay.
// A malformed body is rejected synchronously; a well-formed one spawns a
// detached goroutine tracked by wg, mirroring the teacher's
// cmd/dircd/main.go pattern of conc.WaitGroup.Go for background work that
// must not crash the caller on panic.
type reminderPlugin struct {
	wg     *conc.WaitGroup
	logger *logrus.Entry
}

func (p *reminderPlugin) Name() string { return "use_plugin_reminder" }

func (p *reminderPlugin) Invoke(reg *UserRegistry, receiverNick, body string) error {
	parts := strings.SplitN(strings.TrimSpace(body), " ", 2)
	if len(parts) < 2 || parts[1] == "" {
		return fmt.Errorf("usage: <seconds> <message>")
	}

	seconds, err := strconv.Atoi(parts[0])
	if err != nil || seconds < 0 {
		return fmt.Errorf("invalid delay: %s", parts[0])
	}

	text := parts[1]
	delay := time.Duration(seconds) * time.Second

	p.wg.Go(func() {
		time.Sleep(delay)

		reply := &Reply{
			Tag:    ReplyPrivMsg,
			Sender: "plugin_reminder",
			Target: receiverNick,
			Text:   text,
		}

		// Silently discarded if the receiver has since disconnected:
		// withSender is a no-op on an unknown nick.
		reg.withSender(receiverNick, func(u *User) {
			if sendErr := u.send(reply); sendErr != nil {
				p.logger.Warnf("error delivering reminder to %s: %v", receiverNick, sendErr)
			}
		})
	})

	return nil
}
