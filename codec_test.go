/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package iris

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse_grammar(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expectErr error
	}{
		{name: "too short", input: "a", expectErr: errMessageTooShort},
		{name: "too long", input: strings.Repeat("a", MaxMsgLength+1), expectErr: errMessageTooLong},
		{name: "all whitespace", input: "   ", expectErr: errWhitespace},
		{name: "client prefixed", input: ":nick PING", expectErr: errPrefixed},
		{
			name:      "too many params",
			input:     fmt.Sprintf("PRIVMSG %s :hi", strings.Repeat("a ", 16)),
			expectErr: errTooManyParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("conn1", tt.input)
			assert.Equal(t, tt.expectErr, err)
		})
	}
}

func TestParse_nick(t *testing.T) {
	pm, err := Parse("conn1", "NICK alice")
	assert.NoError(t, err)
	assert.Equal(t, MsgNick, pm.Message.Tag)
	assert.Equal(t, "alice", pm.Message.Nick)
	assert.Equal(t, "conn1", pm.SenderNick)

	_, err = Parse("conn1", "NICK")
	assert.Equal(t, KindNeedMoreParams, err.(*Error).Kind)

	_, err = Parse("conn1", "NICK reallylongname")
	assert.Equal(t, KindInvalidNick, err.(*Error).Kind)
}

func TestParse_user(t *testing.T) {
	pm, err := Parse("alice", "USER alice 0 * :Alice Example")
	assert.NoError(t, err)
	assert.Equal(t, MsgUser, pm.Message.Tag)
	assert.Equal(t, "Alice Example", pm.Message.RealName)

	_, err = Parse("alice", "USER alice")
	assert.Equal(t, KindNeedMoreParams, err.(*Error).Kind)
}

func TestParse_ping(t *testing.T) {
	pm, err := Parse("alice", "PING :abc123")
	assert.NoError(t, err)
	assert.Equal(t, "abc123", pm.Message.Token)
}

func TestParse_joinPart(t *testing.T) {
	pm, err := Parse("alice", "JOIN #general")
	assert.NoError(t, err)
	assert.Equal(t, MsgJoin, pm.Message.Tag)
	assert.Equal(t, "#general", pm.Message.Channel)

	_, err = Parse("alice", "JOIN general")
	assert.Equal(t, KindNeedMoreParams, err.(*Error).Kind)

	pm, err = Parse("alice", "PART #general")
	assert.NoError(t, err)
	assert.Equal(t, MsgPart, pm.Message.Tag)
}

func TestParse_privmsgTarget(t *testing.T) {
	pm, err := Parse("alice", "PRIVMSG #general :hello there")
	assert.NoError(t, err)
	assert.Equal(t, TargetChannel, pm.Message.Target.Kind)
	assert.Equal(t, "#general", pm.Message.Target.Name)
	assert.Equal(t, "hello there", pm.Message.Text)

	pm, err = Parse("alice", "PRIVMSG bob :hi")
	assert.NoError(t, err)
	assert.Equal(t, TargetNick, pm.Message.Target.Kind)
	assert.Equal(t, "bob", pm.Message.Target.Name)
}

func TestParse_unknownCommand(t *testing.T) {
	_, err := Parse("alice", "FROBNICATE foo")
	assert.Equal(t, KindUnknownCommand, err.(*Error).Kind)
}

func TestValidNick(t *testing.T) {
	tests := []struct {
		nick string
		want bool
	}{
		{"a", true},
		{"abcdefghi", true},       // 9 chars: boundary, valid
		{"abcdefghij", false},     // 10 chars: over the boundary
		{"", false},
		{"1abc", false}, // must start with a letter
		{"a_b-c", true},
		{"a b", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, validNick(tt.nick), "nick=%q", tt.nick)
	}
}

func TestReply_render(t *testing.T) {
	r := &Reply{Tag: ReplyJoin, Sender: "alice", Channel: "#general"}
	assert.Equal(t, ":alice JOIN #general\r\n", r.Render())

	r = &Reply{Tag: ReplyError, Code: uint16(KindNoSuchNick), Body: "bob: No such nick"}
	assert.Equal(t, "401 :bob: No such nick\r\n", r.Render())
}
