/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package iris

import (
	"strconv"
	"strings"

	"github.com/btnmasher/iris/shared/itempool"
	"github.com/btnmasher/iris/shared/pool"
)

// builderPool recycles the strings.Builder used by Reply.Render, mirroring
// the teacher's bufpool (server.go's util.NewBufferPool) which served the
// same purpose for Message.RenderBuffer. strings.Builder.Reset() drops its
// backing array rather than zeroing it, so a string returned by String()
// before a builder is recycled stays valid.
var builderPool = pool.New[*strings.Builder](func() *strings.Builder {
	return &strings.Builder{}
})

// messagePool recycles *ParsedMessage between the reader's allocation
// (Parse, and the synthesized-QUIT path in reader.go) and the
// dispatcher's single-threaded consumption of it, mirroring the
// teacher's shared/itempool (itempool_test.go) generic object-pool
// pattern. Every handler copies out the fields it needs from
// pm.Message before returning (including the detached plugin tasks,
// which take receiverNick/body by value), so it's safe for
// Dispatcher.dispatch to recycle pm immediately after the handler for
// it returns.
var messagePool = itempool.New[*ParsedMessage](256, func() *ParsedMessage {
	return &ParsedMessage{}
})

// String constants used when rendering wire text. Carried over from the
// teacher's message.go.
const (
	space = " "
	crlf  = "\r\n"
	colon = ":"
)

// MaxMsgLength bounds the length of one input line, mirroring the
// teacher's settings.go MaxMsgLength. A PRIVMSG body longer than this
// minus the header is rejected at parse time.
const MaxMsgLength = 512

// Target identifies the recipient of a PRIVMSG: either a channel or a
// nick (which may be a plugin-prefixed virtual nick).
type TargetKind int

const (
	TargetNick TargetKind = iota
	TargetChannel
)

type Target struct {
	Kind TargetKind
	Name string
}

// MessageTag discriminates the variants of Message. Dispatch is by a
// switch over this tag (SPEC_FULL.md §9: "dynamic dispatch over message
// variants... do not use inheritance hierarchies"), never a type
// hierarchy.
type MessageTag int

const (
	MsgNick MessageTag = iota
	MsgUser
	MsgPing
	MsgQuit
	MsgJoin
	MsgPart
	MsgPrivMsg
)

// Message is the tagged union of parsed client commands. Only the
// fields relevant to Tag are populated.
type Message struct {
	Tag MessageTag

	Nick     string // MsgNick
	User     string // MsgUser
	RealName string // MsgUser
	Token    string // MsgPing
	Reason   string // MsgQuit
	Channel  string // MsgJoin, MsgPart
	Target   Target // MsgPrivMsg
	Text     string // MsgPrivMsg
}

// ParsedMessage is one line read from a connection, tagged with the
// sender's nick as observed by the reader at read time (SPEC_FULL.md
// §3). senderNick is the connection id when the sender has not yet set
// a nick.
type ParsedMessage struct {
	SenderNick string
	Message    Message
}

// Scrub resets pm to its zero value so it can be safely handed back out
// by messagePool. Satisfies shared/itempool.ScrubbableItem.
func (pm *ParsedMessage) Scrub() {
	pm.SenderNick = ""
	pm.Message = Message{}
}

// Parse interprets one line of wire text (CRLF already stripped by the
// transport) into a ParsedMessage. senderNick is the caller-resolved
// current nick (or connection id) of whoever sent the line, attached to
// the result so the dispatcher never needs to re-resolve it. Grammar is
// specified in SPEC_FULL.md §4.1; this mirrors the shape of the
// teacher's Parse in parser.go (length guards, SplitN on the first ':'
// for the trailing parameter, Fields for the leading words) generalized
// to return the tagged Message union instead of a flat struct.
func Parse(senderNick, line string) (*ParsedMessage, error) {
	if len(line) < 2 {
		return nil, errMessageTooShort
	}
	if len(line) > MaxMsgLength {
		return nil, errMessageTooLong
	}

	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil, errWhitespace
	}

	if line[0] == ':' {
		return nil, errPrefixed
	}

	split := strings.SplitN(line, ":", 2)
	fields := strings.Fields(split[0])
	if len(fields) == 0 {
		return nil, errWhitespace
	}

	command := strings.ToUpper(fields[0])
	params := fields[1:]

	if len(params) > 15 {
		return nil, errTooManyParams
	}

	var trailing string
	if len(split) > 1 {
		trailing = split[1]
	}

	msg, err := buildMessage(command, params, trailing)
	if err != nil {
		return nil, err
	}

	pm := messagePool.New()
	pm.SenderNick = senderNick
	pm.Message = *msg
	return pm, nil
}

func buildMessage(command string, params []string, trailing string) (*Message, error) {
	switch command {
	case "NICK":
		if len(params) < 1 || params[0] == "" {
			return nil, errNeedMoreParams(command)
		}
		nick := params[0]
		if !validNick(nick) {
			return nil, errInvalidNick()
		}
		return &Message{Tag: MsgNick, Nick: nick}, nil

	case "USER":
		if len(params) < 3 {
			return nil, errNeedMoreParams(command)
		}
		return &Message{Tag: MsgUser, User: params[0], RealName: trailing}, nil

	case "PING":
		token := trailing
		if token == "" && len(params) > 0 {
			token = params[0]
		}
		return &Message{Tag: MsgPing, Token: token}, nil

	case "QUIT":
		return &Message{Tag: MsgQuit, Reason: trailing}, nil

	case "JOIN":
		if len(params) < 1 || !strings.HasPrefix(params[0], "#") {
			return nil, errNeedMoreParams(command)
		}
		return &Message{Tag: MsgJoin, Channel: params[0]}, nil

	case "PART":
		if len(params) < 1 || !strings.HasPrefix(params[0], "#") {
			return nil, errNeedMoreParams(command)
		}
		return &Message{Tag: MsgPart, Channel: params[0]}, nil

	case "PRIVMSG":
		if len(params) < 1 {
			return nil, errNeedMoreParams(command)
		}
		target := params[0]
		kind := TargetNick
		if strings.HasPrefix(target, "#") {
			kind = TargetChannel
		}
		return &Message{
			Tag:    MsgPrivMsg,
			Target: Target{Kind: kind, Name: target},
			Text:   trailing,
		}, nil

	default:
		return nil, errUnknownCommand(command)
	}
}

// validNick enforces SPEC_FULL.md §4.1's NICK grammar: 1-9 characters,
// first a letter, rest letters/digits/'-'/'_'.
func validNick(nick string) bool {
	if len(nick) == 0 || len(nick) > 9 {
		return false
	}
	if !isLetter(nick[0]) {
		return false
	}
	for i := 1; i < len(nick); i++ {
		c := nick[i]
		if !isLetter(c) && !isDigit(c) && c != '-' && c != '_' {
			return false
		}
	}
	return true
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// ReplyTag discriminates the variants of Reply, mirroring MessageTag.
type ReplyTag int

const (
	ReplyWelcome ReplyTag = iota
	ReplyPong
	ReplyPrivMsg
	ReplyJoin
	ReplyPart
	ReplyQuit
	ReplyError
)

// Reply is the tagged union of server replies. Only the fields relevant
// to Tag are populated. Rendered to wire text via Render.
type Reply struct {
	Tag ReplyTag

	Server   string // ReplyWelcome
	Nick     string // ReplyWelcome
	RealName string // ReplyWelcome

	Token string // ReplyPong

	Sender  string // ReplyPrivMsg, ReplyJoin, ReplyPart, ReplyQuit
	Target  string // ReplyPrivMsg
	Text    string // ReplyPrivMsg
	Channel string // ReplyJoin, ReplyPart
	Message string // ReplyQuit

	Code uint16 // ReplyError
	Body string // ReplyError
}

// Render formats a Reply into one CRLF-terminated wire line per
// SPEC_FULL.md §4.1. Mirrors the teacher's Message.RenderBuffer in
// message.go, generalized to switch on the Reply tag instead of
// conditionally assembling a flat struct's fields.
func (r *Reply) Render() string {
	b := builderPool.New()
	defer builderPool.Recycle(b)

	switch r.Tag {
	case ReplyWelcome:
		b.WriteString(colon)
		b.WriteString(r.Server)
		b.WriteString(space)
		b.WriteString("001")
		b.WriteString(space)
		b.WriteString(r.Nick)
		b.WriteString(space)
		b.WriteString(colon)
		b.WriteString("Welcome to the server, ")
		b.WriteString(r.RealName)
		b.WriteString("!")

	case ReplyPong:
		b.WriteString("PONG")
		b.WriteString(space)
		b.WriteString(colon)
		b.WriteString(r.Token)

	case ReplyPrivMsg:
		b.WriteString(colon)
		b.WriteString(r.Sender)
		b.WriteString(space)
		b.WriteString("PRIVMSG")
		b.WriteString(space)
		b.WriteString(r.Target)
		b.WriteString(space)
		b.WriteString(colon)
		b.WriteString(r.Text)

	case ReplyJoin:
		b.WriteString(colon)
		b.WriteString(r.Sender)
		b.WriteString(space)
		b.WriteString("JOIN")
		b.WriteString(space)
		b.WriteString(r.Channel)

	case ReplyPart:
		b.WriteString(colon)
		b.WriteString(r.Sender)
		b.WriteString(space)
		b.WriteString("PART")
		b.WriteString(space)
		b.WriteString(r.Channel)

	case ReplyQuit:
		b.WriteString(colon)
		b.WriteString(r.Sender)
		b.WriteString(space)
		b.WriteString("QUIT")
		b.WriteString(space)
		b.WriteString(colon)
		b.WriteString(r.Message)

	case ReplyError:
		b.WriteString(strconv.Itoa(int(r.Code)))
		b.WriteString(space)
		b.WriteString(colon)
		b.WriteString(r.Body)
	}

	b.WriteString(crlf)
	return b.String()
}

func (r *Reply) String() string {
	return r.Render()
}

func errorReply(err *Error) *Reply {
	return &Reply{Tag: ReplyError, Code: uint16(err.Kind), Body: err.Message}
}
