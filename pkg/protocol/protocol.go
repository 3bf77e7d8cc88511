// Package protocol implements the line-oriented chat command and event codec.
//
// Input is one complete newline-terminated line per call: either a slash
// command (/nick, /join, /leave, /bye, /priv) or plain chat text. A leading
// "//" escapes a literal slash in chat text. Output events are single lines
// of the fixed vocabulary OK, ERROR, MESSAGE, NEWNICK, JOINED, LEFT, PRIVATE
// and BYE. The codec does no I/O; cross-read buffering of partial lines is
// the dispatcher's job.
package protocol

import (
	"fmt"
	"strings"
)

// CommandKind identifies what a parsed input line means.
type CommandKind int

const (
	CmdInvalid CommandKind = iota // malformed or unrecognized command
	CmdNick                       // /nick <newname>
	CmdJoin                       // /join <room>
	CmdLeave                      // /leave
	CmdBye                        // /bye
	CmdPriv                       // /priv <nick> <message>
	CmdText                       // plain chat text (slash-escape already resolved)
)

// Command is one parsed input line.
type Command struct {
	Kind CommandKind
	Arg  string // new nickname (CmdNick), room (CmdJoin) or destination (CmdPriv)
	Text string // message body (CmdPriv, CmdText)
}

// ParseCommand parses one complete input line into a Command. A trailing
// carriage return is stripped so CRLF clients work. Empty and
// whitespace-only lines, commands with missing or extra arguments, and
// unrecognized verbs all come back as CmdInvalid.
func ParseCommand(line string) Command {
	line = strings.TrimSuffix(line, "\r")
	if strings.TrimSpace(line) == "" {
		return Command{Kind: CmdInvalid}
	}
	if strings.HasPrefix(line, "//") {
		// Escaped slash: strip the first one and treat the rest as text.
		return Command{Kind: CmdText, Text: line[1:]}
	}
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: CmdText, Text: line}
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/nick":
		if len(fields) != 2 {
			return Command{Kind: CmdInvalid}
		}
		return Command{Kind: CmdNick, Arg: fields[1]}
	case "/join":
		if len(fields) != 2 {
			return Command{Kind: CmdInvalid}
		}
		return Command{Kind: CmdJoin, Arg: fields[1]}
	case "/leave":
		if len(fields) != 1 {
			return Command{Kind: CmdInvalid}
		}
		return Command{Kind: CmdLeave}
	case "/bye":
		if len(fields) != 1 {
			return Command{Kind: CmdInvalid}
		}
		return Command{Kind: CmdBye}
	case "/priv":
		rest := strings.TrimLeft(line[len("/priv"):], " \t")
		sp := strings.IndexAny(rest, " \t")
		if sp < 0 {
			return Command{Kind: CmdInvalid} // no message after the destination
		}
		dest := rest[:sp]
		msg := strings.TrimLeft(rest[sp:], " \t")
		if dest == "" || msg == "" {
			return Command{Kind: CmdInvalid}
		}
		return Command{Kind: CmdPriv, Arg: dest, Text: msg}
	default:
		return Command{Kind: CmdInvalid}
	}
}

// EventType identifies a server-to-client event line.
type EventType int

const (
	EventOK EventType = iota
	EventError
	EventMessage // MESSAGE <nick> <text>
	EventNewNick // NEWNICK <old> <new>
	EventJoined  // JOINED <nick>
	EventLeft    // LEFT <nick>
	EventPrivate // PRIVATE <nick> <text>
	EventBye
)

// Event is one structured server-to-client event.
type Event struct {
	Type EventType
	From string // sender (MESSAGE, PRIVATE, JOINED, LEFT), old nickname (NEWNICK)
	To   string // new nickname (NEWNICK only)
	Text string // body (MESSAGE, PRIVATE)
}

func OK() Event    { return Event{Type: EventOK} }
func Error() Event { return Event{Type: EventError} }
func Bye() Event   { return Event{Type: EventBye} }

func Message(nick, text string) Event { return Event{Type: EventMessage, From: nick, Text: text} }

func NewNick(oldNick, nick string) Event { return Event{Type: EventNewNick, From: oldNick, To: nick} }

func Joined(nick string) Event { return Event{Type: EventJoined, From: nick} }
func Left(nick string) Event   { return Event{Type: EventLeft, From: nick} }

func Private(nick, text string) Event { return Event{Type: EventPrivate, From: nick, Text: text} }

// Encode renders the event as a single protocol line, without the trailing
// newline; the transport adds its own framing.
func (e Event) Encode() string {
	switch e.Type {
	case EventOK:
		return "OK"
	case EventError:
		return "ERROR"
	case EventMessage:
		return "MESSAGE " + e.From + " " + e.Text
	case EventNewNick:
		return "NEWNICK " + e.From + " " + e.To
	case EventJoined:
		return "JOINED " + e.From
	case EventLeft:
		return "LEFT " + e.From
	case EventPrivate:
		return "PRIVATE " + e.From + " " + e.Text
	case EventBye:
		return "BYE"
	default:
		return "ERROR"
	}
}

// DecodeEvent parses one server event line back into an Event. Used by the
// client-side renderer.
func DecodeEvent(line string) (Event, error) {
	line = strings.TrimSuffix(line, "\r")
	switch {
	case line == "OK":
		return Event{Type: EventOK}, nil
	case line == "ERROR":
		return Event{Type: EventError}, nil
	case line == "BYE":
		return Event{Type: EventBye}, nil
	}

	parts := strings.SplitN(line, " ", 3)
	switch parts[0] {
	case "MESSAGE", "PRIVATE":
		if len(parts) != 3 {
			return Event{}, fmt.Errorf("protocol: malformed %s event %q", parts[0], line)
		}
		t := EventMessage
		if parts[0] == "PRIVATE" {
			t = EventPrivate
		}
		return Event{Type: t, From: parts[1], Text: parts[2]}, nil
	case "NEWNICK":
		if len(parts) != 3 {
			return Event{}, fmt.Errorf("protocol: malformed NEWNICK event %q", line)
		}
		return Event{Type: EventNewNick, From: parts[1], To: parts[2]}, nil
	case "JOINED", "LEFT":
		if len(parts) != 2 {
			return Event{}, fmt.Errorf("protocol: malformed %s event %q", parts[0], line)
		}
		t := EventJoined
		if parts[0] == "LEFT" {
			t = EventLeft
		}
		return Event{Type: t, From: parts[1]}, nil
	default:
		return Event{}, fmt.Errorf("protocol: unknown event %q", line)
	}
}
