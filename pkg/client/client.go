// Package client implements the thin terminal front-end for chatrelay: it
// pumps raw command/chat lines up to the server and renders received event
// lines for display.
package client

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/dcoutinho/chatrelay/pkg/protocol"
)

// Farewell is printed when the server acknowledges our /bye.
const Farewell = "goodbye!"

// Render returns the display form of one server event line.
//
//	MESSAGE n t  -> "n: t"
//	JOINED n     -> "n entered the room"
//	LEFT n       -> "n left the room"
//	NEWNICK o n  -> "o changed name to n"
//	PRIVATE n t  -> "n (private message): t"
//	BYE          -> farewell line
//
// Lines outside the event vocabulary are shown as-is, so a protocol-level
// surprise is visible rather than swallowed.
func Render(line string) string {
	ev, err := protocol.DecodeEvent(line)
	if err != nil {
		return line
	}
	switch ev.Type {
	case protocol.EventMessage:
		return ev.From + ": " + ev.Text
	case protocol.EventJoined:
		return ev.From + " entered the room"
	case protocol.EventLeft:
		return ev.From + " left the room"
	case protocol.EventNewNick:
		return ev.From + " changed name to " + ev.To
	case protocol.EventPrivate:
		return ev.From + " (private message): " + ev.Text
	case protocol.EventBye:
		return Farewell
	default: // OK, ERROR
		return line
	}
}

// Client connects to a chatrelay server and shuttles lines between the
// terminal and the socket.
type Client struct {
	conn net.Conn
	out  io.Writer
}

// Dial connects to a server address.
func Dial(addr string, out io.Writer) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, out: out}, nil
}

// Send writes one raw line to the server.
func (c *Client) Send(line string) error {
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("client: send: %w", err)
	}
	return nil
}

// Close closes the server connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Run shuttles lines until the server says BYE or either side closes. Input
// lines from in are sent verbatim; received events are rendered to out.
func (c *Client) Run(in io.Reader) error {
	done := make(chan error, 2)

	go func() {
		sc := bufio.NewScanner(c.conn)
		for sc.Scan() {
			line := sc.Text()
			fmt.Fprintln(c.out, Render(line))
			if ev, err := protocol.DecodeEvent(line); err == nil && ev.Type == protocol.EventBye {
				done <- nil
				return
			}
		}
		done <- sc.Err()
	}()

	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			if err := c.Send(sc.Text()); err != nil {
				slog.Error("send failed", "err", err)
				done <- err
				return
			}
		}
		// stdin closed: ask the server to drop us cleanly.
		_ = c.Send("/bye")
	}()

	err := <-done
	_ = c.conn.Close()
	return err
}
