package server

import (
	"bufio"
	"io"
	"net"

	"github.com/dcoutinho/chatrelay/pkg/model"
)

// lineConn is a transport carrying newline-delimited text lines. The TCP and
// WebSocket transports both implement it, so the dispatcher never sees the
// difference.
type lineConn interface {
	// ReadLine blocks until one complete line is available, without its
	// terminator. Returns io.EOF on orderly peer close.
	ReadLine() (string, error)
	// WriteLine writes one line; the transport supplies its own framing.
	WriteLine(line string) error
	RemoteAddr() string
	Close() error
}

// session pairs a connection's protocol state with its transport and outbound
// queue. The state field is mutated only under the server's state mutex; the
// send channel is written and closed under the same mutex.
type session struct {
	state *model.Session
	conn  lineConn
	send  chan string // encoded event lines queued for the writer goroutine
}

// writeLoop drains the outbound queue onto the transport. It exits when the
// dispatcher closes the send channel or the peer becomes unwritable, and owns
// closing the transport.
func (s *session) writeLoop() {
	for line := range s.send {
		if err := s.conn.WriteLine(line); err != nil {
			// The reader will observe the dead connection and tear the
			// session down; stop writing here.
			break
		}
	}
	_ = s.conn.Close()
}

// enqueue offers one line to the outbound queue without blocking. Reports
// false when the peer is too slow and the line was dropped. Whole lines are
// dropped, never partial ones, so framing stays intact.
func (s *session) enqueue(line string) bool {
	select {
	case s.send <- line:
		return true
	default:
		return false
	}
}

// tcpLineConn adapts a stream socket to lineConn. A bufio.Scanner holds back
// trailing partial lines across reads and caps line length.
type tcpLineConn struct {
	conn net.Conn
	sc   *bufio.Scanner
}

func newTCPLineConn(conn net.Conn, maxLine int) *tcpLineConn {
	sc := bufio.NewScanner(conn)
	// The scanner's limit is the larger of max and the initial capacity,
	// so the initial buffer must not exceed maxLine.
	sc.Buffer(make([]byte, 0, min(1024, maxLine)), maxLine)
	return &tcpLineConn{conn: conn, sc: sc}
}

func (c *tcpLineConn) ReadLine() (string, error) {
	if !c.sc.Scan() {
		if err := c.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return c.sc.Text(), nil
}

func (c *tcpLineConn) WriteLine(line string) error {
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}

func (c *tcpLineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *tcpLineConn) Close() error {
	return c.conn.Close()
}
