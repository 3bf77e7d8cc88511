package server

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	return startTestServerCfg(t, DefaultConfig())
}

func startTestServerCfg(t *testing.T, cfg Config) *Server {
	t.Helper()

	cfg.ListenAddr = "127.0.0.1:0"
	srv := New(cfg)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

// testConn wraps one client connection with line-level send/expect helpers.
type testConn struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialTest(t *testing.T, srv *Server) *testConn {
	t.Helper()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &testConn{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testConn) send(line string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("send %q: %v", line, err)
	}
}

func (c *testConn) expect(want string) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("expect %q: read: %v", want, err)
	}
	if got := strings.TrimSuffix(line, "\n"); got != want {
		c.t.Fatalf("expect %q, got %q", want, got)
	}
}

// expectSilence asserts that no line arrives within a short window.
func (c *testConn) expectSilence() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	line, err := c.r.ReadString('\n')
	if err == nil {
		c.t.Fatalf("expected no output, got %q", line)
	}
	if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		c.t.Fatalf("expected read timeout, got %v", err)
	}
}

// expectClose asserts that the server closes the connection.
func (c *testConn) expectClose() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	if err == nil {
		c.t.Fatalf("expected connection close, got %q", line)
	}
	if err == io.EOF {
		return
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		c.t.Fatal("connection still open after expected close")
	}
}

func TestNickAndJoin(t *testing.T) {
	srv := startTestServer(t)
	alice := dialTest(t, srv)

	alice.send("/nick alice")
	alice.expect("OK")
	alice.send("/join lobby")
	alice.expect("OK")
}

func TestCommandsRequireRegistration(t *testing.T) {
	srv := startTestServer(t)
	c := dialTest(t, srv)

	c.send("/join lobby")
	c.expect("ERROR")
	c.send("/leave")
	c.expect("ERROR")
	c.send("/priv alice hi")
	c.expect("ERROR")
	c.send("hello?")
	c.expect("ERROR")
}

func TestNickCollision(t *testing.T) {
	srv := startTestServer(t)
	alice := dialTest(t, srv)
	intruder := dialTest(t, srv)

	alice.send("/nick alice")
	alice.expect("OK")

	intruder.send("/nick alice")
	intruder.expect("ERROR")

	// The failed attempt must not have registered anything.
	intruder.send("/join lobby")
	intruder.expect("ERROR")
}

func TestRoomBroadcastExcludesSender(t *testing.T) {
	srv := startTestServer(t)

	alice := dialTest(t, srv)
	alice.send("/nick alice")
	alice.expect("OK")
	alice.send("/join lobby")
	alice.expect("OK")

	bob := dialTest(t, srv)
	bob.send("/nick bob")
	bob.expect("OK")
	bob.send("/join lobby")
	bob.expect("OK")

	alice.expect("JOINED bob")

	bob.send("hello")
	alice.expect("MESSAGE bob hello")
	bob.expectSilence() // never echoed back to the sender
}

func TestEscapedSlashBroadcast(t *testing.T) {
	srv := startTestServer(t)

	alice := dialTest(t, srv)
	alice.send("/nick alice")
	alice.expect("OK")
	alice.send("/join lobby")
	alice.expect("OK")

	bob := dialTest(t, srv)
	bob.send("/nick bob")
	bob.expect("OK")
	bob.send("/join lobby")
	bob.expect("OK")
	alice.expect("JOINED bob")

	bob.send("//nick is my favourite command")
	alice.expect("MESSAGE bob /nick is my favourite command")
}

func TestPrivateMessage(t *testing.T) {
	srv := startTestServer(t)

	alice := dialTest(t, srv)
	alice.send("/nick alice")
	alice.expect("OK")

	bob := dialTest(t, srv)
	bob.send("/nick bob")
	bob.expect("OK")

	alice.send("/priv bob hi there")
	alice.expect("OK")
	bob.expect("PRIVATE alice hi there")
}

func TestPrivateToUnknownNick(t *testing.T) {
	srv := startTestServer(t)

	alice := dialTest(t, srv)
	alice.send("/nick alice")
	alice.expect("OK")
	alice.send("/join lobby")
	alice.expect("OK")

	alice.send("/priv bob hi there")
	alice.expect("ERROR")
}

func TestNickChangeBroadcast(t *testing.T) {
	srv := startTestServer(t)

	alice := dialTest(t, srv)
	alice.send("/nick alice")
	alice.expect("OK")
	alice.send("/join lobby")
	alice.expect("OK")

	bob := dialTest(t, srv)
	bob.send("/nick bob")
	bob.expect("OK")
	bob.send("/join lobby")
	bob.expect("OK")
	alice.expect("JOINED bob")

	alice.send("/nick alicia")
	alice.expect("OK")
	bob.expect("NEWNICK alice alicia")
	alice.expectSilence() // no NEWNICK echoed to the renamer
}

func TestRoomSwitchLeavesFirst(t *testing.T) {
	srv := startTestServer(t)

	alice := dialTest(t, srv)
	alice.send("/nick alice")
	alice.expect("OK")
	alice.send("/join red")
	alice.expect("OK")

	bob := dialTest(t, srv)
	bob.send("/nick bob")
	bob.expect("OK")
	bob.send("/join red")
	bob.expect("OK")
	alice.expect("JOINED bob")

	carol := dialTest(t, srv)
	carol.send("/nick carol")
	carol.expect("OK")
	carol.send("/join blue")
	carol.expect("OK")

	bob.send("/join blue")
	bob.expect("OK")
	alice.expect("LEFT bob")
	carol.expect("JOINED bob")

	// Rejoining the current room is refused.
	bob.send("/join blue")
	bob.expect("ERROR")
}

func TestLeaveOutsideRoom(t *testing.T) {
	srv := startTestServer(t)

	alice := dialTest(t, srv)
	alice.send("/nick alice")
	alice.expect("OK")

	alice.send("/leave")
	alice.expect("ERROR")

	alice.send("/join lobby")
	alice.expect("OK")
	alice.send("/leave")
	alice.expect("OK")
	alice.send("/leave")
	alice.expect("ERROR")
}

func TestByeLeavesRoomAndCloses(t *testing.T) {
	srv := startTestServer(t)

	alice := dialTest(t, srv)
	alice.send("/nick alice")
	alice.expect("OK")
	alice.send("/join lobby")
	alice.expect("OK")

	bob := dialTest(t, srv)
	bob.send("/nick bob")
	bob.expect("OK")
	bob.send("/join lobby")
	bob.expect("OK")
	alice.expect("JOINED bob")

	bob.send("/bye")
	bob.expect("BYE")
	bob.expectClose()
	alice.expect("LEFT bob")
}

func TestDroppedConnectionFreesNick(t *testing.T) {
	srv := startTestServer(t)

	alice := dialTest(t, srv)
	alice.send("/nick alice")
	alice.expect("OK")
	alice.send("/join lobby")
	alice.expect("OK")

	bob := dialTest(t, srv)
	bob.send("/nick bob")
	bob.expect("OK")
	bob.send("/join lobby")
	bob.expect("OK")
	alice.expect("JOINED bob")

	// Unclean disconnect: no /bye, just a closed socket.
	_ = bob.conn.Close()
	alice.expect("LEFT bob")

	// The nickname is released by the silent cleanup and immediately
	// available to a new connection.
	heir := dialTest(t, srv)
	heir.send("/nick bob")
	heir.expect("OK")
}

func TestUnrecognizedVerb(t *testing.T) {
	srv := startTestServer(t)

	c := dialTest(t, srv)
	c.send("/nick alice")
	c.expect("OK")
	c.send("/dance")
	c.expect("ERROR")
	c.send("")
	c.expect("ERROR")
}

func TestSlowPeerDropsLines(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SendBuffer = 1
	srv := startTestServerCfg(t, cfg)

	alice := dialTest(t, srv)
	alice.send("/nick alice")
	alice.expect("OK")
	alice.send("/join lobby")
	alice.expect("OK")

	bob := dialTest(t, srv)
	bob.send("/nick bob")
	bob.expect("OK")
	bob.send("/join lobby")
	bob.expect("OK")
	alice.expect("JOINED bob")

	carol := dialTest(t, srv)
	carol.send("/nick carol")
	carol.expect("OK")

	// bob never reads. Flooding the room fills bob's socket buffers, then
	// the one-line session buffer; further lines for bob must be dropped
	// whole instead of stalling the dispatcher.
	payload := strings.Repeat("x", 8192)
	for i := 0; i < 400; i++ {
		alice.send(payload)
	}

	// Unrelated traffic still makes progress while bob is stalled. The
	// reply arrives after every flood line has been applied, since lines
	// on one connection are handled in order.
	alice.send("/priv carol still alive")
	alice.expect("OK")
	carol.expect("PRIVATE alice still alive")

	if got := srv.Metrics().DroppedLines.Load(); got == 0 {
		t.Fatal("no outbound lines were dropped for the stalled peer")
	}
}

func TestOversizeLineRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLineLen = 64
	srv := startTestServerCfg(t, cfg)

	alice := dialTest(t, srv)
	alice.send("/nick alice")
	alice.expect("OK")

	// A line past the limit cannot be re-framed, so the server answers
	// ERROR and then closes the connection.
	alice.send(strings.Repeat("x", 200))
	alice.expect("ERROR")
	alice.expectClose()

	// The teardown released the nickname like any other disconnect.
	heir := dialTest(t, srv)
	heir.send("/nick alice")
	heir.expect("OK")
}

func TestMetricsCounters(t *testing.T) {
	srv := startTestServer(t)

	alice := dialTest(t, srv)
	alice.send("/nick alice")
	alice.expect("OK")
	alice.send("/join lobby")
	alice.expect("OK")

	bob := dialTest(t, srv)
	bob.send("/nick bob")
	bob.expect("OK")
	bob.send("/join lobby")
	bob.expect("OK")
	alice.expect("JOINED bob")

	bob.send("hello")
	alice.expect("MESSAGE bob hello")
	bob.send("/dance")
	bob.expect("ERROR")

	m := srv.Metrics().Snapshot()
	if m.TotalConnections != 2 {
		t.Errorf("TotalConnections = %d, want 2", m.TotalConnections)
	}
	if m.NickChanges != 2 {
		t.Errorf("NickChanges = %d, want 2", m.NickChanges)
	}
	if m.RoomJoins != 2 {
		t.Errorf("RoomJoins = %d, want 2", m.RoomJoins)
	}
	if m.MessagesBroadcast != 1 {
		t.Errorf("MessagesBroadcast = %d, want 1", m.MessagesBroadcast)
	}
	if m.ProtocolErrors != 1 {
		t.Errorf("ProtocolErrors = %d, want 1", m.ProtocolErrors)
	}
}
