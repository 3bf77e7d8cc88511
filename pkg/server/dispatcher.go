package server

import (
	"bufio"
	"errors"
	"log/slog"

	"github.com/dcoutinho/chatrelay/pkg/model"
	"github.com/dcoutinho/chatrelay/pkg/protocol"
)

// handleConn serves one connection for its whole lifetime: attach an
// unregistered session, read complete lines, apply each one, and tear the
// session down on /bye, peer close, or transport error. Runs as the
// connection's reader goroutine for both transports.
func (s *Server) handleConn(conn lineConn) {
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	slog.Info("client connected", "remote", conn.RemoteAddr())

	sess := s.attach(conn)

	defer func() {
		if r := recover(); r != nil {
			// Invariant violation while processing this session. Abort only
			// this session; the state dump is best-effort.
			s.mu.Lock()
			dump := s.registry.Dump()
			s.mu.Unlock()
			slog.Error("internal consistency failure",
				"remote", conn.RemoteAddr(), "panic", r, "registry", dump)
			s.closeSession(sess, false)
		}
	}()

	for {
		line, err := conn.ReadLine()
		if err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				// The peer overran the line limit but is still writable,
				// so it gets an ERROR first. The scanner cannot find the
				// next line boundary mid-overrun, so the connection
				// cannot continue past this point.
				s.mu.Lock()
				s.replyError(sess)
				s.mu.Unlock()
			}
			// Peer EOF and read errors get an otherwise silent cleanup:
			// the peer is gone, so no reply is owed.
			slog.Debug("connection closed", "remote", conn.RemoteAddr(), "err", err)
			s.closeSession(sess, false)
			return
		}

		cmd := protocol.ParseCommand(line)
		if cmd.Kind == protocol.CmdBye {
			s.closeSession(sess, true)
			return
		}
		s.apply(sess, cmd)
	}
}

// attach registers a fresh unregistered session for a transport and starts its
// writer goroutine.
func (s *Server) attach(conn lineConn) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &session{
		state: s.registry.AddSession(),
		conn:  conn,
		send:  make(chan string, s.cfg.SendBuffer),
	}
	s.conns[sess.state.ID] = sess
	go sess.writeLoop()
	return sess
}

// apply runs one parsed command through the session state machine. The whole
// transition, registry mutation and fan-out included, happens under mu; each
// line is fully applied or fully rejected before the next one is read.
func (s *Server) apply(sess *session, cmd protocol.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := sess.state
	switch cmd.Kind {
	case protocol.CmdNick:
		s.applyNick(sess, cmd.Arg)

	case protocol.CmdJoin:
		s.applyJoin(sess, cmd.Arg)

	case protocol.CmdLeave:
		if st.State != model.StateInRoom {
			s.replyError(sess)
			return
		}
		room := st.Room
		s.registry.ClearRoom(st)
		s.reply(sess, protocol.OK())
		s.fanout(room, protocol.Left(st.Nick), sess)
		s.metrics.RoomLeaves.Add(1)

	case protocol.CmdPriv:
		s.applyPriv(sess, cmd.Arg, cmd.Text)

	case protocol.CmdText:
		if st.State != model.StateInRoom {
			s.replyError(sess)
			return
		}
		s.fanout(st.Room, protocol.Message(st.Nick, cmd.Text), sess)
		s.metrics.MessagesBroadcast.Add(1)

	default:
		s.replyError(sess)
	}
}

func (s *Server) applyNick(sess *session, name string) {
	st := sess.state
	if err := model.ValidateName(name); err != nil {
		s.replyError(sess)
		return
	}
	old := st.Nick
	if err := s.registry.RegisterNick(st, name); err != nil {
		s.replyError(sess)
		return
	}
	s.reply(sess, protocol.OK())
	if st.State == model.StateInRoom && old != name {
		s.fanout(st.Room, protocol.NewNick(old, name), sess)
	}
	s.metrics.NickChanges.Add(1)
	slog.Debug("nickname registered", "remote", sess.conn.RemoteAddr(), "old", old, "nick", name)
}

func (s *Server) applyJoin(sess *session, room string) {
	st := sess.state
	if st.State == model.StateUnregistered {
		s.replyError(sess)
		return
	}
	if err := model.ValidateName(room); err != nil {
		s.replyError(sess)
		return
	}
	if st.State == model.StateInRoom && st.Room == room {
		s.replyError(sess) // already in that room
		return
	}
	if st.State == model.StateInRoom {
		// Switching rooms: the old room sees a normal leave first.
		old := st.Room
		s.registry.ClearRoom(st)
		s.fanout(old, protocol.Left(st.Nick), sess)
		s.metrics.RoomLeaves.Add(1)
	}
	s.registry.SetRoom(st, room)
	s.reply(sess, protocol.OK())
	s.fanout(room, protocol.Joined(st.Nick), sess)
	s.metrics.RoomJoins.Add(1)
	slog.Debug("joined room", "nick", st.Nick, "room", room)
}

func (s *Server) applyPriv(sess *session, dest, text string) {
	st := sess.state
	if st.State == model.StateUnregistered {
		s.replyError(sess)
		return
	}
	target, ok := s.registry.LookupNick(dest)
	if !ok {
		s.replyError(sess)
		return
	}
	s.reply(sess, protocol.OK())
	if tc, ok := s.conns[target.ID]; ok {
		s.deliver(tc, protocol.Private(st.Nick, text))
	}
	s.metrics.PrivateMessages.Add(1)
}

// closeSession is the single teardown path shared by voluntary /bye, peer
// EOF, and transport errors. It performs the leave side effects, releases the
// nickname, and retires the transport. Safe to call more than once.
func (s *Server) closeSession(sess *session, sendBye bool) {
	s.mu.Lock()
	st := sess.state
	if _, ok := s.conns[st.ID]; !ok {
		s.mu.Unlock()
		return // already closed
	}
	nick := st.Nick
	if st.State == model.StateInRoom {
		room := st.Room
		s.registry.ClearRoom(st)
		s.fanout(room, protocol.Left(nick), sess)
		s.metrics.RoomLeaves.Add(1)
	}
	if sendBye {
		s.deliver(sess, protocol.Bye())
	}
	s.registry.RemoveSession(st)
	delete(s.conns, st.ID)
	close(sess.send) // writer drains the queue, then closes the transport
	s.mu.Unlock()

	s.metrics.ActiveConnections.Add(-1)
	s.metrics.TotalDisconnects.Add(1)
	slog.Info("client disconnected", "remote", sess.conn.RemoteAddr(), "nick", nick)
}

// reply queues the originator's own OK/ERROR/BYE line. Always invoked before
// any fan-out for the same command, preserving per-connection FIFO order.
func (s *Server) reply(sess *session, ev protocol.Event) {
	s.deliver(sess, ev)
}

func (s *Server) replyError(sess *session) {
	s.metrics.ProtocolErrors.Add(1)
	s.deliver(sess, protocol.Error())
}

// deliver queues one event line for a session, dropping it if the peer's
// outbound buffer is full.
func (s *Server) deliver(sess *session, ev protocol.Event) {
	if !sess.enqueue(ev.Encode()) {
		s.metrics.DroppedLines.Add(1)
		slog.Warn("slow peer, dropping line", "remote", sess.conn.RemoteAddr(), "event", ev.Encode())
	}
}

// fanout broadcasts an event to every member of a room except the originator.
func (s *Server) fanout(room string, ev protocol.Event, except *session) {
	for _, member := range s.registry.MembersOf(room) {
		if except != nil && member.ID == except.state.ID {
			continue
		}
		if mc, ok := s.conns[member.ID]; ok {
			s.deliver(mc, ev)
		}
	}
}
