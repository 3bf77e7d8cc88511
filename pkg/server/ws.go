package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// The WebSocket transport speaks the exact same line vocabulary as the TCP
// one: each text message carries one or more newline-separated protocol
// lines, and each outbound event is one text message.

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The protocol carries no credentials or cookies, so cross-origin
	// browser clients are accepted.
	CheckOrigin: func(*http.Request) bool { return true },
}

// startWS starts the optional WebSocket listener.
func (s *Server) startWS() error {
	addr := s.cfg.WSAddr
	if addr == "" {
		return nil // WebSocket transport disabled
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.wsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("websocket transport listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("websocket HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
	return nil
}

// wsHandler returns the HTTP handler that upgrades /ws requests and hands the
// connection to the dispatcher.
func (s *Server) wsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		conn.SetReadLimit(int64(s.cfg.MaxLineLen))
		go s.handleConn(&wsLineConn{conn: conn})
	})
	return mux
}

// wsLineConn adapts a websocket connection to lineConn. Incoming text
// messages may carry several lines; they are queued and handed out one at a
// time, so the dispatcher sees the same line-per-call contract as on TCP.
type wsLineConn struct {
	conn    *websocket.Conn
	pending []string
}

func (c *wsLineConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("ws: read: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		c.pending = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	}
	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

func (c *wsLineConn) WriteLine(line string) error {
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *wsLineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *wsLineConn) Close() error {
	return c.conn.Close()
}
