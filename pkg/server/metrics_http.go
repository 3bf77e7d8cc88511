package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// startMetricsHTTP starts a lightweight HTTP server that exposes /metrics in
// Prometheus text exposition format. It runs in the background and shuts down
// when the server context is cancelled.
func (s *Server) startMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return // metrics endpoint disabled
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}

	_, _ = fmt.Fprintf(w, "# HELP chatrelay_uptime_seconds Server uptime in seconds.\n")
	_, _ = fmt.Fprintf(w, "# TYPE chatrelay_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "chatrelay_uptime_seconds %f\n", uptime)

	write("chatrelay_connections_active", "Current live sessions.", "gauge",
		m.ActiveConnections.Load())
	write("chatrelay_connections_total", "Lifetime connections accepted.", "counter",
		m.TotalConnections.Load())
	write("chatrelay_disconnects_total", "Total session teardowns.", "counter",
		m.TotalDisconnects.Load())

	write("chatrelay_broadcasts_total", "Room chat lines fanned out.", "counter",
		m.MessagesBroadcast.Load())
	write("chatrelay_privates_total", "Private messages relayed.", "counter",
		m.PrivateMessages.Load())
	write("chatrelay_nick_changes_total", "Successful nickname registrations and changes.", "counter",
		m.NickChanges.Load())
	write("chatrelay_room_joins_total", "Successful room joins.", "counter",
		m.RoomJoins.Load())
	write("chatrelay_room_leaves_total", "Room departures.", "counter",
		m.RoomLeaves.Load())
	write("chatrelay_protocol_errors_total", "ERROR replies sent.", "counter",
		m.ProtocolErrors.Load())
	write("chatrelay_dropped_lines_total", "Outbound lines dropped for slow peers.", "counter",
		m.DroppedLines.Load())
}
