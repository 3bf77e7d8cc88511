package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime connections accepted (TCP + WebSocket)
	ActiveConnections atomic.Int64 // current live sessions
	TotalDisconnects  atomic.Int64 // total session teardowns (clean + unclean)

	// Protocol counters
	MessagesBroadcast atomic.Int64 // room chat lines fanned out
	PrivateMessages   atomic.Int64 // private messages relayed
	NickChanges       atomic.Int64 // successful /nick commands
	RoomJoins         atomic.Int64 // successful /join commands
	RoomLeaves        atomic.Int64 // room departures (leave, switch, disconnect)
	ProtocolErrors    atomic.Int64 // ERROR replies sent
	DroppedLines      atomic.Int64 // outbound lines dropped for slow peers
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	MessagesBroadcast int64 `json:"messages_broadcast"`
	PrivateMessages   int64 `json:"private_messages"`
	NickChanges       int64 `json:"nick_changes"`
	RoomJoins         int64 `json:"room_joins"`
	RoomLeaves        int64 `json:"room_leaves"`
	ProtocolErrors    int64 `json:"protocol_errors"`
	DroppedLines      int64 `json:"dropped_lines"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		TotalDisconnects:  m.TotalDisconnects.Load(),
		MessagesBroadcast: m.MessagesBroadcast.Load(),
		PrivateMessages:   m.PrivateMessages.Load(),
		NickChanges:       m.NickChanges.Load(),
		RoomJoins:         m.RoomJoins.Load(),
		RoomLeaves:        m.RoomLeaves.Load(),
		ProtocolErrors:    m.ProtocolErrors.Load(),
		DroppedLines:      m.DroppedLines.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"broadcasts", s.MessagesBroadcast,
		"privates", s.PrivateMessages,
		"errors", s.ProtocolErrors,
		"dropped", s.DroppedLines,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
