package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dcoutinho/chatrelay/pkg/model"
)

// ErrNickTaken is returned when another live session already holds a nickname.
var ErrNickTaken = errors.New("nickname already taken")

// Registry holds the authoritative nickname→session and room→member mappings.
//
// Nicknames are unique and case-sensitive. A room exists iff it has at least
// one member; empty rooms are deleted immediately. Member sets are keyed by
// session ID so a nickname change never rewrites room membership.
//
// The Registry does no locking of its own: all access is serialized by the
// server's state mutex, because the uniqueness and membership invariants span
// multiple map operations that must be observed atomically together.
type Registry struct {
	sessions map[uint64]*model.Session
	users    map[string]uint64          // nickname -> session ID
	rooms    map[string]map[uint64]bool // room -> set of member session IDs
	nextID   uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uint64]*model.Session),
		users:    make(map[string]uint64),
		rooms:    make(map[string]map[uint64]bool),
	}
}

// AddSession creates a new unregistered session with a fresh ID.
func (r *Registry) AddSession() *model.Session {
	r.nextID++
	s := &model.Session{ID: r.nextID, State: model.StateUnregistered}
	r.sessions[s.ID] = s
	return s
}

// RemoveSession drops a session, releasing its nickname and any room
// membership. The freed nickname is immediately available for reuse.
func (r *Registry) RemoveSession(s *model.Session) {
	if s.State == model.StateInRoom {
		r.ClearRoom(s)
	}
	if s.Nick != "" {
		delete(r.users, s.Nick)
	}
	delete(r.sessions, s.ID)
}

// RegisterNick registers or changes a session's nickname. Returns ErrNickTaken
// if another live session holds the name; renaming to the current own nickname
// succeeds as a no-op.
func (r *Registry) RegisterNick(s *model.Session, name string) error {
	if holder, ok := r.users[name]; ok && holder != s.ID {
		return ErrNickTaken
	}
	if s.Nick != "" {
		delete(r.users, s.Nick)
	}
	r.users[name] = s.ID
	s.Nick = name
	if s.State == model.StateUnregistered {
		s.State = model.StateRegistered
	}
	return nil
}

// LookupNick returns the session holding a nickname, if any.
func (r *Registry) LookupNick(name string) (*model.Session, bool) {
	id, ok := r.users[name]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

// SetRoom places a session into a room, creating the room lazily. The caller
// must have cleared any previous room first.
func (r *Registry) SetRoom(s *model.Session, room string) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[uint64]bool)
		r.rooms[room] = members
	}
	members[s.ID] = true
	s.Room = room
	s.State = model.StateInRoom
}

// ClearRoom removes a session from its current room, deleting the room when it
// becomes empty. No-op for sessions that are not in a room.
func (r *Registry) ClearRoom(s *model.Session) {
	if s.State != model.StateInRoom {
		return
	}
	if members, ok := r.rooms[s.Room]; ok {
		delete(members, s.ID)
		if len(members) == 0 {
			delete(r.rooms, s.Room)
		}
	}
	s.Room = ""
	s.State = model.StateRegistered
}

// MembersOf returns the sessions currently in a room. Unknown rooms yield an
// empty slice, not an error.
func (r *Registry) MembersOf(room string) []*model.Session {
	members := r.rooms[room]
	result := make([]*model.Session, 0, len(members))
	for id := range members {
		if s, ok := r.sessions[id]; ok {
			result = append(result, s)
		}
	}
	return result
}

// Nicknames returns the sorted nicknames of a room's members.
func (r *Registry) Nicknames(room string) []string {
	members := r.MembersOf(room)
	nicks := make([]string, 0, len(members))
	for _, s := range members {
		nicks = append(nicks, s.Nick)
	}
	sort.Strings(nicks)
	return nicks
}

// Dump renders the registry contents for internal-consistency failure logs.
func (r *Registry) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sessions=%d users=%d rooms=%d;", len(r.sessions), len(r.users), len(r.rooms))
	for _, s := range r.sessions {
		fmt.Fprintf(&b, " [%d %s nick=%q room=%q]", s.ID, s.State, s.Nick, s.Room)
	}
	for room, members := range r.rooms {
		fmt.Fprintf(&b, " %s=%d", room, len(members))
	}
	return b.String()
}
