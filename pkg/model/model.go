// Package model defines the core domain types for chatrelay.
package model

import (
	"errors"
	"fmt"
	"unicode"
)

// State represents where a session is in its registration lifecycle.
type State int

const (
	StateUnregistered State = iota // connected, no nickname yet
	StateRegistered                // has a nickname, not in a room
	StateInRoom                    // has a nickname and a current room
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateInRoom:
		return "in-room"
	default:
		return "unknown"
	}
}

const MaxNameLength = 32

var ErrNameEmpty = errors.New("name must not be empty")
var ErrNameTooLong = fmt.Errorf("name must not exceed %d bytes", MaxNameLength)
var ErrNameInvalidChars = errors.New("name must not contain whitespace or control characters")

// ValidateName checks a nickname or room name: a single non-empty token of at
// most MaxNameLength bytes with no whitespace or control characters.
func ValidateName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrNameInvalidChars
		}
	}
	return nil
}

// Session represents the protocol state of one client connection (in-memory only).
//
// Invariants, maintained by the server's registry: Nick is empty iff State is
// StateUnregistered; Room is non-empty iff State is StateInRoom.
type Session struct {
	ID    uint64
	Nick  string
	State State
	Room  string
}
