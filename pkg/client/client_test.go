package client_test

import (
	"strings"
	"testing"

	"github.com/dcoutinho/chatrelay/pkg/client"
	"github.com/dcoutinho/chatrelay/pkg/protocol"
)

func TestRender(t *testing.T) {
	t.Parallel()

	type tcase struct {
		line string
		want string
	}

	tcases := map[string]tcase{
		"message": {
			line: "MESSAGE bob hello there",
			want: "bob: hello there",
		},
		"joined": {
			line: "JOINED bob",
			want: "bob entered the room",
		},
		"left": {
			line: "LEFT bob",
			want: "bob left the room",
		},
		"newnick": {
			line: "NEWNICK alice alicia",
			want: "alice changed name to alicia",
		},
		"private": {
			line: "PRIVATE alice psst over here",
			want: "alice (private message): psst over here",
		},
		"bye": {
			line: "BYE",
			want: client.Farewell,
		},
		"ok_as_is": {
			line: "OK",
			want: "OK",
		},
		"error_as_is": {
			line: "ERROR",
			want: "ERROR",
		},
		"unknown_as_is": {
			line: "WAT is this",
			want: "WAT is this",
		},
	}

	for name, tc := range tcases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := client.Render(tc.line); got != tc.want {
				t.Errorf("Render(%q) = %q, want %q", tc.line, got, tc.want)
			}
		})
	}
}

// Rendered events must never begin with a command slash, even when the chat
// text itself looks like a command, so pasting displayed output back into a
// client cannot re-trigger commands.
func TestRenderNeverReintroducesCommandPrefix(t *testing.T) {
	t.Parallel()

	events := []protocol.Event{
		protocol.Message("bob", "/nick sneaky"),
		protocol.Message("bob", "//double"),
		protocol.Private("alice", "/join secret"),
		protocol.NewNick("alice", "alicia"),
		protocol.Joined("bob"),
		protocol.Left("bob"),
	}

	for _, ev := range events {
		line := ev.Encode()
		display := client.Render(line)
		if strings.HasPrefix(display, "/") {
			t.Errorf("Render(%q) = %q begins with a command prefix", line, display)
		}
		if cmd := protocol.ParseCommand(display); cmd.Kind != protocol.CmdText {
			t.Errorf("Render(%q) = %q would re-parse as a command (%v)", line, display, cmd.Kind)
		}
	}
}
