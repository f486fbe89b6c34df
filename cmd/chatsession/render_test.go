package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bhandras/delight-chat/internal/chat"
	"github.com/bhandras/delight-chat/internal/session"
)

func TestPrinterOnlyPrintsChanges(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, "alice")

	m1 := chat.Message{ID: "m1", Text: "hi", User: &chat.User{ID: "bob"}, CreatedAt: t0, Status: chat.StatusReceived}
	draft := chat.Message{ID: "alice-1", Text: "yo", User: &alice, CreatedAt: t0.Add(time.Second), Status: chat.StatusSending}

	p.Print(session.View{Phase: session.PhaseReady, Messages: []chat.Message{m1, draft}})
	first := out.String()
	require.Contains(t, first, "-- ready --")
	require.Contains(t, first, "m1 bob: hi")
	require.Contains(t, first, "alice-1 alice: yo (sending)")

	out.Reset()
	p.Print(session.View{Phase: session.PhaseReady, Messages: []chat.Message{m1, draft}})
	require.Empty(t, out.String())

	draft.Status = chat.StatusFailed
	m1.ReactionCounts = map[string]int{"like": 2, "fire": 1}
	m1.ReplyCount = 3
	p.Print(session.View{
		Phase:    session.PhaseReady,
		Error:    errors.New("offline"),
		Messages: []chat.Message{m1, draft},
		Typing: map[string]chat.Typing{
			"alice": {User: &alice},
			"bob":   {User: &chat.User{ID: "bob", Name: "Bob"}},
		},
	})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "!! offline", lines[0])
	require.Contains(t, lines[1], "hi [fire:1 like:2] replies=3")
	require.Contains(t, lines[2], "yo (failed)")
	require.Equal(t, "Bob typing...", lines[3])
}

func TestPrinterIndentsThreads(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, "alice")

	parent := chat.Message{ID: "m1", Text: "q", User: &chat.User{ID: "bob"}, CreatedAt: t0}
	reply := chat.Message{ID: "r1", Text: "a", ParentID: "m1", User: &alice, CreatedAt: t0.Add(time.Second)}
	view := session.View{Phase: session.PhaseReady, Messages: []chat.Message{parent}, Thread: &parent, ThreadMessages: []chat.Message{reply}}

	p.Print(view)
	require.Contains(t, out.String(), "  | [")

	out.Reset()
	view.Thread = nil
	view.ThreadMessages = nil
	p.Print(view)
	view.Thread = &parent
	view.ThreadMessages = []chat.Message{reply}
	p.Print(view)
	require.Contains(t, out.String(), "r1 alice: a")
}

func TestChannelLink(t *testing.T) {
	link := channelLink("https://chat.example.com", "general", nil)
	require.Equal(t, "chatsession://join?channel=general&server=https%3A%2F%2Fchat.example.com", link)

	var key [32]byte
	withKey := channelLink("https://chat.example.com", "general", &key)
	require.Contains(t, withKey, "key=AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
}
