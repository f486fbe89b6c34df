package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bhandras/delight-chat/internal/chat"
	"github.com/bhandras/delight-chat/internal/draft"
	"github.com/bhandras/delight-chat/internal/session"
)

// errQuit ends the input loop.
var errQuit = errors.New("quit")

type commandKind int

const (
	kindSend commandKind = iota
	kindReply
	kindMore
	kindEdit
	kindDelete
	kindRetry
	kindReact
	kindThread
	kindCloseThread
	kindRead
	kindHelp
	kindQuit
)

type command struct {
	kind commandKind
	id   string
	arg  string
}

const helpText = `Type a message and press enter to send it. Commands:
  /more                 load older messages (or older replies in a thread)
  /thread <id>          open the thread of a message
  /reply <text>         reply in the open thread
  /close                close the open thread
  /edit <id> <text>     edit one of your messages
  /delete <id>          delete a message
  /retry <id>           resend a failed message
  /react <id> <type>    toggle a reaction
  /read                 mark the channel read
  /quit                 leave`

// parseCommand turns one input line into a command.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, errors.New("empty input")
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: kindSend, arg: line}, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	id, arg, _ := strings.Cut(rest, " ")
	arg = strings.TrimSpace(arg)

	needID := func(kind commandKind) (command, error) {
		if id == "" {
			return command{}, fmt.Errorf("/%s needs a message id", name)
		}
		return command{kind: kind, id: id}, nil
	}

	switch name {
	case "more":
		return command{kind: kindMore}, nil
	case "close":
		return command{kind: kindCloseThread}, nil
	case "read":
		return command{kind: kindRead}, nil
	case "help":
		return command{kind: kindHelp}, nil
	case "quit", "exit":
		return command{kind: kindQuit}, nil
	case "reply":
		if rest == "" {
			return command{}, errors.New("/reply needs text")
		}
		return command{kind: kindReply, arg: rest}, nil
	case "thread":
		return needID(kindThread)
	case "delete":
		return needID(kindDelete)
	case "retry":
		return needID(kindRetry)
	case "edit", "react":
		if id == "" || arg == "" {
			return command{}, fmt.Errorf("usage: /%s <id> <%s>", name, map[string]string{"edit": "text", "react": "type"}[name])
		}
		kind := kindEdit
		if name == "react" {
			kind = kindReact
		}
		return command{kind: kind, id: id, arg: arg}, nil
	}
	return command{}, fmt.Errorf("unknown command /%s (try /help)", name)
}

// sessionAPI is the part of the engine the input loop drives.
type sessionAPI interface {
	View() session.View
	SendMessage(ctx context.Context, in draft.Input) (chat.Message, error)
	RetryMessage(ctx context.Context, msg chat.Message) error
	EditMessage(ctx context.Context, msg chat.Message) error
	DeleteMessage(ctx context.Context, id string) error
	HandleReaction(ctx context.Context, messageID, reactionType string) error
	LoadMore()
	LoadMoreThread(parentID string)
	OpenThread(ctx context.Context, parent chat.Message) error
	CloseThread(ctx context.Context) error
	MarkRead()
}

// execute runs c against s. It returns errQuit for /quit.
func execute(ctx context.Context, s sessionAPI, c command) (string, error) {
	lookup := func() (chat.Message, error) {
		m, ok := s.View().Message(c.id)
		if !ok {
			return chat.Message{}, fmt.Errorf("no message %s", c.id)
		}
		return m, nil
	}

	switch c.kind {
	case kindSend:
		_, err := s.SendMessage(ctx, draft.Input{Text: c.arg})
		return "", err

	case kindReply:
		parent := s.View().Thread
		if parent == nil {
			return "", errors.New("no open thread (use /thread <id>)")
		}
		_, err := s.SendMessage(ctx, draft.Input{Text: c.arg, Parent: parent})
		return "", err

	case kindMore:
		if thread := s.View().Thread; thread != nil {
			s.LoadMoreThread(thread.ID)
		} else {
			s.LoadMore()
		}
		return "", nil

	case kindEdit:
		m, err := lookup()
		if err != nil {
			return "", err
		}
		m = m.Clone()
		m.Text = c.arg
		return "", s.EditMessage(ctx, m)

	case kindDelete:
		return "", s.DeleteMessage(ctx, c.id)

	case kindRetry:
		m, err := lookup()
		if err != nil {
			return "", err
		}
		return "", s.RetryMessage(ctx, m)

	case kindReact:
		return "", s.HandleReaction(ctx, c.id, c.arg)

	case kindThread:
		m, err := lookup()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("-- thread %s --", m.ID), s.OpenThread(ctx, m)

	case kindCloseThread:
		return "-- back to channel --", s.CloseThread(ctx)

	case kindRead:
		s.MarkRead()
		return "", nil

	case kindHelp:
		return helpText, nil

	case kindQuit:
		return "", errQuit
	}
	return "", fmt.Errorf("unhandled command %d", c.kind)
}
