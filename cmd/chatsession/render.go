package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/bhandras/delight-chat/internal/chat"
	"github.com/bhandras/delight-chat/internal/session"
)

// printer writes the parts of successive views that changed since the last
// one it saw.
type printer struct {
	w    io.Writer
	self string

	mu      sync.Mutex
	seen    map[string]string
	phase   session.Phase
	errText string
	typing  string
	thread  string
}

func newPrinter(w io.Writer, self string) *printer {
	return &printer{w: w, self: self, seen: make(map[string]string)}
}

func (p *printer) Print(v session.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v.Phase != p.phase {
		p.phase = v.Phase
		fmt.Fprintf(p.w, "-- %s --\n", v.Phase)
	}
	errText := ""
	if v.Error != nil {
		errText = v.Error.Error()
	}
	if errText != p.errText {
		p.errText = errText
		if errText != "" {
			fmt.Fprintf(p.w, "!! %s\n", errText)
		}
	}

	for _, m := range v.Messages {
		p.message(m, "")
	}
	thread := ""
	if v.Thread != nil {
		thread = v.Thread.ID
	}
	if thread != p.thread {
		p.thread = thread
		// Replies are printed again when a thread is reopened.
		for k := range p.seen {
			if strings.HasPrefix(k, "thread:") {
				delete(p.seen, k)
			}
		}
	}
	for _, m := range v.ThreadMessages {
		p.message(m, "  | ")
	}

	typing := typingLine(v.Typing, p.self)
	if typing != p.typing {
		p.typing = typing
		if typing != "" {
			fmt.Fprintln(p.w, typing)
		}
	}
}

func (p *printer) message(m chat.Message, indent string) {
	key := m.ID
	if indent != "" {
		key = "thread:" + m.ID
	}
	line := formatMessage(m)
	if p.seen[key] == line {
		return
	}
	p.seen[key] = line
	fmt.Fprintf(p.w, "%s%s\n", indent, line)
}

// formatMessage renders one message on a single line.
func formatMessage(m chat.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s: ", m.CreatedAt.Local().Format("15:04:05"), m.ID, m.UserID())
	if m.Type == chat.TypeDeleted {
		b.WriteString("(deleted)")
	} else {
		b.WriteString(m.Text)
	}
	if m.Status == chat.StatusSending || m.Status == chat.StatusFailed {
		fmt.Fprintf(&b, " (%s)", m.Status)
	}
	if len(m.ReactionCounts) > 0 {
		types := make([]string, 0, len(m.ReactionCounts))
		for t := range m.ReactionCounts {
			types = append(types, t)
		}
		sort.Strings(types)
		parts := make([]string, 0, len(types))
		for _, t := range types {
			parts = append(parts, fmt.Sprintf("%s:%d", t, m.ReactionCounts[t]))
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, " "))
	}
	if m.ReplyCount > 0 {
		fmt.Fprintf(&b, " replies=%d", m.ReplyCount)
	}
	return b.String()
}

func typingLine(typing map[string]chat.Typing, self string) string {
	names := make([]string, 0, len(typing))
	for id, t := range typing {
		if id == self {
			continue
		}
		name := id
		if t.User != nil && t.User.Name != "" {
			name = t.User.Name
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return strings.Join(names, ", ") + " typing..."
}

// syncWriter serializes writes from the view subscriber and the input loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(b)
}
