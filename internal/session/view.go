package session

import (
	"time"

	"github.com/bhandras/delight-chat/internal/chat"
)

// View is the read-only projection handed to the presentation layer.
//
// Views share backing arrays with the session state. The state never writes
// through them, so a View stays valid after later transitions; callers must
// not modify it either.
type View struct {
	Phase Phase
	Error error

	Messages    []chat.Message
	Loading     bool
	LoadingMore bool
	HasMore     bool

	Thread            *chat.Message
	ThreadMessages    []chat.Message
	ThreadLoadingMore bool
	ThreadHasMore     bool

	Editing *chat.Message

	Members      map[string]chat.Member
	Watchers     map[string]chat.User
	WatcherCount int
	Read         map[string]chat.ReadState
	Typing       map[string]chat.Typing
	EventHistory map[string][]chat.Event

	LastRead time.Time
	Rev      uint64
}

// View projects the state for the presentation layer.
func (s State) View() View {
	v := View{
		Phase:             s.Phase,
		Error:             s.Err,
		Messages:          s.Channel.Messages,
		Loading:           s.Phase == PhaseLoading || s.Resyncing,
		LoadingMore:       s.LoadingMore,
		HasMore:           s.HasMore,
		ThreadLoadingMore: s.ThreadLoadingMore,
		ThreadHasMore:     s.ThreadHasMore,
		Members:           s.Channel.Members,
		Watchers:          s.Channel.Watchers,
		WatcherCount:      s.Channel.WatcherCount,
		Read:              s.Channel.Read,
		Typing:            s.Channel.Typing,
		EventHistory:      s.Channel.EventHistory,
		LastRead:          s.LastRead,
		Rev:               s.Rev,
	}
	if s.Thread != nil {
		parent := *s.Thread
		if latest, ok := s.Channel.Message(parent.ID); ok {
			parent = latest
		}
		v.Thread = &parent
		v.ThreadMessages = s.Channel.Threads[parent.ID]
	}
	if s.Editing != nil {
		editing := *s.Editing
		v.Editing = &editing
	}
	return v
}

// Message looks a message up by id in the view.
func (v View) Message(id string) (chat.Message, bool) {
	for _, m := range v.Messages {
		if m.ID == id {
			return m, true
		}
	}
	for _, m := range v.ThreadMessages {
		if m.ID == id {
			return m, true
		}
	}
	return chat.Message{}, false
}

// UnreadCount counts messages from other users created after LastRead.
func (v View) UnreadCount(userID string) int {
	n := 0
	for _, m := range v.Messages {
		if m.UserID() != userID && m.CreatedAt.After(v.LastRead) {
			n++
		}
	}
	return n
}
