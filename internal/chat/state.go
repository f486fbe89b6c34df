package chat

import "sort"

// ChannelState is the local projection of one conversation.
//
// ChannelState is a value: every transition returns a new ChannelState and
// never writes through slices or maps shared with the receiver, so a value
// handed to another goroutine stays stable.
type ChannelState struct {
	// Messages is ordered by creation time and unique by id.
	Messages []Message
	// Threads maps a parent message id to its replies, ordered by creation
	// time.
	Threads      map[string][]Message
	Members      map[string]Member
	Watchers     map[string]User
	WatcherCount int
	Read         map[string]ReadState
	Typing       map[string]Typing
	// EventHistory holds membership events keyed by the id of the newest
	// message at the time the event arrived.
	EventHistory map[string][]Event
}

// NewChannelState returns an empty state.
func NewChannelState() ChannelState {
	return ChannelState{
		Threads:      map[string][]Message{},
		Members:      map[string]Member{},
		Watchers:     map[string]User{},
		Read:         map[string]ReadState{},
		Typing:       map[string]Typing{},
		EventHistory: map[string][]Event{},
	}
}

// FromSnapshot copies a remote snapshot into a fresh state. Replies found in
// the main list are mirrored into their thread.
func FromSnapshot(snap Snapshot) ChannelState {
	s := NewChannelState()
	s.WatcherCount = snap.WatcherCount
	for k, v := range snap.Members {
		s.Members[k] = v
	}
	for k, v := range snap.Watchers {
		s.Watchers[k] = v
	}
	for k, v := range snap.Read {
		s.Read[k] = v
	}
	for pid, replies := range snap.Threads {
		for _, m := range replies {
			if m.ParentID == pid {
				s.Threads[pid] = upsertSorted(s.Threads[pid], m)
			}
		}
	}
	for _, m := range snap.Messages {
		s.Messages = upsertSorted(s.Messages, m)
		if m.IsReply() {
			s.Threads[m.ParentID] = upsertSorted(s.Threads[m.ParentID], m)
		}
	}
	return s
}

// Message looks a message up by id in the main list, then in the threads.
func (s ChannelState) Message(id string) (Message, bool) {
	if i := indexOf(s.Messages, id); i >= 0 {
		return s.Messages[i], true
	}
	for _, replies := range s.Threads {
		if i := indexOf(replies, id); i >= 0 {
			return replies[i], true
		}
	}
	return Message{}, false
}

// Oldest returns the oldest message of the main list.
func (s ChannelState) Oldest() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[0], true
}

// Newest returns the newest message of the main list.
func (s ChannelState) Newest() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// HasThreadMessage reports whether the thread of parentID contains id.
func (s ChannelState) HasThreadMessage(parentID, id string) bool {
	return indexOf(s.Threads[parentID], id) >= 0
}

// UpsertMessage inserts m or replaces the message with the same id.
//
// Replies go to their thread. A reply also lands in the main list when it is
// shown in the channel or is already there.
func (s ChannelState) UpsertMessage(m Message) ChannelState {
	if !m.IsReply() {
		s.Messages = upsertSorted(s.Messages, m)
		return s
	}
	threads := copyMap(s.Threads)
	threads[m.ParentID] = upsertSorted(threads[m.ParentID], m)
	s.Threads = threads
	if m.ShowInChannel || indexOf(s.Messages, m.ID) >= 0 {
		s.Messages = upsertSorted(s.Messages, m)
	}
	return s
}

// UpsertMessages applies UpsertMessage to every message in order.
func (s ChannelState) UpsertMessages(msgs []Message) ChannelState {
	for _, m := range msgs {
		s = s.UpsertMessage(m)
	}
	return s
}

// RemoveMessage drops id from the main list and from whichever thread holds
// it.
func (s ChannelState) RemoveMessage(id string) ChannelState {
	if i := indexOf(s.Messages, id); i >= 0 {
		s.Messages = removeAt(s.Messages, i)
	}
	for pid, replies := range s.Threads {
		if i := indexOf(replies, id); i >= 0 {
			threads := copyMap(s.Threads)
			threads[pid] = removeAt(replies, i)
			s.Threads = threads
			break
		}
	}
	return s
}

// ReplaceMessage swaps the message stored under oldID for m. Used when the
// backend confirms an optimistic message under a different id.
func (s ChannelState) ReplaceMessage(oldID string, m Message) ChannelState {
	if oldID != m.ID {
		s = s.RemoveMessage(oldID)
	}
	return s.UpsertMessage(m)
}

// UpdateMessage rewrites the message with the given id through fn. It
// reports false when no such message exists.
func (s ChannelState) UpdateMessage(id string, fn func(Message) Message) (ChannelState, bool) {
	cur, ok := s.Message(id)
	if !ok {
		return s, false
	}
	next := fn(cur.Clone())
	next.ID = id
	return s.UpsertMessage(next), true
}

// IncrementReplyCount bumps the reply counter of parentID.
func (s ChannelState) IncrementReplyCount(parentID string) ChannelState {
	next, _ := s.UpdateMessage(parentID, func(m Message) Message {
		m.ReplyCount++
		return m
	})
	return next
}

// Truncate clears every message and thread.
func (s ChannelState) Truncate() ChannelState {
	s.Messages = nil
	s.Threads = map[string][]Message{}
	s.EventHistory = map[string][]Event{}
	return s
}

// KeepPending returns the optimistic messages (sending or failed) of the main
// list and threads.
func (s ChannelState) KeepPending() []Message {
	var out []Message
	seen := map[string]bool{}
	add := func(m Message) {
		if m.Status.Pending() && !seen[m.ID] {
			seen[m.ID] = true
			out = append(out, m)
		}
	}
	for _, m := range s.Messages {
		add(m)
	}
	for _, replies := range s.Threads {
		for _, m := range replies {
			add(m)
		}
	}
	return out
}

// WithMember inserts or replaces a member record.
func (s ChannelState) WithMember(m Member) ChannelState {
	id := m.UserID
	if id == "" && m.User != nil {
		id = m.User.ID
		m.UserID = id
	}
	if id == "" {
		return s
	}
	members := copyMap(s.Members)
	members[id] = m
	s.Members = members
	return s
}

// WithoutMember drops a member record.
func (s ChannelState) WithoutMember(userID string) ChannelState {
	if _, ok := s.Members[userID]; !ok {
		return s
	}
	members := copyMap(s.Members)
	delete(members, userID)
	s.Members = members
	return s
}

// WithPresence copies the presence fields of u onto the matching member.
// Nothing else on the member record changes.
func (s ChannelState) WithPresence(u User) ChannelState {
	m, ok := s.Members[u.ID]
	if !ok {
		return s
	}
	var user User
	if m.User != nil {
		user = *m.User
	} else {
		user = User{ID: u.ID}
	}
	user.Online = u.Online
	user.LastActive = u.LastActive
	m.User = &user
	members := copyMap(s.Members)
	members[u.ID] = m
	s.Members = members
	return s
}

// WithWatcher records u as watching the channel.
func (s ChannelState) WithWatcher(u User, count int) ChannelState {
	watchers := copyMap(s.Watchers)
	watchers[u.ID] = u
	s.Watchers = watchers
	s.WatcherCount = count
	return s
}

// WithoutWatcher removes u from the watchers.
func (s ChannelState) WithoutWatcher(userID string, count int) ChannelState {
	watchers := copyMap(s.Watchers)
	delete(watchers, userID)
	s.Watchers = watchers
	s.WatcherCount = count
	return s
}

// WithRead sets a user's read watermark.
func (s ChannelState) WithRead(userID string, r ReadState) ChannelState {
	read := copyMap(s.Read)
	read[userID] = r
	s.Read = read
	return s
}

// WithTyping records a typing indicator.
func (s ChannelState) WithTyping(userID string, t Typing) ChannelState {
	typing := copyMap(s.Typing)
	typing[userID] = t
	s.Typing = typing
	return s
}

// WithoutTyping clears a user's typing indicator.
func (s ChannelState) WithoutTyping(userID string) ChannelState {
	if _, ok := s.Typing[userID]; !ok {
		return s
	}
	typing := copyMap(s.Typing)
	delete(typing, userID)
	s.Typing = typing
	return s
}

// ClearTyping drops every typing indicator.
func (s ChannelState) ClearTyping() ChannelState {
	s.Typing = map[string]Typing{}
	return s
}

// AppendEventHistory files e under the newest message. It is a no-op while
// the channel has no messages.
func (s ChannelState) AppendEventHistory(e Event) ChannelState {
	newest, ok := s.Newest()
	if !ok {
		return s
	}
	hist := copyMap(s.EventHistory)
	events := make([]Event, 0, len(hist[newest.ID])+1)
	events = append(events, hist[newest.ID]...)
	hist[newest.ID] = append(events, e)
	s.EventHistory = hist
	return s
}

// Snapshot exports the server-visible part of the state. Typing and event
// history are local and are not included.
func (s ChannelState) Snapshot() Snapshot {
	return Snapshot{
		Messages:     cloneSlice(s.Messages),
		Threads:      copyMap(s.Threads),
		Members:      copyMap(s.Members),
		Watchers:     copyMap(s.Watchers),
		Read:         copyMap(s.Read),
		WatcherCount: s.WatcherCount,
	}
}

func indexOf(msgs []Message, id string) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// upsertSorted returns a new slice with m replacing the entry of the same id,
// or inserted after every message created at or before it.
func upsertSorted(msgs []Message, m Message) []Message {
	if i := indexOf(msgs, m.ID); i >= 0 {
		out := make([]Message, len(msgs))
		copy(out, msgs)
		out[i] = m
		return out
	}
	pos := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].CreatedAt.After(m.CreatedAt)
	})
	out := make([]Message, 0, len(msgs)+1)
	out = append(out, msgs[:pos]...)
	out = append(out, m)
	out = append(out, msgs[pos:]...)
	return out
}

func removeAt(msgs []Message, i int) []Message {
	out := make([]Message, 0, len(msgs)-1)
	out = append(out, msgs[:i]...)
	return append(out, msgs[i+1:]...)
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
