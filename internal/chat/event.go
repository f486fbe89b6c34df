package chat

import "time"

// EventType names a backend-pushed event.
type EventType string

const (
	EventMessageNew     EventType = "message.new"
	EventMessageUpdated EventType = "message.updated"
	EventMessageDeleted EventType = "message.deleted"
	EventMessageRead    EventType = "message.read"

	EventReactionNew     EventType = "reaction.new"
	EventReactionUpdated EventType = "reaction.updated"
	EventReactionDeleted EventType = "reaction.deleted"

	EventMemberAdded   EventType = "member.added"
	EventMemberRemoved EventType = "member.removed"
	EventMemberUpdated EventType = "member.updated"

	EventTypingStart EventType = "typing.start"
	EventTypingStop  EventType = "typing.stop"

	EventWatchingStart EventType = "user.watching.start"
	EventWatchingStop  EventType = "user.watching.stop"

	EventPresenceChanged EventType = "user.presence.changed"

	EventChannelUpdated   EventType = "channel.updated"
	EventChannelTruncated EventType = "channel.truncated"

	EventConnectionRecovered   EventType = "connection.recovered"
	EventConnectionEstablished EventType = "connection.established"
	EventConnectionChanged     EventType = "connection.changed"
)

// Resync reports whether the event signals that the live connection was
// (re)established and local state must be re-queried.
func (t EventType) Resync() bool {
	return t == EventConnectionRecovered || t == EventConnectionEstablished
}

// Event is one item of a channel's push stream.
type Event struct {
	Type         EventType `json:"type"`
	ChannelID    string    `json:"channel_id,omitempty"`
	Message      *Message  `json:"message,omitempty"`
	User         *User     `json:"user,omitempty"`
	Reaction     *Reaction `json:"reaction,omitempty"`
	Member       *Member   `json:"member,omitempty"`
	ParentID     string    `json:"parent_id,omitempty"`
	WatcherCount int       `json:"watcher_count,omitempty"`
	Online       bool      `json:"online,omitempty"`
	ReceivedAt   time.Time `json:"received_at,omitempty"`
}

// UserID returns the id of the user the event is about, looking at the user,
// member, and reaction payloads in that order.
func (e Event) UserID() string {
	switch {
	case e.User != nil && e.User.ID != "":
		return e.User.ID
	case e.Member != nil && e.Member.UserID != "":
		return e.Member.UserID
	case e.Member != nil && e.Member.User != nil:
		return e.Member.User.ID
	case e.Reaction != nil && e.Reaction.UserID != "":
		return e.Reaction.UserID
	case e.Reaction != nil && e.Reaction.User != nil:
		return e.Reaction.User.ID
	}
	return ""
}

// Handler receives pushed events. Handlers must not block.
type Handler func(Event)
