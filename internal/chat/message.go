// Package chat defines the conversation model shared by the session engine and
// the remote channel adapters.
package chat

import "time"

// MessageStatus tracks whether a message has been durably stored by the
// backend.
type MessageStatus string

const (
	// StatusSending marks an optimistic message whose send is in flight.
	StatusSending MessageStatus = "sending"
	// StatusReceived marks a message confirmed by the backend. Its id is the
	// server-assigned id.
	StatusReceived MessageStatus = "received"
	// StatusFailed marks an optimistic message whose send was rejected.
	StatusFailed MessageStatus = "failed"
)

// Pending reports whether the message is not yet stored server-side.
func (s MessageStatus) Pending() bool {
	return s == StatusSending || s == StatusFailed
}

// MessageType is the backend's message kind.
type MessageType string

const (
	TypeRegular   MessageType = "regular"
	TypeEphemeral MessageType = "ephemeral"
	TypeSystem    MessageType = "system"
	TypeError     MessageType = "error"
	TypeReply     MessageType = "reply"
	TypeDeleted   MessageType = "deleted"
)

// User is a chat participant.
type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	Image      string     `json:"image,omitempty"`
	Online     bool       `json:"online,omitempty"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

// Attachment is a file, image, or link preview attached to a message.
type Attachment struct {
	Type      string `json:"type,omitempty"`
	Title     string `json:"title,omitempty"`
	Text      string `json:"text,omitempty"`
	AssetURL  string `json:"asset_url,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	ThumbURL  string `json:"thumb_url,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	FileSize  int64  `json:"file_size,omitempty"`
	TitleLink string `json:"title_link,omitempty"`
}

// Reaction is one user's reaction of a given type to a message.
type Reaction struct {
	MessageID string    `json:"message_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	User      *User     `json:"user,omitempty"`
	Type      string    `json:"type"`
	Score     int       `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Message is a single chat message.
type Message struct {
	ID              string         `json:"id"`
	Text            string         `json:"text"`
	HTML            string         `json:"html,omitempty"`
	Type            MessageType    `json:"type,omitempty"`
	Attachments     []Attachment   `json:"attachments,omitempty"`
	MentionedUsers  []User         `json:"mentioned_users,omitempty"`
	User            *User          `json:"user,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at,omitempty"`
	DeletedAt       *time.Time     `json:"deleted_at,omitempty"`
	ParentID        string         `json:"parent_id,omitempty"`
	ShowInChannel   bool           `json:"show_in_channel,omitempty"`
	ReplyCount      int            `json:"reply_count,omitempty"`
	LatestReactions []Reaction     `json:"latest_reactions,omitempty"`
	OwnReactions    []Reaction     `json:"own_reactions,omitempty"`
	ReactionCounts  map[string]int `json:"reaction_counts,omitempty"`
	Status          MessageStatus  `json:"status,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// IsReply reports whether the message belongs to a thread.
func (m Message) IsReply() bool { return m.ParentID != "" }

// UserID returns the sender id, or "" when the sender is unknown.
func (m Message) UserID() string {
	if m.User == nil {
		return ""
	}
	return m.User.ID
}

// Clone returns a deep copy so the result can be mutated without touching
// snapshots that share the original.
func (m Message) Clone() Message {
	out := m
	out.Attachments = cloneSlice(m.Attachments)
	out.MentionedUsers = cloneSlice(m.MentionedUsers)
	out.LatestReactions = cloneSlice(m.LatestReactions)
	out.OwnReactions = cloneSlice(m.OwnReactions)
	if m.User != nil {
		u := *m.User
		out.User = &u
	}
	if m.ReactionCounts != nil {
		out.ReactionCounts = make(map[string]int, len(m.ReactionCounts))
		for k, v := range m.ReactionCounts {
			out.ReactionCounts[k] = v
		}
	}
	if m.Extra != nil {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Outgoing strips client-only fields before the message is handed to the
// backend. The temporary id is kept so the backend can echo it back.
func (m Message) Outgoing() Message {
	out := m.Clone()
	out.Status = ""
	out.HTML = ""
	out.LatestReactions = nil
	out.OwnReactions = nil
	out.ReactionCounts = nil
	out.ReplyCount = 0
	return out
}

// HasOwnReaction reports whether userID has reacted with reactionType.
func (m Message) HasOwnReaction(userID, reactionType string) bool {
	for _, r := range m.OwnReactions {
		if r.Type == reactionType && r.UserID == userID {
			return true
		}
	}
	return false
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// Member is a channel membership record.
type Member struct {
	UserID    string    `json:"user_id"`
	User      *User     `json:"user,omitempty"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ReadState is one user's read watermark.
type ReadState struct {
	User           *User     `json:"user,omitempty"`
	LastRead       time.Time `json:"last_read"`
	UnreadMessages int       `json:"unread_messages,omitempty"`
}

// Typing is a transient typing indicator.
type Typing struct {
	User       *User     `json:"user,omitempty"`
	ParentID   string    `json:"parent_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}
