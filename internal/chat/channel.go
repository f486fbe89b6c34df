package chat

import "context"

// QueryOptions selects a page of history older than IDLt.
type QueryOptions struct {
	Limit int
	// IDLt is the exclusive upper bound cursor. Empty means newest.
	IDLt string
}

// Config is the channel's remote configuration.
type Config struct {
	ReadEvents   bool `json:"read_events"`
	TypingEvents bool `json:"typing_events"`
	Reactions    bool `json:"reactions"`
	Replies      bool `json:"replies"`
}

// Snapshot is the server-confirmed channel state as seen by the remote handle
// at one instant.
type Snapshot struct {
	Messages     []Message            `json:"messages"`
	Threads      map[string][]Message `json:"threads,omitempty"`
	Members      map[string]Member    `json:"members,omitempty"`
	Watchers     map[string]User      `json:"watchers,omitempty"`
	Read         map[string]ReadState `json:"read,omitempty"`
	WatcherCount int                  `json:"watcher_count"`
}

// Channel is the remote handle for one conversation. Every method that takes
// a context may block on the network; the rest return immediately.
type Channel interface {
	ID() string
	// Initialized reports whether Watch has already succeeded.
	Initialized() bool
	Watch(ctx context.Context) error
	Query(ctx context.Context, opts QueryOptions) ([]Message, error)
	GetReplies(ctx context.Context, parentID string, opts QueryOptions) ([]Message, error)
	SendMessage(ctx context.Context, msg Message) (Message, error)
	UpdateMessage(ctx context.Context, msg Message) (Message, error)
	DeleteMessage(ctx context.Context, id string) (Message, error)
	SendReaction(ctx context.Context, messageID, reactionType string) error
	DeleteReaction(ctx context.Context, messageID, reactionType string) error
	MarkRead(ctx context.Context) error

	Config() Config
	Disconnected() bool
	CountUnread() int
	State() Snapshot

	// On subscribes h to the channel's push stream and returns a function
	// that removes the subscription.
	On(h Handler) (off func())
}

// Client is the connection-wide side of the backend: the current user and the
// global connection signals.
type Client interface {
	User() User
	On(h Handler) (off func())
}
