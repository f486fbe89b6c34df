// Package draft builds optimistic, locally identified messages from user input
// before any network round trip.
package draft

import (
	"time"

	"github.com/google/uuid"

	"github.com/bhandras/delight-chat/internal/chat"
)

// Input is what the composer hands over when the user sends a message.
type Input struct {
	Text           string
	Attachments    []chat.Attachment
	MentionedUsers []chat.User
	// Parent, when set, makes the draft a reply in Parent's thread.
	Parent        *chat.Message
	ShowInChannel bool
	Extra         map[string]any
}

// Builder produces drafts for one session user.
type Builder struct {
	user  chat.User
	now   func() time.Time
	newID func() string
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the creation time source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDSource overrides the random part of temporary ids.
func WithIDSource(newID func() string) Option {
	return func(b *Builder) {
		if newID != nil {
			b.newID = newID
		}
	}
}

// NewBuilder returns a Builder for user. The user must have an id.
func NewBuilder(user chat.User, opts ...Option) *Builder {
	b := &Builder{
		user:  user,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// TemporaryID returns a fresh "<userId>-<uuid>" id.
func (b *Builder) TemporaryID() string {
	return b.user.ID + "-" + b.newID()
}

// Build returns a sending message for in.
func (b *Builder) Build(in Input) chat.Message {
	user := b.user
	msg := chat.Message{
		ID:             b.TemporaryID(),
		Text:           in.Text,
		Type:           chat.TypeRegular,
		Attachments:    append([]chat.Attachment(nil), in.Attachments...),
		MentionedUsers: append([]chat.User(nil), in.MentionedUsers...),
		User:           &user,
		CreatedAt:      b.now().UTC(),
		Status:         chat.StatusSending,
	}
	if len(msg.Attachments) == 0 {
		msg.Attachments = nil
	}
	if len(msg.MentionedUsers) == 0 {
		msg.MentionedUsers = nil
	}
	if in.Parent != nil && in.Parent.ID != "" {
		msg.ParentID = in.Parent.ID
		msg.ShowInChannel = in.ShowInChannel
	}
	if len(in.Extra) > 0 {
		msg.Extra = make(map[string]any, len(in.Extra))
		for k, v := range in.Extra {
			msg.Extra[k] = v
		}
	}
	return msg
}
