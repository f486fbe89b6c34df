package socketio

import (
	"context"
	"sync"
	"time"

	"github.com/bhandras/delight-chat/internal/chat"
	"github.com/bhandras/delight-chat/internal/crypto"
	"github.com/bhandras/delight-chat/pkg/logger"
)

// DefaultAckTimeout bounds requests whose context carries no deadline.
const DefaultAckTimeout = 10 * time.Second

// Option configures a Channel.
type Option func(*Channel)

// WithKey enables end-to-end encryption of message text with key.
func WithKey(key *[32]byte) Option {
	return func(c *Channel) { c.key = key }
}

// WithAckTimeout overrides DefaultAckTimeout.
func WithAckTimeout(d time.Duration) Option {
	return func(c *Channel) { c.timeout = d }
}

// Channel is the remote handle of one conversation on a Socket.IO backend.
//
// It mirrors what the server has confirmed so that State, CountUnread and
// Config answer without a round trip.
type Channel struct {
	id      string
	conn    Emitter
	user    chat.User
	key     *[32]byte
	timeout time.Duration

	mu          sync.RWMutex
	initialized bool
	config      chat.Config
	state       chat.ChannelState
	unread      int
	handlers    map[int]chat.Handler
	nextID      int

	off func()
}

// NewChannel binds the channel id to conn on behalf of user.
func NewChannel(conn Emitter, id string, user chat.User, opts ...Option) *Channel {
	c := &Channel{
		id:       id,
		conn:     conn,
		user:     user,
		timeout:  DefaultAckTimeout,
		state:    chat.NewChannelState(),
		handlers: make(map[int]chat.Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.off = conn.Handle(EventChannel, c.dispatch)
	return c
}

// Close detaches the channel from the connection.
func (c *Channel) Close() {
	if c.off != nil {
		c.off()
	}
}

// ID returns the channel id.
func (c *Channel) ID() string { return c.id }

// Initialized reports whether a watch has completed.
func (c *Channel) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// Watch subscribes the connection to the channel and loads its snapshot.
func (c *Channel) Watch(ctx context.Context) error {
	resp, err := c.request(ctx, ReqWatch, map[string]any{"channel_id": c.id})
	if err != nil {
		return err
	}
	var ack watchAck
	if err := decode(resp, &ack); err != nil {
		return err
	}
	ack.State.Messages = c.openAll(ack.State.Messages)
	for pid, replies := range ack.State.Threads {
		ack.State.Threads[pid] = c.openAll(replies)
	}

	c.mu.Lock()
	c.state = chat.FromSnapshot(ack.State)
	c.config = ack.Config
	c.unread = ack.Unread
	c.initialized = true
	c.mu.Unlock()

	logger.Debugf("socketio: watching %s (%d messages, %d unread)",
		c.id, len(ack.State.Messages), ack.Unread)
	return nil
}

// Query fetches a page of messages older than opts.IDLt.
func (c *Channel) Query(ctx context.Context, opts chat.QueryOptions) ([]chat.Message, error) {
	payload := map[string]any{
		"channel_id": c.id,
		"limit":      opts.Limit,
	}
	if opts.IDLt != "" {
		payload["id_lt"] = opts.IDLt
	}
	msgs, err := c.requestMessages(ctx, ReqQuery, payload)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.state = c.state.UpsertMessages(msgs)
	c.mu.Unlock()
	return msgs, nil
}

// GetReplies fetches a page of replies to parentID.
func (c *Channel) GetReplies(ctx context.Context, parentID string, opts chat.QueryOptions) ([]chat.Message, error) {
	payload := map[string]any{
		"channel_id": c.id,
		"parent_id":  parentID,
		"limit":      opts.Limit,
	}
	if opts.IDLt != "" {
		payload["id_lt"] = opts.IDLt
	}
	msgs, err := c.requestMessages(ctx, ReqReplies, payload)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.state = c.state.UpsertMessages(msgs)
	c.mu.Unlock()
	return msgs, nil
}

// SendMessage stores msg and returns the server's copy.
func (c *Channel) SendMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	return c.writeMessage(ctx, ReqSendMessage, msg)
}

// UpdateMessage edits msg and returns the server's copy.
func (c *Channel) UpdateMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	return c.writeMessage(ctx, ReqUpdateMessage, msg)
}

// DeleteMessage deletes a message and drops it from the mirror.
func (c *Channel) DeleteMessage(ctx context.Context, id string) (chat.Message, error) {
	resp, err := c.request(ctx, ReqDeleteMessage, map[string]any{
		"channel_id": c.id,
		"message_id": id,
	})
	if err != nil {
		return chat.Message{}, err
	}
	var ack messageAck
	if err := decode(resp, &ack); err != nil {
		return chat.Message{}, err
	}
	m := c.open(ack.Message)
	c.mu.Lock()
	c.state = c.state.RemoveMessage(id)
	c.mu.Unlock()
	return m, nil
}

// SendReaction adds the user's reaction to a message.
func (c *Channel) SendReaction(ctx context.Context, messageID, reactionType string) error {
	return c.writeReaction(ctx, ReqSendReaction, messageID, reactionType)
}

// DeleteReaction removes the user's reaction from a message.
func (c *Channel) DeleteReaction(ctx context.Context, messageID, reactionType string) error {
	return c.writeReaction(ctx, ReqDeleteReaction, messageID, reactionType)
}

// MarkRead marks the channel read and resets the unread count.
func (c *Channel) MarkRead(ctx context.Context) error {
	if _, err := c.request(ctx, ReqMarkRead, map[string]any{"channel_id": c.id}); err != nil {
		return err
	}
	c.mu.Lock()
	c.unread = 0
	c.mu.Unlock()
	return nil
}

// Config returns the channel config from the last watch.
func (c *Channel) Config() chat.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Disconnected reports whether the connection is down.
func (c *Channel) Disconnected() bool {
	return !c.conn.Connected()
}

// CountUnread returns the unread count for the session user.
func (c *Channel) CountUnread() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unread
}

// State returns a copy of the mirrored channel state.
func (c *Channel) State() chat.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Snapshot()
}

// On registers h for channel events and returns a function removing it.
func (c *Channel) On(h chat.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = h
	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

// dispatch decodes a pushed event, folds it into the mirror and fans it out
// to subscribers in arrival order.
func (c *Channel) dispatch(data map[string]any) {
	var e chat.Event
	if err := decode(data, &e); err != nil {
		logger.Warnf("socketio: dropping malformed event: %v", err)
		return
	}
	if e.ChannelID != c.id {
		return
	}
	if e.Message != nil {
		m := c.open(*e.Message)
		e.Message = &m
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}

	c.mu.Lock()
	c.apply(e)
	hs := make([]chat.Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(e)
	}
}

// apply folds e into the mirror. The caller holds c.mu.
func (c *Channel) apply(e chat.Event) {
	switch e.Type {
	case chat.EventMessageNew:
		if e.Message == nil {
			return
		}
		_, known := c.state.Message(e.Message.ID)
		c.state = c.state.UpsertMessage(*e.Message)
		if !known && e.Message.UserID() != c.user.ID &&
			(!e.Message.IsReply() || e.Message.ShowInChannel) {
			c.unread++
		}

	case chat.EventMessageUpdated, chat.EventMessageDeleted,
		chat.EventReactionNew, chat.EventReactionUpdated, chat.EventReactionDeleted:
		if e.Message == nil {
			return
		}
		if _, known := c.state.Message(e.Message.ID); known {
			c.state = c.state.UpsertMessage(*e.Message)
		}

	case chat.EventMessageRead:
		uid := e.UserID()
		if uid == "" {
			return
		}
		c.state = c.state.WithRead(uid, chat.ReadState{User: e.User, LastRead: e.ReceivedAt})
		if uid == c.user.ID {
			c.unread = 0
		}

	case chat.EventMemberAdded, chat.EventMemberUpdated:
		if e.Member != nil {
			c.state = c.state.WithMember(*e.Member)
		}

	case chat.EventMemberRemoved:
		c.state = c.state.WithoutMember(e.UserID())

	case chat.EventWatchingStart:
		if e.User != nil {
			c.state = c.state.WithWatcher(*e.User, e.WatcherCount)
		}

	case chat.EventWatchingStop:
		c.state = c.state.WithoutWatcher(e.UserID(), e.WatcherCount)

	case chat.EventPresenceChanged:
		if e.User != nil {
			c.state = c.state.WithPresence(*e.User)
		}

	case chat.EventChannelTruncated:
		c.state = c.state.Truncate()
		c.unread = 0
	}
}

func (c *Channel) writeMessage(ctx context.Context, event string, msg chat.Message) (chat.Message, error) {
	out, err := c.seal(msg)
	if err != nil {
		return chat.Message{}, err
	}
	body, err := encode(out)
	if err != nil {
		return chat.Message{}, err
	}
	resp, err := c.request(ctx, event, map[string]any{
		"channel_id": c.id,
		"message":    body,
	})
	if err != nil {
		return chat.Message{}, err
	}
	var ack messageAck
	if err := decode(resp, &ack); err != nil {
		return chat.Message{}, err
	}
	m := c.open(ack.Message)
	if m.ID != "" {
		c.mu.Lock()
		c.state = c.state.UpsertMessage(m)
		c.mu.Unlock()
	}
	return m, nil
}

func (c *Channel) writeReaction(ctx context.Context, event, messageID, reactionType string) error {
	_, err := c.request(ctx, event, map[string]any{
		"channel_id": c.id,
		"message_id": messageID,
		"type":       reactionType,
	})
	return err
}

func (c *Channel) requestMessages(ctx context.Context, event string, payload map[string]any) ([]chat.Message, error) {
	resp, err := c.request(ctx, event, payload)
	if err != nil {
		return nil, err
	}
	var ack messagesAck
	if err := decode(resp, &ack); err != nil {
		return nil, err
	}
	return c.openAll(ack.Messages), nil
}

// request performs one acknowledged round trip, bounded by ctx.
func (c *Channel) request(ctx context.Context, event string, payload map[string]any) (map[string]any, error) {
	if !c.conn.Connected() {
		return nil, ErrNotConnected
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	type result struct {
		resp map[string]any
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.conn.EmitWithAck(event, payload, timeout)
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if err := checkAck(event, r.resp); err != nil {
			return nil, err
		}
		return r.resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Channel) seal(m chat.Message) (chat.Message, error) {
	if c.key == nil || m.Text == "" {
		return m, nil
	}
	text, err := crypto.SealText(m.Text, c.key)
	if err != nil {
		return chat.Message{}, err
	}
	m.Text = text
	return m, nil
}

// open decrypts the text of m. Text that does not decrypt is kept as is so
// plaintext messages from other clients stay readable.
func (c *Channel) open(m chat.Message) chat.Message {
	if c.key == nil || m.Text == "" {
		return m
	}
	text, err := crypto.OpenText(m.Text, c.key)
	if err != nil {
		logger.Tracef("socketio: message %s left as plaintext: %v", m.ID, err)
		return m
	}
	m.Text = text
	return m
}

func (c *Channel) openAll(msgs []chat.Message) []chat.Message {
	if c.key == nil {
		return msgs
	}
	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		out[i] = c.open(m)
	}
	return out
}

var _ chat.Channel = (*Channel)(nil)
