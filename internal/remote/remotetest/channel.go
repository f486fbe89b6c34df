// Package remotetest provides an in-memory remote channel for tests.
//
// By default every call answers immediately from the fake's own store. A
// method can be put on hold, after which its calls block until the test
// resolves them, which makes in-flight windows observable.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bhandras/delight-chat/internal/chat"
)

// Method names accepted by Hold, Fail, and Calls.
const (
	MethodWatch          = "Watch"
	MethodQuery          = "Query"
	MethodGetReplies     = "GetReplies"
	MethodSendMessage    = "SendMessage"
	MethodUpdateMessage  = "UpdateMessage"
	MethodDeleteMessage  = "DeleteMessage"
	MethodSendReaction   = "SendReaction"
	MethodDeleteReaction = "DeleteReaction"
	MethodMarkRead       = "MarkRead"
)

// Result is what a held call returns once resolved.
type Result struct {
	Message  chat.Message
	Messages []chat.Message
	Err      error
}

// Call is one recorded remote call.
type Call struct {
	Method    string
	Message   chat.Message
	MessageID string
	ParentID  string
	Reaction  string
	Opts      chat.QueryOptions

	result chan Result
}

// Resolve completes a held call. Resolving a call that already returned, for
// example because its context was canceled, is a no-op.
func (c *Call) Resolve(res Result) {
	if c.result == nil {
		return
	}
	select {
	case c.result <- res:
	default:
	}
}

// Fail completes a held call with err.
func (c *Call) Fail(err error) {
	c.Resolve(Result{Err: err})
}

var (
	_ chat.Channel = (*Channel)(nil)
	_ chat.Client  = (*Client)(nil)
)

// Channel is a fake chat.Channel.
type Channel struct {
	mu sync.Mutex

	id           string
	initialized  bool
	config       chat.Config
	disconnected bool
	unread       int
	snapshot     chat.Snapshot

	// history is the server-side main timeline, oldest first.
	history []chat.Message
	replies map[string][]chat.Message

	held  map[string]bool
	fails map[string]error
	calls []*Call
	seq   int

	handlers map[int]chat.Handler
	nextH    int
}

// NewChannel returns an uninitialized fake with read events enabled.
func NewChannel(id string) *Channel {
	return &Channel{
		id:       id,
		config:   chat.Config{ReadEvents: true, TypingEvents: true, Reactions: true, Replies: true},
		replies:  map[string][]chat.Message{},
		held:     map[string]bool{},
		fails:    map[string]error{},
		handlers: map[int]chat.Handler{},
	}
}

// Hold makes calls of method block until resolved.
func (c *Channel) Hold(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.held[method] = true
}

// Release stops holding method. Calls already held stay pending.
func (c *Channel) Release(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, method)
}

// Fail makes unheld calls of method return err. A nil err clears it.
func (c *Channel) Fail(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.fails, method)
		return
	}
	c.fails[method] = err
}

// SetSnapshot sets the state returned by State.
func (c *Channel) SetSnapshot(s chat.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = s
}

// SetHistory sets the server-side main timeline. msgs must be oldest first.
func (c *Channel) SetHistory(msgs []chat.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append([]chat.Message(nil), msgs...)
}

// SetReplies sets the server-side replies of parentID, oldest first.
func (c *Channel) SetReplies(parentID string, msgs []chat.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[parentID] = append([]chat.Message(nil), msgs...)
}

// SetInitialized marks the channel as already watched.
func (c *Channel) SetInitialized(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = v
}

// SetConfig sets the remote configuration.
func (c *Channel) SetConfig(cfg chat.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
}

// SetDisconnected sets the connection flag.
func (c *Channel) SetDisconnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = v
}

// SetUnread sets the unread counter.
func (c *Channel) SetUnread(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unread = n
}

// Calls returns the recorded calls of method, or all calls if method is "".
func (c *Channel) Calls(method string) []*Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Call
	for _, call := range c.calls {
		if method == "" || call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

// Count returns how many calls of method were made.
func (c *Channel) Count(method string) int {
	return len(c.Calls(method))
}

// Emit delivers e to every subscribed handler synchronously.
func (c *Channel) Emit(e chat.Event) {
	c.mu.Lock()
	keys := make([]int, 0, len(c.handlers))
	for k := range c.handlers {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	hs := make([]chat.Handler, 0, len(keys))
	for _, k := range keys {
		hs = append(hs, c.handlers[k])
	}
	c.mu.Unlock()
	if e.ChannelID == "" {
		e.ChannelID = c.id
	}
	for _, h := range hs {
		h(e)
	}
}

// Subscribers reports how many handlers are subscribed.
func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

// ID implements chat.Channel.
func (c *Channel) ID() string { return c.id }

// Initialized implements chat.Channel.
func (c *Channel) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Config implements chat.Channel.
func (c *Channel) Config() chat.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Disconnected implements chat.Channel.
func (c *Channel) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// CountUnread implements chat.Channel.
func (c *Channel) CountUnread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// State implements chat.Channel.
func (c *Channel) State() chat.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// On implements chat.Channel.
func (c *Channel) On(h chat.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextH
	c.nextH++
	c.handlers[id] = h
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// Watch implements chat.Channel.
func (c *Channel) Watch(ctx context.Context) error {
	res, err := c.do(ctx, &Call{Method: MethodWatch}, func() Result { return Result{} })
	if err == nil && res.Err == nil {
		c.SetInitialized(true)
	}
	return pick(res, err)
}

// Query implements chat.Channel.
func (c *Channel) Query(ctx context.Context, opts chat.QueryOptions) ([]chat.Message, error) {
	res, err := c.do(ctx, &Call{Method: MethodQuery, Opts: opts}, func() Result {
		c.mu.Lock()
		defer c.mu.Unlock()
		return Result{Messages: page(c.history, opts)}
	})
	return res.Messages, pick(res, err)
}

// GetReplies implements chat.Channel.
func (c *Channel) GetReplies(ctx context.Context, parentID string, opts chat.QueryOptions) ([]chat.Message, error) {
	res, err := c.do(ctx, &Call{Method: MethodGetReplies, ParentID: parentID, Opts: opts}, func() Result {
		c.mu.Lock()
		defer c.mu.Unlock()
		return Result{Messages: page(c.replies[parentID], opts)}
	})
	return res.Messages, pick(res, err)
}

// SendMessage implements chat.Channel. Unheld sends are confirmed under a
// fresh server id.
func (c *Channel) SendMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	res, err := c.do(ctx, &Call{Method: MethodSendMessage, Message: msg}, func() Result {
		c.mu.Lock()
		c.seq++
		n := c.seq
		c.mu.Unlock()
		out := msg.Clone()
		out.ID = fmt.Sprintf("srv-%d", n)
		out.Status = chat.StatusReceived
		return Result{Message: out}
	})
	return res.Message, pick(res, err)
}

// UpdateMessage implements chat.Channel.
func (c *Channel) UpdateMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	res, err := c.do(ctx, &Call{Method: MethodUpdateMessage, Message: msg}, func() Result {
		out := msg.Clone()
		out.Status = chat.StatusReceived
		return Result{Message: out}
	})
	return res.Message, pick(res, err)
}

// DeleteMessage implements chat.Channel.
func (c *Channel) DeleteMessage(ctx context.Context, id string) (chat.Message, error) {
	res, err := c.do(ctx, &Call{Method: MethodDeleteMessage, MessageID: id}, func() Result {
		return Result{Message: chat.Message{ID: id, Type: chat.TypeDeleted}}
	})
	return res.Message, pick(res, err)
}

// SendReaction implements chat.Channel.
func (c *Channel) SendReaction(ctx context.Context, messageID, reactionType string) error {
	res, err := c.do(ctx, &Call{Method: MethodSendReaction, MessageID: messageID, Reaction: reactionType}, nil)
	return pick(res, err)
}

// DeleteReaction implements chat.Channel.
func (c *Channel) DeleteReaction(ctx context.Context, messageID, reactionType string) error {
	res, err := c.do(ctx, &Call{Method: MethodDeleteReaction, MessageID: messageID, Reaction: reactionType}, nil)
	return pick(res, err)
}

// MarkRead implements chat.Channel.
func (c *Channel) MarkRead(ctx context.Context) error {
	res, err := c.do(ctx, &Call{Method: MethodMarkRead}, nil)
	return pick(res, err)
}

// do records call and answers it: held calls wait for Resolve, others use
// the configured failure or fallback.
func (c *Channel) do(ctx context.Context, call *Call, fallback func() Result) (Result, error) {
	call.result = make(chan Result, 1)

	c.mu.Lock()
	c.calls = append(c.calls, call)
	held := c.held[call.Method]
	failure := c.fails[call.Method]
	c.mu.Unlock()

	if !held {
		if failure != nil {
			return Result{Err: failure}, nil
		}
		if fallback == nil {
			return Result{}, nil
		}
		return fallback(), nil
	}

	select {
	case res := <-call.result:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func pick(res Result, err error) error {
	if err != nil {
		return err
	}
	return res.Err
}

// page returns up to opts.Limit messages older than opts.IDLt, oldest first.
func page(msgs []chat.Message, opts chat.QueryOptions) []chat.Message {
	end := len(msgs)
	if opts.IDLt != "" {
		end = 0
		for i, m := range msgs {
			if m.ID == opts.IDLt {
				end = i
				break
			}
		}
	}
	start := 0
	if opts.Limit > 0 && end-opts.Limit > 0 {
		start = end - opts.Limit
	}
	return append([]chat.Message(nil), msgs[start:end]...)
}

// Client is a fake chat.Client.
type Client struct {
	mu       sync.Mutex
	user     chat.User
	handlers map[int]chat.Handler
	next     int
}

// NewClient returns a fake client for user.
func NewClient(user chat.User) *Client {
	return &Client{user: user, handlers: map[int]chat.Handler{}}
}

// User implements chat.Client.
func (c *Client) User() chat.User { return c.user }

// On implements chat.Client.
func (c *Client) On(h chat.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.handlers[id] = h
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// Emit delivers e to every subscribed handler synchronously.
func (c *Client) Emit(e chat.Event) {
	c.mu.Lock()
	hs := make([]chat.Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(e)
	}
}

// Subscribers reports how many handlers are subscribed.
func (c *Client) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}
