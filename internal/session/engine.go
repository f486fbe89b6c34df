// Package session implements the channel session engine: it keeps a local
// view of one conversation in sync with a remote channel while handling
// optimistic sends, history pagination, read tracking, and rate-limited view
// publication.
//
// All state lives in a single actor. Callers talk to it through Engine, remote
// calls run in the Runtime, and the presentation layer only ever sees View
// snapshots.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bhandras/delight-chat/internal/actor"
	"github.com/bhandras/delight-chat/internal/chat"
	"github.com/bhandras/delight-chat/internal/draft"
	"github.com/bhandras/delight-chat/internal/ratelimit"
	"github.com/bhandras/delight-chat/pkg/logger"
)

const closeTimeout = 5 * time.Second

// Config holds the engine tunables.
type Config struct {
	PageSize         int
	ThreadPageSize   int
	LoadMoreDebounce time.Duration
	ReadThrottle     time.Duration
	PublishThrottle  time.Duration
	// RequestTimeout bounds each remote call. Zero disables the bound.
	RequestTimeout time.Duration
}

// DefaultConfig returns the standard tunables.
func DefaultConfig() Config {
	return Config{
		PageSize:         DefaultPageSize,
		ThreadPageSize:   DefaultThreadPageSize,
		LoadMoreDebounce: 2 * time.Second,
		ReadThrottle:     500 * time.Millisecond,
		PublishThrottle:  500 * time.Millisecond,
		RequestTimeout:   10 * time.Second,
	}
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	cfg     Config
	clock   actor.Clock
	metrics *Metrics
	user    *chat.User
	newID   func() string
}

// WithConfig overrides the tunables.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithClock sets the time source for timestamps and rate limiter windows.
func WithClock(clock actor.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMetrics records engine activity on m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithUser sets the session user instead of asking the client.
func WithUser(u chat.User) Option {
	return func(o *options) { o.user = &u }
}

// WithIDSource overrides the random part of draft ids.
func WithIDSource(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// Engine is one mounted session bound to one remote channel.
type Engine struct {
	channel chat.Channel
	clock   actor.Clock
	metrics *Metrics
	drafts  *draft.Builder

	runtime *Runtime
	act     *actor.Actor[State]

	loadMore *ratelimit.Limiter
	markRead *ratelimit.Limiter
	publish  *ratelimit.Limiter

	subsMu  sync.Mutex
	subs    map[uint64]func(View)
	nextSub uint64

	publishCh chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
}

// New creates an engine for channel. client supplies the session user and the
// connection-wide signals; it may be nil when WithUser is given.
//
// The engine's loop runs from New until Close. Start attaches it to the
// channel.
func New(channel chat.Channel, client chat.Client, opts ...Option) *Engine {
	o := options{cfg: DefaultConfig(), clock: actor.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	var user chat.User
	switch {
	case o.user != nil:
		user = *o.user
	case client != nil:
		user = client.User()
	}

	e := &Engine{
		channel:   channel,
		clock:     o.clock,
		metrics:   o.metrics,
		subs:      make(map[uint64]func(View)),
		publishCh: make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
	e.drafts = draft.NewBuilder(user, draft.WithClock(o.clock.Now), draft.WithIDSource(o.newID))
	e.runtime = NewRuntime(channel, client, o.clock, o.cfg.RequestTimeout, o.metrics)

	limiterClock := ratelimit.WithClock(o.clock)
	// Pagination only fires on the leading edge: a trailing call after the
	// first page settles would fetch a page nobody asked for.
	e.loadMore = ratelimit.NewDebounce(o.cfg.LoadMoreDebounce, func() { e.post(cmdLoadMore{}) },
		limiterClock, ratelimit.WithEdges(ratelimit.Leading))
	e.markRead = ratelimit.NewThrottle(o.cfg.ReadThrottle, e.dispatchRead, limiterClock)
	e.publish = ratelimit.NewThrottle(o.cfg.PublishThrottle, e.signalPublish, limiterClock)
	e.runtime.SetReadRequester(e.markRead.Call)

	initial := NewState(user, o.cfg.PageSize, o.cfg.ThreadPageSize)
	e.act = actor.New(initial, Reduce, e.runtime, actor.WithHooks(actor.Hooks[State]{
		OnTransition: func(prev, next State, _ actor.Input) {
			if next.Rev != prev.Rev && !next.Unmounted {
				e.publish.Call()
			}
		},
	}))
	e.act.Start()
	go e.publishLoop()
	return e
}

// Start watches the channel if needed, copies its snapshot, and subscribes
// to its events. It blocks until initialization settles and returns the
// initialization error, which is also recorded in the view.
func (e *Engine) Start(ctx context.Context) error {
	logger.Debugf("session: starting channel %s", e.channel.ID())
	return e.request(ctx, func(reply chan error) actor.Input {
		return cmdStart{Reply: reply}
	})
}

// Close tears the session down. The unmounted guard is set before listeners
// are removed and timers are stopped; results of calls still in flight are
// discarded. Close is idempotent.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := e.request(ctx, func(reply chan error) actor.Input {
			return cmdTeardown{Reply: reply}
		}); err != nil && !errors.Is(err, ErrClosed) {
			logger.Warnf("session: teardown: %v", err)
		}
		e.loadMore.Stop()
		e.markRead.Stop()
		e.publish.Stop()
		e.act.Stop()
		<-e.act.Done()
		close(e.quit)
		logger.Debugf("session: closed channel %s", e.channel.ID())
	})
	return nil
}

// SendMessage adds an optimistic draft built from in and sends it. When it
// returns the draft is already part of the view with status sending.
func (e *Engine) SendMessage(ctx context.Context, in draft.Input) (chat.Message, error) {
	msg := e.drafts.Build(in)
	err := e.request(ctx, func(reply chan error) actor.Input {
		return cmdSend{Draft: msg, Reply: reply}
	})
	if err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

// RetryMessage resends a failed message under its existing id.
func (e *Engine) RetryMessage(ctx context.Context, msg chat.Message) error {
	return e.request(ctx, func(reply chan error) actor.Input {
		return cmdRetry{ID: msg.ID, Reply: reply}
	})
}

// EditMessage updates a message remotely. The local copy only changes once
// the backend confirms, and the call blocks until then.
func (e *Engine) EditMessage(ctx context.Context, msg chat.Message) error {
	return e.request(ctx, func(reply chan error) actor.Input {
		return cmdEdit{Message: msg, Reply: reply}
	})
}

// DeleteMessage deletes a message remotely and then removes it locally.
func (e *Engine) DeleteMessage(ctx context.Context, id string) error {
	return e.request(ctx, func(reply chan error) actor.Input {
		return cmdDelete{ID: id, Reply: reply}
	})
}

// RemoveMessage removes a message locally only.
func (e *Engine) RemoveMessage(ctx context.Context, id string) error {
	return e.request(ctx, func(reply chan error) actor.Input {
		return cmdRemove{ID: id, Reply: reply}
	})
}

// HandleReaction toggles the session user's reaction on a message. The toggle
// is visible when the call returns and is rolled back if the backend rejects
// it.
func (e *Engine) HandleReaction(ctx context.Context, messageID, reactionType string) error {
	now := e.clock.Now().UnixMilli()
	return e.request(ctx, func(reply chan error) actor.Input {
		return cmdReact{MessageID: messageID, Type: reactionType, NowMs: now, Reply: reply}
	})
}

// LoadMore requests an older page of the main timeline. Bursts are debounced.
func (e *Engine) LoadMore() {
	e.loadMore.Call()
}

// LoadMoreThread requests an older page of the open thread's replies.
func (e *Engine) LoadMoreThread(parentID string) {
	e.post(cmdLoadMoreThread{ParentID: parentID})
}

// OpenThread selects parent's thread and loads its first page of replies.
func (e *Engine) OpenThread(ctx context.Context, parent chat.Message) error {
	return e.request(ctx, func(reply chan error) actor.Input {
		return cmdOpenThread{Parent: parent, Reply: reply}
	})
}

// CloseThread deselects the open thread.
func (e *Engine) CloseThread(ctx context.Context) error {
	return e.request(ctx, func(reply chan error) actor.Input {
		return cmdCloseThread{Reply: reply}
	})
}

// SetEditingState marks msg as being edited.
func (e *Engine) SetEditingState(ctx context.Context, msg chat.Message) error {
	return e.request(ctx, func(reply chan error) actor.Input {
		return cmdSetEditing{Message: &msg, Reply: reply}
	})
}

// ClearEditingState leaves editing mode.
func (e *Engine) ClearEditingState(ctx context.Context) error {
	return e.request(ctx, func(reply chan error) actor.Input {
		return cmdSetEditing{Reply: reply}
	})
}

// MarkRead reports the channel as read. Calls are throttled.
func (e *Engine) MarkRead() {
	e.markRead.Call()
}

// ReachedNewest is called by the view when it scrolled back to the newest
// message.
func (e *Engine) ReachedNewest() {
	e.MarkRead()
}

// View returns the current state, bypassing the publish throttle.
func (e *Engine) View() View {
	return e.act.State().View()
}

// Subscribe registers fn for published views and returns a function that
// removes it. fn runs on the engine's publisher goroutine and must not block.
func (e *Engine) Subscribe(fn func(View)) func() {
	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subsMu.Unlock()
	e.signalPublish()

	return func() {
		e.subsMu.Lock()
		delete(e.subs, id)
		e.subsMu.Unlock()
	}
}

// Flush waits until every call made before it has been applied to the state.
// Remote calls those inputs started may still be in flight.
func (e *Engine) Flush(ctx context.Context) error {
	if err := e.act.Flush(ctx); err != nil {
		if errors.Is(err, actor.ErrStopped) {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (e *Engine) request(ctx context.Context, build func(chan error) actor.Input) error {
	reply := make(chan error, 1)
	if err := e.act.Send(ctx, build(reply)); err != nil {
		if errors.Is(err, actor.ErrStopped) {
			return ErrClosed
		}
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-e.act.Done():
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an input that has no reply. It never blocks the caller.
func (e *Engine) post(in actor.Input) {
	if e.act.Enqueue(in) {
		return
	}
	go func() { _ = e.act.Send(e.act.Context(), in) }()
}

func (e *Engine) dispatchRead() {
	st := e.act.State()
	if st.Unmounted || st.Phase != PhaseReady {
		return
	}
	e.runtime.markRead(e.act.Context())
}

func (e *Engine) signalPublish() {
	select {
	case e.publishCh <- struct{}{}:
	default:
	}
}

// publishLoop delivers the latest view to subscribers. Signals that arrive
// while a delivery is running collapse into one follow-up delivery.
func (e *Engine) publishLoop() {
	for {
		select {
		case <-e.quit:
			return
		case <-e.publishCh:
		}

		v := e.act.State().View()
		e.subsMu.Lock()
		subs := make([]func(View), 0, len(e.subs))
		for _, fn := range e.subs {
			subs = append(subs, fn)
		}
		e.subsMu.Unlock()

		e.metrics.published(v)
		for _, fn := range subs {
			fn(v)
		}
	}
}
