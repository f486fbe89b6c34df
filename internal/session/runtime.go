package session

import (
	"context"
	"sync"
	"time"

	"github.com/bhandras/delight-chat/internal/actor"
	"github.com/bhandras/delight-chat/internal/chat"
	"github.com/bhandras/delight-chat/pkg/logger"
)

// Runtime interprets session effects against a remote channel.
//
// Runtime never mutates session state. Remote calls run in their own
// goroutines and report back through emit; once the session context is
// canceled their results are dropped.
type Runtime struct {
	mu sync.Mutex

	channel chat.Channel
	client  chat.Client
	clock   actor.Clock
	timeout time.Duration
	metrics *Metrics

	// requestRead is the rate-limited read tracker entry point.
	requestRead func()

	offs []func()
}

// NewRuntime returns a Runtime for channel. client may be nil when no global
// connection signals are available.
func NewRuntime(channel chat.Channel, client chat.Client, clock actor.Clock, timeout time.Duration, metrics *Metrics) *Runtime {
	if clock == nil {
		clock = actor.RealClock{}
	}
	return &Runtime{
		channel: channel,
		client:  client,
		clock:   clock,
		timeout: timeout,
		metrics: metrics,
	}
}

// SetReadRequester installs the read tracker callback.
func (r *Runtime) SetReadRequester(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestRead = fn
}

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		// Replies must go out even while shutting down so callers never hang.
		if e, ok := eff.(effReply); ok {
			completeReply(e)
			continue
		}
		if _, ok := eff.(effUnsubscribe); ok {
			r.unsubscribe()
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		switch e := eff.(type) {
		case effWatch:
			r.watch(ctx, emit)
		case effSubscribe:
			r.subscribe(emit)
		case effSendMessage:
			r.sendMessage(ctx, e, emit)
		case effUpdateMessage:
			r.updateMessage(ctx, e, emit)
		case effDeleteMessage:
			r.deleteMessage(ctx, e, emit)
		case effSendReaction:
			r.reaction(ctx, evReactionSettled{MessageID: e.MessageID, Type: e.Type, Added: true}, emit)
		case effDeleteReaction:
			r.reaction(ctx, evReactionSettled{
				MessageID:   e.MessageID,
				Type:        e.Type,
				Previous:    e.Previous,
				LatestIndex: e.LatestIndex,
			}, emit)
		case effQuery:
			r.query(ctx, e, emit)
		case effGetReplies:
			r.getReplies(ctx, e, emit)
		case effResync:
			r.resync(ctx, e, emit)
		case effRequestRead:
			r.mu.Lock()
			fn := r.requestRead
			r.mu.Unlock()
			if fn != nil {
				fn()
			}
		default:
			// Unknown effect: ignore.
		}
	}
}

// Stop implements actor.Runtime.
func (r *Runtime) Stop() {
	r.unsubscribe()
}

func completeReply(eff effReply) {
	if eff.Reply == nil {
		return
	}
	select {
	case eff.Reply <- eff.Err:
	default:
	}
}

func (r *Runtime) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Runtime) nowMs() int64 {
	return r.clock.Now().UnixMilli()
}

func (r *Runtime) watch(ctx context.Context, emit func(actor.Input)) {
	go func() {
		if !r.channel.Initialized() {
			cctx, cancel := r.callContext(ctx)
			err := r.channel.Watch(cctx)
			cancel()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logger.Errorf("session: watch channel %s: %v", r.channel.ID(), err)
				emit(evWatchFailed{Err: err})
				return
			}
		}
		emit(evWatched{
			Snapshot: receivedSnapshot(r.channel.State()),
			Unread:   r.channel.CountUnread(),
			NowMs:    r.nowMs(),
		})
	}()
}

func (r *Runtime) subscribe(emit func(actor.Input)) {
	onChannel := func(e chat.Event) {
		if e.Message != nil {
			m := received(*e.Message)
			e.Message = &m
		}
		logger.Tracef("session: event %s", e.Type)
		r.metrics.event(e.Type)
		emit(evRemote{Event: e, NowMs: r.nowMs()})
	}
	onClient := func(e chat.Event) {
		if !e.Type.Resync() {
			return
		}
		logger.Debugf("session: connection signal %s", e.Type)
		r.metrics.event(e.Type)
		emit(evRemote{Event: e, NowMs: r.nowMs()})
	}

	offs := []func(){r.channel.On(onChannel)}
	if r.client != nil {
		offs = append(offs, r.client.On(onClient))
	}
	r.mu.Lock()
	r.offs = append(r.offs, offs...)
	r.mu.Unlock()
}

func (r *Runtime) unsubscribe() {
	r.mu.Lock()
	offs := r.offs
	r.offs = nil
	r.mu.Unlock()
	for _, off := range offs {
		if off != nil {
			off()
		}
	}
}

func (r *Runtime) sendMessage(ctx context.Context, eff effSendMessage, emit func(actor.Input)) {
	go func() {
		cctx, cancel := r.callContext(ctx)
		defer cancel()
		msg, err := r.channel.SendMessage(cctx, eff.Message.Outgoing())
		if ctx.Err() != nil {
			return
		}
		r.metrics.sendSettled(err)
		if err != nil {
			logger.Warnf("session: send message %s failed: %v", eff.Message.ID, err)
			emit(evSendSettled{TempID: eff.Message.ID, Err: err})
			return
		}
		emit(evSendSettled{TempID: eff.Message.ID, Message: received(msg)})
	}()
}

func (r *Runtime) updateMessage(ctx context.Context, eff effUpdateMessage, emit func(actor.Input)) {
	go func() {
		cctx, cancel := r.callContext(ctx)
		defer cancel()
		msg, err := r.channel.UpdateMessage(cctx, eff.Message.Outgoing())
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warnf("session: update message %s failed: %v", eff.Message.ID, err)
			emit(evEditSettled{Err: err, Reply: eff.Reply})
			return
		}
		if msg.ID == "" {
			msg = eff.Message
		}
		emit(evEditSettled{Message: received(msg), Reply: eff.Reply})
	}()
}

func (r *Runtime) deleteMessage(ctx context.Context, eff effDeleteMessage, emit func(actor.Input)) {
	go func() {
		cctx, cancel := r.callContext(ctx)
		defer cancel()
		_, err := r.channel.DeleteMessage(cctx, eff.ID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warnf("session: delete message %s failed: %v", eff.ID, err)
		}
		emit(evDeleteSettled{ID: eff.ID, Err: err, Reply: eff.Reply})
	}()
}

// reaction sends or deletes a reaction and emits ev completed with the
// call's error.
func (r *Runtime) reaction(ctx context.Context, ev evReactionSettled, emit func(actor.Input)) {
	go func() {
		cctx, cancel := r.callContext(ctx)
		defer cancel()
		var err error
		if ev.Added {
			err = r.channel.SendReaction(cctx, ev.MessageID, ev.Type)
		} else {
			err = r.channel.DeleteReaction(cctx, ev.MessageID, ev.Type)
		}
		if ctx.Err() != nil {
			return
		}
		r.metrics.reactionSettled(err)
		if err != nil {
			logger.Warnf("session: reaction %q on %s failed, rolling back: %v", ev.Type, ev.MessageID, err)
		}
		ev.Err = err
		emit(ev)
	}()
}

func (r *Runtime) query(ctx context.Context, eff effQuery, emit func(actor.Input)) {
	go func() {
		cctx, cancel := r.callContext(ctx)
		defer cancel()
		msgs, err := r.channel.Query(cctx, eff.Opts)
		if ctx.Err() != nil {
			return
		}
		r.metrics.querySettled(timelineMain, err)
		if err != nil {
			logger.Errorf("session: load more before %s failed: %v", eff.Opts.IDLt, err)
		}
		emit(evQuerySettled{Gen: eff.Gen, Limit: eff.Opts.Limit, Messages: receivedAll(msgs), Err: err})
	}()
}

func (r *Runtime) getReplies(ctx context.Context, eff effGetReplies, emit func(actor.Input)) {
	go func() {
		cctx, cancel := r.callContext(ctx)
		defer cancel()
		msgs, err := r.channel.GetReplies(cctx, eff.ParentID, eff.Opts)
		if ctx.Err() != nil {
			return
		}
		r.metrics.querySettled(timelineThread, err)
		if err != nil {
			logger.Errorf("session: load replies of %s failed: %v", eff.ParentID, err)
		}
		emit(evRepliesSettled{
			ParentID: eff.ParentID,
			Gen:      eff.Gen,
			Limit:    eff.Opts.Limit,
			Messages: receivedAll(msgs),
			Err:      err,
		})
	}()
}

func (r *Runtime) resync(ctx context.Context, eff effResync, emit func(actor.Input)) {
	go func() {
		cctx, cancel := r.callContext(ctx)
		defer cancel()
		msgs, err := r.channel.Query(cctx, chat.QueryOptions{Limit: eff.Limit})
		if ctx.Err() != nil {
			return
		}
		r.metrics.querySettled(timelineResync, err)
		if err != nil {
			logger.Errorf("session: resync query failed: %v", err)
			emit(evResyncSettled{Gen: eff.Gen, Err: err})
			return
		}
		emit(evResyncSettled{
			Gen:      eff.Gen,
			Limit:    eff.Limit,
			Messages: receivedAll(msgs),
			Snapshot: receivedSnapshot(r.channel.State()),
		})
	}()
}

// markRead reports the channel as read. Failures are logged and dropped.
func (r *Runtime) markRead(ctx context.Context) {
	if r.channel.Disconnected() || !r.channel.Config().ReadEvents {
		r.metrics.readSkipped()
		return
	}
	go func() {
		cctx, cancel := r.callContext(ctx)
		defer cancel()
		err := r.channel.MarkRead(cctx)
		if ctx.Err() != nil {
			return
		}
		r.metrics.readSettled(err)
		if err != nil {
			logger.Debugf("session: mark read failed: %v", err)
		}
	}()
}

// received marks a backend message as confirmed.
func received(m chat.Message) chat.Message {
	if m.Status == "" {
		m.Status = chat.StatusReceived
	}
	return m
}

func receivedAll(msgs []chat.Message) []chat.Message {
	if msgs == nil {
		return nil
	}
	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		out[i] = received(m)
	}
	return out
}

func receivedSnapshot(s chat.Snapshot) chat.Snapshot {
	s.Messages = receivedAll(s.Messages)
	if s.Threads != nil {
		threads := make(map[string][]chat.Message, len(s.Threads))
		for pid, replies := range s.Threads {
			threads[pid] = receivedAll(replies)
		}
		s.Threads = threads
	}
	return s
}
