package session

import (
	"time"

	"github.com/bhandras/delight-chat/internal/actor"
	"github.com/bhandras/delight-chat/internal/chat"
)

const (
	// DefaultPageSize is the main timeline page size.
	DefaultPageSize = 100
	// DefaultThreadPageSize is the thread page size.
	DefaultThreadPageSize = 50
)

// NewState returns the initial state for a session owned by user.
func NewState(user chat.User, pageSize, threadPageSize int) State {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if threadPageSize <= 0 {
		threadPageSize = DefaultThreadPageSize
	}
	return State{
		Phase:          PhaseIdle,
		User:           user,
		Channel:        chat.NewChannelState(),
		HasMore:        true,
		ThreadHasMore:  true,
		PageSize:       pageSize,
		ThreadPageSize: threadPageSize,
	}
}

// Reduce is the session reducer.
//
// Once Unmounted is set every input is dropped; inputs that carry a reply
// channel are answered with ErrClosed.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	if state.Unmounted {
		return state, replyWith(input, ErrClosed)
	}

	switch in := input.(type) {
	case cmdStart:
		return reduceStart(state, in)
	case cmdTeardown:
		return reduceTeardown(state, in)
	case evWatched:
		return reduceWatched(state, in)
	case evWatchFailed:
		return reduceWatchFailed(state, in)
	}

	if state.Phase != PhaseReady {
		// Runtime completions cannot arrive before the channel is ready, so
		// only caller commands end up here.
		return state, replyWith(input, ErrNotStarted)
	}

	switch in := input.(type) {
	case cmdSend:
		return reduceSend(state, in)
	case cmdRetry:
		return reduceRetry(state, in)
	case cmdEdit:
		return reduceEdit(state, in)
	case cmdDelete:
		return reduceDelete(state, in)
	case cmdRemove:
		return reduceRemove(state, in)
	case cmdReact:
		return reduceReact(state, in)
	case cmdLoadMore:
		return reduceLoadMore(state, in)
	case cmdLoadMoreThread:
		return reduceLoadMoreThread(state, in)
	case cmdOpenThread:
		return reduceOpenThread(state, in)
	case cmdCloseThread:
		return reduceCloseThread(state, in)
	case cmdSetEditing:
		return reduceSetEditing(state, in)

	case evSendSettled:
		return reduceSendSettled(state, in)
	case evEditSettled:
		return reduceEditSettled(state, in)
	case evDeleteSettled:
		return reduceDeleteSettled(state, in)
	case evReactionSettled:
		return reduceReactionSettled(state, in)
	case evQuerySettled:
		return reduceQuerySettled(state, in)
	case evRepliesSettled:
		return reduceRepliesSettled(state, in)
	case evResyncSettled:
		return reduceResyncSettled(state, in)
	case evRemote:
		return reduceRemoteEvent(state, in)
	default:
		return state, nil
	}
}

func reduceStart(state State, cmd cmdStart) (State, []actor.Effect) {
	if state.Phase != PhaseIdle {
		return state, []actor.Effect{effReply{Reply: cmd.Reply, Err: ErrAlreadyStarted}}
	}
	state.Phase = PhaseLoading
	state.PendingStart = cmd.Reply
	return touch(state), []actor.Effect{effWatch{}}
}

func reduceWatched(state State, ev evWatched) (State, []actor.Effect) {
	if state.Phase != PhaseLoading {
		return state, nil
	}
	state.Phase = PhaseReady
	state.Channel = chat.FromSnapshot(ev.Snapshot)
	state.LastRead = time.UnixMilli(ev.NowMs).UTC()
	state.HasMore = true

	effects := []actor.Effect{effSubscribe{}}
	if ev.Unread > 0 {
		effects = append(effects, effRequestRead{})
	}
	effects = append(effects, effReply{Reply: state.PendingStart})
	state.PendingStart = nil
	return touch(state), effects
}

func reduceWatchFailed(state State, ev evWatchFailed) (State, []actor.Effect) {
	if state.Phase != PhaseLoading {
		return state, nil
	}
	state.Phase = PhaseError
	state.Err = ev.Err
	pending := state.PendingStart
	state.PendingStart = nil
	return touch(state), []actor.Effect{effReply{Reply: pending, Err: ev.Err}}
}

// reduceTeardown sets the unmounted guard before anything else happens to
// the session. Listener removal runs as an effect of this same transition.
func reduceTeardown(state State, cmd cmdTeardown) (State, []actor.Effect) {
	state.Unmounted = true
	state.Phase = PhaseClosed
	effects := []actor.Effect{effUnsubscribe{}}
	if state.PendingStart != nil {
		effects = append(effects, effReply{Reply: state.PendingStart, Err: ErrClosed})
		state.PendingStart = nil
	}
	effects = append(effects, effReply{Reply: cmd.Reply})
	return touch(state), effects
}

func touch(state State) State {
	state.Rev++
	return state
}

func reply(ch chan error, err error) actor.Effect {
	return effReply{Reply: ch, Err: err}
}

// replier is implemented by inputs that carry a reply channel.
type replier interface {
	replyChan() chan error
}

func (c cmdStart) replyChan() chan error        { return c.Reply }
func (c cmdTeardown) replyChan() chan error     { return c.Reply }
func (c cmdSend) replyChan() chan error         { return c.Reply }
func (c cmdRetry) replyChan() chan error        { return c.Reply }
func (c cmdEdit) replyChan() chan error         { return c.Reply }
func (c cmdDelete) replyChan() chan error       { return c.Reply }
func (c cmdRemove) replyChan() chan error       { return c.Reply }
func (c cmdReact) replyChan() chan error        { return c.Reply }
func (c cmdOpenThread) replyChan() chan error   { return c.Reply }
func (c cmdCloseThread) replyChan() chan error  { return c.Reply }
func (c cmdSetEditing) replyChan() chan error   { return c.Reply }
func (e evEditSettled) replyChan() chan error   { return e.Reply }
func (e evDeleteSettled) replyChan() chan error { return e.Reply }

func replyWith(input actor.Input, err error) []actor.Effect {
	r, ok := input.(replier)
	if !ok || r.replyChan() == nil {
		return nil
	}
	return []actor.Effect{effReply{Reply: r.replyChan(), Err: err}}
}
