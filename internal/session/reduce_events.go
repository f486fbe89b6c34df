package session

import (
	"time"

	"github.com/bhandras/delight-chat/internal/actor"
	"github.com/bhandras/delight-chat/internal/chat"
)

// reduceRemoteEvent applies one pushed event. Every branch goes through the
// ChannelState transitions, so duplicated or reordered events converge.
func reduceRemoteEvent(state State, ev evRemote) (State, []actor.Effect) {
	e := ev.Event
	at := e.ReceivedAt
	if at.IsZero() {
		at = time.UnixMilli(ev.NowMs).UTC()
	}

	switch e.Type {
	case chat.EventMessageNew:
		return reduceMessageNew(state, e)

	case chat.EventMessageUpdated:
		if e.Message == nil {
			return state, nil
		}
		state.Channel = state.Channel.UpsertMessage(keepOwnReactions(state, *e.Message))
		return touch(state), nil

	case chat.EventMessageDeleted:
		// A message removed locally stays removed.
		if e.Message == nil {
			return state, nil
		}
		if _, ok := state.Channel.Message(e.Message.ID); !ok {
			return state, nil
		}
		state.Channel = state.Channel.UpsertMessage(*e.Message)
		return touch(state), nil

	case chat.EventMessageRead:
		uid := e.UserID()
		if uid == "" {
			return state, nil
		}
		state.Channel = state.Channel.WithRead(uid, chat.ReadState{User: e.User, LastRead: at})
		return touch(state), nil

	case chat.EventReactionNew, chat.EventReactionUpdated:
		return reduceReactionEvent(state, e, true)
	case chat.EventReactionDeleted:
		return reduceReactionEvent(state, e, false)

	case chat.EventMemberAdded, chat.EventMemberUpdated:
		if e.Member == nil {
			return state, nil
		}
		state.Channel = state.Channel.WithMember(*e.Member)
		if e.Type == chat.EventMemberAdded {
			state.Channel = state.Channel.AppendEventHistory(e)
		}
		return touch(state), nil

	case chat.EventMemberRemoved:
		uid := e.UserID()
		if uid == "" {
			return state, nil
		}
		state.Channel = state.Channel.WithoutMember(uid).AppendEventHistory(e)
		return touch(state), nil

	case chat.EventTypingStart:
		uid := e.UserID()
		if uid == "" {
			return state, nil
		}
		state.Channel = state.Channel.WithTyping(uid, chat.Typing{User: e.User, ParentID: e.ParentID, ReceivedAt: at})
		return touch(state), nil

	case chat.EventTypingStop:
		state.Channel = state.Channel.WithoutTyping(e.UserID())
		return touch(state), nil

	case chat.EventWatchingStart:
		if e.User == nil {
			return state, nil
		}
		state.Channel = state.Channel.WithWatcher(*e.User, e.WatcherCount)
		return touch(state), nil

	case chat.EventWatchingStop:
		state.Channel = state.Channel.WithoutWatcher(e.UserID(), e.WatcherCount)
		return touch(state), nil

	case chat.EventPresenceChanged:
		if e.User == nil {
			return state, nil
		}
		state.Channel = state.Channel.WithPresence(*e.User)
		return touch(state), nil

	case chat.EventChannelTruncated:
		state.Channel = state.Channel.Truncate()
		return touch(state), nil

	case chat.EventConnectionRecovered, chat.EventConnectionEstablished:
		return reduceResync(state)

	default:
		return state, nil
	}
}

func reduceMessageNew(state State, e chat.Event) (State, []actor.Effect) {
	if e.Message == nil {
		return state, nil
	}
	m := *e.Message
	isNewReply := m.IsReply() && !state.Channel.HasThreadMessage(m.ParentID, m.ID)
	state.Channel = state.Channel.UpsertMessage(keepOwnReactions(state, m))
	if isNewReply {
		state.Channel = state.Channel.IncrementReplyCount(m.ParentID)
	}
	return touch(state), nil
}

// reduceReactionEvent takes the server aggregate when the event carries the
// message and otherwise applies the single reaction to the local copy.
func reduceReactionEvent(state State, e chat.Event, added bool) (State, []actor.Effect) {
	if e.Reaction == nil {
		return state, nil
	}
	r := *e.Reaction
	if r.UserID == "" && r.User != nil {
		r.UserID = r.User.ID
	}
	id := r.MessageID
	if e.Message != nil {
		id = e.Message.ID
	}
	local, ok := state.Channel.Message(id)
	if !ok {
		return state, nil
	}

	own := r.UserID == state.User.ID
	var next chat.Message
	switch {
	case e.Message != nil:
		next = chat.MergeReactionEvent(local, *e.Message, r, added, state.User.ID)
	case added:
		next = chat.AddReaction(local, r, own)
	default:
		next = chat.RemoveReaction(local, r.UserID, r.Type, own)
	}
	state.Channel = state.Channel.UpsertMessage(next)
	return touch(state), nil
}

// reduceResync drops cached pagination and typing state and re-queries the
// newest page.
func reduceResync(state State) (State, []actor.Effect) {
	state.Channel = state.Channel.ClearTyping()
	state.HasMore = true
	state.LoadingMore = false
	state.ResyncGen++
	state.Resyncing = true
	return touch(state), []actor.Effect{effResync{Gen: state.ResyncGen, Limit: state.PageSize}}
}

// reduceResyncSettled replaces the confirmed messages with the fresh snapshot
// while keeping drafts that are still sending or failed.
func reduceResyncSettled(state State, ev evResyncSettled) (State, []actor.Effect) {
	if ev.Gen != state.ResyncGen {
		return state, nil
	}
	state.Resyncing = false
	if ev.Err != nil {
		return touch(state), nil
	}

	pending := state.Channel.KeepPending()
	history := state.Channel.EventHistory

	next := chat.FromSnapshot(ev.Snapshot).UpsertMessages(ev.Messages)
	for _, m := range pending {
		if _, ok := next.Message(m.ID); !ok {
			next = next.UpsertMessage(m)
		}
	}
	next.EventHistory = history

	state.Channel = next
	state.HasMore = len(ev.Messages) == ev.Limit
	return touch(state), nil
}

// keepOwnReactions carries local own reactions over to a server copy that
// does not report them.
func keepOwnReactions(state State, m chat.Message) chat.Message {
	if m.OwnReactions != nil {
		return m
	}
	if local, ok := state.Channel.Message(m.ID); ok {
		m.OwnReactions = local.OwnReactions
	}
	return m
}
