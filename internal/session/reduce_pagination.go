package session

import (
	"github.com/bhandras/delight-chat/internal/actor"
	"github.com/bhandras/delight-chat/internal/chat"
)

// reduceLoadMore starts a backward page of the main timeline. At most one
// request is in flight per timeline: calls made while loading are dropped.
func reduceLoadMore(state State, _ cmdLoadMore) (State, []actor.Effect) {
	if state.LoadingMore || !state.HasMore || state.Resyncing {
		return state, nil
	}
	oldest, ok := state.Channel.Oldest()
	if !ok || oldest.Status != chat.StatusReceived {
		return state, nil
	}
	state.LoadingMore = true
	return touch(state), []actor.Effect{effQuery{
		Gen:  state.ResyncGen,
		Opts: chat.QueryOptions{Limit: state.PageSize, IDLt: oldest.ID},
	}}
}

// reduceQuerySettled merges a page. A failed page leaves HasMore alone so the
// same cursor can be retried.
func reduceQuerySettled(state State, ev evQuerySettled) (State, []actor.Effect) {
	if ev.Gen != state.ResyncGen || !state.LoadingMore {
		return state, nil
	}
	state.LoadingMore = false
	if ev.Err != nil {
		return touch(state), nil
	}
	state.HasMore = len(ev.Messages) == ev.Limit
	state.Channel = state.Channel.UpsertMessages(ev.Messages)
	return touch(state), nil
}

func reduceLoadMoreThread(state State, cmd cmdLoadMoreThread) (State, []actor.Effect) {
	if state.Thread == nil {
		return state, nil
	}
	parentID := cmd.ParentID
	if parentID == "" {
		parentID = state.Thread.ID
	}
	if parentID != state.Thread.ID || state.ThreadLoadingMore || !state.ThreadHasMore {
		return state, nil
	}

	opts := chat.QueryOptions{Limit: state.ThreadPageSize}
	if replies := state.Channel.Threads[parentID]; len(replies) > 0 {
		oldest := replies[0]
		if oldest.Status != chat.StatusReceived {
			return state, nil
		}
		opts.IDLt = oldest.ID
	}
	state.ThreadLoadingMore = true
	return touch(state), []actor.Effect{effGetReplies{
		ParentID: parentID,
		Gen:      state.ThreadGen,
		Opts:     opts,
	}}
}

func reduceRepliesSettled(state State, ev evRepliesSettled) (State, []actor.Effect) {
	if state.Thread == nil || state.Thread.ID != ev.ParentID || ev.Gen != state.ThreadGen {
		return state, nil
	}
	state.ThreadLoadingMore = false
	if ev.Err != nil {
		return touch(state), nil
	}
	state.ThreadHasMore = len(ev.Messages) == ev.Limit
	for _, m := range ev.Messages {
		if m.ParentID == "" {
			m.ParentID = ev.ParentID
		}
		if m.ParentID != ev.ParentID {
			continue
		}
		state.Channel = state.Channel.UpsertMessage(m)
	}
	return touch(state), nil
}

// reduceOpenThread selects a thread and requests its first page of replies.
func reduceOpenThread(state State, cmd cmdOpenThread) (State, []actor.Effect) {
	if cmd.Parent.ID == "" {
		return state, []actor.Effect{reply(cmd.Reply, ErrMessageNotFound)}
	}
	parent := cmd.Parent.Clone()
	if local, ok := state.Channel.Message(parent.ID); ok {
		parent = local
	}
	state.Thread = &parent
	state.ThreadHasMore = true
	state.ThreadLoadingMore = false
	state.ThreadGen++
	state = touch(state)

	next, effects := reduceLoadMoreThread(state, cmdLoadMoreThread{ParentID: parent.ID})
	return next, append([]actor.Effect{reply(cmd.Reply, nil)}, effects...)
}

func reduceCloseThread(state State, cmd cmdCloseThread) (State, []actor.Effect) {
	state.Thread = nil
	state.ThreadLoadingMore = false
	state.ThreadHasMore = true
	state.ThreadGen++
	return touch(state), []actor.Effect{reply(cmd.Reply, nil)}
}
