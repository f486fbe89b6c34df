package session

import (
	"time"

	"github.com/bhandras/delight-chat/internal/actor"
	"github.com/bhandras/delight-chat/internal/chat"
)

// reduceSend inserts the draft before the send effect is issued, so the
// caller observes it as soon as the command is acknowledged.
func reduceSend(state State, cmd cmdSend) (State, []actor.Effect) {
	draft := cmd.Draft
	draft.Status = chat.StatusSending
	state.Channel = state.Channel.UpsertMessage(draft)
	return touch(state), []actor.Effect{
		reply(cmd.Reply, nil),
		effSendMessage{Message: draft},
	}
}

func reduceRetry(state State, cmd cmdRetry) (State, []actor.Effect) {
	msg, ok := state.Channel.Message(cmd.ID)
	if !ok {
		return state, []actor.Effect{reply(cmd.Reply, ErrMessageNotFound)}
	}
	if msg.Status != chat.StatusFailed {
		return state, []actor.Effect{reply(cmd.Reply, ErrNotFailed)}
	}
	msg = msg.Clone()
	msg.Status = chat.StatusSending
	state.Channel = state.Channel.UpsertMessage(msg)
	return touch(state), []actor.Effect{
		reply(cmd.Reply, nil),
		effSendMessage{Message: msg},
	}
}

// reduceSendSettled reconciles a draft with the backend's answer. On success
// the draft is replaced by the confirmed message even when the ids differ. On
// failure the draft keeps its id and is marked failed. A draft deleted while
// in flight is not reinserted; a successful send is followed by a remote
// delete instead.
func reduceSendSettled(state State, ev evSendSettled) (State, []actor.Effect) {
	if _, ok := state.Abandoned[ev.TempID]; ok {
		state.Abandoned = withoutID(state.Abandoned, ev.TempID)
		if ev.Err != nil {
			return state, nil
		}
		id := ev.Message.ID
		if id == "" {
			id = ev.TempID
		}
		return state, []actor.Effect{effDeleteMessage{ID: id}}
	}

	if ev.Err != nil {
		next, ok := state.Channel.UpdateMessage(ev.TempID, func(m chat.Message) chat.Message {
			m.Status = chat.StatusFailed
			return m
		})
		if !ok {
			return state, nil
		}
		state.Channel = next
		return touch(state), nil
	}

	confirmed := ev.Message
	if confirmed.ID == "" {
		local, ok := state.Channel.Message(ev.TempID)
		if !ok {
			return state, nil
		}
		confirmed = local
	}
	confirmed.Status = chat.StatusReceived
	state.Channel = state.Channel.ReplaceMessage(ev.TempID, confirmed)
	return touch(state), nil
}

// reduceEdit does not touch local state: edits only show once confirmed.
func reduceEdit(state State, cmd cmdEdit) (State, []actor.Effect) {
	if cmd.Message.ID == "" {
		return state, []actor.Effect{reply(cmd.Reply, ErrMessageNotFound)}
	}
	return state, []actor.Effect{effUpdateMessage{Message: cmd.Message, Reply: cmd.Reply}}
}

func reduceEditSettled(state State, ev evEditSettled) (State, []actor.Effect) {
	if ev.Err != nil {
		return state, []actor.Effect{reply(ev.Reply, ev.Err)}
	}
	msg := ev.Message
	msg.Status = chat.StatusReceived
	if local, ok := state.Channel.Message(msg.ID); ok && msg.OwnReactions == nil {
		msg.OwnReactions = local.OwnReactions
	}
	state.Channel = state.Channel.UpsertMessage(msg)
	if state.Editing != nil && state.Editing.ID == msg.ID {
		state.Editing = nil
	}
	return touch(state), []actor.Effect{reply(ev.Reply, nil)}
}

// reduceDelete deletes confirmed messages remotely. Failed drafts are only
// removed locally. A draft whose send is still in flight is removed locally
// and remembered, so the stored copy is deleted once the send settles.
func reduceDelete(state State, cmd cmdDelete) (State, []actor.Effect) {
	msg, ok := state.Channel.Message(cmd.ID)
	if !ok {
		return state, []actor.Effect{reply(cmd.Reply, ErrMessageNotFound)}
	}
	if msg.Status == chat.StatusSending {
		state.Abandoned = withID(state.Abandoned, cmd.ID)
	}
	if msg.Status.Pending() {
		return reduceRemove(state, cmdRemove{ID: cmd.ID, Reply: cmd.Reply})
	}
	return state, []actor.Effect{effDeleteMessage{ID: cmd.ID, Reply: cmd.Reply}}
}

func reduceDeleteSettled(state State, ev evDeleteSettled) (State, []actor.Effect) {
	if ev.Err != nil {
		return state, []actor.Effect{reply(ev.Reply, ev.Err)}
	}
	return reduceRemove(state, cmdRemove{ID: ev.ID, Reply: ev.Reply})
}

func reduceRemove(state State, cmd cmdRemove) (State, []actor.Effect) {
	state.Channel = state.Channel.RemoveMessage(cmd.ID)
	if state.Editing != nil && state.Editing.ID == cmd.ID {
		state.Editing = nil
	}
	return touch(state), []actor.Effect{reply(cmd.Reply, nil)}
}

// reduceReact toggles the session user's reaction of the given type.
func reduceReact(state State, cmd cmdReact) (State, []actor.Effect) {
	msg, ok := state.Channel.Message(cmd.MessageID)
	if !ok {
		return state, []actor.Effect{reply(cmd.Reply, ErrMessageNotFound)}
	}

	var remote actor.Effect
	if prev, ok := msg.OwnReaction(state.User.ID, cmd.Type); ok {
		remote = effDeleteReaction{
			MessageID:   msg.ID,
			Type:        cmd.Type,
			Previous:    prev,
			LatestIndex: msg.LatestIndex(state.User.ID, cmd.Type),
		}
		msg = chat.RemoveReaction(msg, state.User.ID, cmd.Type, true)
	} else {
		msg = chat.AddReaction(msg, ownReaction(state, msg.ID, cmd.Type, cmd.NowMs), true)
		remote = effSendReaction{MessageID: msg.ID, Type: cmd.Type}
	}
	state.Channel = state.Channel.UpsertMessage(msg)
	return touch(state), []actor.Effect{reply(cmd.Reply, nil), remote}
}

// reduceReactionSettled rolls a failed toggle back by applying the inverse
// toggle to the message as it is now, so changes that landed while the
// request was in flight are kept.
func reduceReactionSettled(state State, ev evReactionSettled) (State, []actor.Effect) {
	if ev.Err == nil {
		return state, nil
	}
	next, ok := state.Channel.UpdateMessage(ev.MessageID, func(m chat.Message) chat.Message {
		has := m.HasOwnReaction(state.User.ID, ev.Type)
		switch {
		case ev.Added && has:
			return chat.RemoveReaction(m, state.User.ID, ev.Type, true)
		case !ev.Added && !has:
			prev := ev.Previous
			if prev.Type == "" {
				prev = ownReaction(state, m.ID, ev.Type, 0)
			}
			return chat.RestoreReaction(m, prev, ev.LatestIndex)
		default:
			return m
		}
	})
	if !ok {
		return state, nil
	}
	state.Channel = next
	return touch(state), nil
}

func ownReaction(state State, messageID, reactionType string, nowMs int64) chat.Reaction {
	user := state.User
	r := chat.Reaction{
		MessageID: messageID,
		UserID:    user.ID,
		User:      &user,
		Type:      reactionType,
	}
	if nowMs > 0 {
		r.CreatedAt = time.UnixMilli(nowMs).UTC()
	}
	return r
}

func reduceSetEditing(state State, cmd cmdSetEditing) (State, []actor.Effect) {
	if cmd.Message == nil {
		state.Editing = nil
	} else {
		m := cmd.Message.Clone()
		state.Editing = &m
	}
	return touch(state), []actor.Effect{reply(cmd.Reply, nil)}
}

// withID and withoutID return copies so earlier states keep their sets.
func withID(set map[string]struct{}, id string) map[string]struct{} {
	out := make(map[string]struct{}, len(set)+1)
	for k := range set {
		out[k] = struct{}{}
	}
	out[id] = struct{}{}
	return out
}

func withoutID(set map[string]struct{}, id string) map[string]struct{} {
	if len(set) <= 1 {
		return nil
	}
	out := make(map[string]struct{}, len(set)-1)
	for k := range set {
		if k != id {
			out[k] = struct{}{}
		}
	}
	return out
}
