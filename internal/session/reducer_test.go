package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bhandras/delight-chat/internal/actor"
	"github.com/bhandras/delight-chat/internal/chat"
)

var (
	t0    = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	alice = chat.User{ID: "alice", Name: "Alice"}
	bob   = chat.User{ID: "bob", Name: "Bob"}
)

func serverMsg(id string, offset time.Duration) chat.Message {
	u := bob
	return chat.Message{
		ID:        id,
		Text:      "text " + id,
		User:      &u,
		CreatedAt: t0.Add(offset),
		Status:    chat.StatusReceived,
	}
}

func readyState(msgs ...chat.Message) State {
	s := NewState(alice, 100, 50)
	s.Phase = PhaseReady
	s.Channel = s.Channel.UpsertMessages(msgs)
	return s
}

func effectsOf[T actor.Effect](effects []actor.Effect) []T {
	var out []T
	for _, eff := range effects {
		if e, ok := eff.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

func TestReduceStart_WatchesAndCompletesOnWatched(t *testing.T) {
	t.Parallel()

	reply := make(chan error, 1)
	state, effects := Reduce(NewState(alice, 0, 0), cmdStart{Reply: reply})
	require.Equal(t, PhaseLoading, state.Phase)
	require.Len(t, effectsOf[effWatch](effects), 1)
	require.Equal(t, DefaultPageSize, state.PageSize)
	require.Equal(t, DefaultThreadPageSize, state.ThreadPageSize)

	state, effects = Reduce(state, evWatched{
		Snapshot: chat.Snapshot{Messages: []chat.Message{serverMsg("m1", 0)}},
		Unread:   2,
		NowMs:    t0.UnixMilli(),
	})
	require.Equal(t, PhaseReady, state.Phase)
	require.Equal(t, t0, state.LastRead)
	require.Len(t, state.Channel.Messages, 1)
	require.Len(t, effectsOf[effSubscribe](effects), 1)
	require.Len(t, effectsOf[effRequestRead](effects), 1)

	replies := effectsOf[effReply](effects)
	require.Len(t, replies, 1)
	require.Equal(t, reply, replies[0].Reply)
	require.NoError(t, replies[0].Err)
	require.Nil(t, state.PendingStart)
}

func TestReduceWatched_NoReadWithoutUnread(t *testing.T) {
	t.Parallel()

	state, _ := Reduce(NewState(alice, 0, 0), cmdStart{})
	_, effects := Reduce(state, evWatched{NowMs: t0.UnixMilli()})
	require.Empty(t, effectsOf[effRequestRead](effects))
}

func TestReduceWatchFailed_IsFatal(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	state, _ := Reduce(NewState(alice, 0, 0), cmdStart{Reply: make(chan error, 1)})
	state, effects := Reduce(state, evWatchFailed{Err: boom})

	require.Equal(t, PhaseError, state.Phase)
	require.ErrorIs(t, state.Err, boom)
	require.Empty(t, effectsOf[effSubscribe](effects))
	require.ErrorIs(t, effectsOf[effReply](effects)[0].Err, boom)

	reply := make(chan error, 1)
	_, effects = Reduce(state, cmdSend{Draft: serverMsg("x", 0), Reply: reply})
	require.ErrorIs(t, effectsOf[effReply](effects)[0].Err, ErrNotStarted)
	require.Empty(t, effectsOf[effSendMessage](effects))
}

func TestReduceTeardown_GuardIsSticky(t *testing.T) {
	t.Parallel()

	state := readyState(serverMsg("m1", 0))
	state, effects := Reduce(state, cmdTeardown{Reply: make(chan error, 1)})
	require.True(t, state.Unmounted)
	require.IsType(t, effUnsubscribe{}, effects[0])

	before := state
	next, effects := actor.Steps(state, Reduce,
		evSendSettled{TempID: "m1", Err: errors.New("late")},
		evRemote{Event: chat.Event{Type: chat.EventChannelTruncated}},
		evQuerySettled{Messages: []chat.Message{serverMsg("old", -time.Hour)}, Limit: 1},
		cmdLoadMore{},
	)
	require.Equal(t, before.Rev, next.Rev)
	require.Equal(t, before.Channel.Messages, next.Channel.Messages)
	require.Empty(t, effects)

	reply := make(chan error, 1)
	_, effects = Reduce(next, cmdRemove{ID: "m1", Reply: reply})
	require.ErrorIs(t, effectsOf[effReply](effects)[0].Err, ErrClosed)
}

func TestReduceSend_OptimisticThenConverges(t *testing.T) {
	t.Parallel()

	draftMsg := chat.Message{ID: "alice-tmp", Text: "hi", User: &alice, CreatedAt: t0}
	state, effects := Reduce(readyState(), cmdSend{Draft: draftMsg})
	require.Len(t, state.Channel.Messages, 1)
	require.Equal(t, chat.StatusSending, state.Channel.Messages[0].Status)
	require.IsType(t, effReply{}, effects[0], "reply before the network call")
	require.Len(t, effectsOf[effSendMessage](effects), 1)

	server := draftMsg
	server.ID = "srv-1"
	state, _ = Reduce(state, evSendSettled{TempID: "alice-tmp", Message: server})
	require.Len(t, state.Channel.Messages, 1)
	require.Equal(t, "srv-1", state.Channel.Messages[0].ID)
	require.Equal(t, chat.StatusReceived, state.Channel.Messages[0].Status)
}

func TestReduceSend_FailureKeepsIDAndRetryResends(t *testing.T) {
	t.Parallel()

	draftMsg := chat.Message{ID: "alice-tmp", Text: "hi", CreatedAt: t0}
	state, _ := actor.Steps(readyState(), Reduce,
		cmdSend{Draft: draftMsg},
		evSendSettled{TempID: "alice-tmp", Err: errors.New("offline")},
	)
	require.Equal(t, chat.StatusFailed, state.Channel.Messages[0].Status)
	require.Equal(t, "alice-tmp", state.Channel.Messages[0].ID)

	state, effects := Reduce(state, cmdRetry{ID: "alice-tmp"})
	require.Equal(t, chat.StatusSending, state.Channel.Messages[0].Status)
	sends := effectsOf[effSendMessage](effects)
	require.Len(t, sends, 1)
	require.Equal(t, "alice-tmp", sends[0].Message.ID)

	reply := make(chan error, 1)
	_, effects = Reduce(state, cmdRetry{ID: "alice-tmp", Reply: reply})
	require.ErrorIs(t, effectsOf[effReply](effects)[0].Err, ErrNotFailed)
}

func TestReduceEdit_IsNotOptimistic(t *testing.T) {
	t.Parallel()

	state := readyState(serverMsg("m1", 0))
	edited := serverMsg("m1", 0)
	edited.Text = "edited"
	state.Editing = &edited

	next, effects := Reduce(state, cmdEdit{Message: edited})
	require.Equal(t, "text m1", next.Channel.Messages[0].Text)
	require.Len(t, effectsOf[effUpdateMessage](effects), 1)

	next, _ = Reduce(next, evEditSettled{Message: edited})
	require.Equal(t, "edited", next.Channel.Messages[0].Text)
	require.Nil(t, next.Editing)
}

func TestReduceDelete_PendingIsLocalOnly(t *testing.T) {
	t.Parallel()

	pending := serverMsg("alice-tmp", time.Second)
	pending.Status = chat.StatusFailed
	state := readyState(serverMsg("m1", 0), pending)

	next, effects := Reduce(state, cmdDelete{ID: "alice-tmp"})
	require.Empty(t, effectsOf[effDeleteMessage](effects))
	require.Len(t, next.Channel.Messages, 1)

	next, effects = Reduce(next, cmdDelete{ID: "m1"})
	require.Len(t, effectsOf[effDeleteMessage](effects), 1)
	require.Len(t, next.Channel.Messages, 1, "removed only after confirmation")

	next, _ = Reduce(next, evDeleteSettled{ID: "m1"})
	require.Empty(t, next.Channel.Messages)
}

func TestReduceReaction_RollbackKeepsConcurrentChanges(t *testing.T) {
	t.Parallel()

	state := readyState(serverMsg("m1", 0))
	state, effects := Reduce(state, cmdReact{MessageID: "m1", Type: "love", NowMs: t0.UnixMilli()})
	require.Len(t, effectsOf[effSendReaction](effects), 1)
	m, _ := state.Channel.Message("m1")
	require.True(t, m.HasOwnReaction("alice", "love"))

	// Another user's reaction lands while the request is in flight.
	state, _ = Reduce(state, evRemote{Event: chat.Event{
		Type:     chat.EventReactionNew,
		Reaction: &chat.Reaction{MessageID: "m1", UserID: "bob", Type: "like"},
	}})

	state, _ = Reduce(state, evReactionSettled{MessageID: "m1", Type: "love", Added: true, Err: errors.New("nope")})
	m, _ = state.Channel.Message("m1")
	require.False(t, m.HasOwnReaction("alice", "love"))
	require.Equal(t, map[string]int{"like": 1}, m.ReactionCounts)
}

func TestReduceReaction_ToggleOffEmitsDelete(t *testing.T) {
	t.Parallel()

	state, _ := Reduce(readyState(serverMsg("m1", 0)), cmdReact{MessageID: "m1", Type: "love"})
	state, effects := Reduce(state, cmdReact{MessageID: "m1", Type: "love"})
	require.Len(t, effectsOf[effDeleteReaction](effects), 1)

	m, _ := state.Channel.Message("m1")
	require.Empty(t, m.OwnReactions)

	state, _ = Reduce(state, evReactionSettled{MessageID: "m1", Type: "love", Added: false, Err: errors.New("nope")})
	m, _ = state.Channel.Message("m1")
	require.True(t, m.HasOwnReaction("alice", "love"))
}

func TestReduceDelete_InFlightDraftIsDeletedOnceStored(t *testing.T) {
	t.Parallel()

	d := chat.Message{ID: "alice-tmp", Text: "x", User: &alice, CreatedAt: t0}
	state, _ := Reduce(readyState(), cmdSend{Draft: d})

	state, effects := Reduce(state, cmdDelete{ID: "alice-tmp"})
	require.Empty(t, effectsOf[effDeleteMessage](effects))
	require.Empty(t, state.Channel.Messages)
	require.Contains(t, state.Abandoned, "alice-tmp")

	stored := d
	stored.ID = "srv-1"
	next, effects := Reduce(state, evSendSettled{TempID: "alice-tmp", Message: stored})
	require.Empty(t, next.Channel.Messages)
	require.Nil(t, next.Abandoned)
	del := effectsOf[effDeleteMessage](effects)
	require.Len(t, del, 1)
	require.Equal(t, "srv-1", del[0].ID)

	failed, effects := Reduce(state, evSendSettled{TempID: "alice-tmp", Err: errors.New("nope")})
	require.Empty(t, failed.Channel.Messages)
	require.Empty(t, effects)
	require.Contains(t, state.Abandoned, "alice-tmp", "earlier state keeps its set")
}

func TestReduceReaction_RollbackWithTruncatedLatest(t *testing.T) {
	t.Parallel()

	love := chat.Reaction{MessageID: "m1", UserID: "alice", User: &alice, Type: "love"}
	m := serverMsg("m1", 0)
	m.ReactionCounts = map[string]int{"love": 12}
	m.LatestReactions = []chat.Reaction{{MessageID: "m1", UserID: "u1", Type: "love"}}
	m.OwnReactions = []chat.Reaction{love}
	state := readyState(m)

	state, effects := Reduce(state, cmdReact{MessageID: "m1", Type: "love"})
	del := effectsOf[effDeleteReaction](effects)
	require.Len(t, del, 1)
	require.Equal(t, -1, del[0].LatestIndex)

	optimistic, _ := state.Channel.Message("m1")
	require.Equal(t, 11, optimistic.ReactionCounts["love"])
	require.Empty(t, optimistic.OwnReactions)

	state, _ = Reduce(state, evReactionSettled{
		MessageID:   "m1",
		Type:        "love",
		Err:         errors.New("nope"),
		Previous:    del[0].Previous,
		LatestIndex: del[0].LatestIndex,
	})
	got, _ := state.Channel.Message("m1")
	require.Equal(t, m.ReactionCounts, got.ReactionCounts)
	require.Equal(t, m.LatestReactions, got.LatestReactions)
	require.Equal(t, m.OwnReactions, got.OwnReactions)
}

func TestReduceLoadMore_LockAndGuards(t *testing.T) {
	t.Parallel()

	state := readyState(serverMsg("m1", 0), serverMsg("m2", time.Second))
	state, effects := actor.Steps(state, Reduce, cmdLoadMore{}, cmdLoadMore{})
	queries := effectsOf[effQuery](effects)
	require.Len(t, queries, 1)
	require.Equal(t, chat.QueryOptions{Limit: 100, IDLt: "m1"}, queries[0].Opts)
	require.True(t, state.LoadingMore)

	_, effects = Reduce(readyState(), cmdLoadMore{})
	require.Empty(t, effects, "empty timeline")

	sending := serverMsg("tmp", 0)
	sending.Status = chat.StatusSending
	_, effects = Reduce(readyState(sending), cmdLoadMore{})
	require.Empty(t, effects, "oldest message unresolved")

	noMore := readyState(serverMsg("m1", 0))
	noMore.HasMore = false
	_, effects = Reduce(noMore, cmdLoadMore{})
	require.Empty(t, effects)
}

func TestReduceQuerySettled_HasMoreFollowsPageSize(t *testing.T) {
	t.Parallel()

	state := readyState(serverMsg("m3", 3*time.Second))
	state.PageSize = 2
	state, _ = Reduce(state, cmdLoadMore{})

	full, _ := Reduce(state, evQuerySettled{
		Limit:    2,
		Messages: []chat.Message{serverMsg("m1", time.Second), serverMsg("m2", 2*time.Second)},
	})
	require.True(t, full.HasMore)
	require.False(t, full.LoadingMore)
	require.Len(t, full.Channel.Messages, 3)
	require.Equal(t, "m1", full.Channel.Messages[0].ID)

	short, _ := Reduce(state, evQuerySettled{Limit: 2, Messages: []chat.Message{serverMsg("m2", 2*time.Second)}})
	require.False(t, short.HasMore)

	failed, _ := Reduce(state, evQuerySettled{Limit: 2, Err: errors.New("timeout")})
	require.True(t, failed.HasMore)
	require.False(t, failed.LoadingMore)
}

func TestReduceQuerySettled_StaleAfterResync(t *testing.T) {
	t.Parallel()

	state, _ := Reduce(readyState(serverMsg("m1", 0)), cmdLoadMore{})
	state, effects := Reduce(state, evRemote{Event: chat.Event{Type: chat.EventConnectionRecovered}})
	require.Len(t, effectsOf[effResync](effects), 1)
	require.False(t, state.LoadingMore)

	next, _ := Reduce(state, evQuerySettled{Gen: 0, Limit: 1, Messages: []chat.Message{serverMsg("old", -time.Hour)}})
	require.Len(t, next.Channel.Messages, 1)
}

func TestReduceResync_KeepsDraftsAndClearsTyping(t *testing.T) {
	t.Parallel()

	failed := serverMsg("alice-tmp", time.Minute)
	failed.Status = chat.StatusFailed
	state := readyState(serverMsg("m1", 0), failed)
	state.Channel = state.Channel.WithTyping("bob", chat.Typing{})

	state, effects := Reduce(state, evRemote{Event: chat.Event{Type: chat.EventConnectionEstablished}})
	require.Empty(t, state.Channel.Typing)
	resync := effectsOf[effResync](effects)[0]

	fresh := []chat.Message{serverMsg("m1", 0), serverMsg("m2", time.Second)}
	state, _ = Reduce(state, evResyncSettled{
		Gen:      resync.Gen,
		Limit:    resync.Limit,
		Messages: fresh,
		Snapshot: chat.Snapshot{Messages: fresh},
	})
	require.False(t, state.Resyncing)
	require.False(t, state.HasMore)
	ids := make([]string, 0, len(state.Channel.Messages))
	for _, m := range state.Channel.Messages {
		ids = append(ids, m.ID)
	}
	require.Equal(t, []string{"m1", "m2", "alice-tmp"}, ids)
}

func TestReduceThread_OpenLoadsAndCloseDropsStale(t *testing.T) {
	t.Parallel()

	parent := serverMsg("p", 0)
	state, effects := Reduce(readyState(parent), cmdOpenThread{Parent: parent})
	require.NotNil(t, state.Thread)
	gets := effectsOf[effGetReplies](effects)
	require.Len(t, gets, 1)
	require.Equal(t, chat.QueryOptions{Limit: 50}, gets[0].Opts)

	// Second request while loading is dropped.
	_, effects = Reduce(state, cmdLoadMoreThread{ParentID: "p"})
	require.Empty(t, effects)

	r1 := serverMsg("r1", time.Second)
	r1.ParentID = "p"
	loaded, _ := Reduce(state, evRepliesSettled{ParentID: "p", Gen: gets[0].Gen, Limit: 50, Messages: []chat.Message{r1}})
	require.False(t, loaded.ThreadLoadingMore)
	require.False(t, loaded.ThreadHasMore)
	require.Len(t, loaded.Channel.Threads["p"], 1)
	require.Len(t, loaded.Channel.Messages, 1, "hidden replies stay out of the main list")

	closed, _ := Reduce(state, cmdCloseThread{})
	closed, _ = Reduce(closed, evRepliesSettled{ParentID: "p", Gen: gets[0].Gen, Limit: 50, Messages: []chat.Message{r1}})
	require.Empty(t, closed.Channel.Threads["p"])
}

func TestReduceLoadMoreThread_UsesOldestReplyCursor(t *testing.T) {
	t.Parallel()

	parent := serverMsg("p", 0)
	r1 := serverMsg("r1", time.Second)
	r1.ParentID = "p"
	state := readyState(parent, r1)
	state.Thread = &parent

	_, effects := Reduce(state, cmdLoadMoreThread{})
	gets := effectsOf[effGetReplies](effects)
	require.Len(t, gets, 1)
	require.Equal(t, "r1", gets[0].Opts.IDLt)

	_, effects = Reduce(state, cmdLoadMoreThread{ParentID: "other"})
	require.Empty(t, effects)
}

func TestReduceRemoteEvent_DuplicateMessageNewIsIdempotent(t *testing.T) {
	t.Parallel()

	m := serverMsg("m1", 0)
	ev := evRemote{Event: chat.Event{Type: chat.EventMessageNew, Message: &m}}
	state, _ := actor.Steps(readyState(), Reduce, ev, ev)
	require.Len(t, state.Channel.Messages, 1)
}

func TestReduceRemoteEvent_ReplyCountsOnce(t *testing.T) {
	t.Parallel()

	reply := serverMsg("r1", time.Second)
	reply.ParentID = "p"
	ev := evRemote{Event: chat.Event{Type: chat.EventMessageNew, Message: &reply}}
	state, _ := actor.Steps(readyState(serverMsg("p", 0)), Reduce, ev, ev)

	parent, _ := state.Channel.Message("p")
	require.Equal(t, 1, parent.ReplyCount)
	require.Len(t, state.Channel.Threads["p"], 1)
}

func TestReduceRemoteEvent_DeletedUnknownIsIgnored(t *testing.T) {
	t.Parallel()

	gone := serverMsg("gone", 0)
	gone.Type = chat.TypeDeleted
	state := readyState(serverMsg("m1", 0))
	next, _ := Reduce(state, evRemote{Event: chat.Event{Type: chat.EventMessageDeleted, Message: &gone}})
	require.Equal(t, state.Rev, next.Rev)
	require.Len(t, next.Channel.Messages, 1)

	known := serverMsg("m1", 0)
	known.Type = chat.TypeDeleted
	next, _ = Reduce(state, evRemote{Event: chat.Event{Type: chat.EventMessageDeleted, Message: &known}})
	require.Equal(t, chat.TypeDeleted, next.Channel.Messages[0].Type)
}

func TestReduceRemoteEvent_MembershipAndPresence(t *testing.T) {
	t.Parallel()

	u := bob
	state, _ := actor.Steps(readyState(serverMsg("m1", 0)), Reduce,
		evRemote{Event: chat.Event{Type: chat.EventMemberAdded, Member: &chat.Member{UserID: "bob", User: &u, Role: "member"}}},
		evRemote{Event: chat.Event{Type: chat.EventPresenceChanged, User: &chat.User{ID: "bob", Online: true}}},
	)
	require.True(t, state.Channel.Members["bob"].User.Online)
	require.Equal(t, "member", state.Channel.Members["bob"].Role)
	require.Len(t, state.Channel.EventHistory["m1"], 1)

	state, _ = Reduce(state, evRemote{Event: chat.Event{Type: chat.EventMemberRemoved, User: &u}})
	require.NotContains(t, state.Channel.Members, "bob")
	require.Len(t, state.Channel.EventHistory["m1"], 2)
}

func TestReduceRemoteEvent_ReadTypingWatchersTruncate(t *testing.T) {
	t.Parallel()

	u := bob
	state, _ := actor.Steps(readyState(serverMsg("m1", 0)), Reduce,
		evRemote{Event: chat.Event{Type: chat.EventMessageRead, User: &u}, NowMs: t0.UnixMilli()},
		evRemote{Event: chat.Event{Type: chat.EventTypingStart, User: &u}},
		evRemote{Event: chat.Event{Type: chat.EventWatchingStart, User: &u, WatcherCount: 2}},
	)
	require.Equal(t, t0, state.Channel.Read["bob"].LastRead)
	require.Contains(t, state.Channel.Typing, "bob")
	require.Equal(t, 2, state.Channel.WatcherCount)

	state, _ = actor.Steps(state, Reduce,
		evRemote{Event: chat.Event{Type: chat.EventTypingStop, User: &u}},
		evRemote{Event: chat.Event{Type: chat.EventWatchingStop, User: &u, WatcherCount: 1}},
		evRemote{Event: chat.Event{Type: chat.EventChannelTruncated}},
	)
	require.Empty(t, state.Channel.Typing)
	require.Empty(t, state.Channel.Watchers)
	require.Empty(t, state.Channel.Messages)
}

func TestReduceRemoteEvent_ServerReactionKeepsOwn(t *testing.T) {
	t.Parallel()

	state, _ := Reduce(readyState(serverMsg("m1", 0)), cmdReact{MessageID: "m1", Type: "love"})

	server := serverMsg("m1", 0)
	server.ReactionCounts = map[string]int{"love": 1, "like": 1}
	state, _ = Reduce(state, evRemote{Event: chat.Event{
		Type:     chat.EventReactionNew,
		Message:  &server,
		Reaction: &chat.Reaction{UserID: "bob", Type: "like"},
	}})

	m, _ := state.Channel.Message("m1")
	require.True(t, m.HasOwnReaction("alice", "love"))
	require.Equal(t, 1, m.ReactionCounts["like"])
}
