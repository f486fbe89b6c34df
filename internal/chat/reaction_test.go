package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddAndRemoveReactionRoundTrip(t *testing.T) {
	t.Parallel()

	base := msg("m", 0)
	r := Reaction{UserID: "alice", Type: "love"}

	added := AddReaction(base, r, true)
	require.True(t, added.HasOwnReaction("alice", "love"))
	require.Equal(t, 1, added.ReactionCounts["love"])
	require.Len(t, added.LatestReactions, 1)

	again := AddReaction(added, r, true)
	require.Equal(t, 1, again.ReactionCounts["love"])
	require.Len(t, again.OwnReactions, 1)

	removed := RemoveReaction(again, "alice", "love", true)
	require.False(t, removed.HasOwnReaction("alice", "love"))
	require.Nil(t, removed.ReactionCounts)
	require.Nil(t, removed.LatestReactions)
	require.Nil(t, removed.OwnReactions)

	require.Nil(t, base.ReactionCounts, "input must not be mutated")
}

func TestAddReactionFromOtherUserLeavesOwnReactions(t *testing.T) {
	t.Parallel()

	m := AddReaction(msg("m", 0), Reaction{User: &User{ID: "bob"}, Type: "like"}, false)
	require.Empty(t, m.OwnReactions)
	require.Equal(t, "bob", m.LatestReactions[0].UserID)
	require.Equal(t, 1, m.ReactionCounts["like"])
}

func TestMergeReactionEventKeepsOwnReactions(t *testing.T) {
	t.Parallel()

	local := AddReaction(msg("m", 0), Reaction{UserID: "alice", Type: "love"}, true)

	server := msg("m", 0)
	server.ReactionCounts = map[string]int{"love": 1, "like": 1}
	merged := MergeReactionEvent(local, server, Reaction{UserID: "bob", Type: "like"}, true, "alice")
	require.True(t, merged.HasOwnReaction("alice", "love"))
	require.Equal(t, 1, merged.ReactionCounts["like"])

	server.ReactionCounts = map[string]int{"like": 1}
	merged = MergeReactionEvent(merged, server, Reaction{UserID: "alice", Type: "love"}, false, "alice")
	require.False(t, merged.HasOwnReaction("alice", "love"))
}

func TestOutgoingStripsClientFields(t *testing.T) {
	t.Parallel()

	m := AddReaction(msg("alice-tmp", 0), Reaction{UserID: "alice", Type: "love"}, true)
	m.Status = StatusFailed
	m.HTML = "<p>x</p>"

	out := m.Outgoing()
	require.Equal(t, "alice-tmp", out.ID)
	require.Empty(t, out.Status)
	require.Empty(t, out.HTML)
	require.Nil(t, out.OwnReactions)
	require.Equal(t, StatusFailed, m.Status)
}

func TestOwnReactionCountsFollowOwnReactionsWhenLatestIsTruncated(t *testing.T) {
	t.Parallel()

	love := Reaction{UserID: "alice", Type: "love"}
	base := msg("m", 0)
	base.ReactionCounts = map[string]int{"love": 12}
	base.LatestReactions = []Reaction{{UserID: "u1", Type: "love"}}
	base.OwnReactions = []Reaction{love}

	idx := base.LatestIndex("alice", "love")
	require.Equal(t, -1, idx)

	removed := RemoveReaction(base, "alice", "love", true)
	require.Equal(t, 11, removed.ReactionCounts["love"])
	require.Empty(t, removed.OwnReactions)
	require.Len(t, removed.LatestReactions, 1)

	restored := RestoreReaction(removed, love, idx)
	require.Equal(t, base, restored)
}

func TestRestoreReactionKeepsLatestPosition(t *testing.T) {
	t.Parallel()

	love := Reaction{UserID: "alice", Type: "love"}
	base := msg("m", 0)
	base.ReactionCounts = map[string]int{"love": 3}
	base.LatestReactions = []Reaction{{UserID: "u1", Type: "love"}, love, {UserID: "u2", Type: "love"}}
	base.OwnReactions = []Reaction{love}

	idx := base.LatestIndex("alice", "love")
	require.Equal(t, 1, idx)

	removed := RemoveReaction(base, "alice", "love", true)
	require.Equal(t, 2, removed.ReactionCounts["love"])
	require.Len(t, removed.LatestReactions, 2)

	require.Equal(t, base, RestoreReaction(removed, love, idx))
}
