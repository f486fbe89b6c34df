package draft

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bhandras/delight-chat/internal/chat"
)

func TestBuildProducesSendingDraft(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := NewBuilder(chat.User{ID: "alice", Name: "Alice"},
		WithClock(func() time.Time { return now }),
		WithIDSource(func() string { return "fixed" }),
	)

	m := b.Build(Input{
		Text:        "hello",
		Attachments: []chat.Attachment{{Type: "image", ImageURL: "https://x/y.png"}},
		Extra:       map[string]any{"priority": "high"},
	})

	require.Equal(t, "alice-fixed", m.ID)
	require.Equal(t, "hello", m.Text)
	require.Equal(t, chat.StatusSending, m.Status)
	require.Equal(t, now, m.CreatedAt)
	require.Equal(t, "alice", m.UserID())
	require.Empty(t, m.ParentID)
	require.Len(t, m.Attachments, 1)
	require.Equal(t, "high", m.Extra["priority"])
}

func TestBuildSetsParentOnlyWithParentID(t *testing.T) {
	t.Parallel()

	b := NewBuilder(chat.User{ID: "alice"})

	reply := b.Build(Input{Text: "re", Parent: &chat.Message{ID: "p1"}, ShowInChannel: true})
	require.Equal(t, "p1", reply.ParentID)
	require.True(t, reply.ShowInChannel)

	orphan := b.Build(Input{Text: "re", Parent: &chat.Message{}, ShowInChannel: true})
	require.Empty(t, orphan.ParentID)
	require.False(t, orphan.ShowInChannel)
}

func TestTemporaryIDsAreUnique(t *testing.T) {
	t.Parallel()

	b := NewBuilder(chat.User{ID: "alice"})
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := b.Build(Input{Text: "x"}).ID
		require.True(t, strings.HasPrefix(id, "alice-"))
		require.False(t, seen[id])
		seen[id] = true
	}
}
