package session

import (
	"time"

	"github.com/bhandras/delight-chat/internal/actor"
	"github.com/bhandras/delight-chat/internal/chat"
)

// Phase is the session lifecycle phase.
type Phase string

const (
	// PhaseIdle means Start has not been called yet.
	PhaseIdle Phase = "idle"
	// PhaseLoading means the channel is being watched.
	PhaseLoading Phase = "loading"
	// PhaseReady means the snapshot was copied and events are flowing.
	PhaseReady Phase = "ready"
	// PhaseError means initialization failed. The session must be recreated.
	PhaseError Phase = "error"
	// PhaseClosed means the session was torn down.
	PhaseClosed Phase = "closed"
)

// State is the loop-owned state of one session.
type State struct {
	Phase Phase
	// Err is the initialization error, set only in PhaseError.
	Err error

	// User is the session user. Required.
	User chat.User

	Channel chat.ChannelState

	LoadingMore bool
	HasMore     bool

	// Thread is the open thread's parent message, if any.
	Thread            *chat.Message
	ThreadLoadingMore bool
	ThreadHasMore     bool
	// ThreadGen increments whenever a thread is opened or closed so replies
	// fetched for a previous thread are dropped.
	ThreadGen int64

	Editing *chat.Message

	// Abandoned holds temporary ids of drafts deleted while their send was
	// in flight. When such a send succeeds the stored copy is deleted
	// remotely instead of shown.
	Abandoned map[string]struct{}

	LastRead time.Time

	// Unmounted is sticky: once set, no input mutates the state again.
	Unmounted bool

	// ResyncGen increments on every reconnect. Query completions carrying an
	// older generation are stale.
	ResyncGen int64
	Resyncing bool

	PageSize       int
	ThreadPageSize int

	// PendingStart is completed once initialization settles.
	PendingStart chan error

	// Rev increments on every visible change and drives view publication.
	Rev uint64
}

// Inputs

// Event is a marker interface for events consumed by the session reducer.
type Event interface {
	actor.Input
	isSessionEvent()
}

// Command is a marker interface for commands consumed by the session reducer.
type Command interface {
	actor.Input
	isSessionCommand()
}

type cmdStart struct {
	actor.InputBase
	Reply chan error
}

func (cmdStart) isSessionCommand() {}

type cmdTeardown struct {
	actor.InputBase
	Reply chan error
}

func (cmdTeardown) isSessionCommand() {}

// cmdSend inserts an optimistic draft and sends it.
type cmdSend struct {
	actor.InputBase
	Draft chat.Message
	Reply chan error
}

func (cmdSend) isSessionCommand() {}

type cmdRetry struct {
	actor.InputBase
	ID    string
	Reply chan error
}

func (cmdRetry) isSessionCommand() {}

type cmdEdit struct {
	actor.InputBase
	Message chat.Message
	Reply   chan error
}

func (cmdEdit) isSessionCommand() {}

type cmdDelete struct {
	actor.InputBase
	ID    string
	Reply chan error
}

func (cmdDelete) isSessionCommand() {}

type cmdRemove struct {
	actor.InputBase
	ID    string
	Reply chan error
}

func (cmdRemove) isSessionCommand() {}

type cmdReact struct {
	actor.InputBase
	MessageID string
	Type      string
	NowMs     int64
	Reply     chan error
}

func (cmdReact) isSessionCommand() {}

type cmdLoadMore struct {
	actor.InputBase
}

func (cmdLoadMore) isSessionCommand() {}

type cmdLoadMoreThread struct {
	actor.InputBase
	ParentID string
}

func (cmdLoadMoreThread) isSessionCommand() {}

type cmdOpenThread struct {
	actor.InputBase
	Parent chat.Message
	Reply  chan error
}

func (cmdOpenThread) isSessionCommand() {}

type cmdCloseThread struct {
	actor.InputBase
	Reply chan error
}

func (cmdCloseThread) isSessionCommand() {}

type cmdSetEditing struct {
	actor.InputBase
	// Message is nil to clear the editing state.
	Message *chat.Message
	Reply   chan error
}

func (cmdSetEditing) isSessionCommand() {}

// Events emitted by the runtime back into the reducer.

type evWatched struct {
	actor.InputBase
	Snapshot chat.Snapshot
	Unread   int
	NowMs    int64
}

func (evWatched) isSessionEvent() {}

type evWatchFailed struct {
	actor.InputBase
	Err error
}

func (evWatchFailed) isSessionEvent() {}

type evSendSettled struct {
	actor.InputBase
	TempID  string
	Message chat.Message
	Err     error
}

func (evSendSettled) isSessionEvent() {}

type evEditSettled struct {
	actor.InputBase
	Message chat.Message
	Err     error
	Reply   chan error
}

func (evEditSettled) isSessionEvent() {}

type evDeleteSettled struct {
	actor.InputBase
	ID    string
	Err   error
	Reply chan error
}

func (evDeleteSettled) isSessionEvent() {}

type evReactionSettled struct {
	actor.InputBase
	MessageID string
	Type      string
	Added     bool
	Err       error
	// Previous and LatestIndex describe a removed reaction so a failed
	// removal restores it where it was.
	Previous    chat.Reaction
	LatestIndex int
}

func (evReactionSettled) isSessionEvent() {}

type evQuerySettled struct {
	actor.InputBase
	Gen      int64
	Limit    int
	Messages []chat.Message
	Err      error
}

func (evQuerySettled) isSessionEvent() {}

type evRepliesSettled struct {
	actor.InputBase
	ParentID string
	Gen      int64
	Limit    int
	Messages []chat.Message
	Err      error
}

func (evRepliesSettled) isSessionEvent() {}

type evResyncSettled struct {
	actor.InputBase
	Gen      int64
	Limit    int
	Messages []chat.Message
	Snapshot chat.Snapshot
	Err      error
}

func (evResyncSettled) isSessionEvent() {}

// evRemote wraps one pushed backend event.
type evRemote struct {
	actor.InputBase
	Event chat.Event
	NowMs int64
}

func (evRemote) isSessionEvent() {}

// Effects

// Effect is a marker interface for effects emitted by the reducer.
type Effect interface {
	actor.Effect
	isSessionEffect()
}

// effReply completes a caller's reply channel once the transition that
// produced it has been committed.
type effReply struct {
	actor.EffectBase
	Reply chan error
	Err   error
}

func (effReply) isSessionEffect() {}

type effWatch struct {
	actor.EffectBase
}

func (effWatch) isSessionEffect() {}

type effSubscribe struct {
	actor.EffectBase
}

func (effSubscribe) isSessionEffect() {}

type effUnsubscribe struct {
	actor.EffectBase
}

func (effUnsubscribe) isSessionEffect() {}

type effSendMessage struct {
	actor.EffectBase
	Message chat.Message
}

func (effSendMessage) isSessionEffect() {}

type effUpdateMessage struct {
	actor.EffectBase
	Message chat.Message
	Reply   chan error
}

func (effUpdateMessage) isSessionEffect() {}

type effDeleteMessage struct {
	actor.EffectBase
	ID    string
	Reply chan error
}

func (effDeleteMessage) isSessionEffect() {}

type effSendReaction struct {
	actor.EffectBase
	MessageID string
	Type      string
}

func (effSendReaction) isSessionEffect() {}

type effDeleteReaction struct {
	actor.EffectBase
	MessageID   string
	Type        string
	Previous    chat.Reaction
	LatestIndex int
}

func (effDeleteReaction) isSessionEffect() {}

type effQuery struct {
	actor.EffectBase
	Gen  int64
	Opts chat.QueryOptions
}

func (effQuery) isSessionEffect() {}

type effGetReplies struct {
	actor.EffectBase
	ParentID string
	Gen      int64
	Opts     chat.QueryOptions
}

func (effGetReplies) isSessionEffect() {}

type effResync struct {
	actor.EffectBase
	Gen   int64
	Limit int
}

func (effResync) isSessionEffect() {}

// effRequestRead asks the read tracker for a (rate-limited) mark read.
type effRequestRead struct {
	actor.EffectBase
}

func (effRequestRead) isSessionEffect() {}
