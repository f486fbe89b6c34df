// Package actor provides a small actor-style event loop that owns one value of
// state and mutates it only through a pure reducer.
//
// Callers and the runtime talk to the loop only by posting inputs. The loop
// reduces them one at a time and passes the resulting effects to the runtime,
// whose asynchronous results come back as further inputs.
//
// Effects are handed to the runtime only after the next state has been
// committed, so anything a runtime observes through State already reflects the
// transition that produced the effect.
package actor

import (
	"context"
	"errors"
	"sync"
)

// Input is anything the loop reduces: a caller's command or a result the
// runtime reports back. Both travel through the same mailbox.
type Input interface {
	isActorInput()
}

// Effect describes work a reducer wants done. Only the Runtime performs it.
type Effect interface {
	isActorEffect()
}

// ReducerFunc computes the next state and the effects of one input. It must
// not perform I/O, start goroutines or read clocks; timestamps and ids arrive
// inside inputs so that the same (state, input) pair always reduces the same
// way.
type ReducerFunc[S any] func(state S, input Input) (next S, effects []Effect)

// Runtime performs effects. Outcomes go back to the loop through emit; a
// runtime never touches the state itself.
type Runtime interface {
	// HandleEffects executes effects. It runs on the actor loop and must return
	// quickly; blocking work belongs in a goroutine. Implementations must stop
	// emitting once the context is canceled.
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))

	// Stop releases background work. Repeated calls are allowed.
	Stop()
}

// Hooks observe the loop. All of them run on the loop goroutine.
type Hooks[S any] struct {
	OnInput      func(input Input)
	OnTransition func(prev S, next S, input Input)
	// OnEffects sees the effects before the runtime does.
	OnEffects func(effects []Effect)
	// OnPanic recovers a panicking reducer or runtime. Without it the panic
	// crashes the process.
	OnPanic func(recovered any)
}

// ErrStopped is returned when an input is offered to a stopped actor.
var ErrStopped = errors.New("actor stopped")

// Actor serializes every change to a value of type S through one goroutine.
type Actor[S any] struct {
	reduce  ReducerFunc[S]
	runtime Runtime
	hooks   Hooks[S]

	mu     sync.Mutex
	state  S
	inbox  chan Input
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New returns a stopped actor. Call Start to run it.
func New[S any](initial S, reducer ReducerFunc[S], runtime Runtime, opts ...Option[S]) *Actor[S] {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor[S]{
		reduce:  reducer,
		runtime: runtime,
		state:   initial,
		inbox:   make(chan Input, 256),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Option configures an Actor.
type Option[S any] func(*Actor[S])

// WithHooks installs hooks.
func WithHooks[S any](hooks Hooks[S]) Option[S] {
	return func(a *Actor[S]) { a.hooks = hooks }
}

// WithMailboxSize changes the mailbox capacity from the default of 256.
func WithMailboxSize[S any](n int) Option[S] {
	return func(a *Actor[S]) {
		if n <= 0 {
			return
		}
		a.inbox = make(chan Input, n)
	}
}

// Start runs the loop. Only the first call has an effect.
func (a *Actor[S]) Start() {
	a.once.Do(func() { go a.loop() })
}

// Stop cancels the actor's context and the runtime. It may be called more
// than once.
func (a *Actor[S]) Stop() {
	a.cancel()
	if a.runtime != nil {
		a.runtime.Stop()
	}
}

// Done is closed once the loop has exited.
func (a *Actor[S]) Done() <-chan struct{} { return a.done }

// Context returns the actor's lifetime context. It is canceled by Stop.
func (a *Actor[S]) Context() context.Context { return a.ctx }

// Enqueue offers an input to the mailbox without blocking.
//
// It returns false if the actor is stopped or the mailbox is full. Callers
// that must not lose the input should use Send.
func (a *Actor[S]) Enqueue(input Input) bool {
	if input == nil {
		return false
	}
	select {
	case <-a.ctx.Done():
		return false
	default:
	}
	select {
	case a.inbox <- input:
		return true
	default:
		return false
	}
}

// Send delivers an input to the mailbox, blocking until there is room, the
// actor stops, or ctx is done.
func (a *Actor[S]) Send(ctx context.Context, input Input) error {
	if input == nil {
		return nil
	}
	select {
	case <-a.ctx.Done():
		return ErrStopped
	default:
	}
	select {
	case a.inbox <- input:
		return nil
	case <-a.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns a snapshot of the current actor state.
func (a *Actor[S]) State() S {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// emit is handed to the runtime. It never blocks the caller: when the mailbox
// is full the input is delivered from a helper goroutine instead of dropped.
func (a *Actor[S]) emit(in Input) {
	if a.Enqueue(in) {
		return
	}
	select {
	case <-a.ctx.Done():
		return
	default:
	}
	go func() { _ = a.Send(a.ctx, in) }()
}

// loop runs the actor event loop.
func (a *Actor[S]) loop() {
	defer close(a.done)
	defer func() {
		if r := recover(); r != nil {
			if a.hooks.OnPanic != nil {
				a.hooks.OnPanic(r)
				return
			}
			panic(r)
		}
	}()

	for {
		select {
		case <-a.ctx.Done():
			return
		case in := <-a.inbox:
			if in == nil {
				continue
			}
			if b, ok := in.(barrier); ok {
				close(b.done)
				continue
			}
			a.step(in)
		}
	}
}

func (a *Actor[S]) step(in Input) {
	if a.hooks.OnInput != nil {
		a.hooks.OnInput(in)
	}

	a.mu.Lock()
	prev := a.state
	a.mu.Unlock()

	next, effects := a.reduce(prev, in)

	a.mu.Lock()
	a.state = next
	a.mu.Unlock()

	if a.hooks.OnTransition != nil {
		a.hooks.OnTransition(prev, next, in)
	}
	if len(effects) == 0 {
		return
	}
	if a.hooks.OnEffects != nil {
		a.hooks.OnEffects(effects)
	}
	if a.runtime != nil {
		a.runtime.HandleEffects(a.ctx, effects, a.emit)
	}
}
