package actor

import "context"

// InputBase is embedded by input structs to satisfy Input.
type InputBase struct{}

func (InputBase) isActorInput() {}

// EffectBase is embedded by effect structs to satisfy Effect.
type EffectBase struct{}

func (EffectBase) isActorEffect() {}

// barrier is consumed by the loop itself and never reaches the reducer. Its
// channel closes once every input enqueued before it has been reduced.
type barrier struct {
	InputBase
	done chan struct{}
}

// Flush blocks until every input enqueued before the call has been reduced and
// its effects handed to the runtime.
func (a *Actor[S]) Flush(ctx context.Context) error {
	b := barrier{done: make(chan struct{})}
	if err := a.Send(ctx, b); err != nil {
		return err
	}
	select {
	case <-b.done:
		return nil
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
