package actor

// Step applies a reducer to a single (state, input) pair and returns the next
// state and effects.
//
// This is a testing utility for reducer-level unit tests. It does not execute
// effects.
func Step[S any](state S, input Input, reducer ReducerFunc[S]) (S, []Effect) {
	return reducer(state, input)
}

// Steps folds inputs through the reducer in order, collecting every effect.
func Steps[S any](state S, reducer ReducerFunc[S], inputs ...Input) (S, []Effect) {
	var all []Effect
	for _, in := range inputs {
		var effects []Effect
		state, effects = reducer(state, in)
		all = append(all, effects...)
	}
	return state, all
}
