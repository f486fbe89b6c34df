package session

import "errors"

var (
	// ErrClosed is returned by engine calls made after Close.
	ErrClosed = errors.New("session closed")
	// ErrNotStarted is returned by actions that need an initialized channel.
	ErrNotStarted = errors.New("session not started")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrMessageNotFound is returned when an action names an unknown message.
	ErrMessageNotFound = errors.New("message not found")
	// ErrNotFailed is returned when retrying a message that did not fail.
	ErrNotFailed = errors.New("message is not in failed state")
)
