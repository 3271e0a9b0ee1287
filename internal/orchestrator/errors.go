package orchestrator

import "errors"

var (
	// ErrNoSession is returned when a request arrives without a valid
	// persisted session.
	ErrNoSession = errors.New("not logged in")

	// ErrConversationBusy is returned when a conversation is already
	// owned by an in-flight request.
	ErrConversationBusy = errors.New("conversation is busy")

	// ErrEmptyQuestion is returned for blank input.
	ErrEmptyQuestion = errors.New("question is empty")
)
