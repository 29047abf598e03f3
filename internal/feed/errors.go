package feed

import "errors"

var (
	// ErrAppend wraps a downstream append failure. It is terminal for the
	// session: the buffer's state after a rejected append is unknown.
	ErrAppend = errors.New("downstream append failed")

	// ErrStreamerClosed is returned when posting to a streamer that has stopped.
	ErrStreamerClosed = errors.New("streamer closed")
)
