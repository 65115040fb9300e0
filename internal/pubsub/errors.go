package pubsub

import (
	"errors"

	"github.com/danmuck/redclient/internal/protocol/resp"
)

var (
	ErrUnexpectedResponse = errors.New("pubsub: unexpected response")
	ErrSessionClosed      = errors.New("pubsub: session closed")
	ErrAlreadyRunning     = errors.New("pubsub: subscriber already running")
	ErrInvalidArgument    = resp.ErrInvalidArgument
)

// ServerError is an error reply returned by the server for a command.
type ServerError struct {
	Command string
	Reply   resp.Error
}

func (e *ServerError) Error() string {
	return "pubsub: " + e.Command + ": server error: " + e.Reply.Message()
}
