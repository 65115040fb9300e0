package transport

import (
	"errors"
	"fmt"

	"github.com/danmuck/redclient/internal/protocol/resp"
)

var (
	ErrConnectionRefused = errors.New("transport: connection refused")
	ErrConnectionClosed  = errors.New("transport: connection closed")
	ErrNotConnected      = fmt.Errorf("%w: not connected", ErrConnectionClosed)
	ErrTimeout           = errors.New("transport: timeout")
	ErrInvalidArgument   = resp.ErrInvalidArgument
)
