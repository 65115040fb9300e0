package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/redclient/internal/logging"
	"github.com/danmuck/redclient/internal/observability"
	"github.com/danmuck/redclient/internal/protocol/resp"
	"github.com/rs/zerolog"
)

// Publisher sends PUBLISH commands and reads their replies, one at a time.
type Publisher struct {
	conn Conn
	log  zerolog.Logger
	mu   sync.Mutex
}

func NewPublisher(conn Conn) *Publisher {
	return &Publisher{conn: conn, log: logging.Logger("publisher")}
}

// Publish sends message to channel and returns the number of receivers the
// server reported. Any failure, including an error reply, disconnects,
// since a reply stream out of step cannot be recovered.
func (p *Publisher) Publish(ctx context.Context, channel string, message []byte) (int64, error) {
	if channel == "" {
		return 0, fmt.Errorf("%w: empty channel", ErrInvalidArgument)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd, err := resp.NewArray(resp.BulkString("PUBLISH"), resp.BulkString(channel), resp.BulkString(message))
	if err != nil {
		return 0, err
	}
	if err := p.conn.Send(ctx, cmd); err != nil {
		return 0, p.fail(fmt.Errorf("pubsub: publish %q: %w", channel, err))
	}
	observability.RecordCommand("PUBLISH")

	reply, err := p.conn.Receive(ctx)
	if err != nil {
		return 0, p.fail(fmt.Errorf("pubsub: publish %q reply: %w", channel, err))
	}
	switch r := reply.(type) {
	case resp.Integer:
		p.log.Debug().Str("channel", channel).Int64("receivers", int64(r)).Msg("published")
		return int64(r), nil
	case resp.Error:
		return 0, p.fail(&ServerError{Command: "PUBLISH", Reply: r})
	default:
		return 0, p.fail(unexpected("publish reply is %s, want integer", reply.Type()))
	}
}

func (p *Publisher) fail(err error) error {
	_ = p.conn.Disconnect()
	p.log.Warn().Err(err).Msg("publish failed")
	return err
}
