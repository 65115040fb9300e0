package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/redclient/internal/logging"
	"github.com/danmuck/redclient/internal/observability"
	"github.com/danmuck/redclient/internal/protocol/resp"
	"github.com/rs/zerolog"
)

// aLongTimeAgo is a non-zero deadline in the past, used to interrupt a
// blocked read or write.
var aLongTimeAgo = time.Unix(1, 0)

// Connection frames one duplex stream into a sequence of RESP values.
type Connection struct {
	cfg    Config
	log    zerolog.Logger
	remote string

	mu   sync.Mutex
	conn net.Conn
	cur  *resp.Cursor
	dec  *resp.Decoder

	writeMu sync.Mutex
}

// Dial opens a new stream to host:port. Every dial or handshake failure is
// reported as ErrConnectionRefused.
func Dial(ctx context.Context, host string, port int, cfg Config) (*Connection, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, fmt.Errorf("%w: host required", ErrInvalidArgument)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidArgument, port)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateClientTransport(); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		observability.RecordTransportError("refused")
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionRefused, addr, err)
	}
	if !cfg.TLS.Enabled {
		return newConnection(rawConn, cfg), nil
	}

	tlsCfg, err := cfg.clientTLSConfig(host)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		observability.RecordTransportError("refused")
		return nil, fmt.Errorf("%w: %s: tls handshake: %w", ErrConnectionRefused, addr, err)
	}
	return newConnection(conn, cfg), nil
}

// Adopt wraps an already established stream, such as one accepted by a
// server or one end of net.Pipe.
func Adopt(conn net.Conn, cfg Config) (*Connection, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: nil stream", ErrInvalidArgument)
	}
	return newConnection(conn, cfg.WithDefaults()), nil
}

func newConnection(conn net.Conn, cfg Config) *Connection {
	remote := "pipe"
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	cur := resp.NewCursor(conn)
	c := &Connection{
		cfg:    cfg,
		log:    logging.Logger("transport").With().Str("remote", remote).Logger(),
		remote: remote,
		conn:   conn,
		cur:    cur,
		dec:    resp.NewDecoder(cur, cfg.Limits),
	}
	c.log.Debug().Msg("connection open")
	return c
}

func (c *Connection) RemoteAddr() string {
	return c.remote
}

// Connected reports whether the stream handle is still held. A peer that has
// closed its end is only noticed by the next Receive.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes v as one complete frame. A write failure leaves the stream in
// an unknown position, so the connection is closed before returning.
func (c *Connection) Send(ctx context.Context, v resp.Value) error {
	if v == nil {
		return fmt.Errorf("%w: nil value", ErrInvalidArgument)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn := c.stream()
	if conn == nil {
		_ = c.Disconnect()
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := conn.SetWriteDeadline(deadlineFor(ctx, c.cfg.WriteTimeout)); err != nil {
		_ = c.Disconnect()
		return fmt.Errorf("%w: set write deadline: %w", ErrConnectionClosed, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetWriteDeadline(aLongTimeAgo)
	})
	defer stop()

	if _, err := conn.Write(resp.Encode(v)); err != nil {
		_ = c.Disconnect()
		if isTimeout(err) {
			observability.RecordTransportError("write_timeout")
			if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
				return ctxErr
			}
			return fmt.Errorf("%w: send: %w", ErrTimeout, err)
		}
		observability.RecordTransportError("closed")
		return fmt.Errorf("%w: send: %w", ErrConnectionClosed, err)
	}
	observability.RecordFrame("out", v.Type().String())
	return nil
}

// Receive reads one complete value. The read deadline is taken from ctx and
// Config.ReadTimeout, whichever is sooner, and covers the whole frame.
//
// On timeout or cancellation the partial frame is kept buffered and the
// connection stays usable. A parse error leaves the connection open only when
// the malformed frame was consumed whole; limit errors and errors inside an
// array close it. Every other failure closes it.
//
// Receive must not be called concurrently with itself.
func (c *Connection) Receive(ctx context.Context) (resp.Value, error) {
	conn, cur, dec := c.readHandles()
	if conn == nil {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(deadlineFor(ctx, c.cfg.ReadTimeout)); err != nil {
		_ = c.Disconnect()
		return nil, fmt.Errorf("%w: set read deadline: %w", ErrConnectionClosed, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(aLongTimeAgo)
	})

	cur.Begin()
	v, err := dec.Decode()
	stop()

	switch {
	case err == nil:
		cur.Commit()
		observability.RecordFrame("in", v.Type().String())
		return v, nil
	case isTimeout(err):
		cur.Rewind()
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		}
		observability.RecordTransportError("read_timeout")
		return nil, fmt.Errorf("%w: receive: %w", ErrTimeout, err)
	case errors.Is(err, resp.ErrLimitExceeded):
		c.log.Warn().Err(err).Msg("decode limit exceeded")
		observability.RecordTransportError("limit")
		_ = c.Disconnect()
		return nil, err
	case errors.Is(err, resp.ErrIncompleteFrame):
		c.log.Warn().Err(err).Msg("malformed array item")
		observability.RecordTransportError("desync")
		_ = c.Disconnect()
		return nil, err
	case errors.Is(err, resp.ErrParse):
		cur.Commit()
		observability.RecordTransportError("parse")
		return nil, err
	default:
		c.log.Debug().Err(err).Msg("stream ended")
		observability.RecordTransportError("closed")
		_ = c.Disconnect()
		return nil, fmt.Errorf("%w: receive: %w", ErrConnectionClosed, err)
	}
}

// Disconnect closes the stream. It is safe to call more than once.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.cur = nil
	c.dec = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.log.Debug().Msg("connection closed")
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (c *Connection) stream() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Connection) readHandles() (net.Conn, *resp.Cursor, *resp.Decoder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn, c.cur, c.dec
}

// deadlineFor returns the sooner of the ctx deadline and now+timeout, or the
// zero time when neither applies.
func deadlineFor(ctx context.Context, timeout time.Duration) time.Time {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	return deadline
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
