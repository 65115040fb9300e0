// Package respserver runs a scripted RESP peer on loopback for tests. The
// test drives the server side explicitly: accept, read the next command,
// write replies or raw bytes. Loopback TCP buffers small writes, so the
// test goroutine can script both sides without extra goroutines.
package respserver

import (
	"crypto/tls"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/redclient/internal/protocol/resp"
)

const ioTimeout = 2 * time.Second

type Server struct {
	ln    net.Listener
	peers chan net.Conn
}

// Start listens on 127.0.0.1 with an ephemeral port. A non-nil tlsCfg wraps
// the listener. The server is closed on test cleanup.
func Start(t testing.TB, tlsCfg *tls.Config) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	s := &Server{ln: ln, peers: make(chan net.Conn, 8)}
	go s.acceptLoop()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handshake(conn)
	}
}

// handshake completes TLS before handing the peer over, so a client blocked
// in its own handshake can return from Dial.
func (s *Server) handshake(conn net.Conn) {
	if tc, ok := conn.(*tls.Conn); ok {
		_ = tc.SetDeadline(time.Now().Add(ioTimeout))
		if err := tc.Handshake(); err != nil {
			_ = conn.Close()
			return
		}
		_ = tc.SetDeadline(time.Time{})
	}
	s.peers <- conn
}

func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.ln.Addr().String())
	return host
}

func (s *Server) Port() int {
	_, raw, _ := net.SplitHostPort(s.ln.Addr().String())
	port, _ := strconv.Atoi(raw)
	return port
}

// Accept waits for the next client.
func (s *Server) Accept(t testing.TB) *Peer {
	t.Helper()
	select {
	case conn := <-s.peers:
		t.Cleanup(func() { _ = conn.Close() })
		return newPeer(conn)
	case <-time.After(ioTimeout):
		t.Fatalf("accept: no client within %s", ioTimeout)
		return nil
	}
}

// Peer is the server side of one client stream.
type Peer struct {
	conn net.Conn
	dec  *resp.Decoder
}

func newPeer(conn net.Conn) *Peer {
	return &Peer{conn: conn, dec: resp.NewDecoder(resp.NewCursor(conn), resp.DefaultLimits())}
}

// Next reads the next value the client sent.
func (p *Peer) Next(t testing.TB) resp.Value {
	t.Helper()
	_ = p.conn.SetReadDeadline(time.Now().Add(ioTimeout))
	v, err := p.dec.Decode()
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	return v
}

// Expect reads the next command and fails unless its arguments match args.
// The command name is compared case-insensitively.
func (p *Peer) Expect(t testing.TB, args ...string) {
	t.Helper()
	got := Args(p.Next(t))
	if len(got) != len(args) {
		t.Fatalf("peer expected %q, got %q", args, got)
	}
	for i := range args {
		same := got[i] == args[i]
		if i == 0 {
			same = strings.EqualFold(got[i], args[i])
		}
		if !same {
			t.Fatalf("peer expected %q, got %q", args, got)
		}
	}
}

func (p *Peer) Send(t testing.TB, values ...resp.Value) {
	t.Helper()
	var out []byte
	for _, v := range values {
		out = resp.AppendValue(out, v)
	}
	p.Write(t, string(out))
}

// Write sends raw bytes, which need not be well formed.
func (p *Peer) Write(t testing.TB, raw string) {
	t.Helper()
	_ = p.conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	if _, err := p.conn.Write([]byte(raw)); err != nil {
		t.Fatalf("peer write: %v", err)
	}
}

// Close hangs up on the client.
func (p *Peer) Close() {
	_ = p.conn.Close()
}

// Args flattens a command array into the text of its items. Non-array
// values yield nil.
func Args(v resp.Value) []string {
	arr, ok := v.(*resp.Array)
	if !ok {
		return nil
	}
	out := make([]string, 0, arr.Len())
	for _, item := range arr.Items() {
		out = append(out, item.String())
	}
	return out
}

// Push builds a pub/sub push frame such as message, subscribe or unsubscribe.
func Push(kind, channel string, payload resp.Value) *resp.Array {
	arr, err := resp.NewArray(resp.BulkString(kind), resp.BulkString(channel), payload)
	if err != nil {
		panic(err)
	}
	return arr
}
