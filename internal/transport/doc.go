// Package transport owns the RESP connection to a server.
//
// Ownership boundary:
// - dialing (tcp, optional tls) and adopting existing streams
// - framing one value per send/receive through the resp codec
// - liveness tracking and the stream-level error taxonomy
//
// A Connection has one reader at a time; Send is safe for concurrent use.
package transport
